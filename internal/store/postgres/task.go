package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oakfield/servicelog/internal/events"
	"github.com/oakfield/servicelog/internal/model"
	"github.com/oakfield/servicelog/internal/query"
	"github.com/oakfield/servicelog/internal/store"
)

var taskInternalKeys = []string{
	"_duties", "_image_id", "_subtype", "_variant_of", "_exclude_from_catalog",
}

var taskPropKeys = map[model.Field]string{
	model.FieldDuties:  "_duties",
	model.FieldImageID: "_image_id",
}

// Tasks is the postgres-backed task store.
type Tasks struct {
	db  *DB
	pub events.Publisher
}

var _ store.TaskStore = (*Tasks)(nil)

func NewTasks(db *DB, pub events.Publisher) *Tasks {
	return &Tasks{db: db, pub: pub}
}

// CreateTask persists a new task, including its term rows (years, houses,
// category and tag associations).
func (s *Tasks) CreateTask(ctx context.Context, t *model.Task) error {
	if t.Saved() {
		return fmt.Errorf("create task: record %d already created", t.ID)
	}
	if err := model.ValidateTask(t); err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.DefaultStatus(model.TypeTask)
	}

	var newID int64
	var applyMeta func()
	err := inTransaction(ctx, s.db.sql, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO records (record_type, owner_id, parent_id, created_at, updated_at, status, title, body, excerpt)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			string(model.TypeTask),
			t.OwnerID,
			t.ParentID,
			t.CreatedAt,
			t.UpdatedAt,
			t.Status.StorageValue(),
			t.Title,
			t.Body,
			t.Excerpt,
		).Scan(&newID)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		if err := s.writeProps(ctx, tx, t, newID, propsToUpdate(t, taskPropKeys, true, nil)); err != nil {
			return err
		}
		if err := s.writeTerms(ctx, tx, t, newID, true); err != nil {
			return err
		}

		applyMeta, err = saveOpenMeta(ctx, tx, recordMeta, &t.Record, newID)
		return err
	})
	if err != nil {
		return store.WrapPersistence("create", err)
	}

	t.ID = newID
	applyMeta()
	t.ApplyChanges()
	t.MarkRead()

	_ = s.pub.Publish(ctx, events.TopicRecordCreated, events.RecordCreated{ID: t.ID, Type: model.TypeTask})
	return nil
}

// UpdateTask writes the changed core fields and props; array-valued term
// kinds are fully replaced when their field changed. Category and tag
// associations are not change-tracked and are always re-synced.
func (s *Tasks) UpdateTask(ctx context.Context, t *model.Task) error {
	if !t.Saved() {
		return fmt.Errorf("update task: record has no id")
	}

	stored, err := storedMetaKeys(ctx, s.db.sql, recordMeta, t.ID)
	if err != nil {
		return store.WrapPersistence("update", err)
	}
	props := propsToUpdate(t, taskPropKeys, false, stored)
	setClauses, args := changedCoreColumns(&t.Record)

	var applyMeta func()
	err = inTransaction(ctx, s.db.sql, func(tx *sql.Tx) error {
		if err := updateCoreRow(ctx, tx, t.ID, model.TypeTask, setClauses, args); err != nil {
			return err
		}
		if err := s.writeProps(ctx, tx, t, t.ID, props); err != nil {
			return err
		}
		if err := s.writeTerms(ctx, tx, t, t.ID, false); err != nil {
			return err
		}
		applyMeta, err = saveOpenMeta(ctx, tx, recordMeta, &t.Record, t.ID)
		return err
	})
	if err != nil {
		return store.WrapPersistence("update", err)
	}

	applyMeta()
	t.ApplyChanges()
	return nil
}

func (s *Tasks) writeProps(ctx context.Context, db executor, t *model.Task, id int64, props map[model.Field]string) error {
	for field, key := range props {
		var value string
		switch field {
		case model.FieldDuties:
			value = t.Duties
		case model.FieldImageID:
			if t.ImageID == 0 {
				continue
			}
			value = strconv.FormatInt(t.ImageID, 10)
		}
		if err := upsertMetaByKey(ctx, db, recordMeta, id, key, value); err != nil {
			return err
		}
	}
	return nil
}

// writeTerms syncs the multi-value term rows. On create everything is
// written; on update the change-tracked kinds are replaced only when their
// field changed, while associations are replaced unconditionally.
func (s *Tasks) writeTerms(ctx context.Context, db executor, t *model.Task, id int64, force bool) error {
	if force || t.Changed(model.FieldYears) {
		values := make([]string, len(t.Years))
		for i, y := range t.Years {
			values[i] = strconv.Itoa(y)
		}
		if err := replaceTerms(ctx, db, id, "year", values); err != nil {
			return err
		}
	}
	if force || t.Changed(model.FieldHouses) {
		if err := replaceTerms(ctx, db, id, "house", t.Houses); err != nil {
			return err
		}
	}
	if err := replaceTerms(ctx, db, id, "category", int64Strings(t.CategoryIDs)); err != nil {
		return err
	}
	return replaceTerms(ctx, db, id, "tag", int64Strings(t.TagIDs))
}

// ReadTask loads a task by id, including term rows and open metadata.
func (s *Tasks) ReadTask(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 AND record_type = $2`,
		id, string(model.TypeTask))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}
	return s.hydrate(ctx, s.db.sql, rec)
}

func (s *Tasks) hydrate(ctx context.Context, db executor, rec *model.Record) (*model.Task, error) {
	t := &model.Task{Record: *rec}

	if raw, _, ok, err := metaValue(ctx, db, recordMeta, rec.ID, "_duties"); err != nil {
		return nil, err
	} else if ok {
		t.Duties = raw
	}
	if raw, _, ok, err := metaValue(ctx, db, recordMeta, rec.ID, "_image_id"); err != nil {
		return nil, err
	} else if ok {
		t.ImageID, _ = strconv.ParseInt(raw, 10, 64)
	}

	terms, err := readTerms(ctx, db, rec.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range terms["year"] {
		if y, err := strconv.Atoi(v); err == nil {
			t.Years = append(t.Years, y)
		}
	}
	t.Houses = terms["house"]
	t.CategoryIDs = stringInt64s(terms["category"])
	t.TagIDs = stringInt64s(terms["tag"])

	meta, err := readMeta(ctx, db, recordMeta, rec.ID, internalKeySet(taskInternalKeys))
	if err != nil {
		return nil, err
	}
	t.Meta = meta
	t.MarkRead()
	return t, nil
}

// Delete removes a task: soft sets status to trashed, hard removes the row
// (metadata and terms cascade).
func (s *Tasks) Delete(ctx context.Context, id int64, hard bool) error {
	if hard {
		res, err := s.db.sql.ExecContext(ctx,
			`DELETE FROM records WHERE id = $1 AND record_type = $2`,
			id, string(model.TypeTask))
		if err != nil {
			return store.WrapPersistence("delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		_ = s.pub.Publish(ctx, events.TopicRecordDeleted, events.RecordDeleted{ID: id, Type: model.TypeTask})
		return nil
	}

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE records SET status = $2, updated_at = NOW() WHERE id = $1 AND record_type = $3`,
		id, model.StatusTrashed.StorageValue(), string(model.TypeTask))
	if err != nil {
		return store.WrapPersistence("delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List compiles the filter bag and executes it.
func (s *Tasks) List(ctx context.Context, filter model.Filter) ([]*model.Task, error) {
	spec := query.Compile(filter)
	spec.Type = model.TypeTask
	return s.listSpec(ctx, spec)
}

func (s *Tasks) listSpec(ctx context.Context, spec *query.Spec) ([]*model.Task, error) {
	where, args, err := whereClause(spec)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + recordColumns + ` FROM records` + where + ` ORDER BY created_at DESC, id DESC`
	if spec.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", spec.Limit)
	}

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	recs, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}

	out := make([]*model.Task, 0, len(recs))
	for _, rec := range recs {
		t, err := s.hydrate(ctx, s.db.sql, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Related unions tasks sharing a category or tag with the given lists,
// dropping catalog-excluded tasks and the explicit id list. It over-fetches
// limit+10 candidates so the caller can sample a random subset.
func (s *Tasks) Related(ctx context.Context, categoryIDs, tagIDs, excludeIDs []int64, limit int) ([]*model.Task, error) {
	if len(categoryIDs) == 0 && len(tagIDs) == 0 {
		return nil, nil
	}

	var (
		args   []any
		argIdx int
	)
	nextArg := func(v any) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}
	inList := func(kind string, ids []int64) string {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = nextArg(strconv.FormatInt(id, 10))
		}
		return fmt.Sprintf("(t.kind = '%s' AND t.value IN (%s))", kind, strings.Join(placeholders, ", "))
	}

	var termAlts []string
	if len(categoryIDs) > 0 {
		termAlts = append(termAlts, inList("category", categoryIDs))
	}
	if len(tagIDs) > 0 {
		termAlts = append(termAlts, inList("tag", tagIDs))
	}

	clauses := []string{
		"record_type = " + nextArg(string(model.TypeTask)),
		"status = " + nextArg(model.StatusActive.StorageValue()),
		"EXISTS (SELECT 1 FROM record_terms t WHERE t.record_id = records.id AND (" + strings.Join(termAlts, " OR ") + "))",
		"NOT EXISTS (SELECT 1 FROM record_meta m WHERE m.record_id = records.id AND m.key = '_exclude_from_catalog')",
	}
	if len(excludeIDs) > 0 {
		placeholders := make([]string, len(excludeIDs))
		for i, id := range excludeIDs {
			placeholders[i] = nextArg(id)
		}
		clauses = append(clauses, "id NOT IN ("+strings.Join(placeholders, ", ")+")")
	}

	q := `SELECT ` + recordColumns + ` FROM records WHERE ` + strings.Join(clauses, " AND ") +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+10)

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("related tasks: %w", err)
	}
	defer rows.Close()

	recs, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan related tasks: %w", err)
	}

	out := make([]*model.Task, 0, len(recs))
	for _, rec := range recs {
		t, err := s.hydrate(ctx, s.db.sql, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Search runs a tokenized free-text search over tasks. Subtype narrows by
// the subtype metadata; variants are excluded unless includeVariants is set;
// only active and pending tasks match unless allStatuses is set.
func (s *Tasks) Search(ctx context.Context, term, subtype string, includeVariants, allStatuses bool, limit int) ([]*model.Task, error) {
	filter := model.Filter{"search": term}
	if subtype != "" {
		filter["subtype"] = subtype
	}

	spec := query.Compile(filter)
	spec.Type = model.TypeTask
	spec.Limit = limit

	if !allStatuses {
		spec.Fields = append(spec.Fields, query.FieldCond{
			Column: "status",
			Op:     query.OpIn,
			Values: []any{
				model.StatusActive.StorageValue(),
				model.StatusPending.StorageValue(),
			},
		})
	}
	if !includeVariants {
		spec.Meta = append(spec.Meta, query.MetaCond{Key: "_variant_of", Op: query.OpNotExists})
	}

	return s.listSpec(ctx, spec)
}

// ActivityType reports the task's subtype, or "" when none is set.
func (s *Tasks) ActivityType(ctx context.Context, id int64) (string, error) {
	var exists bool
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM records WHERE id = $1 AND record_type = $2)`,
		id, string(model.TypeTask)).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("activity type: %w", err)
	}
	if !exists {
		return "", store.ErrNotFound
	}
	raw, _, ok, err := metaValue(ctx, s.db.sql, recordMeta, id, "_subtype")
	if err != nil {
		return "", fmt.Errorf("activity type: %w", err)
	}
	if !ok {
		return "", nil
	}
	return raw, nil
}

// Uniform RecordStore contract.

func (s *Tasks) Create(ctx context.Context, rec model.Persistable) error {
	t, ok := rec.(*model.Task)
	if !ok {
		return fmt.Errorf("%w: task store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.CreateTask(ctx, t)
}

func (s *Tasks) Read(ctx context.Context, id int64) (model.Persistable, error) {
	return s.ReadTask(ctx, id)
}

func (s *Tasks) Update(ctx context.Context, rec model.Persistable) error {
	t, ok := rec.(*model.Task)
	if !ok {
		return fmt.Errorf("%w: task store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.UpdateTask(ctx, t)
}

// Term-table helpers.

// replaceTerms swaps all rows of one kind for a record.
func replaceTerms(ctx context.Context, db executor, recordID int64, kind string, values []string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM record_terms WHERE record_id = $1 AND kind = $2`, recordID, kind); err != nil {
		return fmt.Errorf("clear %s terms: %w", kind, err)
	}
	for _, v := range values {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO record_terms (record_id, kind, value) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			recordID, kind, v); err != nil {
			return fmt.Errorf("insert %s term: %w", kind, err)
		}
	}
	return nil
}

// readTerms loads all term rows for a record grouped by kind.
func readTerms(ctx context.Context, db executor, recordID int64) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT kind, value FROM record_terms WHERE record_id = $1 ORDER BY kind, value`, recordID)
	if err != nil {
		return nil, fmt.Errorf("read terms: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		out[kind] = append(out[kind], value)
	}
	return out, rows.Err()
}

func int64Strings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}

func stringInt64s(values []string) []int64 {
	var out []int64
	for _, v := range values {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
