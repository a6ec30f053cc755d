package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/oakfield/servicelog/internal/events"
	"github.com/oakfield/servicelog/internal/idgen"
	"github.com/oakfield/servicelog/internal/model"
	"github.com/oakfield/servicelog/internal/query"
	"github.com/oakfield/servicelog/internal/store"
)

// activityInternalKeys is the activity store's internal metadata key list;
// these rows back typed props and never appear in the open metadata view.
var activityInternalKeys = []string{
	"_activity_date", "_attachment_id", "_guest_email", "_external_code", "_cost",
}

// activityPropKeys maps the typed props persisted through the meta engine.
var activityPropKeys = map[model.Field]string{
	model.FieldActivityDate: "_activity_date",
	model.FieldAttachmentID: "_attachment_id",
}

// coreColumns maps changed core fields to their records-table columns.
var coreColumns = map[model.Field]string{
	model.FieldOwnerID:  "owner_id",
	model.FieldParentID: "parent_id",
	model.FieldStatus:   "status",
	model.FieldTitle:    "title",
	model.FieldBody:     "body",
	model.FieldExcerpt:  "excerpt",
}

// MutationHook is called after a successful activity mutation with the owning
// student's id. The student store registers one to invalidate its cached
// aggregates.
type MutationHook func(ctx context.Context, studentID int64)

// Activities is the postgres-backed activity store.
type Activities struct {
	db  *DB
	pub events.Publisher

	// TouchModified controls whether an update with an empty changed-set
	// still refreshes the modified timestamp. When disabled, such a save
	// performs no write at all.
	TouchModified bool

	hooks []MutationHook
}

var _ store.ActivityStore = (*Activities)(nil)

// NewActivities returns an activity store over db publishing transition notes
// to pub (pass a NoopPublisher when no broker is configured).
func NewActivities(db *DB, pub events.Publisher) *Activities {
	return &Activities{db: db, pub: pub, TouchModified: true}
}

// AddMutationHook registers a hook fired after create/update/delete.
func (s *Activities) AddMutationHook(h MutationHook) {
	s.hooks = append(s.hooks, h)
}

func (s *Activities) runHooks(ctx context.Context, studentID int64) {
	for _, h := range s.hooks {
		h(ctx, studentID)
	}
}

// CreateActivity persists a new activity: stamps the creation timestamp,
// maps the status through the storage boundary, writes the core row, then
// the typed props and open metadata. The id is assigned only after the
// transaction commits, so a failed create can be retried on the same
// instance.
func (s *Activities) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.Saved() {
		return fmt.Errorf("create activity: record %d already created", a.ID)
	}
	if err := model.ValidateActivity(a); err != nil {
		return err
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = model.DefaultStatus(model.TypeActivity)
	}

	var newID int64
	var applyMeta func()
	err := inTransaction(ctx, s.db.sql, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO records (record_type, owner_id, parent_id, created_at, updated_at, status, title, body, excerpt)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			string(model.TypeActivity),
			a.OwnerID,
			a.ParentID,
			a.CreatedAt,
			a.UpdatedAt,
			a.Status.StorageValue(),
			a.Title,
			a.Body,
			a.Excerpt,
		).Scan(&newID)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}

		if err := s.writeProps(ctx, tx, a, newID, propsToUpdate(a, activityPropKeys, true, nil)); err != nil {
			return err
		}

		if a.ExternalCode == "" {
			code, err := idgen.GenerateWithPrefix("act-")
			if err != nil {
				return err
			}
			a.ExternalCode = code
		}
		if _, err := addMetaRow(ctx, tx, recordMeta, newID, "_external_code", a.ExternalCode); err != nil {
			return err
		}

		applyMeta, err = saveOpenMeta(ctx, tx, recordMeta, &a.Record, newID)
		return err
	})
	if err != nil {
		return store.WrapPersistence("create", err)
	}

	a.ID = newID
	applyMeta()
	a.ApplyChanges()
	a.MarkRead()

	_ = s.pub.Publish(ctx, events.TopicRecordCreated, events.RecordCreated{ID: a.ID, Type: model.TypeActivity})
	s.runHooks(ctx, a.OwnerID)
	return nil
}

// UpdateActivity writes only the changed fields (plus never-stored props).
// A failed update leaves the changed-set intact so a retry re-sends exactly
// the pending fields. When the status changed, the transition note is
// published exactly once, after the commit.
func (s *Activities) UpdateActivity(ctx context.Context, a *model.Activity) error {
	if !a.Saved() {
		return fmt.Errorf("update activity: record has no id")
	}

	statusChange, statusChanged := a.ChangeFor(model.FieldStatus)

	stored, err := storedMetaKeys(ctx, s.db.sql, recordMeta, a.ID)
	if err != nil {
		return store.WrapPersistence("update", err)
	}
	props := propsToUpdate(a, activityPropKeys, false, stored)

	setClauses, args := changedCoreColumns(&a.Record)
	hasMetaWork := len(props) > 0 || pendingOpenMeta(&a.Record)
	if len(setClauses) == 0 && !hasMetaWork && !s.TouchModified {
		return nil
	}

	var applyMeta func()
	err = inTransaction(ctx, s.db.sql, func(tx *sql.Tx) error {
		if len(setClauses) > 0 || s.TouchModified {
			if err := updateCoreRow(ctx, tx, a.ID, model.TypeActivity, setClauses, args); err != nil {
				return err
			}
		}

		// Re-parent the attachment record when its reference changed.
		if ch, ok := a.ChangeFor(model.FieldAttachmentID); ok {
			if id, _ := ch.To.(int64); id > 0 {
				if _, err := tx.ExecContext(ctx,
					`UPDATE records SET parent_id = $1 WHERE id = $2`, a.ID, id); err != nil {
					return fmt.Errorf("re-parent attachment %d: %w", id, err)
				}
			}
		}

		if err := s.writeProps(ctx, tx, a, a.ID, props); err != nil {
			return err
		}

		applyMeta, err = saveOpenMeta(ctx, tx, recordMeta, &a.Record, a.ID)
		return err
	})
	if err != nil {
		return store.WrapPersistence("update", err)
	}

	applyMeta()
	a.ApplyChanges()

	if statusChanged {
		from, _ := statusChange.From.(model.Status)
		to, _ := statusChange.To.(model.Status)
		_ = s.pub.Publish(ctx, events.TopicActivityStatusChanged, events.StatusChanged{
			ID: a.ID, OwnerID: a.OwnerID, From: from, To: to,
		})
	}
	s.runHooks(ctx, a.OwnerID)
	return nil
}

// writeProps persists the selected typed props through the meta engine.
func (s *Activities) writeProps(ctx context.Context, db executor, a *model.Activity, id int64, props map[model.Field]string) error {
	for field, key := range props {
		var value string
		switch field {
		case model.FieldActivityDate:
			if a.ActivityDate.IsZero() {
				continue
			}
			value = strconv.FormatInt(a.ActivityDate.Unix(), 10)
		case model.FieldAttachmentID:
			if a.AttachmentID == 0 {
				continue
			}
			value = strconv.FormatInt(a.AttachmentID, 10)
		}
		if err := upsertMetaByKey(ctx, db, recordMeta, id, key, value); err != nil {
			return err
		}
	}
	return nil
}

// ReadActivity loads an activity by id. A nonexistent or wrong-type id is
// ErrNotFound.
func (s *Activities) ReadActivity(ctx context.Context, id int64) (*model.Activity, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 AND record_type = $2`,
		id, string(model.TypeActivity))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	return s.hydrate(ctx, s.db.sql, rec)
}

// hydrate attaches typed props and the open metadata view to a core record.
func (s *Activities) hydrate(ctx context.Context, db executor, rec *model.Record) (*model.Activity, error) {
	a := &model.Activity{Record: *rec}

	if raw, _, ok, err := metaValue(ctx, db, recordMeta, rec.ID, "_activity_date"); err != nil {
		return nil, err
	} else if ok {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			a.ActivityDate = time.Unix(epoch, 0).UTC()
		}
	}
	if raw, _, ok, err := metaValue(ctx, db, recordMeta, rec.ID, "_attachment_id"); err != nil {
		return nil, err
	} else if ok {
		a.AttachmentID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw, _, ok, err := metaValue(ctx, db, recordMeta, rec.ID, "_external_code"); err != nil {
		return nil, err
	} else if ok {
		a.ExternalCode = raw
	}

	meta, err := readMeta(ctx, db, recordMeta, rec.ID, internalKeySet(activityInternalKeys))
	if err != nil {
		return nil, err
	}
	a.Meta = meta
	a.MarkRead()
	return a, nil
}

// Delete removes an activity: soft sets status to trashed, hard removes the
// row (metadata cascades).
func (s *Activities) Delete(ctx context.Context, id int64, hard bool) error {
	var (
		ownerID int64
		status  string
	)
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT owner_id, status FROM records WHERE id = $1 AND record_type = $2`,
		id, string(model.TypeActivity)).Scan(&ownerID, &status)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return store.WrapPersistence("delete", err)
	}

	if hard {
		if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id); err != nil {
			return store.WrapPersistence("delete", err)
		}
		_ = s.pub.Publish(ctx, events.TopicRecordDeleted, events.RecordDeleted{ID: id, Type: model.TypeActivity})
	} else {
		if _, err := s.db.sql.ExecContext(ctx,
			`UPDATE records SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, model.StatusTrashed.StorageValue()); err != nil {
			return store.WrapPersistence("delete", err)
		}
		if from, err := model.ParseStorageStatus(status); err == nil && from != model.StatusTrashed {
			_ = s.pub.Publish(ctx, events.TopicActivityStatusChanged, events.StatusChanged{
				ID: id, OwnerID: ownerID, From: from, To: model.StatusTrashed,
			})
		}
	}

	s.runHooks(ctx, ownerID)
	return nil
}

// Count returns the number of activities in the given status.
func (s *Activities) Count(ctx context.Context, status model.Status) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE record_type = $1 AND status = $2`,
		string(model.TypeActivity), status.StorageValue()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

// Search lists activities matching the tokenized free-text term.
func (s *Activities) Search(ctx context.Context, term string) ([]*model.Activity, error) {
	return s.List(ctx, model.Filter{"search": term})
}

// List compiles the filter bag and executes it. A compiler error yields an
// empty result and the error; the query is never run unfiltered.
func (s *Activities) List(ctx context.Context, filter model.Filter) ([]*model.Activity, error) {
	spec := query.Compile(filter)
	spec.Type = model.TypeActivity

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
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	recs, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan activities: %w", err)
	}

	out := make([]*model.Activity, 0, len(recs))
	for _, rec := range recs {
		a, err := s.hydrate(ctx, s.db.sql, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Uniform RecordStore contract.

func (s *Activities) Create(ctx context.Context, rec model.Persistable) error {
	a, ok := rec.(*model.Activity)
	if !ok {
		return fmt.Errorf("%w: activity store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.CreateActivity(ctx, a)
}

func (s *Activities) Read(ctx context.Context, id int64) (model.Persistable, error) {
	return s.ReadActivity(ctx, id)
}

func (s *Activities) Update(ctx context.Context, rec model.Persistable) error {
	a, ok := rec.(*model.Activity)
	if !ok {
		return fmt.Errorf("%w: activity store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.UpdateActivity(ctx, a)
}

// Shared helpers for core-row updates.

// changedCoreColumns builds SET fragments for the record's changed core
// fields. Args are positional starting at $2 ($1 is the id).
func changedCoreColumns(rec *model.Record) ([]string, []any) {
	var (
		clauses []string
		args    []any
	)
	idx := 1
	add := func(column string, v any) {
		idx++
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, v)
	}
	for field, column := range coreColumns {
		if !rec.Changed(field) {
			continue
		}
		switch field {
		case model.FieldOwnerID:
			add(column, rec.OwnerID)
		case model.FieldParentID:
			add(column, rec.ParentID)
		case model.FieldStatus:
			add(column, rec.Status.StorageValue())
		case model.FieldTitle:
			add(column, rec.Title)
		case model.FieldBody:
			add(column, rec.Body)
		case model.FieldExcerpt:
			add(column, rec.Excerpt)
		}
	}
	return clauses, args
}

// updateCoreRow applies the SET fragments plus the modified-timestamp refresh.
func updateCoreRow(ctx context.Context, db executor, id int64, t model.RecordType, setClauses []string, args []any) error {
	set := "updated_at = NOW()"
	for _, c := range setClauses {
		set += ", " + c
	}
	full := append([]any{id}, args...)
	res, err := db.ExecContext(ctx,
		`UPDATE records SET `+set+` WHERE id = $1 AND record_type = '`+string(t)+`'`,
		full...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// pendingOpenMeta reports whether the record has unsaved open-metadata work.
func pendingOpenMeta(rec *model.Record) bool {
	if len(rec.PendingMetaDeletes()) > 0 {
		return true
	}
	for i := range rec.Meta {
		if rec.Meta[i].Dirty {
			return true
		}
	}
	return false
}
