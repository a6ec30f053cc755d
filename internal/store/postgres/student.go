package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oakfield/servicelog/internal/cache"
	"github.com/oakfield/servicelog/internal/identity"
	"github.com/oakfield/servicelog/internal/model"
	"github.com/oakfield/servicelog/internal/store"
)

// aggregateNamespace is the cache namespace for student aggregate counters.
const aggregateNamespace = "student"

// aggregateTTL bounds staleness when an invalidation is missed.
const aggregateTTL = time.Hour

var studentInternalKeys = []string{"_year", "_house", "_guardian_email"}

var studentPropKeys = map[model.Field]string{
	model.FieldYear:          "_year",
	model.FieldHouse:         "_house",
	model.FieldGuardianEmail: "_guardian_email",
}

// Students is the student store: identity rows carry the core profile, the
// identity metadata table carries the school-specific props, and the
// aggregate getters compute over activity records with a cache in front.
type Students struct {
	db    *DB
	users identity.Store
	cache cache.Cache
}

var _ store.StudentStore = (*Students)(nil)

// NewStudents returns a student store. A nil cache falls back to an
// in-process one.
func NewStudents(db *DB, users identity.Store, c cache.Cache) *Students {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Students{db: db, users: users, cache: c}
}

// CreateStudent creates the identity user and the profile props in one
// transaction. The id is the identity user id.
func (s *Students) CreateStudent(ctx context.Context, st *model.Student) error {
	if st.Saved() {
		return fmt.Errorf("create student: record %d already created", st.ID)
	}
	if err := model.ValidateStudent(st); err != nil {
		return err
	}

	var (
		user      identity.User
		applyMeta func()
	)
	err := inTransaction(ctx, s.db.sql, func(tx *sql.Tx) error {
		user = identity.User{Email: st.Email, DisplayName: st.DisplayName}
		if err := identity.New(tx).Create(ctx, &user); err != nil {
			return err
		}

		if err := s.writeProps(ctx, tx, st, user.ID, propsToUpdate(st, studentPropKeys, true, nil)); err != nil {
			return err
		}

		var err error
		applyMeta, err = saveOpenMeta(ctx, tx, userMeta, &st.Record, user.ID)
		return err
	})
	if err != nil {
		return store.WrapPersistence("create", err)
	}

	st.ID = user.ID
	st.Type = model.TypeStudent
	st.CreatedAt = user.CreatedAt
	st.UpdatedAt = user.UpdatedAt
	applyMeta()
	st.ApplyChanges()
	st.MarkRead()
	return nil
}

// UpdateStudent writes only the changed identity fields and props.
func (s *Students) UpdateStudent(ctx context.Context, st *model.Student) error {
	if !st.Saved() {
		return fmt.Errorf("update student: record has no id")
	}

	stored, err := storedMetaKeys(ctx, s.db.sql, userMeta, st.ID)
	if err != nil {
		return store.WrapPersistence("update", err)
	}
	props := propsToUpdate(st, studentPropKeys, false, stored)
	identityChanged := st.Changed(model.FieldEmail) || st.Changed(model.FieldDisplayName)

	var applyMeta func()
	err = inTransaction(ctx, s.db.sql, func(tx *sql.Tx) error {
		if identityChanged {
			user := identity.User{ID: st.ID, Email: st.Email, DisplayName: st.DisplayName}
			if err := identity.New(tx).Update(ctx, &user); err != nil {
				if errors.Is(err, identity.ErrNotFound) {
					return store.ErrNotFound
				}
				return err
			}
			st.UpdatedAt = user.UpdatedAt
		}

		if err := s.writeProps(ctx, tx, st, st.ID, props); err != nil {
			return err
		}

		var err error
		applyMeta, err = saveOpenMeta(ctx, tx, userMeta, &st.Record, st.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.WrapPersistence("update", err)
	}

	applyMeta()
	st.ApplyChanges()
	return nil
}

func (s *Students) writeProps(ctx context.Context, db executor, st *model.Student, id int64, props map[model.Field]string) error {
	for field, key := range props {
		var value string
		switch field {
		case model.FieldYear:
			if st.Year == 0 {
				continue
			}
			value = strconv.Itoa(st.Year)
		case model.FieldHouse:
			value = st.House
		case model.FieldGuardianEmail:
			value = st.GuardianEmail
		}
		if err := upsertMetaByKey(ctx, db, userMeta, id, key, value); err != nil {
			return err
		}
	}
	return nil
}

// ReadStudent loads a student by identity user id.
func (s *Students) ReadStudent(ctx context.Context, id int64) (*model.Student, error) {
	user, err := s.users.Read(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read student: %w", err)
	}
	return s.hydrate(ctx, user)
}

func (s *Students) hydrate(ctx context.Context, user *identity.User) (*model.Student, error) {
	st := &model.Student{
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
	st.ID = user.ID
	st.Type = model.TypeStudent
	st.CreatedAt = user.CreatedAt
	st.UpdatedAt = user.UpdatedAt
	st.Status = model.DefaultStatus(model.TypeStudent)

	if raw, _, ok, err := metaValue(ctx, s.db.sql, userMeta, user.ID, "_status"); err != nil {
		return nil, err
	} else if ok {
		if status, err := model.ParseStorageStatus(raw); err == nil {
			st.Status = status
		}
	}
	if raw, _, ok, err := metaValue(ctx, s.db.sql, userMeta, user.ID, "_year"); err != nil {
		return nil, err
	} else if ok {
		st.Year, _ = strconv.Atoi(raw)
	}
	if raw, _, ok, err := metaValue(ctx, s.db.sql, userMeta, user.ID, "_house"); err != nil {
		return nil, err
	} else if ok {
		st.House = raw
	}
	if raw, _, ok, err := metaValue(ctx, s.db.sql, userMeta, user.ID, "_guardian_email"); err != nil {
		return nil, err
	} else if ok {
		st.GuardianEmail = raw
	}

	meta, err := readMeta(ctx, s.db.sql, userMeta, user.ID, internalKeySet(studentInternalKeys))
	if err != nil {
		return nil, err
	}
	st.Meta = meta
	st.MarkRead()
	return st, nil
}

// Delete removes a student. Soft delete parks the status prop on trashed;
// hard delete removes the identity row (metadata cascades). Activity records
// owned by the student are left in place either way.
func (s *Students) Delete(ctx context.Context, id int64, hard bool) error {
	if hard {
		if err := s.users.Delete(ctx, id); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return store.ErrNotFound
			}
			return store.WrapPersistence("delete", err)
		}
	} else {
		if _, err := s.users.Read(ctx, id); errors.Is(err, identity.ErrNotFound) {
			return store.ErrNotFound
		} else if err != nil {
			return store.WrapPersistence("delete", err)
		}
		if err := upsertMetaByKey(ctx, s.db.sql, userMeta, id, "_status",
			model.StatusTrashed.StorageValue()); err != nil {
			return store.WrapPersistence("delete", err)
		}
	}
	s.InvalidateAggregates(ctx, id)
	return nil
}

// ActivityCount returns the student's approved-activity count, cached.
// Cache failures degrade to the durable count.
func (s *Students) ActivityCount(ctx context.Context, studentID int64) (int, error) {
	key := "count:" + strconv.FormatInt(studentID, 10)
	if raw, err := s.cache.Get(ctx, aggregateNamespace, key); err == nil {
		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}
	}

	var n int
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records
		WHERE record_type = $1 AND owner_id = $2 AND status = $3`,
		string(model.TypeActivity), studentID, model.StatusApproved.StorageValue(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("activity count: %w", err)
	}

	_ = s.cache.Set(ctx, aggregateNamespace, key, strconv.Itoa(n), aggregateTTL)
	return n, nil
}

// TotalSpent sums the cost prop across the student's approved activities,
// cached.
func (s *Students) TotalSpent(ctx context.Context, studentID int64) (float64, error) {
	key := "spent:" + strconv.FormatInt(studentID, 10)
	if raw, err := s.cache.Get(ctx, aggregateNamespace, key); err == nil {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, nil
		}
	}

	var total float64
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COALESCE(SUM((m.value)::numeric), 0)
		FROM records r
		JOIN record_meta m ON m.record_id = r.id AND m.key = '_cost'
		WHERE r.record_type = $1 AND r.owner_id = $2 AND r.status = $3`,
		string(model.TypeActivity), studentID, model.StatusApproved.StorageValue(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total spent: %w", err)
	}

	_ = s.cache.Set(ctx, aggregateNamespace, key, strconv.FormatFloat(total, 'f', -1, 64), aggregateTTL)
	return total, nil
}

// ProfileStamp returns the identity row's modified stamp. The session-backed
// store probes it to decide snapshot freshness.
func (s *Students) ProfileStamp(ctx context.Context, id int64) (time.Time, error) {
	user, err := s.users.Read(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("profile stamp: %w", err)
	}
	return user.UpdatedAt, nil
}

// InvalidateAggregates drops the cached aggregates for a student. Wire it as
// an activity-store mutation hook.
func (s *Students) InvalidateAggregates(ctx context.Context, studentID int64) {
	id := strconv.FormatInt(studentID, 10)
	_ = s.cache.Delete(ctx, aggregateNamespace, "count:"+id)
	_ = s.cache.Delete(ctx, aggregateNamespace, "spent:"+id)
}

// Search unions a name-pattern match with a direct email lookup, deduped
// and truncated to limit. A non-positive limit is unbounded.
func (s *Students) Search(ctx context.Context, term string, limit int) ([]*model.Student, error) {
	users, err := s.users.SearchName(ctx, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}

	if byEmail, err := s.users.ReadByEmail(ctx, term); err == nil {
		users = append(users, byEmail)
	} else if !errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("search students: %w", err)
	}

	seen := make(map[int64]bool, len(users))
	out := make([]*model.Student, 0, len(users))
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		st, err := s.hydrate(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Uniform RecordStore contract.

func (s *Students) Create(ctx context.Context, rec model.Persistable) error {
	st, ok := rec.(*model.Student)
	if !ok {
		return fmt.Errorf("%w: student store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.CreateStudent(ctx, st)
}

func (s *Students) Read(ctx context.Context, id int64) (model.Persistable, error) {
	return s.ReadStudent(ctx, id)
}

func (s *Students) Update(ctx context.Context, rec model.Persistable) error {
	st, ok := rec.(*model.Student)
	if !ok {
		return fmt.Errorf("%w: student store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.UpdateStudent(ctx, st)
}
