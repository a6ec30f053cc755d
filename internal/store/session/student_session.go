// Package session provides the session-backed student store: a thin
// write-through snapshot of the durable student store, for request paths
// that must not touch the identity tables on every read.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oakfield/servicelog/internal/model"
	sess "github.com/oakfield/servicelog/internal/session"
	"github.com/oakfield/servicelog/internal/store"
)

// snapshotTTL bounds how long a snapshot outlives its last write.
const snapshotTTL = 24 * time.Hour

// Durable is the backing student store plus the cheap freshness probe.
type Durable interface {
	store.StudentStore
	// ProfileStamp returns the durable profile's modified stamp without
	// hydrating the full record.
	ProfileStamp(ctx context.Context, id int64) (time.Time, error)
}

// SessionRecord is the whitelisted field subset persisted in the session
// blob. Anything not listed here never leaves the durable store.
type SessionRecord struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Year        int       `json:"year,omitempty"`
	House       string    `json:"house,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Students is the session-backed student store. Writes go through to the
// durable store and refresh the snapshot; reads serve the snapshot when its
// id and modified stamp still match the durable row.
type Students struct {
	durable  Durable
	sessions sess.Store
}

var _ store.StudentStore = (*Students)(nil)

func NewStudents(durable Durable, sessions sess.Store) *Students {
	return &Students{durable: durable, sessions: sessions}
}

func snapshotKey(id int64) string {
	return "student:" + strconv.FormatInt(id, 10)
}

// CreateStudent creates through the durable store and seeds the snapshot.
func (s *Students) CreateStudent(ctx context.Context, st *model.Student) error {
	if err := s.durable.CreateStudent(ctx, st); err != nil {
		return err
	}
	s.writeSnapshot(ctx, st)
	return nil
}

// UpdateStudent updates through the durable store and refreshes the snapshot.
func (s *Students) UpdateStudent(ctx context.Context, st *model.Student) error {
	if err := s.durable.UpdateStudent(ctx, st); err != nil {
		return err
	}
	s.writeSnapshot(ctx, st)
	return nil
}

func (s *Students) writeSnapshot(ctx context.Context, st *model.Student) {
	rec := SessionRecord{
		ID:          st.ID,
		Email:       st.Email,
		DisplayName: st.DisplayName,
		Year:        st.Year,
		House:       st.House,
		UpdatedAt:   st.UpdatedAt,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	// Snapshot failures degrade to durable reads, never to an error.
	_ = s.sessions.Set(ctx, snapshotKey(st.ID), string(payload), snapshotTTL)
}

// ReadStudent serves the snapshot when it is fresh: the stored id must match
// and the modified stamp must equal the durable one. Anything else falls back
// to the durable store and re-seeds the snapshot.
func (s *Students) ReadStudent(ctx context.Context, id int64) (*model.Student, error) {
	if st, ok := s.readSnapshot(ctx, id); ok {
		return st, nil
	}

	st, err := s.durable.ReadStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.writeSnapshot(ctx, st)
	return st, nil
}

func (s *Students) readSnapshot(ctx context.Context, id int64) (*model.Student, bool) {
	payload, err := s.sessions.Get(ctx, snapshotKey(id))
	if err != nil {
		return nil, false
	}

	var rec SessionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil || rec.ID != id {
		return nil, false
	}

	stamp, err := s.durable.ProfileStamp(ctx, id)
	if err != nil || !stamp.Equal(rec.UpdatedAt) {
		return nil, false
	}

	st := &model.Student{
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Year:        rec.Year,
		House:       rec.House,
	}
	st.ID = rec.ID
	st.Type = model.TypeStudent
	st.UpdatedAt = rec.UpdatedAt
	st.Status = model.DefaultStatus(model.TypeStudent)
	st.MarkRead()
	return st, true
}

// Delete removes the snapshot along with the durable record.
func (s *Students) Delete(ctx context.Context, id int64, hard bool) error {
	if err := s.durable.Delete(ctx, id, hard); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, snapshotKey(id)); err != nil && !errors.Is(err, sess.ErrNoSession) {
		return err
	}
	return nil
}

// ActivityCount is fixed at zero: session snapshots never carry aggregates.
func (s *Students) ActivityCount(ctx context.Context, studentID int64) (int, error) {
	return 0, nil
}

// TotalSpent is fixed at zero: session snapshots never carry aggregates.
func (s *Students) TotalSpent(ctx context.Context, studentID int64) (float64, error) {
	return 0, nil
}

// Search always goes durable: snapshots are keyed by id only.
func (s *Students) Search(ctx context.Context, term string, limit int) ([]*model.Student, error) {
	return s.durable.Search(ctx, term, limit)
}

// Uniform RecordStore contract.

func (s *Students) Create(ctx context.Context, rec model.Persistable) error {
	st, ok := rec.(*model.Student)
	if !ok {
		return fmt.Errorf("%w: student session store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.CreateStudent(ctx, st)
}

func (s *Students) Read(ctx context.Context, id int64) (model.Persistable, error) {
	return s.ReadStudent(ctx, id)
}

func (s *Students) Update(ctx context.Context, rec model.Persistable) error {
	st, ok := rec.(*model.Student)
	if !ok {
		return fmt.Errorf("%w: student session store cannot persist %T", store.ErrInvalidStore, rec)
	}
	return s.UpdateStudent(ctx, st)
}
