package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/oakfield/servicelog/internal/events"
	"github.com/oakfield/servicelog/internal/model"
	"github.com/oakfield/servicelog/internal/query"
	"github.com/oakfield/servicelog/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return &DB{sql: db}, mock
}

// recordRowColumns is the column list for scanRecord results.
var recordRowColumns = []string{
	"id", "record_type", "owner_id", "parent_id", "created_at", "updated_at",
	"status", "title", "body", "excerpt",
}

func addRecordRow(rows *sqlmock.Rows, id int64, typ, status, title string, ownerID int64, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, typ, ownerID, 0, now, now, status, title, nil, nil)
}

// expectMetaValue mocks the single-row meta lookup for a key.
func expectMetaValue(mock sqlmock.Sqlmock, table string, ownerID int64, key, value string) {
	rows := sqlmock.NewRows([]string{"id", "value"})
	if value != "" {
		rows.AddRow(1, value)
	}
	mock.ExpectQuery("SELECT id, value FROM "+table).WithArgs(ownerID, key).
		WillReturnRows(rows)
}

// expectEmptyMeta mocks the full-metadata read returning no rows.
func expectEmptyMeta(mock sqlmock.Sqlmock, table string, ownerID int64) {
	mock.ExpectQuery("SELECT id, key, value FROM "+table).WithArgs(ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "value"}))
}

func TestCreateActivity(t *testing.T) {
	db, mock := newMockDB(t)
	rec := &events.Recorder{}
	s := NewActivities(db, rec)

	a := model.NewActivity()
	a.SetTitle("Beach clean-up")
	a.SetStudentID(7)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO records").
		WithArgs("activity", int64(7), int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"svc-pending", "Beach clean-up", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery("INSERT INTO record_meta").
		WithArgs(int64(42), "_external_code", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	if err := s.CreateActivity(context.Background(), a); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if a.ID != 42 {
		t.Errorf("ID = %d, want 42", a.ID)
	}
	if !strings.HasPrefix(a.ExternalCode, "act-") {
		t.Errorf("external code = %q, want generated act- code", a.ExternalCode)
	}
	if len(a.Changes()) != 0 {
		t.Errorf("changes not cleared after create: %v", a.Changes())
	}

	published := rec.Published()
	if len(published) != 1 || published[0].Topic != events.TopicRecordCreated {
		t.Fatalf("published = %+v, want one record-created note", published)
	}
}

func TestCreateActivity_RollbackKeepsChanges(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	a := model.NewActivity()
	a.SetTitle("Beach clean-up")
	a.SetStudentID(7)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO records").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.CreateActivity(context.Background(), a)
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *store.PersistenceError
	if !errors.As(err, &pe) {
		t.Errorf("error %v is not a PersistenceError", err)
	}
	if a.Saved() {
		t.Error("id assigned despite rollback")
	}
	if !a.Changed(model.FieldTitle) || !a.Changed(model.FieldOwnerID) {
		t.Error("changed-set lost after failed create")
	}
}

func TestCreateActivity_Invalid(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	a := model.NewActivity()
	// No title, no student.
	err := s.CreateActivity(context.Background(), a)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateActivity_StatusTransitionPublishedOnce(t *testing.T) {
	db, mock := newMockDB(t)
	rec := &events.Recorder{}
	s := NewActivities(db, rec)

	a := savedActivity(51, 7, model.StatusPending)
	a.UpdateStatus(model.StatusApproved)

	mock.ExpectQuery("SELECT DISTINCT key FROM record_meta").WithArgs(int64(51)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("_activity_date").AddRow("_attachment_id"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE records SET").
		WithArgs(int64(51), "svc-approved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpdateActivity(context.Background(), a); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	if a.Changed(model.FieldStatus) {
		t.Error("status change not cleared after save")
	}

	published := rec.Published()
	if len(published) != 1 {
		t.Fatalf("published %d notes, want 1", len(published))
	}
	note, ok := published[0].Event.(events.StatusChanged)
	if !ok || note.From != model.StatusPending || note.To != model.StatusApproved || note.ID != 51 {
		t.Errorf("note = %+v", published[0].Event)
	}

	// A second save with nothing changed publishes nothing.
	mock.ExpectQuery("SELECT DISTINCT key FROM record_meta").WithArgs(int64(51)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("_activity_date").AddRow("_attachment_id"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE records SET").
		WithArgs(int64(51)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpdateActivity(context.Background(), a); err != nil {
		t.Fatalf("second UpdateActivity: %v", err)
	}
	if len(rec.Published()) != 1 {
		t.Error("transition note published again on unchanged save")
	}
}

func TestUpdateActivity_FailureKeepsChangedSet(t *testing.T) {
	db, mock := newMockDB(t)
	rec := &events.Recorder{}
	s := NewActivities(db, rec)

	a := savedActivity(51, 7, model.StatusPending)
	a.UpdateStatus(model.StatusApproved)

	mock.ExpectQuery("SELECT DISTINCT key FROM record_meta").WithArgs(int64(51)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("_activity_date").AddRow("_attachment_id"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE records SET").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	if err := s.UpdateActivity(context.Background(), a); err == nil {
		t.Fatal("expected error")
	}
	if !a.Changed(model.FieldStatus) {
		t.Error("changed-set lost after failed update")
	}
	if len(rec.Published()) != 0 {
		t.Error("transition note published despite rollback")
	}
}

func TestUpdateActivity_AttachmentReparent(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	a := savedActivity(51, 7, model.StatusApproved)
	a.SetAttachmentID(90)

	mock.ExpectQuery("SELECT DISTINCT key FROM record_meta").WithArgs(int64(51)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("_activity_date").AddRow("_attachment_id"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE records SET").
		WithArgs(int64(51)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Attachment row re-parented under the activity.
	mock.ExpectExec("UPDATE records SET parent_id").
		WithArgs(int64(51), int64(90)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Changed prop written through the meta engine.
	mock.ExpectQuery("SELECT id, value FROM record_meta").WithArgs(int64(51), "_attachment_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "value"}).AddRow(3, "0"))
	mock.ExpectExec("UPDATE record_meta SET").
		WithArgs(int64(3), "_attachment_id", "90").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpdateActivity(context.Background(), a); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
}

func TestReadActivity(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery("SELECT (.+) FROM records WHERE id").WithArgs(int64(51), "activity").
		WillReturnRows(addRecordRow(sqlmock.NewRows(recordRowColumns),
			51, "activity", "svc-approved", "Beach clean-up", 7, now))
	expectMetaValue(mock, "record_meta", 51, "_activity_date", "1767225600")
	expectMetaValue(mock, "record_meta", 51, "_attachment_id", "")
	expectMetaValue(mock, "record_meta", 51, "_external_code", "act-x7Kp2mQw9r")
	expectEmptyMeta(mock, "record_meta", 51)

	a, err := s.ReadActivity(context.Background(), 51)
	if err != nil {
		t.Fatalf("ReadActivity: %v", err)
	}
	if a.Status != model.StatusApproved {
		t.Errorf("status = %s", a.Status)
	}
	if a.ActivityDate.Unix() != 1767225600 {
		t.Errorf("activity date = %v", a.ActivityDate)
	}
	if a.ExternalCode != "act-x7Kp2mQw9r" {
		t.Errorf("external code = %q", a.ExternalCode)
	}
	if len(a.Changes()) != 0 {
		t.Errorf("fresh read carries changes: %v", a.Changes())
	}
}

func TestReadActivity_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	mock.ExpectQuery("SELECT (.+) FROM records WHERE id").WithArgs(int64(999), "activity").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.ReadActivity(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteActivity_SoftPublishesTransition(t *testing.T) {
	db, mock := newMockDB(t)
	rec := &events.Recorder{}
	s := NewActivities(db, rec)

	mock.ExpectQuery("SELECT owner_id, status FROM records").WithArgs(int64(51), "activity").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "status"}).AddRow(7, "svc-approved"))
	mock.ExpectExec("UPDATE records SET status").
		WithArgs(int64(51), "svc-trashed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(context.Background(), 51, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	published := rec.Published()
	if len(published) != 1 {
		t.Fatalf("published %d notes, want 1", len(published))
	}
	note := published[0].Event.(events.StatusChanged)
	if note.To != model.StatusTrashed {
		t.Errorf("note = %+v", note)
	}
}

func TestDeleteActivity_Hard(t *testing.T) {
	db, mock := newMockDB(t)
	rec := &events.Recorder{}
	s := NewActivities(db, rec)

	mock.ExpectQuery("SELECT owner_id, status FROM records").WithArgs(int64(51), "activity").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "status"}).AddRow(7, "svc-approved"))
	mock.ExpectExec("DELETE FROM records").WithArgs(int64(51)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(context.Background(), 51, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	published := rec.Published()
	if len(published) != 1 || published[0].Topic != events.TopicRecordDeleted {
		t.Fatalf("published = %+v", published)
	}
}

func TestMutationHookInvalidation(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	var invalidated []int64
	s.AddMutationHook(func(_ context.Context, studentID int64) {
		invalidated = append(invalidated, studentID)
	})

	mock.ExpectQuery("SELECT owner_id, status FROM records").WithArgs(int64(51), "activity").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "status"}).AddRow(7, "svc-pending"))
	mock.ExpectExec("UPDATE records SET status").
		WithArgs(int64(51), "svc-trashed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(context.Background(), 51, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(invalidated) != 1 || invalidated[0] != 7 {
		t.Errorf("invalidated = %v, want [7]", invalidated)
	}
}

func TestCountActivities(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	mock.ExpectQuery("SELECT COUNT").WithArgs("activity", "svc-pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Count(context.Background(), model.StatusPending)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestListActivities_CompilerErrorReturnsEmpty(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	// Unparseable date range must refuse to query rather than run unfiltered.
	list, err := s.List(context.Background(), model.Filter{"date": "not-a-date"})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if len(list) != 0 {
		t.Errorf("got %d results, want none", len(list))
	}
}

func TestCreateWrongType(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewActivities(db, &events.NoopPublisher{})

	err := s.Create(context.Background(), model.NewTask())
	if !errors.Is(err, store.ErrInvalidStore) {
		t.Errorf("err = %v, want ErrInvalidStore", err)
	}
}

// savedActivity builds an activity that looks freshly loaded from storage.
func savedActivity(id, ownerID int64, status model.Status) *model.Activity {
	a := model.NewActivity()
	a.ID = id
	a.OwnerID = ownerID
	a.Status = status
	a.Title = "Beach clean-up"
	a.CreatedAt = time.Now().UTC().Add(-time.Hour)
	a.UpdatedAt = a.CreatedAt
	a.ApplyChanges()
	a.MarkRead()
	return a
}

func TestPropsToUpdate(t *testing.T) {
	keyMap := map[model.Field]string{
		model.FieldActivityDate: "_activity_date",
		model.FieldAttachmentID: "_attachment_id",
	}

	t.Run("CreateForcesAll", func(t *testing.T) {
		a := model.NewActivity()
		got := propsToUpdate(a, keyMap, true, nil)
		if len(got) != 2 {
			t.Errorf("got %d props, want all", len(got))
		}
	})

	t.Run("UpdateOnlyChanged", func(t *testing.T) {
		a := savedActivity(1, 7, model.StatusPending)
		a.SetActivityDate(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		stored := map[string]bool{"_activity_date": true, "_attachment_id": true}
		got := propsToUpdate(a, keyMap, false, stored)
		if len(got) != 1 || got[model.FieldActivityDate] == "" {
			t.Errorf("got %v, want only activity date", got)
		}
	})

	t.Run("NeverStoredWrittenUnchanged", func(t *testing.T) {
		a := savedActivity(1, 7, model.StatusPending)
		stored := map[string]bool{"_activity_date": true}
		got := propsToUpdate(a, keyMap, false, stored)
		if len(got) != 1 || got[model.FieldAttachmentID] == "" {
			t.Errorf("got %v, want only never-stored attachment", got)
		}
	})
}

func TestWhereClause(t *testing.T) {
	t.Run("MatchNone", func(t *testing.T) {
		spec := query.Compile(model.Filter{"identity": []model.Identity{}})
		where, _, err := whereClause(spec)
		if err != nil {
			t.Fatalf("whereClause: %v", err)
		}
		if !strings.Contains(where, "1 = 0") {
			t.Errorf("where = %q, want match-nothing sentinel", where)
		}
	})

	t.Run("ErrorsRefuse", func(t *testing.T) {
		spec := query.Compile(model.Filter{"date": "garbage"})
		if _, _, err := whereClause(spec); err == nil {
			t.Fatal("expected refusal for spec with errors")
		}
	})

	t.Run("StatusAndSearch", func(t *testing.T) {
		spec := query.Compile(model.Filter{
			"type":   "activity",
			"status": "approved",
			"search": "beach",
		})
		where, args, err := whereClause(spec)
		if err != nil {
			t.Fatalf("whereClause: %v", err)
		}
		if !strings.Contains(where, "record_type") || !strings.Contains(where, "ILIKE") {
			t.Errorf("where = %q", where)
		}
		// Status goes through the storage boundary.
		found := false
		for _, a := range args {
			if a == "svc-approved" {
				found = true
			}
		}
		if !found {
			t.Errorf("args %v missing prefixed status", args)
		}
	})

	t.Run("TermContainment", func(t *testing.T) {
		spec := query.Compile(model.Filter{"years": []int{7, 8}})
		where, _, err := whereClause(spec)
		if err != nil {
			t.Fatalf("whereClause: %v", err)
		}
		if !strings.Contains(where, "record_terms") {
			t.Errorf("where = %q, want term-table subquery", where)
		}
	})
}

func TestScanRecord_UnknownStatus(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM records WHERE id").WithArgs(int64(1), "activity").
		WillReturnRows(addRecordRow(sqlmock.NewRows(recordRowColumns),
			1, "activity", "svc-bogus", "X", 7, now))

	s := NewActivities(db, &events.NoopPublisher{})
	if _, err := s.ReadActivity(context.Background(), 1); err == nil {
		t.Fatal("expected error for unknown storage status")
	}
}
