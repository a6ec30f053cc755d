package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/oakfield/servicelog/internal/cache"
	"github.com/oakfield/servicelog/internal/events"
	"github.com/oakfield/servicelog/internal/identity"
	"github.com/oakfield/servicelog/internal/model"
)

// fakeIdentity serves canned users for search paths that never touch SQL.
type fakeIdentity struct {
	byName  []*identity.User
	byEmail *identity.User
}

func (f *fakeIdentity) Create(context.Context, *identity.User) error { return errors.New("unused") }
func (f *fakeIdentity) Read(context.Context, int64) (*identity.User, error) {
	return nil, identity.ErrNotFound
}
func (f *fakeIdentity) Update(context.Context, *identity.User) error { return errors.New("unused") }
func (f *fakeIdentity) Delete(context.Context, int64) error          { return errors.New("unused") }

func (f *fakeIdentity) ReadByEmail(context.Context, string) (*identity.User, error) {
	if f.byEmail == nil {
		return nil, identity.ErrNotFound
	}
	return f.byEmail, nil
}

func (f *fakeIdentity) SearchName(context.Context, string, int) ([]*identity.User, error) {
	return f.byName, nil
}

func TestActivityCount_CachedUntilInvalidated(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewStudents(db, &fakeIdentity{}, cache.NewMemory())
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT").WithArgs("activity", int64(7), "svc-approved").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	for i := 0; i < 2; i++ {
		n, err := s.ActivityCount(ctx, 7)
		if err != nil {
			t.Fatalf("ActivityCount (call %d): %v", i+1, err)
		}
		if n != 3 {
			t.Errorf("count = %d, want 3", n)
		}
	}

	// Dropping the cache forces a recompute.
	s.InvalidateAggregates(ctx, 7)
	mock.ExpectQuery("SELECT COUNT").WithArgs("activity", int64(7), "svc-approved").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := s.ActivityCount(ctx, 7)
	if err != nil {
		t.Fatalf("ActivityCount after invalidation: %v", err)
	}
	if n != 5 {
		t.Errorf("count = %d, want recomputed 5", n)
	}
}

func TestTotalSpent_Cached(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewStudents(db, &fakeIdentity{}, cache.NewMemory())
	ctx := context.Background()

	mock.ExpectQuery("SELECT COALESCE").WithArgs("activity", int64(7), "svc-approved").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(12.5))

	for i := 0; i < 2; i++ {
		total, err := s.TotalSpent(ctx, 7)
		if err != nil {
			t.Fatalf("TotalSpent (call %d): %v", i+1, err)
		}
		if total != 12.5 {
			t.Errorf("total = %v, want 12.5", total)
		}
	}
}

func TestActivityMutationInvalidatesAggregates(t *testing.T) {
	db, mock := newMockDB(t)
	students := NewStudents(db, &fakeIdentity{}, cache.NewMemory())
	activities := NewActivities(db, &events.NoopPublisher{})
	activities.AddMutationHook(students.InvalidateAggregates)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT").WithArgs("activity", int64(7), "svc-approved").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	if n, err := students.ActivityCount(ctx, 7); err != nil || n != 3 {
		t.Fatalf("ActivityCount = %d, %v", n, err)
	}

	// Trashing one of the student's activities fires the hook.
	mock.ExpectQuery("SELECT owner_id, status FROM records").WithArgs(int64(51), "activity").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "status"}).AddRow(7, "svc-approved"))
	mock.ExpectExec("UPDATE records SET status").
		WithArgs(int64(51), "svc-trashed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := activities.Delete(ctx, 51, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mock.ExpectQuery("SELECT COUNT").WithArgs("activity", int64(7), "svc-approved").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	if n, err := students.ActivityCount(ctx, 7); err != nil || n != 2 {
		t.Fatalf("ActivityCount after mutation = %d, %v", n, err)
	}
}

func TestStudentSearch_DedupesEmailMatch(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	alice := &identity.User{ID: 1, Email: "a.smith@school.test", DisplayName: "Alice Smith", CreatedAt: now, UpdatedAt: now}
	bob := &identity.User{ID: 2, Email: "b.smith@school.test", DisplayName: "Bob Smith", CreatedAt: now, UpdatedAt: now}

	// The direct email lookup returns a user the name search already found.
	s := NewStudents(db, &fakeIdentity{byName: []*identity.User{alice, bob}, byEmail: alice}, cache.NewMemory())

	for _, id := range []int64{1, 2} {
		expectMetaValue(mock, "user_meta", id, "_status", "")
		expectMetaValue(mock, "user_meta", id, "_year", "11")
		expectMetaValue(mock, "user_meta", id, "_house", "Red")
		expectMetaValue(mock, "user_meta", id, "_guardian_email", "")
		expectEmptyMeta(mock, "user_meta", id)
	}

	out, err := s.Search(context.Background(), "smith", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("search returned %d students, want 2 after dedupe", len(out))
	}
	if out[0].ID != 1 || out[1].ID != 2 {
		t.Errorf("ids = %d, %d", out[0].ID, out[1].ID)
	}
	if out[0].Year != 11 || out[0].House != "Red" {
		t.Errorf("student = %+v", out[0])
	}
	if out[0].Status != model.DefaultStatus(model.TypeStudent) {
		t.Errorf("status = %s", out[0].Status)
	}
}

func TestStudentSearch_Truncates(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	alice := &identity.User{ID: 1, Email: "a.smith@school.test", DisplayName: "Alice Smith", CreatedAt: now, UpdatedAt: now}
	bob := &identity.User{ID: 2, Email: "b.smith@school.test", DisplayName: "Bob Smith", CreatedAt: now, UpdatedAt: now}

	s := NewStudents(db, &fakeIdentity{byName: []*identity.User{alice, bob}}, cache.NewMemory())

	// Only the first user is hydrated; truncation stops before the second.
	expectMetaValue(mock, "user_meta", 1, "_status", "")
	expectMetaValue(mock, "user_meta", 1, "_year", "")
	expectMetaValue(mock, "user_meta", 1, "_house", "")
	expectMetaValue(mock, "user_meta", 1, "_guardian_email", "")
	expectEmptyMeta(mock, "user_meta", 1)

	out, err := s.Search(context.Background(), "smith", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 1 || out[0].ID != 1 {
		t.Errorf("search = %+v, want only the first match", out)
	}
}
