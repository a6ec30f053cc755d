// Package store defines the persistence contract shared by all record kinds
// and the registry that resolves a record-type name to an implementation.
package store

import (
	"context"

	"github.com/oakfield/servicelog/internal/model"
)

// RecordStore is the uniform contract every resolved store satisfies. Typed
// stores add their own extensions (counts, search, related lookups) on top.
type RecordStore interface {
	Create(ctx context.Context, rec model.Persistable) error
	Read(ctx context.Context, id int64) (model.Persistable, error)
	Update(ctx context.Context, rec model.Persistable) error
	// Delete removes a record: soft (status -> trashed) unless hard is set.
	Delete(ctx context.Context, id int64, hard bool) error
}

// ActivityStore is the typed store for activities.
type ActivityStore interface {
	RecordStore

	CreateActivity(ctx context.Context, a *model.Activity) error
	ReadActivity(ctx context.Context, id int64) (*model.Activity, error)
	UpdateActivity(ctx context.Context, a *model.Activity) error
	List(ctx context.Context, filter model.Filter) ([]*model.Activity, error)
	Count(ctx context.Context, status model.Status) (int, error)
	Search(ctx context.Context, term string) ([]*model.Activity, error)
}

// TaskStore is the typed store for tasks.
type TaskStore interface {
	RecordStore

	CreateTask(ctx context.Context, t *model.Task) error
	ReadTask(ctx context.Context, id int64) (*model.Task, error)
	UpdateTask(ctx context.Context, t *model.Task) error
	List(ctx context.Context, filter model.Filter) ([]*model.Task, error)
	// Related unions category- and tag-matched tasks, drops catalog-excluded
	// ones and the explicit id list, and over-fetches limit+10 candidates for
	// downstream random sampling by the caller.
	Related(ctx context.Context, categoryIDs, tagIDs, excludeIDs []int64, limit int) ([]*model.Task, error)
	Search(ctx context.Context, term, subtype string, includeVariants, allStatuses bool, limit int) ([]*model.Task, error)
	// ActivityType reports the task's subtype ("" when unset).
	ActivityType(ctx context.Context, id int64) (string, error)
}

// StudentStore is the typed store for students. The aggregate getters are
// cached and eventually consistent; mutation hooks invalidate them.
type StudentStore interface {
	RecordStore

	CreateStudent(ctx context.Context, s *model.Student) error
	ReadStudent(ctx context.Context, id int64) (*model.Student, error)
	UpdateStudent(ctx context.Context, s *model.Student) error
	ActivityCount(ctx context.Context, studentID int64) (int, error)
	TotalSpent(ctx context.Context, studentID int64) (float64, error)
	Search(ctx context.Context, term string, limit int) ([]*model.Student, error)
}
