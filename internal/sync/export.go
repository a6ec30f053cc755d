package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/oakfield/servicelog/internal/model"
)

// Source is the record supply for an export. The typed stores satisfy it via
// a small adapter in the caller; tests use an in-memory one.
type Source interface {
	ListActivities(ctx context.Context) ([]*model.Activity, error)
	ListTasks(ctx context.Context) ([]*model.Task, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	ActivityCount int       `json:"activity_count"`
	TaskCount     int       `json:"task_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ExportJSONL writes all activities and tasks from the source as JSONL to w.
// Records are sorted by id within their type.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	activities, err := src.ListActivities(ctx)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].ID < activities[j].ID
	})

	tasks, err := src.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		ActivityCount: len(activities),
		TaskCount:     len(tasks),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, a := range activities {
		if err := enc.Encode(record{Type: "activity", Data: a}); err != nil {
			return fmt.Errorf("encode activity %d: %w", a.ID, err)
		}
	}

	for _, task := range tasks {
		if err := enc.Encode(record{Type: "task", Data: task}); err != nil {
			return fmt.Errorf("encode task %d: %w", task.ID, err)
		}
	}

	return nil
}
