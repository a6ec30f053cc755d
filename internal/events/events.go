// Package events is the transition side-channel: stores publish a note after
// each successful save whose status changed, exactly once per save.
package events

import (
	"context"

	"github.com/oakfield/servicelog/internal/model"
)

// Event topic constants
const (
	TopicRecordCreated         = "servicelog.record.created"
	TopicRecordDeleted         = "servicelog.record.deleted"
	TopicActivityStatusChanged = "servicelog.activity.status_changed"
)

// Publisher sends an event to interested collaborators (notification wiring,
// admin screens) outside this layer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// RecordCreated is published after a record's first successful create.
type RecordCreated struct {
	ID   int64            `json:"id"`
	Type model.RecordType `json:"type"`
}

// RecordDeleted is published after a hard delete.
type RecordDeleted struct {
	ID   int64            `json:"id"`
	Type model.RecordType `json:"type"`
}

// StatusChanged is the before/after transition note raised by a save whose
// status changed.
type StatusChanged struct {
	ID      int64        `json:"id"`
	OwnerID int64        `json:"owner_id,omitempty"`
	From    model.Status `json:"from"`
	To      model.Status `json:"to"`
}
