package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusTrashed   Status = "trashed"
	StatusActive    Status = "active"
	StatusArchived  Status = "archived"
)

// statusPrefix is the reserved textual prefix carried by the storage
// representation of every status value.
const statusPrefix = "svc-"

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined, StatusCancelled,
		StatusTrashed, StatusActive, StatusArchived:
		return true
	}
	return false
}

// StorageValue returns the prefixed form written to storage. This is the one
// serialization boundary; call sites never concatenate the prefix themselves.
func (s Status) StorageValue() string {
	return statusPrefix + string(s)
}

// ParseStorageStatus converts a stored status string back to a Status.
// Unprefixed legacy values are accepted as-is when they name a known status.
func ParseStorageStatus(raw string) (Status, error) {
	s := Status(strings.TrimPrefix(raw, statusPrefix))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown stored status %q", raw)
	}
	return s, nil
}

// DefaultStatus returns the status a freshly created record of the given type
// receives when none was set explicitly.
func DefaultStatus(t RecordType) Status {
	switch t {
	case TypeActivity:
		return StatusPending
	default:
		return StatusActive
	}
}
