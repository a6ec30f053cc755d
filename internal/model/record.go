package model

import (
	"time"
)

// RecordType discriminates the persisted record kinds.
type RecordType string

const (
	TypeActivity       RecordType = "activity"
	TypeTask           RecordType = "task"
	TypeStudent        RecordType = "student"
	TypeStudentSession RecordType = "student-session"
)

// String returns the string representation of the record type.
func (t RecordType) String() string {
	return string(t)
}

// IsValid checks whether the record type is a known value.
func (t RecordType) IsValid() bool {
	switch t {
	case TypeActivity, TypeTask, TypeStudent, TypeStudentSession:
		return true
	}
	return false
}

// Field identifies a single trackable field on a record.
type Field string

const (
	FieldOwnerID  Field = "owner_id"
	FieldParentID Field = "parent_id"
	FieldStatus   Field = "status"
	FieldTitle    Field = "title"
	FieldBody     Field = "body"
	FieldExcerpt  Field = "excerpt"

	// Activity props (meta-backed).
	FieldActivityDate Field = "activity_date"
	FieldAttachmentID Field = "attachment_id"

	// Task props.
	FieldYears   Field = "years"
	FieldHouses  Field = "houses"
	FieldDuties  Field = "duties"
	FieldImageID Field = "image_id"

	// Student props.
	FieldEmail         Field = "email"
	FieldDisplayName   Field = "display_name"
	FieldYear          Field = "year"
	FieldHouse         Field = "house"
	FieldGuardianEmail Field = "guardian_email"
)

// Change holds the before/after values of a single dirty field. From is the
// last value known to be in storage, not the value of the previous Set call.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Record is the base shared by all persisted record kinds. ID is zero until
// the first successful create and is never reassigned afterwards.
type Record struct {
	ID        int64      `json:"id"`
	Type      RecordType `json:"type"`
	OwnerID   int64      `json:"owner_id,omitempty"`
	ParentID  int64      `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Status    Status     `json:"status"`
	Title     string     `json:"title,omitempty"`
	Body      string     `json:"body,omitempty"`
	Excerpt   string     `json:"excerpt,omitempty"`

	// Meta holds the record's open metadata rows ordered by row id. Internal
	// keys (those backing a core field's own storage) are filtered out on read.
	Meta []MetaRow `json:"meta,omitempty"`

	changes     map[Field]Change
	deletedMeta []int64
	read        bool
}

// Saved reports whether the record has been persisted at least once.
func (r *Record) Saved() bool {
	return r.ID > 0
}

// MarkRead flags the record as loaded from storage. A read record no longer
// has defaults auto-applied, and its changed-set starts empty.
func (r *Record) MarkRead() {
	r.read = true
	r.changes = nil
	r.deletedMeta = nil
}

// Read reports whether the record was loaded from storage.
func (r *Record) Read() bool {
	return r.read
}

// mark records a change for field f. Setting a field to its current value is
// a no-op; setting it back to its original value removes the pending change.
func (r *Record) mark(f Field, from, to any) {
	if from == to {
		return
	}
	if r.changes == nil {
		r.changes = make(map[Field]Change)
	}
	if c, ok := r.changes[f]; ok {
		if c.From == to {
			delete(r.changes, f)
			return
		}
		c.To = to
		r.changes[f] = c
		return
	}
	r.changes[f] = Change{From: from, To: to}
}

// markValue records a change for non-comparable values (slices, times) where
// the caller has already established inequality.
func (r *Record) markValue(f Field, from, to any) {
	if r.changes == nil {
		r.changes = make(map[Field]Change)
	}
	if c, ok := r.changes[f]; ok {
		c.To = to
		r.changes[f] = c
		return
	}
	r.changes[f] = Change{From: from, To: to}
}

// Changes returns the pending changed-field map. The map is empty immediately
// after a read or a successful save.
func (r *Record) Changes() map[Field]Change {
	out := make(map[Field]Change, len(r.changes))
	for f, c := range r.changes {
		out[f] = c
	}
	return out
}

// Changed reports whether field f has a pending change.
func (r *Record) Changed(f Field) bool {
	_, ok := r.changes[f]
	return ok
}

// ChangeFor returns the pending change for field f, if any.
func (r *Record) ChangeFor(f Field) (Change, bool) {
	c, ok := r.changes[f]
	return c, ok
}

// ApplyChanges commits the pending changes and clears the changed-set. Call
// only after a successful persist; a failed update must leave the set intact
// so a retry re-sends exactly the pending fields.
func (r *Record) ApplyChanges() {
	r.changes = nil
	r.deletedMeta = nil
}

// Core-field setters. Each marks the field changed only when the value
// actually differs.

func (r *Record) SetOwnerID(id int64) {
	r.mark(FieldOwnerID, r.OwnerID, id)
	r.OwnerID = id
}

func (r *Record) SetParentID(id int64) {
	r.mark(FieldParentID, r.ParentID, id)
	r.ParentID = id
}

func (r *Record) SetStatus(s Status) {
	r.mark(FieldStatus, r.Status, s)
	r.Status = s
}

func (r *Record) SetTitle(s string) {
	r.mark(FieldTitle, r.Title, s)
	r.Title = s
}

func (r *Record) SetBody(s string) {
	r.mark(FieldBody, r.Body, s)
	r.Body = s
}

func (r *Record) SetExcerpt(s string) {
	r.mark(FieldExcerpt, r.Excerpt, s)
	r.Excerpt = s
}
