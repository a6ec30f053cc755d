package model

import "time"

// Activity is a service activity logged by (or for) a student. The owner is
// the student; ParentID optionally points at the source task.
type Activity struct {
	Record

	ActivityDate time.Time `json:"activity_date,omitempty"`
	AttachmentID int64     `json:"attachment_id,omitempty"`

	// ExternalCode is the short reference code printed on receipts and
	// exports. The store assigns it at creation; it never changes after.
	ExternalCode string `json:"external_code,omitempty"`
}

// NewActivity returns an unsaved activity with type defaults applied.
func NewActivity() *Activity {
	a := &Activity{}
	a.Type = TypeActivity
	a.Status = DefaultStatus(TypeActivity)
	return a
}

// StudentID is the owning student's id.
func (a *Activity) StudentID() int64 {
	return a.OwnerID
}

// SetStudentID assigns the owning student.
func (a *Activity) SetStudentID(id int64) {
	a.SetOwnerID(id)
}

// Description is the free-form activity description (stored as the body).
func (a *Activity) Description() string {
	return a.Body
}

// SetDescription updates the activity description.
func (a *Activity) SetDescription(s string) {
	a.SetBody(s)
}

// SetActivityDate updates the date the activity took place.
func (a *Activity) SetActivityDate(t time.Time) {
	if a.ActivityDate.Equal(t) {
		return
	}
	a.markValue(FieldActivityDate, a.ActivityDate, t)
	a.ActivityDate = t
}

// SetAttachmentID updates the attachment reference. The store re-parents the
// attachment row when this changes.
func (a *Activity) SetAttachmentID(id int64) {
	a.mark(FieldAttachmentID, a.AttachmentID, id)
	a.AttachmentID = id
}

// UpdateStatus is the domain-level status transition. The before/after pair
// is visible in Changes() until the next successful save, which publishes it
// as a transition note exactly once.
func (a *Activity) UpdateStatus(s Status) {
	a.SetStatus(s)
}
