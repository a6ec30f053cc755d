package model

import "slices"

// Task is a published service opportunity. Years and Houses are array-valued
// custom props persisted in the multi-value term table; CategoryIDs and
// TagIDs are term associations used for related-task retrieval.
type Task struct {
	Record

	Years   []int    `json:"years,omitempty"`
	Houses  []string `json:"houses,omitempty"`
	Duties  string   `json:"duties,omitempty"`
	ImageID int64    `json:"image_id,omitempty"`

	CategoryIDs []int64 `json:"category_ids,omitempty"`
	TagIDs      []int64 `json:"tag_ids,omitempty"`
}

// NewTask returns an unsaved task with type defaults applied.
func NewTask() *Task {
	t := &Task{}
	t.Type = TypeTask
	t.Status = DefaultStatus(TypeTask)
	return t
}

// SetYears replaces the targeted school years.
func (t *Task) SetYears(years []int) {
	if slices.Equal(t.Years, years) {
		return
	}
	t.markValue(FieldYears, slices.Clone(t.Years), slices.Clone(years))
	t.Years = slices.Clone(years)
}

// SetHouses replaces the targeted houses.
func (t *Task) SetHouses(houses []string) {
	if slices.Equal(t.Houses, houses) {
		return
	}
	t.markValue(FieldHouses, slices.Clone(t.Houses), slices.Clone(houses))
	t.Houses = slices.Clone(houses)
}

// SetDuties updates the duties description.
func (t *Task) SetDuties(s string) {
	t.mark(FieldDuties, t.Duties, s)
	t.Duties = s
}

// SetImageID updates the task image reference.
func (t *Task) SetImageID(id int64) {
	t.mark(FieldImageID, t.ImageID, id)
	t.ImageID = id
}
