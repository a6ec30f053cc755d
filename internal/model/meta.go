package model

// MetaRow is a single key/value metadata entry attached to a record.
// Rows are ordered by insertion (row id). A row id of zero means the row has
// not been persisted yet.
type MetaRow struct {
	ID    int64  `json:"id,omitempty"`
	Key   string `json:"key"`
	Value string `json:"value"`

	// Dirty is set when the row's value changed since it was read. Stores
	// clear it after a successful persist.
	Dirty bool `json:"-"`
}

// AddMeta always appends a new metadata row, even when the key already exists.
func (r *Record) AddMeta(key, value string) {
	r.Meta = append(r.Meta, MetaRow{Key: key, Value: value, Dirty: true})
}

// UpdateMeta upserts a metadata row. When rowID is non-zero the row with that
// id is updated; otherwise the first row with the given key is updated, or a
// new row appended when none exists.
func (r *Record) UpdateMeta(key, value string, rowID int64) {
	if rowID != 0 {
		for i := range r.Meta {
			if r.Meta[i].ID == rowID {
				if r.Meta[i].Value == value && r.Meta[i].Key == key {
					return
				}
				r.Meta[i].Key = key
				r.Meta[i].Value = value
				r.Meta[i].Dirty = true
				return
			}
		}
		return
	}
	for i := range r.Meta {
		if r.Meta[i].Key == key {
			if r.Meta[i].Value == value {
				return
			}
			r.Meta[i].Value = value
			r.Meta[i].Dirty = true
			return
		}
	}
	r.AddMeta(key, value)
}

// DeleteMeta removes the row with the given id from the record and remembers
// it for deletion on the next save.
func (r *Record) DeleteMeta(rowID int64) {
	for i := range r.Meta {
		if r.Meta[i].ID == rowID {
			r.Meta = append(r.Meta[:i], r.Meta[i+1:]...)
			r.deletedMeta = append(r.deletedMeta, rowID)
			return
		}
	}
}

// MetaValue returns the value of the first row with the given key.
func (r *Record) MetaValue(key string) (string, bool) {
	for i := range r.Meta {
		if r.Meta[i].Key == key {
			return r.Meta[i].Value, true
		}
	}
	return "", false
}

// PendingMetaDeletes returns the row ids removed since the last save.
func (r *Record) PendingMetaDeletes() []int64 {
	return r.deletedMeta
}
