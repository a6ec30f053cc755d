package model

// Persistable is implemented by every record kind via the embedded Record.
type Persistable interface {
	Base() *Record
}

// Base returns the embedded record base.
func (r *Record) Base() *Record { return r }
