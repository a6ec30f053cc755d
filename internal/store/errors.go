package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a read targets a nonexistent or wrong-type id.
var ErrNotFound = errors.New("record not found")

// ErrInvalidStore is returned when registry resolution fails or a registered
// object does not satisfy the RecordStore contract.
var ErrInvalidStore = errors.New("invalid store")

// PersistenceError wraps a write rejected by the underlying backend. A failed
// create never assigns an id and a failed update leaves the changed-set
// intact, so the same in-memory record can be retried safely.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// WrapPersistence wraps err as a PersistenceError unless it is already one of
// the taxonomy's synchronous errors.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidStore) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
