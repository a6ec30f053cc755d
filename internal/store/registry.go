package store

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Registry resolves a record-type name to its store implementation. The host
// application registers stores at startup and freezes the registry before
// first resolution; registration after Freeze is rejected.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]any
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]any)}
}

// Register binds a type name to a store implementation. The implementation
// is checked for contract conformance at resolution time, so hosts may
// register opaque values; a non-conforming one resolves to ErrInvalidStore.
func (r *Registry) Register(typeName string, impl any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %q: registry is frozen", typeName)
	}
	r.stores[typeName] = impl
	return nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve looks up the store for typeName. On a miss it strips the name to
// the segment before the first "-" ("student-session" falls back to
// "student") and retries once. An unregistered name, a nil entry, or an
// entry that does not satisfy the RecordStore contract is ErrInvalidStore.
func (r *Registry) Resolve(typeName string) (RecordStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.stores[typeName]
	if !ok {
		if base := Fallback(typeName); base != typeName {
			impl, ok = r.stores[base]
		}
		if !ok {
			return nil, fmt.Errorf("%w: no store registered for type %q", ErrInvalidStore, typeName)
		}
	}

	rs, conforms := impl.(RecordStore)
	if !conforms || isNilImpl(rs) {
		return nil, fmt.Errorf("%w: registered store for type %q does not satisfy the record-store contract", ErrInvalidStore, typeName)
	}
	return rs, nil
}

// isNilImpl catches typed-nil implementations, which compare unequal to the
// untyped nil interface but still crash on first use.
func isNilImpl(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Fallback returns the one-level prefix fallback for a type name: the part
// before the first "-" separator. Names without a separator fall back to
// themselves.
func Fallback(typeName string) string {
	base, _, _ := strings.Cut(typeName, "-")
	return base
}
