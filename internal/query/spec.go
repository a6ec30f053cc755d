// Package query compiles abstract filter bags into backend-neutral query
// specs. Stores translate a Spec into their native query structure; a Spec
// that carries errors must be executed as "return empty result", never as an
// unfiltered query.
package query

import (
	"time"

	"github.com/oakfield/servicelog/internal/model"
)

// Op is a comparison operator in a compiled condition.
type Op string

const (
	OpEq        Op = "="
	OpNotEq     Op = "!="
	OpIn        Op = "in"
	OpGt        Op = ">"
	OpGte       Op = ">="
	OpLt        Op = "<"
	OpLte       Op = "<="
	OpBetween   Op = "between"
	OpExists    Op = "exists"
	OpNotExists Op = "not-exists"
)

// FieldCond is a condition on a first-class column of the core-fields row.
type FieldCond struct {
	Column string
	Op     Op
	Value  any
	Values []any // for OpIn
	// Between bounds (inclusive) when Op == OpBetween.
	From, To time.Time
}

// MetaCond is a condition on a metadata row. Numeric conditions compare the
// stored value as an epoch integer (meta-stored timestamps).
type MetaCond struct {
	Key     string
	Op      Op
	Value   any
	Values  []any
	Numeric bool
}

// TermCond is an exact containment condition against the multi-value term
// table (array-valued custom props and category/tag associations).
type TermCond struct {
	Kind   string
	Values []string
}

// SearchGroup is one OR-branch of a free-text search: its tokens AND-combine
// as partial matches over the text fields.
type SearchGroup struct {
	Tokens []string
}

// IdentityCond matches ownership by owner-id column or guest-email metadata
// across a tuple list. An empty tuple list sets MatchNone: the condition
// matches zero records, never all records.
type IdentityCond struct {
	MatchNone bool
	Tuples    []model.Identity
}

// Spec is the normalized backend query structure produced by Compile.
type Spec struct {
	Type       model.RecordType
	Fields     []FieldCond
	Meta       []MetaCond
	Terms      []TermCond
	Search     []SearchGroup
	Identity   *IdentityCond
	ParentID   int64
	ExcludeIDs []int64
	Limit      int
	Projection string

	// Args carries unrecognized keys through to the backend unchanged, as an
	// escape hatch for backend-specific arguments.
	Args map[string]any

	// MatchNone marks the whole query as matching zero records.
	MatchNone bool

	// Errors collects compiler-level failures. A caller seeing any error must
	// treat the result set as empty.
	Errors []error
}

// Ok reports whether the spec compiled without errors.
func (s *Spec) Ok() bool {
	return len(s.Errors) == 0
}

func (s *Spec) addError(err error) {
	s.Errors = append(s.Errors, err)
}
