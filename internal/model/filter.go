package model

// Filter is the abstract name -> value filter bag handed to the query
// compiler. Values may be scalars, []string / []int64 lists, the wildcard
// "*", a date-range expression, an []Identity list (for the "identity" key),
// or a free-text term (for the "search" key). Unknown keys pass through to
// the backend unchanged.
type Filter map[string]any

// Identity is one (owner-id, email) ownership tuple. Either side may be
// empty, but not both.
type Identity struct {
	OwnerID int64  `json:"owner_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Zero reports whether the tuple carries no usable identity at all.
func (i Identity) Zero() bool {
	return i.OwnerID == 0 && i.Email == ""
}
