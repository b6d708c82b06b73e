package ir

import "quill/internal/types"

// Value is one SSA value: an ID plus its lowered type. Address values are
// tagged so stores/loads can be validated structurally.
type Value struct {
	ID   ValueID
	Type types.TypeID
	// Addr marks the value as an address of Type rather than a loaded
	// value of it.
	Addr bool
}

// NoValue is the zero value standing for "no result".
var NoValue = Value{ID: NoValueID, Type: types.NoTypeID}

// IsValid reports whether the value was actually defined.
func (v Value) IsValid() bool {
	return v.ID != NoValueID
}
