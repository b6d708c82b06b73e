package ir

import (
	"quill/internal/ast"
	"quill/internal/types"
)

// VTableEntry pairs one dynamically-dispatched member with its most-derived
// implementation. Matching is by declaration identity, not name.
type VTableEntry struct {
	Member *ast.Decl
	Impl   string // mangled function name
}

// VTable is the dispatch table for one class: inherited entries first, in
// the parent's order, then entries this class introduces.
type VTable struct {
	Class   types.TypeID
	Entries []VTableEntry
}

// EntryFor returns the slot index of a member, or -1.
func (t *VTable) EntryFor(member *ast.Decl) int {
	for i := range t.Entries {
		if t.Entries[i].Member == member {
			return i
		}
	}
	return -1
}

// WitnessTableEntry resolves one protocol requirement (by index) to a
// concrete implementation, possibly through a convention-adjusting thunk.
type WitnessTableEntry struct {
	Requirement int
	Witness     string // mangled function name
}

// WitnessTable binds one (type, protocol) conformance to its witnesses, in
// requirement order.
type WitnessTable struct {
	Type     types.TypeID
	Protocol types.TypeID
	Entries  []WitnessTableEntry
}
