package ast

import (
	"fmt"

	"quill/internal/source"
	"quill/internal/types"
)

// PatternKind enumerates binding pattern kinds.
type PatternKind uint8

const (
	// PatternName binds a single variable.
	PatternName PatternKind = iota
	// PatternTuple destructures a tuple elementwise.
	PatternTuple
	// PatternDiscard evaluates and drops the value (`_`).
	PatternDiscard
)

func (k PatternKind) String() string {
	switch k {
	case PatternName:
		return "Name"
	case PatternTuple:
		return "Tuple"
	case PatternDiscard:
		return "Discard"
	default:
		return fmt.Sprintf("PatternKind(%d)", k)
	}
}

// Pattern describes the left-hand side of a binding.
type Pattern struct {
	Kind PatternKind
	Type types.TypeID
	Span source.Span

	// Var is the bound declaration for PatternName.
	Var *Decl
	// Elems are the sub-patterns for PatternTuple. An empty-tuple pattern
	// binds nothing and initialization is a no-op.
	Elems []*Pattern
}
