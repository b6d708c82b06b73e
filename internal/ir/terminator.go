package ir

import "quill/internal/ast"

// TermKind enumerates block terminator kinds.
type TermKind uint8

const (
	TermNone TermKind = iota
	TermReturn
	TermBr
	TermCondBr
	TermCheckedCastBr
	TermUnreachable
)

// Terminator closes a basic block.
type Terminator struct {
	Kind TermKind

	Return        ReturnTerm
	Br            BrTerm
	CondBr        CondBrTerm
	CheckedCastBr CheckedCastBrTerm
	Unreachable   struct{}
}

// ReturnTerm leaves the function, optionally carrying a value.
type ReturnTerm struct {
	HasValue bool
	Value    ValueID
}

// BrTerm jumps to Target, passing Args to its block parameters.
type BrTerm struct {
	Target BlockID
	Args   []ValueID
}

// CondBrTerm branches on Cond.
type CondBrTerm struct {
	Cond     ValueID
	Then     BlockID
	ThenArgs []ValueID
	Else     BlockID
	ElseArgs []ValueID
}

// CheckedCastBrTerm attempts a cast; Succ receives the cast value as its
// block parameter, Fail receives nothing.
type CheckedCastBrTerm struct {
	Value ValueID
	Cast  ast.CastKind
	Succ  BlockID
	Fail  BlockID
}
