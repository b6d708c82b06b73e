package ir

import (
	"quill/internal/source"
	"quill/internal/types"
)

// Func is one QIR function: a mangled name, a lowered function type, and a
// body of basic blocks.
type Func struct {
	ID   FuncID
	Name string
	Span source.Span

	// Type is the lowered (uncurried) function type.
	Type types.TypeID
	// Result is the direct result type; Indirect marks that the caller
	// passes a result buffer instead.
	Result   types.TypeID
	Indirect bool

	Blocks []Block
	Entry  BlockID

	nextValue ValueID
}

// NewValue allocates a fresh SSA value of the given type.
func (f *Func) NewValue(ty types.TypeID, addr bool) Value {
	v := Value{ID: f.nextValue, Type: ty, Addr: addr}
	f.nextValue++
	return v
}

// NumValues returns how many SSA values the function defines.
func (f *Func) NumValues() int {
	return int(f.nextValue)
}

// Block returns the block with the given ID.
func (f *Func) Block(id BlockID) *Block {
	if f == nil || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// EntryBlock returns the function's entry block.
func (f *Func) EntryBlock() *Block {
	return f.Block(f.Entry)
}
