package ir

// Block is a basic block. Params are the block's join-point arguments (the
// phi equivalent); the entry block's params are the function parameters.
type Block struct {
	ID     BlockID
	Params []Value
	Instrs []Instr
	Term   Terminator
}

// Terminated reports whether the block already has a terminator.
func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}
