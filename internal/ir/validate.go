package ir

import (
	"fmt"
)

// Validate performs structural checks over a module: every block must be
// terminated, every branch target must exist, and every referenced value
// must have been allocated. It reports all problems found.
func Validate(m *Module) []error {
	var errs []error
	if m == nil {
		return nil
	}
	for _, f := range m.Funcs {
		errs = append(errs, validateFunc(f)...)
	}
	return errs
}

func validateFunc(f *Func) []error {
	var errs []error
	if f == nil {
		return nil
	}
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", f.Name, fmt.Sprintf(format, args...)))
	}

	if len(f.Blocks) == 0 {
		bad("function has no blocks")
		return errs
	}
	if f.Entry == NoBlockID || int(f.Entry) >= len(f.Blocks) {
		bad("invalid entry block b%d", f.Entry)
	}

	checkTarget := func(b *Block, id BlockID, nargs int) {
		if int(id) >= len(f.Blocks) {
			bad("b%d: branch to missing block b%d", b.ID, id)
			return
		}
		if want := len(f.Blocks[id].Params); nargs != want {
			bad("b%d: branch to b%d passes %d args, block takes %d", b.ID, id, nargs, want)
		}
	}
	checkValue := func(b *Block, id ValueID) {
		if id != NoValueID && int(id) >= f.NumValues() {
			bad("b%d: use of unallocated value %%%d", b.ID, id)
		}
	}

	for i := range f.Blocks {
		b := &f.Blocks[i]
		for j := range b.Instrs {
			for _, op := range instrOperands(&b.Instrs[j]) {
				checkValue(b, op)
			}
		}
		switch b.Term.Kind {
		case TermNone:
			bad("b%d: missing terminator", b.ID)
		case TermReturn:
			if b.Term.Return.HasValue {
				checkValue(b, b.Term.Return.Value)
			}
		case TermBr:
			checkTarget(b, b.Term.Br.Target, len(b.Term.Br.Args))
		case TermCondBr:
			checkValue(b, b.Term.CondBr.Cond)
			checkTarget(b, b.Term.CondBr.Then, len(b.Term.CondBr.ThenArgs))
			checkTarget(b, b.Term.CondBr.Else, len(b.Term.CondBr.ElseArgs))
		case TermCheckedCastBr:
			checkValue(b, b.Term.CheckedCastBr.Value)
			checkTarget(b, b.Term.CheckedCastBr.Succ, 1)
			checkTarget(b, b.Term.CheckedCastBr.Fail, 0)
		case TermUnreachable:
		default:
			bad("b%d: unknown terminator kind %d", b.ID, b.Term.Kind)
		}
	}
	return errs
}

// instrOperands returns every value an instruction reads.
func instrOperands(in *Instr) []ValueID {
	switch in.Kind {
	case InstrConst, InstrAllocStack, InstrAllocRef, InstrAllocBox, InstrMetatype, InstrFunctionRef:
		return nil
	case InstrDeallocStack:
		return []ValueID{in.DeallocStack.Addr}
	case InstrDeallocRef:
		return []ValueID{in.DeallocRef.Ref}
	case InstrProjectBox:
		return []ValueID{in.ProjectBox.Box}
	case InstrLoad:
		return []ValueID{in.Load.Addr}
	case InstrStore:
		return []ValueID{in.Store.Value, in.Store.Addr}
	case InstrCopyAddr:
		return []ValueID{in.CopyAddr.Src, in.CopyAddr.Dst}
	case InstrDestroyAddr:
		return []ValueID{in.DestroyAddr.Addr}
	case InstrRetain:
		return []ValueID{in.Retain.Value}
	case InstrRelease:
		return []ValueID{in.Release.Value}
	case InstrTuple:
		return in.Tuple.Elems
	case InstrTupleExtract:
		return []ValueID{in.TupleExtract.Tuple}
	case InstrTupleElementAddr:
		return []ValueID{in.TupleElementAddr.Addr}
	case InstrStruct:
		return in.Struct.Fields
	case InstrStructExtract:
		return []ValueID{in.StructExtract.Struct}
	case InstrStructElementAddr:
		return []ValueID{in.StructElementAddr.Addr}
	case InstrRefElementAddr:
		return []ValueID{in.RefElementAddr.Ref}
	case InstrApply:
		ops := append([]ValueID{in.Apply.Fn}, in.Apply.Args...)
		if in.Apply.IndirectResult != NoValueID {
			ops = append(ops, in.Apply.IndirectResult)
		}
		return ops
	case InstrPartialApply:
		return append([]ValueID{in.PartialApply.Fn}, in.PartialApply.Args...)
	case InstrThinToThick:
		return []ValueID{in.ThinToThick.Fn}
	case InstrClassMethod:
		return []ValueID{in.ClassMethod.Ref}
	case InstrSuperMethod:
		return []ValueID{in.SuperMethod.Ref}
	case InstrWitnessMethod:
		return []ValueID{in.WitnessMethod.Existential}
	case InstrUpcast:
		return []ValueID{in.Upcast.Value}
	case InstrUncondCast:
		return []ValueID{in.UncondCast.Value}
	case InstrInjectOptional:
		if in.InjectOptional.Value == NoValueID {
			return nil
		}
		return []ValueID{in.InjectOptional.Value}
	case InstrOptionalHasValue:
		return []ValueID{in.OptionalHasValue.Value}
	case InstrOptionalExtract:
		return []ValueID{in.OptionalExtract.Value}
	case InstrBridgeToForeign:
		return []ValueID{in.BridgeToForeign.Value}
	case InstrBridgeFromForeign:
		return []ValueID{in.BridgeFromForeign.Value}
	case InstrBuiltin:
		return in.Builtin.Args
	default:
		return nil
	}
}
