package ir

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"quill/internal/types"
)

// DumpOptions configures QIR module dumping.
type DumpOptions struct{}

// DumpModule writes a human-readable representation of a QIR module.
// Functions print in name order for deterministic output.
func DumpModule(w io.Writer, m *Module, typesIn *types.Interner, _ DumpOptions) error {
	if w == nil || m == nil {
		return nil
	}

	funcs := make([]*Func, 0, len(m.Funcs))
	for _, f := range m.Funcs {
		if f != nil {
			funcs = append(funcs, f)
		}
	}
	slices.SortStableFunc(funcs, func(a, b *Func) int {
		return strings.Compare(a.Name, b.Name)
	})

	fmt.Fprintf(w, "module %s funcs=%d\n", m.Name, len(funcs))
	for _, f := range funcs {
		if err := dumpFunc(w, f, typesIn); err != nil {
			return err
		}
	}

	for _, vt := range m.VTables {
		fmt.Fprintf(w, "vtable %s:\n", typeStr(typesIn, vt.Class))
		for i, e := range vt.Entries {
			fmt.Fprintf(w, "  #%d %s -> %s\n", i, e.Member.Name(), e.Impl)
		}
	}
	for _, wt := range m.WitnessTables {
		fmt.Fprintf(w, "witness_table %s: %s:\n", typeStr(typesIn, wt.Type), typeStr(typesIn, wt.Protocol))
		for _, e := range wt.Entries {
			fmt.Fprintf(w, "  #%d -> %s\n", e.Requirement, e.Witness)
		}
	}
	return nil
}

func dumpFunc(w io.Writer, f *Func, typesIn *types.Interner) error {
	fmt.Fprintf(w, "fn %s: %s {\n", f.Name, typeStr(typesIn, f.Type))
	for i := range f.Blocks {
		b := &f.Blocks[i]
		fmt.Fprintf(w, "b%d(%s):\n", b.ID, paramsStr(typesIn, b.Params))
		for j := range b.Instrs {
			fmt.Fprintf(w, "  %s\n", instrStr(typesIn, &b.Instrs[j]))
		}
		fmt.Fprintf(w, "  %s\n", termStr(&b.Term))
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func paramsStr(typesIn *types.Interner, params []Value) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%s: %s", valStr(p.ID), typeStr(typesIn, p.Type))
	}
	return strings.Join(parts, ", ")
}

func valStr(id ValueID) string {
	if id == NoValueID {
		return "%none"
	}
	return fmt.Sprintf("%%%d", id)
}

func valsStr(ids []ValueID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = valStr(id)
	}
	return strings.Join(parts, ", ")
}

func typeStr(typesIn *types.Interner, id types.TypeID) string {
	if typesIn == nil {
		return fmt.Sprintf("t%d", id)
	}
	return typesIn.Name(id)
}

func instrStr(typesIn *types.Interner, in *Instr) string {
	res := ""
	if in.Result.IsValid() {
		res = valStr(in.Result.ID) + " = "
	}
	switch in.Kind {
	case InstrConst:
		return res + constStr(&in.Const)
	case InstrAllocStack:
		return res + "alloc_stack " + typeStr(typesIn, in.AllocStack.Type)
	case InstrDeallocStack:
		return "dealloc_stack " + valStr(in.DeallocStack.Addr)
	case InstrAllocRef:
		return res + "alloc_ref " + typeStr(typesIn, in.AllocRef.Class)
	case InstrDeallocRef:
		if in.DeallocRef.Foreign {
			return "dealloc_ref [foreign] " + valStr(in.DeallocRef.Ref)
		}
		return "dealloc_ref " + valStr(in.DeallocRef.Ref)
	case InstrAllocBox:
		return res + "alloc_box " + typeStr(typesIn, in.AllocBox.Elem)
	case InstrProjectBox:
		return res + "project_box " + valStr(in.ProjectBox.Box)
	case InstrLoad:
		return res + "load " + valStr(in.Load.Addr)
	case InstrStore:
		if in.Store.Init {
			return fmt.Sprintf("store [init] %s to %s", valStr(in.Store.Value), valStr(in.Store.Addr))
		}
		return fmt.Sprintf("store %s to %s", valStr(in.Store.Value), valStr(in.Store.Addr))
	case InstrCopyAddr:
		flags := ""
		if in.CopyAddr.Take {
			flags += " [take]"
		}
		if in.CopyAddr.Init {
			flags += " [init]"
		}
		return fmt.Sprintf("copy_addr%s %s to %s", flags, valStr(in.CopyAddr.Src), valStr(in.CopyAddr.Dst))
	case InstrDestroyAddr:
		return "destroy_addr " + valStr(in.DestroyAddr.Addr)
	case InstrRetain:
		return "retain " + valStr(in.Retain.Value)
	case InstrRelease:
		return "release " + valStr(in.Release.Value)
	case InstrTuple:
		return res + "tuple (" + valsStr(in.Tuple.Elems) + ")"
	case InstrTupleExtract:
		return res + fmt.Sprintf("tuple_extract %s, %d", valStr(in.TupleExtract.Tuple), in.TupleExtract.Index)
	case InstrTupleElementAddr:
		return res + fmt.Sprintf("tuple_element_addr %s, %d", valStr(in.TupleElementAddr.Addr), in.TupleElementAddr.Index)
	case InstrStruct:
		return res + "struct (" + valsStr(in.Struct.Fields) + ")"
	case InstrStructExtract:
		return res + fmt.Sprintf("struct_extract %s, #%s", valStr(in.StructExtract.Struct), in.StructExtract.Field)
	case InstrStructElementAddr:
		return res + fmt.Sprintf("struct_element_addr %s, #%s", valStr(in.StructElementAddr.Addr), in.StructElementAddr.Field)
	case InstrRefElementAddr:
		return res + fmt.Sprintf("ref_element_addr %s, #%s", valStr(in.RefElementAddr.Ref), in.RefElementAddr.Field)
	case InstrFunctionRef:
		return res + fmt.Sprintf("function_ref @%s", in.FunctionRef.Name)
	case InstrApply:
		s := res + fmt.Sprintf("apply %s(%s)", valStr(in.Apply.Fn), valsStr(in.Apply.Args))
		if in.Apply.IndirectResult != NoValueID {
			s += " into " + valStr(in.Apply.IndirectResult)
		}
		return s
	case InstrPartialApply:
		return res + fmt.Sprintf("partial_apply %s(%s)", valStr(in.PartialApply.Fn), valsStr(in.PartialApply.Args))
	case InstrThinToThick:
		return res + "thin_to_thick " + valStr(in.ThinToThick.Fn)
	case InstrClassMethod:
		return res + fmt.Sprintf("class_method %s, #%s", valStr(in.ClassMethod.Ref), in.ClassMethod.Name)
	case InstrSuperMethod:
		return res + fmt.Sprintf("super_method %s, #%s", valStr(in.SuperMethod.Ref), in.SuperMethod.Name)
	case InstrWitnessMethod:
		return res + fmt.Sprintf("witness_method %s, %s#%d",
			valStr(in.WitnessMethod.Existential), typeStr(typesIn, in.WitnessMethod.Protocol), in.WitnessMethod.Requirement)
	case InstrMetatype:
		return res + "metatype " + typeStr(typesIn, in.Metatype.Instance)
	case InstrUpcast:
		return res + "upcast " + valStr(in.Upcast.Value)
	case InstrUncondCast:
		return res + fmt.Sprintf("unconditional_cast [%s] %s", in.UncondCast.Cast, valStr(in.UncondCast.Value))
	case InstrInjectOptional:
		if in.InjectOptional.Value == NoValueID {
			return res + "inject_optional none"
		}
		return res + "inject_optional some " + valStr(in.InjectOptional.Value)
	case InstrOptionalHasValue:
		return res + "optional_has_value " + valStr(in.OptionalHasValue.Value)
	case InstrOptionalExtract:
		return res + "optional_extract " + valStr(in.OptionalExtract.Value)
	case InstrBridgeToForeign:
		return res + "bridge_to_foreign " + valStr(in.BridgeToForeign.Value)
	case InstrBridgeFromForeign:
		return res + "bridge_from_foreign " + valStr(in.BridgeFromForeign.Value)
	case InstrBuiltin:
		return res + fmt.Sprintf("builtin %q(%s)", in.Builtin.Name, valsStr(in.Builtin.Args))
	default:
		return res + fmt.Sprintf("instr(%d)", in.Kind)
	}
}

func constStr(c *ConstInstr) string {
	switch c.Const {
	case ConstInt:
		return fmt.Sprintf("const %d", c.IntValue)
	case ConstFloat:
		return fmt.Sprintf("const %g", c.FloatValue)
	case ConstBool:
		return fmt.Sprintf("const %t", c.BoolValue)
	case ConstString:
		return fmt.Sprintf("const %q", c.StringValue)
	case ConstUnit:
		return "const ()"
	case ConstUndef:
		return "undef"
	default:
		return fmt.Sprintf("const(%d)", c.Const)
	}
}

func termStr(t *Terminator) string {
	switch t.Kind {
	case TermNone:
		return "<unterminated>"
	case TermReturn:
		if t.Return.HasValue {
			return "return " + valStr(t.Return.Value)
		}
		return "return"
	case TermBr:
		return fmt.Sprintf("br b%d(%s)", t.Br.Target, valsStr(t.Br.Args))
	case TermCondBr:
		return fmt.Sprintf("cond_br %s, b%d(%s), b%d(%s)",
			valStr(t.CondBr.Cond), t.CondBr.Then, valsStr(t.CondBr.ThenArgs), t.CondBr.Else, valsStr(t.CondBr.ElseArgs))
	case TermCheckedCastBr:
		return fmt.Sprintf("checked_cast_br [%s] %s, b%d, b%d",
			t.CheckedCastBr.Cast, valStr(t.CheckedCastBr.Value), t.CheckedCastBr.Succ, t.CheckedCastBr.Fail)
	case TermUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("term(%d)", t.Kind)
	}
}
