package types

import (
	"testing"

	"quill/internal/source"
)

func TestInternDedup(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()

	a := in.Optional(bt.Int)
	b := in.Optional(bt.Int)
	if a != b {
		t.Fatalf("Optional(Int) interned twice: %d vs %d", a, b)
	}
	if a == in.Optional(bt.Bool) {
		t.Fatalf("Optional(Int) and Optional(Bool) must differ")
	}
}

func TestRegisterTupleDedup(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()

	a := in.RegisterTuple([]TypeID{bt.Int, bt.String}, nil)
	b := in.RegisterTuple([]TypeID{bt.Int, bt.String}, nil)
	if a != b {
		t.Fatalf("identical tuples must share a TypeID")
	}
	c := in.RegisterTuple([]TypeID{bt.String, bt.Int}, nil)
	if a == c {
		t.Fatalf("element order must distinguish tuple types")
	}

	info, ok := in.TupleInfo(a)
	if !ok || len(info.Elems) != 2 {
		t.Fatalf("TupleInfo lookup failed")
	}
}

func TestRegisterFnConvDistinguishes(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()

	native := in.RegisterFnConv([]TypeID{bt.Int}, bt.Bool, ConvNative, false)
	c := in.RegisterFnConv([]TypeID{bt.Int}, bt.Bool, ConvC, false)
	thin := in.RegisterFnConv([]TypeID{bt.Int}, bt.Bool, ConvNative, true)
	if native == c || native == thin || c == thin {
		t.Fatalf("convention and thinness must be part of fn identity")
	}
	again := in.RegisterFnConv([]TypeID{bt.Int}, bt.Bool, ConvC, false)
	if again != c {
		t.Fatalf("identical fn types must dedupe")
	}
}

func TestCurryLevels(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()

	inner := in.RegisterFn([]TypeID{bt.Int}, bt.Bool)
	outer := in.RegisterFn([]TypeID{bt.String}, inner)
	if got := in.CurryLevels(outer); got != 2 {
		t.Fatalf("CurryLevels = %d, want 2", got)
	}
	if got := in.CurryLevels(bt.Int); got != 0 {
		t.Fatalf("CurryLevels(Int) = %d, want 0", got)
	}
}

func TestNominalIdentity(t *testing.T) {
	in := NewInterner()

	a := in.RegisterStruct("Pair", source.Span{})
	b := in.RegisterStruct("Pair", source.Span{})
	if a == b {
		t.Fatalf("nominal types are identities; two registrations must differ")
	}

	in.SetStructFields(a, []Field{{Name: "a", Type: in.Builtins().Int}})
	info, ok := in.StructInfo(a)
	if !ok || len(info.Fields) != 1 || info.Fields[0].Name != "a" {
		t.Fatalf("struct fields not stored")
	}
}

func TestProtocolRequirements(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()

	p := in.RegisterProtocol("Comparable", source.Span{})
	reqTy := in.RegisterFn([]TypeID{bt.Int}, bt.Bool)
	in.SetProtocolRequirements(p, []Requirement{
		{Name: "less", Kind: ReqMethod, Type: reqTy},
		{Name: "value", Kind: ReqGetter, Type: bt.Int},
	})

	info, ok := in.ProtocolInfo(p)
	if !ok || len(info.Requirements) != 2 {
		t.Fatalf("requirements not stored")
	}
	if info.Requirements[0].Name != "less" {
		t.Fatalf("requirement order must be declaration order")
	}
}
