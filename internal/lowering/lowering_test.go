package lowering

import (
	"testing"

	"quill/internal/ast"
	"quill/internal/source"
	"quill/internal/types"
)

func TestLoweredIdentityCache(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()
	c := NewConverter(in)

	a := c.Lowered(bt.Int, 0)
	b := c.Lowered(bt.Int, 0)
	if a != b {
		t.Fatalf("repeated lowering must return the identical *TypeInfo")
	}
	if !a.Trivial || a.AddressOnly {
		t.Fatalf("Int must be trivial and loadable: %+v", a)
	}
}

func TestStructClassification(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()
	c := NewConverter(in)

	cls := in.RegisterClass("Node", source.Span{}, types.NoTypeID)

	pair := in.RegisterStruct("Pair", source.Span{})
	in.SetStructFields(pair, []types.Field{
		{Name: "count", Type: bt.Int},
		{Name: "node", Type: cls},
	})

	ti := c.Lowered(pair, 0)
	if ti.AddressOnly {
		t.Fatalf("struct of loadable fields must be loadable")
	}
	if ti.Trivial {
		t.Fatalf("struct holding a class reference is not trivial")
	}
	if len(ti.RefPaths) != 1 {
		t.Fatalf("RefPaths = %v, want exactly the node field", ti.RefPaths)
	}
	p := ti.RefPaths[0]
	if len(p) != 1 || p[0].Kind != StepStructField || p[0].Field != "node" {
		t.Fatalf("unexpected path %v", p)
	}
}

func TestNestedRefPaths(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()
	c := NewConverter(in)

	cls := in.RegisterClass("Node", source.Span{}, types.NoTypeID)
	inner := in.RegisterStruct("Inner", source.Span{})
	in.SetStructFields(inner, []types.Field{
		{Name: "ref", Type: cls},
	})
	outer := in.RegisterStruct("Outer", source.Span{})
	in.SetStructFields(outer, []types.Field{
		{Name: "n", Type: bt.Int},
		{Name: "inner", Type: inner},
	})

	ti := c.Lowered(outer, 0)
	if len(ti.RefPaths) != 1 {
		t.Fatalf("RefPaths = %v", ti.RefPaths)
	}
	p := ti.RefPaths[0]
	if len(p) != 2 || p[0].Field != "inner" || p[1].Field != "ref" {
		t.Fatalf("nested path = %v, want inner.ref", p)
	}
}

func TestResilientStructIsAddressOnly(t *testing.T) {
	in := types.NewInterner()
	c := NewConverter(in)

	s := in.RegisterStruct("Opaque", source.Span{})
	in.SetStructFields(s, []types.Field{{Name: "x", Type: in.Builtins().Int}})
	in.SetStructResilient(s, true)

	ti := c.Lowered(s, 0)
	if !ti.AddressOnly {
		t.Fatalf("resilient struct must be address-only")
	}
}

func TestExistentialIsAddressOnly(t *testing.T) {
	in := types.NewInterner()
	c := NewConverter(in)

	p := in.RegisterProtocol("Comparable", source.Span{})
	ti := c.Lowered(p, 0)
	if !ti.AddressOnly || ti.Trivial {
		t.Fatalf("existential must be address-only and non-trivial: %+v", ti)
	}
}

func TestFnLoweringUncurryAndBridging(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()
	c := NewConverter(in)

	inner := in.RegisterFn([]types.TypeID{bt.Bool}, bt.String)
	outer := in.RegisterFn([]types.TypeID{bt.Int}, inner)

	ti := c.LoweredPattern(outer, 1, ThinPattern)
	info, ok := in.FnInfo(ti.Lowered)
	if !ok {
		t.Fatalf("lowered fn type missing")
	}
	// Inner list first, outer last: a suffix partial application binds
	// the outer arguments.
	if len(info.Params) != 2 || info.Params[0] != bt.Bool || info.Params[1] != bt.Int {
		t.Fatalf("uncurried params = %v", info.Params)
	}
	if !info.Thin {
		t.Fatalf("thin pattern must produce a thin fn type")
	}

	foreign := c.LoweredPattern(outer, 1, ForeignPattern)
	finfo, _ := in.FnInfo(foreign.Lowered)
	if finfo.Params[0] != bt.ForeignBool || finfo.Result != bt.ForeignString {
		t.Fatalf("foreign lowering must substitute bridged types: %+v", finfo)
	}
}

func TestThickFnIsNonTrivial(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()
	c := NewConverter(in)

	fn := in.RegisterFn([]types.TypeID{bt.Int}, bt.Int)
	thick := c.LoweredPattern(fn, 0, NativePattern)
	if thick.Trivial {
		t.Fatalf("thick fn owns a context and is not trivial")
	}
	thin := c.LoweredPattern(fn, 0, ThinPattern)
	if !thin.Trivial {
		t.Fatalf("thin fn is a bare pointer and is trivial")
	}
}

func TestFuncRefKeys(t *testing.T) {
	p := &ast.Decl{Kind: ast.DeclFunc, Data: ast.FuncDeclData{Name: "f"}}

	a := DeclRef(p, RefFunc).AtUncurry(1)
	b := DeclRef(p, RefFunc).AtUncurry(2)
	c := DeclRef(p, RefFunc).AtUncurry(1).AsForeign()

	seen := map[FuncRef]int{a: 1, b: 2, c: 3}
	if len(seen) != 3 {
		t.Fatalf("uncurry level and foreign flag must distinguish keys")
	}
	if seen[DeclRef(p, RefFunc).AtUncurry(1)] != 1 {
		t.Fatalf("equal refs must hash equal")
	}
}

func TestMangleDiscriminators(t *testing.T) {
	d := &ast.Decl{Kind: ast.DeclFunc, Data: ast.FuncDeclData{Name: "resize"}}

	cases := []struct {
		ref  FuncRef
		want string
	}{
		{DeclRef(d, RefFunc), "q$resize"},
		{DeclRef(d, RefGetter), "q$resize$get"},
		{DeclRef(d, RefSetter).AtUncurry(1), "q$resize$set$u1"},
		{DeclRef(d, RefFunc).AtUncurry(0), "q$resize$u0"},
		{DeclRef(d, RefFunc).AsForeign(), "q$resize$f"},
		{DefaultArgRef(d, 2), "q$resize$defarg2"},
	}
	for _, tc := range cases {
		if got := Mangle(tc.ref, ""); got != tc.want {
			t.Errorf("Mangle(%v) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}
