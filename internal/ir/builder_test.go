package ir

import (
	"strings"
	"testing"

	"quill/internal/types"
)

func TestBuilderSimpleFunc(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()

	m := NewModule("test")
	fnTy := in.RegisterFnConv([]types.TypeID{bt.Int}, bt.Int, types.ConvNative, true)
	f := m.NewFunc("add_one", fnTy)

	b := NewBuilder(f, in)
	x := b.NewBlockParam(bt.Int, false)
	entry := b.NewBlock(x)
	b.SetInsert(entry)

	one := b.ConstInt(bt.Int, 1)
	sum := b.Builtin("int_add", []Value{x, one}, bt.Int)
	b.Return(sum)

	if errs := Validate(m); len(errs) != 0 {
		t.Fatalf("validate: %v", errs)
	}

	var sb strings.Builder
	if err := DumpModule(&sb, m, in, DumpOptions{}); err != nil {
		t.Fatalf("dump: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"fn add_one", "const 1", `builtin "int_add"`, "return"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestUndefIsAnOrdinaryValue(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()

	m := NewModule("test")
	f := m.NewFunc("f", in.RegisterFn(nil, bt.Int))
	b := NewBuilder(f, in)
	b.SetInsert(b.NewBlock())
	v := b.Undef(bt.Int)
	b.Return(v)

	if v.Type != bt.Int || v.Addr {
		t.Fatalf("undef must be a loadable value of its type, got %+v", v)
	}
	if errs := Validate(m); len(errs) != 0 {
		t.Fatalf("validate: %v", errs)
	}

	var sb strings.Builder
	if err := DumpModule(&sb, m, in, DumpOptions{}); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(sb.String(), "undef") {
		t.Fatalf("dump must spell the placeholder, got:\n%s", sb.String())
	}
}

func TestBuilderRejectsDoubleTermination(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()

	m := NewModule("test")
	f := m.NewFunc("f", in.RegisterFn(nil, bt.Unit))
	b := NewBuilder(f, in)
	b.SetInsert(b.NewBlock())
	b.ReturnVoid()

	defer func() {
		if recover() == nil {
			t.Fatalf("second terminator must panic")
		}
	}()
	b.ReturnVoid()
}

func TestValidateCatchesUnterminatedBlock(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()

	m := NewModule("test")
	f := m.NewFunc("f", in.RegisterFn(nil, bt.Unit))
	b := NewBuilder(f, in)
	b.SetInsert(b.NewBlock())
	b.ConstUnit(bt.Unit)

	errs := Validate(m)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "missing terminator") {
		t.Fatalf("expected missing-terminator error, got %v", errs)
	}
}

func TestValidateBranchArity(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()

	m := NewModule("test")
	f := m.NewFunc("f", in.RegisterFn(nil, bt.Int))
	b := NewBuilder(f, in)

	entry := b.NewBlock()
	join := b.NewBlock(b.NewBlockParam(bt.Int, false))

	b.SetInsert(entry)
	b.Br(join) // missing the join argument

	b.SetInsert(join)
	b.Return(f.Blocks[join].Params[0])

	errs := Validate(m)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "passes 0 args") {
		t.Fatalf("expected branch-arity error, got %v", errs)
	}
}

func TestLoadRequiresAddress(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()

	m := NewModule("test")
	f := m.NewFunc("f", in.RegisterFn(nil, bt.Int))
	b := NewBuilder(f, in)
	b.SetInsert(b.NewBlock())
	v := b.ConstInt(bt.Int, 7)

	defer func() {
		if recover() == nil {
			t.Fatalf("load of a non-address must panic")
		}
	}()
	b.Load(v)
}
