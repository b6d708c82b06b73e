package irgen

import (
	"fmt"
	"strings"
	"testing"

	"quill/internal/ast"
	"quill/internal/convention"
	"quill/internal/diag"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/source"
	"quill/internal/types"
)

func testEmitter(t *testing.T) (*ModuleEmitter, *types.Interner, *diag.Bag) {
	t.Helper()
	in := types.NewInterner()
	bag := diag.NewBag(20)
	m := NewModuleEmitter(in, convention.Default(), diag.BagReporter{Bag: bag}, "test")
	return m, in, bag
}

func param(name string, ty types.TypeID) *ast.Decl {
	return &ast.Decl{Kind: ast.DeclParam, Data: ast.ParamDeclData{Name: name, Type: ty}}
}

func returnExpr(e *ast.Expr) *ast.Stmt {
	return &ast.Stmt{Kind: ast.StmtReturn, Data: ast.ReturnStmtData{Value: e}}
}

func refExpr(d *ast.Decl, ty types.TypeID) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprDeclRef, Type: ty, Data: ast.DeclRefData{Decl: d}}
}

func instrKinds(fn *ir.Func) []ir.InstrKind {
	var out []ir.InstrKind
	for bi := range fn.Blocks {
		for ii := range fn.Blocks[bi].Instrs {
			out = append(out, fn.Blocks[bi].Instrs[ii].Kind)
		}
	}
	return out
}

func countKind(fn *ir.Func, kind ir.InstrKind) int {
	n := 0
	for _, k := range instrKinds(fn) {
		if k == kind {
			n++
		}
	}
	return n
}

func mustValidate(t *testing.T, m *ir.Module) {
	t.Helper()
	if errs := ir.Validate(m); len(errs) != 0 {
		t.Fatalf("module must validate cleanly, got %v", errs)
	}
}

func expectPanic(t *testing.T, substr string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic mentioning %q", substr)
		}
		if msg, ok := r.(error); ok && !strings.Contains(msg.Error(), substr) {
			t.Fatalf("panic %v must mention %q", r, substr)
		}
	}()
	fn()
}

// Cleanup stack ----------------------------------------------------------

func TestCleanupEmitThroughLIFOSkipsDead(t *testing.T) {
	m, in, _ := testEmitter(t)
	fn := m.Module.NewFunc("t", in.Builtins().Unit)
	b := ir.NewBuilder(fn, in)
	b.SetInsert(b.NewBlock())

	var s CleanupStack
	slot := b.AllocStack(in.Builtins().Int)
	s.PushDeallocStack(slot)
	str := b.ConstString(in.Builtins().String, "x")
	dead := s.PushRelease(str, CleanupActive)
	buf := b.AllocStack(in.Builtins().String)
	s.PushDestroyAddr(buf, CleanupActive)
	s.Forward(dead)

	mark := len(fn.Blocks[0].Instrs)
	s.EmitThrough(b, 0)

	emitted := fn.Blocks[0].Instrs[mark:]
	if len(emitted) != 2 {
		t.Fatalf("emitted %d cleanups, want 2 (dead one skipped)", len(emitted))
	}
	if emitted[0].Kind != ir.InstrDestroyAddr || emitted[1].Kind != ir.InstrDeallocStack {
		t.Fatalf("cleanups must run newest first, got %v then %v", emitted[0].Kind, emitted[1].Kind)
	}
	if s.Depth() != 3 {
		t.Fatalf("EmitThrough must not pop, depth = %d", s.Depth())
	}
}

func TestCleanupDormantDoesNotEmit(t *testing.T) {
	m, in, _ := testEmitter(t)
	fn := m.Module.NewFunc("t", in.Builtins().Unit)
	b := ir.NewBuilder(fn, in)
	b.SetInsert(b.NewBlock())

	var s CleanupStack
	buf := b.AllocStack(in.Builtins().String)
	h := s.PushDestroyAddr(buf, CleanupDormant)
	mark := len(fn.Blocks[0].Instrs)
	s.EmitThrough(b, 0)
	if len(fn.Blocks[0].Instrs) != mark {
		t.Fatalf("dormant cleanup must not emit")
	}

	s.SetState(h, CleanupActive)
	s.PopThrough(b, 0)
	if got := fn.Blocks[0].Instrs[mark].Kind; got != ir.InstrDestroyAddr {
		t.Fatalf("activated cleanup must emit, got %v", got)
	}
	if s.Depth() != 0 {
		t.Fatalf("PopThrough must pop, depth = %d", s.Depth())
	}
}

func TestCleanupRevivingDeadPanics(t *testing.T) {
	var s CleanupStack
	h := s.PushRelease(ir.Value{}, CleanupActive)
	s.Forward(h)
	expectPanic(t, "reviving", func() {
		s.SetState(h, CleanupActive)
	})
}

// RValue -----------------------------------------------------------------

func TestRValueArityEnforced(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()
	triple := in.RegisterTuple([]types.TypeID{bi.Int, bi.Int, bi.Int}, nil)

	rv := newRValue(m.Conv, triple)
	rv.Add(scalarRValue(m.Conv, bi.Int, unmanaged(ir.Value{ID: 1, Type: bi.Int})))
	rv.Add(scalarRValue(m.Conv, bi.Int, unmanaged(ir.Value{ID: 2, Type: bi.Int})))
	if rv.Complete() {
		t.Fatalf("two of three elements must not be complete")
	}

	var s CleanupStack
	expectPanic(t, "incomplete", func() {
		rv.Forward(&s)
	})

	rv.Add(scalarRValue(m.Conv, bi.Int, unmanaged(ir.Value{ID: 3, Type: bi.Int})))
	if !rv.Complete() {
		t.Fatalf("three of three elements must be complete")
	}
	expectPanic(t, "", func() {
		rv.Add(scalarRValue(m.Conv, bi.Int, unmanaged(ir.Value{ID: 4, Type: bi.Int})))
	})
}

func TestRValueConsumedExactlyOnce(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()

	rv := scalarRValue(m.Conv, bi.Int, unmanaged(ir.Value{ID: 1, Type: bi.Int}))
	var s CleanupStack
	rv.Forward(&s)
	if !rv.Used() {
		t.Fatalf("forwarding must mark the rvalue used")
	}
	expectPanic(t, "", func() {
		rv.Forward(&s)
	})
}

// Writebacks -------------------------------------------------------------

func TestIndexIdentityConservative(t *testing.T) {
	i := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "i", Type: 0}}
	j := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "j", Type: 0}}
	lit := func(v int64) *ast.Expr {
		return &ast.Expr{Kind: ast.ExprIntLit, Data: ast.IntLitData{Value: v}}
	}
	ref := func(d *ast.Decl) *ast.Expr {
		return &ast.Expr{Kind: ast.ExprDeclRef, Data: ast.DeclRefData{Decl: d}}
	}
	call := &ast.Expr{Kind: ast.ExprCall, Data: ast.CallData{}}

	cases := []struct {
		name string
		a, b *ast.Expr
		want bool
	}{
		{"same literal", lit(3), lit(3), true},
		{"different literal", lit(3), lit(4), false},
		{"same decl", ref(i), ref(i), true},
		{"different decl", ref(i), ref(j), false},
		{"paren wrapped one side", &ast.Expr{Kind: ast.ExprParen, Data: ast.ParenData{Sub: lit(3)}}, lit(3), true},
		{"paren wrapped both sides", &ast.Expr{Kind: ast.ExprParen, Data: ast.ParenData{Sub: lit(3)}},
			&ast.Expr{Kind: ast.ExprParen, Data: ast.ParenData{Sub: lit(4)}}, false},
		{"calls never provably equal", call, call, false},
		{"no index on either side", nil, nil, true},
	}
	for _, tc := range cases {
		if got := indexesDefinitelyEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: indexesDefinitelyEqual = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWritebackConflictDetection(t *testing.T) {
	m, in, bag := testEmitter(t)
	fn := m.Module.NewFunc("t", in.Builtins().Unit)
	f := newFuncEmitter(m, lowering.DeclRef(param("p", in.Builtins().Unit), lowering.RefFunc), fn)

	sub := &ast.Decl{Kind: ast.DeclSubscript, Data: ast.SubscriptDeclData{}}
	idx := func(v int64) *ast.Expr {
		return &ast.Expr{Kind: ast.ExprIntLit, Data: ast.IntLitData{Value: v}}
	}
	base := unmanaged(ir.Value{ID: 7})

	f.writebacks.pushScope()
	f.addWriteback(writeback{storage: sub, base: base, hasBase: true, indexExpr: idx(1),
		span: source.Span{Start: 10, End: 12}})
	f.addWriteback(writeback{storage: sub, base: base, hasBase: true, indexExpr: idx(2),
		span: source.Span{Start: 14, End: 16}})
	if bag.Len() != 0 {
		t.Fatalf("distinct literal indexes must not conflict, got %d diagnostics", bag.Len())
	}

	f.addWriteback(writeback{storage: sub, base: base, hasBase: true, indexExpr: idx(1),
		span: source.Span{Start: 18, End: 20}})
	if bag.Len() != 1 {
		t.Fatalf("identical indexes on the same base must conflict, got %d diagnostics", bag.Len())
	}
	got := bag.Items()[0]
	if got.Code != diag.LowWritebackConflict {
		t.Fatalf("code = %v, want %v", got.Code, diag.LowWritebackConflict)
	}
	if len(got.Notes) != 1 || got.Notes[0].Span.Start != 10 {
		t.Fatalf("conflict must note the prior access, got %v", got.Notes)
	}
}

// Materialize ------------------------------------------------------------

func TestMaterializeClaimRoundTrip(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()
	fn := m.Module.NewFunc("t", bi.Unit)
	f := newFuncEmitter(m, lowering.DeclRef(param("p", bi.Unit), lowering.RefFunc), fn)
	f.emitProlog(nil, types.NoTypeID, nil, bi.Unit)

	tmp := f.emitTemporary(bi.Int)
	v := f.b.ConstInt(bi.Int, 42)
	f.b.StoreInit(v, tmp.Value)

	before := f.cleanups.Depth()
	rv := f.loadFromAddr(tmp.Value, true)
	out := rv.ForwardAsSingle(f)
	if out.Type != bi.Int || out.Addr {
		t.Fatalf("claimed value must be a loadable Int, got %+v", out)
	}
	if f.cleanups.Depth() != before {
		t.Fatalf("claiming a trivial temporary must not leak cleanups")
	}

	entry := &fn.Blocks[fn.Entry]
	mark := len(entry.Instrs)
	f.cleanups.PopThrough(f.b, 0)
	var deallocs int
	for _, i := range entry.Instrs[mark:] {
		if i.Kind == ir.InstrDeallocStack {
			deallocs++
		}
	}
	if deallocs != 1 {
		t.Fatalf("temporary must be deallocated exactly once, got %d", deallocs)
	}
}

// Curry thunks -----------------------------------------------------------

func curriedDecl(in *types.Interner) *ast.Decl {
	bi := in.Builtins()
	a := param("a", bi.Int)
	b := param("b", bi.Bool)
	d := &ast.Decl{Kind: ast.DeclFunc}
	d.Data = ast.FuncDeclData{
		Name:       "pick",
		ParamLists: [][]*ast.Decl{{a}, {b}},
		Result:     bi.Int,
		Body:       []*ast.Stmt{returnExpr(refExpr(a, bi.Int))},
	}
	return d
}

func TestCurryThunkPartiallyApplies(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()
	d := curriedDecl(in)

	natural := m.ensureEmitted(lowering.DeclRef(d, lowering.RefFunc))
	info, ok := in.FnInfo(natural.Type)
	if !ok || len(info.Params) != 2 {
		t.Fatalf("natural entry must take both lists flattened, got %v", natural.Type)
	}
	if info.Params[0] != bi.Bool || info.Params[1] != bi.Int {
		t.Fatalf("flattening must put the inner list first, got %v", info.Params)
	}

	thunk := m.ensureEmitted(lowering.DeclRef(d, lowering.RefFunc).AtUncurry(0))
	if thunk.Name == natural.Name {
		t.Fatalf("level-0 entry must not collide with the natural entry")
	}
	tinfo, _ := in.FnInfo(thunk.Type)
	if len(tinfo.Params) != 1 || tinfo.Params[0] != bi.Int {
		t.Fatalf("level-0 entry must take only the outer list, got %v", tinfo.Params)
	}
	if _, ok := in.FnInfo(tinfo.Result); !ok {
		t.Fatalf("level-0 entry must return the remaining function level")
	}
	if countKind(thunk, ir.InstrPartialApply) != 1 {
		t.Fatalf("curry thunk must bind its received list via one partial apply")
	}
	mustValidate(t, m.Module)
}

// Closures ---------------------------------------------------------------

func TestClosureCapturesImmutableByValue(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()
	fnTy := in.RegisterFn(nil, bi.Int)

	x := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "x", Type: bi.Int}}
	bind := &ast.Stmt{Kind: ast.StmtDecl, Data: ast.DeclStmtData{Decl: &ast.Decl{
		Kind: ast.DeclPatternBinding,
		Data: ast.PatternBindingData{
			Pattern: &ast.Pattern{Kind: ast.PatternName, Type: bi.Int, Var: x},
			Init:    &ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Data: ast.IntLitData{Value: 3}},
		},
	}}}
	closure := &ast.Expr{Kind: ast.ExprClosure, Type: fnTy, Data: ast.ClosureData{
		Captures: []*ast.Decl{x},
		Body:     []*ast.Stmt{returnExpr(refExpr(x, bi.Int))},
		Result:   bi.Int,
	}}
	d := &ast.Decl{Kind: ast.DeclFunc}
	d.Data = ast.FuncDeclData{
		Name:   "mk",
		Result: fnTy,
		Body:   []*ast.Stmt{bind, returnExpr(closure)},
	}

	fn := m.ensureEmitted(lowering.DeclRef(d, lowering.RefFunc))
	if countKind(fn, ir.InstrPartialApply) != 1 {
		t.Fatalf("capturing closure must bind its context with one partial apply")
	}
	if countKind(fn, ir.InstrAllocBox) != 0 {
		t.Fatalf("immutable capture must copy the value, not allocate a box")
	}
	mustValidate(t, m.Module)
}

// TestParallelEmissionSharesInterner interns fresh box and closure types
// from every worker; run with -race to check the shared type cache.
func TestParallelEmissionSharesInterner(t *testing.T) {
	m, in, bag := testEmitter(t)
	bi := in.Builtins()
	fnTy := in.RegisterFn(nil, bi.Int)

	var decls []*ast.Decl
	for i := 0; i < 64; i++ {
		elems := make([]types.TypeID, i+1)
		lits := make([]*ast.Expr, i+1)
		for j := range elems {
			elems[j] = bi.Int
			lits[j] = &ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Data: ast.IntLitData{Value: int64(j)}}
		}
		tupleTy := in.RegisterTuple(elems, nil)

		v := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{
			Name: fmt.Sprintf("t%d", i), Type: tupleTy, Mutable: true,
		}}
		bind := &ast.Stmt{Kind: ast.StmtDecl, Data: ast.DeclStmtData{Decl: &ast.Decl{
			Kind: ast.DeclPatternBinding,
			Data: ast.PatternBindingData{
				Pattern: &ast.Pattern{Kind: ast.PatternName, Type: tupleTy, Var: v},
				Init:    &ast.Expr{Kind: ast.ExprTuple, Type: tupleTy, Data: ast.TupleData{Elems: lits}},
			},
		}}}
		closure := &ast.Expr{Kind: ast.ExprClosure, Type: fnTy, Data: ast.ClosureData{
			Captures: []*ast.Decl{v},
			Body: []*ast.Stmt{returnExpr(&ast.Expr{
				Kind: ast.ExprIntLit, Type: bi.Int, Data: ast.IntLitData{Value: int64(i)},
			})},
			Result: bi.Int,
		}}
		d := &ast.Decl{Kind: ast.DeclFunc}
		d.Data = ast.FuncDeclData{
			Name:   fmt.Sprintf("job%d", i),
			Result: bi.Unit,
			Body: []*ast.Stmt{
				bind,
				{Kind: ast.StmtExpr, Data: ast.ExprStmtData{Expr: closure}},
			},
		}
		decls = append(decls, d)
	}

	mod := &ast.Module{Name: "par", Decls: decls}
	if err := m.EmitModuleParallel(mod); err != nil {
		t.Fatalf("EmitModuleParallel: %v", err)
	}
	if bag.Len() != 0 {
		t.Fatalf("parallel lowering must emit no diagnostics, got %v", bag.Items())
	}
	if got := m.Module.NumFuncs(); got < 128 {
		t.Fatalf("want 64 bodies plus 64 closure entries, got %d funcs", got)
	}
	mustValidate(t, m.Module)
}

// End to end -------------------------------------------------------------

func pairModule(in *types.Interner) (*ast.Module, types.TypeID) {
	bi := in.Builtins()
	pair := in.RegisterStruct("Pair", source.Span{})
	in.SetStructFields(pair, []types.Field{{Name: "a", Type: bi.Int}, {Name: "b", Type: bi.String}})

	fieldA := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "a", Type: bi.Int, Mutable: true}}
	fieldB := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "b", Type: bi.String, Mutable: true}}
	ctor := &ast.Decl{Kind: ast.DeclConstructor, Data: ast.CtorDeclData{
		Owner:      pair,
		Params:     []*ast.Decl{param("a", bi.Int), param("b", bi.String)},
		Memberwise: true,
	}}
	decl := &ast.Decl{Kind: ast.DeclStruct, Data: ast.StructDeclData{
		Name:           "Pair",
		Type:           pair,
		Fields:         []*ast.Decl{fieldA, fieldB},
		MemberwiseCtor: ctor,
	}}
	return &ast.Module{Name: "demo", Decls: []*ast.Decl{decl}}, pair
}

func TestMemberwiseInitializerEndToEnd(t *testing.T) {
	m, in, bag := testEmitter(t)
	mod, _ := pairModule(in)
	if err := m.EmitModule(mod); err != nil {
		t.Fatalf("EmitModule: %v", err)
	}
	if bag.Len() != 0 {
		t.Fatalf("lowering must emit no diagnostics, got %v", bag.Items())
	}

	fn, ok := m.Module.Lookup("q$Pair.init$alloc")
	if !ok {
		t.Fatalf("memberwise allocator must be emitted")
	}
	if countKind(fn, ir.InstrStructElementAddr) != 2 {
		t.Fatalf("both fields must be addressed for their stores")
	}

	var fieldOrder []string
	for _, blk := range fn.Blocks {
		for ii := range blk.Instrs {
			if blk.Instrs[ii].Kind == ir.InstrStructElementAddr {
				fieldOrder = append(fieldOrder, blk.Instrs[ii].StructElementAddr.Field)
			}
		}
	}
	if len(fieldOrder) != 2 || fieldOrder[0] != "a" || fieldOrder[1] != "b" {
		t.Fatalf("stores must go by position, got %v", fieldOrder)
	}

	if n := countKind(fn, ir.InstrRelease); n != 0 {
		t.Fatalf("constructor must not release its own arguments, got %d releases", n)
	}
	if n := countKind(fn, ir.InstrDestroyAddr); n != 0 {
		t.Fatalf("constructor must not destroy anything, got %d destroys", n)
	}
	mustValidate(t, m.Module)
}

// Dispatch tables --------------------------------------------------------

func TestVTableOverrideReplacesInPlace(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()

	base := in.RegisterClass("Base", source.Span{}, types.NoTypeID)
	derived := in.RegisterClass("Derived", source.Span{}, base)

	baseFrob := &ast.Decl{Kind: ast.DeclFunc}
	baseFrob.Data = ast.FuncDeclData{Name: "frob", SelfType: base, Result: bi.Unit}
	baseDecl := &ast.Decl{Kind: ast.DeclClass, Data: ast.ClassDeclData{
		Name: "Base", Type: base, Members: []*ast.Decl{baseFrob},
	}}

	derivedFrob := &ast.Decl{Kind: ast.DeclFunc}
	derivedFrob.Data = ast.FuncDeclData{Name: "frob", SelfType: derived, Result: bi.Unit, OverrideOf: baseFrob}
	derivedDecl := &ast.Decl{Kind: ast.DeclClass, Data: ast.ClassDeclData{
		Name: "Derived", Type: derived, Superclass: baseDecl, Members: []*ast.Decl{derivedFrob},
	}}

	mod := &ast.Module{Name: "demo", Decls: []*ast.Decl{baseDecl, derivedDecl}}
	if err := m.EmitModule(mod); err != nil {
		t.Fatalf("EmitModule: %v", err)
	}

	bt, ok := m.Module.VTableFor(base)
	if !ok || len(bt.Entries) != 1 || bt.Entries[0].Impl != "q$Base.frob" {
		t.Fatalf("base vtable wrong: %+v", bt)
	}
	dt, ok := m.Module.VTableFor(derived)
	if !ok || len(dt.Entries) != 1 {
		t.Fatalf("override must replace in place, got %+v", dt)
	}
	if dt.Entries[0].Impl != "q$Derived.frob" || dt.Entries[0].Member != baseFrob {
		t.Fatalf("derived slot must keep the root member identity with the new impl, got %+v", dt.Entries[0])
	}
	mustValidate(t, m.Module)
}

func TestWitnessTableDirectWitness(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()

	box := in.RegisterStruct("Box", source.Span{})
	in.SetStructFields(box, []types.Field{{Name: "v", Type: bi.Int}})
	proto := in.RegisterProtocol("Measurable", source.Span{})
	reqTy := in.RegisterFn(nil, bi.Int)
	in.SetProtocolRequirements(proto, []types.Requirement{{Name: "size", Kind: types.ReqMethod, Type: reqTy}})

	size := &ast.Decl{Kind: ast.DeclFunc}
	size.Data = ast.FuncDeclData{Name: "size", SelfType: box, Result: bi.Int,
		Body: []*ast.Stmt{returnExpr(&ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Data: ast.IntLitData{Value: 1}})}}

	protoDecl := &ast.Decl{Kind: ast.DeclProtocol, Data: ast.ProtocolDeclData{Name: "Measurable", Type: proto}}
	boxDecl := &ast.Decl{Kind: ast.DeclStruct, Data: ast.StructDeclData{
		Name: "Box", Type: box, Members: []*ast.Decl{size},
	}}
	mod := &ast.Module{
		Name:  "demo",
		Decls: []*ast.Decl{protoDecl, boxDecl},
		Conformances: []*ast.Conformance{{
			Type: box, Protocol: proto, ProtocolDecl: protoDecl,
			Witnesses: []ast.WitnessEntry{{Requirement: 0, Witness: size}},
		}},
	}
	if err := m.EmitModule(mod); err != nil {
		t.Fatalf("EmitModule: %v", err)
	}

	wt, ok := m.Module.WitnessTableFor(box, proto)
	if !ok || len(wt.Entries) != 1 {
		t.Fatalf("conformance must produce one witness entry, got %+v", wt)
	}
	if wt.Entries[0].Witness != "q$Box.size" {
		t.Fatalf("matching conventions must bind the witness directly, got %q", wt.Entries[0].Witness)
	}
	mustValidate(t, m.Module)
}

// Foreign bridging -------------------------------------------------------

func TestForeignEntryBridgesAtBoundary(t *testing.T) {
	m, in, _ := testEmitter(t)
	bi := in.Builtins()

	s := param("s", bi.String)
	okP := param("ok", bi.Bool)
	d := &ast.Decl{Kind: ast.DeclFunc}
	d.Data = ast.FuncDeclData{
		Name:       "flag",
		Foreign:    true,
		ParamLists: [][]*ast.Decl{{s, okP}},
		Result:     bi.Bool,
		Body:       []*ast.Stmt{returnExpr(refExpr(okP, bi.Bool))},
	}

	thunk := m.ensureEmitted(lowering.DeclRef(d, lowering.RefFunc).AsForeign())
	info, ok := in.FnInfo(thunk.Type)
	if !ok || len(info.Params) != 2 {
		t.Fatalf("foreign entry must keep the declared arity, got %v", thunk.Type)
	}
	if info.Params[0] != bi.ForeignString || info.Params[1] != bi.ForeignBool {
		t.Fatalf("foreign entry must take bridged parameter types, got %v", info.Params)
	}
	if info.Result != bi.ForeignBool {
		t.Fatalf("foreign entry must return the bridged result, got %v", info.Result)
	}

	if n := countKind(thunk, ir.InstrBridgeFromForeign); n != 2 {
		t.Fatalf("both parameters must bridge back to native, got %d bridges", n)
	}
	if n := countKind(thunk, ir.InstrBridgeToForeign); n != 1 {
		t.Fatalf("the result must bridge to its foreign form, got %d bridges", n)
	}
	if n := countKind(thunk, ir.InstrApply); n != 1 {
		t.Fatalf("the thunk must forward to the native entry exactly once, got %d", n)
	}

	native := m.ensureEmitted(lowering.DeclRef(d, lowering.RefFunc))
	if native.Name == thunk.Name {
		t.Fatalf("foreign and native entries must be distinct functions")
	}
	ninfo, _ := in.FnInfo(native.Type)
	if ninfo.Params[0] != bi.String || ninfo.Result != bi.Bool {
		t.Fatalf("native entry must keep native types, got %v -> %v", ninfo.Params, ninfo.Result)
	}
	mustValidate(t, m.Module)
}

// Recovery ---------------------------------------------------------------

func TestAssignToGetOnlyStorageRecovers(t *testing.T) {
	m, in, bag := testEmitter(t)
	bi := in.Builtins()

	get := &ast.Decl{Kind: ast.DeclFunc}
	get.Data = ast.FuncDeclData{Name: "count", Result: bi.Int,
		Body: []*ast.Stmt{returnExpr(&ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Data: ast.IntLitData{Value: 7}})}}
	count := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "count", Type: bi.Int, Get: get}}

	assign := &ast.Expr{Kind: ast.ExprAssign, Type: bi.Unit,
		Span: source.Span{Start: 4, End: 13},
		Data: ast.AssignData{
			Dest: refExpr(count, bi.Int),
			Src:  &ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Data: ast.IntLitData{Value: 1}},
		}}
	d := &ast.Decl{Kind: ast.DeclFunc}
	d.Data = ast.FuncDeclData{
		Name:   "bump",
		Result: bi.Unit,
		Body:   []*ast.Stmt{{Kind: ast.StmtExpr, Data: ast.ExprStmtData{Expr: assign}}},
	}

	fn := m.ensureEmitted(lowering.DeclRef(d, lowering.RefFunc))

	if bag.Len() != 1 {
		t.Fatalf("want exactly one diagnostic, got %d: %v", bag.Len(), bag.Items())
	}
	got := bag.Items()[0]
	if got.Code != diag.LowInvalidAddressUse {
		t.Fatalf("code = %v, want %v", got.Code, diag.LowInvalidAddressUse)
	}
	if !strings.Contains(got.Message, "count") {
		t.Fatalf("diagnostic must name the storage, got %q", got.Message)
	}

	// Lowering continues past the bad assignment.
	if n := countKind(fn, ir.InstrApply); n != 0 {
		t.Fatalf("no setter exists to call, got %d applies", n)
	}
	mustValidate(t, m.Module)
}
