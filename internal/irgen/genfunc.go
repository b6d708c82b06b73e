package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/convention"
	"quill/internal/diag"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// varLocKind tags how a local binding is stored.
type varLocKind uint8

const (
	// locDirect is an immutable loadable value bound by name.
	locDirect varLocKind = iota
	// locAddr is addressable storage (mutable local, inout parameter, or
	// address-only binding).
	locAddr
	// locBox is a heap cell shared with escaping closures.
	locBox
)

type varLoc struct {
	kind varLocKind
	v    ir.Value
}

// optionalChain tracks one active optional-evaluation context. Binds with
// a matching depth short-circuit to its none block.
type optionalChain struct {
	depth        int
	contBlock    ir.BlockID
	noneBlock    ir.BlockID
	cleanupDepth CleanupDepth
	resultTy     types.TypeID
}

// funcEmitter lowers one function body into one ir.Func. It is single-use
// and single-goroutine; shared state lives on the ModuleEmitter.
type funcEmitter struct {
	mod *ModuleEmitter
	ref lowering.FuncRef
	fn  *ir.Func
	b   *ir.Builder

	cleanups   CleanupStack
	writebacks writebackStack

	vars    map[*ast.Decl]varLoc
	selfVal ir.Value
	hasSelf bool

	resultTy       types.TypeID
	indirectRet    ir.Value
	epilog         ir.BlockID
	epilogParam    ir.Value
	hasEpilogParam bool

	chains []optionalChain
}

func newFuncEmitter(mod *ModuleEmitter, ref lowering.FuncRef, fn *ir.Func) *funcEmitter {
	return &funcEmitter{
		mod:  mod,
		ref:  ref,
		fn:   fn,
		b:    ir.NewBuilder(fn, mod.Types),
		vars: make(map[*ast.Decl]varLoc),
	}
}

func (f *funcEmitter) types() *types.Interner        { return f.mod.Types }
func (f *funcEmitter) conv() *lowering.Converter     { return f.mod.Conv }
func (f *funcEmitter) reporter() diag.Reporter       { return f.mod.Reporter }
func (f *funcEmitter) table() convention.Table       { return f.mod.Table }

func (f *funcEmitter) typeName(ty types.TypeID) string {
	return f.types().Name(ty)
}

// emitTemporary allocates a stack slot scheduled for deallocation at the
// current scope's end. The caller is responsible for the destroy cleanup
// once the slot holds a value.
func (f *funcEmitter) emitTemporary(ty types.TypeID) ManagedValue {
	addr := f.b.AllocStack(ty)
	f.cleanups.PushDeallocStack(addr)
	return unmanaged(addr)
}

// implicitParam describes one non-explicit entry argument.
type implicitParam struct {
	ty   types.TypeID
	addr bool
	bind *ast.Decl // nil for self/indirect-result
	self bool
	ret  bool
}

// emitProlog creates the entry block, materializes parameters per the
// convention table, and creates the shared epilog block.
func (f *funcEmitter) emitProlog(params []*ast.Decl, selfType types.TypeID, captures []*ast.Decl, result types.TypeID) {
	f.resultTy = result
	resultInfo := f.conv().Lowered(result, 0)

	var order []implicitParam
	appendByPlacement := func(p implicitParam, where convention.Placement) {
		if where == convention.PlaceFirst {
			order = append([]implicitParam{p}, order...)
		} else {
			order = append(order, p)
		}
	}

	for _, p := range params {
		data := paramData(p)
		ti := f.conv().Lowered(data.Type, 0)
		order = append(order, implicitParam{
			ty:   data.Type,
			addr: data.InOut || ti.AddressOnly,
			bind: p,
		})
	}
	for _, c := range captures {
		order = appendCapture(order, f, c, f.table().CapturePlacement)
	}
	if selfType != types.NoTypeID {
		selfInfo := f.conv().Lowered(selfType, 0)
		appendByPlacement(implicitParam{
			ty:   selfType,
			addr: selfInfo.AddressOnly || f.selfPassedByAddress(selfType),
			self: true,
		}, f.table().SelfPlacement)
	}
	if resultInfo.AddressOnly {
		appendByPlacement(implicitParam{ty: result, addr: true, ret: true},
			f.table().IndirectResultPlacement)
		f.fn.Indirect = true
	}
	f.fn.Result = result

	blockParams := make([]ir.Value, len(order))
	entry := f.b.NewBlock()
	for i, p := range order {
		blockParams[i] = f.fn.NewValue(p.ty, p.addr)
	}
	f.fn.Block(entry).Params = blockParams
	f.b.SetInsert(entry)

	for i, p := range order {
		v := blockParams[i]
		switch {
		case p.ret:
			f.indirectRet = v
		case p.self:
			f.selfVal = v
			f.hasSelf = true
		case p.bind != nil:
			f.bindParam(p.bind, v)
		}
	}

	// The single exit. Direct non-unit results arrive as a block argument.
	if !resultInfo.AddressOnly && !f.isUnit(result) {
		arg := f.fn.NewValue(result, false)
		f.epilog = f.b.NewBlock(arg)
		f.epilogParam = arg
		f.hasEpilogParam = true
	} else {
		f.epilog = f.b.NewBlock()
	}
	f.b.SetInsert(entry)
}

func appendCapture(order []implicitParam, f *funcEmitter, c *ast.Decl, where convention.Placement) []implicitParam {
	ty, _ := f.captureStorage(c)
	p := implicitParam{ty: ty, bind: c}
	if where == convention.PlaceFirst {
		return append([]implicitParam{p}, order...)
	}
	return append(order, p)
}

// captureStorage returns the type a capture travels as: mutable locals go
// by box, everything else by value.
func (f *funcEmitter) captureStorage(c *ast.Decl) (types.TypeID, bool) {
	data := varData(c)
	if data.Mutable {
		return f.types().Box(data.Type), true
	}
	return data.Type, false
}

// bindParam records a parameter's storage location.
func (f *funcEmitter) bindParam(d *ast.Decl, v ir.Value) {
	switch d.Kind {
	case ast.DeclParam:
		if v.Addr {
			f.vars[d] = varLoc{kind: locAddr, v: v}
		} else {
			f.vars[d] = varLoc{kind: locDirect, v: v}
		}
	case ast.DeclVar:
		// A capture parameter.
		if _, byBox := f.captureStorage(d); byBox {
			f.vars[d] = varLoc{kind: locBox, v: v}
		} else {
			f.vars[d] = varLoc{kind: locDirect, v: v}
		}
	default:
		panic(fmt.Errorf("irgen: binding non-parameter decl %s", d.Kind))
	}
}

// varAddr returns an address for a binding stored in memory.
func (f *funcEmitter) varAddr(d *ast.Decl) ir.Value {
	loc, ok := f.vars[d]
	if !ok {
		panic(fmt.Errorf("irgen: reference to unbound %s %q", d.Kind, d.Name()))
	}
	switch loc.kind {
	case locAddr:
		return loc.v
	case locBox:
		return f.b.ProjectBox(loc.v)
	default:
		panic(fmt.Errorf("irgen: address of direct binding %q", d.Name()))
	}
}

func (f *funcEmitter) selfPassedByAddress(selfType types.TypeID) bool {
	tt := f.types().MustLookup(selfType)
	// Value-type methods mutate self in place; class self is a reference.
	return tt.Kind == types.KindStruct || tt.Kind == types.KindTuple
}

func (f *funcEmitter) isUnit(ty types.TypeID) bool {
	return f.types().MustLookup(ty).Kind == types.KindUnit
}

func (f *funcEmitter) isNever(ty types.TypeID) bool {
	return f.types().MustLookup(ty).Kind == types.KindNever
}

// emitBody lowers the statement list and seals the function through the
// epilog block.
func (f *funcEmitter) emitBody(body []*ast.Stmt) {
	f.emitStmts(body)
	if !f.b.HasTerminator() {
		// Falling off the end returns unit; anything else means the
		// checker let a missing return through.
		if f.isUnit(f.resultTy) {
			f.cleanups.EmitThrough(f.b, 0)
			f.b.Br(f.epilog)
		} else {
			f.b.Unreachable()
		}
	}
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

func (f *funcEmitter) sealEpilog() {
	f.b.SetInsert(f.epilog)
	if f.b.HasTerminator() {
		return
	}
	switch {
	case f.hasEpilogParam:
		f.b.Return(f.epilogParam)
	default:
		f.b.ReturnVoid()
	}
}

// branchToEpilog routes a produced result to the single exit, running
// every active cleanup first.
func (f *funcEmitter) branchToEpilog(result RValue) {
	switch {
	case f.fn.Indirect:
		f.emitAssignInto(result, f.indirectRet, true)
		f.cleanups.EmitThrough(f.b, 0)
		f.b.Br(f.epilog)
	case f.hasEpilogParam:
		v := result.ForwardAsSingle(f)
		f.cleanups.EmitThrough(f.b, 0)
		f.b.Br(f.epilog, v)
	default:
		result.ForwardAsSingle(f)
		f.cleanups.EmitThrough(f.b, 0)
		f.b.Br(f.epilog)
	}
}

// Statements ------------------------------------------------------------

func (f *funcEmitter) emitStmts(stmts []*ast.Stmt) {
	for _, s := range stmts {
		if f.b.HasTerminator() {
			// Unreachable trailing statements are dropped, matching the
			// checker's reachability analysis.
			return
		}
		f.emitStmt(s)
	}
}

func (f *funcEmitter) emitStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.StmtExpr:
		data := s.Data.(ast.ExprStmtData)
		depth := f.cleanups.Depth()
		rv := f.emitRValueExpr(data.Expr)
		f.discard(rv)
		if !f.b.HasTerminator() {
			f.cleanups.PopThrough(f.b, depth)
		} else {
			f.cleanups.PopThroughSilent(depth)
		}

	case ast.StmtDecl:
		data := s.Data.(ast.DeclStmtData)
		f.emitLocalDecl(data.Decl)

	case ast.StmtReturn:
		data := s.Data.(ast.ReturnStmtData)
		var rv RValue
		if data.Value != nil {
			rv = f.emitRValueExpr(data.Value)
		} else {
			rv = newRValue(f.conv(), f.mod.unitType())
		}
		f.branchToEpilog(rv)

	case ast.StmtIf:
		data := s.Data.(ast.IfStmtData)
		f.emitIfStmt(data)

	case ast.StmtWhile:
		data := s.Data.(ast.WhileStmtData)
		f.emitWhileStmt(data)

	case ast.StmtBlock:
		data := s.Data.(ast.BlockStmtData)
		depth := f.cleanups.Depth()
		f.emitStmts(data.Body)
		if !f.b.HasTerminator() {
			f.cleanups.PopThrough(f.b, depth)
		} else {
			f.cleanups.PopThroughSilent(depth)
		}

	default:
		panic(fmt.Errorf("irgen: unhandled statement kind %s", s.Kind))
	}
}

// discard destroys an unused statement-expression result immediately.
func (f *funcEmitter) discard(rv RValue) {
	if rv.Used() {
		return
	}
	for _, v := range rv.Forward(&f.cleanups) {
		ti := f.conv().Lowered(v.Type, 0)
		switch {
		case v.Addr && ti.AddressOnly:
			f.b.DestroyAddr(v)
		case !ti.Trivial:
			f.b.Release(v)
		}
	}
}

func (f *funcEmitter) emitIfStmt(data ast.IfStmtData) {
	cond := f.emitScalar(data.Cond)
	thenB := f.b.NewBlock()
	var elseB ir.BlockID
	joinB := f.b.NewBlock()
	if len(data.Else) > 0 {
		elseB = f.b.NewBlock()
		f.b.CondBr(cond, thenB, nil, elseB, nil)
	} else {
		f.b.CondBr(cond, thenB, nil, joinB, nil)
	}

	f.b.SetInsert(thenB)
	f.emitScoped(data.Then, joinB)

	if len(data.Else) > 0 {
		f.b.SetInsert(elseB)
		f.emitScoped(data.Else, joinB)
	}

	f.b.SetInsert(joinB)
}

// emitScoped lowers a branch body in its own cleanup scope and falls
// through to join when the body does not transfer away.
func (f *funcEmitter) emitScoped(body []*ast.Stmt, join ir.BlockID) {
	depth := f.cleanups.Depth()
	f.emitStmts(body)
	if !f.b.HasTerminator() {
		f.cleanups.PopThrough(f.b, depth)
		f.b.Br(join)
	} else {
		f.cleanups.PopThroughSilent(depth)
	}
}

func (f *funcEmitter) emitWhileStmt(data ast.WhileStmtData) {
	header := f.b.NewBlock()
	f.b.Br(header)

	f.b.SetInsert(header)
	condDepth := f.cleanups.Depth()
	cond := f.emitScalar(data.Cond)
	f.cleanups.PopThroughSilent(condDepth)
	bodyB := f.b.NewBlock()
	exitB := f.b.NewBlock()
	f.b.CondBr(cond, bodyB, nil, exitB, nil)

	f.b.SetInsert(bodyB)
	depth := f.cleanups.Depth()
	f.emitStmts(data.Body)
	if !f.b.HasTerminator() {
		f.cleanups.PopThrough(f.b, depth)
		f.b.Br(header)
	} else {
		f.cleanups.PopThroughSilent(depth)
	}

	f.b.SetInsert(exitB)
}

// Local declarations ----------------------------------------------------

func (f *funcEmitter) emitLocalDecl(d *ast.Decl) {
	switch d.Kind {
	case ast.DeclPatternBinding:
		data := d.Data.(ast.PatternBindingData)
		if data.Init == nil {
			f.declareUninitialized(data.Pattern)
			return
		}
		rv := f.emitRValueExpr(data.Init)
		f.bindPattern(data.Pattern, rv)
	case ast.DeclFunc:
		// Local named functions become module-level entries referenced by
		// their declaration; the module emitter picks them up on demand.
		f.mod.enqueueDecl(d)
	default:
		panic(fmt.Errorf("irgen: unhandled local declaration %s", d.Kind))
	}
}

// declareUninitialized allocates storage for patterns declared without an
// initial value.
func (f *funcEmitter) declareUninitialized(p *ast.Pattern) {
	switch p.Kind {
	case ast.PatternName:
		addr := f.b.AllocStack(p.Type)
		f.cleanups.PushDeallocStack(addr)
		f.vars[p.Var] = varLoc{kind: locAddr, v: addr}
	case ast.PatternTuple:
		for _, sub := range p.Elems {
			f.declareUninitialized(sub)
		}
	case ast.PatternDiscard:
		// Nothing to allocate.
	default:
		panic(fmt.Errorf("irgen: unhandled pattern kind %s", p.Kind))
	}
}

// bindPattern distributes an initializer rvalue over a binding pattern.
func (f *funcEmitter) bindPattern(p *ast.Pattern, rv RValue) {
	switch p.Kind {
	case ast.PatternName:
		f.bindVar(p.Var, rv)

	case ast.PatternTuple:
		if len(p.Elems) == 0 {
			// Empty tuple pattern: evaluate for effects, bind nothing.
			f.discard(rv)
			return
		}
		if f.conv().Lowered(rv.Type(), 0).AddressOnly {
			addr := rv.Forward(&f.cleanups)[0]
			for i, sub := range p.Elems {
				elemAddr := f.b.TupleElementAddr(addr, i)
				f.bindPattern(sub, f.loadFromAddr(elemAddr, false))
			}
			return
		}
		for i, elem := range rv.Extract(f.conv()) {
			f.bindPattern(p.Elems[i], elem)
		}

	case ast.PatternDiscard:
		f.discard(rv)

	default:
		panic(fmt.Errorf("irgen: unhandled pattern kind %s", p.Kind))
	}
}

// bindVar stores one binding: mutable and address-only bindings live in a
// stack slot; immutable loadable ones stay as a direct value.
func (f *funcEmitter) bindVar(d *ast.Decl, rv RValue) {
	data := varData(d)
	ti := f.conv().Lowered(data.Type, 0)

	if data.Mutable && f.declEscapesByBox(d) {
		box := f.b.AllocBox(data.Type)
		f.cleanups.PushRelease(box, CleanupActive)
		addr := f.b.ProjectBox(box)
		f.emitAssignInto(rv, addr, true)
		f.vars[d] = varLoc{kind: locBox, v: box}
		return
	}

	if data.Mutable || ti.AddressOnly {
		addr := f.b.AllocStack(data.Type)
		f.cleanups.PushDeallocStack(addr)
		f.emitAssignInto(rv, addr, true)
		if !ti.Trivial {
			f.cleanups.PushDestroyAddr(addr, CleanupActive)
		}
		f.vars[d] = varLoc{kind: locAddr, v: addr}
		return
	}

	v := rv.ForwardAsSingle(f)
	if !ti.Trivial {
		f.cleanups.PushRelease(v, CleanupActive)
	}
	f.vars[d] = varLoc{kind: locDirect, v: v}
}

// declEscapesByBox reports whether a mutable local is captured by a
// closure and must live on the heap.
func (f *funcEmitter) declEscapesByBox(d *ast.Decl) bool {
	return f.mod.capturedByRef[d]
}

// emitAssignInto writes a complete rvalue to an address. init marks the
// destination as uninitialized memory.
func (f *funcEmitter) emitAssignInto(rv RValue, addr ir.Value, init bool) {
	if f.conv().Lowered(rv.Type(), 0).AddressOnly {
		src := rv.Forward(&f.cleanups)[0]
		f.b.CopyAddr(src, addr, true, init)
		return
	}
	v := rv.ForwardAsSingle(f)
	if init {
		f.b.StoreInit(v, addr)
	} else {
		f.b.Store(v, addr)
	}
}

// loadFromAddr produces an rvalue from storage. take consumes the stored
// value instead of copying it.
func (f *funcEmitter) loadFromAddr(addr ir.Value, take bool) RValue {
	ti := f.conv().Lowered(addr.Type, 0)
	if ti.AddressOnly {
		if take {
			h := f.cleanups.PushDestroyAddr(addr, CleanupActive)
			return scalarRValue(f.conv(), addr.Type, managed(addr, h))
		}
		tmp := f.emitTemporary(addr.Type)
		f.b.CopyAddr(addr, tmp.Value, false, true)
		h := f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
		return scalarRValue(f.conv(), addr.Type, managed(tmp.Value, h))
	}
	v := f.b.Load(addr)
	if ti.Trivial {
		return scalarRValue(f.conv(), addr.Type, unmanaged(v))
	}
	if !take {
		f.emitCopyLeaves(v, ti)
	}
	h := f.cleanups.PushRelease(v, CleanupActive)
	return scalarRValue(f.conv(), addr.Type, managed(v, h))
}

func paramData(d *ast.Decl) ast.ParamDeclData {
	switch data := d.Data.(type) {
	case ast.ParamDeclData:
		return data
	case *ast.ParamDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a parameter", d.Kind))
}

func varData(d *ast.Decl) ast.VarDeclData {
	switch data := d.Data.(type) {
	case ast.VarDeclData:
		return data
	case *ast.VarDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a variable", d.Kind))
}

func funcData(d *ast.Decl) ast.FuncDeclData {
	switch data := d.Data.(type) {
	case ast.FuncDeclData:
		return data
	case *ast.FuncDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a function", d.Kind))
}
