package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// entrySignature computes the registered function type for one entry
// point. Implicit arguments (self, captures, indirect result) stay out of
// the type; the convention encodes their presence.
func (m *ModuleEmitter) entrySignature(ref lowering.FuncRef) types.TypeID {
	if ref.IsClosure() {
		data := ref.Closure.Data.(ast.ClosureData)
		params := declParamTypes(data.Params)
		for _, c := range data.Captures {
			ty := capturedType(m, c)
			params = append(params, ty)
		}
		return m.Types.RegisterFnConv(params, data.Result, types.ConvNative, true)
	}

	d := ref.Decl
	switch ref.Kind {
	case lowering.RefFunc, lowering.RefGetter, lowering.RefSetter:
		return m.funcEntryType(funcData(d), ref.Uncurry, ref.Foreign)

	case lowering.RefAllocator, lowering.RefInitializer:
		data := ctorData(d)
		conv := types.ConvNative
		if ref.Kind == lowering.RefInitializer {
			conv = types.ConvMethod
		}
		return m.Types.RegisterFnConv(declParamTypes(data.Params), data.Owner, conv, true)

	case lowering.RefDestructor:
		// Destructors have a fixed entry shape; dtorData checks the decl.
		dtorData(d)
		return m.Types.RegisterFnConv(nil, m.unitType(), types.ConvMethod, true)

	case lowering.RefGlobalAccessor:
		return m.Types.RegisterFnConv(nil, m.rawPointerType(), types.ConvNative, true)

	case lowering.RefDefaultArg:
		data := funcData(d)
		params := flattenAllParams(data.ParamLists)
		if ref.DefaultArg >= len(params) {
			panic(fmt.Errorf("irgen: default argument index %d out of range for %q", ref.DefaultArg, d.Name()))
		}
		return m.Types.RegisterFnConv(nil, params[ref.DefaultArg], types.ConvNative, true)

	case lowering.RefEnumElement:
		panic(fmt.Errorf("unimplemented: enum element constructors (%q)", d.Name()))

	default:
		panic(fmt.Errorf("irgen: entry signature for unknown ref kind %s", ref.Kind))
	}
}

// funcEntryType flattens the argument lists an entry consumes, innermost
// first, and re-curries the rest into the result.
func (m *ModuleEmitter) funcEntryType(data ast.FuncDeclData, uncurry uint8, foreign bool) types.TypeID {
	lists := data.ParamLists
	use := len(lists)
	if use == 0 {
		use = 1
		lists = [][]*ast.Decl{nil}
	}
	if uncurry != lowering.NaturalUncurry {
		use = int(uncurry) + 1
		if use > len(lists) {
			panic(fmt.Errorf("irgen: uncurry level %d exceeds %q's %d lists", uncurry, data.Name, len(lists)))
		}
	}

	result := data.Result
	for i := len(lists) - 1; i >= use; i-- {
		result = m.Types.RegisterFn(declParamTypes(lists[i]), result)
	}

	var params []types.TypeID
	for i := use - 1; i >= 0; i-- {
		params = append(params, declParamTypes(lists[i])...)
	}

	conv := types.ConvNative
	if data.SelfType != types.NoTypeID {
		conv = types.ConvMethod
	}
	if foreign {
		conv = types.ConvC
		if data.SelfType != types.NoTypeID {
			conv = types.ConvForeignMethod
		}
		for i := range params {
			params[i] = m.Conv.Bridged(params[i])
		}
		result = m.Conv.Bridged(result)
	}
	return m.Types.RegisterFnConv(params, result, conv, true)
}

// emitEntry lowers the body for one registered entry point.
func (m *ModuleEmitter) emitEntry(ref lowering.FuncRef, fn *ir.Func) {
	f := newFuncEmitter(m, ref, fn)

	if ref.IsClosure() {
		data := ref.Closure.Data.(ast.ClosureData)
		f.emitProlog(data.Params, types.NoTypeID, data.Captures, data.Result)
		f.emitBody(data.Body)
		return
	}

	d := ref.Decl
	switch ref.Kind {
	case lowering.RefFunc:
		if ref.Foreign {
			m.emitForeignThunk(f, d, ref)
			return
		}
		m.emitFuncEntry(f, d, ref)
	case lowering.RefGetter, lowering.RefSetter:
		if ref.Foreign {
			m.emitForeignThunk(f, d, ref)
			return
		}
		data := funcData(d)
		f.emitProlog(flattenAllParamDecls(data.ParamLists), data.SelfType, nil, data.Result)
		f.emitBody(data.Body)
	case lowering.RefAllocator:
		m.emitAllocator(f, d)
	case lowering.RefInitializer:
		m.emitInitializer(f, d)
	case lowering.RefDestructor:
		m.emitDestructor(f, d)
	case lowering.RefGlobalAccessor:
		m.emitGlobalAccessor(f, d)
	case lowering.RefDefaultArg:
		m.emitDefaultArgGenerator(f, d, ref.DefaultArg)
	default:
		panic(fmt.Errorf("irgen: no body emitter for ref kind %s", ref.Kind))
	}
}

// emitFuncEntry emits either the natural uncurried body or a curry thunk
// for partial uncurry levels.
func (m *ModuleEmitter) emitFuncEntry(f *funcEmitter, d *ast.Decl, ref lowering.FuncRef) {
	data := funcData(d)
	natural := len(data.ParamLists)
	if natural == 0 {
		natural = 1
	}

	level := int(ref.Uncurry)
	if ref.Uncurry == lowering.NaturalUncurry || level == natural-1 {
		f.emitProlog(flattenAllParamDecls(data.ParamLists), data.SelfType, nil, data.Result)
		f.emitBody(data.Body)
		return
	}
	m.emitCurryThunk(f, d, data, level)
}

// emitCurryThunk emits the level-k entry of a curried definition: it
// receives lists 0..k and partially applies the next level, so the outer
// arguments end up bound as the trailing suffix.
func (m *ModuleEmitter) emitCurryThunk(f *funcEmitter, d *ast.Decl, data ast.FuncDeclData, level int) {
	lists := data.ParamLists
	use := level + 1

	result := data.Result
	for i := len(lists) - 1; i >= use; i-- {
		result = m.Types.RegisterFn(declParamTypes(lists[i]), result)
	}

	var paramDecls []*ast.Decl
	for i := use - 1; i >= 0; i-- {
		paramDecls = append(paramDecls, lists[i]...)
	}
	f.emitProlog(paramDecls, data.SelfType, nil, result)

	nextRef := lowering.DeclRef(d, lowering.RefFunc)
	if use+1 < len(lists) {
		lvl, err := uncurryLevel(use + 1)
		if err != nil {
			panic(err)
		}
		nextRef = nextRef.AtUncurry(lvl)
	}
	next := m.ensureEmitted(nextRef)
	thin := f.b.FunctionRef(next.Name, next.ID, next.Type)

	var bound []ir.Value
	for _, p := range paramDecls {
		bound = append(bound, f.paramValue(p))
	}
	if f.hasSelf {
		bound = append(bound, f.selfVal)
	}
	thick := f.b.PartialApply(thin, bound, result)
	f.branchToEpilog(f.ownResult(thick, result))
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

// paramValue reads a bound parameter back as a raw value for forwarding.
func (f *funcEmitter) paramValue(p *ast.Decl) ir.Value {
	loc, ok := f.vars[p]
	if !ok {
		panic(fmt.Errorf("irgen: parameter %q not bound", p.Name()))
	}
	if loc.kind == locDirect {
		return loc.v
	}
	return loc.v
}

// Constructors -----------------------------------------------------------

// emitConstructorCall applies a constructor: value types build in place,
// classes go through the allocating entry.
func (f *funcEmitter) emitConstructorCall(ctor *ast.Decl, argLists []*ast.Expr, resultTy types.TypeID) RValue {
	data := ctorData(ctor)
	if len(argLists) != 1 {
		panic(fmt.Errorf("irgen: constructor applied to %d argument lists", len(argLists)))
	}
	args := f.emitArgList(argLists[0], declParamTypes(data.Params))

	ref := lowering.DeclRef(ctor, lowering.RefAllocator)
	fnVal := f.directFunctionValue(ref)
	return f.emitApplyValues(fnVal, args, ir.NoValue, false, resultTy)
}

// emitAllocator emits the allocating entry. For classes it allocates
// storage and delegates to the initializing entry; for value types it is
// the whole constructor.
func (m *ModuleEmitter) emitAllocator(f *funcEmitter, d *ast.Decl) {
	data := ctorData(d)
	ownerTT := m.Types.MustLookup(data.Owner)

	if ownerTT.Kind == types.KindClass {
		f.emitProlog(data.Params, types.NoTypeID, nil, data.Owner)
		info, _ := m.Types.ClassInfo(data.Owner)

		ref := f.b.AllocRef(data.Owner)
		// Until the initializer completes, failure paths must free raw
		// storage without running a destructor.
		h := f.cleanups.PushDeallocRef(ref, info != nil && info.Foreign)

		initRef := lowering.DeclRef(d, lowering.RefInitializer)
		initFn := m.ensureEmitted(initRef)
		thin := f.b.FunctionRef(initFn.Name, initFn.ID, initFn.Type)

		var args []ir.Value
		for _, p := range data.Params {
			args = append(args, f.paramValue(p))
		}
		out := f.emitApplyValues(thin, args, ref, true, data.Owner)
		f.cleanups.SetState(h, CleanupDead)
		f.branchToEpilog(out)
		f.cleanups.PopThroughSilent(0)
		f.sealEpilog()
		return
	}

	// Value-type constructor: initialize self in a local slot, return it.
	f.emitProlog(data.Params, types.NoTypeID, nil, data.Owner)
	selfAddr := f.b.AllocStack(data.Owner)
	f.cleanups.PushDeallocStack(selfAddr)
	f.selfVal = selfAddr
	f.hasSelf = true

	if data.Memberwise {
		m.emitMemberwiseStores(f, data, selfAddr)
	} else {
		f.emitStmts(data.Body)
	}
	if !f.b.HasTerminator() {
		f.branchToEpilog(f.loadFromAddr(selfAddr, true))
	}
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

// emitMemberwiseStores writes each parameter into the matching stored
// field, positionally.
func (m *ModuleEmitter) emitMemberwiseStores(f *funcEmitter, data ast.CtorDeclData, selfAddr ir.Value) {
	fields := m.storedFields(data.Owner)
	if len(fields) != len(data.Params) {
		panic(fmt.Errorf("irgen: memberwise constructor of %s has %d parameters for %d fields",
			m.Types.Name(data.Owner), len(data.Params), len(fields)))
	}
	for i, p := range data.Params {
		fieldAddr := f.b.StructElementAddr(selfAddr, fields[i].Name, i, fields[i].Type)
		pd := paramData(p)
		v := f.paramValue(p)
		ti := f.conv().Lowered(pd.Type, 0)
		if ti.AddressOnly {
			f.b.CopyAddr(v, fieldAddr, true, true)
		} else {
			f.b.StoreInit(v, fieldAddr)
		}
	}
}

// emitInitializer emits the class initializing entry: self arrives
// allocated and uninitialized, the body runs, self is returned.
func (m *ModuleEmitter) emitInitializer(f *funcEmitter, d *ast.Decl) {
	data := ctorData(d)
	f.emitProlog(data.Params, data.Owner, nil, data.Owner)

	if data.Memberwise {
		fields := m.storedFields(data.Owner)
		for i, p := range data.Params {
			fieldAddr := f.b.RefElementAddr(f.selfVal, fields[i].Name, i, fields[i].Type)
			pd := paramData(p)
			if f.conv().Lowered(pd.Type, 0).AddressOnly {
				f.b.CopyAddr(f.paramValue(p), fieldAddr, true, true)
			} else {
				f.b.StoreInit(f.paramValue(p), fieldAddr)
			}
		}
	} else {
		f.emitStmts(data.Body)
	}
	if !f.b.HasTerminator() {
		f.branchToEpilog(f.ownResult(f.selfVal, data.Owner))
	}
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

// Destructors ------------------------------------------------------------

// emitDestructor runs the body, releases stored fields in reverse order,
// then chains to the superclass destructor or frees the storage.
func (m *ModuleEmitter) emitDestructor(f *funcEmitter, d *ast.Decl) {
	data := dtorData(d)
	f.emitProlog(nil, data.Owner, nil, m.unitType())
	f.emitStmts(data.Body)
	if f.b.HasTerminator() {
		f.cleanups.PopThroughSilent(0)
		f.sealEpilog()
		return
	}

	info, ok := m.Types.ClassInfo(data.Owner)
	if !ok {
		panic(fmt.Errorf("irgen: destructor of non-class %s", m.Types.Name(data.Owner)))
	}
	for i := len(info.Fields) - 1; i >= 0; i-- {
		fd := info.Fields[i]
		ti := f.conv().Lowered(fd.Type, 0)
		if ti.Trivial {
			continue
		}
		addr := f.b.RefElementAddr(f.selfVal, fd.Name, i, fd.Type)
		f.b.DestroyAddr(addr)
	}

	if info.Superclass != types.NoTypeID {
		superDtor := m.classDestructor(info.Superclass)
		if superDtor != nil {
			ref := lowering.DeclRef(superDtor, lowering.RefDestructor)
			fn := m.ensureEmitted(ref)
			thin := f.b.FunctionRef(fn.Name, fn.ID, fn.Type)
			up := f.b.Upcast(f.selfVal, info.Superclass)
			f.b.Apply(thin, []ir.Value{up}, m.unitType())
			f.b.Br(f.epilog)
			f.cleanups.PopThroughSilent(0)
			f.sealEpilog()
			return
		}
	}
	f.b.DeallocRef(f.selfVal, info.Foreign)
	f.b.Br(f.epilog)
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

// Globals ----------------------------------------------------------------

// emitGlobalAddr returns the address of a lazily initialized global by
// calling its accessor.
func (f *funcEmitter) emitGlobalAddr(d *ast.Decl) ir.Value {
	ref := lowering.DeclRef(d, lowering.RefGlobalAccessor)
	fn := f.mod.ensureEmitted(ref)
	thin := f.b.FunctionRef(fn.Name, fn.ID, fn.Type)
	ptr := f.b.Apply(thin, nil, f.mod.rawPointerType())
	return f.b.BuiltinAddr("pointer_to_address", []ir.Value{ptr}, varData(d).Type)
}

// emitGlobalAccessor emits the once-initializing accessor: test the init
// flag, run the initializer on the first passage, return the storage
// address as a pointer.
func (m *ModuleEmitter) emitGlobalAccessor(f *funcEmitter, d *ast.Decl) {
	data := varData(d)
	f.emitProlog(nil, types.NoTypeID, nil, m.rawPointerType())

	storage := "global:" + data.Name
	addr := f.b.BuiltinAddr("global_addr:"+storage, nil, data.Type)
	done := f.b.Builtin("global_is_init:"+storage, nil, m.Types.Builtins().Bool)

	initB := f.b.NewBlock()
	contB := f.b.NewBlock()
	f.b.CondBr(done, contB, nil, initB, nil)

	f.b.SetInsert(initB)
	if data.Init == nil {
		panic(fmt.Errorf("irgen: lazy global %q has no initializer", data.Name))
	}
	depth := f.cleanups.Depth()
	rv := f.emitRValueExpr(data.Init)
	f.emitAssignInto(rv, addr, true)
	f.b.Builtin("global_set_init:"+storage, nil, m.unitType())
	f.cleanups.PopThrough(f.b, depth)
	f.b.Br(contB)

	f.b.SetInsert(contB)
	ptr := f.b.Builtin("address_to_pointer", []ir.Value{addr}, m.rawPointerType())
	f.branchToEpilog(scalarRValue(f.conv(), m.rawPointerType(), unmanaged(ptr)))
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

// Default arguments ------------------------------------------------------

// emitDefaultArgGenerator emits the entry producing one parameter's
// default value.
func (m *ModuleEmitter) emitDefaultArgGenerator(f *funcEmitter, d *ast.Decl, index int) {
	data := funcData(d)
	if index >= len(data.DefaultArgs) || data.DefaultArgs[index] == nil {
		panic(fmt.Errorf("irgen: %q has no default for parameter %d", data.Name, index))
	}
	params := flattenAllParams(data.ParamLists)
	f.emitProlog(nil, types.NoTypeID, nil, params[index])
	rv := f.emitRValueExpr(data.DefaultArgs[index])
	f.branchToEpilog(rv)
	f.cleanups.PopThroughSilent(0)
	f.sealEpilog()
}

// Closures ---------------------------------------------------------------

// emitClosureValue builds a closure: the body entry plus a context of
// classified captures. Immutable captures copy their current value;
// mutable ones share a box.
func (f *funcEmitter) emitClosureValue(e *ast.Expr) RValue {
	data := e.Data.(ast.ClosureData)
	ref := lowering.ClosureRef(e)
	fn := f.mod.ensureEmitted(ref)
	thin := f.b.FunctionRef(fn.Name, fn.ID, fn.Type)

	if len(data.Captures) == 0 {
		return f.ownResult(f.b.ThinToThick(thin, e.Type), e.Type)
	}

	var capVals []ir.Value
	for _, c := range data.Captures {
		capVals = append(capVals, f.captureValue(c))
	}
	thick := f.b.PartialApply(thin, capVals, e.Type)
	return f.ownResult(thick, e.Type)
}

// captureValue produces the context slot for one captured declaration.
func (f *funcEmitter) captureValue(c *ast.Decl) ir.Value {
	data := varData(c)
	loc, ok := f.vars[c]
	if !ok {
		panic(fmt.Errorf("irgen: capture of unbound %q", data.Name))
	}
	if data.Mutable {
		if loc.kind != locBox {
			panic(fmt.Errorf("irgen: mutable capture %q is not boxed", data.Name))
		}
		f.b.Retain(loc.v)
		return loc.v
	}
	switch loc.kind {
	case locDirect:
		rv := f.copyDirect(loc.v, data.Type)
		return rv.ForwardAsSingle(f)
	default:
		rv := f.loadFromAddr(f.varAddr(c), false)
		return rv.ForwardAsSingle(f)
	}
}

// Shared helpers ---------------------------------------------------------

func declParamTypes(params []*ast.Decl) []types.TypeID {
	out := make([]types.TypeID, len(params))
	for i, p := range params {
		out[i] = paramData(p).Type
	}
	return out
}

func flattenAllParams(lists [][]*ast.Decl) []types.TypeID {
	var out []types.TypeID
	for _, list := range lists {
		out = append(out, declParamTypes(list)...)
	}
	return out
}

// flattenAllParamDecls flattens a curried definition's parameter lists in
// entry order: innermost first.
func flattenAllParamDecls(lists [][]*ast.Decl) []*ast.Decl {
	var out []*ast.Decl
	for i := len(lists) - 1; i >= 0; i-- {
		out = append(out, lists[i]...)
	}
	return out
}

func capturedType(m *ModuleEmitter, c *ast.Decl) types.TypeID {
	data := varData(c)
	if data.Mutable {
		return m.Types.Box(data.Type)
	}
	return data.Type
}

func ctorData(d *ast.Decl) ast.CtorDeclData {
	switch data := d.Data.(type) {
	case ast.CtorDeclData:
		return data
	case *ast.CtorDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a constructor", d.Kind))
}

func dtorData(d *ast.Decl) ast.DtorDeclData {
	switch data := d.Data.(type) {
	case ast.DtorDeclData:
		return data
	case *ast.DtorDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a destructor", d.Kind))
}
