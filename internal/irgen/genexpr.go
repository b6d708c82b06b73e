package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// emitScalar lowers an expression and forwards it as one owned value.
func (f *funcEmitter) emitScalar(e *ast.Expr) ir.Value {
	rv := f.emitRValueExpr(e)
	return rv.ForwardAsSingle(f)
}

// emitManagedExpr lowers an expression to a single value whose cleanup
// stays registered.
func (f *funcEmitter) emitManagedExpr(e *ast.Expr) ManagedValue {
	rv := f.emitRValueExpr(e)
	rv.checkLive()
	if !rv.Complete() {
		panic("irgen: managed access to incomplete rvalue")
	}
	if len(rv.elems) == 1 {
		rv.used = true
		return rv.elems[0]
	}
	v := rv.ForwardAsSingle(f)
	ti := f.conv().Lowered(v.Type, 0)
	if ti.Trivial {
		return unmanaged(v)
	}
	return managed(v, f.cleanups.PushRelease(v, CleanupActive))
}

// emitRValueExpr is the main expression visitor. Every case produces a
// complete rvalue owning its result.
func (f *funcEmitter) emitRValueExpr(e *ast.Expr) RValue {
	switch e.Kind {
	case ast.ExprIntLit:
		data := e.Data.(ast.IntLitData)
		return scalarRValue(f.conv(), e.Type, unmanaged(f.b.ConstInt(e.Type, data.Value)))

	case ast.ExprFloatLit:
		data := e.Data.(ast.FloatLitData)
		return scalarRValue(f.conv(), e.Type, unmanaged(f.b.ConstFloat(e.Type, data.Value)))

	case ast.ExprBoolLit:
		data := e.Data.(ast.BoolLitData)
		return scalarRValue(f.conv(), e.Type, unmanaged(f.b.ConstBool(e.Type, data.Value)))

	case ast.ExprStringLit:
		data := e.Data.(ast.StringLitData)
		v := f.b.ConstString(e.Type, data.Value)
		h := f.cleanups.PushRelease(v, CleanupActive)
		return scalarRValue(f.conv(), e.Type, managed(v, h))

	case ast.ExprNilLit:
		v := f.b.InjectOptional(ir.NoValue, e.Type)
		return f.ownResult(v, e.Type)

	case ast.ExprDeclRef:
		return f.emitDeclRefRValue(e)

	case ast.ExprMemberRef:
		return f.emitMemberRValue(e)

	case ast.ExprSubscript:
		lv := f.emitLValue(e, accessRead)
		return f.emitLoadOfLValue(lv)

	case ast.ExprTuple:
		return f.emitTupleRValue(e)

	case ast.ExprTupleElement:
		return f.emitTupleElementRValue(e)

	case ast.ExprTupleShuffle:
		return f.emitShuffleRValue(e)

	case ast.ExprCall:
		return f.emitCallExpr(e)

	case ast.ExprClosure:
		return f.emitClosureValue(e)

	case ast.ExprIf:
		return f.emitIfExpr(e)

	case ast.ExprAssign:
		data := e.Data.(ast.AssignData)
		f.writebacks.pushScope()
		lv := f.emitLValue(data.Dest, accessWrite)
		src := f.emitRValueExpr(data.Src)
		f.emitAssignToLValue(src, lv)
		f.popWritebackScope()
		return newRValue(f.conv(), e.Type)

	case ast.ExprInOut:
		panic(fmt.Errorf("irgen: inout expression outside a call at %v", e.Span))

	case ast.ExprForce:
		data := e.Data.(ast.ForceData)
		if f.conv().Lowered(data.Sub.Type, 0).AddressOnly {
			panic(fmt.Errorf("unimplemented: force-unwrap of address-only optional at %v", e.Span))
		}
		opt := f.emitScalar(data.Sub)
		return f.ownResult(f.b.OptionalExtract(opt), e.Type)

	case ast.ExprOptionalEval:
		return f.emitOptionalEval(e)

	case ast.ExprOptionalBind:
		return f.emitOptionalBind(e)

	case ast.ExprInjectOptional:
		data := e.Data.(ast.InjectOptionalData)
		v := f.emitScalar(data.Sub)
		return f.ownResult(f.b.InjectOptional(v, e.Type), e.Type)

	case ast.ExprDerivedToBase:
		data := e.Data.(ast.DerivedToBaseData)
		v := f.emitScalar(data.Sub)
		return f.ownResult(f.b.Upcast(v, e.Type), e.Type)

	case ast.ExprErasure:
		return f.emitErasure(e)

	case ast.ExprCheckedCast:
		return f.emitCheckedCast(e)

	case ast.ExprMetatype:
		data := e.Data.(ast.MetatypeData)
		return scalarRValue(f.conv(), e.Type, unmanaged(f.b.Metatype(data.Instance)))

	case ast.ExprDefaultArg:
		data := e.Data.(ast.DefaultArgData)
		v := f.emitDefaultArg(data.Callee, data.Index, e.Type)
		return f.ownResult(v, e.Type)

	case ast.ExprParen:
		return f.emitRValueExpr(e.Data.(ast.ParenData).Sub)

	default:
		panic(fmt.Errorf("irgen: unhandled expression kind %s", e.Kind))
	}
}

// ownResult wraps a freshly produced loadable value with the cleanup its
// type requires.
func (f *funcEmitter) ownResult(v ir.Value, ty types.TypeID) RValue {
	ti := f.conv().Lowered(ty, 0)
	if ti.Trivial {
		return scalarRValue(f.conv(), ty, unmanaged(v))
	}
	h := f.cleanups.PushRelease(v, CleanupActive)
	return scalarRValue(f.conv(), ty, managed(v, h))
}

// Declaration references -------------------------------------------------

func (f *funcEmitter) emitDeclRefRValue(e *ast.Expr) RValue {
	d := e.Data.(ast.DeclRefData).Decl
	switch d.Kind {
	case ast.DeclParam:
		loc, ok := f.vars[d]
		if !ok {
			panic(fmt.Errorf("irgen: reference to unbound parameter %q", d.Name()))
		}
		if loc.kind == locDirect {
			return f.copyDirect(loc.v, e.Type)
		}
		return f.loadFromAddr(f.varAddr(d), false)

	case ast.DeclVar:
		data := varData(d)
		if data.IsComputed() {
			return f.emitGetterCall(data.Get, ManagedValue{}, false, nil, false)
		}
		if data.Global {
			return f.loadFromAddr(f.emitGlobalAddr(d), false)
		}
		loc, ok := f.vars[d]
		if !ok {
			panic(fmt.Errorf("irgen: reference to unbound variable %q", data.Name))
		}
		if loc.kind == locDirect {
			return f.copyDirect(loc.v, e.Type)
		}
		return f.loadFromAddr(f.varAddr(d), false)

	case ast.DeclFunc:
		return f.emitFunctionValue(d, e.Type)

	default:
		panic(fmt.Errorf("irgen: reference to %s is not a value", d.Kind))
	}
}

// copyDirect duplicates a direct binding so the binding stays live.
func (f *funcEmitter) copyDirect(v ir.Value, ty types.TypeID) RValue {
	ti := f.conv().Lowered(ty, 0)
	if ti.Trivial {
		return scalarRValue(f.conv(), ty, unmanaged(v))
	}
	f.emitCopyLeaves(v, ti)
	h := f.cleanups.PushRelease(v, CleanupActive)
	return scalarRValue(f.conv(), ty, managed(v, h))
}

// emitFunctionValue turns a named function into a first-class value,
// referencing the single-list curry thunk for curried definitions.
func (f *funcEmitter) emitFunctionValue(d *ast.Decl, ty types.TypeID) RValue {
	ref := lowering.DeclRef(d, lowering.RefFunc)
	if len(funcData(d).ParamLists) > 1 {
		ref = ref.AtUncurry(0)
	}
	fn := f.mod.ensureEmitted(ref)
	thin := f.b.FunctionRef(fn.Name, fn.ID, fn.Type)
	thick := f.b.ThinToThick(thin, ty)
	return f.ownResult(thick, ty)
}

// Member access ----------------------------------------------------------

func (f *funcEmitter) emitMemberRValue(e *ast.Expr) RValue {
	data := e.Data.(ast.MemberRefData)
	member := data.Decl

	if member.Kind == ast.DeclFunc && funcData(member).Role == ast.RoleFree {
		// A method used as a value binds its receiver now.
		base := f.emitMethodBase(data.Base)
		mdata := funcData(member)
		ref := lowering.DeclRef(member, lowering.RefFunc)
		fnVal := f.methodFunctionValue(ref, mdata.SelfType, base.Value, data.Super)
		bound := f.b.PartialApply(fnVal, []ir.Value{base.Forward(&f.cleanups)}, e.Type)
		return f.ownResult(bound, e.Type)
	}

	if member.Kind == ast.DeclVar && !varData(member).IsComputed() {
		baseTT := f.types().MustLookup(data.Base.Type)
		if baseTT.Kind == types.KindClass {
			ref := f.emitManagedExpr(data.Base)
			idx, fieldTy := f.storedFieldIndex(data.Base.Type, member)
			addr := f.b.RefElementAddr(ref.Value, member.Name(), idx, fieldTy)
			return f.loadFromAddr(addr, false)
		}
		if !f.conv().Lowered(data.Base.Type, 0).AddressOnly {
			base := f.emitScalar(data.Base)
			idx, fieldTy := f.storedFieldIndex(data.Base.Type, member)
			v := f.b.StructExtract(base, member.Name(), idx, fieldTy)
			return f.copyDirect(v, fieldTy)
		}
	}

	lv := f.emitLValue(e, accessRead)
	return f.emitLoadOfLValue(lv)
}

// Tuples -----------------------------------------------------------------

func (f *funcEmitter) emitTupleRValue(e *ast.Expr) RValue {
	data := e.Data.(ast.TupleData)
	if f.conv().Lowered(e.Type, 0).AddressOnly {
		tmp := f.emitTemporary(e.Type)
		for i, el := range data.Elems {
			elemAddr := f.b.TupleElementAddr(tmp.Value, i)
			f.emitAssignInto(f.emitRValueExpr(el), elemAddr, true)
		}
		h := f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
		return scalarRValue(f.conv(), e.Type, managed(tmp.Value, h))
	}

	rv := newRValue(f.conv(), e.Type)
	for _, el := range data.Elems {
		rv.Add(f.emitRValueExpr(el))
	}
	if !rv.Complete() {
		panic(fmt.Errorf("irgen: tuple literal produced %d of %d leaves", len(rv.elems), rv.wanted))
	}
	return rv
}

func (f *funcEmitter) emitTupleElementRValue(e *ast.Expr) RValue {
	data := e.Data.(ast.TupleElementData)

	if f.conv().Lowered(data.Base.Type, 0).AddressOnly {
		baseRV := f.emitRValueExpr(data.Base)
		addr := baseRV.Forward(&f.cleanups)[0]
		elemAddr := f.b.TupleElementAddr(addr, data.Index)
		rv := f.loadFromAddr(elemAddr, false)
		f.b.DestroyAddr(addr)
		return rv
	}

	baseRV := f.emitRValueExpr(data.Base)
	parts := baseRV.Extract(f.conv())
	var out RValue
	for i, part := range parts {
		if i == data.Index {
			out = part
			continue
		}
		f.discard(part)
	}
	return out
}

// emitShuffleRValue rebuilds a shuffled tuple as a value, synthesizing
// defaulted and variadic destinations.
func (f *funcEmitter) emitShuffleRValue(e *ast.Expr) RValue {
	data := e.Data.(ast.TupleShuffleData)
	info, ok := f.types().TupleInfo(e.Type)
	if !ok {
		panic(fmt.Errorf("irgen: shuffle of non-tuple type %s", f.typeName(e.Type)))
	}
	srcExprs := shuffleSources(data.Sub)

	variadic := make(map[int]bool, len(data.VariadicSources))
	for _, src := range data.VariadicSources {
		variadic[src] = true
	}

	srcRVs := make(map[int]RValue, len(srcExprs))
	var variadicVals []ir.Value
	for i, src := range srcExprs {
		if variadic[i] {
			variadicVals = append(variadicVals, f.emitScalar(src))
			continue
		}
		srcRVs[i] = f.emitRValueExpr(src)
	}

	rv := newRValue(f.conv(), e.Type)
	for dest, src := range data.Mapping {
		switch src {
		case ast.ShuffleDefault:
			v := f.emitDefaultArg(data.Callee, dest, info.Elems[dest])
			rv.Add(f.ownResult(v, info.Elems[dest]))
		case ast.ShuffleVariadic:
			arrTy := f.types().Array(data.VariadicElem)
			arr := f.b.Builtin("array_literal", variadicVals, arrTy)
			rv.Add(f.ownResult(arr, arrTy))
		default:
			sub := srcRVs[src]
			rv.Add(sub)
		}
	}
	return rv
}

// Conditionals -----------------------------------------------------------

// emitIfExpr lowers a conditional expression through a join block taking
// the chosen branch's value as an argument. Address-only results converge
// in a shared temporary instead.
func (f *funcEmitter) emitIfExpr(e *ast.Expr) RValue {
	data := e.Data.(ast.IfData)
	cond := f.emitScalar(data.Cond)

	resultInfo := f.conv().Lowered(e.Type, 0)
	thenB := f.b.NewBlock()
	elseB := f.b.NewBlock()

	if resultInfo.AddressOnly {
		tmp := f.emitTemporary(e.Type)
		join := f.b.NewBlock()
		f.b.CondBr(cond, thenB, nil, elseB, nil)

		f.emitBranchInto(thenB, data.Then, tmp.Value, join)
		f.emitBranchInto(elseB, data.Else, tmp.Value, join)

		f.b.SetInsert(join)
		h := f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
		return scalarRValue(f.conv(), e.Type, managed(tmp.Value, h))
	}

	if f.isUnit(e.Type) {
		join := f.b.NewBlock()
		f.b.CondBr(cond, thenB, nil, elseB, nil)
		f.emitBranchValue(thenB, data.Then, join, false)
		f.emitBranchValue(elseB, data.Else, join, false)
		f.b.SetInsert(join)
		return newRValue(f.conv(), e.Type)
	}

	arg := f.fn.NewValue(e.Type, false)
	join := f.b.NewBlock(arg)
	f.b.CondBr(cond, thenB, nil, elseB, nil)
	f.emitBranchValue(thenB, data.Then, join, true)
	f.emitBranchValue(elseB, data.Else, join, true)

	f.b.SetInsert(join)
	return f.ownResult(arg, e.Type)
}

func (f *funcEmitter) emitBranchValue(blk ir.BlockID, e *ast.Expr, join ir.BlockID, carries bool) {
	f.b.SetInsert(blk)
	depth := f.cleanups.Depth()
	if carries {
		v := f.emitScalar(e)
		f.cleanups.PopThrough(f.b, depth)
		f.b.Br(join, v)
		return
	}
	rv := f.emitRValueExpr(e)
	f.discard(rv)
	f.cleanups.PopThrough(f.b, depth)
	f.b.Br(join)
}

func (f *funcEmitter) emitBranchInto(blk ir.BlockID, e *ast.Expr, dest ir.Value, join ir.BlockID) {
	f.b.SetInsert(blk)
	depth := f.cleanups.Depth()
	rv := f.emitRValueExpr(e)
	f.emitAssignInto(rv, dest, true)
	f.cleanups.PopThrough(f.b, depth)
	f.b.Br(join)
}

// Optional chains --------------------------------------------------------

// emitOptionalEval opens a chain context: binds inside the sub-expression
// short-circuit to a shared none block feeding the join.
func (f *funcEmitter) emitOptionalEval(e *ast.Expr) RValue {
	data := e.Data.(ast.OptionalEvalData)
	if f.conv().Lowered(e.Type, 0).AddressOnly {
		panic(fmt.Errorf("unimplemented: optional chain of address-only type at %v", e.Span))
	}

	arg := f.fn.NewValue(e.Type, false)
	cont := f.b.NewBlock(arg)
	noneB := f.b.NewBlock()

	entry := f.b.CurrentBlock()
	f.b.SetInsert(noneB)
	none := f.b.InjectOptional(ir.NoValue, e.Type)
	f.b.Br(cont, none)
	f.b.SetInsert(entry)

	f.chains = append(f.chains, optionalChain{
		depth:        data.Depth,
		contBlock:    cont,
		noneBlock:    noneB,
		cleanupDepth: f.cleanups.Depth(),
		resultTy:     e.Type,
	})

	depth := f.cleanups.Depth()
	v := f.emitScalar(data.Sub)
	f.cleanups.PopThrough(f.b, depth)
	f.b.Br(cont, v)
	f.chains = f.chains[:len(f.chains)-1]

	f.b.SetInsert(cont)
	return f.ownResult(arg, e.Type)
}

// emitOptionalBind projects an optional payload inside a chain or jumps
// to the chain's none block.
func (f *funcEmitter) emitOptionalBind(e *ast.Expr) RValue {
	data := e.Data.(ast.OptionalBindData)
	chain := f.findChain(data.Depth)

	opt := f.emitScalar(data.Sub)
	has := f.b.OptionalHasValue(opt)
	someB := f.b.NewBlock()
	noneJmp := f.b.NewBlock()
	f.b.CondBr(has, someB, nil, noneJmp, nil)

	f.b.SetInsert(noneJmp)
	f.cleanups.EmitThrough(f.b, chain.cleanupDepth)
	f.b.Br(chain.noneBlock)

	f.b.SetInsert(someB)
	payload := f.b.OptionalExtract(opt)
	return f.ownResult(payload, e.Type)
}

func (f *funcEmitter) findChain(depth int) optionalChain {
	for i := len(f.chains) - 1; i >= 0; i-- {
		if f.chains[i].depth == depth {
			return f.chains[i]
		}
	}
	panic(fmt.Errorf("irgen: optional bind outside its chain (depth %d)", depth))
}

// Existentials and casts -------------------------------------------------

// emitErasure boxes a concrete value into an existential, making sure the
// witness tables the conversion relies on exist in the module.
func (f *funcEmitter) emitErasure(e *ast.Expr) RValue {
	data := e.Data.(ast.ErasureData)
	for _, c := range data.Conformances {
		f.mod.ensureWitnessTable(c)
	}

	concrete := f.emitManagedExpr(data.Sub)
	tmp := f.emitTemporary(e.Type)
	f.b.Builtin("existential_init", []ir.Value{tmp.Value, concrete.Forward(&f.cleanups)}, f.mod.unitType())
	h := f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
	return scalarRValue(f.conv(), e.Type, managed(tmp.Value, h))
}

// emitCheckedCast lowers runtime-checked casts: conditional casts branch
// into an optional-producing join, unconditional ones trap in place.
func (f *funcEmitter) emitCheckedCast(e *ast.Expr) RValue {
	data := e.Data.(ast.CheckedCastData)

	if !data.Conditional {
		v := f.emitScalar(data.Sub)
		return f.ownResult(f.b.UncondCast(v, data.Cast, data.Target), e.Type)
	}

	v := f.emitScalar(data.Sub)

	castArg := f.fn.NewValue(data.Target, false)
	succB := f.b.NewBlock(castArg)
	failB := f.b.NewBlock()
	joinArg := f.fn.NewValue(e.Type, false)
	join := f.b.NewBlock(joinArg)

	f.b.CheckedCastBr(v, data.Cast, succB, failB)

	f.b.SetInsert(succB)
	some := f.b.InjectOptional(castArg, e.Type)
	f.b.Br(join, some)

	f.b.SetInsert(failB)
	none := f.b.InjectOptional(ir.NoValue, e.Type)
	f.b.Br(join, none)

	f.b.SetInsert(join)
	return f.ownResult(joinArg, e.Type)
}
