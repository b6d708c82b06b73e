package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/convention"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// emitApplyValues performs one full application: implicit self is placed
// per the convention table and address-only results go through a
// caller-allocated buffer. The returned rvalue owns the result.
func (f *funcEmitter) emitApplyValues(fn ir.Value, explicit []ir.Value, self ir.Value, hasSelf bool, resultTy types.TypeID) RValue {
	args := explicit
	if hasSelf {
		if f.table().SelfPlacement == convention.PlaceFirst {
			args = append([]ir.Value{self}, args...)
		} else {
			args = append(args, self)
		}
	}

	resultInfo := f.conv().Lowered(resultTy, 0)
	if resultInfo.AddressOnly {
		tmp := f.emitTemporary(resultTy)
		f.b.ApplyIndirect(fn, args, tmp.Value)
		h := f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
		return scalarRValue(f.conv(), resultTy, managed(tmp.Value, h))
	}

	v := f.b.Apply(fn, args, resultTy)
	if f.isUnit(resultTy) {
		return newRValue(f.conv(), resultTy)
	}
	if resultInfo.Trivial {
		return scalarRValue(f.conv(), resultTy, unmanaged(v))
	}
	h := f.cleanups.PushRelease(v, CleanupActive)
	return scalarRValue(f.conv(), resultTy, managed(v, h))
}

// directFunctionValue materializes a thin reference to a known entry
// point, emitting the entry on demand.
func (f *funcEmitter) directFunctionValue(ref lowering.FuncRef) ir.Value {
	fn := f.mod.ensureEmitted(ref)
	return f.b.FunctionRef(fn.Name, fn.ID, fn.Type)
}

// methodFunctionValue resolves a method entry, going through dynamic
// dispatch for class members and witness lookup for existential bases.
func (f *funcEmitter) methodFunctionValue(ref lowering.FuncRef, baseTy types.TypeID, base ir.Value, super bool) ir.Value {
	tt := f.types().MustLookup(baseTy)
	switch tt.Kind {
	case types.KindClass:
		fn := f.mod.ensureEmitted(ref)
		if super {
			return f.b.SuperMethod(base, ref.Decl, fn.Name, fn.Type)
		}
		if f.mod.isDynamicMember(baseTy, ref.Decl) {
			return f.b.ClassMethod(base, ref.Decl, fn.Name, fn.Type)
		}
		return f.b.FunctionRef(fn.Name, fn.ID, fn.Type)
	case types.KindProtocol:
		req, fnTy := f.mod.requirementSlot(baseTy, ref)
		return f.b.WitnessMethod(base, baseTy, req, ref.Name(), fnTy)
	default:
		return f.directFunctionValue(ref)
	}
}

// Accessor application --------------------------------------------------

// emitGetterCall applies a property or subscript getter.
func (f *funcEmitter) emitGetterCall(getter *ast.Decl, base ManagedValue, hasBase bool, index *RValue, super bool) RValue {
	data := funcData(getter)
	ref := lowering.DeclRef(getter, lowering.RefGetter)
	if data.Foreign {
		ref = ref.AsForeign()
	}

	var args []ir.Value
	if index != nil {
		args = f.lowerArgLeaves(index, subscriptIndexTypes(f, getter))
	}

	fn := f.accessorFunctionValue(ref, data, base, hasBase, super)
	if data.Foreign {
		return f.emitForeignApply(fn, args, base.Value, hasBase, data.Result)
	}
	return f.emitApplyValues(fn, args, base.Value, hasBase, data.Result)
}

// emitSetterCall applies a setter: the new value travels first, then any
// subscript indexes.
func (f *funcEmitter) emitSetterCall(setter *ast.Decl, base ManagedValue, hasBase bool, index *RValue, value RValue, super bool) {
	data := funcData(setter)
	ref := lowering.DeclRef(setter, lowering.RefSetter)
	if data.Foreign {
		ref = ref.AsForeign()
	}

	params := flattenParamTypes(data.ParamLists)
	if len(params) == 0 {
		panic(fmt.Errorf("irgen: setter %q takes no value", setter.Name()))
	}
	args := []ir.Value{f.lowerArg(value, params[0])}
	if index != nil {
		args = append(args, f.lowerArgLeaves(index, params[1:])...)
	}

	fn := f.accessorFunctionValue(ref, data, base, hasBase, super)
	if data.Foreign {
		f.emitForeignApply(fn, args, base.Value, hasBase, data.Result)
		return
	}
	f.emitApplyValues(fn, args, base.Value, hasBase, data.Result)
}

func (f *funcEmitter) accessorFunctionValue(ref lowering.FuncRef, data ast.FuncDeclData, base ManagedValue, hasBase bool, super bool) ir.Value {
	if !hasBase || data.SelfType == types.NoTypeID {
		return f.directFunctionValue(ref)
	}
	return f.methodFunctionValue(ref, data.SelfType, base.Value, super)
}

// subscriptIndexTypes returns the flattened index parameter types of a
// subscript accessor. Getters take the indexes directly; the access paths
// share this shape.
func subscriptIndexTypes(f *funcEmitter, getter *ast.Decl) []types.TypeID {
	return flattenParamTypes(funcData(getter).ParamLists)
}

func flattenParamTypes(lists [][]*ast.Decl) []types.TypeID {
	var out []types.TypeID
	for _, list := range lists {
		for _, p := range list {
			out = append(out, paramData(p).Type)
		}
	}
	return out
}

// Argument lowering ------------------------------------------------------

// lowerArg shapes one complete rvalue for one parameter slot:
// address-only parameters travel by address, everything else by value.
func (f *funcEmitter) lowerArg(rv RValue, paramTy types.TypeID) ir.Value {
	ti := f.conv().Lowered(paramTy, 0)
	if ti.AddressOnly {
		leaves := rv.Forward(&f.cleanups)
		if len(leaves) == 1 && leaves[0].Addr {
			return leaves[0]
		}
		panic(fmt.Errorf("irgen: address-only argument of %s arrived as a value", f.typeName(paramTy)))
	}
	return rv.ForwardAsSingle(f)
}

// lowerArgLeaves distributes a possibly-tuple rvalue across parameter
// slots.
func (f *funcEmitter) lowerArgLeaves(rv *RValue, params []types.TypeID) []ir.Value {
	if len(params) == 0 {
		f.discard(*rv)
		return nil
	}
	if len(params) == 1 {
		return []ir.Value{f.lowerArg(*rv, params[0])}
	}
	parts := rv.Extract(f.conv())
	if len(parts) != len(params) {
		panic(fmt.Errorf("irgen: %d argument elements for %d parameters", len(parts), len(params)))
	}
	out := make([]ir.Value, len(parts))
	for i := range parts {
		out[i] = f.lowerArg(parts[i], params[i])
	}
	return out
}

// Call expressions -------------------------------------------------------

// emitCallExpr lowers a call, flattening nested applications of a curried
// callee into one entry-point invocation when the curry depth allows.
func (f *funcEmitter) emitCallExpr(e *ast.Expr) RValue {
	f.writebacks.pushScope()
	defer f.popWritebackScope()

	// Peel nested calls: innermost callee first, argument lists in source
	// order.
	var argLists []*ast.Expr
	callee := e
	for callee.Kind == ast.ExprCall {
		data := callee.Data.(ast.CallData)
		argLists = append([]*ast.Expr{data.Arg}, argLists...)
		callee = data.Fn
	}
	callee = unparen(callee)

	switch callee.Kind {
	case ast.ExprDeclRef:
		d := callee.Data.(ast.DeclRefData).Decl
		switch d.Kind {
		case ast.DeclFunc:
			return f.emitDirectCall(d, callee, argLists, e.Type, ManagedValue{}, false, false)
		case ast.DeclConstructor:
			return f.emitConstructorCall(d, argLists, e.Type)
		case ast.DeclStruct, ast.DeclClass:
			panic(fmt.Errorf("irgen: bare type used as callee at %v", callee.Span))
		}
	case ast.ExprMemberRef:
		data := callee.Data.(ast.MemberRefData)
		if data.Decl.Kind == ast.DeclFunc {
			base := f.emitMethodBase(data.Base)
			return f.emitDirectCall(data.Decl, callee, argLists, e.Type, base, true, data.Super)
		}
		if data.Decl.Kind == ast.DeclConstructor {
			return f.emitConstructorCall(data.Decl, argLists, e.Type)
		}
	}

	// Indirect call through a function value.
	fnVal := f.emitScalar(callee)
	return f.applyLevels(fnVal, callee.Type, argLists)
}

// emitMethodBase evaluates a method receiver: class instances as
// reference values, value types by address.
func (f *funcEmitter) emitMethodBase(base *ast.Expr) ManagedValue {
	tt := f.types().MustLookup(base.Type)
	switch tt.Kind {
	case types.KindClass, types.KindProtocol, types.KindAnyObject:
		return f.emitManagedExpr(base)
	default:
		lv := f.emitLValueOrTemporary(base)
		return unmanaged(f.emitAddressOfLValue(lv, accessRead))
	}
}

// emitLValueOrTemporary treats non-lvalue receivers (call results, for
// example) by spilling them into a temporary.
func (f *funcEmitter) emitLValueOrTemporary(e *ast.Expr) LValue {
	switch unparen(e).Kind {
	case ast.ExprDeclRef, ast.ExprMemberRef, ast.ExprSubscript, ast.ExprTupleElement, ast.ExprInOut:
		return f.emitLValue(e, accessRead)
	}
	rv := f.emitRValueExpr(e)
	tmp := f.emitTemporary(e.Type)
	f.emitAssignInto(rv, tmp.Value, true)
	if !f.conv().Lowered(e.Type, 0).Trivial {
		f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
	}
	return LValue{span: e.Span, comps: []pathComponent{{
		kind: compAddrRoot, ty: e.Type, addr: tmp.Value, span: e.Span,
	}}}
}

// emitDirectCall applies a known function declaration, consuming as many
// argument lists as the definition's natural uncurry level covers and
// applying any surplus to the returned function value.
func (f *funcEmitter) emitDirectCall(d *ast.Decl, calleeExpr *ast.Expr, argLists []*ast.Expr, resultTy types.TypeID, self ManagedValue, hasSelf, super bool) RValue {
	data := funcData(d)
	natural := len(data.ParamLists)
	if natural == 0 {
		natural = 1
	}

	if len(argLists) < natural {
		// Partial application of a curried definition: reference the
		// matching curry thunk and apply what we have.
		level, err := uncurryLevel(len(argLists))
		if err != nil {
			panic(err)
		}
		ref := lowering.DeclRef(d, lowering.RefFunc).AtUncurry(level)
		fnVal := f.thunkValue(ref, self, hasSelf, data)
		return f.applyLevels(fnVal, calleeExpr.Type, argLists)
	}

	ref := lowering.DeclRef(d, lowering.RefFunc)
	if data.Foreign {
		ref = ref.AsForeign()
	}

	// Argument lists evaluate in source order but the uncurried entry
	// takes the innermost list first, so buffer per level and assemble
	// in reverse.
	levelArgs := make([][]ir.Value, natural)
	innerResult := data.Result
	for level := 0; level < natural; level++ {
		var params []types.TypeID
		if level < len(data.ParamLists) {
			for _, p := range data.ParamLists[level] {
				params = append(params, paramData(p).Type)
			}
		}
		levelArgs[level] = f.emitArgList(argLists[level], params)
	}
	var args []ir.Value
	for level := natural - 1; level >= 0; level-- {
		args = append(args, levelArgs[level]...)
	}

	var fnVal ir.Value
	if hasSelf {
		fnVal = f.methodFunctionValue(ref, data.SelfType, self.Value, super)
	} else {
		fnVal = f.directFunctionValue(ref)
	}
	var rv RValue
	if data.Foreign {
		rv = f.emitForeignApply(fnVal, args, self.Value, hasSelf, innerResult)
	} else {
		rv = f.emitApplyValues(fnVal, args, self.Value, hasSelf, innerResult)
	}

	// Surplus argument lists apply to the returned function value.
	if len(argLists) > natural {
		fn := rv.ForwardAsSingle(f)
		return f.applyLevels(fn, innerResult, argLists[natural:])
	}
	return rv
}

// thunkValue builds a callable value for a partially-applied curried
// definition, closing over self for methods.
func (f *funcEmitter) thunkValue(ref lowering.FuncRef, self ManagedValue, hasSelf bool, data ast.FuncDeclData) ir.Value {
	fn := f.mod.ensureEmitted(ref)
	thin := f.b.FunctionRef(fn.Name, fn.ID, fn.Type)
	if hasSelf {
		thickTy := f.mod.thickFnType(fn.Type)
		return f.b.PartialApply(thin, []ir.Value{self.Value}, thickTy)
	}
	return f.b.ThinToThick(thin, f.mod.thickFnType(fn.Type))
}

// applyLevels applies successive argument lists to a function value,
// re-resolving the signature from the semantic type at each level.
func (f *funcEmitter) applyLevels(fn ir.Value, fnTy types.TypeID, argLists []*ast.Expr) RValue {
	cur := fn
	curTy := fnTy
	var out RValue
	for i, argExpr := range argLists {
		info, ok := f.types().FnInfo(curTy)
		if !ok {
			panic(fmt.Errorf("irgen: applying non-function type %s", f.typeName(curTy)))
		}
		args := f.emitArgList(argExpr, info.Params)
		out = f.emitApplyValues(cur, args, ir.NoValue, false, info.Result)
		curTy = info.Result
		if i < len(argLists)-1 {
			cur = out.ForwardAsSingle(f)
		}
	}
	return out
}

// emitArgList lowers one argument expression against one parameter list.
func (f *funcEmitter) emitArgList(argExpr *ast.Expr, params []types.TypeID) []ir.Value {
	argExpr = unparen(argExpr)
	if len(params) == 0 {
		rv := f.emitRValueExpr(argExpr)
		f.discard(rv)
		return nil
	}
	if len(params) == 1 {
		return []ir.Value{f.emitArgExpr(argExpr, params[0])}
	}
	switch argExpr.Kind {
	case ast.ExprTuple:
		data := argExpr.Data.(ast.TupleData)
		if len(data.Elems) != len(params) {
			panic(fmt.Errorf("irgen: %d arguments for %d parameters", len(data.Elems), len(params)))
		}
		out := make([]ir.Value, len(params))
		for i, el := range data.Elems {
			out[i] = f.emitArgExpr(el, params[i])
		}
		return out
	case ast.ExprTupleShuffle:
		return f.emitShuffledArgs(argExpr, params)
	default:
		rv := f.emitRValueExpr(argExpr)
		return f.lowerArgLeaves(&rv, params)
	}
}

// emitArgExpr lowers one argument expression for one parameter slot.
// Inout arguments resolve to writeback-registered addresses.
func (f *funcEmitter) emitArgExpr(e *ast.Expr, paramTy types.TypeID) ir.Value {
	e = unparen(e)
	if e.Kind == ast.ExprInOut {
		sub := e.Data.(ast.InOutData).Sub
		lv := f.emitLValue(sub, accessWrite)
		return f.emitAddressOfLValue(lv, accessWrite)
	}
	ti := f.conv().Lowered(paramTy, 0)
	if ti.AddressOnly {
		rv := f.emitRValueExpr(e)
		leaves := rv.Forward(&f.cleanups)
		if len(leaves) == 1 && leaves[0].Addr {
			return leaves[0]
		}
		tmp := f.emitTemporary(paramTy)
		if len(leaves) != 1 {
			panic(fmt.Errorf("irgen: address-only argument exploded to %d leaves", len(leaves)))
		}
		f.b.StoreInit(leaves[0], tmp.Value)
		return tmp.Value
	}
	return f.emitScalar(e)
}

// emitShuffledArgs lowers a shuffled argument tuple: sources evaluate in
// source order, then defaulted and variadic destinations are synthesized.
func (f *funcEmitter) emitShuffledArgs(e *ast.Expr, params []types.TypeID) []ir.Value {
	data := e.Data.(ast.TupleShuffleData)
	srcExprs := shuffleSources(data.Sub)

	// Invert the mapping so each source is lowered against the parameter
	// slot it lands in.
	destOf := make(map[int]int, len(srcExprs))
	for dest, src := range data.Mapping {
		if src >= 0 {
			destOf[src] = dest
		}
	}
	variadic := make(map[int]bool, len(data.VariadicSources))
	for _, src := range data.VariadicSources {
		variadic[src] = true
	}

	srcVals := make(map[int]ir.Value, len(srcExprs))
	var variadicVals []ir.Value
	for i, src := range srcExprs {
		switch {
		case variadic[i]:
			variadicVals = append(variadicVals, f.emitScalar(src))
		default:
			dest, ok := destOf[i]
			if !ok {
				panic(fmt.Errorf("irgen: shuffle source %d has no destination", i))
			}
			srcVals[i] = f.emitArgExpr(src, params[dest])
		}
	}

	out := make([]ir.Value, len(data.Mapping))
	for dest, src := range data.Mapping {
		switch src {
		case ast.ShuffleDefault:
			out[dest] = f.emitDefaultArg(data.Callee, dest, params[dest])
		case ast.ShuffleVariadic:
			arrTy := f.types().Array(data.VariadicElem)
			arr := f.b.Builtin("array_literal", variadicVals, arrTy)
			f.cleanups.PushRelease(arr, CleanupActive)
			out[dest] = arr
		default:
			out[dest] = srcVals[src]
		}
	}
	return out
}

// emitDefaultArg calls the callee's default-argument generator for one
// parameter position.
func (f *funcEmitter) emitDefaultArg(callee *ast.Decl, index int, paramTy types.TypeID) ir.Value {
	ref := lowering.DefaultArgRef(callee, index)
	fnVal := f.directFunctionValue(ref)
	rv := f.emitApplyValues(fnVal, nil, ir.NoValue, false, paramTy)
	return rv.ForwardAsSingle(f)
}

func shuffleSources(sub *ast.Expr) []*ast.Expr {
	sub = unparen(sub)
	if sub.Kind == ast.ExprTuple {
		return sub.Data.(ast.TupleData).Elems
	}
	return []*ast.Expr{sub}
}

func unparen(e *ast.Expr) *ast.Expr {
	for e.Kind == ast.ExprParen {
		e = e.Data.(ast.ParenData).Sub
	}
	return e
}

// uncurryLevel narrows a list count to the uncurry encoding.
func uncurryLevel(lists int) (uint8, error) {
	if lists < 1 {
		return 0, fmt.Errorf("irgen: uncurry of %d argument lists", lists)
	}
	level := lists - 1
	if level >= int(lowering.NaturalUncurry) {
		return 0, fmt.Errorf("irgen: uncurry level %d out of range", level)
	}
	return uint8(level), nil
}
