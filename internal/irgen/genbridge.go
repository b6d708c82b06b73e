package irgen

import (
	"quill/internal/ast"
	"quill/internal/convention"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// emitForeignThunk emits the C-convention entry of a foreign-exposed
// declaration. Parameters arrive in their bridged representation, bridge
// back to native, and forward to the native entry; the result bridges the
// other way.
func (m *ModuleEmitter) emitForeignThunk(f *funcEmitter, d *ast.Decl, ref lowering.FuncRef) {
	data := funcData(d)
	native := m.ensureEmitted(lowering.DeclRef(d, ref.Kind))

	b := f.b

	var params []ir.Value
	addParam := func(ty types.TypeID) ir.Value {
		v := b.NewBlockParam(ty, m.Conv.Lowered(ty, 0).AddressOnly)
		params = append(params, v)
		return v
	}

	selfFirst := m.Table.SelfPlacement == convention.PlaceFirst
	hasSelf := data.SelfType != types.NoTypeID
	var selfVal ir.Value
	if hasSelf && selfFirst {
		selfVal = addParam(data.SelfType)
	}
	paramDecls := flattenAllParamDecls(data.ParamLists)
	explicit := make([]ir.Value, 0, len(paramDecls))
	for _, p := range paramDecls {
		explicit = append(explicit, addParam(m.Conv.Bridged(paramData(p).Type)))
	}
	if hasSelf && !selfFirst {
		selfVal = addParam(data.SelfType)
	}

	nativeResult := data.Result
	bridgedResult := m.Conv.Bridged(nativeResult)
	f.fn.Result = bridgedResult

	entry := b.NewBlock(params...)
	b.SetInsert(entry)

	var slots []ir.Value
	args := make([]ir.Value, 0, len(explicit)+1)
	appendArg := func(v ir.Value, nativeTy types.TypeID) {
		if m.Conv.NeedsBridging(nativeTy) {
			v = b.BridgeFromForeign(v, nativeTy)
		}
		if m.Conv.Lowered(nativeTy, 0).AddressOnly && !v.Addr {
			tmp := b.AllocStack(nativeTy)
			b.StoreInit(v, tmp)
			slots = append(slots, tmp)
			v = tmp
		}
		args = append(args, v)
	}
	if hasSelf && selfFirst {
		args = append(args, selfVal)
	}
	for i, p := range paramDecls {
		appendArg(explicit[i], paramData(p).Type)
	}
	if hasSelf && !selfFirst {
		args = append(args, selfVal)
	}

	callee := b.FunctionRef(native.Name, native.ID, native.Type)
	var out ir.Value
	if m.Conv.Lowered(nativeResult, 0).AddressOnly {
		tmp := b.AllocStack(nativeResult)
		b.ApplyIndirect(callee, args, tmp)
		// Address-only natives bridge straight out of their buffer.
		out = b.BridgeToForeign(tmp, bridgedResult)
		slots = append(slots, tmp)
	} else {
		out = b.Apply(callee, args, nativeResult)
		if m.Conv.NeedsBridging(nativeResult) {
			out = b.BridgeToForeign(out, bridgedResult)
		}
	}
	for i := len(slots) - 1; i >= 0; i-- {
		b.DeallocStack(slots[i])
	}
	if bridgedResult == m.unitType() {
		b.ReturnVoid()
	} else {
		b.Return(out)
	}
}

// emitForeignApply calls a C-convention entry: bridgeable loadable
// arguments travel in their foreign representation and the result bridges
// back to native.
func (f *funcEmitter) emitForeignApply(fn ir.Value, explicit []ir.Value, self ir.Value, hasSelf bool, resultTy types.TypeID) RValue {
	conv := f.conv()
	for i, v := range explicit {
		if v.Addr {
			continue
		}
		if bridged := conv.Bridged(v.Type); bridged != v.Type {
			explicit[i] = f.b.BridgeToForeign(v, bridged)
		}
	}
	bridgedResult := conv.Bridged(resultTy)
	rv := f.emitApplyValues(fn, explicit, self, hasSelf, bridgedResult)
	if bridgedResult == resultTy {
		return rv
	}
	v := rv.ForwardAsSingle(f)
	return f.ownResult(f.b.BridgeFromForeign(v, resultTy), resultTy)
}
