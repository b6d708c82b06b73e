package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/ir"
	"quill/internal/source"
	"quill/internal/types"
)

// componentKind enumerates l-value path components.
type componentKind uint8

const (
	// compAddrRoot is a known address: local storage, an inout parameter,
	// or a global's accessor result.
	compAddrRoot componentKind = iota
	// compRefRoot is a class reference value serving as a projection base.
	compRefRoot
	// compTupleElement projects one tuple element by index.
	compTupleElement
	// compStructElement projects one stored struct field.
	compStructElement
	// compRefElement projects one stored class field through a reference.
	compRefElement
	// compAccessor goes through a getter/setter pair. The only logical
	// component: it has no address until materialized.
	compAccessor
)

func (k componentKind) physical() bool {
	return k != compAccessor
}

// pathComponent is one step of an l-value path. Accessor components carry
// their index arguments pre-evaluated so the expressions run exactly once
// no matter how many times the component is consulted.
type pathComponent struct {
	kind componentKind
	ty   types.TypeID // type of the projected storage

	addr  ir.Value // compAddrRoot
	ref   ir.Value // compRefRoot
	index int      // element components
	field string

	storage   *ast.Decl // compAccessor: var or subscript decl
	getter    *ast.Decl
	setter    *ast.Decl
	super     bool
	indexRV   *RValue
	indexExpr *ast.Expr

	span source.Span
}

// LValue is an evaluated l-value path: a root followed by projections.
// Evaluation order of bases and indexes is fixed at emitLValue time.
type LValue struct {
	comps []pathComponent
	span  source.Span
}

// IsPhysical reports whether the whole path resolves to an address
// without accessor calls.
func (lv *LValue) IsPhysical() bool {
	for i := range lv.comps {
		if !lv.comps[i].kind.physical() {
			return false
		}
	}
	return true
}

func (lv *LValue) last() *pathComponent {
	if len(lv.comps) == 0 {
		panic("irgen: empty lvalue path")
	}
	return &lv.comps[len(lv.comps)-1]
}

// accessKind distinguishes read-only paths from ones needing writeback.
type accessKind uint8

const (
	accessRead accessKind = iota
	accessWrite
)

// emitLValue evaluates an expression as an assignable path. Base
// expressions and subscript indexes are evaluated here, exactly once.
func (f *funcEmitter) emitLValue(e *ast.Expr, access accessKind) LValue {
	switch e.Kind {
	case ast.ExprParen:
		return f.emitLValue(e.Data.(ast.ParenData).Sub, access)

	case ast.ExprDeclRef:
		return f.emitDeclRefLValue(e, access)

	case ast.ExprMemberRef:
		return f.emitMemberLValue(e, access)

	case ast.ExprSubscript:
		return f.emitSubscriptLValue(e, access)

	case ast.ExprTupleElement:
		data := e.Data.(ast.TupleElementData)
		lv := f.emitLValue(data.Base, access)
		lv.comps = append(lv.comps, pathComponent{
			kind: compTupleElement, ty: e.Type, index: data.Index, span: e.Span,
		})
		return lv

	case ast.ExprInOut:
		return f.emitLValue(e.Data.(ast.InOutData).Sub, access)

	case ast.ExprForce:
		panic(fmt.Errorf("unimplemented: assignment through force-unwrap at %v", e.Span))

	default:
		panic(fmt.Errorf("irgen: expression kind %s is not an lvalue", e.Kind))
	}
}

func (f *funcEmitter) emitDeclRefLValue(e *ast.Expr, access accessKind) LValue {
	d := e.Data.(ast.DeclRefData).Decl
	switch d.Kind {
	case ast.DeclParam:
		return LValue{span: e.Span, comps: []pathComponent{{
			kind: compAddrRoot, ty: e.Type, addr: f.varAddr(d), span: e.Span,
		}}}
	case ast.DeclVar:
		data := varData(d)
		if data.IsComputed() {
			setter := data.Set
			if access == accessWrite && setter == nil {
				f.reportGetOnlyMutation(e.Span, data.Name)
			}
			return LValue{span: e.Span, comps: []pathComponent{{
				kind: compAccessor, ty: e.Type,
				storage: d, getter: data.Get, setter: setter, span: e.Span,
			}}}
		}
		if data.Global {
			return LValue{span: e.Span, comps: []pathComponent{{
				kind: compAddrRoot, ty: e.Type, addr: f.emitGlobalAddr(d), span: e.Span,
			}}}
		}
		return LValue{span: e.Span, comps: []pathComponent{{
			kind: compAddrRoot, ty: e.Type, addr: f.varAddr(d), span: e.Span,
		}}}
	default:
		panic(fmt.Errorf("irgen: declaration kind %s is not storage", d.Kind))
	}
}

func (f *funcEmitter) emitMemberLValue(e *ast.Expr, access accessKind) LValue {
	data := e.Data.(ast.MemberRefData)
	member := data.Decl
	baseTy := data.Base.Type
	baseKind := f.types().MustLookup(baseTy).Kind

	var lv LValue
	if baseKind == types.KindClass {
		// Class bases are reference values; evaluate once.
		ref := f.emitManagedExpr(data.Base)
		lv = LValue{span: e.Span, comps: []pathComponent{{
			kind: compRefRoot, ty: baseTy, ref: ref.Value, span: data.Base.Span,
		}}}
	} else {
		lv = f.emitLValue(data.Base, access)
	}

	if member.Kind == ast.DeclVar {
		mdata := varData(member)
		if !mdata.IsComputed() {
			idx, fieldTy := f.storedFieldIndex(baseTy, member)
			kind := compStructElement
			if baseKind == types.KindClass {
				kind = compRefElement
			}
			lv.comps = append(lv.comps, pathComponent{
				kind: kind, ty: fieldTy, index: idx, field: mdata.Name, span: e.Span,
			})
			return lv
		}
		setter := mdata.Set
		if access == accessWrite && setter == nil {
			f.reportGetOnlyMutation(e.Span, mdata.Name)
		}
		lv.comps = append(lv.comps, pathComponent{
			kind: compAccessor, ty: e.Type,
			storage: member, getter: mdata.Get, setter: setter,
			super: data.Super, span: e.Span,
		})
		return lv
	}
	panic(fmt.Errorf("irgen: member %s is not assignable storage", member.Kind))
}

func (f *funcEmitter) emitSubscriptLValue(e *ast.Expr, access accessKind) LValue {
	data := e.Data.(ast.SubscriptData)
	sub := subscriptData(data.Decl)
	setter := sub.Set
	if access == accessWrite && setter == nil {
		f.reportGetOnlyMutation(e.Span, "subscript")
	}

	baseKind := f.types().MustLookup(data.Base.Type).Kind
	var lv LValue
	if baseKind == types.KindClass {
		ref := f.emitManagedExpr(data.Base)
		lv = LValue{span: e.Span, comps: []pathComponent{{
			kind: compRefRoot, ty: data.Base.Type, ref: ref.Value, span: data.Base.Span,
		}}}
	} else {
		lv = f.emitLValue(data.Base, access)
	}

	// Index arguments are pegged: evaluated once, shared between the
	// getter and any writeback setter.
	idx := f.emitRValueExpr(data.Index)
	lv.comps = append(lv.comps, pathComponent{
		kind: compAccessor, ty: e.Type,
		storage: data.Decl, getter: sub.Get, setter: setter,
		indexRV: &idx, indexExpr: data.Index, span: e.Span,
	})
	return lv
}

// reportGetOnlyMutation flags a mutation through storage that has no
// setter. Lowering continues read-only so one pass surfaces every
// independent error.
func (f *funcEmitter) reportGetOnlyMutation(sp source.Span, name string) {
	diag.ReportError(f.reporter(), diag.LowInvalidAddressUse, sp,
		fmt.Sprintf("cannot assign through get-only storage %q", name)).Emit()
}

// storedFieldIndex finds a stored member's layout position.
func (f *funcEmitter) storedFieldIndex(owner types.TypeID, member *ast.Decl) (int, types.TypeID) {
	name := member.Name()
	if info, ok := f.types().StructInfo(owner); ok {
		for i, fd := range info.Fields {
			if fd.Name == name {
				return i, fd.Type
			}
		}
	}
	if info, ok := f.types().ClassInfo(owner); ok {
		for i, fd := range info.Fields {
			if fd.Name == name {
				return i, fd.Type
			}
		}
	}
	panic(fmt.Errorf("irgen: stored field %q not found in %s", name, f.typeName(owner)))
}

// Address / load / assign through a path ---------------------------------

// emitAddressOfLValue resolves the path to a single address. Logical
// components are materialized into temporaries; when the access is a
// write, a writeback to the setter is registered in the innermost scope.
func (f *funcEmitter) emitAddressOfLValue(lv LValue, access accessKind) ir.Value {
	var addr ir.Value
	var ref ir.Value
	haveRef := false

	for i := range lv.comps {
		c := &lv.comps[i]
		switch c.kind {
		case compAddrRoot:
			addr = c.addr
			haveRef = false
		case compRefRoot:
			ref = c.ref
			haveRef = true
		case compTupleElement:
			addr = f.b.TupleElementAddr(addr, c.index)
		case compStructElement:
			addr = f.b.StructElementAddr(addr, c.field, c.index, c.ty)
		case compRefElement:
			if !haveRef {
				panic("irgen: ref_element projection without a class base")
			}
			addr = f.b.RefElementAddr(ref, c.field, c.index, c.ty)
			haveRef = false
		case compAccessor:
			base, hasBase := f.accessorBase(addr, ref, haveRef, i)
			addr = f.materializeAccessor(c, base, hasBase, access)
			haveRef = false
		default:
			panic(fmt.Errorf("irgen: unhandled lvalue component %d", c.kind))
		}
	}
	if !addr.IsValid() {
		panic("irgen: lvalue path produced no address")
	}
	return addr
}

// accessorBase picks the self argument for an accessor component from the
// path walked so far. Index 0 means a free computed variable: no base.
func (f *funcEmitter) accessorBase(addr ir.Value, ref ir.Value, haveRef bool, i int) (ManagedValue, bool) {
	if i == 0 {
		return ManagedValue{}, false
	}
	if haveRef {
		return unmanaged(ref), true
	}
	return unmanaged(addr), true
}

// materializeAccessor calls the getter into a temporary and, for writes,
// schedules the matching setter call.
func (f *funcEmitter) materializeAccessor(c *pathComponent, base ManagedValue, hasBase bool, access accessKind) ir.Value {
	// The setter's copy of the index must be split off before the getter
	// consumes the pegged original.
	var idxCopy *RValue
	if access == accessWrite && c.setter != nil && c.indexRV != nil {
		dup := c.indexRV.Copy(f)
		idxCopy = &dup
	}

	value := f.emitGetterCall(c.getter, base, hasBase, c.indexRV, c.super)
	temp := f.emitTemporary(c.ty)
	f.emitAssignInto(value, temp.Value, true)

	// A missing setter was already diagnosed when the path was built;
	// the temporary still serves the read side.
	if access == accessWrite && c.setter != nil {
		f.addWriteback(writeback{
			storage: c.storage, setter: c.setter,
			base: base, hasBase: hasBase,
			index: idxCopy, indexExpr: c.indexExpr,
			temp: temp.Value, span: c.span,
		})
	}
	return temp.Value
}

// emitLoadOfLValue reads the current value of the path. A trailing
// accessor component calls its getter directly instead of materializing.
func (f *funcEmitter) emitLoadOfLValue(lv LValue) RValue {
	last := lv.last()
	if last.kind == compAccessor {
		prefix := LValue{comps: lv.comps[:len(lv.comps)-1], span: lv.span}
		base, hasBase := f.lvaluePrefixBase(prefix)
		return f.emitGetterCall(last.getter, base, hasBase, last.indexRV, last.super)
	}
	addr := f.emitAddressOfLValue(lv, accessRead)
	return f.loadFromAddr(addr, false)
}

// emitAssignToLValue writes src through the path. A trailing accessor
// component becomes a direct setter call; physical paths store in place.
func (f *funcEmitter) emitAssignToLValue(src RValue, lv LValue) {
	last := lv.last()
	if last.kind == compAccessor {
		prefix := LValue{comps: lv.comps[:len(lv.comps)-1], span: lv.span}
		base, hasBase := f.lvaluePrefixBase(prefix)
		if last.setter == nil {
			// Already diagnosed while building the path; drop the value so
			// its cleanups still run.
			f.discard(src)
			return
		}
		f.emitSetterCall(last.setter, base, hasBase, last.indexRV, src, last.super)
		return
	}
	addr := f.emitAddressOfLValue(lv, accessWrite)
	f.emitAssignInto(src, addr, false)
}

// lvaluePrefixBase resolves the path up to (not including) a trailing
// accessor, yielding that accessor's self argument.
func (f *funcEmitter) lvaluePrefixBase(prefix LValue) (ManagedValue, bool) {
	if len(prefix.comps) == 0 {
		return ManagedValue{}, false
	}
	if len(prefix.comps) == 1 && prefix.comps[0].kind == compRefRoot {
		return unmanaged(prefix.comps[0].ref), true
	}
	addr := f.emitAddressOfLValue(prefix, accessRead)
	return unmanaged(addr), true
}

func subscriptData(d *ast.Decl) ast.SubscriptDeclData {
	switch data := d.Data.(type) {
	case ast.SubscriptDeclData:
		return data
	case *ast.SubscriptDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a subscript", d.Kind))
}
