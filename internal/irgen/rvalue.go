package irgen

import (
	"fmt"

	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// ManagedValue pairs an emitted value with the cleanup that owns it. A
// value without a cleanup is a borrow or a trivial value.
type ManagedValue struct {
	Value      ir.Value
	Cleanup    CleanupHandle
	HasCleanup bool
}

// unmanaged wraps a value no cleanup is responsible for.
func unmanaged(v ir.Value) ManagedValue {
	return ManagedValue{Value: v}
}

func managed(v ir.Value, h CleanupHandle) ManagedValue {
	return ManagedValue{Value: v, Cleanup: h, HasCleanup: true}
}

// Forward takes ownership out of the cleanup system: the cleanup is
// killed and the raw value returned.
func (mv ManagedValue) Forward(s *CleanupStack) ir.Value {
	if mv.HasCleanup {
		s.Forward(mv.Cleanup)
	}
	return mv.Value
}

// explosionSize returns how many leaf values a loadable rvalue of ty
// carries. Loadable tuples explode recursively; unit carries none;
// everything else, address-only types included, is a single leaf.
func explosionSize(conv *lowering.Converter, ty types.TypeID) int {
	tt := conv.Types().MustLookup(ty)
	switch tt.Kind {
	case types.KindUnit:
		return 0
	case types.KindTuple:
		ti := conv.Lowered(ty, 0)
		if ti.AddressOnly {
			return 1
		}
		info, ok := conv.Types().TupleInfo(ty)
		if !ok {
			panic(fmt.Errorf("irgen: tuple %d has no metadata", ty))
		}
		n := 0
		for _, e := range info.Elems {
			n += explosionSize(conv, e)
		}
		return n
	default:
		return 1
	}
}

// RValue is an exploded value of one semantic type: loadable tuples are
// carried as their leaves so shuffles and stores never rebuild
// intermediate aggregates. An RValue is built up until complete, then
// consumed exactly once.
type RValue struct {
	ty     types.TypeID
	wanted int
	elems  []ManagedValue
	used   bool
}

// newRValue starts an incomplete rvalue of ty.
func newRValue(conv *lowering.Converter, ty types.TypeID) RValue {
	return RValue{ty: ty, wanted: explosionSize(conv, ty)}
}

// completeRValue wraps already-emitted leaves; the count must match the
// type's explosion size exactly.
func completeRValue(conv *lowering.Converter, ty types.TypeID, elems ...ManagedValue) RValue {
	rv := newRValue(conv, ty)
	if len(elems) != rv.wanted {
		panic(fmt.Errorf("irgen: rvalue of %d leaves built with %d", rv.wanted, len(elems)))
	}
	rv.elems = elems
	return rv
}

// scalarRValue wraps a single managed value.
func scalarRValue(conv *lowering.Converter, ty types.TypeID, mv ManagedValue) RValue {
	return completeRValue(conv, ty, mv)
}

// Type returns the semantic type of the whole value.
func (rv *RValue) Type() types.TypeID {
	return rv.ty
}

// Complete reports whether every expected leaf has arrived.
func (rv *RValue) Complete() bool {
	return len(rv.elems) == rv.wanted
}

// Used reports whether the value has been consumed.
func (rv *RValue) Used() bool {
	return rv.used
}

func (rv *RValue) checkLive() {
	if rv.used {
		panic("irgen: rvalue consumed twice")
	}
}

// Add appends a completed sub-value's leaves. Overfilling the explosion
// is an internal error.
func (rv *RValue) Add(sub RValue) {
	rv.checkLive()
	sub.checkLive()
	if !sub.Complete() {
		panic("irgen: adding an incomplete rvalue")
	}
	if len(rv.elems)+len(sub.elems) > rv.wanted {
		panic(fmt.Errorf("irgen: rvalue of %d leaves overfilled to %d",
			rv.wanted, len(rv.elems)+len(sub.elems)))
	}
	rv.elems = append(rv.elems, sub.elems...)
}

// Forward consumes the rvalue, killing its cleanups and returning the raw
// leaves. The caller takes ownership.
func (rv *RValue) Forward(s *CleanupStack) []ir.Value {
	rv.checkLive()
	if !rv.Complete() {
		panic(fmt.Errorf("irgen: forwarding incomplete rvalue (%d of %d leaves)",
			len(rv.elems), rv.wanted))
	}
	rv.used = true
	out := make([]ir.Value, len(rv.elems))
	for i, mv := range rv.elems {
		out[i] = mv.Forward(s)
	}
	return out
}

// ForwardAsSingle consumes the rvalue into one value, rebuilding tuple
// aggregates from the leaves. Unit becomes an explicit unit constant.
func (rv *RValue) ForwardAsSingle(f *funcEmitter) ir.Value {
	vals := rv.Forward(&f.cleanups)
	v, rest := rebuildValue(f, rv.ty, vals)
	if len(rest) != 0 {
		panic(fmt.Errorf("irgen: %d leaves left over rebuilding %s", len(rest), f.typeName(rv.ty)))
	}
	return v
}

// rebuildValue folds leading leaves back into one value of ty, returning
// the unconsumed remainder.
func rebuildValue(f *funcEmitter, ty types.TypeID, vals []ir.Value) (ir.Value, []ir.Value) {
	tt := f.types().MustLookup(ty)
	switch tt.Kind {
	case types.KindUnit:
		return f.b.ConstUnit(ty), vals
	case types.KindTuple:
		if f.conv().Lowered(ty, 0).AddressOnly {
			break
		}
		info, ok := f.types().TupleInfo(ty)
		if !ok {
			panic(fmt.Errorf("irgen: tuple %d has no metadata", ty))
		}
		elems := make([]ir.Value, 0, len(info.Elems))
		rest := vals
		for _, e := range info.Elems {
			var v ir.Value
			v, rest = rebuildValue(f, e, rest)
			elems = append(elems, v)
		}
		return f.b.Tuple(ty, elems), rest
	}
	if len(vals) == 0 {
		panic("irgen: rebuilding a value from no leaves")
	}
	return vals[0], vals[1:]
}

// Extract consumes a complete tuple rvalue into its element rvalues, in
// order. Cleanups transfer to the elements unchanged.
func (rv *RValue) Extract(conv *lowering.Converter) []RValue {
	rv.checkLive()
	if !rv.Complete() {
		panic("irgen: extracting from an incomplete rvalue")
	}
	info, ok := conv.Types().TupleInfo(rv.ty)
	if !ok {
		panic(fmt.Errorf("irgen: extracting elements of non-tuple %d", rv.ty))
	}
	rv.used = true
	out := make([]RValue, 0, len(info.Elems))
	rest := rv.elems
	for _, e := range info.Elems {
		n := explosionSize(conv, e)
		out = append(out, completeRValue(conv, e, rest[:n]...))
		rest = rest[n:]
	}
	return out
}

// Copy produces an independently owned duplicate, retaining refcounted
// leaves and copying address-only ones into fresh temporaries. The
// original stays live.
func (rv *RValue) Copy(f *funcEmitter) RValue {
	rv.checkLive()
	if !rv.Complete() {
		panic("irgen: copying an incomplete rvalue")
	}
	elems := make([]ManagedValue, len(rv.elems))
	for i, mv := range rv.elems {
		elems[i] = f.copyManaged(mv)
	}
	out := newRValue(f.conv(), rv.ty)
	out.elems = elems
	return out
}

// copyManaged duplicates one leaf under the current cleanup scope.
func (f *funcEmitter) copyManaged(mv ManagedValue) ManagedValue {
	ti := f.conv().Lowered(mv.Value.Type, 0)
	switch {
	case mv.Value.Addr && ti.AddressOnly:
		tmp := f.emitTemporary(mv.Value.Type)
		f.b.CopyAddr(mv.Value, tmp.Value, false, true)
		h := f.cleanups.PushDestroyAddr(tmp.Value, CleanupActive)
		return managed(tmp.Value, h)
	case ti.Trivial:
		return unmanaged(mv.Value)
	default:
		f.emitCopyLeaves(mv.Value, ti)
		h := f.cleanups.PushRelease(mv.Value, CleanupActive)
		return managed(mv.Value, h)
	}
}

// emitCopyLeaves retains every refcounted leaf of a loadable value.
func (f *funcEmitter) emitCopyLeaves(v ir.Value, ti *lowering.TypeInfo) {
	for _, path := range ti.RefPaths {
		leaf := v
		for _, step := range path {
			switch step.Kind {
			case lowering.StepTupleElem:
				leaf = f.b.TupleExtract(leaf, step.Index)
			case lowering.StepStructField:
				elemTy := f.structFieldType(leaf.Type, step.Index)
				leaf = f.b.StructExtract(leaf, step.Field, step.Index, elemTy)
			case lowering.StepOptionalPayload:
				// Retaining through an optional needs a presence test in
				// full generality; the payload projection traps on nil, so
				// emit the conservative whole-value retain instead.
				f.b.Retain(v)
				return
			}
		}
		f.b.Retain(leaf)
	}
}

func (f *funcEmitter) structFieldType(ty types.TypeID, index int) types.TypeID {
	info, ok := f.types().StructInfo(ty)
	if !ok || index >= len(info.Fields) {
		panic(fmt.Errorf("irgen: struct field %d of %s out of range", index, f.typeName(ty)))
	}
	return info.Fields[index].Type
}
