package lowering

import (
	"fmt"
	"sync"

	"quill/internal/types"
)

// StepKind tags one step of a reference-element path.
type StepKind uint8

const (
	// StepTupleElem descends into a tuple element.
	StepTupleElem StepKind = iota
	// StepStructField descends into a struct field.
	StepStructField
	// StepOptionalPayload descends into an optional payload.
	StepOptionalPayload
)

// RefPathStep is one step of the path from an aggregate to a refcounted
// leaf.
type RefPathStep struct {
	Kind  StepKind
	Index int
	Field string
}

// RefPath addresses one refcounted leaf inside a loadable aggregate. The
// empty path means the value itself is the leaf.
type RefPath []RefPathStep

// TypeInfo is the lowered representation of one semantic type under one
// abstraction pattern. Instances are cached and compared by pointer: equal
// queries return the identical object.
type TypeInfo struct {
	// Semantic is the type the query was made for.
	Semantic types.TypeID
	// Lowered is the IR storage type: function types get the pattern's
	// convention applied and bridged parameter/result substitutions.
	Lowered types.TypeID
	// AddressOnly values are manipulated through addresses only.
	AddressOnly bool
	// Trivial values need no reference-count management.
	Trivial bool
	// RefPaths lists every refcounted leaf of a loadable aggregate, in
	// element order. Nil for trivial or address-only types.
	RefPaths []RefPath
}

// Loadable is the inverse of AddressOnly.
func (ti *TypeInfo) Loadable() bool {
	return !ti.AddressOnly
}

type converterKey struct {
	ty      types.TypeID
	uncurry uint8
	pattern AbstractionPattern
}

// Converter lowers semantic types to their IR representations. Queries are
// deterministic, idempotent, and cached; the cache is safe for concurrent
// readers and writers so independent function emissions can share it.
type Converter struct {
	types *types.Interner

	mu    sync.RWMutex
	cache map[converterKey]*TypeInfo
}

// NewConverter creates a converter over an interner.
func NewConverter(in *types.Interner) *Converter {
	return &Converter{
		types: in,
		cache: make(map[converterKey]*TypeInfo, 64),
	}
}

// Types exposes the underlying interner.
func (c *Converter) Types() *types.Interner {
	return c.types
}

// Lowered returns the cached lowering of ty at an uncurry level under the
// default native pattern.
func (c *Converter) Lowered(ty types.TypeID, uncurry uint8) *TypeInfo {
	return c.LoweredPattern(ty, uncurry, NativePattern)
}

// LoweredPattern returns the cached lowering of ty under an explicit
// abstraction pattern. Repeated calls with the same key return the
// identical *TypeInfo.
func (c *Converter) LoweredPattern(ty types.TypeID, uncurry uint8, pattern AbstractionPattern) *TypeInfo {
	if ty == types.NoTypeID {
		panic("lowering: lowering of an unresolved type")
	}
	key := converterKey{ty: ty, uncurry: uncurry, pattern: pattern}

	c.mu.RLock()
	ti, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return ti
	}

	ti = c.compute(ty, uncurry, pattern)

	c.mu.Lock()
	if prior, ok := c.cache[key]; ok {
		// Lost the race; the computation is pure, keep the first entry so
		// identity stays stable.
		ti = prior
	} else {
		c.cache[key] = ti
	}
	c.mu.Unlock()
	return ti
}

func (c *Converter) compute(ty types.TypeID, uncurry uint8, pattern AbstractionPattern) *TypeInfo {
	tt, ok := c.types.Lookup(ty)
	if !ok {
		panic(fmt.Errorf("lowering: ill-formed type %d", ty))
	}

	ti := &TypeInfo{Semantic: ty, Lowered: ty}

	switch tt.Kind {
	case types.KindInvalid:
		panic("lowering: lowering of an invalid type")

	case types.KindUnit, types.KindNever, types.KindBool, types.KindInt,
		types.KindFloat, types.KindForeignBool, types.KindRawPointer,
		types.KindMetatype:
		ti.Trivial = true

	case types.KindString, types.KindArray:
		// Loadable structs around a refcounted buffer.
		ti.RefPaths = []RefPath{nil}

	case types.KindForeignString, types.KindAnyObject, types.KindClass, types.KindBox:
		ti.RefPaths = []RefPath{nil}

	case types.KindProtocol, types.KindArchetype:
		// Unknown layout: always behind an address.
		ti.AddressOnly = true

	case types.KindStruct:
		info, ok := c.types.StructInfo(ty)
		if !ok {
			panic(fmt.Errorf("lowering: struct %d has no metadata", ty))
		}
		if info.Resilient {
			ti.AddressOnly = true
			break
		}
		trivial := true
		for i, f := range info.Fields {
			elem := c.LoweredPattern(f.Type, 0, NativePattern)
			if elem.AddressOnly {
				ti.AddressOnly = true
				ti.RefPaths = nil
				trivial = false
				break
			}
			if !elem.Trivial {
				trivial = false
				step := RefPathStep{Kind: StepStructField, Index: i, Field: f.Name}
				ti.RefPaths = append(ti.RefPaths, prefixPaths(step, elem.RefPaths)...)
			}
		}
		ti.Trivial = trivial && !ti.AddressOnly

	case types.KindTuple:
		info, ok := c.types.TupleInfo(ty)
		if !ok {
			panic(fmt.Errorf("lowering: tuple %d has no metadata", ty))
		}
		trivial := true
		for i, e := range info.Elems {
			elem := c.LoweredPattern(e, 0, NativePattern)
			if elem.AddressOnly {
				ti.AddressOnly = true
				ti.RefPaths = nil
				trivial = false
				break
			}
			if !elem.Trivial {
				trivial = false
				step := RefPathStep{Kind: StepTupleElem, Index: i}
				ti.RefPaths = append(ti.RefPaths, prefixPaths(step, elem.RefPaths)...)
			}
		}
		ti.Trivial = trivial && !ti.AddressOnly

	case types.KindOptional:
		elem := c.LoweredPattern(tt.Elem, 0, NativePattern)
		ti.AddressOnly = elem.AddressOnly
		ti.Trivial = elem.Trivial
		if !elem.Trivial && !elem.AddressOnly {
			step := RefPathStep{Kind: StepOptionalPayload}
			ti.RefPaths = prefixPaths(step, elem.RefPaths)
		}

	case types.KindFn:
		ti.Lowered = c.lowerFn(ty, uncurry, pattern)
		// A thick function owns its context; a thin one is a bare pointer.
		ti.Trivial = pattern.Thin
		if !ti.Trivial {
			ti.RefPaths = []RefPath{nil}
		}

	default:
		panic(fmt.Errorf("lowering: unhandled type kind %s", tt.Kind))
	}

	return ti
}

// lowerFn strips uncurry levels and applies the pattern's convention,
// substituting bridged types at foreign boundaries.
func (c *Converter) lowerFn(ty types.TypeID, uncurry uint8, pattern AbstractionPattern) types.TypeID {
	level := uncurry
	if level == NaturalUncurry {
		level = 0
	}
	params, result := Uncurry(c.types, ty, level)

	if pattern.Convention.IsForeign() {
		for i, p := range params {
			params[i] = c.Bridged(p)
		}
		result = c.Bridged(result)
	}
	return c.types.RegisterFnConv(params, result, pattern.Convention, pattern.Thin)
}

func prefixPaths(step RefPathStep, inner []RefPath) []RefPath {
	if len(inner) == 0 {
		// The element is itself the refcounted leaf.
		return []RefPath{{step}}
	}
	out := make([]RefPath, 0, len(inner))
	for _, p := range inner {
		withStep := make(RefPath, 0, len(p)+1)
		withStep = append(withStep, step)
		withStep = append(withStep, p...)
		out = append(out, withStep)
	}
	return out
}
