package lowering

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/source"
)

// RefKind distinguishes which entry point of a declaration a FuncRef names.
type RefKind uint8

const (
	// RefFunc is a plain function or method body.
	RefFunc RefKind = iota
	// RefGetter reads a computed variable or subscript.
	RefGetter
	// RefSetter writes a computed variable or subscript.
	RefSetter
	// RefAllocator is the heap-allocating constructor entry of a class, or
	// the whole constructor of a value type.
	RefAllocator
	// RefInitializer is the initializing constructor entry, taking already
	// allocated storage.
	RefInitializer
	// RefEnumElement injects a payload into a sum-type case.
	RefEnumElement
	// RefDestructor is the destroying destructor entry of a class.
	RefDestructor
	// RefGlobalAccessor returns the address of a lazily initialized
	// global.
	RefGlobalAccessor
	// RefDefaultArg generates one default argument value for a function.
	RefDefaultArg
)

func (k RefKind) String() string {
	switch k {
	case RefFunc:
		return "func"
	case RefGetter:
		return "getter"
	case RefSetter:
		return "setter"
	case RefAllocator:
		return "allocator"
	case RefInitializer:
		return "initializer"
	case RefEnumElement:
		return "enumelt"
	case RefDestructor:
		return "destructor"
	case RefGlobalAccessor:
		return "globalaccessor"
	case RefDefaultArg:
		return "defaultarg"
	default:
		return fmt.Sprintf("RefKind(%d)", k)
	}
}

// NaturalUncurry asks for the definition's own uncurry level.
const NaturalUncurry uint8 = 0xFF

// FuncRef identifies one entry point for a function-like entity: exactly
// one of Decl or Closure is set. It is a cheap value type and a valid map
// key; every field participates in equality.
type FuncRef struct {
	Decl    *ast.Decl
	Closure *ast.Expr

	Kind    RefKind
	Uncurry uint8
	Foreign bool
	// DefaultArg is the parameter index for RefDefaultArg entries.
	DefaultArg int
}

// DeclRef builds a reference to a declaration's entry point.
func DeclRef(d *ast.Decl, kind RefKind) FuncRef {
	if d == nil {
		panic("lowering: FuncRef with nil decl")
	}
	return FuncRef{Decl: d, Kind: kind, Uncurry: NaturalUncurry}
}

// ClosureRef builds a reference to an anonymous closure's body.
func ClosureRef(e *ast.Expr) FuncRef {
	if e == nil || e.Kind != ast.ExprClosure {
		panic("lowering: FuncRef closure of non-closure expression")
	}
	return FuncRef{Closure: e, Kind: RefFunc, Uncurry: NaturalUncurry}
}

// DefaultArgRef builds a reference to a default-argument generator.
func DefaultArgRef(d *ast.Decl, index int) FuncRef {
	r := DeclRef(d, RefDefaultArg)
	r.DefaultArg = index
	return r
}

// IsClosure reports whether the reference names an anonymous closure.
func (r FuncRef) IsClosure() bool {
	return r.Closure != nil
}

// AtUncurry returns a copy pinned to an explicit uncurry level.
func (r FuncRef) AtUncurry(level uint8) FuncRef {
	r.Uncurry = level
	return r
}

// AsForeign returns a copy referencing the foreign entry point.
func (r FuncRef) AsForeign() FuncRef {
	r.Foreign = true
	return r
}

// Span returns the source anchor of the referenced entity.
func (r FuncRef) Span() source.Span {
	if r.Closure != nil {
		return r.Closure.Span
	}
	if r.Decl != nil {
		return r.Decl.Span
	}
	return source.Span{}
}

// Name returns the referenced declaration's name, or "" for closures.
func (r FuncRef) Name() string {
	if r.Closure != nil {
		return ""
	}
	return r.Decl.Name()
}

func (r FuncRef) String() string {
	name := r.Name()
	if name == "" {
		name = "<closure>"
	}
	s := fmt.Sprintf("%s.%s", name, r.Kind)
	if r.Uncurry != NaturalUncurry {
		s += fmt.Sprintf("@%d", r.Uncurry)
	}
	if r.Foreign {
		s += "[foreign]"
	}
	return s
}
