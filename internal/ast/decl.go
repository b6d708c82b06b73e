package ast

import (
	"fmt"

	"quill/internal/source"
	"quill/internal/types"
)

// DeclKind enumerates declaration kinds.
type DeclKind uint8

const (
	// DeclFunc represents a named function or method (accessors included).
	DeclFunc DeclKind = iota
	// DeclParam represents a formal parameter.
	DeclParam
	// DeclVar represents a stored or computed variable.
	DeclVar
	// DeclSubscript represents a subscript declaration.
	DeclSubscript
	// DeclStruct represents a struct declaration.
	DeclStruct
	// DeclClass represents a class declaration.
	DeclClass
	// DeclProtocol represents a protocol declaration.
	DeclProtocol
	// DeclConstructor represents an initializer declaration.
	DeclConstructor
	// DeclDestructor represents a class destructor.
	DeclDestructor
	// DeclPatternBinding binds a pattern to an initializer expression.
	DeclPatternBinding
)

func (k DeclKind) String() string {
	switch k {
	case DeclFunc:
		return "Func"
	case DeclParam:
		return "Param"
	case DeclVar:
		return "Var"
	case DeclSubscript:
		return "Subscript"
	case DeclStruct:
		return "Struct"
	case DeclClass:
		return "Class"
	case DeclProtocol:
		return "Protocol"
	case DeclConstructor:
		return "Constructor"
	case DeclDestructor:
		return "Destructor"
	case DeclPatternBinding:
		return "PatternBinding"
	default:
		return fmt.Sprintf("DeclKind(%d)", k)
	}
}

// Decl is a resolved declaration node. Declaration identity is pointer
// identity: two *Decl values reference the same declaration iff they are
// the same pointer.
type Decl struct {
	Kind DeclKind
	Span source.Span
	Data any
}

// Name returns the declared name, or "" for anonymous declarations.
func (d *Decl) Name() string {
	if d == nil {
		return ""
	}
	switch data := d.Data.(type) {
	case FuncDeclData:
		return data.Name
	case *FuncDeclData:
		return data.Name
	case ParamDeclData:
		return data.Name
	case *ParamDeclData:
		return data.Name
	case VarDeclData:
		return data.Name
	case *VarDeclData:
		return data.Name
	case StructDeclData:
		return data.Name
	case *StructDeclData:
		return data.Name
	case ClassDeclData:
		return data.Name
	case *ClassDeclData:
		return data.Name
	case ProtocolDeclData:
		return data.Name
	case *ProtocolDeclData:
		return data.Name
	case SubscriptDeclData:
		return "subscript"
	case *SubscriptDeclData:
		return "subscript"
	case CtorDeclData:
		return "init"
	case *CtorDeclData:
		return "init"
	case DtorDeclData:
		return "deinit"
	case *DtorDeclData:
		return "deinit"
	}
	return ""
}

// AccessorRole distinguishes why a function declaration exists.
type AccessorRole uint8

const (
	// RoleFree is a plain function or method.
	RoleFree AccessorRole = iota
	// RoleGetter reads a computed variable or subscript.
	RoleGetter
	// RoleSetter writes a computed variable or subscript.
	RoleSetter
)

// FuncDeclData carries a function-like declaration. A method has SelfType
// set; a curried function has more than one parameter list.
type FuncDeclData struct {
	Name       string
	SelfType   types.TypeID // NoTypeID for free functions
	ParamLists [][]*Decl    // DeclParam entries, outermost list first
	Result     types.TypeID
	Body       []*Stmt

	Role AccessorRole
	// Storage is the var/subscript declaration an accessor belongs to.
	Storage *Decl
	// OverrideOf names the superclass member this method overrides.
	OverrideOf *Decl
	// FromExtension marks members introduced outside the primary
	// declaration; they get no inherited vtable slot.
	FromExtension bool
	// Foreign marks members dispatched through the foreign convention.
	Foreign bool
	// DefaultArgs holds one entry per flattened parameter; non-nil entries
	// are the default expressions emitted as generator functions.
	DefaultArgs []*Expr
}

// ParamDeclData carries a formal parameter.
type ParamDeclData struct {
	Name  string
	Type  types.TypeID
	InOut bool
}

// VarDeclData carries a stored or computed variable. Computed variables
// have Get (and optionally Set); stored ones have neither.
type VarDeclData struct {
	Name    string
	Type    types.TypeID
	Mutable bool
	Global  bool
	Get     *Decl
	Set     *Decl
	// Init is the initial-value expression for globals emitted through the
	// lazy accessor path.
	Init *Expr
}

// IsComputed reports whether access goes through accessors.
func (v VarDeclData) IsComputed() bool {
	return v.Get != nil
}

// SubscriptDeclData carries a subscript declaration.
type SubscriptDeclData struct {
	Owner   types.TypeID
	Indices []*Decl // DeclParam entries
	Elem    types.TypeID
	Get     *Decl
	Set     *Decl
}

// StructDeclData carries a struct declaration.
type StructDeclData struct {
	Name   string
	Type   types.TypeID
	Fields []*Decl // stored DeclVar entries, in layout order
	// Members lists methods, computed vars, and subscripts.
	Members []*Decl
	Ctors   []*Decl
	// MemberwiseCtor is the synthesized positional initializer.
	MemberwiseCtor *Decl
}

// ClassDeclData carries a class declaration.
type ClassDeclData struct {
	Name       string
	Type       types.TypeID
	Superclass *Decl // DeclClass or nil for roots
	Fields     []*Decl
	// Members lists dynamically-dispatched members in declaration order.
	Members []*Decl
	Ctors   []*Decl
	Dtor    *Decl
}

// ProtocolDeclData carries a protocol declaration. Requirements are kept
// in declaration order and drive witness-table layout.
type ProtocolDeclData struct {
	Name         string
	Type         types.TypeID
	Requirements []*Decl
}

// CtorDeclData carries an initializer. For classes the allocator entry
// point is synthesized around it.
type CtorDeclData struct {
	Owner  types.TypeID
	Params []*Decl
	Body   []*Stmt
	// Memberwise initializers store each argument into the matching field
	// positionally; Body is empty for them.
	Memberwise bool
}

// DtorDeclData carries a class destructor.
type DtorDeclData struct {
	Owner types.TypeID
	Body  []*Stmt
}

// PatternBindingData binds a pattern to an optional initializer.
type PatternBindingData struct {
	Pattern *Pattern
	Init    *Expr
}
