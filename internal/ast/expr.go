package ast

import (
	"fmt"

	"quill/internal/source"
	"quill/internal/types"
)

// ExprKind enumerates resolved expression kinds. The tree this package
// describes is the output of the type checker: every node carries a
// resolved type and every reference a resolved declaration.
type ExprKind uint8

const (
	// ExprIntLit represents an integer literal.
	ExprIntLit ExprKind = iota
	// ExprFloatLit represents a floating-point literal.
	ExprFloatLit
	// ExprBoolLit represents a boolean literal.
	ExprBoolLit
	// ExprStringLit represents a string literal.
	ExprStringLit
	// ExprNilLit represents the empty-optional literal.
	ExprNilLit
	// ExprDeclRef represents a resolved reference to a declaration.
	ExprDeclRef
	// ExprMemberRef represents base.member with a resolved member decl.
	ExprMemberRef
	// ExprSubscript represents base[index] with a resolved subscript decl.
	ExprSubscript
	// ExprTuple represents a tuple literal.
	ExprTuple
	// ExprTupleElement represents base.N projection.
	ExprTupleElement
	// ExprTupleShuffle reorders, defaults, and gathers tuple elements to
	// match a callee's parameter shape.
	ExprTupleShuffle
	// ExprCall represents fn(arg); the argument is a single, possibly
	// tuple-typed expression.
	ExprCall
	// ExprClosure represents a closure or local function literal.
	ExprClosure
	// ExprIf represents a conditional (ternary) expression.
	ExprIf
	// ExprAssign represents dest = src (of unit type).
	ExprAssign
	// ExprInOut marks an argument passed by address (&x).
	ExprInOut
	// ExprForce asserts optional presence, trapping on nil.
	ExprForce
	// ExprOptionalBind is one component of an optional chain: project the
	// payload or short-circuit the whole chain to nil.
	ExprOptionalBind
	// ExprOptionalEval is the root of an optional chain; the join point all
	// binds inside it short-circuit to.
	ExprOptionalEval
	// ExprInjectOptional wraps a value into .some of the result optional.
	ExprInjectOptional
	// ExprDerivedToBase upcasts a class reference to a superclass type.
	ExprDerivedToBase
	// ExprErasure converts a concrete value to an existential.
	ExprErasure
	// ExprCheckedCast performs a runtime-checked cast.
	ExprCheckedCast
	// ExprMetatype produces a type object.
	ExprMetatype
	// ExprDefaultArg expands to a call of the callee's default-argument
	// generator for one parameter.
	ExprDefaultArg
	// ExprParen is a no-op grouping node kept for source fidelity.
	ExprParen
)

func (k ExprKind) String() string {
	switch k {
	case ExprIntLit:
		return "IntLit"
	case ExprFloatLit:
		return "FloatLit"
	case ExprBoolLit:
		return "BoolLit"
	case ExprStringLit:
		return "StringLit"
	case ExprNilLit:
		return "NilLit"
	case ExprDeclRef:
		return "DeclRef"
	case ExprMemberRef:
		return "MemberRef"
	case ExprSubscript:
		return "Subscript"
	case ExprTuple:
		return "Tuple"
	case ExprTupleElement:
		return "TupleElement"
	case ExprTupleShuffle:
		return "TupleShuffle"
	case ExprCall:
		return "Call"
	case ExprClosure:
		return "Closure"
	case ExprIf:
		return "If"
	case ExprAssign:
		return "Assign"
	case ExprInOut:
		return "InOut"
	case ExprForce:
		return "Force"
	case ExprOptionalBind:
		return "OptionalBind"
	case ExprOptionalEval:
		return "OptionalEval"
	case ExprInjectOptional:
		return "InjectOptional"
	case ExprDerivedToBase:
		return "DerivedToBase"
	case ExprErasure:
		return "Erasure"
	case ExprCheckedCast:
		return "CheckedCast"
	case ExprMetatype:
		return "Metatype"
	case ExprDefaultArg:
		return "DefaultArg"
	case ExprParen:
		return "Paren"
	default:
		return fmt.Sprintf("ExprKind(%d)", k)
	}
}

// Expr is a resolved expression node. Data holds the payload struct
// matching Kind.
type Expr struct {
	Kind ExprKind
	Type types.TypeID
	Span source.Span
	Data any
}

// IntLitData carries the value of an integer literal.
type IntLitData struct {
	Value int64
	Text  string
}

// FloatLitData carries the value of a float literal.
type FloatLitData struct {
	Value float64
	Text  string
}

// BoolLitData carries the value of a boolean literal.
type BoolLitData struct {
	Value bool
}

// StringLitData carries the value of a string literal.
type StringLitData struct {
	Value string
}

// DeclRefData references a resolved declaration.
type DeclRefData struct {
	Decl *Decl
}

// MemberRefData references a resolved member of a base expression.
type MemberRefData struct {
	Base *Expr
	// Decl is the referenced member: a stored/computed var or a method.
	Decl *Decl
	// Super routes dynamic dispatch through the superclass entry.
	Super bool
}

// SubscriptData references a resolved subscript access.
type SubscriptData struct {
	Base  *Expr
	Decl  *Decl // the subscript declaration
	Index *Expr
}

// TupleData carries tuple literal elements.
type TupleData struct {
	Elems  []*Expr
	Labels []string
}

// TupleElementData projects one element of a tuple-typed base.
type TupleElementData struct {
	Base  *Expr
	Index int
}

// Destination markers for TupleShuffleData.Mapping.
const (
	// ShuffleDefault fills the destination field from the callee's default
	// argument generator.
	ShuffleDefault = -1
	// ShuffleVariadic gathers trailing source elements into one
	// synthesized array value.
	ShuffleVariadic = -2
)

// TupleShuffleData rebuilds a tuple from a permutation of another.
// Mapping has one entry per destination element: a source index, or one of
// the Shuffle* markers above.
type TupleShuffleData struct {
	Sub     *Expr
	Mapping []int
	// Callee identifies the function whose default-argument generators are
	// invoked for ShuffleDefault destinations.
	Callee *Decl
	// VariadicSources lists source indices gathered by ShuffleVariadic.
	VariadicSources []int
	// VariadicElem is the element type of the gathered array.
	VariadicElem types.TypeID
}

// CallData applies a callee to one argument expression.
type CallData struct {
	Fn  *Expr
	Arg *Expr
}

// ClosureData carries a closure literal: parameters, the captured
// declarations in a deterministic order, and the body.
type ClosureData struct {
	Params   []*Decl
	Captures []*Decl
	Body     []*Stmt
	Result   types.TypeID
}

// IfData carries a conditional expression.
type IfData struct {
	Cond *Expr
	Then *Expr
	Else *Expr
}

// AssignData carries dest = src.
type AssignData struct {
	Dest *Expr
	Src  *Expr
}

// InOutData marks an address-taken argument.
type InOutData struct {
	Sub *Expr
}

// ForceData asserts optional presence.
type ForceData struct {
	Sub *Expr
}

// OptionalBindData projects an optional payload inside a chain, keyed by
// the chain depth it short-circuits to.
type OptionalBindData struct {
	Sub   *Expr
	Depth int
}

// OptionalEvalData is the join point of an optional chain.
type OptionalEvalData struct {
	Sub   *Expr
	Depth int
}

// InjectOptionalData wraps the sub-value into .some.
type InjectOptionalData struct {
	Sub *Expr
}

// DerivedToBaseData upcasts to the expression's (superclass) type.
type DerivedToBaseData struct {
	Sub *Expr
}

// ErasureData converts a concrete value to an existential.
type ErasureData struct {
	Sub *Expr
	// Conformances lists, per protocol of the target existential, the
	// conformance supplying the witness table.
	Conformances []*Conformance
}

// CastKind distinguishes runtime-checked cast strategies, precomputed by
// the type checker.
type CastKind uint8

const (
	// CastDowncast narrows a class reference along the hierarchy.
	CastDowncast CastKind = iota
	// CastExistentialToConcrete opens an existential into a concrete type.
	CastExistentialToConcrete
	// CastArchetypeToConcrete resolves a generic parameter at runtime.
	CastArchetypeToConcrete
)

func (k CastKind) String() string {
	switch k {
	case CastDowncast:
		return "downcast"
	case CastExistentialToConcrete:
		return "existential_to_concrete"
	case CastArchetypeToConcrete:
		return "archetype_to_concrete"
	default:
		return fmt.Sprintf("CastKind(%d)", k)
	}
}

// CheckedCastData performs a runtime-checked cast. Conditional casts yield
// an optional of the target type; unconditional casts trap on failure.
type CheckedCastData struct {
	Sub         *Expr
	Cast        CastKind
	Conditional bool
	Target      types.TypeID
}

// MetatypeData produces the type object for Instance.
type MetatypeData struct {
	Instance types.TypeID
}

// DefaultArgData expands a callee's default argument.
type DefaultArgData struct {
	Callee *Decl
	Index  int
}

// ParenData wraps a sub-expression.
type ParenData struct {
	Sub *Expr
}
