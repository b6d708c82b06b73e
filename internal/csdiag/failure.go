package csdiag

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/types"
)

// FailureKind tags one structured failure the solver recorded before
// giving up.
type FailureKind uint8

const (
	// FailTypeMismatch records two types that would not unify.
	FailTypeMismatch FailureKind = iota
	// FailTupleArity records tuples of different lengths.
	FailTupleArity
	// FailMissingMember records a member lookup that found nothing.
	FailMissingMember
	// FailDoesNotConform records a failed protocol-conformance check.
	FailDoesNotConform
	// FailForceNonOptional records force-unwrap of a non-optional.
	FailForceNonOptional
	// FailExtraArgument records a call argument no parameter accepts.
	FailExtraArgument
	// FailMissingArgument records a parameter no argument supplies.
	FailMissingArgument
	// FailOutOfOrderArgument records a labeled argument in the wrong
	// position.
	FailOutOfOrderArgument
	// FailNotCallable records application of a non-function value.
	FailNotCallable
	// FailAssignToImmutable records a write to immutable storage.
	FailAssignToImmutable
	// FailGenericArgumentCount records a generic application with the
	// wrong number of arguments.
	FailGenericArgumentCount
)

func (k FailureKind) String() string {
	switch k {
	case FailTypeMismatch:
		return "type mismatch"
	case FailTupleArity:
		return "tuple arity"
	case FailMissingMember:
		return "missing member"
	case FailDoesNotConform:
		return "does not conform"
	case FailForceNonOptional:
		return "force non-optional"
	case FailExtraArgument:
		return "extra argument"
	case FailMissingArgument:
		return "missing argument"
	case FailOutOfOrderArgument:
		return "out-of-order argument"
	case FailNotCallable:
		return "not callable"
	case FailAssignToImmutable:
		return "assign to immutable"
	case FailGenericArgumentCount:
		return "generic argument count"
	default:
		return fmt.Sprintf("FailureKind(%d)", k)
	}
}

// Failure is one structured record from a frozen failed solver state. Not
// every field applies to every kind; unused ones are zero.
type Failure struct {
	Kind   FailureKind
	First  types.TypeID
	Second types.TypeID
	// Name is the member, parameter, or argument label involved.
	Name string
	// Index is the argument or tuple-element position involved, or -1.
	Index int
	Loc   Locator
}

// OverloadChoice records which declaration one candidate solution picked
// at one locator anchor.
type OverloadChoice struct {
	Anchor *ast.Expr
	Decl   *ast.Decl
}

// Solution is one candidate the solver could not decide between.
type Solution struct {
	Choices []OverloadChoice
}

// ConstraintKind orders the live-constraint fallback scan: lower values
// are more specific and win.
type ConstraintKind uint8

const (
	// ConstraintMember requires a type to have a named member.
	ConstraintMember ConstraintKind = iota
	// ConstraintConformance requires a type to conform to a protocol.
	ConstraintConformance
	// ConstraintOverload requires picking one of several declarations.
	ConstraintOverload
	// ConstraintConversion requires one type to convert to another.
	ConstraintConversion
	// ConstraintArgument requires an argument to match a parameter.
	ConstraintArgument
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintMember:
		return "member"
	case ConstraintConformance:
		return "conformance"
	case ConstraintOverload:
		return "overload"
	case ConstraintConversion:
		return "conversion"
	case ConstraintArgument:
		return "argument"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", k)
	}
}

// Constraint is one unsolved edge of the live constraint graph, used only
// when the solver recorded no structured Failure.
type Constraint struct {
	Kind   ConstraintKind
	First  types.TypeID
	Second types.TypeID
	Name   string
	Loc    Locator
}

// State is the frozen solver output handed to the diagnoser: structured
// failures if the solver produced any, leftover candidate solutions when
// it found too many, and the raw constraint graph as a last resort.
type State struct {
	Failures    []Failure
	Solutions   []Solution
	Constraints []Constraint
}
