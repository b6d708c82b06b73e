package csdiag

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/source"
)

// StepKind names one access step of a locator path.
type StepKind uint8

const (
	// StepApplyArgument descends into the argument of a call.
	StepApplyArgument StepKind = iota
	// StepApplyFunction descends into the callee of a call.
	StepApplyFunction
	// StepTupleElement descends into one element of a tuple literal.
	StepTupleElement
	// StepAssignSource descends into the right side of an assignment.
	StepAssignSource
	// StepAssignDest descends into the left side of an assignment.
	StepAssignDest
	// StepMember descends into the base of a member access.
	StepMember
	// StepOptionalPayload descends through an optional wrapper.
	StepOptionalPayload
	// StepGenericArgument names one generic argument position; it never
	// descends but tightens the reported position.
	StepGenericArgument
)

func (k StepKind) String() string {
	switch k {
	case StepApplyArgument:
		return "argument"
	case StepApplyFunction:
		return "function"
	case StepTupleElement:
		return "tuple element"
	case StepAssignSource:
		return "assign source"
	case StepAssignDest:
		return "assign dest"
	case StepMember:
		return "member"
	case StepOptionalPayload:
		return "optional payload"
	case StepGenericArgument:
		return "generic argument"
	default:
		return fmt.Sprintf("StepKind(%d)", k)
	}
}

// Step is one element of a locator path.
type Step struct {
	Kind  StepKind
	Index int
	Name  string
}

// Locator pins a constraint to a place in the tree: an anchor expression
// plus a path of access steps taken from it.
type Locator struct {
	Anchor *ast.Expr
	Path   []Step
}

// Simplified is the result of walking a locator path as far as the tree
// shape allows.
type Simplified struct {
	// Anchor is the tightest sub-expression the path reaches.
	Anchor *ast.Expr
	// Consumed counts how many path steps the walk resolved.
	Consumed int
	// Callee is the function expression of the innermost call stepped
	// through, for a supplementary note. Nil when no call was involved.
	Callee *ast.Expr
}

// Simplify walks the path, re-deriving a more specific anchor at each step
// until the tree shape no longer matches. Walking stops early rather than
// guessing; an unconsumed tail just means a wider reported range.
func (l Locator) Simplify() Simplified {
	out := Simplified{Anchor: l.Anchor}
	if l.Anchor == nil {
		return out
	}
	for _, step := range l.Path {
		next := descend(unparen(out.Anchor), step, &out)
		if next == nil {
			break
		}
		out.Anchor = next
		out.Consumed++
	}
	out.Anchor = unparen(out.Anchor)
	return out
}

func descend(e *ast.Expr, step Step, out *Simplified) *ast.Expr {
	if e == nil {
		return nil
	}
	switch step.Kind {
	case StepApplyArgument:
		if data, ok := e.Data.(ast.CallData); ok {
			out.Callee = unparen(data.Fn)
			return data.Arg
		}
	case StepApplyFunction:
		if data, ok := e.Data.(ast.CallData); ok {
			out.Callee = unparen(data.Fn)
			return data.Fn
		}
	case StepTupleElement:
		switch data := e.Data.(type) {
		case ast.TupleData:
			if step.Index >= 0 && step.Index < len(data.Elems) {
				return data.Elems[step.Index]
			}
		case ast.TupleShuffleData:
			return data.Sub
		}
	case StepAssignSource:
		if data, ok := e.Data.(ast.AssignData); ok {
			return data.Src
		}
	case StepAssignDest:
		if data, ok := e.Data.(ast.AssignData); ok {
			return data.Dest
		}
	case StepMember:
		if data, ok := e.Data.(ast.MemberRefData); ok {
			return data.Base
		}
	case StepOptionalPayload:
		switch data := e.Data.(type) {
		case ast.InjectOptionalData:
			return data.Sub
		case ast.ForceData:
			return data.Sub
		}
	case StepGenericArgument:
		// Position-only refinement.
	}
	return nil
}

// Span returns the source range of the simplified anchor.
func (s Simplified) Span() source.Span {
	if s.Anchor == nil {
		return source.Span{}
	}
	return s.Anchor.Span
}

// CalleeDecl resolves the stepped-through callee to its declaration when
// the callee is a plain reference.
func (s Simplified) CalleeDecl() *ast.Decl {
	if s.Anchor == nil || s.Callee == nil {
		return nil
	}
	switch data := s.Callee.Data.(type) {
	case ast.DeclRefData:
		return data.Decl
	case ast.MemberRefData:
		return data.Decl
	}
	return nil
}

func unparen(e *ast.Expr) *ast.Expr {
	for e != nil {
		if data, ok := e.Data.(ast.ParenData); ok {
			e = data.Sub
			continue
		}
		return e
	}
	return nil
}
