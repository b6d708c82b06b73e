package csdiag

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/source"
	"quill/internal/types"
)

// Diagnoser turns a frozen failed solver state into exactly one
// best-effort diagnostic.
type Diagnoser struct {
	Types    *types.Interner
	Reporter diag.Reporter
}

// Diagnose selects and emits the single most useful diagnostic for the
// state: the most specific structured failure when one exists, an
// ambiguity report when multiple solutions survived, and a scan of the
// live constraint graph as a last resort. It reports whether anything was
// emitted.
func (d *Diagnoser) Diagnose(state *State) bool {
	if state == nil {
		return false
	}
	if len(state.Failures) > 0 {
		d.emitFailure(d.bestFailure(state.Failures))
		return true
	}
	if len(state.Solutions) > 1 {
		return d.emitAmbiguity(state.Solutions)
	}
	return d.emitFallback(state.Constraints)
}

// bestFailure picks the failure whose locator resolves deepest into the
// tree; ties keep the first recorded one so output is deterministic.
func (d *Diagnoser) bestFailure(failures []Failure) Failure {
	best := 0
	bestScore := -1
	for i, f := range failures {
		score := f.Loc.Simplify().Consumed
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return failures[best]
}

func (d *Diagnoser) emitFailure(f Failure) {
	s := f.Loc.Simplify()
	b := diag.ReportError(d.Reporter, failureCode(f.Kind), s.Span(), d.failureMessage(f))
	if callee := s.CalleeDecl(); callee != nil {
		b.WithNote(callee.Span, fmt.Sprintf("in call to %q", callee.Name()))
	}
	b.Emit()
}

func failureCode(kind FailureKind) diag.Code {
	switch kind {
	case FailTypeMismatch:
		return diag.TcTypeMismatch
	case FailTupleArity:
		return diag.TcTupleArity
	case FailMissingMember:
		return diag.TcMissingMember
	case FailDoesNotConform:
		return diag.TcDoesNotConform
	case FailForceNonOptional:
		return diag.TcForceNonOptional
	case FailExtraArgument:
		return diag.TcExtraArgument
	case FailMissingArgument:
		return diag.TcMissingArgument
	case FailOutOfOrderArgument:
		return diag.TcOutOfOrderArgument
	case FailNotCallable:
		return diag.TcNotCallable
	case FailAssignToImmutable:
		return diag.TcAssignToImmutable
	case FailGenericArgumentCount:
		return diag.TcGenericArgumentCount
	default:
		return diag.TcInfo
	}
}

func (d *Diagnoser) failureMessage(f Failure) string {
	name := d.Types.Name
	switch f.Kind {
	case FailTypeMismatch:
		return fmt.Sprintf("cannot convert value of type %q to expected type %q", name(f.First), name(f.Second))
	case FailTupleArity:
		return fmt.Sprintf("tuple types %q and %q have a different number of elements", name(f.First), name(f.Second))
	case FailMissingMember:
		return fmt.Sprintf("value of type %q has no member %q", name(f.First), f.Name)
	case FailDoesNotConform:
		return fmt.Sprintf("type %q does not conform to protocol %q", name(f.First), name(f.Second))
	case FailForceNonOptional:
		return fmt.Sprintf("cannot force unwrap value of non-optional type %q", name(f.First))
	case FailExtraArgument:
		if f.Name != "" {
			return fmt.Sprintf("extra argument %q in call", f.Name)
		}
		return "extra argument in call"
	case FailMissingArgument:
		if f.Name != "" {
			return fmt.Sprintf("missing argument for parameter %q in call", f.Name)
		}
		if f.Index >= 0 {
			return fmt.Sprintf("missing argument for parameter #%d in call", f.Index+1)
		}
		return "missing argument in call"
	case FailOutOfOrderArgument:
		return fmt.Sprintf("argument %q must precede the following arguments", f.Name)
	case FailNotCallable:
		return fmt.Sprintf("cannot call value of non-function type %q", name(f.First))
	case FailAssignToImmutable:
		if f.Name != "" {
			return fmt.Sprintf("cannot assign to %q", f.Name)
		}
		return "cannot assign to immutable value"
	case FailGenericArgumentCount:
		return fmt.Sprintf("generic type %q requires a different number of type arguments", name(f.First))
	default:
		return "type constraint failure"
	}
}

// emitAmbiguity reports the anchor whose overload resolution diverged the
// most across the surviving solutions, with one note per candidate. When
// every anchor resolved the same way the ambiguity has no single culprit
// and a generic diagnostic covers the root expression.
func (d *Diagnoser) emitAmbiguity(solutions []Solution) bool {
	type slot struct {
		anchor     *ast.Expr
		candidates []*ast.Decl
	}
	var slots []*slot
	bySite := make(map[*ast.Expr]*slot)

	for _, sol := range solutions {
		for _, choice := range sol.Choices {
			if choice.Anchor == nil || choice.Decl == nil {
				continue
			}
			s, ok := bySite[choice.Anchor]
			if !ok {
				s = &slot{anchor: choice.Anchor}
				bySite[choice.Anchor] = s
				slots = append(slots, s)
			}
			if !containsDecl(s.candidates, choice.Decl) {
				s.candidates = append(s.candidates, choice.Decl)
			}
		}
	}

	var best *slot
	for _, s := range slots {
		if best == nil || len(s.candidates) > len(best.candidates) {
			best = s
		}
	}
	if best == nil || len(best.candidates) < 2 {
		sp := source.Span{}
		for _, sol := range solutions {
			for _, choice := range sol.Choices {
				if choice.Anchor != nil {
					sp = choice.Anchor.Span
					break
				}
			}
		}
		diag.ReportError(d.Reporter, diag.TcAmbiguousExpr, sp,
			"expression is ambiguous without more context").Emit()
		return true
	}

	b := diag.ReportError(d.Reporter, diag.TcAmbiguousRef, best.anchor.Span,
		fmt.Sprintf("ambiguous use of %q", refName(best.anchor, best.candidates[0])))
	for _, cand := range best.candidates {
		b.WithNote(cand.Span, "found this candidate")
	}
	b.Emit()
	return true
}

func refName(anchor *ast.Expr, fallback *ast.Decl) string {
	switch data := anchor.Data.(type) {
	case ast.DeclRefData:
		return data.Decl.Name()
	case ast.MemberRefData:
		return data.Decl.Name()
	}
	return fallback.Name()
}

func containsDecl(ds []*ast.Decl, d *ast.Decl) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

// emitFallback scans the live constraint graph for the most specific
// unsolved constraint, in fixed priority order, and manufactures a
// diagnostic from it.
func (d *Diagnoser) emitFallback(constraints []Constraint) bool {
	var best *Constraint
	for i := range constraints {
		c := &constraints[i]
		if best == nil || c.Kind < best.Kind {
			best = c
		}
	}
	if best == nil {
		return false
	}

	s := best.Loc.Simplify()
	name := d.Types.Name
	var code diag.Code
	var msg string
	switch best.Kind {
	case ConstraintMember:
		code = diag.TcMissingMember
		msg = fmt.Sprintf("value of type %q has no member %q", name(best.First), best.Name)
	case ConstraintConformance:
		code = diag.TcDoesNotConform
		msg = fmt.Sprintf("type %q does not conform to protocol %q", name(best.First), name(best.Second))
	case ConstraintOverload:
		code = diag.TcNoSuchOverload
		msg = fmt.Sprintf("no matching overload of %q", best.Name)
	case ConstraintConversion:
		code = diag.TcInvalidConversion
		msg = fmt.Sprintf("cannot convert value of type %q to %q", name(best.First), name(best.Second))
	case ConstraintArgument:
		code = diag.TcTypeMismatch
		msg = fmt.Sprintf("argument of type %q does not match parameter type %q", name(best.First), name(best.Second))
	default:
		code = diag.TcInfo
		msg = "expression could not be resolved"
	}

	b := diag.ReportError(d.Reporter, code, s.Span(), msg)
	if callee := s.CalleeDecl(); callee != nil {
		b.WithNote(callee.Span, fmt.Sprintf("in call to %q", callee.Name()))
	}
	b.Emit()
	return true
}
