package csdiag

import (
	"strings"
	"testing"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/source"
	"quill/internal/types"
)

func declRef(d *ast.Decl, ty types.TypeID, sp source.Span) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprDeclRef, Type: ty, Span: sp, Data: ast.DeclRefData{Decl: d}}
}

func callOf(fn, arg *ast.Expr, sp source.Span) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprCall, Span: sp, Data: ast.CallData{Fn: fn, Arg: arg}}
}

func funcDecl(name string, sp source.Span) *ast.Decl {
	return &ast.Decl{Kind: ast.DeclFunc, Span: sp, Data: ast.FuncDeclData{Name: name}}
}

func TestDiagnoseConformanceFailureAtCallArgument(t *testing.T) {
	in := types.NewInterner()
	proto := in.RegisterProtocol("Comparable", source.Span{})

	max := funcDecl("max", source.Span{Start: 1, End: 4})
	arg := &ast.Expr{Kind: ast.ExprIntLit, Type: in.Builtins().Int,
		Span: source.Span{Start: 14, End: 15}, Data: ast.IntLitData{Value: 3}}
	call := callOf(declRef(max, types.NoTypeID, source.Span{Start: 10, End: 13}), arg,
		source.Span{Start: 10, End: 16})

	bag := diag.NewBag(10)
	d := &Diagnoser{Types: in, Reporter: diag.BagReporter{Bag: bag}}
	ok := d.Diagnose(&State{Failures: []Failure{{
		Kind:   FailDoesNotConform,
		First:  in.Builtins().Int,
		Second: proto,
		Index:  -1,
		Loc:    Locator{Anchor: call, Path: []Step{{Kind: StepApplyArgument}}},
	}}})
	if !ok {
		t.Fatalf("Diagnose must emit for a structured failure")
	}
	if bag.Len() != 1 {
		t.Fatalf("got %d diagnostics, want exactly 1", bag.Len())
	}

	got := bag.Items()[0]
	if got.Code != diag.TcDoesNotConform {
		t.Fatalf("code = %v, want %v", got.Code, diag.TcDoesNotConform)
	}
	if got.Primary != arg.Span {
		t.Fatalf("primary = %v, want the argument span %v", got.Primary, arg.Span)
	}
	if !strings.Contains(got.Message, "Comparable") {
		t.Fatalf("message %q must name the protocol", got.Message)
	}
	if len(got.Notes) != 1 || got.Notes[0].Span != max.Span {
		t.Fatalf("want one note at the callee declaration, got %v", got.Notes)
	}
	if !strings.Contains(got.Notes[0].Msg, "max") {
		t.Fatalf("note %q must name the callee", got.Notes[0].Msg)
	}
}

func TestDiagnosePicksDeepestLocator(t *testing.T) {
	in := types.NewInterner()
	bi := in.Builtins()

	fn := funcDecl("f", source.Span{Start: 0, End: 1})
	arg := &ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Span: source.Span{Start: 30, End: 31}}
	call := callOf(declRef(fn, types.NoTypeID, source.Span{Start: 28, End: 29}), arg,
		source.Span{Start: 28, End: 32})

	shallow := Failure{Kind: FailTypeMismatch, First: bi.Int, Second: bi.Bool, Index: -1,
		Loc: Locator{Anchor: call}}
	deep := Failure{Kind: FailMissingMember, First: bi.String, Name: "count", Index: -1,
		Loc: Locator{Anchor: call, Path: []Step{{Kind: StepApplyArgument}}}}

	bag := diag.NewBag(10)
	d := &Diagnoser{Types: in, Reporter: diag.BagReporter{Bag: bag}}
	d.Diagnose(&State{Failures: []Failure{shallow, deep}})

	if bag.Len() != 1 {
		t.Fatalf("got %d diagnostics, want exactly 1", bag.Len())
	}
	if got := bag.Items()[0].Code; got != diag.TcMissingMember {
		t.Fatalf("code = %v, want the deeper-resolving failure %v", got, diag.TcMissingMember)
	}
}

func TestDiagnoseAmbiguityNamesEveryCandidate(t *testing.T) {
	in := types.NewInterner()

	fooInt := funcDecl("foo", source.Span{Start: 0, End: 3})
	fooStr := funcDecl("foo", source.Span{Start: 10, End: 13})
	site := declRef(fooInt, types.NoTypeID, source.Span{Start: 40, End: 43})

	bag := diag.NewBag(10)
	d := &Diagnoser{Types: in, Reporter: diag.BagReporter{Bag: bag}}
	d.Diagnose(&State{Solutions: []Solution{
		{Choices: []OverloadChoice{{Anchor: site, Decl: fooInt}}},
		{Choices: []OverloadChoice{{Anchor: site, Decl: fooStr}}},
	}})

	if bag.Len() != 1 {
		t.Fatalf("got %d diagnostics, want exactly 1", bag.Len())
	}
	got := bag.Items()[0]
	if got.Code != diag.TcAmbiguousRef {
		t.Fatalf("code = %v, want %v", got.Code, diag.TcAmbiguousRef)
	}
	if !strings.Contains(got.Message, "foo") {
		t.Fatalf("message %q must name the ambiguous reference", got.Message)
	}
	if len(got.Notes) != 2 {
		t.Fatalf("want one candidate note per overload, got %d", len(got.Notes))
	}
	if got.Notes[0].Span != fooInt.Span || got.Notes[1].Span != fooStr.Span {
		t.Fatalf("notes must point at the candidate declarations, got %v", got.Notes)
	}
}

func TestDiagnoseAmbiguityWithoutCulpritIsGeneric(t *testing.T) {
	in := types.NewInterner()
	foo := funcDecl("foo", source.Span{})
	site := declRef(foo, types.NoTypeID, source.Span{Start: 5, End: 8})

	bag := diag.NewBag(10)
	d := &Diagnoser{Types: in, Reporter: diag.BagReporter{Bag: bag}}
	d.Diagnose(&State{Solutions: []Solution{
		{Choices: []OverloadChoice{{Anchor: site, Decl: foo}}},
		{Choices: []OverloadChoice{{Anchor: site, Decl: foo}}},
	}})

	if bag.Len() != 1 || bag.Items()[0].Code != diag.TcAmbiguousExpr {
		t.Fatalf("same choice everywhere must fall back to the generic ambiguity diagnostic")
	}
}

func TestDiagnoseFallbackPriorityOrder(t *testing.T) {
	in := types.NewInterner()
	bi := in.Builtins()
	anchor := &ast.Expr{Kind: ast.ExprIntLit, Type: bi.Int, Span: source.Span{Start: 2, End: 3}}

	bag := diag.NewBag(10)
	d := &Diagnoser{Types: in, Reporter: diag.BagReporter{Bag: bag}}
	ok := d.Diagnose(&State{Constraints: []Constraint{
		{Kind: ConstraintConversion, First: bi.Int, Second: bi.Bool, Loc: Locator{Anchor: anchor}},
		{Kind: ConstraintMember, First: bi.String, Name: "count", Loc: Locator{Anchor: anchor}},
		{Kind: ConstraintArgument, First: bi.Int, Second: bi.String, Loc: Locator{Anchor: anchor}},
	}})
	if !ok {
		t.Fatalf("fallback scan must emit when constraints exist")
	}
	if got := bag.Items()[0].Code; got != diag.TcMissingMember {
		t.Fatalf("code = %v, want the member constraint to win the scan", got)
	}
}

func TestDiagnoseEmptyStateEmitsNothing(t *testing.T) {
	bag := diag.NewBag(10)
	d := &Diagnoser{Types: types.NewInterner(), Reporter: diag.BagReporter{Bag: bag}}
	if d.Diagnose(&State{}) {
		t.Fatalf("empty state must not claim to have diagnosed")
	}
	if bag.Len() != 0 {
		t.Fatalf("empty state must emit nothing, got %d", bag.Len())
	}
}

func TestSimplifyStopsAtShapeMismatch(t *testing.T) {
	lit := &ast.Expr{Kind: ast.ExprIntLit, Span: source.Span{Start: 7, End: 8}}
	loc := Locator{Anchor: lit, Path: []Step{{Kind: StepApplyArgument}, {Kind: StepTupleElement, Index: 1}}}

	s := loc.Simplify()
	if s.Consumed != 0 {
		t.Fatalf("non-call anchor must consume no steps, got %d", s.Consumed)
	}
	if s.Anchor != lit {
		t.Fatalf("anchor must stay put when no step applies")
	}
}

func TestSimplifyDescendsThroughParensAndTuples(t *testing.T) {
	elem := &ast.Expr{Kind: ast.ExprIntLit, Span: source.Span{Start: 21, End: 22}}
	tup := &ast.Expr{Kind: ast.ExprTuple, Span: source.Span{Start: 18, End: 25},
		Data: ast.TupleData{Elems: []*ast.Expr{{Kind: ast.ExprBoolLit}, elem}}}
	paren := &ast.Expr{Kind: ast.ExprParen, Span: tup.Span, Data: ast.ParenData{Sub: tup}}
	fn := declRef(funcDecl("g", source.Span{Start: 0, End: 1}), types.NoTypeID, source.Span{Start: 15, End: 16})
	call := callOf(fn, paren, source.Span{Start: 15, End: 26})

	s := Locator{Anchor: call, Path: []Step{
		{Kind: StepApplyArgument},
		{Kind: StepTupleElement, Index: 1},
	}}.Simplify()

	if s.Consumed != 2 {
		t.Fatalf("consumed = %d, want both steps resolved", s.Consumed)
	}
	if s.Anchor != elem {
		t.Fatalf("anchor must land on the tuple element")
	}
	if s.CalleeDecl() == nil || s.CalleeDecl().Name() != "g" {
		t.Fatalf("stepping through a call must surface its callee")
	}
}
