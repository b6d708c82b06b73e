package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/ir"
	"quill/internal/source"
)

// writeback records one pending store-back through a setter: a logical
// component was materialized into temp for in-place access, and the
// updated value must be written back when the enclosing scope ends.
type writeback struct {
	storage   *ast.Decl // the var or subscript declaration
	setter    *ast.Decl
	base      ManagedValue
	hasBase   bool
	index     *RValue
	indexExpr *ast.Expr
	temp      ir.Value // address of the materialized value
	span      source.Span
}

// writebackStack tracks nested writeback scopes. Entries are emitted in
// reverse order when their scope pops, so inner materializations store
// back before outer ones.
type writebackStack struct {
	scopes  []int
	entries []writeback
}

func (s *writebackStack) pushScope() {
	s.scopes = append(s.scopes, len(s.entries))
}

func (s *writebackStack) inScope() bool {
	return len(s.scopes) > 0
}

// add registers a pending writeback in the innermost scope, diagnosing
// conflicting simultaneous accesses to the same storage.
func (f *funcEmitter) addWriteback(wb writeback) {
	s := &f.writebacks
	if !s.inScope() {
		panic("irgen: writeback registered outside a writeback scope")
	}
	start := s.scopes[len(s.scopes)-1]
	for i := start; i < len(s.entries); i++ {
		prior := &s.entries[i]
		if prior.storage != wb.storage {
			continue
		}
		if prior.hasBase != wb.hasBase ||
			(wb.hasBase && prior.base.Value.ID != wb.base.Value.ID) {
			continue
		}
		if !indexesDefinitelyEqual(prior.indexExpr, wb.indexExpr) {
			continue
		}
		name := wb.storage.Name()
		diag.ReportError(f.reporter(), diag.LowWritebackConflict, wb.span,
			fmt.Sprintf("inout writeback to %q occurs in multiple arguments to this call", name)).
			WithNote(prior.span, "conflicting access is here").
			Emit()
	}
	s.entries = append(s.entries, wb)
}

// indexesDefinitelyEqual reports whether two subscript index expressions
// are guaranteed to address the same element. Parens are looked through
// on either side; beyond that only syntactic identity is recognized:
// equal literals or references to the same declaration. Anything weaker
// is treated as distinct, so the conflict check stays conservative about
// what it flags.
func indexesDefinitelyEqual(a, b *ast.Expr) bool {
	a = unwrapParens(a)
	b = unwrapParens(b)
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ast.ExprIntLit:
		return a.Data.(ast.IntLitData).Value == b.Data.(ast.IntLitData).Value
	case ast.ExprStringLit:
		return a.Data.(ast.StringLitData).Value == b.Data.(ast.StringLitData).Value
	case ast.ExprDeclRef:
		return a.Data.(ast.DeclRefData).Decl == b.Data.(ast.DeclRefData).Decl
	}
	return false
}

func unwrapParens(e *ast.Expr) *ast.Expr {
	for e != nil && e.Kind == ast.ExprParen {
		e = e.Data.(ast.ParenData).Sub
	}
	return e
}

// popWritebackScope emits the scope's pending setter calls, newest first.
func (f *funcEmitter) popWritebackScope() {
	s := &f.writebacks
	if len(s.scopes) == 0 {
		panic("irgen: popping an empty writeback stack")
	}
	start := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	pending := s.entries[start:]
	s.entries = s.entries[:start]

	for i := len(pending) - 1; i >= 0; i-- {
		f.emitWriteback(pending[i])
	}
}

// emitWriteback loads the materialized value and calls the setter.
func (f *funcEmitter) emitWriteback(wb writeback) {
	value := f.loadFromAddr(wb.temp, true)
	f.emitSetterCall(wb.setter, wb.base, wb.hasBase, wb.index, value, false)
}
