package ast

import (
	"fmt"

	"quill/internal/source"
)

// StmtKind enumerates statement kinds.
type StmtKind uint8

const (
	// StmtExpr evaluates an expression for its effects.
	StmtExpr StmtKind = iota
	// StmtDecl introduces a local declaration.
	StmtDecl
	// StmtReturn leaves the enclosing function.
	StmtReturn
	// StmtIf branches on a boolean condition.
	StmtIf
	// StmtWhile loops while a condition holds.
	StmtWhile
	// StmtBlock opens a nested lexical scope.
	StmtBlock
)

func (k StmtKind) String() string {
	switch k {
	case StmtExpr:
		return "Expr"
	case StmtDecl:
		return "Decl"
	case StmtReturn:
		return "Return"
	case StmtIf:
		return "If"
	case StmtWhile:
		return "While"
	case StmtBlock:
		return "Block"
	default:
		return fmt.Sprintf("StmtKind(%d)", k)
	}
}

// Stmt is a resolved statement node.
type Stmt struct {
	Kind StmtKind
	Span source.Span
	Data any
}

// ExprStmtData evaluates an expression and discards its value.
type ExprStmtData struct {
	Expr *Expr
}

// DeclStmtData introduces a local declaration (usually a pattern binding).
type DeclStmtData struct {
	Decl *Decl
}

// ReturnStmtData carries an optional return value.
type ReturnStmtData struct {
	Value *Expr
}

// IfStmtData branches on a condition.
type IfStmtData struct {
	Cond *Expr
	Then []*Stmt
	Else []*Stmt
}

// WhileStmtData loops on a condition.
type WhileStmtData struct {
	Cond *Expr
	Body []*Stmt
}

// BlockStmtData opens a nested scope.
type BlockStmtData struct {
	Body []*Stmt
}
