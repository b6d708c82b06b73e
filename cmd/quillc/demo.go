package main

import (
	"quill/internal/ast"
	"quill/internal/source"
	"quill/internal/types"
)

// demoModule builds the module selfcheck lowers: a memberwise struct with
// a protocol conformance, a class hierarchy with an override, and a free
// function.
func demoModule(in *types.Interner) *ast.Module {
	bi := in.Builtins()

	pair := in.RegisterStruct("Pair", source.Span{})
	in.SetStructFields(pair, []types.Field{
		{Name: "a", Type: bi.Int},
		{Name: "b", Type: bi.String},
	})

	fieldA := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "a", Type: bi.Int, Mutable: true}}
	fieldB := &ast.Decl{Kind: ast.DeclVar, Data: ast.VarDeclData{Name: "b", Type: bi.String, Mutable: true}}
	ctor := &ast.Decl{Kind: ast.DeclConstructor, Data: ast.CtorDeclData{
		Owner: pair,
		Params: []*ast.Decl{
			demoParam("a", bi.Int),
			demoParam("b", bi.String),
		},
		Memberwise: true,
	}}
	size := &ast.Decl{Kind: ast.DeclFunc, Data: ast.FuncDeclData{
		Name: "size", SelfType: pair, Result: bi.Int,
		Body: []*ast.Stmt{demoReturn(demoIntLit(2, bi.Int))},
	}}
	pairDecl := &ast.Decl{Kind: ast.DeclStruct, Data: ast.StructDeclData{
		Name:           "Pair",
		Type:           pair,
		Fields:         []*ast.Decl{fieldA, fieldB},
		Members:        []*ast.Decl{size},
		MemberwiseCtor: ctor,
	}}

	proto := in.RegisterProtocol("Sized", source.Span{})
	in.SetProtocolRequirements(proto, []types.Requirement{
		{Name: "size", Kind: types.ReqMethod, Type: in.RegisterFn(nil, bi.Int)},
	})
	protoDecl := &ast.Decl{Kind: ast.DeclProtocol, Data: ast.ProtocolDeclData{Name: "Sized", Type: proto}}

	shape := in.RegisterClass("Shape", source.Span{}, types.NoTypeID)
	box := in.RegisterClass("Box", source.Span{}, shape)

	shapeSides := &ast.Decl{Kind: ast.DeclFunc, Data: ast.FuncDeclData{
		Name: "sides", SelfType: shape, Result: bi.Int,
		Body: []*ast.Stmt{demoReturn(demoIntLit(0, bi.Int))},
	}}
	shapeDecl := &ast.Decl{Kind: ast.DeclClass, Data: ast.ClassDeclData{
		Name: "Shape", Type: shape, Members: []*ast.Decl{shapeSides},
	}}
	boxSides := &ast.Decl{Kind: ast.DeclFunc, Data: ast.FuncDeclData{
		Name: "sides", SelfType: box, Result: bi.Int, OverrideOf: shapeSides,
		Body: []*ast.Stmt{demoReturn(demoIntLit(4, bi.Int))},
	}}
	boxDecl := &ast.Decl{Kind: ast.DeclClass, Data: ast.ClassDeclData{
		Name: "Box", Type: box, Superclass: shapeDecl, Members: []*ast.Decl{boxSides},
	}}

	a := demoParam("a", bi.Int)
	sum := &ast.Decl{Kind: ast.DeclFunc, Data: ast.FuncDeclData{
		Name:       "sum",
		ParamLists: [][]*ast.Decl{{a, demoParam("b", bi.Int)}},
		Result:     bi.Int,
		Body: []*ast.Stmt{demoReturn(&ast.Expr{
			Kind: ast.ExprDeclRef, Type: bi.Int, Data: ast.DeclRefData{Decl: a},
		})},
	}}

	return &ast.Module{
		Name:  "selfcheck",
		Decls: []*ast.Decl{pairDecl, protoDecl, shapeDecl, boxDecl, sum},
		Conformances: []*ast.Conformance{{
			Type: pair, Protocol: proto, ProtocolDecl: protoDecl,
			Witnesses: []ast.WitnessEntry{{Requirement: 0, Witness: size}},
		}},
	}
}

func demoParam(name string, ty types.TypeID) *ast.Decl {
	return &ast.Decl{Kind: ast.DeclParam, Data: ast.ParamDeclData{Name: name, Type: ty}}
}

func demoReturn(e *ast.Expr) *ast.Stmt {
	return &ast.Stmt{Kind: ast.StmtReturn, Data: ast.ReturnStmtData{Value: e}}
}

func demoIntLit(v int64, ty types.TypeID) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprIntLit, Type: ty, Data: ast.IntLitData{Value: v}}
}
