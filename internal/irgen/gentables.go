package irgen

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/convention"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// analyzeCaptures walks every body in the module and marks locals that a
// closure captures mutably. Those locals must live in heap boxes so the
// closure and the enclosing frame observe each other's writes.
func (m *ModuleEmitter) analyzeCaptures(mod *ast.Module) {
	w := captureWalker{marked: m.capturedByRef}
	for _, d := range mod.Decls {
		w.decl(d)
	}
}

type captureWalker struct {
	marked map[*ast.Decl]bool
}

func (w *captureWalker) decl(d *ast.Decl) {
	if d == nil {
		return
	}
	switch d.Kind {
	case ast.DeclFunc:
		data := funcData(d)
		w.stmts(data.Body)
		for _, def := range data.DefaultArgs {
			w.expr(def)
		}
	case ast.DeclConstructor:
		w.stmts(ctorData(d).Body)
	case ast.DeclDestructor:
		w.stmts(dtorData(d).Body)
	case ast.DeclStruct:
		data := structData(d)
		w.decls(data.Members)
		w.decls(data.Ctors)
		w.decl(data.MemberwiseCtor)
	case ast.DeclClass:
		data := classData(d)
		w.decls(data.Members)
		w.decls(data.Ctors)
		w.decl(data.Dtor)
	case ast.DeclVar:
		data := varData(d)
		w.decl(data.Get)
		w.decl(data.Set)
		w.expr(data.Init)
	case ast.DeclSubscript:
		data := subscriptData(d)
		w.decl(data.Get)
		w.decl(data.Set)
	case ast.DeclPatternBinding:
		w.expr(d.Data.(ast.PatternBindingData).Init)
	}
}

func (w *captureWalker) decls(ds []*ast.Decl) {
	for _, d := range ds {
		w.decl(d)
	}
}

func (w *captureWalker) stmts(body []*ast.Stmt) {
	for _, s := range body {
		if s == nil {
			continue
		}
		switch data := s.Data.(type) {
		case ast.ExprStmtData:
			w.expr(data.Expr)
		case ast.DeclStmtData:
			w.decl(data.Decl)
		case ast.ReturnStmtData:
			w.expr(data.Value)
		case ast.IfStmtData:
			w.expr(data.Cond)
			w.stmts(data.Then)
			w.stmts(data.Else)
		case ast.WhileStmtData:
			w.expr(data.Cond)
			w.stmts(data.Body)
		case ast.BlockStmtData:
			w.stmts(data.Body)
		}
	}
}

func (w *captureWalker) expr(e *ast.Expr) {
	if e == nil {
		return
	}
	switch data := e.Data.(type) {
	case ast.ClosureData:
		for _, c := range data.Captures {
			if c.Kind == ast.DeclVar && varData(c).Mutable {
				w.marked[c] = true
			}
		}
		w.stmts(data.Body)
	case ast.DeclRefData:
	case ast.MemberRefData:
		w.expr(data.Base)
	case ast.SubscriptData:
		w.expr(data.Base)
		w.expr(data.Index)
	case ast.TupleData:
		for _, el := range data.Elems {
			w.expr(el)
		}
	case ast.TupleElementData:
		w.expr(data.Base)
	case ast.TupleShuffleData:
		w.expr(data.Sub)
	case ast.CallData:
		w.expr(data.Fn)
		w.expr(data.Arg)
	case ast.IfData:
		w.expr(data.Cond)
		w.expr(data.Then)
		w.expr(data.Else)
	case ast.AssignData:
		w.expr(data.Dest)
		w.expr(data.Src)
	case ast.InOutData:
		w.expr(data.Sub)
	case ast.ForceData:
		w.expr(data.Sub)
	case ast.OptionalBindData:
		w.expr(data.Sub)
	case ast.OptionalEvalData:
		w.expr(data.Sub)
	case ast.InjectOptionalData:
		w.expr(data.Sub)
	case ast.DerivedToBaseData:
		w.expr(data.Sub)
	case ast.ErasureData:
		w.expr(data.Sub)
	case ast.CheckedCastData:
		w.expr(data.Sub)
	case ast.ParenData:
		w.expr(data.Sub)
	}
}

// dynamicEntries lists one entry point per vtable slot a class member
// introduces. Extension and foreign members never get slots.
func dynamicEntries(member *ast.Decl) []lowering.FuncRef {
	switch member.Kind {
	case ast.DeclFunc:
		data := funcData(member)
		if data.FromExtension || data.Foreign {
			return nil
		}
		return []lowering.FuncRef{lowering.DeclRef(member, refKindForFunc(data))}
	case ast.DeclVar:
		data := varData(member)
		if !data.IsComputed() {
			return nil
		}
		refs := []lowering.FuncRef{lowering.DeclRef(data.Get, lowering.RefGetter)}
		if data.Set != nil {
			refs = append(refs, lowering.DeclRef(data.Set, lowering.RefSetter))
		}
		return refs
	case ast.DeclSubscript:
		data := subscriptData(member)
		refs := []lowering.FuncRef{lowering.DeclRef(data.Get, lowering.RefGetter)}
		if data.Set != nil {
			refs = append(refs, lowering.DeclRef(data.Set, lowering.RefSetter))
		}
		return refs
	default:
		return nil
	}
}

// emitTables builds the class vtables and the conformance witness tables
// after all bodies are in.
func (m *ModuleEmitter) emitTables(mod *ast.Module) {
	for _, d := range mod.Decls {
		if d.Kind == ast.DeclClass {
			m.ensureVTable(classData(d).Type)
		}
	}
	for _, c := range mod.Conformances {
		m.ensureWitnessTable(c)
	}
}

// ensureVTable builds the dispatch table for a class: the superclass's
// entries first, overridden in place, then slots this class introduces.
func (m *ModuleEmitter) ensureVTable(class types.TypeID) *ir.VTable {
	m.mu.Lock()
	if t, ok := m.Module.VTableFor(class); ok {
		m.mu.Unlock()
		return t
	}
	m.mu.Unlock()

	d, ok := m.classDecls[class]
	if !ok {
		panic(fmt.Errorf("irgen: vtable for undeclared class %s", m.Types.Name(class)))
	}
	data := classData(d)

	var entries []ir.VTableEntry
	if data.Superclass != nil {
		super := m.ensureVTable(classData(data.Superclass).Type)
		entries = append(entries, super.Entries...)
	}

	for _, member := range data.Members {
		for _, ref := range dynamicEntries(member) {
			fn := m.ensureEmitted(ref)
			entry := ir.VTableEntry{Member: ref.Decl, Impl: fn.Name}
			if over := overriddenDecl(ref.Decl); over != nil {
				// Extension and foreign members have no inherited slot;
				// overriding one introduces a fresh entry instead.
				if slot := slotOf(entries, over); slot >= 0 {
					// The slot keeps the root member's identity so lookups
					// through any ancestor find the most-derived entry.
					entry.Member = entries[slot].Member
					entries[slot] = entry
					continue
				}
			}
			entries = append(entries, entry)
		}
	}

	t := &ir.VTable{Class: class, Entries: entries}
	m.mu.Lock()
	if prior, ok := m.Module.VTableFor(class); ok {
		m.mu.Unlock()
		return prior
	}
	m.Module.VTables = append(m.Module.VTables, t)
	m.mu.Unlock()
	return t
}

func overriddenDecl(d *ast.Decl) *ast.Decl {
	if d.Kind != ast.DeclFunc {
		return nil
	}
	return funcData(d).OverrideOf
}

func slotOf(entries []ir.VTableEntry, member *ast.Decl) int {
	for i := range entries {
		if entries[i].Member == member {
			return i
		}
	}
	return -1
}

// ensureWitnessTable builds the table for one conformance. Witnesses whose
// entry type does not match the requirement get a re-abstraction thunk.
func (m *ModuleEmitter) ensureWitnessTable(c *ast.Conformance) {
	key := witnessKey{ty: c.Type, proto: c.Protocol}
	m.mu.Lock()
	if m.witnessOnce[key] {
		m.mu.Unlock()
		return
	}
	m.witnessOnce[key] = true
	m.mu.Unlock()

	info, ok := m.Types.ProtocolInfo(c.Protocol)
	if !ok {
		panic(fmt.Errorf("irgen: conformance to non-protocol %s", m.Types.Name(c.Protocol)))
	}

	entries := make([]ir.WitnessTableEntry, 0, len(c.Witnesses))
	for _, w := range c.Witnesses {
		if w.Requirement < 0 || w.Requirement >= len(info.Requirements) {
			panic(fmt.Errorf("irgen: witness for out-of-range requirement %d of %s", w.Requirement, info.Name))
		}
		req := info.Requirements[w.Requirement]
		target := m.ensureEmitted(witnessRef(w.Witness, req.Kind))

		name := target.Name
		reqTy := m.requirementEntryType(req)
		if target.Type != reqTy {
			name = m.witnessThunk(c, w.Requirement, req, target).Name
		}
		entries = append(entries, ir.WitnessTableEntry{Requirement: w.Requirement, Witness: name})
	}

	m.mu.Lock()
	m.Module.WitnessTables = append(m.Module.WitnessTables, &ir.WitnessTable{
		Type:     c.Type,
		Protocol: c.Protocol,
		Entries:  entries,
	})
	m.mu.Unlock()
}

// witnessRef picks the entry point of a witness declaration matching the
// requirement's kind.
func witnessRef(w *ast.Decl, kind types.RequirementKind) lowering.FuncRef {
	switch w.Kind {
	case ast.DeclFunc:
		refKind := lowering.RefFunc
		switch kind {
		case types.ReqGetter:
			refKind = lowering.RefGetter
		case types.ReqSetter:
			refKind = lowering.RefSetter
		}
		return lowering.DeclRef(w, refKind)
	case ast.DeclVar:
		data := varData(w)
		if kind == types.ReqSetter {
			return lowering.DeclRef(data.Set, lowering.RefSetter)
		}
		return lowering.DeclRef(data.Get, lowering.RefGetter)
	case ast.DeclSubscript:
		data := subscriptData(w)
		if kind == types.ReqSetter {
			return lowering.DeclRef(data.Set, lowering.RefSetter)
		}
		return lowering.DeclRef(data.Get, lowering.RefGetter)
	default:
		panic(fmt.Errorf("irgen: %s cannot witness a protocol requirement", w.Kind))
	}
}

// requirementEntryType is the thin method-convention form of a
// requirement's declared type.
func (m *ModuleEmitter) requirementEntryType(req types.Requirement) types.TypeID {
	info, ok := m.Types.FnInfo(req.Type)
	if !ok {
		panic(fmt.Errorf("irgen: requirement %q has non-function type", req.Name))
	}
	return m.Types.RegisterFnConv(info.Params, info.Result, types.ConvMethod, true)
}

// witnessThunk emits a forwarding entry in the requirement's convention
// that calls the concrete witness, adapting per-argument representation
// where the two signatures disagree.
func (m *ModuleEmitter) witnessThunk(c *ast.Conformance, index int, req types.Requirement, target *ir.Func) *ir.Func {
	name := fmt.Sprintf("q$%s$%s$w%d", m.Types.Name(c.Type), m.Types.Name(c.Protocol), index)

	m.mu.Lock()
	if fn, ok := m.started[name]; ok {
		m.mu.Unlock()
		return fn
	}
	thunkTy := m.requirementEntryType(req)
	fn := m.Module.NewFunc(name, thunkTy)
	m.started[name] = fn
	m.mu.Unlock()

	reqInfo, _ := m.Types.FnInfo(thunkTy)
	targetInfo, ok := m.Types.FnInfo(target.Type)
	if !ok {
		panic(fmt.Errorf("irgen: witness %q has non-function type", target.Name))
	}
	if len(targetInfo.Params) != len(reqInfo.Params) {
		panic(fmt.Errorf("irgen: witness %q arity differs from requirement %q", target.Name, req.Name))
	}

	b := ir.NewBuilder(fn, m.Types)

	var params []ir.Value
	addParam := func(ty types.TypeID, addr bool) ir.Value {
		v := b.NewBlockParam(ty, addr)
		params = append(params, v)
		return v
	}

	selfAddr := m.Conv.Lowered(c.Type, 0).AddressOnly || valueTypeSelf(m.Types, c.Type)
	var selfVal ir.Value
	selfFirst := m.Table.SelfPlacement == convention.PlaceFirst
	if selfFirst {
		selfVal = addParam(c.Type, selfAddr)
	}
	explicit := make([]ir.Value, 0, len(reqInfo.Params))
	for _, ty := range reqInfo.Params {
		v := addParam(ty, m.Conv.Lowered(ty, 0).AddressOnly)
		explicit = append(explicit, v)
	}
	if !selfFirst {
		selfVal = addParam(c.Type, selfAddr)
	}

	indirect := m.Conv.Lowered(reqInfo.Result, 0).AddressOnly
	var retAddr ir.Value
	if indirect {
		retAddr = b.NewBlockParam(reqInfo.Result, true)
		if m.Table.IndirectResultPlacement == convention.PlaceFirst {
			params = append([]ir.Value{retAddr}, params...)
		} else {
			params = append(params, retAddr)
		}
		fn.Indirect = true
	}
	fn.Result = reqInfo.Result

	entry := b.NewBlock(params...)
	b.SetInsert(entry)

	args := make([]ir.Value, 0, len(explicit)+1)
	appendArg := func(v ir.Value, want types.TypeID) {
		wantAddr := m.Conv.Lowered(want, 0).AddressOnly
		switch {
		case v.Addr && !wantAddr:
			args = append(args, b.Load(v))
		case !v.Addr && wantAddr:
			tmp := b.AllocStack(v.Type)
			b.StoreInit(v, tmp)
			args = append(args, tmp)
		default:
			args = append(args, v)
		}
	}
	if selfFirst {
		appendArg(selfVal, c.Type)
	}
	for i, v := range explicit {
		appendArg(v, targetInfo.Params[i])
	}
	if !selfFirst {
		appendArg(selfVal, c.Type)
	}

	callee := b.FunctionRef(target.Name, target.ID, target.Type)
	if indirect {
		b.ApplyIndirect(callee, args, retAddr)
		b.ReturnVoid()
	} else {
		out := b.Apply(callee, args, targetInfo.Result)
		if reqInfo.Result == m.unitType() {
			b.ReturnVoid()
		} else {
			b.Return(out)
		}
	}
	return fn
}

func valueTypeSelf(in *types.Interner, ty types.TypeID) bool {
	tt := in.MustLookup(ty)
	return tt.Kind == types.KindStruct || tt.Kind == types.KindTuple
}
