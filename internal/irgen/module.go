package irgen

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"quill/internal/ast"
	"quill/internal/convention"
	"quill/internal/diag"
	"quill/internal/ir"
	"quill/internal/lowering"
	"quill/internal/types"
)

// ModuleEmitter owns everything shared between function emissions: the
// output module, the type converter, the anonymous-name counter, and the
// dispatch-table caches. There is no package-level state; independent
// emitters never interfere.
type ModuleEmitter struct {
	Types    *types.Interner
	Conv     *lowering.Converter
	Table    convention.Table
	Reporter diag.Reporter
	Module   *ir.Module

	mu        sync.Mutex
	started   map[string]*ir.Func
	anonNames map[*ast.Expr]string
	anonNext  int

	// capturedByRef marks locals captured mutably by some closure; their
	// storage must be a heap box.
	capturedByRef map[*ast.Decl]bool

	classDecls   map[types.TypeID]*ast.Decl
	dynamicSlots map[types.TypeID]map[*ast.Decl]bool

	witnessOnce map[witnessKey]bool
	protoDecls  map[types.TypeID]*ast.Decl

	pendingMu sync.Mutex
	pending   []*ast.Decl
}

type witnessKey struct {
	ty    types.TypeID
	proto types.TypeID
}

// NewModuleEmitter creates an emitter for one output module.
func NewModuleEmitter(in *types.Interner, table convention.Table, rep diag.Reporter, name string) *ModuleEmitter {
	if rep == nil {
		rep = diag.NopReporter{}
	}
	return &ModuleEmitter{
		Types:         in,
		Conv:          lowering.NewConverter(in),
		Table:         table,
		Reporter:      rep,
		Module:        ir.NewModule(name),
		started:       make(map[string]*ir.Func),
		anonNames:     make(map[*ast.Expr]string),
		capturedByRef: make(map[*ast.Decl]bool),
		classDecls:    make(map[types.TypeID]*ast.Decl),
		dynamicSlots:  make(map[types.TypeID]map[*ast.Decl]bool),
		witnessOnce:   make(map[witnessKey]bool),
		protoDecls:    make(map[types.TypeID]*ast.Decl),
	}
}

func (m *ModuleEmitter) unitType() types.TypeID {
	return m.Types.Builtins().Unit
}

func (m *ModuleEmitter) rawPointerType() types.TypeID {
	return m.Types.Builtins().RawPointer
}

// thickFnType returns the context-carrying counterpart of a thin entry
// type.
func (m *ModuleEmitter) thickFnType(thin types.TypeID) types.TypeID {
	info, ok := m.Types.FnInfo(thin)
	if !ok {
		panic(fmt.Errorf("irgen: thick type of non-function %d", thin))
	}
	return m.Types.RegisterFnConv(info.Params, info.Result, types.ConvNative, false)
}

// EmitModule lowers every top-level declaration of a checked module. The
// declaration order is preserved for determinism.
func (m *ModuleEmitter) EmitModule(mod *ast.Module) error {
	m.prepare(mod)
	for _, d := range mod.Decls {
		if err := m.EmitDecl(d); err != nil {
			return err
		}
	}
	m.drainPending()
	m.emitTables(mod)
	return nil
}

// EmitModuleParallel lowers independent top-level declarations
// concurrently. The type cache and the module are shared behind their
// own locks; per-function emission is isolated.
func (m *ModuleEmitter) EmitModuleParallel(mod *ast.Module) error {
	m.prepare(mod)
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, d := range mod.Decls {
		d := d
		g.Go(func() error {
			return m.EmitDecl(d)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.drainPending()
	m.emitTables(mod)
	return nil
}

// prepare runs the pre-passes that need the whole module: box-capture
// classification and nominal bookkeeping.
func (m *ModuleEmitter) prepare(mod *ast.Module) {
	m.analyzeCaptures(mod)
	for _, d := range mod.Decls {
		switch d.Kind {
		case ast.DeclClass:
			data := classData(d)
			m.classDecls[data.Type] = d
			slots := make(map[*ast.Decl]bool, len(data.Members))
			for _, member := range data.Members {
				for _, ref := range dynamicEntries(member) {
					slots[ref.Decl] = true
				}
			}
			m.dynamicSlots[data.Type] = slots
		case ast.DeclProtocol:
			data := protocolData(d)
			m.protoDecls[data.Type] = d
		}
	}
}

// EmitDecl lowers one top-level declaration and everything it references.
func (m *ModuleEmitter) EmitDecl(d *ast.Decl) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("irgen: lowering %s %q: %v", d.Kind, d.Name(), r)
		}
	}()

	switch d.Kind {
	case ast.DeclFunc:
		data := funcData(d)
		ref := lowering.DeclRef(d, refKindForFunc(data))
		if data.Foreign {
			ref = ref.AsForeign()
		}
		m.ensureEmitted(ref)
		m.emitDefaultArgEntries(d, data)

	case ast.DeclStruct:
		m.emitStructDecl(d)

	case ast.DeclClass:
		m.emitClassDecl(d)

	case ast.DeclProtocol:
		// Protocols produce no code of their own; witness tables are
		// emitted per conformance.

	case ast.DeclVar:
		data := varData(d)
		switch {
		case data.IsComputed():
			m.ensureEmitted(lowering.DeclRef(data.Get, lowering.RefGetter))
			if data.Set != nil {
				m.ensureEmitted(lowering.DeclRef(data.Set, lowering.RefSetter))
			}
		case data.Global:
			m.ensureEmitted(lowering.DeclRef(d, lowering.RefGlobalAccessor))
		default:
			return fmt.Errorf("irgen: top-level %q is neither global nor computed", data.Name)
		}

	case ast.DeclSubscript:
		data := subscriptData(d)
		m.ensureEmitted(lowering.DeclRef(data.Get, lowering.RefGetter))
		if data.Set != nil {
			m.ensureEmitted(lowering.DeclRef(data.Set, lowering.RefSetter))
		}

	default:
		return fmt.Errorf("irgen: unsupported top-level declaration %s", d.Kind)
	}
	return nil
}

func refKindForFunc(data ast.FuncDeclData) lowering.RefKind {
	switch data.Role {
	case ast.RoleGetter:
		return lowering.RefGetter
	case ast.RoleSetter:
		return lowering.RefSetter
	default:
		return lowering.RefFunc
	}
}

func (m *ModuleEmitter) emitDefaultArgEntries(d *ast.Decl, data ast.FuncDeclData) {
	for i, def := range data.DefaultArgs {
		if def != nil {
			m.ensureEmitted(lowering.DefaultArgRef(d, i))
		}
	}
}

func (m *ModuleEmitter) emitStructDecl(d *ast.Decl) {
	data := structData(d)
	for _, member := range data.Members {
		m.emitMember(member)
	}
	for _, ctor := range data.Ctors {
		m.ensureEmitted(lowering.DeclRef(ctor, lowering.RefAllocator))
	}
	if data.MemberwiseCtor != nil {
		m.ensureEmitted(lowering.DeclRef(data.MemberwiseCtor, lowering.RefAllocator))
	}
}

func (m *ModuleEmitter) emitClassDecl(d *ast.Decl) {
	data := classData(d)
	for _, member := range data.Members {
		m.emitMember(member)
	}
	for _, ctor := range data.Ctors {
		m.ensureEmitted(lowering.DeclRef(ctor, lowering.RefAllocator))
	}
	if data.Dtor != nil {
		m.ensureEmitted(lowering.DeclRef(data.Dtor, lowering.RefDestructor))
	}
}

func (m *ModuleEmitter) emitMember(member *ast.Decl) {
	switch member.Kind {
	case ast.DeclFunc:
		data := funcData(member)
		ref := lowering.DeclRef(member, refKindForFunc(data))
		if data.Foreign {
			ref = ref.AsForeign()
		}
		m.ensureEmitted(ref)
		m.emitDefaultArgEntries(member, data)
	case ast.DeclVar:
		data := varData(member)
		if data.IsComputed() {
			m.ensureEmitted(lowering.DeclRef(data.Get, lowering.RefGetter))
			if data.Set != nil {
				m.ensureEmitted(lowering.DeclRef(data.Set, lowering.RefSetter))
			}
		}
	case ast.DeclSubscript:
		data := subscriptData(member)
		m.ensureEmitted(lowering.DeclRef(data.Get, lowering.RefGetter))
		if data.Set != nil {
			m.ensureEmitted(lowering.DeclRef(data.Set, lowering.RefSetter))
		}
	default:
		panic(fmt.Errorf("irgen: unsupported member declaration %s", member.Kind))
	}
}

// ensureEmitted returns the entry for a reference, emitting name, type,
// and body on first use. Recursive references see the registered function
// before its body completes.
func (m *ModuleEmitter) ensureEmitted(ref lowering.FuncRef) *ir.Func {
	name := m.symbolName(ref)

	m.mu.Lock()
	if fn, ok := m.started[name]; ok {
		m.mu.Unlock()
		return fn
	}
	ty := m.entrySignature(ref)
	fn := m.Module.NewFunc(name, ty)
	fn.Span = ref.Span()
	m.started[name] = fn
	m.mu.Unlock()

	m.emitEntry(ref, fn)
	return fn
}

// symbolName derives the mangled name for a reference, qualifying members
// with their owner and assigning stable anonymous names to closures.
func (m *ModuleEmitter) symbolName(ref lowering.FuncRef) string {
	if ref.IsClosure() {
		m.mu.Lock()
		anon, ok := m.anonNames[ref.Closure]
		if !ok {
			anon = fmt.Sprintf("closure%d", m.anonNext)
			m.anonNext++
			m.anonNames[ref.Closure] = anon
		}
		m.mu.Unlock()
		return lowering.Mangle(ref, anon)
	}
	return lowering.Mangle(ref, m.qualifiedName(ref))
}

// qualifiedName prefixes member names with their owning type so members
// of different types never collide.
func (m *ModuleEmitter) qualifiedName(ref lowering.FuncRef) string {
	d := ref.Decl
	var owner types.TypeID
	name := d.Name()
	switch d.Kind {
	case ast.DeclFunc:
		owner = funcData(d).SelfType
	case ast.DeclConstructor:
		data := ctorData(d)
		owner = data.Owner
	case ast.DeclDestructor:
		owner = dtorData(d).Owner
	case ast.DeclVar, ast.DeclParam:
		// Globals and locals mangle by plain name.
	case ast.DeclSubscript:
		owner = subscriptData(d).Owner
	}
	if owner != types.NoTypeID {
		return m.Types.Name(owner) + "." + name
	}
	return name
}

// enqueueDecl defers a nested named declaration to module scope.
func (m *ModuleEmitter) enqueueDecl(d *ast.Decl) {
	m.pendingMu.Lock()
	m.pending = append(m.pending, d)
	m.pendingMu.Unlock()
}

func (m *ModuleEmitter) drainPending() {
	for {
		m.pendingMu.Lock()
		if len(m.pending) == 0 {
			m.pendingMu.Unlock()
			return
		}
		d := m.pending[0]
		m.pending = m.pending[1:]
		m.pendingMu.Unlock()

		data := funcData(d)
		ref := lowering.DeclRef(d, refKindForFunc(data))
		if data.Foreign {
			ref = ref.AsForeign()
		}
		m.ensureEmitted(ref)
	}
}

// isDynamicMember reports whether a class member dispatches through the
// vtable.
func (m *ModuleEmitter) isDynamicMember(class types.TypeID, member *ast.Decl) bool {
	for ty := class; ty != types.NoTypeID; {
		if slots, ok := m.dynamicSlots[ty]; ok && slots[member] {
			return true
		}
		info, ok := m.Types.ClassInfo(ty)
		if !ok {
			break
		}
		ty = info.Superclass
	}
	return false
}

// requirementSlot resolves a protocol requirement to its witness-table
// index and entry type.
func (m *ModuleEmitter) requirementSlot(proto types.TypeID, ref lowering.FuncRef) (int, types.TypeID) {
	info, ok := m.Types.ProtocolInfo(proto)
	if !ok {
		panic(fmt.Errorf("irgen: protocol %s has no metadata", m.Types.Name(proto)))
	}
	want := requirementKindFor(ref)
	name := ref.Name()
	for i, req := range info.Requirements {
		if req.Name == name && req.Kind == want {
			return i, req.Type
		}
	}
	panic(fmt.Errorf("irgen: requirement %q not found in %s", name, m.Types.Name(proto)))
}

func requirementKindFor(ref lowering.FuncRef) types.RequirementKind {
	switch ref.Kind {
	case lowering.RefGetter:
		return types.ReqGetter
	case lowering.RefSetter:
		return types.ReqSetter
	default:
		return types.ReqMethod
	}
}

// storedFields returns a nominal type's stored layout.
func (m *ModuleEmitter) storedFields(ty types.TypeID) []types.Field {
	if info, ok := m.Types.StructInfo(ty); ok {
		return info.Fields
	}
	if info, ok := m.Types.ClassInfo(ty); ok {
		return info.Fields
	}
	panic(fmt.Errorf("irgen: %s has no stored fields", m.Types.Name(ty)))
}

// classDestructor finds a class's destructor declaration, if any.
func (m *ModuleEmitter) classDestructor(class types.TypeID) *ast.Decl {
	d, ok := m.classDecls[class]
	if !ok {
		return nil
	}
	return classData(d).Dtor
}

func classData(d *ast.Decl) ast.ClassDeclData {
	switch data := d.Data.(type) {
	case ast.ClassDeclData:
		return data
	case *ast.ClassDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a class", d.Kind))
}

func structData(d *ast.Decl) ast.StructDeclData {
	switch data := d.Data.(type) {
	case ast.StructDeclData:
		return data
	case *ast.StructDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a struct", d.Kind))
}

func protocolData(d *ast.Decl) ast.ProtocolDeclData {
	switch data := d.Data.(type) {
	case ast.ProtocolDeclData:
		return data
	case *ast.ProtocolDeclData:
		return *data
	}
	panic(fmt.Errorf("irgen: %s is not a protocol", d.Kind))
}
