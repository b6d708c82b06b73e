package ir

import (
	"fmt"

	"quill/internal/types"
)

// Module is the unit of QIR output: functions plus the dispatch tables the
// emitted code relies on.
type Module struct {
	Name string

	Funcs      map[FuncID]*Func
	FuncByName map[string]FuncID

	VTables       []*VTable
	WitnessTables []*WitnessTable

	nextFunc FuncID
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:       name,
		Funcs:      make(map[FuncID]*Func),
		FuncByName: make(map[string]FuncID),
		nextFunc:   1,
	}
}

// NewFunc registers an empty function with the given mangled name and
// lowered type. Registering the same name twice is an internal error.
func (m *Module) NewFunc(name string, ty types.TypeID) *Func {
	if _, exists := m.FuncByName[name]; exists {
		panic(fmt.Errorf("ir: duplicate function %q", name))
	}
	id := m.nextFunc
	m.nextFunc++
	f := &Func{ID: id, Name: name, Type: ty, Entry: NoBlockID}
	m.Funcs[id] = f
	m.FuncByName[name] = id
	return f
}

// Lookup returns the function with the given mangled name.
func (m *Module) Lookup(name string) (*Func, bool) {
	id, ok := m.FuncByName[name]
	if !ok {
		return nil, false
	}
	return m.Funcs[id], true
}

// VTableFor returns the vtable registered for a class type.
func (m *Module) VTableFor(class types.TypeID) (*VTable, bool) {
	for _, t := range m.VTables {
		if t.Class == class {
			return t, true
		}
	}
	return nil, false
}

// WitnessTableFor returns the witness table for a (type, protocol) pair.
func (m *Module) WitnessTableFor(ty, proto types.TypeID) (*WitnessTable, bool) {
	for _, t := range m.WitnessTables {
		if t.Type == ty && t.Protocol == proto {
			return t, true
		}
	}
	return nil, false
}

// NumFuncs returns how many functions the module holds.
func (m *Module) NumFuncs() int {
	return len(m.Funcs)
}
