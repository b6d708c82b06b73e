package types

import (
	"fmt"

	"fortio.org/safecast"

	"quill/internal/source"
)

// Field describes a single stored field inside a struct or class.
type Field struct {
	Name string
	Type TypeID
}

// StructInfo stores metadata for a nominal struct type.
type StructInfo struct {
	Name   string
	Decl   source.Span
	Fields []Field
	// Resilient structs have unknown layout outside their defining module
	// and must be manipulated by address.
	Resilient bool
}

// ClassInfo stores metadata for a nominal class type.
type ClassInfo struct {
	Name       string
	Decl       source.Span
	Superclass TypeID // NoTypeID for root classes
	Fields     []Field
	// Foreign marks classes whose root ancestry lives outside the native
	// runtime; their deallocation follows the foreign convention.
	Foreign bool
}

// RequirementKind distinguishes what a protocol asks its conformers for.
type RequirementKind uint8

const (
	ReqMethod RequirementKind = iota
	ReqGetter
	ReqSetter
)

// Requirement is a single entry of a protocol's requirement list, in
// declaration order.
type Requirement struct {
	Name string
	Kind RequirementKind
	Type TypeID
}

// ProtocolInfo stores metadata for a protocol type; a bare protocol used as
// a value type is an existential.
type ProtocolInfo struct {
	Name         string
	Decl         source.Span
	Requirements []Requirement
}

// ArchetypeInfo stores metadata for a generic parameter opened inside a
// generic context.
type ArchetypeInfo struct {
	Name     string
	Conforms []TypeID // protocol TypeIDs
}

// RegisterStruct allocates a nominal struct type slot and returns its TypeID.
func (in *Interner) RegisterStruct(name string, decl source.Span) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	slot := appendSlot(&in.structs, StructInfo{Name: name, Decl: decl}, "struct")
	return in.internRawLocked(Type{Kind: KindStruct, Payload: slot})
}

// SetStructFields stores the resolved field descriptors for the struct type.
func (in *Interner) SetStructFields(id TypeID, fields []Field) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info, ok := in.structInfoLocked(id); ok {
		info.Fields = cloneFields(fields)
	}
}

// SetStructResilient marks the struct as address-only due to resilience.
func (in *Interner) SetStructResilient(id TypeID, resilient bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info, ok := in.structInfoLocked(id); ok {
		info.Resilient = resilient
	}
}

// StructInfo returns metadata for the provided struct TypeID.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.structInfoLocked(id)
}

func (in *Interner) structInfoLocked(id TypeID) (*StructInfo, bool) {
	tt, ok := in.lookupLocked(id)
	if !ok || tt.Kind != KindStruct || int(tt.Payload) >= len(in.structs) || tt.Payload == 0 {
		return nil, false
	}
	return &in.structs[tt.Payload], true
}

// RegisterClass allocates a nominal class type slot and returns its TypeID.
func (in *Interner) RegisterClass(name string, decl source.Span, superclass TypeID) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	slot := appendSlot(&in.classes, ClassInfo{Name: name, Decl: decl, Superclass: superclass}, "class")
	return in.internRawLocked(Type{Kind: KindClass, Payload: slot})
}

// SetClassFields stores the resolved stored-field descriptors.
func (in *Interner) SetClassFields(id TypeID, fields []Field) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info, ok := in.classInfoLocked(id); ok {
		info.Fields = cloneFields(fields)
	}
}

// SetClassForeign marks the class hierarchy as foreign-rooted.
func (in *Interner) SetClassForeign(id TypeID, foreign bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info, ok := in.classInfoLocked(id); ok {
		info.Foreign = foreign
	}
}

// ClassInfo returns metadata for the provided class TypeID.
func (in *Interner) ClassInfo(id TypeID) (*ClassInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.classInfoLocked(id)
}

func (in *Interner) classInfoLocked(id TypeID) (*ClassInfo, bool) {
	tt, ok := in.lookupLocked(id)
	if !ok || tt.Kind != KindClass || int(tt.Payload) >= len(in.classes) || tt.Payload == 0 {
		return nil, false
	}
	return &in.classes[tt.Payload], true
}

// RegisterProtocol allocates a protocol type slot and returns its TypeID.
func (in *Interner) RegisterProtocol(name string, decl source.Span) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	slot := appendSlot(&in.protocols, ProtocolInfo{Name: name, Decl: decl}, "protocol")
	return in.internRawLocked(Type{Kind: KindProtocol, Payload: slot})
}

// SetProtocolRequirements stores the ordered requirement list.
func (in *Interner) SetProtocolRequirements(id TypeID, reqs []Requirement) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info, ok := in.protocolInfoLocked(id); ok {
		out := make([]Requirement, len(reqs))
		copy(out, reqs)
		info.Requirements = out
	}
}

// ProtocolInfo returns metadata for the provided protocol TypeID.
func (in *Interner) ProtocolInfo(id TypeID) (*ProtocolInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.protocolInfoLocked(id)
}

func (in *Interner) protocolInfoLocked(id TypeID) (*ProtocolInfo, bool) {
	tt, ok := in.lookupLocked(id)
	if !ok || tt.Kind != KindProtocol || int(tt.Payload) >= len(in.protocols) || tt.Payload == 0 {
		return nil, false
	}
	return &in.protocols[tt.Payload], true
}

// RegisterArchetype allocates an archetype slot and returns its TypeID.
func (in *Interner) RegisterArchetype(name string, conforms []TypeID) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	slot := appendSlot(&in.archetypes, ArchetypeInfo{Name: name, Conforms: cloneTypeArgs(conforms)}, "archetype")
	return in.internRawLocked(Type{Kind: KindArchetype, Payload: slot})
}

// ArchetypeInfo returns metadata for the provided archetype TypeID.
func (in *Interner) ArchetypeInfo(id TypeID) (*ArchetypeInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.archetypeInfoLocked(id)
}

func (in *Interner) archetypeInfoLocked(id TypeID) (*ArchetypeInfo, bool) {
	tt, ok := in.lookupLocked(id)
	if !ok || tt.Kind != KindArchetype || int(tt.Payload) >= len(in.archetypes) || tt.Payload == 0 {
		return nil, false
	}
	return &in.archetypes[tt.Payload], true
}

// Name returns a printable name for any TypeID.
func (in *Interner) Name(id TypeID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.nameLocked(id)
}

func (in *Interner) nameLocked(id TypeID) string {
	tt, ok := in.lookupLocked(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindStruct:
		if info, ok := in.structInfoLocked(id); ok {
			return info.Name
		}
	case KindClass:
		if info, ok := in.classInfoLocked(id); ok {
			return info.Name
		}
	case KindProtocol:
		if info, ok := in.protocolInfoLocked(id); ok {
			return info.Name
		}
	case KindArchetype:
		if info, ok := in.archetypeInfoLocked(id); ok {
			return info.Name
		}
	case KindOptional:
		return in.nameLocked(tt.Elem) + "?"
	case KindMetatype:
		return in.nameLocked(tt.Elem) + ".Type"
	case KindArray:
		return "[" + in.nameLocked(tt.Elem) + "]"
	}
	return tt.Kind.String()
}

func appendSlot[T any](table *[]T, info T, what string) uint32 {
	*table = append(*table, info)
	slot, err := safecast.Conv[uint32](len(*table) - 1)
	if err != nil {
		panic(fmt.Errorf("%s info overflow: %w", what, err))
	}
	return slot
}

func cloneFields(fields []Field) []Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
