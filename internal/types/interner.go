package types

import (
	"fmt"
	"sync"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for common primitive types.
type Builtins struct {
	Invalid       TypeID
	Unit          TypeID
	Never         TypeID
	Bool          TypeID
	Int           TypeID
	Float         TypeID
	String        TypeID
	ForeignBool   TypeID
	ForeignString TypeID
	AnyObject     TypeID
	RawPointer    TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Nominal types (structs, classes, protocols, archetypes) are identities:
// every Register call mints a fresh TypeID. Structural types (tuples,
// functions, optionals) are deduplicated. Safe for concurrent use:
// function emission interns on demand while other emitters read.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins

	tuples     []TupleInfo
	fns        []FnInfo
	structs    []StructInfo
	classes    []ClassInfo
	protocols  []ProtocolInfo
	archetypes []ArchetypeInfo
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[typeKey]TypeID, 64),
	}
	// Reserve slot 0 of every side table as an invalid sentinel.
	in.structs = append(in.structs, StructInfo{})
	in.classes = append(in.classes, ClassInfo{})
	in.protocols = append(in.protocols, ProtocolInfo{})
	in.archetypes = append(in.archetypes, ArchetypeInfo{})
	// No lock: the interner is not shared until construction returns.
	in.builtins.Invalid = in.internRawLocked(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Never = in.Intern(Type{Kind: KindNever})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.Int = in.Intern(MakeInt(WidthAny))
	in.builtins.Float = in.Intern(MakeFloat(WidthAny))
	in.builtins.String = in.Intern(Type{Kind: KindString})
	in.builtins.ForeignBool = in.Intern(Type{Kind: KindForeignBool})
	in.builtins.ForeignString = in.Intern(Type{Kind: KindForeignString})
	in.builtins.AnyObject = in.Intern(Type{Kind: KindAnyObject})
	in.builtins.RawPointer = in.Intern(Type{Kind: KindRawPointer})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRawLocked(t)
}

// internRawLocked adds the descriptor to the storage without consulting
// the map. Callers hold mu.
func (in *Interner) internRawLocked(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	key := typeKey(t)
	in.index[key] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.lookupLocked(id)
}

func (in *Interner) lookupLocked(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Optional interns T? for the given element.
func (in *Interner) Optional(elem TypeID) TypeID {
	return in.Intern(MakeOptional(elem))
}

// Metatype interns T.Type for the given instance type.
func (in *Interner) Metatype(instance TypeID) TypeID {
	return in.Intern(MakeMetatype(instance))
}

// Array interns [T] for the given element.
func (in *Interner) Array(elem TypeID) TypeID {
	return in.Intern(MakeArray(elem))
}

// Box interns a mutable heap cell of T.
func (in *Interner) Box(elem TypeID) TypeID {
	return in.Intern(MakeBox(elem))
}

type typeKey struct {
	Kind    Kind
	Elem    TypeID
	Width   Width
	Payload uint32
}
