package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of semantic types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindNever
	KindBool
	KindInt
	KindFloat
	KindString
	// KindForeignBool is the bridged counterpart of Bool under a foreign
	// calling convention.
	KindForeignBool
	// KindForeignString is the bridged counterpart of String.
	KindForeignString
	// KindAnyObject is the generic boxed-reference type; bridging target of
	// the native Any existential.
	KindAnyObject
	KindRawPointer
	KindTuple
	KindStruct
	KindClass
	KindProtocol
	KindArchetype
	KindOptional
	KindMetatype
	KindArray
	// KindBox is a heap cell holding a single mutable value, used for
	// by-reference captures.
	KindBox
	KindFn
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindNever:
		return "never"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindForeignBool:
		return "foreign_bool"
	case KindForeignString:
		return "foreign_string"
	case KindAnyObject:
		return "any_object"
	case KindRawPointer:
		return "raw_pointer"
	case KindTuple:
		return "tuple"
	case KindStruct:
		return "struct"
	case KindClass:
		return "class"
	case KindProtocol:
		return "protocol"
	case KindArchetype:
		return "archetype"
	case KindOptional:
		return "optional"
	case KindMetatype:
		return "metatype"
	case KindArray:
		return "array"
	case KindBox:
		return "box"
	case KindFn:
		return "fn"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats.
type Width uint8

const (
	WidthAny Width = 0
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
)

// Type is a compact descriptor for any supported type. Compound payloads
// (tuple elements, function signatures, nominal metadata) live in side
// tables addressed by Payload.
type Type struct {
	Kind    Kind
	Elem    TypeID // optional/metatype/array/box element
	Width   Width  // numeric primitives
	Payload uint32 // slot into the interner's side tables
}

// IsReference reports whether values of this kind are single refcounted
// pointers.
func (t Type) IsReference() bool {
	return t.Kind == KindClass || t.Kind == KindAnyObject || t.Kind == KindBox
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes a signed integer of the given width (WidthAny for "Int").
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakeOptional describes T?.
func MakeOptional(elem TypeID) Type {
	return Type{Kind: KindOptional, Elem: elem}
}

// MakeMetatype describes T.Type.
func MakeMetatype(instance TypeID) Type {
	return Type{Kind: KindMetatype, Elem: instance}
}

// MakeArray describes [T].
func MakeArray(elem TypeID) Type {
	return Type{Kind: KindArray, Elem: elem}
}

// MakeBox describes a mutable heap cell of T.
func MakeBox(elem TypeID) Type {
	return Type{Kind: KindBox, Elem: elem}
}

func cloneTypeArgs(ids []TypeID) []TypeID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]TypeID, len(ids))
	copy(out, ids)
	return out
}
