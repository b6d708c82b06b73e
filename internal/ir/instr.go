package ir

import (
	"quill/internal/ast"
	"quill/internal/types"
)

// InstrKind enumerates instruction kinds in QIR.
type InstrKind uint8

const (
	// InstrConst materializes a constant.
	InstrConst InstrKind = iota
	// InstrAllocStack allocates an uninitialized stack slot.
	InstrAllocStack
	// InstrDeallocStack frees a stack slot.
	InstrDeallocStack
	// InstrAllocRef heap-allocates an uninitialized class instance.
	InstrAllocRef
	// InstrDeallocRef frees class storage without running a destructor.
	InstrDeallocRef
	// InstrAllocBox heap-allocates a mutable cell.
	InstrAllocBox
	// InstrProjectBox produces the address inside a box.
	InstrProjectBox
	// InstrLoad loads a loadable value from an address.
	InstrLoad
	// InstrStore stores a loadable value to an address.
	InstrStore
	// InstrCopyAddr copies between addresses of an address-only type.
	InstrCopyAddr
	// InstrDestroyAddr destroys the value at an address.
	InstrDestroyAddr
	// InstrRetain increments a reference count.
	InstrRetain
	// InstrRelease decrements a reference count.
	InstrRelease
	// InstrTuple constructs a tuple from loadable elements.
	InstrTuple
	// InstrTupleExtract projects one element out of a tuple value.
	InstrTupleExtract
	// InstrTupleElementAddr computes a tuple element's address.
	InstrTupleElementAddr
	// InstrStruct constructs a struct from loadable fields.
	InstrStruct
	// InstrStructExtract projects one field out of a struct value.
	InstrStructExtract
	// InstrStructElementAddr computes a struct field's address.
	InstrStructElementAddr
	// InstrRefElementAddr computes a class stored-field's address.
	InstrRefElementAddr
	// InstrFunctionRef references a function by mangled name.
	InstrFunctionRef
	// InstrApply calls a function value with uncurried arguments.
	InstrApply
	// InstrPartialApply binds trailing arguments, producing a thick value.
	InstrPartialApply
	// InstrThinToThick wraps a bare code pointer with an empty context.
	InstrThinToThick
	// InstrClassMethod looks a method up through the vtable.
	InstrClassMethod
	// InstrSuperMethod looks a method up in the superclass vtable.
	InstrSuperMethod
	// InstrWitnessMethod looks a requirement up through a witness table.
	InstrWitnessMethod
	// InstrMetatype produces a type object.
	InstrMetatype
	// InstrUpcast widens a class reference to a superclass type.
	InstrUpcast
	// InstrUncondCast performs a checked cast, trapping on failure.
	InstrUncondCast
	// InstrInjectOptional wraps a value (or nothing) into an optional.
	InstrInjectOptional
	// InstrOptionalHasValue tests optional presence.
	InstrOptionalHasValue
	// InstrOptionalExtract projects the payload, trapping when empty.
	InstrOptionalExtract
	// InstrBridgeToForeign converts a native value at a foreign boundary.
	InstrBridgeToForeign
	// InstrBridgeFromForeign converts a foreign value back.
	InstrBridgeFromForeign
	// InstrBuiltin invokes a named primitive operation.
	InstrBuiltin
)

// Instr represents a QIR instruction. Result is valid for value-producing
// kinds.
type Instr struct {
	Kind   InstrKind
	Result Value

	Const             ConstInstr
	AllocStack        AllocStackInstr
	DeallocStack      DeallocStackInstr
	AllocRef          AllocRefInstr
	DeallocRef        DeallocRefInstr
	AllocBox          AllocBoxInstr
	ProjectBox        ProjectBoxInstr
	Load              LoadInstr
	Store             StoreInstr
	CopyAddr          CopyAddrInstr
	DestroyAddr       DestroyAddrInstr
	Retain            RetainInstr
	Release           ReleaseInstr
	Tuple             TupleInstr
	TupleExtract      TupleExtractInstr
	TupleElementAddr  TupleElementAddrInstr
	Struct            StructInstr
	StructExtract     StructExtractInstr
	StructElementAddr StructElementAddrInstr
	RefElementAddr    RefElementAddrInstr
	FunctionRef       FunctionRefInstr
	Apply             ApplyInstr
	PartialApply      PartialApplyInstr
	ThinToThick       ThinToThickInstr
	ClassMethod       ClassMethodInstr
	SuperMethod       SuperMethodInstr
	WitnessMethod     WitnessMethodInstr
	Metatype          MetatypeInstr
	Upcast            UpcastInstr
	UncondCast        UncondCastInstr
	InjectOptional    InjectOptionalInstr
	OptionalHasValue  OptionalHasValueInstr
	OptionalExtract   OptionalExtractInstr
	BridgeToForeign   BridgeInstr
	BridgeFromForeign BridgeInstr
	Builtin           BuiltinInstr
}

// ConstKind distinguishes constant kinds.
type ConstKind uint8

const (
	// ConstInt represents an integer constant.
	ConstInt ConstKind = iota
	// ConstFloat represents a float constant.
	ConstFloat
	// ConstBool represents a boolean constant.
	ConstBool
	// ConstString represents a string constant.
	ConstString
	// ConstUnit represents the unit value.
	ConstUnit
	// ConstUndef is the error-recovery placeholder value.
	ConstUndef
)

// ConstInstr materializes a constant of the result type.
type ConstInstr struct {
	Const       ConstKind
	IntValue    int64
	FloatValue  float64
	BoolValue   bool
	StringValue string
}

// AllocStackInstr allocates a slot for Type; result is its address.
type AllocStackInstr struct {
	Type types.TypeID
}

// DeallocStackInstr frees the slot at Addr. Slots are freed in reverse
// allocation order.
type DeallocStackInstr struct {
	Addr ValueID
}

// AllocRefInstr heap-allocates storage for Class; result is the reference.
type AllocRefInstr struct {
	Class types.TypeID
}

// DeallocRefInstr frees Ref's storage directly.
type DeallocRefInstr struct {
	Ref ValueID
	// Foreign uses the foreign deallocation convention.
	Foreign bool
}

// AllocBoxInstr heap-allocates a cell of Elem; result is the box reference.
type AllocBoxInstr struct {
	Elem types.TypeID
}

// ProjectBoxInstr produces the payload address of Box.
type ProjectBoxInstr struct {
	Box ValueID
}

// LoadInstr loads from Addr.
type LoadInstr struct {
	Addr ValueID
}

// StoreInstr stores Value to Addr.
type StoreInstr struct {
	Value ValueID
	Addr  ValueID
	// Init marks initialization of uninitialized memory (no implicit
	// release of the previous contents).
	Init bool
}

// CopyAddrInstr copies the value at Src into Dst.
type CopyAddrInstr struct {
	Src ValueID
	Dst ValueID
	// Take consumes the source instead of copying it.
	Take bool
	// Init treats Dst as uninitialized.
	Init bool
}

// DestroyAddrInstr destroys the value at Addr in place.
type DestroyAddrInstr struct {
	Addr ValueID
}

// RetainInstr increments the refcount of Value.
type RetainInstr struct {
	Value ValueID
}

// ReleaseInstr decrements the refcount of Value.
type ReleaseInstr struct {
	Value ValueID
}

// TupleInstr constructs a tuple of the result type.
type TupleInstr struct {
	Elems []ValueID
}

// TupleExtractInstr projects element Index out of Tuple.
type TupleExtractInstr struct {
	Tuple ValueID
	Index int
}

// TupleElementAddrInstr computes the address of element Index.
type TupleElementAddrInstr struct {
	Addr  ValueID
	Index int
}

// StructInstr constructs a struct of the result type.
type StructInstr struct {
	Fields []ValueID
}

// StructExtractInstr projects field Index out of Struct.
type StructExtractInstr struct {
	Struct ValueID
	Field  string
	Index  int
}

// StructElementAddrInstr computes the address of field Index.
type StructElementAddrInstr struct {
	Addr  ValueID
	Field string
	Index int
}

// RefElementAddrInstr computes the address of stored field Index inside a
// class instance.
type RefElementAddrInstr struct {
	Ref   ValueID
	Field string
	Index int
}

// FunctionRefInstr references the function named Name; result is a thin
// function value.
type FunctionRefInstr struct {
	Name string
	Func FuncID
}

// ApplyInstr calls Fn with Args (one uncurried argument list).
type ApplyInstr struct {
	Fn   ValueID
	Args []ValueID
	// IndirectResult, when valid, is the address the callee writes an
	// address-only result into; the instruction then produces no value.
	IndirectResult ValueID
}

// PartialApplyInstr binds Args as Fn's trailing arguments; result is a
// thick function value owning the bound context.
type PartialApplyInstr struct {
	Fn   ValueID
	Args []ValueID
}

// ThinToThickInstr adjusts a bare function pointer to the thick
// representation with a null context.
type ThinToThickInstr struct {
	Fn ValueID
}

// ClassMethodInstr performs a vtable lookup on Ref's dynamic type.
type ClassMethodInstr struct {
	Ref    ValueID
	Member *ast.Decl
	Name   string
}

// SuperMethodInstr performs a vtable lookup starting at the superclass.
type SuperMethodInstr struct {
	Ref    ValueID
	Member *ast.Decl
	Name   string
}

// WitnessMethodInstr looks up a protocol requirement's witness for the
// dynamic type inside Existential.
type WitnessMethodInstr struct {
	Existential ValueID
	Protocol    types.TypeID
	Requirement int
	Name        string
}

// MetatypeInstr produces the type object for Instance.
type MetatypeInstr struct {
	Instance types.TypeID
}

// UpcastInstr widens a class reference to the result type.
type UpcastInstr struct {
	Value ValueID
}

// UncondCastInstr performs a checked cast to the result type, trapping on
// failure.
type UncondCastInstr struct {
	Value ValueID
	Cast  ast.CastKind
}

// InjectOptionalInstr wraps Value into .some, or produces .none when Value
// is absent.
type InjectOptionalInstr struct {
	Value ValueID // NoValueID for .none
}

// OptionalHasValueInstr tests presence; result is Bool.
type OptionalHasValueInstr struct {
	Value ValueID
}

// OptionalExtractInstr projects the payload, trapping when empty.
type OptionalExtractInstr struct {
	Value ValueID
}

// BridgeInstr converts across the native/foreign boundary; direction is
// given by the instruction kind.
type BridgeInstr struct {
	Value ValueID
}

// BuiltinInstr invokes the named primitive operation.
type BuiltinInstr struct {
	Name string
	Args []ValueID
}
