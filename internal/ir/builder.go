package ir

import (
	"fmt"

	"fortio.org/safecast"

	"quill/internal/ast"
	"quill/internal/types"
)

// Builder appends instructions to one function, tracking the current
// insertion block. Emission into a terminated block is an internal error.
type Builder struct {
	Fn    *Func
	Types *types.Interner

	cur BlockID
}

// NewBuilder creates a builder positioned at no block.
func NewBuilder(f *Func, in *types.Interner) *Builder {
	return &Builder{Fn: f, Types: in, cur: NoBlockID}
}

// NewBlock appends a fresh block with the given parameters. The first
// block created becomes the entry.
func (b *Builder) NewBlock(params ...Value) BlockID {
	lenBlocks, err := safecast.Conv[uint32](len(b.Fn.Blocks))
	if err != nil {
		panic(fmt.Errorf("ir: block count overflow: %w", err))
	}
	id := BlockID(lenBlocks)
	b.Fn.Blocks = append(b.Fn.Blocks, Block{ID: id, Params: params})
	if b.Fn.Entry == NoBlockID {
		b.Fn.Entry = id
	}
	return id
}

// NewBlockParam allocates a block parameter value of the given type.
func (b *Builder) NewBlockParam(ty types.TypeID, addr bool) Value {
	return b.Fn.NewValue(ty, addr)
}

// SetInsert moves the insertion point to the end of block id.
func (b *Builder) SetInsert(id BlockID) {
	b.cur = id
}

// CurrentBlock returns the insertion block.
func (b *Builder) CurrentBlock() BlockID {
	return b.cur
}

// Block returns the current block storage.
func (b *Builder) block() *Block {
	if b.cur == NoBlockID {
		panic("ir: builder has no insertion block")
	}
	return b.Fn.Block(b.cur)
}

// HasTerminator reports whether the current block is already closed.
func (b *Builder) HasTerminator() bool {
	return b.block().Terminated()
}

func (b *Builder) emit(in Instr) {
	blk := b.block()
	if blk.Terminated() {
		panic(fmt.Errorf("ir: emitting %d into terminated block b%d", in.Kind, blk.ID))
	}
	blk.Instrs = append(blk.Instrs, in)
}

func (b *Builder) emitValue(in Instr, ty types.TypeID, addr bool) Value {
	v := b.Fn.NewValue(ty, addr)
	in.Result = v
	b.emit(in)
	return v
}

// Constants -------------------------------------------------------------

func (b *Builder) ConstInt(ty types.TypeID, v int64) Value {
	return b.emitValue(Instr{Kind: InstrConst, Const: ConstInstr{Const: ConstInt, IntValue: v}}, ty, false)
}

func (b *Builder) ConstFloat(ty types.TypeID, v float64) Value {
	return b.emitValue(Instr{Kind: InstrConst, Const: ConstInstr{Const: ConstFloat, FloatValue: v}}, ty, false)
}

func (b *Builder) ConstBool(ty types.TypeID, v bool) Value {
	return b.emitValue(Instr{Kind: InstrConst, Const: ConstInstr{Const: ConstBool, BoolValue: v}}, ty, false)
}

func (b *Builder) ConstString(ty types.TypeID, v string) Value {
	return b.emitValue(Instr{Kind: InstrConst, Const: ConstInstr{Const: ConstString, StringValue: v}}, ty, false)
}

func (b *Builder) ConstUnit(ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrConst, Const: ConstInstr{Const: ConstUnit}}, ty, false)
}

// Undef produces the error-recovery placeholder of the given type.
func (b *Builder) Undef(ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrConst, Const: ConstInstr{Const: ConstUndef}}, ty, false)
}

// Memory ----------------------------------------------------------------

func (b *Builder) AllocStack(ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrAllocStack, AllocStack: AllocStackInstr{Type: ty}}, ty, true)
}

func (b *Builder) DeallocStack(addr Value) {
	b.emit(Instr{Kind: InstrDeallocStack, DeallocStack: DeallocStackInstr{Addr: addr.ID}})
}

func (b *Builder) AllocRef(class types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrAllocRef, AllocRef: AllocRefInstr{Class: class}}, class, false)
}

func (b *Builder) DeallocRef(ref Value, foreign bool) {
	b.emit(Instr{Kind: InstrDeallocRef, DeallocRef: DeallocRefInstr{Ref: ref.ID, Foreign: foreign}})
}

func (b *Builder) AllocBox(elem types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrAllocBox, AllocBox: AllocBoxInstr{Elem: elem}}, b.Types.Box(elem), false)
}

func (b *Builder) ProjectBox(box Value) Value {
	tt := b.Types.MustLookup(box.Type)
	return b.emitValue(Instr{Kind: InstrProjectBox, ProjectBox: ProjectBoxInstr{Box: box.ID}}, tt.Elem, true)
}

func (b *Builder) Load(addr Value) Value {
	if !addr.Addr {
		panic("ir: load from non-address value")
	}
	return b.emitValue(Instr{Kind: InstrLoad, Load: LoadInstr{Addr: addr.ID}}, addr.Type, false)
}

func (b *Builder) Store(v, addr Value) {
	b.emit(Instr{Kind: InstrStore, Store: StoreInstr{Value: v.ID, Addr: addr.ID}})
}

// StoreInit stores into known-uninitialized memory.
func (b *Builder) StoreInit(v, addr Value) {
	b.emit(Instr{Kind: InstrStore, Store: StoreInstr{Value: v.ID, Addr: addr.ID, Init: true}})
}

func (b *Builder) CopyAddr(src, dst Value, take, init bool) {
	b.emit(Instr{Kind: InstrCopyAddr, CopyAddr: CopyAddrInstr{Src: src.ID, Dst: dst.ID, Take: take, Init: init}})
}

func (b *Builder) DestroyAddr(addr Value) {
	b.emit(Instr{Kind: InstrDestroyAddr, DestroyAddr: DestroyAddrInstr{Addr: addr.ID}})
}

func (b *Builder) Retain(v Value) {
	b.emit(Instr{Kind: InstrRetain, Retain: RetainInstr{Value: v.ID}})
}

func (b *Builder) Release(v Value) {
	b.emit(Instr{Kind: InstrRelease, Release: ReleaseInstr{Value: v.ID}})
}

// Aggregates ------------------------------------------------------------

func (b *Builder) Tuple(ty types.TypeID, elems []Value) Value {
	return b.emitValue(Instr{Kind: InstrTuple, Tuple: TupleInstr{Elems: valueIDs(elems)}}, ty, false)
}

func (b *Builder) TupleExtract(tuple Value, index int) Value {
	info, ok := b.Types.TupleInfo(tuple.Type)
	if !ok || index >= len(info.Elems) {
		panic(fmt.Errorf("ir: tuple_extract %d out of range", index))
	}
	return b.emitValue(Instr{Kind: InstrTupleExtract,
		TupleExtract: TupleExtractInstr{Tuple: tuple.ID, Index: index}}, info.Elems[index], false)
}

func (b *Builder) TupleElementAddr(addr Value, index int) Value {
	info, ok := b.Types.TupleInfo(addr.Type)
	if !ok || index >= len(info.Elems) {
		panic(fmt.Errorf("ir: tuple_element_addr %d out of range", index))
	}
	return b.emitValue(Instr{Kind: InstrTupleElementAddr,
		TupleElementAddr: TupleElementAddrInstr{Addr: addr.ID, Index: index}}, info.Elems[index], true)
}

func (b *Builder) Struct(ty types.TypeID, fields []Value) Value {
	return b.emitValue(Instr{Kind: InstrStruct, Struct: StructInstr{Fields: valueIDs(fields)}}, ty, false)
}

func (b *Builder) StructExtract(v Value, field string, index int, elem types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrStructExtract,
		StructExtract: StructExtractInstr{Struct: v.ID, Field: field, Index: index}}, elem, false)
}

func (b *Builder) StructElementAddr(addr Value, field string, index int, elem types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrStructElementAddr,
		StructElementAddr: StructElementAddrInstr{Addr: addr.ID, Field: field, Index: index}}, elem, true)
}

func (b *Builder) RefElementAddr(ref Value, field string, index int, elem types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrRefElementAddr,
		RefElementAddr: RefElementAddrInstr{Ref: ref.ID, Field: field, Index: index}}, elem, true)
}

// Functions -------------------------------------------------------------

func (b *Builder) FunctionRef(name string, id FuncID, ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrFunctionRef,
		FunctionRef: FunctionRefInstr{Name: name, Func: id}}, ty, false)
}

func (b *Builder) Apply(fn Value, args []Value, result types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrApply,
		Apply: ApplyInstr{Fn: fn.ID, Args: valueIDs(args), IndirectResult: NoValueID}}, result, false)
}

// ApplyIndirect calls fn writing its address-only result into resultAddr.
func (b *Builder) ApplyIndirect(fn Value, args []Value, resultAddr Value) {
	b.emit(Instr{Kind: InstrApply,
		Apply: ApplyInstr{Fn: fn.ID, Args: valueIDs(args), IndirectResult: resultAddr.ID}})
}

func (b *Builder) PartialApply(fn Value, args []Value, result types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrPartialApply,
		PartialApply: PartialApplyInstr{Fn: fn.ID, Args: valueIDs(args)}}, result, false)
}

func (b *Builder) ThinToThick(fn Value, thick types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrThinToThick, ThinToThick: ThinToThickInstr{Fn: fn.ID}}, thick, false)
}

func (b *Builder) ClassMethod(ref Value, member *ast.Decl, name string, ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrClassMethod,
		ClassMethod: ClassMethodInstr{Ref: ref.ID, Member: member, Name: name}}, ty, false)
}

func (b *Builder) SuperMethod(ref Value, member *ast.Decl, name string, ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrSuperMethod,
		SuperMethod: SuperMethodInstr{Ref: ref.ID, Member: member, Name: name}}, ty, false)
}

func (b *Builder) WitnessMethod(existential Value, proto types.TypeID, req int, name string, ty types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrWitnessMethod,
		WitnessMethod: WitnessMethodInstr{Existential: existential.ID, Protocol: proto, Requirement: req, Name: name}}, ty, false)
}

// Casts and optionals ---------------------------------------------------

func (b *Builder) Metatype(instance types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrMetatype,
		Metatype: MetatypeInstr{Instance: instance}}, b.Types.Metatype(instance), false)
}

func (b *Builder) Upcast(v Value, to types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrUpcast, Upcast: UpcastInstr{Value: v.ID}}, to, false)
}

func (b *Builder) UncondCast(v Value, cast ast.CastKind, to types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrUncondCast,
		UncondCast: UncondCastInstr{Value: v.ID, Cast: cast}}, to, false)
}

// InjectOptional wraps v into .some of optTy; pass NoValue for .none.
func (b *Builder) InjectOptional(v Value, optTy types.TypeID) Value {
	id := NoValueID
	if v.IsValid() {
		id = v.ID
	}
	return b.emitValue(Instr{Kind: InstrInjectOptional,
		InjectOptional: InjectOptionalInstr{Value: id}}, optTy, false)
}

func (b *Builder) OptionalHasValue(v Value) Value {
	return b.emitValue(Instr{Kind: InstrOptionalHasValue,
		OptionalHasValue: OptionalHasValueInstr{Value: v.ID}}, b.Types.Builtins().Bool, false)
}

func (b *Builder) OptionalExtract(v Value) Value {
	tt := b.Types.MustLookup(v.Type)
	if tt.Kind != types.KindOptional {
		panic("ir: optional_extract of non-optional")
	}
	return b.emitValue(Instr{Kind: InstrOptionalExtract,
		OptionalExtract: OptionalExtractInstr{Value: v.ID}}, tt.Elem, false)
}

func (b *Builder) BridgeToForeign(v Value, to types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrBridgeToForeign,
		BridgeToForeign: BridgeInstr{Value: v.ID}}, to, false)
}

func (b *Builder) BridgeFromForeign(v Value, to types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrBridgeFromForeign,
		BridgeFromForeign: BridgeInstr{Value: v.ID}}, to, false)
}

func (b *Builder) Builtin(name string, args []Value, result types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrBuiltin,
		Builtin: BuiltinInstr{Name: name, Args: valueIDs(args)}}, result, false)
}

// BuiltinAddr invokes a primitive whose result is an address, such as
// global-storage projection.
func (b *Builder) BuiltinAddr(name string, args []Value, result types.TypeID) Value {
	return b.emitValue(Instr{Kind: InstrBuiltin,
		Builtin: BuiltinInstr{Name: name, Args: valueIDs(args)}}, result, true)
}

// Terminators -----------------------------------------------------------

func (b *Builder) Return(v Value) {
	b.terminate(Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: true, Value: v.ID}})
}

func (b *Builder) ReturnVoid() {
	b.terminate(Terminator{Kind: TermReturn})
}

func (b *Builder) Br(target BlockID, args ...Value) {
	b.terminate(Terminator{Kind: TermBr, Br: BrTerm{Target: target, Args: valueIDs(args)}})
}

func (b *Builder) CondBr(cond Value, then BlockID, thenArgs []Value, els BlockID, elseArgs []Value) {
	b.terminate(Terminator{Kind: TermCondBr, CondBr: CondBrTerm{
		Cond: cond.ID, Then: then, ThenArgs: valueIDs(thenArgs), Else: els, ElseArgs: valueIDs(elseArgs),
	}})
}

func (b *Builder) CheckedCastBr(v Value, cast ast.CastKind, succ, fail BlockID) {
	b.terminate(Terminator{Kind: TermCheckedCastBr, CheckedCastBr: CheckedCastBrTerm{
		Value: v.ID, Cast: cast, Succ: succ, Fail: fail,
	}})
}

func (b *Builder) Unreachable() {
	b.terminate(Terminator{Kind: TermUnreachable})
}

func (b *Builder) terminate(t Terminator) {
	blk := b.block()
	if blk.Terminated() {
		panic(fmt.Errorf("ir: double termination of block b%d", blk.ID))
	}
	blk.Term = t
}

func valueIDs(vals []Value) []ValueID {
	if len(vals) == 0 {
		return nil
	}
	out := make([]ValueID, len(vals))
	for i, v := range vals {
		out[i] = v.ID
	}
	return out
}
