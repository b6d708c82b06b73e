package ir

// FuncID identifies a function inside a Module.
type FuncID uint32

// NoFuncID marks the absence of a function.
const NoFuncID FuncID = 0

// BlockID identifies a basic block inside a Func.
type BlockID uint32

// NoBlockID marks the absence of a block.
const NoBlockID BlockID = ^BlockID(0)

// ValueID identifies an SSA value inside a Func. Values are defined by
// block parameters and by value-producing instructions.
type ValueID uint32

// NoValueID marks the absence of a value.
const NoValueID ValueID = ^ValueID(0)
