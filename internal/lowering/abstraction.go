package lowering

import (
	"fmt"

	"quill/internal/types"
)

// AbstractionPattern describes how a function type is represented at one
// use site: the calling convention and whether a context pointer rides
// along. Two lowerings of the same semantic type under different patterns
// produce distinct IR types.
type AbstractionPattern struct {
	Convention types.Convention
	Thin       bool
}

// NativePattern is the default representation: thick, native convention.
var NativePattern = AbstractionPattern{Convention: types.ConvNative}

// ThinPattern is a bare native code pointer.
var ThinPattern = AbstractionPattern{Convention: types.ConvNative, Thin: true}

// ForeignPattern is the foreign C convention (always thin).
var ForeignPattern = AbstractionPattern{Convention: types.ConvC, Thin: true}

// MethodPattern is the native convention with self appended.
var MethodPattern = AbstractionPattern{Convention: types.ConvMethod, Thin: true}

func (p AbstractionPattern) String() string {
	s := p.Convention.String()
	if p.Thin {
		s += " thin"
	}
	return s
}

// Uncurry flattens up to level argument lists of a (possibly curried)
// function type into one parameter list. Level 0 returns the type's own
// first list. The innermost list comes first and outer lists follow, so a
// partial application binding an outer list binds a trailing suffix of
// the uncurried entry. Asking for more levels than the type has is an
// internal error: the checker guarantees curry depths.
func Uncurry(in *types.Interner, fnType types.TypeID, level uint8) (params []types.TypeID, result types.TypeID) {
	lists := [][]types.TypeID{}
	info, ok := in.FnInfo(fnType)
	if !ok {
		panic(fmt.Errorf("lowering: uncurry of non-function type %d", fnType))
	}
	lists = append(lists, info.Params)
	result = info.Result
	for l := uint8(0); l < level; l++ {
		next, ok := in.FnInfo(result)
		if !ok {
			panic(fmt.Errorf("lowering: uncurry level %d exceeds curry depth of type %d", level, fnType))
		}
		lists = append(lists, next.Params)
		result = next.Result
	}
	for i := len(lists) - 1; i >= 0; i-- {
		params = append(params, lists[i]...)
	}
	return params, result
}
