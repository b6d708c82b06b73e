package types //nolint:revive

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// Convention tags how a function expects to be called.
type Convention uint8

const (
	// ConvNative is the default convention for quill functions.
	ConvNative Convention = iota
	// ConvC is the foreign flat-C convention.
	ConvC
	// ConvMethod is the native convention with self passed last.
	ConvMethod
	// ConvForeignMethod is the foreign message-send convention.
	ConvForeignMethod
)

func (c Convention) String() string {
	switch c {
	case ConvNative:
		return "native"
	case ConvC:
		return "c"
	case ConvMethod:
		return "method"
	case ConvForeignMethod:
		return "foreign_method"
	default:
		return fmt.Sprintf("Convention(%d)", c)
	}
}

// IsForeign reports whether the convention crosses the bridging boundary.
func (c Convention) IsForeign() bool {
	return c == ConvC || c == ConvForeignMethod
}

// FnInfo stores metadata for function types. A curried function is
// represented by nesting: Result of the outer type is itself a KindFn.
type FnInfo struct {
	Params     []TypeID // parameter types, in order
	Result     TypeID   // return type
	Convention Convention
	// Thin marks a bare code pointer with no captured context.
	Thin bool
}

// RegisterFn creates or finds a thick native function type.
func (in *Interner) RegisterFn(params []TypeID, result TypeID) TypeID {
	return in.RegisterFnConv(params, result, ConvNative, false)
}

// RegisterFnConv creates or finds a function type with an explicit
// convention and thinness.
func (in *Interner) RegisterFnConv(params []TypeID, result TypeID, conv Convention, thin bool) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id := TypeID(1); int(id) < len(in.types); id++ {
		tt := in.types[id]
		if tt.Kind != KindFn {
			continue
		}
		if int(tt.Payload) >= len(in.fns) {
			continue
		}
		info := in.fns[tt.Payload]
		if info.Result == result && info.Convention == conv && info.Thin == thin &&
			slices.Equal(info.Params, params) {
			return id
		}
	}
	slot := in.appendFnInfo(FnInfo{
		Params:     cloneTypeArgs(params),
		Result:     result,
		Convention: conv,
		Thin:       thin,
	})
	return in.internRawLocked(Type{Kind: KindFn, Payload: slot})
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	tt, ok := in.lookupLocked(id)
	if !ok || tt.Kind != KindFn {
		return nil, false
	}
	if int(tt.Payload) >= len(in.fns) {
		return nil, false
	}
	return &in.fns[tt.Payload], true
}

// CurryLevels counts how many nested argument lists the function type has.
// A non-function type has zero levels.
func (in *Interner) CurryLevels(id TypeID) int {
	levels := 0
	for {
		info, ok := in.FnInfo(id)
		if !ok {
			return levels
		}
		levels++
		id = info.Result
	}
}

func (in *Interner) appendFnInfo(info FnInfo) uint32 {
	if in.fns == nil {
		in.fns = append(in.fns, FnInfo{})
	}
	in.fns = append(in.fns, info)
	slot, err := safecast.Conv[uint32](len(in.fns) - 1)
	if err != nil {
		panic(fmt.Errorf("fn info overflow: %w", err))
	}
	return slot
}
