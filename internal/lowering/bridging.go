package lowering

import (
	"quill/internal/types"
)

// Bridged returns the foreign counterpart of a bridgeable native type, the
// native counterpart of a foreign one, and every other type unchanged.
// Conversion instructions are inserted at call boundaries by the emitter;
// this function only answers the substitution question.
func (c *Converter) Bridged(ty types.TypeID) types.TypeID {
	bt := c.types.Builtins()
	switch ty {
	case bt.Bool:
		return bt.ForeignBool
	case bt.String:
		return bt.ForeignString
	case bt.ForeignBool:
		return bt.Bool
	case bt.ForeignString:
		return bt.String
	}
	tt, ok := c.types.Lookup(ty)
	if ok && tt.Kind == types.KindProtocol {
		// Existentials cross the boundary as the generic boxed reference.
		return bt.AnyObject
	}
	return ty
}

// NeedsBridging reports whether a value of ty changes representation at a
// foreign boundary.
func (c *Converter) NeedsBridging(ty types.TypeID) bool {
	return c.Bridged(ty) != ty
}
