package ast

import (
	"quill/internal/types"
)

// WitnessEntry maps one protocol requirement (by index into the protocol's
// requirement list) to the concrete declaration implementing it.
type WitnessEntry struct {
	Requirement int
	Witness     *Decl
}

// Conformance records that a nominal type satisfies a protocol, with one
// witness per requirement.
type Conformance struct {
	Type     types.TypeID
	Protocol types.TypeID
	// ProtocolDecl is the declaration the requirement indices refer to.
	ProtocolDecl *Decl
	Witnesses    []WitnessEntry
}

// Module is the unit handed to lowering: a list of validated top-level
// declarations plus the conformance table the checker derived for them.
type Module struct {
	Name         string
	Decls        []*Decl
	Conformances []*Conformance
}

// ConformancesFor returns the conformances registered for a type.
func (m *Module) ConformancesFor(ty types.TypeID) []*Conformance {
	var out []*Conformance
	for _, c := range m.Conformances {
		if c.Type == ty {
			out = append(out, c)
		}
	}
	return out
}
