package diag

import (
	"fmt"
)

// Code identifies one diagnostic family. Codes are stable across releases;
// renumbering breaks tooling that filters on them.
type Code uint16

const (
	UnknownCode Code = 0

	// Type-constraint diagnosis (4xxx). Emitted by csdiag from a frozen
	// failed solver state.
	TcInfo                 Code = 4000
	TcTypeMismatch         Code = 4001
	TcTupleArity           Code = 4002
	TcMissingMember        Code = 4003
	TcDoesNotConform       Code = 4004
	TcForceNonOptional     Code = 4005
	TcExtraArgument        Code = 4006
	TcMissingArgument      Code = 4007
	TcOutOfOrderArgument   Code = 4008
	TcNoSuchOverload       Code = 4009
	TcAmbiguousRef         Code = 4010
	TcAmbiguousExpr        Code = 4011
	TcFoundCandidate       Code = 4012
	TcNotCallable          Code = 4013
	TcAssignToImmutable    Code = 4014
	TcInvalidConversion    Code = 4015
	TcGenericArgumentCount Code = 4016

	// Lowering (5xxx). Emitted while generating QIR.
	LowInfo              Code = 5000
	LowWritebackConflict Code = 5001
	LowInvalidAddressUse Code = 5002
)

func (c Code) String() string {
	return fmt.Sprintf("QL%04d", uint16(c))
}
