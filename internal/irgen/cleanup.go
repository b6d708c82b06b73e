// Package irgen lowers type-checked Quill declarations into QIR. The
// emitter walks the resolved AST once per function, producing blocks
// through an ir.Builder while a cleanup stack tracks what each partial
// computation owes on every exit path.
package irgen

import (
	"fmt"

	"quill/internal/ir"
)

// CleanupState describes whether a pending cleanup runs on scope exit.
type CleanupState uint8

const (
	// CleanupDormant is registered but not yet owed. Activation happens
	// when the guarded value becomes fully initialized.
	CleanupDormant CleanupState = iota
	// CleanupActive runs on every exit through its scope.
	CleanupActive
	// CleanupDead is permanently disabled, usually because ownership of
	// the value was forwarded to a consumer.
	CleanupDead
)

func (s CleanupState) String() string {
	switch s {
	case CleanupDormant:
		return "dormant"
	case CleanupActive:
		return "active"
	case CleanupDead:
		return "dead"
	default:
		return fmt.Sprintf("CleanupState(%d)", s)
	}
}

type cleanupKind uint8

const (
	cleanupDeallocStack cleanupKind = iota
	cleanupDestroyAddr
	cleanupRelease
	cleanupDeallocRef
)

type cleanup struct {
	kind    cleanupKind
	state   CleanupState
	value   ir.Value
	foreign bool
}

func (c *cleanup) emit(b *ir.Builder) {
	switch c.kind {
	case cleanupDeallocStack:
		b.DeallocStack(c.value)
	case cleanupDestroyAddr:
		b.DestroyAddr(c.value)
	case cleanupRelease:
		b.Release(c.value)
	case cleanupDeallocRef:
		b.DeallocRef(c.value, c.foreign)
	default:
		panic(fmt.Errorf("irgen: unknown cleanup kind %d", c.kind))
	}
}

// CleanupHandle names one stack entry. Handles stay valid until the entry
// is popped; using a popped handle is an internal error.
type CleanupHandle int

// CleanupDepth marks a stack position for later unwinding.
type CleanupDepth int

// CleanupStack is the LIFO of pending cleanups for one function emission.
// Entries are emitted newest-first so later allocations are torn down
// before the values they were built from.
type CleanupStack struct {
	items []cleanup
}

// Depth returns the current stack position.
func (s *CleanupStack) Depth() CleanupDepth {
	return CleanupDepth(len(s.items))
}

func (s *CleanupStack) push(c cleanup) CleanupHandle {
	s.items = append(s.items, c)
	return CleanupHandle(len(s.items) - 1)
}

// PushDeallocStack schedules freeing a stack slot; active immediately.
func (s *CleanupStack) PushDeallocStack(addr ir.Value) CleanupHandle {
	return s.push(cleanup{kind: cleanupDeallocStack, state: CleanupActive, value: addr})
}

// PushDestroyAddr schedules destroying the value at addr.
func (s *CleanupStack) PushDestroyAddr(addr ir.Value, state CleanupState) CleanupHandle {
	return s.push(cleanup{kind: cleanupDestroyAddr, state: state, value: addr})
}

// PushRelease schedules a release of a loadable owned value.
func (s *CleanupStack) PushRelease(v ir.Value, state CleanupState) CleanupHandle {
	return s.push(cleanup{kind: cleanupRelease, state: state, value: v})
}

// PushDeallocRef schedules direct deallocation of partially initialized
// class storage. Used between allocation and initializer completion.
func (s *CleanupStack) PushDeallocRef(ref ir.Value, foreign bool) CleanupHandle {
	return s.push(cleanup{kind: cleanupDeallocRef, state: CleanupActive, value: ref, foreign: foreign})
}

func (s *CleanupStack) entry(h CleanupHandle) *cleanup {
	if int(h) < 0 || int(h) >= len(s.items) {
		panic(fmt.Errorf("irgen: cleanup handle %d outside stack of depth %d", h, len(s.items)))
	}
	return &s.items[h]
}

// State returns the current state of a live entry.
func (s *CleanupStack) State(h CleanupHandle) CleanupState {
	return s.entry(h).state
}

// SetState transitions a live entry. Reviving a dead cleanup is an
// internal error.
func (s *CleanupStack) SetState(h CleanupHandle, state CleanupState) {
	e := s.entry(h)
	if e.state == CleanupDead && state != CleanupDead {
		panic(fmt.Errorf("irgen: reviving dead cleanup %d", h))
	}
	e.state = state
}

// Forward kills a cleanup because ownership moved to a consumer.
func (s *CleanupStack) Forward(h CleanupHandle) {
	s.entry(h).state = CleanupDead
}

// EmitThrough emits every active cleanup above depth, newest first,
// without changing the stack. Used for exits (return, branch out of a
// scope) that do not end the scope for other paths.
func (s *CleanupStack) EmitThrough(b *ir.Builder, depth CleanupDepth) {
	if int(depth) > len(s.items) {
		panic(fmt.Errorf("irgen: cleanup depth %d exceeds stack %d", depth, len(s.items)))
	}
	for i := len(s.items) - 1; i >= int(depth); i-- {
		if s.items[i].state == CleanupActive {
			s.items[i].emit(b)
		}
	}
}

// PopThrough emits active cleanups above depth and pops them. Used when a
// lexical scope ends on the main path.
func (s *CleanupStack) PopThrough(b *ir.Builder, depth CleanupDepth) {
	s.EmitThrough(b, depth)
	s.items = s.items[:depth]
}

// PopThroughSilent discards entries above depth without emitting, for
// blocks that ended in an unconditional transfer already covered by
// EmitThrough.
func (s *CleanupStack) PopThroughSilent(depth CleanupDepth) {
	if int(depth) > len(s.items) {
		panic(fmt.Errorf("irgen: cleanup depth %d exceeds stack %d", depth, len(s.items)))
	}
	s.items = s.items[:depth]
}
