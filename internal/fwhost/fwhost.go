// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fwhost declares the collaborator interfaces the host debugger
// framework is assumed to provide (§1a, §6): register objects, the
// breakpoint/watchpoint list, event callbacks, and target state.
//
// rvdbg's hart.Session is written against these types; a real deployment is
// expected to have a framework that already looks like this (register
// objects, a polling pump calling Poll, breakpoint/watchpoint lists owning
// Breakpoint/Watchpoint by identity) — see spec §3 "Lifecycles".
package fwhost

// State is the target state the framework's polling pump reads after every
// Poll call.
type State int

// Target states (§4.8 Poll).
const (
	StateUnknown State = iota
	StateRunning
	StateDebugRunning
	StateHalted
	StateReset
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDebugRunning:
		return "debug-running"
	case StateHalted:
		return "halted"
	case StateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// DebugReason classifies why the hart is halted (§4.8 Poll classification).
type DebugReason int

// Debug reasons, named after the cause a framework typically surfaces to
// the remote debugger.
const (
	DebugReasonUndefined DebugReason = iota
	DebugReasonBreakpoint
	DebugReasonWatchpoint
	DebugReasonDbgrq
	DebugReasonSingleStep
)

// Event is a notification fired to the framework's callback list.
type Event int

// Events this module fires (§4.8).
const (
	EventHalted Event = iota
	EventResumed
	EventResetAssert
	EventResetDeassert
)

// EventSink receives target events. The framework supplies an implementation
// during Session construction; it is never nil (use a no-op if the caller
// doesn't care).
type EventSink interface {
	TargetEvent(e Event)
}

// NopEventSink discards every event.
type NopEventSink struct{}

// TargetEvent implements EventSink.
func (NopEventSink) TargetEvent(Event) {}

// RegKind distinguishes the architectural register families exposed to the
// remote debugger (§3 reg_list, §6 register naming).
type RegKind int

// Register kinds.
const (
	RegGPR RegKind = iota
	RegPC
	RegFPR
	RegCSR
	RegPriv
)

// RegisterDescriptor is one framework-visible register object: a name, a
// size, and enough identity for regs.Bank to know how to serve it. The
// 4162-entry list (32 GPR + PC + 32 FPR + 4096 CSR + PRIV, §3) is built by
// regs.RegList().
type RegisterDescriptor struct {
	Name   string
	Index  int // position in the 4162-entry list (§6 register naming)
	Kind   RegKind
	Number int // GPR/FPR/CSR number within its Kind, unused for PC/PRIV
	Bits   int // size in bits
}

// BreakpointKind distinguishes software breakpoints (handled entirely by the
// framework) from hardware breakpoints (which claim a trigger slot).
type BreakpointKind int

// Breakpoint kinds.
const (
	BreakpointSoft BreakpointKind = iota
	BreakpointHard
)

// Breakpoint is the framework's breakpoint descriptor. The framework owns
// the list; trigger.Manager only holds a back-reference by UniqueID (§3
// Lifecycles).
type Breakpoint struct {
	UniqueID int64
	Address  uint64
	Length   uint32
	Kind     BreakpointKind
}

// Watchpoint is the framework's watchpoint descriptor.
type Watchpoint struct {
	UniqueID    int64
	Address     uint64
	Length      uint32
	Read, Write bool
	Value, Mask uint64
}
