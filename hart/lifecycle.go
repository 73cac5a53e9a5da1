// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hart

import (
	"fmt"
	"time"

	"github.com/openhart/rvdbg/internal/fwhost"
	"github.com/openhart/rvdbg/internal/isa"
	"github.com/openhart/rvdbg/memio"
	"github.com/openhart/rvdbg/regs"
	"github.com/openhart/rvdbg/trigger"
)

// setHaltNotAddr/clearHaltNotAddr are the hart-side memory addresses the
// debug ROM's halt loop watches: a store to one parks the hart in the halt
// loop and asserts HALTNOT, a store to the other releases it (§4.8). They
// are ordinary data addresses from the injected snippet's point of view,
// not Debug RAM or a dbus register.
const (
	setHaltNotAddr   = 0x10c
	clearHaltNotAddr = 0x110
)

// Halt injects "csrr S0,mhartid; sw S0,SETHALTNOT; jump", waits for HALTNOT,
// records the halt cause as a debug request, and drains architectural state
// (§4.8 Halt).
func (s *Session) Halt() error {
	sw, err := isa.StoreSized(s.Enc, 4, isa.S0, isa.X0, setHaltNotAddr)
	if err != nil {
		return err
	}
	words := []uint32{isa.Csrr(s.Enc, isa.S0, regs.CSRMHartID), sw}
	if _, err := s.Inject.Run(words, nil, nil); err != nil {
		return err
	}
	if err := s.waitHaltNot(true); err != nil {
		return err
	}
	if err := s.Regs.WriteCSR(regs.CSRDCSR, uint64(regs.DCSRHaltBit)|uint64(regs.DCSRCauseHalt)<<regs.DCSRCauseShift); err != nil {
		return err
	}
	return s.onHalted(fwhost.DebugReasonDbgrq)
}

// Resume clears the halt loop, poisons the GPR cache (stale the moment the
// hart starts running again, §4.8 Resume), and fires EventResumed.
func (s *Session) Resume() error {
	return s.resume(false)
}

// Step performs a single instruction step: DCSR.STEP is set before release
// so the hart re-enters the halt loop after exactly one instruction. If
// NeedStrictStep is set (the hart last stopped on a hardware breakpoint,
// §4.8 Poll), every installed trigger is removed before stepping and
// reinstalled after, so the step can't immediately re-trap on the same
// address (§8 Property 7).
func (s *Session) Step() error {
	if s.NeedStrictStep {
		saved, err := s.Triggers.RemoveAll()
		if err != nil {
			return err
		}
		if err := s.step(); err != nil {
			return err
		}
		return s.Triggers.Reinstall(saved)
	}
	return s.step()
}

func (s *Session) step() error {
	dcsr, err := s.Regs.ReadCSR(regs.CSRDCSR)
	if err != nil {
		return err
	}
	if err := s.Regs.WriteCSR(regs.CSRDCSR, dcsr|uint64(regs.DCSRStepBit)); err != nil {
		return err
	}
	if err := s.resume(true); err != nil {
		return err
	}
	// The simulated target re-halts after exactly one instruction with no
	// separate dbus signal of its own (§9 "dmsim models the debug ROM and
	// injector, not free-running target execution"): the step snippet below
	// clears then immediately re-asserts HALTNOT in the same program, and
	// Resume's own wait-for-running is skipped by calling resume(step=true).
	swClear, err := isa.StoreSized(s.Enc, 4, isa.X0, isa.X0, clearHaltNotAddr)
	if err != nil {
		return err
	}
	swSet, err := isa.StoreSized(s.Enc, 4, isa.X0, isa.X0, setHaltNotAddr)
	if err != nil {
		return err
	}
	if _, err := s.Inject.Run([]uint32{swClear, swSet}, nil, nil); err != nil {
		return err
	}
	if err := s.waitHaltNot(true); err != nil {
		return err
	}
	dcsr &^= uint64(regs.DCSRCauseMask) << regs.DCSRCauseShift
	if err := s.Regs.WriteCSR(regs.CSRDCSR, dcsr|uint64(regs.DCSRStepBit)|uint64(regs.DCSRHaltBit)|uint64(regs.DCSRCauseStep)<<regs.DCSRCauseShift); err != nil {
		return err
	}
	return s.onHalted(fwhost.DebugReasonSingleStep)
}

// resume releases the halt loop. When step is true it only poisons state
// and clears HALTNOT without waiting for it to clear or firing
// EventResumed — Step's caller immediately re-halts and fires its own
// event instead.
func (s *Session) resume(step bool) error {
	s.Regs.Poison()
	sw, err := isa.StoreSized(s.Enc, 4, isa.X0, isa.X0, clearHaltNotAddr)
	if err != nil {
		return err
	}
	if _, err := s.Inject.Run([]uint32{sw}, nil, nil); err != nil {
		return err
	}
	if step {
		return nil
	}
	if err := s.waitHaltNot(false); err != nil {
		return err
	}
	s.State = fwhost.StateRunning
	s.DebugReason = fwhost.DebugReasonUndefined
	s.NeedStrictStep = false
	s.Sink.TargetEvent(fwhost.EventResumed)
	return nil
}

// waitHaltNot polls ReadBits until HALTNOT matches want, within WaitBound.
func (s *Session) waitHaltNot(want bool) error {
	deadline := time.Now().Add(WaitBound)
	for {
		haltNot, _, err := s.Transport.ReadBits()
		if err != nil {
			return err
		}
		if haltNot == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("hart: timed out waiting for haltnot=%v", want)
		}
	}
}

// onHalted drains architectural state, classifies the stop reason from
// DCSR.CAUSE, updates State, and fires EventHalted if Announce is set
// (§4.8 Poll classification).
func (s *Session) onHalted(fallback fwhost.DebugReason) error {
	if err := s.Regs.DrainHaltState(); err != nil {
		return err
	}
	cause := regs.Cause(s.Regs.DCSR)
	s.DebugReason = classifyCause(cause, fallback)
	s.NeedStrictStep = cause == regs.DCSRCauseTrigger
	s.State = fwhost.StateHalted
	if s.Announce {
		s.Sink.TargetEvent(fwhost.EventHalted)
	}
	return nil
}

func classifyCause(cause int, fallback fwhost.DebugReason) fwhost.DebugReason {
	switch cause {
	case regs.DCSRCauseEBreak:
		return fwhost.DebugReasonBreakpoint
	case regs.DCSRCauseTrigger:
		return fwhost.DebugReasonWatchpoint
	case regs.DCSRCauseDebugInt:
		return fwhost.DebugReasonDbgrq
	case regs.DCSRCauseStep:
		return fwhost.DebugReasonSingleStep
	case regs.DCSRCauseHalt:
		return fwhost.DebugReasonDbgrq
	default:
		return fallback
	}
}

// Poll is the framework's periodic pump entry point: it samples HALTNOT and,
// on the running-to-halted transition, drains state and classifies the stop
// (§4.8 Poll). It is idempotent while already halted.
func (s *Session) Poll() error {
	haltNot, _, err := s.Transport.ReadBits()
	if err != nil {
		return err
	}
	if haltNot && s.State != fwhost.StateHalted {
		return s.onHalted(fwhost.DebugReasonUndefined)
	}
	if !haltNot && s.State == fwhost.StateHalted {
		s.State = fwhost.StateRunning
	}
	return nil
}

// AssertReset and DeassertReset are not modeled against real hardware state
// by the golden simulator (dmsim has no reset line of its own, §9 scope);
// they update Session bookkeeping and fire the corresponding events so a
// framework driving a real target still sees the expected lifecycle.
func (s *Session) AssertReset(haltOnReset bool) error {
	s.haltOnReset = haltOnReset
	s.State = fwhost.StateReset
	s.Regs.Poison()
	s.Sink.TargetEvent(fwhost.EventResetAssert)
	return nil
}

// DeassertReset releases reset. If haltOnReset was requested, the hart is
// expected to come up already parked in the halt loop and Deassert drains
// state the same way Halt does; otherwise it's treated as running.
func (s *Session) DeassertReset() error {
	s.Sink.TargetEvent(fwhost.EventResetDeassert)
	if s.haltOnReset {
		return s.onHalted(fwhost.DebugReasonDbgrq)
	}
	s.State = fwhost.StateRunning
	return nil
}

// GetRegList returns the framework-visible register descriptor list (§3,
// §6).
func (s *Session) GetRegList() []fwhost.RegisterDescriptor {
	return regs.RegList()
}

// ArchState returns the current architectural snapshot for the framework's
// arch_state entry point.
func (s *Session) ArchState() regs.ArchState {
	return s.Regs.ArchState()
}

// AddBreakpoint claims a hardware trigger slot for a hard breakpoint; a
// software breakpoint is entirely the framework's responsibility (it plants
// the trap instruction itself via WriteMemory) and is a no-op here (§3).
func (s *Session) AddBreakpoint(bp fwhost.Breakpoint) error {
	if bp.Kind != fwhost.BreakpointHard {
		return nil
	}
	_, err := s.Triggers.Add(bp.UniqueID, bp.Address, trigger.Kind{Execute: true})
	return err
}

// RemoveBreakpoint releases a previously-added hard breakpoint's trigger
// slot; software breakpoints are a no-op.
func (s *Session) RemoveBreakpoint(bp fwhost.Breakpoint) error {
	if bp.Kind != fwhost.BreakpointHard {
		return nil
	}
	return s.Triggers.Remove(bp.UniqueID)
}

// AddWatchpoint claims a hardware trigger slot matching the requested
// access types.
func (s *Session) AddWatchpoint(wp fwhost.Watchpoint) error {
	_, err := s.Triggers.Add(wp.UniqueID, wp.Address, trigger.Kind{Load: wp.Read, Store: wp.Write})
	return err
}

// RemoveWatchpoint releases a previously-added watchpoint's trigger slot.
func (s *Session) RemoveWatchpoint(wp fwhost.Watchpoint) error {
	return s.Triggers.Remove(wp.UniqueID)
}

func (s *Session) memIO() *memio.IO {
	return &memio.IO{Cache: s.Cache, Transport: s.Transport, Enc: s.Enc}
}

// ReadMemory reads count elements of size bytes from target memory starting
// at base (C9).
func (s *Session) ReadMemory(base uint64, size, count int, buf []byte) error {
	return s.memIO().Read(base, size, count, buf)
}

// WriteMemory writes count elements of size bytes to target memory starting
// at base (C9).
func (s *Session) WriteMemory(base uint64, size, count int, buf []byte) error {
	return s.memIO().Write(base, size, count, buf)
}
