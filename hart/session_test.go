// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhart/rvdbg/dmsim"
	"github.com/openhart/rvdbg/hart"
	"github.com/openhart/rvdbg/internal/fwhost"
	"github.com/openhart/rvdbg/internal/isa"
	"github.com/openhart/rvdbg/regs"
)

type fakeSink struct{ events []fwhost.Event }

func (f *fakeSink) TargetEvent(e fwhost.Event) { f.events = append(f.events, e) }

func newFixture(t *testing.T, xlen int) (*hart.Session, *dmsim.DM, *fakeSink) {
	t.Helper()
	sim := dmsim.New(5, xlen, 16)
	sink := &fakeSink{}
	sess := hart.New(sim, isa.Reference{}, sink)
	require.NoError(t, sess.Examine(sim))
	return sess, sim, sink
}

func TestExamineDiscoversXlen32(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	assert.Equal(t, 32, sess.Xlen)
	assert.Equal(t, fwhost.StateRunning, sess.State)
}

func TestExamineDiscoversXlen64(t *testing.T) {
	sess, _, _ := newFixture(t, 64)
	assert.Equal(t, 64, sess.Xlen)
}

func TestHaltFiresEventAndDrainsState(t *testing.T) {
	sess, sim, sink := newFixture(t, 32)
	require.NoError(t, sess.Halt())
	assert.Equal(t, fwhost.StateHalted, sess.State)
	assert.True(t, sim.Halted())
	assert.Contains(t, sink.events, fwhost.EventHalted)
	assert.Equal(t, fwhost.DebugReasonDbgrq, sess.DebugReason)
}

func TestResumeClearsHaltAndFiresEvent(t *testing.T) {
	sess, sim, sink := newFixture(t, 32)
	require.NoError(t, sess.Halt())
	require.NoError(t, sess.Resume())
	assert.Equal(t, fwhost.StateRunning, sess.State)
	assert.False(t, sim.Halted())
	assert.Contains(t, sink.events, fwhost.EventResumed)
}

func TestStepClassifiesSingleStep(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	require.NoError(t, sess.Halt())
	require.NoError(t, sess.Step())
	assert.Equal(t, fwhost.StateHalted, sess.State)
	assert.Equal(t, fwhost.DebugReasonSingleStep, sess.DebugReason)
}

// A hardware-breakpoint/watchpoint trap (DCSR.CAUSE=trigger) must classify
// as a watchpoint and force strict-step, distinct from a plain ebreak
// (§4.8 Poll classification, §8 Property 7).
func TestPollClassifiesTriggerCauseAsWatchpointAndNeedsStrictStep(t *testing.T) {
	sess, sim, sink := newFixture(t, 32)
	sim.SetHalted(true)
	sim.SetCSR(regs.CSRDCSR, uint64(regs.DCSRCauseTrigger)<<regs.DCSRCauseShift)

	require.NoError(t, sess.Poll())
	assert.Equal(t, fwhost.StateHalted, sess.State)
	assert.Equal(t, fwhost.DebugReasonWatchpoint, sess.DebugReason)
	assert.True(t, sess.NeedStrictStep)
	assert.Contains(t, sink.events, fwhost.EventHalted)
}

// A plain software ebreak must NOT force strict-step.
func TestPollClassifiesEBreakCauseWithoutStrictStep(t *testing.T) {
	sess, sim, _ := newFixture(t, 32)
	sim.SetHalted(true)
	sim.SetCSR(regs.CSRDCSR, uint64(regs.DCSRCauseEBreak)<<regs.DCSRCauseShift)

	require.NoError(t, sess.Poll())
	assert.Equal(t, fwhost.DebugReasonBreakpoint, sess.DebugReason)
	assert.False(t, sess.NeedStrictStep)
}

func TestPollObservesExternalHalt(t *testing.T) {
	sess, sim, sink := newFixture(t, 32)
	sim.SetHalted(true)
	require.NoError(t, sess.Poll())
	assert.Equal(t, fwhost.StateHalted, sess.State)
	assert.Contains(t, sink.events, fwhost.EventHalted)
}

func TestPollIsIdempotentWhileHalted(t *testing.T) {
	sess, sim, sink := newFixture(t, 32)
	sim.SetHalted(true)
	require.NoError(t, sess.Poll())
	before := len(sink.events)
	require.NoError(t, sess.Poll())
	assert.Equal(t, before, len(sink.events))
}

func TestAddRemoveHardBreakpointClaimsAndFreesSlot(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	bp := fwhost.Breakpoint{UniqueID: 1, Address: 0x8000, Kind: fwhost.BreakpointHard}
	require.NoError(t, sess.AddBreakpoint(bp))
	require.NoError(t, sess.RemoveBreakpoint(bp))
}

func TestSoftBreakpointIsNoop(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	bp := fwhost.Breakpoint{UniqueID: 2, Address: 0x8004, Kind: fwhost.BreakpointSoft}
	assert.NoError(t, sess.AddBreakpoint(bp))
	assert.NoError(t, sess.RemoveBreakpoint(bp))
}

func TestAddRemoveWatchpoint(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	wp := fwhost.Watchpoint{UniqueID: 3, Address: 0x9000, Read: true}
	require.NoError(t, sess.AddWatchpoint(wp))
	require.NoError(t, sess.RemoveWatchpoint(wp))
}

func TestReadWriteMemoryRoundTrip(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	want := []byte{1, 2, 3, 4}
	require.NoError(t, sess.WriteMemory(0x2000, 4, 1, want))
	got := make([]byte, 4)
	require.NoError(t, sess.ReadMemory(0x2000, 4, 1, got))
	assert.Equal(t, want, got)
}

func TestAssertThenDeassertResetWithHaltOnReset(t *testing.T) {
	sess, _, sink := newFixture(t, 32)
	require.NoError(t, sess.AssertReset(true))
	assert.Equal(t, fwhost.StateReset, sess.State)
	assert.Contains(t, sink.events, fwhost.EventResetAssert)

	require.NoError(t, sess.DeassertReset())
	assert.Equal(t, fwhost.StateHalted, sess.State)
	assert.Contains(t, sink.events, fwhost.EventResetDeassert)
}

func TestAssertThenDeassertResetWithoutHaltOnReset(t *testing.T) {
	sess, _, _ := newFixture(t, 32)
	require.NoError(t, sess.AssertReset(false))
	require.NoError(t, sess.DeassertReset())
	assert.Equal(t, fwhost.StateRunning, sess.State)
}

// End-to-end scenario: examine, halt, read a CSR, touch memory, set a
// hardware breakpoint, single-step, then resume — the operations the smoke
// CLI also drives, though the CLI removes its breakpoint before stepping
// (§9 Design Notes end-to-end scenarios).
func TestEndToEndExamineHaltStepResume(t *testing.T) {
	sess, _, _ := newFixture(t, 64)

	require.NoError(t, sess.Halt())
	_, err := sess.Regs.ReadCSR(regs.CSRDPC)
	require.NoError(t, err)

	buf := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, sess.WriteMemory(0x3000, 4, 1, buf))
	got := make([]byte, 4)
	require.NoError(t, sess.ReadMemory(0x3000, 4, 1, got))
	assert.Equal(t, buf, got)

	bp := fwhost.Breakpoint{UniqueID: 42, Address: 0x4000, Kind: fwhost.BreakpointHard}
	require.NoError(t, sess.AddBreakpoint(bp))
	require.NoError(t, sess.Step())
	require.NoError(t, sess.RemoveBreakpoint(bp))
	require.NoError(t, sess.Resume())
	assert.Equal(t, fwhost.StateRunning, sess.State)
}
