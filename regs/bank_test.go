// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package regs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/dmsim"
	"github.com/openhart/rvdbg/dram"
	"github.com/openhart/rvdbg/inject"
	"github.com/openhart/rvdbg/internal/fwhost"
	"github.com/openhart/rvdbg/internal/isa"
	"github.com/openhart/rvdbg/regs"
)

func newFixture(t *testing.T, xlen, dramSize int) (*regs.Bank, *dmsim.DM) {
	t.Helper()
	delays := &dbus.Delays{}
	sim := dmsim.New(5, xlen, dramSize)
	transport := &dbus.Transport{Queue: sim, AddrBits: 5, Xlen: xlen, Delays: delays}
	c := dram.New(dramSize, 5, xlen, isa.Reference{}, delays)
	inj := &inject.Injector{Cache: c, Transport: transport}
	return regs.New(inj, c, isa.Reference{}, xlen), sim
}

// ReadFPR's fsw snippet stores through Debug-RAM word 16, not SLOT0 (word
// 4) — a dedicated scratch word so FPR readback can't alias the GPR/CSR
// recipe's own result slot.
func TestReadFPR(t *testing.T) {
	b, sim := newFixture(t, 32, 20)
	sim.SetFPR(3, 0x3f800000) // 1.0f
	got, err := b.ReadFPR(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x3f800000), got)
}

// WriteFPR is symmetric with ReadFPR: it must land in the hart's FPR, not
// leak into SLOT0 or some other Debug-RAM word.
func TestWriteThenReadFPRRoundTrips(t *testing.T) {
	b, sim := newFixture(t, 32, 20)
	require.NoError(t, b.WriteFPR(7, 0x40490fdb)) // pi as float32
	assert.Equal(t, uint32(0x40490fdb), sim.FPR(7))
	got, err := b.ReadFPR(7)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x40490fdb), got)
}

// ReadPC/ReadPriv serve from shadow state latched by DrainHaltState, never
// from a fresh hardware read (§4.6).
func TestReadPCBeforeDrainFails(t *testing.T) {
	b, _ := newFixture(t, 32, 16)
	_, err := b.ReadPC()
	assert.Error(t, err)
}

func TestWriteThenReadPCRoundTrips(t *testing.T) {
	b, sim := newFixture(t, 32, 16)
	require.NoError(t, b.WritePC(0x8000))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	got, err := b.ReadPC()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8000), got)
}

func TestReadPrivBeforeDrainFails(t *testing.T) {
	b, _ := newFixture(t, 32, 16)
	_, err := b.ReadPriv()
	assert.Error(t, err)
}

func TestWriteThenReadPrivRoundTrips(t *testing.T) {
	b, sim := newFixture(t, 32, 16)
	require.NoError(t, b.WritePriv(3))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	got, err := b.ReadPriv()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), got)
}

// WritePriv must only touch DCSR.PRV, leaving the rest of the shadow alone.
func TestWritePrivPreservesRestOfDCSR(t *testing.T) {
	b, sim := newFixture(t, 32, 16)
	require.NoError(t, b.WriteCSR(regs.CSRDCSR, 0xf0))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	require.NoError(t, b.WritePriv(1))
	got, err := b.ReadCSR(regs.CSRDCSR)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xf1), got)
}

// GetRegister/SetRegister dispatch on RegisterDescriptor.Kind, one case per
// register family the framework can name (§4.6).
func TestGetSetRegisterDispatchesOnKind(t *testing.T) {
	b, sim := newFixture(t, 32, 20)
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())

	require.NoError(t, b.SetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegGPR, Number: 9}, 0x55))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	gpr, err := b.GetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegGPR, Number: 9})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x55), gpr)

	require.NoError(t, b.SetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegPC}, 0x1000))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	pc, err := b.GetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegPC})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), pc)

	require.NoError(t, b.SetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegFPR, Number: 2}, 0x3f000000))
	fpr, err := b.GetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegFPR, Number: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x3f000000), fpr)

	require.NoError(t, b.SetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegCSR, Number: regs.CSRMISA}, 0x40801101))
	csr, err := b.GetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegCSR, Number: regs.CSRMISA})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x40801101), csr)

	require.NoError(t, b.SetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegPriv}, 2))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	priv, err := b.GetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegPriv})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), priv)
}

func TestGetRegisterUnknownKindErrors(t *testing.T) {
	b, _ := newFixture(t, 32, 16)
	_, err := b.GetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegKind(99)})
	assert.Error(t, err)
	assert.Error(t, b.SetRegister(fwhost.RegisterDescriptor{Kind: fwhost.RegKind(99)}, 0))
}

func TestWriteThenReadCSRRoundTrips(t *testing.T) {
	b, _ := newFixture(t, 32, 16)
	require.NoError(t, b.WriteCSR(regs.CSRDCSR, 0x1234))
	got, err := b.ReadCSR(regs.CSRDCSR)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), got)
}

func TestWriteThenReadCSR64(t *testing.T) {
	b, _ := newFixture(t, 64, 16)
	require.NoError(t, b.WriteCSR(regs.CSRDPC, 0x1122334455667788))
	got, err := b.ReadCSR(regs.CSRDPC)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), got)
}

func TestWriteGPRThenDrainRecoversIt(t *testing.T) {
	b, sim := newFixture(t, 32, 16)
	require.NoError(t, b.WriteGPR(isa.Reg(10), 0xabcd))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	got, err := b.ReadGPR(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xabcd), got)
}

func TestReadGPRBeforeDrainFails(t *testing.T) {
	b, _ := newFixture(t, 32, 16)
	_, err := b.ReadGPR(5)
	assert.Error(t, err)
}

// Poison must make every GPR visibly wrong until the next drain, so a stale
// read before a halt-time drain is never silently correct (§4.8 Resume).
func TestPoisonInvalidatesGPRCache(t *testing.T) {
	b, sim := newFixture(t, 32, 16)
	require.NoError(t, b.WriteGPR(isa.Reg(3), 7))
	sim.SetHalted(true)
	require.NoError(t, b.DrainHaltState())
	if _, err := b.ReadGPR(3); err != nil {
		t.Fatalf("expected gpr 3 readable after drain: %v", err)
	}

	b.Poison()
	_, err := b.ReadGPR(3)
	assert.Error(t, err)
}

// tselect dirty tracking: a read marks the shadow fresh, so the next
// trigger-context CSR access shouldn't need to restore it first.
func TestTSelectDirtyTrackingAfterRead(t *testing.T) {
	b, _ := newFixture(t, 32, 16)
	require.NoError(t, b.WriteCSR(regs.CSRTSelect, 2))
	_, err := b.ReadCSR(regs.CSRTSelect)
	require.NoError(t, err)

	// tdata1/tdata2 access shouldn't error even though tselect was read
	// (not written) most recently.
	require.NoError(t, b.WriteCSR(regs.CSRTData1, 0))
}
