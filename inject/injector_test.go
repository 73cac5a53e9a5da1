// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package inject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/dmsim"
	"github.com/openhart/rvdbg/dram"
	"github.com/openhart/rvdbg/inject"
	"github.com/openhart/rvdbg/internal/isa"
)

func newFixture(t *testing.T, xlen, dramSize int) *inject.Injector {
	t.Helper()
	delays := &dbus.Delays{}
	sim := dmsim.New(5, xlen, dramSize)
	transport := &dbus.Transport{Queue: sim, AddrBits: 5, Xlen: xlen, Delays: delays}
	c := dram.New(dramSize, 5, xlen, isa.Reference{}, delays)
	return &inject.Injector{Cache: c, Transport: transport}
}

func TestRunAddiThenStore(t *testing.T) {
	inj := newFixture(t, 32, 16)
	enc := isa.Reference{}

	got, err := inj.Run([]uint32{enc.Addi(isa.S0, isa.X0, 17), enc.Sw(isa.S0, isa.X0, 0x410)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), got)
}

func TestRunSeedsSlot0AndSlot1(t *testing.T) {
	inj := newFixture(t, 32, 16)
	enc := isa.Reference{}

	slot0 := uint64(5)
	slot1 := uint64(9)
	// SLOT0 is Debug-RAM word 4, at 0x400+4*4.
	got, err := inj.Run([]uint32{
		enc.Lw(isa.S0, isa.X0, 0x410),
		enc.Addi(isa.S0, isa.S0, 2),
		enc.Sw(isa.S0, isa.X0, 0x410),
	}, &slot0, &slot1)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got)
}

func TestRunRejectsOversizeSnippet(t *testing.T) {
	inj := newFixture(t, 32, 16)
	_, err := inj.Run(make([]uint32, 5), nil, nil)
	assert.Error(t, err)
}

// At xlen=64 RunXlen must assemble the full register width from SLOT0's two
// consecutive words, not alias an unrelated slot (§9 Design Notes).
func TestRunXlenAssembles64BitResult(t *testing.T) {
	inj := newFixture(t, 64, 16)
	enc := isa.Reference{}

	slot0 := uint64(0x1)
	got, err := inj.RunXlen([]uint32{enc.Addi(isa.S0, isa.S0, 0)}, &slot0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)
}

func TestRunXlenIgnoresSlot1At32Bit(t *testing.T) {
	inj := newFixture(t, 32, 16)
	enc := isa.Reference{}

	slot1 := uint64(0xffff)
	got, err := inj.RunXlen([]uint32{enc.Addi(isa.S0, isa.X0, 3), enc.Sw(isa.S0, isa.X0, 0x410)}, nil, &slot1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got)
}

// An unsupported instruction must surface as an ExceptionError, not a silent
// zero result.
func TestRunReportsHartException(t *testing.T) {
	inj := newFixture(t, 32, 16)
	// 0x0000_0000 decodes to opcode 0 (not one of the interpreter's
	// supported opcodes), which dmsim's cpu.step reports as an error.
	_, err := inj.Run([]uint32{0x00000000}, nil, nil)
	require.Error(t, err)
	var excErr *inject.ExceptionError
	assert.ErrorAs(t, err, &excErr)
}
