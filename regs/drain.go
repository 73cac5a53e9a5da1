// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package regs

import (
	"github.com/openhart/rvdbg/internal/dramlayout"
	"github.com/openhart/rvdbg/internal/isa"
)

// DSCRATCH is where the halt entry sequence stashes S0 before the injected
// snippet's prologue clobbers it (§4.6).
const CSRDScratch = 0x7b2

// DrainHaltState performs the halt-time bulk register drain (§4.6 C6/C8
// boundary): every GPR except S0/S1 is read through the standard
// store-and-jump recipe, S1 is recovered from SLOT_LAST (where the halt
// entry sequence saved it), S0 from DSCRATCH, then DPC and DCSR are read
// and cached. Must run once per transition to HALTED, before any
// register_get is trusted (§5 Ordering).
//
// The source drives this as one large pre-built scan batch; this
// implementation issues the equivalent sequence of standard injected reads
// instead of hand-assembling that batch, trading one round-trip per
// register for a single shared code path with readGPRDirect/ReadCSR. See
// DESIGN.md "Halt-time drain".
func (b *Bank) DrainHaltState() error {
	for i := 0; i < NumGPR; i++ {
		if i == int(isa.S0) || i == int(isa.S1) {
			continue
		}
		v, err := b.readGPRDirect(isa.Reg(i))
		if err != nil {
			return err
		}
		b.gprCache[i] = v
	}

	s1, err := b.Inject.Transport.ReadWord(dramlayout.Address(b.Cache.SlotLast()))
	if err != nil {
		return err
	}
	b.gprCache[isa.S1] = s1 & xlenMask(b.Xlen)

	s0, err := b.ReadCSR(CSRDScratch)
	if err != nil {
		return err
	}
	b.gprCache[isa.S0] = s0

	b.gprCache[0] = 0

	dpc, err := b.ReadCSR(CSRDPC)
	if err != nil {
		return err
	}
	b.DPC = dpc

	dcsr, err := b.ReadCSR(CSRDCSR)
	if err != nil {
		return err
	}
	b.DCSR = dcsr

	b.gprValid = true
	return nil
}

// readGPRDirect injects "store gpr -> SLOT0; jump" and returns the value,
// without touching the cache (used only during the drain, before gprValid
// is set).
func (b *Bank) readGPRDirect(gpr isa.Reg) (uint64, error) {
	storeWord, err := isa.StoreXlen(b.Enc, b.Xlen, gpr, isa.X0, dramOffset(b.Cache.Slot0()))
	if err != nil {
		return 0, err
	}
	result, err := b.Inject.RunXlen([]uint32{storeWord}, nil, nil)
	if err != nil {
		return 0, err
	}
	return result & xlenMask(b.Xlen), nil
}

func xlenMask(xlen int) uint64 {
	if xlen >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(xlen) - 1
}
