// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package regs implements register and CSR access (C6): the 4162-entry
// register list exposed to the framework (x0..x31, pc, f0..f31, csr0..4095,
// priv, §6 Register naming), GPR caching, CSR shadowing, and the halt-time
// bulk drain.
package regs

import (
	"fmt"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/dram"
	"github.com/openhart/rvdbg/inject"
	"github.com/openhart/rvdbg/internal/dramlayout"
	"github.com/openhart/rvdbg/internal/fwhost"
	"github.com/openhart/rvdbg/internal/isa"
)

// Number of architectural registers of each family (§6).
const (
	NumGPR = 32
	NumFPR = 32
	NumCSR = 4096
)

// Well-known CSR numbers this package reads/writes directly.
const (
	CSRMISA    = 0x301
	CSRDCSR    = 0x7b0
	CSRDPC     = 0x7b1
	CSRTSelect = 0x7a0
	CSRTData1  = 0x7a1
	CSRTData2  = 0x7a2
	CSRMHartID = 0xf14
)

// isTriggerCSR reports whether csr's encoding depends on tselect context.
func isTriggerCSR(csr uint16) bool {
	return csr == CSRTData1 || csr == CSRTData2
}

// gprCachePoison is written into gpr_cache across a resume so any stale read
// before the next halt-time drain is visibly wrong rather than silently
// wrong (§4.8 Resume: "poison gpr_cache with a sentinel").
const gprCachePoison = 0xBADBAD

// Bank owns the GPR cache and shadow CSRs, and serves every register family
// the framework can ask for.
type Bank struct {
	Inject *inject.Injector
	Cache  *dram.Cache
	Enc    isa.Encoder
	Xlen   int

	gprCache [NumGPR]uint64
	gprValid bool

	// Shadow CSRs (§9 Design Notes: written first, pushed to hardware
	// through an injected snippet at the appropriate moment).
	DCSR         uint64
	DPC          uint64
	MISA         uint64
	TSelect      uint64
	TSelectDirty bool
}

// New returns a Bank with an empty, poisoned GPR cache.
func New(inj *inject.Injector, c *dram.Cache, enc isa.Encoder, xlen int) *Bank {
	b := &Bank{Inject: inj, Cache: c, Enc: enc, Xlen: xlen}
	b.Poison()
	return b
}

// Poison marks the GPR cache stale, matching the sentinel the source writes
// across a resume (§4.8).
func (b *Bank) Poison() {
	for i := range b.gprCache {
		b.gprCache[i] = gprCachePoison
	}
	b.gprValid = false
}

// RegList builds the 4162-entry register descriptor list the framework
// expects, in x0..x31, pc, f0..f31, csr0..csr4095, priv order (§6).
func RegList() []fwhost.RegisterDescriptor {
	list := make([]fwhost.RegisterDescriptor, 0, NumGPR+1+NumFPR+NumCSR+1)
	idx := 0
	for i := 0; i < NumGPR; i++ {
		list = append(list, fwhost.RegisterDescriptor{Name: fmt.Sprintf("x%d", i), Index: idx, Kind: fwhost.RegGPR, Number: i, Bits: 64})
		idx++
	}
	list = append(list, fwhost.RegisterDescriptor{Name: "pc", Index: idx, Kind: fwhost.RegPC, Bits: 64})
	idx++
	for i := 0; i < NumFPR; i++ {
		list = append(list, fwhost.RegisterDescriptor{Name: fmt.Sprintf("f%d", i), Index: idx, Kind: fwhost.RegFPR, Number: i, Bits: 32})
		idx++
	}
	for i := 0; i < NumCSR; i++ {
		list = append(list, fwhost.RegisterDescriptor{Name: fmt.Sprintf("csr%d", i), Index: idx, Kind: fwhost.RegCSR, Number: i, Bits: 64})
		idx++
	}
	list = append(list, fwhost.RegisterDescriptor{Name: "priv", Index: idx, Kind: fwhost.RegPriv, Bits: 8})
	return list
}

// maybeWriteTSelect restores tselect to hardware if the shadow has been
// written locally since the last hardware read (§5 Ordering: tselect must
// be restored before any CSR access whose encoding involves trigger
// context).
func (b *Bank) maybeWriteTSelect() error {
	if b.TSelectDirty {
		return nil
	}
	return b.WriteCSR(CSRTSelect, b.TSelect)
}

// ReadCSR injects "csrr S0,csr; store S0->SLOT0; jump" and returns the
// result (§4.6).
func (b *Bank) ReadCSR(csr uint16) (uint64, error) {
	if csr != CSRTSelect && isTriggerCSR(csr) {
		if err := b.maybeWriteTSelect(); err != nil {
			return 0, err
		}
	}
	word := isa.Csrr(b.Enc, isa.S0, csr)
	storeWord, err := isa.StoreXlen(b.Enc, b.Xlen, isa.S0, isa.X0, dramOffset(b.Cache.Slot0()))
	if err != nil {
		return 0, err
	}
	result, err := b.Inject.RunXlen([]uint32{word, storeWord}, nil, nil)
	if err != nil {
		return 0, err
	}
	if csr == CSRTSelect {
		b.TSelectDirty = true
	}
	return result, nil
}

// WriteCSR places value in SLOT0 and injects "load S0<-SLOT0; csrw S0,csr;
// jump" (§4.6). Writing tselect flips TSelectDirty to false: the intent is
// "shadow reflects hardware now" (§9 Design Notes).
func (b *Bank) WriteCSR(csr uint16, value uint64) error {
	if csr != CSRTSelect && isTriggerCSR(csr) {
		if err := b.maybeWriteTSelect(); err != nil {
			return err
		}
	}
	loadWord, err := isa.LoadXlen(b.Enc, b.Xlen, isa.S0, isa.X0, dramOffset(b.Cache.Slot0()))
	if err != nil {
		return err
	}
	writeWord := isa.Csrw(b.Enc, isa.S0, csr)
	v := value
	if _, err := b.Inject.Run([]uint32{loadWord, writeWord}, &v, nil); err != nil {
		return err
	}
	if csr == CSRTSelect {
		b.TSelect = value
		b.TSelectDirty = false
	}
	return nil
}

// WriteGPR injects "load gpr <- SLOT0; jump" with value in SLOT0 (§4.6).
func (b *Bank) WriteGPR(gpr isa.Reg, value uint64) error {
	loadWord, err := isa.LoadXlen(b.Enc, b.Xlen, gpr, isa.X0, dramOffset(b.Cache.Slot0()))
	if err != nil {
		return err
	}
	v := value
	if _, err := b.Inject.Run([]uint32{loadWord}, &v, nil); err != nil {
		return err
	}
	if int(gpr) < NumGPR {
		b.gprCache[gpr] = value
	}
	return nil
}

// ReadGPR serves a GPR from the cache; the cache MUST have been drained by
// DrainHaltState before this is trustworthy (§5 Ordering).
func (b *Bank) ReadGPR(i int) (uint64, error) {
	if !b.gprValid {
		return 0, fmt.Errorf("regs: gpr cache not valid, drain not yet run")
	}
	return b.gprCache[i], nil
}

// ReadFPR injects an fsw into Debug-RAM word 16 and reads it back directly,
// the same direct-scratch-read pattern hart.Session's xlen probe uses: word
// 16 is outside SLOT0, which is where Injector.Run's own result always
// comes from, so the FPR value has to be fetched from word 16 itself (§4.6).
func (b *Bank) ReadFPR(i int) (uint32, error) {
	storeWord := b.Enc.Fsw(isa.Reg(i), isa.X0, fprScratchOffset)
	if _, err := b.Inject.Run([]uint32{storeWord}, nil, nil); err != nil {
		return 0, err
	}
	result, err := b.Inject.Transport.ReadWord(dramlayout.Address(16))
	if err != nil {
		return 0, err
	}
	return dbus.Payload32(result), nil
}

// WriteFPR writes word 16 directly, then injects an flw to load it into the
// target FPR — symmetric with ReadFPR (§4.6 "register_set(r, buf): symmetric").
func (b *Bank) WriteFPR(i int, value uint32) error {
	if err := b.Inject.Transport.WriteWord(dramlayout.Address(16), value, false); err != nil {
		return err
	}
	loadWord := b.Enc.Flw(isa.Reg(i), isa.X0, fprScratchOffset)
	_, err := b.Inject.Run([]uint32{loadWord}, nil, nil)
	return err
}

// ReadPC returns the shadow dpc latched by the last DrainHaltState (§4.6:
// "for PC, return shadow dpc").
func (b *Bank) ReadPC() (uint64, error) {
	if !b.gprValid {
		return 0, fmt.Errorf("regs: dpc shadow not valid, drain not yet run")
	}
	return b.DPC, nil
}

// WritePC writes dpc through the CSR recipe and updates the shadow.
func (b *Bank) WritePC(v uint64) error {
	if err := b.WriteCSR(CSRDPC, v); err != nil {
		return err
	}
	b.DPC = v
	return nil
}

// ReadPriv extracts DCSR.PRV from the shadow dcsr latched by the last
// DrainHaltState (§4.6: "for PRIV, extract from shadow dcsr").
func (b *Bank) ReadPriv() (uint8, error) {
	if !b.gprValid {
		return 0, fmt.Errorf("regs: dcsr shadow not valid, drain not yet run")
	}
	return uint8((b.DCSR >> DCSRPRVShift) & DCSRPRVMask), nil
}

// WritePriv replaces DCSR.PRV and writes dcsr back through the CSR recipe.
func (b *Bank) WritePriv(v uint8) error {
	dcsr := (b.DCSR &^ (uint64(DCSRPRVMask) << DCSRPRVShift)) | (uint64(v)&DCSRPRVMask)<<DCSRPRVShift
	if err := b.WriteCSR(CSRDCSR, dcsr); err != nil {
		return err
	}
	b.DCSR = dcsr
	return nil
}

// GetRegister dispatches a framework register_get(r) call by descriptor kind
// (§4.6).
func (b *Bank) GetRegister(r fwhost.RegisterDescriptor) (uint64, error) {
	switch r.Kind {
	case fwhost.RegGPR:
		return b.ReadGPR(r.Number)
	case fwhost.RegPC:
		return b.ReadPC()
	case fwhost.RegFPR:
		v, err := b.ReadFPR(r.Number)
		return uint64(v), err
	case fwhost.RegCSR:
		return b.ReadCSR(uint16(r.Number))
	case fwhost.RegPriv:
		v, err := b.ReadPriv()
		return uint64(v), err
	default:
		return 0, fmt.Errorf("regs: unknown register kind %v", r.Kind)
	}
}

// SetRegister dispatches a framework register_set(r, buf) call by descriptor
// kind, symmetric with GetRegister (§4.6).
func (b *Bank) SetRegister(r fwhost.RegisterDescriptor, value uint64) error {
	switch r.Kind {
	case fwhost.RegGPR:
		return b.WriteGPR(isa.Reg(r.Number), value)
	case fwhost.RegPC:
		return b.WritePC(value)
	case fwhost.RegFPR:
		return b.WriteFPR(r.Number, uint32(value))
	case fwhost.RegCSR:
		return b.WriteCSR(uint16(r.Number), value)
	case fwhost.RegPriv:
		return b.WritePriv(uint8(value))
	default:
		return fmt.Errorf("regs: unknown register kind %v", r.Kind)
	}
}

// fprScratchOffset is the absolute address of Debug-RAM word 16, the
// scratch slot the spec reserves for FPR readback.
const fprScratchOffset = int32(dramlayout.DebugRAMStart + 16*4)

// dramOffset is the absolute memory address of the given Debug-RAM word,
// for use as the immediate of a load/store whose base register is x0.
func dramOffset(word int) int32 {
	return int32(dramlayout.DebugRAMStart + 4*word)
}

// ArchState returns the current architectural snapshot used by the
// framework's arch_state entry point.
type ArchState struct {
	DCSR uint64
	DPC  uint64
	MISA uint64
}

func (b *Bank) ArchState() ArchState {
	return ArchState{DCSR: b.DCSR, DPC: b.DPC, MISA: b.MISA}
}
