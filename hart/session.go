// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hart implements the hart lifecycle (C8): examine, halt, resume,
// step (plain and strict), reset assert/deassert, and poll — the session
// object that owns every other component and is what the host debugger
// framework's target-type vtable is built around (§3, §4.8).
package hart

import (
	"fmt"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/dram"
	"github.com/openhart/rvdbg/inject"
	"github.com/openhart/rvdbg/internal/dramlayout"
	"github.com/openhart/rvdbg/internal/fwhost"
	"github.com/openhart/rvdbg/internal/isa"
	"github.com/openhart/rvdbg/internal/scanlink"
	"github.com/openhart/rvdbg/regs"
	"github.com/openhart/rvdbg/trigger"
)

// WaitBound mirrors dbus.WaitBound for lifecycle wait loops (§5).
const WaitBound = dbus.WaitBound

// Session is the per-target state the framework creates in init_target and
// destroys in deinit_target (§3 Lifecycles).
type Session struct {
	Enc  isa.Encoder
	Sink fwhost.EventSink

	Transport *dbus.Transport
	Cache     *dram.Cache
	Inject    *inject.Injector
	Regs      *regs.Bank
	Triggers  *trigger.Manager
	Delays    *dbus.Delays

	AddrBits int
	Xlen     int
	DRAMSize int

	State          fwhost.State
	DebugReason    fwhost.DebugReason
	NeedStrictStep bool

	// Announce controls whether Poll fires TARGET_EVENT_HALTED on the
	// transition to halted (§4.8 Poll).
	Announce bool

	haltOnReset bool
}

// New wires up a session against a scan queue. Examine must be called
// before anything else will work.
func New(q scanlink.Queue, enc isa.Encoder, sink fwhost.EventSink) *Session {
	if sink == nil {
		sink = fwhost.NopEventSink{}
	}
	return &Session{
		Enc:      enc,
		Sink:     sink,
		Delays:   &dbus.Delays{},
		State:    fwhost.StateUnknown,
		Announce: true,
		Transport: &dbus.Transport{
			Queue: q,
		},
	}
}

// Examine probes DTMINFO/DMINFO, records addrbits/dramsize, discovers xlen,
// and reads misa (§4.8 Examine).
func (s *Session) Examine(q scanlink.Queue) error {
	dtm, err := readDTMInfo(q)
	if err != nil {
		return err
	}
	addrBits := int(dtm>>4) & 0xf
	version := int(dtm) & 0xf
	if version != 0 {
		return fmt.Errorf("hart: unsupported DTM version %d", version)
	}
	s.AddrBits = addrBits
	s.Transport.AddrBits = addrBits
	s.Transport.Xlen = 32 // provisional until xlen discovery settles it below
	s.Transport.Delays = s.Delays

	dminfo, err := s.Transport.ReadWord(0x11)
	if err != nil {
		return err
	}
	dminfoVal := dbus.Payload32(dminfo)
	dmVersion := int(dminfoVal) & 0x3
	if dmVersion != 1 {
		return fmt.Errorf("hart: unsupported DM version %d", dmVersion)
	}
	authType := (dminfoVal >> 2) & 0x3
	authBusy := dminfoVal&(1<<4) != 0
	if authType != 0 || authBusy {
		return fmt.Errorf("hart: authentication required, unsupported")
	}
	s.DRAMSize = int((dminfoVal>>10)&0x3f) + 1

	// A throwaway xlen=32 cache is enough to run the xlen probe itself;
	// Examine rebuilds Cache/Inject/Regs/Triggers once xlen is known.
	s.Cache = dram.New(s.DRAMSize, s.AddrBits, 32, s.Enc, s.Delays)
	s.Inject = &inject.Injector{Cache: s.Cache, Transport: s.Transport}

	xlen, err := s.discoverXlen()
	if err != nil {
		return err
	}
	s.Xlen = xlen
	s.Transport.Xlen = xlen
	s.Cache = dram.New(s.DRAMSize, s.AddrBits, xlen, s.Enc, s.Delays)
	s.Inject = &inject.Injector{Cache: s.Cache, Transport: s.Transport}
	s.Regs = regs.New(s.Inject, s.Cache, s.Enc, xlen)
	s.Triggers = trigger.New(s.Regs)

	misa, err := s.Regs.ReadCSR(regs.CSRMISA)
	if err != nil {
		return err
	}
	s.Regs.MISA = misa
	s.Triggers.MISA = misa

	s.State = fwhost.StateRunning
	return nil
}

func readDTMInfo(q scanlink.Queue) (uint32, error) {
	if err := q.Enqueue(scanlink.Scan{IR: scanlink.IRDTMInfo, DR: make([]byte, 4), Bits: 32}); err != nil {
		return 0, err
	}
	raw, err := q.Drain()
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("hart: dtminfo scan drained nothing")
	}
	buf := raw[len(raw)-1]
	var v uint32
	for i := 0; i < len(buf) && i < 4; i++ {
		v |= uint32(buf[i]) << uint(8*i)
	}
	return v, nil
}

// discoverXlen injects the standard probe snippet and classifies the
// result against the three supported xlen values (§4.8 xlen discovery,
// §8 Property 8).
func (s *Session) discoverXlen() (int, error) {
	word0, word1, err := s.runXlenProbe()
	if err != nil {
		return 0, err
	}
	switch {
	case word0 == 1 && word1 == 0:
		return 32, nil
	case word0 == 0xFFFFFFFF && word1 == 3:
		return 64, nil
	case word0 == 0xFFFFFFFF && word1 == 0xFFFFFFFF:
		return 128, nil
	default:
		return 0, fmt.Errorf("hart: xlen discovery produced (word0=%#x, word1=%#x)", word0, word1)
	}
}

// xlenProbeWord0/1 are Debug-RAM word indices the bootstrap snippet reports
// its two results through — beyond the four-word scratch area the normal
// injector recipe uses, since this one-time bootstrap needs six program
// words (§4.8). They reuse the same "scratch past index 4" convention as
// the FPR readback word (word 16).
const (
	xlenProbeWord0 = 16
	xlenProbeWord1 = 17
)

// runXlenProbe stages the six-word bootstrap snippet directly — it needs
// two more scratch words than the normal 4-word injector recipe allows, so
// this is the one caller that pokes the cache below Injector.Run. It
// cache-writes the snippet without running to prove the RAM round-trips
// (cache_check), then cache-writes with run and reads back the two result
// words (§4.8).
func (s *Session) runXlenProbe() (uint32, uint32, error) {
	c := s.Cache
	enc := s.Enc

	word0Addr := int32(dramlayout.DebugRAMStart + xlenProbeWord0*4)
	word1Addr := int32(dramlayout.DebugRAMStart + xlenProbeWord1*4)

	sw0, err := isa.StoreSized(enc, 4, isa.S1, isa.X0, word0Addr)
	if err != nil {
		return 0, 0, err
	}
	sw1, err := isa.StoreSized(enc, 4, isa.S1, isa.X0, word1Addr)
	if err != nil {
		return 0, 0, err
	}

	c.CacheSet32(0, enc.Addi(isa.S1, isa.X0, -1)) // S1 = all ones
	c.CacheSet32(1, enc.Srli(isa.S1, isa.S1, 31))
	c.CacheSet32(2, sw0)
	c.CacheSet32(3, enc.Srli(isa.S1, isa.S1, 31))

	if _, err := c.CacheWrite(s.Transport, 4, false); err != nil {
		return 0, 0, err
	}
	if err := c.CacheCheck(s.Transport); err != nil {
		return 0, 0, err
	}

	c.CacheSet32(4, sw1)
	c.CacheSetJump(5)

	if _, err := c.CacheWrite(s.Transport, 4, true); err != nil {
		return 0, 0, err
	}

	w0, err := s.Transport.ReadWord(dramlayout.Address(xlenProbeWord0))
	if err != nil {
		return 0, 0, err
	}
	w1, err := s.Transport.ReadWord(dramlayout.Address(xlenProbeWord1))
	if err != nil {
		return 0, 0, err
	}
	return dbus.Payload32(w0), dbus.Payload32(w1), nil
}
