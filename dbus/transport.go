// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dbus

import (
	"fmt"
	"time"

	"github.com/openhart/rvdbg/internal/scanlink"
)

// WaitBound is the wall-clock ceiling every transport and lifecycle wait
// loop in this module respects (§5 Cancellation & timeouts).
const WaitBound = 2 * time.Second

// Transport is the single-scan read/write primitive with BUSY retry (C3).
// It never bumps the Delays counters itself — see spec §4.3: the "once per
// batch" delay bump is a property of batch-driven components (C4/C6/C9),
// not of the single-transaction retry loops here.
type Transport struct {
	Queue    scanlink.Queue
	AddrBits int
	Xlen     int
	Delays   *Delays
}

func (t *Transport) scan1(op Op, address uint32, data uint64, setInterrupt bool) (HarvestedScan, error) {
	s := scanlink.Scan{
		IR:   scanlink.IRDBus,
		DR:   Pack(op, data, address, t.AddrBits, t.Xlen),
		Bits: WordBits(t.AddrBits),
		Idle: t.Delays.pad(setInterrupt),
	}
	if err := t.Queue.Enqueue(s); err != nil {
		return HarvestedScan{}, err
	}
	raw, err := t.Queue.Drain()
	if err != nil {
		return HarvestedScan{}, err
	}
	if len(raw) == 0 {
		return HarvestedScan{}, fmt.Errorf("dbus: scan queue drained nothing")
	}
	status, d, addr := Unpack(raw[len(raw)-1], t.AddrBits)
	return HarvestedScan{Status: status, Data: d, Address: addr}, nil
}

// ReadWord scans DBUS_READ repeatedly until status != BUSY and the returned
// address equals the requested address — the DM pipelines reads by one, so
// the valid data arrives on the scan after the one that requested it
// (§4.3).
func (t *Transport) ReadWord(address uint32) (uint64, error) {
	deadline := time.Now().Add(WaitBound)
	for {
		h, err := t.scan1(OpRead, address, 0, false)
		if err != nil {
			return 0, err
		}
		if h.Status == StatusFailed {
			return 0, fmt.Errorf("dbus: read of %#x failed", address)
		}
		if h.Status != StatusBusy && h.Address == address {
			return h.Data, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("dbus: read of %#x timed out waiting for pipelined result", address)
		}
	}
}

// WriteWord scans DBUS_WRITE repeatedly until status != BUSY. A FAILED
// status is reported as an error but is not retried (§4.3).
func (t *Transport) WriteWord(address uint32, payload uint32, setInterrupt bool) error {
	deadline := time.Now().Add(WaitBound)
	for {
		h, err := t.scan1(OpWrite, address, DataBits(payload, false, setInterrupt), setInterrupt)
		if err != nil {
			return err
		}
		if h.Status == StatusFailed {
			return fmt.Errorf("dbus: write of %#x failed", address)
		}
		if h.Status != StatusBusy {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dbus: write of %#x timed out", address)
		}
	}
}

// ReadBits performs a DBUS_READ at address 0, looping while BUSY or while
// the echoed address indicates stale pipeline state (address > 0x10 and
// != DMCONTROL), and returns the HALTNOT/INTERRUPT flags (§4.3).
func (t *Transport) ReadBits() (haltNot, interrupt bool, err error) {
	deadline := time.Now().Add(WaitBound)
	for {
		h, err := t.scan1(OpRead, 0, 0, false)
		if err != nil {
			return false, false, err
		}
		stale := h.Address > 0x10 && h.Address != DMControlAddress
		if h.Status != StatusBusy && !stale {
			return h.HaltNot(), h.Interrupt(), nil
		}
		if time.Now().After(deadline) {
			return false, false, fmt.Errorf("dbus: read_bits timed out")
		}
	}
}

// WaitForDebugIntClear polls ReadBits until interrupt is false, within
// WaitBound. If ignoreFirst is set, one sample is discarded first because it
// carries pre-write state (§4.3).
func (t *Transport) WaitForDebugIntClear(ignoreFirst bool) error {
	deadline := time.Now().Add(WaitBound)
	if ignoreFirst {
		if _, _, err := t.ReadBits(); err != nil {
			return err
		}
	}
	for {
		_, interrupt, err := t.ReadBits()
		if err != nil {
			return err
		}
		if !interrupt {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dbus: timed out waiting for debugint to clear")
		}
	}
}

// DMControlAddress is the dbus address of DMCONTROL (§6).
const DMControlAddress = 0x10
