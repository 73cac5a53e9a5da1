// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dbus

import (
	"github.com/openhart/rvdbg/internal/dramlayout"
	"github.com/openhart/rvdbg/internal/scanlink"
)

// Delays holds the two monotonic, self-tuning delay counters (§4.3, §9).
//
// They are never capped and never decay: callers only ever call Bump*.
type Delays struct {
	BusyDelay          int
	InterruptHighDelay int
}

// BumpBusy increments BusyDelay by one.
func (d *Delays) BumpBusy() { d.BusyDelay++ }

// BumpInterruptHigh increments InterruptHighDelay by one.
func (d *Delays) BumpInterruptHigh() { d.InterruptHighDelay++ }

// pad returns the run-test/idle padding a scan needs: 1 + BusyDelay, plus
// InterruptHighDelay when the scan sets INTERRUPT (§4.2).
func (d *Delays) pad(setInterrupt bool) int {
	n := 1 + d.BusyDelay
	if setInterrupt {
		n += d.InterruptHighDelay
	}
	return n
}

// HarvestedScan is one decoded scan result, positionally matched to the
// add_* call that queued it.
type HarvestedScan struct {
	Status  Status
	Data    uint64
	Address uint32
}

// HaltNot reports the HALTNOT flag of the harvested data field.
func (h HarvestedScan) HaltNot() bool { return HaltNot(h.Data) }

// Interrupt reports the INTERRUPT flag of the harvested data field.
func (h HarvestedScan) Interrupt() bool { return Interrupt(h.Data) }

// Payload32 returns the low 32 bits of the harvested data field.
func (h HarvestedScan) Payload32() uint32 { return Payload32(h.Data) }

// Batch is a pre-allocated buffer of dbus scans queued to the transport,
// harvested as a unit (C2). It owns no retry policy of its own: every add_*
// call appends exactly one scan (or, for AddRead, two for a 64-bit slot),
// plus that scan's idle pad; Harvest decodes results positionally and lets
// the caller decide what a BUSY or stuck-INTERRUPT result means for it.
type Batch struct {
	addrBits int
	xlen     int
	delays   *Delays
	scans    []scanlink.Scan
}

// NewBatch returns an empty batch sized for the given dbus address width,
// xlen, and shared delay counters.
func NewBatch(addrBits, xlen int, delays *Delays) *Batch {
	return &Batch{addrBits: addrBits, xlen: xlen, delays: delays}
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() { b.scans = b.scans[:0] }

// Len returns the number of scans currently queued.
func (b *Batch) Len() int { return len(b.scans) }

func (b *Batch) push(op Op, address uint32, data uint64, setInterrupt bool) int {
	buf := Pack(op, data, address, b.addrBits, b.xlen)
	b.scans = append(b.scans, scanlink.Scan{
		IR:   scanlink.IRDBus,
		DR:   buf,
		Bits: WordBits(b.addrBits),
		Idle: b.delays.pad(setInterrupt),
	})
	return len(b.scans) - 1
}

// AddWrite32 queues a WRITE of a 32-bit payload to address.
func (b *Batch) AddWrite32(address uint32, payload uint32, setInterrupt bool) int {
	return b.push(OpWrite, address, DataBits(payload, false, setInterrupt), setInterrupt)
}

// AddWriteJump queues a WRITE of an already-encoded jump ("jal x0, ...")
// instruction word to address, the terminator every injected snippet ends
// with (§4.4 cache_set_jump).
func (b *Batch) AddWriteJump(address uint32, jumpWord uint32, setInterrupt bool) int {
	return b.AddWrite32(address, jumpWord, setInterrupt)
}

// AddWriteLoad queues a WRITE of an already-encoded load instruction word
// (§4.4 cache_set_load) to address.
func (b *Batch) AddWriteLoad(address uint32, loadWord uint32, setInterrupt bool) int {
	return b.AddWrite32(address, loadWord, setInterrupt)
}

// AddWriteStore queues a WRITE of an already-encoded store instruction word
// (§4.4 cache_set_store) to address.
func (b *Batch) AddWriteStore(address uint32, storeWord uint32, setInterrupt bool) int {
	return b.AddWrite32(address, storeWord, setInterrupt)
}

// AddRead32 queues a READ of address and returns the index to fetch its
// result from after Harvest.
func (b *Batch) AddRead32(address uint32, setInterrupt bool) int {
	return b.push(OpRead, address, DataBits(0, false, setInterrupt), setInterrupt)
}

// AddRead queues a READ of the Debug RAM slot at word index i, decaying to
// one add_read32 when xlen==32 or two consecutive-word reads when xlen==64
// (§4.2). It returns the harvest indices in little-word-first order.
func (b *Batch) AddRead(i int, setInterrupt bool) []int {
	idx := []int{b.AddRead32(dramlayout.Address(i), setInterrupt)}
	if b.xlen == 64 {
		idx = append(idx, b.AddRead32(dramlayout.Address(i+1), setInterrupt))
	}
	return idx
}

// Scans exposes the queued scans for a Queue-draining transport.
func (b *Batch) Scans() []scanlink.Scan { return b.scans }

// Harvest enqueues every scan in the batch, drains the queue, and decodes
// each result positionally. It does not reset the batch or touch the delay
// counters: bumping BusyDelay/InterruptHighDelay on an observed BUSY or
// stuck INTERRUPT is a decision made by the caller (C4/C6/C9), which knows
// what the observation means for its own retry policy.
func (b *Batch) Harvest(q scanlink.Queue) ([]HarvestedScan, error) {
	for _, s := range b.scans {
		if err := q.Enqueue(s); err != nil {
			return nil, err
		}
	}
	raw, err := q.Drain()
	if err != nil {
		return nil, err
	}
	out := make([]HarvestedScan, len(raw))
	for i, buf := range raw {
		status, data, address := Unpack(buf, b.addrBits)
		out[i] = HarvestedScan{Status: status, Data: data, Address: address}
	}
	return out, nil
}

// Get64 assembles a 64-bit value from two consecutive harvested 32-bit
// words (low word first), as produced by AddRead on a 64-bit slot.
func Get64(results []HarvestedScan, idx []int) uint64 {
	lo := uint64(results[idx[0]].Payload32())
	if len(idx) == 1 {
		return lo
	}
	hi := uint64(results[idx[1]].Payload32())
	return lo | hi<<32
}
