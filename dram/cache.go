// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dram implements the Debug-RAM cache (C4): a shadow of the
// target's Debug RAM words, flushed to hardware as a batch, with the
// fast-path/slow-path write-back and check logic described by spec §4.4.
package dram

import (
	"fmt"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/internal/dramlayout"
	"github.com/openhart/rvdbg/internal/isa"
)

// Line is one cached Debug RAM word.
type Line struct {
	Data  uint32
	Valid bool
	Dirty bool
}

// Cache is the software shadow of the target's Debug RAM (C4).
//
// Indices 0..3 are scratch program words; indices 4..dramSize-1 are data
// slots shared by the injector and memory I/O (§5 Shared resources).
type Cache struct {
	lines    []Line
	dramSize int
	addrBits int
	xlen     int
	enc      isa.Encoder
	delays   *dbus.Delays
}

// New returns an empty cache sized for dramSize words.
func New(dramSize, addrBits, xlen int, enc isa.Encoder, delays *dbus.Delays) *Cache {
	return &Cache{
		lines:    make([]Line, dramSize),
		dramSize: dramSize,
		addrBits: addrBits,
		xlen:     xlen,
		enc:      enc,
		delays:   delays,
	}
}

// Slot0 is the first xlen-agnostic data slot (§4.4 Slot convention).
func (c *Cache) Slot0() int { return 4 }

// Slot1 is the second data slot: word 5 at xlen=32, word 6 at xlen=64.
func (c *Cache) Slot1() int {
	if c.xlen == 64 {
		return 6
	}
	return 5
}

// SlotLast is the exception-code word reserved by the debug ROM.
func (c *Cache) SlotLast() int {
	if c.xlen == 64 {
		return c.dramSize - 2
	}
	return c.dramSize - 1
}

// DRAMSize returns the number of words the cache was constructed with.
func (c *Cache) DRAMSize() int { return c.dramSize }

// Xlen returns the hart's integer register width.
func (c *Cache) Xlen() int { return c.xlen }

// Get returns the shadow value of line i without touching hardware.
func (c *Cache) Get(i int) uint32 { return c.lines[i].Data }

// CacheSet32 marks line i {valid, dirty, data} (§4.4).
//
// The source's "already present" fast-path check for this call is disabled
// (§9(c)); this implementation always marks the line dirty, matching that
// behavior rather than re-enabling the optimization without a miss/hit
// metric to justify it.
func (c *Cache) CacheSet32(i int, data uint32) {
	c.lines[i] = Line{Data: data, Valid: true, Dirty: true}
}

// CacheSet writes one word (xlen=32) or two consecutive words (xlen=64)
// starting at slot, least-significant word first.
func (c *Cache) CacheSet(slot int, v uint64) {
	c.CacheSet32(slot, uint32(v))
	if c.xlen == 64 {
		c.CacheSet32(slot+1, uint32(v>>32))
	}
}

// CacheSetJump writes a "jal x0, DEBUG_ROM_RESUME - (DEBUG_RAM_START + 4*i)"
// terminator at line i so the hart falls back into debug ROM after
// executing up to index i (§4.4).
func (c *Cache) CacheSetJump(i int) {
	pc := dramlayout.DebugRAMStart + 4*i
	offset := int32(dramlayout.DebugROMResume - pc)
	c.CacheSet32(i, c.enc.Jal(isa.X0, offset))
}

// CacheSetLoad writes a load of gpr from the Debug RAM word backing slot,
// sized to xlen (§4.4).
func (c *Cache) CacheSetLoad(i int, gpr isa.Reg, slot int) error {
	imm := int32(dramlayout.DebugRAMStart + 4*slot)
	word, err := isa.LoadXlen(c.enc, c.xlen, gpr, isa.X0, imm)
	if err != nil {
		return err
	}
	c.CacheSet32(i, word)
	return nil
}

// CacheSetStore writes a store of gpr to the Debug RAM word backing slot,
// sized to xlen (§4.4).
func (c *Cache) CacheSetStore(i int, gpr isa.Reg, slot int) error {
	imm := int32(dramlayout.DebugRAMStart + 4*slot)
	word, err := isa.StoreXlen(c.enc, c.xlen, gpr, isa.X0, imm)
	if err != nil {
		return err
	}
	c.CacheSet32(i, word)
	return nil
}

// CacheInvalidate marks every line invalid, forcing the next cache_check or
// read to treat shadow state as unknown.
func (c *Cache) CacheInvalidate() {
	for i := range c.lines {
		c.lines[i].Valid = false
	}
}

// invalidateExecuted marks lines >= 4 invalid: they may have been mutated
// by the program that just ran (§4.4 cache_write fast path).
func (c *Cache) invalidateExecuted() {
	for i := 4; i < len(c.lines); i++ {
		c.lines[i].Valid = false
	}
}

// CacheWrite flushes every dirty line to hardware (§4.4).
//
// Fast path: in one batch, WRITE every dirty line in order, setting the
// INTERRUPT bit only on the last write when run is true, then (if run or
// entryAddr < 128) two READ scans of entryAddr — the first is discarded
// pipeline residue, the second is returned. Slow path: on any BUSY, fall
// back to per-word retried writes with a final wait for debugint clear.
// Either way every dirty bit is cleared; the fast path additionally
// invalidates lines >= 4 when run is true.
func (c *Cache) CacheWrite(t *dbus.Transport, entryAddr uint32, run bool) (uint32, error) {
	dirty := c.dirtyIndices()
	if len(dirty) == 0 {
		if run || entryAddr < 128 {
			return c.readEntry(t, entryAddr)
		}
		return 0, nil
	}

	b := dbus.NewBatch(c.addrBits, c.xlen, c.delays)
	for n, i := range dirty {
		last := n == len(dirty)-1
		b.AddWrite32(dramlayout.Address(i), c.lines[i].Data, last && run)
	}
	readIdx := -1
	if run || entryAddr < 128 {
		b.AddRead32(entryAddr, false)
		readIdx = b.AddRead32(entryAddr, false)
	}

	results, err := b.Harvest(t.Queue)
	if err != nil {
		return 0, err
	}

	for _, h := range results {
		if h.Status == dbus.StatusBusy {
			c.delays.BumpBusy()
			return c.writeSlow(t, dirty, entryAddr, run)
		}
		if h.Status == dbus.StatusFailed {
			return 0, fmt.Errorf("dram: cache write failed")
		}
	}

	for _, i := range dirty {
		c.lines[i].Dirty = false
	}
	if run {
		c.invalidateExecuted()
		if err := t.WaitForDebugIntClear(false); err != nil {
			return 0, err
		}
	}
	if readIdx >= 0 {
		return results[readIdx].Payload32(), nil
	}
	return 0, nil
}

func (c *Cache) dirtyIndices() []int {
	var idx []int
	for i, l := range c.lines {
		if l.Dirty {
			idx = append(idx, i)
		}
	}
	return idx
}

func (c *Cache) readEntry(t *dbus.Transport, entryAddr uint32) (uint32, error) {
	v, err := t.ReadWord(entryAddr)
	if err != nil {
		return 0, err
	}
	return dbus.Payload32(v), nil
}

// writeSlow is the per-word fallback used once a batch write reports BUSY:
// each dirty line is retried individually through the single-scan
// transport, which already loops on BUSY, then a final wait for debugint
// clear settles the pipeline.
func (c *Cache) writeSlow(t *dbus.Transport, dirty []int, entryAddr uint32, run bool) (uint32, error) {
	for n, i := range dirty {
		last := n == len(dirty)-1
		if err := t.WriteWord(dramlayout.Address(i), c.lines[i].Data, last && run); err != nil {
			return 0, err
		}
		c.lines[i].Dirty = false
	}
	if run {
		c.invalidateExecuted()
	}
	if err := t.WaitForDebugIntClear(run); err != nil {
		return 0, err
	}
	if run || entryAddr < 128 {
		return c.readEntry(t, entryAddr)
	}
	return 0, nil
}

// CacheCheck reads back every clean-valid line and compares it to the
// shadow (§4.4). It returns an error naming the first divergent line, with
// its shadow and hardware values; later lines are not reported.
//
// The dbus pipelines reads by one scan (§4.3): the data for the read queued
// at position p is only shifted out at position p+1. A batch of N reads
// only ever surfaces N-1 of them on its own, so one extra trailing read is
// appended purely to flush the last one out; its own value is discarded.
func (c *Cache) CacheCheck(t *dbus.Transport) error {
	b := dbus.NewBatch(c.addrBits, c.xlen, c.delays)
	var idx []int
	for i, l := range c.lines {
		if l.Valid && !l.Dirty {
			idx = append(idx, b.AddRead32(dramlayout.Address(i), false))
		}
	}
	if len(idx) == 0 {
		return nil
	}
	b.AddRead32(dramlayout.Address(0), false) // flush

	results, err := b.Harvest(t.Queue)
	if err != nil {
		return err
	}
	n := 0
	for i, l := range c.lines {
		if !l.Valid || l.Dirty {
			continue
		}
		got := results[idx[n]+1].Payload32()
		n++
		if got != l.Data {
			return fmt.Errorf("dram: cache check mismatch at word %d: shadow=%#x hardware=%#x", i, l.Data, got)
		}
	}
	return nil
}
