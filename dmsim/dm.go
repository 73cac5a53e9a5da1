// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dmsim

import (
	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/internal/scanlink"
)

type pending struct {
	status  dbus.Status
	data    uint64
	address uint32
}

// DM is the golden Debug Module + hart simulator. Construct one with New,
// poke its exported fields to set up a scenario or fault schedule, then pass
// it anywhere an rvdbg component wants a scanlink.Queue.
type DM struct {
	AddrBits int
	Xlen     int
	DRAMSize int

	// InterruptLatency is how many subsequent scans report INTERRUPT still
	// high after a kick, before it clears — used to exercise the
	// interrupt-high-delay retry path (§4.3, §4.9).
	InterruptLatency int

	cpu  *cpu
	dram []uint32
	mem  map[uint64]byte

	halted           bool
	interruptTicks   int
	forcedBusy       []bool
	pend             pending
	scans            []scanlink.Scan
	dtminfoVersion   int
	lastExceptionErr error
}

// New returns a simulator with the given dbus address width, xlen, and
// Debug RAM size (in 32-bit words).
func New(addrBits, xlen, dramSize int) *DM {
	return &DM{
		AddrBits: addrBits,
		Xlen:     xlen,
		DRAMSize: dramSize,
		cpu:      newCPU(),
		dram:     make([]uint32, 64),
		mem:      map[uint64]byte{},
	}
}

// SetHalted force-sets the halted (HALTNOT) flag, e.g. to simulate a hart
// that halted on its own (breakpoint) rather than via Halt()'s snippet. The
// result the next scan shifts out already carries the new flag.
func (d *DM) SetHalted(h bool) {
	d.halted = h
	mask := dbus.DataBits(0, true, false)
	d.pend.data &^= mask
	if h {
		d.pend.data |= mask
	}
}

// Halted reports the simulator's current halt state.
func (d *DM) Halted() bool { return d.halted }

// SetGPR pokes a hart GPR for test setup/assertions.
func (d *DM) SetGPR(i int, v uint64) { d.cpu.gpr[i] = v }

// GPR reads back a hart GPR.
func (d *DM) GPR(i int) uint64 { return d.cpu.gpr[i] }

// SetFPR pokes a hart FPR for test setup/assertions.
func (d *DM) SetFPR(i int, v uint32) { d.cpu.fpr[i] = v }

// FPR reads back a hart FPR.
func (d *DM) FPR(i int) uint32 { return d.cpu.fpr[i] }

// SetCSR pokes a CSR for test setup.
func (d *DM) SetCSR(csr uint16, v uint64) { d.cpu.csr[csr] = v }

// CSR reads back a CSR.
func (d *DM) CSR(csr uint16) uint64 { return d.cpu.csr[csr] }

// SetMem pokes a byte of target memory outside the Debug RAM window.
func (d *DM) SetMem(addr uint64, v byte) { d.mem[addr] = v }

// Mem reads a byte of target memory.
func (d *DM) Mem(addr uint64) byte { return d.loadByte(addr) }

// QueueBusy arranges for the next n dbus transactions (in enqueue order) to
// return BUSY without taking effect.
func (d *DM) QueueBusy(n int) {
	for i := 0; i < n; i++ {
		d.forcedBusy = append(d.forcedBusy, true)
	}
}

// loadByte/storeByte implement memSpace: Debug RAM is memory-mapped at
// debugRAMStart, SETHALTNOT/CLEARHALTNOT are special DM-intercepted store
// addresses that flip the simulated HALTNOT flag (standing in for the real
// debug ROM's halt loop entry/exit), and everything else is ordinary
// target memory.
func (d *DM) loadByte(addr uint64) byte {
	if addr >= debugRAMStart && addr < debugRAMStart+uint64(4*len(d.dram)) {
		idx := (addr - debugRAMStart) / 4
		shift := (addr - debugRAMStart) % 4
		return byte(d.dram[idx] >> (8 * shift))
	}
	return d.mem[addr]
}

func (d *DM) storeByte(addr uint64, v byte) {
	if addr == setHaltNotAddr {
		d.halted = true
		return
	}
	if addr == clearHaltNotAddr {
		d.halted = false
		return
	}
	if addr >= debugRAMStart && addr < debugRAMStart+uint64(4*len(d.dram)) {
		idx := (addr - debugRAMStart) / 4
		shift := (addr - debugRAMStart) % 4
		word := d.dram[idx]
		word = word&^(0xff<<(8*shift)) | uint32(v)<<(8*shift)
		d.dram[idx] = word
		return
	}
	d.mem[addr] = v
}

func dramWordForAddress(addr uint32) (idx int, ok bool) {
	if addr < 0x10 {
		return int(addr), true
	}
	if addr >= 0x40 {
		return int(addr-0x40) + 0x10, true
	}
	return 0, false
}

// runProgram executes the hart starting at Debug RAM word 0 until a jal
// lands on DEBUG_ROM_RESUME/DEBUG_ROM_EXCEPTION, an unsupported instruction
// is hit (recorded as a hart exception, §7), or maxSteps is exceeded.
func (d *DM) runProgram() {
	d.cpu.pc = debugRAMStart
	d.cpu.xlen = d.Xlen
	for i := 0; i < maxSteps; i++ {
		keepGoing, err := d.cpu.step(d)
		if err != nil {
			d.lastExceptionErr = err
			if idx := d.slotLast(); idx >= 0 {
				d.dram[idx] = 1
			}
			return
		}
		if !keepGoing {
			return
		}
	}
}

// slotLast mirrors dram.Cache.SlotLast()'s xlen-dependent convention: the
// exception word the debug ROM writes is one word further from the end at
// xlen=64, where SLOT0 occupies two consecutive words (§4.4 Slot
// convention). Returns -1 if DRAMSize is 0.
func (d *DM) slotLast() int {
	if d.DRAMSize <= 0 {
		return -1
	}
	if d.Xlen == 64 {
		return d.DRAMSize - 2
	}
	return d.DRAMSize - 1
}

func (d *DM) statusBits() (haltNot, interrupt bool) {
	if d.interruptTicks > 0 {
		d.interruptTicks--
		interrupt = d.interruptTicks > 0
	}
	return d.halted, interrupt
}

func (d *DM) readRegister(address uint32) uint32 {
	switch {
	case address == dbus.DMControlAddress:
		return 0
	case address == 0x11: // DMINFO
		var v uint32
		v |= 1 // VERSION
		if d.DRAMSize > 0 {
			v |= uint32(d.DRAMSize-1) << 10 // DRAMSIZE
		}
		return v
	default:
		if idx, ok := dramWordForAddress(address); ok && idx < len(d.dram) {
			return d.dram[idx]
		}
		return 0
	}
}

func (d *DM) writeRegister(address uint32, payload uint32, interrupt bool) {
	if idx, ok := dramWordForAddress(address); ok && idx < len(d.dram) {
		d.dram[idx] = payload
	}
	if interrupt {
		d.runProgram()
		if d.InterruptLatency > 0 {
			d.interruptTicks = d.InterruptLatency
		}
	}
}

// Enqueue implements scanlink.Queue.
func (d *DM) Enqueue(s scanlink.Scan) error {
	d.scans = append(d.scans, s)
	return nil
}

// Drain implements scanlink.Queue: it processes every queued scan in
// enqueue order, simulating the one-cycle-pipelined dbus (the data a scan
// shifts out is the previous scan's result, §4.3).
func (d *DM) Drain() ([][]byte, error) {
	out := make([][]byte, 0, len(d.scans))
	for _, s := range d.scans {
		out = append(out, d.process(s))
	}
	d.scans = d.scans[:0]
	return out, nil
}

func (d *DM) process(s scanlink.Scan) []byte {
	outBuf := dbus.Pack(dbus.Op(d.pend.status), d.pend.data, d.pend.address, d.AddrBits, d.Xlen)

	if s.IR == scanlink.IRDTMInfo {
		val := uint64(d.dtminfoVersion) | uint64(d.AddrBits)<<4
		out := make([]byte, len(s.DR))
		for i := range out {
			out[i] = byte(val >> (8 * i))
		}
		return out
	}

	op, data, address := dbus.Unpack(s.DR, d.AddrBits)

	if len(d.forcedBusy) > 0 {
		busy := d.forcedBusy[0]
		d.forcedBusy = d.forcedBusy[1:]
		if busy {
			haltNot, interrupt := d.statusBits()
			d.pend = pending{status: dbus.StatusBusy, data: dbus.DataBits(0, haltNot, interrupt), address: address}
			return outBuf
		}
	}

	switch op {
	case dbus.OpRead:
		payload := d.readRegister(address)
		haltNot, interrupt := d.statusBits()
		d.pend = pending{status: dbus.StatusSuccess, data: dbus.DataBits(payload, haltNot, interrupt), address: address}
	case dbus.OpWrite:
		d.writeRegister(address, dbus.Payload32(data), dbus.Interrupt(data))
		haltNot, interrupt := d.statusBits()
		d.pend = pending{status: dbus.StatusSuccess, data: dbus.DataBits(0, haltNot, interrupt), address: address}
	default:
		haltNot, interrupt := d.statusBits()
		d.pend = pending{status: dbus.StatusSuccess, data: dbus.DataBits(0, haltNot, interrupt), address: address}
	}
	return outBuf
}
