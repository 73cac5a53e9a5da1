// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dmsim is the golden Debug Module simulator used by this module's
// own tests (§8's "golden DM simulator", S1-S6). It is not part of the
// driver: it plays the role of the hart + Debug Module that rvdbg talks to,
// so that the transport/injector/register/memory-I/O code can be exercised
// end-to-end without real JTAG hardware.
//
// Following the teacher's fakes (conn/conntest, conn/gpio/gpiotest,
// conn/spi/spitest, devices/devicestest): a simulator you poke directly to
// set up scenarios and fault schedules, not a cycle-accurate core. It does,
// however, genuinely execute the handful of RV32/64 instructions the
// reference isa.Encoder produces, so that injected snippets (xlen
// detection, register/CSR read and write, memory I/O preambles) really do
// run and really do produce the values spec.md describes.
package dmsim

import "fmt"

const (
	opLoad    = 0x03
	opLoadFP  = 0x07
	opStoreFP = 0x27
	opStore   = 0x23
	opImm     = 0x13
	opMiscMem = 0x0f
	opJal     = 0x6f
	opSystem  = 0x73
)

// cpu is the hart's architectural state.
type cpu struct {
	gpr [32]uint64
	fpr [32]uint32
	pc  uint64
	csr map[uint16]uint64

	// xlen is the hart width; at 32, srli shifts only the low 32 bits.
	xlen int
}

func newCPU() *cpu {
	return &cpu{csr: map[uint16]uint64{}}
}

func signExtend(v uint32, bits int) int32 {
	shift := 32 - uint(bits)
	return int32(v<<shift) >> shift
}

func decodeI(word uint32) (rd uint32, funct3 uint32, rs1 uint32, imm int32) {
	rd = (word >> 7) & 0x1f
	funct3 = (word >> 12) & 0x7
	rs1 = (word >> 15) & 0x1f
	imm = signExtend(word>>20, 12)
	return
}

func decodeS(word uint32) (rs1, rs2, funct3 uint32, imm int32) {
	rs1 = (word >> 15) & 0x1f
	rs2 = (word >> 20) & 0x1f
	funct3 = (word >> 12) & 0x7
	lo := (word >> 7) & 0x1f
	hi := (word >> 25) & 0x7f
	imm = signExtend(hi<<5|lo, 12)
	return
}

func decodeJ(word uint32) (rd uint32, imm int32) {
	rd = (word >> 7) & 0x1f
	imm20 := (word >> 31) & 1
	imm19_12 := (word >> 12) & 0xff
	imm11 := (word >> 20) & 1
	imm10_1 := (word >> 21) & 0x3ff
	u := imm20<<20 | imm19_12<<12 | imm11<<11 | imm10_1<<1
	imm = signExtend(u, 21)
	return
}

func opcode(word uint32) uint32 { return word & 0x7f }

// memSpace abstracts the byte-addressable space the interpreter loads from
// and stores to: Debug RAM for addresses in its mapped range, main target
// memory otherwise.
type memSpace interface {
	loadByte(addr uint64) byte
	storeByte(addr uint64, v byte)
}

// step executes one instruction at c.pc against mem, and reports whether
// execution should continue (false once a jal targeting DEBUG_ROM_RESUME or
// DEBUG_ROM_EXCEPTION is taken — the injected program has handed control
// back to the debug ROM).
func (c *cpu) step(mem memSpace) (keepGoing bool, err error) {
	word := readWord32(mem, c.pc)
	switch opcode(word) {
	case opLoad:
		rd, funct3, rs1, imm := decodeI(word)
		addr := uint64(int64(c.gpr[rs1]) + int64(imm))
		switch funct3 {
		case 0: // lb
			c.gpr[rd] = uint64(int64(int8(mem.loadByte(addr))))
		case 1: // lh
			v := uint16(mem.loadByte(addr)) | uint16(mem.loadByte(addr+1))<<8
			c.gpr[rd] = uint64(int64(int16(v)))
		case 2: // lw
			c.gpr[rd] = uint64(int64(int32(loadLE32(mem, addr))))
		case 3: // ld
			c.gpr[rd] = loadLE64(mem, addr)
		default:
			return false, fmt.Errorf("dmsim: unsupported load funct3 %d", funct3)
		}
		c.pc += 4
	case opStore:
		rs1, rs2, funct3, imm := decodeS(word)
		addr := uint64(int64(c.gpr[rs1]) + int64(imm))
		switch funct3 {
		case 0:
			mem.storeByte(addr, byte(c.gpr[rs2]))
		case 1:
			storeLE(mem, addr, uint64(uint16(c.gpr[rs2])), 2)
		case 2:
			storeLE(mem, addr, uint64(uint32(c.gpr[rs2])), 4)
		case 3:
			storeLE(mem, addr, c.gpr[rs2], 8)
		default:
			return false, fmt.Errorf("dmsim: unsupported store funct3 %d", funct3)
		}
		c.pc += 4
	case opLoadFP:
		rd, funct3, rs1, imm := decodeI(word)
		if funct3 != 2 {
			return false, fmt.Errorf("dmsim: unsupported load-fp funct3 %d", funct3)
		}
		addr := uint64(int64(c.gpr[rs1]) + int64(imm))
		c.fpr[rd] = loadLE32(mem, addr)
		c.pc += 4
	case opStoreFP:
		rs1, rs2, funct3, imm := decodeS(word)
		if funct3 != 2 {
			return false, fmt.Errorf("dmsim: unsupported store-fp funct3 %d", funct3)
		}
		addr := uint64(int64(c.gpr[rs1]) + int64(imm))
		storeLE(mem, addr, uint64(c.fpr[rs2]), 4)
		c.pc += 4
	case opImm:
		rd, funct3, rs1, imm := decodeI(word)
		switch funct3 {
		case 0: // addi
			c.gpr[rd] = uint64(int64(c.gpr[rs1]) + int64(imm))
		case 5: // srli (imm[11:5]==0; srai sets bit 10 of imm, unsupported here)
			shamt := uint32(imm) & 0x3f
			v := c.gpr[rs1]
			if c.xlen == 32 {
				v = uint64(uint32(v))
			}
			c.gpr[rd] = v >> shamt
		default:
			return false, fmt.Errorf("dmsim: unsupported op-imm funct3 %d", funct3)
		}
		c.pc += 4
	case opJal:
		rd, imm := decodeJ(word)
		link := c.pc + 4
		c.pc = uint64(int64(c.pc) + int64(imm))
		c.gpr[rd] = link
		return c.pc != debugROMResume && c.pc != debugROMException, nil
	case opMiscMem:
		// fence.i: no-op in the simulator.
		c.pc += 4
	case opSystem:
		rd, funct3, rs1, imm := decodeI(word)
		csr := uint16(imm) & 0xfff
		key := csr
		if csr == csrTData1 || csr == csrTData2 {
			// One tdata1/tdata2 pair per trigger slot, selected by tselect.
			key |= uint16(c.csr[csrTSelect]&0xf) << 12
		}
		old := c.csr[key]
		switch funct3 {
		case 1: // csrrw
			c.csr[key] = c.gpr[rs1]
		case 2: // csrrs
			c.csr[key] = old | c.gpr[rs1]
		case 6: // csrrsi
			c.csr[key] = old | uint64(rs1) // rs1 field carries the zimm
		default:
			return false, fmt.Errorf("dmsim: unsupported system funct3 %d", funct3)
		}
		c.gpr[rd] = old
		c.pc += 4
	default:
		return false, fmt.Errorf("dmsim: unsupported opcode %#x at pc %#x", opcode(word), c.pc)
	}
	c.gpr[0] = 0
	return true, nil
}

func readWord32(mem memSpace, addr uint64) uint32 {
	return loadLE32(mem, addr)
}

func loadLE32(mem memSpace, addr uint64) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(mem.loadByte(addr+uint64(i))) << uint(8*i)
	}
	return v
}

func loadLE64(mem memSpace, addr uint64) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(mem.loadByte(addr+uint64(i))) << uint(8*i)
	}
	return v
}

func storeLE(mem memSpace, addr uint64, v uint64, n int) {
	for i := 0; i < n; i++ {
		mem.storeByte(addr+uint64(i), byte(v>>uint(8*i)))
	}
}
