// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package isa

// Reference is a standard RV32/64IF encoder. It exists so that rvdbg's own
// tests and the golden Debug Module simulator (package dmsim) have a
// concrete Encoder to drive; a real deployment supplies the host debugger
// framework's own encoder.
type Reference struct{}

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

func iType(opcode uint32, rd Reg, funct3 uint32, rs1 Reg, imm int32) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func sType(opcode uint32, funct3 uint32, rs1, rs2 Reg, imm int32) uint32 {
	u := uint32(imm)
	imm11_5 := (u >> 5) & 0x7f
	imm4_0 := u & 0x1f
	return imm11_5<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | imm4_0<<7 | opcode
}

// Lw implements Encoder.
func (Reference) Lw(rd, rs1 Reg, imm int32) uint32 { return iType(opLoad, rd, 0x2, rs1, imm) }

// Lh implements Encoder.
func (Reference) Lh(rd, rs1 Reg, imm int32) uint32 { return iType(opLoad, rd, 0x1, rs1, imm) }

// Lb implements Encoder.
func (Reference) Lb(rd, rs1 Reg, imm int32) uint32 { return iType(opLoad, rd, 0x0, rs1, imm) }

// Ld implements Encoder.
func (Reference) Ld(rd, rs1 Reg, imm int32) uint32 { return iType(opLoad, rd, 0x3, rs1, imm) }

// Sw implements Encoder.
func (Reference) Sw(rs2, rs1 Reg, imm int32) uint32 { return sType(opStore, 0x2, rs1, rs2, imm) }

// Sh implements Encoder.
func (Reference) Sh(rs2, rs1 Reg, imm int32) uint32 { return sType(opStore, 0x1, rs1, rs2, imm) }

// Sb implements Encoder.
func (Reference) Sb(rs2, rs1 Reg, imm int32) uint32 { return sType(opStore, 0x0, rs1, rs2, imm) }

// Sd implements Encoder.
func (Reference) Sd(rs2, rs1 Reg, imm int32) uint32 { return sType(opStore, 0x3, rs1, rs2, imm) }

// Fsw implements Encoder.
func (Reference) Fsw(rs2, rs1 Reg, imm int32) uint32 { return sType(opStoreFP, 0x2, rs1, rs2, imm) }

// Flw implements Encoder.
func (Reference) Flw(rd, rs1 Reg, imm int32) uint32 { return iType(opLoadFP, rd, 0x2, rs1, imm) }

// Addi implements Encoder.
func (Reference) Addi(rd, rs1 Reg, imm int32) uint32 { return iType(opImm, rd, 0x0, rs1, imm) }

// Srli implements Encoder: funct3=5, imm[11:5]=0 distinguishes it from srai.
func (Reference) Srli(rd, rs1 Reg, shamt uint32) uint32 {
	return iType(opImm, rd, 0x5, rs1, int32(shamt&0x3f))
}

// Jal implements Encoder.
func (Reference) Jal(rd Reg, offset int32) uint32 {
	u := uint32(offset)
	imm20 := (u >> 20) & 1
	imm10_1 := (u >> 1) & 0x3ff
	imm11 := (u >> 11) & 1
	imm19_12 := (u >> 12) & 0xff
	return imm20<<31 | imm10_1<<21 | imm11<<20 | imm19_12<<12 | uint32(rd)<<7 | opJal
}

// FenceI implements Encoder.
func (Reference) FenceI() uint32 { return iType(opMiscMem, X0, 0x1, X0, 0) }

// CSRRS implements Encoder.
func (Reference) CSRRS(rd, rs1 Reg, csr uint16) uint32 {
	return iType(opSystem, rd, 0x2, rs1, int32(csr))
}

// CSRRW implements Encoder.
func (Reference) CSRRW(rd, rs1 Reg, csr uint16) uint32 {
	return iType(opSystem, rd, 0x1, rs1, int32(csr))
}

// CSRRSI implements Encoder.
func (Reference) CSRRSI(rd Reg, imm uint32, csr uint16) uint32 {
	return iType(opSystem, rd, 0x6, Reg(imm&0x1f), int32(csr))
}
