// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package isa declares the collaborator interface for the instruction
// encoder that yields 32-bit opcodes for named RISC-V instructions (§1c),
// plus a standard RV32/64IF encoder that satisfies it.
//
// The real encoder — whatever the host debugger framework ships — is out of
// scope for this module; rvdbg's injector, register, and memory-I/O code
// only depend on Encoder.
package isa

import "fmt"

// Reg is an architectural integer register number, x0..x31.
type Reg uint32

// ABI names for the registers every injected snippet clobbers or relies on
// (§4.5, §4.6, §5).
const (
	X0 Reg = 0
	T0 Reg = 5
	S0 Reg = 8
	S1 Reg = 9
)

// Encoder yields 32-bit opcodes for the named instructions the injector,
// register/CSR access, and memory I/O components stage into Debug RAM.
type Encoder interface {
	// Lw/Lh/Lb load a word/halfword/byte (zero or sign extended per the ISA's
	// own load variant) from rs1+imm into rd. Ld loads a doubleword (RV64).
	Lw(rd, rs1 Reg, imm int32) uint32
	Lh(rd, rs1 Reg, imm int32) uint32
	Lb(rd, rs1 Reg, imm int32) uint32
	Ld(rd, rs1 Reg, imm int32) uint32

	// Sw/Sh/Sb/Sd store rs2 to rs1+imm at the given width.
	Sw(rs2, rs1 Reg, imm int32) uint32
	Sh(rs2, rs1 Reg, imm int32) uint32
	Sb(rs2, rs1 Reg, imm int32) uint32
	Sd(rs2, rs1 Reg, imm int32) uint32

	// Fsw stores the low 32 bits of floating-point register rs2 to rs1+imm.
	Fsw(rs2, rs1 Reg, imm int32) uint32
	// Flw loads the low 32 bits of floating-point register rd from rs1+imm.
	Flw(rd, rs1 Reg, imm int32) uint32

	// Addi computes rd = rs1 + imm.
	Addi(rd, rs1 Reg, imm int32) uint32

	// Srli computes rd = rs1 >> shamt (logical, zero-filled).
	Srli(rd, rs1 Reg, shamt uint32) uint32

	// Jal jumps to pc+offset and writes the link address (pc+4) to rd.
	Jal(rd Reg, offset int32) uint32

	// FenceI synchronizes the instruction and data streams.
	FenceI() uint32

	// CSRRS computes rd = csr, csr |= rs1 (csrr when rs1 == X0).
	CSRRS(rd, rs1 Reg, csr uint16) uint32
	// CSRRW computes rd = csr, csr = rs1 (csrw when rd == X0).
	CSRRW(rd, rs1 Reg, csr uint16) uint32
	// CSRRSI computes rd = csr, csr |= imm (csrsi when rd == X0).
	CSRRSI(rd Reg, imm uint32, csr uint16) uint32
}

// Csrr encodes "csrr rd, csr".
func Csrr(enc Encoder, rd Reg, csr uint16) uint32 {
	return enc.CSRRS(rd, X0, csr)
}

// Csrw encodes "csrw csr, rs1".
func Csrw(enc Encoder, rs1 Reg, csr uint16) uint32 {
	return enc.CSRRW(X0, rs1, csr)
}

// Csrsi encodes "csrsi csr, imm".
func Csrsi(enc Encoder, csr uint16, imm uint32) uint32 {
	return enc.CSRRSI(X0, imm, csr)
}

// LoadSized encodes a load of the given width in bytes (1, 2, or 4 — §4.9
// only implements 8/16/32-bit memory accesses).
func LoadSized(enc Encoder, size int, rd, rs1 Reg, imm int32) (uint32, error) {
	switch size {
	case 1:
		return enc.Lb(rd, rs1, imm), nil
	case 2:
		return enc.Lh(rd, rs1, imm), nil
	case 4:
		return enc.Lw(rd, rs1, imm), nil
	default:
		return 0, fmt.Errorf("isa: unsupported memory access size %d", size)
	}
}

// StoreSized encodes a store of the given width in bytes (1, 2, or 4).
func StoreSized(enc Encoder, size int, rs2, rs1 Reg, imm int32) (uint32, error) {
	switch size {
	case 1:
		return enc.Sb(rs2, rs1, imm), nil
	case 2:
		return enc.Sh(rs2, rs1, imm), nil
	case 4:
		return enc.Sw(rs2, rs1, imm), nil
	default:
		return 0, fmt.Errorf("isa: unsupported memory access size %d", size)
	}
}

// LoadXlen encodes a load sized to xlen (32 or 64 bits): lw or ld.
func LoadXlen(enc Encoder, xlen int, rd, rs1 Reg, imm int32) (uint32, error) {
	switch xlen {
	case 32:
		return enc.Lw(rd, rs1, imm), nil
	case 64:
		return enc.Ld(rd, rs1, imm), nil
	default:
		return 0, fmt.Errorf("isa: unsupported xlen %d", xlen)
	}
}

// StoreXlen encodes a store sized to xlen (32 or 64 bits): sw or sd.
func StoreXlen(enc Encoder, xlen int, rs2, rs1 Reg, imm int32) (uint32, error) {
	switch xlen {
	case 32:
		return enc.Sw(rs2, rs1, imm), nil
	case 64:
		return enc.Sd(rs2, rs1, imm), nil
	default:
		return 0, fmt.Errorf("isa: unsupported xlen %d", xlen)
	}
}
