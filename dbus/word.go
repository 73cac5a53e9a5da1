// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dbus implements the debug-bus scan-word codec (C1), the
// pre-allocated scan batch (C2), and the single-scan transport with BUSY
// retry and adaptive delay counters (C3).
//
// A dbus scan word is addrbits + 2 + 34 bits, laid out LSB-first as op (2
// bits), data (34 bits), address (addrbits) — see spec §4.1. Everything in
// this file operates on explicit bit offsets into a byte slice, never on a
// native integer alias, so the codec is endianness-neutral by construction.
package dbus

import "github.com/openhart/rvdbg/internal/bitcursor"

// Op is the 2-bit dbus operation code.
type Op uint8

// Operation codes (§4.1).
const (
	OpNop   Op = 0
	OpRead  Op = 1
	OpWrite Op = 2
)

// Status is the 2-bit result code a DBUS_READ/DBUS_WRITE scan returns in the
// low bits of the word shifted back in.
type Status uint8

// Status codes (§4.1).
const (
	StatusSuccess Status = 0
	StatusFailed  Status = 2
	StatusBusy    Status = 3
)

// Bit offsets within a scan word (§4.1).
const (
	opOffset      = 0
	opWidth       = 2
	dataOffset    = 2
	dataWidth     = 34
	addrOffset    = 36
	haltNotBit    = 32 // bit within the 34-bit data field
	interruptBit  = 33 // bit within the 34-bit data field
)

// DataBits packs a 32-bit payload plus the HALTNOT/INTERRUPT flags into the
// 34-bit data field.
func DataBits(payload uint32, haltNot, interrupt bool) uint64 {
	d := uint64(payload)
	if haltNot {
		d |= 1 << haltNotBit
	}
	if interrupt {
		d |= 1 << interruptBit
	}
	return d
}

// HaltNot extracts the HALTNOT flag from a 34-bit data field.
func HaltNot(data uint64) bool { return data&(1<<haltNotBit) != 0 }

// Interrupt extracts the INTERRUPT flag from a 34-bit data field.
func Interrupt(data uint64) bool { return data&(1<<interruptBit) != 0 }

// Payload32 extracts the low 32 data bits (the actual register payload,
// without the HALTNOT/INTERRUPT flags) from a 34-bit data field.
func Payload32(data uint64) uint32 { return uint32(data) }

// WordBits returns the total width in bits of a scan word for the given
// dbus address width.
func WordBits(addrBits int) int { return addrOffset + addrBits }

// BufSize returns the byte buffer size used for scan contents.
//
// Per spec §4.2 this is "2 + xlen/8 bytes"; that formula alone under-sizes
// the buffer once addrbits grows past what is left over after the op and
// data fields consume their share of rounding slack, so BufSize takes the
// larger of the named formula and the size actually required to hold
// addrbits+36 bits — see DESIGN.md "Scan buffer sizing".
func BufSize(addrBits, xlen int) int {
	named := 2 + xlen/8
	needed := bitcursor.Size(WordBits(addrBits))
	if needed > named {
		return needed
	}
	return named
}

// Pack encodes (op, data, address) into a scan buffer of BufSize(addrBits,
// xlen) bytes, LSB-first at the offsets in §4.1.
func Pack(op Op, data uint64, address uint32, addrBits, xlen int) []byte {
	buf := make([]byte, BufSize(addrBits, xlen))
	bitcursor.SetBits(buf, opOffset, opWidth, uint64(op))
	bitcursor.SetBits(buf, dataOffset, dataWidth, data)
	bitcursor.SetBits(buf, addrOffset, addrBits, uint64(address))
	return buf
}

// Unpack decodes a scan result buffer into (status, data, address).
func Unpack(buf []byte, addrBits int) (status Status, data uint64, address uint32) {
	status = Status(bitcursor.GetBits(buf, opOffset, opWidth))
	data = bitcursor.GetBits(buf, dataOffset, dataWidth)
	address = uint32(bitcursor.GetBits(buf, addrOffset, addrBits))
	return status, data, address
}
