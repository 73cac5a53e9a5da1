// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitcursor reads and writes fixed-width integer fields at explicit
// bit offsets inside a densely packed, LSB-first byte slice.
//
// It exists so that protocol encoders never alias a byte slice to a native
// integer type: every field access goes through an explicit offset and
// width, which keeps the encoding independent of host endianness.
package bitcursor

// Size returns the number of bytes needed to hold bits wide.
func Size(bits int) int {
	return (bits + 7) / 8
}

// SetBits writes the low width bits of value into buf starting at bit offset
// off, LSB-first: bit 0 of value lands at bit off of the stream, bit 1 at
// off+1, and so on.
func SetBits(buf []byte, off, width int, value uint64) {
	for i := 0; i < width; i++ {
		pos := off + i
		byteIdx, bitIdx := pos/8, uint(pos%8)
		if (value>>uint(i))&1 != 0 {
			buf[byteIdx] |= 1 << bitIdx
		} else {
			buf[byteIdx] &^= 1 << bitIdx
		}
	}
}

// GetBits reads width bits starting at bit offset off and returns them as
// the low bits of the result, LSB-first.
func GetBits(buf []byte, off, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		pos := off + i
		byteIdx, bitIdx := pos/8, uint(pos%8)
		if buf[byteIdx]&(1<<bitIdx) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}
