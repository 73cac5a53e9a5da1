// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dmsim

import "github.com/openhart/rvdbg/internal/dramlayout"

// Memory-mapped addresses §6, shared with the real driver via dramlayout so
// the simulator and the code under test agree on where the debug ROM lives.
const (
	debugROMStart     = dramlayout.DebugROMStart
	debugROMResume    = dramlayout.DebugROMResume
	debugROMException = dramlayout.DebugROMException
	debugRAMStart     = dramlayout.DebugRAMStart
	setHaltNotAddr    = 0x10c
	clearHaltNotAddr  = 0x110
)

// Well-known CSR numbers, matching the real privileged spec so that the
// reference isa.Encoder's csrr/csrw/csrsi snippets address the same CSRs
// this simulator stores them under.
const (
	csrMISA    = 0x301
	csrDCSR    = 0x7b0
	csrDPC     = 0x7b1
	csrTSelect = 0x7a0
	csrTData1  = 0x7a1
	csrTData2  = 0x7a2
	csrMHartID = 0xf14
)

// maxSteps bounds a single injected-program execution so a malformed test
// fixture can't spin the simulator forever.
const maxSteps = 4096
