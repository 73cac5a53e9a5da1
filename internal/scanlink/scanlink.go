// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scanlink declares the collaborator interface for the low-level
// scan layer that queues JTAG IR/DR scans and drains them.
//
// That layer — and the TAP state machine, pin drive, and clocking underneath
// it — is out of scope for this module (see spec §1c and §6): it is owned
// by the host debugger framework and assumed to behave like any standard
// JTAG adapter driver. rvdbg only depends on the narrow Queue interface
// below.
package scanlink

import "periph.io/x/periph/conn/pin"

// Well known pin functionality for the four (plus optional reset) JTAG
// signals, for use by documentation and by Queue implementations that want
// a well-known name for the physical pin they drive — the same
// pin.Func-typed "well known pin functionality" idiom conn/spi/func.go uses
// for its own bus pins.
const (
	TCK  pin.Func = "JTAG_TCK"  // Test clock
	TDI  pin.Func = "JTAG_TDI"  // Test mode data input
	TDO  pin.Func = "JTAG_TDO"  // Test mode data output
	TMS  pin.Func = "JTAG_TMS"  // Test mode select
	TRST pin.Func = "JTAG_TRST" // Test reset
)

// Instruction register values for the TAPs this driver talks to (§6).
const (
	IRDTMInfo = 0x10
	IRDBus    = 0x11
	IRDebug   = 0x05
)

// Scan is a single queued IR+DR scan: select ir, then shift out dr and shift
// in the same number of bits, then hold TMS/TCK in run-test/idle for Idle
// extra clocks (§4.2's busy/interrupt-high pad).
type Scan struct {
	IR   int
	DR   []byte // LSB-first, length at least Bits/8 rounded up.
	Bits int
	Idle int
}

// Queue is the interface the scan layer exposes: scans are appended in
// order, and Drain() executes everything queued so far and returns, for
// each entry, the bits shifted in while DR was shifted out (positionally
// matched to the Scan slice passed to Enqueue since the last Drain).
//
// Implementations MUST preserve enqueue order: scans are executed by the
// scan layer strictly in the order they were queued (§5 Ordering).
type Queue interface {
	Enqueue(s Scan) error
	Drain() ([][]byte, error)
}
