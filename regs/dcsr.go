// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package regs

// DCSR bit layout (debug control and status, csr 0x7b0).
const (
	DCSRPRVShift   = 0
	DCSRPRVMask    = 0x3
	DCSRStepBit    = 1 << 2
	DCSRCauseShift = 6
	DCSRCauseMask  = 0x7
	DCSREBreakU    = 1 << 11
	DCSREBreakS    = 1 << 12
	DCSREBreakH    = 1 << 13
	DCSREBreakM    = 1 << 14
	DCSRHaltBit    = 1 << 15
)

// DCSR.CAUSE values (§4.8 Poll classification).
const (
	DCSRCauseEBreak   = 1
	DCSRCauseTrigger  = 2
	DCSRCauseDebugInt = 3
	DCSRCauseStep     = 4
	DCSRCauseHalt     = 5
)

// Cause extracts the DCSR.CAUSE field from a raw DCSR value.
func Cause(dcsr uint64) int {
	return int(dcsr>>DCSRCauseShift) & DCSRCauseMask
}
