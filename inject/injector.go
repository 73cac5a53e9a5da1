// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package inject implements the program injector (C5): the single recipe
// every CSR, GPR, and memory primitive in this module is built from —
// "stage <=4 instruction words in the cache, set the terminator, place
// inputs in SLOT0/SLOT1, cache_write(entry_addr=4, run=true), then read
// SLOT0 and check the exception word" (§4.5).
package inject

import (
	"fmt"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/dram"
	"github.com/openhart/rvdbg/internal/dramlayout"
)

// Injector runs short instruction snippets on a halted hart through a
// Debug-RAM cache.
type Injector struct {
	Cache     *dram.Cache
	Transport *dbus.Transport
}

// Run stages the given instruction words at lines 0..len(words)-1, places a
// resume jump immediately after them, optionally seeds SLOT0/SLOT1 with
// caller-supplied inputs, executes, and returns the value read back from
// SLOT0 along with any hart exception.
//
// words must be at most 4 entries (§5 Shared resources: lines 0..3 are
// scratch program, 4.. are data slots).
func (inj *Injector) Run(words []uint32, slot0, slot1 *uint64) (uint32, error) {
	if len(words) > 4 {
		return 0, fmt.Errorf("inject: snippet of %d words exceeds the 4-word scratch area", len(words))
	}
	c := inj.Cache
	for i, w := range words {
		c.CacheSet32(i, w)
	}
	c.CacheSetJump(len(words))
	if slot0 != nil {
		c.CacheSet(c.Slot0(), *slot0)
	}
	if slot1 != nil {
		c.CacheSet(c.Slot1(), *slot1)
	}

	// entry_addr is SLOT0's own dbus address, so cache_write's fast-path
	// read-back already yields the value this recipe calls "read SLOT0".
	result, err := c.CacheWrite(inj.Transport, dramlayout.Address(c.Slot0()), true)
	if err != nil {
		return 0, err
	}

	exc, err := inj.Transport.ReadWord(dramlayout.Address(c.SlotLast()))
	if err != nil {
		return 0, err
	}
	if code := dbus.Payload32(exc); code != 0 {
		return 0, &ExceptionError{Code: code}
	}

	return result, nil
}

// RunXlen behaves like Run but assembles a full xlen-width result from
// SLOT0's low word and, at xlen=64, the word immediately after it (SLOT0
// occupies two consecutive Debug-RAM words whenever a full register is
// stored there at xlen=64) — for snippets whose "read SLOT0" step is really
// reading back a full register (§4.6 read_csr/register_get on a 64-bit
// hart).
func (inj *Injector) RunXlen(words []uint32, slot0, slot1 *uint64) (uint64, error) {
	lo, err := inj.Run(words, slot0, slot1)
	if err != nil {
		return 0, err
	}
	if inj.Cache.Xlen() != 64 {
		return uint64(lo), nil
	}
	hi, err := inj.Transport.ReadWord(dramlayout.Address(inj.Cache.Slot0() + 1))
	if err != nil {
		return 0, err
	}
	return uint64(lo) | uint64(dbus.Payload32(hi))<<32, nil
}

// ExceptionError reports a non-zero exception code left in the exception
// word (Cache.SlotLast: dramsize-1 at xlen=32, dramsize-2 at xlen=64) by an
// injected snippet (§7 Hart exception).
type ExceptionError struct {
	Code uint32
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("inject: hart exception, code %#x", e.Code)
}
