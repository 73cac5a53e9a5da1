// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command rvdbgsmoke drives the driver stack against the golden DM
// simulator and runs a short sequence of end-to-end scenarios, mirroring
// the teacher's own smoke-test tooling shape (one flag-driven binary that
// exercises a library against a fake backend rather than real hardware).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/openhart/rvdbg/dmsim"
	"github.com/openhart/rvdbg/hart"
	"github.com/openhart/rvdbg/internal/fwhost"
	"github.com/openhart/rvdbg/internal/isa"
)

func main() {
	addrBits := pflag.Int("addr-bits", 5, "dbus address width")
	xlen := pflag.Int("xlen", 32, "simulated hart register width (32 or 64)")
	dramSize := pflag.Int("dram-size", 16, "Debug RAM size in 32-bit words")
	verbose := pflag.BoolP("verbose", "v", false, "log every scenario step")
	pflag.Parse()

	if err := run(*addrBits, *xlen, *dramSize, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "rvdbgsmoke:", err)
		os.Exit(1)
	}
}

type eventLog struct {
	verbose bool
}

func (l eventLog) TargetEvent(e fwhost.Event) {
	if !l.verbose {
		return
	}
	fmt.Println("event:", e)
}

func run(addrBits, xlen, dramSize int, verbose bool) error {
	sim := dmsim.New(addrBits, xlen, dramSize)
	enc := isa.Reference{}
	sess := hart.New(sim, enc, eventLog{verbose: verbose})

	step := func(name string, fn func() error) error {
		if verbose {
			fmt.Println("--", name)
		}
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	if err := step("examine", func() error { return sess.Examine(sim) }); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("xlen=%d addrbits=%d dramsize=%d\n", sess.Xlen, sess.AddrBits, sess.DRAMSize)
	}

	if err := step("halt", sess.Halt); err != nil {
		return err
	}
	if sess.State != fwhost.StateHalted {
		return fmt.Errorf("halt: state is %s, want halted", sess.State)
	}

	pc, err := sess.Regs.ReadPC()
	if err != nil {
		return fmt.Errorf("read dpc: %w", err)
	}
	if verbose {
		fmt.Printf("dpc=%#x debug_reason=%d\n", pc, sess.DebugReason)
	}

	var word [4]byte
	if err := step("read-memory", func() error { return sess.ReadMemory(0x1000, 4, 1, word[:]) }); err != nil {
		return err
	}

	if err := step("write-memory", func() error {
		copy(word[:], []byte{0xef, 0xbe, 0xad, 0xde})
		return sess.WriteMemory(0x1000, 4, 1, word[:])
	}); err != nil {
		return err
	}

	bp := fwhost.Breakpoint{UniqueID: 1, Address: 0x1000, Kind: fwhost.BreakpointHard}
	if err := step("add-breakpoint", func() error { return sess.AddBreakpoint(bp) }); err != nil {
		return err
	}
	if err := step("remove-breakpoint", func() error { return sess.RemoveBreakpoint(bp) }); err != nil {
		return err
	}

	if err := step("step", sess.Step); err != nil {
		return err
	}

	if err := step("resume", sess.Resume); err != nil {
		return err
	}
	if sess.State != fwhost.StateRunning {
		return fmt.Errorf("resume: state is %s, want running", sess.State)
	}

	fmt.Println("rvdbgsmoke: ok")
	return nil
}
