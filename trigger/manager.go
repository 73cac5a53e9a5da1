// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package trigger implements the hardware trigger (breakpoint/watchpoint)
// slot manager (C7): probing, claiming, configuring, and releasing the
// target's physical address/data-match units.
package trigger

import (
	"fmt"

	"github.com/openhart/rvdbg/regs"
)

// MaxHWBPs bounds the physical trigger slot pool (§4.7).
const MaxHWBPs = 16

// tdata1 field layout, type=2 (address/data match), per the privileged
// trigger spec as referenced by §4.7.
const (
	tdata1TypeShift  = 28
	tdata1Type2      = 2
	tdata1DMode      = 1 << 27
	tdata1MatchShift = 7
	tdata1MatchEqual = 0
	tdata1MBit       = 1 << 6
	tdata1HBit       = 1 << 5
	tdata1SBit       = 1 << 4
	tdata1UBit       = 1 << 3
	tdata1ExecuteBit = 1 << 2
	tdata1StoreBit   = 1 << 1
	tdata1LoadBit    = 1 << 0
	// ACTION field: 0 selects "enter debug mode" per §4.7.
	tdata1ActionDebugMode = 0 << 12
)

// misa privilege-mode bits (standard ISA encoding) used to decide which of
// H/S/U to set on a configured trigger.
const (
	misaH = 1 << ('H' - 'A')
	misaS = 1 << ('S' - 'A')
	misaU = 1 << ('U' - 'A')
)

// Kind selects which access types a trigger should match.
type Kind struct {
	Execute bool
	Load    bool
	Store   bool
}

// slot tracks one physical trigger's ownership.
type slot struct {
	owned    bool
	uniqueID int64
	address  uint64
	kind     Kind
}

// Manager owns the physical trigger pool for one hart.
type Manager struct {
	Regs *regs.Bank
	MISA uint64

	slots [MaxHWBPs]slot
	nSlot int // number of slots this target actually has, discovered lazily
}

// New returns an empty trigger manager.
func New(r *regs.Bank) *Manager {
	return &Manager{Regs: r, nSlot: -1}
}

// ErrResourceNotAvailable is returned when no free physical trigger exists,
// so the framework can fall back to a software breakpoint (§7 Resource
// exhaustion).
var ErrResourceNotAvailable = fmt.Errorf("trigger: no hardware trigger slot available")

// probe discovers how many physical trigger slots this target has, the
// first time it is needed: write tselect=i, read it back; if it doesn't
// read back as written, no more triggers exist (§4.7).
func (m *Manager) probe() error {
	if m.nSlot >= 0 {
		return nil
	}
	for i := 0; i < MaxHWBPs; i++ {
		if err := m.Regs.WriteCSR(regs.CSRTSelect, uint64(i)); err != nil {
			return err
		}
		got, err := m.Regs.ReadCSR(regs.CSRTSelect)
		if err != nil {
			return err
		}
		if got != uint64(i) {
			m.nSlot = i
			return nil
		}
	}
	m.nSlot = MaxHWBPs
	return nil
}

func (m *Manager) encodeTData1(k Kind) uint64 {
	v := uint64(tdata1Type2)<<tdata1TypeShift | tdata1DMode | uint64(tdata1MatchEqual)<<tdata1MatchShift | tdata1MBit
	if m.MISA&misaH != 0 {
		v |= tdata1HBit
	}
	if m.MISA&misaS != 0 {
		v |= tdata1SBit
	}
	if m.MISA&misaU != 0 {
		v |= tdata1UBit
	}
	if k.Execute {
		v |= tdata1ExecuteBit
	}
	if k.Load {
		v |= tdata1LoadBit
	}
	if k.Store {
		v |= tdata1StoreBit
	}
	return v
}

// Add claims a free physical slot for the given address and access kind,
// returning the physical slot index it was given. uniqueID is the
// framework's breakpoint/watchpoint identity, recorded so Remove can find
// it later (§4.7, §9 Design Notes: persistence across halts, cleared only
// by remove).
func (m *Manager) Add(uniqueID int64, address uint64, k Kind) (int, error) {
	if err := m.probe(); err != nil {
		return 0, err
	}
	for i := 0; i < m.nSlot; i++ {
		if m.slots[i].owned {
			continue
		}
		if err := m.Regs.WriteCSR(regs.CSRTSelect, uint64(i)); err != nil {
			return 0, err
		}
		current, err := m.Regs.ReadCSR(regs.CSRTData1)
		if err != nil {
			return 0, err
		}
		claimedByUser := current&(tdata1ExecuteBit|tdata1LoadBit|tdata1StoreBit) != 0
		if claimedByUser {
			continue
		}

		want := m.encodeTData1(k)
		if err := m.Regs.WriteCSR(regs.CSRTData1, want); err != nil {
			return 0, err
		}
		got, err := m.Regs.ReadCSR(regs.CSRTData1)
		if err != nil {
			return 0, err
		}
		if got != want {
			// This slot doesn't support the requested access mix — clear and
			// try the next one (§4.7).
			_ = m.Regs.WriteCSR(regs.CSRTData1, 0)
			continue
		}
		if err := m.Regs.WriteCSR(regs.CSRTData2, address); err != nil {
			return 0, err
		}
		m.slots[i] = slot{owned: true, uniqueID: uniqueID, address: address, kind: k}
		return i, nil
	}
	return 0, ErrResourceNotAvailable
}

// Remove finds the slot owning uniqueID, clears tdata1, and frees it.
func (m *Manager) Remove(uniqueID int64) error {
	for i := 0; i < m.nSlot; i++ {
		if m.slots[i].owned && m.slots[i].uniqueID == uniqueID {
			if err := m.Regs.WriteCSR(regs.CSRTSelect, uint64(i)); err != nil {
				return err
			}
			if err := m.Regs.WriteCSR(regs.CSRTData1, 0); err != nil {
				return err
			}
			m.slots[i] = slot{}
			return nil
		}
	}
	return fmt.Errorf("trigger: remove of unknown unique_id %d", uniqueID)
}

// Installed is a snapshot of one currently-claimed physical trigger,
// exposed for strict-step (remove-all/reinstall) and introspection.
type Installed struct {
	Slot     int
	UniqueID int64
	Address  uint64
	Kind     Kind
}

// Triggers returns every currently-installed trigger, for strict-step
// (§4.8) and for a supplemented introspection entry point a framework or
// test can use to compare a pre/post-step set.
func (m *Manager) Triggers() []Installed {
	var out []Installed
	for i := 0; i < m.nSlot; i++ {
		if m.slots[i].owned {
			out = append(out, Installed{Slot: i, UniqueID: m.slots[i].uniqueID, Address: m.slots[i].address, Kind: m.slots[i].kind})
		}
	}
	return out
}

// RemoveAll uninstalls every currently-claimed trigger and returns what was
// removed, so the caller can reinstall the same set later (strict step,
// §4.8).
func (m *Manager) RemoveAll() ([]Installed, error) {
	saved := m.Triggers()
	for _, t := range saved {
		if err := m.Remove(t.UniqueID); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

// Reinstall re-claims every trigger in saved, in order. Used after a strict
// step; the slot assignment may differ from before but the unique_id set
// will match (§8 Property 7).
func (m *Manager) Reinstall(saved []Installed) error {
	for _, t := range saved {
		if _, err := m.Add(t.UniqueID, t.Address, t.Kind); err != nil {
			return err
		}
	}
	return nil
}
