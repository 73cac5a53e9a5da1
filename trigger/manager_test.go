// Copyright 2026 The rvdbg Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package trigger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhart/rvdbg/dbus"
	"github.com/openhart/rvdbg/dmsim"
	"github.com/openhart/rvdbg/dram"
	"github.com/openhart/rvdbg/inject"
	"github.com/openhart/rvdbg/internal/isa"
	"github.com/openhart/rvdbg/regs"
	"github.com/openhart/rvdbg/trigger"
)

// newFixture builds a trigger manager over dmsim. dmsim keeps every CSR as
// written (no hardware-defined bit masking), so tdata1 write-back accepts
// whatever is written and tselect reads back every probed value: the probe
// (trigger.Manager.probe) finds all MaxHWBPs slots. nSlots does not limit
// that count.
func newFixture(t *testing.T, nSlots int) *trigger.Manager {
	t.Helper()
	delays := &dbus.Delays{}
	sim := dmsim.New(5, 32, 16)
	transport := &dbus.Transport{Queue: sim, AddrBits: 5, Xlen: 32, Delays: delays}
	c := dram.New(16, 5, 32, isa.Reference{}, delays)
	inj := &inject.Injector{Cache: c, Transport: transport}
	b := regs.New(inj, c, isa.Reference{}, 32)

	// Start with tselect at slot 0.
	sim.SetCSR(regs.CSRTSelect, 0)
	return trigger.New(b)
}

func TestAddClaimsFirstFreeSlot(t *testing.T) {
	m := newFixture(t, 4)
	slot, err := m.Add(1, 0x1000, trigger.Kind{Execute: true})
	require.NoError(t, err)
	assert.Equal(t, 0, slot)

	installed := m.Triggers()
	require.Len(t, installed, 1)
	assert.Equal(t, int64(1), installed[0].UniqueID)
	assert.Equal(t, uint64(0x1000), installed[0].Address)
}

func TestAddThenRemoveFreesSlot(t *testing.T) {
	m := newFixture(t, 4)
	_, err := m.Add(1, 0x1000, trigger.Kind{Execute: true})
	require.NoError(t, err)
	require.NoError(t, m.Remove(1))
	assert.Empty(t, m.Triggers())
}

func TestRemoveUnknownIDFails(t *testing.T) {
	m := newFixture(t, 4)
	assert.Error(t, m.Remove(999))
}

func TestRemoveAllThenReinstallRestoresSet(t *testing.T) {
	m := newFixture(t, 4)
	_, err := m.Add(1, 0x1000, trigger.Kind{Execute: true})
	require.NoError(t, err)
	_, err = m.Add(2, 0x2000, trigger.Kind{Load: true})
	require.NoError(t, err)

	saved, err := m.RemoveAll()
	require.NoError(t, err)
	assert.Empty(t, m.Triggers())
	require.Len(t, saved, 2)

	require.NoError(t, m.Reinstall(saved))
	after := m.Triggers()
	require.Len(t, after, 2)
	ids := map[int64]bool{}
	for _, in := range after {
		ids[in.UniqueID] = true
	}
	assert.True(t, ids[1])
	assert.True(t, ids[2])
}

func TestAddDistinctSlotsForDistinctBreakpoints(t *testing.T) {
	m := newFixture(t, 4)
	s1, err := m.Add(1, 0x1000, trigger.Kind{Execute: true})
	require.NoError(t, err)
	s2, err := m.Add(2, 0x2000, trigger.Kind{Execute: true})
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}
