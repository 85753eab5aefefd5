package trampoline

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/flash"
)

type fakeGate struct {
	valid       bool
	invalidated []string
}

func (g *fakeGate) Valid() bool { return g.valid }
func (g *fakeGate) Invalidate(reason string) error {
	g.valid = false
	g.invalidated = append(g.invalidated, reason)
	return nil
}

type sentinelTable struct {
	t *testing.T
}

func (s *sentinelTable) Invoke(src Source) error {
	s.t.Fatalf("vector table dereferenced for %s", src)
	return nil
}

type recordingTable struct {
	invoked []Source
	err     error
}

func (r *recordingTable) Invoke(src Source) error {
	r.invoked = append(r.invoked, src)
	return r.err
}

type recordingCaller struct {
	addrs []uint32
}

func (c *recordingCaller) CallAt(addr uint32) error {
	c.addrs = append(c.addrs, addr)
	return nil
}

func TestSourceTable(t *testing.T) {
	require.Equal(t, 126, NumSources)
	require.Equal(t, "ReservedTrap0", ReservedTrap0.String())
	require.Equal(t, "USB1", USB1.String())
	require.Equal(t, "Interrupt117", Source(125).String())
	require.False(t, Source(126).Valid())
	s, err := ParseSource("T2")
	require.NoError(t, err)
	require.Equal(t, T2, s)
	for _, src := range []Source{AddressError, StackError, INT0, T1, USB1} {
		require.True(t, src.NodeOwned())
	}
	require.False(t, T2.NodeOwned())
}

func TestInvalidNeverTouchesTable(t *testing.T) {
	tr := New(&fakeGate{}, &sentinelTable{t: t})
	for n := 0; n < NumSources; n++ {
		src := Source(n)
		if src.NodeOwned() {
			require.Equal(t, ErrNodeOwned, tr.Fire(src))
			continue
		}
		require.NoError(t, tr.Fire(src))
	}
	require.Equal(t, uint32(NumSources-5), tr.Unexpected())
	require.Equal(t, uint32(0), tr.Forwarded())
	require.Equal(t, ErrInvalidSource, tr.Fire(Source(200)))
}

func TestValidForwards(t *testing.T) {
	gate := &fakeGate{valid: true}
	table := &recordingTable{}
	tr := New(gate, table)
	require.NoError(t, tr.Fire(T2))
	require.NoError(t, tr.Fire(U1RX))
	require.Equal(t, []Source{T2, U1RX}, table.invoked)
	require.Equal(t, uint32(2), tr.Forwarded())
}

func TestTrapInvalidates(t *testing.T) {
	gate := &fakeGate{valid: true}
	trap := errors.New("trap")
	table := &recordingTable{err: trap}
	var trapped []Source
	tr := New(gate, table).OnTrap(func(src Source, err error) {
		trapped = append(trapped, src)
	})
	require.Equal(t, trap, tr.Fire(T3))
	require.False(t, gate.valid)
	require.Len(t, gate.invalidated, 1)
	require.Equal(t, []Source{T3}, trapped)

	// gate closed after the trap.
	require.NoError(t, tr.Fire(T3))
	require.Len(t, table.invoked, 1)
}

func TestFlashVectorTable(t *testing.T) {
	layout := flash.DefaultLayout
	f := flash.NewMemFlash(layout)
	require.Equal(t, uint32(0x400+0x09e+4*15), SlotAddr(layout, T2))
	require.True(t, TableEnd(layout) <= layout.HandleAddr+layout.PageSize)

	// the slot of T2 sits in the row starting at 0x4c0.
	row := make([]byte, layout.RowSize)
	for n := range row {
		row[n] = 0xff
	}
	slot := SlotAddr(layout, T2)
	base := slot - slot%layout.RowSize
	binary.BigEndian.PutUint32(row[slot-base:], 0x18040)
	require.NoError(t, f.WriteRow(base, row))

	caller := &recordingCaller{}
	table := &FlashVectorTable{Flash: f, Layout: layout, Code: caller}
	require.NoError(t, table.Invoke(T2))
	require.NoError(t, table.Invoke(T3))
	require.Equal(t, []uint32{0x18040, 0xffffffff}, caller.addrs)
	_, err := table.HandlerAddr(Source(NumSources))
	require.Equal(t, ErrInvalidSource, err)
}
