package serial

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type parseStep struct {
	in     []byte
	expect ParseResult
	final  ParseResult
}

type parseSteps struct {
	steps []parseStep
}

func steps() *parseSteps {
	return &parseSteps{}
}

func (b *parseSteps) on(state SyncState, in ...byte) *parseSteps {
	s := parseStep{in: in, expect: ParseResult{State: state}}
	s.final = s.expect
	b.steps = append(b.steps, s)
	return b
}

func (b *parseSteps) onSyncing(in ...byte) *parseSteps {
	return b.on(SyncStateSyncing|SyncStateReceiving, in...)
}

func (b *parseSteps) onReceiving(in ...byte) *parseSteps {
	return b.on(SyncStateReady|SyncStateReceiving, in...)
}

func (b *parseSteps) timeout() *parseSteps {
	b.steps = append(b.steps, parseStep{})
	return b
}

func (b *parseSteps) final(pr ParseResult) *parseSteps {
	b.steps[len(b.steps)-1].final = pr
	return b
}

func (b *parseSteps) synced() *parseSteps {
	return b.final(ParseResult{State: SyncStateReady})
}

func (b *parseSteps) frame(seq byte, data ...byte) *parseSteps {
	return b.final(ParseResult{State: SyncStateReady, Frame: &Frame{Seq: Seq(seq), Data: data}})
}

func (b *parseSteps) resync() *parseSteps {
	return b.final(ParseResult{Sync: syncREQ, State: SyncStateSyncing})
}

func (b *parseSteps) syncedWithAck() *parseSteps {
	return b.final(ParseResult{Sync: syncACK, State: SyncStateReady})
}

func TestParser(t *testing.T) {
	testCases := []struct {
		name  string
		steps *parseSteps
	}{
		{
			name: "sync and receive",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onReceiving(1, 0, 0).frame(1).
				onReceiving(2, 0, 1, 0xff).frame(2, 0xff).
				onReceiving(3, 0, 3, syncACK, syncREQ, 7).frame(3, syncACK, syncREQ, 7),
		},
		{
			name: "sync timeout",
			steps: steps().
				timeout().resync().
				onSyncing(syncACK).
				timeout().resync(),
		},
		{
			name: "sync skips invalid bytes",
			steps: steps().
				on(SyncStateSyncing, 1, 2, 3, 4, 0x80, 0x81, 0xf0, 0xf1).
				onSyncing(syncACK, 1).synced(),
		},
		{
			name: "req in sync",
			steps: steps().
				onSyncing(syncREQ, 1).syncedWithAck(),
		},
		{
			name: "req in sync with invalid seq",
			steps: steps().
				onSyncing(syncREQ, syncREQ).resync().
				onSyncing(syncACK, 1).synced(),
		},
		{
			name: "req after sync",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onSyncing(syncREQ, 5).syncedWithAck().
				onReceiving(5, 0, 1, 9).frame(5, 9),
		},
		{
			name: "ack after sync",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onReceiving(syncACK, 1).synced().
				onReceiving(1, 0, 1, 2).frame(1, 2),
		},
		{
			name: "ack with invalid seq after sync",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onReceiving(syncACK, 2).resync().
				onSyncing(syncACK, 2).synced(),
		},
		{
			name: "lost frame",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onReceiving(1, 0, 1, 2).frame(1, 2).
				onSyncing(3).resync().
				on(SyncStateSyncing, 0, 1, 2).
				onSyncing(syncACK, 3).synced(),
		},
		{
			name: "oversize frame",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onReceiving(1, 0x7f, 0xff).resync(),
		},
		{
			name: "stalled frame",
			steps: steps().
				onSyncing(syncACK, 1).synced().
				onReceiving(1, 0, 4, 1, 2).
				timeout().resync(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var parser Parser
			for n, s := range tc.steps.steps {
				var pr ParseResult
				if l := len(s.in); l == 0 {
					pr = parser.Timeout()
				} else {
					for i, b := range s.in {
						pr = parser.Parse(b)
						if i+1 < l {
							require.Equalf(t, s.expect, pr, "step[%d][%d] expect mismatch", n, i)
						}
					}
				}
				require.Equalf(t, s.final, pr, "step[%d] final mismatch", n)
			}
		})
	}
}

func TestParserReset(t *testing.T) {
	var parser Parser
	pr := parser.Reset()
	require.Equal(t, syncREQ, pr.Sync)
	require.Equal(t, SyncStateSyncing, pr.State)
	require.Nil(t, pr.Frame)
}

func TestSeq(t *testing.T) {
	require.Equal(t, Seq(2), Seq(1).Next())
	require.Equal(t, Seq(1), Seq(0xef).Next())
	require.False(t, Seq(0).Valid())
	require.False(t, Seq(syncACK).Valid())
	for n := 0; n < 16; n++ {
		require.True(t, NewSeq().Valid())
	}
	f := Frame{Seq: 3, Data: make([]byte, 0x102)}
	b := f.Bytes()
	require.Equal(t, []byte{3, 1, 2}, b[:3])
	require.Len(t, b, 0x105)
}

func TestParseResultTimer(t *testing.T) {
	testCases := []struct {
		state  SyncState
		cmd    byte
		action TimerAction
	}{
		{SyncStateSyncing, 0, TimerNoChange},
		{SyncStateSyncing, syncACK, TimerNoChange},
		{SyncStateSyncing, syncREQ, TimerRestart},
		{SyncStateReceiving, 0, TimerRestart},
		{SyncStateReady, 0, TimerStop},
		{SyncStateReady, syncACK, TimerStop},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%x %x", tc.state, tc.cmd), func(t *testing.T) {
			pr := ParseResult{Sync: tc.cmd, State: tc.state}
			require.Equal(t, tc.action, pr.WhatAboutTimer())
		})
	}
}
