package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/node"
	"github.com/robotalks/nodeos/pkg/store"
	"github.com/robotalks/nodeos/pkg/transport"
)

type fakeSource struct {
	status *node.Status
	events []node.Event
	meta   transport.NodeMeta
}

func (s *fakeSource) Status() *node.Status { return s.status }

func (s *fakeSource) NextEvent() (node.Event, bool) {
	if len(s.events) == 0 {
		return node.Event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}

func (s *fakeSource) Meta() transport.NodeMeta { return s.meta }

type fakeSink struct {
	reports [][]byte
	metas   []transport.NodeMeta
	fail    error
}

func (s *fakeSink) PublishStatus(payload []byte) error {
	s.reports = append(s.reports, payload)
	return nil
}

func (s *fakeSink) Update(meta transport.NodeMeta) error {
	if s.fail != nil {
		return s.fail
	}
	s.metas = append(s.metas, meta)
	return nil
}

func TestPublish(t *testing.T) {
	ref := transport.NodeRef{Board: "cinnamon-bun", ID: "n1"}
	src := &fakeSource{
		status: &node.Status{
			Ref:          ref,
			Config:       store.NodeConfig{Address: 0x21, Baud: 4, Description: "wheel"},
			Valid:        true,
			Application:  "demo",
			Session:      "committed",
			ActiveTimers: 2,
			Traps:        1,
			Iterations:   1000,
			Uptime:       3 * time.Second,
		},
		events: []node.Event{
			{Time: time.Unix(10, 0), Kind: node.EventCommitted, Valid: true, Detail: "demo"},
			{Time: time.Unix(11, 0), Kind: node.EventTrap, Detail: "main: boom"},
		},
		meta: transport.NodeMeta{NodeRef: ref, Address: 0x21},
	}
	sink := &fakeSink{}
	p := &Publisher{Source: src, Sink: sink}
	p.Publish()

	require.Len(t, sink.reports, 1)
	report, err := Decode(sink.reports[0])
	require.NoError(t, err)
	require.Equal(t, "n1", report.Status.Id)
	require.Equal(t, uint32(0x21), report.Status.Address)
	require.Equal(t, "250K", report.Status.Baud)
	require.True(t, report.Status.Valid)
	require.Equal(t, uint32(2), report.Status.ActiveTimers)
	require.Equal(t, int64(3000), report.Status.UptimeMs)
	require.Len(t, report.Events, 2)
	require.Equal(t, "committed", report.Events[0].Kind)
	require.Equal(t, int64(10000), report.Events[0].TimeMs)
	require.Equal(t, "main: boom", report.Events[1].Detail)
	require.Len(t, sink.metas, 1)

	// unchanged meta is not republished, events are drained.
	p.Publish()
	require.Len(t, sink.metas, 1)
	report, err = Decode(sink.reports[1])
	require.NoError(t, err)
	require.Empty(t, report.Events)

	src.meta.Valid = false
	src.meta.Address = 0x22
	sink.fail = errors.New("offline")
	p.Publish()
	require.Len(t, sink.metas, 1)
	sink.fail = nil
	p.Publish()
	require.Len(t, sink.metas, 2)
	require.Equal(t, byte(0x22), sink.metas[1].Address)
}
