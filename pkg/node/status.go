package node

import (
	"time"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/store"
	"github.com/robotalks/nodeos/pkg/transport"
)

// EventKind classifies node events.
type EventKind string

// Event kinds.
const (
	EventBoot      EventKind = "boot"
	EventTrap      EventKind = "trap"
	EventReprogram EventKind = "reprogram"
	EventCommitted EventKind = "committed"
	EventReverted  EventKind = "reverted"
	EventConfig    EventKind = "config"
	EventAddress   EventKind = "address"
)

// Event is a notable transition, Valid is the application validity
// right after it.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   EventKind `json:"kind"`
	Valid  bool      `json:"valid"`
	Detail string    `json:"detail,omitempty"`
}

// Status is a snapshot of the node, refreshed by the loop.
type Status struct {
	Ref            transport.NodeRef `json:"ref"`
	Board          string            `json:"board"`
	Config         store.NodeConfig  `json:"config"`
	Valid          bool              `json:"valid"`
	Application    string            `json:"application,omitempty"`
	Session        string            `json:"session"`
	Armed          bool              `json:"armed"`
	Written        int               `json:"written"`
	ActiveTimers   int               `json:"active_timers"`
	ActiveHandlers int               `json:"active_handlers"`
	Anomalies      int               `json:"anomalies"`
	Unexpected     uint32            `json:"unexpected_interrupts"`
	Forwarded      uint32            `json:"forwarded_interrupts"`
	Traps          uint32            `json:"traps"`
	Conflicts      int               `json:"address_conflicts"`
	Iterations     uint64            `json:"iterations"`
	Attached       bool              `json:"attached"`
	Malformed      uint32            `json:"malformed"`
	Boot           time.Time         `json:"boot"`
	Uptime         time.Duration     `json:"uptime"`
}

// Status returns the latest snapshot, safe from any goroutine.
func (n *Node) Status() *Status {
	return n.status.Load()
}

// NextEvent pops the oldest pending event. Only one goroutine may
// consume events.
func (n *Node) NextEvent() (Event, bool) {
	return n.events.Pop()
}

// Meta describes the node for discovery.
func (n *Node) Meta() transport.NodeMeta {
	s := n.Status()
	return transport.NodeMeta{
		NodeRef:     n.opts.Ref,
		Address:     s.Config.Address,
		Baud:        can.BaudRate(s.Config.Baud).String(),
		Description: s.Config.Description,
		Valid:       s.Valid,
		Application: s.Application,
		Boot:        n.bootTime,
	}
}

func (n *Node) emit(kind EventKind, valid bool, detail string) {
	n.events.Push(Event{Time: time.Now(), Kind: kind, Valid: valid, Detail: detail})
	n.dirty = true
}

func (n *Node) snapshot() {
	n.dirty = false
	n.status.Store(&Status{
		Ref:            n.opts.Ref,
		Board:          n.board.Name,
		Config:         n.config,
		Valid:          n.guardian.Valid(),
		Application:    n.appDescription(),
		Session:        n.session.State().String(),
		Armed:          n.session.Armed(),
		Written:        n.session.Written(),
		ActiveTimers:   n.ledger.ActiveTimers(),
		ActiveHandlers: n.ledger.ActiveHandlers(can.LayerL2),
		Anomalies:      n.ledger.Anomalies(),
		Unexpected:     n.trampoline.Unexpected(),
		Forwarded:      n.trampoline.Forwarded(),
		Traps:          n.traps.Load(),
		Conflicts:      n.conflicts,
		Iterations:     n.loop.Iterations(),
		Attached:       n.port.Attached(),
		Malformed:      n.port.Malformed(),
		Boot:           n.bootTime,
		Uptime:         time.Since(n.bootTime),
	})
}
