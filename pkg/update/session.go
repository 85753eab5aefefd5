// Package update implements the field update session driven by the
// companion: reprogram, erase, write and commit.
package update

import (
	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/transport"
)

// State of the session.
type State int

// States.
const (
	Idle State = iota
	Erasing
	Writing
	Committed
	Reverted
)

var stateNames = [...]string{"idle", "erasing", "writing", "committed", "reverted"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Gate persists the validity of the application.
type Gate interface {
	Invalidate(reason string) error
	Commit(smoke func() error) error
}

// Evictor releases everything lent to the application.
type Evictor interface {
	EvictAll() error
}

// Feeder is fed around every flash primitive.
type Feeder interface {
	Feed()
}

// Sender delivers replies to the companion.
type Sender interface {
	Send(transport.Message) error
}

// Config assembles the collaborators of a Session.
type Config struct {
	Flash  flash.Driver
	Layout flash.Layout
	Gate   Gate
	Ledger Evictor
	// Watchdog is optional.
	Watchdog Feeder
	// Smoke runs the freshly written application once.
	Smoke func() error
	Reply Sender
}

// Session is the field update state machine. It runs in the loop context.
type Session struct {
	cfg Config

	state   State
	armed   bool
	lastCmd transport.Code
	pending uint32
	written int
}

// New creates a Session.
func New(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Handles tells whether code belongs to the session.
func (s *Session) Handles(code transport.Code) bool {
	switch code {
	case transport.CodeReprogram, transport.CodeErasePage, transport.CodeWriteRow, transport.CodeReflashed:
		return true
	}
	return false
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Armed tells whether erase and write are accepted.
func (s *Session) Armed() bool {
	return s.armed
}

// Written returns the bytes written in this session.
func (s *Session) Written() int {
	return s.written
}

// LastCommand returns the last command handled.
func (s *Session) LastCommand() transport.Code {
	return s.lastCmd
}

// Handle processes one command.
func (s *Session) Handle(msg transport.Message) {
	s.lastCmd = msg.Code
	switch msg.Code {
	case transport.CodeReprogram:
		s.reprogram()
	case transport.CodeErasePage:
		s.erase(msg)
	case transport.CodeWriteRow:
		s.writeRow(msg)
	case transport.CodeReflashed:
		s.commit()
	default:
		glog.Errorf("update: unexpected %s", msg.Code)
	}
}

func (s *Session) reprogram() {
	s.armed = false
	glog.Info("update: reprogram requested")
	if err := s.cfg.Ledger.EvictAll(); err != nil {
		// slots are released regardless.
		glog.Errorf("update: evict: %v", err)
	}
	if err := s.cfg.Gate.Invalidate("reprogram"); err != nil {
		glog.Errorf("update: not armed: %v", err)
		s.reject(transport.ReasonStore, transport.CodeReprogram)
		return
	}
	s.armed, s.state, s.written, s.pending = true, Idle, 0, 0
	glog.Info("update: session armed")
	s.ready()
}

func (s *Session) erase(msg transport.Message) {
	addr, err := msg.Addr()
	if err != nil {
		glog.Errorf("update: drop: %v", err)
		return
	}
	if !s.armed {
		glog.Errorf("update: erase 0x%x before reprogram", addr)
		s.reject(transport.ReasonNotArmed, msg.Code)
		return
	}
	if err = s.cfg.Layout.CheckErase(addr); err != nil {
		glog.Errorf("update: %v", err)
		s.reject(transport.ReasonOutOfRange, msg.Code)
		return
	}
	s.state, s.pending = Erasing, addr
	s.feed()
	erased, err := s.cfg.Flash.PageErased(addr)
	if err == nil && !erased {
		glog.V(1).Infof("update: erase page 0x%x", addr)
		err = s.cfg.Flash.ErasePage(addr)
	}
	s.feed()
	if err != nil {
		glog.Errorf("update: erase page 0x%x: %v", addr, err)
		s.reject(transport.ReasonFlash, msg.Code)
		return
	}
	s.ready()
}

func (s *Session) writeRow(msg transport.Message) {
	addr, err := msg.Addr()
	if err != nil {
		glog.Errorf("update: drop: %v", err)
		return
	}
	row := msg.Row()
	if !s.armed {
		glog.Errorf("update: write 0x%x before reprogram", addr)
		s.reject(transport.ReasonNotArmed, msg.Code)
		return
	}
	if uint32(len(row)) != s.cfg.Layout.RowSize {
		glog.Errorf("update: row 0x%x has %d bytes", addr, len(row))
		s.reject(transport.ReasonRowSize, msg.Code)
		return
	}
	if err = s.cfg.Layout.CheckWrite(addr, len(row)); err != nil {
		glog.Errorf("update: %v", err)
		s.reject(transport.ReasonOutOfRange, msg.Code)
		return
	}
	s.state, s.pending = Writing, addr
	s.feed()
	err = s.cfg.Flash.WriteRow(addr, row)
	s.feed()
	if err != nil {
		glog.Errorf("update: write row 0x%x: %v", addr, err)
		s.reject(transport.ReasonFlash, msg.Code)
		return
	}
	s.written += len(row)
	glog.V(2).Infof("update: row 0x%x written, %d bytes total", addr, s.written)
	s.ready()
}

func (s *Session) commit() {
	if !s.armed {
		glog.Error("update: reflashed before reprogram")
		s.reject(transport.ReasonNotArmed, transport.CodeReflashed)
		return
	}
	s.armed = false
	var smokeErr error
	err := s.cfg.Gate.Commit(func() error {
		if s.cfg.Smoke == nil {
			return nil
		}
		smokeErr = s.cfg.Smoke()
		return smokeErr
	})
	if err != nil {
		s.state = Reverted
		if evictErr := s.cfg.Ledger.EvictAll(); evictErr != nil {
			glog.Errorf("update: evict: %v", evictErr)
		}
		reason := transport.ReasonStore
		if smokeErr != nil {
			reason = transport.ReasonSmokeTest
		}
		glog.Errorf("update: reverted after %d bytes: %v", s.written, err)
		s.send(transport.CommitFailed(reason, err.Error()))
		return
	}
	s.state = Committed
	glog.Infof("update: committed, %d bytes written", s.written)
	s.ready()
}

func (s *Session) feed() {
	if s.cfg.Watchdog != nil {
		s.cfg.Watchdog.Feed()
	}
}

func (s *Session) ready() {
	s.send(transport.Ready())
}

func (s *Session) reject(reason transport.Reason, op transport.Code) {
	s.send(transport.Rejected(reason, op))
}

func (s *Session) send(msg transport.Message) {
	if err := s.cfg.Reply.Send(msg); err != nil {
		glog.Errorf("update: reply %s: %v", msg.Code, err)
	}
}
