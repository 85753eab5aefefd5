// Package timers implements the tick driven software timer service.
//
// Tick is the only method safe to call from interrupt context, all others
// must be called from the loop.
package timers

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ID identifies a running timer.
type ID int

// ExpiryFunc is called from the loop when a timer expires.
type ExpiryFunc func(id ID, data interface{})

// DefaultTickPeriod is the resolution of the reference boards.
const DefaultTickPeriod = 5 * time.Millisecond

var (
	// ErrNoTimer is returned when all timers are in use.
	ErrNoTimer = errors.New("no timer available")
	// ErrNotRunning is returned when cancelling an inactive timer.
	ErrNotRunning = errors.New("timer not running")
)

type slot struct {
	active    bool
	remaining uint32
	fn        ExpiryFunc
	data      interface{}
}

// Service runs a fixed number of one-shot timers.
type Service struct {
	TickPeriod time.Duration

	slots   []slot
	pending atomic.Uint32
}

// New creates a Service with capacity timers.
func New(capacity int, tick time.Duration) *Service {
	if tick <= 0 {
		tick = DefaultTickPeriod
	}
	return &Service{TickPeriod: tick, slots: make([]slot, capacity)}
}

// Capacity is the number of timers.
func (s *Service) Capacity() int {
	return len(s.slots)
}

// Ticks converts a duration into ticks, at least one.
func (s *Service) Ticks(d time.Duration) uint32 {
	n := uint32(d / s.TickPeriod)
	if n == 0 {
		n = 1
	}
	return n
}

// Start starts a one-shot timer.
func (s *Service) Start(ticks uint32, fn ExpiryFunc, data interface{}) (ID, error) {
	if ticks == 0 {
		ticks = 1
	}
	for n := range s.slots {
		if !s.slots[n].active {
			s.slots[n] = slot{active: true, remaining: ticks, fn: fn, data: data}
			return ID(n), nil
		}
	}
	return -1, ErrNoTimer
}

// Cancel stops a running timer.
func (s *Service) Cancel(id ID) error {
	if id < 0 || int(id) >= len(s.slots) || !s.slots[id].active {
		return ErrNotRunning
	}
	s.slots[id] = slot{}
	return nil
}

// Running reports whether the timer is active.
func (s *Service) Running(id ID) bool {
	return id >= 0 && int(id) < len(s.slots) && s.slots[id].active
}

// Tick records one elapsed tick.
func (s *Service) Tick() {
	s.pending.Add(1)
}

// Check consumes elapsed ticks and runs expired timers. A timer is
// released before its callback runs so the callback may restart it.
func (s *Service) Check() int {
	elapsed := s.pending.Swap(0)
	if elapsed == 0 {
		return 0
	}
	var expired []int
	for n := range s.slots {
		t := &s.slots[n]
		if !t.active {
			continue
		}
		if t.remaining <= elapsed {
			expired = append(expired, n)
		} else {
			t.remaining -= elapsed
		}
	}
	for _, n := range expired {
		t := s.slots[n]
		s.slots[n] = slot{}
		if t.fn != nil {
			t.fn(ID(n), t.data)
		}
	}
	return len(expired)
}

// Run generates ticks until ctx is done, it plays the timer interrupt.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Name implements framework.Named.
func (s *Service) Name() string {
	return "timer-tick"
}
