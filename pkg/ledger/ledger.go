// Package ledger tracks every timer and protocol handler lent to the
// hosted application so they can be evicted at once.
package ledger

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/framework"
	"github.com/robotalks/nodeos/pkg/timers"
)

// TimerService is the underlying timer primitive.
type TimerService interface {
	Start(ticks uint32, fn timers.ExpiryFunc, data interface{}) (timers.ID, error)
	Cancel(timers.ID) error
}

// HandlerRegistry is the handler primitive of a protocol layer.
type HandlerRegistry interface {
	Register(filter, mask uint32, h can.Handler) (can.HandlerID, error)
	Unregister(can.HandlerID) error
	SetUnhandled(can.Handler)
}

// TimerHandle identifies a timer owned by the hosted application.
type TimerHandle Handle

// HandlerHandle identifies a handler owned by the hosted application.
type HandlerHandle Handle

// TimerFunc is called when a ledger timer expires.
type TimerFunc func(h TimerHandle, data interface{})

// Capacity is the number of slots per resource kind.
type Capacity struct {
	Timers   int
	Handlers int
}

var (
	// ErrStaleHandle is returned for handles no longer active.
	ErrStaleHandle = errors.New("stale handle")
	// ErrUnknownLayer is returned for layers without a registry.
	ErrUnknownLayer = errors.New("unknown protocol layer")
)

// CapacityError is returned when no slot is free.
type CapacityError struct {
	Kind     string
	Capacity int
}

// Error implements error.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s capacity exceeded (%d)", e.Kind, e.Capacity)
}

type timerRecord struct {
	id   timers.ID
	fn   TimerFunc
	data interface{}
}

type handlerRecord struct {
	id     can.HandlerID
	filter uint32
	mask   uint32
}

type layerSlots struct {
	registry HandlerRegistry
	handlers *Arena[handlerRecord]
}

// Ledger is only used from the loop.
type Ledger struct {
	timerSvc  TimerService
	timers    *Arena[timerRecord]
	layers    map[can.Layer]*layerSlots
	capacity  Capacity
	anomalies int
}

// New creates a Ledger.
func New(capacity Capacity, timerSvc TimerService) *Ledger {
	return &Ledger{
		timerSvc: timerSvc,
		timers:   NewArena[timerRecord](capacity.Timers),
		layers:   make(map[can.Layer]*layerSlots),
		capacity: capacity,
	}
}

// AddLayer plugs in the handler registry of a protocol layer.
func (l *Ledger) AddLayer(layer can.Layer, registry HandlerRegistry) *Ledger {
	l.layers[layer] = &layerSlots{
		registry: registry,
		handlers: NewArena[handlerRecord](l.capacity.Handlers),
	}
	return l
}

// RegisterTimer starts a timer on behalf of the hosted application.
func (l *Ledger) RegisterTimer(ticks uint32, fn TimerFunc, data interface{}) (TimerHandle, error) {
	h, ok := l.timers.Insert(timerRecord{fn: fn, data: data})
	if !ok {
		return TimerHandle{}, &CapacityError{Kind: "timer", Capacity: l.timers.Cap()}
	}
	id, err := l.timerSvc.Start(ticks, func(id timers.ID, _ interface{}) {
		l.expire(TimerHandle(h), id)
	}, nil)
	if err != nil {
		l.timers.Remove(h)
		return TimerHandle{}, fmt.Errorf("start timer: %w", err)
	}
	l.setTimerID(h, id)
	return TimerHandle(h), nil
}

// CancelTimer cancels a ledger timer.
func (l *Ledger) CancelTimer(h TimerHandle) error {
	rec, ok := l.timers.Remove(Handle(h))
	if !ok {
		return ErrStaleHandle
	}
	return l.timerSvc.Cancel(rec.id)
}

// RegisterHandler registers a frame handler on layer.
func (l *Ledger) RegisterHandler(layer can.Layer, filter, mask uint32, fn can.Handler) (HandlerHandle, error) {
	ls := l.layers[layer]
	if ls == nil {
		return HandlerHandle{}, ErrUnknownLayer
	}
	h, ok := ls.handlers.Insert(handlerRecord{filter: filter, mask: mask})
	if !ok {
		return HandlerHandle{}, &CapacityError{Kind: layer.String() + " handler", Capacity: ls.handlers.Cap()}
	}
	id, err := ls.registry.Register(filter, mask, func(f canbus.Frame) {
		l.deliver(ls, layer, Handle(h), fn, f)
	})
	if err != nil {
		ls.handlers.Remove(h)
		return HandlerHandle{}, fmt.Errorf("register %s handler: %w", layer, err)
	}
	ls.handlers.slot(h).value.id = id
	return HandlerHandle(h), nil
}

// UnregisterHandler removes a handler from layer.
func (l *Ledger) UnregisterHandler(layer can.Layer, h HandlerHandle) error {
	ls := l.layers[layer]
	if ls == nil {
		return ErrUnknownLayer
	}
	rec, ok := ls.handlers.Remove(Handle(h))
	if !ok {
		return ErrStaleHandle
	}
	return ls.registry.Unregister(rec.id)
}

// EvictAll releases every resource, local slots are cleared even when the
// underlying primitive fails. Unhandled frame callbacks are restored.
func (l *Ledger) EvictAll() error {
	var errs framework.AggregatedError
	timerCount, handlerCount := 0, 0
	for _, h := range l.timers.Handles() {
		rec, _ := l.timers.Remove(h)
		timerCount++
		if err := l.timerSvc.Cancel(rec.id); err != nil {
			glog.Errorf("evict timer %d: %v", rec.id, err)
			errs.Add(fmt.Errorf("timer %d: %w", rec.id, err))
		}
	}
	for layer, ls := range l.layers {
		for _, h := range ls.handlers.Handles() {
			rec, _ := ls.handlers.Remove(h)
			handlerCount++
			if err := ls.registry.Unregister(rec.id); err != nil {
				glog.Errorf("evict %s handler %d: %v", layer, rec.id, err)
				errs.Add(fmt.Errorf("%s handler %d: %w", layer, rec.id, err))
			}
		}
		ls.registry.SetUnhandled(nil)
	}
	if timerCount+handlerCount > 0 {
		glog.Infof("evicted %d timers, %d handlers", timerCount, handlerCount)
	}
	return errs.Aggregate()
}

// ActiveTimers returns the number of active timers.
func (l *Ledger) ActiveTimers() int {
	return l.timers.Len()
}

// ActiveHandlers returns the number of active handlers on layer.
func (l *Ledger) ActiveHandlers(layer can.Layer) int {
	if ls := l.layers[layer]; ls != nil {
		return ls.handlers.Len()
	}
	return 0
}

// Anomalies counts expiries and frames delivered for inactive slots.
func (l *Ledger) Anomalies() int {
	return l.anomalies
}

func (l *Ledger) setTimerID(h Handle, id timers.ID) {
	if s := l.timers.slot(h); s != nil {
		s.value.id = id
	}
}

// deliver drops frames for slots evicted while the registry failed to
// let go of the handler.
func (l *Ledger) deliver(ls *layerSlots, layer can.Layer, h Handle, fn can.Handler, f canbus.Frame) {
	if _, ok := ls.handlers.Get(h); !ok {
		l.anomalies++
		glog.Warningf("inactive %s handler got frame 0x%03x", layer, f.ID)
		return
	}
	if fn != nil {
		fn(f)
	}
}

func (l *Ledger) expire(h TimerHandle, id timers.ID) {
	rec, ok := l.timers.Remove(Handle(h))
	if !ok {
		l.anomalies++
		glog.Warningf("inactive timer %d expired", id)
		return
	}
	if rec.fn != nil {
		rec.fn(h, rec.data)
	}
}
