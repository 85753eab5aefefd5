// Package trampoline routes hardware interrupts into the hosted
// application, gated by the application validity.
package trampoline

import (
	"errors"
	"sync/atomic"

	"github.com/golang/glog"
)

// VectorTable dispatches an interrupt into hosted code.
type VectorTable interface {
	Invoke(Source) error
}

// Gate is the validity snapshot consulted on every interrupt.
type Gate interface {
	Valid() bool
	Invalidate(reason string) error
}

// TrapFunc is notified after a trap in a hosted interrupt handler.
type TrapFunc func(src Source, err error)

var (
	// ErrNodeOwned is returned when firing a source serviced by the node.
	ErrNodeOwned = errors.New("interrupt source is node owned")
	// ErrInvalidSource is returned for sources outside the vector table.
	ErrInvalidSource = errors.New("invalid interrupt source")
)

// Trampoline is safe to fire from any interrupt context.
type Trampoline struct {
	gate       Gate
	table      VectorTable
	onTrap     TrapFunc
	unexpected atomic.Uint32
	forwarded  atomic.Uint32
}

// New creates a Trampoline.
func New(gate Gate, table VectorTable) *Trampoline {
	return &Trampoline{gate: gate, table: table}
}

// OnTrap sets the trap notification.
func (t *Trampoline) OnTrap(fn TrapFunc) *Trampoline {
	t.onTrap = fn
	return t
}

// Fire services an interrupt from src.
func (t *Trampoline) Fire(src Source) error {
	if !src.Valid() {
		return ErrInvalidSource
	}
	if src.NodeOwned() {
		return ErrNodeOwned
	}
	if !t.gate.Valid() {
		t.unexpected.Add(1)
		glog.Errorf("unexpected interrupt on %s", src)
		return nil
	}
	t.forwarded.Add(1)
	err := t.table.Invoke(src)
	if err != nil {
		glog.Errorf("trap in %s handler: %v", src, err)
		t.gate.Invalidate("trap in " + src.String() + " handler")
		if t.onTrap != nil {
			t.onTrap(src, err)
		}
	}
	return err
}

// Unexpected counts interrupts dropped while the application is invalid.
func (t *Trampoline) Unexpected() uint32 {
	return t.unexpected.Load()
}

// Forwarded counts interrupts passed to the application.
func (t *Trampoline) Forwarded() uint32 {
	return t.forwarded.Load()
}
