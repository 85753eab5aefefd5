package hosted

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/robotalks/nodeos/pkg/flash"
)

// Trap is a fault raised while calling hosted code.
type Trap struct {
	Addr   uint32
	Symbol string
	Reason string
	Err    error
}

// Error implements error.
func (t *Trap) Error() string {
	msg := fmt.Sprintf("trap at 0x%05x", t.Addr)
	if t.Symbol != "" {
		msg += " (" + t.Symbol + ")"
	}
	msg += ": " + t.Reason
	if t.Err != nil {
		msg += ": " + t.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (t *Trap) Unwrap() error {
	return t.Err
}

// CodeSpace executes hosted code found in flash. Code at an address is
// callable only when the flash row there holds the symbol signature and
// the symbol was linked at that address.
type CodeSpace struct {
	flash  Reader
	layout flash.Layout

	os   OS
	lock sync.RWMutex
}

// NewCodeSpace creates a CodeSpace over program flash.
func NewCodeSpace(r Reader, layout flash.Layout) *CodeSpace {
	return &CodeSpace{flash: r, layout: layout}
}

// Bind sets the OS passed to init.
func (c *CodeSpace) Bind(os OS) {
	c.lock.Lock()
	c.os = os
	c.lock.Unlock()
}

// Resolve finds the symbol at addr.
func (c *CodeSpace) Resolve(addr uint32) (*Symbol, error) {
	if addr < c.layout.CodeBase || addr >= c.layout.Size || (addr-c.layout.CodeBase)%c.layout.RowSize != 0 {
		return nil, &Trap{Addr: addr, Reason: "address outside application code"}
	}
	var sig [4]byte
	if err := c.flash.Read(addr, sig[:]); err != nil {
		return nil, &Trap{Addr: addr, Reason: "bus error", Err: err}
	}
	sym := lookupSymbol(binary.BigEndian.Uint32(sig[:]))
	if sym == nil {
		return nil, &Trap{Addr: addr, Reason: "illegal instruction"}
	}
	if c.layout.CodeBase+uint32(sym.Index)*c.layout.RowSize != addr {
		return nil, &Trap{Addr: addr, Symbol: sym.FullName(), Reason: "symbol not linked at this address"}
	}
	return sym, nil
}

// EntryAddr reads the address stored in an entry slot of the handle page.
func (c *CodeSpace) EntryAddr(off uint32) (uint32, error) {
	var slot [4]byte
	if err := c.flash.Read(c.layout.HandleAddr+off, slot[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(slot[:]), nil
}

// CallInit calls the application init entry point.
func (c *CodeSpace) CallInit() error {
	c.lock.RLock()
	os := c.os
	c.lock.RUnlock()
	return c.callEntry(OffInit, SymInit, func(sym *Symbol) error {
		return sym.Program.Init(os)
	})
}

// CallMain calls the application main entry point once.
func (c *CodeSpace) CallMain() error {
	return c.callEntry(OffMain, SymMain, func(sym *Symbol) error {
		return sym.Program.Main()
	})
}

// CallAt calls the interrupt handler at addr.
func (c *CodeSpace) CallAt(addr uint32) error {
	sym, err := c.Resolve(addr)
	if err != nil {
		return err
	}
	if sym.Kind != SymISR {
		return &Trap{Addr: addr, Symbol: sym.FullName(), Reason: "not an interrupt handler"}
	}
	return run(addr, sym, func(sym *Symbol) error {
		sym.isr()
		return nil
	})
}

func (c *CodeSpace) callEntry(off uint32, kind SymbolKind, fn func(*Symbol) error) error {
	addr, err := c.EntryAddr(off)
	if err != nil {
		return &Trap{Addr: c.layout.HandleAddr + off, Reason: "bus error", Err: err}
	}
	sym, err := c.Resolve(addr)
	if err != nil {
		return err
	}
	if sym.Kind != kind {
		return &Trap{Addr: addr, Symbol: sym.FullName(), Reason: "not the " + kind.String() + " entry"}
	}
	return run(addr, sym, fn)
}

func run(addr uint32, sym *Symbol, fn func(*Symbol) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Trap{Addr: addr, Symbol: sym.FullName(), Reason: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()
	if e := fn(sym); e != nil {
		return &Trap{Addr: addr, Symbol: sym.FullName(), Reason: "returned error", Err: e}
	}
	return nil
}
