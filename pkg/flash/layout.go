package flash

import (
	"fmt"
)

// Layout partitions program flash into the OS region, the application
// handle (vector redirect) page and the application code region.
// Addresses are byte addresses.
type Layout struct {
	Size       uint32
	PageSize   uint32
	RowSize    uint32
	HandleAddr uint32
	CodeBase   uint32
}

// DefaultLayout matches the PIC24FJ256GB106 based boards.
var DefaultLayout = Layout{
	Size:       0x2B000,
	PageSize:   0x400,
	RowSize:    32,
	HandleAddr: 0x400,
	CodeBase:   0x18000,
}

// RangeError is returned for addresses outside the application regions.
type RangeError struct {
	Op   string
	Addr uint32
	Len  int
}

// Error implements error.
func (e *RangeError) Error() string {
	if e.Len > 0 {
		return fmt.Sprintf("flash %s 0x%x+%d outside application regions", e.Op, e.Addr, e.Len)
	}
	return fmt.Sprintf("flash %s 0x%x outside application regions", e.Op, e.Addr)
}

// PageOf returns the base address of the page containing addr.
func (l Layout) PageOf(addr uint32) uint32 {
	return addr - addr%l.PageSize
}

// InHandlePage reports whether addr is inside the handle page.
func (l Layout) InHandlePage(addr uint32) bool {
	return addr >= l.HandleAddr && addr < l.HandleAddr+l.PageSize
}

// CheckErase validates a page erase request. Only the handle page itself
// or a page at or above the code base may be erased.
func (l Layout) CheckErase(addr uint32) error {
	if addr == l.HandleAddr {
		return nil
	}
	if addr >= l.CodeBase && addr < l.Size {
		return nil
	}
	return &RangeError{Op: "erase", Addr: addr}
}

// CheckWrite validates a row write request. A row written into the
// handle page must stay inside that single page.
func (l Layout) CheckWrite(addr uint32, n int) error {
	if uint32(n) != l.RowSize || addr%l.RowSize != 0 {
		return &RangeError{Op: "write", Addr: addr, Len: n}
	}
	end := uint64(addr) + uint64(n)
	if l.InHandlePage(addr) && end <= uint64(l.HandleAddr+l.PageSize) {
		return nil
	}
	if addr >= l.CodeBase && end <= uint64(l.Size) {
		return nil
	}
	return &RangeError{Op: "write", Addr: addr, Len: n}
}
