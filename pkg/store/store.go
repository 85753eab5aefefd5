package store

import (
	"errors"
	"fmt"
)

// Driver is the raw byte-addressed non-volatile memory (EEPROM) driver.
type Driver interface {
	Read(addr uint16) (byte, error)
	Write(addr uint16, b byte) error
	// Size is the number of addressable bytes.
	Size() int
}

// Address map of the node page, bit exact.
const (
	AddrMagic1      uint16 = 0x00
	AddrMagic2      uint16 = 0x01
	AddrNodeAddress uint16 = 0x02
	AddrBaudRate    uint16 = 0x03
	AddrIOAddress   uint16 = 0x04
	AddrDescription uint16 = 0x05
	AddrNextFree    uint16 = 0x23

	// DescriptionSize includes the terminator.
	DescriptionSize = 30
	// NodePageSize is the size reserved for the node, the hosted
	// application private region starts right after it.
	NodePageSize uint16 = 36
)

var (
	// ErrOutOfRange indicates the address is outside the store.
	ErrOutOfRange = errors.New("address out of range")
)

// StoreError reports a failed store access.
type StoreError struct {
	Op   string
	Addr uint16
	Err  error
}

// Error implements error.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s 0x%02x: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store provides typed, range checked access over a Driver.
type Store struct {
	drv Driver
}

// New wraps a driver.
func New(drv Driver) *Store {
	return &Store{drv: drv}
}

// Size returns the size of the underlying device.
func (s *Store) Size() int {
	return s.drv.Size()
}

// Read reads a single byte.
func (s *Store) Read(addr uint16) (byte, error) {
	if int(addr) >= s.drv.Size() {
		return 0, &StoreError{Op: "read", Addr: addr, Err: ErrOutOfRange}
	}
	b, err := s.drv.Read(addr)
	if err != nil {
		return 0, &StoreError{Op: "read", Addr: addr, Err: err}
	}
	return b, nil
}

// Write writes a single byte.
func (s *Store) Write(addr uint16, b byte) error {
	if int(addr) >= s.drv.Size() {
		return &StoreError{Op: "write", Addr: addr, Err: ErrOutOfRange}
	}
	if err := s.drv.Write(addr, b); err != nil {
		return &StoreError{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

// ReadString reads a NUL terminated string of at most size bytes
// (terminator included).
func (s *Store) ReadString(addr uint16, size int) (string, error) {
	if int(addr)+size > s.drv.Size() {
		return "", &StoreError{Op: "read", Addr: addr, Err: ErrOutOfRange}
	}
	buf := make([]byte, 0, size)
	for n := 0; n < size; n++ {
		b, err := s.Read(addr + uint16(n))
		if err != nil {
			return "", err
		}
		if b == 0 || b == 0xff {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

// WriteString writes str with a terminator, truncated so that the
// terminator fits in size bytes. It returns the number of characters
// written, excluding the terminator.
func (s *Store) WriteString(addr uint16, str string, size int) (int, error) {
	if size <= 0 || int(addr)+size > s.drv.Size() {
		return 0, &StoreError{Op: "write", Addr: addr, Err: ErrOutOfRange}
	}
	if len(str) > size-1 {
		str = str[:size-1]
	}
	for n := 0; n < len(str); n++ {
		if err := s.Write(addr+uint16(n), str[n]); err != nil {
			return n, err
		}
	}
	return len(str), s.Write(addr+uint16(len(str)), 0)
}

// Magic reads both magic bytes.
func (s *Store) Magic() (m1, m2 byte, err error) {
	if m1, err = s.Read(AddrMagic1); err != nil {
		return
	}
	m2, err = s.Read(AddrMagic2)
	return
}

// AppRegion returns the private region of the hosted application.
func (s *Store) AppRegion() *Region {
	return &Region{store: s, base: NodePageSize}
}

// Region is a window of the store with offsets relative to its base.
type Region struct {
	store *Store
	base  uint16
}

// Size returns the size of the region.
func (r *Region) Size() int {
	if n := r.store.Size() - int(r.base); n > 0 {
		return n
	}
	return 0
}

// Read reads a byte at offset.
func (r *Region) Read(offset uint16) (byte, error) {
	if int(offset) >= r.Size() {
		return 0, &StoreError{Op: "read", Addr: r.base + offset, Err: ErrOutOfRange}
	}
	return r.store.Read(r.base + offset)
}

// Write writes a byte at offset.
func (r *Region) Write(offset uint16, b byte) error {
	if int(offset) >= r.Size() {
		return &StoreError{Op: "write", Addr: r.base + offset, Err: ErrOutOfRange}
	}
	return r.store.Write(r.base+offset, b)
}
