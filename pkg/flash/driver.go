package flash

import (
	"errors"
	"io"
	"os"
	"sync"
)

// Driver exposes the raw flash primitives.
type Driver interface {
	Read(addr uint32, p []byte) error
	ErasePage(addr uint32) error
	WriteRow(addr uint32, row []byte) error
	PageErased(addr uint32) (bool, error)
}

// Erased is the value of an erased flash cell.
const Erased byte = 0xff

var (
	// ErrOutOfBounds indicates an access beyond the device.
	ErrOutOfBounds = errors.New("flash access out of bounds")
)

// MemFlash simulates NOR flash in RAM: programming only clears bits,
// only a page erase sets them again.
type MemFlash struct {
	Layout Layout

	data []byte
	file *os.File
	lock sync.RWMutex
}

// NewMemFlash creates an erased device.
func NewMemFlash(layout Layout) *MemFlash {
	f := &MemFlash{Layout: layout, data: make([]byte, layout.Size)}
	for n := range f.data {
		f.data[n] = Erased
	}
	return f
}

// OpenFileFlash creates a device persisted into path.
func OpenFileFlash(path string, layout Layout) (*MemFlash, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	f := NewMemFlash(layout)
	n, err := io.ReadFull(file, f.data)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		file.Close()
		return nil, err
	}
	if n < len(f.data) {
		for i := n; i < len(f.data); i++ {
			f.data[i] = Erased
		}
		if _, err = file.WriteAt(f.data[n:], int64(n)); err != nil {
			file.Close()
			return nil, err
		}
	}
	f.file = file
	return f, nil
}

// Close releases the backing file if any.
func (f *MemFlash) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Read implements Driver.
func (f *MemFlash) Read(addr uint32, p []byte) error {
	f.lock.RLock()
	defer f.lock.RUnlock()
	if uint64(addr)+uint64(len(p)) > uint64(len(f.data)) {
		return ErrOutOfBounds
	}
	copy(p, f.data[addr:])
	return nil
}

// ErasePage implements Driver.
func (f *MemFlash) ErasePage(addr uint32) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if addr >= uint32(len(f.data)) {
		return ErrOutOfBounds
	}
	page := f.Layout.PageOf(addr)
	buf := f.data[page : page+f.Layout.PageSize]
	for n := range buf {
		buf[n] = Erased
	}
	return f.persist(page, buf)
}

// WriteRow implements Driver.
func (f *MemFlash) WriteRow(addr uint32, row []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if uint64(addr)+uint64(len(row)) > uint64(len(f.data)) {
		return ErrOutOfBounds
	}
	buf := f.data[addr : addr+uint32(len(row))]
	for n, b := range row {
		buf[n] &= b
	}
	return f.persist(addr, buf)
}

// PageErased implements Driver.
func (f *MemFlash) PageErased(addr uint32) (bool, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	if addr >= uint32(len(f.data)) {
		return false, ErrOutOfBounds
	}
	page := f.Layout.PageOf(addr)
	for _, b := range f.data[page : page+f.Layout.PageSize] {
		if b != Erased {
			return false, nil
		}
	}
	return true, nil
}

func (f *MemFlash) persist(addr uint32, buf []byte) error {
	if f.file == nil {
		return nil
	}
	_, err := f.file.WriteAt(buf, int64(addr))
	return err
}
