package store

import (
	"io"
	"os"
	"sync"
)

// DefaultSize is the size of the EEPROM fitted on the reference boards.
const DefaultSize = 1024

// MemDriver is a RAM backed Driver, erased to 0xff.
type MemDriver struct {
	data []byte
	lock sync.Mutex
}

// NewMemDriver creates an erased MemDriver of size bytes.
func NewMemDriver(size int) *MemDriver {
	d := &MemDriver{data: make([]byte, size)}
	for n := range d.data {
		d.data[n] = 0xff
	}
	return d
}

// Read implements Driver.
func (d *MemDriver) Read(addr uint16) (byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if int(addr) >= len(d.data) {
		return 0, ErrOutOfRange
	}
	return d.data[addr], nil
}

// Write implements Driver.
func (d *MemDriver) Write(addr uint16, b byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if int(addr) >= len(d.data) {
		return ErrOutOfRange
	}
	d.data[addr] = b
	return nil
}

// Size implements Driver.
func (d *MemDriver) Size() int {
	return len(d.data)
}

// FileDriver persists every write into a file so the content survives
// simulated power cycles.
type FileDriver struct {
	*MemDriver
	file *os.File
}

// OpenFileDriver opens or creates the backing file. A new or short file
// is padded with erased bytes.
func OpenFileDriver(path string, size int) (*FileDriver, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	d := &FileDriver{MemDriver: NewMemDriver(size), file: f}
	n, err := io.ReadFull(f, d.data)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		f.Close()
		return nil, err
	}
	if n < size {
		for i := n; i < size; i++ {
			d.data[i] = 0xff
		}
		if _, err = f.WriteAt(d.data[n:], int64(n)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return d, nil
}

// Write implements Driver.
func (d *FileDriver) Write(addr uint16, b byte) error {
	if err := d.MemDriver.Write(addr, b); err != nil {
		return err
	}
	_, err := d.file.WriteAt([]byte{b}, int64(addr))
	return err
}

// Close implements io.Closer.
func (d *FileDriver) Close() error {
	return d.file.Close()
}
