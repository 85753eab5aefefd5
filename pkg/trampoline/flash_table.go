package trampoline

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/nodeos/pkg/flash"
)

// Vector table placement inside the handle page. Each slot holds the
// big-endian code address of the handler.
const (
	VectorTableOffset uint32 = 0x09e
	VectorSize        uint32 = 4
)

// FlashReader reads program flash.
type FlashReader interface {
	Read(addr uint32, p []byte) error
}

// CodeCaller calls hosted code at a code address.
type CodeCaller interface {
	CallAt(addr uint32) error
}

// SlotAddr returns the flash address of the vector slot of src.
func SlotAddr(layout flash.Layout, src Source) uint32 {
	return layout.HandleAddr + VectorTableOffset + VectorSize*uint32(src)
}

// TableEnd returns the first address after the vector table.
func TableEnd(layout flash.Layout) uint32 {
	return layout.HandleAddr + VectorTableOffset + VectorSize*uint32(NumSources)
}

// FlashVectorTable resolves handlers through the vector table written
// into flash by the application image.
type FlashVectorTable struct {
	Flash  FlashReader
	Layout flash.Layout
	Code   CodeCaller
}

// HandlerAddr reads the handler address of src.
func (t *FlashVectorTable) HandlerAddr(src Source) (uint32, error) {
	if !src.Valid() {
		return 0, ErrInvalidSource
	}
	var slot [VectorSize]byte
	if err := t.Flash.Read(SlotAddr(t.Layout, src), slot[:]); err != nil {
		return 0, fmt.Errorf("read vector %s: %w", src, err)
	}
	return binary.BigEndian.Uint32(slot[:]), nil
}

// Invoke implements VectorTable.
func (t *FlashVectorTable) Invoke(src Source) error {
	addr, err := t.HandlerAddr(src)
	if err != nil {
		return err
	}
	return t.Code.CallAt(addr)
}
