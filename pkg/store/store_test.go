package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRangeCheck(t *testing.T) {
	s := New(NewMemDriver(64))
	_, err := s.Read(64)
	require.Error(t, err)
	var se *StoreError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "read", se.Op)
	require.True(t, errors.Is(err, ErrOutOfRange))

	require.Error(t, s.Write(0x100, 1))
	require.NoError(t, s.Write(63, 1))
	b, err := s.Read(63)
	require.NoError(t, err)
	require.Equal(t, byte(1), b)
}

func TestStoreErasedMagic(t *testing.T) {
	s := New(NewMemDriver(DefaultSize))
	m1, m2, err := s.Magic()
	require.NoError(t, err)
	require.Equal(t, byte(0xff), m1)
	require.Equal(t, byte(0xff), m2)
}

func TestNodeConfig(t *testing.T) {
	s := New(NewMemDriver(DefaultSize))
	conf := NodeConfig{
		Address:     0x21,
		Baud:        4,
		IOAddress:   3,
		Description: "a description which is far too long to fit",
	}
	require.NoError(t, s.SetNodeConfig(conf))
	read, err := s.NodeConfig()
	require.NoError(t, err)
	require.Equal(t, byte(0x21), read.Address)
	require.Equal(t, byte(4), read.Baud)
	require.Equal(t, byte(3), read.IOAddress)
	require.Equal(t, conf.Description[:DescriptionSize-1], read.Description)
	// terminator is the last byte of the description field.
	b, err := s.Read(AddrDescription + DescriptionSize - 1)
	require.NoError(t, err)
	require.Equal(t, byte(0), b)
	// next free byte untouched.
	b, err = s.Read(AddrNextFree)
	require.NoError(t, err)
	require.Equal(t, byte(0xff), b)
}

func TestAppRegion(t *testing.T) {
	s := New(NewMemDriver(64))
	r := s.AppRegion()
	require.Equal(t, 64-int(NodePageSize), r.Size())
	require.NoError(t, r.Write(0, 0x42))
	b, err := s.Read(NodePageSize)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b)
	require.Error(t, r.Write(uint16(r.Size()), 1))
}

func TestFileDriverPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")
	d, err := OpenFileDriver(path, 128)
	require.NoError(t, err)
	require.NoError(t, d.Write(1, 0xaa))
	require.NoError(t, d.Close())

	d, err = OpenFileDriver(path, 128)
	require.NoError(t, err)
	defer d.Close()
	b, err := d.Read(1)
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), b)
	b, err = d.Read(2)
	require.NoError(t, err)
	require.Equal(t, byte(0xff), b)
}
