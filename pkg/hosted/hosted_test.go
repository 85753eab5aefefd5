package hosted

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/trampoline"
)

type testProgram struct {
	inits, mains int
	ticks        int
	mainErr      error
	panicISR     bool
}

func (tp *testProgram) program(name string) *Program {
	return &Program{
		Name: name,
		Info: Info{Author: "tester", Description: "test program", Version: "1.0", URI: "http://example.com"},
		Init: func(OS) error { tp.inits++; return nil },
		Main: func() error { tp.mains++; return tp.mainErr },
		ISRs: map[trampoline.Source]func(){
			trampoline.T2: func() {
				if tp.panicISR {
					panic("bad pointer")
				}
				tp.ticks++
			},
		},
	}
}

func flashImage(t *testing.T, f *flash.MemFlash, img *Image) {
	for _, row := range img.Rows {
		require.NoError(t, f.WriteRow(img.Addr(row), row.Data))
	}
}

func TestLinkAndCall(t *testing.T) {
	layout := flash.DefaultLayout
	tp := &testProgram{}
	p := tp.program("link-and-call")
	Register(p)
	require.Contains(t, Programs(), "link-and-call")
	require.Equal(t, p, Lookup("link-and-call"))

	img, err := Link(p, layout)
	require.NoError(t, err)
	require.NoError(t, img.Check(layout))
	require.Equal(t, []uint32{layout.HandleAddr, layout.CodeBase}, img.Pages(layout))

	f := flash.NewMemFlash(layout)
	flashImage(t, f, img)
	cs := NewCodeSpace(f, layout)
	require.NoError(t, cs.CallInit())
	require.NoError(t, cs.CallMain())
	require.Equal(t, 1, tp.inits)
	require.Equal(t, 1, tp.mains)

	table := &trampoline.FlashVectorTable{Flash: f, Layout: layout, Code: cs}
	require.NoError(t, table.Invoke(trampoline.T2))
	require.Equal(t, 1, tp.ticks)
	// unused vectors point at the default handler.
	require.NoError(t, table.Invoke(trampoline.U1RX))

	info, err := ReadInfo(f, layout.HandleAddr)
	require.NoError(t, err)
	require.Equal(t, p.Info, info)
}

func TestTraps(t *testing.T) {
	layout := flash.DefaultLayout
	tp := &testProgram{}
	p := tp.program("traps")
	Register(p)
	img, err := Link(p, layout)
	require.NoError(t, err)

	f := flash.NewMemFlash(layout)
	cs := NewCodeSpace(f, layout)
	var trap *Trap

	// erased flash.
	err = cs.CallInit()
	require.True(t, errors.As(err, &trap))
	require.Equal(t, uint32(0xffffffff), trap.Addr)

	// handle page written, code not yet.
	for _, row := range img.Rows {
		if addr := img.Addr(row); layout.InHandlePage(addr) {
			require.NoError(t, f.WriteRow(addr, row.Data))
		}
	}
	err = cs.CallMain()
	require.True(t, errors.As(err, &trap))
	require.Equal(t, "illegal instruction", trap.Reason)
	require.Equal(t, 0, tp.mains)

	flashImage(t, f, img)
	tp.mainErr = errors.New("rc -1")
	err = cs.CallMain()
	require.True(t, errors.As(err, &trap))
	require.True(t, errors.Is(err, tp.mainErr))
	require.Equal(t, "traps.main", trap.Symbol)

	tp.panicISR = true
	table := &trampoline.FlashVectorTable{Flash: f, Layout: layout, Code: cs}
	err = table.Invoke(trampoline.T2)
	require.True(t, errors.As(err, &trap))
	require.Equal(t, "panic", trap.Reason)

	// entry points are not interrupt handlers.
	err = cs.CallAt(layout.CodeBase)
	require.True(t, errors.As(err, &trap))
	// inside a row.
	err = cs.CallAt(layout.CodeBase + 4)
	require.True(t, errors.As(err, &trap))
}

func TestImageFile(t *testing.T) {
	layout := flash.DefaultLayout
	tp := &testProgram{}
	p := tp.program("image-file")
	img, err := Link(p, layout)
	require.NoError(t, err)
	info, err := img.Info(layout)
	require.NoError(t, err)
	require.Equal(t, p.Info, info)

	var buf bytes.Buffer
	n, err := img.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	read, err := ReadImage(bytes.NewReader(buf.Bytes()), layout)
	require.NoError(t, err)
	require.Equal(t, p.Info.Description, read.Name)
	require.NoError(t, read.Check(layout))
	require.Equal(t, img.Pages(layout), read.Pages(layout))
	require.Len(t, read.Rows, len(img.Rows))
	for n, row := range img.Rows {
		require.Equal(t, img.Addr(row), read.Addr(read.Rows[n]))
		require.Equal(t, row.Data, read.Rows[n].Data)
		require.Equal(t, row.Checksum, read.Rows[n].Checksum)
	}

	_, err = ReadImage(bytes.NewReader(buf.Bytes()[:buf.Len()-3]), layout)
	require.True(t, errors.Is(err, ErrBadImage))
	_, err = ReadImage(bytes.NewReader([]byte("JUNK")), layout)
	require.True(t, errors.Is(err, ErrBadImage))
	_, err = ReadImage(strings.NewReader("1E9602AA0000\n000000040001020304F2\n"), layout)
	require.True(t, errors.Is(err, ErrBadImage))
}

func TestImageRowsAreChecked(t *testing.T) {
	layout := flash.DefaultLayout
	tp := &testProgram{}
	img, err := Link(tp.program("image-corrupt"), layout)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = img.WriteTo(&buf)
	require.NoError(t, err)

	// flip one data nibble of the last row.
	text := []byte(buf.String())
	pos := len(text) - 6
	if text[pos] == '0' {
		text[pos] = '1'
	} else {
		text[pos] = '0'
	}
	_, err = ReadImage(bytes.NewReader(text), layout)
	require.True(t, errors.Is(err, ErrBadImage))

	// rows changed in memory are caught before flashing.
	img.Rows[0].Data[0] ^= 0xff
	require.True(t, errors.Is(img.Check(layout), ErrBadImage))

	other := layout
	other.RowSize *= 2
	img.Rows[0].Data[0] ^= 0xff
	require.NoError(t, img.Check(layout))
	require.Error(t, img.Check(other))
}

func TestProgramValidate(t *testing.T) {
	tp := &testProgram{}
	p := tp.program("validate")
	p.ISRs[trampoline.T1] = func() {}
	_, err := Link(p, flash.DefaultLayout)
	require.Error(t, err)

	p = tp.program("validate")
	p.Info.Version = "a version string that is too long"
	_, err = Link(p, flash.DefaultLayout)
	require.Error(t, err)
}
