package hosted

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/moffa90/go-cyacd/cyacd"

	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/trampoline"
)

// Image is a linked application ready to be flashed. Rows are numbered
// in units of RowSize and carry their cyacd checksum.
type Image struct {
	Name    string
	RowSize uint32
	*cyacd.Firmware
}

// Image file header, stored as the cyacd silicon ID and revision.
const (
	ImageSiliconID uint32 = 0x4e4f5349
	ImageFormat    byte   = 1
)

var (
	// ErrBadImage indicates a malformed image file or a corrupted row.
	ErrBadImage = errors.New("malformed image")
)

// Link places a program into flash rows for layout.
func Link(p *Program, layout flash.Layout) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	syms := p.symbols()
	if end := layout.CodeBase + uint32(len(syms))*layout.RowSize; end > layout.Size {
		return nil, fmt.Errorf("program %s doesn't fit in flash", p.Name)
	}
	if trampoline.TableEnd(layout) > layout.HandleAddr+layout.PageSize {
		return nil, fmt.Errorf("vector table doesn't fit in the handle page")
	}
	addrOf := func(sym *Symbol) uint32 {
		return layout.CodeBase + uint32(sym.Index)*layout.RowSize
	}

	page := make([]byte, layout.PageSize)
	for n := range page {
		page[n] = flash.Erased
	}
	p.Info.encode(page)
	binary.BigEndian.PutUint32(page[OffInit:], addrOf(syms[0]))
	binary.BigEndian.PutUint32(page[OffMain:], addrOf(syms[1]))
	handlers := make(map[string]uint32)
	for _, sym := range syms[2:] {
		handlers[sym.Name] = addrOf(sym)
	}
	for n := 0; n < trampoline.NumSources; n++ {
		src := trampoline.Source(n)
		if src.NodeOwned() {
			continue
		}
		addr, ok := handlers["isr_"+src.String()]
		if !ok {
			addr = handlers[defaultISRName]
		}
		off := trampoline.SlotAddr(layout, src) - layout.HandleAddr
		binary.BigEndian.PutUint32(page[off:], addr)
	}

	img := &Image{
		Name:     p.Name,
		RowSize:  layout.RowSize,
		Firmware: &cyacd.Firmware{SiliconID: ImageSiliconID, SiliconRev: ImageFormat},
	}
	for off := uint32(0); off < layout.PageSize; off += layout.RowSize {
		if data := page[off : off+layout.RowSize]; !erased(data) {
			if err := img.AddRow(layout.HandleAddr+off, data); err != nil {
				return nil, err
			}
		}
	}
	for _, sym := range syms {
		data := make([]byte, layout.RowSize)
		sym.encodeRow(data)
		if err := img.AddRow(addrOf(sym), data); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// AddRow appends a row at addr, which must be row aligned.
func (img *Image) AddRow(addr uint32, data []byte) error {
	num := addr / img.RowSize
	if addr%img.RowSize != 0 || num > 0xffff {
		return fmt.Errorf("row address 0x%05x not encodable", addr)
	}
	if len(data) > 0xffff {
		return fmt.Errorf("row at 0x%05x too long", addr)
	}
	row := &cyacd.Row{RowNum: uint16(num), Data: data}
	row.Checksum = RowChecksum(row)
	img.Rows = append(img.Rows, row)
	return nil
}

// Addr returns the flash address of row.
func (img *Image) Addr(row *cyacd.Row) uint32 {
	return uint32(row.RowNum) * img.RowSize
}

// RowChecksum computes the cyacd basic summation checksum over the row
// header and data.
func RowChecksum(row *cyacd.Row) byte {
	sum := row.ArrayID + byte(row.RowNum) + byte(row.RowNum>>8) + byte(len(row.Data)) + byte(len(row.Data)>>8)
	for _, b := range row.Data {
		sum += b
	}
	return ^sum + 1
}

func erased(p []byte) bool {
	for _, b := range p {
		if b != flash.Erased {
			return false
		}
	}
	return true
}

// Pages returns the pages the image touches in ascending order, the
// handle page always comes first.
func (img *Image) Pages(layout flash.Layout) []uint32 {
	set := map[uint32]bool{layout.HandleAddr: true}
	for _, row := range img.Rows {
		set[layout.PageOf(img.Addr(row))] = true
	}
	pages := make([]uint32, 0, len(set))
	for page := range set {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

// Check validates every row against layout and its checksum.
func (img *Image) Check(layout flash.Layout) error {
	if img.RowSize != layout.RowSize {
		return fmt.Errorf("image rows of %d bytes, flash rows of %d", img.RowSize, layout.RowSize)
	}
	for _, row := range img.Rows {
		if row.Checksum != RowChecksum(row) {
			return fmt.Errorf("%w: row 0x%05x checksum mismatch", ErrBadImage, img.Addr(row))
		}
		if err := layout.CheckWrite(img.Addr(row), len(row.Data)); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo implements io.WriterTo, the image is written in cyacd format.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	writeLine := func(p []byte) {
		n, _ := bw.WriteString(strings.ToUpper(hex.EncodeToString(p)))
		written += int64(n)
		n, _ = bw.WriteString("\n")
		written += int64(n)
	}
	var hdr [6]byte
	binary.BigEndian.PutUint32(hdr[0:], img.SiliconID)
	hdr[4], hdr[5] = img.SiliconRev, img.ChecksumType
	writeLine(hdr[:])
	for _, row := range img.Rows {
		line := make([]byte, 5, 6+len(row.Data))
		line[0] = row.ArrayID
		binary.LittleEndian.PutUint16(line[1:], row.RowNum)
		binary.LittleEndian.PutUint16(line[3:], uint16(len(row.Data)))
		line = append(append(line, row.Data...), row.Checksum)
		writeLine(line)
	}
	return written, bw.Flush()
}

// ReadImage reads a cyacd image for layout, every row checksum is
// verified while parsing.
func ReadImage(r io.Reader, layout flash.Layout) (*Image, error) {
	fw, err := cyacd.ParseReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if fw.SiliconID != ImageSiliconID || fw.SiliconRev != ImageFormat {
		return nil, fmt.Errorf("%w: unknown format %08x rev %d", ErrBadImage, fw.SiliconID, fw.SiliconRev)
	}
	img := &Image{RowSize: layout.RowSize, Firmware: fw}
	if info, err := img.Info(layout); err == nil {
		img.Name = info.Description
	}
	return img, nil
}

// Info decodes the application info carried by the handle page rows.
func (img *Image) Info(layout flash.Layout) (Info, error) {
	page := make([]byte, layout.PageSize)
	for n := range page {
		page[n] = flash.Erased
	}
	found := false
	for _, row := range img.Rows {
		if addr := img.Addr(row); layout.InHandlePage(addr) {
			copy(page[addr-layout.HandleAddr:], row.Data)
			found = true
		}
	}
	if !found {
		return Info{}, fmt.Errorf("%w: no handle page", ErrBadImage)
	}
	return ReadInfo(pageReader{base: layout.HandleAddr, page: page}, layout.HandleAddr)
}

type pageReader struct {
	base uint32
	page []byte
}

func (r pageReader) Read(addr uint32, p []byte) error {
	if addr < r.base || int(addr-r.base)+len(p) > len(r.page) {
		return fmt.Errorf("read 0x%05x outside the handle page", addr)
	}
	copy(p, r.page[addr-r.base:])
	return nil
}
