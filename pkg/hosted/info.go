package hosted

import (
	"fmt"

	"github.com/robotalks/nodeos/pkg/trampoline"
)

// Info describes the installed application, it is stored as NUL padded
// strings at the start of the handle page.
type Info struct {
	Author      string
	Description string
	Version     string
	URI         string
}

// Handle page layout, offsets relative to the handle page.
const (
	OffAuthor      uint32 = 0x000
	OffDescription uint32 = 0x028
	OffVersion     uint32 = 0x05a
	OffURI         uint32 = 0x064
	OffInit        uint32 = 0x096
	OffMain        uint32 = 0x09a

	AuthorSize      = 40
	DescriptionSize = 50
	VersionSize     = 10
	URISize         = 50
)

type infoField struct {
	off  uint32
	size int
	val  *string
}

func (i *Info) fields() []infoField {
	return []infoField{
		{OffAuthor, AuthorSize, &i.Author},
		{OffDescription, DescriptionSize, &i.Description},
		{OffVersion, VersionSize, &i.Version},
		{OffURI, URISize, &i.URI},
	}
}

// Validate checks every string fits with its terminator.
func (i Info) Validate() error {
	for _, f := range i.fields() {
		if len(*f.val) >= f.size {
			return fmt.Errorf("info field at 0x%03x longer than %d", f.off, f.size-1)
		}
	}
	return nil
}

func (i Info) encode(page []byte) {
	for _, f := range i.fields() {
		field := page[f.off : f.off+uint32(f.size)]
		for n := range field {
			field[n] = 0
		}
		copy(field[:f.size-1], *f.val)
	}
}

// Reader reads program flash.
type Reader = trampoline.FlashReader

// ReadInfo reads application info from the handle page at base.
func ReadInfo(r Reader, base uint32) (Info, error) {
	var info Info
	for _, f := range info.fields() {
		buf := make([]byte, f.size)
		if err := r.Read(base+f.off, buf); err != nil {
			return info, err
		}
		*f.val = cString(buf)
	}
	return info, nil
}

func cString(buf []byte) string {
	for n, b := range buf {
		if b == 0 || b == 0xff {
			return string(buf[:n])
		}
	}
	return string(buf)
}
