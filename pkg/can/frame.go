package can

import (
	"fmt"

	"github.com/notnil/canbus"
)

const maxStdID = 0x7ff

// NewFrame builds a data frame, identifiers above 11 bits are extended.
func NewFrame(id uint32, data []byte) (canbus.Frame, error) {
	f := canbus.Frame{ID: id, Extended: id > maxStdID}
	if len(data) > len(f.Data) {
		return f, canbus.ErrInvalidLen
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Payload returns the valid data bytes of f.
func Payload(f canbus.Frame) []byte {
	return f.Data[:f.Len]
}

// Format prints f in candump style.
func Format(f canbus.Frame) string {
	if f.RTR {
		return fmt.Sprintf("%03x#R%d", f.ID, f.Len)
	}
	return fmt.Sprintf("%03x#% x", f.ID, Payload(f))
}

// Layer identifies a protocol layer handlers can be registered on.
type Layer int

// Protocol layers.
const (
	LayerL2 Layer = iota
	LayerISO15765
	LayerDCNCP
)

// String implements fmt.Stringer.
func (l Layer) String() string {
	switch l {
	case LayerL2:
		return "L2"
	case LayerISO15765:
		return "ISO15765"
	case LayerDCNCP:
		return "DCNCP"
	}
	return fmt.Sprintf("Layer(%d)", int(l))
}

// BaudRate is the persisted bit rate selector.
type BaudRate byte

// Bit rates, NoBaud is the number of valid selectors.
const (
	Baud10K BaudRate = iota
	Baud20K
	Baud50K
	Baud125K
	Baud250K
	Baud500K
	Baud800K
	Baud1M
	NoBaud
)

// DefaultBaud is used when no valid rate is stored.
const DefaultBaud = Baud250K

var baudNames = [...]string{"10K", "20K", "50K", "125K", "250K", "500K", "800K", "1M"}

// Valid reports whether b is a known selector.
func (b BaudRate) Valid() bool {
	return b < NoBaud
}

// String implements fmt.Stringer.
func (b BaudRate) String() string {
	if b.Valid() {
		return baudNames[b]
	}
	return "no_baud"
}

// ParseBaudRate parses names like "250K".
func ParseBaudRate(s string) (BaudRate, error) {
	for n, name := range baudNames {
		if name == s {
			return BaudRate(n), nil
		}
	}
	return NoBaud, fmt.Errorf("unknown baud rate %q", s)
}
