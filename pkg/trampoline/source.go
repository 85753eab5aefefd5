package trampoline

import "fmt"

// Source is an interrupt vector slot, traps first.
type Source uint8

// Interrupt sources in vector order.
const (
	ReservedTrap0 Source = iota
	OscillatorFail
	AddressError
	StackError
	MathError
	ReservedTrap5
	ReservedTrap6
	ReservedTrap7
	INT0
	IC1
	OC1
	T1
	Interrupt4
	IC2
	OC2
	T2
	T3
	SPI1Err
	SPI1
	U1RX
	U1TX
	ADC1
	Interrupt14
	Interrupt15
	SI2C1
	MI2C1
	COMP
	CN
	INT1
	Interrupt21
	IC7
	IC8
	Interrupt24
	OC3
	OC4
	T4
	T5
	INT2
	U2RX
	U2TX
	SPI2Err
	SPI2
	Interrupt34
	Interrupt35
	Interrupt36
	IC3
	IC4
	IC5
	IC6
	OC5
	OC6
	OC7
	OC8
	PMP
	Interrupt46
	Interrupt47
	Interrupt48
	SI2C2
	MI2C2
	Interrupt51
	Interrupt52
	INT3
	INT4
	Interrupt55
	Interrupt56
	Interrupt57
	Interrupt58
	Interrupt59
	Interrupt60
	Interrupt61
	RTCC
	Interrupt63
	Interrupt64
	U1Err
	U2Err
	CRC
	Interrupt68
	Interrupt69
	Interrupt70
	Interrupt71
	LVD
	Interrupt73
	Interrupt74
	Interrupt75
	Interrupt76
	CTMU
	Interrupt78
	Interrupt79
	Interrupt80
	U3Err
	U3RX
	U3TX
	SI2C3
	MI2C3
	USB1
	U4Err
	U4RX
	U4TX
	SPI3Err
	SPI3
	OC9
	IC9
	Interrupt94
	Interrupt95
	Interrupt96
	Interrupt97
	Interrupt98
	Interrupt99
	Interrupt100
	Interrupt101
	Interrupt102
	Interrupt103
	Interrupt104
	Interrupt105
	Interrupt106
	Interrupt107
	Interrupt108
	Interrupt109
	Interrupt110
	Interrupt111
	Interrupt112
	Interrupt113
	Interrupt114
	Interrupt115
	Interrupt116
	Interrupt117

	// NumSources is the number of vector slots.
	NumSources int = iota
)

var sourceNames = [NumSources]string{
	"ReservedTrap0", "OscillatorFail", "AddressError", "StackError", "MathError",
	"ReservedTrap5", "ReservedTrap6", "ReservedTrap7", "INT0", "IC1", "OC1", "T1",
	"Interrupt4", "IC2", "OC2", "T2", "T3", "SPI1Err", "SPI1", "U1RX", "U1TX",
	"ADC1", "Interrupt14", "Interrupt15", "SI2C1", "MI2C1", "COMP", "CN", "INT1",
	"Interrupt21", "IC7", "IC8", "Interrupt24", "OC3", "OC4", "T4", "T5", "INT2",
	"U2RX", "U2TX", "SPI2Err", "SPI2", "Interrupt34", "Interrupt35",
	"Interrupt36", "IC3", "IC4", "IC5", "IC6", "OC5", "OC6", "OC7", "OC8", "PMP",
	"Interrupt46", "Interrupt47", "Interrupt48", "SI2C2", "MI2C2", "Interrupt51",
	"Interrupt52", "INT3", "INT4", "Interrupt55", "Interrupt56", "Interrupt57",
	"Interrupt58", "Interrupt59", "Interrupt60", "Interrupt61", "RTCC",
	"Interrupt63", "Interrupt64", "U1Err", "U2Err", "CRC", "Interrupt68",
	"Interrupt69", "Interrupt70", "Interrupt71", "LVD", "Interrupt73",
	"Interrupt74", "Interrupt75", "Interrupt76", "CTMU", "Interrupt78",
	"Interrupt79", "Interrupt80", "U3Err", "U3RX", "U3TX", "SI2C3", "MI2C3",
	"USB1", "U4Err", "U4RX", "U4TX", "SPI3Err", "SPI3", "OC9", "IC9",
	"Interrupt94", "Interrupt95", "Interrupt96", "Interrupt97", "Interrupt98",
	"Interrupt99", "Interrupt100", "Interrupt101", "Interrupt102", "Interrupt103",
	"Interrupt104", "Interrupt105", "Interrupt106", "Interrupt107",
	"Interrupt108", "Interrupt109", "Interrupt110", "Interrupt111",
	"Interrupt112", "Interrupt113", "Interrupt114", "Interrupt115",
	"Interrupt116", "Interrupt117",
}

// nodeOwned sources are serviced by the node and never forwarded.
var nodeOwned = map[Source]bool{
	AddressError: true,
	StackError:   true,
	INT0:         true,
	T1:           true,
	USB1:         true,
}

// NodeOwned reports whether the node services s itself.
func (s Source) NodeOwned() bool {
	return nodeOwned[s]
}

// Valid reports whether s is a vector slot.
func (s Source) Valid() bool {
	return int(s) < NumSources
}

// String implements fmt.Stringer.
func (s Source) String() string {
	if s.Valid() {
		return sourceNames[s]
	}
	return fmt.Sprintf("Source(%d)", uint8(s))
}

// ParseSource looks up a source by name.
func ParseSource(name string) (Source, error) {
	for n, s := range sourceNames {
		if s == name {
			return Source(n), nil
		}
	}
	return 0, fmt.Errorf("unknown interrupt source %q", name)
}
