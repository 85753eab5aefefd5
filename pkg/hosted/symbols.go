package hosted

import (
	"encoding/binary"
	"hash/crc32"
	"sort"

	"github.com/robotalks/nodeos/pkg/trampoline"
)

// SymbolKind classifies linked code.
type SymbolKind int

// Symbol kinds.
const (
	SymInit SymbolKind = iota
	SymMain
	SymISR
)

// String implements fmt.Stringer.
func (k SymbolKind) String() string {
	switch k {
	case SymInit:
		return "init"
	case SymMain:
		return "main"
	}
	return "isr"
}

// Symbol is a piece of hosted code placed in one flash row.
type Symbol struct {
	Program *Program
	Name    string
	Kind    SymbolKind
	// Index is the row index relative to the code base.
	Index int
	isr   func()
}

// FullName is program.symbol.
func (s *Symbol) FullName() string {
	return s.Program.Name + "." + s.Name
}

// Signature identifies the symbol in flash.
func (s *Symbol) Signature() uint32 {
	return crc32.ChecksumIEEE([]byte(s.FullName()))
}

func (s *Symbol) encodeRow(row []byte) {
	for n := range row {
		row[n] = 0
	}
	binary.BigEndian.PutUint32(row, s.Signature())
	copy(row[4:len(row)-1], s.FullName())
}

const defaultISRName = "default_isr"

// symbols returns the program symbols in link order.
func (p *Program) symbols() []*Symbol {
	syms := []*Symbol{
		{Program: p, Name: "init", Kind: SymInit},
		{Program: p, Name: "main", Kind: SymMain},
		{Program: p, Name: defaultISRName, Kind: SymISR, isr: func() {}},
	}
	sources := make([]int, 0, len(p.ISRs))
	for src := range p.ISRs {
		sources = append(sources, int(src))
	}
	sort.Ints(sources)
	for _, src := range sources {
		s := trampoline.Source(src)
		syms = append(syms, &Symbol{Program: p, Name: "isr_" + s.String(), Kind: SymISR, isr: p.ISRs[s]})
	}
	for n, sym := range syms {
		sym.Index = n
	}
	return syms
}

var symbolTable = make(map[uint32]*Symbol)

func registerSymbols(p *Program) {
	for _, sym := range p.symbols() {
		symbolTable[sym.Signature()] = sym
	}
}

func lookupSymbol(sig uint32) *Symbol {
	programLock.RLock()
	defer programLock.RUnlock()
	return symbolTable[sig]
}
