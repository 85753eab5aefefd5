// Package hosted models the field updatable application: the API the
// node offers to it, how it is linked into a flash image, and how its
// entry points are called from flash.
package hosted

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/ledger"
	"github.com/robotalks/nodeos/pkg/store"
	"github.com/robotalks/nodeos/pkg/trampoline"
)

// OS is the API the node lends to the hosted application. All resources
// are attributed to the application and evicted on reflash.
type OS interface {
	StartTimer(d time.Duration, fn ledger.TimerFunc, data interface{}) (ledger.TimerHandle, error)
	CancelTimer(ledger.TimerHandle) error
	RegisterL2Handler(filter, mask uint32, fn can.Handler) (ledger.HandlerHandle, error)
	UnregisterL2Handler(ledger.HandlerHandle) error
	SendFrame(canbus.Frame) error
	Storage() *store.Region
	NodeAddress() byte
	IOAddress() byte
	Logf(format string, args ...interface{})
}

// Program is an application which can be linked into a flash image.
type Program struct {
	Name string
	Info Info
	Init func(OS) error
	// Main is called once per loop iteration, it must not block.
	Main func() error
	ISRs map[trampoline.Source]func()
}

// Validate checks the program can be linked.
func (p *Program) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("program has no name")
	}
	if p.Init == nil || p.Main == nil {
		return fmt.Errorf("program %s: init and main are required", p.Name)
	}
	for src := range p.ISRs {
		if !src.Valid() || src.NodeOwned() {
			return fmt.Errorf("program %s: can't handle interrupt %s", p.Name, src)
		}
	}
	return p.Info.Validate()
}

var (
	programs    = make(map[string]*Program)
	programLock sync.RWMutex
)

// Register makes a program available for linking and execution.
func Register(p *Program) {
	programLock.Lock()
	defer programLock.Unlock()
	if _, exist := programs[p.Name]; exist {
		panic("program " + p.Name + " already registered")
	}
	programs[p.Name] = p
	registerSymbols(p)
}

// Lookup finds a registered program.
func Lookup(name string) *Program {
	programLock.RLock()
	defer programLock.RUnlock()
	return programs[name]
}

// Programs lists registered program names.
func Programs() []string {
	programLock.RLock()
	defer programLock.RUnlock()
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
