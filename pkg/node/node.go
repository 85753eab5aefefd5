// Package node assembles the node operating shell: boot validity, the
// resources lent to the hosted application, the companion commands and
// the superloop driving all of them.
package node

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/flash"
	fx "github.com/robotalks/nodeos/pkg/framework"
	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/ledger"
	"github.com/robotalks/nodeos/pkg/ring"
	"github.com/robotalks/nodeos/pkg/store"
	"github.com/robotalks/nodeos/pkg/timers"
	"github.com/robotalks/nodeos/pkg/trampoline"
	"github.com/robotalks/nodeos/pkg/transport"
	"github.com/robotalks/nodeos/pkg/update"
	"github.com/robotalks/nodeos/pkg/validity"
	"github.com/robotalks/nodeos/pkg/watchdog"
)

// Options assembles a Node.
type Options struct {
	Board     HardwareConfig
	Ref       transport.NodeRef
	Store     store.Driver
	Flash     flash.Driver
	Bus       canbus.Bus
	Listener  transport.Listener
	Indicator *watchdog.Indicator
	Firmware  hosted.Info
	// Runnables run beside the loop, e.g. announcers and peripherals.
	Runnables []fx.Runnable
	// Rand picks node addresses, defaults to a time seeded source.
	Rand func() byte
}

// Node is a booted node.
type Node struct {
	opts  Options
	board HardwareConfig

	store      *store.Store
	flash      flash.Driver
	guardian   *validity.Guardian
	watchdog   *watchdog.Watchdog
	timers     *timers.Service
	dispatcher *can.Dispatcher
	ledger     *ledger.Ledger
	code       *hosted.CodeSpace
	trampoline *trampoline.Trampoline
	port       *transport.Port
	session    *update.Session
	loop       *fx.Loop

	config    store.NodeConfig
	bootTime  time.Time
	conflicts int
	dirty     bool

	evictPending atomic.Bool
	traps        atomic.Uint32
	status       atomic.Pointer[Status]
	events       *ring.Ring[Event]
}

// Boot brings a node up. The hosted application init runs when the
// installed application is valid.
func Boot(opts Options) (*Node, error) {
	if opts.Store == nil || opts.Flash == nil || opts.Bus == nil || opts.Listener == nil {
		return nil, errors.New("node: store, flash, bus and listener are required")
	}
	board := opts.Board
	if board.Name == "" {
		board, _ = Board(DefaultBoard)
	}
	if opts.Indicator == nil {
		opts.Indicator = &watchdog.Indicator{}
	}
	if opts.Rand == nil {
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		opts.Rand = func() byte { return byte(src.Intn(256)) }
	}
	n := &Node{
		opts:     opts,
		board:    board,
		store:    store.New(opts.Store),
		flash:    opts.Flash,
		bootTime: time.Now(),
		events:   ring.New[Event](64),
	}
	glog.Infof("booting %s on %s", opts.Ref, board.Name)

	n.loadConfig()
	n.guardian = validity.CheckBootValidity(opts.Indicator, n.store, validity.WithAuthorCheck(n.readAuthor))
	n.watchdog = watchdog.New(board.Watchdog, opts.Indicator)
	n.timers = timers.New(board.Capacity.Timers, board.TickPeriod)
	n.dispatcher = can.NewDispatcher(opts.Bus, board.Capacity.Handlers+1)
	n.ledger = ledger.New(board.Capacity, n.timers).AddLayer(can.LayerL2, n.dispatcher)
	n.code = hosted.NewCodeSpace(opts.Flash, board.Flash)
	n.code.Bind(&hostedOS{n: n})
	table := &trampoline.FlashVectorTable{Flash: opts.Flash, Layout: board.Flash, Code: n.code}
	n.trampoline = trampoline.New(n.guardian, table).OnTrap(n.onInterruptTrap)
	n.port = transport.NewPort(opts.Listener)
	n.port.Handler = n.route
	n.session = update.New(update.Config{
		Flash:    opts.Flash,
		Layout:   board.Flash,
		Gate:     n.guardian,
		Ledger:   n.ledger,
		Watchdog: n.watchdog,
		Smoke:    n.smoke,
		Reply:    n.port,
	})

	n.loop = fx.NewLoop()
	n.loop.Watchdog = n.watchdog
	n.loop.
		AddController(fx.PrLvTop, fx.ControlFunc(n.trapStage)).
		AddController(fx.PrLvTimers, fx.TaskFunc(n.timers.Check)).
		Add(n.dispatcher, n.port).
		AddController(fx.PrLvApp, fx.ControlFunc(n.appStage)).
		AddController(fx.PrLvIdle, fx.ControlFunc(n.statusStage)).
		AddRunnable(n.watchdog, n.timers).
		AddRunnable(opts.Runnables...)

	if board.AddressClaim {
		if _, err := n.dispatcher.Register(ClaimID, 0x7ff, n.onClaim); err != nil {
			return nil, err
		}
		n.loop.PreRunAt(fx.PrLvProtocol, fx.ControlFunc(func(fx.ControlContext) error {
			return n.claimAddress()
		}))
	}

	if n.guardian.Valid() {
		glog.Info("calling application init")
		if err := n.code.CallInit(); err != nil {
			n.appTrap("init", err)
		}
	}
	n.emit(EventBoot, n.guardian.Valid(), "")
	n.snapshot()
	return n, nil
}

// Run runs the superloop until ctx is done or the watchdog bites.
func (n *Node) Run(ctx context.Context) error {
	return n.loop.Run(ctx)
}

// Name implements framework.Named.
func (n *Node) Name() string {
	return "node " + n.opts.Ref.Name()
}

// Interrupt raises a hardware interrupt, callable from any goroutine.
func (n *Node) Interrupt(src trampoline.Source) error {
	return n.trampoline.Fire(src)
}

// Guardian returns the validity owner.
func (n *Node) Guardian() *validity.Guardian {
	return n.guardian
}

// Watchdog returns the node watchdog.
func (n *Node) Watchdog() *watchdog.Watchdog {
	return n.watchdog
}

// Board returns the hardware config.
func (n *Node) Board() HardwareConfig {
	return n.board
}

// Ref returns the node identity.
func (n *Node) Ref() transport.NodeRef {
	return n.opts.Ref
}

func (n *Node) readAuthor() (string, error) {
	info, err := hosted.ReadInfo(n.flash, n.board.Flash.HandleAddr)
	return info.Author, err
}

func (n *Node) smoke() error {
	if err := n.code.CallInit(); err != nil {
		return err
	}
	return n.code.CallMain()
}

// trapStage acts on an interrupt handler trap before any application
// timer or handler gets to run again.
func (n *Node) trapStage(fx.ControlContext) error {
	if n.evictPending.Swap(false) {
		n.evict("trap in interrupt handler")
		n.emit(EventTrap, false, "interrupt handler")
	}
	return nil
}

func (n *Node) appStage(fx.ControlContext) error {
	if !n.guardian.Valid() {
		return nil
	}
	if err := n.code.CallMain(); err != nil {
		n.appTrap("main", err)
	}
	return nil
}

// appTrap recovers from a trap in application code running in the loop.
func (n *Node) appTrap(where string, err error) {
	n.traps.Add(1)
	glog.Errorf("trap in application %s: %v", where, err)
	if ierr := n.guardian.Invalidate("trap in " + where); ierr != nil {
		glog.Errorf("invalidate: %v", ierr)
	}
	n.evict("trap in " + where)
	n.emit(EventTrap, false, where+": "+err.Error())
}

// onInterruptTrap runs in interrupt context, the trampoline already
// invalidated, eviction is left to the loop.
func (n *Node) onInterruptTrap(src trampoline.Source, err error) {
	n.traps.Add(1)
	n.evictPending.Store(true)
	n.loop.TriggerNext()
}

func (n *Node) evict(reason string) {
	if err := n.ledger.EvictAll(); err != nil {
		glog.Errorf("evict (%s): %v", reason, err)
	}
}

func (n *Node) statusStage(ctx fx.ControlContext) error {
	if n.dirty || ctx.Iteration()%128 == 0 {
		n.snapshot()
	}
	return nil
}
