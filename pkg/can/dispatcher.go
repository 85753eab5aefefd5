package can

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/framework"
	"github.com/robotalks/nodeos/pkg/ring"
)

// Handler receives frames in the loop.
type Handler func(canbus.Frame)

// HandlerID identifies a registered handler.
type HandlerID int

var (
	// ErrNoHandlerSlot is returned when all handler slots are used.
	ErrNoHandlerSlot = errors.New("no free L2 handler slot")
	// ErrNotRegistered is returned when unregistering an unknown handler.
	ErrNotRegistered = errors.New("handler not registered")
	// ErrTxFull is returned by Send when the transmit queue is full.
	ErrTxFull = errors.New("L2 tx queue full")
)

// Queue depths between the bus and the loop.
const (
	RxDepth = 32
	TxDepth = 32
)

type handlerSlot struct {
	active  bool
	match   canbus.FrameFilter
	handler Handler
}

// Dispatcher pumps received frames into handlers selected by filter/mask.
// Both directions are queued, the loop never touches the bus directly.
type Dispatcher struct {
	bus       canbus.Bus
	slots     []handlerSlot
	unhandled Handler
	rx        *ring.Ring[canbus.Frame]
	tx        *ring.Ring[canbus.Frame]
	txReady   chan struct{}
	received  atomic.Uint32
	sent      atomic.Uint32
}

// NewDispatcher creates a Dispatcher with capacity handler slots.
func NewDispatcher(bus canbus.Bus, capacity int) *Dispatcher {
	return &Dispatcher{
		bus:     bus,
		slots:   make([]handlerSlot, capacity),
		rx:      ring.New[canbus.Frame](RxDepth),
		tx:      ring.New[canbus.Frame](TxDepth),
		txReady: make(chan struct{}, 1),
	}
}

// Register adds a handler for frames where id&mask == filter&mask.
func (d *Dispatcher) Register(filter, mask uint32, h Handler) (HandlerID, error) {
	for n := range d.slots {
		if !d.slots[n].active {
			d.slots[n] = handlerSlot{active: true, match: canbus.ByMask(filter, mask), handler: h}
			glog.V(3).Infof("L2 handler %d registered filter=%03x mask=%03x", n, filter, mask)
			return HandlerID(n), nil
		}
	}
	return -1, ErrNoHandlerSlot
}

// Unregister removes a handler.
func (d *Dispatcher) Unregister(id HandlerID) error {
	if id < 0 || int(id) >= len(d.slots) || !d.slots[id].active {
		return ErrNotRegistered
	}
	d.slots[id] = handlerSlot{}
	glog.V(3).Infof("L2 handler %d unregistered", id)
	return nil
}

// SetUnhandled sets the callback for frames no handler accepted, nil
// restores the default which drops them.
func (d *Dispatcher) SetUnhandled(h Handler) {
	d.unhandled = h
}

// Registered returns the number of active handlers.
func (d *Dispatcher) Registered() int {
	count := 0
	for n := range d.slots {
		if d.slots[n].active {
			count++
		}
	}
	return count
}

// Send queues a frame for transmission, called from the loop.
func (d *Dispatcher) Send(f canbus.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if !d.tx.Push(f) {
		return ErrTxFull
	}
	select {
	case d.txReady <- struct{}{}:
	default:
	}
	return nil
}

// Received returns the number of frames received.
func (d *Dispatcher) Received() uint32 {
	return d.received.Load()
}

// Sent returns the number of frames put on the bus.
func (d *Dispatcher) Sent() uint32 {
	return d.sent.Load()
}

// Run receives frames until ctx is done, it plays the CAN RX interrupt
// and only pushes into the RX ring. Queued frames are transmitted from
// a separate goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go d.transmit(stop)
	return framework.RunWithContextCloser(ctx, d.bus, func() error {
		for {
			f, err := d.bus.Receive()
			if err != nil {
				return err
			}
			d.received.Add(1)
			d.rx.Push(f)
		}
	})
}

func (d *Dispatcher) transmit(stop <-chan struct{}) {
	for {
		select {
		case <-d.txReady:
		case <-stop:
			return
		}
		for {
			f, ok := d.tx.Pop()
			if !ok {
				break
			}
			glog.V(4).Infof("L2 tx %s", Format(f))
			if err := d.bus.Send(f); err != nil {
				glog.Errorf("L2 tx %s: %v", Format(f), err)
				if errors.Is(err, canbus.ErrClosed) {
					return
				}
				continue
			}
			d.sent.Add(1)
		}
	}
}

// Name implements framework.Named.
func (d *Dispatcher) Name() string {
	return "can-rx"
}

// AddToLoop implements framework.LoopAdder, frames are dispatched at the
// protocol stage.
func (d *Dispatcher) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvProtocol, framework.TaskFunc(d.Tasks)).AddRunnable(d)
}

// Tasks dispatches queued frames, called from the loop.
func (d *Dispatcher) Tasks() int {
	if n := d.rx.Dropped(); n > 0 {
		glog.Warningf("L2 rx overflow, %d frames dropped", n)
	}
	if n := d.tx.Dropped(); n > 0 {
		glog.Warningf("L2 tx overflow, %d frames dropped", n)
	}
	count := 0
	for {
		f, ok := d.rx.Pop()
		if !ok {
			return count
		}
		count++
		d.dispatch(f)
	}
}

// Inject queues a frame as if it was received, it follows the same
// producer rules as Run.
func (d *Dispatcher) Inject(f canbus.Frame) bool {
	return d.rx.Push(f)
}

func (d *Dispatcher) dispatch(f canbus.Frame) {
	glog.V(4).Infof("L2 rx %s", Format(f))
	handled := false
	for n := range d.slots {
		s := &d.slots[n]
		if s.active && s.match(f) {
			handled = true
			s.handler(f)
		}
	}
	if !handled && d.unhandled != nil {
		d.unhandled(f)
	}
}
