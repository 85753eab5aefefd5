package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/framework"
	"github.com/robotalks/nodeos/pkg/ring"
)

var (
	// ErrNotAttached is returned by Send when no companion is attached.
	ErrNotAttached = errors.New("companion not attached")
	// ErrTxFull is returned by Send when the transmit queue is full.
	ErrTxFull = errors.New("tx queue full")
)

const (
	// DefaultRxDepth is the number of messages buffered before the loop
	// picks them up.
	DefaultRxDepth = 16
	// DefaultTxDepth is the number of replies buffered for the transmitter.
	DefaultTxDepth = 16
)

// Port is the node end of the companion link. The receive goroutine only
// decodes packets into a ring, the loop drains it with Tasks. Replies go
// the other way: Send queues into a ring which a per-link transmitter
// writes out, so a stalled companion never holds up the loop.
type Port struct {
	// Handler is invoked from Tasks for each received message.
	Handler func(Message)

	listener Listener
	rx       *ring.Ring[Message]
	tx       *ring.Ring[Message]
	txReady  chan struct{}

	lock sync.Mutex
	link PacketReadWriter

	malformed atomic.Uint32
}

// NewPort creates a Port accepting links from l.
func NewPort(l Listener) *Port {
	return &Port{
		listener: l,
		rx:       ring.New[Message](DefaultRxDepth),
		tx:       ring.New[Message](DefaultTxDepth),
		txReady:  make(chan struct{}, 1),
	}
}

// Run implements framework.Runnable.
func (p *Port) Run(ctx context.Context) error {
	return framework.RunWithContextCloser(ctx, p, func() error {
		for {
			link, err := p.listener.Accept()
			if err != nil {
				return err
			}
			p.serve(link)
		}
	})
}

// Name implements framework.Named.
func (p *Port) Name() string {
	return "companion-rx"
}

// AddToLoop implements framework.LoopAdder, messages are handled at the
// transport stage.
func (p *Port) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvTransport, framework.TaskFunc(p.Tasks)).AddRunnable(p)
}

func (p *Port) serve(link PacketReadWriter) {
	// replies queued for a previous companion are stale.
	for {
		if _, ok := p.tx.Pop(); !ok {
			break
		}
	}
	stop, txDone := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(txDone)
		p.transmit(link, stop)
	}()
	p.lock.Lock()
	p.link = link
	p.lock.Unlock()
	glog.Info("companion attached")
	defer func() {
		p.lock.Lock()
		if p.link == link {
			p.link = nil
		}
		p.lock.Unlock()
		close(stop)
		closeLink(link)
		<-txDone
	}()
	for {
		pkt, err := link.ReadPacket()
		if err != nil {
			glog.Infof("companion detached: %v", err)
			return
		}
		msg, err := Decode(pkt)
		if err != nil {
			p.malformed.Add(1)
			glog.Errorf("drop packet: %v", err)
			continue
		}
		glog.V(3).Infof("rx %s", msg)
		if !p.rx.Push(msg) {
			glog.Warningf("rx queue full, drop %s", msg.Code)
		}
	}
}

func (p *Port) transmit(link PacketReadWriter, stop <-chan struct{}) {
	for {
		select {
		case <-p.txReady:
		case <-stop:
			return
		}
		for {
			msg, ok := p.tx.Pop()
			if !ok {
				break
			}
			glog.V(3).Infof("tx %s", msg)
			if err := link.WritePacket(msg.Encode()); err != nil {
				glog.Errorf("tx %s failed: %v", msg.Code, err)
				closeLink(link)
				return
			}
		}
	}
}

func closeLink(link PacketReadWriter) {
	if closer, ok := link.(io.Closer); ok {
		closer.Close()
	}
}

// Tasks dispatches queued messages, it returns the number handled.
func (p *Port) Tasks() int {
	var n int
	for {
		msg, ok := p.rx.Pop()
		if !ok {
			return n
		}
		n++
		if h := p.Handler; h != nil {
			h(msg)
		}
	}
}

// Send queues a message for the attached companion without blocking.
// It must only be called from the loop.
func (p *Port) Send(msg Message) error {
	if !p.Attached() {
		return ErrNotAttached
	}
	if !p.tx.Push(msg) {
		return ErrTxFull
	}
	select {
	case p.txReady <- struct{}{}:
	default:
	}
	return nil
}

// Attached tells whether a companion is attached.
func (p *Port) Attached() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.link != nil
}

// Malformed returns the number of dropped malformed packets.
func (p *Port) Malformed() uint32 {
	return p.malformed.Load()
}

// Dropped returns the number of received messages dropped on a full
// queue since the last call.
func (p *Port) Dropped() uint32 {
	return p.rx.Dropped()
}

// TxDropped returns the number of replies dropped on a full transmit
// queue since the last call.
func (p *Port) TxDropped() uint32 {
	return p.tx.Dropped()
}

// Close stops accepting and detaches the current link.
func (p *Port) Close() error {
	err := p.listener.Close()
	p.lock.Lock()
	link := p.link
	p.lock.Unlock()
	if link != nil {
		closeLink(link)
	}
	return err
}

type staticListener struct {
	ch        chan PacketReadWriter
	done      chan struct{}
	closeOnce sync.Once
}

// Static creates a Listener which yields rw once, for links which exist
// for the whole life of the node.
func Static(rw PacketReadWriter) Listener {
	l := &staticListener{ch: make(chan PacketReadWriter, 1), done: make(chan struct{})}
	l.ch <- rw
	return l
}

func (l *staticListener) Accept() (PacketReadWriter, error) {
	select {
	case <-l.done:
		return nil, ErrListenerClosed
	default:
	}
	select {
	case rw := <-l.ch:
		return rw, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *staticListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
