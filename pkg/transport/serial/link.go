// Package serial carries packets over a point-to-point byte channel such
// as a UART. Both ends synchronize sequence numbers before exchanging
// frames, a lost or corrupted byte makes the receiver resynchronize and
// drop the frame in progress.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/transport"
)

// Defaults of Link.
const (
	DefaultTimeout   = 100 * time.Millisecond
	DefaultWaitReady = 2 * time.Second
)

var (
	// ErrNotReady indicates the link didn't synchronize in time.
	ErrNotReady = errors.New("serial link not synchronized")
)

// Link implements transport.PacketReadWriter.
type Link struct {
	// Timeout restarts synchronization when the peer goes quiet in the
	// middle of a sync or a frame.
	Timeout time.Duration
	// WaitReady is how long WritePacket waits for synchronization.
	WaitReady time.Duration
	MaxSize   int

	rw      io.ReadWriter
	seq     Seq
	state   SyncState
	readyCh chan struct{}
	lock    sync.Mutex
	syncs   atomic.Uint64

	parser    Parser
	syncTimer <-chan time.Time

	frames    chan []byte
	done      chan struct{}
	failed    chan struct{}
	err       error
	closeOnce sync.Once
	onClose   func()
}

// New creates a Link over rw, call Open to start it.
func New(rw io.ReadWriter) *Link {
	return &Link{
		Timeout:   DefaultTimeout,
		WaitReady: DefaultWaitReady,
		MaxSize:   transport.MaxPacketSize,
		rw:        rw,
		seq:       NewSeq(),
		readyCh:   make(chan struct{}),
		frames:    make(chan []byte, 16),
		done:      make(chan struct{}),
		failed:    make(chan struct{}),
	}
}

// Open starts synchronizing and receiving.
func (l *Link) Open() *Link {
	l.parser.MaxSize = l.MaxSize
	go l.run()
	return l
}

// State gets the sync state.
func (l *Link) State() SyncState {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state
}

// Syncs counts how many times the link became ready.
func (l *Link) Syncs() uint64 {
	return l.syncs.Load()
}

// ReadPacket implements transport.PacketReader.
func (l *Link) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-l.frames:
		return pkt, nil
	case <-l.failed:
		return nil, l.err
	case <-l.done:
		return nil, io.EOF
	}
}

// WritePacket implements transport.PacketWriter, it waits for
// synchronization up to WaitReady.
func (l *Link) WritePacket(pkt []byte) error {
	if len(pkt) > l.MaxSize {
		return fmt.Errorf("packet size %d exceeds %d", len(pkt), l.MaxSize)
	}
	timer := time.NewTimer(l.WaitReady)
	defer timer.Stop()
	for {
		l.lock.Lock()
		if l.state.IsReady() {
			frame := Frame{Seq: l.seq, Data: pkt}
			_, err := l.rw.Write(frame.Bytes())
			if err == nil {
				l.seq = l.seq.Next()
			}
			l.lock.Unlock()
			return err
		}
		ready := l.readyCh
		l.lock.Unlock()
		select {
		case <-ready:
		case <-l.failed:
			return l.err
		case <-l.done:
			return io.ErrClosedPipe
		case <-timer.C:
			return ErrNotReady
		}
	}
}

// Close implements io.Closer, the underlying channel is closed if it is
// an io.Closer.
func (l *Link) Close() (err error) {
	l.closeOnce.Do(func() {
		close(l.done)
		if c, ok := l.rw.(io.Closer); ok {
			err = c.Close()
		}
		if l.onClose != nil {
			l.onClose()
		}
	})
	return
}

func (l *Link) run() {
	err := l.apply(l.parser.Reset())
	dataCh, errCh := make(chan []byte), make(chan error, 1)
	if err == nil {
		go l.readLoop(dataCh, errCh)
	}
	for err == nil {
		select {
		case data := <-dataCh:
			for _, b := range data {
				if err = l.apply(l.parser.Parse(b)); err != nil {
					break
				}
			}
		case err = <-errCh:
		case <-l.syncTimer:
			err = l.apply(l.parser.Timeout())
		case <-l.done:
			return
		}
	}
	select {
	case <-l.done:
	default:
		glog.V(2).Infof("serial link failed: %v", err)
	}
	l.err = err
	close(l.failed)
}

func (l *Link) readLoop(dataCh chan []byte, errCh chan error) {
	buf := make([]byte, 256)
	for {
		n, err := l.rw.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case dataCh <- data:
			case <-l.done:
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (l *Link) apply(pr ParseResult) (err error) {
	l.lock.Lock()
	if ready := pr.State.IsReady(); ready != l.state.IsReady() {
		if ready {
			close(l.readyCh)
			l.syncs.Add(1)
		} else {
			l.readyCh = make(chan struct{})
		}
	}
	l.state = pr.State
	if pr.Sync != 0 {
		_, err = l.rw.Write([]byte{pr.Sync, byte(l.seq)})
	}
	l.lock.Unlock()
	if err != nil {
		return
	}

	switch pr.WhatAboutTimer() {
	case TimerRestart:
		l.syncTimer = time.After(l.Timeout)
	case TimerStop:
		l.syncTimer = nil
	}

	if pr.Frame != nil {
		if len(pr.Frame.Data) == 0 {
			glog.V(3).Info("skip empty frame")
			return
		}
		select {
		case l.frames <- pr.Frame.Data:
		case <-l.done:
		}
	}
	return
}

// Dial opens a serial device.
func Dial(path string) (*Link, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return New(f).Open(), nil
}

// Listener hands out one link at a time, the device is reopened for
// the next link after the current one is closed.
type Listener struct {
	Path string

	inUse     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Listen checks the device exists and creates a Listener.
func Listen(path string) (*Listener, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &Listener{Path: path, inUse: make(chan struct{}, 1), done: make(chan struct{})}, nil
}

// Accept implements transport.Listener.
func (l *Listener) Accept() (transport.PacketReadWriter, error) {
	select {
	case l.inUse <- struct{}{}:
	case <-l.done:
		return nil, transport.ErrListenerClosed
	}
	f, err := os.OpenFile(l.Path, os.O_RDWR, 0)
	if err != nil {
		<-l.inUse
		return nil, err
	}
	link := New(f)
	link.onClose = func() { <-l.inUse }
	return link.Open(), nil
}

// Close implements transport.Listener.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
