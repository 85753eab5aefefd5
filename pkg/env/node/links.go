package node

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/transport"
	"github.com/robotalks/nodeos/pkg/transport/mqtt"
)

// pumpLinks hands accepted links to whichever boot is running. The next
// link is only accepted once the current one is closed.
func (e *Env) pumpLinks() {
	defer close(e.links)
	for {
		rw, err := e.listener.Accept()
		if err != nil {
			if err != transport.ErrListenerClosed {
				glog.Errorf("accept companion: %v", err)
			}
			return
		}
		link := &trackedLink{PacketReadWriter: rw, closed: make(chan struct{})}
		e.links <- link
		<-link.closed
	}
}

type trackedLink struct {
	transport.PacketReadWriter
	closed chan struct{}
	once   sync.Once
}

func (l *trackedLink) Close() (err error) {
	if c, ok := l.PacketReadWriter.(interface{ Close() error }); ok {
		err = c.Close()
	}
	l.once.Do(func() { close(l.closed) })
	return
}

// bootListener lives as long as one boot, closing it leaves the real
// listener open for the next boot.
type bootListener struct {
	links <-chan transport.PacketReadWriter
	done  chan struct{}
	once  sync.Once
}

func (l *bootListener) Accept() (transport.PacketReadWriter, error) {
	select {
	case <-l.done:
		return nil, transport.ErrListenerClosed
	default:
	}
	select {
	case rw, ok := <-l.links:
		if !ok {
			return nil, transport.ErrListenerClosed
		}
		return rw, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	}
}

func (l *bootListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// mqttListener opens a fresh node link on the announcer connection for
// every Accept.
type mqttListener struct {
	announcer *mqtt.Announcer
	done      chan struct{}
	once      sync.Once
}

func (l *mqttListener) Accept() (transport.PacketReadWriter, error) {
	select {
	case <-l.done:
		return nil, transport.ErrListenerClosed
	default:
		return l.announcer.Link(), nil
	}
}

func (l *mqttListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
