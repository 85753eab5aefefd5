package node

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/transport"
)

type chanListener struct {
	ch   chan transport.PacketReadWriter
	done chan struct{}
}

func (l *chanListener) Accept() (transport.PacketReadWriter, error) {
	select {
	case rw := <-l.ch:
		return rw, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	}
}

func (l *chanListener) Close() error {
	close(l.done)
	return nil
}

func TestLinksSurviveReboot(t *testing.T) {
	ln := &chanListener{ch: make(chan transport.PacketReadWriter, 2), done: make(chan struct{})}
	e := &Env{listener: ln, links: make(chan transport.PacketReadWriter)}
	go e.pumpLinks()

	first, _ := transport.Pipe()
	second, _ := transport.Pipe()
	ln.ch <- first
	ln.ch <- second

	boot1 := &bootListener{links: e.links, done: make(chan struct{})}
	rw, err := boot1.Accept()
	require.NoError(t, err)
	// the second link waits until the first is released.
	accepted := make(chan transport.PacketReadWriter, 1)
	boot2 := &bootListener{links: e.links, done: make(chan struct{})}
	require.NoError(t, boot1.Close())
	_, err = boot1.Accept()
	require.Equal(t, transport.ErrListenerClosed, err)
	go func() {
		rw, err := boot2.Accept()
		if err == nil {
			accepted <- rw
		}
	}()
	select {
	case <-accepted:
		t.Fatal("second link handed out while the first is open")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, rw.(io.Closer).Close())
	select {
	case rw = <-accepted:
		require.Equal(t, second, rw.(*trackedLink).PacketReadWriter)
	case <-time.After(time.Second):
		t.Fatal("second link not handed out")
	}

	require.NoError(t, rw.(io.Closer).Close())
	require.NoError(t, e.Close())
	_, err = (&bootListener{links: e.links, done: make(chan struct{})}).Accept()
	require.Equal(t, transport.ErrListenerClosed, err)
}
