package serial

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func connPair(t *testing.T) (net.Conn, net.Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()
	a, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	b, ok := <-accepted
	require.True(t, ok)
	return a, b
}

func readPacket(t *testing.T, l *Link) []byte {
	type result struct {
		pkt []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pkt, err := l.ReadPacket()
		ch <- result{pkt, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.pkt
	case <-time.After(2 * time.Second):
		t.Fatal("read packet timeout")
	}
	return nil
}

func waitSyncs(t *testing.T, l *Link, n uint64) {
	deadline := time.Now().Add(2 * time.Second)
	for l.Syncs() <= n {
		if time.Now().After(deadline) {
			t.Fatal("link not resynchronized")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLinkExchange(t *testing.T) {
	ca, cb := connPair(t)
	a, b := New(ca).Open(), New(cb).Open()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.WritePacket([]byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, readPacket(t, b))
	require.NoError(t, b.WritePacket([]byte{syncREQ, syncACK}))
	require.Equal(t, []byte{syncREQ, syncACK}, readPacket(t, a))

	large := bytes.Repeat([]byte{0xa5, syncREQ}, 256)
	require.NoError(t, a.WritePacket(large))
	require.Equal(t, large, readPacket(t, b))
	require.Error(t, a.WritePacket(make([]byte, a.MaxSize+1)))

	// garbage on the wire forces a resync, later frames still get through.
	syncs := b.Syncs()
	_, err := ca.Write([]byte{0xf5, 0xf1})
	require.NoError(t, err)
	waitSyncs(t, b, syncs)
	require.NoError(t, a.WritePacket([]byte{7}))
	require.Equal(t, []byte{7}, readPacket(t, b))
}

func TestLinkClose(t *testing.T) {
	ca, cb := connPair(t)
	a, b := New(ca).Open(), New(cb).Open()
	defer b.Close()
	require.NoError(t, a.WritePacket([]byte{1}))
	readPacket(t, b)

	require.NoError(t, a.Close())
	_, err := a.ReadPacket()
	require.Error(t, err)
	require.Error(t, a.WritePacket([]byte{1}))
	// the peer sees the channel closed.
	_, err = b.ReadPacket()
	require.Error(t, err)
}

func TestLinkNotReady(t *testing.T) {
	ca, cb := connPair(t)
	defer cb.Close()
	a := New(ca)
	a.WaitReady = 50 * time.Millisecond
	a.Open()
	defer a.Close()
	require.Equal(t, ErrNotReady, a.WritePacket([]byte{1}))
}
