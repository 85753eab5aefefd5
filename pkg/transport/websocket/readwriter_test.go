package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/transport"
)

func TestListenAndDial(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", DefaultPath)
	require.NoError(t, err)
	defer ln.Close()

	client, err := Dial("ws://" + ln.Addr().String() + DefaultPath)
	require.NoError(t, err)
	defer client.Close()

	server, err := ln.Accept()
	require.NoError(t, err)

	require.NoError(t, client.WritePacket(transport.ErasePage(0x18000).Encode()))
	pkt, err := server.ReadPacket()
	require.NoError(t, err)
	msg, err := transport.Decode(pkt)
	require.NoError(t, err)
	addr, err := msg.Addr()
	require.NoError(t, err)
	require.Equal(t, uint32(0x18000), addr)

	require.NoError(t, server.WritePacket(transport.Ready().Encode()))
	pkt, err = client.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{0x80}, pkt)

	require.NoError(t, ln.Close())
	_, err = ln.Accept()
	require.Equal(t, transport.ErrListenerClosed, err)
}
