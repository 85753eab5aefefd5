package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/transport"
)

func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	require.NoError(t, rw.WritePacket([]byte{0x80}))
	require.Equal(t, []byte{0, 1, 0x80}, buf.Bytes())
	require.Error(t, rw.WritePacket(nil))
	require.Error(t, rw.WritePacket(make([]byte, transport.MaxPacketSize+1)))

	buf.Reset()
	buf.Write([]byte{0, 0})                  // empty
	buf.Write([]byte{0x02, 0x01})            // oversize header
	buf.Write(make([]byte, 0x201))           // oversize body
	buf.Write([]byte{0, 2, 0x02, 0x04})      // good
	buf.Write([]byte{0, 5, 0x03, 0x00, 0x01}) // truncated
	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x04}, pkt)
	_, err = rw.ReadPacket()
	require.Equal(t, io.ErrUnexpectedEOF, err)
	_, err = rw.ReadPacket()
	require.Equal(t, io.EOF, err)
}

func TestTCP(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan transport.PacketReadWriter, 1)
	go func() {
		rw, err := ln.Accept()
		if err == nil {
			accepted <- rw
		}
		close(accepted)
	}()
	client, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	require.NotNil(t, server)

	require.NoError(t, client.WritePacket(transport.Simple(transport.CodeConfigReq).Encode()))
	pkt, err := server.ReadPacket()
	require.NoError(t, err)
	msg, err := transport.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, transport.CodeConfigReq, msg.Code)
}
