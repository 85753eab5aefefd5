package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/store"
)

func TestMessageCodec(t *testing.T) {
	msg := WriteRow(0x18020, []byte{1, 2, 3})
	pkt := msg.Encode()
	require.Equal(t, []byte{0x03, 0x00, 0x01, 0x80, 0x20, 1, 2, 3}, pkt)
	dec, err := Decode(pkt)
	require.NoError(t, err)
	addr, err := dec.Addr()
	require.NoError(t, err)
	require.Equal(t, uint32(0x18020), addr)
	require.Equal(t, []byte{1, 2, 3}, dec.Row())

	_, err = Decode(nil)
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	_, err = Decode(make([]byte, MaxPacketSize+1))
	require.True(t, errors.As(err, &perr))

	_, err = Message{Code: CodeErasePage, Data: []byte{1, 2}}.Addr()
	require.True(t, errors.As(err, &perr))
	_, err = Message{Code: CodeWriteRow, Data: []byte{1, 2, 3, 4}}.Addr()
	require.True(t, errors.As(err, &perr))
	addr, err = ErasePage(0x400).Addr()
	require.NoError(t, err)
	require.Equal(t, uint32(0x400), addr)

	reason, op, err := Rejected(ReasonOutOfRange, CodeErasePage).Rejection()
	require.NoError(t, err)
	require.Equal(t, ReasonOutOfRange, reason)
	require.Equal(t, CodeErasePage, op)

	reason, detail, err := CommitFailed(ReasonSmokeTest, "trap").Failure()
	require.NoError(t, err)
	require.Equal(t, ReasonSmokeTest, reason)
	require.Equal(t, "trap", detail)

	require.Equal(t, "READY", CodeReady.String())
	require.Equal(t, "0x7f", Code(0x7f).String())
	require.True(t, CodeCommitFailed.IsReply())
	require.False(t, CodeReflashed.IsReply())
}

func TestConfigPayload(t *testing.T) {
	conf := store.NodeConfig{Address: 0x21, Baud: 4, IOAddress: 2, Description: "left wheel"}
	msg := ConfigMessage(CodeConfigUpdate, conf)
	require.Equal(t, byte(0), msg.Data[len(msg.Data)-1])
	dec, err := msg.Config()
	require.NoError(t, err)
	require.Equal(t, conf, dec)

	// the terminator is optional.
	dec, err = Message{Code: CodeConfigUpdate, Data: []byte{1, 2, 3, 'a', 'b'}}.Config()
	require.NoError(t, err)
	require.Equal(t, "ab", dec.Description)

	var perr *ProtocolError
	_, err = Message{Code: CodeConfigUpdate, Data: []byte{1, 2}}.Config()
	require.True(t, errors.As(err, &perr))
	_, err = Message{Code: CodeConfigUpdate, Data: []byte{1, 8, 3}}.Config()
	require.True(t, errors.As(err, &perr))
	long := ConfigMessage(CodeConfigUpdate, store.NodeConfig{Description: "a description which is way too long"})
	_, err = long.Config()
	require.True(t, errors.As(err, &perr))
}

func TestAppInfoPayload(t *testing.T) {
	valid, strs, err := AppInfoMessage(false).AppInfo()
	require.NoError(t, err)
	require.False(t, valid)
	require.Empty(t, strs)

	msg := AppInfoMessage(true, "me", "demo", "1.0", "")
	require.Equal(t, byte(1), msg.Data[0])
	valid, strs, err = msg.AppInfo()
	require.NoError(t, err)
	require.True(t, valid)
	require.Equal(t, []string{"me", "demo", "1.0", ""}, strs)

	require.Equal(t, []string{"a", "b"}, InfoMessage(CodeFirmwareInfoResp, "a", "b").Strings())
}

func TestPort(t *testing.T) {
	node, companion := Pipe()
	port := NewPort(Static(node))
	var got []Message
	port.Handler = func(msg Message) { got = append(got, msg) }
	require.False(t, port.Attached())
	require.Equal(t, ErrNotAttached, port.Send(Ready()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- port.Run(ctx) }()

	require.NoError(t, companion.WritePacket(nil))
	require.NoError(t, companion.WritePacket(Simple(CodeReprogram).Encode()))
	require.NoError(t, companion.WritePacket(ErasePage(0x400).Encode()))

	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		port.Tasks()
		time.Sleep(time.Millisecond)
	}
	require.Len(t, got, 2)
	require.Equal(t, CodeReprogram, got[0].Code)
	require.Equal(t, CodeErasePage, got[1].Code)
	require.Equal(t, uint32(1), port.Malformed())

	require.True(t, port.Attached())
	require.NoError(t, port.Send(Ready()))
	pkt, err := companion.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{byte(CodeReady)}, pkt)

	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("port didn't stop")
	}
	_, err = companion.ReadPacket()
	require.Error(t, err)
}

type stallLink struct {
	PacketReadWriter
	release chan struct{}
}

func (l *stallLink) WritePacket(pkt []byte) error {
	<-l.release
	return l.PacketReadWriter.WritePacket(pkt)
}

func (l *stallLink) Close() error {
	return l.PacketReadWriter.(io.Closer).Close()
}

func TestPortSendNeverBlocks(t *testing.T) {
	node, companion := Pipe()
	link := &stallLink{PacketReadWriter: node, release: make(chan struct{})}
	port := NewPort(Static(link))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- port.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !port.Attached() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.True(t, port.Attached())

	start := time.Now()
	var sent int
	var err error
	for i := 0; i < DefaultTxDepth*4; i++ {
		if err = port.Send(Ready()); err != nil {
			break
		}
		sent++
	}
	require.Equal(t, ErrTxFull, err)
	require.True(t, sent >= DefaultTxDepth)
	require.True(t, time.Since(start) < time.Second)
	require.True(t, port.TxDropped() > 0)

	close(link.release)
	for i := 0; i < sent; i++ {
		pkt, err := companion.ReadPacket()
		require.NoError(t, err)
		require.Equal(t, []byte{byte(CodeReady)}, pkt)
	}

	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("port didn't stop")
	}
}
