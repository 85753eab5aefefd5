package can

import (
	"context"
	"testing"
	"time"

	"github.com/notnil/canbus"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	f, err := NewFrame(0x555, []byte{1, 2})
	require.NoError(t, err)
	require.False(t, f.Extended)
	require.Equal(t, []byte{1, 2}, Payload(f))
	require.Equal(t, "555#01 02", Format(f))

	f, err = NewFrame(0x1234, nil)
	require.NoError(t, err)
	require.True(t, f.Extended)

	_, err = NewFrame(0x20000000, nil)
	require.Equal(t, canbus.ErrInvalidID, err)
	_, err = NewFrame(1, make([]byte, 9))
	require.Equal(t, canbus.ErrInvalidLen, err)
}

func TestBaudRate(t *testing.T) {
	require.Equal(t, "250K", DefaultBaud.String())
	require.False(t, NoBaud.Valid())
	b, err := ParseBaudRate("1M")
	require.NoError(t, err)
	require.Equal(t, Baud1M, b)
	_, err = ParseBaudRate("2M")
	require.Error(t, err)
}

func TestDispatch(t *testing.T) {
	d := NewDispatcher(canbus.NewLoopbackBus().Open(), 2)
	var got []uint32
	var unhandled []uint32
	_, err := d.Register(0x100, 0x700, func(f canbus.Frame) { got = append(got, f.ID) })
	require.NoError(t, err)
	id, err := d.Register(0x555, 0x7ff, func(f canbus.Frame) { got = append(got, f.ID) })
	require.NoError(t, err)
	_, err = d.Register(0, 0, func(canbus.Frame) {})
	require.Equal(t, ErrNoHandlerSlot, err)
	require.Equal(t, 2, d.Registered())

	d.SetUnhandled(func(f canbus.Frame) { unhandled = append(unhandled, f.ID) })
	for _, id := range []uint32{0x123, 0x555, 0x200} {
		require.True(t, d.Inject(canbus.Frame{ID: id}))
	}
	require.Equal(t, 3, d.Tasks())
	require.Equal(t, []uint32{0x123, 0x555}, got)
	require.Equal(t, []uint32{0x200}, unhandled)

	require.NoError(t, d.Unregister(id))
	require.Equal(t, ErrNotRegistered, d.Unregister(id))
	d.SetUnhandled(nil)
	d.Inject(canbus.Frame{ID: 0x555})
	require.Equal(t, 1, d.Tasks())
	require.Len(t, got, 2)
}

func TestDispatcherReceivesFromBus(t *testing.T) {
	bus := canbus.NewLoopbackBus()
	peer := bus.Open()
	defer peer.Close()
	d := NewDispatcher(bus.Open(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	f, err := NewFrame(0x42, []byte{7})
	require.NoError(t, err)
	require.NoError(t, peer.Send(f))

	deadline := time.Now().Add(time.Second)
	for d.Received() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	var got []canbus.Frame
	d.SetUnhandled(func(f canbus.Frame) { got = append(got, f) })
	require.Equal(t, 1, d.Tasks())
	require.Equal(t, []canbus.Frame{f}, got)

	require.NoError(t, d.Send(f))
	rx, err := peer.Receive()
	require.NoError(t, err)
	require.Equal(t, f, rx)
	require.Equal(t, uint32(1), d.Sent())

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestSendNeverBlocks(t *testing.T) {
	bus := canbus.NewLoopbackBus()
	// a peer which never reads fills up and stalls the transmitter.
	stalled := bus.Open()
	defer stalled.Close()
	d := NewDispatcher(bus.Open(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	f, err := NewFrame(0x42, nil)
	require.NoError(t, err)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err = d.Send(f); err != nil {
			break
		}
	}
	require.Equal(t, ErrTxFull, err)
	require.True(t, time.Since(start) < time.Second)

	_, err = NewFrame(0x800, make([]byte, 9))
	require.Equal(t, canbus.ErrInvalidLen, err)
	require.Equal(t, canbus.ErrInvalidID, d.Send(canbus.Frame{ID: 0x800}))
}
