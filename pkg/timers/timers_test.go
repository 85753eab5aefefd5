package timers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerExpiry(t *testing.T) {
	s := New(2, time.Millisecond)
	var fired []interface{}
	fn := func(id ID, data interface{}) { fired = append(fired, data) }

	a, err := s.Start(2, fn, "a")
	require.NoError(t, err)
	_, err = s.Start(3, fn, "b")
	require.NoError(t, err)
	_, err = s.Start(1, fn, "c")
	require.Equal(t, ErrNoTimer, err)

	s.Tick()
	require.Equal(t, 0, s.Check())
	require.True(t, s.Running(a))
	s.Tick()
	require.Equal(t, 1, s.Check())
	require.Equal(t, []interface{}{"a"}, fired)
	require.False(t, s.Running(a))
	require.Equal(t, ErrNotRunning, s.Cancel(a))

	// multiple pending ticks are consumed at once.
	s.Tick()
	s.Tick()
	require.Equal(t, 1, s.Check())
	require.Equal(t, []interface{}{"a", "b"}, fired)
}

func TestTimerCancel(t *testing.T) {
	s := New(1, time.Millisecond)
	id, err := s.Start(1, func(ID, interface{}) { t.Fatal("cancelled timer fired") }, nil)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(id))
	s.Tick()
	require.Equal(t, 0, s.Check())
	require.Equal(t, ErrNotRunning, s.Cancel(-1))
}

func TestRestartFromCallback(t *testing.T) {
	s := New(1, time.Millisecond)
	count := 0
	var fn ExpiryFunc
	fn = func(ID, interface{}) {
		count++
		_, err := s.Start(1, fn, nil)
		require.NoError(t, err)
	}
	_, err := s.Start(1, fn, nil)
	require.NoError(t, err)
	for n := 0; n < 3; n++ {
		s.Tick()
		s.Check()
	}
	require.Equal(t, 3, count)
}

func TestTicks(t *testing.T) {
	s := New(1, 0)
	require.Equal(t, DefaultTickPeriod, s.TickPeriod)
	require.Equal(t, uint32(1), s.Ticks(0))
	require.Equal(t, uint32(20), s.Ticks(100*time.Millisecond))
}
