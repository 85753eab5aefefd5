package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	w := New(time.Second, nil)
	w.clockFunc = func() time.Time { return now }
	w.Feed()
	require.False(t, w.Expired())
	now = now.Add(900 * time.Millisecond)
	require.False(t, w.Expired())
	w.Feed()
	now = now.Add(900 * time.Millisecond)
	require.False(t, w.Expired())
	now = now.Add(200 * time.Millisecond)
	require.True(t, w.Expired())
	require.Equal(t, uint64(3), w.Feeds())
}

func TestBite(t *testing.T) {
	ind := &Indicator{}
	w := New(20*time.Millisecond, ind)
	err := w.Run(context.Background())
	require.Equal(t, ErrBitten, err)
	require.True(t, ind.WatchdogReset())
	select {
	case <-w.Bitten():
	default:
		t.Fatal("bitten not closed")
	}
	ind.ClearWatchdogReset()
	require.False(t, ind.WatchdogReset())
}

func TestFedWatchdogKeepsRunning(t *testing.T) {
	ind := &Indicator{}
	w := New(40*time.Millisecond, ind)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.Feed()
			}
		}
	}()
	err := w.Run(ctx)
	close(stop)
	require.Equal(t, context.DeadlineExceeded, err)
	require.False(t, ind.WatchdogReset())
}
