// Package watchdog provides the software watchdog which resets a node that
// stops feeding it.
package watchdog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultPeriod is the default timeout.
const DefaultPeriod = 2 * time.Second

// ErrBitten is returned by Run when the watchdog expires.
var ErrBitten = errors.New("watchdog bite")

// Indicator is the reset cause flag which survives a reboot, like the
// reset control register of the chip.
type Indicator struct {
	set atomic.Bool
}

// WatchdogReset tells whether the last reset was caused by the watchdog.
func (i *Indicator) WatchdogReset() bool {
	return i.set.Load()
}

// ClearWatchdogReset clears the flag.
func (i *Indicator) ClearWatchdogReset() {
	i.set.Store(false)
}

// SetWatchdogReset marks a watchdog reset.
func (i *Indicator) SetWatchdogReset() {
	i.set.Store(true)
}

// Watchdog expires when not fed within Period.
type Watchdog struct {
	Period    time.Duration
	Indicator *Indicator

	last  atomic.Int64
	feeds atomic.Uint64

	bitten    chan struct{}
	biteOnce  sync.Once
	clockFunc func() time.Time
}

// New creates a Watchdog, the first period starts now.
func New(period time.Duration, ind *Indicator) *Watchdog {
	if period <= 0 {
		period = DefaultPeriod
	}
	w := &Watchdog{
		Period:    period,
		Indicator: ind,
		bitten:    make(chan struct{}),
		clockFunc: time.Now,
	}
	w.Feed()
	return w
}

// Feed restarts the period.
func (w *Watchdog) Feed() {
	w.last.Store(w.clockFunc().UnixNano())
	w.feeds.Add(1)
}

// Feeds returns the number of feeds.
func (w *Watchdog) Feeds() uint64 {
	return w.feeds.Load()
}

// Expired tells whether the period elapsed without a feed.
func (w *Watchdog) Expired() bool {
	return w.clockFunc().UnixNano()-w.last.Load() > int64(w.Period)
}

// Bitten is closed when the watchdog bites.
func (w *Watchdog) Bitten() <-chan struct{} {
	return w.bitten
}

func (w *Watchdog) bite() {
	w.biteOnce.Do(func() {
		glog.Errorf("watchdog bite, not fed for %s", w.Period)
		if w.Indicator != nil {
			w.Indicator.SetWatchdogReset()
		}
		close(w.bitten)
	})
}

// Run implements framework.Runnable. It returns ErrBitten on expiry.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Period / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.Expired() {
				w.bite()
				return ErrBitten
			}
		}
	}
}

// Name implements framework.Named.
func (w *Watchdog) Name() string {
	return "watchdog"
}
