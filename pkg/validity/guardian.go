package validity

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/store"
)

// ResetIndicator is the hardware flag set when the last reset was caused
// by the watchdog.
type ResetIndicator interface {
	WatchdogReset() bool
	ClearWatchdogReset()
}

// AuthorReader returns the author string of the installed image.
type AuthorReader func() (string, error)

// Option configures the Guardian.
type Option func(*Guardian)

// WithAuthorCheck additionally rejects images with an empty author string.
func WithAuthorCheck(read AuthorReader) Option {
	return func(g *Guardian) {
		g.author = read
	}
}

// Guardian owns the validity of the hosted application.
type Guardian struct {
	store  *store.Store
	author AuthorReader
	valid  atomic.Bool
}

// CheckBootValidity computes the validity at boot.
func CheckBootValidity(ind ResetIndicator, st *store.Store, opts ...Option) *Guardian {
	g := &Guardian{store: st}
	for _, opt := range opts {
		opt(g)
	}

	wdt := ind.WatchdogReset()
	ind.ClearWatchdogReset()
	if wdt {
		glog.Warning("reset by watchdog, application presumed faulty")
		if err := g.clearMagic(); err != nil {
			glog.Errorf("clear magic: %v", err)
		}
		glog.Info("application invalid")
		return g
	}

	v, err := FromStore(st)
	if err != nil {
		glog.Errorf("read magic: %v", err)
		glog.Info("application invalid")
		return g
	}
	if !v.Valid() {
		glog.Infof("application invalid: %s", v)
		return g
	}
	if g.author != nil {
		author, err := g.author()
		if err != nil || author == "" {
			glog.Warningf("application image has no author (%v), invalidated", err)
			if err := g.clearMagic(); err != nil {
				glog.Errorf("clear magic: %v", err)
			}
			return g
		}
	}
	g.valid.Store(true)
	glog.Info("application valid")
	return g
}

// Valid is safe to call from interrupt context.
func (g *Guardian) Valid() bool {
	return g.valid.Load()
}

// Invalidate drops the flag and clears the persisted magic, the magic
// must read back cleared.
func (g *Guardian) Invalidate(reason string) error {
	was := g.valid.Swap(false)
	if was {
		glog.Infof("application invalidated: %s", reason)
	}
	if err := g.clearMagic(); err != nil {
		glog.Errorf("invalidate: %v", err)
		return err
	}
	return nil
}

// Commit runs smoke and on success persists magic 1, then magic 2, and
// only then marks the application valid.
func (g *Guardian) Commit(smoke func() error) error {
	g.valid.Store(false)
	if smoke != nil {
		if err := smoke(); err != nil {
			glog.Errorf("commit rejected, smoke test: %v", err)
			return &ValidationError{Reason: "smoke test", Err: err}
		}
	}
	if err := g.store.Write(store.AddrMagic1, Magic); err != nil {
		glog.Errorf("commit: %v", err)
		return &ValidationError{Reason: "persist magic", Err: err}
	}
	if err := g.store.Write(store.AddrMagic2, MagicComplement); err != nil {
		glog.Errorf("commit: %v", err)
		return &ValidationError{Reason: "persist magic", Err: err}
	}
	v, err := FromStore(g.store)
	if err != nil {
		return &ValidationError{Reason: "read back magic", Err: err}
	}
	if !v.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("read back %s", v)}
	}
	g.valid.Store(true)
	glog.Info("application committed, valid")
	return nil
}

func (g *Guardian) clearMagic() error {
	if err := g.store.Write(store.AddrMagic1, 0); err != nil {
		return err
	}
	if err := g.store.Write(store.AddrMagic2, 0); err != nil {
		return err
	}
	m1, m2, err := g.store.Magic()
	if err != nil {
		return err
	}
	if m1 != 0 || m2 != 0 {
		return &ValidationError{Reason: fmt.Sprintf("magic reads back (0x%02x,0x%02x)", m1, m2)}
	}
	return nil
}
