package companion

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/hosted"
)

// Phase is a step of a field update.
type Phase int

// Update phases.
const (
	PhaseArming Phase = iota
	PhaseErasing
	PhaseWriting
	PhaseCommitting
	PhaseComplete
)

var phaseNames = [...]string{"arming", "erasing", "writing", "committing", "complete"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Progress is reported after each step.
type Progress struct {
	Phase   Phase
	Done    int
	Total   int
	Elapsed time.Duration
}

// Flasher installs an image on a node.
type Flasher struct {
	Client *Client
	Layout flash.Layout
	// Progress is optional.
	Progress func(Progress)
}

// Flash runs a complete field update. Pages are erased before any row is
// written, the node only starts the new application once committed.
func (f *Flasher) Flash(ctx context.Context, img *hosted.Image) error {
	if err := img.Check(f.Layout); err != nil {
		return err
	}
	start := time.Now()
	report := func(phase Phase, done, total int) {
		if f.Progress != nil {
			f.Progress(Progress{Phase: phase, Done: done, Total: total, Elapsed: time.Since(start)})
		}
	}

	report(PhaseArming, 0, 1)
	if err := f.Client.Reprogram(ctx); err != nil {
		return fmt.Errorf("reprogram: %w", err)
	}
	pages := img.Pages(f.Layout)
	for n, page := range pages {
		if err := f.Client.ErasePage(ctx, page); err != nil {
			return fmt.Errorf("erase page 0x%05x: %w", page, err)
		}
		report(PhaseErasing, n+1, len(pages))
	}
	for n, row := range img.Rows {
		addr := img.Addr(row)
		if err := f.Client.WriteRow(ctx, addr, row.Data); err != nil {
			return fmt.Errorf("write row 0x%05x: %w", addr, err)
		}
		report(PhaseWriting, n+1, len(img.Rows))
	}
	report(PhaseCommitting, 0, 1)
	if err := f.Client.Commit(ctx); err != nil {
		return err
	}
	report(PhaseComplete, 1, 1)
	glog.Infof("installed %s: %d pages, %d rows in %s", img.Name, len(pages), len(img.Rows), time.Since(start))
	return nil
}
