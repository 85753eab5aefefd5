package node

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/trampoline"
)

// Peripheral raises an interrupt periodically, like an on-chip timer or
// a sampling ADC.
type Peripheral struct {
	Node   *Node
	Source trampoline.Source
	Period time.Duration
}

// Name implements framework.Named.
func (p *Peripheral) Name() string {
	return "irq-" + p.Source.String()
}

// Run implements framework.Runnable.
func (p *Peripheral) Run(ctx context.Context) error {
	if !p.Source.Valid() || p.Source.NodeOwned() {
		return trampoline.ErrInvalidSource
	}
	ticker := time.NewTicker(p.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// traps are recovered by the node.
			if err := p.Node.Interrupt(p.Source); err != nil {
				glog.V(2).Infof("%s: %v", p.Name(), err)
			}
		}
	}
}
