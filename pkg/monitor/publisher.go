// Package monitor publishes node status reports for remote observers.
package monitor

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/node"
	"github.com/robotalks/nodeos/pkg/transport"
)

// DefaultInterval is the reporting period.
const DefaultInterval = time.Second

// Source provides what is reported, usually a *node.Node.
type Source interface {
	Status() *node.Status
	NextEvent() (node.Event, bool)
	Meta() transport.NodeMeta
}

// Sink delivers reports, e.g. the MQTT announcer.
type Sink interface {
	PublishStatus(payload []byte) error
	Update(meta transport.NodeMeta) error
}

// Publisher reports periodically, the discovery meta is only refreshed
// when it changes.
type Publisher struct {
	Source   Source
	Sink     Sink
	Interval time.Duration

	lastMeta transport.NodeMeta
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "status-publisher"
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p.Publish()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Publish sends one report with all pending events.
func (p *Publisher) Publish() {
	report := &Report{}
	if s := p.Source.Status(); s != nil {
		report.Status = StatusFrom(s)
	}
	for {
		ev, ok := p.Source.NextEvent()
		if !ok {
			break
		}
		report.Events = append(report.Events, EventFrom(ev))
	}
	payload, err := report.Encode()
	if err != nil {
		glog.Errorf("encode status: %v", err)
		return
	}
	if err := p.Sink.PublishStatus(payload); err != nil {
		glog.Warningf("publish status: %v", err)
	}
	if meta := p.Source.Meta(); meta != p.lastMeta {
		if err := p.Sink.Update(meta); err != nil {
			glog.Warningf("update meta: %v", err)
			return
		}
		p.lastMeta = meta
	}
}
