package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"

	env "github.com/robotalks/nodeos/pkg/env/node"
	fx "github.com/robotalks/nodeos/pkg/framework"
	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/monitor"
	"github.com/robotalks/nodeos/pkg/node"
	"github.com/robotalks/nodeos/pkg/trampoline"
	"github.com/robotalks/nodeos/pkg/watchdog"

	_ "github.com/robotalks/nodeos/pkg/hosted/apps/faulty"
	_ "github.com/robotalks/nodeos/pkg/hosted/apps/heartbeat"
)

// Version is set at link time.
var Version = "dev"

var (
	irqs           string
	reportInterval = monitor.DefaultInterval
)

func init() {
	env.SetupFlags()
	flag.StringVar(&irqs, "irq", irqs, "Periodic interrupts, e.g. T2=100ms,ADC1=1s")
	flag.DurationVar(&reportInterval, "report-interval", reportInterval, "Status report interval")
}

type periodicIRQ struct {
	src    trampoline.Source
	period time.Duration
}

func parseIRQs(s string) ([]periodicIRQ, error) {
	var periodic []periodicIRQ
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		kv := strings.SplitN(item, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid irq %q, expect SOURCE=PERIOD", item)
		}
		src, err := trampoline.ParseSource(kv[0])
		if err != nil {
			return nil, err
		}
		if src.NodeOwned() {
			return nil, fmt.Errorf("irq %s is owned by the node", src)
		}
		period, err := time.ParseDuration(kv[1])
		if err != nil || period <= 0 {
			return nil, fmt.Errorf("invalid irq period %q", kv[1])
		}
		periodic = append(periodic, periodicIRQ{src: src, period: period})
	}
	return periodic, nil
}

func firmware() hosted.Info {
	return hosted.Info{
		Author:      "robotalks",
		Description: "nodeos simulated node",
		Version:     Version,
		URI:         "https://github.com/robotalks/nodeos",
	}
}

// supervise boots the node until stopped, a watchdog bite reboots it
// like a hardware reset.
func supervise(ctx context.Context, e *env.Env, periodic []periodicIRQ) error {
	for boots := 1; ; boots++ {
		n, err := e.Boot(node.Options{Firmware: firmware()})
		if err != nil {
			return err
		}
		glog.Infof("%s boot #%d, application valid: %v", n.Name(), boots, n.Guardian().Valid())

		var extras []fx.Runnable
		for _, p := range periodic {
			extras = append(extras, &node.Peripheral{Node: n, Source: p.src, Period: p.period})
		}
		if e.Announcer != nil {
			extras = append(extras, &monitor.Publisher{Source: n, Sink: e.Announcer, Interval: reportInterval})
		}
		bootCtx, cancel := context.WithCancel(ctx)
		r := fx.NewRunnerWith(bootCtx).Go(extras...)
		err = n.Run(bootCtx)
		cancel()
		if werr := r.Wait(); werr != nil {
			glog.Warningf("peripherals: %v", werr)
		}
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, watchdog.ErrBitten):
			glog.Warningf("%s reset by watchdog", n.Name())
		default:
			return err
		}
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	periodic, err := parseIRQs(irqs)
	if err != nil {
		glog.Exit(err)
	}
	e, err := env.NewConfig().NewEnv()
	if err != nil {
		glog.Exit(err)
	}
	defer e.Close()

	runner := fx.NewRunner().HandleSignals()
	ctx, cancel := context.WithCancel(runner.Context)
	runner.GoWith(ctx, e.Runnables()...)
	err = supervise(ctx, e, periodic)
	cancel()
	if err != nil {
		glog.Error(err)
	}
	if werr := runner.Wait(); werr != nil && err == nil {
		glog.Error(werr)
	}
}
