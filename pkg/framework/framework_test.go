package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingFeeder struct{ feeds int }

func (f *countingFeeder) Feed() { f.feeds++ }

func TestStageOrder(t *testing.T) {
	var trace []string
	stage := func(name string) Controller {
		return ControlFunc(func(ControlContext) error {
			trace = append(trace, name)
			return nil
		})
	}
	feeder := &countingFeeder{}
	l := NewLoop()
	l.Watchdog = feeder
	l.AddController(PrLvApp, stage("app"))
	l.AddController(PrLvTimers, stage("timers"))
	l.AddController(PrLvTransport, stage("transport"))
	l.AddController(PrLvProtocol, stage("protocol"), ControlFunc(func(ctx ControlContext) error {
		if ctx.Iteration() == 0 {
			ctx.PostRun(stage("once"))
		}
		return errors.New("logged, not fatal")
	}))

	l.RunOnce(context.Background())
	l.RunOnce(context.Background())
	require.Equal(t, []string{
		"timers", "protocol", "once", "transport", "app",
		"timers", "protocol", "transport", "app",
	}, trace)
	require.Equal(t, 2, feeder.feeds)
	require.Equal(t, uint64(2), l.Iterations())
}

type stagedTask struct {
	level int
	trace *[]string
	name  string
}

func (s *stagedTask) AddToLoop(l *Loop) {
	l.AddController(s.level, ControlFunc(func(ControlContext) error {
		*s.trace = append(*s.trace, s.name)
		return nil
	}))
}

func TestLoopAdders(t *testing.T) {
	var trace []string
	l := NewLoop().Add(
		&stagedTask{level: PrLvIdle, trace: &trace, name: "idle"},
		&stagedTask{level: PrLvTop, trace: &trace, name: "top"},
		&stagedTask{level: PrLvTimers, trace: &trace, name: "timers"},
	)
	l.RunOnce(context.Background())
	require.Equal(t, []string{"top", "timers", "idle"}, trace)
}

func TestTaskFuncTriggers(t *testing.T) {
	l := NewLoop()
	work := 1
	l.AddController(PrLvProtocol, TaskFunc(func() int {
		n := work
		work = 0
		return n
	}))
	l.RunOnce(context.Background())
	select {
	case <-l.wakeUp():
	default:
		t.Fatal("next iteration not triggered")
	}
	l.RunOnce(context.Background())
	select {
	case <-l.wakeUp():
		t.Fatal("idle iteration triggered")
	default:
	}
}

func TestLoopStopsOnRunnerFailure(t *testing.T) {
	errBite := errors.New("bite")
	l := NewLoop()
	l.AddRunnable(NamedRun("wd", RunFunc(func(ctx context.Context) error {
		select {
		case <-time.After(10 * time.Millisecond):
			return errBite
		case <-ctx.Done():
			return ctx.Err()
		}
	})))
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	err := l.Run(context.Background())
	require.True(t, errors.Is(err, errBite))
	var rerr *RunnerError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "wd", rerr.Name)
	require.True(t, l.Iterations() > 0)
}

func TestLoopCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}))
	require.Equal(t, context.Canceled, l.Run(ctx))
}

func TestAggregatedError(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errA)
	require.Equal(t, "a", errs.Error())
	errs.Add(errB)
	err := errs.Aggregate()
	require.True(t, errors.Is(err, errB))
	require.Equal(t, 2, errs.Len())
	require.Contains(t, err.Error(), "Multiple errors:")
}

type closer struct {
	closed int
	ch     chan struct{}
}

func (c *closer) Close() error {
	if c.closed++; c.closed == 1 && c.ch != nil {
		close(c.ch)
	}
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	c := &closer{}
	require.NoError(t, RunWithContextCloser(context.Background(), c, func() error { return nil }))
	require.Equal(t, 1, c.closed)

	// a blocking call is released by closing.
	ctx, cancel := context.WithCancel(context.Background())
	c = &closer{ch: make(chan struct{})}
	cancel()
	err := RunWithContextCloser(ctx, c, func() error {
		<-c.ch
		return errors.New("closed")
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 1, c.closed)
}
