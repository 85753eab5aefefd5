// Package faulty provides misbehaving applications which pass the smoke
// test and fail later, for exercising node recovery.
package faulty

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/ledger"
	"github.com/robotalks/nodeos/pkg/trampoline"
)

// Program names.
const (
	WedgeName   = "wedge"
	CrashName   = "crash"
	FragileName = "fragile"
)

// FragileID is the frame identifier the fragile application listens on.
const FragileID = 0x6f0

var (
	// Stall is how long the wedge application blocks main.
	Stall = 10 * time.Second
	// CrashAfter is the number of main calls before crash fails.
	CrashAfter int32 = 100
)

var (
	wedgeCalls atomic.Int32
	crashCalls atomic.Int32

	errCrashed = errors.New("simulated crash")
)

var info = hosted.Info{
	Author:      "robotalks",
	Description: "fault injection",
	Version:     "0.0.1",
}

// Wedge blocks in main on its second call, the watchdog bites.
var Wedge = &hosted.Program{
	Name: WedgeName,
	Info: info,
	Init: func(os hosted.OS) error {
		wedgeCalls.Store(0)
		os.Logf("wedge armed")
		return nil
	},
	Main: func() error {
		if wedgeCalls.Add(1) == 2 {
			time.Sleep(Stall)
		}
		return nil
	},
}

// Crash fails main after CrashAfter calls.
var Crash = &hosted.Program{
	Name: CrashName,
	Info: info,
	Init: func(os hosted.OS) error {
		crashCalls.Store(0)
		return nil
	},
	Main: func() error {
		if crashCalls.Add(1) > CrashAfter {
			return errCrashed
		}
		return nil
	},
}

// Fragile holds a timer and a handler and faults in its T2 interrupt
// handler.
var Fragile = &hosted.Program{
	Name: FragileName,
	Info: info,
	Init: func(os hosted.OS) error {
		if _, err := os.RegisterL2Handler(FragileID, 0x7ff, func(canbus.Frame) {}); err != nil {
			return err
		}
		_, err := os.StartTimer(time.Hour, func(ledger.TimerHandle, interface{}) {}, nil)
		return err
	},
	Main: func() error { return nil },
	ISRs: map[trampoline.Source]func(){
		trampoline.T2: func() { panic("bad pointer") },
	},
}

func init() {
	hosted.Register(Wedge)
	hosted.Register(Crash)
	hosted.Register(Fragile)
}
