// Package heartbeat is a demo application which periodically announces
// the node on the bus and answers pings.
package heartbeat

import (
	"sync/atomic"
	"time"

	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/ledger"
	"github.com/robotalks/nodeos/pkg/trampoline"
)

// Frame identifiers.
const (
	HeartbeatID uint32 = 0x555
	PingID      uint32 = 0x556
	PongID      uint32 = 0x557
)

// Period is the heartbeat interval.
var Period = time.Second

// Name is the registered program name.
const Name = "heartbeat"

type app struct {
	os    hosted.OS
	beats byte
	boots byte
	ticks atomic.Uint32
}

var instance app

func (a *app) init(os hosted.OS) error {
	a.os, a.beats = os, 0
	a.ticks.Store(0)
	storage := os.Storage()
	boots, err := storage.Read(0)
	if err != nil {
		return err
	}
	if boots == 0xff {
		boots = 0
	}
	a.boots = boots + 1
	if err = storage.Write(0, a.boots); err != nil {
		return err
	}
	if _, err = os.RegisterL2Handler(PingID, 0x7ff, a.ping); err != nil {
		return err
	}
	_, err = os.StartTimer(Period, a.beat, nil)
	os.Logf("started, boot %d", a.boots)
	return err
}

func (a *app) main() error {
	return nil
}

func (a *app) beat(ledger.TimerHandle, interface{}) {
	a.beats++
	f, _ := can.NewFrame(HeartbeatID, []byte{a.os.NodeAddress(), a.os.IOAddress(), a.beats, a.boots})
	if err := a.os.SendFrame(f); err != nil {
		a.os.Logf("heartbeat: %v", err)
	}
	if _, err := a.os.StartTimer(Period, a.beat, nil); err != nil {
		a.os.Logf("restart timer: %v", err)
	}
}

func (a *app) ping(f canbus.Frame) {
	if f.Len > 0 && f.Data[0] != a.os.NodeAddress() {
		return
	}
	pong, _ := can.NewFrame(PongID, []byte{a.os.NodeAddress(), a.beats})
	a.os.SendFrame(pong)
}

func (a *app) tick() {
	a.ticks.Add(1)
}

// Ticks returns the number of T2 interrupts serviced.
func Ticks() uint32 {
	return instance.ticks.Load()
}

// Program is the linkable heartbeat application.
var Program = &hosted.Program{
	Name: Name,
	Info: hosted.Info{
		Author:      "robotalks",
		Description: "CAN heartbeat and ping responder",
		Version:     "1.0.0",
		URI:         "https://github.com/robotalks/nodeos",
	},
	Init: instance.init,
	Main: instance.main,
	ISRs: map[trampoline.Source]func(){
		trampoline.T2: instance.tick,
	},
}

func init() {
	hosted.Register(Program)
}
