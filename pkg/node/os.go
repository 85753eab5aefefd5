package node

import (
	"time"

	"github.com/golang/glog"
	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/ledger"
	"github.com/robotalks/nodeos/pkg/store"
)

// hostedOS is the API lent to the hosted application. Everything it
// hands out goes through the ledger.
type hostedOS struct {
	n *Node
}

func (o *hostedOS) StartTimer(d time.Duration, fn ledger.TimerFunc, data interface{}) (ledger.TimerHandle, error) {
	return o.n.ledger.RegisterTimer(o.n.timers.Ticks(d), fn, data)
}

func (o *hostedOS) CancelTimer(h ledger.TimerHandle) error {
	return o.n.ledger.CancelTimer(h)
}

func (o *hostedOS) RegisterL2Handler(filter, mask uint32, fn can.Handler) (ledger.HandlerHandle, error) {
	return o.n.ledger.RegisterHandler(can.LayerL2, filter, mask, fn)
}

func (o *hostedOS) UnregisterL2Handler(h ledger.HandlerHandle) error {
	return o.n.ledger.UnregisterHandler(can.LayerL2, h)
}

func (o *hostedOS) SendFrame(f canbus.Frame) error {
	return o.n.dispatcher.Send(f)
}

func (o *hostedOS) Storage() *store.Region {
	return o.n.store.AppRegion()
}

func (o *hostedOS) NodeAddress() byte {
	return o.n.config.Address
}

func (o *hostedOS) IOAddress() byte {
	return o.n.config.IOAddress
}

func (o *hostedOS) Logf(format string, args ...interface{}) {
	glog.Infof("[app] "+format, args...)
}
