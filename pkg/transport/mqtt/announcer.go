package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/transport"
)

// Announcer keeps the retained meta of a node up to date and owns the
// node side MQTT connection.
type Announcer struct {
	Queue *Queue
	Ref   transport.NodeRef

	lock sync.Mutex
	meta []byte
}

func metaTopic(ref transport.NodeRef) string {
	return ref.Name() + "/meta"
}

func statusTopic(ref transport.NodeRef) string {
	return ref.Name() + "/status"
}

// NewAnnouncer creates an Announcer. The broker clears the meta through
// the will when the node disappears.
func NewAnnouncer(brokerURL string, meta transport.NodeMeta) (*Announcer, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+metaTopic(meta.NodeRef), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("nodeos:" + meta.Name())
	}
	a := &Announcer{Queue: NewQueue(opts, topicPrefix), Ref: meta.NodeRef}
	if err = a.setMeta(meta); err != nil {
		return nil, err
	}
	a.Queue.OnConnect = func(*Queue) { a.publishMeta() }
	return a, nil
}

// Link opens the node end of the companion link.
func (a *Announcer) Link() *Link {
	return NewLink(a.Queue).ForNode(a.Ref).Open()
}

func (a *Announcer) setMeta(meta transport.NodeMeta) error {
	encoded, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	a.lock.Lock()
	a.meta = encoded
	a.lock.Unlock()
	return nil
}

// Update replaces the announced meta.
func (a *Announcer) Update(meta transport.NodeMeta) error {
	meta.NodeRef = a.Ref
	if err := a.setMeta(meta); err != nil {
		return err
	}
	if a.Queue.Client.IsConnected() {
		a.publishMeta()
	}
	return nil
}

// PublishStatus publishes a status event.
func (a *Announcer) PublishStatus(payload []byte) error {
	if !a.Queue.Client.IsConnected() {
		return nil
	}
	return wait(a.Queue.Pub(statusTopic(a.Ref), payload))
}

// Run implements Runnable.
func (a *Announcer) Run(ctx context.Context) error {
	if err := wait(a.Queue.Connect()); err != nil {
		glog.Errorf("mqtt connect: %v", err)
	}
	<-ctx.Done()
	a.Queue.PubWith(metaTopic(a.Ref), nil, 1, true).WaitTimeout(PublishTimeout)
	a.Queue.Close()
	return ctx.Err()
}

// Name implements framework.Named.
func (a *Announcer) Name() string {
	return "mqtt-announcer"
}

func (a *Announcer) publishMeta() {
	a.lock.Lock()
	meta := a.meta
	a.lock.Unlock()
	a.Queue.PubWith(metaTopic(a.Ref), meta, 1, true)
}
