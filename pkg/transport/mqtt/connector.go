package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/transport"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Connector finds nodes and connects the companion to them.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// Discover collects retained node meta until the timeout.
func (c *Connector) Discover(ctx context.Context) ([]transport.NodeMeta, error) {
	q := NewQueue(c.options, c.topicPrefix)
	if err := wait(q.Connect()); err != nil {
		return nil, err
	}
	defer q.Close()
	return collectMeta(ctx, q, c.DiscoverTimeout)
}

func collectMeta(ctx context.Context, q *Queue, dur time.Duration) (res []transport.NodeMeta, err error) {
	metaCh := make(chan transport.NodeMeta, 16)
	sub := q.Sub("+/+/meta", func(topic string, payload []byte) {
		items := strings.Split(topic, "/")
		if len(items) != 3 || len(payload) == 0 {
			return
		}
		var meta transport.NodeMeta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("bad meta on %s: %v", topic, err)
			return
		}
		meta.NodeRef = transport.NodeRef{Board: items[0], ID: items[1]}
		select {
		case metaCh <- meta:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case meta := <-metaCh:
			res = append(res, meta)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Conn is the companion end of a link to a node.
type Conn struct {
	*Link
}

// Close closes the link and the connection.
func (c *Conn) Close() error {
	err := c.Link.Close()
	c.Queue.Close()
	return err
}

// Connect connects to the node ref.
func (c *Connector) Connect(ctx context.Context, ref transport.NodeRef) (*Conn, error) {
	q := NewQueue(c.options, c.topicPrefix)
	if err := wait(q.Connect()); err != nil {
		return nil, err
	}
	return &Conn{Link: NewLink(q).ForCompanion(ref).Open()}, nil
}
