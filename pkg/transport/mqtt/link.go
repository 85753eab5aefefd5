package mqtt

import (
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/transport"
)

// ErrTimeout indicates the broker didn't complete an operation in time.
var ErrTimeout = errors.New("mqtt operation timeout")

// Link implements transport.PacketReadWriter over a pair of topics.
type Link struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh chan []byte
	done     chan struct{}
	once     sync.Once
	sub      *Subscription
}

// NewLink creates the Link.
func NewLink(q *Queue) *Link {
	return &Link{Queue: q, packetCh: make(chan []byte, transport.DefaultRxDepth), done: make(chan struct{})}
}

// WithTopics specifies the topics.
func (l *Link) WithTopics(sub, pub string) *Link {
	l.SubTopic, l.PubTopic = sub, pub
	return l
}

// ForNode sets topics using default convention for the node:
// SubTopic = name/cmd
// PubTopic = name/msg
func (l *Link) ForNode(ref transport.NodeRef) *Link {
	prefix := ref.Name()
	return l.WithTopics(prefix+"/cmd", prefix+"/msg")
}

// ForCompanion sets topics using default convention for the companion:
// SubTopic = name/msg
// PubTopic = name/cmd
func (l *Link) ForCompanion(ref transport.NodeRef) *Link {
	prefix := ref.Name()
	return l.WithTopics(prefix+"/msg", prefix+"/cmd")
}

// Open subscribes SubTopic.
func (l *Link) Open() *Link {
	l.sub = l.Queue.Sub(l.SubTopic, l.handleMsg)
	return l
}

// ReadPacket implements PacketReader.
func (l *Link) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-l.packetCh:
		return pkt, nil
	case <-l.done:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (l *Link) WritePacket(pkt []byte) error {
	select {
	case <-l.done:
		return io.ErrClosedPipe
	default:
	}
	return wait(l.Queue.PubWith(l.PubTopic, pkt, 1, false))
}

// Close unsubscribes and unblocks readers.
func (l *Link) Close() (err error) {
	l.once.Do(func() {
		close(l.done)
		if l.sub != nil {
			err = l.sub.Close()
		}
	})
	return
}

func (l *Link) handleMsg(_ string, payload []byte) {
	pkt := make([]byte, len(payload))
	copy(pkt, payload)
	select {
	case l.packetCh <- pkt:
	case <-l.done:
	default:
		glog.Warningf("link %s backlog full, drop packet", l.SubTopic)
	}
}
