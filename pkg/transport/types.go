package transport

import (
	"errors"
	"time"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Listener yields companion links on the node side.
// Accept blocks until a link is attached or the listener is closed.
type Listener interface {
	Accept() (PacketReadWriter, error)
	Close() error
}

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("listener closed")

// NodeRef identifies a node.
type NodeRef struct {
	Board string `json:"board"`
	ID    string `json:"id"`
}

// Name returns the name used in topics and logs.
func (r NodeRef) Name() string {
	return r.Board + "/" + r.ID
}

// String implements fmt.Stringer.
func (r NodeRef) String() string {
	return r.Name()
}

// NodeMeta is the announcement of a node.
type NodeMeta struct {
	NodeRef
	Address     byte      `json:"address"`
	Baud        string    `json:"baud"`
	Description string    `json:"description,omitempty"`
	Valid       bool      `json:"valid"`
	Application string    `json:"application,omitempty"`
	Boot        time.Time `json:"boot"`
}
