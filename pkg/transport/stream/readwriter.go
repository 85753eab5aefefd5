// Package stream carries packets over a byte stream, each packet prefixed
// by its 2-byte big-endian length.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/transport"
)

// ReadWriter implements transport.PacketReadWriter.
// Zero-length and oversize packets are skipped on read.
type ReadWriter struct {
	io.ReadWriter

	MaxSize int
	wlock   sync.Mutex
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s, MaxSize: transport.MaxPacketSize}
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	for {
		var size uint16
		if err := binary.Read(p.ReadWriter, binary.BigEndian, &size); err != nil {
			return nil, err
		}
		if size == 0 {
			glog.V(3).Info("skip empty packet")
			continue
		}
		if int(size) > p.MaxSize {
			glog.Warningf("skip oversize packet of %d bytes", size)
			if _, err := io.CopyN(io.Discard, p.ReadWriter, int64(size)); err != nil {
				return nil, err
			}
			continue
		}
		pkt := make([]byte, size)
		if _, err := io.ReadFull(p.ReadWriter, pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) == 0 || len(pkt) > p.MaxSize {
		return fmt.Errorf("invalid packet size %d", len(pkt))
	}
	buf := make([]byte, 2+len(pkt))
	binary.BigEndian.PutUint16(buf, uint16(len(pkt)))
	copy(buf[2:], pkt)
	p.wlock.Lock()
	defer p.wlock.Unlock()
	_, err := p.Write(buf)
	return err
}

// Close closes the underlying stream if it's closable.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Listener accepts companion links over TCP.
type Listener struct {
	net.Listener
}

// Listen listens on a TCP address.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: ln}, nil
}

// Accept implements transport.Listener.
func (l *Listener) Accept() (transport.PacketReadWriter, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	glog.Infof("companion connected from %s", conn.RemoteAddr())
	return New(conn), nil
}

// Dial connects to a node listening on addr.
func Dial(addr string) (*ReadWriter, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
