// Package websocket carries packets as binary websocket messages.
package websocket

import (
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/nodeos/pkg/transport"
)

// DefaultPath is the HTTP path serving the companion link.
const DefaultPath = "/companion"

// ReadWriter implements PacketReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close closes the connection.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Dial connects to the node serving url, e.g. ws://host:port/companion.
func Dial(url string) (*ReadWriter, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// served keeps the handler goroutine alive until the link is closed.
type served struct {
	*ReadWriter
	closed chan struct{}
	once   sync.Once
}

func (s *served) Close() error {
	err := s.ReadWriter.Close()
	s.once.Do(func() { close(s.closed) })
	return err
}

// Listener accepts companion links over websocket.
type Listener struct {
	ln     net.Listener
	server *http.Server
	conns  chan *served
	done   chan struct{}
	once   sync.Once
}

// Listen serves websocket links on addr at path.
func Listen(addr, path string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{ln: ln, conns: make(chan *served), done: make(chan struct{})}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Handler(l.handle))
	l.server = &http.Server{Handler: mux}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			glog.Errorf("websocket server: %v", err)
		}
	}()
	return l, nil
}

func (l *Listener) handle(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	s := &served{ReadWriter: New(conn), closed: make(chan struct{})}
	select {
	case l.conns <- s:
		glog.Infof("companion connected from %s", conn.Request().RemoteAddr)
	case <-l.done:
		return
	}
	select {
	case <-s.closed:
	case <-l.done:
	}
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept implements transport.Listener.
func (l *Listener) Accept() (transport.PacketReadWriter, error) {
	select {
	case s := <-l.conns:
		return s, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	}
}

// Close implements transport.Listener.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}
