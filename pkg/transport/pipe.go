package transport

import (
	"io"
	"sync"
)

type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe creates a connected pair of in-memory links. Closing either end
// closes both.
func Pipe() (PacketReadWriter, PacketReadWriter) {
	a2b, b2a := make(chan []byte, 16), make(chan []byte, 16)
	done, once := make(chan struct{}), &sync.Once{}
	return &pipeEnd{in: b2a, out: a2b, done: done, once: once},
		&pipeEnd{in: a2b, out: b2a, done: done, once: once}
}

func (p *pipeEnd) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.in:
		return pkt, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *pipeEnd) WritePacket(pkt []byte) error {
	buf := make([]byte, len(pkt))
	copy(buf, pkt)
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
