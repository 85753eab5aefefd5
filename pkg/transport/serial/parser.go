package serial

import (
	"time"

	"github.com/robotalks/nodeos/pkg/transport"
)

// Seq is the frame sequence number, 0 and the sync commands are never
// used.
type Seq byte

// NewSeq picks a random starting sequence number.
func NewSeq() Seq {
	return Seq(byte(time.Now().UnixNano())).Next()
}

// Next calculates the next sequence number.
func (s Seq) Next() Seq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		n = 1
	}
	return Seq(n)
}

// Valid checks if it's a valid sequence number.
func (s Seq) Valid() bool {
	n := byte(s)
	return n > 0 && n < 0xf0
}

// Frame is a parsed packet with its sequence number.
type Frame struct {
	Seq  Seq
	Data []byte
}

// Bytes encodes the frame: seq, 2-byte big-endian length, data.
func (f *Frame) Bytes() []byte {
	b := make([]byte, len(f.Data)+3)
	b[0] = byte(f.Seq)
	b[1], b[2] = byte(len(f.Data)>>8), byte(len(f.Data))
	copy(b[3:], f.Data)
	return b
}

// SyncState indicates the state of the link.
type SyncState int

const (
	// SyncStateSyncing means the link is not synchronized.
	SyncStateSyncing SyncState = 0
	// SyncStateReady means frames can be exchanged.
	SyncStateReady SyncState = 0x01
	// SyncStateReceiving means a sync or a frame is partially received.
	SyncStateReceiving SyncState = 0x02
)

// IsReady indicates if the link is ready for frames.
func (s SyncState) IsReady() bool {
	return s&SyncStateReady != 0
}

// IsReceiving indicates a sync or a frame is in progress.
func (s SyncState) IsReceiving() bool {
	return s&SyncStateReceiving != 0
}

// TimerAction defines what to do with the sync timer.
type TimerAction int

const (
	// TimerNoChange keeps the timer as-is.
	TimerNoChange TimerAction = iota
	// TimerRestart restarts the timer.
	TimerRestart
	// TimerStop cancels the timer.
	TimerStop
)

// ParseResult is the outcome of one parsing step. Sync is a command to
// send back, 0 for none.
type ParseResult struct {
	Sync  byte
	State SyncState
	Frame *Frame
}

// WhatAboutTimer decides what to do with the sync timer.
func (r ParseResult) WhatAboutTimer() TimerAction {
	if r.State.IsReceiving() || r.Sync == syncREQ {
		return TimerRestart
	}
	if r.State.IsReady() {
		return TimerStop
	}
	return TimerNoChange
}

type parseState int

const (
	stateSyncAck    parseState = iota // sync req sent, waiting for syncACK
	stateSyncReqSeq                   // waiting for sync seq after syncREQ
	stateSyncAckSeq                   // waiting for sync seq after syncACK
	stateFrameSeq                     // waiting for frame seq
	stateFrameAckSeq                  // recv ack in FrameSeq, validate seq
	stateFrameLenHi
	stateFrameLenLo
	stateFrameData
)

const (
	syncREQ byte = 0xff
	syncACK byte = 0xfe
)

// Parser is the receiving state machine, fed one byte at a time.
type Parser struct {
	// MaxSize bounds the frame data, transport.MaxPacketSize if zero.
	MaxSize int

	peerSeq Seq
	state   parseState
	frame   *Frame
	size    int
	recvLen int
}

// State gets the current sync state.
func (p *Parser) State() SyncState {
	switch {
	case p.state == stateSyncAck:
		return SyncStateSyncing
	case p.state == stateFrameSeq:
		return SyncStateReady
	case p.state > stateFrameSeq:
		return SyncStateReady | SyncStateReceiving
	}
	return SyncStateSyncing | SyncStateReceiving
}

// Reset starts synchronizing.
func (p *Parser) Reset() (pr ParseResult) {
	p.frame = nil
	pr.Sync, pr.Frame = p.resync()
	pr.State = p.State()
	return
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	pr.Sync, pr.Frame = p.parseByte(b)
	pr.State = p.State()
	return
}

// Timeout notifies the sync timer expired.
func (p *Parser) Timeout() (pr ParseResult) {
	if p.state != stateFrameSeq {
		pr.Sync, pr.Frame = p.resync()
	}
	pr.State = p.State()
	return
}

func (p *Parser) maxSize() int {
	if p.MaxSize > 0 {
		return p.MaxSize
	}
	return transport.MaxPacketSize
}

func (p *Parser) parseByte(b byte) (syncCmd byte, frame *Frame) {
	switch p.state {
	case stateSyncAck:
		switch b {
		case syncREQ:
			p.state = stateSyncReqSeq
		case syncACK:
			p.state = stateSyncAckSeq
		}
	case stateSyncReqSeq:
		if seq := Seq(b); seq.Valid() {
			p.peerSeq, p.state = seq, stateFrameSeq
			return syncACK, nil
		}
		return p.resync()
	case stateSyncAckSeq:
		if seq := Seq(b); seq.Valid() {
			p.peerSeq, p.state = seq, stateFrameSeq
			return
		}
		return p.resync()
	case stateFrameSeq:
		switch {
		case b == syncREQ:
			p.state = stateSyncReqSeq
		case b == syncACK:
			p.state = stateFrameAckSeq
		case b != byte(p.peerSeq):
			return p.resync()
		default:
			p.frame = &Frame{Seq: p.peerSeq}
			p.peerSeq = p.peerSeq.Next()
			p.state = stateFrameLenHi
		}
	case stateFrameAckSeq:
		if b != byte(p.peerSeq) {
			return p.resync()
		}
		p.state = stateFrameSeq
	case stateFrameLenHi:
		p.size, p.state = int(b)<<8, stateFrameLenLo
	case stateFrameLenLo:
		p.size |= int(b)
		if p.size > p.maxSize() {
			return p.resync()
		}
		if p.size == 0 {
			return p.frameReady()
		}
		p.frame.Data, p.recvLen = make([]byte, p.size), 0
		p.state = stateFrameData
	case stateFrameData:
		p.frame.Data[p.recvLen] = b
		p.recvLen++
		if p.recvLen >= len(p.frame.Data) {
			return p.frameReady()
		}
	}
	return
}

func (p *Parser) resync() (byte, *Frame) {
	p.state, p.frame = stateSyncAck, nil
	return syncREQ, nil
}

func (p *Parser) frameReady() (syncCmd byte, frame *Frame) {
	p.state = stateFrameSeq
	frame, p.frame = p.frame, nil
	return
}
