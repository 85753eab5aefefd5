// Package transport defines the command set spoken between a node and its
// tethered companion and the packet links carrying it.
package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/store"
)

// Code is the first byte of every packet.
type Code byte

// Commands from the companion.
const (
	CodeReprogram       Code = 0x01
	CodeErasePage       Code = 0x02
	CodeWriteRow        Code = 0x03
	CodeReflashed       Code = 0x04
	CodeConfigReq       Code = 0x05
	CodeConfigUpdate    Code = 0x06
	CodeAppInfoReq      Code = 0x07
	CodeHardwareInfoReq Code = 0x08
	CodeFirmwareInfoReq Code = 0x09
	CodeBootcodeInfoReq Code = 0x0a
)

// Replies from the node.
const (
	CodeReady            Code = 0x80
	CodeConfigResp       Code = 0x81
	CodeAppInfoResp      Code = 0x82
	CodeRejected         Code = 0x83
	CodeCommitFailed     Code = 0x84
	CodeHardwareInfoResp Code = 0x85
	CodeFirmwareInfoResp Code = 0x86
	CodeBootcodeInfoResp Code = 0x87
)

// MaxPacketSize limits a single packet including the code byte.
const MaxPacketSize = 512

var codeNames = map[Code]string{
	CodeReprogram:        "FLASH_REPROGRAM",
	CodeErasePage:        "FLASH_ERASE_PAGE",
	CodeWriteRow:         "FLASH_WRITE_ROW",
	CodeReflashed:        "FLASH_REFLASHED",
	CodeConfigReq:        "NODE_CONFIG_INFO_REQ",
	CodeConfigUpdate:     "NODE_CONFIG_INFO_UPDATE",
	CodeAppInfoReq:       "APPLICATION_INFO_REQ",
	CodeHardwareInfoReq:  "HARDWARE_INFO_REQ",
	CodeFirmwareInfoReq:  "FIRMWARE_INFO_REQ",
	CodeBootcodeInfoReq:  "BOOTCODE_INFO_REQ",
	CodeReady:            "READY",
	CodeConfigResp:       "NODE_CONFIG_INFO_RESP",
	CodeAppInfoResp:      "APPLICATION_INFO_RESP",
	CodeRejected:         "REJECTED",
	CodeCommitFailed:     "COMMIT_FAILED",
	CodeHardwareInfoResp: "HARDWARE_INFO_RESP",
	CodeFirmwareInfoResp: "FIRMWARE_INFO_RESP",
	CodeBootcodeInfoResp: "BOOTCODE_INFO_RESP",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", byte(c))
}

// IsReply tells whether the code is sent by a node.
func (c Code) IsReply() bool {
	return c&0x80 != 0
}

// Reason explains a REJECTED or COMMIT_FAILED reply.
type Reason byte

// Reasons.
const (
	ReasonNotArmed    Reason = 0x01
	ReasonOutOfRange  Reason = 0x02
	ReasonRowSize     Reason = 0x03
	ReasonFlash       Reason = 0x04
	ReasonStore       Reason = 0x05
	ReasonUnsupported Reason = 0x06
	ReasonBadConfig   Reason = 0x07
	ReasonSmokeTest   Reason = 0x08
)

var reasonNames = map[Reason]string{
	ReasonNotArmed:    "session not armed",
	ReasonOutOfRange:  "address out of range",
	ReasonRowSize:     "bad row size",
	ReasonFlash:       "flash failure",
	ReasonStore:       "store failure",
	ReasonUnsupported: "unsupported command",
	ReasonBadConfig:   "bad config",
	ReasonSmokeTest:   "smoke test failed",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason 0x%02x", byte(r))
}

// ProtocolError indicates a malformed or unexpected packet.
type ProtocolError struct {
	Code   Code
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s: %s", e.Code, e.Reason)
}

func protoErr(code Code, format string, args ...interface{}) error {
	return &ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Message is a decoded packet.
type Message struct {
	Code Code
	Data []byte
}

func (m Message) String() string {
	return fmt.Sprintf("%s(% x)", m.Code, m.Data)
}

// Encode produces the packet.
func (m Message) Encode() []byte {
	pkt := make([]byte, 1+len(m.Data))
	pkt[0] = byte(m.Code)
	copy(pkt[1:], m.Data)
	return pkt
}

// Decode parses a packet.
func Decode(pkt []byte) (Message, error) {
	if len(pkt) == 0 {
		return Message{}, protoErr(0, "empty packet")
	}
	if len(pkt) > MaxPacketSize {
		return Message{}, protoErr(Code(pkt[0]), "packet too large: %d", len(pkt))
	}
	data := make([]byte, len(pkt)-1)
	copy(data, pkt[1:])
	return Message{Code: Code(pkt[0]), Data: data}, nil
}

// Simple builds a message without payload.
func Simple(code Code) Message {
	return Message{Code: code}
}

// Ready builds a READY reply.
func Ready() Message {
	return Simple(CodeReady)
}

// ErasePage builds FLASH_ERASE_PAGE.
func ErasePage(addr uint32) Message {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, addr)
	return Message{Code: CodeErasePage, Data: data}
}

// WriteRow builds FLASH_WRITE_ROW.
func WriteRow(addr uint32, row []byte) Message {
	data := make([]byte, 4+len(row))
	binary.BigEndian.PutUint32(data, addr)
	copy(data[4:], row)
	return Message{Code: CodeWriteRow, Data: data}
}

// Rejected builds a REJECTED reply for the command op.
func Rejected(reason Reason, op Code) Message {
	return Message{Code: CodeRejected, Data: []byte{byte(reason), byte(op)}}
}

// CommitFailed builds a COMMIT_FAILED reply, detail is truncated to fit
// a packet.
func CommitFailed(reason Reason, detail string) Message {
	if max := MaxPacketSize - 2; len(detail) > max {
		detail = detail[:max]
	}
	return Message{Code: CodeCommitFailed, Data: append([]byte{byte(reason)}, detail...)}
}

// Addr extracts the address of FLASH_ERASE_PAGE or FLASH_WRITE_ROW.
func (m Message) Addr() (uint32, error) {
	switch {
	case m.Code == CodeErasePage && len(m.Data) != 4:
		return 0, protoErr(m.Code, "expect 4 bytes, got %d", len(m.Data))
	case m.Code == CodeWriteRow && len(m.Data) <= 4:
		return 0, protoErr(m.Code, "missing row data")
	case m.Code != CodeErasePage && m.Code != CodeWriteRow:
		return 0, protoErr(m.Code, "no address")
	}
	return binary.BigEndian.Uint32(m.Data), nil
}

// Row returns the row data of FLASH_WRITE_ROW.
func (m Message) Row() []byte {
	if m.Code != CodeWriteRow || len(m.Data) < 4 {
		return nil
	}
	return m.Data[4:]
}

// Rejection decodes a REJECTED reply.
func (m Message) Rejection() (Reason, Code, error) {
	if m.Code != CodeRejected || len(m.Data) != 2 {
		return 0, 0, protoErr(m.Code, "not a rejection")
	}
	return Reason(m.Data[0]), Code(m.Data[1]), nil
}

// Failure decodes a COMMIT_FAILED reply.
func (m Message) Failure() (Reason, string, error) {
	if m.Code != CodeCommitFailed || len(m.Data) < 1 {
		return 0, "", protoErr(m.Code, "not a commit failure")
	}
	return Reason(m.Data[0]), string(m.Data[1:]), nil
}

// ConfigMessage builds NODE_CONFIG_INFO_UPDATE or NODE_CONFIG_INFO_RESP.
func ConfigMessage(code Code, conf store.NodeConfig) Message {
	data := []byte{conf.Address, conf.Baud, conf.IOAddress}
	data = append(data, conf.Description...)
	data = append(data, 0)
	return Message{Code: code, Data: data}
}

// Config decodes the payload built by ConfigMessage. The description
// terminator is optional.
func (m Message) Config() (store.NodeConfig, error) {
	var conf store.NodeConfig
	if len(m.Data) < 3 {
		return conf, protoErr(m.Code, "config too short: %d", len(m.Data))
	}
	conf.Address, conf.Baud, conf.IOAddress = m.Data[0], m.Data[1], m.Data[2]
	desc := m.Data[3:]
	if n := bytes.IndexByte(desc, 0); n >= 0 {
		desc = desc[:n]
	}
	if len(desc) >= store.DescriptionSize {
		return conf, protoErr(m.Code, "description too long: %d", len(desc))
	}
	if !can.BaudRate(conf.Baud).Valid() {
		return conf, protoErr(m.Code, "invalid baud selector %d", conf.Baud)
	}
	conf.Description = string(desc)
	return conf, nil
}

// InfoMessage builds one of the info replies from NUL terminated strings.
func InfoMessage(code Code, strs ...string) Message {
	var data []byte
	for _, s := range strs {
		data = append(data, s...)
		data = append(data, 0)
	}
	return Message{Code: code, Data: data}
}

// AppInfoMessage builds APPLICATION_INFO_RESP, strings are only sent for a
// valid application.
func AppInfoMessage(valid bool, strs ...string) Message {
	if !valid {
		return Message{Code: CodeAppInfoResp, Data: []byte{0}}
	}
	msg := InfoMessage(CodeAppInfoResp, strs...)
	msg.Data = append([]byte{1}, msg.Data...)
	return msg
}

// Strings splits NUL terminated strings from the payload.
func (m Message) Strings() []string {
	return splitStrings(m.Data)
}

// AppInfo decodes APPLICATION_INFO_RESP.
func (m Message) AppInfo() (valid bool, strs []string, err error) {
	if m.Code != CodeAppInfoResp || len(m.Data) < 1 {
		return false, nil, protoErr(m.Code, "not application info")
	}
	if m.Data[0] == 0 {
		return false, nil, nil
	}
	return true, splitStrings(m.Data[1:]), nil
}

func splitStrings(data []byte) (strs []string) {
	for len(data) > 0 {
		n := bytes.IndexByte(data, 0)
		if n < 0 {
			strs = append(strs, string(data))
			break
		}
		strs = append(strs, string(data[:n]))
		data = data[n+1:]
	}
	return
}
