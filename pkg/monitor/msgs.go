package monitor

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/node"
)

// Report is published on the status topic of a node.
type Report struct {
	Status *NodeStatus  `protobuf:"bytes,1,opt,name=status,proto3" json:"status,omitempty"`
	Events []*NodeEvent `protobuf:"bytes,2,rep,name=events,proto3" json:"events,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Report) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Report) Reset() { *m = Report{} }

// String implements proto.Message.
func (m *Report) String() string { return proto.CompactTextString(m) }

// NodeStatus is the wire form of node.Status.
type NodeStatus struct {
	Board          string `protobuf:"bytes,1,opt,name=board,proto3" json:"board,omitempty"`
	Id             string `protobuf:"bytes,2,opt,name=id,proto3" json:"id,omitempty"`
	Address        uint32 `protobuf:"varint,3,opt,name=address,proto3" json:"address"`
	Baud           string `protobuf:"bytes,4,opt,name=baud,proto3" json:"baud,omitempty"`
	Description    string `protobuf:"bytes,5,opt,name=description,proto3" json:"description,omitempty"`
	Valid          bool   `protobuf:"varint,6,opt,name=valid,proto3" json:"valid"`
	Application    string `protobuf:"bytes,7,opt,name=application,proto3" json:"application,omitempty"`
	Session        string `protobuf:"bytes,8,opt,name=session,proto3" json:"session,omitempty"`
	Armed          bool   `protobuf:"varint,9,opt,name=armed,proto3" json:"armed,omitempty"`
	Written        uint32 `protobuf:"varint,10,opt,name=written,proto3" json:"written,omitempty"`
	ActiveTimers   uint32 `protobuf:"varint,11,opt,name=active_timers,proto3" json:"active_timers"`
	ActiveHandlers uint32 `protobuf:"varint,12,opt,name=active_handlers,proto3" json:"active_handlers"`
	Anomalies      uint32 `protobuf:"varint,13,opt,name=anomalies,proto3" json:"anomalies,omitempty"`
	Unexpected     uint32 `protobuf:"varint,14,opt,name=unexpected,proto3" json:"unexpected,omitempty"`
	Forwarded      uint32 `protobuf:"varint,15,opt,name=forwarded,proto3" json:"forwarded,omitempty"`
	Traps          uint32 `protobuf:"varint,16,opt,name=traps,proto3" json:"traps,omitempty"`
	Conflicts      uint32 `protobuf:"varint,17,opt,name=conflicts,proto3" json:"conflicts,omitempty"`
	Iterations     uint64 `protobuf:"varint,18,opt,name=iterations,proto3" json:"iterations"`
	Attached       bool   `protobuf:"varint,19,opt,name=attached,proto3" json:"attached"`
	UptimeMs       int64  `protobuf:"varint,20,opt,name=uptime_ms,proto3" json:"uptime_ms"`
}

// ProtoMessage implements proto.Message.
func (m *NodeStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *NodeStatus) Reset() { *m = NodeStatus{} }

// String implements proto.Message.
func (m *NodeStatus) String() string { return proto.CompactTextString(m) }

// NodeEvent is the wire form of node.Event.
type NodeEvent struct {
	TimeMs int64  `protobuf:"varint,1,opt,name=time_ms,proto3" json:"time_ms"`
	Kind   string `protobuf:"bytes,2,opt,name=kind,proto3" json:"kind"`
	Valid  bool   `protobuf:"varint,3,opt,name=valid,proto3" json:"valid"`
	Detail string `protobuf:"bytes,4,opt,name=detail,proto3" json:"detail,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *NodeEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *NodeEvent) Reset() { *m = NodeEvent{} }

// String implements proto.Message.
func (m *NodeEvent) String() string { return proto.CompactTextString(m) }

// StatusFrom converts a snapshot.
func StatusFrom(s *node.Status) *NodeStatus {
	return &NodeStatus{
		Board:          s.Ref.Board,
		Id:             s.Ref.ID,
		Address:        uint32(s.Config.Address),
		Baud:           can.BaudRate(s.Config.Baud).String(),
		Description:    s.Config.Description,
		Valid:          s.Valid,
		Application:    s.Application,
		Session:        s.Session,
		Armed:          s.Armed,
		Written:        uint32(s.Written),
		ActiveTimers:   uint32(s.ActiveTimers),
		ActiveHandlers: uint32(s.ActiveHandlers),
		Anomalies:      uint32(s.Anomalies),
		Unexpected:     s.Unexpected,
		Forwarded:      s.Forwarded,
		Traps:          s.Traps,
		Conflicts:      uint32(s.Conflicts),
		Iterations:     s.Iterations,
		Attached:       s.Attached,
		UptimeMs:       int64(s.Uptime / time.Millisecond),
	}
}

// EventFrom converts an event.
func EventFrom(ev node.Event) *NodeEvent {
	return &NodeEvent{
		TimeMs: ev.Time.UnixNano() / int64(time.Millisecond),
		Kind:   string(ev.Kind),
		Valid:  ev.Valid,
		Detail: ev.Detail,
	}
}

// Decode parses a published report.
func Decode(payload []byte) (*Report, error) {
	var r Report
	if err := proto.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Encode serializes a report.
func (m *Report) Encode() ([]byte, error) {
	return proto.Marshal(m)
}
