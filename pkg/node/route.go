package node

import (
	"github.com/golang/glog"

	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/transport"
	"github.com/robotalks/nodeos/pkg/update"
)

// route handles a companion message, called from the loop.
func (n *Node) route(msg transport.Message) {
	glog.V(3).Infof("companion rx %s", msg)
	if msg.Code.IsReply() {
		glog.Warningf("dropped unexpected reply %s from companion", msg.Code)
		return
	}
	if n.session.Handles(msg.Code) {
		n.handleUpdate(msg)
		return
	}
	switch msg.Code {
	case transport.CodeConfigReq:
		conf, err := n.store.NodeConfig()
		if err != nil {
			glog.Errorf("read node config: %v", err)
			n.reply(transport.Rejected(transport.ReasonStore, msg.Code))
			return
		}
		n.reply(transport.ConfigMessage(transport.CodeConfigResp, conf))
	case transport.CodeConfigUpdate:
		n.updateConfig(msg)
	case transport.CodeAppInfoReq:
		n.reply(n.appInfo())
	case transport.CodeHardwareInfoReq:
		hw := n.board.Info
		n.reply(transport.InfoMessage(transport.CodeHardwareInfoResp,
			hw.Manufacturer, hw.Model, hw.Description, hw.Version, hw.URI))
	case transport.CodeFirmwareInfoReq:
		fw := n.opts.Firmware
		n.reply(transport.InfoMessage(transport.CodeFirmwareInfoResp,
			fw.Author, fw.Description, fw.Version, fw.URI))
	case transport.CodeBootcodeInfoReq:
		bc := n.board.Bootcode
		n.reply(transport.InfoMessage(transport.CodeBootcodeInfoResp,
			bc.Author, bc.Description, bc.Version, bc.URI))
	default:
		glog.Warningf("unsupported command %s", msg.Code)
		n.reply(transport.Rejected(transport.ReasonUnsupported, msg.Code))
	}
}

func (n *Node) handleUpdate(msg transport.Message) {
	armed := n.session.Armed()
	n.session.Handle(msg)
	n.dirty = true
	switch {
	case !armed && n.session.Armed():
		n.emit(EventReprogram, false, "")
	case msg.Code == transport.CodeReflashed && n.session.State() == update.Committed:
		n.emit(EventCommitted, true, n.appDescription())
	case msg.Code == transport.CodeReflashed && n.session.State() == update.Reverted:
		n.emit(EventReverted, false, "")
	}
}

// updateConfig persists a new node config, it takes effect on the next
// boot.
func (n *Node) updateConfig(msg transport.Message) {
	if len(msg.Data) < 3 {
		glog.Warningf("dropped malformed %s", msg)
		return
	}
	conf, err := msg.Config()
	if err == nil && conf.Address == BroadcastAddress {
		err = &transport.ProtocolError{Code: msg.Code, Reason: "broadcast address"}
	}
	if err != nil {
		glog.Warningf("rejected config: %v", err)
		n.reply(transport.Rejected(transport.ReasonBadConfig, msg.Code))
		return
	}
	if err := n.store.SetNodeConfig(conf); err != nil {
		glog.Errorf("store node config: %v", err)
		n.reply(transport.Rejected(transport.ReasonStore, msg.Code))
		return
	}
	glog.Infof("node config stored, address 0x%02x, effective after reset", conf.Address)
	n.emit(EventConfig, n.guardian.Valid(), conf.Description)
	n.reply(transport.Ready())
}

func (n *Node) appInfo() transport.Message {
	if !n.guardian.Valid() {
		return transport.AppInfoMessage(false)
	}
	info, err := hosted.ReadInfo(n.flash, n.board.Flash.HandleAddr)
	if err != nil {
		glog.Errorf("read application info: %v", err)
		return transport.AppInfoMessage(false)
	}
	return transport.AppInfoMessage(true, info.Author, info.Description, info.Version, info.URI)
}

func (n *Node) appDescription() string {
	if !n.guardian.Valid() {
		return ""
	}
	info, err := hosted.ReadInfo(n.flash, n.board.Flash.HandleAddr)
	if err != nil {
		return ""
	}
	return info.Description
}

func (n *Node) reply(msg transport.Message) {
	if err := n.port.Send(msg); err != nil {
		glog.Warningf("reply %s: %v", msg.Code, err)
	}
}
