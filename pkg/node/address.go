package node

import (
	"github.com/golang/glog"
	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/store"
)

const (
	// BroadcastAddress is never taken by a node.
	BroadcastAddress byte = 0xff
	// ClaimID carries [address, io address] when a node claims its
	// address on the bus.
	ClaimID uint32 = 0x7e0
)

// loadConfig reads the persisted node section, repairing what a fresh
// or damaged store lacks.
func (n *Node) loadConfig() {
	st := n.store
	baud, err := st.Read(store.AddrBaudRate)
	if err != nil || !can.BaudRate(baud).Valid() {
		glog.Warningf("no CAN baud rate configured, using %s", can.DefaultBaud)
		baud = byte(can.DefaultBaud)
		if err := st.Write(store.AddrBaudRate, baud); err != nil {
			glog.Errorf("store baud rate: %v", err)
		}
	}
	addr, err := st.Read(store.AddrNodeAddress)
	if err != nil || addr == BroadcastAddress {
		addr = n.randomAddress(BroadcastAddress)
		glog.Warningf("no node address configured (%v), picked 0x%02x", err, addr)
		if err := st.Write(store.AddrNodeAddress, addr); err != nil {
			glog.Errorf("store node address: %v", err)
		}
	}
	io, err := st.Read(store.AddrIOAddress)
	if err != nil {
		glog.Errorf("read io address: %v", err)
	}
	desc, err := st.ReadString(store.AddrDescription, store.DescriptionSize)
	if err != nil {
		glog.Errorf("read description: %v", err)
	}
	n.config = store.NodeConfig{Address: addr, Baud: baud, IOAddress: io, Description: desc}
	glog.Infof("node address 0x%02x, CAN %s", addr, can.BaudRate(baud))
}

// randomAddress picks an address other than the broadcast address and
// the given one.
func (n *Node) randomAddress(not byte) byte {
	for {
		if addr := n.opts.Rand(); addr != BroadcastAddress && addr != not {
			return addr
		}
	}
}

func (n *Node) claimAddress() error {
	f, err := can.NewFrame(ClaimID, []byte{n.config.Address, n.config.IOAddress})
	if err != nil {
		return err
	}
	return n.dispatcher.Send(f)
}

// onClaim moves to a new address when a peer claims ours.
func (n *Node) onClaim(f canbus.Frame) {
	if f.Len < 1 || f.Data[0] != n.config.Address {
		return
	}
	old := n.config.Address
	n.config.Address = n.randomAddress(old)
	n.conflicts++
	glog.Warningf("address 0x%02x claimed by a peer, moving to 0x%02x", old, n.config.Address)
	if err := n.store.Write(store.AddrNodeAddress, n.config.Address); err != nil {
		glog.Errorf("store node address: %v", err)
	}
	n.emit(EventAddress, true, "")
	if err := n.claimAddress(); err != nil {
		glog.Errorf("claim address: %v", err)
	}
}
