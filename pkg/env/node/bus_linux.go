package node

import "github.com/notnil/canbus"

func dialSocketCAN(iface string) (canbus.Bus, error) {
	return canbus.DialSocketCAN(iface)
}
