//go:build !linux

package node

import (
	"fmt"

	"github.com/notnil/canbus"
)

func dialSocketCAN(iface string) (canbus.Bus, error) {
	return nil, fmt.Errorf("SocketCAN %s: only supported on linux", iface)
}
