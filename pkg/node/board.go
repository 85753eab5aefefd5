package node

import (
	"fmt"
	"sort"
	"time"

	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/ledger"
	"github.com/robotalks/nodeos/pkg/store"
)

// HardwareInfo is reported in HARDWARE_INFO_RESP.
type HardwareInfo struct {
	Manufacturer string
	Model        string
	Description  string
	Version      string
	URI          string
}

// HardwareConfig describes a board. It is selected once at start.
type HardwareConfig struct {
	Name      string
	ClockHz   uint32
	Flash     flash.Layout
	StoreSize int
	// Capacity is lent to the hosted application.
	Capacity   ledger.Capacity
	TickPeriod time.Duration
	Watchdog   time.Duration
	// AddressClaim enables announcing the node address on the bus and
	// moving to a new address on conflict.
	AddressClaim bool
	Info         HardwareInfo
	// Bootcode describes the resident boot code, reported in
	// BOOTCODE_INFO_RESP.
	Bootcode hosted.Info
}

// Default board name.
const DefaultBoard = "cinnamon-bun"

var boards = map[string]HardwareConfig{
	"cinnamon-bun": {
		Name:         "cinnamon-bun",
		ClockHz:      32000000,
		Flash:        flash.DefaultLayout,
		StoreSize:    store.DefaultSize,
		Capacity:     ledger.Capacity{Timers: 10, Handlers: 8},
		TickPeriod:   5 * time.Millisecond,
		Watchdog:     2 * time.Second,
		AddressClaim: true,
		Info: HardwareInfo{
			Manufacturer: "electronicSoup",
			Model:        "Cinnamon Bun",
			Description:  "PIC24FJ256GB106 CAN node with USB host",
			Version:      "1.0",
			URI:          "http://www.electronicsoup.com",
		},
		Bootcode: hosted.Info{
			Author:      "electronicSoup",
			Description: "Android Bootloader",
			Version:     "1.0.0",
			URI:         "http://www.electronicsoup.com/bootloader",
		},
	},
	"cb-dspic33": {
		Name:    "cb-dspic33",
		ClockHz: 60000000,
		Flash: flash.Layout{
			Size:       0x2AC00,
			PageSize:   0x800,
			RowSize:    32,
			HandleAddr: 0x800,
			CodeBase:   0x18000,
		},
		StoreSize:  store.DefaultSize,
		Capacity:   ledger.Capacity{Timers: 16, Handlers: 16},
		TickPeriod: 5 * time.Millisecond,
		Watchdog:   2 * time.Second,
		Info: HardwareInfo{
			Manufacturer: "electronicSoup",
			Model:        "Cinnamon Bun dsPIC33",
			Description:  "dsPIC33EP256MU806 CAN node with USB host",
			Version:      "2.0",
			URI:          "http://www.electronicsoup.com",
		},
		Bootcode: hosted.Info{
			Author:      "electronicSoup",
			Description: "Android Bootloader",
			Version:     "2.0.0",
			URI:         "http://www.electronicsoup.com/bootloader",
		},
	},
}

// Board looks up a board by name.
func Board(name string) (HardwareConfig, error) {
	if name == "" {
		name = DefaultBoard
	}
	conf, ok := boards[name]
	if !ok {
		return conf, fmt.Errorf("unknown board %q", name)
	}
	return conf, nil
}

// Boards lists known board names.
func Boards() []string {
	names := make([]string, 0, len(boards))
	for name := range boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
