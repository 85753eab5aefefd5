// Package node sets up a simulated node from flags and environment.
package node

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/notnil/canbus"

	"github.com/robotalks/nodeos/pkg/env"
	fx "github.com/robotalks/nodeos/pkg/framework"
	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/node"
	"github.com/robotalks/nodeos/pkg/store"
	"github.com/robotalks/nodeos/pkg/transport"
	"github.com/robotalks/nodeos/pkg/transport/mqtt"
	"github.com/robotalks/nodeos/pkg/transport/serial"
	"github.com/robotalks/nodeos/pkg/transport/stream"
	"github.com/robotalks/nodeos/pkg/transport/websocket"
	"github.com/robotalks/nodeos/pkg/watchdog"
)

// Config provides common options to set up a node.
type Config struct {
	Ref transport.NodeRef

	// StorePath and FlashPath persist the non-volatile memories, both
	// are kept in memory when empty.
	StorePath string
	FlashPath string

	// Listen is the companion link, one of tcp://host:port,
	// ws://host:port/path, serial:///dev/tty or mqtt.
	Listen string
	// MQTTBrokerURL announces the node when set,
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string

	// CAN is the bus interface, "loopback" keeps it in process, anything
	// else names a SocketCAN interface like can0.
	CAN string
	// CANLog logs every frame on the bus.
	CANLog bool
}

var defaultConfig = Config{
	Ref:    transport.NodeRef{Board: node.DefaultBoard},
	Listen: "tcp://localhost:7120",
	CAN:    LoopbackCAN,
}

func init() {
	if val := os.Getenv("NODEOS_BOARD"); val != "" {
		defaultConfig.Ref.Board = val
	}
	if val := os.Getenv("NODEOS_ID"); val != "" {
		defaultConfig.Ref.ID = val
	} else {
		defaultConfig.Ref.ID = env.MachineID()
	}
	if val := os.Getenv("NODEOS_STORE"); val != "" {
		defaultConfig.StorePath = val
	}
	if val := os.Getenv("NODEOS_FLASH"); val != "" {
		defaultConfig.FlashPath = val
	}
	if val := os.Getenv("NODEOS_LISTEN"); val != "" {
		defaultConfig.Listen = val
	}
	if val := os.Getenv("NODEOS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("NODEOS_CAN"); val != "" {
		defaultConfig.CAN = val
	}
	if val, err := strconv.ParseBool(os.Getenv("NODEOS_CAN_LOG")); err == nil {
		defaultConfig.CANLog = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Board, "board", defaultConfig.Ref.Board, "Board type")
	flag.StringVar(&defaultConfig.Ref.ID, "id", defaultConfig.Ref.ID, "Node ID")
	flag.StringVar(&defaultConfig.StorePath, "store", defaultConfig.StorePath, "EEPROM image file")
	flag.StringVar(&defaultConfig.FlashPath, "flash", defaultConfig.FlashPath, "Program flash image file")
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "Companion link: tcp://, ws://, serial:// or mqtt")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.CAN, "can", defaultConfig.CAN, "CAN interface: loopback or a SocketCAN interface")
	flag.BoolVar(&defaultConfig.CANLog, "can-log", defaultConfig.CANLog, "Log CAN frames")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoopbackCAN selects the in-process bus.
const LoopbackCAN = "loopback"

// Env holds what survives node reboots: the memories, the bus and the
// companion listener.
type Env struct {
	Config *Config
	Board  node.HardwareConfig
	Store  store.Driver
	Flash  flash.Driver
	// Bus is the in-process bus, nil on SocketCAN.
	Bus       *canbus.LoopbackBus
	Indicator *watchdog.Indicator
	Announcer *mqtt.Announcer

	listener transport.Listener
	links    chan transport.PacketReadWriter
	closers  []io.Closer
}

// NewEnv opens the memories and the companion listener.
func (c *Config) NewEnv() (*Env, error) {
	if c.Ref.ID == "" {
		return nil, fmt.Errorf("node id must be specified")
	}
	board, err := node.Board(c.Ref.Board)
	if err != nil {
		return nil, err
	}
	e := &Env{Config: c, Board: board, Indicator: &watchdog.Indicator{}}
	if c.CAN == "" || c.CAN == LoopbackCAN {
		e.Bus = canbus.NewLoopbackBus()
		e.closers = append(e.closers, e.Bus)
	}
	if err = e.openMemories(); err != nil {
		e.Close()
		return nil, err
	}
	if c.MQTTBrokerURL != "" {
		if e.Announcer, err = mqtt.NewAnnouncer(c.MQTTBrokerURL, transport.NodeMeta{NodeRef: c.Ref}); err != nil {
			e.Close()
			return nil, fmt.Errorf("create MQTT announcer: %v", err)
		}
	}
	if e.listener, err = e.listen(); err != nil {
		e.Close()
		return nil, err
	}
	e.links = make(chan transport.PacketReadWriter)
	go e.pumpLinks()
	return e, nil
}

func (e *Env) openMemories() error {
	c := e.Config
	if c.StorePath == "" {
		e.Store = store.NewMemDriver(e.Board.StoreSize)
	} else {
		drv, err := store.OpenFileDriver(c.StorePath, e.Board.StoreSize)
		if err != nil {
			return fmt.Errorf("open store: %v", err)
		}
		e.Store, e.closers = drv, append(e.closers, drv)
	}
	if c.FlashPath == "" {
		e.Flash = flash.NewMemFlash(e.Board.Flash)
	} else {
		f, err := flash.OpenFileFlash(c.FlashPath, e.Board.Flash)
		if err != nil {
			return fmt.Errorf("open flash: %v", err)
		}
		e.Flash, e.closers = f, append(e.closers, f)
	}
	return nil
}

func (e *Env) listen() (transport.Listener, error) {
	if e.Config.Listen == "mqtt" {
		if e.Announcer == nil {
			return nil, fmt.Errorf("mqtt link requires a broker URL")
		}
		return &mqttListener{announcer: e.Announcer, done: make(chan struct{})}, nil
	}
	u, err := url.Parse(e.Config.Listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen URL: %v", err)
	}
	switch u.Scheme {
	case "tcp":
		l, err := stream.Listen(u.Host)
		if err != nil {
			return nil, err
		}
		glog.Infof("companion link on %s", u.Host)
		return l, nil
	case "ws":
		path := u.Path
		if path == "" {
			path = websocket.DefaultPath
		}
		l, err := websocket.Listen(u.Host, path)
		if err != nil {
			return nil, err
		}
		glog.Infof("companion link on ws://%s%s", l.Addr(), path)
		return l, nil
	case "serial":
		l, err := serial.Listen(u.Path)
		if err != nil {
			return nil, err
		}
		glog.Infof("companion link on %s", u.Path)
		return l, nil
	default:
		return nil, fmt.Errorf("unknown listen URL scheme: %q", u.Scheme)
	}
}

// Boot boots the node once, the env is reused across reboots.
func (e *Env) Boot(base node.Options) (*node.Node, error) {
	opts := base
	opts.Board = e.Board
	opts.Ref = e.Config.Ref
	opts.Store = e.Store
	opts.Flash = e.Flash
	bus, err := e.openBus()
	if err != nil {
		return nil, err
	}
	opts.Bus = bus
	opts.Listener = &bootListener{links: e.links, done: make(chan struct{})}
	opts.Indicator = e.Indicator
	n, err := node.Boot(opts)
	if err != nil {
		bus.Close()
		return nil, err
	}
	if e.Announcer != nil {
		if err := e.Announcer.Update(n.Meta()); err != nil {
			glog.Warningf("announce: %v", err)
		}
	}
	return n, nil
}

// openBus opens the endpoint of one boot, the node closes it on exit.
func (e *Env) openBus() (canbus.Bus, error) {
	var bus canbus.Bus
	if e.Bus != nil {
		bus = e.Bus.Open()
	} else {
		var err error
		if bus, err = dialSocketCAN(e.Config.CAN); err != nil {
			return nil, fmt.Errorf("open CAN %s: %v", e.Config.CAN, err)
		}
	}
	if e.Config.CANLog {
		bus = canbus.NewLoggedBus(bus, slog.Default(), slog.LevelInfo, canbus.LogAll)
	}
	return bus, nil
}

// Runnables are started once beside all boots.
func (e *Env) Runnables() []fx.Runnable {
	if e.Announcer == nil {
		return nil
	}
	return []fx.Runnable{e.Announcer}
}

// Close releases the listener and the memories.
func (e *Env) Close() error {
	var errs fx.AggregatedError
	if e.listener != nil {
		errs.Add(e.listener.Close())
	}
	for _, c := range e.closers {
		errs.Add(c.Close())
	}
	return errs.Aggregate()
}
