// Package companion sets up companion side connections from flags and
// environment.
package companion

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/robotalks/nodeos/pkg/companion"
	"github.com/robotalks/nodeos/pkg/transport"
	"github.com/robotalks/nodeos/pkg/transport/mqtt"
	"github.com/robotalks/nodeos/pkg/transport/serial"
	"github.com/robotalks/nodeos/pkg/transport/stream"
	"github.com/robotalks/nodeos/pkg/transport/websocket"
)

// Config provides common options to reach nodes.
type Config struct {
	Ref transport.NodeRef

	// NodeURL connects a node directly, tcp://host:port,
	// ws://host:port/path or serial:///dev/tty.
	NodeURL string
	// MQTTBrokerURL discovers and reaches nodes through a broker.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
}

var defaultConfig = Config{
	MQTTBrokerURL: "mqtt://localhost:1883/nodeos/",
}

func init() {
	if val := os.Getenv("NODEOS_BOARD"); val != "" {
		defaultConfig.Ref.Board = val
	}
	if val := os.Getenv("NODEOS_ID"); val != "" {
		defaultConfig.Ref.ID = val
	}
	if val := os.Getenv("NODEOS_NODE_URL"); val != "" {
		defaultConfig.NodeURL = val
	}
	if val := os.Getenv("NODEOS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Board, "board", defaultConfig.Ref.Board, "Board of the node to connect.")
	flag.StringVar(&defaultConfig.Ref.ID, "id", defaultConfig.Ref.ID, "ID of the node to connect.")
	flag.StringVar(&defaultConfig.NodeURL, "node", defaultConfig.NodeURL, "Direct node URL.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL.")
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

// Direct reports whether nodes are reached without a broker.
func (c *Config) Direct() bool {
	return c.NodeURL != ""
}

// NewConnector creates an MQTT connector.
func (c *Config) NewConnector() (*mqtt.Connector, error) {
	if c.MQTTBrokerURL == "" {
		return nil, fmt.Errorf("no MQTT broker URL")
	}
	return mqtt.NewConnector(c.MQTTBrokerURL)
}

// Discover lists announced nodes.
func (c *Config) Discover(ctx context.Context) ([]transport.NodeMeta, error) {
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	return connector.Discover(ctx)
}

// Dial opens a raw link to the node.
func (c *Config) Dial(ctx context.Context, ref transport.NodeRef) (transport.PacketReadWriter, error) {
	if c.NodeURL != "" {
		u, err := url.Parse(c.NodeURL)
		if err != nil {
			return nil, fmt.Errorf("invalid node URL: %v", err)
		}
		switch u.Scheme {
		case "tcp":
			return stream.Dial(u.Host)
		case "ws":
			return websocket.Dial(c.NodeURL)
		case "serial":
			return serial.Dial(u.Path)
		default:
			return nil, fmt.Errorf("unknown node URL scheme: %q", u.Scheme)
		}
	}
	if ref.Board == "" || ref.ID == "" {
		return nil, fmt.Errorf("node board and id must be specified")
	}
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	return connector.Connect(ctx, ref)
}

// Connect connects a client to the node.
func (c *Config) Connect(ctx context.Context, ref transport.NodeRef) (*companion.Client, error) {
	rw, err := c.Dial(ctx, ref)
	if err != nil {
		return nil, err
	}
	return companion.NewClient(rw), nil
}

// MustConnect connects to the configured node or fails.
func (c *Config) MustConnect() *companion.Client {
	client, err := c.Connect(context.TODO(), c.Ref)
	if err != nil {
		log.Fatalln(err)
	}
	return client
}
