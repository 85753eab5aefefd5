package sh

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/nodeos/pkg/companion"
	env "github.com/robotalks/nodeos/pkg/env/companion"
	"github.com/robotalks/nodeos/pkg/transport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *NodeConn
}

// NodeConn is a connected node.
type NodeConn struct {
	Ref    transport.NodeRef
	Client *companion.Client
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

// CommandTimeout bounds a single shell command.
var CommandTimeout = 10 * time.Second

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Client returns the connected client.
func Client(c *ishell.Context) *companion.Client {
	return ShellFrom(c).Conn.Client
}

// CommandContext bounds a command with CommandTimeout.
func CommandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), CommandTimeout)
}

// FormatMeta prints NodeMeta into friendly string for display.
func FormatMeta(meta transport.NodeMeta) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s [0x%02x %s]", meta.Name(), meta.Address, meta.Baud)
	if meta.Description != "" {
		fmt.Fprintf(&w, ": %s", meta.Description)
	}
	if meta.Valid {
		fmt.Fprintf(&w, " (running %s)", meta.Application)
	} else {
		fmt.Fprintf(&w, " (no application)")
	}
	return w.String()
}

// Print prints a result either as JSON or with the text formatter.
func Print(c *ishell.Context, v interface{}, text func() string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text())
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// DiscoverNodes discovers nodes.
func (s *Shell) DiscoverNodes(filter func(transport.NodeMeta) bool) ([]transport.NodeMeta, error) {
	metas, err := s.Config.Discover(context.TODO())
	if err != nil {
		return nil, err
	}
	if filter != nil {
		items := make([]transport.NodeMeta, 0, len(metas))
		for _, meta := range metas {
			if filter(meta) {
				items = append(items, meta)
			}
		}
		metas = items
	}
	return metas, nil
}

// SelectNode discovers nodes and asks for a choice.
func (s *Shell) SelectNode(filter func(transport.NodeMeta) bool) (*transport.NodeMeta, error) {
	metas, err := s.DiscoverNodes(filter)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, nil
	}
	var index int
	if len(metas) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 nodes discovered in non-interactive mode")
		}
		items := make([]string, len(metas))
		for n, meta := range metas {
			items[n] = FormatMeta(meta)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return &metas[index], nil
}

// Connect connects the node with ref.
func (s *Shell) Connect(ref transport.NodeRef) error {
	client, err := s.Config.Connect(context.TODO(), ref)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Conn = &NodeConn{Ref: ref, Client: client}
	name := ref.Name()
	if s.Config.Direct() {
		name = s.Config.NodeURL
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", name))
	return nil
}

// Disconnect disconnects current node.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Client.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	ref := s.Config.Ref
	if s.AutoConnect && (s.Config.Direct() || (ref.Board != "" && ref.ID != "")) {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", ref.Name())
		}
		if err := s.Connect(ref); err != nil {
			log.Fatalf("connect %q failed: %v", ref.Name(), err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// DiscoverCmd discovers nodes.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			metas, err := s.DiscoverNodes(nil)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(metas) == 0 {
					// in case metas is nil, make it empty slice.
					metas = []transport.NodeMeta{}
				}
				Print(c, metas, nil)
				return
			}
			if len(metas) == 0 {
				c.Println("No nodes found")
				return
			}
			for _, meta := range metas {
				c.Println(FormatMeta(meta))
			}
		},
	}

	// ConnectCmd connects a node.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "BOARD ID",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var ref transport.NodeRef
			if len(c.Args) >= 2 {
				ref.Board, ref.ID = c.Args[0], c.Args[1]
			} else {
				var filter func(transport.NodeMeta) bool
				if len(c.Args) == 1 {
					filter = func(meta transport.NodeMeta) bool {
						return meta.Board == c.Args[0]
					}
				}
				meta, err := s.SelectNode(filter)
				if err != nil {
					c.Err(err)
					return
				}
				if meta == nil {
					c.Err(fmt.Errorf("no node discovered"))
					return
				}
				ref = meta.NodeRef
			}
			if err := s.Connect(ref); err != nil {
				c.Err(err)
				return
			}
		},
	}

	// DisconnectCmd disconnects current node.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
