package node

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/cli/sh"
	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/store"
)

type configView struct {
	Address     byte   `json:"address"`
	Baud        string `json:"baud"`
	IOAddress   byte   `json:"io_address"`
	Description string `json:"description"`
}

func viewOf(conf store.NodeConfig) configView {
	return configView{
		Address:     conf.Address,
		Baud:        can.BaudRate(conf.Baud).String(),
		IOAddress:   conf.IOAddress,
		Description: conf.Description,
	}
}

func parseByte(name, s string) (byte, error) {
	val, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return byte(val), nil
}

// applyConfig parses KEY=VALUE settings onto conf.
func applyConfig(conf *store.NodeConfig, args []string) error {
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("expect KEY=VALUE: %q", arg)
		}
		var err error
		switch kv[0] {
		case "address", "addr":
			conf.Address, err = parseByte("address", kv[1])
		case "io":
			conf.IOAddress, err = parseByte("io address", kv[1])
		case "baud":
			var baud can.BaudRate
			if baud, err = can.ParseBaudRate(kv[1]); err == nil {
				conf.Baud = byte(baud)
			}
		case "desc", "description":
			if len(kv[1]) >= store.DescriptionSize {
				err = fmt.Errorf("description longer than %d", store.DescriptionSize-1)
			}
			conf.Description = kv[1]
		default:
			err = fmt.Errorf("unknown setting %q", kv[0])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	// ConfigCmd reads the node config.
	ConfigCmd = ishell.Cmd{
		Name:    "config",
		Aliases: []string{"cfg"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.CommandContext()
			defer cancel()
			conf, err := sh.Client(c).Config(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			view := viewOf(conf)
			sh.Print(c, view, func() string {
				return fmt.Sprintf("address=0x%02x baud=%s io=0x%02x desc=%q",
					view.Address, view.Baud, view.IOAddress, view.Description)
			})
		}),
	}

	// ConfigSetCmd updates the node config, effective after reset.
	ConfigSetCmd = ishell.Cmd{
		Name:    "config.set",
		Aliases: []string{"cfgset"},
		Help:    "address=ADDR baud=RATE io=ADDR desc=TEXT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("at least one setting required"))
				return
			}
			ctx, cancel := sh.CommandContext()
			defer cancel()
			client := sh.Client(c)
			conf, err := client.Config(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			if err = applyConfig(&conf, c.Args); err != nil {
				c.Err(err)
				return
			}
			if err = client.UpdateConfig(ctx, conf); err != nil {
				c.Err(err)
				return
			}
			c.Println("Saved, effective after reset")
		}),
	}

	// AppInfoCmd shows the installed application.
	AppInfoCmd = ishell.Cmd{
		Name:    "info.app",
		Aliases: []string{"app"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.CommandContext()
			defer cancel()
			info, ok, err := sh.Client(c).AppInfo(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			var v interface{} = info
			if !ok {
				v = nil
			}
			sh.Print(c, v, func() string {
				if !ok {
					return "No valid application"
				}
				return formatInfo(info)
			})
		}),
	}

	// HardwareInfoCmd shows the board strings.
	HardwareInfoCmd = ishell.Cmd{
		Name:    "info.hw",
		Aliases: []string{"hw"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.CommandContext()
			defer cancel()
			strs, err := sh.Client(c).HardwareInfo(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, strs, func() string { return strings.Join(strs, "\n") })
		}),
	}

	// BootcodeInfoCmd shows the boot code strings.
	BootcodeInfoCmd = ishell.Cmd{
		Name:    "info.boot",
		Aliases: []string{"boot"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.CommandContext()
			defer cancel()
			info, err := sh.Client(c).BootcodeInfo(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, info, func() string { return formatInfo(info) })
		}),
	}

	// FirmwareInfoCmd shows the node firmware strings.
	FirmwareInfoCmd = ishell.Cmd{
		Name:    "info.fw",
		Aliases: []string{"fw"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.CommandContext()
			defer cancel()
			strs, err := sh.Client(c).FirmwareInfo(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, strs, func() string { return strings.Join(strs, "\n") })
		}),
	}
)

func formatInfo(info hosted.Info) string {
	s := info.Description
	if info.Version != "" {
		s += " " + info.Version
	}
	if info.Author != "" {
		s += " by " + info.Author
	}
	if info.URI != "" {
		s += " <" + info.URI + ">"
	}
	return s
}

func init() {
	sh.AddCmds(
		&ConfigCmd,
		&ConfigSetCmd,
		&AppInfoCmd,
		&HardwareInfoCmd,
		&FirmwareInfoCmd,
		&BootcodeInfoCmd,
	)
}
