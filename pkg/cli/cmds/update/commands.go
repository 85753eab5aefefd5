package update

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/nodeos/pkg/cli/sh"
	"github.com/robotalks/nodeos/pkg/companion"
	"github.com/robotalks/nodeos/pkg/flash"
	"github.com/robotalks/nodeos/pkg/hosted"
	"github.com/robotalks/nodeos/pkg/node"
)

// FlashTimeout bounds a complete update.
var FlashTimeout = 5 * time.Minute

func layoutOf(c *ishell.Context) (flash.Layout, error) {
	s := sh.ShellFrom(c)
	board := s.Conn.Ref.Board
	if board == "" {
		board = s.Config.Ref.Board
	}
	if board == "" {
		board = node.DefaultBoard
	}
	conf, err := node.Board(board)
	if err != nil {
		return flash.Layout{}, err
	}
	return conf.Flash, nil
}

// loadImage links a registered program by name, otherwise reads an image
// file.
func loadImage(src string, layout flash.Layout) (*hosted.Image, error) {
	if p := hosted.Lookup(src); p != nil {
		return hosted.Link(p, layout)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return hosted.ReadImage(f, layout)
}

func parseFlashArgs(args []string) (src string, quiet bool, err error) {
	fs := flag.NewFlagSet("flash", flag.ContinueOnError)
	fs.BoolVar(&quiet, "q", false, "no progress")
	if err = fs.Parse(args); err != nil {
		return
	}
	if fs.NArg() != 1 {
		err = fmt.Errorf("PROGRAM or IMAGE-FILE required")
		return
	}
	return fs.Arg(0), quiet, nil
}

// progressPrinter prints each phase and every tenth of the rows.
func progressPrinter(c *ishell.Context) func(companion.Progress) {
	var last companion.Progress
	return func(p companion.Progress) {
		step := p.Total / 10
		if step < 1 {
			step = 1
		}
		if p.Phase == last.Phase && p.Done != p.Total && p.Done-last.Done < step {
			return
		}
		last = p
		if p.Total > 0 {
			c.Printf("%s %d/%d (%s)\n", p.Phase, p.Done, p.Total, p.Elapsed.Round(time.Millisecond))
		} else {
			c.Printf("%s (%s)\n", p.Phase, p.Elapsed.Round(time.Millisecond))
		}
	}
}

var (
	// FlashCmd installs an application.
	FlashCmd = ishell.Cmd{
		Name:    "flash",
		Aliases: []string{"f"},
		Help:    "[-q] PROGRAM|IMAGE-FILE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			src, quiet, err := parseFlashArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			layout, err := layoutOf(c)
			if err != nil {
				c.Err(err)
				return
			}
			img, err := loadImage(src, layout)
			if err != nil {
				c.Err(err)
				return
			}
			f := &companion.Flasher{Client: sh.Client(c), Layout: layout}
			if !quiet {
				f.Progress = progressPrinter(c)
			}
			ctx, cancel := context.WithTimeout(context.Background(), FlashTimeout)
			defer cancel()
			if err = f.Flash(ctx, img); err != nil {
				c.Err(err)
				return
			}
			c.Printf("Installed %s: %d rows\n", img.Name, len(img.Rows))
		}),
	}

	// LinkCmd writes the image of a registered program to a file.
	LinkCmd = ishell.Cmd{
		Name: "link",
		Help: "PROGRAM IMAGE-FILE.cyacd [BOARD]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("PROGRAM and IMAGE-FILE required"))
				return
			}
			p := hosted.Lookup(c.Args[0])
			if p == nil {
				c.Err(fmt.Errorf("unknown program %q, available: %s",
					c.Args[0], strings.Join(hosted.Programs(), ", ")))
				return
			}
			board := node.DefaultBoard
			if len(c.Args) > 2 {
				board = c.Args[2]
			}
			conf, err := node.Board(board)
			if err != nil {
				c.Err(err)
				return
			}
			img, err := hosted.Link(p, conf.Flash)
			if err != nil {
				c.Err(err)
				return
			}
			out, err := os.Create(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			_, err = img.WriteTo(out)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				c.Err(err)
			}
		},
	}

	// ProgramsCmd lists linkable programs.
	ProgramsCmd = ishell.Cmd{
		Name:    "programs",
		Aliases: []string{"progs"},
		Help:    "",
		Func: func(c *ishell.Context) {
			names := hosted.Programs()
			sh.Print(c, names, func() string { return strings.Join(names, "\n") })
		},
	}

	// ReprogramCmd arms an update session and leaves the node without an
	// application until an image is committed.
	ReprogramCmd = ishell.Cmd{
		Name: "reprogram",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.CommandContext()
			defer cancel()
			if err := sh.Client(c).Reprogram(ctx); err != nil {
				c.Err(err)
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&FlashCmd,
		&LinkCmd,
		&ProgramsCmd,
		&ReprogramCmd,
	)
}
