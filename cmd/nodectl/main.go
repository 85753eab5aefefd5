package main

import (
	"github.com/robotalks/nodeos/pkg/cli/sh"
	env "github.com/robotalks/nodeos/pkg/env/companion"

	_ "github.com/robotalks/nodeos/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
