// Package all imports all shell commands and linkable programs.
package all

import (
	// shell commands
	_ "github.com/robotalks/nodeos/pkg/cli/cmds/node"
	_ "github.com/robotalks/nodeos/pkg/cli/cmds/update"

	// programs for flash and link
	_ "github.com/robotalks/nodeos/pkg/hosted/apps/faulty"
	_ "github.com/robotalks/nodeos/pkg/hosted/apps/heartbeat"
)
