// Package env carries the settings shared by the nodeos commands.
package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine, shortened
// to fit a topic level.
func MachineID() string {
	id, err := machineid.ProtectedID("nodeos")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return "local"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
