// main - main entry-point to boltbox commands through cobra
// individual commands are outlined in ./cmd/
package main

import (
	"github.com/boltbox/boltbox/cmd"
	"github.com/boltbox/boltbox/libs/logging"

	// pull in the locker service commands. setup code is in init
	_ "github.com/boltbox/boltbox/cmd/locker"
)

var (
	// variables will be overwritten at build time
	version   string
	commit    string
	buildTime string
)

func main() {
	defer func() {
		if logging.Writer != nil {
			logging.Writer.Close()
		}
	}()
	cmd.Execute(version, commit, buildTime)
}
