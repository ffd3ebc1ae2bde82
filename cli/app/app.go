package app

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/crgwbr/knit/cli/server"
)

// Version is the application version, set at build time.
var Version string

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "knit\nVersion: %s\nGoVersion: %s\n", Version, runtime.Version())
}

// New creates a knit instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "knit"
	ctl.Version = Version
	ctl.Usage = "Caching HTTP reverse proxy with a replicated mesh cache"

	ctl.Commands = append(ctl.Commands, server.NewCommands()...)
	return ctl
}
