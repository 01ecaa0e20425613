// Package main is the entry point for the ssh-profiles binary.
//
// ssh-profiles manages the Host blocks of an OpenSSH client config as
// structured profiles: groups, favorites, tags, jump chains and port
// forwards, written back to ~/.ssh/config in a canonical form.
//
// When invoked without arguments, it launches the interactive dashboard.
// Subcommands (e.g. "list", "host add", "forward add", "tunnel up") run the
// corresponding operation and exit.
//
// Usage:
//
//	ssh-profiles                  # launch the dashboard
//	ssh-profiles list --favorites # list favorite hosts
//	ssh-profiles command db1      # print the equivalent ssh command
package main

import (
	"os"

	"github.com/treykane/ssh-profiles/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
