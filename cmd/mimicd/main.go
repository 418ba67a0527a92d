// Command mimicd runs the real-time document synchronization server.
package main

import (
	"fmt"
	"os"

	"github.com/foundrysync/mimic/cmd/mimicd/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
