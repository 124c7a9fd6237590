// Command ringcat copies stdin to stdout through a bounded ring channel.
//
// Usage:
//
//	ringcat [--capacity 64KiB] [--chunk 4KiB] [--partial] [--stall-timeout 10m] [--config file.yaml]
package main

import (
	"fmt"
	"os"

	"github.com/jacoelho/ringchan/cmd/ringcat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
