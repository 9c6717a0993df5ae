// Command alchemist runs the media library re-encoding server.
package main

import (
	"os"

	"github.com/bybrooklyn/alchemist/cmd/alchemist/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
