// Command facade manages an entity store from the command line.
package main

import (
	"os"

	"github.com/othierry/facade/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
