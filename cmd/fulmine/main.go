// Command fulmine is the entry point for the validator node and its CLI
// client surface.
package main

import (
	"github.com/nicolocarcagni/fulmine/internal/cli"
)

func main() {
	cli.Execute()
}
