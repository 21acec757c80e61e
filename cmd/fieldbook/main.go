// Command fieldbook compiles rulebook formulas into runnable code.
package main

import (
	"os"

	"github.com/fieldbook-labs/fieldbook/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
