package main

import (
	"os"

	"github.com/mirkwood-lang/mirkwood/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
