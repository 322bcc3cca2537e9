package main

import (
	"os"

	"github.com/fatflowers/paycoord/cmd/paycoordctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
