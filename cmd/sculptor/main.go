// Package main is the entry point for the sculptor CLI.
package main

import (
	"os"

	"github.com/jmylchreest/sculptor/cmd/sculptor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
