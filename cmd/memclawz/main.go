// Package main provides the entry point for the memclawz CLI.
package main

import (
	"os"

	"github.com/yoniassia/memclawz/cmd/memclawz/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
