// Package main is the entry point for the vodarr server.
package main

import (
	"os"

	"github.com/jmylchreest/vodarr/cmd/vodarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
