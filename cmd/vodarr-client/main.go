// Package main is the entry point for the vodarr streaming client.
package main

import (
	"os"

	"github.com/jmylchreest/vodarr/cmd/vodarr-client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
