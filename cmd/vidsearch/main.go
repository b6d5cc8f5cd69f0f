// Package main provides the entry point for the vidsearch CLI.
package main

import (
	"os"

	"github.com/playbacklab/vidsearch/cmd/vidsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
