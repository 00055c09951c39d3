// Package main provides the entry point for the tailored CLI.
package main

import (
	"os"

	"github.com/wwaihoe/TailorED/cmd/tailored/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
