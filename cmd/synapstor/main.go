// Package main provides the entry point for the synapstor CLI.
package main

import (
	"os"

	"github.com/casheiro/synapstor-go/cmd/synapstor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
