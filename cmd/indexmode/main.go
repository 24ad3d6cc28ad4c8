// Package main provides the entry point for the indexmode CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/indexmode/cmd/indexmode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
