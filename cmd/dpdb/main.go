// Package main is the entry point for the dpdb binary.
package main

import (
	"os"

	"toltec-dpdb/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
