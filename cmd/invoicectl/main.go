// Package main is the entry point for the invoicectl CLI.
package main

import (
	"os"

	"invoicing-cloud/cmd/invoicectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
