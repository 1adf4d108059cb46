// Package cmd provides the CLI commands for invoicectl.
package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "invoicectl",
	Short: "Operate the carrier invoicing pipeline",
	Long: `invoicectl runs pieces of the carrier invoicing pipeline from the
command line.

Examples:
  invoicectl process ./carrier-march.csv
  invoicectl seed ./agreements.json
  invoicectl genfile --lines 50 ./sample.csv`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(genfileCmd)
}
