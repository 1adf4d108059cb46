// Package cmd - genfile command
package cmd

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

var (
	genLines    int
	genCustomer string
)

var genfileHeader = []string{"Billing Account", "Weight Charge", "Fuel Charge", "Security Charge", "Quantity", "Volume", "Distance"}

// genfileCmd writes a synthetic carrier file for pipeline testing.
var genfileCmd = &cobra.Command{
	Use:   "genfile [file]",
	Short: "Generate a synthetic carrier invoice file (.csv or .xlsx)",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenfile,
}

func init() {
	genfileCmd.Flags().IntVar(&genLines, "lines", 20, "number of invoice lines")
	genfileCmd.Flags().StringVar(&genCustomer, "customer", "ACME-001", "billing account value")
}

func runGenfile(cmd *cobra.Command, args []string) error {
	if genLines <= 0 {
		return fmt.Errorf("lines must be positive")
	}
	path := args[0]
	rows := make([][]string, 0, genLines)
	for i := 0; i < genLines; i++ {
		rows = append(rows, []string{
			genCustomer,
			fmt.Sprintf("%.2f", 5+rand.Float64()*95),
			fmt.Sprintf("%.2f", rand.Float64()*10),
			fmt.Sprintf("%.2f", rand.Float64()*3),
			fmt.Sprintf("%d", 1+rand.Intn(20)),
			fmt.Sprintf("%.3f", rand.Float64()*2),
			fmt.Sprintf("%.1f", rand.Float64()*500),
		})
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(path, rows)
	case ".xlsx":
		return writeXLSX(path, rows)
	default:
		return fmt.Errorf("unsupported extension %q, use .csv or .xlsx", filepath.Ext(path))
	}
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(genfileHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeXLSX(path string, rows [][]string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for col, name := range genfileHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}
