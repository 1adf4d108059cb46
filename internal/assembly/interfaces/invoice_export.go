package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	assembly "invoicing-cloud/internal/assembly/domain"
)

// BuildInvoicePDF renders a minimal PDF for an assembled invoice.
func BuildInvoicePDF(invoice assembly.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Carrier Invoice")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", invoice.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Batch: %s", invoice.CorrelationID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Assembled: %s", invoice.AssembledAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Lines: %d", len(invoice.Lines)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "Line", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Nett", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "VAT", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range invoice.Lines {
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", line.Position), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, line.NettTotal.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, line.VATAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, line.LineTotal.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Nett Total (%s): %s", invoice.Currency, invoice.NettTotal.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("VAT Total (%s): %s", invoice.Currency, invoice.VATTotal.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice Total (%s): %s", invoice.Currency, invoice.Total.StringFixed(2)))

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders a minimal XLSX for an assembled invoice.
func BuildInvoiceXLSX(invoice assembly.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	linesSheet := "lines"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(linesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Carrier Invoice")
	_ = f.SetCellValue(summarySheet, "A3", "Invoice")
	_ = f.SetCellValue(summarySheet, "B3", invoice.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Batch")
	_ = f.SetCellValue(summarySheet, "B4", invoice.CorrelationID)
	_ = f.SetCellValue(summarySheet, "A5", "Assembled")
	_ = f.SetCellValue(summarySheet, "B5", invoice.AssembledAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Nett Total")
	_ = f.SetCellValue(summarySheet, "B6", invoice.NettTotal.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A7", "VAT Total")
	_ = f.SetCellValue(summarySheet, "B7", invoice.VATTotal.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A8", "Invoice Total")
	_ = f.SetCellValue(summarySheet, "B8", invoice.Total.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A9", "Currency")
	_ = f.SetCellValue(summarySheet, "B9", invoice.Currency)

	_ = f.SetCellValue(linesSheet, "A1", "Line")
	_ = f.SetCellValue(linesSheet, "B1", "Nett")
	_ = f.SetCellValue(linesSheet, "C1", "VAT")
	_ = f.SetCellValue(linesSheet, "D1", "Total")
	for i, line := range invoice.Lines {
		row := i + 2
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), line.Position)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), line.NettTotal.StringFixed(2))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), line.VATAmount.StringFixed(2))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), line.LineTotal.StringFixed(2))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
