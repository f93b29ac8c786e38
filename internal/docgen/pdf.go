package docgen

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	pdfLineHeight = 6.0
	pdfMargin     = 20.0
)

func renderPDF(path, title string, blocks []Block) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(title, true)
	pdf.AddPage()

	// Core fonts are cp1252.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 10, tr(title), "", "L", false)
	pdf.Ln(4)

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin

	for i, b := range blocks {
		switch b.Kind {
		case Heading1:
			pdf.SetFont("Helvetica", "B", 16)
			pdf.MultiCell(0, 9, tr(b.Text), "", "L", false)
			pdf.Ln(2)
		case Heading2:
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 8, tr(b.Text), "", "L", false)
			pdf.Ln(1)
		case Paragraph:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, pdfLineHeight, tr(b.Text), "", "L", false)
			pdf.Ln(2)
		case Bullets:
			pdf.SetFont("Helvetica", "", 11)
			for _, item := range b.Items {
				pdf.MultiCell(0, pdfLineHeight, tr("- "+item), "", "L", false)
			}
			pdf.Ln(2)
		case Table:
			writePDFTable(pdf, tr, b.Rows, usable)
			pdf.Ln(3)
		case Image:
			writePDFImage(pdf, fmt.Sprintf("image-%d", i), b)
		}
	}

	return pdf.OutputFileAndClose(path)
}

// writePDFImage places b at the cursor. An image fpdf cannot embed, such as
// an interlaced PNG, is left out and the document continues.
func writePDFImage(pdf *fpdf.Fpdf, name string, b Block) {
	opts := fpdf.ImageOptions{ImageType: b.Format, ReadDpi: true}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(b.Data))
	if !pdf.Ok() {
		pdf.ClearError()
		return
	}
	pdf.ImageOptions(name, -1, 0, imageWidthMM, 0, true, opts, 0, "")
	pdf.Ln(3)
}

func writePDFTable(pdf *fpdf.Fpdf, tr func(string) string, rows [][]string, width float64) {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return
	}
	colWidth := width / float64(cols)

	for i, row := range rows {
		if i == 0 {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetFillColor(74, 74, 74)
			pdf.SetTextColor(255, 255, 255)
		} else {
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetFillColor(245, 245, 220)
			pdf.SetTextColor(0, 0, 0)
		}
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			pdf.CellFormat(colWidth, 7, tr(cell), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.SetTextColor(0, 0, 0)
}
