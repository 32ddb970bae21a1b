package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ledongthuc/pdf"
)

// Page geometry for generated PDFs, US letter with one-inch margins.
const (
	pdfMargin    = 72
	pdfFontSize  = 12
	pdfTitleSize = 16
	pdfLeading   = 16
)

// writePDF renders the title and paragraphs as single-column Helvetica
// text on US letter pages. Good enough for voice-dictated reports; no
// images, no styling.
func writePDF(title string, paragraphs []string) ([]byte, error) {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Helvetica", "B", pdfTitleSize)
		doc.MultiCell(0, pdfLeading+4, title, "", "L", false)
		doc.Ln(pdfLeading)
	}
	doc.SetFont("Helvetica", "", pdfFontSize)
	for i, p := range paragraphs {
		if i > 0 {
			doc.Ln(pdfLeading / 2)
		}
		doc.MultiCell(0, pdfLeading, p, "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("document: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// extractPDF pulls the plain text out of every page of a PDF.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("document: parse pdf: %w", err)
	}

	var parts []string
	for n := 1; n <= reader.NumPage(); n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
