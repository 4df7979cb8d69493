package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/alienxp03/thinktank/internal/core"
)

// PDFExporter renders a debate as a PDF document.
type PDFExporter struct{}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string { return "pdf" }

// Export writes the debate as PDF.
func (e *PDFExporter) Export(debate *core.Debate, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, debate.SpecTitle, "", "C", false)
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate Information")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	e.addMetadataRow(pdf, "ID:", debate.ID)
	e.addMetadataRow(pdf, "Panel:", debate.PanelName)
	e.addMetadataRow(pdf, "Model:", fmt.Sprintf("%s (synthesis: %s)", debate.Model, debate.SynthModel))
	e.addMetadataRow(pdf, "Status:", string(debate.Status))
	e.addMetadataRow(pdf, "Started:", debate.StartedAt.UTC().Format("2006-01-02 15:04:05"))
	if debate.FinishedAt != nil {
		e.addMetadataRow(pdf, "Finished:", debate.FinishedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	pdf.Ln(5)

	for _, round := range debate.Rounds {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 13)
		pdf.MultiCell(0, 8, fmt.Sprintf("Round %d: %s", round.Number, round.Focus), "", "L", false)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 6, round.Question, "", "L", false)
		pdf.Ln(3)

		for _, m := range round.Moves {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}

			pdf.SetFillColor(235, 235, 245)
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 7, fmt.Sprintf("[%s] %s (%s)", m.ID, m.ExpertTitle, m.Type), "", 1, "L", true, 0, "")

			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 5, m.Content, "", "L", false)
			pdf.Ln(2)

			for _, c := range m.Claims {
				pdf.SetFont("Arial", "", 9)
				pdf.MultiCell(0, 5, fmt.Sprintf("  %s [%s] (%.2f) %s", c.ID, stanceMarker(c.Stance), c.Confidence, c.Text), "", "L", false)
			}
			pdf.Ln(3)
		}
	}

	return pdf.Output(w)
}

func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 6, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, value)
	pdf.Ln(6)
}
