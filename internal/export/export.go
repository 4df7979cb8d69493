// Package export renders debate transcripts to various formats.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/alienxp03/thinktank/internal/core"
)

// Format represents an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// Exporter defines the interface for rendering a debate.
type Exporter interface {
	Export(debate *core.Debate, w io.Writer) error
	FileExtension() string
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return &MarkdownExporter{}, nil
	case FormatPDF:
		return &PDFExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// GenerateFilename creates a filename for an exported debate.
func GenerateFilename(debate *core.Debate, ext string) string {
	title := debate.SpecTitle
	if len(title) > 50 {
		title = title[:50]
	}

	replacer := strings.NewReplacer(
		" ", "_",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	title = replacer.Replace(title)

	timestamp := debate.StartedAt.Format("20060102")
	return fmt.Sprintf("debate_%s_%s.%s", timestamp, title, ext)
}

func stanceMarker(s core.Stance) string {
	switch s {
	case core.StanceSupports:
		return "+"
	case core.StanceOpposes:
		return "-"
	default:
		return "~"
	}
}
