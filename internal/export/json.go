package export

import (
	"encoding/json"
	"io"

	"github.com/alienxp03/thinktank/internal/core"
)

// JSONExporter writes the debate state as indented JSON.
type JSONExporter struct{}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string { return "json" }

// Export writes the debate as JSON.
func (e *JSONExporter) Export(debate *core.Debate, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(debate)
}
