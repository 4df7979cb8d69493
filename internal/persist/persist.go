// Package persist writes debate runs to self-contained, timestamped run
// directories and loads them back for replay. Each run produces a full
// debate-state document, one document per agent invocation, and a cost
// summary; replay needs only the debate-state document.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alienxp03/thinktank/internal/core"
)

const (
	// StateFile is the full debate-state document.
	StateFile = "debate_state.json"

	// CostFile is the cost/usage summary document.
	CostFile = "cost.json"

	// ReportFile is the rendered transcript report.
	ReportFile = "report.md"
)

// RunDir is one run's output directory.
type RunDir struct {
	Path string
}

// NewRunDir creates a timestamped run directory under baseDir, named
// after the spec title.
func NewRunDir(baseDir, specTitle string, now time.Time) (*RunDir, error) {
	slug := slugify(specTitle)
	dir := filepath.Join(baseDir, fmt.Sprintf("%s_%s", slug, now.Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &RunDir{Path: dir}, nil
}

// OpenRunDir wraps an existing directory without creating anything.
func OpenRunDir(dir string) *RunDir {
	return &RunDir{Path: dir}
}

// WriteMove persists one validated move as its own document.
func (r *RunDir) WriteMove(seq int, m core.Move) error {
	name := fmt.Sprintf("move_%02d_R%d_%s.json", seq, m.Round, m.ExpertID)
	return r.writeJSON(name, m)
}

// WriteState persists the full debate state. The write is atomic
// (temp file + rename), so an aborted run never leaves a torn state
// document: the durable state remains whatever was last committed.
func (r *RunDir) WriteState(d *core.Debate) error {
	return r.writeJSON(StateFile, d)
}

// WriteCost persists the cost/usage summary.
func (r *RunDir) WriteCost(summary any) error {
	return r.writeJSON(CostFile, summary)
}

// WriteReport persists the rendered report.
func (r *RunDir) WriteReport(data []byte) error {
	if err := os.WriteFile(filepath.Join(r.Path, ReportFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *RunDir) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(r.Path, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

// LoadState reads a debate-state document. The path may be the document
// itself or a run directory containing one.
func LoadState(path string) (*core.Debate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat state path: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, StateFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read debate state: %w", err)
	}

	var debate core.Debate
	if err := json.Unmarshal(data, &debate); err != nil {
		return nil, fmt.Errorf("failed to parse debate state %s: %w", path, err)
	}
	return &debate, nil
}

// ListRuns returns run directories under baseDir that contain a state
// document, newest name last.
func ListRuns(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		statePath := filepath.Join(baseDir, entry.Name(), StateFile)
		if _, err := os.Stat(statePath); err == nil {
			runs = append(runs, filepath.Join(baseDir, entry.Name()))
		}
	}
	return runs, nil
}

func slugify(title string) string {
	if len(title) > 30 {
		title = title[:30]
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-")
	return replacer.Replace(title)
}
