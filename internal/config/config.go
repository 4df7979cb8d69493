// Package config loads expert panels and debate specs from YAML files.
// Documents are validated here; the rest of the system trusts them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alienxp03/thinktank/internal/core"
)

// LoadPanel loads an expert panel from a YAML file.
func LoadPanel(path string) (*core.Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read panel: %w", err)
	}

	var panel core.Panel
	if err := yaml.Unmarshal(data, &panel); err != nil {
		return nil, fmt.Errorf("failed to parse panel %s: %w", path, err)
	}

	if panel.Name == "" {
		panel.Name = stem(path)
	}
	if len(panel.Experts) == 0 {
		return nil, fmt.Errorf("panel %s has no experts", path)
	}

	seen := make(map[string]bool)
	for i, e := range panel.Experts {
		if e.ID == "" {
			return nil, fmt.Errorf("panel %s: expert %d has no id", path, i+1)
		}
		if e.ID == core.SynthesizerID {
			return nil, fmt.Errorf("panel %s: expert id %q is reserved", path, core.SynthesizerID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("panel %s: duplicate expert id %q", path, e.ID)
		}
		seen[e.ID] = true
	}

	return &panel, nil
}

// LoadSpec loads a debate specification from a YAML file.
func LoadSpec(path string) (*core.DebateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}

	var spec core.DebateSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec %s: %w", path, err)
	}

	if spec.Title == "" {
		spec.Title = stem(path)
	}
	if len(spec.Rounds) == 0 {
		return nil, fmt.Errorf("spec %s has no rounds", path)
	}

	for i := range spec.Rounds {
		r := &spec.Rounds[i]
		if r.Number == 0 {
			r.Number = i + 1
		}
		if len(r.Agents) == 0 && !r.AutoSelect {
			return nil, fmt.Errorf("spec %s: round %d has no agents and auto_select is off", path, r.Number)
		}
		// The synthesizer-only round is the synthesis round even if the
		// document does not flag it.
		if len(r.Agents) == 1 && r.Agents[0] == core.SynthesizerID {
			r.IsSynthesis = true
		}
	}

	return &spec, nil
}

// ValidateSpecAgainstPanel checks that every agent id referenced by the
// spec exists in the panel. Returns warning messages (empty = valid).
func ValidateSpecAgainstPanel(spec *core.DebateSpec, panel *core.Panel) []string {
	ids := make(map[string]bool)
	for _, id := range panel.ListIDs() {
		ids[id] = true
	}

	var warnings []string
	for _, r := range spec.Rounds {
		for _, agentID := range r.Agents {
			if agentID == core.SynthesizerID {
				continue
			}
			if !ids[agentID] {
				warnings = append(warnings, fmt.Sprintf(
					"round %d: agent %q not found in panel %q (%d experts available)",
					r.Number, agentID, panel.Name, len(panel.Experts)))
			}
		}
	}
	return warnings
}

// DiscoverFiles finds YAML files in a directory, sorted by name.
// Files whose name starts with "_" are skipped.
func DiscoverFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "_") {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
