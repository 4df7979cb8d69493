package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alienxp03/thinktank/internal/core"
)

func sampleDebate() *core.Debate {
	return &core.Debate{
		ID:        "d1",
		SpecTitle: "Grid Storage Outlook",
		Status:    core.StatusInProgress,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Rounds: []core.Round{
			{Number: 1, Focus: "Opening", Moves: []core.Move{
				{ID: "M001", ExpertID: "ana", Round: 1, Position: 0, Type: core.MoveArgument, Content: "Opening."},
			}},
		},
	}
}

func TestRunDirLifecycle(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out, err := NewRunDir(base, "Grid Storage: A/B Review", now)
	if err != nil {
		t.Fatalf("NewRunDir failed: %v", err)
	}
	wantName := "Grid_Storage-_A-B_Review_20260301_120000"
	if filepath.Base(out.Path) != wantName {
		t.Errorf("run dir = %q, want %q", filepath.Base(out.Path), wantName)
	}

	debate := sampleDebate()
	if err := out.WriteState(debate); err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}
	if err := out.WriteMove(1, debate.Rounds[0].Moves[0]); err != nil {
		t.Fatalf("WriteMove failed: %v", err)
	}
	if err := out.WriteCost(map[string]int{"total": 1}); err != nil {
		t.Fatalf("WriteCost failed: %v", err)
	}
	if err := out.WriteReport([]byte("# report\n")); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	for _, name := range []string{StateFile, CostFile, ReportFile, "move_01_R1_ana.json"} {
		if _, err := os.Stat(filepath.Join(out.Path, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	// No temp files left behind after atomic writes.
	entries, _ := os.ReadDir(out.Path)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("stray temp file %s", e.Name())
		}
	}
}

func TestLoadState(t *testing.T) {
	base := t.TempDir()
	out, err := NewRunDir(base, "Test", time.Now())
	if err != nil {
		t.Fatalf("NewRunDir failed: %v", err)
	}
	debate := sampleDebate()
	if err := out.WriteState(debate); err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}

	t.Run("from directory", func(t *testing.T) {
		loaded, err := LoadState(out.Path)
		if err != nil {
			t.Fatalf("LoadState failed: %v", err)
		}
		if loaded.ID != "d1" || len(loaded.Rounds) != 1 {
			t.Errorf("loaded = %+v", loaded)
		}
	})

	t.Run("from file path", func(t *testing.T) {
		loaded, err := LoadState(filepath.Join(out.Path, StateFile))
		if err != nil {
			t.Fatalf("LoadState failed: %v", err)
		}
		if loaded.Rounds[0].Moves[0].ID != "M001" {
			t.Errorf("loaded move = %+v", loaded.Rounds[0].Moves[0])
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, err := LoadState(filepath.Join(base, "nope")); err == nil {
			t.Error("expected error for missing path")
		}
	})
}

func TestCheckpointOverwriteIsAtomic(t *testing.T) {
	out, err := NewRunDir(t.TempDir(), "Test", time.Now())
	if err != nil {
		t.Fatalf("NewRunDir failed: %v", err)
	}

	debate := sampleDebate()
	if err := out.WriteState(debate); err != nil {
		t.Fatalf("first WriteState failed: %v", err)
	}

	// Second checkpoint with a new round replaces the document wholesale.
	debate.Rounds = append(debate.Rounds, core.Round{Number: 2, Focus: "Challenge"})
	debate.Status = core.StatusCompleted
	if err := out.WriteState(debate); err != nil {
		t.Fatalf("second WriteState failed: %v", err)
	}

	loaded, err := LoadState(out.Path)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(loaded.Rounds) != 2 || loaded.Status != core.StatusCompleted {
		t.Errorf("loaded = %d rounds, status %s", len(loaded.Rounds), loaded.Status)
	}
}

func TestListRuns(t *testing.T) {
	base := t.TempDir()

	t.Run("missing base dir is empty, not an error", func(t *testing.T) {
		runs, err := ListRuns(filepath.Join(base, "absent"))
		if err != nil || runs != nil {
			t.Errorf("ListRuns = %v, %v", runs, err)
		}
	})

	withState, err := NewRunDir(base, "Real", time.Now())
	if err != nil {
		t.Fatalf("NewRunDir failed: %v", err)
	}
	if err := withState.WriteState(sampleDebate()); err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}
	// A directory without a state document is not a run.
	os.MkdirAll(filepath.Join(base, "empty_dir"), 0755)

	runs, err := ListRuns(base)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0] != withState.Path {
		t.Errorf("runs = %v, want [%s]", runs, withState.Path)
	}
}
