package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/llm"
)

func completedDebate() *core.Debate {
	now := time.Now().UTC()
	return &core.Debate{
		ID:        "d1",
		SpecTitle: "Grid Storage Outlook",
		PanelName: "energy",
		Status:    core.StatusCompleted,
		StartedAt: now,
		Rounds: []core.Round{
			{Number: 1, Moves: []core.Move{
				{
					ID: "M001", ExpertID: "ana", Round: 1, Position: 0, Type: core.MoveArgument,
					Content: "Opening.",
					Claims: []core.Claim{
						{ID: "M001_C1", Text: "LCOS falls below $100/MWh by 2030", Confidence: 0.7, Stance: core.StanceSupports},
						{ID: "M001_C2", Text: "Grid economics favor storage generally", Confidence: 0.6, Stance: core.StanceSupports},
					},
				},
				{
					ID: "M002", ExpertID: "ben", Round: 1, Position: 1, Type: core.MoveRebuttal,
					Content: "Counter.", Targets: []string{"M001"},
					Claims: []core.Claim{
						{ID: "M002_C1", Text: "Supply chains stay constrained", Confidence: 0.5, Stance: core.StanceNeutral,
							Assumptions: []string{"no new lithium capacity before 2028"}},
					},
				},
			}},
			{Number: 2, IsSynthesis: true, Moves: []core.Move{
				{
					ID: "M003", ExpertID: core.SynthesizerID, Round: 2, Position: 0, Type: core.MoveSynthesis,
					Content: "Synthesis.",
					Claims: []core.Claim{
						{ID: "M003_C1", Text: "Deployment accelerates by 2029", Confidence: 0.6, Stance: core.StanceSupports},
					},
				},
			}},
		},
	}
}

func TestRegisterForecasts(t *testing.T) {
	forecasts := RegisterForecasts(completedDebate())

	// M001_C1: supports + year in text -> forecast.
	// M001_C2: supports but no year -> no forecast.
	// M002_C1: neutral stance -> no forecast even with a year assumption.
	// M003_C1: synthesis move -> excluded.
	if len(forecasts) != 1 {
		t.Fatalf("forecasts = %d, want 1", len(forecasts))
	}
	f := forecasts[0]
	if f.SourceClaimID != "M001_C1" || f.ExpertID != "ana" {
		t.Errorf("forecast = %+v", f)
	}
	if f.Deadline != "2030-12-31" {
		t.Errorf("deadline = %q, want 2030-12-31", f.Deadline)
	}
	if f.Probability != 0.7 || f.State != core.ForecastPending {
		t.Errorf("forecast = %+v", f)
	}
}

func TestDetectDeadline(t *testing.T) {
	tests := []struct {
		name  string
		claim core.Claim
		want  string
		ok    bool
	}{
		{
			"year in text",
			core.Claim{Text: "Capacity doubles by 2031", Stance: core.StanceSupports},
			"2031-12-31", true,
		},
		{
			"year in assumption",
			core.Claim{Text: "Costs keep falling", Stance: core.StanceOpposes,
				Assumptions: []string{"stable policy until 2027"}},
			"2027-12-31", true,
		},
		{
			"bare year in text is not a deadline",
			core.Claim{Text: "The 2031 auction clears at record volume", Stance: core.StanceSupports},
			"", false,
		},
		{
			"bare year in assumption",
			core.Claim{Text: "Costs keep falling", Stance: core.StanceSupports,
				Assumptions: []string{"2027 interconnection queue clears"}},
			"2027-12-31", true,
		},
		{
			"neutral stance never forecasts",
			core.Claim{Text: "Capacity doubles by 2031", Stance: core.StanceNeutral},
			"", false,
		},
		{
			"no year anywhere",
			core.Claim{Text: "Capacity doubles eventually", Stance: core.StanceSupports},
			"", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := detectDeadline(tt.claim)
			if got != tt.want || ok != tt.ok {
				t.Errorf("detectDeadline = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPerformanceDeltas(t *testing.T) {
	deltas := PerformanceDeltas(completedDebate())

	// Two experts contributed non-synthesis moves; the synthesis agent
	// gets no performance record.
	if len(deltas) != 2 {
		t.Fatalf("deltas = %d, want 2", len(deltas))
	}

	byID := make(map[string]PerfDelta)
	for _, d := range deltas {
		byID[d.ExpertID] = d
	}
	if _, ok := byID[core.SynthesizerID]; ok {
		t.Error("synthesis agent must not appear in performance deltas")
	}

	ana := byID["ana"]
	if ana.Claims != 2 || ana.ConfidenceSum != 1.3 {
		t.Errorf("ana = %+v", ana)
	}
	if ana.ChallengesReceived != 1 || ana.ChallengesMade != 0 {
		t.Errorf("ana challenges = %+v", ana)
	}

	ben := byID["ben"]
	if ben.ChallengesMade != 1 || ben.ChallengesReceived != 0 {
		t.Errorf("ben challenges = %+v", ben)
	}
	if ben.Claims != 1 || ben.ConfidenceSum != 0.5 {
		t.Errorf("ben = %+v", ben)
	}
}

func TestPerformanceDeltasSelfTarget(t *testing.T) {
	d := completedDebate()
	// ben rebuts his own move: challenge made still counts, received does not.
	d.Rounds[0].Moves = append(d.Rounds[0].Moves, core.Move{
		ID: "M004", ExpertID: "ben", Round: 1, Position: 2, Type: core.MoveRebuttal,
		Content: "Refining my own point.", Targets: []string{"M002"},
	})

	byID := make(map[string]PerfDelta)
	for _, delta := range PerformanceDeltas(d) {
		byID[delta.ExpertID] = delta
	}
	ben := byID["ben"]
	if ben.ChallengesMade != 2 {
		t.Errorf("challenges made = %d, want 2", ben.ChallengesMade)
	}
	if ben.ChallengesReceived != 0 {
		t.Errorf("challenges received = %d, want 0 for self-target", ben.ChallengesReceived)
	}
}

func TestRecordDebate(t *testing.T) {
	openStore := func(t *testing.T) *Store {
		s, err := Open(filepath.Join(t.TempDir(), "memory.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}

	lessonJSON := `[
		{"text": "Cost claims clustered high; demand equal scrutiny.", "category": "bias", "confidence": 0.8},
		{"text": "not-a-category entry", "category": "opinion", "confidence": 0.9}
	]`

	t.Run("commits lessons, forecasts, and performance together", func(t *testing.T) {
		s := openStore(t)
		client := llm.NewMockClient(lessonJSON)

		batch, err := s.RecordDebate(context.Background(), completedDebate(), client, "test-model")
		if err != nil {
			t.Fatalf("RecordDebate failed: %v", err)
		}

		// The invalid category candidate is dropped, not repaired.
		if len(batch.Lessons) != 1 {
			t.Errorf("lessons = %d, want 1 (invalid candidate dropped)", len(batch.Lessons))
		}
		if len(batch.Forecasts) != 1 || len(batch.Perf) != 2 {
			t.Errorf("batch = %d forecasts, %d perf", len(batch.Forecasts), len(batch.Perf))
		}

		stored, err := s.ListLessons()
		if err != nil || len(stored) != 1 {
			t.Errorf("stored lessons = %v, %v", stored, err)
		}
	})

	t.Run("refuses non-completed debates", func(t *testing.T) {
		s := openStore(t)
		d := completedDebate()
		d.Status = core.StatusFailed
		if _, err := s.RecordDebate(context.Background(), d, llm.NewMockClient(lessonJSON), "m"); err == nil {
			t.Error("expected error for failed debate")
		}
	})

	t.Run("extraction failure leaves the store untouched", func(t *testing.T) {
		s := openStore(t)
		client := llm.NewMockClient("no array here")

		if _, err := s.RecordDebate(context.Background(), completedDebate(), client, "m"); err == nil {
			t.Fatal("expected extraction failure")
		}
		lessons, _ := s.ListLessons()
		forecasts, _ := s.ListForecasts()
		if len(lessons) != 0 || len(forecasts) != 0 {
			t.Error("partial memory state written after failed extraction")
		}
	})
}
