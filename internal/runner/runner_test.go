package runner_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/export"
	"github.com/alienxp03/thinktank/internal/llm"
	"github.com/alienxp03/thinktank/internal/memory"
	"github.com/alienxp03/thinktank/internal/persist"
	"github.com/alienxp03/thinktank/internal/runner"
)

const anaArgument = `{
	"move_type": "argument",
	"content": "Long-duration storage is the binding constraint on decarbonization.",
	"claims": [
		{"text": "LCOS falls below $100/MWh by 2030", "confidence": 0.7, "stance": "supports"},
		{"text": "Transmission build-out lags demand", "confidence": 0.8, "stance": "opposes"}
	]
}`

const benRebuttal = `{
	"move_type": "rebuttal",
	"content": "The cost curve argument ignores supply chain limits.",
	"claims": [
		{"text": "Lithium supply doubles by 2029", "confidence": 0.5, "stance": "neutral"}
	],
	"targets": ["M001"]
}`

const synthMove = `{
	"move_type": "synthesis",
	"content": "Both positions agree storage cost matters; they disagree on timing.",
	"claims": [
		{"text": "Storage deployment accelerates after 2028", "confidence": 0.6, "stance": "supports"}
	]
}`

func twoRoundSpec() *core.DebateSpec {
	return &core.DebateSpec{
		Title:   "Grid Storage Outlook",
		Context: "Evaluate long-duration storage for grid decarbonization.",
		Rounds: []core.RoundConfig{
			{Number: 1, Focus: "Opening", Question: "State your position.", Agents: []string{"ana", "ben"}},
			{Number: 2, Focus: "Synthesis", Question: "Consolidate.", Agents: []string{core.SynthesizerID}, IsSynthesis: true},
		},
	}
}

func smallPanel() *core.Panel {
	return &core.Panel{
		Name: "energy",
		Experts: []core.Expert{
			{ID: "ana", Name: "Ana", Title: "Grid Economist"},
			{ID: "ben", Name: "Ben", Title: "Supply Chain Analyst"},
		},
	}
}

func TestRunnerCompletesDebate(t *testing.T) {
	client := llm.NewMockClient(anaArgument, benRebuttal, synthMove)
	r := runner.New(runner.Options{
		Spec:       twoRoundSpec(),
		Panel:      smallPanel(),
		Client:     client,
		Model:      "test-model",
		SynthModel: "test-synth",
	})

	debate, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if debate.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", debate.Status)
	}
	if debate.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if len(debate.Rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(debate.Rounds))
	}

	moves := debate.Moves()
	if len(moves) != 3 {
		t.Fatalf("moves = %d, want 3", len(moves))
	}
	for i, wantID := range []string{"M001", "M002", "M003"} {
		if moves[i].ID != wantID {
			t.Errorf("move %d id = %q, want %q", i, moves[i].ID, wantID)
		}
	}

	if moves[1].Type != core.MoveRebuttal || len(moves[1].Targets) != 1 || moves[1].Targets[0] != "M001" {
		t.Errorf("rebuttal = %+v", moves[1])
	}
	if moves[2].Type != core.MoveSynthesis || moves[2].ExpertID != core.SynthesizerID {
		t.Errorf("synthesis move = %+v", moves[2])
	}
	if moves[0].Claims[0].ID != "M001_C1" || moves[0].Claims[1].ID != "M001_C2" {
		t.Errorf("claim ids = %v", moves[0].Claims)
	}
	if debate.TotalClaims() != 4 {
		t.Errorf("claims = %d, want 4", debate.TotalClaims())
	}
	if debate.InputTokens == 0 || debate.OutputTokens == 0 {
		t.Error("token totals not accumulated")
	}
	if client.Calls() != 3 {
		t.Errorf("calls = %d, want 3", client.Calls())
	}

	// The synthesis request must run on the synthesis tier.
	last := client.Requests[len(client.Requests)-1]
	if last.Model != "test-synth" {
		t.Errorf("synthesis model = %q, want test-synth", last.Model)
	}
}

func TestRunnerSkipsExhaustedAgent(t *testing.T) {
	// ben never produces valid output: one initial attempt plus two
	// retries, then the round proceeds without him.
	client := llm.NewMockClient(
		anaArgument,
		"garbage", "garbage", "garbage",
		synthMove,
	)
	r := runner.New(runner.Options{
		Spec:       twoRoundSpec(),
		Panel:      smallPanel(),
		Client:     client,
		Model:      "test-model",
		SynthModel: "test-synth",
	})

	var skipped []string
	debate, err := r.Run(context.Background(), &runner.Callbacks{
		OnSkip: func(expertID string, round int, err error) {
			skipped = append(skipped, expertID)
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if debate.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", debate.Status)
	}
	if len(skipped) != 1 || skipped[0] != "ben" {
		t.Errorf("skipped = %v, want [ben]", skipped)
	}
	round1 := debate.Rounds[0]
	if len(round1.Moves) != 1 || len(round1.Skipped) != 1 || round1.Skipped[0] != "ben" {
		t.Errorf("round 1 = %+v", round1)
	}
	if client.Calls() != 5 {
		t.Errorf("calls = %d, want 5", client.Calls())
	}
}

func TestRunnerMandatoryAgentFailsDebate(t *testing.T) {
	spec := twoRoundSpec()
	spec.Rounds[0].Mandatory = []string{"ben"}

	client := llm.NewMockClient(anaArgument, "garbage", "garbage", "garbage")
	r := runner.New(runner.Options{
		Spec:       spec,
		Panel:      smallPanel(),
		Client:     client,
		Model:      "test-model",
		SynthModel: "test-synth",
	})

	debate, err := r.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected failure for mandatory agent")
	}
	var exhausted *core.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("error = %v, want wrapped *core.ExhaustedError", err)
	}
	if debate.Status != core.StatusFailed {
		t.Errorf("status = %s, want failed", debate.Status)
	}
	if debate.FailReason == "" {
		t.Error("FailReason not recorded")
	}
}

func TestRunnerUnknownExpertFailsDebate(t *testing.T) {
	spec := twoRoundSpec()
	spec.Rounds[0].Agents = []string{"ana", "nobody"}

	r := runner.New(runner.Options{
		Spec:       spec,
		Panel:      smallPanel(),
		Client:     llm.NewMockClient(anaArgument),
		Model:      "test-model",
		SynthModel: "test-synth",
	})

	debate, err := r.Run(context.Background(), nil)
	var unknown *core.UnknownExpertError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *core.UnknownExpertError", err)
	}
	if debate.Status != core.StatusFailed {
		t.Errorf("status = %s, want failed", debate.Status)
	}
}

func TestRunnerPersistsAndReplays(t *testing.T) {
	out := persist.OpenRunDir(t.TempDir())

	client := llm.NewMockClient(anaArgument, benRebuttal, synthMove)
	r := runner.New(runner.Options{
		Spec:       twoRoundSpec(),
		Panel:      smallPanel(),
		Client:     client,
		Model:      "test-model",
		SynthModel: "test-synth",
		Out:        out,
	})

	debate, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	loaded, err := persist.LoadState(out.Path)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if loaded.ID != debate.ID || loaded.Status != core.StatusCompleted {
		t.Errorf("loaded = %s/%s", loaded.ID, loaded.Status)
	}
	if len(loaded.Moves()) != 3 {
		t.Errorf("loaded moves = %d, want 3", len(loaded.Moves()))
	}

	if err := runner.Verify(loaded); err != nil {
		t.Errorf("Verify failed on persisted state: %v", err)
	}

	// Replayed rendering depends only on persisted state, so the report
	// regenerates byte-for-byte.
	exporter := &export.MarkdownExporter{}
	var live, replayed bytes.Buffer
	if err := exporter.Export(debate, &live); err != nil {
		t.Fatalf("export live failed: %v", err)
	}
	if err := exporter.Export(loaded, &replayed); err != nil {
		t.Fatalf("export replayed failed: %v", err)
	}
	if !bytes.Equal(live.Bytes(), replayed.Bytes()) {
		t.Error("replayed report differs from live report")
	}
}

func TestRunnerMemoryBatch(t *testing.T) {
	openStore := func(t *testing.T) *memory.Store {
		s, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
		if err != nil {
			t.Fatalf("memory.Open failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}

	lessonJSON := `[{"text": "Claims clustered optimistic; demand base rates.", "category": "bias", "confidence": 0.8}]`

	t.Run("completed debate writes one batch", func(t *testing.T) {
		store := openStore(t)
		// Three debate moves, then one lesson-extraction call.
		client := llm.NewMockClient(anaArgument, benRebuttal, synthMove, lessonJSON)

		r := runner.New(runner.Options{
			Spec:       twoRoundSpec(),
			Panel:      smallPanel(),
			Client:     client,
			Model:      "test-model",
			SynthModel: "test-synth",
			Memory:     store,
		})
		debate, err := r.Run(context.Background(), nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if debate.Status != core.StatusCompleted {
			t.Fatalf("status = %s", debate.Status)
		}
		if client.Calls() != 4 {
			t.Errorf("calls = %d, want 4 (3 moves + 1 extraction)", client.Calls())
		}

		lessons, err := store.ListLessons()
		if err != nil || len(lessons) != 1 {
			t.Errorf("lessons = %v, %v", lessons, err)
		}
		perf, err := store.Performance()
		if err != nil {
			t.Fatalf("Performance failed: %v", err)
		}
		// One record per debating expert; the synthesis agent is not
		// performance-tracked.
		if len(perf) != 2 {
			t.Errorf("performance records = %d, want 2", len(perf))
		}
		for _, p := range perf {
			if p.ExpertID == core.SynthesizerID {
				t.Error("synthesis agent has a performance record")
			}
		}
	})

	t.Run("memory write failure fails the debate", func(t *testing.T) {
		store := openStore(t)
		// Lesson extraction returns no parseable array.
		client := llm.NewMockClient(anaArgument, benRebuttal, synthMove, "nothing structured")

		r := runner.New(runner.Options{
			Spec:       twoRoundSpec(),
			Panel:      smallPanel(),
			Client:     client,
			Model:      "test-model",
			SynthModel: "test-synth",
			Memory:     store,
		})
		debate, err := r.Run(context.Background(), nil)
		if err == nil {
			t.Fatal("expected memory write failure")
		}
		if debate.Status != core.StatusFailed {
			t.Errorf("status = %s, want failed", debate.Status)
		}

		// None of the debate's memory effects are visible.
		lessons, _ := store.ListLessons()
		perf, _ := store.Performance()
		if len(lessons) != 0 || len(perf) != 0 {
			t.Error("partial memory effects visible after failed batch")
		}
	})
}

func TestVerifyRejectsCorruptedState(t *testing.T) {
	base := &core.Debate{
		Status: core.StatusCompleted,
		Rounds: []core.Round{
			{Number: 1, Moves: []core.Move{
				{ID: "M001", Round: 1, Position: 0, Type: core.MoveArgument},
				{ID: "M002", Round: 1, Position: 1, Type: core.MoveRebuttal, Targets: []string{"M001"}},
			}},
		},
	}
	if err := runner.Verify(base); err != nil {
		t.Fatalf("Verify failed on sound state: %v", err)
	}

	t.Run("forward target", func(t *testing.T) {
		d := *base
		d.Rounds = []core.Round{{Number: 1, Moves: []core.Move{
			{ID: "M001", Round: 1, Position: 0, Type: core.MoveRebuttal, Targets: []string{"M002"}},
			{ID: "M002", Round: 1, Position: 1, Type: core.MoveArgument},
		}}}
		if err := runner.Verify(&d); err == nil {
			t.Error("expected error for forward target")
		}
	})

	t.Run("confidence out of range", func(t *testing.T) {
		d := *base
		d.Rounds = []core.Round{{Number: 1, Moves: []core.Move{
			{ID: "M001", Round: 1, Position: 0, Type: core.MoveArgument, Claims: []core.Claim{
				{ID: "M001_C1", Text: "x", Confidence: 1.7, Stance: core.StanceNeutral},
			}},
		}}}
		if err := runner.Verify(&d); err == nil {
			t.Error("expected error for out-of-range confidence")
		}
	})

	t.Run("duplicate move id", func(t *testing.T) {
		d := *base
		d.Rounds = []core.Round{{Number: 1, Moves: []core.Move{
			{ID: "M001", Round: 1, Position: 0, Type: core.MoveArgument},
			{ID: "M001", Round: 1, Position: 1, Type: core.MoveArgument},
		}}}
		if err := runner.Verify(&d); err == nil {
			t.Error("expected error for duplicate id")
		}
	})

	t.Run("synthesis type outside synthesis round", func(t *testing.T) {
		d := *base
		d.Rounds = []core.Round{{Number: 1, Moves: []core.Move{
			{ID: "M001", Round: 1, Position: 0, Type: core.MoveSynthesis},
		}}}
		if err := runner.Verify(&d); err == nil {
			t.Error("expected error for stray synthesis move")
		}
	})
}
