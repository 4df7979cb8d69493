// Package runner drives a debate from creation to completion: per-round
// agent selection, sequential agent invocation through the validation
// boundary, durable per-round checkpoints, and the post-debate memory
// batch.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alienxp03/thinktank/internal/agent"
	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/cost"
	"github.com/alienxp03/thinktank/internal/export"
	"github.com/alienxp03/thinktank/internal/llm"
	"github.com/alienxp03/thinktank/internal/memory"
	"github.com/alienxp03/thinktank/internal/persist"
)

// Options configures a debate run.
type Options struct {
	Spec       *core.DebateSpec
	Panel      *core.Panel
	Client     llm.Client
	Model      string
	SynthModel string

	// Memory enables lesson injection and the post-debate write batch.
	// Nil disables memory entirely.
	Memory *memory.Store

	// Out receives durable run artifacts. Nil disables persistence.
	Out *persist.RunDir
}

// Callbacks report run progress for live output. All are optional.
type Callbacks struct {
	OnRoundStart func(rc core.RoundConfig, selected []core.Expert)
	OnMove       func(m core.Move)
	OnSkip       func(expertID string, round int, err error)
}

// Runner executes one debate. A runner is single-use: rounds run in
// order and agents within a round run one at a time, in selection order,
// because each agent's context includes the moves earlier agents made in
// the same round.
type Runner struct {
	opts   Options
	agents map[string]*agent.Agent
}

// New creates a runner, binding every panel expert to the standard model
// tier. Synthesis-round agents are bound to the synthesis tier at
// invocation time.
func New(opts Options) *Runner {
	agents := make(map[string]*agent.Agent, len(opts.Panel.Experts))
	for _, e := range opts.Panel.Experts {
		agents[e.ID] = agent.New(e, opts.Client, opts.Model)
	}
	return &Runner{opts: opts, agents: agents}
}

// Run executes the full debate and returns the final state. The returned
// debate is also populated on error, holding whatever rounds completed.
func (r *Runner) Run(ctx context.Context, cb *Callbacks) (*core.Debate, error) {
	spec, panel := r.opts.Spec, r.opts.Panel

	debate := &core.Debate{
		ID:         uuid.New().String(),
		SpecTitle:  spec.Title,
		PanelName:  panel.Name,
		Model:      r.opts.Model,
		SynthModel: r.opts.SynthModel,
		Status:     core.StatusInProgress,
		StartedAt:  time.Now().UTC(),
	}

	var lessons []core.Lesson
	if r.opts.Memory != nil {
		var err error
		lessons, err = r.opts.Memory.RelevantLessons(spec.Context, memory.DefaultLessonLimit)
		if err != nil {
			return debate, r.fail(debate, fmt.Errorf("failed to load lessons: %w", err))
		}
	}

	slog.Info("Debate started",
		"debate", debate.ID,
		"spec", spec.Title,
		"panel", panel.Name,
		"rounds", len(spec.Rounds),
		"lessons", len(lessons),
	)

	idx := core.NewMoveIndex()
	var prior []core.Move
	moveSeq := 0

	for _, rc := range spec.Rounds {
		if ctx.Err() != nil {
			// Aborted between rounds: durable state is the last
			// committed checkpoint, nothing partial is written.
			return debate, ctx.Err()
		}

		selected, err := SelectParticipants(panel, rc, prior)
		if err != nil {
			return debate, r.fail(debate, err)
		}

		round := core.Round{
			Number:      rc.Number,
			Focus:       rc.Focus,
			Question:    rc.Question,
			IsSynthesis: rc.IsSynthesis,
		}
		for _, e := range selected {
			round.Selected = append(round.Selected, e.ID)
		}

		if cb != nil && cb.OnRoundStart != nil {
			cb.OnRoundStart(rc, selected)
		}

		for _, expert := range selected {
			moveSeq++
			slot := agent.MoveSlot{
				MoveID:      core.MoveID(moveSeq),
				Round:       rc.Number,
				Position:    len(round.Moves),
				IsSynthesis: rc.IsSynthesis,
			}

			ag := r.agentFor(expert, rc)
			move, err := ag.MakeMove(ctx, agent.MoveContext{
				ProblemContext: spec.Context,
				Lessons:        lessons,
				Prior:          prior,
				Round:          rc,
				Slot:           slot,
				Index:          idx,
				SynthPrompt:    spec.SynthesizerPrompt,
			})
			if err != nil {
				if ctx.Err() != nil {
					return debate, ctx.Err()
				}
				var exhausted *core.ExhaustedError
				if errors.As(err, &exhausted) {
					if rc.IsMandatory(expert.ID) {
						return debate, r.fail(debate, fmt.Errorf("mandatory agent failed: %w", err))
					}
					// One agent's bad output never blocks the rest of
					// the round.
					slog.Warn("Agent skipped for round",
						"debate", debate.ID,
						"expert", expert.ID,
						"round", rc.Number,
					)
					round.Skipped = append(round.Skipped, expert.ID)
					if cb != nil && cb.OnSkip != nil {
						cb.OnSkip(expert.ID, rc.Number, err)
					}
					continue
				}
				return debate, r.fail(debate, err)
			}

			if err := idx.Add(*move); err != nil {
				return debate, r.fail(debate, err)
			}
			round.Moves = append(round.Moves, *move)
			prior = append(prior, *move)
			debate.InputTokens += move.InputTokens
			debate.OutputTokens += move.OutputTokens

			if r.opts.Out != nil {
				if err := r.opts.Out.WriteMove(moveSeq, *move); err != nil {
					return debate, r.fail(debate, err)
				}
			}
			if cb != nil && cb.OnMove != nil {
				cb.OnMove(*move)
			}
		}

		debate.Rounds = append(debate.Rounds, round)

		// Per-round durable checkpoint.
		if r.opts.Out != nil {
			if err := r.opts.Out.WriteState(debate); err != nil {
				return debate, r.fail(debate, err)
			}
		}
		slog.Info("Round complete",
			"debate", debate.ID,
			"round", rc.Number,
			"moves", len(round.Moves),
			"skipped", len(round.Skipped),
		)
	}

	now := time.Now().UTC()
	debate.Status = core.StatusCompleted
	debate.FinishedAt = &now

	if r.opts.Out != nil {
		if err := r.writeArtifacts(debate); err != nil {
			return debate, r.fail(debate, err)
		}
	}

	// Post-debate memory batch: all of lessons + forecasts + performance
	// land, or the debate is marked failed and none are visible.
	if r.opts.Memory != nil {
		if _, err := r.opts.Memory.RecordDebate(ctx, debate, r.opts.Client, r.opts.SynthModel); err != nil {
			return debate, r.fail(debate, fmt.Errorf("memory write failed: %w", err))
		}
	}

	slog.Info("Debate completed", "debate", debate.ID, "moves", len(prior), "claims", debate.TotalClaims())
	return debate, nil
}

// agentFor returns the agent to invoke for an expert in a round. The
// synthesis round runs on the higher-capability tier regardless of which
// expert executes it; this is a configuration distinction only.
func (r *Runner) agentFor(expert core.Expert, rc core.RoundConfig) *agent.Agent {
	if rc.IsSynthesis {
		return agent.NewSynthesizer(expert, r.opts.Client, r.opts.SynthModel)
	}
	if ag, ok := r.agents[expert.ID]; ok {
		return ag
	}
	return agent.New(expert, r.opts.Client, r.opts.Model)
}

// fail marks the debate failed, records why, and writes a final state
// document on a best-effort basis.
func (r *Runner) fail(debate *core.Debate, err error) error {
	debate.Status = core.StatusFailed
	debate.FailReason = err.Error()
	now := time.Now().UTC()
	debate.FinishedAt = &now

	if r.opts.Out != nil {
		if werr := r.opts.Out.WriteState(debate); werr != nil {
			slog.Error("Failed to persist failed debate state", "debate", debate.ID, "error", werr)
		}
	}
	slog.Error("Debate failed", "debate", debate.ID, "error", err)
	return err
}

func (r *Runner) writeArtifacts(debate *core.Debate) error {
	if err := r.opts.Out.WriteState(debate); err != nil {
		return err
	}

	var buf bytes.Buffer
	md := &export.MarkdownExporter{}
	if err := md.Export(debate, &buf); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := r.opts.Out.WriteReport(buf.Bytes()); err != nil {
		return err
	}

	return r.opts.Out.WriteCost(cost.ComputeActual(debate))
}
