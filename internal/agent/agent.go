// Package agent implements LLM-backed expert personas and the validation
// boundary between their free-text output and the structured move model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/llm"
)

const (
	// DefaultMaxRetries is the number of corrective re-invocations after
	// the initial attempt (3 attempts total).
	DefaultMaxRetries = 2

	defaultMaxTokens   = 6000
	defaultTemperature = 0.4
)

// Agent is one expert persona bound to a model tier.
type Agent struct {
	Expert        core.Expert
	Client        llm.Client
	Model         string
	IsSynthesizer bool
	MaxRetries    int
}

// New creates an agent for an expert on the given model.
func New(expert core.Expert, client llm.Client, model string) *Agent {
	return &Agent{
		Expert:     expert,
		Client:     client,
		Model:      model,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewSynthesizer creates the synthesis agent on the higher-capability tier.
func NewSynthesizer(expert core.Expert, client llm.Client, model string) *Agent {
	a := New(expert, client, model)
	a.IsSynthesizer = true
	return a
}

// MoveContext is everything an agent sees when producing one move: the
// problem context, lessons from prior debates, the full prior transcript,
// and the round question.
type MoveContext struct {
	ProblemContext string
	Lessons        []core.Lesson
	Prior          []core.Move
	Round          core.RoundConfig
	Slot           MoveSlot
	Index          *core.MoveIndex
	SynthPrompt    string
}

// MakeMove invokes the model and validates its output into a Move,
// re-invoking with corrective feedback on failure. Each retry is a fresh
// call, never a repair of the prior text. A transport failure counts
// against the same budget as a malformed response. Exhausting the budget
// returns a *core.ExhaustedError; no unvalidated structure ever escapes.
func (a *Agent) MakeMove(ctx context.Context, mc MoveContext) (*core.Move, error) {
	system := a.buildSystemPrompt()
	base := a.buildUserPrompt(mc)

	attempts := a.MaxRetries + 1
	corrective := ""
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		prompt := base
		if corrective != "" {
			prompt += "\n\nYour previous response was rejected: " + corrective +
				"\nProduce a fresh response that satisfies the required JSON envelope."
		}

		resp, err := a.Client.Complete(ctx, &llm.Request{
			Model:       a.Model,
			System:      system,
			Prompt:      prompt,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Model call failed",
				"expert", a.Expert.ID,
				"round", mc.Slot.Round,
				"attempt", attempt,
				"error", err,
			)
			lastErr = err
			corrective = ""
			continue
		}

		move, err := ValidateMove(resp.Text, mc.Slot, a.Expert, mc.Index)
		if err != nil {
			var verr *core.ValidationError
			if errors.As(err, &verr) {
				slog.Warn("Move rejected by validator",
					"expert", a.Expert.ID,
					"round", mc.Slot.Round,
					"attempt", attempt,
					"reason", verr.Reason,
				)
				lastErr = err
				corrective = verr.Reason
				continue
			}
			return nil, err
		}

		move.InputTokens = resp.Usage.InputTokens
		move.OutputTokens = resp.Usage.OutputTokens
		if attempt > 1 {
			slog.Info("Move validated after retry", "expert", a.Expert.ID, "attempt", attempt)
		}
		return move, nil
	}

	return nil, &core.ExhaustedError{
		ExpertID: a.Expert.ID,
		Round:    mc.Slot.Round,
		Attempts: attempts,
		Last:     lastErr,
	}
}

func (a *Agent) buildSystemPrompt() string {
	if a.IsSynthesizer {
		return "You are the DEBATE SYNTHESIZER. Your role is to consolidate " +
			"all prior expert contributions into a unified, actionable report. " +
			"You are neutral, rigorous, and focused on practical output. " +
			"Identify consensus, dissensus, and critical uncertainties. " +
			"Produce structured recommendations."
	}

	e := a.Expert
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, %s.", e.Name, e.Title)
	if e.Background != "" {
		fmt.Fprintf(&sb, "\nBackground: %s", e.Background)
	}
	if e.Bias != "" {
		fmt.Fprintf(&sb, "\nAnalytical bias: %s", e.Bias)
	}
	if e.Lens != "" {
		fmt.Fprintf(&sb, "\nYour critical lens: %s", e.Lens)
	}
	sb.WriteString("\n\nYou are participating in a structured think tank debate. RULES:\n" +
		"- Be specific, quantitative, and evidence-based\n" +
		"- Reference real institutions, regulations, and programmes by name\n" +
		"- Challenge prior claims if you disagree, citing evidence\n" +
		"- Distinguish between what is proven and what is aspirational\n" +
		"- When giving estimates, provide ranges, not point values")
	return sb.String()
}

func (a *Agent) buildUserPrompt(mc MoveContext) string {
	var sb strings.Builder
	sb.WriteString(mc.ProblemContext)

	if len(mc.Lessons) > 0 {
		sb.WriteString("\n\n# LESSONS FROM PRIOR DEBATES\n")
		for _, l := range mc.Lessons {
			fmt.Fprintf(&sb, "- [%s] %s\n", l.Category, l.Text)
		}
	}

	if len(mc.Prior) > 0 {
		sb.WriteString("\n# PRIOR DEBATE MOVES\n")
		prior := mc.Prior
		// Non-synthesis agents see a recent window; the synthesizer sees
		// the whole transcript.
		if !a.IsSynthesizer && len(prior) > 6 {
			prior = prior[len(prior)-6:]
		}
		for _, m := range prior {
			fmt.Fprintf(&sb, "\n## [%s] %s, round %d (%s)\n", m.ID, m.ExpertTitle, m.Round, m.Type)
			sb.WriteString(truncate(m.Content, 1500))
			sb.WriteString("\n")
			for i, c := range m.Claims {
				if i >= 4 {
					break
				}
				fmt.Fprintf(&sb, "  - %s [%.2f] %s\n", c.ID, c.Confidence, truncate(c.Text, 250))
			}
		}
	}

	fmt.Fprintf(&sb, "\n# ROUND %d: %s\n", mc.Round.Number, mc.Round.Focus)
	fmt.Fprintf(&sb, "**Question**: %s\n\n", mc.Round.Question)

	if a.IsSynthesizer {
		prompt := mc.SynthPrompt
		if prompt == "" {
			prompt = "Produce the FINAL SYNTHESIS. Be concrete: specific recommendations, " +
				"specific timelines, specific evidence. This is the final output."
		}
		sb.WriteString(prompt)
		sb.WriteString("\n\n")
	}

	moveTypes := `"argument" | "rebuttal"`
	if a.IsSynthesizer {
		moveTypes = `"synthesis"`
	}
	fmt.Fprintf(&sb, "Respond with a JSON object containing:\n"+
		"```json\n"+
		"{\n"+
		"  \"move_type\": %s,\n"+
		"  \"content\": \"Your main analysis (500-1000 words)\",\n"+
		"  \"claims\": [\n"+
		"    {\n"+
		"      \"text\": \"Specific, falsifiable claim\",\n"+
		"      \"confidence\": 0.0-1.0,\n"+
		"      \"evidence\": [\"citation\"],\n"+
		"      \"assumptions\": [\"...\"],\n"+
		"      \"stance\": \"supports\" | \"opposes\" | \"neutral\"\n"+
		"    }\n"+
		"  ],\n"+
		"  \"targets\": [\"ids of prior moves you respond to, e.g. %q\"]\n"+
		"}\n"+
		"```\n", moveTypes, "M001")
	if !a.IsSynthesizer {
		sb.WriteString("Provide 3-6 claims. Every claim needs a confidence in [0,1]. " +
			"Targets may only reference move ids shown above.")
	}

	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
