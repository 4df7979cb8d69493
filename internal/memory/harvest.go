package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/llm"
)

// Batch is one debate's memory effects, built in full before anything is
// written so a failure leaves no partial state behind.
type Batch struct {
	Lessons   []core.Lesson
	Forecasts []core.Forecast
	Perf      []PerfDelta
}

// PerfDelta is one expert's counters from a single debate.
type PerfDelta struct {
	ExpertID           string
	Claims             int
	ConfidenceSum      float64
	ChallengesMade     int
	ChallengesReceived int
}

// RecordDebate extracts lessons, registers forecasts, and updates
// performance records for a completed debate, committing everything
// atomically. Triggered once per debate, only on completed runs.
func (s *Store) RecordDebate(ctx context.Context, debate *core.Debate, client llm.Client, model string) (*Batch, error) {
	if debate.Status != core.StatusCompleted {
		return nil, fmt.Errorf("cannot record memory for debate with status %q", debate.Status)
	}

	lessons, err := s.extractLessons(ctx, debate, client, model)
	if err != nil {
		return nil, fmt.Errorf("lesson extraction failed: %w", err)
	}

	batch := &Batch{
		Lessons:   lessons,
		Forecasts: RegisterForecasts(debate),
		Perf:      PerformanceDeltas(debate),
	}

	if err := s.CommitBatch(batch); err != nil {
		return nil, err
	}

	slog.Info("Memory batch committed",
		"debate", debate.ID,
		"lessons", len(batch.Lessons),
		"forecasts", len(batch.Forecasts),
		"experts", len(batch.Perf),
	)
	return batch, nil
}

type wireLesson struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
}

// extractLessons runs a dedicated synthesis call over the transcript and
// validates each candidate against the lesson schema. Candidates that
// fail validation are dropped, not repaired.
func (s *Store) extractLessons(ctx context.Context, debate *core.Debate, client llm.Client, model string) ([]core.Lesson, error) {
	prompt := buildLessonPrompt(debate)

	resp, err := client.Complete(ctx, &llm.Request{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   2000,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	jsonText, ok := extractJSONArray(resp.Text)
	if !ok {
		return nil, fmt.Errorf("lesson response did not contain a JSON array")
	}

	var candidates []wireLesson
	if err := json.Unmarshal([]byte(jsonText), &candidates); err != nil {
		return nil, fmt.Errorf("lesson response did not parse: %w", err)
	}

	now := time.Now().UTC()
	var lessons []core.Lesson
	for _, c := range candidates {
		category := core.LessonCategory(c.Category)
		if strings.TrimSpace(c.Text) == "" || !core.ValidLessonCategory(category) {
			slog.Warn("Dropping invalid lesson candidate", "category", c.Category)
			continue
		}
		confidence := 0.7
		if c.Confidence != nil && *c.Confidence >= 0 && *c.Confidence <= 1 {
			confidence = *c.Confidence
		}
		lessons = append(lessons, core.Lesson{
			ID:           uuid.New().String(),
			Category:     category,
			Text:         c.Text,
			Confidence:   confidence,
			SourceDebate: debate.ID,
			CreatedAt:    now,
		})
	}
	return lessons, nil
}

func buildLessonPrompt(debate *core.Debate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Debate: %s\nPanel: %s (%d rounds)\nTotal claims: %d\n\n",
		debate.SpecTitle, debate.PanelName, len(debate.Rounds), debate.TotalClaims())

	for _, m := range debate.Moves() {
		if m.Type == core.MoveSynthesis {
			fmt.Fprintf(&sb, "[SYNTHESIS] %s\n", truncate(m.Content, 2000))
			continue
		}
		for i, c := range m.Claims {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "[%s] [%.2f] %s\n", m.ExpertID, c.Confidence, truncate(c.Text, 200))
		}
	}

	summary := truncate(sb.String(), 8000)

	return "You are a meta-analyst reviewing a completed think tank debate. " +
		"Extract 3-8 lessons that should inform future debates.\n\n" +
		"For each lesson, provide:\n" +
		"- \"text\": the lesson (1-2 sentences)\n" +
		"- \"category\": one of [methodology, domain, bias, process]\n" +
		"- \"confidence\": 0.0-1.0\n\n" +
		"Focus on methodological insights, domain knowledge worth carrying " +
		"forward, biases that emerged, and process improvements.\n\n" +
		"DEBATE SUMMARY:\n" + summary + "\n\n" +
		"Respond with a JSON array of lessons."
}

// deadlineRe finds an explicit deadline phrase in claim text.
var deadlineRe = regexp.MustCompile(`\b(?:by|in|before|until|end of)\s+(20\d{2})\b`)

// yearRe matches a bare year, accepted only inside assumptions.
var yearRe = regexp.MustCompile(`\b(20\d{2})\b`)

// RegisterForecasts scans a debate's claims for falsifiable predictions:
// a non-neutral stance plus an explicit deadline phrase in the claim text
// or any year in an assumption. Matching claims become pending forecasts
// with the claim's confidence as the predicted probability.
func RegisterForecasts(debate *core.Debate) []core.Forecast {
	now := time.Now().UTC()
	var forecasts []core.Forecast
	for _, m := range debate.Moves() {
		if m.Type == core.MoveSynthesis {
			continue
		}
		for _, c := range m.Claims {
			deadline, ok := detectDeadline(c)
			if !ok {
				continue
			}
			forecasts = append(forecasts, core.Forecast{
				ID:            uuid.New().String(),
				Text:          c.Text,
				Probability:   c.Confidence,
				Deadline:      deadline,
				State:         core.ForecastPending,
				ExpertID:      m.ExpertID,
				SourceDebate:  debate.ID,
				SourceClaimID: c.ID,
				CreatedAt:     now,
			})
		}
	}
	return forecasts
}

func detectDeadline(c core.Claim) (string, bool) {
	if c.Stance == core.StanceNeutral {
		return "", false
	}
	if m := deadlineRe.FindStringSubmatch(c.Text); m != nil {
		return m[1] + "-12-31", true
	}
	for _, a := range c.Assumptions {
		if m := yearRe.FindStringSubmatch(a); m != nil {
			return m[1] + "-12-31", true
		}
	}
	return "", false
}

// PerformanceDeltas computes per-expert counters from one debate:
// claim counts, confidence sums, challenges made (targets of rebuttal
// moves), and challenges received (own moves targeted by later
// rebuttals). The synthesis move is excluded from attribution.
func PerformanceDeltas(debate *core.Debate) []PerfDelta {
	moveOwner := make(map[string]string)
	for _, m := range debate.Moves() {
		moveOwner[m.ID] = m.ExpertID
	}

	deltas := make(map[string]*PerfDelta)
	var order []string
	get := func(id string) *PerfDelta {
		if d, ok := deltas[id]; ok {
			return d
		}
		d := &PerfDelta{ExpertID: id}
		deltas[id] = d
		order = append(order, id)
		return d
	}

	for _, m := range debate.Moves() {
		if m.Type == core.MoveSynthesis {
			continue
		}
		d := get(m.ExpertID)
		d.Claims += len(m.Claims)
		for _, c := range m.Claims {
			d.ConfidenceSum += c.Confidence
		}
		if m.Type == core.MoveRebuttal {
			d.ChallengesMade += len(m.Targets)
			for _, target := range m.Targets {
				owner, ok := moveOwner[target]
				if !ok || owner == m.ExpertID {
					continue
				}
				get(owner).ChallengesReceived++
			}
		}
	}

	result := make([]PerfDelta, 0, len(order))
	for _, id := range order {
		result = append(result, *deltas[id])
	}
	return result
}

func extractJSONArray(text string) (string, bool) {
	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "[") {
				return candidate, true
			}
		}
	}
	first := strings.Index(text, "[")
	last := strings.LastIndex(text, "]")
	if first >= 0 && last > first {
		return text[first : last+1], true
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
