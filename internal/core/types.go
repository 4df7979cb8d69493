// Package core contains the core domain types for thinktank.
package core

import (
	"time"
)

// DebateStatus represents the current status of a debate run.
type DebateStatus string

const (
	StatusInProgress DebateStatus = "in_progress"
	StatusCompleted  DebateStatus = "completed"
	StatusFailed     DebateStatus = "failed"
)

// ValidStatus reports whether s is a known debate status.
func ValidStatus(s DebateStatus) bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// MoveType identifies the kind of contribution a move makes.
type MoveType string

const (
	MoveArgument  MoveType = "argument"
	MoveRebuttal  MoveType = "rebuttal"
	MoveSynthesis MoveType = "synthesis"
)

// ValidMoveType reports whether t is a member of the closed move-type set.
func ValidMoveType(t MoveType) bool {
	switch t {
	case MoveArgument, MoveRebuttal, MoveSynthesis:
		return true
	}
	return false
}

// Stance is a claim's position relative to the debate question.
type Stance string

const (
	StanceSupports Stance = "supports"
	StanceOpposes  Stance = "opposes"
	StanceNeutral  Stance = "neutral"
)

// ValidStance reports whether s is a member of the closed stance set.
func ValidStance(s Stance) bool {
	switch s {
	case StanceSupports, StanceOpposes, StanceNeutral:
		return true
	}
	return false
}

// LessonCategory classifies an extracted lesson.
type LessonCategory string

const (
	LessonMethodology LessonCategory = "methodology"
	LessonDomain      LessonCategory = "domain"
	LessonBias        LessonCategory = "bias"
	LessonProcess     LessonCategory = "process"
)

// ValidLessonCategory reports whether c is a member of the closed category set.
func ValidLessonCategory(c LessonCategory) bool {
	switch c {
	case LessonMethodology, LessonDomain, LessonBias, LessonProcess:
		return true
	}
	return false
}

// ForecastState tracks the resolution lifecycle of a forecast.
type ForecastState string

const (
	ForecastPending     ForecastState = "pending"
	ForecastResolvedYes ForecastState = "resolved-yes"
	ForecastResolvedNo  ForecastState = "resolved-no"
)

// SynthesizerID is the reserved agent id for the synthesis round. It is
// always available and never part of a panel document.
const SynthesizerID = "synthesizer"

// SynthesizerExpert is the built-in neutral facilitator that runs
// synthesis rounds.
var SynthesizerExpert = Expert{
	ID:         SynthesizerID,
	Name:       "Synthesis Engine",
	Title:      "Debate Synthesizer",
	Background: "Neutral facilitator that consolidates all expert contributions.",
}

// Expert is a static persona identity loaded from panel config.
type Expert struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Title      string `yaml:"title" json:"title"`
	Background string `yaml:"background,omitempty" json:"background,omitempty"`
	Bias       string `yaml:"bias,omitempty" json:"bias,omitempty"`
	Lens       string `yaml:"lens,omitempty" json:"lens,omitempty"`
	Domain     string `yaml:"domain,omitempty" json:"domain,omitempty"`
}

// DisplayTitle returns the expert's name with their title.
func (e Expert) DisplayTitle() string {
	if e.Title == "" {
		return e.Name
	}
	return e.Name + " (" + e.Title + ")"
}

// Panel is an ordered collection of expert personas.
type Panel struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Experts     []Expert `yaml:"experts" json:"experts"`
}

// GetExpert returns the expert with the given id, or nil.
func (p *Panel) GetExpert(id string) *Expert {
	for i := range p.Experts {
		if p.Experts[i].ID == id {
			return &p.Experts[i]
		}
	}
	return nil
}

// ListIDs returns the expert ids in declaration order.
func (p *Panel) ListIDs() []string {
	ids := make([]string, len(p.Experts))
	for i, e := range p.Experts {
		ids[i] = e.ID
	}
	return ids
}

// RoundConfig is a single debate round definition from the spec document.
type RoundConfig struct {
	Number      int      `yaml:"number" json:"number"`
	Focus       string   `yaml:"focus" json:"focus"`
	Question    string   `yaml:"question" json:"question"`
	Agents      []string `yaml:"agents,omitempty" json:"agents,omitempty"`
	AutoSelect  bool     `yaml:"auto_select,omitempty" json:"auto_select,omitempty"`
	Mandatory   []string `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	IsSynthesis bool     `yaml:"is_synthesis,omitempty" json:"is_synthesis,omitempty"`
}

// IsMandatory reports whether the given expert is mandatory for this round.
func (r RoundConfig) IsMandatory(expertID string) bool {
	for _, id := range r.Mandatory {
		if id == expertID {
			return true
		}
	}
	return false
}

// DebateSpec is the full problem specification for a debate.
type DebateSpec struct {
	Title             string        `yaml:"title" json:"title"`
	Context           string        `yaml:"context" json:"context"`
	Rounds            []RoundConfig `yaml:"rounds" json:"rounds"`
	SynthesizerPrompt string        `yaml:"synthesizer_prompt,omitempty" json:"synthesizer_prompt,omitempty"`
}

// Claim is one atomic assertion within a move.
type Claim struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Confidence  float64  `json:"confidence"`
	Evidence    []string `json:"evidence,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
	Stance      Stance   `json:"stance"`
}

// Move is a single debate contribution from one expert in one round.
// Immutable once it has passed validation.
type Move struct {
	ID           string    `json:"id"`
	ExpertID     string    `json:"expert_id"`
	ExpertTitle  string    `json:"expert_title"`
	Round        int       `json:"round"`
	Position     int       `json:"position"` // 0-based order within the round
	Type         MoveType  `json:"move_type"`
	Content      string    `json:"content"`
	Claims       []Claim   `json:"claims,omitempty"`
	Targets      []string  `json:"targets,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
}

// Round is one completed debate round: a focus, a question, and the
// ordered moves produced in it. Experts that exhausted their retry budget
// appear in Skipped instead of contributing a move.
type Round struct {
	Number      int      `json:"number"`
	Focus       string   `json:"focus"`
	Question    string   `json:"question"`
	IsSynthesis bool     `json:"is_synthesis,omitempty"`
	Selected    []string `json:"selected"`
	Skipped     []string `json:"skipped,omitempty"`
	Moves       []Move   `json:"moves"`
}

// Debate is the complete state of one run. Owned exclusively by the
// runner while in progress; immutable once completed.
type Debate struct {
	ID           string       `json:"id"`
	SpecTitle    string       `json:"spec_title"`
	PanelName    string       `json:"panel_name"`
	Model        string       `json:"model"`
	SynthModel   string       `json:"synth_model"`
	Status       DebateStatus `json:"status"`
	Rounds       []Round      `json:"rounds"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
	FailReason   string       `json:"fail_reason,omitempty"`
	InputTokens  int          `json:"total_input_tokens"`
	OutputTokens int          `json:"total_output_tokens"`
}

// Moves returns every move in debate order (round, then position).
func (d *Debate) Moves() []Move {
	var moves []Move
	for _, r := range d.Rounds {
		moves = append(moves, r.Moves...)
	}
	return moves
}

// TotalClaims returns the number of claims across all moves.
func (d *Debate) TotalClaims() int {
	n := 0
	for _, r := range d.Rounds {
		for _, m := range r.Moves {
			n += len(m.Claims)
		}
	}
	return n
}

// Participants returns the ids of experts that produced at least one
// non-synthesis move, in first-appearance order.
func (d *Debate) Participants() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range d.Rounds {
		for _, m := range r.Moves {
			if m.Type == MoveSynthesis {
				continue
			}
			if !seen[m.ExpertID] {
				seen[m.ExpertID] = true
				ids = append(ids, m.ExpertID)
			}
		}
	}
	return ids
}

// Lesson is a distilled insight extracted from a completed debate.
// Append-only; never mutated after creation.
type Lesson struct {
	ID           string         `json:"id"`
	Category     LessonCategory `json:"category"`
	Text         string         `json:"text"`
	Confidence   float64        `json:"confidence"`
	SourceDebate string         `json:"source_debate"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Forecast is a falsifiable prediction derived from a claim, resolved
// exactly once against a real outcome.
type Forecast struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	Probability   float64       `json:"probability"`
	Deadline      string        `json:"deadline"` // ISO date
	State         ForecastState `json:"state"`
	Outcome       *bool         `json:"outcome,omitempty"`
	Brier         *float64      `json:"brier,omitempty"`
	ExpertID      string        `json:"expert_id"`
	SourceDebate  string        `json:"source_debate"`
	SourceClaimID string        `json:"source_claim_id"`
	CreatedAt     time.Time     `json:"created_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
}

// ExpertPerformance is a per-expert aggregate accumulated across the
// lifetime of the memory store.
type ExpertPerformance struct {
	ExpertID           string  `json:"expert_id"`
	Debates            int     `json:"debates_participated"`
	TotalClaims        int     `json:"total_claims"`
	MeanConfidence     float64 `json:"mean_confidence"`
	ChallengesMade     int     `json:"challenges_made"`
	ChallengesReceived int     `json:"challenges_received"`
}
