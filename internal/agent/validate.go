package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alienxp03/thinktank/internal/core"
)

// wireMove is the JSON envelope an agent is instructed to emit. Confidence
// is a pointer so a missing value is distinguishable from 0.
type wireMove struct {
	MoveType string      `json:"move_type"`
	Content  string      `json:"content"`
	Claims   []wireClaim `json:"claims"`
	Targets  []string    `json:"targets"`
}

type wireClaim struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Confidence  *float64 `json:"confidence"`
	Evidence    []string `json:"evidence"`
	Assumptions []string `json:"assumptions"`
	Stance      string   `json:"stance"`
}

// MoveSlot identifies where the move under validation sits in the debate.
type MoveSlot struct {
	MoveID      string
	Round       int
	Position    int
	IsSynthesis bool
}

// ValidateMove parses raw model text into a validated Move. The index
// must contain exactly the moves produced before this one, so target
// resolution doubles as forward-reference protection. On failure the
// returned error is a *core.ValidationError whose Reason is suitable as a
// corrective instruction for the next attempt. Raw text is never trusted
// past this boundary.
func ValidateMove(raw string, slot MoveSlot, expert core.Expert, idx *core.MoveIndex) (*core.Move, error) {
	jsonText, ok := extractJSON(raw)
	if !ok {
		return nil, &core.ValidationError{Reason: "response did not contain a JSON object; respond with exactly one JSON object in the required envelope"}
	}

	var wire wireMove
	if err := json.Unmarshal([]byte(jsonText), &wire); err != nil {
		return nil, &core.ValidationError{Reason: fmt.Sprintf("JSON did not parse: %v", err)}
	}

	moveType := core.MoveType(wire.MoveType)
	if wire.MoveType == "" {
		return nil, &core.ValidationError{Reason: `"move_type" is required`}
	}
	if !core.ValidMoveType(moveType) {
		return nil, &core.ValidationError{Reason: fmt.Sprintf(`"move_type" %q is not one of: argument, rebuttal, synthesis`, wire.MoveType)}
	}
	if slot.IsSynthesis && moveType != core.MoveSynthesis {
		return nil, &core.ValidationError{Reason: `this is the synthesis round: "move_type" must be "synthesis"`}
	}
	if !slot.IsSynthesis && moveType == core.MoveSynthesis {
		return nil, &core.ValidationError{Reason: `"move_type" "synthesis" is only valid in the synthesis round`}
	}

	if strings.TrimSpace(wire.Content) == "" {
		return nil, &core.ValidationError{Reason: `"content" is required and must not be empty`}
	}

	if moveType == core.MoveRebuttal && len(wire.Targets) == 0 {
		return nil, &core.ValidationError{Reason: `a "rebuttal" move must list at least one prior move id in "targets"`}
	}

	if err := idx.CheckTargets(wire.Targets); err != nil {
		return nil, &core.ValidationError{Reason: fmt.Sprintf(`"targets" must reference earlier move ids only: %v`, err)}
	}

	claims := make([]core.Claim, 0, len(wire.Claims))
	for i, wc := range wire.Claims {
		if strings.TrimSpace(wc.Text) == "" {
			return nil, &core.ValidationError{Reason: fmt.Sprintf(`claim %d has empty "text"`, i+1)}
		}
		if wc.Confidence == nil {
			return nil, &core.ValidationError{Reason: fmt.Sprintf(`claim %d is missing "confidence"`, i+1)}
		}
		// Out-of-range confidence is rejected, never clamped.
		if *wc.Confidence < 0 || *wc.Confidence > 1 {
			return nil, &core.ValidationError{Reason: fmt.Sprintf(`claim %d "confidence" %.3f is outside [0,1]`, i+1, *wc.Confidence)}
		}
		stance := core.Stance(wc.Stance)
		if wc.Stance == "" {
			stance = core.StanceNeutral
		} else if !core.ValidStance(stance) {
			return nil, &core.ValidationError{Reason: fmt.Sprintf(`claim %d "stance" %q is not one of: supports, opposes, neutral`, i+1, wc.Stance)}
		}

		claims = append(claims, core.Claim{
			ID:          core.ClaimID(slot.MoveID, i+1),
			Text:        wc.Text,
			Confidence:  *wc.Confidence,
			Evidence:    wc.Evidence,
			Assumptions: wc.Assumptions,
			Stance:      stance,
		})
	}

	return &core.Move{
		ID:          slot.MoveID,
		ExpertID:    expert.ID,
		ExpertTitle: expert.DisplayTitle(),
		Round:       slot.Round,
		Position:    slot.Position,
		Type:        moveType,
		Content:     wire.Content,
		Claims:      claims,
		Targets:     wire.Targets,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// extractJSON pulls the JSON payload out of raw model text: a ```json
// fence, a bare ``` fence, or the outermost brace pair.
func extractJSON(text string) (string, bool) {
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
			if strings.HasPrefix(candidate, "{") {
				return candidate, true
			}
		}
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first >= 0 && last > first {
		return text[first : last+1], true
	}
	return "", false
}
