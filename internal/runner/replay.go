package runner

import (
	"fmt"

	"github.com/alienxp03/thinktank/internal/core"
)

// Verify checks a persisted debate for structural integrity without any
// external calls: move ids are unique and ordered, every target resolves
// to an earlier move, move types match their rounds, and every claim
// carries a confidence in range. A persisted state that fails here was
// corrupted after the run, since live validation enforces the same rules
// before a move is committed.
func Verify(debate *core.Debate) error {
	if !core.ValidStatus(debate.Status) {
		return fmt.Errorf("unknown debate status %q", debate.Status)
	}

	idx := core.NewMoveIndex()
	for _, round := range debate.Rounds {
		for _, m := range round.Moves {
			if m.Round != round.Number {
				return fmt.Errorf("move %s recorded in round %d but tagged round %d", m.ID, round.Number, m.Round)
			}
			if !core.ValidMoveType(m.Type) {
				return fmt.Errorf("move %s has unknown type %q", m.ID, m.Type)
			}
			if round.IsSynthesis != (m.Type == core.MoveSynthesis) {
				return fmt.Errorf("move %s type %s does not match round %d", m.ID, m.Type, round.Number)
			}
			if m.Type == core.MoveRebuttal && len(m.Targets) == 0 {
				return fmt.Errorf("rebuttal move %s has no targets", m.ID)
			}
			if err := idx.CheckTargets(m.Targets); err != nil {
				return fmt.Errorf("move %s: %w", m.ID, err)
			}

			for _, c := range m.Claims {
				if c.Confidence < 0 || c.Confidence > 1 {
					return fmt.Errorf("claim %s confidence %v out of range", c.ID, c.Confidence)
				}
				if !core.ValidStance(c.Stance) {
					return fmt.Errorf("claim %s has unknown stance %q", c.ID, c.Stance)
				}
			}

			if err := idx.Add(m); err != nil {
				return err
			}
		}
	}
	return nil
}
