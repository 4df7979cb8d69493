package core

import "fmt"

// MoveRef locates a move by round number and position within the round.
type MoveRef struct {
	Round    int
	Position int
}

// Before reports whether r comes strictly before other in debate order.
func (r MoveRef) Before(other MoveRef) bool {
	if r.Round != other.Round {
		return r.Round < other.Round
	}
	return r.Position < other.Position
}

// MoveIndex maps move ids to their (round, position) location. Moves are
// added in debate order, so membership alone proves a target refers to an
// earlier move; forward references are impossible by construction.
type MoveIndex struct {
	refs  map[string]MoveRef
	order []string
}

// NewMoveIndex creates an empty index.
func NewMoveIndex() *MoveIndex {
	return &MoveIndex{refs: make(map[string]MoveRef)}
}

// Add records a move's location. Duplicate ids are rejected.
func (idx *MoveIndex) Add(m Move) error {
	if _, exists := idx.refs[m.ID]; exists {
		return fmt.Errorf("duplicate move id %q", m.ID)
	}
	ref := MoveRef{Round: m.Round, Position: m.Position}
	if last := idx.lastRef(); last != nil && !last.Before(ref) {
		return fmt.Errorf("move %q at round %d position %d is out of debate order", m.ID, m.Round, m.Position)
	}
	idx.refs[m.ID] = ref
	idx.order = append(idx.order, m.ID)
	return nil
}

// Resolve returns the location of a move id.
func (idx *MoveIndex) Resolve(id string) (MoveRef, bool) {
	ref, ok := idx.refs[id]
	return ref, ok
}

// Len returns the number of indexed moves.
func (idx *MoveIndex) Len() int {
	return len(idx.order)
}

// CheckTargets verifies that every target resolves to an already indexed
// move. Since the index only contains moves produced earlier, this rules
// out forward references and cycles.
func (idx *MoveIndex) CheckTargets(targets []string) error {
	for _, t := range targets {
		if _, ok := idx.refs[t]; !ok {
			return &UnknownTargetError{Target: t}
		}
	}
	return nil
}

func (idx *MoveIndex) lastRef() *MoveRef {
	if len(idx.order) == 0 {
		return nil
	}
	ref := idx.refs[idx.order[len(idx.order)-1]]
	return &ref
}
