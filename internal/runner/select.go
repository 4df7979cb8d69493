package runner

import (
	"github.com/alienxp03/thinktank/internal/core"
)

// autoSelectMax caps automatic selection; panels smaller than this yield
// the whole panel.
const autoSelectMax = 5

// SelectParticipants chooses the experts for a round, in invocation
// order. Explicit agent lists are honored as-is (duplicates collapse to
// the first occurrence); the reserved synthesizer id resolves to the
// built-in synthesis expert. In automatic mode 4-5 experts are chosen
// from the panel, favoring experts who have not yet spoken and stance
// diversity across the selection. The result depends only on the panel,
// the round configuration, and the prior transcript, so replayed runs
// select identically.
func SelectParticipants(panel *core.Panel, rc core.RoundConfig, prior []core.Move) ([]core.Expert, error) {
	if rc.AutoSelect && len(rc.Agents) == 0 {
		return autoSelect(panel, prior), nil
	}

	seen := make(map[string]bool)
	var selected []core.Expert
	for _, id := range rc.Agents {
		if seen[id] {
			continue
		}
		seen[id] = true

		if id == core.SynthesizerID {
			selected = append(selected, core.SynthesizerExpert)
			continue
		}
		expert := panel.GetExpert(id)
		if expert == nil {
			return nil, &core.UnknownExpertError{ExpertID: id, Round: rc.Number}
		}
		selected = append(selected, *expert)
	}
	return selected, nil
}

// autoSelect greedily picks experts ordered by: has not yet spoken, then
// how many previously unrepresented stances they add, then panel
// declaration order.
func autoSelect(panel *core.Panel, prior []core.Move) []core.Expert {
	target := autoSelectMax
	if len(panel.Experts) < target {
		target = len(panel.Experts)
	}
	spoken := make(map[string]bool)
	stances := make(map[string]map[core.Stance]bool)
	for _, m := range prior {
		spoken[m.ExpertID] = true
		for _, c := range m.Claims {
			if stances[m.ExpertID] == nil {
				stances[m.ExpertID] = make(map[core.Stance]bool)
			}
			stances[m.ExpertID][c.Stance] = true
		}
	}

	picked := make(map[string]bool)
	covered := make(map[core.Stance]bool)
	var selected []core.Expert

	for len(selected) < target {
		bestIdx := -1
		bestFresh := false
		bestNew := -1

		for i, e := range panel.Experts {
			if picked[e.ID] {
				continue
			}
			fresh := !spoken[e.ID]
			newStances := 0
			for s := range stances[e.ID] {
				if !covered[s] {
					newStances++
				}
			}

			better := false
			switch {
			case bestIdx == -1:
				better = true
			case fresh != bestFresh:
				better = fresh
			case newStances != bestNew:
				better = newStances > bestNew
			}
			// Equal keys keep the earlier panel index.
			if better {
				bestIdx, bestFresh, bestNew = i, fresh, newStances
			}
		}

		if bestIdx == -1 {
			break
		}
		chosen := panel.Experts[bestIdx]
		picked[chosen.ID] = true
		for s := range stances[chosen.ID] {
			covered[s] = true
		}
		selected = append(selected, chosen)
	}

	return selected
}
