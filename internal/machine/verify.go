package machine

import (
	"fmt"

	"github.com/weftlabs/weft/pkg/models"
)

// Verify checks the structural invariants of a compiled machine:
//
//   - state ids are unique and every transition targets an existing state
//   - exactly one success and one failure final, neither with outgoing
//     transitions, and no other finals
//   - every ERROR transition targets failure
//   - every non-branching execution state has exactly two transitions, one
//     CONTINUE and one ERROR
//   - parallel markers appear only on the CONTINUE fan-out of branching
//     states, where every CONTINUE is marked
//
// A machine produced by Compile always passes. Verify exists for callers
// that load machines from snapshots or foreign compilers.
func Verify(states []models.State) error {
	byID := make(map[string]*models.State, len(states))
	for i := range states {
		s := &states[i]
		if _, exists := byID[s.ID]; exists {
			return fmt.Errorf("verify: state %s: %w", s.ID, ErrStateIDCollision)
		}
		byID[s.ID] = s
	}

	var successes, failures int
	for i := range states {
		s := &states[i]

		switch s.Kind {
		case models.StateFinal:
			if len(s.Transitions) != 0 {
				return fmt.Errorf("verify: final state %s has %d outgoing transitions", s.ID, len(s.Transitions))
			}
			if !s.Terminal {
				return fmt.Errorf("verify: final state %s missing terminal marker", s.ID)
			}
			switch s.ID {
			case models.StateIDSuccess:
				successes++
			case models.StateIDFailure:
				failures++
			default:
				return fmt.Errorf("verify: unexpected final state %s", s.ID)
			}
			continue
		case models.StateExecution:
			// checked below
		default:
			return fmt.Errorf("verify: state %s has unknown kind %q", s.ID, s.Kind)
		}

		var continues, errorsN int
		for _, tr := range s.Transitions {
			if _, exists := byID[tr.Target]; !exists {
				return fmt.Errorf("verify: state %s targets unknown state %s", s.ID, tr.Target)
			}
			switch tr.Event {
			case models.EventContinue:
				continues++
				if tr.Parallel != s.Branching {
					return fmt.Errorf("verify: state %s: parallel marker mismatch on edge to %s", s.ID, tr.Target)
				}
			case models.EventError:
				errorsN++
				if tr.Target != models.StateIDFailure {
					return fmt.Errorf("verify: state %s routes ERROR to %s, want %s", s.ID, tr.Target, models.StateIDFailure)
				}
				if tr.Parallel {
					return fmt.Errorf("verify: state %s: ERROR edge carries parallel marker", s.ID)
				}
			default:
				return fmt.Errorf("verify: state %s has unknown event %q", s.ID, tr.Event)
			}
		}

		if errorsN != 1 {
			return fmt.Errorf("verify: state %s has %d ERROR transitions, want 1", s.ID, errorsN)
		}
		if !s.Branching && continues != 1 {
			return fmt.Errorf("verify: state %s has %d CONTINUE transitions, want 1", s.ID, continues)
		}
		if s.Branching && continues < 1 {
			return fmt.Errorf("verify: branching state %s has no CONTINUE transitions", s.ID)
		}
	}

	if successes != 1 || failures != 1 {
		return fmt.Errorf("verify: machine has %d success and %d failure finals, want exactly 1 of each", successes, failures)
	}
	return nil
}
