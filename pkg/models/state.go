package models

// StateKind discriminates the two state variants in a compiled machine.
type StateKind string

const (
	// StateExecution is a state that carries task text for the runtime to execute.
	StateExecution StateKind = "execution"
	// StateFinal is a terminal state with no outgoing transitions.
	StateFinal StateKind = "final"
)

// Event names the transition events a runtime may observe on a state.
type Event string

const (
	// EventContinue advances the machine after a state completes.
	EventContinue Event = "CONTINUE"
	// EventError routes the machine to the failure terminal.
	EventError Event = "ERROR"
)

// Fixed IDs of the two final states. Every compiled machine contains
// exactly one of each.
const (
	StateIDSuccess = "success"
	StateIDFailure = "failure"
)

// Transition is a single edge in the compiled machine.
type Transition struct {
	// Event is the event that triggers this transition.
	Event Event `json:"event"`
	// Target is the ID of the destination state.
	Target string `json:"target"`
	// Parallel marks an edge leaving a batch fan-out decision point. The
	// runtime dispatches one concurrent branch per parallel-marked edge.
	Parallel bool `json:"parallel,omitempty"`
}

// State is one state of a compiled machine, a tagged variant: either an
// execution state (Kind == StateExecution) with task text and transitions,
// or a final state (Kind == StateFinal) with a terminal marker and no
// outgoing transitions.
type State struct {
	// ID is the unique identifier for this state.
	ID string `json:"id"`
	// Kind discriminates execution states from final states.
	Kind StateKind `json:"kind"`
	// Task is the verbatim task text for execution states. The compiler
	// never reformats, truncates, or otherwise transforms it.
	Task string `json:"task,omitempty"`
	// Branching is true for execution states that contain branching logic,
	// i.e. batch-start states whose transitions fan out.
	Branching bool `json:"branching,omitempty"`
	// Transitions are the outgoing edges. Empty for final states.
	Transitions []Transition `json:"transitions,omitempty"`
	// Terminal is true for final states.
	Terminal bool `json:"terminal,omitempty"`
}

// NewExecutionState returns an execution state with the given id, task text,
// and transitions.
func NewExecutionState(id, task string, branching bool, transitions []Transition) State {
	return State{
		ID:          id,
		Kind:        StateExecution,
		Task:        task,
		Branching:   branching,
		Transitions: transitions,
	}
}

// NewFinalState returns a terminal state with the given id.
func NewFinalState(id string) State {
	return State{
		ID:       id,
		Kind:     StateFinal,
		Terminal: true,
	}
}

// IsFinal returns true if the state is terminal.
func (s *State) IsFinal() bool {
	return s.Kind == StateFinal
}

// Transition returns the first transition for the given event, or nil if the
// state has none.
func (s *State) Transition(event Event) *Transition {
	for i := range s.Transitions {
		if s.Transitions[i].Event == event {
			return &s.Transitions[i]
		}
	}
	return nil
}

// TransitionsFor returns all transitions for the given event in declaration
// order. Batch-start states have one CONTINUE transition per branch.
func (s *State) TransitionsFor(event Event) []Transition {
	var out []Transition
	for _, t := range s.Transitions {
		if t.Event == event {
			out = append(out, t)
		}
	}
	return out
}
