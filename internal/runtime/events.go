// Package runtime interprets compiled state machines: it walks
// CONTINUE/ERROR transitions, dispatches parallel branches on fan-out
// states, and collapses branch arrivals at join barriers.
package runtime

import "time"

// EventType represents the type of runtime event.
type EventType string

const (
	// EventRunStarted indicates a run has begun interpreting a machine.
	EventRunStarted EventType = "run_started"
	// EventStateEntered indicates the interpreter entered a state.
	EventStateEntered EventType = "state_entered"
	// EventTaskDispatched indicates a task was handed to the executor.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task reported ERROR.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCached indicates a fresh cached result was reused instead of
	// dispatching the task.
	EventTaskCached EventType = "task_cached"
	// EventFanOut indicates parallel branches were dispatched from a
	// batch-start state.
	EventFanOut EventType = "fan_out"
	// EventJoinReached indicates all branches of a fan-out arrived at the join.
	EventJoinReached EventType = "join_reached"
	// EventRunFinished indicates the run reached a terminal state.
	EventRunFinished EventType = "run_finished"
)

// Event is emitted by the engine as a run progresses. Consumers read these
// from Engine.Events; the machine itself carries no observability data.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the run that emitted the event.
	RunID string
	// StateID is the ID of the related state, if applicable.
	StateID string
	// NodeID is the ID of the related graph node, if applicable.
	NodeID string
	// Epoch identifies the fan-out execution epoch for parallel events.
	Epoch string
	// Branches is the number of branches dispatched, for fan-out events.
	Branches int
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
