package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/internal/machine"
	"github.com/weftlabs/weft/pkg/models"
)

// Engine interprets one compiled machine. It is single-run: create an
// Engine, optionally consume Events, call Run once.
type Engine struct {
	graph       *models.Graph
	order       []models.State
	states      map[string]*models.State
	nodeByState map[string]*models.Node
	exec        Executor

	results  *resultStore
	barriers *barrierSet
	events   chan Event
	logger   *DebugLogger

	mu         sync.Mutex
	dispatched map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the debug logger. Defaults to a no-op logger.
func WithLogger(l *DebugLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSeedResult preloads a result from a previous planning cycle, with the
// timestamp the TTL check should measure against.
func WithSeedResult(key, value string, written time.Time) Option {
	return func(e *Engine) { e.results.Seed(key, value, written) }
}

// New creates an Engine for a compiled machine. The states are verified
// structurally before anything runs; a machine that fails verification is
// rejected here rather than deadlocking later.
func New(g *models.Graph, states []models.State, exec Executor, opts ...Option) (*Engine, error) {
	if exec == nil {
		return nil, fmt.Errorf("runtime: nil executor")
	}
	if err := machine.Verify(states); err != nil {
		return nil, fmt.Errorf("runtime: rejecting machine: %w", err)
	}

	e := &Engine{
		graph:       g,
		order:       states,
		states:      make(map[string]*models.State, len(states)),
		nodeByState: make(map[string]*models.Node, g.Size()),
		exec:        exec,
		results:     newResultStore(),
		barriers:    newBarrierSet(),
		events:      make(chan Event, 128),
		logger:      NopLogger(),
		dispatched:  make(map[string]bool),
	}
	for i := range states {
		e.states[states[i].ID] = &states[i]
	}
	for _, node := range g.Nodes {
		e.nodeByState[machine.ExecStateID(node.ID)] = node
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Events returns the engine's event stream. It is closed when Run finishes.
// Delivery is best effort: events are dropped rather than blocking the run
// when no consumer keeps up.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// RunResult summarizes a finished run.
type RunResult struct {
	// RunID is the unique identifier assigned to this run.
	RunID string
	// Terminal is the id of the final state the machine reached.
	Terminal string
	// Results maps node ids to their task outputs.
	Results map[string]string
}

// Succeeded returns true if the run converged on the success terminal.
func (r *RunResult) Succeeded() bool {
	return r.Terminal == models.StateIDSuccess
}

// Run interprets the machine until every independent causal root has
// converged on a terminal. The run fails as soon as any root reaches the
// failure terminal; remaining roots are not started.
func (e *Engine) Run(ctx context.Context) (result *RunResult, err error) {
	runID := uuid.NewString()
	defer close(e.events)

	e.emit(Event{Type: EventRunStarted, RunID: runID})
	e.logger.Log("[engine] run %s started with %d states", runID, len(e.order))

	terminal := models.StateIDSuccess
	for _, root := range e.roots() {
		t, werr := e.walk(ctx, runID, root)
		if werr != nil {
			e.emit(Event{Type: EventRunFinished, RunID: runID, Err: werr})
			return nil, werr
		}
		if t == models.StateIDFailure {
			terminal = models.StateIDFailure
			break
		}
	}

	result = &RunResult{
		RunID:    runID,
		Terminal: terminal,
		Results:  e.results.Snapshot(),
	}
	e.emit(Event{Type: EventRunFinished, RunID: runID, StateID: terminal})
	e.logger.Log("[engine] run %s finished at %s", runID, terminal)
	return result, nil
}

// roots returns the execution states no transition targets, in machine
// order. Each is an independent causal root of the compiled machine.
func (e *Engine) roots() []string {
	targeted := make(map[string]bool, len(e.order))
	for _, s := range e.order {
		for _, tr := range s.Transitions {
			targeted[tr.Target] = true
		}
	}

	var roots []string
	for _, s := range e.order {
		if s.Kind == models.StateExecution && !targeted[s.ID] {
			roots = append(roots, s.ID)
		}
	}
	return roots
}

// walk advances from a root state until it reaches a terminal, dispatching
// parallel branches at branching states.
func (e *Engine) walk(ctx context.Context, runID, start string) (string, error) {
	cur := start
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		s, ok := e.states[cur]
		if !ok {
			return "", fmt.Errorf("walk reached unknown state %s", cur)
		}
		if s.IsFinal() {
			return s.ID, nil
		}
		e.emit(Event{Type: EventStateEntered, RunID: runID, StateID: s.ID})

		if s.Branching {
			next, failed, err := e.fanOut(ctx, runID, s)
			if err != nil {
				return "", err
			}
			if failed {
				return models.StateIDFailure, nil
			}
			cur = next
			continue
		}

		if node := e.nodeByState[s.ID]; node != nil {
			if err := e.execNode(ctx, runID, node); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				// The compiled wiring routes every ERROR to failure.
				cur = s.Transition(models.EventError).Target
				continue
			}
		}
		cur = s.Transition(models.EventContinue).Target
	}
}

// fanOut dispatches one branch per parallel-marked transition of a
// batch-start state and blocks on the join barrier. Returns the join state
// id once every branch arrives. If a branch reports ERROR, fanOut returns
// failed=true immediately, without waiting for siblings; the shared context
// cancels them. Whether they complete or abort is their executor's concern.
func (e *Engine) fanOut(ctx context.Context, runID string, s *models.State) (next string, failed bool, err error) {
	fan := s.TransitionsFor(models.EventContinue)

	// All branches of one fan-out converge on the same join.
	first, ok := e.states[fan[0].Target]
	if !ok {
		return "", false, fmt.Errorf("fan-out %s targets unknown state %s", s.ID, fan[0].Target)
	}
	joinID := first.Transition(models.EventContinue).Target

	key := BarrierKey{StartID: s.ID, Epoch: uuid.NewString()}
	if err := e.barriers.Open(key, len(fan)); err != nil {
		return "", false, err
	}
	e.emit(Event{Type: EventFanOut, RunID: runID, StateID: s.ID, Epoch: key.Epoch, Branches: len(fan)})
	e.logger.Log("[engine] fan-out %s epoch %s: %d branches", s.ID, key.Epoch, len(fan))

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(fan))
	for _, tr := range fan {
		go func(target string) {
			node := e.nodeByState[target]
			if node != nil {
				if execErr := e.execNode(branchCtx, runID, node); execErr != nil {
					errCh <- execErr
					return
				}
			}
			errCh <- e.barriers.Arrive(key)
		}(tr.Target)
	}

	for range fan {
		if branchErr := <-errCh; branchErr != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			e.logger.Log("[engine] fan-out %s epoch %s: branch failed: %v", s.ID, key.Epoch, branchErr)
			return "", true, nil
		}
	}

	if err := e.barriers.Wait(ctx, key); err != nil {
		return "", false, err
	}
	e.emit(Event{Type: EventJoinReached, RunID: runID, StateID: joinID, Epoch: key.Epoch})
	return joinID, false, nil
}

// execNode resolves one node's task through the executor. A fresh cached
// result within the node's TTL is reused instead of re-dispatching; an
// effectful node is never dispatched twice within a run.
func (e *Engine) execNode(ctx context.Context, runID string, node *models.Node) error {
	if _, ok := e.results.Fresh(node.ID, node.TTL); ok {
		e.emit(Event{Type: EventTaskCached, RunID: runID, NodeID: node.ID})
		e.logger.Log("[engine] node %s: reusing cached result within ttl %s", node.ID, node.TTL)
		return nil
	}

	e.mu.Lock()
	if e.dispatched[node.ID] && !node.SideEffect.Repeatable() {
		e.mu.Unlock()
		return fmt.Errorf("effectful node %s already dispatched in this run", node.ID)
	}
	e.dispatched[node.ID] = true
	e.mu.Unlock()

	input := e.results.Get(node.InputKey)
	e.emit(Event{Type: EventTaskDispatched, RunID: runID, NodeID: node.ID})

	out, err := e.exec.Execute(ctx, node, input)
	if err != nil {
		e.emit(Event{Type: EventTaskFailed, RunID: runID, NodeID: node.ID, Err: err})
		e.logger.Log("[engine] node %s failed: %v", node.ID, err)
		return err
	}

	e.results.Put(node.ID, out)
	e.emit(Event{Type: EventTaskCompleted, RunID: runID, NodeID: node.ID})
	return nil
}

// emit sends an event without blocking the run.
func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case e.events <- ev:
	default:
	}
}
