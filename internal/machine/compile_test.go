package machine

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/pkg/models"
)

// buildGraph constructs a graph from (id, deps) pairs with a recognizable
// task text per node.
func buildGraph(t *testing.T, deps map[string][]string) *models.Graph {
	t.Helper()
	var nodes []*models.Node
	for id, d := range deps {
		nodes = append(nodes, &models.Node{
			ID:         id,
			Task:       "do " + id,
			SideEffect: models.SideEffectPure,
			DependsOn:  d,
		})
	}
	g, err := graph.Build(nodes)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

// stateByID finds a state in a compiled machine.
func stateByID(t *testing.T, states []models.State, id string) *models.State {
	t.Helper()
	for i := range states {
		if states[i].ID == id {
			return &states[i]
		}
	}
	t.Fatalf("state %s not found in machine", id)
	return nil
}

func TestCompileLinearChain(t *testing.T) {
	// The 7-step serial review pipeline: each node depends on its
	// predecessor, the whole chain is one TD chain.
	path := []string{
		"confirmUserIntent", "specReview", "draftPlan", "planReview",
		"implement", "codeReview", "applyEdits",
	}
	deps := make(map[string][]string)
	for i, id := range path {
		if i == 0 {
			deps[id] = nil
		} else {
			deps[id] = []string{path[i-1]}
		}
	}
	g := buildGraph(t, deps)
	p := &models.PartitionResult{
		TDChains: []models.TDChain{{ID: "main", Path: path}},
	}

	states, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 7 execution states plus the two finals.
	if len(states) != 9 {
		t.Fatalf("expected 9 states, got %d", len(states))
	}

	for i, nodeID := range path {
		s := stateByID(t, states, ExecStateID(nodeID))
		if s.Kind != models.StateExecution {
			t.Errorf("state %s: expected execution kind, got %s", s.ID, s.Kind)
		}

		next := models.StateIDSuccess
		if i < len(path)-1 {
			next = ExecStateID(path[i+1])
		}
		cont := s.Transition(models.EventContinue)
		if cont == nil || cont.Target != next {
			t.Errorf("state %s: expected CONTINUE to %s, got %+v", s.ID, next, cont)
		}
		errTr := s.Transition(models.EventError)
		if errTr == nil || errTr.Target != models.StateIDFailure {
			t.Errorf("state %s: expected ERROR to failure, got %+v", s.ID, errTr)
		}
		for _, tr := range s.Transitions {
			if tr.Parallel {
				t.Errorf("state %s: chain transition to %s carries parallel marker", s.ID, tr.Target)
			}
		}
	}

	if err := Verify(states); err != nil {
		t.Errorf("compiled machine failed verification: %v", err)
	}
}

func TestCompileRegionFanOutAndJoin(t *testing.T) {
	// b and c depend on a (already satisfied outside the region), d joins
	// them. Batches: [[b c] [d]].
	g := buildGraph(t, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	})
	p := &models.PartitionResult{
		TDChains: []models.TDChain{{ID: "setup", Path: []string{"a"}}},
		BURegions: []models.BURegion{
			{ID: "r0", Batches: [][]string{{"b", "c"}, {"d"}}, Joins: []string{"d"}},
		},
	}

	states, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start0 := stateByID(t, states, BatchStartID("r0", 0))
	if !start0.Branching {
		t.Errorf("batch-start %s should be flagged branching", start0.ID)
	}
	fan := start0.TransitionsFor(models.EventContinue)
	if len(fan) != 2 {
		t.Fatalf("expected 2 fan-out transitions, got %d", len(fan))
	}
	targets := map[string]bool{}
	for _, tr := range fan {
		if !tr.Parallel {
			t.Errorf("fan-out edge to %s missing parallel marker", tr.Target)
		}
		targets[tr.Target] = true
	}
	if !targets[ExecStateID("b")] || !targets[ExecStateID("c")] {
		t.Errorf("fan-out targets wrong: %v", targets)
	}

	// Per-node states converge on the batch's join, unmarked.
	join0 := BatchJoinID("r0", 0)
	for _, nodeID := range []string{"b", "c"} {
		s := stateByID(t, states, ExecStateID(nodeID))
		cont := s.Transition(models.EventContinue)
		if cont == nil || cont.Target != join0 {
			t.Errorf("state %s: expected CONTINUE to %s, got %+v", s.ID, join0, cont)
		}
		if cont != nil && cont.Parallel {
			t.Errorf("state %s: per-node edge carries parallel marker", s.ID)
		}
	}

	// join0 -> start1 -> exec_d -> join1 -> success.
	j0 := stateByID(t, states, join0)
	if cont := j0.Transition(models.EventContinue); cont == nil || cont.Target != BatchStartID("r0", 1) {
		t.Errorf("join 0: expected CONTINUE to next batch start, got %+v", j0.Transitions)
	}
	start1 := stateByID(t, states, BatchStartID("r0", 1))
	fan1 := start1.TransitionsFor(models.EventContinue)
	if len(fan1) != 1 || fan1[0].Target != ExecStateID("d") || !fan1[0].Parallel {
		t.Errorf("batch 1 fan-out wrong: %+v", fan1)
	}
	j1 := stateByID(t, states, BatchJoinID("r0", 1))
	if cont := j1.Transition(models.EventContinue); cont == nil || cont.Target != models.StateIDSuccess {
		t.Errorf("final join: expected CONTINUE to success, got %+v", j1.Transitions)
	}

	// Every ERROR edge anywhere points at the failure terminal.
	for _, s := range states {
		for _, tr := range s.Transitions {
			if tr.Event == models.EventError && tr.Target != models.StateIDFailure {
				t.Errorf("state %s routes ERROR to %s", s.ID, tr.Target)
			}
		}
	}

	if err := Verify(states); err != nil {
		t.Errorf("compiled machine failed verification: %v", err)
	}
}

func TestCompileEmptyBatch(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil})
	p := &models.PartitionResult{
		BURegions: []models.BURegion{
			{ID: "r0", Batches: [][]string{{}, {"a"}}},
		},
	}

	states, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := stateByID(t, states, BatchStartID("r0", 0))
	if start.Branching {
		t.Errorf("empty batch-start should not be flagged branching")
	}
	fan := start.TransitionsFor(models.EventContinue)
	if len(fan) != 1 {
		t.Fatalf("expected a single CONTINUE for empty batch, got %d", len(fan))
	}
	if fan[0].Parallel {
		t.Error("empty batch CONTINUE must not carry the parallel marker")
	}
	if fan[0].Target != BatchJoinID("r0", 0) {
		t.Errorf("empty batch CONTINUE should target its join, got %s", fan[0].Target)
	}

	// No per-node states for the empty batch: only start+join per batch,
	// exec_a, and the two finals.
	if len(states) != 7 {
		t.Errorf("expected 7 states, got %d", len(states))
	}

	if err := Verify(states); err != nil {
		t.Errorf("compiled machine failed verification: %v", err)
	}
}

func TestCompileEmptyChainAndRegionEmitNothing(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil})
	p := &models.PartitionResult{
		TDChains: []models.TDChain{
			{ID: "empty", Path: nil},
			{ID: "real", Path: []string{"a"}},
		},
		BURegions: []models.BURegion{
			{ID: "hollow", Batches: nil},
		},
	}

	states, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// exec_a + success + failure only.
	if len(states) != 3 {
		t.Errorf("expected 3 states, got %d", len(states))
	}
}

func TestCompileSingleFinals(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil, "b": nil})
	p := &models.PartitionResult{
		TDChains: []models.TDChain{
			{ID: "c1", Path: []string{"a"}},
			{ID: "c2", Path: []string{"b"}},
		},
	}

	states, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var successes, failures int
	for _, s := range states {
		switch s.ID {
		case models.StateIDSuccess:
			successes++
			if !s.IsFinal() || len(s.Transitions) != 0 {
				t.Error("success must be final with no outgoing transitions")
			}
		case models.StateIDFailure:
			failures++
			if !s.IsFinal() || len(s.Transitions) != 0 {
				t.Error("failure must be final with no outgoing transitions")
			}
		}
	}
	if successes != 1 || failures != 1 {
		t.Errorf("expected exactly one success and one failure, got %d and %d", successes, failures)
	}
}

func TestCompileTaskTextVerbatim(t *testing.T) {
	// Task text with whitespace quirks the compiler must not touch.
	task := "  Implement the thing.\n\n\tMind the édge cases — all of them. \n"
	g, err := graph.Build([]*models.Node{
		{ID: "n1", Task: task, SideEffect: models.SideEffectPure},
	})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	p := &models.PartitionResult{
		TDChains: []models.TDChain{{ID: "c", Path: []string{"n1"}}},
	}

	states, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := stateByID(t, states, ExecStateID("n1"))
	if s.Task != task {
		t.Errorf("task text transformed:\nwant %q\ngot  %q", task, s.Task)
	}
}

func TestCompileDeterministic(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
		"e": {"d"},
	})
	p := &models.PartitionResult{
		TDChains: []models.TDChain{{ID: "head", Path: []string{"a"}}},
		BURegions: []models.BURegion{
			{ID: "r0", Batches: [][]string{{"b", "c"}, {"d"}, {"e"}}},
		},
	}

	first, err := Compile(g, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Compile(g, p)
		if err != nil {
			t.Fatalf("unexpected error on recompile: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("recompilation differs (-first +again):\n%s", diff)
		}
	}
}

func TestCompileUnknownNodeInChain(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil})
	p := &models.PartitionResult{
		TDChains: []models.TDChain{{ID: "c", Path: []string{"a", "ghost"}}},
	}

	states, err := Compile(g, p)
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if states != nil {
		t.Errorf("expected no output on failure, got %d states", len(states))
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error should name the offending node: %v", err)
	}
}

func TestCompileUnknownNodeInBatch(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil})
	p := &models.PartitionResult{
		BURegions: []models.BURegion{
			{ID: "r0", Batches: [][]string{{"ghost"}}},
		},
	}

	states, err := Compile(g, p)
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if states != nil {
		t.Errorf("expected no output on failure, got %d states", len(states))
	}
}

func TestCompileDuplicateNodeAcrossPartition(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil, "b": nil})
	p := &models.PartitionResult{
		TDChains: []models.TDChain{{ID: "c", Path: []string{"a", "b"}}},
		BURegions: []models.BURegion{
			{ID: "r0", Batches: [][]string{{"b"}}},
		},
	}

	_, err := Compile(g, p)
	if !errors.Is(err, ErrStateIDCollision) {
		t.Fatalf("expected ErrStateIDCollision for duplicated node, got %v", err)
	}
}

func TestCompileRegionIDCollidingWithFinals(t *testing.T) {
	// A hostile region id cannot silently shadow an existing state.
	g := buildGraph(t, map[string][]string{"a": nil, "b": nil})
	p := &models.PartitionResult{
		BURegions: []models.BURegion{
			{ID: "r0", Batches: [][]string{{"a"}}},
			{ID: "r0", Batches: [][]string{{"b"}}},
		},
	}

	_, err := Compile(g, p)
	if !errors.Is(err, ErrStateIDCollision) {
		t.Fatalf("expected ErrStateIDCollision for duplicate region id, got %v", err)
	}
}

func TestVerifyCoverage(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a": nil, "b": {"a"}, "c": {"a"}})

	tests := []struct {
		name    string
		p       *models.PartitionResult
		wantErr error
	}{
		{
			name: "complete",
			p: &models.PartitionResult{
				TDChains:  []models.TDChain{{ID: "c1", Path: []string{"a"}}},
				BURegions: []models.BURegion{{ID: "r0", Batches: [][]string{{"b", "c"}}}},
			},
		},
		{
			name: "missing node",
			p: &models.PartitionResult{
				TDChains: []models.TDChain{{ID: "c1", Path: []string{"a", "b"}}},
			},
			wantErr: ErrNodeNotCovered,
		},
		{
			name: "duplicated node",
			p: &models.PartitionResult{
				TDChains:  []models.TDChain{{ID: "c1", Path: []string{"a", "b", "c"}}},
				BURegions: []models.BURegion{{ID: "r0", Batches: [][]string{{"c"}}}},
			},
			wantErr: ErrNodeDuplicated,
		},
		{
			name: "unknown node",
			p: &models.PartitionResult{
				TDChains: []models.TDChain{{ID: "c1", Path: []string{"a", "b", "c", "ghost"}}},
			},
			wantErr: ErrUnknownNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyCoverage(g, tt.p)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
