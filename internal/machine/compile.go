// Package machine compiles a task graph and its execution partition into a
// finite state machine for the execution runtime.
//
// Compile is a pure function: it reads the graph and partition, allocates a
// fresh state list, and mutates nothing. It is safe to call from multiple
// goroutines simultaneously.
package machine

import (
	"fmt"

	"github.com/weftlabs/weft/pkg/models"
)

// ExecStateID returns the execution state id for a node.
func ExecStateID(nodeID string) string {
	return "exec_" + nodeID
}

// BatchStartID returns the fan-out state id for batch index i of a region.
func BatchStartID(regionID string, i int) string {
	return fmt.Sprintf("%s_batch_%d_start", regionID, i)
}

// BatchJoinID returns the join state id for batch index i of a region.
func BatchJoinID(regionID string, i int) string {
	return fmt.Sprintf("%s_batch_%d_join", regionID, i)
}

// Compile turns a graph and partition into an ordered list of states.
//
// Emission order: TD chains in partition order, then BU regions in partition
// order (batches in array order: start, per-node states, join), then the
// success and failure finals. Re-compiling the same inputs yields identical
// ids, transitions, and order.
//
// Compile fails fast with no output when a chain or batch references a node
// id absent from the graph, or when a generated state id collides with an
// existing one.
func Compile(g *models.Graph, p *models.PartitionResult) ([]models.State, error) {
	c := &compilation{graph: g, seen: make(map[string]struct{})}

	for i := range p.TDChains {
		if err := c.compileChain(&p.TDChains[i]); err != nil {
			return nil, err
		}
	}
	for i := range p.BURegions {
		if err := c.compileRegion(&p.BURegions[i]); err != nil {
			return nil, err
		}
	}
	if err := c.appendFinals(); err != nil {
		return nil, err
	}
	return c.states, nil
}

// compilation carries the working state of a single Compile call.
type compilation struct {
	graph  *models.Graph
	states []models.State
	seen   map[string]struct{}
}

// add appends a state, rejecting duplicate ids.
func (c *compilation) add(s models.State) error {
	if _, exists := c.seen[s.ID]; exists {
		return fmt.Errorf("state %s: %w", s.ID, ErrStateIDCollision)
	}
	c.seen[s.ID] = struct{}{}
	c.states = append(c.states, s)
	return nil
}

// lookup returns the node for an id, or an error naming the partition
// element that referenced it.
func (c *compilation) lookup(nodeID, where string) (*models.Node, error) {
	node := c.graph.Node(nodeID)
	if node == nil {
		return nil, fmt.Errorf("%s: node %s: %w", where, nodeID, ErrUnknownNode)
	}
	return node, nil
}

// compileChain emits one execution state per node in path order. Each node's
// CONTINUE targets the next node, or success for the last node; every ERROR
// targets failure. Chain transitions never carry the parallel marker.
// A zero-length chain emits nothing.
func (c *compilation) compileChain(chain *models.TDChain) error {
	for i, nodeID := range chain.Path {
		node, err := c.lookup(nodeID, fmt.Sprintf("chain %s", chain.ID))
		if err != nil {
			return err
		}

		next := models.StateIDSuccess
		if i < len(chain.Path)-1 {
			next = ExecStateID(chain.Path[i+1])
		}

		state := models.NewExecutionState(ExecStateID(nodeID), node.Task, false, []models.Transition{
			{Event: models.EventContinue, Target: next},
			{Event: models.EventError, Target: models.StateIDFailure},
		})
		if err := c.add(state); err != nil {
			return err
		}
	}
	return nil
}

// compileRegion emits, for each batch in array order: a batch-start state
// whose CONTINUE transitions fan out parallel-marked to the batch's nodes,
// the per-node execution states converging on the batch's join, and the join
// state itself. The join's CONTINUE targets the next batch's start, or
// success after the last batch. An empty batch wires its start straight to
// its join with a single unmarked CONTINUE. A region with zero batches emits
// nothing.
func (c *compilation) compileRegion(region *models.BURegion) error {
	for bi, batch := range region.Batches {
		startID := BatchStartID(region.ID, bi)
		joinID := BatchJoinID(region.ID, bi)

		// Batch-start: fan out to each node, or straight to the join when
		// the batch is empty. The parallel marker lives only on these
		// fan-out edges.
		var startTransitions []models.Transition
		for _, nodeID := range batch {
			startTransitions = append(startTransitions, models.Transition{
				Event:    models.EventContinue,
				Target:   ExecStateID(nodeID),
				Parallel: true,
			})
		}
		if len(batch) == 0 {
			startTransitions = append(startTransitions, models.Transition{
				Event:  models.EventContinue,
				Target: joinID,
			})
		}
		startTransitions = append(startTransitions, models.Transition{
			Event:  models.EventError,
			Target: models.StateIDFailure,
		})
		if err := c.add(models.NewExecutionState(startID, "", len(batch) > 0, startTransitions)); err != nil {
			return err
		}

		// Per-node states converge on the join. They never carry the
		// parallel marker themselves.
		for _, nodeID := range batch {
			node, err := c.lookup(nodeID, fmt.Sprintf("region %s batch %d", region.ID, bi))
			if err != nil {
				return err
			}
			state := models.NewExecutionState(ExecStateID(nodeID), node.Task, false, []models.Transition{
				{Event: models.EventContinue, Target: joinID},
				{Event: models.EventError, Target: models.StateIDFailure},
			})
			if err := c.add(state); err != nil {
				return err
			}
		}

		// Join: a barrier the runtime collapses N branch arrivals into.
		next := models.StateIDSuccess
		if bi < len(region.Batches)-1 {
			next = BatchStartID(region.ID, bi+1)
		}
		join := models.NewExecutionState(joinID, "", false, []models.Transition{
			{Event: models.EventContinue, Target: next},
			{Event: models.EventError, Target: models.StateIDFailure},
		})
		if err := c.add(join); err != nil {
			return err
		}
	}
	return nil
}

// appendFinals adds the single success and failure terminals. Every chain
// and region converges on these two states regardless of how many the
// partition contains.
func (c *compilation) appendFinals() error {
	if err := c.add(models.NewFinalState(models.StateIDSuccess)); err != nil {
		return err
	}
	return c.add(models.NewFinalState(models.StateIDFailure))
}

// VerifyCoverage reports whether every graph node appears in exactly one
// chain or batch of the partition. Compile assumes this invariant rather
// than enforcing it; callers that receive partitions from untrusted planners
// can run this check first.
func VerifyCoverage(g *models.Graph, p *models.PartitionResult) error {
	counts := make(map[string]int, g.Size())
	for _, chain := range p.TDChains {
		for _, id := range chain.Path {
			counts[id]++
		}
	}
	for _, region := range p.BURegions {
		for _, batch := range region.Batches {
			for _, id := range batch {
				counts[id]++
			}
		}
	}

	for id, n := range counts {
		if g.Node(id) == nil {
			return fmt.Errorf("partition: node %s: %w", id, ErrUnknownNode)
		}
		if n > 1 {
			return fmt.Errorf("node %s appears %d times in partition: %w", id, n, ErrNodeDuplicated)
		}
	}
	for id := range g.Nodes {
		if counts[id] == 0 {
			return fmt.Errorf("node %s: %w", id, ErrNodeNotCovered)
		}
	}
	return nil
}
