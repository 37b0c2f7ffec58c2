// Package graph builds the immutable task dependency graph consumed by the
// partitioner and the state machine compiler.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/weftlabs/weft/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDuplicateNode indicates the same node ID was declared twice.
var ErrDuplicateNode = errors.New("duplicate node id")

// Build constructs an immutable models.Graph from a slice of nodes.
// It derives forward adjacency (dependents), reverse adjacency
// (dependencies), and the sink list, and returns an error if a node's
// dependency references an unknown id, a node id is declared twice, or the
// graph contains a cycle.
//
// Adjacency lists and sinks are sorted so the same node slice always yields
// the same graph.
func Build(nodes []*models.Node) (*models.Graph, error) {
	g := &models.Graph{
		Nodes:        make(map[string]*models.Node, len(nodes)),
		Dependents:   make(map[string][]string, len(nodes)),
		Dependencies: make(map[string][]string, len(nodes)),
	}

	// First pass: register all nodes.
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node with empty id")
		}
		if _, exists := g.Nodes[n.ID]; exists {
			return nil, fmt.Errorf("node %s: %w", n.ID, ErrDuplicateNode)
		}
		g.Nodes[n.ID] = n
		g.Dependents[n.ID] = nil
		g.Dependencies[n.ID] = nil
	}

	// Second pass: build both adjacency directions from DependsOn.
	for _, n := range nodes {
		for _, depID := range n.DependsOn {
			if _, exists := g.Nodes[depID]; !exists {
				return nil, fmt.Errorf("node %s depends on unknown node %s", n.ID, depID)
			}
			g.Dependencies[n.ID] = append(g.Dependencies[n.ID], depID)
			g.Dependents[depID] = append(g.Dependents[depID], n.ID)
		}
	}

	for id := range g.Nodes {
		sort.Strings(g.Dependents[id])
		sort.Strings(g.Dependencies[id])
	}

	if hasCycle(g) {
		return nil, ErrCycleDetected
	}

	// Sinks: nodes with no dependents.
	for id := range g.Nodes {
		if len(g.Dependents[id]) == 0 {
			g.Sinks = append(g.Sinks, id)
		}
	}
	sort.Strings(g.Sinks)

	return g, nil
}

// hasCycle reports whether the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func hasCycle(g *models.Graph) bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.Nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.Dependencies[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}

		colors[id] = 2
		return false
	}

	for id := range g.Nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns node IDs in an order where all dependencies come
// before the nodes that depend on them. The order is deterministic: ties are
// broken by node id. Returns an error if the graph contains a cycle.
func TopologicalSort(g *models.Graph) ([]string, error) {
	if hasCycle(g) {
		return nil, ErrCycleDetected
	}

	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		// Visit all dependencies first.
		for _, depID := range g.Dependencies[id] {
			visit(depID)
		}

		result = append(result, id)
	}

	for _, id := range ids {
		visit(id)
	}

	return result, nil
}

// Levels groups node IDs into dependency levels: level 0 holds nodes with no
// dependencies, level n holds nodes whose deepest dependency sits at level
// n-1. Nodes within a level are sorted by id and are mutually independent,
// so a level is safe to run as one concurrent batch.
func Levels(g *models.Graph) ([][]string, error) {
	order, err := TopologicalSort(g)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, id := range order {
		d := 0
		for _, depID := range g.Dependencies[id] {
			if depth[depID]+1 > d {
				d = depth[depID] + 1
			}
		}
		depth[id] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, id := range order {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	for _, level := range levels {
		sort.Strings(level)
	}
	return levels, nil
}
