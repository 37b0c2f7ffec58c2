// Package partition derives an execution partition from a task graph:
// maximal serial runs become top-down chains, and the remaining nodes are
// grouped into bottom-up regions of dependency-level batches.
//
// The compiler never calls into this package; it consumes whatever
// PartitionResult it is handed. Plan exists so the pipeline has a planner
// when no explicit partition is supplied.
package partition

import (
	"fmt"
	"sort"

	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/pkg/models"
)

// Plan produces a partition covering every node of the graph exactly once.
//
// Chains are grown from dependency-free roots: a run extends while the
// current node has exactly one dependent and that dependent has exactly one
// dependency. Everything not claimed by a chain lands in a single BU region
// whose batches follow the graph's dependency levels, so the nodes of a
// batch are mutually independent and eligible together.
//
// Output is deterministic: roots are visited in sorted order, chain and
// region ids are assigned by position.
func Plan(g *models.Graph) (*models.PartitionResult, error) {
	levels, err := graph.Levels(g)
	if err != nil {
		return nil, fmt.Errorf("layering graph: %w", err)
	}

	used := make(map[string]bool, g.Size())

	var roots []string
	for id := range g.Nodes {
		if len(g.Dependencies[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	var chains []models.TDChain
	for _, root := range roots {
		path := []string{root}
		used[root] = true

		cur := root
		for {
			dependents := g.Dependents[cur]
			if len(dependents) != 1 {
				break
			}
			next := dependents[0]
			if used[next] || len(g.Dependencies[next]) != 1 {
				break
			}
			path = append(path, next)
			used[next] = true
			cur = next
		}

		chains = append(chains, models.TDChain{
			ID:   fmt.Sprintf("td_%d", len(chains)),
			Path: path,
		})
	}

	// Remaining nodes keep their level ordering; a level slice restricted
	// to unclaimed nodes is still a set of mutually independent nodes.
	var batches [][]string
	for _, level := range levels {
		var batch []string
		for _, id := range level {
			if !used[id] {
				batch = append(batch, id)
			}
		}
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}

	result := &models.PartitionResult{TDChains: chains}
	if len(batches) > 0 {
		result.BURegions = []models.BURegion{{
			ID:      "bu_0",
			Batches: batches,
			Joins:   batches[len(batches)-1],
		}}
	}
	return result, nil
}
