// Package models contains the shared data types for weft: task graph
// nodes, partition contracts, and compiled state machines.
package models

import "time"

// SideEffect classifies the external effect of executing a node.
// The compiler copies it through unchanged; the runtime consults it
// when deciding whether a task may be re-dispatched.
type SideEffect string

const (
	// SideEffectPure indicates the task has no external effect.
	SideEffectPure SideEffect = "pure"
	// SideEffectIdempotent indicates an external effect that is safe to repeat.
	SideEffectIdempotent SideEffect = "idempotent"
	// SideEffectEffectful indicates an external effect that is not safely repeatable.
	SideEffectEffectful SideEffect = "effectful"
)

// Valid returns true if the classification is a known value.
func (s SideEffect) Valid() bool {
	switch s {
	case SideEffectPure, SideEffectIdempotent, SideEffectEffectful:
		return true
	default:
		return false
	}
}

// Repeatable returns true if the runtime may dispatch the task more than once.
func (s SideEffect) Repeatable() bool {
	return s != SideEffectEffectful
}

// Node represents a single unit of agent work in the task graph.
type Node struct {
	// ID is the unique identifier for this node.
	ID string `json:"id"`
	// Task is the free-text instruction for the agent. It is opaque to the
	// compiler and copied into the compiled machine byte-for-byte.
	Task string `json:"task"`
	// Agent is the agent/version tag that should execute this task
	// (e.g. "reviewer@v3").
	Agent string `json:"agent,omitempty"`
	// SideEffect classifies the external effect of executing this node.
	SideEffect SideEffect `json:"side_effect"`
	// TTL is how long a cached result for this node stays fresh.
	TTL time.Duration `json:"ttl,omitempty"`
	// DependsOn lists node IDs that must complete before this node.
	DependsOn []string `json:"depends_on,omitempty"`
	// InputKey names where this node's resolved input is stored.
	InputKey string `json:"input_key,omitempty"`
}

// Graph is an immutable description of task nodes and their dependency
// edges. Construct it with the graph package; every id referenced in the
// adjacency maps exists in Nodes.
type Graph struct {
	// Nodes maps node ID to the node itself.
	Nodes map[string]*Node `json:"nodes"`
	// Dependents is the forward adjacency: node ID to the IDs that depend on it.
	Dependents map[string][]string `json:"dependents"`
	// Dependencies is the reverse adjacency: node ID to the IDs it depends on.
	Dependencies map[string][]string `json:"dependencies"`
	// Sinks lists node IDs with no outgoing edges.
	Sinks []string `json:"sinks"`
}

// Node returns the node for a given ID, or nil if not found.
func (g *Graph) Node(id string) *Node {
	return g.Nodes[id]
}

// Size returns the number of nodes in the graph.
func (g *Graph) Size() int {
	return len(g.Nodes)
}
