// Package plan loads and validates YAML plan files: the node list an
// operator writes, plus an optional explicit partition for callers that
// precompute their own chains and regions.
package plan

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/pkg/models"
)

// ErrInvalidPlan indicates a plan file that parsed but failed validation.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is a parsed plan file.
type Plan struct {
	// Name is an optional human-readable label for the plan.
	Name string `yaml:"name"`
	// Nodes lists the task nodes of the plan.
	Nodes []NodeSpec `yaml:"nodes"`
	// Partition, if present, replaces the computed partition.
	Partition *PartitionSpec `yaml:"partition"`
}

// NodeSpec is one node entry in a plan file.
type NodeSpec struct {
	ID         string   `yaml:"id"`
	Task       string   `yaml:"task"`
	Agent      string   `yaml:"agent"`
	SideEffect string   `yaml:"side_effect"`
	TTL        Duration `yaml:"ttl"`
	DependsOn  []string `yaml:"depends_on"`
	InputKey   string   `yaml:"input_key"`
}

// PartitionSpec mirrors models.PartitionResult in plan-file form.
type PartitionSpec struct {
	TDChains  []ChainSpec  `yaml:"td_chains"`
	BURegions []RegionSpec `yaml:"bu_regions"`
}

// ChainSpec is one top-down chain entry.
type ChainSpec struct {
	ID   string   `yaml:"id"`
	Path []string `yaml:"path"`
}

// RegionSpec is one bottom-up region entry.
type RegionSpec struct {
	ID      string     `yaml:"id"`
	Batches [][]string `yaml:"batches"`
	Joins   []string   `yaml:"joins"`
}

// Duration wraps time.Duration so plan files can write ttl as "15m" or "2h".
type Duration time.Duration

// UnmarshalYAML parses a duration string. An empty or absent value is zero.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing ttl %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and parses a plan file from disk.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates plan YAML.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan yaml: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// validate checks the node list and any explicit partition for internal
// consistency. Dependency existence and cycles are the graph builder's job.
func (p *Plan) validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidPlan)
	}

	ids := make(map[string]bool, len(p.Nodes))
	for i, n := range p.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidPlan, i)
		}
		if ids[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidPlan, n.ID)
		}
		ids[n.ID] = true
		if n.Task == "" {
			return fmt.Errorf("%w: node %q has no task", ErrInvalidPlan, n.ID)
		}
		if n.SideEffect != "" && !models.SideEffect(n.SideEffect).Valid() {
			return fmt.Errorf("%w: node %q has unknown side_effect %q", ErrInvalidPlan, n.ID, n.SideEffect)
		}
	}

	if p.Partition != nil {
		if err := p.validatePartition(ids); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) validatePartition(ids map[string]bool) error {
	seen := make(map[string]bool)
	claim := func(where, id string) error {
		if !ids[id] {
			return fmt.Errorf("%w: partition %s references unknown node %q", ErrInvalidPlan, where, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: partition places node %q more than once", ErrInvalidPlan, id)
		}
		seen[id] = true
		return nil
	}

	for _, c := range p.Partition.TDChains {
		for _, id := range c.Path {
			if err := claim("chain "+c.ID, id); err != nil {
				return err
			}
		}
	}
	for _, r := range p.Partition.BURegions {
		for _, batch := range r.Batches {
			for _, id := range batch {
				if err := claim("region "+r.ID, id); err != nil {
					return err
				}
			}
		}
	}

	for id := range ids {
		if !seen[id] {
			return fmt.Errorf("%w: partition does not place node %q", ErrInvalidPlan, id)
		}
	}
	return nil
}

// ModelNodes converts the plan's node specs to model nodes. Side effect
// defaults to pure when unset.
func (p *Plan) ModelNodes() []*models.Node {
	out := make([]*models.Node, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		effect := models.SideEffect(n.SideEffect)
		if n.SideEffect == "" {
			effect = models.SideEffectPure
		}
		out = append(out, &models.Node{
			ID:         n.ID,
			Task:       n.Task,
			Agent:      n.Agent,
			SideEffect: effect,
			TTL:        time.Duration(n.TTL),
			DependsOn:  n.DependsOn,
			InputKey:   n.InputKey,
		})
	}
	return out
}

// Graph builds the task graph from the plan's nodes.
func (p *Plan) Graph() (*models.Graph, error) {
	return graph.Build(p.ModelNodes())
}

// PartitionResult returns the plan's explicit partition as a model value,
// or nil when the plan leaves partitioning to the planner.
func (p *Plan) PartitionResult() *models.PartitionResult {
	if p.Partition == nil {
		return nil
	}
	result := &models.PartitionResult{}
	for _, c := range p.Partition.TDChains {
		result.TDChains = append(result.TDChains, models.TDChain{ID: c.ID, Path: c.Path})
	}
	for _, r := range p.Partition.BURegions {
		result.BURegions = append(result.BURegions, models.BURegion{
			ID:      r.ID,
			Batches: r.Batches,
			Joins:   r.Joins,
		})
	}
	return result
}
