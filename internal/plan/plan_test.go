package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weftlabs/weft/pkg/models"
)

const fullPlan = `
name: release pipeline
nodes:
  - id: gather
    task: gather the release notes
    agent: researcher@v1
    side_effect: pure
    ttl: 15m
  - id: draft
    task: draft the announcement
    agent: writer@v2
    depends_on: [gather]
    input_key: gather
  - id: publish
    task: publish the announcement
    side_effect: effectful
    depends_on: [draft]
    input_key: draft
`

func TestParseFullPlan(t *testing.T) {
	p, err := Parse([]byte(fullPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "release pipeline" {
		t.Errorf("Name = %q, want %q", p.Name, "release pipeline")
	}
	if len(p.Nodes) != 3 {
		t.Fatalf("parsed %d nodes, want 3", len(p.Nodes))
	}
	if got := time.Duration(p.Nodes[0].TTL); got != 15*time.Minute {
		t.Errorf("gather ttl = %v, want 15m", got)
	}
	if p.Nodes[1].InputKey != "gather" {
		t.Errorf("draft input_key = %q, want %q", p.Nodes[1].InputKey, "gather")
	}
}

func TestModelNodesDefaults(t *testing.T) {
	p, err := Parse([]byte(fullPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nodes := p.ModelNodes()
	if nodes[1].SideEffect != models.SideEffectPure {
		t.Errorf("unset side_effect = %q, want default pure", nodes[1].SideEffect)
	}
	if nodes[2].SideEffect != models.SideEffectEffectful {
		t.Errorf("publish side_effect = %q, want effectful", nodes[2].SideEffect)
	}
}

func TestPlanGraph(t *testing.T) {
	p, err := Parse([]byte(fullPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g, err := p.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("graph size = %d, want 3", g.Size())
	}
	if deps := g.Dependencies["publish"]; len(deps) != 1 || deps[0] != "draft" {
		t.Errorf("publish dependencies = %v, want [draft]", deps)
	}
}

func TestParseExplicitPartition(t *testing.T) {
	src := `
nodes:
  - {id: a, task: t}
  - {id: b, task: t, depends_on: [a]}
  - {id: c, task: t, depends_on: [a]}
  - {id: d, task: t, depends_on: [b, c]}
partition:
  td_chains:
    - {id: td_0, path: [a]}
  bu_regions:
    - id: bu_0
      batches: [[b, c], [d]]
      joins: [d]
`
	p, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	part := p.PartitionResult()
	if part == nil {
		t.Fatal("PartitionResult returned nil for an explicit partition")
	}
	if len(part.TDChains) != 1 || part.TDChains[0].Path[0] != "a" {
		t.Errorf("chains = %+v, want one chain over a", part.TDChains)
	}
	if len(part.BURegions) != 1 || len(part.BURegions[0].Batches) != 2 {
		t.Errorf("regions = %+v, want one region with two batches", part.BURegions)
	}
}

func TestPartitionResultNilWhenOmitted(t *testing.T) {
	p, err := Parse([]byte(fullPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.PartitionResult() != nil {
		t.Error("PartitionResult should be nil when the plan has no partition block")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no nodes", `name: empty`},
		{"missing id", `nodes: [{task: t}]`},
		{"duplicate id", `nodes: [{id: a, task: t}, {id: a, task: t}]`},
		{"missing task", `nodes: [{id: a}]`},
		{"bad side effect", `nodes: [{id: a, task: t, side_effect: sometimes}]`},
		{"bad ttl", `nodes: [{id: a, task: t, ttl: soon}]`},
		{
			"partition unknown node",
			"nodes: [{id: a, task: t}]\npartition:\n  td_chains: [{id: td_0, path: [ghost]}]",
		},
		{
			"partition duplicate placement",
			"nodes: [{id: a, task: t}]\npartition:\n  td_chains: [{id: td_0, path: [a, a]}]",
		},
		{
			"partition misses node",
			"nodes: [{id: a, task: t}, {id: b, task: t}]\npartition:\n  td_chains: [{id: td_0, path: [a]}]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.src)); err == nil {
				t.Errorf("Parse accepted %s", tt.name)
			}
		})
	}
}

func TestValidationErrorIsSentinel(t *testing.T) {
	_, err := Parse([]byte(`nodes: [{id: a}]`))
	if !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("error = %v, want ErrInvalidPlan", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(fullPlan), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Nodes) != 3 {
		t.Errorf("loaded %d nodes, want 3", len(p.Nodes))
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
