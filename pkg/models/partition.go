package models

// TDChain is a top-down chain: a strictly ordered, serially dependent
// sequence of nodes. Each node in the path depends only on its predecessor.
type TDChain struct {
	// ID is the unique identifier for this chain.
	ID string `json:"id"`
	// Path is the node IDs in execution order.
	Path []string `json:"path"`
}

// BURegion is a bottom-up region: nodes organized into batches that become
// eligible together and may run concurrently within a batch. Batches are
// sequenced batch-to-batch via a join.
type BURegion struct {
	// ID is the unique identifier for this region.
	ID string `json:"id"`
	// Batches is the ordered list of batches. The nodes of a batch share a
	// satisfied dependency and can run concurrently.
	Batches [][]string `json:"batches"`
	// Joins lists the node IDs the partitioner considered join points.
	// Informational only; the compiler does not cross-check it against the
	// batches it wires.
	Joins []string `json:"joins,omitempty"`
}

// PartitionResult describes how the planner grouped graph nodes into serial
// chains and parallel-batch regions. It is produced once per planning cycle
// and treated as read-only input by the compiler.
//
// The partitioner guarantees that every node in the graph appears in exactly
// one chain or exactly one batch. The compiler assumes this; a partition
// violating it yields a machine that omits or duplicates work.
type PartitionResult struct {
	// BURegions holds the parallel-batch regions.
	BURegions []BURegion `json:"bu_regions"`
	// TDChains holds the serial chains.
	TDChains []TDChain `json:"td_chains"`
}

// NodeCount returns the total number of node references across all chains
// and batches.
func (p *PartitionResult) NodeCount() int {
	n := 0
	for _, c := range p.TDChains {
		n += len(c.Path)
	}
	for _, r := range p.BURegions {
		for _, b := range r.Batches {
			n += len(b)
		}
	}
	return n
}
