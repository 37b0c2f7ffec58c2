package machine

import "errors"

// ErrUnknownNode indicates a chain or batch referenced a node id absent from
// the graph. This is a defect in the upstream planner, not a runtime
// condition.
var ErrUnknownNode = errors.New("partition references unknown node")

// ErrStateIDCollision indicates id generation produced a state id that
// already exists in the machine. A node duplicated across the partition
// surfaces as this error.
var ErrStateIDCollision = errors.New("state id collision")

// ErrNodeNotCovered indicates a graph node that appears in no chain or
// batch. Reported by VerifyCoverage, never by Compile itself.
var ErrNodeNotCovered = errors.New("node not covered by partition")

// ErrNodeDuplicated indicates a graph node placed in more than one chain or
// batch. Reported by VerifyCoverage; in Compile the same defect surfaces
// downstream as ErrStateIDCollision.
var ErrNodeDuplicated = errors.New("node duplicated in partition")
