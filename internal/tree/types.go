// Package tree implements the computation tree: the explicit structure built
// by expanding a sweep template into all realized pipelines, with structural
// sharing of any prefix whose stage configurations coincide.
package tree

import (
	"sync"
	"sync/atomic"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
)

// State is the lifecycle of a node during evaluation.
type State int32

const (
	// Pending means the node has not been dispatched yet.
	Pending State = iota
	// Running means a worker is evaluating the node's stage.
	Running
	// Done means the node's output is available.
	Done
	// Failed means the node's stage failed, or an ancestor did.
	Failed
)

// String renders the state for logs.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Node is one realized stage configuration in the tree. Structure (parent,
// children, spec) is immutable after Build; the evaluation fields (state,
// fitted, output, err) follow single-assignment discipline enforced by the
// scheduler's parent-Done-before-child invariant.
type Node struct {
	// ID is the root-to-node path of stage renderings, unique by construction.
	ID string
	// Spec is the stage configuration this node realizes. Zero for the root.
	Spec stage.Spec
	// Parent is nil only for the root.
	Parent *Node
	// Children are ordered by creation; no two carry equivalent Specs.
	Children []*Node
	// Depth is the number of stages above this node (root is 0).
	Depth int
	// LeafIndex is the deterministic enumeration index for leaves, -1 otherwise.
	LeafIndex int

	// Fitted is the trained stage instance, set exactly once on success.
	Fitted stage.Fitted
	// Err is the evaluation or propagated-skip error, set on failure.
	Err error

	state atomic.Int32
	// output holds the node's dataset until every child consumed it.
	output dataset.Handle
	// openChildren counts children not yet terminal; the cached output of an
	// interior node is released when it reaches zero.
	openChildren atomic.Int32
	// skipOnce guards failure propagation so a node is skipped at most once.
	skipOnce sync.Once

	// childrenByKey deduplicates equivalent sibling specs during Build.
	childrenByKey map[string]*Node
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// SetState transitions the node.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// IsRoot reports whether this is the synthetic input node.
func (n *Node) IsRoot() bool { return n.Parent == nil }

// IsLeaf reports whether the node terminates a realized pipeline.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Output returns the node's cached dataset, or nil after release.
func (n *Node) Output() dataset.Handle { return n.output }

// SetOutput stores the node's dataset. Single-assignment: the scheduler calls
// it exactly once, before any child is dispatched.
func (n *Node) SetOutput(h dataset.Handle) { n.output = h }

// ReleaseOutput drops the cached dataset of an interior node once all of its
// children are terminal. Leaf outputs are retained for the caller.
func (n *Node) ReleaseOutput() {
	if !n.IsLeaf() {
		n.output = nil
	}
}

// ChildDone decrements the open-children counter and reports whether every
// child of this node is now terminal.
func (n *Node) ChildDone() bool {
	return n.openChildren.Add(-1) == 0
}

// SkipOnce runs fn at most once for this node, used for failure propagation.
func (n *Node) SkipOnce(fn func()) {
	n.skipOnce.Do(fn)
}

// Path returns the stage specs from the first stage down to this node. The
// root contributes nothing.
func (n *Node) Path() []stage.Spec {
	if n.IsRoot() {
		return nil
	}
	specs := make([]stage.Spec, n.Depth)
	for cur := n; !cur.IsRoot(); cur = cur.Parent {
		specs[cur.Depth-1] = cur.Spec
	}
	return specs
}

// Tree owns the root node and, transitively, all descendants. Structure is
// immutable after Build.
type Tree struct {
	// Root is the synthetic node representing the unprocessed input dataset.
	Root *Node
	// Nodes lists every node except the root, in creation order.
	Nodes []*Node
	// Leaves are the terminal nodes in deterministic enumeration order: the
	// order induced by nested iteration over each branch's grid, outer to
	// inner in template order.
	Leaves []*Node
}

// Size returns the number of stage nodes (the root is excluded).
func (t *Tree) Size() int { return len(t.Nodes) }
