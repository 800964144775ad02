// Package scheduler evaluates a computation tree: it walks the tree from the
// root, dispatches every node whose parent is Done to a worker pool, and
// collects outputs onto the nodes. All tree-state mutation happens on the
// dispatch loop's goroutine; workers only evaluate stages and report back on
// a channel, so no locking of tree state is needed.
package scheduler

import (
	"context"
	"fmt"

	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/events"
	"github.com/vk/mdsweep/internal/pipeline"
	"github.com/vk/mdsweep/internal/pool"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/internal/tree"
)

// Scheduler drives tree evaluation over a worker pool.
type Scheduler struct {
	registry *stage.Registry
	pool     pool.Pool
	emitter  events.Emitter
	runID    string
	notify   chan<- LeafResult
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEmitter routes lifecycle events to e.
func WithEmitter(e events.Emitter) Option {
	return func(s *Scheduler) { s.emitter = e }
}

// WithNotify streams each LeafResult to ch as it completes, in completion
// order. The channel is not closed by the scheduler.
func WithNotify(ch chan<- LeafResult) Option {
	return func(s *Scheduler) { s.notify = ch }
}

// WithRunID tags emitted events with a run identity.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}

// New builds a Scheduler over the given stage registry and worker pool.
func New(reg *stage.Registry, p pool.Pool, opts ...Option) *Scheduler {
	s := &Scheduler{registry: reg, pool: p, emitter: events.Null{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// completion is a worker's report for one evaluated node.
type completion struct {
	node   *tree.Node
	fitted stage.Fitted
	output dataset.Handle
	err    error
}

// Evaluate runs every node of the tree exactly once, parent before child,
// and returns one LeafResult per leaf in enumeration order. A single failing
// subtree does not abort the run: its leaves carry errors while sibling
// subtrees complete normally. The returned error is non-nil only for fatal
// conditions (scheduling failure, or every leaf failed).
func (s *Scheduler) Evaluate(ctx context.Context, t *tree.Tree, in dataset.Handle) ([]LeafResult, error) {
	logger := ctxlog.FromContext(ctx)

	if t.Root.State() != tree.Pending {
		return nil, fmt.Errorf("computation tree was already evaluated")
	}

	// The root's "evaluation" is the externally supplied dataset.
	t.Root.SetState(tree.Done)
	t.Root.SetOutput(in)

	results := make([]LeafResult, len(t.Leaves))
	completions := make(chan completion, t.Size())
	remaining := t.Size()
	var fatal error
	cancelDone := ctx.Done()

	dispatchChildren := func(parent *tree.Node) {
		for _, child := range parent.Children {
			if child.State() != tree.Pending || fatal != nil {
				continue
			}
			if err := s.dispatch(ctx, child, completions); err != nil {
				fatal = &SchedulingError{Err: err}
				logger.Error("Worker pool unavailable, aborting run.", "error", err)
				remaining -= s.skipPending(ctx, t, fatal, results)
				return
			}
		}
	}

	logger.Debug("Scheduler starting.", "nodes", t.Size(), "leaves", len(t.Leaves))
	dispatchChildren(t.Root)

	for remaining > 0 {
		select {
		case <-cancelDone:
			// Stop dispatching; in-flight evaluations finish normally and
			// their results remain valid. Everything not yet dispatched is
			// reported as cancelled.
			logger.Warn("Run cancelled, skipping undispatched nodes.", "cause", ctx.Err())
			remaining -= s.skipPending(ctx, t, ctx.Err(), results)
			cancelDone = nil

		case c := <-completions:
			remaining--
			if c.err != nil {
				remaining -= s.failNode(ctx, c.node, c.err, results)
			} else {
				s.completeNode(ctx, c, results)
				dispatchChildren(c.node)
			}
			s.releaseToParent(c.node)
		}
	}

	if fatal != nil {
		return nil, fatal
	}

	failed, cause := 0, error(nil)
	for _, r := range results {
		if r.Failed() {
			failed++
			if cause == nil && !IsSkip(r.Err) {
				cause = r.Err
			}
		}
	}
	s.emitter.Emit(ctx, s.runEvent(events.KindRunCompleted, len(t.Leaves), failed))
	logger.Info("Scheduler finished.", "leaves", len(t.Leaves), "failed", failed)

	if failed == len(results) {
		if cause == nil {
			cause = ctx.Err()
		}
		return results, &AllFailedError{Leaves: len(results), Cause: cause}
	}
	return results, nil
}

// dispatch hands a node's evaluation to the pool and marks it Running. On a
// Submit failure the node stays Pending so the abort path accounts for it.
func (s *Scheduler) dispatch(ctx context.Context, n *tree.Node, completions chan<- completion) error {
	parentOut := n.Parent.Output()
	spec := n.Spec
	if err := s.pool.Submit(func() {
		fitted, out, err := s.evaluate(ctx, spec, parentOut)
		completions <- completion{node: n, fitted: fitted, output: out, err: err}
	}); err != nil {
		return err
	}

	n.SetState(tree.Running)
	ev := s.runEvent(events.KindNodeStarted, 0, 0)
	ev.NodeID, ev.Stage = n.ID, n.Spec.Type
	s.emitter.Emit(ctx, ev)
	return nil
}

// evaluate runs one stage against its parent's output. It executes on a
// worker goroutine and touches no shared tree state.
func (s *Scheduler) evaluate(ctx context.Context, spec stage.Spec, in dataset.Handle) (stage.Fitted, dataset.Handle, error) {
	st, err := s.registry.New(spec.Type)
	if err != nil {
		return nil, nil, err
	}
	fitted, err := st.Fit(ctx, in, spec.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("fit: %w", err)
	}
	if spec.Role == stage.RoleFit {
		// Estimator node: the dataset passes through unchanged.
		return fitted, in, nil
	}
	out, err := fitted.Transform(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("transform: %w", err)
	}
	return fitted, out, nil
}

// completeNode records a successful evaluation and, for a leaf, assembles
// its result.
func (s *Scheduler) completeNode(ctx context.Context, c completion, results []LeafResult) {
	n := c.node
	n.Fitted = c.fitted
	n.SetOutput(c.output)
	n.SetState(tree.Done)

	ev := s.runEvent(events.KindNodeDone, 0, 0)
	ev.NodeID, ev.Stage = n.ID, n.Spec.Type
	s.emitter.Emit(ctx, ev)

	if n.IsLeaf() {
		s.finishLeaf(n, LeafResult{
			LeafIndex: n.LeafIndex,
			NodeID:    n.ID,
			Path:      n.Path(),
			Pipeline:  realizedPipeline(n),
			Output:    c.output,
		}, results)
	}
}

// failNode records a fresh stage failure and propagates skips through the
// node's whole subtree. It returns the number of descendants skipped, which
// the dispatch loop subtracts from its remaining count.
func (s *Scheduler) failNode(ctx context.Context, n *tree.Node, evalErr error, results []LeafResult) int {
	logger := ctxlog.FromContext(ctx)
	stageErr := &StageError{NodeID: n.ID, Err: evalErr}
	n.Err = stageErr
	n.SetState(tree.Failed)
	logger.Error("Node evaluation failed.", "nodeID", n.ID, "error", evalErr)

	ev := s.runEvent(events.KindNodeFailed, 0, 0)
	ev.NodeID, ev.Stage, ev.Error = n.ID, n.Spec.Type, evalErr.Error()
	s.emitter.Emit(ctx, ev)

	if n.IsLeaf() {
		s.finishLeaf(n, LeafResult{LeafIndex: n.LeafIndex, NodeID: n.ID, Path: n.Path(), Err: stageErr}, results)
		return 0
	}
	return s.skipSubtree(ctx, n, n.ID, stageErr, results)
}

// skipSubtree marks every descendant of n as failed-by-propagation without
// evaluating it. Sibling subtrees are untouched.
func (s *Scheduler) skipSubtree(ctx context.Context, n *tree.Node, ancestorID string, cause error, results []LeafResult) int {
	logger := ctxlog.FromContext(ctx)
	skipped := 0
	for _, child := range n.Children {
		child.SkipOnce(func() {
			skipErr := &SkipError{NodeID: child.ID, AncestorID: ancestorID, Cause: cause}
			child.Err = skipErr
			child.SetState(tree.Failed)
			skipped++
			logger.Warn("Skipping node due to upstream failure.", "nodeID", child.ID, "ancestor", ancestorID)

			ev := s.runEvent(events.KindNodeFailed, 0, 0)
			ev.NodeID, ev.Stage, ev.Error = child.ID, child.Spec.Type, skipErr.Error()
			s.emitter.Emit(ctx, ev)

			if child.IsLeaf() {
				s.finishLeaf(child, LeafResult{LeafIndex: child.LeafIndex, NodeID: child.ID, Path: child.Path(), Err: skipErr}, results)
			} else {
				skipped += s.skipSubtree(ctx, child, ancestorID, cause, results)
			}
			if n.ChildDone() {
				n.ReleaseOutput()
			}
		})
	}
	return skipped
}

// skipPending marks every still-pending node as skipped with the given cause
// (cancellation or a fatal scheduling error) and returns how many were marked.
func (s *Scheduler) skipPending(ctx context.Context, t *tree.Tree, cause error, results []LeafResult) int {
	skipped := 0
	for _, n := range t.Nodes {
		if n.State() != tree.Pending {
			continue
		}
		node := n
		node.SkipOnce(func() {
			skipErr := &SkipError{NodeID: node.ID, AncestorID: "run", Cause: cause}
			node.Err = skipErr
			node.SetState(tree.Failed)
			skipped++
			if node.IsLeaf() {
				s.finishLeaf(node, LeafResult{LeafIndex: node.LeafIndex, NodeID: node.ID, Path: node.Path(), Err: skipErr}, results)
			}
		})
	}
	return skipped
}

// finishLeaf stores and, when streaming, publishes one leaf's result.
func (s *Scheduler) finishLeaf(n *tree.Node, r LeafResult, results []LeafResult) {
	results[n.LeafIndex] = r
	if s.notify != nil {
		s.notify <- r
	}
}

// releaseToParent drops the parent's cached output once all of its children
// are terminal. Leaf outputs are never released here.
func (s *Scheduler) releaseToParent(n *tree.Node) {
	if p := n.Parent; p != nil && p.ChildDone() {
		p.ReleaseOutput()
	}
}

// realizedPipeline collects the fitted chain along the root-to-leaf path.
func realizedPipeline(leaf *tree.Node) *pipeline.Pipeline {
	links := make([]pipeline.Link, leaf.Depth)
	for cur := leaf; !cur.IsRoot(); cur = cur.Parent {
		links[cur.Depth-1] = pipeline.Link{Spec: cur.Spec, Fitted: cur.Fitted}
	}
	return pipeline.New(links)
}

func (s *Scheduler) runEvent(kind events.Kind, leaves, failed int) events.Event {
	ev := events.New(s.runID, kind)
	ev.Leaves, ev.Failed = leaves, failed
	return ev
}
