package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/events"
	"github.com/vk/mdsweep/internal/pool"
	"github.com/vk/mdsweep/internal/scheduler"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/internal/testutil"
	"github.com/vk/mdsweep/internal/tree"
)

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(_ context.Context, ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) byKind(kind events.Kind) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// taggingModule registers a stage whose transform derives a renamed dataset,
// so output identity is observable along a pipeline.
type taggingModule struct {
	name string
}

func (m *taggingModule) Register(r *stage.Registry) {
	r.Register(m.name, func() stage.Stage { return &taggingStage{name: m.name} })
}

type taggingStage struct {
	name string
}

func (s *taggingStage) Fit(_ context.Context, _ dataset.Handle, p stage.Params) (stage.Fitted, error) {
	return &taggingFitted{label: fmt.Sprintf("%s%s", s.name, testutil.ParamsKey(p))}, nil
}

type taggingFitted struct {
	label string
}

func (f *taggingFitted) Transform(_ context.Context, in dataset.Handle) (dataset.Handle, error) {
	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	return frames.Derive(f.label, frames.NumFrames(), frames.NumFeatures()), nil
}

func evaluate(t *testing.T, template tree.Template, reg *stage.Registry, workers int, opts ...scheduler.Option) (*tree.Tree, []scheduler.LeafResult, error) {
	t.Helper()

	tr, err := tree.Build(context.Background(), template, reg)
	require.NoError(t, err)

	p := pool.NewLocal(workers)
	defer p.Close()

	results, runErr := scheduler.New(reg, p, opts...).Evaluate(context.Background(), tr, testutil.InputFrames("traj", 10, 2))
	return tr, results, runErr
}

func TestScheduler_SharedPrefixEvaluatesOnce(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	strideMod := testutil.NewCountingModule("stride")
	clusterMod := testutil.NewCountingModule("cluster")
	scaleMod := testutil.NewCountingModule("scale")
	strideMod.Register(reg)
	clusterMod.Register(reg)
	scaleMod.Register(reg)

	template := tree.Template{
		testutil.FixedStage("stride", stage.Params{"step": cty.NumberIntVal(2)}),
		testutil.BranchStage(t, "cluster", "k", 2, 4),
		testutil.BranchStage(t, "scale", "factor", 1, 2, 3),
	}

	_, results, err := evaluate(t, template, reg, 4)
	require.NoError(t, err)
	require.Len(t, results, 6)

	// The shared stride prefix runs once, each cluster configuration once,
	// and each of the six scale nodes once: 1 + 2 + 6 evaluations for six
	// realized pipelines.
	assert.Equal(t, 1, strideMod.TotalFits())
	assert.Equal(t, 2, clusterMod.TotalFits())
	assert.Equal(t, 6, scaleMod.TotalFits())
	assert.Equal(t, 1, clusterMod.Fits(stage.Params{"k": cty.NumberIntVal(2)}))
	// scale(factor=1) exists under both cluster nodes: distinct nodes, same params.
	assert.Equal(t, 2, scaleMod.Fits(stage.Params{"factor": cty.NumberIntVal(1)}))

	for i, r := range results {
		assert.Equal(t, i, r.LeafIndex)
		assert.False(t, r.Failed())
		assert.NotNil(t, r.Output)
		require.NotNil(t, r.Pipeline)
		assert.Len(t, r.Pipeline.Links(), 3)
	}
}

func TestScheduler_LeafOutputsFollowDistinctPaths(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	(&taggingModule{name: "stride"}).Register(reg)
	(&taggingModule{name: "scale"}).Register(reg)

	template := tree.Template{
		testutil.FixedStage("stride", stage.Params{"step": cty.NumberIntVal(2)}),
		testutil.BranchStage(t, "scale", "factor", 1, 2),
	}

	_, results, err := evaluate(t, template, reg, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)

	labels := make(map[string]bool)
	for _, r := range results {
		frames, err := dataset.AsFrames(r.Output)
		require.NoError(t, err)
		labels[frames.Name] = true
		// Both leaves share the stride prefix in their label.
		assert.Contains(t, frames.Name, "stridestep=")
	}
	assert.Len(t, labels, 2)
}

func TestScheduler_FailedInteriorSkipsOnlyItsSubtree(t *testing.T) {
	t.Parallel()

	boom := errors.New("numerical blow-up")
	reg := stage.NewRegistry()
	flaky := &testutil.FlakyModule{
		Name: "cluster",
		Err:  boom,
		ShouldFail: func(p stage.Params) bool {
			return p["k"].RawEquals(cty.NumberIntVal(4))
		},
	}
	flaky.Register(reg)
	scaleMod := testutil.NewCountingModule("scale")
	scaleMod.Register(reg)

	template := tree.Template{
		testutil.BranchStage(t, "cluster", "k", 2, 4),
		testutil.BranchStage(t, "scale", "factor", 1, 2, 3),
	}

	tr, results, err := evaluate(t, template, reg, 4)
	require.NoError(t, err, "a partial failure must not abort the run")
	require.Len(t, results, 6)

	var failedCluster *tree.Node
	for _, n := range tr.Nodes {
		if n.Spec.Type == "cluster" && n.Spec.Params["k"].RawEquals(cty.NumberIntVal(4)) {
			failedCluster = n
		}
	}
	require.NotNil(t, failedCluster)
	assert.Equal(t, tree.Failed, failedCluster.State())

	var stageErr *scheduler.StageError
	require.ErrorAs(t, failedCluster.Err, &stageErr)
	assert.ErrorIs(t, failedCluster.Err, boom)

	succeeded, skipped := 0, 0
	for _, r := range results {
		if !r.Failed() {
			succeeded++
			continue
		}
		skipped++
		var skipErr *scheduler.SkipError
		require.ErrorAs(t, r.Err, &skipErr, "descendant leaves carry skips, not fresh failures")
		assert.Equal(t, failedCluster.ID, skipErr.AncestorID)
		assert.ErrorIs(t, r.Err, boom)
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 3, skipped)

	// Stages below the failed subtree were never evaluated.
	assert.Equal(t, 3, scaleMod.TotalFits())
}

func TestScheduler_FailedLeafCarriesStageError(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad leaf")
	reg := stage.NewRegistry()
	testutil.NewCountingModule("stride").Register(reg)
	(&testutil.FlakyModule{
		Name: "scale",
		Err:  boom,
		ShouldFail: func(p stage.Params) bool {
			return p["factor"].RawEquals(cty.NumberIntVal(2))
		},
	}).Register(reg)

	template := tree.Template{
		testutil.FixedStage("stride", nil),
		testutil.BranchStage(t, "scale", "factor", 1, 2),
	}

	_, results, err := evaluate(t, template, reg, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Failed())

	require.True(t, results[1].Failed())
	var stageErr *scheduler.StageError
	assert.ErrorAs(t, results[1].Err, &stageErr)
	assert.False(t, scheduler.IsSkip(results[1].Err))
	assert.Nil(t, results[1].Pipeline)
	// The failed leaf still reports its full parameter path.
	require.Len(t, results[1].Path, 2)
	assert.Equal(t, "scale", results[1].Path[1].Type)
}

func TestScheduler_AllLeavesFailedReturnsSummaryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("always fails")
	reg := stage.NewRegistry()
	(&testutil.FlakyModule{Name: "cluster", Err: boom}).Register(reg)

	template := tree.Template{
		testutil.BranchStage(t, "cluster", "k", 2, 4),
	}

	_, results, err := evaluate(t, template, reg, 2)

	require.Len(t, results, 2, "per-leaf results survive a summary error")
	var allFailed *scheduler.AllFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Equal(t, 2, allFailed.Leaves)
	assert.ErrorIs(t, err, boom)
}

func TestScheduler_InteriorOutputsReleasedAfterChildren(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	(&taggingModule{name: "stride"}).Register(reg)
	(&taggingModule{name: "scale"}).Register(reg)

	template := tree.Template{
		testutil.FixedStage("stride", nil),
		testutil.BranchStage(t, "scale", "factor", 1, 2),
	}

	tr, results, err := evaluate(t, template, reg, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, n := range tr.Nodes {
		if n.IsLeaf() {
			assert.NotNil(t, n.Output(), "leaf outputs are retained for the caller")
		} else {
			assert.Nil(t, n.Output(), "interior outputs are dropped once every child is terminal")
		}
	}
	assert.Nil(t, tr.Root.Output())
}

func TestScheduler_EstimatorRolePassesDatasetThrough(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	(&taggingModule{name: "stride"}).Register(reg)
	(&taggingModule{name: "moments"}).Register(reg)

	template := tree.Template{
		testutil.FixedStage("stride", nil),
		tree.FixedEntry(stage.Spec{Type: "moments", Role: stage.RoleFit}),
	}

	tr, results, err := evaluate(t, template, reg, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The estimator leaf's output is its parent's dataset, untransformed.
	leaf := tr.Leaves[0]
	frames, err := dataset.AsFrames(results[0].Output)
	require.NoError(t, err)
	assert.NotContains(t, frames.Name, "moments")
	assert.NotNil(t, leaf.Fitted, "the fitted estimator is still captured")
}

func TestScheduler_SingleWorkerMatchesParallelRun(t *testing.T) {
	t.Parallel()

	build := func() (*stage.Registry, tree.Template) {
		reg := stage.NewRegistry()
		(&taggingModule{name: "stride"}).Register(reg)
		(&taggingModule{name: "cluster"}).Register(reg)
		(&taggingModule{name: "scale"}).Register(reg)
		template := tree.Template{
			testutil.FixedStage("stride", stage.Params{"step": cty.NumberIntVal(3)}),
			testutil.BranchStage(t, "cluster", "k", 2, 4, 8),
			testutil.BranchStage(t, "scale", "factor", 1, 2),
		}
		return reg, template
	}

	regSerial, tmplSerial := build()
	_, serial, err := evaluate(t, tmplSerial, regSerial, 1)
	require.NoError(t, err)

	regParallel, tmplParallel := build()
	_, parallel, err := evaluate(t, tmplParallel, regParallel, 8)
	require.NoError(t, err)

	require.Len(t, parallel, len(serial))
	for i := range serial {
		assert.Equal(t, serial[i].NodeID, parallel[i].NodeID)
		assert.Equal(t, serial[i].Pipeline.Assignment(), parallel[i].Pipeline.Assignment())

		sf, err := dataset.AsFrames(serial[i].Output)
		require.NoError(t, err)
		pf, err := dataset.AsFrames(parallel[i].Output)
		require.NoError(t, err)
		assert.Equal(t, sf.Name, pf.Name)
	}
}

func TestScheduler_CancellationSkipsUndispatchedNodes(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	started := make(chan string, 1)
	blocking := testutil.NewBlockingModule("block", started)
	blocking.Register(reg)
	counting := testutil.NewCountingModule("scale")
	counting.Register(reg)

	template := tree.Template{
		testutil.FixedStage("block", nil),
		testutil.FixedStage("scale", nil),
	}

	tr, err := tree.Build(context.Background(), template, reg)
	require.NoError(t, err)

	p := pool.NewLocal(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		results []scheduler.LeafResult
		err     error
	}
	resCh := make(chan outcome, 1)
	go func() {
		results, runErr := scheduler.New(reg, p).Evaluate(ctx, tr, testutil.InputFrames("traj", 4, 1))
		resCh <- outcome{results: results, err: runErr}
	}()

	<-started
	cancel()
	blocking.Release()

	out := <-resCh
	require.Len(t, out.results, 1)
	require.True(t, out.results[0].Failed())

	var allFailed *scheduler.AllFailedError
	require.ErrorAs(t, out.err, &allFailed)
	assert.ErrorIs(t, out.err, context.Canceled)

	// The downstream stage was never evaluated.
	assert.Equal(t, 0, counting.TotalFits())
}

func TestScheduler_ClosedPoolIsFatal(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	testutil.NewCountingModule("stride").Register(reg)

	template := tree.Template{testutil.FixedStage("stride", nil)}
	tr, err := tree.Build(context.Background(), template, reg)
	require.NoError(t, err)

	p := pool.NewLocal(1)
	p.Close()

	results, runErr := scheduler.New(reg, p).Evaluate(context.Background(), tr, testutil.InputFrames("traj", 4, 1))

	assert.Nil(t, results)
	var schedErr *scheduler.SchedulingError
	require.ErrorAs(t, runErr, &schedErr)
	assert.ErrorIs(t, runErr, pool.ErrClosed)
}

func TestScheduler_RejectsSecondEvaluationOfSameTree(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	testutil.NewCountingModule("stride").Register(reg)

	template := tree.Template{testutil.FixedStage("stride", nil)}
	tr, err := tree.Build(context.Background(), template, reg)
	require.NoError(t, err)

	p := pool.NewLocal(1)
	defer p.Close()

	s := scheduler.New(reg, p)
	_, err = s.Evaluate(context.Background(), tr, testutil.InputFrames("traj", 4, 1))
	require.NoError(t, err)

	_, err = s.Evaluate(context.Background(), tr, testutil.InputFrames("traj", 4, 1))
	assert.Error(t, err)
}

func TestScheduler_EmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	testutil.NewCountingModule("stride").Register(reg)
	(&testutil.FlakyModule{Name: "cluster", Err: errors.New("boom"), ShouldFail: func(p stage.Params) bool {
		return p["k"].RawEquals(cty.NumberIntVal(4))
	}}).Register(reg)

	template := tree.Template{
		testutil.FixedStage("stride", nil),
		testutil.BranchStage(t, "cluster", "k", 2, 4),
	}

	emitter := &captureEmitter{}
	_, results, err := evaluate(t, template, reg, 2,
		scheduler.WithEmitter(emitter), scheduler.WithRunID("run-1"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Len(t, emitter.byKind(events.KindNodeStarted), 3)
	assert.Len(t, emitter.byKind(events.KindNodeDone), 2)
	assert.Len(t, emitter.byKind(events.KindNodeFailed), 1)

	completed := emitter.byKind(events.KindRunCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "run-1", completed[0].RunID)
	assert.Equal(t, 2, completed[0].Leaves)
	assert.Equal(t, 1, completed[0].Failed)
}

func TestScheduler_NotifyStreamsEveryLeaf(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	testutil.NewCountingModule("cluster").Register(reg)

	template := tree.Template{
		testutil.BranchStage(t, "cluster", "k", 2, 4, 8),
	}

	stream := make(chan scheduler.LeafResult, 3)
	_, results, err := evaluate(t, template, reg, 2, scheduler.WithNotify(stream))
	require.NoError(t, err)
	require.Len(t, results, 3)
	close(stream)

	seen := make(map[int]bool)
	for r := range stream {
		seen[r.LeafIndex] = true
	}
	assert.Len(t, seen, 3)
}
