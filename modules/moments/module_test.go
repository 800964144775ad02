package moments_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/modules/moments"
)

func TestMoments_ComputesMeanAndVarianceAtLag(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{
		{1}, {100}, {3}, {100}, {5}, {100},
	}}

	// Lag 2 samples frames 0, 2 and 4: values 1, 3, 5.
	fitted, err := (&moments.Moments{}).Fit(context.Background(), in, stage.Params{"lag": cty.NumberIntVal(2)})
	require.NoError(t, err)

	model, ok := fitted.(*moments.Model)
	require.True(t, ok)
	assert.Equal(t, 2, model.Lag)
	assert.Equal(t, []float64{3}, model.Mean)
	assert.InDelta(t, 8.0/3.0, model.Variance[0], 1e-12)
}

func TestMoments_LagDefaultsToOne(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{{2}, {4}}}

	fitted, err := (&moments.Moments{}).Fit(context.Background(), in, stage.Params{})
	require.NoError(t, err)

	model := fitted.(*moments.Model)
	assert.Equal(t, 1, model.Lag)
	assert.Equal(t, []float64{3}, model.Mean)
}

func TestMoments_TransformEmitsSummarySeries(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{{2}, {4}}}

	fitted, err := (&moments.Moments{}).Fit(context.Background(), in, stage.Params{})
	require.NoError(t, err)

	out, err := fitted.Transform(context.Background(), in)
	require.NoError(t, err)

	frames, err := dataset.AsFrames(out)
	require.NoError(t, err)
	require.Equal(t, 2, frames.NumFrames())
	assert.Equal(t, []float64{3}, frames.Data[0], "first summary frame is the mean")
	assert.Equal(t, []float64{1}, frames.Data[1], "second summary frame is the variance")
}

func TestMoments_RejectsSeriesShorterThanLag(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{{1}, {2}}}

	_, err := (&moments.Moments{}).Fit(context.Background(), in, stage.Params{"lag": cty.NumberIntVal(5)})
	assert.Error(t, err)

	_, err = (&moments.Moments{}).Fit(context.Background(), in, stage.Params{"lag": cty.NumberIntVal(0)})
	assert.Error(t, err)
}
