package scale_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/modules/scale"
)

func TestScale_MultipliesEveryFeature(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{{1, -2}, {3, 4}}}

	fitted, err := (&scale.Scale{}).Fit(context.Background(), in, stage.Params{"factor": cty.NumberFloatVal(0.5)})
	require.NoError(t, err)

	out, err := fitted.Transform(context.Background(), in)
	require.NoError(t, err)

	frames, err := dataset.AsFrames(out)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, -1}, {1.5, 2}}, frames.Data)
}

func TestScale_FactorDefaultsToOne(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{{7}}}

	fitted, err := (&scale.Scale{}).Fit(context.Background(), in, stage.Params{})
	require.NoError(t, err)

	out, err := fitted.Transform(context.Background(), in)
	require.NoError(t, err)

	frames, err := dataset.AsFrames(out)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{7}}, frames.Data)
}

func TestScale_RejectsZeroFactor(t *testing.T) {
	t.Parallel()

	in := &dataset.Frames{Name: "traj", Data: [][]float64{{1}}}

	_, err := (&scale.Scale{}).Fit(context.Background(), in, stage.Params{"factor": cty.NumberIntVal(0)})
	assert.Error(t, err)
}
