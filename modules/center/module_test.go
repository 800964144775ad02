package center_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/modules/center"
)

func TestCenter_SubtractsFittedColumnMeans(t *testing.T) {
	t.Parallel()

	train := &dataset.Frames{Name: "train", Data: [][]float64{
		{1, 10},
		{3, 20},
	}}

	fitted, err := (&center.Center{}).Fit(context.Background(), train, nil)
	require.NoError(t, err)

	out, err := fitted.Transform(context.Background(), train)
	require.NoError(t, err)

	frames, err := dataset.AsFrames(out)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1, -5}, {1, 5}}, frames.Data)
}

func TestCenter_AppliesTrainingMeansToNewData(t *testing.T) {
	t.Parallel()

	train := &dataset.Frames{Name: "train", Data: [][]float64{{2}, {4}}}
	fresh := &dataset.Frames{Name: "fresh", Data: [][]float64{{10}}}

	fitted, err := (&center.Center{}).Fit(context.Background(), train, nil)
	require.NoError(t, err)

	out, err := fitted.Transform(context.Background(), fresh)
	require.NoError(t, err)

	frames, err := dataset.AsFrames(out)
	require.NoError(t, err)
	// Mean 3 came from the training series, not the fresh one.
	assert.Equal(t, [][]float64{{7}}, frames.Data)
}

func TestCenter_RejectsEmptyDatasets(t *testing.T) {
	t.Parallel()

	_, err := (&center.Center{}).Fit(context.Background(), &dataset.Frames{Name: "empty"}, nil)
	assert.Error(t, err)
}
