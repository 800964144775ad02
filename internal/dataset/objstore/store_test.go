package objstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/mdsweep/internal/dataset/objstore"
)

func TestObjectKey_NormalizesDatasetLabels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		label string
		want  string
	}{
		{label: "traj", want: "datasets/traj.json"},
		{label: "Ala2 Trajectory", want: "datasets/ala2-trajectory.json"},
		{label: "traj/stride(step=2)", want: "datasets/traj/stride_step-2.json"},
		{label: "traj/cluster(k=8,seed=42)", want: "datasets/traj/cluster_k-8_seed-42.json"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, objstore.ObjectKey(tc.label), "label %q", tc.label)
	}
}
