package tags

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Centroid
// =============================================================================

func TestCentroid_NormalizedMean(t *testing.T) {
	cluster := Cluster{
		Tag: "auth",
		Members: [][]float32{
			{1, 0},
			{0, 1},
		},
	}

	centroid := cluster.Centroid()

	require.Len(t, centroid, 2)
	// Mean is (0.5, 0.5); normalized both components become 1/sqrt(2).
	want := float32(1 / math.Sqrt2)
	assert.InDelta(t, want, centroid[0], 1e-6)
	assert.InDelta(t, want, centroid[1], 1e-6)
}

func TestCentroid_NoMembers(t *testing.T) {
	assert.Nil(t, Cluster{Tag: "empty"}.Centroid())
	assert.Nil(t, Cluster{Tag: "blank", Members: [][]float32{nil, {}}}.Centroid())
}

func TestCentroid_SkipsMismatchedMembers(t *testing.T) {
	cluster := Cluster{
		Tag: "mixed",
		Members: [][]float32{
			{1, 0},
			{1, 2, 3},
			{1, 0},
		},
	}

	centroid := cluster.Centroid()

	require.Len(t, centroid, 2)
	assert.InDelta(t, 1.0, centroid[0], 1e-6)
	assert.InDelta(t, 0.0, centroid[1], 1e-6)
}

// =============================================================================
// Threshold Boundary
// =============================================================================

func TestAssign_BoundaryIsInclusive(t *testing.T) {
	// The member (2,2,2,2) normalizes to exactly (0.5,0.5,0.5,0.5), and
	// its similarity to a one-hot candidate is exactly 0.5, so the
	// boundary comparison has no rounding slack to hide behind.
	candidate := []float32{1, 0, 0, 0}
	clusters := []Cluster{
		{Tag: "boundary", Members: [][]float32{{2, 2, 2, 2}}},
	}

	assert.Equal(t, []string{"boundary"}, Assign(candidate, clusters, 0.5))
	assert.Empty(t, Assign(candidate, clusters, math.Nextafter(0.5, 1)))
}

func TestAssign_IdenticalVectorMatchesAtThresholdOne(t *testing.T) {
	candidate := []float32{0, 1, 0}
	clusters := []Cluster{
		{Tag: "exact", Members: [][]float32{{0, 1, 0}}},
	}

	assert.Equal(t, []string{"exact"}, Assign(candidate, clusters, 1.0))
}

func TestAssign_DefaultThresholdWhenUnset(t *testing.T) {
	candidate := []float32{1, 0, 0, 0}
	clusters := []Cluster{
		{Tag: "same", Members: [][]float32{{1, 0, 0, 0}}},
		{Tag: "halfway", Members: [][]float32{{2, 2, 2, 2}}},
	}

	// Similarity 1.0 passes the 0.8 default, 0.5 does not.
	assert.Equal(t, []string{"same"}, Assign(candidate, clusters, 0))
}

// =============================================================================
// Assignment
// =============================================================================

func TestAssign_MultipleTagsAttach(t *testing.T) {
	candidate := []float32{1, 1, 0}
	clusters := []Cluster{
		{Tag: "first", Members: [][]float32{{1, 1, 0}}},
		{Tag: "second", Members: [][]float32{{1, 1, 0.1}}},
		{Tag: "unrelated", Members: [][]float32{{0, 0, 1}}},
	}

	assert.Equal(t, []string{"first", "second"}, Assign(candidate, clusters, 0.9))
}

func TestAssign_NoMatchMeansUntagged(t *testing.T) {
	candidate := []float32{1, 0}
	clusters := []Cluster{
		{Tag: "orthogonal", Members: [][]float32{{0, 1}}},
	}

	assert.Empty(t, Assign(candidate, clusters, 0.8))
}

func TestAssign_UnscorableInputsAttachNothing(t *testing.T) {
	clusters := []Cluster{
		{Tag: "anything", Members: [][]float32{{1, 0}}},
	}

	// Empty and zero candidates cannot be scored.
	assert.Empty(t, Assign(nil, clusters, 0.8))
	assert.Empty(t, Assign([]float32{0, 0}, clusters, 0.8))
}

func TestAssign_SkipsUnscorableClusters(t *testing.T) {
	candidate := []float32{1, 0}
	clusters := []Cluster{
		{Tag: "wrong-dims", Members: [][]float32{{1, 0, 0}}},
		{Tag: "no-members"},
		{Tag: "", Members: [][]float32{{1, 0}}},
		{Tag: "scored", Members: [][]float32{{1, 0}}},
	}

	assert.Equal(t, []string{"scored"}, Assign(candidate, clusters, 0.8))
}

func TestAssign_DuplicateTagAttachesOnce(t *testing.T) {
	candidate := []float32{1, 0}
	clusters := []Cluster{
		{Tag: "dup", Members: [][]float32{{1, 0}}},
		{Tag: "dup", Members: [][]float32{{1, 0}}},
	}

	assert.Equal(t, []string{"dup"}, Assign(candidate, clusters, 0.8))
}

// =============================================================================
// Cluster Construction
// =============================================================================

func TestBuild_OrderedByTagName(t *testing.T) {
	clusters := Build(map[string][][]float32{
		"zebra":  {{0, 1}},
		"alpha":  {{1, 0}},
		"middle": {{1, 1}},
	})

	require.Len(t, clusters, 3)
	assert.Equal(t, "alpha", clusters[0].Tag)
	assert.Equal(t, "middle", clusters[1].Tag)
	assert.Equal(t, "zebra", clusters[2].Tag)
}
