// Package tags derives categorical tags for new entries by comparing
// their embedding against representatives of existing tag clusters.
// Assignment is advisory: callers store the entry regardless of the
// outcome, and anything that cannot be scored simply attaches no tags.
package tags

import (
	"math"
	"sort"
)

// DefaultThreshold is the minimum cosine similarity for a tag to attach.
const DefaultThreshold = 0.8

// Cluster is the set of member vectors previously stored under one tag.
type Cluster struct {
	Tag     string
	Members [][]float32
}

// Centroid returns the normalized mean of the member vectors. Members
// whose dimension disagrees with the first usable member are skipped;
// a cluster with no usable members has no centroid.
func (c Cluster) Centroid() []float32 {
	var sum []float64
	count := 0
	for _, m := range c.Members {
		if len(m) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(m))
		}
		if len(m) != len(sum) {
			continue
		}
		for i, v := range m {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	centroid := make([]float32, len(sum))
	for i, v := range sum {
		centroid[i] = float32(v / float64(count))
	}
	return normalize(centroid)
}

// Assign returns the tags whose cluster centroid is at least threshold
// cosine-similar to candidate. The comparison is inclusive, several tags
// may attach, and clusters that cannot be scored (no centroid, mismatched
// dimension) are skipped. Non-positive thresholds select DefaultThreshold.
func Assign(candidate []float32, clusters []Cluster, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(candidate) == 0 {
		return nil
	}

	var assigned []string
	seen := make(map[string]bool, len(clusters))
	for _, cluster := range clusters {
		if cluster.Tag == "" || seen[cluster.Tag] {
			continue
		}
		centroid := cluster.Centroid()
		if len(centroid) != len(candidate) {
			continue
		}
		if cosine(candidate, centroid) >= threshold {
			seen[cluster.Tag] = true
			assigned = append(assigned, cluster.Tag)
		}
	}
	return assigned
}

// Build groups member vectors by tag into clusters ordered by tag name,
// so assignment output is stable across runs.
func Build(membersByTag map[string][][]float32) []Cluster {
	names := make([]string, 0, len(membersByTag))
	for tag := range membersByTag {
		names = append(names, tag)
	}
	sort.Strings(names)

	clusters := make([]Cluster, 0, len(names))
	for _, tag := range names {
		clusters = append(clusters, Cluster{Tag: tag, Members: membersByTag[tag]})
	}
	return clusters
}

// cosine scores two vectors. Zero vectors and mismatched dimensions score
// zero rather than erroring; a tag that cannot be scored is a tag that
// does not attach.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
	return v
}
