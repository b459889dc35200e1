package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbt123-123/firemark/store"
)

func cand(id int32, createdTs int64, vector []float32) candidate {
	return candidate{
		memory: &store.Memory{ID: id, CreatedTs: createdTs},
		vector: vector,
	}
}

func TestRankCandidates_OrdersBySimilarity(t *testing.T) {
	candidates := []candidate{
		cand(1, 100, []float32{0, 1, 0}),
		cand(2, 100, []float32{1, 0, 0}),
		cand(3, 100, []float32{0.7, 0.7, 0}),
	}

	scored := rankCandidates(candidates, []float32{1, 0, 0}, 0, 10)

	require.Len(t, scored, 3)
	assert.Equal(t, int32(2), scored[0].Memory.ID)
	assert.Equal(t, int32(3), scored[1].Memory.ID)
	assert.Equal(t, int32(1), scored[2].Memory.ID, "orthogonal candidate ranks last")
	assert.Greater(t, scored[0].Score, scored[1].Score)
}

func TestRankCandidates_ThresholdFilters(t *testing.T) {
	candidates := []candidate{
		cand(1, 100, []float32{1, 0, 0}),
		cand(2, 100, []float32{0.5, 0.86, 0}),
	}

	scored := rankCandidates(candidates, []float32{1, 0, 0}, 0.9, 10)

	require.Len(t, scored, 1)
	assert.Equal(t, int32(1), scored[0].Memory.ID)
}

func TestRankCandidates_TiesBrokenByRecency(t *testing.T) {
	candidates := []candidate{
		cand(1, 100, []float32{1, 0, 0}),
		cand(2, 200, []float32{1, 0, 0}),
	}

	scored := rankCandidates(candidates, []float32{1, 0, 0}, 0, 10)

	require.Len(t, scored, 2)
	assert.Equal(t, int32(2), scored[0].Memory.ID, "equal scores rank the newer memory first")
}

func TestRankCandidates_NoThresholdKeepsNegativeSimilarity(t *testing.T) {
	candidates := []candidate{
		cand(1, 100, []float32{1, 0, 0}),
		cand(2, 100, []float32{-1, 0, 0}),
	}

	scored := rankCandidates(candidates, []float32{1, 0, 0}, noThreshold, 10)

	require.Len(t, scored, 2, "opposite-direction vectors stay in the ranking when no floor applies")
	assert.Equal(t, int32(2), scored[1].Memory.ID)
	assert.InDelta(t, -1.0, scored[1].Score, 1e-9)
}

func TestRankCandidates_ThresholdMonotonic(t *testing.T) {
	candidates := []candidate{
		cand(1, 100, []float32{1, 0, 0}),
		cand(2, 100, []float32{0.9, 0.43, 0}),
		cand(3, 100, []float32{0.7, 0.7, 0}),
		cand(4, 100, []float32{0, 1, 0}),
	}
	query := []float32{1, 0, 0}

	prev := len(candidates) + 1
	for _, threshold := range []float64{0, 0.3, 0.6, 0.9, 1.0} {
		count := len(rankCandidates(candidates, query, threshold, 10))
		assert.LessOrEqual(t, count, prev, "raising the threshold must never grow the result set")
		prev = count
	}
}

func TestRankCandidates_Limit(t *testing.T) {
	candidates := []candidate{
		cand(1, 100, []float32{1, 0, 0}),
		cand(2, 100, []float32{0.9, 0.1, 0}),
		cand(3, 100, []float32{0.8, 0.2, 0}),
	}

	scored := rankCandidates(candidates, []float32{1, 0, 0}, 0, 2)

	assert.Len(t, scored, 2)
}
