package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattis-io/lattis/pkg/models"
)

func clusterEmbedding(cluster, dim int) models.Embedding {
	emb := make(models.Embedding, dim)
	emb[cluster] = 1.0
	return emb
}

func TestRerankMMR_EmptyPool(t *testing.T) {
	assert.Empty(t, RerankMMR(nil, 0.5, 10))
	assert.Empty(t, RerankMMR([]*models.Candidate{}, 0.5, 10))
}

func TestRerankMMR_ZeroDiversityKeepsScoreOrder(t *testing.T) {
	var candidates []*models.Candidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, &models.Candidate{
			ResourceID:  uuid.New(),
			HybridScore: 1.0 - float64(i)*0.1,
			Embedding:   clusterEmbedding(0, 8),
		})
	}

	selected := RerankMMR(candidates, 0.0, 5)
	require.Len(t, selected, 5)
	for i, candidate := range selected {
		assert.Equal(t, candidates[i].ResourceID, candidate.ResourceID, "position %d", i)
	}
}

func TestRerankMMR_SpreadsAcrossClusters(t *testing.T) {
	// 21 candidates in 3 orthogonal clusters, scores interleaved so every
	// cluster has strong members.
	const dim = 8
	var candidates []*models.Candidate
	for i := 0; i < 21; i++ {
		candidates = append(candidates, &models.Candidate{
			ResourceID:  uuid.New(),
			HybridScore: 1.0 - float64(i)/21.0,
			Embedding:   clusterEmbedding(i%3, dim),
		})
	}

	selected := RerankMMR(candidates, 0.8, 12)
	require.Len(t, selected, 12)

	counts := make([]float64, 3)
	byID := make(map[uuid.UUID]int)
	for i, candidate := range candidates {
		byID[candidate.ResourceID] = i % 3
	}
	for _, candidate := range selected {
		counts[byID[candidate.ResourceID]]++
	}

	gini := GiniCoefficient(counts)
	assert.Less(t, gini, 0.3, "cluster distribution %v too concentrated", counts)
}

func TestRerankMMR_SelectedScoresStayBalanced(t *testing.T) {
	// At high diversity the selected set must not concentrate on a narrow
	// score band: the Gini coefficient over the selected hybrid scores
	// stays below 0.3.
	const dim = 8
	var candidates []*models.Candidate
	for i := 0; i < 21; i++ {
		candidates = append(candidates, &models.Candidate{
			ResourceID:  uuid.New(),
			HybridScore: 1.0 - float64(i)/21.0,
			Embedding:   clusterEmbedding(i%3, dim),
		})
	}

	selected := RerankMMR(candidates, 0.8, 12)
	require.Len(t, selected, 12)

	scores := make([]float64, len(selected))
	for i, candidate := range selected {
		scores[i] = candidate.HybridScore
	}
	assert.Less(t, GiniCoefficient(scores), 0.3, "selected scores %v too concentrated", scores)
}

func TestRerankMMR_DegenerateEmbeddingsDoNotPoison(t *testing.T) {
	// Mismatched dimensions make cosine undefined; the selection must still
	// return k candidates.
	candidates := []*models.Candidate{
		{ResourceID: uuid.New(), HybridScore: 0.9, Embedding: clusterEmbedding(0, 8)},
		{ResourceID: uuid.New(), HybridScore: 0.8, Embedding: models.Embedding{}},
		{ResourceID: uuid.New(), HybridScore: 0.7, Embedding: nil},
	}

	selected := RerankMMR(candidates, 0.9, 3)
	assert.Len(t, selected, 3)
}

func TestRerankMMR_TieBreakByResourceID(t *testing.T) {
	// Identical scores and embeddings: order must follow resource id.
	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
	}

	candidates := []*models.Candidate{
		{ResourceID: ids[2], HybridScore: 0.5},
		{ResourceID: ids[0], HybridScore: 0.5},
		{ResourceID: ids[1], HybridScore: 0.5},
	}

	selected := RerankMMR(candidates, 0.0, 3)
	require.Len(t, selected, 3)
	assert.Equal(t, ids[0], selected[0].ResourceID)
}

func TestNormalizeScores(t *testing.T) {
	t.Run("spread pool maps onto unit interval", func(t *testing.T) {
		candidates := []*models.Candidate{
			{HybridScore: 2.0},
			{HybridScore: 4.0},
			{HybridScore: 6.0},
		}
		normalized := normalizeScores(candidates)
		assert.Equal(t, []float64{0.0, 0.5, 1.0}, normalized)
	})

	t.Run("uniform pool normalizes to ones", func(t *testing.T) {
		candidates := []*models.Candidate{
			{HybridScore: 0.4},
			{HybridScore: 0.4},
		}
		normalized := normalizeScores(candidates)
		assert.Equal(t, []float64{1.0, 1.0}, normalized)
	})
}

func TestSafeSimilarity(t *testing.T) {
	for i, tc := range []struct{ a, b models.Embedding }{
		{models.Embedding{1, 0}, models.Embedding{0, 0}},
		{models.Embedding{1, 0}, nil},
		{nil, nil},
	} {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, 0.0, safeSimilarity(tc.a, tc.b))
		})
	}
}
