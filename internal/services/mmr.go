package services

import (
	"math"

	"github.com/lattis-io/lattis/pkg/models"
)

// RerankMMR applies maximal marginal relevance over ranked candidates.
// diversity in [0,1] trades relevance against dissimilarity to what was
// already picked: 0 keeps the ranking by score, 1 ranks purely by
// dissimilarity. Relevance is the min-max normalized hybrid score so the
// two terms share a scale. Returns at most k candidates.
func RerankMMR(candidates []*models.Candidate, diversity float64, k int) []*models.Candidate {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := normalizeScores(candidates)

	selected := make([]*models.Candidate, 0, k)
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos := 0
		bestScore := math.Inf(-1)

		for pos, idx := range remaining {
			candidate := candidates[idx]

			maxSim := 0.0
			for _, picked := range selected {
				sim := safeSimilarity(candidate.Embedding, picked.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}

			score := (1-diversity)*relevance[idx] - diversity*maxSim
			if score > bestScore ||
				(score == bestScore && candidate.ResourceID.String() < candidates[remaining[bestPos]].ResourceID.String()) {
				bestScore = score
				bestPos = pos
			}
		}

		selected = append(selected, candidates[remaining[bestPos]])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}

// normalizeScores maps hybrid scores onto [0,1]. A degenerate pool where all
// scores are equal normalizes to 1.0 for every candidate.
func normalizeScores(candidates []*models.Candidate) []float64 {
	minScore, maxScore := candidates[0].HybridScore, candidates[0].HybridScore
	for _, candidate := range candidates[1:] {
		if candidate.HybridScore < minScore {
			minScore = candidate.HybridScore
		}
		if candidate.HybridScore > maxScore {
			maxScore = candidate.HybridScore
		}
	}

	normalized := make([]float64, len(candidates))
	spread := maxScore - minScore
	for i, candidate := range candidates {
		if spread == 0 {
			normalized[i] = 1.0
		} else {
			normalized[i] = (candidate.HybridScore - minScore) / spread
		}
	}
	return normalized
}

// safeSimilarity clamps degenerate cosine results so one bad embedding
// cannot poison the selection loop.
func safeSimilarity(a, b models.Embedding) float64 {
	sim := a.Cosine(b)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0.0
	}
	return sim
}
