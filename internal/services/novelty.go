package services

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/lattis-io/lattis/pkg/models"
)

// noveltyScore rates how unseen a resource is relative to the catalog-wide
// median view count: 1 for never viewed, 0 at or above the median. A zero
// median makes every resource equally novel.
func noveltyScore(viewCount int, medianViews float64) float64 {
	if medianViews <= 0 {
		return 1.0
	}
	return clamp01(1.0 - float64(viewCount)/medianViews)
}

// BoostNovelty multiplies the score of candidates whose novelty exceeds the
// user's novelty preference, then restores score order. Users with a high
// preference threshold only see boosts for genuinely obscure resources.
func BoostNovelty(candidates []*models.Candidate, noveltyPreference, medianViews, boostFactor float64) {
	for _, candidate := range candidates {
		novelty := noveltyScore(int(candidate.ViewCount), medianViews)
		if novelty > noveltyPreference {
			candidate.HybridScore *= 1.0 + boostFactor*novelty
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].HybridScore != candidates[j].HybridScore {
			return candidates[i].HybridScore > candidates[j].HybridScore
		}
		return candidates[i].ResourceID.String() < candidates[j].ResourceID.String()
	})
}

// EnforceNoveltyFloor guarantees that at least floorRatio of the served list
// comes from outside the top-viewed quartile of the pool. When the head of
// the list is short on low-view items, the weakest high-view picks are
// swapped for the strongest low-view candidates waiting in the tail.
func EnforceNoveltyFloor(candidates []*models.Candidate, limit int, floorRatio float64) []*models.Candidate {
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	threshold := topQuartileThreshold(candidates)
	isLowView := func(c *models.Candidate) bool {
		return float64(c.ViewCount) < threshold
	}

	required := int(math.Ceil(floorRatio * float64(limit)))
	served := candidates[:limit]

	have := 0
	for _, candidate := range served {
		if isLowView(candidate) {
			have++
		}
	}
	if have >= required {
		return served
	}

	// Tail low-view candidates, strongest first.
	var replacements []*models.Candidate
	for _, candidate := range candidates[limit:] {
		if isLowView(candidate) {
			replacements = append(replacements, candidate)
		}
	}

	// Replace from the bottom of the served list upward.
	for i := limit - 1; i >= 0 && have < required && len(replacements) > 0; i-- {
		if isLowView(served[i]) {
			continue
		}
		served[i] = replacements[0]
		replacements = replacements[1:]
		have++
	}

	sort.Slice(served, func(i, j int) bool {
		if served[i].HybridScore != served[j].HybridScore {
			return served[i].HybridScore > served[j].HybridScore
		}
		return served[i].ResourceID.String() < served[j].ResourceID.String()
	})

	return served
}

// topQuartileThreshold returns the pool's 75th percentile view count.
func topQuartileThreshold(candidates []*models.Candidate) float64 {
	views := make([]float64, len(candidates))
	for i, candidate := range candidates {
		views[i] = float64(candidate.ViewCount)
	}
	sort.Float64s(views)
	return stat.Quantile(0.75, stat.Empirical, views, nil)
}
