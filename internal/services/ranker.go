package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/pkg/models"
)

// RankerService enriches candidates with catalog metadata and orders them by
// the weighted hybrid score.
type RankerService struct {
	catalog ResourceCatalog
	logger  *logrus.Logger
}

func NewRankerService(catalog ResourceCatalog, logger *logrus.Logger) *RankerService {
	return &RankerService{catalog: catalog, logger: logger}
}

// Rank fills in quality, recency, view counts and embeddings from the
// catalog, applies the profile's source and domain filters, and sorts by
// hybrid score. Candidates no longer present in the catalog are dropped.
// A component a candidate lacks contributes zero.
func (s *RankerService) Rank(ctx context.Context, profile *models.UserProfile, candidates []*models.Candidate, minQuality float64) ([]*models.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, candidate := range candidates {
		ids[i] = candidate.ResourceID
	}

	resources, err := s.catalog.GetResources(ctx, ids)
	if err != nil {
		return nil, err
	}

	weights := models.DefaultHybridWeights()
	if profile.HybridWeights != nil && profile.HybridWeights.Valid() {
		weights = *profile.HybridWeights
	}

	ranked := candidates[:0]
	for _, candidate := range candidates {
		resource, ok := resources[candidate.ResourceID]
		if !ok {
			continue
		}
		if !passesProfileFilters(profile, resource) {
			continue
		}
		if resource.QualityScore < minQuality {
			continue
		}

		candidate.Scores.Quality = resource.QualityScore
		candidate.Scores.Recency = resource.RecencyScore
		candidate.ViewCount = resource.ViewCount
		candidate.Embedding = resource.Embedding
		candidate.HybridScore = hybridScore(candidate.Scores, weights)
		ranked = append(ranked, candidate)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].HybridScore != ranked[j].HybridScore {
			return ranked[i].HybridScore > ranked[j].HybridScore
		}
		return ranked[i].ResourceID.String() < ranked[j].ResourceID.String()
	})

	return ranked, nil
}

func hybridScore(scores models.ComponentScores, weights models.HybridWeights) float64 {
	return weights.Collaborative*scores.Collaborative +
		weights.Content*scores.Content +
		weights.Graph*scores.Graph +
		weights.Quality*scores.Quality +
		weights.Recency*scores.Recency
}

func passesProfileFilters(profile *models.UserProfile, resource *models.Resource) bool {
	for _, excluded := range profile.ExcludedSources {
		if resource.Source == excluded {
			return false
		}
	}

	if len(profile.DomainFilters) > 0 {
		match := false
		for _, wanted := range profile.DomainFilters {
			for _, domain := range resource.Domains {
				if domain == wanted {
					match = true
					break
				}
			}
			if match {
				break
			}
		}
		if !match {
			return false
		}
	}

	return true
}
