package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattis-io/lattis/internal/config"
	"github.com/lattis-io/lattis/pkg/models"
)

type fakeProfiles struct {
	profile *models.UserProfile
}

func (f *fakeProfiles) GetOrCreateProfile(_ context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	p := *f.profile
	p.UserID = userID
	return &p, nil
}

func (f *fakeProfiles) UpdateProfileSettings(_ context.Context, _ uuid.UUID, _ *models.UpdateProfileRequest) (*models.UserProfile, error) {
	return nil, nil
}

func (f *fakeProfiles) LearnPreferences(_ context.Context, _ uuid.UUID) error { return nil }

type fakeImpressions struct {
	mu     sync.Mutex
	served [][]models.Candidate
}

func (f *fakeImpressions) RecordImpressions(_ context.Context, _ uuid.UUID, _ string, served []models.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.served = append(f.served, served)
}

func recommenderTestConfig() config.RecommendationConfig {
	return config.RecommendationConfig{
		DefaultLimit: 20,
		MaxLimit:     100,
		Candidates:   candidateTestConfig(),
		MMR:          config.MMRConfig{PoolSize: 50},
		Novelty:      config.NoveltyConfig{BoostFactor: 0.2, FloorRatio: 0.2},
	}
}

func newTestRecommender(profile *models.UserProfile, catalog *fakeCatalog, collab CollaborativeScorer, graph GraphNeighbors) (*RecommenderService, *fakeImpressions) {
	logger := testLogger()
	profiles := &fakeProfiles{profile: profile}
	embeddings := &fakeEmbeddings{embedding: models.Embedding{1, 0, 0}}

	candidates := NewCandidateService(&fakeInteractions{}, embeddings, collab, catalog, graph,
		candidateTestConfig(), logger)
	ranker := NewRankerService(catalog, logger)
	impressions := &fakeImpressions{}

	recommender := NewRecommenderService(profiles, candidates, ranker, catalog, impressions,
		nil, recommenderTestConfig(), prometheus.NewRegistry(), logger)
	return recommender, impressions
}

func TestGetRecommendations_ServesRankedList(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	resources := make(map[uuid.UUID]*models.Resource)
	var similar []ScoredResource
	for i, id := range ids {
		resources[id] = &models.Resource{
			ID:           id,
			Source:       "arxiv",
			QualityScore: 0.5,
			RecencyScore: 0.5,
			ViewCount:    int64(i * 10),
			Embedding:    models.Embedding{1, 0, 0},
		}
		similar = append(similar, ScoredResource{ResourceID: id, Score: 0.9 - float64(i)*0.1})
	}

	catalog := &fakeCatalog{resources: resources, similar: similar, median: 10}
	profile := &models.UserProfile{TotalInteractions: 12, DiversityPreference: 0.3, NoveltyPreference: 0.5}

	recommender, impressions := newTestRecommender(profile, catalog, &fakeCollab{}, &fakeGraph{})

	response, err := recommender.GetRecommendations(context.Background(),
		&models.RecommendationRequest{UserID: uuid.New(), Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyHybrid, response.Strategy)
	assert.Len(t, response.Recommendations, 2)
	assert.Equal(t, 2, response.Metadata.Count)
	assert.False(t, response.Metadata.ColdStart)

	require.Len(t, impressions.served, 1)
	assert.Len(t, impressions.served[0], 2)
}

func TestGetRecommendations_ColdStartUser(t *testing.T) {
	catalog := &fakeCatalog{median: 10}
	profile := &models.UserProfile{TotalInteractions: 0}

	recommender, _ := newTestRecommender(profile, catalog, &fakeCollab{}, &fakeGraph{})

	response, err := recommender.GetRecommendations(context.Background(),
		&models.RecommendationRequest{UserID: uuid.New()})
	require.NoError(t, err)

	assert.True(t, response.Metadata.ColdStart)
	assert.Equal(t, 0, response.Metadata.Count)
	assert.Empty(t, response.Recommendations)
}

func TestGetRecommendations_LimitDefaultsAndCaps(t *testing.T) {
	catalog := &fakeCatalog{median: 10}
	profile := &models.UserProfile{TotalInteractions: 1}

	recommender, _ := newTestRecommender(profile, catalog, &fakeCollab{}, &fakeGraph{})

	// An empty pool keeps this cheap; the point is that neither request
	// errors on the limit handling.
	_, err := recommender.GetRecommendations(context.Background(),
		&models.RecommendationRequest{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = recommender.GetRecommendations(context.Background(),
		&models.RecommendationRequest{UserID: uuid.New(), Limit: 500})
	require.NoError(t, err)
}

func TestGetRecommendations_WeakViewsKeepCollabSilent(t *testing.T) {
	// Three weak views: content and graph may contribute, collaborative
	// must not, and the user is past cold start.
	resourceID := uuid.New()
	catalog := &fakeCatalog{
		resources: map[uuid.UUID]*models.Resource{
			resourceID: {ID: resourceID, QualityScore: 0.5, RecencyScore: 0.5, Embedding: models.Embedding{1, 0, 0}},
		},
		similar:  []ScoredResource{{ResourceID: resourceID, Score: 0.8}},
		eligible: []uuid.UUID{resourceID},
		median:   10,
	}
	collab := &fakeCollab{available: true, scores: map[uuid.UUID]CollabScore{
		resourceID: {Value: 0.9, Available: true},
	}}
	profile := &models.UserProfile{TotalInteractions: 3}

	recommender, _ := newTestRecommender(profile, catalog, collab, &fakeGraph{})

	response, err := recommender.GetRecommendations(context.Background(),
		&models.RecommendationRequest{UserID: uuid.New()})
	require.NoError(t, err)

	assert.False(t, response.Metadata.ColdStart)
	for _, rec := range response.Recommendations {
		assert.Zero(t, rec.Scores.Collaborative)
	}
}

func TestServedGini_ScoreDistributionNotPopularity(t *testing.T) {
	// The metadata coefficient reflects the served score distribution.
	// Skewed view counts over perfectly even scores must report 0.
	even := []models.Candidate{
		{ResourceID: uuid.New(), HybridScore: 0.5, ViewCount: 0},
		{ResourceID: uuid.New(), HybridScore: 0.5, ViewCount: 1000},
		{ResourceID: uuid.New(), HybridScore: 0.5, ViewCount: 0},
		{ResourceID: uuid.New(), HybridScore: 0.5, ViewCount: 1000},
	}
	assert.Zero(t, servedGini(even))

	skewed := []models.Candidate{
		{ResourceID: uuid.New(), HybridScore: 0.0},
		{ResourceID: uuid.New(), HybridScore: 0.0},
		{ResourceID: uuid.New(), HybridScore: 0.0},
		{ResourceID: uuid.New(), HybridScore: 1.0},
	}
	assert.InDelta(t, 0.75, servedGini(skewed), 1e-9)
}
