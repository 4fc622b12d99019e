package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/config"
	"github.com/lattis-io/lattis/pkg/models"
)

type impressionRecorder interface {
	RecordImpressions(ctx context.Context, userID uuid.UUID, strategy string, served []models.Candidate)
}

// RecommenderService runs the full pipeline: candidate generation, hybrid
// ranking, diversity re-ranking, novelty boosting and impression recording.
// Served lists are cached briefly and invalidated when the user interacts
// again.
type RecommenderService struct {
	profiles    ProfileManager
	candidates  *CandidateService
	ranker      *RankerService
	catalog     ResourceCatalog
	feedback    impressionRecorder
	warm        *redis.Client
	cfg         config.RecommendationConfig
	logger      *logrus.Logger
	pipelineDur prometheus.Histogram
}

func NewRecommenderService(
	profiles ProfileManager,
	candidates *CandidateService,
	ranker *RankerService,
	catalog ResourceCatalog,
	feedback impressionRecorder,
	warm *redis.Client,
	cfg config.RecommendationConfig,
	registerer prometheus.Registerer,
	logger *logrus.Logger,
) *RecommenderService {
	return &RecommenderService{
		profiles:   profiles,
		candidates: candidates,
		ranker:     ranker,
		catalog:    catalog,
		feedback:   feedback,
		warm:       warm,
		cfg:        cfg,
		logger:     logger,
		pipelineDur: promauto.With(registerer).NewHistogram(prometheus.HistogramOpts{
			Name:    "lattis_recommendation_pipeline_seconds",
			Help:    "End-to-end recommendation pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// GetRecommendations produces the ordered list for one request. An empty
// candidate pool is a valid outcome, not an error.
func (s *RecommenderService) GetRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResponse, error) {
	start := time.Now()
	defer func() {
		s.pipelineDur.Observe(time.Since(start).Seconds())
	}()

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = models.StrategyHybrid
	}

	if cached := s.cachedResponse(ctx, req.UserID, strategy, limit); cached != nil {
		return cached, nil
	}

	profile, err := s.profiles.GetOrCreateProfile(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var strategies []string
	if strategy != models.StrategyHybrid {
		strategies = []string{strategy}
	}

	pool, err := s.candidates.GenerateCandidates(ctx, profile, strategies)
	if err != nil {
		return nil, err
	}

	minQuality := 0.0
	if req.MinQuality != nil {
		minQuality = *req.MinQuality
	}

	ranked, err := s.ranker.Rank(ctx, profile, pool, minQuality)
	if err != nil {
		return nil, err
	}
	if len(ranked) > s.cfg.MMR.PoolSize {
		ranked = ranked[:s.cfg.MMR.PoolSize]
	}

	diversity := profile.DiversityPreference
	if req.Diversity != nil {
		diversity = *req.Diversity
	}

	// Select over twice the limit so the novelty floor has candidates to
	// swap in.
	selected := RerankMMR(ranked, diversity, limit*2)

	medianViews, err := s.catalog.MedianViewCount(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Median view count unavailable, skipping novelty boost")
		medianViews = 0
	} else {
		BoostNovelty(selected, profile.NoveltyPreference, medianViews, s.cfg.Novelty.BoostFactor)
	}

	served := EnforceNoveltyFloor(selected, limit, s.cfg.Novelty.FloorRatio)

	recommendations := make([]models.Candidate, len(served))
	for i, candidate := range served {
		recommendations[i] = *candidate
	}

	response := &models.RecommendationResponse{
		UserID:          req.UserID,
		Strategy:        strategy,
		Recommendations: recommendations,
		Metadata: models.RecommendationMetadata{
			Count:           len(recommendations),
			GiniCoefficient: servedGini(recommendations),
			ColdStart:       profile.TotalInteractions == 0,
		},
		GeneratedAt: time.Now().UTC(),
	}

	s.feedback.RecordImpressions(ctx, req.UserID, strategy, recommendations)
	s.cacheResponse(ctx, response, limit)

	s.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"strategy": strategy,
		"count":    len(recommendations),
		"duration": time.Since(start),
	}).Debug("Served recommendations")

	return response, nil
}

// InvalidateUserRecommendations drops cached lists for the user. Called
// after each new interaction so fresh signals show up within one request.
func (s *RecommenderService) InvalidateUserRecommendations(ctx context.Context, userID uuid.UUID) {
	if s.warm == nil {
		return
	}

	keys, err := s.warm.Keys(ctx, fmt.Sprintf("recs:%s:*", userID)).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := s.warm.Del(ctx, keys...).Err(); err != nil {
		s.logger.WithError(err).Debug("Recommendation cache invalidation failed")
	}
}

func (s *RecommenderService) cachedResponse(ctx context.Context, userID uuid.UUID, strategy string, limit int) *models.RecommendationResponse {
	if s.warm == nil {
		return nil
	}

	data, err := s.warm.Get(ctx, recommendationCacheKey(userID, strategy, limit)).Result()
	if err != nil {
		return nil
	}

	var response models.RecommendationResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		return nil
	}
	return &response
}

func (s *RecommenderService) cacheResponse(ctx context.Context, response *models.RecommendationResponse, limit int) {
	if s.warm == nil {
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		return
	}

	key := recommendationCacheKey(response.UserID, response.Strategy, limit)
	if err := s.warm.Set(ctx, key, data, s.cfg.Caching.RecommendationsTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("Recommendation cache write failed")
	}
}

func recommendationCacheKey(userID uuid.UUID, strategy string, limit int) string {
	return fmt.Sprintf("recs:%s:%s:%d", userID, strategy, limit)
}

// servedGini measures score concentration within one served list: the Gini
// coefficient over the final hybrid scores of the served candidates.
func servedGini(served []models.Candidate) float64 {
	scores := make([]float64, len(served))
	for i, candidate := range served {
		scores[i] = candidate.HybridScore
	}
	return GiniCoefficient(scores)
}
