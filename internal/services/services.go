package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/config"
	"github.com/lattis-io/lattis/internal/database"
	"github.com/lattis-io/lattis/internal/messaging"
	"github.com/lattis-io/lattis/internal/validation"
)

// Services bundles the wired service graph handed to the HTTP layer.
type Services struct {
	Interactions *InteractionService
	Profiles     *ProfileService
	Embeddings   *UserEmbeddingService
	Collab       *CollabService
	Catalog      *CatalogService
	Graph        *GraphService
	Candidates   *CandidateService
	Ranker       *RankerService
	Feedback     *FeedbackService
	Recommender  *RecommenderService
}

// New wires the full service graph against shared infrastructure.
func New(
	db *database.Database,
	cfg *config.Config,
	producer *messaging.InteractionProducer,
	registerer prometheus.Registerer,
	logger *logrus.Logger,
) (*Services, error) {
	contextValidator, err := validation.NewContextValidator()
	if err != nil {
		return nil, err
	}

	profiles := NewProfileService(db.PG, logger)
	graph := NewGraphService(db.Neo4j, logger)

	interactions := NewInteractionService(db.PG, profiles, producer, graph, contextValidator, logger)

	embeddingCache := NewRedisEmbeddingCache(db.Redis.Hot, logger)
	embeddings := NewUserEmbeddingService(db.PG, embeddingCache,
		cfg.Model.EmbeddingDim, cfg.Recommendation.Caching.UserEmbeddingTTL, logger)

	collab, err := NewCollabService(db.PG, cfg.Model, logger)
	if err != nil {
		return nil, err
	}
	catalog := NewCatalogService(db.PG, db.Redis.Warm, cfg.Recommendation.Caching.ResourceTTL, logger)

	candidates := NewCandidateService(interactions, embeddings, collab, catalog, graph,
		cfg.Recommendation.Candidates, logger)
	ranker := NewRankerService(catalog, logger)
	feedback := NewFeedbackService(db.PG, registerer, logger)

	recommender := NewRecommenderService(profiles, candidates, ranker, catalog, feedback,
		db.Redis.Warm, cfg.Recommendation, registerer, logger)
	interactions.SetRecommendationInvalidator(recommender)

	return &Services{
		Interactions: interactions,
		Profiles:     profiles,
		Embeddings:   embeddings,
		Collab:       collab,
		Catalog:      catalog,
		Graph:        graph,
		Candidates:   candidates,
		Ranker:       ranker,
		Feedback:     feedback,
		Recommender:  recommender,
	}, nil
}

// Stop shuts down background workers.
func (s *Services) Stop() {
	s.Interactions.Stop()
}
