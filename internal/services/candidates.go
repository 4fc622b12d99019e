package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/config"
	"github.com/lattis-io/lattis/pkg/models"
)

// CandidateService fans out to the collaborative, content and graph sources
// in parallel and merges their hits. Each source runs under its own timeout:
// a slow source contributes nothing rather than stalling the request.
type CandidateService struct {
	interactions InteractionRecorder
	embeddings   EmbeddingComputer
	collab       CollaborativeScorer
	catalog      ResourceCatalog
	graph        GraphNeighbors
	cfg          config.CandidatesConfig
	logger       *logrus.Logger
}

func NewCandidateService(
	interactions InteractionRecorder,
	embeddings EmbeddingComputer,
	collab CollaborativeScorer,
	catalog ResourceCatalog,
	graph GraphNeighbors,
	cfg config.CandidatesConfig,
	logger *logrus.Logger,
) *CandidateService {
	return &CandidateService{
		interactions: interactions,
		embeddings:   embeddings,
		collab:       collab,
		catalog:      catalog,
		graph:        graph,
		cfg:          cfg,
		logger:       logger,
	}
}

type sourceResult struct {
	strategy string
	hits     []ScoredResource
}

// GenerateCandidates runs the enabled sources concurrently and merges their
// results by resource id. Strategies restricts which sources run; nil or
// empty means all of them.
func (s *CandidateService) GenerateCandidates(ctx context.Context, profile *models.UserProfile, strategies []string) ([]*models.Candidate, error) {
	enabled := enabledStrategies(strategies)

	results := make(chan sourceResult, 3)
	var wg sync.WaitGroup

	run := func(strategy string, fetch func(context.Context) ([]ScoredResource, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sourceCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
			defer cancel()

			hits, err := fetch(sourceCtx)
			if err != nil {
				level := logrus.WarnLevel
				if errors.Is(err, context.DeadlineExceeded) {
					level = logrus.InfoLevel
				}
				s.logger.WithError(err).WithFields(logrus.Fields{
					"user_id":  profile.UserID,
					"strategy": strategy,
				}).Log(level, "Candidate source contributed nothing")
				return
			}
			results <- sourceResult{strategy: strategy, hits: hits}
		}()
	}

	if enabled[models.StrategyCollaborative] {
		run(models.StrategyCollaborative, func(sourceCtx context.Context) ([]ScoredResource, error) {
			return s.collaborativeCandidates(sourceCtx, profile)
		})
	}
	if enabled[models.StrategyContent] {
		run(models.StrategyContent, func(sourceCtx context.Context) ([]ScoredResource, error) {
			return s.contentCandidates(sourceCtx, profile.UserID)
		})
	}
	if enabled[models.StrategyGraph] {
		run(models.StrategyGraph, func(sourceCtx context.Context) ([]ScoredResource, error) {
			return s.graph.NeighborResources(sourceCtx, profile.UserID,
				s.cfg.GraphHops, s.cfg.GraphSeedLimit, s.cfg.PerSourceLimit)
		})
	}

	wg.Wait()
	close(results)

	// Resources the user recently engaged with never come back as
	// candidates, whatever source produced them.
	consumed := make(map[uuid.UUID]bool)
	if recent, err := s.interactions.RecentPositiveInteractions(ctx, profile.UserID, s.cfg.MergedLimit); err != nil {
		s.logger.WithError(err).WithField("user_id", profile.UserID).
			Warn("Could not load recent interactions, skipping consumed filter")
	} else {
		for _, interaction := range recent {
			consumed[interaction.ResourceID] = true
		}
	}

	merged := make(map[uuid.UUID]*models.Candidate)
	for result := range results {
		for _, hit := range result.hits {
			if consumed[hit.ResourceID] {
				continue
			}
			candidate, ok := merged[hit.ResourceID]
			if !ok {
				candidate = &models.Candidate{ResourceID: hit.ResourceID}
				merged[hit.ResourceID] = candidate
			}
			candidate.Strategies = append(candidate.Strategies, result.strategy)
			switch result.strategy {
			case models.StrategyCollaborative:
				candidate.Scores.Collaborative = hit.Score
			case models.StrategyContent:
				candidate.Scores.Content = hit.Score
			case models.StrategyGraph:
				candidate.Scores.Graph = hit.Score
			}
		}
	}

	candidates := make([]*models.Candidate, 0, len(merged))
	for _, candidate := range merged {
		candidates = append(candidates, candidate)
	}

	// Keep the strongest candidates by best single-source score.
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].Scores.Max(), candidates[j].Scores.Max()
		if si != sj {
			return si > sj
		}
		return candidates[i].ResourceID.String() < candidates[j].ResourceID.String()
	})
	if len(candidates) > s.cfg.MergedLimit {
		candidates = candidates[:s.cfg.MergedLimit]
	}

	return candidates, nil
}

// collaborativeCandidates scores eligible resources with the learned model.
// Users below the interaction floor and unavailable models yield nothing,
// leaving the other sources to fill in.
func (s *CandidateService) collaborativeCandidates(ctx context.Context, profile *models.UserProfile) ([]ScoredResource, error) {
	if !s.collab.Available() || profile.TotalInteractions < s.cfg.MinCollabInteracts {
		return nil, nil
	}

	eligible, err := s.catalog.EligibleResourceIDs(ctx, profile.UserID, s.cfg.PerSourceLimit*4)
	if err != nil {
		return nil, err
	}

	scores := s.collab.PredictBatch(profile.UserID, eligible)

	var hits []ScoredResource
	for id, score := range scores {
		if !score.Available {
			continue
		}
		hits = append(hits, ScoredResource{ResourceID: id, Score: score.Value})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ResourceID.String() < hits[j].ResourceID.String()
	})
	if len(hits) > s.cfg.PerSourceLimit {
		hits = hits[:s.cfg.PerSourceLimit]
	}

	return hits, nil
}

// contentCandidates finds resources near the user's embedding. A zero
// embedding means no positive history, so similarity is undefined and the
// source stays silent.
func (s *CandidateService) contentCandidates(ctx context.Context, userID uuid.UUID) ([]ScoredResource, error) {
	embedding, err := s.embeddings.GetUserEmbedding(ctx, userID)
	if err != nil {
		return nil, err
	}
	if embedding.IsZero() {
		return nil, nil
	}

	return s.catalog.SimilarResources(ctx, embedding, s.cfg.SimilarityThreshold, s.cfg.PerSourceLimit)
}

func enabledStrategies(strategies []string) map[string]bool {
	if len(strategies) == 0 {
		return map[string]bool{
			models.StrategyCollaborative: true,
			models.StrategyContent:       true,
			models.StrategyGraph:         true,
		}
	}

	enabled := make(map[string]bool, len(strategies))
	for _, strategy := range strategies {
		enabled[strategy] = true
	}
	return enabled
}
