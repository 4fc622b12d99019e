package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/validation"
	"github.com/lattis-io/lattis/pkg/models"
)

// Base strength values per interaction type. View strength is computed from
// dwell time and scroll depth instead.
const (
	strengthAnnotation    = 0.7
	strengthCollectionAdd = 0.8
	strengthExport        = 0.9

	// Dwell time saturates the view strength at five minutes.
	viewDwellSaturation = 300.0
)

type interactionPublisher interface {
	Publish(ctx context.Context, interaction *models.UserInteraction) error
}

type graphRecorder interface {
	RecordInteraction(ctx context.Context, interaction *models.UserInteraction)
}

type recommendationInvalidator interface {
	InvalidateUserRecommendations(ctx context.Context, userID uuid.UUID)
}

// InteractionService records user-resource interactions, derives their
// strength, and keeps profile counters in step. Repeats on the same
// (user, resource) pair update the existing row instead of inserting.
type InteractionService struct {
	db          PG
	profiles    ProfileManager
	producer    interactionPublisher
	graph       graphRecorder
	invalidator recommendationInvalidator
	validator   *validation.ContextValidator
	logger      *logrus.Logger

	learnQueue chan uuid.UUID
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewInteractionService(
	db PG,
	profiles ProfileManager,
	producer interactionPublisher,
	graph graphRecorder,
	validator *validation.ContextValidator,
	logger *logrus.Logger,
) *InteractionService {
	s := &InteractionService{
		db:         db,
		profiles:   profiles,
		producer:   producer,
		graph:      graph,
		validator:  validator,
		logger:     logger,
		learnQueue: make(chan uuid.UUID, 1000),
		stopChan:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.preferenceLearningWorker()

	return s
}

// SetRecommendationInvalidator hooks the recommendation cache invalidation
// in after construction; the recommender is built later in the wiring.
func (s *InteractionService) SetRecommendationInvalidator(inv recommendationInvalidator) {
	s.invalidator = inv
}

func (s *InteractionService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// TrackInteraction persists one interaction event. The interaction upsert
// and the profile counter update commit in a single transaction so
// return_visits and interaction_strength can never drift apart.
func (s *InteractionService) TrackInteraction(ctx context.Context, req *models.TrackInteractionRequest) (*models.UserInteraction, error) {
	strength, confidence, err := s.deriveStrength(req)
	if err != nil {
		return nil, err
	}

	interactionCtx := buildInteractionContext(req)
	if s.validator != nil {
		if err := s.validator.ValidateInteractionContext(interactionCtx); err != nil {
			return nil, err
		}
	}

	interaction := &models.UserInteraction{
		ID:         uuid.New(),
		UserID:     req.UserID,
		ResourceID: req.ResourceID,
		Type:       req.Type,
		Strength:   strength,
		IsPositive: strength > models.PositiveStrengthThreshold,
		Confidence: confidence,
		SessionID:  req.SessionID,
		Context:    interactionCtx,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin interaction transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contextJSON, _ := json.Marshal(interaction.Context)

	// Dedup rule: one row per (user, resource). A repeat bumps return_visits
	// and can only raise the stored strength, never lower it.
	upsert := `
		INSERT INTO user_interactions
			(id, user_id, resource_id, interaction_type, interaction_strength,
			 is_positive, return_visits, confidence, session_id, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (user_id, resource_id) DO UPDATE SET
			return_visits = user_interactions.return_visits + 1,
			interaction_strength = GREATEST(user_interactions.interaction_strength, EXCLUDED.interaction_strength),
			is_positive = GREATEST(user_interactions.interaction_strength, EXCLUDED.interaction_strength) > $10,
			confidence = GREATEST(user_interactions.confidence, EXCLUDED.confidence),
			updated_at = NOW()
		RETURNING id, interaction_strength, is_positive, return_visits, created_at, updated_at`

	err = tx.QueryRow(ctx, upsert,
		interaction.ID,
		interaction.UserID,
		interaction.ResourceID,
		interaction.Type,
		interaction.Strength,
		interaction.IsPositive,
		interaction.Confidence,
		interaction.SessionID,
		contextJSON,
		models.PositiveStrengthThreshold,
	).Scan(
		&interaction.ID,
		&interaction.Strength,
		&interaction.IsPositive,
		&interaction.ReturnVisits,
		&interaction.CreatedAt,
		&interaction.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert interaction: %w", err)
	}

	profileUpsert := `
		INSERT INTO user_profiles
			(user_id, diversity_preference, novelty_preference, recency_bias,
			 total_interactions, last_active_at, created_at, updated_at)
		VALUES ($1, 0.5, 0.3, 0.5, 1, NOW(), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_interactions = user_profiles.total_interactions + 1,
			last_active_at = NOW(),
			updated_at = NOW()
		RETURNING total_interactions`

	var totalInteractions int
	if err := tx.QueryRow(ctx, profileUpsert, interaction.UserID).Scan(&totalInteractions); err != nil {
		return nil, fmt.Errorf("failed to update profile counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit interaction: %w", err)
	}

	// Every 10th interaction refreshes the learned preferences.
	if totalInteractions%10 == 0 {
		s.queuePreferenceLearning(interaction.UserID)
	}

	if s.graph != nil {
		s.graph.RecordInteraction(ctx, interaction)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateUserRecommendations(ctx, interaction.UserID)
	}

	if s.producer != nil {
		if err := s.producer.Publish(ctx, interaction); err != nil {
			s.logger.WithError(err).WithField("user_id", interaction.UserID).
				Warn("Failed to publish interaction event")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":       interaction.UserID,
		"resource_id":   interaction.ResourceID,
		"type":          interaction.Type,
		"strength":      interaction.Strength,
		"return_visits": interaction.ReturnVisits,
	}).Debug("Recorded interaction")

	return interaction, nil
}

// RecentPositiveInteractions returns the most recently updated interactions
// with is_positive = true, newest first.
func (s *InteractionService) RecentPositiveInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]models.UserInteraction, error) {
	query := `
		SELECT id, user_id, resource_id, interaction_type, interaction_strength,
		       is_positive, return_visits, confidence, created_at, updated_at
		FROM user_interactions
		WHERE user_id = $1 AND is_positive = true
		ORDER BY updated_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query positive interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.UserInteraction
	for rows.Next() {
		var it models.UserInteraction
		if err := rows.Scan(
			&it.ID, &it.UserID, &it.ResourceID, &it.Type, &it.Strength,
			&it.IsPositive, &it.ReturnVisits, &it.Confidence, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			s.logger.WithError(err).Warn("Failed to scan interaction row")
			continue
		}
		interactions = append(interactions, it)
	}

	return interactions, nil
}

// deriveStrength maps one tracked event onto the [0,1] strength scale.
func (s *InteractionService) deriveStrength(req *models.TrackInteractionRequest) (strength, confidence float64, err error) {
	switch req.Type {
	case models.InteractionAnnotation:
		return strengthAnnotation, 0.8, nil
	case models.InteractionCollectionAdd:
		return strengthCollectionAdd, 0.8, nil
	case models.InteractionExport:
		return strengthExport, 0.85, nil
	case models.InteractionRating:
		if req.Rating == nil {
			return 0, 0, fmt.Errorf("%w: rating interaction requires a rating value", ErrInvalidInteractionType)
		}
		return clamp01(*req.Rating), 0.9, nil
	case models.InteractionView:
		return viewStrength(req.DwellTime, req.ScrollDepth), viewConfidence(req.DwellTime), nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidInteractionType, req.Type)
	}
}

// viewStrength is monotonically increasing in both dwell time and scroll
// depth and clamped to [0,1].
func viewStrength(dwellTime, scrollDepth *float64) float64 {
	dwell := 0.0
	if dwellTime != nil && *dwellTime > 0 {
		dwell = math.Min(*dwellTime/viewDwellSaturation, 1.0)
	}

	scroll := 0.0
	if scrollDepth != nil {
		scroll = clamp01(*scrollDepth)
	}

	return clamp01(0.6*dwell + 0.4*scroll)
}

func viewConfidence(dwellTime *float64) float64 {
	if dwellTime != nil && *dwellTime > 30 {
		return 0.7
	}
	return 0.4
}

func buildInteractionContext(req *models.TrackInteractionRequest) map[string]interface{} {
	if req.DwellTime == nil && req.ScrollDepth == nil {
		return nil
	}

	ctx := make(map[string]interface{})
	if req.DwellTime != nil {
		ctx["dwell_time"] = *req.DwellTime
	}
	if req.ScrollDepth != nil {
		ctx["scroll_depth"] = *req.ScrollDepth
	}
	return ctx
}

func (s *InteractionService) queuePreferenceLearning(userID uuid.UUID) {
	select {
	case s.learnQueue <- userID:
	default:
		s.logger.WithField("user_id", userID).Warn("Preference learning queue full")
	}
}

// preferenceLearningWorker drains the learning queue in the background.
// Learning is best effort; failures are logged and never reach callers.
func (s *InteractionService) preferenceLearningWorker() {
	defer s.wg.Done()

	for {
		select {
		case userID := <-s.learnQueue:
			if err := s.profiles.LearnPreferences(context.Background(), userID); err != nil {
				s.logger.WithError(err).WithField("user_id", userID).
					Warn("Preference learning failed, keeping previous preferences")
			}
		case <-s.stopChan:
			return
		}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
