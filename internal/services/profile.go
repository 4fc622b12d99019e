package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/lattis-io/lattis/pkg/models"
)

// Preference learning parameters: positive interactions from the last 90
// days, capped at 1000 rows, distilled into the top 10 authors.
const (
	learnWindowDays     = 90
	learnInteractionCap = 1000
	learnTopAuthors     = 10
)

// ProfileService manages user preference settings and the learned
// preferred-author list.
type ProfileService struct {
	db     PG
	logger *logrus.Logger
}

func NewProfileService(db PG, logger *logrus.Logger) *ProfileService {
	return &ProfileService{db: db, logger: logger}
}

// GetOrCreateProfile returns the stored profile, creating one with default
// preferences on first access.
func (s *ProfileService) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	profile, err := s.getProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	query := `
		INSERT INTO user_profiles
			(user_id, diversity_preference, novelty_preference, recency_bias,
			 total_interactions, created_at, updated_at)
		VALUES ($1, 0.5, 0.3, 0.5, 0, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.db.Exec(ctx, query, userID); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return s.getProfile(ctx, userID)
}

// UpdateProfileSettings applies a partial update. Invalid values reject the
// whole request and leave the stored profile untouched.
func (s *ProfileService) UpdateProfileSettings(ctx context.Context, userID uuid.UUID, req *models.UpdateProfileRequest) (*models.UserProfile, error) {
	if err := validatePreferences(req); err != nil {
		return nil, err
	}

	excluded, err := sanitizeSourceList(req.ExcludedSources)
	if err != nil {
		return nil, err
	}

	if req.HybridWeights != nil && !req.HybridWeights.Valid() {
		return nil, fmt.Errorf("%w: weights must each lie in [0,1] and sum to 1.0", ErrInvalidHybridWeights)
	}

	profile, err := s.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DiversityPreference != nil {
		profile.DiversityPreference = *req.DiversityPreference
	}
	if req.NoveltyPreference != nil {
		profile.NoveltyPreference = *req.NoveltyPreference
	}
	if req.RecencyBias != nil {
		profile.RecencyBias = *req.RecencyBias
	}
	if req.DomainFilters != nil {
		profile.DomainFilters = req.DomainFilters
	}
	if req.ExcludedSources != nil {
		profile.ExcludedSources = excluded
	}
	if req.HybridWeights != nil {
		profile.HybridWeights = req.HybridWeights
	}

	var weightsJSON interface{}
	if profile.HybridWeights != nil {
		weightsJSON, _ = json.Marshal(profile.HybridWeights)
	}

	query := `
		UPDATE user_profiles SET
			diversity_preference = $2,
			novelty_preference = $3,
			recency_bias = $4,
			domain_filters = $5,
			excluded_sources = $6,
			hybrid_weights = $7,
			updated_at = NOW()
		WHERE user_id = $1`

	_, err = s.db.Exec(ctx, query,
		userID,
		profile.DiversityPreference,
		profile.NoveltyPreference,
		profile.RecencyBias,
		profile.DomainFilters,
		profile.ExcludedSources,
		weightsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.WithField("user_id", userID).Debug("Updated profile settings")
	return profile, nil
}

// LearnPreferences recomputes preferred_authors from recent positive
// interactions. It is called in the background and only ever replaces the
// previous list on success.
func (s *ProfileService) LearnPreferences(ctx context.Context, userID uuid.UUID) error {
	// The interaction window is capped before unnesting authors so a few
	// many-author resources cannot shrink the effective history.
	query := `
		SELECT author, COUNT(*) AS cnt
		FROM (
			SELECT unnest(r.authors) AS author
			FROM (
				SELECT ui.resource_id
				FROM user_interactions ui
				WHERE ui.user_id = $1
				  AND ui.is_positive = true
				  AND ui.updated_at > NOW() - make_interval(days => $2)
				ORDER BY ui.updated_at DESC
				LIMIT $3
			) recent
			JOIN resources r ON r.id = recent.resource_id
		) authors
		GROUP BY author
		ORDER BY cnt DESC, author ASC
		LIMIT $4`

	rows, err := s.db.Query(ctx, query, userID, learnWindowDays, learnInteractionCap, learnTopAuthors)
	if err != nil {
		return fmt.Errorf("failed to query author frequencies: %w", err)
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var author string
		var count int
		if err := rows.Scan(&author, &count); err != nil {
			return fmt.Errorf("failed to scan author row: %w", err)
		}
		authors = append(authors, author)
	}

	if len(authors) == 0 {
		return nil
	}

	_, err = s.db.Exec(ctx,
		`UPDATE user_profiles SET preferred_authors = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, authors)
	if err != nil {
		return fmt.Errorf("failed to store preferred authors: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"authors": len(authors),
	}).Debug("Refreshed learned preferences")

	return nil
}

func (s *ProfileService) getProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	query := `
		SELECT user_id, diversity_preference, novelty_preference, recency_bias,
		       domain_filters, excluded_sources, preferred_authors, hybrid_weights,
		       total_interactions, last_active_at, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1`

	var profile models.UserProfile
	var weightsJSON []byte
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.DiversityPreference,
		&profile.NoveltyPreference,
		&profile.RecencyBias,
		&profile.DomainFilters,
		&profile.ExcludedSources,
		&profile.PreferredAuthors,
		&weightsJSON,
		&profile.TotalInteractions,
		&profile.LastActiveAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if len(weightsJSON) > 0 {
		var weights models.HybridWeights
		if err := json.Unmarshal(weightsJSON, &weights); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).
				Warn("Ignoring malformed stored hybrid weights")
		} else {
			profile.HybridWeights = &weights
		}
	}

	return &profile, nil
}

func validatePreferences(req *models.UpdateProfileRequest) error {
	check := func(name string, v *float64) error {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%w: %s must be in [0,1], got %v", ErrInvalidPreferenceRange, name, *v)
		}
		return nil
	}

	if err := check("diversity_preference", req.DiversityPreference); err != nil {
		return err
	}
	if err := check("novelty_preference", req.NoveltyPreference); err != nil {
		return err
	}
	return check("recency_bias", req.RecencyBias)
}

// sanitizeSourceList normalizes each entry to NFC and rejects empty strings
// and control characters before they reach SQL filters.
func sanitizeSourceList(sources []string) ([]string, error) {
	if sources == nil {
		return nil, nil
	}

	out := make([]string, 0, len(sources))
	for _, src := range sources {
		cleaned := strings.TrimSpace(norm.NFC.String(src))
		if cleaned == "" {
			return nil, fmt.Errorf("%w: excluded_sources entries must be non-empty", ErrInvalidInputList)
		}
		for _, r := range cleaned {
			if unicode.IsControl(r) {
				return nil, fmt.Errorf("%w: excluded_sources entries must not contain control characters", ErrInvalidInputList)
			}
		}
		out = append(out, cleaned)
	}
	return out, nil
}
