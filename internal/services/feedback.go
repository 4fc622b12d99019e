package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/pkg/models"
)

// FeedbackService records served recommendations as impressions, attaches
// user reactions to them, and computes system health metrics. Metrics are
// read-only observers: nothing here feeds back into ranking.
type FeedbackService struct {
	db     PG
	logger *logrus.Logger

	ctrGauge     *prometheus.GaugeVec
	giniGauge    prometheus.Gauge
	noveltyGauge prometheus.Gauge
}

func NewFeedbackService(db PG, registerer prometheus.Registerer, logger *logrus.Logger) *FeedbackService {
	factory := promauto.With(registerer)
	return &FeedbackService{
		db:     db,
		logger: logger,
		ctrGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lattis_recommendation_ctr",
			Help: "Click-through rate by contributing strategy",
		}, []string{"strategy"}),
		giniGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lattis_recommendation_gini",
			Help: "Gini coefficient of recommendation exposure across resources",
		}),
		noveltyGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lattis_recommendation_novelty_ratio",
			Help: "Share of served recommendations outside the top-viewed quartile",
		}),
	}
}

// RecordImpressions stores one feedback row per served recommendation.
// Failures are logged; serving never fails because bookkeeping did.
func (s *FeedbackService) RecordImpressions(ctx context.Context, userID uuid.UUID, strategy string, served []models.Candidate) {
	query := `
		INSERT INTO recommendation_feedback
			(id, user_id, resource_id, strategy, score, position, was_clicked, was_useful, served_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, false, NOW())`

	for position, candidate := range served {
		_, err := s.db.Exec(ctx, query,
			uuid.New(), userID, candidate.ResourceID, strategy, candidate.HybridScore, position)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).
				Warn("Failed to record impression")
			return
		}
	}
}

// SubmitFeedback attaches a click or usefulness signal to the most recent
// impression of the resource for this user.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, req *models.FeedbackRequest) error {
	query := `
		UPDATE recommendation_feedback SET
			was_clicked = COALESCE($3, was_clicked),
			was_useful = COALESCE($4, was_useful),
			notes = COALESCE($5, notes),
			feedback_at = NOW()
		WHERE id = (
			SELECT id FROM recommendation_feedback
			WHERE user_id = $1 AND resource_id = $2
			ORDER BY served_at DESC
			LIMIT 1
		)`

	tag, err := s.db.Exec(ctx, query, req.UserID, req.ResourceID, req.WasClicked, req.WasUseful, req.Notes)
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no impression found for user %s and resource %s", req.UserID, req.ResourceID)
	}

	return nil
}

// CTRByStrategy computes click-through rates per strategy over the window.
// Strategies without impressions report a CTR of 0.0.
func (s *FeedbackService) CTRByStrategy(ctx context.Context, window time.Duration) ([]models.StrategyCTR, error) {
	query := `
		SELECT strategy,
		       COUNT(*) AS impressions,
		       COUNT(*) FILTER (WHERE was_clicked) AS clicks
		FROM recommendation_feedback
		WHERE served_at > NOW() - $1::interval
		GROUP BY strategy
		ORDER BY strategy`

	rows, err := s.db.Query(ctx, query, window.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query CTR: %w", err)
	}
	defer rows.Close()

	var results []models.StrategyCTR
	for rows.Next() {
		var r models.StrategyCTR
		if err := rows.Scan(&r.Strategy, &r.Impressions, &r.Clicks); err != nil {
			continue
		}
		if r.Impressions > 0 {
			r.CTR = float64(r.Clicks) / float64(r.Impressions)
		}
		s.ctrGauge.WithLabelValues(r.Strategy).Set(r.CTR)
		results = append(results, r)
	}

	return results, nil
}

// ExposureGini measures how unevenly recommendation exposure spreads across
// resources in the window. 0 is perfectly even, values near 1 mean a few
// resources dominate.
func (s *FeedbackService) ExposureGini(ctx context.Context, window time.Duration) (float64, error) {
	query := `
		SELECT COUNT(*) AS exposures
		FROM recommendation_feedback
		WHERE served_at > NOW() - $1::interval
		GROUP BY resource_id`

	rows, err := s.db.Query(ctx, query, window.String())
	if err != nil {
		return 0, fmt.Errorf("failed to query exposure counts: %w", err)
	}
	defer rows.Close()

	var exposures []float64
	for rows.Next() {
		var count float64
		if err := rows.Scan(&count); err != nil {
			continue
		}
		exposures = append(exposures, count)
	}

	gini := GiniCoefficient(exposures)
	s.giniGauge.Set(gini)
	return gini, nil
}

// NoveltyRatio reports the share of served recommendations whose resource
// sat outside the top-viewed quartile at serve time.
func (s *FeedbackService) NoveltyRatio(ctx context.Context, window time.Duration) (float64, error) {
	query := `
		WITH threshold AS (
			SELECT percentile_cont(0.75) WITHIN GROUP (ORDER BY view_count) AS p75
			FROM resources WHERE active = true
		)
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE r.view_count < t.p75) AS low_view
		FROM recommendation_feedback f
		JOIN resources r ON r.id = f.resource_id
		CROSS JOIN threshold t
		WHERE f.served_at > NOW() - $1::interval`

	var total, lowView int
	err := s.db.QueryRow(ctx, query, window.String()).Scan(&total, &lowView)
	if err != nil {
		return 0, fmt.Errorf("failed to query novelty ratio: %w", err)
	}
	if total == 0 {
		return 0.0, nil
	}

	ratio := float64(lowView) / float64(total)
	s.noveltyGauge.Set(ratio)
	return ratio, nil
}

// GiniCoefficient computes the Gini coefficient of the given counts.
// Empty input and all-zero input both return 0.0.
func GiniCoefficient(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum, weighted float64
	for i, v := range sorted {
		sum += v
		weighted += float64(i+1) * v
	}
	if sum == 0 {
		return 0.0
	}

	n := float64(len(sorted))
	return (2*weighted)/(n*sum) - (n+1)/n
}
