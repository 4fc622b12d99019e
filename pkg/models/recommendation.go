package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Retrieval strategies contributing candidates.
const (
	StrategyCollaborative = "collaborative"
	StrategyContent       = "content"
	StrategyGraph         = "graph"
	StrategyHybrid        = "hybrid"
)

// ComponentScores holds the per-strategy scores fused into the hybrid score.
// A component a candidate was not produced by stays at zero; single-source
// candidates are penalized by construction.
type ComponentScores struct {
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
	Graph         float64 `json:"graph"`
	Quality       float64 `json:"quality"`
	Recency       float64 `json:"recency"`
}

// Max returns the largest component score, used when capping the merged
// candidate pool.
func (c ComponentScores) Max() float64 {
	max := c.Collaborative
	for _, v := range []float64{c.Content, c.Graph, c.Quality, c.Recency} {
		if v > max {
			max = v
		}
	}
	return max
}

// HybridWeights are the fusion weights over the five score components.
type HybridWeights struct {
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
	Graph         float64 `json:"graph"`
	Quality       float64 `json:"quality"`
	Recency       float64 `json:"recency"`
}

// DefaultHybridWeights returns the stock fusion weights.
func DefaultHybridWeights() HybridWeights {
	return HybridWeights{
		Collaborative: 0.35,
		Content:       0.30,
		Graph:         0.20,
		Quality:       0.10,
		Recency:       0.05,
	}
}

// Valid reports whether the override covers all five components with
// non-negative weights summing to 1.0.
func (w HybridWeights) Valid() bool {
	sum := 0.0
	for _, v := range []float64{w.Collaborative, w.Content, w.Graph, w.Quality, w.Recency} {
		if v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1.0) < 1e-6
}

// Candidate is a resource under consideration for one recommendation
// request. It is never persisted.
type Candidate struct {
	ResourceID  uuid.UUID       `json:"resource_id"`
	Scores      ComponentScores `json:"component_scores"`
	Strategies  []string        `json:"contributing_strategies"`
	HybridScore float64         `json:"hybrid_score"`
	ViewCount   int64           `json:"-"`
	Embedding   Embedding       `json:"-"`
}

// HasStrategy reports whether the given strategy contributed this candidate.
func (c *Candidate) HasStrategy(strategy string) bool {
	for _, s := range c.Strategies {
		if s == strategy {
			return true
		}
	}
	return false
}

type RecommendationRequest struct {
	UserID     uuid.UUID `json:"user_id" validate:"required"`
	Limit      int       `json:"limit" validate:"min=0,max=100"`
	Strategy   string    `json:"strategy" validate:"omitempty,oneof=collaborative content graph hybrid"`
	Diversity  *float64  `json:"diversity,omitempty" validate:"omitempty,min=0,max=1"`
	MinQuality *float64  `json:"min_quality,omitempty" validate:"omitempty,min=0,max=1"`
}

type RecommendationMetadata struct {
	Count           int     `json:"count"`
	GiniCoefficient float64 `json:"gini_coefficient"`
	ColdStart       bool    `json:"cold_start"`
}

type RecommendationResponse struct {
	UserID          uuid.UUID              `json:"user_id"`
	Strategy        string                 `json:"strategy"`
	Recommendations []Candidate            `json:"recommendations"`
	Metadata        RecommendationMetadata `json:"metadata"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// RecommendationFeedback is the read-side record of what was served and how
// the user responded. It never feeds back into the ranking of the request
// that produced it.
type RecommendationFeedback struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	ResourceID uuid.UUID  `json:"resource_id" db:"resource_id"`
	Strategy   string     `json:"strategy" db:"strategy"`
	Score      float64    `json:"score" db:"score"`
	Position   int        `json:"position" db:"position"`
	WasClicked bool       `json:"was_clicked" db:"was_clicked"`
	WasUseful  bool       `json:"was_useful" db:"was_useful"`
	Notes      *string    `json:"notes,omitempty" db:"notes"`
	ServedAt   time.Time  `json:"served_at" db:"served_at"`
	FeedbackAt *time.Time `json:"feedback_at,omitempty" db:"feedback_at"`
}

type FeedbackRequest struct {
	UserID     uuid.UUID `json:"user_id" validate:"required"`
	ResourceID uuid.UUID `json:"resource_id" validate:"required"`
	WasClicked *bool     `json:"was_clicked,omitempty"`
	WasUseful  *bool     `json:"was_useful,omitempty"`
	Notes      *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// StrategyCTR aggregates click-through by contributing strategy.
type StrategyCTR struct {
	Strategy    string  `json:"strategy"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	CTR         float64 `json:"ctr"`
}
