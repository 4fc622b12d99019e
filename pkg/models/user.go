package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction types tracked by the recorder.
const (
	InteractionView          = "view"
	InteractionAnnotation    = "annotation"
	InteractionCollectionAdd = "collection_add"
	InteractionExport        = "export"
	InteractionRating        = "rating"
)

// PositiveStrengthThreshold marks the strength above which an interaction
// counts as a positive signal for embedding and training purposes.
const PositiveStrengthThreshold = 0.4

type UserProfile struct {
	UserID              uuid.UUID      `json:"user_id" db:"user_id"`
	DiversityPreference float64        `json:"diversity_preference" db:"diversity_preference"`
	NoveltyPreference   float64        `json:"novelty_preference" db:"novelty_preference"`
	RecencyBias         float64        `json:"recency_bias" db:"recency_bias"`
	DomainFilters       []string       `json:"domain_filters,omitempty" db:"domain_filters"`
	ExcludedSources     []string       `json:"excluded_sources,omitempty" db:"excluded_sources"`
	PreferredAuthors    []string       `json:"preferred_authors,omitempty" db:"preferred_authors"`
	HybridWeights       *HybridWeights `json:"hybrid_weights,omitempty" db:"hybrid_weights"`
	TotalInteractions   int            `json:"total_interactions" db:"total_interactions"`
	LastActiveAt        *time.Time     `json:"last_active_at,omitempty" db:"last_active_at"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

type UserInteraction struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	UserID       uuid.UUID              `json:"user_id" db:"user_id" validate:"required"`
	ResourceID   uuid.UUID              `json:"resource_id" db:"resource_id" validate:"required"`
	Type         string                 `json:"interaction_type" db:"interaction_type" validate:"required"`
	Strength     float64                `json:"interaction_strength" db:"interaction_strength"`
	IsPositive   bool                   `json:"is_positive" db:"is_positive"`
	ReturnVisits int                    `json:"return_visits" db:"return_visits"`
	Confidence   float64                `json:"confidence" db:"confidence"`
	SessionID    *uuid.UUID             `json:"session_id,omitempty" db:"session_id"`
	Context      map[string]interface{} `json:"context,omitempty" db:"context"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at" db:"updated_at"`
}

type TrackInteractionRequest struct {
	UserID      uuid.UUID  `json:"user_id" validate:"required"`
	ResourceID  uuid.UUID  `json:"resource_id" validate:"required"`
	Type        string     `json:"interaction_type" validate:"required,oneof=view annotation collection_add export rating"`
	DwellTime   *float64   `json:"dwell_time,omitempty" validate:"omitempty,min=0"` // seconds
	ScrollDepth *float64   `json:"scroll_depth,omitempty" validate:"omitempty,min=0,max=1"`
	Rating      *float64   `json:"rating,omitempty" validate:"omitempty,min=0,max=1"`
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
}

// UpdateProfileRequest carries partial profile updates; nil means unchanged.
type UpdateProfileRequest struct {
	DiversityPreference *float64       `json:"diversity_preference,omitempty"`
	NoveltyPreference   *float64       `json:"novelty_preference,omitempty"`
	RecencyBias         *float64       `json:"recency_bias,omitempty"`
	DomainFilters       []string       `json:"domain_filters,omitempty"`
	ExcludedSources     []string       `json:"excluded_sources,omitempty"`
	HybridWeights       *HybridWeights `json:"hybrid_weights,omitempty"`
}
