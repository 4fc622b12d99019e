package models

import (
	"time"

	"github.com/google/uuid"
)

// Resource is the metadata contract for items served by the recommender.
// Title, authors, quality, recency and the embedding are computed elsewhere;
// the core only reads them.
type Resource struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Source       string    `json:"source,omitempty" db:"source"`
	Authors      []string  `json:"authors,omitempty" db:"authors"`
	Domains      []string  `json:"domains,omitempty" db:"domains"`
	Embedding    Embedding `json:"-" db:"embedding"`
	QualityScore float64   `json:"quality_score" db:"quality_score"`
	RecencyScore float64   `json:"recency_score" db:"recency_score"`
	ViewCount    int64     `json:"view_count" db:"view_count"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
