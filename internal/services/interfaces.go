package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lattis-io/lattis/pkg/models"
)

// PG is the subset of pgxpool.Pool the services use; pgxmock satisfies it
// in tests.
type PG interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InteractionRecorder persists interaction events and derives their strength.
type InteractionRecorder interface {
	TrackInteraction(ctx context.Context, req *models.TrackInteractionRequest) (*models.UserInteraction, error)
	RecentPositiveInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]models.UserInteraction, error)
}

// ProfileManager owns per-user preference settings and aggregate counters.
type ProfileManager interface {
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	UpdateProfileSettings(ctx context.Context, userID uuid.UUID, req *models.UpdateProfileRequest) (*models.UserProfile, error)
	LearnPreferences(ctx context.Context, userID uuid.UUID) error
}

// EmbeddingComputer derives a user's vector from positive interactions.
type EmbeddingComputer interface {
	GetUserEmbedding(ctx context.Context, userID uuid.UUID) (models.Embedding, error)
}

// EmbeddingCache is the injected TTL cache backing the embedding computer.
// Implementations must keep per-key reads independent so one user's recompute
// never blocks another's.
type EmbeddingCache interface {
	Get(ctx context.Context, userID uuid.UUID) (models.Embedding, bool)
	Set(ctx context.Context, userID uuid.UUID, emb models.Embedding, ttl time.Duration)
}

// CollabScore is the tagged outcome of the collaborative scorer: either a
// score or no signal at all. Callers must not fold Unavailable into 0.0.
type CollabScore struct {
	Value     float64
	Available bool
}

// CollaborativeScorer predicts interaction likelihood from learned id
// embeddings. An untrained or unloadable model reports unavailable.
type CollaborativeScorer interface {
	Predict(userID, resourceID uuid.UUID) CollabScore
	PredictBatch(userID uuid.UUID, resourceIDs []uuid.UUID) map[uuid.UUID]CollabScore
	Available() bool
}

// ResourceCatalog is the external metadata contract: quality, recency,
// embedding, authors and view counts are computed elsewhere.
type ResourceCatalog interface {
	GetResources(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Resource, error)
	SimilarResources(ctx context.Context, embedding models.Embedding, threshold float64, limit int) ([]ScoredResource, error)
	EligibleResourceIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error)
	MedianViewCount(ctx context.Context) (float64, error)
}

// GraphNeighbors is the external graph traversal contract.
type GraphNeighbors interface {
	NeighborResources(ctx context.Context, userID uuid.UUID, hops, seedLimit, limit int) ([]ScoredResource, error)
}

// ScoredResource is a single retrieval hit from one strategy.
type ScoredResource struct {
	ResourceID uuid.UUID
	Score      float64
}
