package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/pkg/models"
)

const embeddingInteractionLimit = 100

// UserEmbeddingService derives a user's embedding as the strength-weighted
// average of the resources behind their recent positive interactions. Results
// stay in the injected cache for a TTL, so a profile can lag behind the
// newest interactions by up to that long.
type UserEmbeddingService struct {
	db     PG
	cache  EmbeddingCache
	dim    int
	ttl    time.Duration
	logger *logrus.Logger
}

func NewUserEmbeddingService(db PG, cache EmbeddingCache, dim int, ttl time.Duration, logger *logrus.Logger) *UserEmbeddingService {
	return &UserEmbeddingService{
		db:     db,
		cache:  cache,
		dim:    dim,
		ttl:    ttl,
		logger: logger,
	}
}

// GetUserEmbedding returns the cached embedding when fresh, otherwise
// recomputes it. Users with no positive interactions get the zero vector.
func (s *UserEmbeddingService) GetUserEmbedding(ctx context.Context, userID uuid.UUID) (models.Embedding, error) {
	if emb, ok := s.cache.Get(ctx, userID); ok {
		return emb, nil
	}

	emb, err := s.computeEmbedding(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, userID, emb, s.ttl)
	return emb, nil
}

func (s *UserEmbeddingService) computeEmbedding(ctx context.Context, userID uuid.UUID) (models.Embedding, error) {
	query := `
		SELECT r.embedding::real[], ui.interaction_strength
		FROM user_interactions ui
		JOIN resources r ON r.id = ui.resource_id
		WHERE ui.user_id = $1 AND ui.is_positive = true
		ORDER BY ui.updated_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, embeddingInteractionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction embeddings: %w", err)
	}
	defer rows.Close()

	sum := make([]float64, s.dim)
	var totalWeight float64

	for rows.Next() {
		var raw []float32
		var strength float64
		if err := rows.Scan(&raw, &strength); err != nil {
			s.logger.WithError(err).Warn("Failed to scan embedding row")
			continue
		}

		emb, err := models.ParseEmbedding(raw, s.dim)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).
				Warn("Skipping malformed resource embedding")
			continue
		}

		for i, v := range emb {
			sum[i] += float64(v) * strength
		}
		totalWeight += strength
	}

	if totalWeight == 0 {
		// Cold start: no positive history yet.
		return models.ZeroEmbedding(s.dim), nil
	}

	emb := make(models.Embedding, s.dim)
	for i, v := range sum {
		emb[i] = float32(v / totalWeight)
	}
	return emb, nil
}

// RedisEmbeddingCache stores user embeddings in the hot Redis tier.
type RedisEmbeddingCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisEmbeddingCache(client *redis.Client, logger *logrus.Logger) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{client: client, logger: logger}
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, userID uuid.UUID) (models.Embedding, bool) {
	data, err := c.client.Get(ctx, embeddingCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("Embedding cache read failed")
		}
		return nil, false
	}

	var emb models.Embedding
	if err := json.Unmarshal([]byte(data), &emb); err != nil {
		c.logger.WithError(err).Warn("Dropping undecodable cached embedding")
		return nil, false
	}
	return emb, true
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, userID uuid.UUID, emb models.Embedding, ttl time.Duration) {
	data, err := json.Marshal(emb)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, embeddingCacheKey(userID), data, ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Embedding cache write failed")
	}
}

func embeddingCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_embedding:%s", userID)
}

// MemoryEmbeddingCache is a process-local TTL cache. Expired entries are
// evicted lazily on read.
type MemoryEmbeddingCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	embedding models.Embedding
	expiresAt time.Time
}

func NewMemoryEmbeddingCache() *MemoryEmbeddingCache {
	return &MemoryEmbeddingCache{
		entries: make(map[uuid.UUID]memoryCacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryEmbeddingCache) Get(_ context.Context, userID uuid.UUID) (models.Embedding, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, false
	}
	return entry.embedding, true
}

func (c *MemoryEmbeddingCache) Set(_ context.Context, userID uuid.UUID, emb models.Embedding, ttl time.Duration) {
	c.mu.Lock()
	c.entries[userID] = memoryCacheEntry{embedding: emb, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}
