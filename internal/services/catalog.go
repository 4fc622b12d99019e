package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/pkg/models"
)

// CatalogService reads resource metadata from PostgreSQL with a warm Redis
// tier in front of point lookups. Vector similarity runs on the pgvector
// cosine operator.
type CatalogService struct {
	db       PG
	warm     *redis.Client
	cacheTTL time.Duration
	logger   *logrus.Logger
}

func NewCatalogService(db PG, warm *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *CatalogService {
	return &CatalogService{db: db, warm: warm, cacheTTL: cacheTTL, logger: logger}
}

// The embedding column is cast out of pgvector's own type so pgx can scan
// it as a float array without a registered vector codec.
const resourceColumns = `id, title, source, authors, domains, embedding::real[],
	quality_score, recency_score, view_count, active, created_at, updated_at`

// GetResources fetches resources by id, serving cached entries from Redis
// and falling through to PostgreSQL for the rest.
func (s *CatalogService) GetResources(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Resource, error) {
	result := make(map[uuid.UUID]*models.Resource, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing := ids
	if s.warm != nil {
		missing = s.fillFromCache(ctx, ids, result)
	}
	if len(missing) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM resources WHERE id = ANY($1) AND active = true`, resourceColumns)
	rows, err := s.db.Query(ctx, query, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		resource, err := scanResource(rows.Scan)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to scan resource row")
			continue
		}
		result[resource.ID] = resource
		s.cacheResource(ctx, resource)
	}

	return result, nil
}

// SimilarResources returns active resources whose embedding cosine
// similarity to the query vector exceeds the threshold, best first.
func (s *CatalogService) SimilarResources(ctx context.Context, embedding models.Embedding, threshold float64, limit int) ([]ScoredResource, error) {
	query := `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM resources
		WHERE active = true
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1::vector) > $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`

	rows, err := s.db.Query(ctx, query, vectorLiteral(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar resources: %w", err)
	}
	defer rows.Close()

	var hits []ScoredResource
	for rows.Next() {
		var hit ScoredResource
		if err := rows.Scan(&hit.ResourceID, &hit.Score); err != nil {
			s.logger.WithError(err).Warn("Failed to scan similarity row")
			continue
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// EligibleResourceIDs lists active resources the user has not interacted
// with, newest first.
func (s *CatalogService) EligibleResourceIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT r.id
		FROM resources r
		WHERE r.active = true
		  AND NOT EXISTS (
			SELECT 1 FROM user_interactions ui
			WHERE ui.user_id = $1 AND ui.resource_id = r.id
		  )
		ORDER BY r.created_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible resources: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// MedianViewCount returns the median view_count across active resources,
// 0 when the catalog is empty.
func (s *CatalogService) MedianViewCount(ctx context.Context) (float64, error) {
	var median *float64
	err := s.db.QueryRow(ctx,
		`SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY view_count) FROM resources WHERE active = true`,
	).Scan(&median)
	if err != nil {
		return 0, fmt.Errorf("failed to compute median view count: %w", err)
	}
	if median == nil {
		return 0, nil
	}
	return *median, nil
}

func (s *CatalogService) fillFromCache(ctx context.Context, ids []uuid.UUID, out map[uuid.UUID]*models.Resource) []uuid.UUID {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = resourceCacheKey(id)
	}

	values, err := s.warm.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.WithError(err).Debug("Resource cache read failed")
		return ids
	}

	var missing []uuid.UUID
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var resource models.Resource
		if err := json.Unmarshal([]byte(data), &resource); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		out[resource.ID] = &resource
	}

	return missing
}

func (s *CatalogService) cacheResource(ctx context.Context, resource *models.Resource) {
	if s.warm == nil {
		return
	}
	data, err := json.Marshal(resource)
	if err != nil {
		return
	}
	if err := s.warm.Set(ctx, resourceCacheKey(resource.ID), data, s.cacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("Resource cache write failed")
	}
}

func resourceCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("resource:%s", id)
}

type scanFunc func(dest ...interface{}) error

func scanResource(scan scanFunc) (*models.Resource, error) {
	var resource models.Resource
	var raw []float32
	err := scan(
		&resource.ID,
		&resource.Title,
		&resource.Source,
		&resource.Authors,
		&resource.Domains,
		&raw,
		&resource.QualityScore,
		&resource.RecencyScore,
		&resource.ViewCount,
		&resource.Active,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	resource.Embedding = models.Embedding(raw)
	return &resource, nil
}

// vectorLiteral renders an embedding in pgvector's text format.
func vectorLiteral(emb models.Embedding) string {
	parts := make([]string, len(emb))
	for i, v := range emb {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
