package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattis-io/lattis/pkg/models"
)

const testDim = 4

func newEmbeddingService(t *testing.T) (*UserEmbeddingService, pgxmock.PgxPoolIface, *MemoryEmbeddingCache) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	cache := NewMemoryEmbeddingCache()
	svc := NewUserEmbeddingService(mockDB, cache, testDim, 5*time.Minute, testLogger())
	return svc, mockDB, cache
}

func TestGetUserEmbedding_ColdStartIsZeroVector(t *testing.T) {
	svc, mockDB, _ := newEmbeddingService(t)
	userID := uuid.New()

	mockDB.ExpectQuery(`SELECT r\.embedding::real\[\]`).
		WithArgs(userID, embeddingInteractionLimit).
		WillReturnRows(pgxmock.NewRows([]string{"embedding", "interaction_strength"}))

	emb, err := svc.GetUserEmbedding(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, emb, testDim)
	assert.True(t, emb.IsZero())
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestGetUserEmbedding_StrengthWeightedAverage(t *testing.T) {
	svc, mockDB, _ := newEmbeddingService(t)
	userID := uuid.New()

	rows := pgxmock.NewRows([]string{"embedding", "interaction_strength"}).
		AddRow([]float32{1, 0, 0, 0}, 0.9).
		AddRow([]float32{0, 1, 0, 0}, 0.3)

	mockDB.ExpectQuery(`SELECT r\.embedding::real\[\]`).
		WithArgs(userID, embeddingInteractionLimit).
		WillReturnRows(rows)

	emb, err := svc.GetUserEmbedding(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, emb, testDim)

	// (0.9*[1,0,0,0] + 0.3*[0,1,0,0]) / 1.2
	assert.InDelta(t, 0.75, float64(emb[0]), 1e-6)
	assert.InDelta(t, 0.25, float64(emb[1]), 1e-6)
	assert.InDelta(t, 0.0, float64(emb[2]), 1e-6)
}

func TestGetUserEmbedding_SkipsMalformedRows(t *testing.T) {
	svc, mockDB, _ := newEmbeddingService(t)
	userID := uuid.New()

	rows := pgxmock.NewRows([]string{"embedding", "interaction_strength"}).
		AddRow([]float32{1, 0}, 0.9). // wrong dimension
		AddRow([]float32{0, 0, 1, 0}, 0.5)

	mockDB.ExpectQuery(`SELECT r\.embedding::real\[\]`).
		WithArgs(userID, embeddingInteractionLimit).
		WillReturnRows(rows)

	emb, err := svc.GetUserEmbedding(context.Background(), userID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(emb[2]), 1e-6)
}

func TestGetUserEmbedding_ServedFromCacheWithinTTL(t *testing.T) {
	svc, mockDB, cache := newEmbeddingService(t)
	userID := uuid.New()

	cached := models.Embedding{0.5, 0.5, 0, 0}
	cache.Set(context.Background(), userID, cached, 5*time.Minute)

	emb, err := svc.GetUserEmbedding(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, cached, emb)

	// No SQL was expected or executed.
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestMemoryEmbeddingCache_ExpiresLazily(t *testing.T) {
	cache := NewMemoryEmbeddingCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	userID := uuid.New()
	cache.Set(context.Background(), userID, models.Embedding{1, 2}, time.Minute)

	_, ok := cache.Get(context.Background(), userID)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get(context.Background(), userID)
	assert.False(t, ok, "entry past its TTL must not be served")
}
