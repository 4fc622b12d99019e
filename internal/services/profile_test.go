package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattis-io/lattis/pkg/models"
)

func TestUpdateProfileSettings_RejectsOutOfRangePreferences(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewProfileService(mockDB, testLogger())

	tests := []struct {
		name string
		req  *models.UpdateProfileRequest
	}{
		{"diversity above one", &models.UpdateProfileRequest{DiversityPreference: floatPtr(1.5)}},
		{"novelty negative", &models.UpdateProfileRequest{NoveltyPreference: floatPtr(-0.1)}},
		{"recency above one", &models.UpdateProfileRequest{RecencyBias: floatPtr(2.0)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpdateProfileSettings(context.Background(), uuid.New(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidPreferenceRange)
		})
	}

	// Rejection happens before any SQL runs, so the stored profile cannot
	// have changed.
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestUpdateProfileSettings_RejectsMalformedSourceList(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewProfileService(mockDB, testLogger())

	tests := []struct {
		name    string
		sources []string
	}{
		{"empty entry", []string{"arxiv", "  "}},
		{"control characters", []string{"pub\x00med"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpdateProfileSettings(context.Background(), uuid.New(),
				&models.UpdateProfileRequest{ExcludedSources: tc.sources})
			assert.ErrorIs(t, err, ErrInvalidInputList)
		})
	}

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestUpdateProfileSettings_RejectsPartialWeightOverride(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewProfileService(mockDB, testLogger())

	// Covers only two components; the sum falls short of 1.0.
	weights := &models.HybridWeights{Collaborative: 0.5, Content: 0.3}
	_, err = svc.UpdateProfileSettings(context.Background(), uuid.New(),
		&models.UpdateProfileRequest{HybridWeights: weights})
	assert.ErrorIs(t, err, ErrInvalidHybridWeights)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSanitizeSourceList(t *testing.T) {
	t.Run("trims and keeps valid entries", func(t *testing.T) {
		out, err := sanitizeSourceList([]string{" arxiv ", "pubmed"})
		require.NoError(t, err)
		assert.Equal(t, []string{"arxiv", "pubmed"}, out)
	})

	t.Run("nil passes through", func(t *testing.T) {
		out, err := sanitizeSourceList(nil)
		require.NoError(t, err)
		assert.Nil(t, out)
	})
}

func TestHybridWeightsValid(t *testing.T) {
	assert.True(t, models.DefaultHybridWeights().Valid())
	assert.False(t, models.HybridWeights{Collaborative: 1.2, Content: -0.2}.Valid())
	assert.False(t, models.HybridWeights{Collaborative: 0.5}.Valid())
	assert.True(t, models.HybridWeights{Content: 1.0}.Valid())
}

func TestLearnPreferences_CapsInteractionsBeforeUnnest(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewProfileService(mockDB, testLogger())
	userID := uuid.New()

	// The interaction cap must bound the interaction subquery, not the
	// unnested author rows.
	mockDB.ExpectQuery(`(?s)unnest\(r\.authors\).+SELECT ui\.resource_id.+ORDER BY ui\.updated_at DESC\s+LIMIT \$3\s+\) recent`).
		WithArgs(userID, learnWindowDays, learnInteractionCap, learnTopAuthors).
		WillReturnRows(pgxmock.NewRows([]string{"author", "cnt"}).
			AddRow("curie", 7).
			AddRow("noether", 4))
	mockDB.ExpectExec("UPDATE user_profiles SET preferred_authors").
		WithArgs(userID, []string{"curie", "noether"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, svc.LearnPreferences(context.Background(), userID))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestLearnPreferences_NoAuthorsIsNoOp(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewProfileService(mockDB, testLogger())
	userID := uuid.New()

	mockDB.ExpectQuery("unnest").
		WithArgs(userID, learnWindowDays, learnInteractionCap, learnTopAuthors).
		WillReturnRows(pgxmock.NewRows([]string{"author", "cnt"}))

	require.NoError(t, svc.LearnPreferences(context.Background(), userID))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
