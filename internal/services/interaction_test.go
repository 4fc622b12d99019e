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

type stubProfiles struct {
	learned chan uuid.UUID
}

func (s *stubProfiles) GetOrCreateProfile(_ context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	return &models.UserProfile{UserID: userID}, nil
}

func (s *stubProfiles) UpdateProfileSettings(_ context.Context, _ uuid.UUID, _ *models.UpdateProfileRequest) (*models.UserProfile, error) {
	return nil, nil
}

func (s *stubProfiles) LearnPreferences(_ context.Context, userID uuid.UUID) error {
	if s.learned != nil {
		s.learned <- userID
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func TestDeriveStrength(t *testing.T) {
	svc := &InteractionService{logger: testLogger()}

	tests := []struct {
		name     string
		req      *models.TrackInteractionRequest
		expected float64
	}{
		{"annotation", &models.TrackInteractionRequest{Type: models.InteractionAnnotation}, 0.7},
		{"collection add", &models.TrackInteractionRequest{Type: models.InteractionCollectionAdd}, 0.8},
		{"export", &models.TrackInteractionRequest{Type: models.InteractionExport}, 0.9},
		{"rating clamped", &models.TrackInteractionRequest{Type: models.InteractionRating, Rating: floatPtr(1.7)}, 1.0},
		{"view without context", &models.TrackInteractionRequest{Type: models.InteractionView}, 0.0},
		{"view saturated dwell full scroll", &models.TrackInteractionRequest{
			Type: models.InteractionView, DwellTime: floatPtr(600), ScrollDepth: floatPtr(1.0),
		}, 1.0},
		{"view half dwell", &models.TrackInteractionRequest{
			Type: models.InteractionView, DwellTime: floatPtr(150),
		}, 0.3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			strength, _, err := svc.deriveStrength(tc.req)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, strength, 1e-9)
		})
	}

	t.Run("unknown type rejected", func(t *testing.T) {
		_, _, err := svc.deriveStrength(&models.TrackInteractionRequest{Type: "bookmark"})
		assert.ErrorIs(t, err, ErrInvalidInteractionType)
	})

	t.Run("rating without value rejected", func(t *testing.T) {
		_, _, err := svc.deriveStrength(&models.TrackInteractionRequest{Type: models.InteractionRating})
		assert.ErrorIs(t, err, ErrInvalidInteractionType)
	})
}

func TestViewStrengthMonotone(t *testing.T) {
	prev := -1.0
	for _, dwell := range []float64{0, 30, 60, 150, 300, 900} {
		strength := viewStrength(floatPtr(dwell), floatPtr(0.5))
		assert.GreaterOrEqual(t, strength, prev, "dwell %v", dwell)
		assert.LessOrEqual(t, strength, 1.0)
		prev = strength
	}
}

func TestTrackInteraction_RepeatRaisesVisitCount(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewInteractionService(mockDB, &stubProfiles{}, nil, nil, nil, testLogger())
	defer svc.Stop()

	userID := uuid.New()
	resourceID := uuid.New()
	req := &models.TrackInteractionRequest{
		UserID:     userID,
		ResourceID: resourceID,
		Type:       models.InteractionAnnotation,
	}

	rowID := uuid.New()
	now := time.Now()

	expectTrack := func(returnVisits, totalInteractions int) {
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("INSERT INTO user_interactions").
			WithArgs(pgxmock.AnyArg(), userID, resourceID, models.InteractionAnnotation,
				0.7, true, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				models.PositiveStrengthThreshold).
			WillReturnRows(pgxmock.NewRows(
				[]string{"id", "interaction_strength", "is_positive", "return_visits", "created_at", "updated_at"}).
				AddRow(rowID, 0.7, true, returnVisits, now, now))
		mockDB.ExpectQuery("INSERT INTO user_profiles").
			WithArgs(userID).
			WillReturnRows(pgxmock.NewRows([]string{"total_interactions"}).AddRow(totalInteractions))
		mockDB.ExpectCommit()
	}

	expectTrack(0, 1)
	first, err := svc.TrackInteraction(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, first.ReturnVisits)
	assert.Equal(t, 0.7, first.Strength)
	assert.True(t, first.IsPositive)

	// The duplicate maps onto the same row, bumping return_visits only.
	expectTrack(1, 2)
	second, err := svc.TrackInteraction(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, rowID, second.ID)
	assert.Equal(t, 1, second.ReturnVisits)
	assert.Equal(t, 0.7, second.Strength)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestTrackInteraction_TenthInteractionQueuesLearning(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	learned := make(chan uuid.UUID, 1)
	svc := NewInteractionService(mockDB, &stubProfiles{learned: learned}, nil, nil, nil, testLogger())
	defer svc.Stop()

	userID := uuid.New()
	req := &models.TrackInteractionRequest{
		UserID:     userID,
		ResourceID: uuid.New(),
		Type:       models.InteractionExport,
	}

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO user_interactions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "interaction_strength", "is_positive", "return_visits", "created_at", "updated_at"}).
			AddRow(uuid.New(), 0.9, true, 0, time.Now(), time.Now()))
	mockDB.ExpectQuery("INSERT INTO user_profiles").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"total_interactions"}).AddRow(10))
	mockDB.ExpectCommit()

	_, err = svc.TrackInteraction(context.Background(), req)
	require.NoError(t, err)

	select {
	case got := <-learned:
		assert.Equal(t, userID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("preference learning was not queued on the 10th interaction")
	}
}

func TestTrackInteraction_InvalidTypeRejectedBeforeWrite(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewInteractionService(mockDB, &stubProfiles{}, nil, nil, nil, testLogger())
	defer svc.Stop()

	_, err = svc.TrackInteraction(context.Background(), &models.TrackInteractionRequest{
		UserID:     uuid.New(),
		ResourceID: uuid.New(),
		Type:       "bookmark",
	})
	assert.ErrorIs(t, err, ErrInvalidInteractionType)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
