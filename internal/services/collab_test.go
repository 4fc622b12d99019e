package services

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattis-io/lattis/internal/config"
)

func collabTestConfig() config.ModelConfig {
	return config.ModelConfig{
		EmbeddingDim:  4,
		FactorDim:     8,
		HiddenLayers:  []int{16, 8, 4},
		NegativeRatio: 4,
		LearningRate:  0.05,
		Epochs:        3,
	}
}

func newTestCollab(t *testing.T, cfg config.ModelConfig) *CollabService {
	t.Helper()
	svc, err := NewCollabService(nil, cfg, testLogger())
	require.NoError(t, err)
	return svc
}

func TestNewCollabService_RejectsBadLayerConfig(t *testing.T) {
	cfg := collabTestConfig()
	cfg.HiddenLayers = nil
	_, err := NewCollabService(nil, cfg, testLogger())
	assert.Error(t, err)

	cfg = collabTestConfig()
	cfg.HiddenLayers = []int{12, 8, 4}
	_, err = NewCollabService(nil, cfg, testLogger())
	assert.Error(t, err, "first layer width must match the concatenated factor width")
}

func TestCollabService_UnavailableWithoutModel(t *testing.T) {
	svc := newTestCollab(t, collabTestConfig())

	assert.False(t, svc.Available())

	score := svc.Predict(uuid.New(), uuid.New())
	assert.False(t, score.Available, "no model must report unavailable, not zero")
	assert.Equal(t, 0.0, score.Value)

	batch := svc.PredictBatch(uuid.New(), []uuid.UUID{uuid.New(), uuid.New()})
	for _, s := range batch {
		assert.False(t, s.Available)
	}
}

func TestCollabModel_UnseenIDsUnavailable(t *testing.T) {
	knownUser := uuid.New()
	knownItem := uuid.New()

	model := newCollabModel(collabTestConfig(),
		map[uuid.UUID]struct{}{knownUser: {}},
		map[uuid.UUID]struct{}{knownItem: {}})

	svc := newTestCollab(t, collabTestConfig())
	svc.model = model

	assert.True(t, svc.Available())

	seen := svc.Predict(knownUser, knownItem)
	assert.True(t, seen.Available)
	assert.Greater(t, seen.Value, 0.0)
	assert.Less(t, seen.Value, 1.0)

	unseenItem := svc.Predict(knownUser, uuid.New())
	assert.False(t, unseenItem.Available)

	unseenUser := svc.Predict(uuid.New(), knownItem)
	assert.False(t, unseenUser.Available)
}

func TestCollabModel_StepReducesLoss(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.New()

	model := newCollabModel(collabTestConfig(),
		map[uuid.UUID]struct{}{userID: {}},
		map[uuid.UUID]struct{}{itemID: {}})

	first := model.step(userID, itemID, 1.0, 0.1)
	var last float64
	for i := 0; i < 50; i++ {
		last = model.step(userID, itemID, 1.0, 0.1)
	}

	assert.Less(t, last, first, "repeated positive updates must reduce the loss")

	score := model.predict(userID, itemID)
	require.True(t, score.Available)
	assert.Greater(t, score.Value, 0.5)
}

func TestCollabService_SnapshotRoundTrip(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.New()

	cfg := collabTestConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "model.json")

	svc := newTestCollab(t, cfg)
	svc.model = newCollabModel(cfg,
		map[uuid.UUID]struct{}{userID: {}},
		map[uuid.UUID]struct{}{itemID: {}})

	before := svc.Predict(userID, itemID)
	require.True(t, before.Available)

	require.NoError(t, svc.SaveSnapshot(cfg.SnapshotPath))

	restored := newTestCollab(t, cfg)
	require.True(t, restored.Available(), "snapshot must load at construction")

	after := restored.Predict(userID, itemID)
	require.True(t, after.Available)
	assert.InDelta(t, before.Value, after.Value, 1e-9)
}

func TestCollabService_ReloadWithoutSnapshot(t *testing.T) {
	cfg := collabTestConfig()
	svc := newTestCollab(t, cfg)
	assert.ErrorIs(t, svc.Reload(), ErrModelUnavailable)

	cfg.SnapshotPath = filepath.Join(t.TempDir(), "missing.json")
	svc = newTestCollab(t, cfg)
	assert.ErrorIs(t, svc.Reload(), ErrModelUnavailable)
}

func TestCollabService_SaveWithoutModelFails(t *testing.T) {
	svc := newTestCollab(t, collabTestConfig())
	assert.Error(t, svc.SaveSnapshot(filepath.Join(t.TempDir(), "model.json")))
}
