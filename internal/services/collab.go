package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/lattis-io/lattis/internal/config"
)

// CollabService scores user-resource pairs with a small MLP over learned id
// factors. The served model is an immutable snapshot: Train builds a new one
// and swaps it in atomically, so in-flight predictions always see one
// consistent set of weights.
type CollabService struct {
	db     PG
	cfg    config.ModelConfig
	logger *logrus.Logger

	mu    sync.RWMutex
	model *collabModel
}

// collabModel is one trained snapshot. Factor rows are indexed through the
// id maps; ids missing from the maps were unseen at training time.
type collabModel struct {
	FactorDim   int                   `json:"factor_dim"`
	UserIndex   map[uuid.UUID]int     `json:"user_index"`
	ItemIndex   map[uuid.UUID]int     `json:"item_index"`
	UserFactors [][]float64           `json:"user_factors"`
	ItemFactors [][]float64           `json:"item_factors"`
	Layers      []collabLayerSnapshot `json:"layers"`
}

type collabLayerSnapshot struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

func NewCollabService(db PG, cfg config.ModelConfig, logger *logrus.Logger) (*CollabService, error) {
	// hidden_layers[0] is the MLP input width: the concatenation of one
	// user factor row and one item factor row.
	if len(cfg.HiddenLayers) == 0 {
		return nil, fmt.Errorf("model config: hidden_layers must not be empty")
	}
	if cfg.HiddenLayers[0] != 2*cfg.FactorDim {
		return nil, fmt.Errorf("model config: hidden_layers[0] is %d, want 2*factor_dim = %d",
			cfg.HiddenLayers[0], 2*cfg.FactorDim)
	}

	s := &CollabService{db: db, cfg: cfg, logger: logger}

	if cfg.SnapshotPath != "" {
		if err := s.LoadSnapshot(cfg.SnapshotPath); err != nil {
			logger.WithError(err).Info("No collaborative model snapshot loaded, scorer starts unavailable")
		}
	}

	return s, nil
}

// Available reports whether a trained model is loaded.
func (s *CollabService) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Predict returns the interaction likelihood for one pair. The result is
// unavailable rather than zero when no model is loaded or either id was
// unseen during training.
func (s *CollabService) Predict(userID, resourceID uuid.UUID) CollabScore {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil {
		return CollabScore{}
	}
	return model.predict(userID, resourceID)
}

func (s *CollabService) PredictBatch(userID uuid.UUID, resourceIDs []uuid.UUID) map[uuid.UUID]CollabScore {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	scores := make(map[uuid.UUID]CollabScore, len(resourceIDs))
	for _, id := range resourceIDs {
		if model == nil {
			scores[id] = CollabScore{}
		} else {
			scores[id] = model.predict(userID, id)
		}
	}
	return scores
}

func (m *collabModel) predict(userID, resourceID uuid.UUID) CollabScore {
	ui, ok := m.UserIndex[userID]
	if !ok {
		return CollabScore{}
	}
	ii, ok := m.ItemIndex[resourceID]
	if !ok {
		return CollabScore{}
	}

	input := make([]float64, 2*m.FactorDim)
	copy(input, m.UserFactors[ui])
	copy(input[m.FactorDim:], m.ItemFactors[ii])

	p, _ := m.forward(input)
	return CollabScore{Value: p, Available: true}
}

// forward runs the MLP and returns the sigmoid output along with the
// pre-activation values needed for backprop.
func (m *collabModel) forward(input []float64) (float64, [][]float64) {
	activations := [][]float64{input}
	current := input

	for li, layer := range m.Layers {
		w := mat.NewDense(len(layer.Weights), len(layer.Weights[0]), flatten(layer.Weights))
		in := mat.NewVecDense(len(current), current)
		out := mat.NewVecDense(len(layer.Biases), nil)
		out.MulVec(w, in)

		next := make([]float64, out.Len())
		for i := range next {
			v := out.AtVec(i) + layer.Biases[i]
			if li < len(m.Layers)-1 {
				v = math.Max(0, v)
			}
			next[i] = v
		}
		activations = append(activations, next)
		current = next
	}

	return sigmoid(current[0]), activations
}

// Train rebuilds the model from stored positive interactions with sampled
// negatives, then swaps the snapshot in and persists it.
func (s *CollabService) Train(ctx context.Context) error {
	examples, users, items, err := s.loadTrainingData(ctx)
	if err != nil {
		return err
	}
	if len(examples) == 0 {
		return fmt.Errorf("no positive interactions to train on")
	}

	model := newCollabModel(s.cfg, users, items)
	rng := rand.New(rand.NewSource(42))

	itemIDs := make([]uuid.UUID, 0, len(items))
	for id := range items {
		itemIDs = append(itemIDs, id)
	}

	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		rng.Shuffle(len(examples), func(i, j int) {
			examples[i], examples[j] = examples[j], examples[i]
		})

		var loss float64
		var count int
		for _, ex := range examples {
			loss += model.step(ex.userID, ex.resourceID, 1.0, s.cfg.LearningRate)
			count++

			for n := 0; n < s.cfg.NegativeRatio; n++ {
				neg := itemIDs[rng.Intn(len(itemIDs))]
				if ex.seen[neg] {
					continue
				}
				loss += model.step(ex.userID, neg, 0.0, s.cfg.LearningRate)
				count++
			}
		}

		s.logger.WithFields(logrus.Fields{
			"epoch": epoch + 1,
			"loss":  loss / float64(count),
		}).Info("Collaborative model epoch complete")
	}

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	if s.cfg.SnapshotPath != "" {
		if err := s.SaveSnapshot(s.cfg.SnapshotPath); err != nil {
			s.logger.WithError(err).Warn("Failed to persist collaborative model snapshot")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"users": len(users),
		"items": len(items),
	}).Info("Collaborative model trained")

	return nil
}

type trainingExample struct {
	userID     uuid.UUID
	resourceID uuid.UUID
	seen       map[uuid.UUID]bool
}

func (s *CollabService) loadTrainingData(ctx context.Context) ([]trainingExample, map[uuid.UUID]struct{}, map[uuid.UUID]struct{}, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, resource_id FROM user_interactions WHERE is_positive = true`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load training interactions: %w", err)
	}
	defer rows.Close()

	users := make(map[uuid.UUID]struct{})
	items := make(map[uuid.UUID]struct{})
	seenByUser := make(map[uuid.UUID]map[uuid.UUID]bool)

	var pairs []trainingExample
	for rows.Next() {
		var userID, resourceID uuid.UUID
		if err := rows.Scan(&userID, &resourceID); err != nil {
			continue
		}
		users[userID] = struct{}{}
		items[resourceID] = struct{}{}
		if seenByUser[userID] == nil {
			seenByUser[userID] = make(map[uuid.UUID]bool)
		}
		seenByUser[userID][resourceID] = true
		pairs = append(pairs, trainingExample{userID: userID, resourceID: resourceID})
	}

	for i := range pairs {
		pairs[i].seen = seenByUser[pairs[i].userID]
	}

	return pairs, users, items, nil
}

func newCollabModel(cfg config.ModelConfig, users, items map[uuid.UUID]struct{}) *collabModel {
	rng := rand.New(rand.NewSource(17))
	scale := 1.0 / math.Sqrt(float64(cfg.FactorDim))

	model := &collabModel{
		FactorDim: cfg.FactorDim,
		UserIndex: make(map[uuid.UUID]int, len(users)),
		ItemIndex: make(map[uuid.UUID]int, len(items)),
	}

	for id := range users {
		model.UserIndex[id] = len(model.UserFactors)
		model.UserFactors = append(model.UserFactors, randomVector(rng, cfg.FactorDim, scale))
	}
	for id := range items {
		model.ItemIndex[id] = len(model.ItemFactors)
		model.ItemFactors = append(model.ItemFactors, randomVector(rng, cfg.FactorDim, scale))
	}

	// The constructor guarantees HiddenLayers[0] == 2*FactorDim, so the
	// remaining widths plus the scalar output define the layer stack.
	inDim := 2 * cfg.FactorDim
	for _, outDim := range append(cfg.HiddenLayers[1:], 1) {
		layerScale := math.Sqrt(2.0 / float64(inDim))
		layer := collabLayerSnapshot{Biases: make([]float64, outDim)}
		for i := 0; i < outDim; i++ {
			layer.Weights = append(layer.Weights, randomVector(rng, inDim, layerScale))
		}
		model.Layers = append(model.Layers, layer)
		inDim = outDim
	}

	return model
}

// step runs one SGD update with binary cross-entropy loss, backpropagating
// into the MLP weights and both factor rows. Returns the example loss.
func (m *collabModel) step(userID, resourceID uuid.UUID, label, lr float64) float64 {
	ui := m.UserIndex[userID]
	ii := m.ItemIndex[resourceID]

	input := make([]float64, 2*m.FactorDim)
	copy(input, m.UserFactors[ui])
	copy(input[m.FactorDim:], m.ItemFactors[ii])

	p, activations := m.forward(input)
	loss := bceLoss(p, label)

	// dL/dz at the output for sigmoid + BCE.
	delta := []float64{p - label}

	for li := len(m.Layers) - 1; li >= 0; li-- {
		layer := &m.Layers[li]
		prev := activations[li]

		nextDelta := make([]float64, len(prev))
		for i, d := range delta {
			layer.Biases[i] -= lr * d
			for j := range prev {
				nextDelta[j] += layer.Weights[i][j] * d
				layer.Weights[i][j] -= lr * d * prev[j]
			}
		}

		if li > 0 {
			// ReLU derivative on the previous layer's output.
			for j, a := range prev {
				if a <= 0 {
					nextDelta[j] = 0
				}
			}
		}
		delta = nextDelta
	}

	for i := 0; i < m.FactorDim; i++ {
		m.UserFactors[ui][i] -= lr * delta[i]
		m.ItemFactors[ii][i] -= lr * delta[m.FactorDim+i]
	}

	return loss
}

// Reload replaces the served model from the configured snapshot path.
func (s *CollabService) Reload() error {
	if s.cfg.SnapshotPath == "" {
		return fmt.Errorf("%w: no snapshot path configured", ErrModelUnavailable)
	}
	if err := s.LoadSnapshot(s.cfg.SnapshotPath); err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return nil
}

// SaveSnapshot writes the current model as JSON.
func (s *CollabService) SaveSnapshot(path string) error {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil {
		return fmt.Errorf("no model to save")
	}

	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode model snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the served model with one decoded from disk.
func (s *CollabService) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model snapshot: %w", err)
	}

	var model collabModel
	if err := json.Unmarshal(data, &model); err != nil {
		return fmt.Errorf("failed to decode model snapshot: %w", err)
	}
	if model.FactorDim == 0 || len(model.Layers) == 0 {
		return fmt.Errorf("model snapshot is incomplete")
	}

	s.mu.Lock()
	s.model = &model
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"users": len(model.UserIndex),
		"items": len(model.ItemIndex),
	}).Info("Loaded collaborative model snapshot")

	return nil
}

func randomVector(rng *rand.Rand, dim int, scale float64) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.NormFloat64() * scale
	}
	return v
}

func flatten(rows [][]float64) []float64 {
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func bceLoss(p, label float64) float64 {
	const eps = 1e-12
	p = math.Min(math.Max(p, eps), 1-eps)
	return -(label*math.Log(p) + (1-label)*math.Log(1-p))
}
