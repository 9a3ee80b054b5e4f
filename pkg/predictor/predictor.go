// Package predictor maps sensor readings to a dravya label.
package predictor

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/samber/lo"
)

// ErrPrediction is wrapped by every failure inside Predict.
var ErrPrediction = errors.New("prediction failed")

// Predictor is a loaded, read-only classifier. It is safe for concurrent use.
type Predictor struct {
	model *Model
}

// New wraps a fitted model.
func New(m *Model) (*Predictor, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &Predictor{model: m}, nil
}

// Load reads a model file and returns a predictor for it.
func Load(path string) (*Predictor, error) {
	m, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return &Predictor{model: m}, nil
}

// Model returns the underlying model.
func (p *Predictor) Model() *Model {
	return p.model
}

// Classes returns a copy of the labels this predictor can emit.
func (p *Predictor) Classes() []string {
	return append([]string(nil), p.model.Classes...)
}

// CheckVocabulary fails when the model knows labels absent from vocab.
func (p *Predictor) CheckVocabulary(vocab []string) error {
	if unknown := lo.Without(p.model.Classes, vocab...); len(unknown) > 0 {
		return fmt.Errorf("model classes not in dataset vocabulary: %v", unknown)
	}
	return nil
}

// Predict returns the nearest label for r. Out-of-range inputs still yield a label.
func (p *Predictor) Predict(r models.SensorReading) (label string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			label, err = "", fmt.Errorf("%w: %v", ErrPrediction, rec)
		}
	}()

	if p == nil || p.model == nil {
		return "", fmt.Errorf("%w: no model loaded", ErrPrediction)
	}

	z := p.model.standardize(r.Features())
	var idx int
	switch p.model.Kind {
	case KindCentroid:
		idx = nearestCentroid(p.model.Centroids, z)
	case KindKNN:
		idx = vote(p.model.Samples, p.model.K, len(p.model.Classes), z)
	default:
		return "", fmt.Errorf("%w: unknown model kind %q", ErrPrediction, p.model.Kind)
	}
	return p.model.Classes[idx], nil
}

func nearestCentroid(centroids [][6]float64, z [6]float64) int {
	best, bestDist := 0, sqDist(centroids[0], z)
	for i := 1; i < len(centroids); i++ {
		if d := sqDist(centroids[i], z); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// vote breaks ties in favour of the class owning the nearest neighbour.
func vote(samples []Sample, k, nClasses int, z [6]float64) int {
	order := make([]int, len(samples))
	dist := make([]float64, len(samples))
	for i, s := range samples {
		order[i] = i
		dist[i] = sqDist(s.X, z)
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })
	if k > len(order) {
		k = len(order)
	}

	counts := make([]int, nClasses)
	top := 0
	for _, i := range order[:k] {
		counts[samples[i].Class]++
		if counts[samples[i].Class] > top {
			top = counts[samples[i].Class]
		}
	}
	for _, i := range order[:k] {
		if counts[samples[i].Class] == top {
			return samples[i].Class
		}
	}
	return samples[order[0]].Class
}
