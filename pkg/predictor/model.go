package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dravya-labs/dravya/pkg/models"
)

// Kind selects the classification rule stored in a Model.
type Kind string

const (
	// KindCentroid assigns the class with the nearest standardized centroid.
	KindCentroid Kind = "centroid"
	// KindKNN takes a majority vote among the k nearest training samples.
	KindKNN Kind = "knn"
)

// Sample is a standardized training observation kept by knn models.
type Sample struct {
	X     [6]float64 `json:"x"`
	Class int        `json:"y"`
}

// Model is the serialized classifier.
type Model struct {
	Kind      Kind         `json:"kind"`
	Features  []string     `json:"features"`
	Classes   []string     `json:"classes"`
	Means     [6]float64   `json:"means"`
	Stds      [6]float64   `json:"stds"`
	Centroids [][6]float64 `json:"centroids,omitempty"`
	K         int          `json:"k,omitempty"`
	Samples   []Sample     `json:"samples,omitempty"`
	Accuracy  float64      `json:"accuracy"`
	TrainedAt time.Time    `json:"trained_at"`
}

// LoadModel reads a JSON model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the model as indented JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

func (m *Model) validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("no classes")
	}
	if len(m.Features) != 0 && len(m.Features) != len(models.FeatureColumns) {
		return fmt.Errorf("expected %d features, got %d", len(models.FeatureColumns), len(m.Features))
	}
	for i, f := range m.Features {
		if f != models.FeatureColumns[i] {
			return fmt.Errorf("feature %d is %q, expected %q", i, f, models.FeatureColumns[i])
		}
	}
	for i, s := range m.Stds {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("feature %s has invalid scale %v", models.FeatureColumns[i], s)
		}
	}
	switch m.Kind {
	case KindCentroid:
		if len(m.Centroids) != len(m.Classes) {
			return fmt.Errorf("centroid model has %d centroids for %d classes", len(m.Centroids), len(m.Classes))
		}
	case KindKNN:
		if m.K < 1 {
			return fmt.Errorf("knn model needs k >= 1, got %d", m.K)
		}
		if len(m.Samples) == 0 {
			return fmt.Errorf("knn model has no samples")
		}
		for _, s := range m.Samples {
			if s.Class < 0 || s.Class >= len(m.Classes) {
				return fmt.Errorf("sample class %d out of range", s.Class)
			}
		}
	default:
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	return nil
}

func (m *Model) standardize(x [6]float64) [6]float64 {
	var z [6]float64
	for i := range x {
		z[i] = (x[i] - m.Means[i]) / m.Stds[i]
	}
	return z
}

func sqDist(a, b [6]float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
