package predictor

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/dravya-labs/dravya/pkg/dataset"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/samber/lo"
)

// FitOptions controls training.
type FitOptions struct {
	Kind Kind
	K    int
}

// Fit builds a model from every row of ds.
func Fit(ds *dataset.Dataset, opts FitOptions) (*Model, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("fit: empty dataset")
	}
	if opts.Kind == "" {
		opts.Kind = KindCentroid
	}
	if opts.Kind == KindKNN && opts.K < 1 {
		opts.K = 5
	}

	m := &Model{
		Kind:      opts.Kind,
		Features:  append([]string(nil), models.FeatureColumns...),
		Classes:   ds.Labels(),
		TrainedAt: time.Now().UTC(),
	}
	m.Means, m.Stds = moments(ds.Rows)

	classIdx := make(map[string]int, len(m.Classes))
	for i, c := range m.Classes {
		classIdx[c] = i
	}

	switch opts.Kind {
	case KindCentroid:
		m.Centroids = make([][6]float64, len(m.Classes))
		counts := make([]int, len(m.Classes))
		for _, r := range ds.Rows {
			ci := classIdx[r.Label]
			z := m.standardize(r.Features)
			for i := range z {
				m.Centroids[ci][i] += z[i]
			}
			counts[ci]++
		}
		for ci := range m.Centroids {
			for i := range m.Centroids[ci] {
				m.Centroids[ci][i] /= float64(counts[ci])
			}
		}
	case KindKNN:
		m.K = opts.K
		m.Samples = lo.Map(ds.Rows, func(r dataset.Row, _ int) Sample {
			return Sample{X: m.standardize(r.Features), Class: classIdx[r.Label]}
		})
	default:
		return nil, fmt.Errorf("fit: unknown model kind %q", opts.Kind)
	}

	return m, nil
}

func moments(rows []dataset.Row) (means, stds [6]float64) {
	n := float64(len(rows))
	for _, r := range rows {
		for i, v := range r.Features {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= n
	}
	for _, r := range rows {
		for i, v := range r.Features {
			d := v - means[i]
			stds[i] += d * d
		}
	}
	for i := range stds {
		stds[i] = math.Sqrt(stds[i] / n)
		if stds[i] == 0 {
			stds[i] = 1
		}
	}
	return means, stds
}

// Split shuffles rows with a fixed seed and holds out testFraction of them.
func Split(ds *dataset.Dataset, testFraction float64, seed int64) (train, test *dataset.Dataset) {
	rows := append([]dataset.Row(nil), ds.Rows...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	nTest := int(math.Ceil(float64(len(rows)) * testFraction))
	if nTest >= len(rows) {
		nTest = len(rows) - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return &dataset.Dataset{Rows: rows[nTest:]}, &dataset.Dataset{Rows: rows[:nTest]}
}

// Score returns the fraction of rows in ds that m labels correctly.
func Score(m *Model, ds *dataset.Dataset) (float64, error) {
	p, err := New(m)
	if err != nil {
		return 0, err
	}
	if ds.Len() == 0 {
		return 0, fmt.Errorf("score: empty dataset")
	}
	correct := 0
	for _, r := range ds.Rows {
		label, err := p.Predict(models.ReadingFromFeatures(r.Features))
		if err != nil {
			return 0, err
		}
		if label == r.Label {
			correct++
		}
	}
	return float64(correct) / float64(ds.Len()), nil
}

// Train fits on an 80/20 split (seed 42) and records the hold-out accuracy.
// When the hold-out is empty the accuracy is measured on the training rows.
func Train(ds *dataset.Dataset, opts FitOptions) (*Model, error) {
	train, test := Split(ds, 0.2, 42)
	m, err := Fit(train, opts)
	if err != nil {
		return nil, err
	}
	eval := test
	if eval.Len() == 0 {
		eval = train
	}
	acc, err := Score(m, eval)
	if err != nil {
		return nil, err
	}
	m.Accuracy = acc
	return m, nil
}
