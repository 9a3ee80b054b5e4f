// Package identify runs the full pipeline: validate, predict, enrich.
package identify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dravya-labs/dravya/pkg/enrich"
	"github.com/dravya-labs/dravya/pkg/models"
	"go.uber.org/zap"
)

// Predictor maps a validated reading to a label.
type Predictor interface {
	Predict(r models.SensorReading) (string, error)
}

// Enricher attaches generated content to a label.
type Enricher interface {
	Enrich(ctx context.Context, label string) enrich.Result
	Research(ctx context.Context, label, query string) (string, error)
}

// ErrUnknownDravya means a name is not in the label vocabulary.
var ErrUnknownDravya = errors.New("unknown dravya")

// Service is shared by the HTTP, MCP, MQTT and CLI front ends.
type Service struct {
	predictor Predictor
	enricher  Enricher
	labels    []string
	log       *zap.Logger
}

// New creates a Service. labels is the dataset vocabulary in sorted order.
func New(p Predictor, e Enricher, labels []string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		predictor: p,
		enricher:  e,
		labels:    append([]string(nil), labels...),
		log:       log,
	}
}

// Labels returns the known label vocabulary.
func (s *Service) Labels() []string {
	return append([]string(nil), s.labels...)
}

// Predict validates in and returns the predicted label.
// Errors are *models.ValidationError or wrap predictor.ErrPrediction.
func (s *Service) Predict(in models.SensorInput) (string, error) {
	reading, err := in.Reading()
	if err != nil {
		return "", err
	}
	label, err := s.predictor.Predict(reading)
	if err != nil {
		return "", fmt.Errorf("predict: %w", err)
	}
	return label, nil
}

// Identify classifies in and enriches the label. Only validation and
// prediction failures are returned; generation problems degrade the response.
func (s *Service) Identify(ctx context.Context, in models.SensorInput) (models.IdentifyResponse, error) {
	label, err := s.Predict(in)
	if err != nil {
		return models.IdentifyResponse{}, err
	}

	res := s.enricher.Enrich(ctx, label)
	s.log.Info("identified",
		zap.String("label", label),
		zap.Bool("text_cached", res.TextFromCache),
		zap.Bool("image_cached", res.ImageFromCache),
		zap.Bool("have_image", res.Image != nil))

	return models.IdentifyResponse{
		Dravya:      label,
		Description: res.Text,
		ImageBase64: EncodeImage(res.Image),
	}, nil
}

// Resolve maps name to its vocabulary label, ignoring case and surrounding space.
func (s *Service) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	for _, l := range s.labels {
		if strings.EqualFold(l, name) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDravya, name)
}

// Search enriches a dravya looked up by name instead of by sensor reading.
func (s *Service) Search(ctx context.Context, name string) (models.IdentifyResponse, error) {
	label, err := s.Resolve(name)
	if err != nil {
		return models.IdentifyResponse{}, err
	}
	res := s.enricher.Enrich(ctx, label)
	s.log.Info("searched", zap.String("label", label), zap.Bool("text_cached", res.TextFromCache))
	return models.IdentifyResponse{
		Dravya:      label,
		Description: res.Text,
		ImageBase64: EncodeImage(res.Image),
	}, nil
}

// Research answers q about a known dravya. Generation failures yield
// enrich.ResearchPlaceholder; only validation and unknown names are errors.
func (s *Service) Research(ctx context.Context, q models.ResearchQuery) (models.ResearchResponse, error) {
	q, err := q.Normalize()
	if err != nil {
		return models.ResearchResponse{}, err
	}
	label, err := s.Resolve(q.Dravya)
	if err != nil {
		return models.ResearchResponse{}, err
	}
	answer, err := s.enricher.Research(ctx, label, q.Query)
	if err != nil {
		s.log.Warn("research failed", zap.String("label", label), zap.Error(err))
		answer = enrich.ResearchPlaceholder
	}
	return models.ResearchResponse{Answer: answer}, nil
}

// EncodeImage returns img as standard base64, or nil when there is no image.
func EncodeImage(img []byte) *string {
	if len(img) == 0 {
		return nil
	}
	s := base64.StdEncoding.EncodeToString(img)
	return &s
}
