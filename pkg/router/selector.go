package router

import (
	"context"
	"errors"
	"time"

	"github.com/dravya-labs/dravya/pkg/genclient"
	"github.com/dravya-labs/dravya/pkg/models"
	"go.uber.org/zap"
)

// ErrExhausted is returned when no route produced an image.
var ErrExhausted = errors.New("all image strategies exhausted")

// Recorder receives one entry per external generation attempt.
type Recorder interface {
	Record(ctx context.Context, entry models.LedgerEntry) error
}

// ImageExtractor pulls image bytes from an opaque response.
type ImageExtractor interface {
	ExtractImage(resp any) ([]byte, bool)
}

// Options wires a Selector.
type Options struct {
	Client    genclient.Client
	Alternate genclient.ImageClient
	Extractor ImageExtractor
	// Image is the fixed configuration sent on alternate routes.
	Image    genclient.ImageConfig
	Timeout  time.Duration
	Recorder Recorder
	Logger   *zap.Logger
}

// Selector walks the routes of a Router until one yields an image.
type Selector struct {
	router *Router
	opts   Options
	log    *zap.Logger
}

// NewSelector creates a Selector.
func NewSelector(r *Router, opts Options) *Selector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Image.NumberOfImages == 0 {
		opts.Image.NumberOfImages = 1
	}
	return &Selector{router: r, opts: opts, log: log}
}

// Generate returns the first non-empty image and the route that produced it.
// A failed route is never retried; the next route is tried instead.
func (s *Selector) Generate(ctx context.Context, label, prompt string) ([]byte, Route, error) {
	routes, err := s.router.Resolve(s.opts.Alternate != nil)
	if err != nil {
		return nil, Route{}, err
	}

	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return nil, Route{}, err
		}

		call := s.callFor(route, prompt)
		if call == nil {
			s.log.Debug("image route skipped", zap.String("label", label), zap.Stringer("route", route))
			continue
		}

		start := time.Now()
		resp, err := genclient.Call(ctx, s.opts.Timeout, call)
		entry := models.LedgerEntry{
			Label:     label,
			Artifact:  models.ArtifactImage,
			Strategy:  string(route.Kind),
			Model:     route.Model,
			Method:    route.Method,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			s.log.Info("image strategy failed", zap.String("label", label), zap.Stringer("route", route), zap.Error(err))
			entry.Outcome, entry.Error = models.OutcomeError, err.Error()
			s.record(ctx, entry)
			continue
		}

		img, ok := s.extract(resp)
		if !ok {
			s.log.Info("image strategy returned no image", zap.String("label", label), zap.Stringer("route", route))
			entry.Outcome = models.OutcomeEmpty
			s.record(ctx, entry)
			continue
		}

		entry.Outcome, entry.Bytes = models.OutcomeOK, len(img)
		s.record(ctx, entry)
		s.log.Info("image generated", zap.String("label", label), zap.Stringer("route", route), zap.Int("bytes", len(img)))
		return img, route, nil
	}

	return nil, Route{}, ErrExhausted
}

// callFor returns nil when the route cannot be attempted with the wired clients.
func (s *Selector) callFor(route Route, prompt string) func(context.Context) (any, error) {
	switch route.Kind {
	case KindAlternate:
		if s.opts.Alternate == nil {
			return nil
		}
		return func(ctx context.Context) (any, error) {
			return s.opts.Alternate.GenerateImages(ctx, route.Model, prompt, s.opts.Image)
		}
	case KindMethod:
		if s.opts.Client == nil {
			return nil
		}
		method, ok := s.opts.Client.Method(route.Method)
		if !ok {
			return nil
		}
		return func(ctx context.Context) (any, error) {
			return method(ctx, route.Model, prompt)
		}
	case KindContent:
		if s.opts.Client == nil {
			return nil
		}
		return func(ctx context.Context) (any, error) {
			return s.opts.Client.GenerateContent(ctx, route.Model, prompt, genclient.ContentOptions{
				ResponseModalities: []string{genclient.ModalityText, genclient.ModalityImage},
			})
		}
	}
	return nil
}

func (s *Selector) extract(resp any) ([]byte, bool) {
	if s.opts.Extractor == nil || resp == nil {
		return nil, false
	}
	return s.opts.Extractor.ExtractImage(resp)
}

func (s *Selector) record(ctx context.Context, entry models.LedgerEntry) {
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.Record(ctx, entry); err != nil {
		s.log.Debug("ledger record failed", zap.Error(err))
	}
}
