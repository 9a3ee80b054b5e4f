// Package enrich attaches a generated description and image to a label,
// consulting the content cache first.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dravya-labs/dravya/pkg/cache"
	"github.com/dravya-labs/dravya/pkg/genclient"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/dravya-labs/dravya/pkg/router"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Placeholder is returned when no description could be generated. It is never cached.
const Placeholder = "Description unavailable (Gemini returned no content)."

// ErrGenerationUnavailable means no generative client is configured.
var ErrGenerationUnavailable = errors.New("generation unavailable: no API key configured")

// ErrImagesDisabled means the client is configured for text only.
var ErrImagesDisabled = errors.New("image generation disabled")

// ResearchPlaceholder is answered when a research question produced no text.
const ResearchPlaceholder = "Research answer unavailable (Gemini returned no content)."

// TextPrompt is the deterministic description prompt for label.
func TextPrompt(label string) string {
	return fmt.Sprintf("You are an Ayurvedic expert. Provide a structured JSON-like description (no code block) for the herb '%s'. "+
		"Fields: Name, AyurvedicProperties (Guna, Rasa, Virya, Vipaka), MedicinalUses (list), FoodUses (list), SafetyNotes.", label)
}

// ImagePrompt is the deterministic image prompt for label.
func ImagePrompt(label string) string {
	return fmt.Sprintf("A high-quality, photorealistic botanical photograph of the Ayurvedic herb '%s', "+
		"showing its leaves, flowers or roots in natural light on a plain background.", label)
}

// ResearchPrompt is the deterministic prompt for a free-form question about label.
func ResearchPrompt(label, query string) string {
	return fmt.Sprintf("You are an Ayurvedic expert. Answer the following question about the herb '%s' "+
		"concisely and factually, noting any safety considerations.\nQuestion: %s", label, query)
}

// TextExtractor pulls text from an opaque response.
type TextExtractor interface {
	ExtractText(resp any) (string, bool)
}

// ImageGenerator produces an image for a label; router.Selector implements it.
type ImageGenerator interface {
	Generate(ctx context.Context, label, prompt string) ([]byte, router.Route, error)
}

// Options wires an Orchestrator. A nil Client disables generation; a nil
// Images leaves the client text-only.
type Options struct {
	Cache     cache.Store
	Client    genclient.Client
	Images    ImageGenerator
	Extractor TextExtractor
	TextModel string
	Timeout   time.Duration
	// Dedupe collapses concurrent generations for the same label and artifact.
	Dedupe   bool
	Recorder router.Recorder
	Logger   *zap.Logger
}

// Result is the enrichment of one label. Image is nil when none was produced.
type Result struct {
	Label          string
	Text           string
	Image          []byte
	TextFromCache  bool
	ImageFromCache bool
}

// Orchestrator combines the cache with text and image generation.
type Orchestrator struct {
	opts  Options
	log   *zap.Logger
	group singleflight.Group

	// exhausted holds labels whose image cascade yielded nothing. Such labels
	// keep a nil image for the life of the process.
	exhausted sync.Map
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{opts: opts, log: log}
}

// Available reports whether a generative client is configured.
func (o *Orchestrator) Available() bool {
	return o.opts.Client != nil
}

// Enrich returns the description and image for label. When both are cached no
// external call is made. A missing description becomes Placeholder; a
// missing image stays nil. Generation failures never surface as errors.
func (o *Orchestrator) Enrich(ctx context.Context, label string) Result {
	res := Result{Label: label}

	text, textOK := o.opts.Cache.Text(label)
	img, imgOK := o.opts.Cache.Image(label)
	res.TextFromCache, res.ImageFromCache = textOK, imgOK
	res.Text, res.Image = text, img
	if textOK && imgOK {
		return res
	}

	if !textOK {
		if t, err := o.describe(ctx, label); err == nil {
			res.Text = t
		} else {
			o.logFailure("description", label, err)
		}
	}
	if res.Text == "" {
		res.Text = Placeholder
	}

	if !imgOK {
		if b, err := o.illustrate(ctx, label); err == nil {
			res.Image = b
		} else {
			o.logFailure("image", label, err)
		}
	}
	return res
}

func (o *Orchestrator) logFailure(artifact, label string, err error) {
	switch {
	case errors.Is(err, ErrImagesDisabled):
		o.log.Debug("image generation disabled", zap.String("label", label))
	case errors.Is(err, ErrGenerationUnavailable):
		o.log.Warn("generation skipped", zap.String("artifact", artifact), zap.String("label", label), zap.Error(err))
	case errors.Is(err, router.ErrExhausted):
		o.log.Warn("no image produced", zap.String("label", label), zap.Error(err))
	default:
		o.log.Warn("generation failed", zap.String("artifact", artifact), zap.String("label", label), zap.Error(err))
	}
}

// Describe returns the cached description or generates and caches a new one.
func (o *Orchestrator) Describe(ctx context.Context, label string) (string, error) {
	if t, ok := o.opts.Cache.Text(label); ok {
		return t, nil
	}
	return o.describe(ctx, label)
}

func (o *Orchestrator) describe(ctx context.Context, label string) (string, error) {
	v, err := o.dedupe(ctx, "text:"+label, func(ctx context.Context) (any, error) {
		t, err := o.generate(ctx, label, models.ArtifactText, TextPrompt(label))
		if err != nil {
			return "", err
		}
		o.opts.Cache.PutText(label, t)
		return t, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Illustrate returns the cached image or generates and caches a new one.
func (o *Orchestrator) Illustrate(ctx context.Context, label string) ([]byte, error) {
	if b, ok := o.opts.Cache.Image(label); ok {
		return b, nil
	}
	return o.illustrate(ctx, label)
}

func (o *Orchestrator) illustrate(ctx context.Context, label string) ([]byte, error) {
	if _, ok := o.exhausted.Load(label); ok {
		return nil, fmt.Errorf("%w for %s earlier in this process", router.ErrExhausted, label)
	}
	v, err := o.dedupe(ctx, "image:"+label, func(ctx context.Context) (any, error) {
		b, err := o.GenerateImage(ctx, label)
		if errors.Is(err, router.ErrExhausted) && ctx.Err() == nil {
			o.exhausted.Store(label, struct{}{})
		}
		if err != nil {
			return nil, err
		}
		o.opts.Cache.PutImage(label, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// GenerateImage runs the image strategy cascade without touching the cache.
func (o *Orchestrator) GenerateImage(ctx context.Context, label string) ([]byte, error) {
	if o.opts.Client == nil {
		return nil, ErrGenerationUnavailable
	}
	if o.opts.Images == nil {
		return nil, ErrImagesDisabled
	}
	img, route, err := o.opts.Images.Generate(ctx, label, ImagePrompt(label))
	if err != nil {
		return nil, err
	}
	o.log.Debug("image resolved", zap.String("label", label), zap.Stringer("route", route))
	return img, nil
}

// Research answers a free-form question about label. Answers are never cached.
func (o *Orchestrator) Research(ctx context.Context, label, query string) (string, error) {
	return o.generate(ctx, label, models.ArtifactResearch, ResearchPrompt(label, query))
}

// generate makes one text call for prompt and records it in the ledger.
func (o *Orchestrator) generate(ctx context.Context, label, artifact, prompt string) (string, error) {
	if o.opts.Client == nil {
		return "", ErrGenerationUnavailable
	}

	start := time.Now()
	resp, err := genclient.Call(ctx, o.opts.Timeout, func(ctx context.Context) (any, error) {
		return o.opts.Client.GenerateContent(ctx, o.opts.TextModel, prompt, genclient.ContentOptions{})
	})
	entry := models.LedgerEntry{
		Label:     label,
		Artifact:  artifact,
		Strategy:  string(router.KindContent),
		Model:     o.opts.TextModel,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Outcome, entry.Error = models.OutcomeError, err.Error()
		o.record(ctx, entry)
		return "", fmt.Errorf("generate %s for %s: %w", artifact, label, err)
	}

	var text string
	var ok bool
	if o.opts.Extractor != nil {
		text, ok = o.opts.Extractor.ExtractText(resp)
	}
	if !ok {
		entry.Outcome = models.OutcomeEmpty
		o.record(ctx, entry)
		return "", fmt.Errorf("empty %s for %s (prompt %.60q)", artifact, label, prompt)
	}

	entry.Outcome, entry.Bytes = models.OutcomeOK, len(text)
	o.record(ctx, entry)
	return text, nil
}

// dedupe runs fn once per key among concurrent callers. The shared call is
// detached from any single caller's cancellation and bounded by the call
// timeout; each caller still returns as soon as its own ctx is done.
func (o *Orchestrator) dedupe(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if !o.opts.Dedupe {
		return fn(ctx)
	}
	ch := o.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			o.log.Debug("generation shared", zap.String("key", key))
		}
		return r.Val, r.Err
	}
}

func (o *Orchestrator) record(ctx context.Context, entry models.LedgerEntry) {
	if o.opts.Recorder == nil {
		return
	}
	if err := o.opts.Recorder.Record(ctx, entry); err != nil {
		o.log.Debug("ledger record failed", zap.Error(err))
	}
}
