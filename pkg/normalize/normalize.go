// Package normalize pulls text and image payloads out of generative service
// responses whose shape is not known in advance.
//
// A response is any value: an SDK struct, a map decoded from JSON, or a mix of
// both. Each extraction is a table of strategies tried in order; a strategy
// that panics or finds nothing is a mismatch and the next one runs. The
// exported extractors never panic.
package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"go.uber.org/zap"
)

// Strategy extracts one artifact shape from a response.
type Strategy[T any] struct {
	Name    string
	Extract func(resp any) (T, bool)
}

// Exporter is implemented by image objects that can serialise themselves.
type Exporter interface {
	Export(mimeType string) ([]byte, error)
}

// Member names that have carried image bytes across client versions, in priority order.
var byteFields = []string{
	"image_bytes",
	"bytes_base64_encoded",
	"b64_json",
	"bytes",
	"data",
	"base64",
	"image_data",
}

var collectionFields = []string{"images", "generated_images", "predictions"}

// Normalizer runs the text and image strategy tables.
type Normalizer struct {
	log      *zap.Logger
	mimeType string
	text     []Strategy[string]
	image    []Strategy[[]byte]
}

// New returns a Normalizer that encodes exported images as mimeType
// ("image/png" when empty).
func New(log *zap.Logger, mimeType string) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	n := &Normalizer{log: log, mimeType: mimeType}
	n.text = []Strategy[string]{
		{Name: "direct_text", Extract: DirectText},
		{Name: "candidate_parts", Extract: n.candidateParts},
	}
	n.image = []Strategy[[]byte]{
		{Name: "images_collection", Extract: ImagesCollection},
		{Name: "first_image", Extract: n.FirstImage},
		{Name: "inline_data", Extract: InlineData},
	}
	return n
}

// ExtractText returns the response text, or false when no strategy matched.
func (n *Normalizer) ExtractText(resp any) (string, bool) {
	return cascade(n.log, "text", n.text, resp)
}

// ExtractImage returns the raw image bytes, or false when no strategy matched.
func (n *Normalizer) ExtractImage(resp any) ([]byte, bool) {
	return cascade(n.log, "image", n.image, resp)
}

func cascade[T any](log *zap.Logger, artifact string, strategies []Strategy[T], resp any) (T, bool) {
	var zero T
	if resp == nil {
		return zero, false
	}
	for _, s := range strategies {
		if out, ok := try(log, artifact, s, resp); ok {
			return out, true
		}
	}
	return zero, false
}

func try[T any](log *zap.Logger, artifact string, s Strategy[T], resp any) (out T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("extraction mismatch",
				zap.String("artifact", artifact),
				zap.String("strategy", s.Name),
				zap.String("panic", fmt.Sprint(r)))
			var zero T
			out, ok = zero, false
		}
	}()
	out, ok = s.Extract(resp)
	if !ok {
		log.Debug("extraction mismatch",
			zap.String("artifact", artifact),
			zap.String("strategy", s.Name))
	}
	return out, ok
}

// DirectText matches a non-empty top-level text member or accessor.
func DirectText(resp any) (string, bool) {
	v, ok := field(resp, "text")
	if !ok {
		return "", false
	}
	return text(v)
}

func (n *Normalizer) candidateParts(resp any) (string, bool) {
	candidates, ok := field(resp, "candidates")
	if !ok {
		return "", false
	}
	for i, c := range list(candidates) {
		if s, ok := n.candidateText(i, c); ok {
			return s, true
		}
	}
	return "", false
}

// candidateText inspects one candidate; a panic skips only this candidate.
func (n *Normalizer) candidateText(i int, c any) (s string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Debug("candidate mismatch", zap.Int("candidate", i), zap.String("panic", fmt.Sprint(r)))
			s, ok = "", false
		}
	}()
	content, found := field(c, "content")
	if !found {
		return "", false
	}
	parts, found := field(content, "parts")
	if !found {
		return "", false
	}
	var texts []string
	for _, p := range list(parts) {
		v, found := field(p, "text")
		if !found {
			continue
		}
		if t, isText := str(v); isText && t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	joined := strings.TrimSpace(strings.Join(texts, "\n"))
	return joined, joined != ""
}

// firstBytes returns the first byteFields member of v holding data.
func firstBytes(v any) ([]byte, bool) {
	for _, name := range byteFields {
		raw, ok := field(v, name)
		if !ok {
			continue
		}
		if b, ok := payload(raw); ok {
			return b, true
		}
	}
	return nil, false
}

// rawImage accepts collection elements that are themselves the payload.
func rawImage(v any) ([]byte, bool) {
	switch v.(type) {
	case string, []byte:
		return payload(v)
	}
	return nil, false
}

// ImagesCollection matches an images collection (a single image counts as
// one) and inspects each image, then its nested image, for byte data.
func ImagesCollection(resp any) ([]byte, bool) {
	images, ok := field(resp, collectionFields...)
	if !ok {
		return nil, false
	}
	for _, img := range list(images) {
		if b, ok := rawImage(img); ok {
			return b, true
		}
		if b, ok := firstBytes(img); ok {
			return b, true
		}
		if nested, ok := field(img, "image"); ok {
			if b, ok := firstBytes(nested); ok {
				return b, true
			}
		}
	}
	return nil, false
}

// FirstImage inspects only the first generated image. When no byte member is
// present, a nested image object is serialised to the configured MIME type.
func (n *Normalizer) FirstImage(resp any) ([]byte, bool) {
	images, ok := field(resp, "generated_images", "images")
	if !ok {
		return nil, false
	}
	all := list(images)
	if len(all) == 0 {
		return nil, false
	}
	first := all[0]
	if b, ok := rawImage(first); ok {
		return b, true
	}
	if b, ok := firstBytes(first); ok {
		return b, true
	}
	nested, ok := field(first, "image", "pil_image")
	if !ok {
		return nil, false
	}
	if b, ok := firstBytes(nested); ok {
		return b, true
	}
	b, err := encodeImage(nested, n.mimeType)
	if err != nil {
		n.log.Debug("image export failed", zap.Error(err))
		return nil, false
	}
	return b, len(b) > 0
}

func encodeImage(v any, mimeType string) ([]byte, error) {
	switch img := v.(type) {
	case Exporter:
		return img.Export(mimeType)
	case image.Image:
		var buf bytes.Buffer
		var err error
		switch mimeType {
		case "image/jpeg":
			err = jpeg.Encode(&buf, img, nil)
		default:
			err = png.Encode(&buf, img)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", mimeType, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported image object %T", v)
}

// InlineData matches candidates[*].content.parts[*].inline_data.data.
func InlineData(resp any) ([]byte, bool) {
	candidates, ok := field(resp, "candidates")
	if !ok {
		return nil, false
	}
	for _, c := range list(candidates) {
		content, ok := field(c, "content")
		if !ok {
			continue
		}
		parts, ok := field(content, "parts")
		if !ok {
			continue
		}
		for _, p := range list(parts) {
			blob, ok := field(p, "inline_data")
			if !ok {
				continue
			}
			data, ok := field(blob, "data")
			if !ok {
				continue
			}
			if b, ok := payload(data); ok {
				return b, true
			}
		}
	}
	return nil, false
}
