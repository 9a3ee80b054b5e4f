// Package fake provides a scripted generative client for tests.
package fake

import (
	"context"
	"encoding/base64"
	"slices"
	"sync"

	"github.com/dravya-labs/dravya/pkg/genclient"
)

// Operations recorded in Call.Op.
const (
	OpContent = "content"
	OpMethod  = "method"
	OpImages  = "images"
)

// Call records one invocation.
type Call struct {
	Op         string
	Model      string
	Method     string
	Prompt     string
	Modalities []string
	Image      genclient.ImageConfig
}

// Responder scripts the reply to a call.
type Responder func(call Call) (any, error)

// Client is a thread-safe scripted double. It implements both
// genclient.Client and genclient.ImageClient.
type Client struct {
	respond Responder
	methods []string

	mu    sync.Mutex
	calls []Call
}

// New returns a client exposing the given image method names.
func New(respond Responder, methods ...string) *Client {
	return &Client{respond: respond, methods: methods}
}

// Name identifies the double.
func (c *Client) Name() string { return "fake" }

func (c *Client) do(ctx context.Context, call Call) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.respond == nil {
		return nil, nil
	}
	return c.respond(call)
}

// GenerateContent records and answers a content call.
func (c *Client) GenerateContent(ctx context.Context, model, prompt string, opts genclient.ContentOptions) (any, error) {
	return c.do(ctx, Call{Op: OpContent, Model: model, Prompt: prompt, Modalities: opts.ResponseModalities})
}

// Method exposes only the configured method names.
func (c *Client) Method(name string) (genclient.ImageMethod, bool) {
	if !slices.Contains(c.methods, name) {
		return nil, false
	}
	return func(ctx context.Context, model, prompt string) (any, error) {
		return c.do(ctx, Call{Op: OpMethod, Model: model, Method: name, Prompt: prompt})
	}, true
}

// GenerateImages records and answers an alternate-client call.
func (c *Client) GenerateImages(ctx context.Context, model, prompt string, cfg genclient.ImageConfig) (any, error) {
	return c.do(ctx, Call{Op: OpImages, Model: model, Prompt: prompt, Image: cfg})
}

// Calls returns a copy of the recorded calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallCount returns how many calls were made.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Reset forgets recorded calls.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// IsText reports whether call is a plain text generation request.
func (call Call) IsText() bool {
	return call.Op == OpContent && !slices.Contains(call.Modalities, genclient.ModalityImage)
}

// TextResponse builds a REST-shaped text response.
func TextResponse(parts ...string) map[string]any {
	ps := make([]any, 0, len(parts))
	for _, p := range parts {
		ps = append(ps, map[string]any{"text": p})
	}
	return map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"role": "model", "parts": ps}},
		},
	}
}

// InlineImageResponse builds a REST-shaped content response carrying inline image data.
func InlineImageResponse(img []byte) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{
					"mimeType": "image/png",
					"data":     base64.StdEncoding.EncodeToString(img),
				}},
			}}},
		},
	}
}

// PredictionsResponse builds a REST-shaped image prediction response.
func PredictionsResponse(img []byte) map[string]any {
	return map[string]any{
		"predictions": []any{
			map[string]any{"bytesBase64Encoded": base64.StdEncoding.EncodeToString(img), "mimeType": "image/png"},
		},
	}
}
