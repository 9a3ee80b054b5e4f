// Package gemini adapts the Google Gen AI SDK to genclient.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dravya-labs/dravya/pkg/genclient"
	"google.golang.org/genai"
)

// MethodGenerateImages is the dedicated image entry point this client exposes.
const MethodGenerateImages = "generate_images"

// Options configures the SDK client.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements genclient.Client and genclient.ImageClient over genai.
type Client struct {
	sdk     *genai.Client
	methods map[string]genclient.ImageMethod
}

// New creates a Gemini API client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		timeout := opts.Timeout
		cfg.HTTPOptions.Timeout = &timeout
	}

	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	c := &Client{sdk: sdk}
	c.methods = map[string]genclient.ImageMethod{
		MethodGenerateImages: c.generateImages,
	}
	return c, nil
}

// Name identifies the client in logs and the ledger.
func (c *Client) Name() string { return "gemini-sdk" }

// Method returns the named image entry point.
func (c *Client) Method(name string) (genclient.ImageMethod, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// GenerateContent calls models.generateContent with a single user prompt.
func (c *Client) GenerateContent(ctx context.Context, model, prompt string, opts genclient.ContentOptions) (any, error) {
	var cfg *genai.GenerateContentConfig
	if len(opts.ResponseModalities) > 0 {
		cfg = &genai.GenerateContentConfig{ResponseModalities: opts.ResponseModalities}
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content %s: %w", model, err)
	}
	return resp, nil
}

func (c *Client) generateImages(ctx context.Context, model, prompt string) (any, error) {
	return c.GenerateImages(ctx, model, prompt, genclient.ImageConfig{NumberOfImages: 1})
}

// GenerateImages calls models.generateImages.
func (c *Client) GenerateImages(ctx context.Context, model, prompt string, cfg genclient.ImageConfig) (any, error) {
	resp, err := c.sdk.Models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(cfg.NumberOfImages),
		OutputMIMEType: cfg.MIMEType,
		AspectRatio:    cfg.AspectRatio,
		ImageSize:      cfg.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("generate images %s: %w", model, err)
	}
	return resp, nil
}
