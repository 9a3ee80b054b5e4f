// Package rest is a plain JSON-over-HTTP client for the Generative Language
// REST API. Responses are decoded into map[string]any trees.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dravya-labs/dravya/pkg/genclient"
)

// MethodPredict is the dedicated image entry point this client exposes.
const MethodPredict = "predict"

// DefaultBaseURL is the public Generative Language endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultMaxResponseBytes caps a response body. Several base64 images fit well within it.
const DefaultMaxResponseBytes = 32 << 20

// ErrResponseTooLarge is returned when a response body exceeds the configured cap.
var ErrResponseTooLarge = errors.New("response too large")

// Options configures the REST client.
type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	// MaxResponseBytes defaults to DefaultMaxResponseBytes when zero.
	MaxResponseBytes int64
}

// Client implements genclient.Client over net/http.
type Client struct {
	baseURL    string
	version    string
	apiKey     string
	httpClient *http.Client
	methods    map[string]genclient.ImageMethod
	maxBody    int64
}

// New creates a REST client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("rest: api key required")
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	version := opts.APIVersion
	if version == "" {
		version = "v1beta"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	c := &Client{
		baseURL:    strings.TrimRight(base, "/"),
		version:    version,
		apiKey:     opts.APIKey,
		httpClient: hc,
		maxBody:    opts.MaxResponseBytes,
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxResponseBytes
	}
	c.methods = map[string]genclient.ImageMethod{
		MethodPredict: c.predict,
	}
	return c, nil
}

// Name identifies the client in logs and the ledger.
func (c *Client) Name() string { return "gemini-rest" }

// Method returns the named image entry point.
func (c *Client) Method(name string) (genclient.ImageMethod, bool) {
	m, ok := c.methods[name]
	return m, ok
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

// GenerateContent posts to models/{model}:generateContent.
func (c *Client) GenerateContent(ctx context.Context, model, prompt string, opts genclient.ContentOptions) (any, error) {
	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	if len(opts.ResponseModalities) > 0 {
		req.GenerationConfig = &generationConfig{ResponseModalities: opts.ResponseModalities}
	}
	return c.call(ctx, model, "generateContent", req)
}

type predictRequest struct {
	Instances  []map[string]string `json:"instances"`
	Parameters map[string]any      `json:"parameters"`
}

func (c *Client) predict(ctx context.Context, model, prompt string) (any, error) {
	return c.call(ctx, model, "predict", predictRequest{
		Instances:  []map[string]string{{"prompt": prompt}},
		Parameters: map[string]any{"sampleCount": 1},
	})
}

// call sends one request and decodes the JSON body. Non-2xx statuses are errors.
func (c *Client) call(ctx context.Context, model, verb string, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	model = strings.TrimPrefix(model, "models/")
	target := fmt.Sprintf("%s/%s/models/%s:%s", c.baseURL, c.version, url.PathEscape(model), verb)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(respBody)) > c.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes from %s", ErrResponseTooLarge, c.maxBody, verb)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}

	var out map[string]any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
