// Package genclient defines the surface the engine needs from a generative
// service. Responses are returned as opaque values and interpreted only by
// package normalize.
package genclient

import "context"

// ModalityImage requests image output from generic content generation.
const ModalityImage = "IMAGE"

// ModalityText requests text output from generic content generation.
const ModalityText = "TEXT"

// ContentOptions tunes a generic content generation call.
type ContentOptions struct {
	ResponseModalities []string
}

// ImageMethod is a dedicated image-generation entry point exposed by a client.
type ImageMethod func(ctx context.Context, model, prompt string) (any, error)

// Client is the primary generative client.
type Client interface {
	Name() string
	GenerateContent(ctx context.Context, model, prompt string, opts ContentOptions) (any, error)
	// Method returns the named image-generation entry point when the client exposes it.
	Method(name string) (ImageMethod, bool)
}

// ImageConfig is the fixed request configuration of the alternate image client.
type ImageConfig struct {
	NumberOfImages int
	MIMEType       string
	AspectRatio    string
	Size           string
}

// ImageClient is the newer, image-first client tried before Client.
type ImageClient interface {
	Name() string
	GenerateImages(ctx context.Context, model, prompt string, cfg ImageConfig) (any, error)
}
