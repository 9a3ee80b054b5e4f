// Package router orders the image generation strategies and walks them until
// one yields an image.
package router

import (
	"fmt"

	"github.com/dravya-labs/dravya/pkg/config"
	"github.com/samber/lo"
)

// Kind identifies how a route reaches the generative service.
type Kind string

const (
	// KindAlternate uses the image-first client with a fixed configuration.
	KindAlternate Kind = "alternate"
	// KindMethod calls a dedicated image method on the primary client.
	KindMethod Kind = "method"
	// KindContent asks generic content generation for an IMAGE modality.
	KindContent Kind = "content"
)

// Route is one strategy to try.
type Route struct {
	Kind   Kind
	Model  string
	Method string
}

func (r Route) String() string {
	if r.Method != "" {
		return fmt.Sprintf("%s:%s/%s", r.Kind, r.Model, r.Method)
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Model)
}

// Router resolves the configured models and methods into an ordered route list.
type Router struct {
	cfg config.ImageConfig
}

// New creates a Router from the image configuration.
func New(cfg config.ImageConfig) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the routes in priority order. Alternate routes come first
// when an alternate client is available; then, per model, each method route
// followed by a content route.
func (r *Router) Resolve(hasAlternate bool) ([]Route, error) {
	var routes []Route

	if hasAlternate && r.cfg.Alternate {
		for _, model := range lo.Uniq(lo.Compact(r.cfg.AltModels)) {
			routes = append(routes, Route{Kind: KindAlternate, Model: model})
		}
	}

	methods := lo.Uniq(lo.Compact(r.cfg.Methods))
	for _, model := range lo.Uniq(lo.Compact(r.cfg.Models)) {
		for _, method := range methods {
			routes = append(routes, Route{Kind: KindMethod, Model: model, Method: method})
		}
		routes = append(routes, Route{Kind: KindContent, Model: model})
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("no image models configured")
	}
	return routes, nil
}
