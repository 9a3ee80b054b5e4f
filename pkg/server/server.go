// Package server exposes the identification pipeline over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dravya-labs/dravya/pkg/config"
	"github.com/dravya-labs/dravya/pkg/identify"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/dravya-labs/dravya/pkg/predictor"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// sampleLen is how many base64 characters /debug/image echoes back.
const sampleLen = 60

// Identifier runs the identification pipeline.
type Identifier interface {
	Identify(ctx context.Context, in models.SensorInput) (models.IdentifyResponse, error)
	Search(ctx context.Context, name string) (models.IdentifyResponse, error)
	Research(ctx context.Context, q models.ResearchQuery) (models.ResearchResponse, error)
	Labels() []string
}

// ImageGenerator produces an image without consulting the cache.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, label string) ([]byte, error)
}

// StatsSource reports content cache metrics.
type StatsSource interface {
	Stats() models.CacheStats
}

// Server is the dravya HTTP API.
type Server struct {
	cfg     *config.Config
	svc     Identifier
	images  ImageGenerator
	stats   StatsSource
	log     *zap.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, svc Identifier, images ImageGenerator, stats StatsSource, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		images: images,
		stats:  stats,
		log:    log,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /identify", s.handleIdentify)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("POST /research", s.handleResearch)
	s.mux.HandleFunc("GET /debug/image", s.handleDebugImage)
	s.mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	s.handler = s.withRequestLog(s.withCORS(s.mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dravya api listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	classes := s.svc.Labels()
	if len(classes) > 5 {
		classes = classes[:5]
	}
	if classes == nil {
		classes = []string{}
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:      "ok",
		ModelLoaded: true,
		Classes:     classes,
	})
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var in models.SensorInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.svc.Identify(r.Context(), in)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSONError(w, http.StatusUnprocessableEntity, verr.Error())
		case errors.Is(err, predictor.ErrPrediction):
			s.log.Error("prediction failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Model prediction failed: %v", err))
		default:
			s.log.Error("identify failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "query parameter 'name' is required")
		return
	}

	resp, err := s.svc.Search(r.Context(), name)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var q models.ResearchQuery
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&q); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.svc.Research(r.Context(), q)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, identify.ErrUnknownDravya):
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown dravya. Known: %s", strings.Join(s.svc.Labels(), ", ")))
	default:
		s.log.Error("lookup failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleDebugImage(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("dravya")
	if label == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "query parameter 'dravya' is required")
		return
	}

	resp := models.DebugImageResponse{Dravya: label}
	img, err := s.images.GenerateImage(r.Context(), label)
	if err != nil {
		s.log.Info("debug image generation failed", zap.String("label", label), zap.Error(err))
	}
	if len(img) > 0 {
		encoded := base64.StdEncoding.EncodeToString(img)
		sample := encoded
		if len(sample) > sampleLen {
			sample = sample[:sampleLen]
		}
		resp.HaveImage = true
		resp.Length = len(encoded)
		resp.SampleStart = &sample
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"detail": message})
}
