package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dravya-labs/dravya/pkg/cache/memory"
	"github.com/dravya-labs/dravya/pkg/config"
	"github.com/dravya-labs/dravya/pkg/dataset"
	"github.com/dravya-labs/dravya/pkg/enrich"
	"github.com/dravya-labs/dravya/pkg/genclient"
	"github.com/dravya-labs/dravya/pkg/genclient/gemini"
	"github.com/dravya-labs/dravya/pkg/genclient/rest"
	"github.com/dravya-labs/dravya/pkg/identify"
	"github.com/dravya-labs/dravya/pkg/ledger"
	"github.com/dravya-labs/dravya/pkg/logging"
	"github.com/dravya-labs/dravya/pkg/normalize"
	"github.com/dravya-labs/dravya/pkg/predictor"
	"github.com/dravya-labs/dravya/pkg/router"
	"go.uber.org/zap"
)

var globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

// loadConfig reads the dotenv file, the config and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnv(globalFlags.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(globalFlags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if globalFlags.logLevel != "" {
		cfg.LogLevel = globalFlags.logLevel
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// app holds the wired pipeline shared by every front end.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	cache  *memory.Store
	ledger *ledger.Ledger
	orch   *enrich.Orchestrator
	svc    *identify.Service
}

func (a *app) Close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("close ledger", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// newApp loads the dataset and classifier and wires generation. A missing
// model file is trained from the dataset and saved.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	ds, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	vocab := ds.Labels()
	log.Info("dataset loaded", zap.String("path", cfg.DatasetPath), zap.Int("rows", ds.Len()), zap.Strings("labels", vocab))

	pred, err := loadOrTrain(cfg, ds, log)
	if err != nil {
		return nil, err
	}
	if err := pred.CheckVocabulary(vocab); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, cache: memory.New()}

	var rec router.Recorder
	if cfg.Ledger.Enabled {
		a.ledger, err = ledger.New(cfg.Ledger, log.Named("ledger"))
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		rec = a.ledger
	}

	opts := enrich.Options{
		Cache:     a.cache,
		TextModel: cfg.Generation.TextModel,
		Timeout:   cfg.Generation.Timeout,
		Dedupe:    cfg.Generation.Dedupe,
		Recorder:  rec,
		Logger:    log.Named("enrich"),
	}

	client, alt, err := newGenClient(ctx, cfg.Generation)
	if err != nil {
		a.Close()
		return nil, err
	}
	if client == nil {
		log.Warn("no API key configured, descriptions fall back to a placeholder", zap.String("env", config.APIKeyEnv))
	} else {
		norm := normalize.New(log.Named("normalize"), cfg.Generation.Image.MIMEType)
		opts.Client = client
		opts.Extractor = norm
		if cfg.Generation.Image.Enabled {
			opts.Images = router.NewSelector(router.New(cfg.Generation.Image), router.Options{
				Client:    client,
				Alternate: alt,
				Extractor: norm,
				Image: genclient.ImageConfig{
					NumberOfImages: 1,
					MIMEType:       cfg.Generation.Image.MIMEType,
					AspectRatio:    cfg.Generation.Image.AspectRatio,
					Size:           cfg.Generation.Image.Size,
				},
				Timeout:  cfg.Generation.Timeout,
				Recorder: rec,
				Logger:   log.Named("router"),
			})
		}
		log.Info("generation configured",
			zap.String("client", client.Name()),
			zap.String("text_model", cfg.Generation.TextModel),
			zap.Bool("images", cfg.Generation.Image.Enabled))
	}

	a.orch = enrich.New(opts)
	a.svc = identify.New(pred, a.orch, vocab, log.Named("identify"))
	return a, nil
}

// newGenClient returns nil clients when no API key is configured. The REST
// backend has no alternate image client.
func newGenClient(ctx context.Context, g config.GenerationConfig) (genclient.Client, genclient.ImageClient, error) {
	if g.APIKey == "" {
		return nil, nil, nil
	}
	switch g.Backend {
	case "rest":
		c, err := rest.New(rest.Options{APIKey: g.APIKey, BaseURL: g.BaseURL})
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		c, err := gemini.New(ctx, gemini.Options{APIKey: g.APIKey, BaseURL: g.BaseURL, Timeout: g.Timeout})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
}

func loadOrTrain(cfg *config.Config, ds *dataset.Dataset, log *zap.Logger) (*predictor.Predictor, error) {
	p, err := predictor.Load(cfg.ModelPath)
	if err == nil {
		log.Info("model loaded", zap.String("path", cfg.ModelPath), zap.Strings("classes", p.Classes()))
		return p, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	log.Info("model not found, training", zap.String("path", cfg.ModelPath), zap.String("kind", cfg.Model.Kind))
	m, err := trainModel(cfg, ds)
	if err != nil {
		return nil, err
	}
	log.Info("model trained", zap.Float64("accuracy", m.Accuracy), zap.String("path", cfg.ModelPath))
	return predictor.New(m)
}

func trainModel(cfg *config.Config, ds *dataset.Dataset) (*predictor.Model, error) {
	m, err := predictor.Train(ds, predictor.FitOptions{Kind: predictor.Kind(cfg.Model.Kind), K: cfg.Model.K})
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	if err := m.Save(cfg.ModelPath); err != nil {
		return nil, err
	}
	return m, nil
}
