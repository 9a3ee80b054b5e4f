package main

import (
	"os/signal"
	"syscall"

	ingest "github.com/dravya-labs/dravya/pkg/ingest/mqtt"
	"github.com/dravya-labs/dravya/pkg/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and, when enabled, MQTT ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			g, ctx := errgroup.WithContext(ctx)

			srv := server.New(cfg, a.svc, a.orch, a.cache, log.Named("http"))
			g.Go(func() error { return srv.ListenAndServe(ctx) })

			if cfg.MQTT.Enabled {
				bus, err := ingest.Dial(cfg.MQTT, log.Named("mqtt"))
				if err != nil {
					stop()
					_ = g.Wait()
					return err
				}
				defer bus.Close()
				ing := ingest.New(bus, a.svc, cfg.MQTT, log.Named("mqtt"))
				g.Go(func() error { return ing.Run(ctx) })
			}

			log.Info("dravya serving", zap.String("listen", cfg.Listen), zap.String("version", version))
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
