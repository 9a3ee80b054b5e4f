package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dravya-labs/dravya/pkg/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve dravya tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var ledger mcp.LedgerStatter
			if a.ledger != nil {
				ledger = a.ledger
			}
			srv := mcp.New(a.svc, a.orch, a.cache, ledger, version, log.Named("mcp"))
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
