package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dravya-labs/dravya/pkg/ledger"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/spf13/cobra"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Query and manage the generation ledger",
	}

	cmd.AddCommand(
		newLedgerSearchCmd(),
		newLedgerStatsCmd(),
		newLedgerCleanupCmd(),
	)
	return cmd
}

func newLedgerSearchCmd() *cobra.Command {
	var (
		label    string
		artifact string
		outcome  string
		since    string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List generation attempts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openLedger()
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.LedgerQueryOpts{
				Label:    label,
				Artifact: artifact,
				Outcome:  outcome,
				Limit:    limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeLedgerEntries(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "filter by dravya label")
	cmd.Flags().StringVar(&artifact, "artifact", "", "filter by artifact (text, image or research)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok, empty, error)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newLedgerStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count generation attempts by artifact, strategy and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openLedger()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeLedgerStats(cmd.OutOrStdout(), stats)
		},
	}
}

func newLedgerCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete ledger entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openLedger()
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d ledger entries.\n", deleted)
			return nil
		},
	}
}

// openLedger opens the configured ledger database even when recording is
// disabled, so past entries stay inspectable.
func openLedger() (*ledger.Ledger, func(), error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	l, err := ledger.New(cfg.Ledger, log.Named("ledger"))
	if err != nil {
		return nil, nil, err
	}
	return l, func() {
		_ = l.Close()
		_ = log.Sync()
	}, nil
}

func writeLedgerEntries(out io.Writer, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No ledger entries found.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLABEL\tARTIFACT\tSTRATEGY\tOUTCOME\tBYTES\tLATENCY\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Label, e.Artifact, e.Strategy,
			e.Outcome, e.Bytes, e.LatencyMs, oneLine(e.Error, 60))
	}
	return w.Flush()
}

func writeLedgerStats(out io.Writer, stats []models.LedgerStat) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(out, "No ledger stats found.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tSTRATEGY\tOUTCOME\tCOUNT")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Artifact, s.Strategy, s.Outcome, s.Count)
	}
	return w.Flush()
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
