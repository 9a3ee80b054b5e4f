package mcp

import (
	"fmt"
	"strings"

	"github.com/dravya-labs/dravya/pkg/models"
)

func formatIdentify(resp models.IdentifyResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dravya: %s\n\n%s\n", resp.Dravya, resp.Description)
	if resp.ImageBase64 == nil {
		b.WriteString("\nImage: none\n")
	} else {
		fmt.Fprintf(&b, "\nImage: %d base64 chars\n", len(*resp.ImageBase64))
	}
	return b.String()
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return "No labels loaded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d dravya labels:\n", len(labels))
	for _, l := range labels {
		fmt.Fprintf(&b, "  %s\n", l)
	}
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Content Cache\n"+
		"  Labels:      %d\n"+
		"  Texts:       %d\n"+
		"  Images:      %d (%d bytes)\n"+
		"  Hits:        %d\n"+
		"  Misses:      %d\n"+
		"  Hit Rate:    %.1f%%\n",
		stats.Labels, stats.Texts, stats.Images, stats.ImageBytes, stats.Hits, stats.Misses, hitRate)
}

func formatLedgerStats(stats []models.LedgerStat) string {
	if len(stats) == 0 {
		return "No generation attempts recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %-24s %-8s %s\n", "ARTIFACT", "STRATEGY", "OUTCOME", "COUNT")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-8s %-24s %-8s %d\n", s.Artifact, s.Strategy, s.Outcome, s.Count)
	}
	return b.String()
}
