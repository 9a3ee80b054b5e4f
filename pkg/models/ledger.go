package models

import "time"

// Artifact kinds recorded in the ledger.
const (
	ArtifactText  = "text"
	ArtifactImage = "image"
	// ArtifactResearch is an uncached answer to a free-form question.
	ArtifactResearch = "research"
)

// Attempt outcomes recorded in the ledger.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// LedgerEntry records a single external generation attempt. Content is never stored.
type LedgerEntry struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Artifact  string    `json:"artifact"`
	Strategy  string    `json:"strategy"`
	Model     string    `json:"model"`
	Method    string    `json:"method,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Bytes     int       `json:"bytes"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerConfig controls the generation ledger.
type LedgerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// LedgerQueryOpts specifies filters for querying ledger entries.
type LedgerQueryOpts struct {
	Label    string
	Artifact string
	Outcome  string
	Since    time.Time
	Limit    int
}

// LedgerStat holds aggregate attempt counts for a strategy/outcome pair.
type LedgerStat struct {
	Artifact string `json:"artifact"`
	Strategy string `json:"strategy"`
	Outcome  string `json:"outcome"`
	Count    int    `json:"count"`
}
