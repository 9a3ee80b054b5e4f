// Package ledger records external generation attempts in SQLite. Only
// metadata is stored; generated content never leaves the process cache.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Ledger writes and queries generation attempts.
type Ledger struct {
	db   *sql.DB
	cfg  models.LedgerConfig
	log  *zap.Logger
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the ledger database, creates the schema and starts hourly retention cleanup.
func New(cfg models.LedgerConfig, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	l := &Ledger{
		db:   db,
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS generation_ledger (
		id         TEXT PRIMARY KEY,
		label      TEXT NOT NULL,
		artifact   TEXT NOT NULL,
		strategy   TEXT NOT NULL,
		model      TEXT NOT NULL,
		method     TEXT,
		outcome    TEXT NOT NULL,
		error      TEXT,
		bytes      INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_ledger_label ON generation_ledger(label)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_ledger_created ON generation_ledger(created_at)`)
	return err
}

// Record inserts an entry, filling in ID and CreatedAt when unset.
func (l *Ledger) Record(ctx context.Context, e models.LedgerEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generation_ledger
		(id, label, artifact, strategy, model, method, outcome, error, bytes, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Label, e.Artifact, e.Strategy, e.Model, e.Method,
		e.Outcome, e.Error, e.Bytes, e.LatencyMs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// Query returns entries matching opts, newest first. The default limit is 100.
func (l *Ledger) Query(ctx context.Context, opts models.LedgerQueryOpts) ([]models.LedgerEntry, error) {
	q := `SELECT id, label, artifact, strategy, model, method, outcome, error, bytes, latency_ms, created_at
		FROM generation_ledger WHERE 1=1`
	var args []any

	if opts.Label != "" {
		q += " AND label = ?"
		args = append(args, opts.Label)
	}
	if opts.Artifact != "" {
		q += " AND artifact = ?"
		args = append(args, opts.Artifact)
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var method, errText sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Label, &e.Artifact, &e.Strategy, &e.Model, &method,
			&e.Outcome, &errText, &e.Bytes, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		e.Method = method.String
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns attempt counts grouped by artifact, strategy and outcome.
func (l *Ledger) Stats(ctx context.Context) ([]models.LedgerStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT artifact, strategy, outcome, count(*) AS cnt
		 FROM generation_ledger GROUP BY artifact, strategy, outcome
		 ORDER BY artifact, strategy, outcome`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	var stats []models.LedgerStat
	for rows.Next() {
		var s models.LedgerStat
		if err := rows.Scan(&s.Artifact, &s.Strategy, &s.Outcome, &s.Count); err != nil {
			return nil, fmt.Errorf("scan ledger stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period. Zero retention keeps everything.
func (l *Ledger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM generation_ledger WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Ledger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Ledger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background())
			if err != nil {
				l.log.Warn("ledger cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.log.Info("ledger cleanup", zap.Int64("deleted", n))
			}
		}
	}
}
