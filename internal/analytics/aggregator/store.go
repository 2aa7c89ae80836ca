// Package aggregator persists periodic snapshots of the analytics
// aggregator's stats to PostgreSQL.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/postgres"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS rag_analytics_snapshots (
	id            BIGSERIAL PRIMARY KEY,
	total_queries BIGINT NOT NULL,
	build_id      TEXT NOT NULL DEFAULT '',
	data          JSONB NOT NULL,
	captured_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	createIndex = `CREATE INDEX IF NOT EXISTS rag_analytics_snapshots_captured_at
	ON rag_analytics_snapshots (captured_at DESC)`

	insertSnapshot = `INSERT INTO rag_analytics_snapshots (total_queries, build_id, data, captured_at)
	VALUES ($1, $2, $3, $4)`
	pruneSnapshots = `DELETE FROM rag_analytics_snapshots WHERE id NOT IN (
	SELECT id FROM rag_analytics_snapshots ORDER BY captured_at DESC LIMIT $1)`
	listSnapshots = `SELECT data FROM rag_analytics_snapshots ORDER BY captured_at DESC LIMIT $1`
)

// StatsSource is satisfied by *analytics.Aggregator.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

// Store keeps a bounded history of AggregatedStats.
type Store struct {
	db        *postgres.Client
	retention int
	logger    *slog.Logger
}

// NewStore returns a store that keeps the newest retention rows; zero keeps
// them all.
func NewStore(db *postgres.Client, retention int) *Store {
	return &Store{
		db:        db,
		retention: retention,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{createTable, createIndex} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating snapshot schema: %w", err)
			}
		}
		return nil
	})
}

// SaveSnapshot inserts stats and trims the table to the retention limit in
// one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertSnapshot, stats.TotalQueries, stats.LastBuildID, data, time.Now().UTC()); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if s.retention <= 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx, pruneSnapshots, s.retention)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("snapshot saved", "total_queries", stats.TotalQueries, "pruned", pruned)
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx, listSnapshots, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// RunPeriodicSave snapshots src every interval and once more when ctx ends.
func (s *Store) RunPeriodicSave(ctx context.Context, src StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshots started", "interval", interval, "retention", s.retention)
	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, src.Stats()); err != nil {
				s.logger.Error("snapshot failed", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := s.SaveSnapshot(final, src.Stats())
			cancel()
			if err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			return
		}
	}
}
