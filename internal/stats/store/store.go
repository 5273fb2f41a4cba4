// Package store persists parse statistics snapshots to PostgreSQL and saves
// them on a schedule.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/postgres"
)

// Saver persists one snapshot. *Store is the production implementation.
type Saver interface {
	SaveSnapshot(ctx context.Context, source string, s stats.AggregatedStats) error
}

// Store reads and writes the parse_stats_snapshots table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "stats-store"),
	}
}

func (s *Store) SaveSnapshot(ctx context.Context, source string, snap stats.AggregatedStats) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO parse_stats_snapshots (source, snapshot, captured_at) VALUES ($1, $2, $3)`,
		source, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving stats snapshot: %w", err)
	}
	s.logger.Debug("stats snapshot saved",
		"source", source,
		"total_lines", snap.TotalLines,
		"failed_lines", snap.FailedLines,
	)
	return nil
}

// LatestSnapshot returns nil, nil when source has no snapshots yet.
func (s *Store) LatestSnapshot(ctx context.Context, source string) (*stats.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT snapshot FROM parse_stats_snapshots WHERE source = $1 ORDER BY captured_at DESC LIMIT 1`,
		source,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var snap stats.AggregatedStats
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns up to limit snapshots for source, newest first.
func (s *Store) ListSnapshots(ctx context.Context, source string, limit int) ([]stats.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT snapshot FROM parse_stats_snapshots WHERE source = $1 ORDER BY captured_at DESC LIMIT $2`,
		source, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []stats.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var snap stats.AggregatedStats
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// StartPeriodicSave snapshots agg every interval until ctx is cancelled, then
// writes one final snapshot. The returned channel closes once the goroutine
// has exited.
func StartPeriodicSave(ctx context.Context, saver Saver, source string, agg *stats.Aggregator, interval time.Duration) <-chan struct{} {
	logger := slog.Default().With("component", "stats-store", "source", source)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := saver.SaveSnapshot(ctx, source, agg.Stats()); err != nil {
					logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := saver.SaveSnapshot(shutdownCtx, source, agg.Stats()); err != nil {
					logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	logger.Info("periodic snapshot started", "interval", interval)
	return done
}
