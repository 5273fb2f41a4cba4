// Package store persists example batches in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/postgres"
)

// BatchStore records batches and their progress. The HTTP API creates and
// reads batches; the worker reports per-line outcomes.
type BatchStore interface {
	// CreateBatch inserts b. When b carries an idempotency key already in
	// use, the existing batch is returned with created=false.
	CreateBatch(ctx context.Context, b *submission.Batch) (stored *submission.Batch, created bool, err error)
	GetBatch(ctx context.Context, id string) (*submission.Batch, error)
	RecordLine(ctx context.Context, id string, failed bool) error
	SetStatus(ctx context.Context, id, status string) error
}

// PostgresStore implements BatchStore on the example_batches table.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "batch-store"),
	}
}

const batchColumns = `id, COALESCE(idempotency_key, ''), status, hash_seed, hash_strategy,
	total_lines, processed_lines, failed_lines, created_at, updated_at`

func (s *PostgresStore) CreateBatch(ctx context.Context, b *submission.Batch) (*submission.Batch, bool, error) {
	if b.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, b.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			s.logger.Info("duplicate submission detected",
				"idempotency_key", b.IdempotencyKey,
				"existing_id", existing.ID,
			)
			return existing, false, nil
		}
	}

	stored := *b
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO example_batches (id, idempotency_key, status, hash_seed, hash_strategy, total_lines)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING created_at, updated_at`,
			b.ID, postgres.NullableString(b.IdempotencyKey), b.Status, int64(b.HashSeed), b.HashStrategy, b.TotalLines,
		).Scan(&stored.CreatedAt, &stored.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already in use")
		}
		if postgres.IsUniqueViolation(err) {
			return apperrors.New(apperrors.ErrIdempotencyConflict, 409, "batch already exists")
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("inserting batch: %w", err)
	}
	return &stored, true, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*submission.Batch, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM example_batches WHERE id = $1`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, apperrors.ErrBatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch %s: %w", id, err)
	}
	return b, nil
}

// RecordLine counts one processed line and moves the batch to COMPLETED once
// every line is accounted for.
func (s *PostgresStore) RecordLine(ctx context.Context, id string, failed bool) error {
	failedInc := 0
	if failed {
		failedInc = 1
	}
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE example_batches
		SET processed_lines = processed_lines + 1,
		    failed_lines = failed_lines + $2,
		    status = CASE WHEN processed_lines + 1 >= total_lines THEN $3 ELSE $4 END,
		    updated_at = now()
		WHERE id = $1`,
		id, failedInc, submission.StatusCompleted, submission.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("recording line for batch %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE example_batches SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("setting status of batch %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *PostgresStore) findByIdempotencyKey(ctx context.Context, key string) (*submission.Batch, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM example_batches WHERE idempotency_key = $1`, key)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	return b, nil
}

func scanBatch(row *sql.Row) (*submission.Batch, error) {
	var b submission.Batch
	var seed int64
	err := row.Scan(&b.ID, &b.IdempotencyKey, &b.Status, &seed, &b.HashStrategy,
		&b.TotalLines, &b.ProcessedLines, &b.FailedLines, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.HashSeed = uint64(seed)
	return &b, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("batch %s: %w", id, apperrors.ErrBatchNotFound)
	}
	return nil
}

var _ BatchStore = (*PostgresStore)(nil)
