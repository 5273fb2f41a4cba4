package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// MemoryStore is an in-process BatchStore for local runs without Postgres
// and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]*submission.Batch
	byKey   map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]*submission.Batch),
		byKey:   make(map[string]string),
	}
}

func (m *MemoryStore) CreateBatch(_ context.Context, b *submission.Batch) (*submission.Batch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.IdempotencyKey != "" {
		if id, ok := m.byKey[b.IdempotencyKey]; ok {
			existing := *m.batches[id]
			return &existing, false, nil
		}
	}
	if _, ok := m.batches[b.ID]; ok {
		return nil, false, apperrors.New(apperrors.ErrIdempotencyConflict, 409, "batch already exists")
	}
	stored := *b
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	m.batches[b.ID] = &stored
	if b.IdempotencyKey != "" {
		m.byKey[b.IdempotencyKey] = b.ID
	}
	out := stored
	return &out, true, nil
}

func (m *MemoryStore) GetBatch(_ context.Context, id string) (*submission.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, apperrors.ErrBatchNotFound)
	}
	out := *b
	return &out, nil
}

func (m *MemoryStore) RecordLine(_ context.Context, id string, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, apperrors.ErrBatchNotFound)
	}
	b.ProcessedLines++
	if failed {
		b.FailedLines++
	}
	if b.ProcessedLines >= b.TotalLines {
		b.Status = submission.StatusCompleted
	} else {
		b.Status = submission.StatusProcessing
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, apperrors.ErrBatchNotFound)
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	return nil
}

var _ BatchStore = (*MemoryStore)(nil)
