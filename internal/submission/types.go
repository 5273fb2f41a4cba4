// Package submission defines the request/response types and Kafka event
// schemas of the example submission pipeline: HTTP callers submit batches of
// raw lines, workers featurize them, and batch rows in Postgres track
// progress.
package submission

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
)

// Batch statuses.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// ParseRequest is the body of POST /api/v1/parse. Seed and Strategy override
// the server defaults; SkipInvalid overrides the configured error policy.
type ParseRequest struct {
	Lines       []string `json:"lines"`
	Seed        *uint64  `json:"seed,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
	SkipInvalid *bool    `json:"skip_invalid,omitempty"`
}

// LineError describes a line that failed to parse. Token is set for
// malformed numbers.
type LineError struct {
	Line  int    `json:"line"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
	Token string `json:"token,omitempty"`
}

// ParseResponse has one entry per input line; failed lines are null in
// Examples and described in Errors.
type ParseResponse struct {
	Examples []*featurize.Featurized `json:"examples"`
	Errors   []LineError             `json:"errors,omitempty"`
}

// SubmitRequest is the body of POST /api/v1/examples.
type SubmitRequest struct {
	Lines          []string `json:"lines"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

// SubmitResponse is returned once a batch is recorded and its lines queued.
type SubmitResponse struct {
	BatchID    string `json:"batch_id"`
	Status     string `json:"status"`
	TotalLines int    `json:"total_lines"`
}

// Batch is the persisted state of a submitted batch.
type Batch struct {
	ID             string    `json:"id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Status         string    `json:"status"`
	HashSeed       uint64    `json:"hash_seed"`
	HashStrategy   string    `json:"hash_strategy"`
	TotalLines     int       `json:"total_lines"`
	ProcessedLines int       `json:"processed_lines"`
	FailedLines    int       `json:"failed_lines"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HashRequest is the body of POST /api/v1/hash.
type HashRequest struct {
	Value string `json:"value"`
	Seed  uint64 `json:"seed"`
}

// HashResponse carries the hash of HashRequest.Value.
type HashResponse struct {
	Hash uint64 `json:"hash"`
}

// RawLineEvent is published to the raw examples topic, one per submitted
// line. LineNo is 1-based within the batch.
type RawLineEvent struct {
	BatchID      string    `json:"batch_id"`
	LineNo       int       `json:"line_no"`
	Line         string    `json:"line"`
	HashSeed     uint64    `json:"hash_seed"`
	HashStrategy string    `json:"hash_strategy"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// FeaturizedEvent is published by the worker for each line that parsed.
type FeaturizedEvent struct {
	BatchID     string               `json:"batch_id"`
	LineNo      int                  `json:"line_no"`
	Example     featurize.Featurized `json:"example"`
	ProcessedAt time.Time            `json:"processed_at"`
}

// DeadLetterEvent is published by the worker for each line that failed.
type DeadLetterEvent struct {
	BatchID  string    `json:"batch_id"`
	LineNo   int       `json:"line_no"`
	Line     string    `json:"line"`
	Kind     string    `json:"kind"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
