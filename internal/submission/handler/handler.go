// Package handler serves the featurizer HTTP API: synchronous parsing,
// hashing, and asynchronous batch submission.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/tracing"
)

// maxBodyBytes caps request bodies regardless of line limits.
const maxBodyBytes = 64 << 20

// Submitter queues batches and reports their progress.
type Submitter interface {
	Submit(ctx context.Context, req *submission.SubmitRequest) (*submission.SubmitResponse, error)
	Batch(ctx context.Context, id string) (*submission.Batch, error)
}

// Config holds the request-independent settings of the handler.
type Config struct {
	Parser  parser.Options
	Workers int
	Policy  featurize.Policy
	Limits  validator.Limits
	// Observer receives every parse outcome; nil disables it.
	Observer featurize.Observer
}

type Handler struct {
	cfg       Config
	base      featurize.LineParser
	submitter Submitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. base parses lines that use the configured seed and
// strategy (typically the parse cache); submitter may be nil when Kafka and
// Postgres are not configured, which disables the batch endpoints. m may be
// nil.
func New(cfg Config, base featurize.LineParser, submitter Submitter, m *metrics.Metrics) *Handler {
	if base == nil {
		base = featurize.Direct(parser.New(cfg.Parser))
	}
	return &Handler{
		cfg:       cfg,
		base:      base,
		submitter: submitter,
		metrics:   m,
		logger:    slog.Default().With("component", "featurizer-handler"),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/parse", h.Parse)
	mux.HandleFunc("POST /api/v1/hash", h.Hash)
	mux.HandleFunc("POST /api/v1/examples", h.Submit)
	mux.HandleFunc("GET /api/v1/batches/{id}", h.GetBatch)
}

// Parse featurizes the request's lines synchronously.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req submission.ParseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateParseRequest(&req, h.cfg.Limits); err != nil {
		h.writeValidationError(w, err)
		return
	}

	lp, err := h.lineParser(&req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), apperrors.Kind(err))
		return
	}
	policy := h.cfg.Policy
	if req.SkipInvalid != nil {
		policy = featurize.FailFast
		if *req.SkipInvalid {
			policy = featurize.SkipInvalid
		}
	}

	ctx, span := tracing.StartSpan(ctx, "parse", logger.RequestID(ctx))
	span.SetAttr("lines", len(req.Lines))
	f := featurize.New(lp, featurize.Options{
		Workers:  h.cfg.Workers,
		Policy:   policy,
		Source:   "http",
		Metrics:  h.metrics,
		Observer: h.cfg.Observer,
	})
	start := time.Now()
	results, err := f.Batch(ctx, req.Lines)
	span.End()
	span.Log(log)

	if err != nil {
		var lineErr *featurize.LineError
		if errors.As(err, &lineErr) {
			log.Info("parse rejected", "line", lineErr.Line, "kind", apperrors.Kind(err))
			body := toLineError(lineErr.Line, lineErr.Err)
			h.writeJSON(w, statusFor(lineErr.Err), body)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(apperrors.ErrTimeout, err)
		}
		log.Error("parse failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "parse failed", apperrors.Kind(err))
		return
	}

	resp := submission.ParseResponse{Examples: make([]*featurize.Featurized, len(results))}
	for i, res := range results {
		if res.Err != nil {
			resp.Errors = append(resp.Errors, toLineError(res.Line, res.Err))
			continue
		}
		wire := featurize.FromExample(res.Example)
		resp.Examples[i] = &wire
	}
	log.Debug("lines parsed",
		"lines", len(req.Lines),
		"failed", len(resp.Errors),
		"elapsed", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Hash returns the hash of a single string.
func (h *Handler) Hash(w http.ResponseWriter, r *http.Request) {
	var req submission.HashRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateHashRequest(&req, h.cfg.Limits); err != nil {
		h.writeValidationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, submission.HashResponse{Hash: hasher.HashString(req.Value, req.Seed)})
}

// Submit records a batch and queues its lines for the workers.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if h.submitter == nil {
		h.writeError(w, http.StatusServiceUnavailable, "batch submission is not configured", "")
		return
	}

	var req submission.SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if err := validator.ValidateSubmitRequest(&req, h.cfg.Limits); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.submitter.Submit(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("submission failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "submission failed", apperrors.Kind(err))
		return
	}
	log.Info("batch submitted",
		"batch_id", resp.BatchID,
		"lines", resp.TotalLines,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// GetBatch reports a batch's progress.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		h.writeError(w, http.StatusServiceUnavailable, "batch submission is not configured", "")
		return
	}
	id := r.PathValue("id")
	batch, err := h.submitter.Batch(r.Context(), id)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		if statusCode >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("batch lookup failed", "batch_id", id, "error", err)
		}
		h.writeError(w, statusCode, err.Error(), apperrors.Kind(err))
		return
	}
	h.writeJSON(w, http.StatusOK, batch)
}

// lineParser picks the cached base parser when the request keeps the
// configured hashing options, and a fresh uncached parser otherwise.
func (h *Handler) lineParser(req *submission.ParseRequest) (featurize.LineParser, error) {
	if req.Seed == nil && req.Strategy == "" {
		return h.base, nil
	}
	opts := h.cfg.Parser
	if req.Seed != nil {
		opts.HashSeed = *req.Seed
	}
	if req.Strategy != "" {
		s, err := hasher.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, err
		}
		opts.Strategy = s
	}
	return featurize.Direct(parser.New(opts)), nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_input")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_input")
		return false
	}
	return true
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"kind":   "invalid_input",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, kind string) {
	body := map[string]string{"error": message}
	if kind != "" {
		body["kind"] = kind
	}
	h.writeJSON(w, status, body)
}

func toLineError(line int, err error) submission.LineError {
	le := submission.LineError{
		Line:  line,
		Kind:  apperrors.Kind(err),
		Error: err.Error(),
	}
	var mn *parser.MalformedNumberError
	if errors.As(err, &mn) {
		le.Token = mn.Token
	}
	return le
}

// statusFor maps a line failure to a response status. Every parse failure
// is 422; oversize lines keep their 400.
func statusFor(err error) int {
	if apperrors.IsParseError(err) {
		return http.StatusUnprocessableEntity
	}
	return apperrors.HTTPStatusCode(err)
}
