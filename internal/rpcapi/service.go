// Package rpcapi exposes parsing and hashing as FeatureService methods on
// the JSON-over-TCP RPC server.
package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/rpc"
)

type Config struct {
	Parser   parser.Options
	Workers  int
	Limits   validator.Limits
	Observer featurize.Observer
	// Timeout bounds a single Parse call; zero leaves only the caller's deadline.
	Timeout time.Duration
}

type Service struct {
	cfg     Config
	base    featurize.LineParser
	checker *health.Checker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the service. base may be nil, as for the HTTP handler;
// checker may be nil, in which case Health always reports SERVING.
func New(cfg Config, base featurize.LineParser, checker *health.Checker, m *metrics.Metrics) *Service {
	if base == nil {
		base = featurize.Direct(parser.New(cfg.Parser))
	}
	return &Service{
		cfg:     cfg,
		base:    base,
		checker: checker,
		metrics: m,
		logger:  slog.Default().With("component", "feature-service"),
	}
}

// Register adds the FeatureService methods to srv.
func (s *Service) Register(srv *rpc.Server) {
	srv.Register(proto.MethodParse, s.handleParse)
	srv.Register(proto.MethodHash, s.handleHash)
	srv.Register(proto.MethodHealth, s.handleHealth)
}

func (s *Service) handleParse(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.ParseRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return s.Parse(ctx, &req)
}

// Parse featurizes req.Lines. Without SkipInvalid the first failing line is
// returned as the error.
func (s *Service) Parse(ctx context.Context, req *proto.ParseRequest) (*proto.ParseResponse, error) {
	check := submission.ParseRequest{Lines: req.Lines, Seed: req.Seed, Strategy: req.Strategy}
	if err := validator.ValidateParseRequest(&check, s.cfg.Limits); err != nil {
		return nil, err
	}
	lp, err := s.lineParser(req)
	if err != nil {
		return nil, err
	}
	policy := featurize.FailFast
	if req.SkipInvalid {
		policy = featurize.SkipInvalid
	}

	f := featurize.New(lp, featurize.Options{
		Workers:  s.cfg.Workers,
		Policy:   policy,
		Source:   "rpc",
		Metrics:  s.metrics,
		Observer: s.cfg.Observer,
	})
	start := time.Now()
	var results []featurize.Result
	err = resilience.WithTimeout(ctx, s.cfg.Timeout, "rpc-parse", func(ctx context.Context) error {
		var err error
		results, err = f.Batch(ctx, req.Lines)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrTimeout) {
			err = errors.Join(apperrors.ErrTimeout, err)
		}
		return nil, err
	}

	resp := &proto.ParseResponse{Examples: make([]*proto.Example, len(results))}
	for i, res := range results {
		if res.Err != nil {
			resp.Errors = append(resp.Errors, toLineError(res.Line, res.Err))
			continue
		}
		resp.Examples[i] = toProto(res.Example)
	}
	resp.LatencyMs = time.Since(start).Milliseconds()
	s.logger.Debug("rpc parse", "lines", len(req.Lines), "failed", len(resp.Errors), "latency_ms", resp.LatencyMs)
	return resp, nil
}

func (s *Service) handleHash(_ context.Context, raw json.RawMessage) (any, error) {
	var req proto.HashRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	check := submission.HashRequest{Value: req.Value, Seed: req.Seed}
	if err := validator.ValidateHashRequest(&check, s.cfg.Limits); err != nil {
		return nil, err
	}
	return proto.HashResponse{Hash: hasher.HashString(req.Value, req.Seed)}, nil
}

func (s *Service) handleHealth(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.checker == nil {
		return proto.HealthCheckResponse{Status: "SERVING"}, nil
	}
	if s.checker.Run(ctx).Status == health.StatusDown {
		return proto.HealthCheckResponse{Status: "NOT_SERVING"}, nil
	}
	return proto.HealthCheckResponse{Status: "SERVING"}, nil
}

func (s *Service) lineParser(req *proto.ParseRequest) (featurize.LineParser, error) {
	if req.Seed == nil && req.Strategy == "" {
		return s.base, nil
	}
	opts := s.cfg.Parser
	if req.Seed != nil {
		opts.HashSeed = *req.Seed
	}
	if req.Strategy != "" {
		st, err := hasher.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, err
		}
		opts.Strategy = st
	}
	return featurize.Direct(parser.New(opts)), nil
}

func toProto(ex *parser.Example) *proto.Example {
	wire := featurize.FromExample(ex)
	out := &proto.Example{
		Label:      wire.Label,
		Tag:        wire.Tag,
		Namespaces: make([]proto.Namespace, len(wire.Namespaces)),
	}
	for i, ns := range wire.Namespaces {
		feats := make([]proto.Feature, len(ns.Features))
		for j, f := range ns.Features {
			feats[j] = proto.Feature{ID: f.ID, Value: f.Value}
		}
		out.Namespaces[i] = proto.Namespace{Index: ns.Index, Features: feats}
	}
	return out
}

func toLineError(line int, err error) proto.LineError {
	le := proto.LineError{Line: line, Kind: apperrors.Kind(err), Error: err.Error()}
	var mn *parser.MalformedNumberError
	if errors.As(err, &mn) {
		le.Token = mn.Token
	}
	return le
}
