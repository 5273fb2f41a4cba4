// Package proto defines the message types exchanged over the featurizer's
// JSON-over-TCP RPC layer (see pkg/rpc).
//
// The types are plain structs with JSON tags. Namespaces and features mirror
// the HTTP wire format so a response can be forwarded unchanged.
package proto

// Service method names.
const (
	MethodParse  = "FeatureService.Parse"
	MethodHash   = "FeatureService.Hash"
	MethodHealth = "FeatureService.Health"
)

// Feature is one hashed (id, value) pair.
type Feature struct {
	ID    uint64  `json:"id"`
	Value float32 `json:"value"`
}

// Namespace is a populated slot and its features.
type Namespace struct {
	Index    uint8     `json:"index"`
	Features []Feature `json:"features"`
}

// Example is a featurized line.
type Example struct {
	Label      *float32    `json:"label,omitempty"`
	Tag        *string     `json:"tag,omitempty"`
	Namespaces []Namespace `json:"namespaces"`
}

// LineError describes one line that failed to parse.
type LineError struct {
	Line  int    `json:"line"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
	Token string `json:"token,omitempty"`
}

// ParseRequest is the input to FeatureService.Parse. A nil Seed uses the
// server's configured seed; an empty Strategy uses the configured strategy.
type ParseRequest struct {
	Lines       []string `json:"lines"`
	Seed        *uint64  `json:"seed,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
	SkipInvalid bool     `json:"skip_invalid,omitempty"`
}

// ParseResponse carries one entry per input line when SkipInvalid is set
// (nil for failed lines, which are listed in Errors), otherwise one entry per
// line of a fully successful batch.
type ParseResponse struct {
	Examples  []*Example  `json:"examples"`
	Errors    []LineError `json:"errors,omitempty"`
	LatencyMs int64       `json:"latency_ms"`
}

// HashRequest is the input to FeatureService.Hash.
type HashRequest struct {
	Value string `json:"value"`
	Seed  uint64 `json:"seed"`
}

// HashResponse is the output of FeatureService.Hash.
type HashResponse struct {
	Hash uint64 `json:"hash"`
}

// HealthCheckResponse mirrors the gRPC health check statuses.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
