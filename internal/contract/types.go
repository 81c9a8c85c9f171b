// Package contract implements the Shield Contract v3 request parser and
// validator: a strict schema with deny-unknown-keys, numeric hygiene, and a
// fixed check order whose error-code identity is part of the external
// contract (see Validate).
package contract

// AllowedDecisions is the closed set of upstream signal decisions, each
// normalized to upper case before comparison.
var AllowedDecisions = map[string]struct{}{
	"ALLOW": {},
	"WARN":  {},
	"BLOCK": {},
	"ERROR": {},
}

// AllowedTiers is the closed set of upstream risk tiers, each normalized to
// upper case before comparison.
var AllowedTiers = map[string]struct{}{
	"LOW":      {},
	"MEDIUM":   {},
	"HIGH":     {},
	"CRITICAL": {},
}

const (
	// MaxSignals is the hard per-request cap on the number of signals.
	// A single constant: the source carried a separate "primary" and
	// "backstop" cap that always agreed; this repository keeps one.
	MaxSignals = 256

	// MaxPayloadBytes is the canonical-JSON byte size ceiling for a whole
	// request.
	MaxPayloadBytes = 500_000

	// MaxTraversalNodes bounds the whole-tree numeric-hygiene walk.
	MaxTraversalNodes = 50_000

	// MaxReasonCodes is the per-signal cap on reason_codes length.
	MaxReasonCodes = 64

	// MaxReasonCodeLen is the per-entry cap on reason_codes string length.
	MaxReasonCodeLen = 96

	// DefaultMaxLatencyMs is used when constraints.max_latency_ms is absent.
	DefaultMaxLatencyMs = 2500

	// MinMaxLatencyMs and MaxMaxLatencyMs bound constraints.max_latency_ms.
	MinMaxLatencyMs = 0
	MaxMaxLatencyMs = 60000
)

// allowedTopLevelKeys is the complete accepted shape of a request envelope.
var allowedTopLevelKeys = map[string]struct{}{
	"contract_version": {},
	"component":        {},
	"request_id":       {},
	"signals":          {},
	"constraints":      {},
}

// requiredSignalKeys is the exact key set every signal must carry, no more
// and no less.
var requiredSignalKeys = map[string]struct{}{
	"contract_version": {},
	"component":        {},
	"request_id":       {},
	"context_hash":     {},
	"decision":         {},
	"risk":             {},
	"reason_codes":     {},
	"evidence":         {},
	"meta":             {},
}

// Risk is a validated signal's risk assessment.
type Risk struct {
	Score float64
	Tier  string
}

// Meta is a validated signal's meta block. FailClosed is nil when the
// upstream signal omitted the key.
type Meta struct {
	FailClosed *bool
}

// Signal is one validated upstream signal.
type Signal struct {
	ContractVersion int
	Component       string
	RequestID       string
	ContextHash     string
	Decision        string
	Risk            Risk
	ReasonCodes     []string
	Evidence        map[string]any
	Meta            Meta
}

// Constraints is the validated, defaulted constraints block.
type Constraints struct {
	MaxLatencyMs int
	FailClosed   bool // always forced true, regardless of input
}

// Request is a fully validated, typed request envelope.
type Request struct {
	ContractVersion int
	Component       string
	RequestID       string
	Signals         []Signal
	Constraints     Constraints
}
