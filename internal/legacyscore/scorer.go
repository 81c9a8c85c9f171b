// Package legacyscore defines the interface boundary for the legacy
// heuristic risk-scoring engine named in spec §1 and §9 ("the legacy
// heuristic risk-scoring prototype (non-deterministic, uses wall-clock
// time, not part of the contract)"). Per spec §1, this collaborator is
// "specified only at their interface": this package supplies the Go shape
// of that boundary, grounded on
// original_source/legacy/dqsn_core.py's compute_risk_score, but
// deliberately provides no implementation.
//
// A reimplementer's surrounding orchestrator may satisfy Scorer with
// whatever legacy heuristic engine it already operates; dqsnd does not
// ship one, because doing so would violate the Non-goal against
// reinterpreting upstream severity non-deterministically (spec §1). Scorer
// is never referenced by internal/dqsn, internal/contract, or
// internal/aggregate.
package legacyscore

import "time"

// BlockMetrics is the legacy engine's input shape: raw chain/network
// telemetry the heuristic scorer reduces to a single risk assessment.
// Carried over field-for-field from original_source's BlockMetrics
// dataclass.
type BlockMetrics struct {
	EntropyBitsPerByte      float64
	NonceReuseRate          float64
	SignatureRepetitionRate float64
	MempoolUtilization      float64
	ReorgDepth              int
	AvgBlockIntervalSec     float64
	AvgTxSizeBytes          int
	TaprootAdoptionRate     float64
	WindowSeconds           int
}

// RiskLevel is the legacy engine's own four-value severity vocabulary.
// Distinct from — and not comparable to — the contract's tier enum in
// internal/contract: the legacy engine is explicitly out of contract
// scope and must never be conflated with a validated upstream signal.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "normal"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the legacy engine's non-deterministic output: it
// embeds a wall-clock timestamp, which alone disqualifies it from ever
// backing a Shield Contract v3 signal.
type RiskAssessment struct {
	RiskScore         float64
	Level             RiskLevel
	RecommendedAction string
	TimestampUTC      time.Time
	Details           map[string]any
}

// Scorer is the interface boundary for the out-of-scope legacy engine.
// dqsnd supplies no implementation; a reimplementer's orchestrator wires
// in its own heuristic engine behind this interface if it needs one.
type Scorer interface {
	// ComputeRiskScore reduces raw block/network telemetry to a risk
	// assessment. Implementations are explicitly permitted to use
	// wall-clock time and need not be deterministic or reproducible —
	// unlike every other component in this repository.
	ComputeRiskScore(m BlockMetrics) (RiskAssessment, error)
}
