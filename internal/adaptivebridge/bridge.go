// Package adaptivebridge re-shapes a Shield Contract v3 response into the
// event format the downstream adaptive-event pipeline expects, exactly as
// original_source/dqsnetwork/adaptive_bridge.py's
// build_adaptive_event_from_score does. This package is explicitly
// **outside** the deterministic core (spec §1 lists it as an out-of-scope
// collaborator, "simple field re-shaping for downstream emission"): it
// calls time.Now() and generates a fresh event identity, so it is never
// invoked from internal/dqsn.Evaluate and never affects a contract
// decision.
package adaptivebridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/dqsn-network/shield/internal/aggregate"
)

// AdaptiveEvent is the normalised shape DQSN sends into the downstream
// adaptive pipeline. Field names and semantics are carried over from the
// Python AdaptiveEvent dataclass; EventID and CreatedAt are the event's only
// non-deterministic fields.
type AdaptiveEvent struct {
	EventID     string         `json:"event_id"`
	Layer       string         `json:"layer"`
	AnomalyType string         `json:"anomaly_type"`
	Fingerprint string         `json:"fingerprint"`
	Severity    float64        `json:"severity"`
	Score       float64        `json:"score"`
	Decision    string         `json:"decision"`
	ContextHash string         `json:"context_hash"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// severityFromTier maps the contract's four-value tier enum onto the
// adaptive pipeline's continuous 0..1 severity scale. LOW, MEDIUM and HIGH
// map to the midpoint of their score band from spec §4.4/§8 (LOW [0,0.25),
// MEDIUM [0.25,0.60), HIGH [0.60,0.85)); CRITICAL [0.85,1.0] maps to 0.95.
func severityFromTier(tier string) float64 {
	switch tier {
	case "LOW":
		return 0.125
	case "MEDIUM":
		return 0.425
	case "HIGH":
		return 0.725
	case "CRITICAL":
		return 0.95
	default:
		return 0.0
	}
}

// FromResponse builds an AdaptiveEvent from a dqsn Response. fingerprint
// groups related events for the downstream pipeline; an empty fingerprint
// defaults to "dqsn:global", mirroring the Python helper's default.
func FromResponse(resp aggregate.Response, fingerprint string, metadata map[string]any) AdaptiveEvent {
	if fingerprint == "" {
		fingerprint = "dqsn:global"
	}

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["dqsn_request_id"] = resp.RequestID
	meta["dqsn_reason_codes"] = resp.ReasonCodes

	return AdaptiveEvent{
		EventID:     uuid.NewString(),
		Layer:       "dqsn",
		AnomalyType: "network_score",
		Fingerprint: fingerprint,
		Severity:    severityFromTier(resp.Risk.Tier),
		Score:       resp.Risk.Score,
		Decision:    resp.Decision,
		ContextHash: resp.ContextHash,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
}
