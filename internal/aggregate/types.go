// Package aggregate implements the Shield Contract v3 aggregation engine:
// stable ordering, first-wins dedup, monotone severity rollup, risk-tier
// mapping, reason-code synthesis, and response envelope assembly.
package aggregate

// RiskView is the risk block carried by both the response envelope and each
// signal's stable view.
type RiskView struct {
	Score float64 `json:"score"`
	Tier  string  `json:"tier"`
}

// DedupStats reports how many input signals collapsed to how many unique
// ones.
type DedupStats struct {
	InputSignals  int `json:"input_signals"`
	UniqueSignals int `json:"unique_signals"`
}

// SignalView is the stable, audit-safe projection of one kept signal: no
// evidence, no meta, no contract_version leakage.
type SignalView struct {
	Component   string   `json:"component"`
	RequestID   string   `json:"request_id"`
	ContextHash string   `json:"context_hash"`
	Decision    string   `json:"decision"`
	Risk        RiskView `json:"risk"`
	ReasonCodes []string `json:"reason_codes"`
}

// ErrorDetails carries the reason code(s) behind an ERROR response.
type ErrorDetails struct {
	Error []string `json:"error"`
}

// Evidence is a union: success responses set Dedup+Signals; ERROR responses
// set only Details.
type Evidence struct {
	Dedup   *DedupStats   `json:"dedup,omitempty"`
	Signals []SignalView  `json:"signals,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// Meta is the response's fixed determinism block.
type Meta struct {
	LatencyMs  int  `json:"latency_ms"`
	FailClosed bool `json:"fail_closed"`
}

// Response is the full Shield Contract v3 response envelope.
type Response struct {
	ContractVersion int      `json:"contract_version"`
	Component       string   `json:"component"`
	RequestID       string   `json:"request_id"`
	ContextHash     string   `json:"context_hash"`
	Decision        string   `json:"decision"`
	Risk            RiskView `json:"risk"`
	ReasonCodes     []string `json:"reason_codes"`
	Evidence        Evidence `json:"evidence"`
	Meta            Meta     `json:"meta"`
}
