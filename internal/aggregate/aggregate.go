package aggregate

import (
	"slices"
	"sort"

	"github.com/dqsn-network/shield/internal/canon"
	"github.com/dqsn-network/shield/internal/contract"
	"github.com/dqsn-network/shield/internal/reasoncode"
)

const (
	component       = "dqsn"
	contractVersion = 3
)

// Tier thresholds fixed by the contract; see spec §4.4/§8 boundary table.
const (
	tierMediumAt   = 0.25
	tierHighAt     = 0.60
	tierCriticalAt = 0.85
)

// Aggregate runs the full aggregation pipeline (Steps A-I) over a validated
// request and returns the response envelope.
func Aggregate(req *contract.Request) Response {
	// Step A — component & version gate.
	if req.ContractVersion != contractVersion {
		return ErrorResponse(req.RequestID, reasoncode.ErrSchemaVersion)
	}
	if req.Component != component {
		return ErrorResponse(req.RequestID, reasoncode.ErrComponentMismatch)
	}

	// Step B — stable ordering by (context_hash, component, request_id).
	// Ties are broken by the rest of the stable view (decision, score, tier,
	// reason codes), so the dedup winner never depends on input order.
	sorted := make([]contract.Signal, len(req.Signals))
	copy(sorted, req.Signals)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ContextHash != b.ContextHash {
			return a.ContextHash < b.ContextHash
		}
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		if a.RequestID != b.RequestID {
			return a.RequestID < b.RequestID
		}
		if a.Decision != b.Decision {
			return a.Decision < b.Decision
		}
		if a.Risk.Score != b.Risk.Score {
			return a.Risk.Score < b.Risk.Score
		}
		if a.Risk.Tier != b.Risk.Tier {
			return a.Risk.Tier < b.Risk.Tier
		}
		return slices.Compare(a.ReasonCodes, b.ReasonCodes) < 0
	})

	// Step C — dedup: first occurrence of each context_hash wins.
	seen := make(map[string]struct{}, len(sorted))
	kept := make([]contract.Signal, 0, len(sorted))
	for _, s := range sorted {
		if _, ok := seen[s.ContextHash]; ok {
			continue
		}
		seen[s.ContextHash] = struct{}{}
		kept = append(kept, s)
	}

	// Step D — monotone severity rollup.
	decision, rolledUpFromUpstreamError := rollupDecision(kept)
	if rolledUpFromUpstreamError {
		// No outcome reason code corresponds to an aggregated upstream
		// ERROR decision; the closed reason-code set's universal
		// fail-closed catch-all covers it instead (see design notes).
		return ErrorResponse(req.RequestID, reasoncode.ErrInvalidRequest)
	}

	// Step E — risk rollup.
	score := maxScore(kept)
	tier := tierFromScore(score)

	// Step G — stable evidence views. Step F below reads the upstream
	// reason codes from the kept signals, not from these views.
	views := make([]SignalView, len(kept))
	for i, s := range kept {
		views[i] = stableView(s)
	}

	// Step F — reason code synthesis.
	reasonCodes := synthesizeReasonCodes(decision, kept)

	// Step H — context hash over the full decision-carrying state.
	ctxHash, err := successContextHash(req.RequestID, views, decision, score, tier)
	if err != nil {
		// A canonicalization failure here means some signal carried a
		// non-JSON-representable value that slipped past validation;
		// fail closed rather than return a malformed hash.
		return ErrorResponse(req.RequestID, reasoncode.ErrInvalidRequest)
	}

	return Response{
		ContractVersion: contractVersion,
		Component:       component,
		RequestID:       req.RequestID,
		ContextHash:     ctxHash,
		Decision:        decision,
		Risk:            RiskView{Score: score, Tier: tier},
		ReasonCodes:     reasonCodes,
		Evidence: Evidence{
			Dedup: &DedupStats{
				InputSignals:  len(req.Signals),
				UniqueSignals: len(kept),
			},
			Signals: views,
		},
		Meta: Meta{LatencyMs: 0, FailClosed: true},
	}
}

// ErrorResponse builds the fail-closed ERROR envelope for codes, the sole
// shape used both for validator failures (see internal/dqsn) and for the
// gate/rollup failures raised directly within Aggregate. component and
// contract_version are always the assembler's own identity, never echoed
// from the request; request_id is echoed (best-effort) by the caller.
func ErrorResponse(requestID string, codes ...reasoncode.Code) Response {
	codeStrs := make([]string, len(codes))
	for i, c := range codes {
		codeStrs[i] = string(c)
	}

	ctxHash, err := errorContextHash(requestID, codeStrs)
	if err != nil {
		ctxHash = ""
	}

	return Response{
		ContractVersion: contractVersion,
		Component:       component,
		RequestID:       requestID,
		ContextHash:     ctxHash,
		Decision:        "ERROR",
		Risk:            RiskView{Score: 1.0, Tier: "CRITICAL"},
		ReasonCodes:     codeStrs,
		Evidence: Evidence{
			Details: &ErrorDetails{Error: codeStrs},
		},
		Meta: Meta{LatencyMs: 0, FailClosed: true},
	}
}

// rollupDecision applies the monotone severity rule ERROR > BLOCK >
// WARN(->ESCALATE) > ALLOW over the kept set's upstream decision
// vocabulary. The second return value reports whether the result came from
// an upstream-declared ERROR, which has no outcome reason code of its own.
func rollupDecision(kept []contract.Signal) (string, bool) {
	var hasError, hasBlock, hasWarn bool
	for _, s := range kept {
		switch s.Decision {
		case "ERROR":
			hasError = true
		case "BLOCK":
			hasBlock = true
		case "WARN":
			hasWarn = true
		}
	}
	switch {
	case hasError:
		return "ERROR", true
	case hasBlock:
		return "BLOCK", false
	case hasWarn:
		return "ESCALATE", false
	default:
		return "ALLOW", false
	}
}

func maxScore(kept []contract.Signal) float64 {
	var max float64
	for _, s := range kept {
		if s.Risk.Score > max {
			max = s.Risk.Score
		}
	}
	return max
}

// tierFromScore maps a risk score to a tier using the contract-fixed
// thresholds {0.25, 0.60, 0.85}.
func tierFromScore(score float64) string {
	switch {
	case score < tierMediumAt:
		return "LOW"
	case score < tierHighAt:
		return "MEDIUM"
	case score < tierCriticalAt:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

func outcomeCode(decision string) reasoncode.Code {
	switch decision {
	case "ALLOW":
		return reasoncode.OKAllow
	case "ESCALATE":
		return reasoncode.EscalateWarn
	case "BLOCK":
		return reasoncode.DenyBlock
	default:
		return reasoncode.ErrInvalidRequest
	}
}

// synthesizeReasonCodes emits, in order: the outcome code; then
// DQSN_OK_SIGNAL_AGGREGATED if the kept set is non-empty; then a
// sorted-unique suffix of upstream reason codes (resolved Open Question:
// included).
func synthesizeReasonCodes(decision string, kept []contract.Signal) []string {
	out := make([]string, 0, 2+len(kept))
	out = append(out, string(outcomeCode(decision)))
	if len(kept) > 0 {
		out = append(out, string(reasoncode.OKSignalAggregated))
	}
	out = append(out, sortedUniqueUpstreamCodes(kept)...)
	return out
}

func sortedUniqueUpstreamCodes(kept []contract.Signal) []string {
	set := make(map[string]struct{})
	for _, s := range kept {
		for _, c := range s.ReasonCodes {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func stableView(s contract.Signal) SignalView {
	codes := append([]string(nil), s.ReasonCodes...)
	return SignalView{
		Component:   s.Component,
		RequestID:   s.RequestID,
		ContextHash: s.ContextHash,
		Decision:    s.Decision,
		Risk:        RiskView{Score: s.Risk.Score, Tier: s.Risk.Tier},
		ReasonCodes: codes,
	}
}

func signalViewObject(v SignalView) *canon.Object {
	return canon.NewObject().
		Set("component", v.Component).
		Set("request_id", v.RequestID).
		Set("context_hash", v.ContextHash).
		Set("decision", v.Decision).
		Set("risk", canon.NewObject().Set("score", v.Risk.Score).Set("tier", v.Risk.Tier)).
		Set("reason_codes", stringsToAny(v.ReasonCodes))
}

func stringsToAny(ss []string) *canon.Array {
	arr := canon.NewArray()
	for _, s := range ss {
		arr.Append(s)
	}
	return arr
}

// successContextHash implements Step H: hash of {component, contract_version,
// request_id, signals:[stable view...], decision, risk:{score,tier}}.
func successContextHash(requestID string, views []SignalView, decision string, score float64, tier string) (string, error) {
	signalsArr := canon.NewArray()
	for _, v := range views {
		signalsArr.Append(signalViewObject(v))
	}
	obj := canon.NewObject().
		Set("component", component).
		Set("contract_version", contractVersion).
		Set("request_id", requestID).
		Set("signals", signalsArr).
		Set("decision", decision).
		Set("risk", canon.NewObject().Set("score", score).Set("tier", tier))
	return canon.SHA256Hex(obj)
}

// errorContextHash implements the reduced ERROR context:
// {component, contract_version, request_id, reason_codes}.
func errorContextHash(requestID string, codes []string) (string, error) {
	obj := canon.NewObject().
		Set("component", component).
		Set("contract_version", contractVersion).
		Set("request_id", requestID).
		Set("reason_codes", stringsToAny(codes))
	return canon.SHA256Hex(obj)
}
