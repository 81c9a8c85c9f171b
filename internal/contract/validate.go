package contract

import (
	"math"
	"strings"

	"github.com/dqsn-network/shield/internal/canon"
	"github.com/dqsn-network/shield/internal/reasoncode"
)

// Validate parses and structurally validates a raw, untyped request tree
// (as produced by decoding JSON into map[string]any/[]any/string/float64/
// bool/nil). Each failure produces exactly one ValidationError. The checks
// run in a fixed order and stop at the first failure — later
// implementations must preserve this order, since downstream tests assert
// on which reason code fires for a given malformed input.
func Validate(raw any) (*Request, *ValidationError) {
	// 1. Request is a mapping.
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fail(reasoncode.ErrInvalidRequest)
	}

	// 2. Every top-level key is in the allowed set.
	for k := range m {
		if _, ok := allowedTopLevelKeys[k]; !ok {
			return nil, fail(reasoncode.ErrUnknownTopLevelKey)
		}
	}

	// 3. contract_version is integer (booleans disallowed).
	contractVersion, ok := asInteger(m["contract_version"])
	if !ok {
		return nil, fail(reasoncode.ErrSchemaVersion)
	}

	// 4. component is non-empty string.
	component, ok := asNonEmptyTrimmedString(m["component"])
	if !ok {
		return nil, fail(reasoncode.ErrInvalidRequest)
	}

	// 5. request_id is non-empty string.
	requestID, ok := asNonEmptyTrimmedString(m["request_id"])
	if !ok {
		return nil, fail(reasoncode.ErrInvalidRequest)
	}

	// 6. signals present and is a sequence.
	signalsRaw, present := m["signals"]
	if !present {
		return nil, fail(reasoncode.ErrSignalsRequired)
	}
	signalsArr, ok := signalsRaw.([]any)
	if !ok {
		return nil, fail(reasoncode.ErrSignalsRequired)
	}

	// 7. |signals| <= 256.
	if len(signalsArr) > MaxSignals {
		return nil, fail(reasoncode.ErrSignalTooMany)
	}

	// 8. Canonical-JSON byte size of the request <= 500000.
	encoded, err := canon.Marshal(m)
	if err != nil {
		// The encoder refuses NaN/Inf; report those as BAD_NUMBER, the
		// same code check 9 gives them.
		if verr := checkNumericHygiene(m); verr != nil {
			return nil, verr
		}
		return nil, fail(reasoncode.ErrInvalidRequest)
	}
	if len(encoded) > MaxPayloadBytes {
		return nil, fail(reasoncode.ErrPayloadTooLarge)
	}

	// 9. Whole-tree numeric hygiene.
	if verr := checkNumericHygiene(m); verr != nil {
		return nil, verr
	}

	// 10. Per-signal validation, in order; first offender wins.
	signals := make([]Signal, 0, len(signalsArr))
	for _, s := range signalsArr {
		sig, verr := validateSignal(s)
		if verr != nil {
			return nil, verr
		}
		signals = append(signals, *sig)
	}

	// 11. constraints (if present) is a mapping; parse max_latency_ms.
	constraintsRaw, hasConstraints := m["constraints"]
	constraints, verr := validateConstraints(constraintsRaw, hasConstraints)
	if verr != nil {
		return nil, verr
	}

	return &Request{
		ContractVersion: contractVersion,
		Component:       component,
		RequestID:       requestID,
		Signals:         signals,
		Constraints:     constraints,
	}, nil
}

func validateConstraints(raw any, present bool) (Constraints, *ValidationError) {
	out := Constraints{MaxLatencyMs: DefaultMaxLatencyMs, FailClosed: true}
	if !present {
		return out, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Constraints{}, fail(reasoncode.ErrInvalidRequest)
	}
	if v, ok := m["max_latency_ms"]; ok {
		n, ok := asInteger(v)
		if !ok {
			return Constraints{}, fail(reasoncode.ErrInvalidRequest)
		}
		out.MaxLatencyMs = clampInt(n, MinMaxLatencyMs, MaxMaxLatencyMs)
	}
	// Any other key in constraints is simply unrecognized, not rejected:
	// only max_latency_ms is a recognized option (spec.md §3).
	return out, nil
}

func validateSignal(raw any) (*Signal, *ValidationError) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}

	var missing, extra []string
	for k := range requiredSignalKeys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range m {
		if _, ok := requiredSignalKeys[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) > 0 {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}
	if len(extra) > 0 {
		return nil, fail(reasoncode.ErrUnknownSignalKey)
	}

	contractVersion, ok := asInteger(m["contract_version"])
	if !ok || contractVersion != 3 {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}

	component, ok := asNonEmptyTrimmedString(m["component"])
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}
	requestID, ok := asNonEmptyTrimmedString(m["request_id"])
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}
	contextHash, ok := asNonEmptyTrimmedString(m["context_hash"])
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}

	decisionRaw, ok := asNonEmptyTrimmedString(m["decision"])
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}
	decision := strings.ToUpper(decisionRaw)
	if _, ok := AllowedDecisions[decision]; !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}

	risk, verr := validateRisk(m["risk"])
	if verr != nil {
		return nil, verr
	}

	reasonCodes, verr := validateReasonCodes(m["reason_codes"])
	if verr != nil {
		return nil, verr
	}

	evidence, ok := m["evidence"].(map[string]any)
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}

	meta, verr := validateMeta(m["meta"])
	if verr != nil {
		return nil, verr
	}

	return &Signal{
		ContractVersion: contractVersion,
		Component:       component,
		RequestID:       requestID,
		ContextHash:     contextHash,
		Decision:        decision,
		Risk:            risk,
		ReasonCodes:     reasonCodes,
		Evidence:        evidence,
		Meta:            meta,
	}, nil
}

func validateRisk(raw any) (Risk, *ValidationError) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 2 {
		return Risk{}, fail(reasoncode.ErrSignalInvalid)
	}
	scoreRaw, hasScore := m["score"]
	tierRaw, hasTier := m["tier"]
	if !hasScore || !hasTier {
		return Risk{}, fail(reasoncode.ErrSignalInvalid)
	}

	score, ok := asFiniteNumber(scoreRaw)
	if !ok || score < 0.0 || score > 1.0 {
		return Risk{}, fail(reasoncode.ErrSignalInvalid)
	}

	tierStr, ok := tierRaw.(string)
	if !ok {
		return Risk{}, fail(reasoncode.ErrSignalInvalid)
	}
	tier := strings.ToUpper(strings.TrimSpace(tierStr))
	if _, ok := AllowedTiers[tier]; !ok {
		return Risk{}, fail(reasoncode.ErrSignalInvalid)
	}

	return Risk{Score: score, Tier: tier}, nil
}

func validateReasonCodes(raw any) ([]string, *ValidationError) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}
	if len(arr) > MaxReasonCodes {
		return nil, fail(reasoncode.ErrSignalInvalid)
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		s, ok := v.(string)
		if !ok || s == "" || len(s) > MaxReasonCodeLen {
			return nil, fail(reasoncode.ErrSignalInvalid)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateMeta(raw any) (Meta, *ValidationError) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Meta{}, fail(reasoncode.ErrSignalInvalid)
	}
	for k := range m {
		if k != "fail_closed" {
			return Meta{}, fail(reasoncode.ErrSignalInvalid)
		}
	}
	out := Meta{}
	if v, ok := m["fail_closed"]; ok {
		b, ok := v.(bool)
		if !ok {
			return Meta{}, fail(reasoncode.ErrSignalInvalid)
		}
		out.FailClosed = &b
	}
	return out, nil
}

// checkNumericHygiene walks the whole request tree iteratively, rejecting
// any non-finite number and enforcing the node cap. Go map keys decoded
// from JSON are always strings, so the "non-string object key" failure
// mode from the contract has no reachable case in this representation.
func checkNumericHygiene(root any) *ValidationError {
	stack := make([]any, 0, 64)
	stack = append(stack, root)
	nodes := 0
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nodes++
		if nodes > MaxTraversalNodes {
			return fail(reasoncode.ErrPayloadTooLarge)
		}

		switch t := v.(type) {
		case map[string]any:
			for _, vv := range t {
				stack = append(stack, vv)
			}
		case []any:
			stack = append(stack, t...)
		case float64:
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return fail(reasoncode.ErrBadNumber)
			}
		case float32:
			if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
				return fail(reasoncode.ErrBadNumber)
			}
		case string, bool, nil, int, int32, int64:
			// Finite by construction.
		default:
			return fail(reasoncode.ErrInvalidRequest)
		}
	}
	return nil
}

func asInteger(v any) (int, bool) {
	switch t := v.(type) {
	case bool:
		return 0, false
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}

func asFiniteNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case bool:
		return 0, false
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func asNonEmptyTrimmedString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
