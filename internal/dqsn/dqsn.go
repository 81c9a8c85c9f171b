// Package dqsn exposes the single pure entry point of the Shield Contract
// v3 aggregation engine: Evaluate. It wires internal/contract and
// internal/aggregate together and guarantees the function never panics for
// untrusted input and never performs I/O or logging.
package dqsn

import (
	"github.com/dqsn-network/shield/internal/aggregate"
	"github.com/dqsn-network/shield/internal/contract"
	"github.com/dqsn-network/shield/internal/reasoncode"
)

// Response is the Shield Contract v3 response envelope.
type Response = aggregate.Response

// Evaluate validates and aggregates request, a raw mapping as produced by
// decoding JSON into map[string]any/[]any/string/float64/bool/nil. It is a
// pure function: no I/O, no logging, no wall-clock time, no randomness. Any
// internal fault — including an unexpected panic from a substrate
// library — is caught and remapped to DQSN_ERROR_INVALID_REQUEST so that
// nothing ever escapes this function without a fully-formed, fail-closed
// envelope.
func Evaluate(request any) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = aggregate.ErrorResponse(safeRequestID(request), reasoncode.ErrInvalidRequest)
		}
	}()

	req, verr := contract.Validate(request)
	if verr != nil {
		return aggregate.ErrorResponse(safeRequestID(request), verr.Code)
	}

	return aggregate.Aggregate(req)
}

// safeRequestID makes a best-effort attempt to extract request_id from a
// raw, possibly-malformed request tree so that error responses can still
// echo it. Falls back to the empty string when request is not even a
// mapping, or the field is missing or not a string.
func safeRequestID(request any) string {
	m, ok := request.(map[string]any)
	if !ok {
		return ""
	}
	rid, ok := m["request_id"].(string)
	if !ok {
		return ""
	}
	return rid
}
