// Package reasoncode defines the closed, contract-stable set of reason code
// identifiers for DQSN Shield Contract v3.
//
// Rules (from Shield Contract v3):
//   - A Code's string value equals its Go identifier name exactly.
//   - Codes are split into two families: Outcomes (what the aggregator
//     decided) and Errors (why it fail-closed).
//   - This set must never drift: downstream auditors pattern-match on these
//     strings, so renaming or removing one is a wire-breaking change.
package reasoncode

// Code is a contract-stable reason code string.
type Code string

// Outcome codes. Exactly one of the first three appears as the response's
// leading reason code; DQSN_OK_SIGNAL_AGGREGATED follows it whenever the
// aggregator kept at least one signal.
const (
	OKAllow            Code = "DQSN_OK_ALLOW"
	EscalateWarn       Code = "DQSN_ESCALATE_WARN"
	DenyBlock          Code = "DQSN_DENY_BLOCK"
	OKSignalAggregated Code = "DQSN_OK_SIGNAL_AGGREGATED"
)

// Error codes. Every ERROR response carries exactly one of these as its
// sole (or leading) reason code.
const (
	ErrSchemaVersion      Code = "DQSN_ERROR_SCHEMA_VERSION"
	ErrInvalidRequest     Code = "DQSN_ERROR_INVALID_REQUEST"
	ErrUnknownTopLevelKey Code = "DQSN_ERROR_UNKNOWN_TOP_LEVEL_KEY"
	ErrUnknownSignalKey   Code = "DQSN_ERROR_UNKNOWN_SIGNAL_KEY"
	ErrBadNumber          Code = "DQSN_ERROR_BAD_NUMBER"
	ErrPayloadTooLarge    Code = "DQSN_ERROR_PAYLOAD_TOO_LARGE"
	ErrSignalTooMany      Code = "DQSN_ERROR_SIGNAL_TOO_MANY"
	ErrSignalInvalid      Code = "DQSN_ERROR_SIGNAL_INVALID"
	ErrComponentMismatch  Code = "DQSN_ERROR_COMPONENT_MISMATCH"
	ErrSignalsRequired    Code = "DQSN_ERROR_SIGNALS_REQUIRED"
)

// outcomes and errors are the closed membership sets used by Valid.
var outcomes = map[Code]struct{}{
	OKAllow:            {},
	EscalateWarn:       {},
	DenyBlock:          {},
	OKSignalAggregated: {},
}

var errors = map[Code]struct{}{
	ErrSchemaVersion:      {},
	ErrInvalidRequest:     {},
	ErrUnknownTopLevelKey: {},
	ErrUnknownSignalKey:   {},
	ErrBadNumber:          {},
	ErrPayloadTooLarge:    {},
	ErrSignalTooMany:      {},
	ErrSignalInvalid:      {},
	ErrComponentMismatch:  {},
	ErrSignalsRequired:    {},
}

// IsOutcome reports whether c is one of the four outcome codes.
func (c Code) IsOutcome() bool {
	_, ok := outcomes[c]
	return ok
}

// IsError reports whether c is one of the ten error codes.
func (c Code) IsError() bool {
	_, ok := errors[c]
	return ok
}

// Valid reports whether c is a known member of either closed family.
func (c Code) Valid() bool {
	return c.IsOutcome() || c.IsError()
}

// String implements fmt.Stringer.
func (c Code) String() string {
	return string(c)
}
