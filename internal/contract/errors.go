package contract

import "github.com/dqsn-network/shield/internal/reasoncode"

// ValidationError is the sole error type Validate ever returns. It always
// wraps exactly one reason code — the first offending check, per the fixed
// short-circuit order.
type ValidationError struct {
	Code reasoncode.Code
}

func (e *ValidationError) Error() string {
	return string(e.Code)
}

func fail(code reasoncode.Code) *ValidationError {
	return &ValidationError{Code: code}
}
