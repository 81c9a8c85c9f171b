package reasoncode

import "testing"

func TestCodeStringEqualsIdentifier(t *testing.T) {
	cases := map[Code]string{
		OKAllow:            "DQSN_OK_ALLOW",
		EscalateWarn:       "DQSN_ESCALATE_WARN",
		DenyBlock:          "DQSN_DENY_BLOCK",
		OKSignalAggregated: "DQSN_OK_SIGNAL_AGGREGATED",
		ErrSchemaVersion:   "DQSN_ERROR_SCHEMA_VERSION",
		ErrBadNumber:       "DQSN_ERROR_BAD_NUMBER",
	}
	for code, want := range cases {
		if string(code) != want {
			t.Errorf("code %v: want string %q, got %q", code, want, string(code))
		}
	}
}

func TestValidPartitionsOutcomesAndErrors(t *testing.T) {
	if !OKAllow.IsOutcome() || OKAllow.IsError() {
		t.Error("OKAllow should be an outcome, not an error")
	}
	if !ErrBadNumber.IsError() || ErrBadNumber.IsOutcome() {
		t.Error("ErrBadNumber should be an error, not an outcome")
	}
	if Code("DQSN_NOT_A_REAL_CODE").Valid() {
		t.Error("unknown code should not be valid")
	}
}

func TestAllDeclaredCodesAreValid(t *testing.T) {
	all := []Code{
		OKAllow, EscalateWarn, DenyBlock, OKSignalAggregated,
		ErrSchemaVersion, ErrInvalidRequest, ErrUnknownTopLevelKey,
		ErrUnknownSignalKey, ErrBadNumber, ErrPayloadTooLarge,
		ErrSignalTooMany, ErrSignalInvalid, ErrComponentMismatch,
		ErrSignalsRequired,
	}
	for _, c := range all {
		if !c.Valid() {
			t.Errorf("code %v should be valid", c)
		}
	}
}
