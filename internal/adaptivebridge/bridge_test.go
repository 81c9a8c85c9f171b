package adaptivebridge

import (
	"testing"

	"github.com/dqsn-network/shield/internal/aggregate"
)

func TestFromResponseDefaultsFingerprint(t *testing.T) {
	resp := aggregate.Response{
		RequestID:   "rq1",
		Decision:    "BLOCK",
		ContextHash: "deadbeef",
		Risk:        aggregate.RiskView{Score: 0.9, Tier: "CRITICAL"},
		ReasonCodes: []string{"DQSN_DENY_BLOCK"},
	}

	ev := FromResponse(resp, "", nil)

	if ev.Fingerprint != "dqsn:global" {
		t.Fatalf("expected default fingerprint, got %q", ev.Fingerprint)
	}
	if ev.EventID == "" {
		t.Fatal("expected a non-empty generated event id")
	}
	if ev.Severity != 0.95 {
		t.Fatalf("expected CRITICAL severity 0.95, got %v", ev.Severity)
	}
	if ev.Decision != "BLOCK" || ev.ContextHash != "deadbeef" {
		t.Fatalf("expected fields carried over from response, got %+v", ev)
	}
	if ev.Metadata["dqsn_request_id"] != "rq1" {
		t.Fatalf("expected request_id in metadata, got %+v", ev.Metadata)
	}
	if ev.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be populated")
	}
}

func TestFromResponseCustomFingerprintAndMetadata(t *testing.T) {
	resp := aggregate.Response{Risk: aggregate.RiskView{Score: 0.0, Tier: "LOW"}, Decision: "ALLOW"}
	ev := FromResponse(resp, "custom:fp", map[string]any{"node": "n1"})

	if ev.Fingerprint != "custom:fp" {
		t.Fatalf("expected custom fingerprint preserved, got %q", ev.Fingerprint)
	}
	if ev.Metadata["node"] != "n1" {
		t.Fatalf("expected caller metadata preserved, got %+v", ev.Metadata)
	}
}
