package aggregate

import (
	"testing"

	"github.com/dqsn-network/shield/internal/contract"
)

func sig(contextHash, decision string, score float64, tier string, reasonCodes ...string) contract.Signal {
	return contract.Signal{
		ContractVersion: 3,
		Component:       "upstream",
		RequestID:       "rq1",
		ContextHash:     contextHash,
		Decision:        decision,
		Risk:            contract.Risk{Score: score, Tier: tier},
		ReasonCodes:     reasonCodes,
		Evidence:        map[string]any{},
		Meta:            contract.Meta{},
	}
}

func baseRequest(signals ...contract.Signal) *contract.Request {
	return &contract.Request{
		ContractVersion: 3,
		Component:       "dqsn",
		RequestID:       "rq1",
		Signals:         signals,
		Constraints:     contract.Constraints{MaxLatencyMs: 2500, FailClosed: true},
	}
}

func TestAggregateEmptyAllow(t *testing.T) {
	resp := Aggregate(baseRequest())
	if resp.Decision != "ALLOW" {
		t.Fatalf("expected ALLOW, got %s", resp.Decision)
	}
	if len(resp.ReasonCodes) != 1 || resp.ReasonCodes[0] != "DQSN_OK_ALLOW" {
		t.Errorf("unexpected reason codes: %v", resp.ReasonCodes)
	}
	if resp.Evidence.Dedup.InputSignals != 0 || resp.Evidence.Dedup.UniqueSignals != 0 {
		t.Errorf("unexpected dedup stats: %+v", resp.Evidence.Dedup)
	}
	if resp.Risk.Score != 0.0 || resp.Risk.Tier != "LOW" {
		t.Errorf("unexpected risk: %+v", resp.Risk)
	}
}

func TestAggregateWarnEscalation(t *testing.T) {
	resp := Aggregate(baseRequest(sig("h", "WARN", 0.5, "MEDIUM")))
	if resp.Decision != "ESCALATE" {
		t.Fatalf("expected ESCALATE, got %s", resp.Decision)
	}
	if resp.ReasonCodes[0] != "DQSN_ESCALATE_WARN" || resp.ReasonCodes[1] != "DQSN_OK_SIGNAL_AGGREGATED" {
		t.Errorf("unexpected prefix codes: %v", resp.ReasonCodes)
	}
	if resp.Risk.Score != 0.5 || resp.Risk.Tier != "MEDIUM" {
		t.Errorf("unexpected risk: %+v", resp.Risk)
	}
	if resp.Evidence.Dedup.InputSignals != 1 || resp.Evidence.Dedup.UniqueSignals != 1 {
		t.Errorf("unexpected dedup: %+v", resp.Evidence.Dedup)
	}
}

func TestAggregateDedupAndOrderIndependence(t *testing.T) {
	order1 := baseRequest(
		sig("dup", "ALLOW", 0.1, "LOW"),
		sig("dup", "WARN", 0.9, "CRITICAL"),
		sig("uniq", "ALLOW", 0.2, "LOW"),
	)
	order2 := baseRequest(
		sig("uniq", "ALLOW", 0.2, "LOW"),
		sig("dup", "WARN", 0.9, "CRITICAL"),
		sig("dup", "ALLOW", 0.1, "LOW"),
	)
	r1 := Aggregate(order1)
	r2 := Aggregate(order2)
	if r1.ContextHash != r2.ContextHash {
		t.Errorf("context hashes differ across signal order: %s vs %s", r1.ContextHash, r2.ContextHash)
	}
	if r1.Evidence.Dedup.InputSignals != 3 || r1.Evidence.Dedup.UniqueSignals != 2 {
		t.Errorf("unexpected dedup: %+v", r1.Evidence.Dedup)
	}
}

func TestAggregateFirstWinsUnderStableSort(t *testing.T) {
	resp := Aggregate(baseRequest(
		sig("dup", "ALLOW", 0.1, "LOW"),
		sig("dup", "BLOCK", 0.9, "CRITICAL"),
	))
	// Both share context_hash "dup" and have identical component/request_id,
	// so the sort's tie-break on decision puts ALLOW before BLOCK and the
	// ALLOW signal is the first one, which wins the dedup.
	if resp.Decision != "ALLOW" {
		t.Errorf("expected first-wins ALLOW, got %s", resp.Decision)
	}
}

func TestAggregateRollupSeverityOrdering(t *testing.T) {
	cases := []struct {
		name     string
		decision string
		want     string
	}{
		{"all-allow", "ALLOW", "ALLOW"},
		{"warn", "WARN", "ESCALATE"},
		{"block", "BLOCK", "BLOCK"},
	}
	for _, c := range cases {
		resp := Aggregate(baseRequest(sig("h", c.decision, 0.1, "LOW")))
		if resp.Decision != c.want {
			t.Errorf("%s: got %s, want %s", c.name, resp.Decision, c.want)
		}
	}
}

func TestAggregateBlockDominatesWarn(t *testing.T) {
	resp := Aggregate(baseRequest(
		sig("a", "WARN", 0.3, "MEDIUM"),
		sig("b", "BLOCK", 0.9, "CRITICAL"),
	))
	if resp.Decision != "BLOCK" {
		t.Errorf("expected BLOCK to dominate WARN, got %s", resp.Decision)
	}
}

func TestAggregateUpstreamErrorFailsClosed(t *testing.T) {
	resp := Aggregate(baseRequest(
		sig("a", "WARN", 0.3, "MEDIUM"),
		sig("b", "ERROR", 0.9, "CRITICAL"),
	))
	if resp.Decision != "ERROR" {
		t.Fatalf("expected ERROR, got %s", resp.Decision)
	}
	if resp.Risk.Score != 1.0 || resp.Risk.Tier != "CRITICAL" {
		t.Errorf("expected fail-closed risk, got %+v", resp.Risk)
	}
	if resp.Evidence.Dedup != nil || resp.Evidence.Signals != nil {
		t.Error("no signal list should be leaked on error")
	}
	if resp.Evidence.Details == nil || len(resp.Evidence.Details.Error) == 0 {
		t.Error("expected error details")
	}
}

func TestAggregateSchemaVersionGate(t *testing.T) {
	req := baseRequest()
	req.ContractVersion = 2
	resp := Aggregate(req)
	if resp.Decision != "ERROR" || resp.ReasonCodes[0] != "DQSN_ERROR_SCHEMA_VERSION" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAggregateComponentMismatchGate(t *testing.T) {
	req := baseRequest()
	req.Component = "not-dqsn"
	resp := Aggregate(req)
	if resp.Decision != "ERROR" || resp.ReasonCodes[0] != "DQSN_ERROR_COMPONENT_MISMATCH" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAggregateUpstreamReasonCodeSuffixSortedUnique(t *testing.T) {
	resp := Aggregate(baseRequest(
		sig("a", "ALLOW", 0.1, "LOW", "ZEBRA", "ALPHA"),
		sig("b", "ALLOW", 0.1, "LOW", "ALPHA"),
	))
	want := []string{"DQSN_OK_ALLOW", "DQSN_OK_SIGNAL_AGGREGATED", "ALPHA", "ZEBRA"}
	if len(resp.ReasonCodes) != len(want) {
		t.Fatalf("got %v, want %v", resp.ReasonCodes, want)
	}
	for i := range want {
		if resp.ReasonCodes[i] != want[i] {
			t.Errorf("index %d: got %s, want %s", i, resp.ReasonCodes[i], want[i])
		}
	}
}

func TestTierFromScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.0, "LOW"},
		{0.2499, "LOW"},
		{0.25, "MEDIUM"},
		{0.5999, "MEDIUM"},
		{0.60, "HIGH"},
		{0.8499, "HIGH"},
		{0.85, "CRITICAL"},
		{1.0, "CRITICAL"},
	}
	for _, c := range cases {
		got := tierFromScore(c.score)
		if got != c.want {
			t.Errorf("tierFromScore(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}
