package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/dqsn-network/shield/contrib"
	"github.com/dqsn-network/shield/internal/observability"
	"github.com/dqsn-network/shield/internal/scoreadvisory"
)

// stubScorer records every ScoreRequest it receives, so tests can assert
// recordAdvisory actually invokes contrib.ScoreProvider.Score per kept
// signal rather than merely holding a reference to one.
type stubScorer struct {
	calls []contrib.ScoreRequest
}

func (s *stubScorer) Name() string { return "stub" }

func (s *stubScorer) Score(req contrib.ScoreRequest) (scoreadvisory.ScoreLike, error) {
	s.calls = append(s.calls, req)
	return scoreadvisory.NewTagged(req.ContractScore, "stub-channel"), nil
}

func TestServeHTTPReturns200OnContractError(t *testing.T) {
	h := NewHandler(nil, nil, nil, zap.NewNop())

	body, _ := json.Marshal(map[string]any{
		"request": map[string]any{"extra": "x"},
	})
	req := httptest.NewRequest(http.MethodPost, EvaluatePath, bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200 even on contract error, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["decision"] != "ERROR" {
		t.Fatalf("expected decision=ERROR, got %v", resp["decision"])
	}
}

func TestServeHTTPAllowsValidRequest(t *testing.T) {
	h := NewHandler(nil, nil, nil, zap.NewNop())

	body, _ := json.Marshal(map[string]any{
		"request": map[string]any{
			"contract_version": 3,
			"component":        "dqsn",
			"request_id":       "rq1",
			"signals":          []any{},
			"constraints":      map[string]any{},
		},
	})
	req := httptest.NewRequest(http.MethodPost, EvaluatePath, bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["decision"] != "ALLOW" {
		t.Fatalf("expected decision=ALLOW, got %v", resp["decision"])
	}
}

func TestServeHTTPInvokesAdvisoryScorerPerKeptSignal(t *testing.T) {
	stub := &stubScorer{}
	metrics := observability.NewMetrics()
	h := NewHandler(metrics, nil, stub, zap.NewNop())

	body, _ := json.Marshal(map[string]any{
		"request": map[string]any{
			"contract_version": 3,
			"component":        "dqsn",
			"request_id":       "rq1",
			"signals": []any{
				map[string]any{
					"contract_version": 3,
					"component":        "upstream",
					"request_id":       "rq1",
					"context_hash":     "h1",
					"decision":         "WARN",
					"risk":             map[string]any{"score": 0.5, "tier": "MEDIUM"},
					"reason_codes":     []any{},
					"evidence":         map[string]any{"advisory_score": 0.9},
					"meta":             map[string]any{},
				},
			},
			"constraints": map[string]any{},
		},
	})
	req := httptest.NewRequest(http.MethodPost, EvaluatePath, bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rec.Code)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected advisory scorer invoked once, got %d calls: %+v", len(stub.calls), stub.calls)
	}
	call := stub.calls[0]
	if call.ContextHash != "h1" || call.Decision != "WARN" {
		t.Errorf("unexpected ScoreRequest passed to scorer: %+v", call)
	}
	if call.Evidence["advisory_score"] != 0.9 {
		t.Errorf("expected original signal evidence to reach the scorer, got %+v", call.Evidence)
	}
}

func TestServeHTTPSkipsAdvisoryScoringOnErrorResponse(t *testing.T) {
	stub := &stubScorer{}
	h := NewHandler(nil, nil, stub, zap.NewNop())

	body, _ := json.Marshal(map[string]any{
		"request": map[string]any{"extra": "x"},
	})
	req := httptest.NewRequest(http.MethodPost, EvaluatePath, bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if len(stub.calls) != 0 {
		t.Errorf("expected no advisory scoring on a fail-closed ERROR response, got %d calls", len(stub.calls))
	}
}

func TestServeHTTPRejectsNonPost(t *testing.T) {
	h := NewHandler(nil, nil, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, EvaluatePath, nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
