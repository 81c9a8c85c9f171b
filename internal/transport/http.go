// Package transport implements the collaborator surfaces named in spec §6:
// the HTTP evaluate endpoint and the gRPC health service. Neither is part
// of the deterministic core (internal/dqsn) — both are plain plumbing
// around a single call to dqsn.Evaluate.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dqsn-network/shield/contrib"
	"github.com/dqsn-network/shield/internal/audit"
	"github.com/dqsn-network/shield/internal/dqsn"
	"github.com/dqsn-network/shield/internal/observability"
	"github.com/dqsn-network/shield/internal/scoreadvisory"
)

// EvaluatePath is the fixed route spec §6 assigns to the evaluate endpoint.
const EvaluatePath = "/dqsnet/v3/evaluate"

// evaluateRequestBody is the HTTP wire shape: {"request": <request envelope>}.
type evaluateRequestBody struct {
	Request any `json:"request"`
}

// Handler serves POST /dqsnet/v3/evaluate. It always responds HTTP 200 —
// contract-level failure is carried in the response body's decision/reason
// codes, never the transport status (spec §6: "fail-closed requires a
// structured response, not a transport error").
type Handler struct {
	metrics        *observability.Metrics
	ledger         *audit.DB             // nil disables audit persistence
	advisoryScorer contrib.ScoreProvider // nil disables advisory re-scoring
	log            *zap.Logger
}

// NewHandler constructs a Handler. ledger may be nil, in which case
// responses are never persisted (audit is an ambient concern, not a
// contract requirement). advisoryScorer may also be nil, in which case no
// advisory re-derivation happens; when set, it is invoked once per kept
// signal's evidence and the result is surfaced only as a metric — it never
// feeds back into the contractual decision already sealed in resp.
func NewHandler(metrics *observability.Metrics, ledger *audit.DB, advisoryScorer contrib.ScoreProvider, log *zap.Logger) *Handler {
	return &Handler{metrics: metrics, ledger: ledger, advisoryScorer: advisoryScorer, log: log}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.TransportHandleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body evaluateRequestBody
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		// A transport-level decode failure (not valid JSON at all) still
		// gets a structured fail-closed envelope rather than a bare HTTP
		// error, matching spec §6/§7's "no partial responses" rule.
		h.respond(w, dqsn.Evaluate(map[string]any{}))
		return
	}

	resp := dqsn.Evaluate(body.Request)

	if h.metrics != nil {
		leading := ""
		if len(resp.ReasonCodes) > 0 {
			leading = resp.ReasonCodes[0]
		}
		dedup := resp.Evidence.Dedup
		input, unique := 0, 0
		if dedup != nil {
			input, unique = dedup.InputSignals, dedup.UniqueSignals
		}
		h.metrics.RecordEvaluation(resp.Decision, leading, input, unique)
	}

	h.recordAdvisory(resp, body.Request)

	if h.ledger != nil {
		writeStart := time.Now()
		_, err := h.ledger.Append(resp)
		if h.metrics != nil {
			h.metrics.AuditWriteLatency.Observe(time.Since(writeStart).Seconds())
			if err == nil {
				h.metrics.AuditLedgerEntries.Inc()
			}
		}
		if err != nil {
			// A ledger write failure must never turn a valid contract
			// response into a service failure (spec §7: no partial
			// responses, fail-closed envelope always returned).
			h.log.Error("audit ledger append failed",
				zap.String("request_id", resp.RequestID),
				zap.String("context_hash", resp.ContextHash),
				zap.Error(err),
			)
		}
	}

	h.respond(w, resp)
}

// recordAdvisory re-derives an operator-facing advisory score for each kept
// signal via h.advisoryScorer, matching resp.Evidence.Signals (the stable,
// evidence-stripped view the contract returns) back to the raw request's
// per-signal evidence map by context_hash. The result never touches resp:
// it is purely an operator-facing metric alongside the sealed contractual
// decision (DESIGN.md's contrib.ScoreProvider note).
func (h *Handler) recordAdvisory(resp dqsn.Response, rawRequest any) {
	if h.advisoryScorer == nil || len(resp.Evidence.Signals) == 0 {
		return
	}
	rawByHash := rawSignalsByContextHash(rawRequest)
	for _, view := range resp.Evidence.Signals {
		raw, ok := rawByHash[view.ContextHash]
		if !ok {
			continue
		}
		evidence, _ := raw["evidence"].(map[string]any)
		sl, err := h.advisoryScorer.Score(contrib.ScoreRequest{
			ContextHash:   view.ContextHash,
			Decision:      view.Decision,
			ContractScore: view.Risk.Score,
			Evidence:      evidence,
		})
		if err != nil {
			h.log.Warn("advisory scorer failed",
				zap.String("provider", h.advisoryScorer.Name()),
				zap.String("context_hash", view.ContextHash),
				zap.Error(err),
			)
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordAdvisoryScore(h.advisoryScorer.Name(), scoreadvisory.Channel(sl), sl.Value())
		}
	}
}

// rawSignalsByContextHash indexes the raw (pre-validation) request's
// signals array by context_hash, so recordAdvisory can recover the
// evidence map the aggregator's stable view deliberately strips out.
// Returns an empty map for any shape that isn't a well-formed request —
// advisory re-scoring is best-effort and never blocks the response path.
func rawSignalsByContextHash(rawRequest any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	m, ok := rawRequest.(map[string]any)
	if !ok {
		return out
	}
	arr, ok := m["signals"].([]any)
	if !ok {
		return out
	}
	for _, s := range arr {
		sm, ok := s.(map[string]any)
		if !ok {
			continue
		}
		hash, ok := sm["context_hash"].(string)
		if !ok {
			continue
		}
		out[hash] = sm
	}
	return out
}

func (h *Handler) respond(w http.ResponseWriter, resp dqsn.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("failed to encode response body", zap.Error(err))
	}
}

// ListenAndServe starts the evaluate HTTP server on addr and blocks until
// the server stops or errors. Mirrors the agent's plain net/http server
// construction (no framework): Shield Contract v3 has exactly one route.
func ListenAndServe(addr string, handler *Handler) error {
	mux := http.NewServeMux()
	mux.Handle(EvaluatePath, handler)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("transport: evaluate server on %s: %w", addr, err)
	}
	return nil
}
