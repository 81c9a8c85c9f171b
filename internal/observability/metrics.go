// Package observability — metrics.go
//
// Prometheus metrics for the dqsnd service.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback by default; the configured address is used as given.
//
// Metric naming convention: dqsn_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// latency_ms is never recorded here as a timing metric: the contract fixes
// it to a constant 0 for determinism (spec §5). The service's own
// wall-clock handling time is tracked separately as
// dqsn_transport_handle_duration_seconds, which lives entirely outside the
// deterministic core.
//
// Cardinality control:
//   - decision and reason_code are closed enums (bounded label cardinality).
//   - request_id is NOT used as a label (unbounded cardinality).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for dqsnd.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Evaluation outcomes ──────────────────────────────────────────────────

	// EvaluationsTotal counts Evaluate() calls, by final decision
	// (ALLOW, ESCALATE, BLOCK, ERROR).
	EvaluationsTotal *prometheus.CounterVec

	// ValidationFailuresTotal counts fail-closed ERROR responses, by the
	// leading reason code that triggered them.
	ValidationFailuresTotal *prometheus.CounterVec

	// SignalsPerRequest records the distribution of input signal counts.
	SignalsPerRequest prometheus.Histogram

	// DedupRatio records unique_signals / input_signals per request
	// (1.0 when input_signals is 0).
	DedupRatio prometheus.Histogram

	// AdvisoryScore records the re-derived contrib.ScoreProvider score for
	// each kept signal, by provider name and provenance channel
	// (internal/scoreadvisory.Channel). Purely operator-facing: it never
	// feeds back into EvaluationsTotal or any contractual decision.
	AdvisoryScore *prometheus.HistogramVec

	// ─── Transport ────────────────────────────────────────────────────────────

	// TransportHandleDuration records wall-clock HTTP handling time. This is
	// deliberately distinct from the contract's always-zero latency_ms.
	TransportHandleDuration prometheus.Histogram

	// ─── Audit ────────────────────────────────────────────────────────────────

	// AuditWriteLatency records BoltDB ledger write transaction latency.
	AuditWriteLatency prometheus.Histogram

	// AuditLedgerEntries is the current number of ledger entries.
	AuditLedgerEntries prometheus.Gauge

	// ─── Service ──────────────────────────────────────────────────────────────

	// ServiceUptimeSeconds is the number of seconds since the service started.
	ServiceUptimeSeconds prometheus.Gauge

	// startTime records when the service started (for uptime calculation).
	startTime time.Time
}

// NewMetrics creates and registers all dqsnd Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dqsn",
			Subsystem: "core",
			Name:      "evaluations_total",
			Help:      "Total Evaluate() calls, by final decision.",
		}, []string{"decision"}),

		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dqsn",
			Subsystem: "core",
			Name:      "validation_failures_total",
			Help:      "Total fail-closed ERROR responses, by leading reason code.",
		}, []string{"reason_code"}),

		SignalsPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dqsn",
			Subsystem: "core",
			Name:      "signals_per_request",
			Help:      "Distribution of input signal counts per request.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),

		DedupRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dqsn",
			Subsystem: "core",
			Name:      "dedup_ratio",
			Help:      "Ratio of unique_signals to input_signals per request.",
			Buckets:   []float64{0.0, 0.25, 0.5, 0.75, 0.9, 1.0},
		}),

		AdvisoryScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dqsn",
			Subsystem: "core",
			Name:      "advisory_score",
			Help:      "Re-derived contrib.ScoreProvider advisory score per kept signal, by provider and channel. Operator-facing only, never feeds back into the contract decision.",
			Buckets:   []float64{0.0, 0.25, 0.5, 0.6, 0.75, 0.85, 1.0},
		}, []string{"provider", "channel"}),

		TransportHandleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dqsn",
			Subsystem: "transport",
			Name:      "handle_duration_seconds",
			Help:      "Wall-clock HTTP handling time for /dqsnet/v3/evaluate. Distinct from the contract's fixed latency_ms.",
			Buckets:   prometheus.DefBuckets,
		}),

		AuditWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dqsn",
			Subsystem: "audit",
			Name:      "write_latency_seconds",
			Help:      "BoltDB audit ledger write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		AuditLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dqsn",
			Subsystem: "audit",
			Name:      "ledger_entries",
			Help:      "Current number of audit ledger entries in BoltDB.",
		}),

		ServiceUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dqsn",
			Subsystem: "service",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the service started.",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.ValidationFailuresTotal,
		m.SignalsPerRequest,
		m.DedupRatio,
		m.AdvisoryScore,
		m.TransportHandleDuration,
		m.AuditWriteLatency,
		m.AuditLedgerEntries,
		m.ServiceUptimeSeconds,
		// Standard Go runtime metrics.
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails. The server
// binds to addr (e.g., "127.0.0.1:9091") and serves GET /metrics.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// RecordEvaluation updates the evaluation-outcome counters and histograms
// for one Evaluate() call.
func (m *Metrics) RecordEvaluation(decision string, leadingReasonCode string, inputSignals, uniqueSignals int) {
	m.EvaluationsTotal.WithLabelValues(decision).Inc()
	if decision == "ERROR" {
		m.ValidationFailuresTotal.WithLabelValues(leadingReasonCode).Inc()
	}
	m.SignalsPerRequest.Observe(float64(inputSignals))
	if inputSignals > 0 {
		m.DedupRatio.Observe(float64(uniqueSignals) / float64(inputSignals))
	} else {
		m.DedupRatio.Observe(1.0)
	}
}

// RecordAdvisoryScore observes one contrib.ScoreProvider re-derivation for
// a kept signal, labeled by provider name and provenance channel.
func (m *Metrics) RecordAdvisoryScore(provider, channel string, score float64) {
	m.AdvisoryScore.WithLabelValues(provider, channel).Observe(score)
}

// updateUptime periodically updates the ServiceUptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.ServiceUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
