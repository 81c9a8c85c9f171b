// Package main — cmd/dqsnd/main.go
//
// dqsnd entrypoint: the surrounding service that wraps the deterministic
// Shield Contract v3 core (internal/dqsn) with transport, audit, and
// observability. The core itself is a pure function (spec §4.5/§5); this
// file is the "trivial plumbing" spec §1 says a reimplementer must supply
// around it.
//
// Startup sequence:
//  1. Load and validate config from /etc/dqsnd/config.yaml.
//  2. Initialise structured logger (zap, JSON format).
//  3. Open BoltDB audit ledger.
//  4. Prune stale ledger entries.
//  5. Start Prometheus metrics server.
//  6. Start the gRPC health server (NOT_SERVING until startup completes).
//  7. Start the HTTP evaluate server (POST /dqsnet/v3/evaluate).
//  8. Mark health SERVING.
//  9. Register SIGHUP handler that re-reads and validates the config file
//     (the new values are not applied; they take effect on restart).
// 10. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Mark health NOT_SERVING.
//  2. Stop the gRPC health server (bounded by Transport.ShutdownTimeout).
//     The HTTP evaluate server is not drained; it ends with the process.
//  3. Close the audit ledger.
//  4. Flush logger.
//  5. Exit 0.
//
// On config validation failure or audit ledger open failure: exit 1
// immediately (no partial state) — the same fail-closed posture the core
// itself is built around.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dqsn-network/shield/contrib"
	"github.com/dqsn-network/shield/internal/audit"
	"github.com/dqsn-network/shield/internal/config"
	"github.com/dqsn-network/shield/internal/observability"
	"github.com/dqsn-network/shield/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/dqsnd/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("dqsnd %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ──────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("dqsnd starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Open BoltDB audit ledger ───────────────────────────────────
	ledger, err := audit.Open(cfg.Audit.DBPath, cfg.Audit.RetentionDays)
	if err != nil {
		log.Fatal("audit ledger open failed", zap.Error(err),
			zap.String("path", cfg.Audit.DBPath))
	}
	defer ledger.Close() //nolint:errcheck
	log.Info("audit ledger opened", zap.String("path", cfg.Audit.DBPath))

	// ── Step 4: Prune stale ledger entries ─────────────────────────────────
	pruned, err := ledger.PruneOlderThan(ledger.RetentionCutoff())
	if err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// Resolve the configured advisory scorer plugin. This selection never
	// touches the contract decision (internal/aggregate) — it only backs
	// the operator-facing re-derivation dqsnd exposes alongside it.
	advisoryScorer, err := contrib.GetScorer(cfg.Observability.AdvisoryScorer)
	if err != nil {
		log.Fatal("advisory scorer resolution failed", zap.Error(err),
			zap.Strings("available", contrib.ListScorers()))
	}
	log.Info("advisory scorer selected", zap.String("name", advisoryScorer.Name()))

	// ── Step 5: Prometheus metrics ──────────────────────────────────────────
	metrics := observability.NewMetrics()
	if n, err := ledger.Count(); err != nil {
		log.Warn("failed to seed audit ledger entry gauge", zap.Error(err))
	} else {
		metrics.AuditLedgerEntries.Set(float64(n))
	}
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 6: gRPC health server ──────────────────────────────────────────
	healthSrv := transport.NewHealthServer(log)
	go func() {
		if err := healthSrv.ListenAndServe(cfg.Transport.GRPCHealthAddr); err != nil {
			log.Error("grpc health server error", zap.Error(err))
		}
	}()
	log.Info("gRPC health server started", zap.String("addr", cfg.Transport.GRPCHealthAddr))

	// ── Step 7: HTTP evaluate server ────────────────────────────────────────
	handler := transport.NewHandler(metrics, ledger, advisoryScorer, log)
	go func() {
		if err := transport.ListenAndServe(cfg.Transport.HTTPAddr, handler); err != nil {
			log.Error("evaluate server error", zap.Error(err))
		}
	}()
	log.Info("evaluate server started",
		zap.String("addr", cfg.Transport.HTTPAddr),
		zap.String("path", transport.EvaluatePath))

	// ── Step 8: Mark healthy ────────────────────────────────────────────────
	healthSrv.SetServing(true)
	log.Info("dqsnd ready")

	// ── Step 9: SIGHUP hot-reload ───────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			if _, err := config.Load(*configPath); err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config re-validated successfully (changes take effect on restart)")
		}
	}()

	// ── Step 10: Wait for shutdown signal ───────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	healthSrv.SetServing(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Transport.ShutdownTimeout)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		healthSrv.Stop()
		close(done)
	}()
	select {
	case <-shutdownCtx.Done():
		log.Warn("shutdown drain timeout — forcing exit")
	case <-done:
		log.Info("servers stopped cleanly")
	}

	log.Info("dqsnd shutdown complete")
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
