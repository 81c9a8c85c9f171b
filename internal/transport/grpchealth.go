// Package transport — grpchealth.go
//
// gRPC health surface for dqsnd, reusing grpc-go's own standard
// grpc_health_v1.Health service rather than inventing a bespoke wire
// protocol — the proto definitions and generated code ship inside
// google.golang.org/grpc/health itself, so this requires no protobuf code
// generation. This is the infra-ops analogue of the agent's gossip gRPC
// server (internal/gossip/server.go in the teacher repo), repurposed from
// mTLS peer-to-peer envelope exchange to a single-process liveness/
// readiness surface, since this system has no peer-to-peer layer.
package transport

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer wraps grpc-go's standard health service with the readiness
// gating dqsnd needs: SERVING is only reported once config, the audit
// ledger, and the metrics registry are all initialized.
type HealthServer struct {
	mu      sync.Mutex
	grpcSrv *grpc.Server
	health  *health.Server
	log     *zap.Logger
}

// NewHealthServer constructs a HealthServer. Initial status is
// NOT_SERVING until SetServing(true) is called by the caller once startup
// completes.
func NewHealthServer(log *zap.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	grpcSrv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, h)

	return &HealthServer{grpcSrv: grpcSrv, health: h, log: log}
}

// SetServing toggles the overall service's reported health status.
func (h *HealthServer) SetServing(serving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
}

// ListenAndServe starts the gRPC health server on addr and blocks until it
// stops or errors.
func (h *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: health listener on %s: %w", addr, err)
	}
	h.log.Info("gRPC health server listening", zap.String("addr", addr))
	if err := h.grpcSrv.Serve(lis); err != nil {
		return fmt.Errorf("transport: health server on %s: %w", addr, err)
	}
	return nil
}

// Stop gracefully stops the gRPC server.
func (h *HealthServer) Stop() {
	h.grpcSrv.GracefulStop()
}
