package grpc

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name health checks report status under.
const ServiceName = "cart.CartEngine"

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewServer builds a traced gRPC server exposing the standard health service
// and reflection for grpcurl/grpcui.
func NewServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	reflection.Register(grpcServer)
	return grpcServer, healthServer
}

// HealthChecker pings the engine's dependencies and publishes the result on
// the health server. The engine serves only while every dependency answers.
type HealthChecker struct {
	health   *health.Server
	deps     map[string]Pinger
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewHealthChecker(hs *health.Server, deps map[string]Pinger, interval time.Duration, log *slog.Logger) *HealthChecker {
	return &HealthChecker{
		health:   hs,
		deps:     deps,
		interval: interval,
		timeout:  2 * time.Second,
		log:      log.With("component", "health_checker"),
	}
}

// Run checks immediately and then every interval until ctx is done. On
// return the service is reported as NOT_SERVING.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.checkOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			h.checkOnce(ctx)
		}
	}
}

func (h *HealthChecker) checkOnce(ctx context.Context) bool {
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.deps[name].Ping(pingCtx)
		cancel()
		if err != nil {
			h.log.WarnContext(ctx, "dependency unhealthy", "dependency", name, "error", err)
			healthy = false
		}
	}

	if healthy {
		h.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

func (h *HealthChecker) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
}
