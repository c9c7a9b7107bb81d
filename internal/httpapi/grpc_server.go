package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const grpcServiceName = "fleetcore.api"

// GRPCServer exposes the gRPC health endpoint used by infra probes. Domain
// traffic stays on HTTP; this listener exists so load balancers and service
// meshes that only speak grpc_health_v1 can track the process.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	probe  ReadyProbe
}

// NewGRPCServer wires the stock health service.
func NewGRPCServer(probe ReadyProbe) *GRPCServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{server: srv, health: hs, probe: probe}
}

// Serve blocks on the listener until Stop is called.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.health.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	return g.server.Serve(lis)
}

// RefreshStatus re-probes dependencies and updates the advertised status.
func (g *GRPCServer) RefreshStatus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.probe.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus(grpcServiceName, status)
}

// Stop drains in-flight RPCs and marks the service not serving.
func (g *GRPCServer) Stop() {
	g.health.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	g.server.GracefulStop()
}
