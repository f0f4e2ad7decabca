// Package grpcapi exposes the service's gRPC port: standard health checking
// and reflection, behind the metrics interceptors.
package grpcapi

import (
	"errors"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"consent-reading-service/internal/observability"
	"consent-reading-service/internal/observability/metrics"
)

// ServiceName is the health-check service name for reading sessions.
const ServiceName = "consent.reading.ReadingService"

// Server wraps a grpc.Server with its health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a gRPC server. Every service starts NOT_SERVING until
// SetServing is called.
func New(m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, healthServer)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{grpc: g, health: healthServer}
	s.SetServing(false)
	return s
}

// SetServing flips the overall and reading-service health status.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until Stop. It returns nil after a
// graceful stop.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	log.Info().Msg("Shutting down gRPC server")
	s.SetServing(false)
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
