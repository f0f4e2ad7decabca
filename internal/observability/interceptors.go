// Package observability provides gRPC interceptors and the metrics HTTP server.
package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"consent-reading-service/internal/observability/logging"
	"consent-reading-service/internal/observability/metrics"
)

// Metadata keys callers may set to tie a call to a consent case.
const (
	MetadataPrincipal = "x-principal"
	MetadataReference = "x-reading-reference"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		m.RecordGRPCCall(info.FullMethod, code.String(), false)
		logCall(ctx, &logger, info.FullMethod, code, time.Since(start)).Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for metrics and logging.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RecordGRPCStreamStart()

		err := handler(srv, ss)

		code := status.Code(err)
		m.RecordGRPCCall(info.FullMethod, code.String(), true)
		logCall(ss.Context(), &logger, info.FullMethod, code, time.Since(start)).Msg("gRPC stream completed")

		return err
	}
}

// logCall starts a log event carrying the caller's identity. Health probes
// are frequent and logged at debug unless they fail.
func logCall(ctx context.Context, logger *zerolog.Logger, method string, code codes.Code, d time.Duration) *zerolog.Event {
	var ev *zerolog.Event
	switch {
	case code != codes.OK && code != codes.Canceled:
		ev = logger.Warn()
	case strings.HasPrefix(method, healthServicePrefix):
		ev = logger.Debug()
	default:
		ev = logger.Info()
	}

	ev = ev.Str("method", method).Str("code", code.String()).Dur("duration", d)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataPrincipal); len(v) > 0 {
			ev = ev.Str("principal", v[0])
		}
		if v := md.Get(MetadataReference); len(v) > 0 {
			ev = ev.Str("reference", v[0])
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	return ev
}
