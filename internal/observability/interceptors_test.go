package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"consent-reading-service/internal/observability/metrics"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("bad log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestUnaryServerInterceptor_CallerContext(t *testing.T) {
	buf := captureLog(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	intercept := UnaryServerInterceptor(m)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		MetadataPrincipal, "bank-app",
		MetadataReference, "case-42",
	))
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 5000}})
	info := &grpc.UnaryServerInfo{FullMethod: "/consent.reading.ReadingService/Lookup"}

	_, err := intercept(ctx, nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "no such case")
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}

	if got := testutil.ToFloat64(m.GRPCCalls.WithLabelValues(info.FullMethod, "NotFound")); got != 1 {
		t.Errorf("expected 1 recorded call, got %v", got)
	}
	entry := lastEntry(t, buf)
	if entry["level"] != "warn" || entry["component"] != "grpc" {
		t.Errorf("expected warn from grpc component, got %v", entry)
	}
	if entry["principal"] != "bank-app" || entry["reference"] != "case-42" || entry["peer"] != "10.0.0.7:5000" {
		t.Errorf("missing caller fields in %v", entry)
	}
}

func TestUnaryServerInterceptor_HealthAtDebug(t *testing.T) {
	buf := captureLog(t)
	intercept := UnaryServerInterceptor(metrics.NewMetrics(prometheus.NewRegistry()))

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry := lastEntry(t, buf); entry["level"] != "debug" {
		t.Errorf("expected health check at debug, got %v", entry)
	}
}

type testServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *testServerStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor_TracksActiveStreams(t *testing.T) {
	captureLog(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	intercept := StreamServerInterceptor(m)

	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}
	err := intercept(nil, &testServerStream{ctx: context.Background()}, info, func(any, grpc.ServerStream) error {
		if got := testutil.ToFloat64(m.GRPCStreamsActive); got != 1 {
			t.Errorf("expected 1 active stream inside the handler, got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(m.GRPCStreamsActive); got != 0 {
		t.Errorf("expected no active streams after return, got %v", got)
	}
	if got := testutil.ToFloat64(m.GRPCCalls.WithLabelValues(info.FullMethod, "OK")); got != 1 {
		t.Errorf("expected 1 recorded stream, got %v", got)
	}
}
