package grpcx

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
)

func TestHealthCheckFollowsServingStatus(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, hs := NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	check := HealthCheck(lis.Addr().String(), "")
	assert.Error(t, check(context.Background()))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	assert.NoError(t, check(context.Background()))
}

func TestHealthCheckRequiresAddress(t *testing.T) {
	assert.Error(t, HealthCheck("", "")(context.Background()))
}

func TestServerInterceptorStoresRequestID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "abc"))
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, nil, func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", seen)
}

func TestServerInterceptorReplacesMalformedID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "bad id\nforged=1"))
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, nil, func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 32)
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	intercept := UnaryServerLoggingInterceptor(logger)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	info = &grpc.UnaryServerInfo{FullMethod: "/zapagenda.Booking/Get"}
	_, err = intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"code":"NotFound"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}
