package middleware

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var info = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func TestChainUnaryServer_PanicRecovered(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	chain := ChainUnaryServer(zap.New(core))

	_, err := chain(context.Background(), nil, info,
		func(ctx context.Context, req any) (any, error) {
			panic("boom")
		})
	if st, _ := status.FromError(err); st.Code() != codes.Internal {
		t.Fatalf("panic should become codes.Internal, got %v", err)
	}
	if logs.FilterMessage("gRPC handler panic").Len() != 1 {
		t.Fatal("panic must be logged")
	}
}

func TestChainUnaryServer_PassesThrough(t *testing.T) {
	chain := ChainUnaryServer(zap.NewNop())

	resp, err := chain(context.Background(), "req", info,
		func(ctx context.Context, req any) (any, error) { return req.(string) + "-ok", nil })
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp != "req-ok" {
		t.Fatalf("want req-ok, got %v", resp)
	}
}

func TestChainUnaryServer_KeepsStatus(t *testing.T) {
	chain := ChainUnaryServer(zap.NewNop())

	_, err := chain(context.Background(), nil, info,
		func(ctx context.Context, req any) (any, error) {
			return nil, status.Error(codes.NotFound, "nope")
		})
	if st, _ := status.FromError(err); st.Code() != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
