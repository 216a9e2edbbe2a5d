package server

import (
	"context"
	"net"
	"time"

	"github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/transport/grpc/middleware"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/config"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const gracefulStopTimeout = 5 * time.Second

// NewGRPCServer builds the server with the interceptor chain, the health
// service and reflection. TLS is enabled when cfg carries a certificate.
func NewGRPCServer(cfg *config.Config, health healthpb.HealthServer, logger *zap.Logger) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(logger)),
	}
	if cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.HTTPSCertFile, cfg.HTTPSKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load gRPC TLS credentials")
		}
		opts = append(opts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(grpcServer, health)
	grpc_prometheus.Register(grpcServer)
	reflection.Register(grpcServer)
	return grpcServer, nil
}

// Serve runs grpcServer on lis until ctx is cancelled, then stops it
// gracefully, forcing a stop after gracefulStopTimeout.
func Serve(ctx context.Context, grpcServer *grpc.Server, lis net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- errors.Wrap(err, "serve gRPC")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("ctx cancelled, stopping gRPC server")

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-time.After(gracefulStopTimeout):
		grpcServer.Stop()
	case <-done:
	}
	logger.Info("gRPC server stopped")
	return nil
}

// StartGRPCServer listens on cfg.GRPCAddress and serves until ctx is done.
func StartGRPCServer(ctx context.Context, cfg *config.Config, health healthpb.HealthServer, logger *zap.Logger) error {
	grpcServer, err := NewGRPCServer(cfg, health, logger)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPCAddress)
	}
	return Serve(ctx, grpcServer, lis, logger)
}
