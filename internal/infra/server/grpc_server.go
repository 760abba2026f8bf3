package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/grpc/middleware"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/config"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported by the health service next to the overall "" entry.
const ServiceName = "account.v1.AccountService"

// Probe returns nil while every backing store is reachable.
type Probe func(ctx context.Context) error

type GRPCServer struct {
	srv      *grpc.Server
	health   *health.Server
	probe    Probe
	interval time.Duration
	logger   *zap.Logger
}

func NewGRPCServer(ctx context.Context, cfg *config.Config, probe Probe, logger *zap.Logger) (*GRPCServer, error) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(ctx, logger, cfg.GRPCRateLimit, cfg.GRPCRateBurst)),
		grpc.StreamInterceptor(middleware.ChainStreamServer(ctx, logger, cfg.GRPCRateLimit, cfg.GRPCRateBurst)),
	}
	if cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.HTTPSCertFile, cfg.HTTPSKeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	grpc_prometheus.Register(grpcServer)
	grpc_prometheus.EnableHandlingTimeHistogram()
	reflection.Register(grpcServer)

	return &GRPCServer{
		srv:      grpcServer,
		health:   hs,
		probe:    probe,
		interval: 5 * time.Second,
		logger:   logger,
	}, nil
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	s.checkHealth(ctx)
	go s.watchHealth(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	s.logger.Info("ctx cancelled, stopping gRPC server")
	s.health.Shutdown()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-stopCtx.Done():
		s.srv.Stop()
	case <-done:
	}
	s.logger.Info("gRPC server stopped")
	return nil
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *GRPCServer) checkHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.probe(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("health probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// StartGRPCServer listens on cfg.GRPCAddress and serves until ctx is done.
func StartGRPCServer(ctx context.Context, cfg *config.Config, probe Probe, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return err
	}
	s, err := NewGRPCServer(ctx, cfg, probe, logger)
	if err != nil {
		_ = lis.Close()
		return err
	}
	return s.Serve(ctx, lis)
}
