// Package grpcapi serves the community service's gRPC surface: the standard
// health protocol, driven by the store's readiness, and server reflection.
package grpcapi

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health-check service key reported next to "".
const ServiceName = "community"

const defaultStopTimeout = 10 * time.Second

type Server struct {
	GRPC   *grpc.Server
	Health *health.Server

	log  *zap.Logger
	ping func(ctx context.Context) error
}

// New builds a gRPC server with health and reflection registered. ping
// reports readiness; nil means always ready.
func New(log *zap.Logger, ping func(ctx context.Context) error) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "grpc"))

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(log)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{GRPC: srv, Health: hs, log: log, ping: ping}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server starting", zap.String("addr", lis.Addr().String()))
	return s.GRPC.Serve(lis)
}

// WatchReadiness refreshes the health status every interval until ctx is
// done.
func (s *Server) WatchReadiness(ctx context.Context, interval time.Duration) {
	s.refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refresh(ctx)
		}
	}
}

// Shutdown flips health to NOT_SERVING and drains in-flight calls, forcing
// a stop after timeout.
func (s *Server) Shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	s.Health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		s.log.Warn("grpc graceful stop timed out, forcing stop")
		s.GRPC.Stop()
	}
}

func (s *Server) refresh(ctx context.Context) {
	if s.ping == nil {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.ping(pctx); err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(ServiceName, st)
}

func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
