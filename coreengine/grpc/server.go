// Package grpc exposes goal runs over gRPC.
//
// The service is hand-registered with google.protobuf.Struct messages, so
// any gRPC client can call it without generated stubs. The standard health
// service is registered alongside.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Logger interface for the server.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// =============================================================================
// Graceful Server
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
// It listens for context cancellation and shuts down cleanly.
type GracefulServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     Logger
	address    string

	shutdownMu sync.Mutex
	listener   net.Listener
	isShutdown bool
}

// NewGracefulServer creates a GracefulServer serving goals and health.
// Without opts the standard interceptors from ServerOptions are installed.
func NewGracefulServer(goals GoalServiceServer, logger Logger, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterGoalServiceServer(grpcServer, goals)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &GracefulServer{
		grpcServer: grpcServer,
		health:     hs,
		logger:     logger,
		address:    address,
	}
}

// Start listens on the configured address and blocks until ctx is cancelled
// or the server fails. Cancellation triggers a graceful shutdown.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated",
			"reason", ctx.Err().Error(),
		)
		s.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Serve accepts connections on lis until the server stops.
func (s *GracefulServer) Serve(lis net.Listener) error {
	s.shutdownMu.Lock()
	s.listener = lis
	s.shutdownMu.Unlock()

	s.logger.Info("grpc_server_started", "address", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the server NOT_SERVING, stops accepting new
// connections and waits for in-flight runs to complete.
func (s *GracefulServer) GracefulStop() {
	if !s.beginShutdown() {
		return
	}

	s.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// Stop immediately stops the server.
// Use GracefulStop for production; this is for emergency shutdown.
func (s *GracefulServer) Stop() {
	if !s.beginShutdown() {
		return
	}

	s.logger.Warn("grpc_immediate_stop")
	s.grpcServer.Stop()
}

// ShutdownWithTimeout performs graceful shutdown with a timeout.
// If shutdown doesn't complete within timeout, it forces an immediate stop.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})

	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout",
			"timeout_ms", timeout.Milliseconds(),
		)
		s.grpcServer.Stop()
	}
}

func (s *GracefulServer) beginShutdown() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return false
	}
	s.isShutdown = true
	s.health.Shutdown()
	return true
}

// GetGRPCServer returns the underlying grpc.Server.
func (s *GracefulServer) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the bound address once serving, else the configured one.
func (s *GracefulServer) Address() string {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
