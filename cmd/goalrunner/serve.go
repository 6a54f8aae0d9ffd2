package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	goalgrpc "github.com/jeeves-cluster-organization/goalrunner/coreengine/grpc"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/observability"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/ratelimit"
)

const (
	shutdownTimeout = 30 * time.Second

	// rateLimitCleanup is how often idle client windows are dropped.
	rateLimitCleanup = "@every 10m"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the goal service over gRPC with Prometheus metrics",
		Long: `Starts the goalrunner.v1.GoalService gRPC server and a metrics endpoint.
Every Execute request runs on its own agent set. SIGINT or SIGTERM drains
in-flight runs before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("addr") {
				a.cfg.GRPCAddr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":50051", "gRPC listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "metrics listen address, empty disables")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	goals := goalgrpc.NewGoalServer(a.logger, func() goalgrpc.Runner {
		return a.newPipeline(nil)
	})

	var opts []grpc.ServerOption
	limits := ratelimit.Config{PerMinute: a.cfg.RateLimitPerMinute, PerHour: a.cfg.RateLimitPerHour}
	if limits.Enabled() {
		limiter := ratelimit.New(limits)
		opts = goalgrpc.ServerOptions(a.logger, goalgrpc.RateLimitInterceptor(limiter, a.logger))

		cleanup, _, err := newScheduler(rateLimitCleanup, a.logger, func() {
			if n := limiter.CleanupExpired(); n > 0 {
				a.logger.Debug("rate_limit_windows_cleaned", "count", n)
			}
		})
		if err != nil {
			return err
		}
		cleanup.Start()
		defer cleanup.Stop()
		a.logger.Info("rate_limit_enabled", "per_minute", limits.PerMinute, "per_hour", limits.PerHour)
	}
	srv := goalgrpc.NewGracefulServer(goals, a.logger, a.cfg.GRPCAddr, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if a.cfg.MetricsAddr != "" {
		metrics := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("metrics_server_started", "address", a.cfg.MetricsAddr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metrics.Shutdown(shutdownCtx)
		})
	}

	a.logger.Info("goalrunner_serving", "grpc_address", a.cfg.GRPCAddr, "metrics_address", a.cfg.MetricsAddr)
	err := g.Wait()
	a.logger.Info("goalrunner_stopped")
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
