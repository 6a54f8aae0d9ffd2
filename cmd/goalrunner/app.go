package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/agents"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/config"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/launchdata"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/llm"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/logging"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/observability"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/runtime"
)

// app holds the process-wide dependencies every subcommand builds pipelines from.
type app struct {
	cfg    *config.CoreConfig
	logger *logging.Logger
	llm    agents.LLMProvider
	data   agents.LaunchData

	stopTracing func(context.Context) error
}

// newApp loads config and builds the shared dependencies. Flag values win
// over file and environment values.
func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	config.SetCoreConfig(cfg)
	logger := logging.New("goalrunner")

	a := &app{
		cfg:         cfg,
		logger:      logger,
		stopTracing: func(context.Context) error { return nil },
	}

	provider, err := llm.New(llm.ConfigFromCore(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("configure llm: %w", err)
	}
	a.llm = provider
	a.data = launchdata.NewClient(launchdata.ConfigFromCore(cfg), logger)

	if cfg.OTLPEndpoint != "" {
		stop, err := observability.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.stopTracing = stop
	}

	logger.Debug("app_configured",
		"llm_provider", provider.Name(),
		"llm_model", provider.Model(),
		"max_iterations", cfg.MaxIterations,
		"confidence_threshold", cfg.ConfidenceThreshold,
	)
	return a, nil
}

// newPipeline builds a fresh agent set. obs may be nil.
func (a *app) newPipeline(obs runtime.Observer) *runtime.Pipeline {
	p := runtime.NewPipeline(a.llm, a.data, runtime.ConfigFromCore(a.cfg), a.logger)
	if obs != nil {
		p.SetObserver(obs)
	}
	return p
}

// Close flushes pending spans.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.stopTracing(ctx); err != nil {
		a.logger.Warn("tracer_shutdown_failed", "error", err.Error())
	}
}
