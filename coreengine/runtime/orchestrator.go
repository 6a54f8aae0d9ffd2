// Package runtime provides the Orchestrator, the goal pipeline engine.
//
// A run moves through planning, executing and evaluating. The planner picks
// the agent order once; each agent is then re-run on its own latest output
// while its confidence stays below the threshold. All re-runs of a run draw
// on one shared iteration budget.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/agents"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/config"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/observability"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/typeutil"
)

var tracer = otel.Tracer("goalrunner/runtime")

// Run statuses recorded in metrics.
const (
	RunSuccess     = "success"
	RunUnsatisfied = "unsatisfied"
	RunError       = "error"
)

// Planner produces the plan and scores the final output.
type Planner interface {
	Process(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
	EvaluateGoalSatisfaction(ctx context.Context, final *envelope.Envelope, goal string) float64
}

// Agent is one executable pipeline stage.
type Agent interface {
	Name() string
	Process(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
	Confidence() float64
}

// Observer receives progress callbacks during a run. All methods are called
// from the goroutine executing Run.
type Observer interface {
	RunStarted(goal string)
	PlanningCompleted(plan string, agentOrder []string)
	AgentStarted(name string)
	IterationStarted(iteration int, name string)
	AgentCompleted(name string, confidence float64)
	UnknownAgent(name string)
}

// Config bounds a run.
type Config struct {
	MaxIterations       int
	ConfidenceThreshold float64
}

// ConfigFromCore extracts the orchestration settings.
func ConfigFromCore(c *config.CoreConfig) Config {
	return Config{
		MaxIterations:       c.MaxIterations,
		ConfidenceThreshold: c.ConfidenceThreshold,
	}
}

// Evaluation is the planner's verdict on the final output.
type Evaluation struct {
	GoalSatisfaction   float64 `json:"goal_satisfaction"`
	IterationsRequired int     `json:"iterations_required"`
	Success            bool    `json:"success"`
}

// AgentRun summarises every invocation of one agent in a run.
type AgentRun struct {
	Name       string          `json:"name"`
	Runs       int             `json:"runs"`
	Confidence float64         `json:"confidence"`
	Status     envelope.Status `json:"status"`
}

// Result is the outcome of a run.
type Result struct {
	FinalOutput *envelope.Envelope `json:"final_output"`
	Evaluation  Evaluation         `json:"evaluation"`
	Iterations  int                `json:"iterations"`
	AgentOrder  []string           `json:"agent_order"`
	AgentRuns   []AgentRun         `json:"agent_runs"`
}

// ToMap returns the JSON-shaped form used by the gRPC service.
func (r *Result) ToMap() (map[string]any, error) {
	runs := make([]any, 0, len(r.AgentRuns))
	for _, ar := range r.AgentRuns {
		runs = append(runs, map[string]any{
			"name":       ar.Name,
			"runs":       ar.Runs,
			"confidence": ar.Confidence,
			"status":     string(ar.Status),
		})
	}
	order := make([]any, 0, len(r.AgentOrder))
	for _, name := range r.AgentOrder {
		order = append(order, name)
	}
	var final map[string]any
	if r.FinalOutput != nil {
		m, err := r.FinalOutput.ToMap()
		if err != nil {
			return nil, err
		}
		final = m
	}
	return map[string]any{
		"final_output": final,
		"final_text":   r.FinalOutput.FinalText(),
		"evaluation": map[string]any{
			"goal_satisfaction":   r.Evaluation.GoalSatisfaction,
			"iterations_required": r.Evaluation.IterationsRequired,
			"success":             r.Evaluation.Success,
		},
		"iterations":  r.Iterations,
		"agent_order": order,
		"agent_runs":  runs,
	}, nil
}

// Orchestrator executes goal runs. It holds no per-run state, but the agents
// it drives keep their own confidence and history, so one Orchestrator must
// not execute concurrent runs.
type Orchestrator struct {
	planner  Planner
	agents   map[string]Agent
	cfg      Config
	logger   agents.Logger
	observer Observer
}

// New creates an Orchestrator. Stages are looked up by Name().
func New(planner Planner, stages []Agent, cfg Config, logger agents.Logger) *Orchestrator {
	o := &Orchestrator{
		planner: planner,
		agents:  make(map[string]Agent, len(stages)),
		cfg:     cfg,
		logger:  logger.Bind("component", "orchestrator"),
	}
	names := make([]string, 0, len(stages))
	for _, a := range stages {
		o.agents[strings.ToLower(a.Name())] = a
		names = append(names, a.Name())
	}

	o.logger.Debug("orchestrator_agents_registered",
		"agent_count", len(o.agents),
		"agents", names,
		"max_iterations", cfg.MaxIterations,
		"confidence_threshold", cfg.ConfidenceThreshold,
	)
	return o
}

// SetObserver installs progress callbacks. Nil disables them.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Run executes goal end to end. A Go error is returned only when ctx is
// done; agent failures travel inside the final envelope.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.Int("goalrunner.max_iterations", o.cfg.MaxIterations),
		attribute.Float64("goalrunner.confidence_threshold", o.cfg.ConfidenceThreshold),
	))
	defer span.End()

	startTime := time.Now()
	o.logger.Info("orchestrator_started", "goal", typeutil.Truncate(goal, 200))
	o.notify(func(obs Observer) { obs.RunStarted(goal) })

	result, err := o.run(ctx, goal)
	durationMS := int(time.Since(startTime).Milliseconds())

	if err != nil {
		observability.RecordRun(RunError, durationMS)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("orchestrator_cancelled", "error", err.Error(), "duration_ms", durationMS)
		return result, err
	}

	status := RunUnsatisfied
	if result.Evaluation.Success {
		status = RunSuccess
	}
	observability.RecordRun(status, durationMS)
	observability.RecordGoalSatisfaction(result.Evaluation.GoalSatisfaction)

	span.SetAttributes(
		attribute.String("goalrunner.request.id", result.FinalOutput.RequestID),
		attribute.Int("goalrunner.iterations", result.Iterations),
		attribute.Float64("goalrunner.goal_satisfaction", result.Evaluation.GoalSatisfaction),
	)
	span.SetStatus(codes.Ok, status)

	o.logger.Info("orchestrator_completed",
		"envelope_id", result.FinalOutput.EnvelopeID,
		"request_id", result.FinalOutput.RequestID,
		"status", status,
		"goal_satisfaction", result.Evaluation.GoalSatisfaction,
		"iterations", result.Iterations,
		"duration_ms", durationMS,
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, goal string) (*Result, error) {
	// Planning
	planned, err := o.planner.Process(ctx, envelope.New(goal))
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	order := append([]string{}, planned.AgentOrder...)

	o.logger.Info("orchestrator_planning_completed",
		"envelope_id", planned.EnvelopeID,
		"agent_order", order,
	)
	o.notify(func(obs Observer) { obs.PlanningCompleted(planned.Data.Plan, order) })

	// Executing
	iterations := 0
	current := planned
	var runs []AgentRun

	for _, rawName := range order {
		name := strings.ToLower(strings.TrimSpace(rawName))
		agent, ok := o.agents[name]
		if !ok {
			o.logger.Warn("orchestrator_unknown_agent", "agent", rawName)
			o.notify(func(obs Observer) { obs.UnknownAgent(rawName) })
			continue
		}

		o.notify(func(obs Observer) { obs.AgentStarted(name) })
		count := 1
		if current, err = step(ctx, agent, current); err != nil {
			return partial(current, order, iterations, runs), err
		}

		for agent.Confidence() < o.cfg.ConfidenceThreshold && iterations < o.cfg.MaxIterations {
			iterations++
			count++
			observability.RecordAgentRetry(name)
			o.logger.Info("orchestrator_agent_retry",
				"agent", name,
				"iteration", iterations,
				"confidence", agent.Confidence(),
			)
			o.notify(func(obs Observer) { obs.IterationStarted(iterations, name) })

			if current, err = step(ctx, agent, current); err != nil {
				return partial(current, order, iterations, runs), err
			}
		}

		confidence := agent.Confidence()
		runs = append(runs, AgentRun{Name: name, Runs: count, Confidence: confidence, Status: current.Status})
		o.notify(func(obs Observer) { obs.AgentCompleted(name, confidence) })
	}

	// Evaluating
	if err := ctx.Err(); err != nil {
		return partial(current, order, iterations, runs), fmt.Errorf("evaluating: %w", err)
	}
	score := o.planner.EvaluateGoalSatisfaction(ctx, current, goal)

	return &Result{
		FinalOutput: current,
		Evaluation: Evaluation{
			GoalSatisfaction:   score,
			IterationsRequired: iterations,
			Success:            score >= o.cfg.ConfidenceThreshold,
		},
		Iterations: iterations,
		AgentOrder: order,
		AgentRuns:  runs,
	}, nil
}

// step runs agent once. On error the previous envelope is returned so a
// partial result always has output.
func step(ctx context.Context, agent Agent, current *envelope.Envelope) (*envelope.Envelope, error) {
	next, err := agent.Process(ctx, current)
	if err != nil {
		return current, fmt.Errorf("executing %s: %w", agent.Name(), err)
	}
	return next, nil
}

// partial builds the result handed back alongside a cancellation error.
func partial(current *envelope.Envelope, order []string, iterations int, runs []AgentRun) *Result {
	return &Result{
		FinalOutput: current,
		Evaluation:  Evaluation{IterationsRequired: iterations},
		Iterations:  iterations,
		AgentOrder:  order,
		AgentRuns:   runs,
	}
}

func (o *Orchestrator) notify(fn func(Observer)) {
	if o.observer != nil {
		fn(o.observer)
	}
}
