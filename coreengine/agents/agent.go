// Package agents provides the four pipeline agents: planner, research,
// analysis and synthesis.
//
// Every agent takes an envelope and returns a new one. The input is never
// mutated. Failures become error envelopes; Process only returns a Go error
// when the caller's context is done.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/observability"
)

// LLMProvider is the interface for LLM providers.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// EventContext is the interface for event emission.
type EventContext interface {
	EmitAgentStarted(agentName string) error
	EmitAgentCompleted(agentName string, status string, durationMS int, err error) error
}

// Confidence levels set by the agents.
const (
	ConfidenceHigh      = 0.9
	ConfidenceSynthesis = 0.95
	ConfidenceDegraded  = 0.4
	ConfidenceFailed    = 0.1
)

var tracer = otel.Tracer("goalrunner/agents")

// =============================================================================
// STATE
// =============================================================================

// HistoryEntry is one Process call: a snapshot of its input, its output and
// the confidence that followed.
type HistoryEntry struct {
	Input      *envelope.Envelope
	Output     *envelope.Envelope
	Confidence float64
}

// State is the per-agent confidence and call history.
// Safe for concurrent reads while the owning agent runs.
type State struct {
	name string

	mu         sync.RWMutex
	confidence float64
	history    []HistoryEntry
}

// Name returns the agent name.
func (s *State) Name() string { return s.name }

// Confidence returns the confidence set by the latest Process call.
func (s *State) Confidence() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confidence
}

// History returns a copy of the call history, oldest first.
func (s *State) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State) setConfidence(c float64) {
	s.mu.Lock()
	s.confidence = clamp01(c)
	s.mu.Unlock()
}

func (s *State) record(in, out *envelope.Envelope) {
	s.mu.Lock()
	s.history = append(s.history, HistoryEntry{
		Input:      in.Clone(),
		Output:     out.Clone(),
		Confidence: s.confidence,
	})
	s.mu.Unlock()
}

// =============================================================================
// SHARED PROCESSING
// =============================================================================

type base struct {
	State
	llm      LLMProvider
	logger   Logger
	eventCtx EventContext
}

func (b *base) init(name string, llm LLMProvider, logger Logger) {
	b.name = name
	b.llm = llm
	b.logger = logger.Bind("agent", name)
}

// SetEventContext sets the event context for this agent.
func (b *base) SetEventContext(ctx EventContext) {
	b.eventCtx = ctx
}

// stageFunc fills env, which is already a private copy of the input, and
// reports how many LLM calls it made.
type stageFunc func(ctx context.Context, env *envelope.Envelope) (llmCalls int)

func (b *base) run(ctx context.Context, in *envelope.Envelope, stage stageFunc) (*envelope.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	if in == nil {
		in = envelope.New("")
	}

	ctx, span := tracer.Start(ctx, "agent.process", trace.WithAttributes(
		attribute.String("goalrunner.agent.name", b.name),
		attribute.String("goalrunner.request.id", in.RequestID),
	))
	defer span.End()

	startTime := time.Now()
	env := in.Clone()
	env.RecordAgentStart(b.name)
	b.emitStarted()
	b.logger.Info(fmt.Sprintf("%s_started", b.name))

	llmCalls := stage(ctx, env)
	durationMS := int(time.Since(startTime).Milliseconds())

	span.SetAttributes(
		attribute.Int("goalrunner.llm.calls", llmCalls),
		attribute.Int("duration_ms", durationMS),
		attribute.Float64("goalrunner.agent.confidence", b.Confidence()),
	)

	if env.IsError() {
		msg := env.Context.Error
		env.RecordAgentComplete(b.name, envelope.RecordError, &msg, llmCalls)
		observability.RecordAgentExecution(b.name, string(envelope.StatusError), durationMS)
		span.SetStatus(codes.Error, msg)
		b.logger.Warn(fmt.Sprintf("%s_error", b.name), "error", msg, "duration_ms", durationMS)
		b.emitCompleted(envelope.RecordError, durationMS, errors.New(msg))
	} else {
		env.RecordAgentComplete(b.name, envelope.RecordSuccess, nil, llmCalls)
		observability.RecordAgentExecution(b.name, string(env.Status), durationMS)
		span.SetStatus(codes.Ok, "success")
		b.logger.Info(fmt.Sprintf("%s_completed", b.name),
			"duration_ms", durationMS,
			"confidence", b.Confidence(),
		)
		b.emitCompleted(envelope.RecordSuccess, durationMS, nil)
	}

	b.record(in, env)

	if err := ctx.Err(); err != nil {
		return env, fmt.Errorf("%s: %w", b.name, err)
	}
	return env, nil
}

// fail turns env into an error envelope for this agent.
func (b *base) fail(env *envelope.Envelope, msg string) {
	env.Fail(b.name, msg)
	b.setConfidence(ConfidenceFailed)
}

// succeed marks env completed and clears an error this agent raised on an
// earlier attempt.
func (b *base) succeed(env *envelope.Envelope, status envelope.Status, confidence float64) {
	env.Status = status
	env.ClearStageError(b.name)
	b.setConfidence(confidence)
}

func (b *base) emitStarted() {
	if b.eventCtx != nil {
		_ = b.eventCtx.EmitAgentStarted(b.name)
	}
}

func (b *base) emitCompleted(status string, durationMS int, err error) {
	if b.eventCtx != nil {
		_ = b.eventCtx.EmitAgentCompleted(b.name, status, durationMS, err)
	}
}

// Helper functions

func clamp01(v float64) float64 {
	return min(max(v, 0.0), 1.0)
}

// stripCodeFences removes markdown code fence markers around model output.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// extractAndParseJSON decodes the first JSON object in text as T.
// Fences are stripped; prose around the object is tolerated.
func extractAndParseJSON[T any](text string) (T, error) {
	text = stripCodeFences(text)

	// Try direct parse first
	var result T
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result, nil
	}

	// Try to find JSON object in text
	start := -1
	braceCount := 0
	for i, c := range text {
		if c == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
		} else if c == '}' && start != -1 {
			braceCount--
			if braceCount == 0 {
				var candidate T
				if err := json.Unmarshal([]byte(text[start:i+1]), &candidate); err == nil {
					return candidate, nil
				}
				start = -1
			}
		}
	}

	var zero T
	return zero, fmt.Errorf("no valid JSON object found in response")
}
