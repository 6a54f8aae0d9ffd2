// Package testutil provides shared test utilities and mocks for integration tests.
//
// All mocks in this package are designed for testing the coreengine components
// in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/agents"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/launchdata"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// Prompt prefixes of the four agent templates, for use as Responses keys.
const (
	PlanPromptPrefix       = "Given the goal:"
	EvaluationPromptPrefix = "Original Goal:"
	ResearchPromptPrefix   = "Based on the following goal and plan"
	AnalysisPromptPrefix   = "Analyze the following research summary"
	SynthesisPromptPrefix  = "Your task is to create a final"
)

// MockLLMProvider implements agents.LLMProvider for testing.
// Configure responses by prompt prefix or use DefaultResponse.
type MockLLMProvider struct {
	// Responses maps prompt prefixes to responses.
	// The longest matching prefix wins.
	Responses map[string]string

	// Errors maps prompt prefixes to errors. Checked before Responses.
	Errors map[string]error

	// DefaultResponse is returned when no prefix matches.
	DefaultResponse string

	// Delay simulates LLM latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all prompts for assertion.
	Calls []string

	// GenerateFunc allows custom generation logic.
	// If set, this is called instead of using Responses.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	mu sync.Mutex
}

// NewMockLLMProvider creates a MockLLMProvider with sensible defaults.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{
		Responses:       make(map[string]string),
		Errors:          make(map[string]error),
		DefaultResponse: "Mock response",
	}
}

// NewScriptedLLMProvider returns a mock that answers every agent template
// with a well-formed reply and scores the final output with score.
func NewScriptedLLMProvider(score string) *MockLLMProvider {
	return NewMockLLMProvider().
		WithResponse(PlanPromptPrefix, `{"plan":"Research, analyze, then write the report.","agent_order":["research","analysis","synthesis"]}`).
		WithResponse(ResearchPromptPrefix, "Research findings about the goal.").
		WithResponse(AnalysisPromptPrefix, `{"analysis_text":"Key analysis.","insights":["insight one"],"recommendations":["do this"]}`).
		WithResponse(SynthesisPromptPrefix, "Executive Summary\nFinal report.").
		WithResponse(EvaluationPromptPrefix, score)
}

// Generate implements agents.LLMProvider.
func (m *MockLLMProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, prompt)
	customFunc := m.GenerateFunc
	m.mu.Unlock()

	// If custom function is set, use it
	if customFunc != nil {
		return customFunc(ctx, prompt)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Error != nil {
		return "", m.Error
	}
	if prefix, ok := longestPrefix(prompt, m.Errors); ok {
		return "", m.Errors[prefix]
	}
	if prefix, ok := longestPrefix(prompt, m.Responses); ok {
		return m.Responses[prefix], nil
	}
	return m.DefaultResponse, nil
}

func longestPrefix[V any](prompt string, m map[string]V) (string, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.HasPrefix(prompt, k) {
			return k, true
		}
	}
	return "", false
}

// WithResponse adds a prefix-based response.
func (m *MockLLMProvider) WithResponse(prefix, response string) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[prefix] = response
	return m
}

// WithPrefixError makes prompts starting with prefix fail.
func (m *MockLLMProvider) WithPrefixError(prefix string, err error) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[prefix] = err
	return m
}

// WithError configures the mock to return an error.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockLLMProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// CallsWithPrefix counts recorded prompts starting with prefix.
func (m *MockLLMProvider) CallsWithPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.Calls {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

// Reset clears call history.
func (m *MockLLMProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Calls = nil
}

// =============================================================================
// MOCK EVENT CONTEXT
// =============================================================================

// MockEventContext captures agent events for assertion.
type MockEventContext struct {
	// Events captures all emitted events.
	Events []AgentEvent

	// Error causes emit methods to return this error.
	Error error

	mu sync.Mutex
}

// AgentEvent represents a captured event.
type AgentEvent struct {
	Type       string
	AgentName  string
	Status     string
	DurationMS int
	Error      error
	Timestamp  time.Time
}

// NewMockEventContext creates a MockEventContext.
func NewMockEventContext() *MockEventContext {
	return &MockEventContext{
		Events: make([]AgentEvent, 0),
	}
}

// EmitAgentStarted records an agent started event.
func (m *MockEventContext) EmitAgentStarted(agentName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Error != nil {
		return m.Error
	}

	m.Events = append(m.Events, AgentEvent{
		Type:      "started",
		AgentName: agentName,
		Timestamp: time.Now(),
	})
	return nil
}

// EmitAgentCompleted records an agent completed event.
func (m *MockEventContext) EmitAgentCompleted(agentName string, status string, durationMS int, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Error != nil {
		return m.Error
	}

	m.Events = append(m.Events, AgentEvent{
		Type:       "completed",
		AgentName:  agentName,
		Status:     status,
		DurationMS: durationMS,
		Error:      err,
		Timestamp:  time.Now(),
	})
	return nil
}

// GetEvents returns a copy of captured events (thread-safe).
func (m *MockEventContext) GetEvents() []AgentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]AgentEvent, len(m.Events))
	copy(copied, m.Events)
	return copied
}

// GetStartedAgents returns names of agents that were started.
func (m *MockEventContext) GetStartedAgents() []string {
	return m.namesOf("started")
}

// GetCompletedAgents returns names of agents that completed.
func (m *MockEventContext) GetCompletedAgents() []string {
	return m.namesOf("completed")
}

func (m *MockEventContext) namesOf(kind string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for _, e := range m.Events {
		if e.Type == kind {
			names = append(names, e.AgentName)
		}
	}
	return names
}

// Clear removes all captured events.
func (m *MockEventContext) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}

// =============================================================================
// RECORDING OBSERVER
// =============================================================================

// RecordingObserver captures orchestrator progress callbacks as lines.
type RecordingObserver struct {
	mu    sync.Mutex
	lines []string
}

func (r *RecordingObserver) add(format string, args ...any) {
	r.mu.Lock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *RecordingObserver) RunStarted(goal string) { r.add("run %s", goal) }
func (r *RecordingObserver) PlanningCompleted(plan string, agentOrder []string) {
	r.add("planned %s", strings.Join(agentOrder, ","))
}
func (r *RecordingObserver) AgentStarted(name string) { r.add("start %s", name) }
func (r *RecordingObserver) IterationStarted(iteration int, name string) {
	r.add("iteration %d %s", iteration, name)
}
func (r *RecordingObserver) AgentCompleted(name string, confidence float64) {
	r.add("done %s %.2f", name, confidence)
}
func (r *RecordingObserver) UnknownAgent(name string) { r.add("unknown %s", name) }

// Lines returns a copy of the captured lines.
func (r *RecordingObserver) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements agents.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) Bind(fields ...any) agents.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.Logs {
		if log.Level == level && log.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// FAKE DATA API
// =============================================================================

// Canned provider payloads served by FakeDataAPI.
const (
	LaunchesBody = `{"result":[
		{"name":"Electron | Test","provider":{"name":"Rocket Lab"},"pad":{"name":"LC-1A","location":{"id":9,"name":"Mahia"}}},
		{"name":"Starlink 12-5","provider":{"name":"SpaceX"},"t0":"2026-10-15T04:30Z",
		 "pad":{"name":"SLC-40","location":{"id":61,"name":"Cape Canaveral SFS"}}}
	]}`
	LocationsBody = `{"result":[{"id":61,"name":"Cape Canaveral SFS","latitude":"28.4889","longitude":"-80.5778"}]}`
	WeatherBody   = `{"weather":[{"description":"clear sky"}],"main":{"temp":25},"wind":{"speed":4},"clouds":{"all":10}}`
)

// FakeDataAPI serves RocketLaunch.Live and OpenWeather look-alike endpoints.
type FakeDataAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	hits     map[string]int
	queries  map[string]url.Values
}

// NewFakeDataAPI starts a FakeDataAPI closed at test cleanup.
func NewFakeDataAPI(t testing.TB) *FakeDataAPI {
	t.Helper()
	f := &FakeDataAPI{
		bodies: map[string]string{
			"/launches":  LaunchesBody,
			"/locations": LocationsBody,
			"/weather":   WeatherBody,
		},
		statuses: map[string]int{},
		hits:     map[string]int{},
		queries:  map[string]url.Values{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeDataAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body, ok := f.bodies[r.URL.Path]
	status := f.statuses[r.URL.Path]
	f.hits[r.URL.Path]++
	f.queries[r.URL.Path] = r.URL.Query()
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// SetBody replaces the payload for path.
func (f *FakeDataAPI) SetBody(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
}

// SetStatus makes path answer with code.
func (f *FakeDataAPI) SetStatus(path string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[path] = code
}

// Hits returns how often path was requested.
func (f *FakeDataAPI) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// LastQuery returns the query string of the latest request to path.
func (f *FakeDataAPI) LastQuery(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

// Config points a launchdata client at the fake.
func (f *FakeDataAPI) Config() launchdata.Config {
	return launchdata.Config{
		LaunchURL:     f.Server.URL + "/launches",
		LocationsURL:  f.Server.URL + "/locations",
		WeatherURL:    f.Server.URL + "/weather",
		WeatherAPIKey: "test-key",
		Timeout:       5 * time.Second,
	}
}

// Client returns a launchdata client for the fake.
func (f *FakeDataAPI) Client(logger launchdata.Logger) *launchdata.Client {
	return launchdata.NewClient(f.Config(), logger)
}

// =============================================================================
// ENVELOPE HELPERS
// =============================================================================

// NewTestEnvelope creates an envelope for goal as the planner would leave it.
func NewTestEnvelope(goal string, order ...string) *envelope.Envelope {
	if len(order) == 0 {
		order = agents.DefaultOrder()
	}
	env := envelope.New(goal)
	env.Status = envelope.StatusPlanned
	env.Data.Plan = "Test plan."
	env.AgentOrder = order
	return env
}

// =============================================================================
// ASSERTION HELPERS
// =============================================================================

// AssertEnvelopeCompleted checks that the envelope finished without error.
func AssertEnvelopeCompleted(env *envelope.Envelope) error {
	if env == nil {
		return fmt.Errorf("expected envelope, got nil")
	}
	if env.Status != envelope.StatusCompleted {
		return fmt.Errorf("expected status=%q, got %q (error: %s)", envelope.StatusCompleted, env.Status, env.Context.Error)
	}
	return nil
}

// AssertEnvelopeFailed checks that stage failed the envelope.
func AssertEnvelopeFailed(env *envelope.Envelope, stage string) error {
	if env == nil || !env.IsError() {
		return fmt.Errorf("expected error envelope")
	}
	if env.Context.FailedStage != stage {
		return fmt.Errorf("expected failed_stage=%q, got %q", stage, env.Context.FailedStage)
	}
	return nil
}

// AssertProcessedBy checks the audit trail lists agents in order.
func AssertProcessedBy(env *envelope.Envelope, agentNames ...string) error {
	if len(env.ProcessingHistory) != len(agentNames) {
		return fmt.Errorf("expected %d processing records, got %d", len(agentNames), len(env.ProcessingHistory))
	}
	for i, name := range agentNames {
		if got := env.ProcessingHistory[i].Agent; got != name {
			return fmt.Errorf("record %d: expected agent %q, got %q", i, name, got)
		}
	}
	return nil
}
