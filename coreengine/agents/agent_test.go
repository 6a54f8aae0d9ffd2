package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const healthcareGoal = "Analyze the potential impact of AI on healthcare in the next decade"

// MockLogger implements Logger for testing.
type MockLogger struct {
	mu         sync.Mutex
	infoCalls  []string
	debugCalls []string
	warnCalls  []string
	errorCalls []string
}

func (m *MockLogger) Info(msg string, fields ...any)  { m.add(&m.infoCalls, msg) }
func (m *MockLogger) Debug(msg string, fields ...any) { m.add(&m.debugCalls, msg) }
func (m *MockLogger) Warn(msg string, fields ...any)  { m.add(&m.warnCalls, msg) }
func (m *MockLogger) Error(msg string, fields ...any) { m.add(&m.errorCalls, msg) }
func (m *MockLogger) Bind(fields ...any) Logger       { return m }

func (m *MockLogger) add(dst *[]string, msg string) {
	m.mu.Lock()
	*dst = append(*dst, msg)
	m.mu.Unlock()
}

// MockLLMProvider implements LLMProvider for testing.
// The first prefix in replies that the prompt starts with wins.
type MockLLMProvider struct {
	replies  []reply
	response string
	err      error
	prompts  []string
}

type reply struct {
	prefix string
	text   string
	err    error
}

func (m *MockLLMProvider) on(prefix, text string) *MockLLMProvider {
	m.replies = append(m.replies, reply{prefix: prefix, text: text})
	return m
}

func (m *MockLLMProvider) failOn(prefix string, err error) *MockLLMProvider {
	m.replies = append(m.replies, reply{prefix: prefix, err: err})
	return m
}

func (m *MockLLMProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, r := range m.replies {
		if strings.HasPrefix(prompt, r.prefix) {
			return r.text, r.err
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// MockEventContext implements EventContext for testing.
type MockEventContext struct {
	startedAgents   []string
	completedAgents []string
	statuses        []string
}

func (m *MockEventContext) EmitAgentStarted(agentName string) error {
	m.startedAgents = append(m.startedAgents, agentName)
	return nil
}

func (m *MockEventContext) EmitAgentCompleted(agentName string, status string, durationMS int, err error) error {
	m.completedAgents = append(m.completedAgents, agentName)
	m.statuses = append(m.statuses, status)
	return nil
}

func researchedEnvelope(goal string) *envelope.Envelope {
	env := envelope.New(goal)
	env.Status = envelope.StatusCompleted
	env.Data.Plan = "research, analyze, report"
	env.Data.ResearchSummary = "AI diagnostics adoption is accelerating."
	env.Data.SourceData = &envelope.SourceData{Source: SourceLLM}
	return env
}

// =============================================================================
// STATE TESTS
// =============================================================================

func TestState_StartsAtZeroConfidence(t *testing.T) {
	a := NewAnalysis(&MockLLMProvider{}, &MockLogger{})

	assert.Equal(t, "analysis", a.Name())
	assert.Equal(t, 0.0, a.Confidence())
	assert.Empty(t, a.History())
}

func TestState_HistoryIsAppendOnlySnapshots(t *testing.T) {
	llm := &MockLLMProvider{response: `{"analysis_text":"a","insights":[],"recommendations":[]}`}
	a := NewAnalysis(llm, &MockLogger{})
	in := researchedEnvelope(healthcareGoal)

	out1, err := a.Process(context.Background(), in)
	require.NoError(t, err)
	_, err = a.Process(context.Background(), out1)
	require.NoError(t, err)

	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, ConfidenceHigh, history[0].Confidence)

	// Mutating the returned output must not rewrite history.
	out1.Data.Analysis = "tampered"
	assert.Equal(t, "a", history[0].Output.Data.Analysis)

	// Mutating the returned history slice must not affect the agent.
	history[0] = HistoryEntry{}
	assert.NotNil(t, a.History()[0].Input)
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	llm := &MockLLMProvider{response: `{"analysis_text":"a","insights":["i"],"recommendations":["r"]}`}
	a := NewAnalysis(llm, &MockLogger{})
	in := researchedEnvelope(healthcareGoal)

	out, err := a.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Empty(t, in.Data.Analysis)
	assert.Empty(t, in.ProcessingHistory)
	assert.Equal(t, "a", out.Data.Analysis)
	require.Len(t, out.ProcessingHistory, 1)
	assert.Equal(t, "analysis", out.ProcessingHistory[0].Agent)
	assert.Equal(t, envelope.RecordSuccess, out.ProcessingHistory[0].Status)
	assert.Equal(t, 1, out.ProcessingHistory[0].LLMCalls)
}

func TestProcess_CanceledContext(t *testing.T) {
	llm := &MockLLMProvider{response: "summary"}
	r := NewResearch(llm, nil, &MockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Process(ctx, envelope.New(healthcareGoal))

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, out)
	assert.Empty(t, llm.prompts)
}

func TestProcess_NilInputIsMissingGoal(t *testing.T) {
	s := NewSynthesis(&MockLLMProvider{}, &MockLogger{})

	out, err := s.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, out.IsError())
	assert.Equal(t, "No goal specified in context", out.Context.Error)
}

func TestEventContextEmitsEvents(t *testing.T) {
	events := &MockEventContext{}
	a := NewAnalysis(&MockLLMProvider{err: errors.New("down")}, &MockLogger{})
	a.SetEventContext(events)

	_, err := a.Process(context.Background(), researchedEnvelope(healthcareGoal))
	require.NoError(t, err)

	assert.Equal(t, []string{"analysis"}, events.startedAgents)
	assert.Equal(t, []string{"analysis"}, events.completedAgents)
	assert.Equal(t, []string{envelope.RecordError}, events.statuses)
}

func TestProcess_LogsLifecycle(t *testing.T) {
	logger := &MockLogger{}
	s := NewSynthesis(&MockLLMProvider{response: "report"}, logger)

	_, err := s.Process(context.Background(), researchedEnvelope(healthcareGoal))
	require.NoError(t, err)

	assert.Contains(t, logger.infoCalls, "synthesis_started")
	assert.Contains(t, logger.infoCalls, "synthesis_completed")
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-3))
	assert.Equal(t, 1.0, clamp01(7))
	assert.Equal(t, 0.42, clamp01(0.42))
}

func TestExtractAndParseJSON(t *testing.T) {
	type payload struct {
		Plan string `json:"plan"`
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain json", `{"plan":"p"}`, "p", false},
		{"fenced json", "```json\n{\"plan\":\"p\"}\n```", "p", false},
		{"bare fence", "```\n{\"plan\":\"p\"}\n```", "p", false},
		{"embedded in prose", `Sure! Here it is: {"plan":"p"} hope that helps`, "p", false},
		{"nested braces", `note {"plan":"p","meta":{"k":1}} end`, "p", false},
		{"second object valid", `{broken} then {"plan":"q"}`, "q", false},
		{"no json", "just words", "", true},
		{"unbalanced", `{"plan":"p"`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractAndParseJSON[payload](tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Plan)
		})
	}
}
