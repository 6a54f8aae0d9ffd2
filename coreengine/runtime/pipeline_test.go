package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/launchdata"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/testutil"
)

// =============================================================================
// END-TO-END PIPELINE TESTS
// =============================================================================

func TestPipeline_HealthcareGoal(t *testing.T) {
	llm := testutil.NewScriptedLLMProvider("0.85")
	events := testutil.NewMockEventContext()
	p := NewPipeline(llm, nil, testConfig(), testutil.NewMockLogger())
	p.SetEventContext(events)

	result, err := p.Run(context.Background(), healthcareGoal)
	require.NoError(t, err)

	assert.InDelta(t, 0.85, result.Evaluation.GoalSatisfaction, 1e-9)
	assert.True(t, result.Evaluation.Success)
	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, []string{"research", "analysis", "synthesis"}, result.AgentOrder)

	final := result.FinalOutput
	require.NoError(t, testutil.AssertEnvelopeCompleted(final))
	require.NoError(t, testutil.AssertProcessedBy(final, "planner", "research", "analysis", "synthesis"))
	assert.Equal(t, "Executive Summary\nFinal report.", final.FinalText())
	assert.Equal(t, "Research, analyze, then write the report.", final.Data.Plan)
	assert.Equal(t, "Research findings about the goal.", final.Data.ResearchSummary)
	assert.Equal(t, []string{"insight one"}, final.Data.Insights)

	// Plan, research, analysis, synthesis and evaluation.
	assert.Equal(t, 5, llm.GetCallCount())
	assert.Equal(t, []string{"planner", "research", "analysis", "synthesis"}, events.GetStartedAgents())
}

func TestPipeline_LaunchGoalUsesDataProviders(t *testing.T) {
	api := testutil.NewFakeDataAPI(t)
	llm := testutil.NewScriptedLLMProvider("0.9")
	p := NewPipeline(llm, api.Client(testutil.NewMockLogger()), testConfig(), testutil.NewMockLogger())

	result, err := p.Run(context.Background(), "When is the next SpaceX launch and is the weather OK?")
	require.NoError(t, err)

	final := result.FinalOutput
	require.NoError(t, testutil.AssertEnvelopeCompleted(final))
	assert.Contains(t, final.Data.ResearchSummary, "Mission: Starlink 12-5")
	assert.Contains(t, final.Data.ResearchSummary, "Launch Site: Cape Canaveral SFS - SLC-40")
	assert.Contains(t, final.Data.ResearchSummary, "Weather conditions appear favorable.")
	require.NotNil(t, final.Data.SourceData)
	assert.Equal(t, launchdata.ProviderName, final.Data.SourceData.LaunchDataProvider)

	assert.Equal(t, 0, llm.CallsWithPrefix(testutil.ResearchPromptPrefix))
	assert.Equal(t, 1, api.Hits("/weather"))
	assert.Equal(t, "metric", api.LastQuery("/weather").Get("units"))
}

func TestPipeline_ResearchFailureReachesSynthesis(t *testing.T) {
	llm := testutil.NewScriptedLLMProvider("0.3").
		WithPrefixError(testutil.ResearchPromptPrefix, errors.New("llm down"))
	p := NewPipeline(llm, nil, testConfig(), testutil.NewMockLogger())

	result, err := p.Run(context.Background(), healthcareGoal)
	require.NoError(t, err)

	// Research burns the whole shared budget; nothing is left for synthesis.
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, 6, llm.CallsWithPrefix(testutil.ResearchPromptPrefix))
	assert.Equal(t, 0, llm.CallsWithPrefix(testutil.SynthesisPromptPrefix))
	assert.False(t, result.Evaluation.Success)

	final := result.FinalOutput
	assert.Equal(t, envelope.StatusError, final.Status)
	assert.Equal(t, "research", final.Context.FailedStage)
	assert.Equal(t,
		"Error: Could not complete request due to a previous error: An exception occurred: llm down",
		final.FinalText())
	assert.Equal(t, []AgentRun{
		{Name: "research", Runs: 6, Confidence: 0.1, Status: envelope.StatusError},
		{Name: "analysis", Runs: 1, Confidence: 0.9, Status: envelope.StatusCompleted},
		{Name: "synthesis", Runs: 1, Confidence: 0.1, Status: envelope.StatusError},
	}, result.AgentRuns)
}

func TestPipeline_PlannerOrderDrivesExecution(t *testing.T) {
	llm := testutil.NewScriptedLLMProvider("0.9").
		WithResponse(testutil.PlanPromptPrefix, `{"plan":"Just summarize.","agent_order":["synthesis"]}`)
	p := NewPipeline(llm, nil, testConfig(), testutil.NewMockLogger())

	result, err := p.Run(context.Background(), healthcareGoal)
	require.NoError(t, err)

	assert.Equal(t, []string{"synthesis"}, result.AgentOrder)
	assert.Equal(t, []string{"synthesis"}, result.FinalOutput.AgentOrder)
	assert.Equal(t, 0, llm.CallsWithPrefix(testutil.ResearchPromptPrefix))
	assert.Equal(t, "Executive Summary\nFinal report.", result.FinalOutput.FinalText())
}

func TestPipeline_Stage(t *testing.T) {
	p := NewPipeline(testutil.NewMockLLMProvider(), nil, testConfig(), testutil.NewMockLogger())

	for _, name := range []string{"planner", "research", " Analysis ", "SYNTHESIS"} {
		agent, ok := p.Stage(name)
		require.True(t, ok, name)
		assert.Equal(t, strings.ToLower(strings.TrimSpace(name)), agent.Name())
	}

	_, ok := p.Stage("summarizer")
	assert.False(t, ok)
}
