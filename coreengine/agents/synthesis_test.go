package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
)

func analyzedEnvelope() *envelope.Envelope {
	env := researchedEnvelope(healthcareGoal)
	env.Data.Analysis = "Adoption will be uneven."
	env.Data.Insights = []string{"Imaging leads adoption"}
	env.Data.Recommendations = []string{"Invest in data governance"}
	return env
}

func TestSynthesis_Success(t *testing.T) {
	report := "Executive Summary\n...\nActionable Recommendations\n..."
	llm := &MockLLMProvider{response: report}
	s := NewSynthesis(llm, &MockLogger{})
	in := analyzedEnvelope()

	out, err := s.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, envelope.StatusCompleted, out.Status)
	assert.Equal(t, report, out.Data.SynthesizedOutput)
	require.NotNil(t, out.Data.FormattedOutput)
	assert.Equal(t, report, out.Data.FormattedOutput.FormattedText)
	assert.Equal(t, report, out.FinalText())
	assert.Equal(t, ConfidenceSynthesis, s.Confidence())

	// Prior data is carried forward.
	assert.Equal(t, in.Data.Plan, out.Data.Plan)
	assert.Equal(t, in.Data.ResearchSummary, out.Data.ResearchSummary)
	assert.Equal(t, in.Data.Analysis, out.Data.Analysis)
	assert.Equal(t, in.Data.Insights, out.Data.Insights)
	assert.Equal(t, in.Data.Recommendations, out.Data.Recommendations)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "User Goal: "+healthcareGoal)
	assert.Contains(t, prompt, "\"analysis\": \"Adoption will be uneven.\"")
	for _, section := range []string{"Executive Summary", "Key Findings", "Detailed Analysis", "Actionable Recommendations"} {
		assert.Contains(t, prompt, section)
	}
}

func TestSynthesis_UpstreamErrorShortCircuits(t *testing.T) {
	llm := &MockLLMProvider{response: "should not be called"}
	s := NewSynthesis(llm, &MockLogger{})
	in := analyzedEnvelope()
	in.Fail("research", "An exception occurred: boom")

	out, err := s.Process(context.Background(), in)
	require.NoError(t, err)

	want := "Error: Could not complete request due to a previous error: An exception occurred: boom"
	assert.Equal(t, envelope.StatusError, out.Status)
	assert.Equal(t, want, out.Data.SynthesizedOutput)
	assert.Equal(t, want, out.Data.FormattedOutput.FormattedText)
	assert.Equal(t, in.Context, out.Context, "context preserved")
	assert.Equal(t, ConfidenceFailed, s.Confidence())
	assert.Empty(t, llm.prompts)

	// A retry on the passthrough output reports the same thing.
	again, err := s.Process(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, want, again.Data.SynthesizedOutput)
	assert.Empty(t, llm.prompts)
}

func TestSynthesis_MissingGoal(t *testing.T) {
	llm := &MockLLMProvider{response: "x"}
	s := NewSynthesis(llm, &MockLogger{})
	in := analyzedEnvelope()
	in.Context.Goal = ""

	out, err := s.Process(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, out.IsError())
	assert.Equal(t, "No goal specified in context", out.Context.Error)
	assert.Equal(t, "Error: No goal specified in context", out.Data.SynthesizedOutput)
	assert.Empty(t, llm.prompts)
}

func TestSynthesis_LLMFailureThenRetry(t *testing.T) {
	llm := &MockLLMProvider{err: errors.New("deadline exceeded")}
	s := NewSynthesis(llm, &MockLogger{})

	failed, err := s.Process(context.Background(), analyzedEnvelope())
	require.NoError(t, err)
	assert.True(t, failed.IsError())
	assert.Equal(t, "synthesis", failed.Context.FailedStage)
	assert.True(t, strings.HasPrefix(failed.Data.FormattedOutput.FormattedText, "Error: "))
	assert.Equal(t, ConfidenceFailed, s.Confidence())

	// Its own earlier error does not short-circuit the retry.
	llm.err = nil
	llm.response = "final report"
	out, err := s.Process(context.Background(), failed)
	require.NoError(t, err)

	assert.Equal(t, envelope.StatusCompleted, out.Status)
	assert.Equal(t, "final report", out.Data.SynthesizedOutput)
	assert.Empty(t, out.Context.Error)
	assert.Equal(t, ConfidenceSynthesis, s.Confidence())
}
