package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/typeutil"
)

// Analysis turns a research summary into analysis text, insights and
// recommendations.
type Analysis struct {
	base
}

// NewAnalysis creates an Analysis agent.
func NewAnalysis(llm LLMProvider, logger Logger) *Analysis {
	a := &Analysis{}
	a.init(string(AgentAnalysis), llm, logger)
	return a
}

type analysisResponse struct {
	AnalysisText    string   `json:"analysis_text"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// Process analyzes in.Data.ResearchSummary against the goal.
func (a *Analysis) Process(ctx context.Context, in *envelope.Envelope) (*envelope.Envelope, error) {
	return a.run(ctx, in, a.analyze)
}

func (a *Analysis) analyze(ctx context.Context, env *envelope.Envelope) int {
	if !env.HasGoal() {
		a.failAnalysis(env, "No goal specified in context")
		return 0
	}
	if strings.TrimSpace(env.Data.ResearchSummary) == "" {
		a.failAnalysis(env, "No research summary provided for analysis")
		return 0
	}

	text, err := a.llm.Generate(ctx, analysisPrompt(env.Context.Goal, env.Data.ResearchSummary))
	if err != nil {
		a.failAnalysis(env, fmt.Sprintf("Error performing analysis: %v", err))
		return 1
	}

	resp, err := extractAndParseJSON[analysisResponse](text)
	if err != nil {
		a.logger.Debug("analysis_unparsable_response", "response_preview", typeutil.Truncate(text, 200))
		a.failAnalysis(env, fmt.Sprintf("Error performing analysis: %v", err))
		return 1
	}

	env.Data.Analysis = resp.AnalysisText
	env.Data.Insights = nonNil(resp.Insights)
	env.Data.Recommendations = nonNil(resp.Recommendations)
	a.succeed(env, envelope.StatusCompleted, ConfidenceHigh)
	return 1
}

func (a *Analysis) failAnalysis(env *envelope.Envelope, msg string) {
	env.Data.Analysis = "Error: " + msg
	env.Data.Insights = []string{}
	env.Data.Recommendations = []string{}
	a.fail(env, msg)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
