package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/launchdata"
)

// LocationUnavailableSummary is the research summary when a launch was
// found but its pad could not be located.
const LocationUnavailableSummary = "Found a SpaceX launch but could not extract its location for weather analysis."

// SourceLLM marks research produced by the model alone.
const SourceLLM = "LLM"

var errNoLaunchData = errors.New("launch data client not configured")

// LaunchData is the subset of the launch/weather client research needs.
type LaunchData interface {
	NextSpaceXLaunch(ctx context.Context) (launchdata.Launch, error)
	ExtractLaunchLocation(ctx context.Context, launch launchdata.Launch) (launchdata.Coordinates, bool)
	Weather(ctx context.Context, coords launchdata.Coordinates) (launchdata.Weather, error)
}

// Research gathers information for the goal: live launch and weather data
// for SpaceX launch questions, model-written research otherwise.
type Research struct {
	base
	data LaunchData
}

// NewResearch creates a Research agent. data may be nil when launch
// lookups are not wanted; launch goals then fail.
func NewResearch(llm LLMProvider, data LaunchData, logger Logger) *Research {
	r := &Research{data: data}
	r.init(string(AgentResearch), llm, logger)
	return r
}

// IsLaunchQuery reports whether goal asks about a SpaceX launch.
func IsLaunchQuery(goal string) bool {
	lower := strings.ToLower(goal)
	return strings.Contains(lower, "spacex") && strings.Contains(lower, "launch")
}

// Process researches in.Context.Goal, using in.Data.Plan when present.
func (r *Research) Process(ctx context.Context, in *envelope.Envelope) (*envelope.Envelope, error) {
	return r.run(ctx, in, r.research)
}

func (r *Research) research(ctx context.Context, env *envelope.Envelope) int {
	if !env.HasGoal() {
		env.Data.ResearchSummary = "Error: No goal specified in context"
		env.Data.SourceData = &envelope.SourceData{}
		r.fail(env, "No goal specified in context")
		return 0
	}

	var (
		summary  string
		source   *envelope.SourceData
		err      error
		llmCalls int
	)
	if IsLaunchQuery(env.Context.Goal) {
		r.logger.Info("research_launch_branch")
		summary, source, err = r.launchResearch(ctx, env.Context.Goal)
	} else {
		r.logger.Info("research_general_branch")
		llmCalls = 1
		summary, err = r.llm.Generate(ctx, researchPrompt(env.Context.Goal, env.Data.Plan))
		source = &envelope.SourceData{Source: SourceLLM}
	}

	if err != nil {
		msg := fmt.Sprintf("An exception occurred: %v", err)
		env.Data.ResearchSummary = "Error: " + msg
		env.Data.SourceData = &envelope.SourceData{}
		r.fail(env, msg)
		return llmCalls
	}

	env.Data.ResearchSummary = summary
	env.Data.SourceData = source
	if strings.TrimSpace(summary) == "" {
		r.succeed(env, envelope.StatusCompleted, ConfidenceDegraded)
	} else {
		r.succeed(env, envelope.StatusCompleted, ConfidenceHigh)
	}
	return llmCalls
}

func (r *Research) launchResearch(ctx context.Context, goal string) (string, *envelope.SourceData, error) {
	if r.data == nil {
		return "", nil, errNoLaunchData
	}

	launch, err := r.data.NextSpaceXLaunch(ctx)
	if err != nil {
		return "", nil, err
	}

	coords, ok := r.data.ExtractLaunchLocation(ctx, launch)
	if !ok {
		r.logger.Warn("research_location_unavailable", "mission", launch.Name())
		return LocationUnavailableSummary, &envelope.SourceData{LaunchInfo: launch.Raw()}, nil
	}

	weather, err := r.data.Weather(ctx, coords)
	if err != nil {
		return "", nil, err
	}
	analysis := launchdata.AnalyzeWeatherImpact(weather)

	summary := fmt.Sprintf("Research on the next SpaceX launch for goal: '%s'.\n"+
		"Mission: %s\n"+
		"Scheduled Time (UTC): %s\n"+
		"Launch Site: %s - %s\n"+
		"Weather at site: %s.\n"+
		"Potential weather impacts: %s",
		goal,
		launch.Name(),
		launch.ScheduledTime(),
		launch.SiteName(), launch.PadName(),
		analysis.Conditions.Description,
		strings.Join(analysis.PotentialImpacts, ", "),
	)

	return summary, &envelope.SourceData{
		LaunchDataProvider: launchdata.ProviderName,
		LaunchInfo:         launch.Raw(),
		Weather:            weather.Raw(),
		WeatherAnalysis:    &analysis,
	}, nil
}
