package runtime

import (
	"strings"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/agents"
)

// Pipeline is the standard planner plus research, analysis and synthesis
// wired to one Orchestrator.
type Pipeline struct {
	*Orchestrator

	Planner   *agents.Planner
	Research  *agents.Research
	Analysis  *agents.Analysis
	Synthesis *agents.Synthesis
}

// NewPipeline builds a fresh agent set. Agents carry per-run state, so each
// concurrent run needs its own Pipeline.
func NewPipeline(llm agents.LLMProvider, data agents.LaunchData, cfg Config, logger agents.Logger) *Pipeline {
	p := &Pipeline{
		Planner:   agents.NewPlanner(llm, logger),
		Research:  agents.NewResearch(llm, data, logger),
		Analysis:  agents.NewAnalysis(llm, logger),
		Synthesis: agents.NewSynthesis(llm, logger),
	}
	p.Orchestrator = New(p.Planner, []Agent{p.Research, p.Analysis, p.Synthesis}, cfg, logger)
	return p
}

// SetEventContext sets the event context for all agents.
func (p *Pipeline) SetEventContext(ctx agents.EventContext) {
	p.Planner.SetEventContext(ctx)
	p.Research.SetEventContext(ctx)
	p.Analysis.SetEventContext(ctx)
	p.Synthesis.SetEventContext(ctx)
}

// Stage looks up one agent by name, the planner included.
func (p *Pipeline) Stage(name string) (Agent, bool) {
	switch agents.AgentName(strings.ToLower(strings.TrimSpace(name))) {
	case agents.AgentPlanner:
		return p.Planner, true
	case agents.AgentResearch:
		return p.Research, true
	case agents.AgentAnalysis:
		return p.Analysis, true
	case agents.AgentSynthesis:
		return p.Synthesis, true
	default:
		return nil, false
	}
}
