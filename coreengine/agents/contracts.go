package agents

import (
	"fmt"
	"strings"
)

// =============================================================================
// AGENT NAMES
// =============================================================================

// AgentName identifies a pipeline agent.
type AgentName string

const (
	// AgentPlanner builds the plan and scores the final output.
	AgentPlanner AgentName = "planner"
	// AgentResearch gathers information.
	AgentResearch AgentName = "research"
	// AgentAnalysis extracts insights and recommendations.
	AgentAnalysis AgentName = "analysis"
	// AgentSynthesis writes the final report.
	AgentSynthesis AgentName = "synthesis"
)

// Stages is the vocabulary a plan may use, in canonical order.
var Stages = []AgentName{AgentResearch, AgentAnalysis, AgentSynthesis}

// AgentNameFromString parses a plan stage name, case-insensitively.
// The planner is not a plan stage.
func AgentNameFromString(value string) (AgentName, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "research":
		return AgentResearch, nil
	case "analysis":
		return AgentAnalysis, nil
	case "synthesis":
		return AgentSynthesis, nil
	default:
		return "", fmt.Errorf("invalid agent name '%s'. Must be one of: research, analysis, synthesis", value)
	}
}

// DefaultOrder returns a fresh copy of the full stage order.
func DefaultOrder() []string {
	order := make([]string, len(Stages))
	for i, s := range Stages {
		order[i] = string(s)
	}
	return order
}

// stageKeywords drive the fallback order when the plan is not usable JSON.
var stageKeywords = []struct {
	stage    AgentName
	keywords []string
}{
	{AgentResearch, []string{"research", "gather", "collect"}},
	{AgentAnalysis, []string{"analysis", "analyze", "insights"}},
	{AgentSynthesis, []string{"synthesis", "summarize", "report"}},
}

// KeywordOrder derives a stage order from free text. Stages appear in
// canonical order; with no keyword match the full order is returned.
func KeywordOrder(text string) []string {
	lower := strings.ToLower(text)
	var order []string
	for _, sk := range stageKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				order = append(order, string(sk.stage))
				break
			}
		}
	}
	if len(order) == 0 {
		return DefaultOrder()
	}
	return order
}

// NormalizeOrder trims and lower-cases names and drops anything outside
// the stage vocabulary. Duplicates are kept.
func NormalizeOrder(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if name, err := AgentNameFromString(n); err == nil {
			out = append(out, string(name))
		}
	}
	return out
}
