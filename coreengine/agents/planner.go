package agents

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/typeutil"
)

// DefaultSatisfaction is the score used when the evaluation reply is not a number.
const DefaultSatisfaction = 0.5

const noPlanText = "No plan generated."

// Planner turns a goal into a plan and a stage order, and scores the final
// output against the goal.
type Planner struct {
	base
}

// NewPlanner creates a Planner.
func NewPlanner(llm LLMProvider, logger Logger) *Planner {
	p := &Planner{}
	p.init(string(AgentPlanner), llm, logger)
	return p
}

type planResponse struct {
	Plan       *string  `json:"plan"`
	AgentOrder []string `json:"agent_order"`
}

// Process plans for in.Context.Goal. Any data on in is discarded.
func (p *Planner) Process(ctx context.Context, in *envelope.Envelope) (*envelope.Envelope, error) {
	return p.run(ctx, in, p.plan)
}

func (p *Planner) plan(ctx context.Context, env *envelope.Envelope) int {
	goal := env.Context.Goal
	env.Data = envelope.Data{}
	env.AgentOrder = nil

	if !env.HasGoal() {
		env.Data.Plan = "Error: No goal specified"
		env.AgentOrder = []string{}
		env.Context = envelope.Context{}
		p.fail(env, "No goal specified")
		return 0
	}
	env.Context = envelope.Context{Goal: goal}

	text, err := p.llm.Generate(ctx, planPrompt(goal))
	if err != nil {
		p.logger.Warn("planner_llm_failed", "error", err.Error())
		env.Data.Plan = "Error: " + err.Error()
		env.AgentOrder = KeywordOrder("")
		p.succeed(env, envelope.StatusPlanned, ConfidenceDegraded)
		return 1
	}

	plan, order := p.parsePlan(text)
	env.Data.Plan = plan
	env.AgentOrder = order
	p.logger.Debug("planner_plan_created", "agent_order", order, "plan_preview", typeutil.Truncate(plan, 200))
	p.succeed(env, envelope.StatusPlanned, ConfidenceHigh)
	return 1
}

// parsePlan reads the model reply. The returned order is never empty and
// only holds stage names.
func (p *Planner) parsePlan(text string) (string, []string) {
	resp, err := extractAndParseJSON[planResponse](text)
	if err != nil {
		p.logger.Debug("planner_json_fallback", "error", err.Error())
		return text, KeywordOrder(text)
	}

	plan := noPlanText
	if resp.Plan != nil {
		plan = *resp.Plan
	}

	order := NormalizeOrder(resp.AgentOrder)
	if dropped := len(resp.AgentOrder) - len(order); dropped > 0 {
		p.logger.Warn("planner_unknown_stages_dropped", "dropped", dropped, "raw_order", resp.AgentOrder)
	}
	if len(order) == 0 {
		order = KeywordOrder(plan)
	}
	return plan, order
}

// EvaluateGoalSatisfaction asks the model how well final meets goal.
// The result is always within [0, 1]; a nil final scores 0.
func (p *Planner) EvaluateGoalSatisfaction(ctx context.Context, final *envelope.Envelope, goal string) float64 {
	if final == nil {
		return 0.0
	}

	ctx, span := tracer.Start(ctx, "agent.evaluate")
	defer span.End()

	dataJSON, err := json.Marshal(final.Data)
	if err != nil {
		p.logger.Warn("planner_evaluation_encode_failed", "error", err.Error())
		return DefaultSatisfaction
	}

	text, err := p.llm.Generate(ctx, evaluationPrompt(goal, string(dataJSON)))
	if err != nil {
		p.logger.Warn("planner_evaluation_failed", "error", err.Error())
		return DefaultSatisfaction
	}
	return parseScore(text)
}

func parseScore(text string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(score) {
		return DefaultSatisfaction
	}
	return clamp01(score)
}
