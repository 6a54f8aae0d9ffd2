package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
)

// Synthesis writes the final report from everything gathered so far.
type Synthesis struct {
	base
}

// NewSynthesis creates a Synthesis agent.
func NewSynthesis(llm LLMProvider, logger Logger) *Synthesis {
	s := &Synthesis{}
	s.init(string(AgentSynthesis), llm, logger)
	return s
}

// Process writes the report. An envelope already carrying an error is
// turned into an error report without calling the model.
func (s *Synthesis) Process(ctx context.Context, in *envelope.Envelope) (*envelope.Envelope, error) {
	return s.run(ctx, in, s.synthesize)
}

func (s *Synthesis) synthesize(ctx context.Context, env *envelope.Envelope) int {
	if !env.HasGoal() {
		s.failSynthesis(env, "No goal specified in context")
		return 0
	}

	if env.Context.Error != "" && env.Context.FailedStage != s.name {
		// Keep the upstream error and stage so a retry reports the same thing.
		setReport(env, "Error: Could not complete request due to a previous error: "+env.Context.Error)
		env.Status = envelope.StatusError
		s.setConfidence(ConfidenceFailed)
		return 0
	}

	dataJSON, err := json.MarshalIndent(env.Data, "", "  ")
	if err != nil {
		s.failSynthesis(env, fmt.Sprintf("encode data: %v", err))
		return 0
	}

	text, err := s.llm.Generate(ctx, synthesisPrompt(env.Context.Goal, string(dataJSON)))
	if err != nil {
		s.failSynthesis(env, fmt.Sprintf("Error performing synthesis: %v", err))
		return 1
	}

	setReport(env, text)
	s.succeed(env, envelope.StatusCompleted, ConfidenceSynthesis)
	return 1
}

func (s *Synthesis) failSynthesis(env *envelope.Envelope, msg string) {
	setReport(env, "Error: "+msg)
	s.fail(env, msg)
}

func setReport(env *envelope.Envelope, text string) {
	env.Data.SynthesizedOutput = text
	env.Data.FormattedOutput = &envelope.FormattedOutput{FormattedText: text}
}
