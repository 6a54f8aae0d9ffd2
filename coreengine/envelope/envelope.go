package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/launchdata"
)

// Context carries the goal and any error raised along the pipeline.
type Context struct {
	Goal  string `json:"goal,omitempty"`
	Error string `json:"error,omitempty"`
	// FailedStage names the agent that set Error.
	FailedStage string `json:"failed_stage,omitempty"`
}

// FormattedOutput wraps the final report text.
type FormattedOutput struct {
	FormattedText string `json:"formatted_text"`
}

// SourceData records where research findings came from.
type SourceData struct {
	Source             string                      `json:"source,omitempty"`
	LaunchDataProvider string                      `json:"launch_data_provider,omitempty"`
	LaunchInfo         json.RawMessage             `json:"launch_info,omitempty"`
	Weather            json.RawMessage             `json:"weather,omitempty"`
	WeatherAnalysis    *launchdata.WeatherAnalysis `json:"weather_analysis,omitempty"`
}

// Data accumulates agent outputs. Each agent copies what it received and
// sets its own fields.
type Data struct {
	Plan              string           `json:"plan,omitempty"`
	ResearchSummary   string           `json:"research_summary,omitempty"`
	SourceData        *SourceData      `json:"source_data,omitempty"`
	Analysis          string           `json:"analysis,omitempty"`
	Insights          []string         `json:"insights,omitzero"`
	Recommendations   []string         `json:"recommendations,omitzero"`
	SynthesizedOutput string           `json:"synthesized_output,omitempty"`
	FormattedOutput   *FormattedOutput `json:"formatted_output,omitempty"`
}

// ProcessingRecord represents a record of a single agent processing step.
type ProcessingRecord struct {
	Agent       string     `json:"agent"`
	StageOrder  int        `json:"stage_order"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int        `json:"duration_ms"`
	Status      string     `json:"status"` // "running", "success", "error"
	Error       *string    `json:"error,omitempty"`
	LLMCalls    int        `json:"llm_calls"`
}

// Envelope is the message passed from agent to agent.
type Envelope struct {
	EnvelopeID string `json:"envelope_id"`
	RequestID  string `json:"request_id"`

	Status  Status  `json:"status,omitempty"`
	Context Context `json:"context"`
	Data    Data    `json:"data"`

	// AgentOrder is set by the planner and carried unchanged to later stages.
	AgentOrder []string `json:"agent_order,omitempty"`

	ProcessingHistory []ProcessingRecord `json:"processing_history,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// New creates an envelope for goal.
func New(goal string) *Envelope {
	return &Envelope{
		EnvelopeID:        "env_" + uuid.New().String()[:16],
		RequestID:         "req_" + uuid.New().String()[:16],
		Context:           Context{Goal: goal},
		ProcessingHistory: []ProcessingRecord{},
		CreatedAt:         time.Now().UTC(),
	}
}

// Parse decodes an envelope from JSON, filling ids that are missing.
func Parse(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if e.EnvelopeID == "" {
		e.EnvelopeID = "env_" + uuid.New().String()[:16]
	}
	if e.RequestID == "" {
		e.RequestID = "req_" + uuid.New().String()[:16]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return &e, nil
}

// =============================================================================
// State helpers
// =============================================================================

// HasGoal reports whether the envelope carries a non-blank goal.
func (e *Envelope) HasGoal() bool {
	return e != nil && strings.TrimSpace(e.Context.Goal) != ""
}

// IsError reports whether the last agent failed.
func (e *Envelope) IsError() bool {
	return e != nil && e.Status == StatusError
}

// Fail marks the envelope as failed by stage.
func (e *Envelope) Fail(stage, msg string) {
	e.Status = StatusError
	e.Context.Error = msg
	e.Context.FailedStage = stage
}

// ClearStageError drops an error previously raised by stage, so a
// successful retry does not leave a stale error behind. Errors raised by
// other stages are kept.
func (e *Envelope) ClearStageError(stage string) {
	if e.Context.FailedStage == stage {
		e.Context.Error = ""
		e.Context.FailedStage = ""
	}
}

// FinalText picks the text shown to a user: the formatted report, then the
// synthesized output, then an indented dump of Data.
func (e *Envelope) FinalText() string {
	if e == nil {
		return ""
	}
	if e.Data.FormattedOutput != nil && e.Data.FormattedOutput.FormattedText != "" {
		return e.Data.FormattedOutput.FormattedText
	}
	if e.Data.SynthesizedOutput != "" {
		return e.Data.SynthesizedOutput
	}
	raw, err := json.MarshalIndent(e.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", e.Data)
	}
	return string(raw)
}

// =============================================================================
// Processing History
// =============================================================================

// RecordAgentStart records start of agent processing.
func (e *Envelope) RecordAgentStart(agentName string) {
	e.ProcessingHistory = append(e.ProcessingHistory, ProcessingRecord{
		Agent:      agentName,
		StageOrder: len(e.ProcessingHistory) + 1,
		StartedAt:  time.Now().UTC(),
		Status:     RecordRunning,
	})
}

// RecordAgentComplete closes the latest running record for agentName.
func (e *Envelope) RecordAgentComplete(agentName, status string, errorMsg *string, llmCalls int) {
	for i := len(e.ProcessingHistory) - 1; i >= 0; i-- {
		entry := &e.ProcessingHistory[i]
		if entry.Agent == agentName && entry.Status == RecordRunning {
			now := time.Now().UTC()
			entry.CompletedAt = &now
			entry.Status = status
			entry.Error = errorMsg
			entry.LLMCalls = llmCalls
			entry.DurationMS = int(now.Sub(entry.StartedAt).Milliseconds())
			return
		}
	}
}

// TotalProcessingTimeMS calculates total processing time from history.
func (e *Envelope) TotalProcessingTimeMS() int {
	total := 0
	for _, entry := range e.ProcessingHistory {
		total += entry.DurationMS
	}
	return total
}

// TotalLLMCalls sums LLM calls across the history.
func (e *Envelope) TotalLLMCalls() int {
	total := 0
	for _, entry := range e.ProcessingHistory {
		total += entry.LLMCalls
	}
	return total
}

// =============================================================================
// Serialization
// =============================================================================

// ToMap converts the envelope to its JSON object form.
func (e *Envelope) ToMap() (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return m, nil
}

// =============================================================================
// Clone
// =============================================================================

// Clone creates a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := &Envelope{
		EnvelopeID: e.EnvelopeID,
		RequestID:  e.RequestID,
		Status:     e.Status,
		Context:    e.Context,
		Data:       e.Data.Clone(),
		CreatedAt:  e.CreatedAt,
	}
	clone.AgentOrder = copyStringSlice(e.AgentOrder)
	clone.ProcessingHistory = copyProcessingHistory(e.ProcessingHistory)
	return clone
}

// Clone deep copies Data.
func (d Data) Clone() Data {
	out := d
	out.Insights = copyStringSlice(d.Insights)
	out.Recommendations = copyStringSlice(d.Recommendations)
	if d.SourceData != nil {
		out.SourceData = d.SourceData.Clone()
	}
	if d.FormattedOutput != nil {
		fo := *d.FormattedOutput
		out.FormattedOutput = &fo
	}
	return out
}

// Clone deep copies SourceData.
func (s *SourceData) Clone() *SourceData {
	if s == nil {
		return nil
	}
	out := &SourceData{
		Source:             s.Source,
		LaunchDataProvider: s.LaunchDataProvider,
		LaunchInfo:         copyRaw(s.LaunchInfo),
		Weather:            copyRaw(s.Weather),
	}
	if s.WeatherAnalysis != nil {
		wa := launchdata.WeatherAnalysis{
			Conditions:       s.WeatherAnalysis.Conditions.Clone(),
			PotentialImpacts: copyStringSlice(s.WeatherAnalysis.PotentialImpacts),
		}
		out.WeatherAnalysis = &wa
	}
	return out
}

func copyRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	out := make(json.RawMessage, len(r))
	copy(out, r)
	return out
}

func copyStringSlice(s []string) []string {
	if s == nil {
		return nil
	}
	result := make([]string, len(s))
	copy(result, s)
	return result
}

func copyProcessingHistory(h []ProcessingRecord) []ProcessingRecord {
	if h == nil {
		return nil
	}
	result := make([]ProcessingRecord, len(h))
	for i, r := range h {
		result[i] = r
		if r.CompletedAt != nil {
			t := *r.CompletedAt
			result[i].CompletedAt = &t
		}
		if r.Error != nil {
			err := *r.Error
			result[i].Error = &err
		}
	}
	return result
}
