// Package llm implements the text-completion provider used by every agent.
//
// Both supported back ends speak the OpenAI chat-completions protocol:
// OpenAI natively, Gemini through its OpenAI-compatible endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/agents"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/config"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/observability"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

var tracer = otel.Tracer("goalrunner/llm")

// Config configures a Provider.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	// Timeout bounds a single Generate call. Zero disables the bound.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromCore derives provider settings from the core config.
func ConfigFromCore(c *config.CoreConfig) Config {
	return Config{
		Provider:    c.LLMProvider,
		Model:       c.Model(),
		BaseURL:     c.BaseURL(),
		APIKey:      c.APIKey(),
		MaxTokens:   c.LLMMaxTokens,
		Temperature: c.LLMTemperature,
		Timeout:     c.LLMTimeoutDuration(),
	}
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Provider implements agents.LLMProvider over chat completions.
type Provider struct {
	completions chatCompletions
	provider    string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      agents.Logger
}

// New builds a Provider. The API key and model are required.
func New(cfg Config, logger agents.Logger) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llm: api key required for provider %q", cfg.Provider)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("llm: model required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failures surface as error envelopes; the orchestrator owns retries.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return newWithCompletions(&client.Chat.Completions, cfg, logger), nil
}

func newWithCompletions(c chatCompletions, cfg Config, logger agents.Logger) *Provider {
	return &Provider{
		completions: c,
		provider:    cfg.Provider,
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger.Bind("llm_provider", cfg.Provider, "model", strings.TrimSpace(cfg.Model)),
	}
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.provider }

// Model returns the configured model.
func (p *Provider) Model() string { return p.model }

// Generate sends prompt as a single user message and returns the reply text.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("goalrunner.llm.provider", p.provider),
			attribute.String("goalrunner.llm.model", p.model),
			attribute.Int("goalrunner.llm.prompt_length", len(prompt)),
		),
	)
	defer span.End()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(p.temperature),
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}

	start := time.Now()
	completion, err := p.completions.New(ctx, params)
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		status := callStatus(err)
		observability.RecordLLMCall(p.provider, p.model, status, durationMS)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("llm_call_failed", "status", status, "duration_ms", durationMS, "error", err.Error())
		return "", fmt.Errorf("%s completion failed: %w", p.provider, err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		observability.RecordLLMCall(p.provider, p.model, "empty", durationMS)
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return "", ErrEmptyResponse
	}

	text := completion.Choices[0].Message.Content
	observability.RecordLLMCall(p.provider, p.model, "success", durationMS)
	span.SetAttributes(attribute.Int("goalrunner.llm.response_length", len(text)))
	p.logger.Debug("llm_call_completed",
		"duration_ms", durationMS,
		"response_length", len(text),
		"completion_tokens", completion.Usage.CompletionTokens,
	)
	return text, nil
}

// callStatus buckets an error into a metrics label.
func callStatus(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return "unauthorized"
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case apiErr.StatusCode >= 500:
			return "server_error"
		}
	}
	return "error"
}
