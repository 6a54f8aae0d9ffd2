package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/config"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeCompletions struct {
	newFunc func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
	calls   int
}

func (f *fakeCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.calls++
	return f.newFunc(ctx, params)
}

func reply(text string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: text}},
		},
	}
}

func testProviderConfig() Config {
	return Config{
		Provider:    config.ProviderGemini,
		Model:       "gemini-2.5-flash",
		APIKey:      "test-key",
		MaxTokens:   512,
		Temperature: 0.2,
	}
}

// chatServer fakes the chat-completions endpoint and records request bodies.
type chatServer struct {
	srv    *httptest.Server
	status int
	body   string

	mu       sync.Mutex
	requests []map[string]any
	auth     string
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	cs := &chatServer{
		status: http.StatusOK,
		body: `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gemini-2.5-flash",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello from the model"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		cs.mu.Lock()
		cs.requests = append(cs.requests, req)
		cs.auth = r.Header.Get("Authorization")
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(cs.status)
		_, _ = w.Write([]byte(cs.body))
	})
	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) provider(t *testing.T) *Provider {
	t.Helper()
	cfg := testProviderConfig()
	cfg.BaseURL = cs.srv.URL + "/v1/"
	cfg.Timeout = 5 * time.Second
	p, err := New(cfg, testutil.NewMockLogger())
	require.NoError(t, err)
	return p
}

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNew_RequiresKeyAndModel(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing key", func(c *Config) { c.APIKey = "  " }, `api key required for provider "gemini"`},
		{"missing model", func(c *Config) { c.Model = "" }, "model required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testProviderConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, testutil.NewMockLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigFromCore(t *testing.T) {
	core := config.DefaultCoreConfig()
	core.GoogleAPIKey = "g-key"
	core.OpenAIAPIKey = "o-key"

	cfg := ConfigFromCore(core)
	assert.Equal(t, config.ProviderGemini, cfg.Provider)
	assert.Equal(t, config.DefaultGeminiModel, cfg.Model)
	assert.Equal(t, config.DefaultGeminiBaseURL, cfg.BaseURL)
	assert.Equal(t, "g-key", cfg.APIKey)
	assert.Equal(t, 60*time.Second, cfg.Timeout)

	core.LLMProvider = config.ProviderOpenAI
	core.LLMModel = "gpt-4.1"
	cfg = ConfigFromCore(core)
	assert.Equal(t, "o-key", cfg.APIKey)
	assert.Equal(t, "gpt-4.1", cfg.Model)
	assert.Equal(t, config.DefaultOpenAIBaseURL, cfg.BaseURL)
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate_ReturnsFirstChoice(t *testing.T) {
	fake := &fakeCompletions{newFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		assert.Equal(t, "gemini-2.5-flash", string(params.Model))
		assert.Len(t, params.Messages, 1)
		return reply("the answer"), nil
	}}
	p := newWithCompletions(fake, testProviderConfig(), testutil.NewMockLogger())

	text, err := p.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, config.ProviderGemini, p.Name())
	assert.Equal(t, "gemini-2.5-flash", p.Model())
}

func TestGenerate_EmptyChoices(t *testing.T) {
	fake := &fakeCompletions{newFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return &openai.ChatCompletion{}, nil
	}}
	p := newWithCompletions(fake, testProviderConfig(), testutil.NewMockLogger())

	_, err := p.Generate(context.Background(), "question")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_WrapsTransportError(t *testing.T) {
	logger := testutil.NewMockLogger()
	fake := &fakeCompletions{newFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return nil, errors.New("connection reset")
	}}
	p := newWithCompletions(fake, testProviderConfig(), logger)

	_, err := p.Generate(context.Background(), "question")
	require.Error(t, err)
	assert.Equal(t, "gemini completion failed: connection reset", err.Error())
	assert.True(t, logger.HasLog("warn", "llm_call_failed"))
}

func TestGenerate_AppliesTimeout(t *testing.T) {
	fake := &fakeCompletions{newFunc: func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testProviderConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := newWithCompletions(fake, cfg, testutil.NewMockLogger())

	start := time.Now()
	_, err := p.Generate(context.Background(), "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerate_OverHTTP(t *testing.T) {
	cs := newChatServer(t)
	p := cs.provider(t)

	text, err := p.Generate(context.Background(), "Given the goal: test")
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", text)

	require.Len(t, cs.requests, 1)
	req := cs.requests[0]
	assert.Equal(t, "gemini-2.5-flash", req["model"])
	assert.InDelta(t, 0.2, req["temperature"], 1e-9)
	assert.EqualValues(t, 512, req["max_completion_tokens"])
	assert.Equal(t, "Bearer test-key", cs.auth)

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "Given the goal: test", msg["content"])
}

func TestGenerate_APIErrorIsNotRetried(t *testing.T) {
	cs := newChatServer(t)
	cs.status = http.StatusUnauthorized
	cs.body = `{"error":{"message":"API key not valid","type":"invalid_request_error"}}`
	p := cs.provider(t)

	_, err := p.Generate(context.Background(), "question")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini completion failed")

	var apiErr *openai.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Len(t, cs.requests, 1)
	assert.Equal(t, "unauthorized", callStatus(err))
}

// =============================================================================
// STATUS LABEL TESTS
// =============================================================================

func TestCallStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, "unauthorized"},
		{"forbidden", &openai.Error{StatusCode: http.StatusForbidden}, "unauthorized"},
		{"rate limited", &openai.Error{StatusCode: http.StatusTooManyRequests}, "rate_limited"},
		{"server error", &openai.Error{StatusCode: http.StatusBadGateway}, "server_error"},
		{"bad request", &openai.Error{StatusCode: http.StatusBadRequest}, "error"},
		{"plain", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, callStatus(tt.err))
		})
	}
}
