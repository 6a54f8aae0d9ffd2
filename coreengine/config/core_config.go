// Package config provides process-wide goalrunner configuration.
//
// Values are layered: DefaultCoreConfig, then an optional YAML file, then a
// .env file, then the process environment. See Load.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/typeutil"
)

// LLM provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Provider defaults. Gemini is reached through its OpenAI-compatible endpoint.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1/"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// External data endpoints.
const (
	DefaultLaunchEndpoint    = "https://fdo.rocketlaunch.live/json/launches/next/5"
	DefaultLocationsEndpoint = "https://fdo.rocketlaunch.live/json/locations"
	DefaultWeatherEndpoint   = "https://api.openweathermap.org/data/2.5/weather"
)

// CoreConfig holds goalrunner configuration.
type CoreConfig struct {
	// Orchestration
	MaxIterations       int     `json:"max_iterations"`       // Shared retry budget for a whole run
	ConfidenceThreshold float64 `json:"confidence_threshold"` // Retry below this; success at or above

	// LLM
	LLMProvider    string  `json:"llm_provider"`
	LLMModel       string  `json:"llm_model"`    // Empty selects the provider default
	LLMBaseURL     string  `json:"llm_base_url"` // Empty selects the provider default
	LLMMaxTokens   int     `json:"llm_max_tokens"`
	LLMTemperature float64 `json:"llm_temperature"`
	GoogleAPIKey   string  `json:"google_api_key"`
	OpenAIAPIKey   string  `json:"openai_api_key"`

	// External data
	OpenWeatherAPIKey string `json:"openweather_api_key"`
	LaunchEndpoint    string `json:"rocketlaunch_live_api_endpoint"`
	LocationsEndpoint string `json:"rocketlaunch_live_locations_endpoint"`
	WeatherEndpoint   string `json:"openweather_api_endpoint"`

	// Timeouts (seconds)
	LLMTimeout  int `json:"llm_timeout"`
	HTTPTimeout int `json:"http_timeout"`

	// Service
	GRPCAddr     string `json:"grpc_addr"`
	MetricsAddr  string `json:"metrics_addr"`
	OTLPEndpoint string `json:"otlp_endpoint"` // Empty disables tracing export
	ServiceName  string `json:"service_name"`

	// Execute requests allowed per client. Zero disables the window.
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitPerHour   int `json:"rate_limit_per_hour"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // text or json
}

// DefaultCoreConfig returns a CoreConfig with default values.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		MaxIterations:       5,
		ConfidenceThreshold: 0.8,

		LLMProvider:    ProviderGemini,
		LLMMaxTokens:   4096,
		LLMTemperature: 0.2,

		LaunchEndpoint:    DefaultLaunchEndpoint,
		LocationsEndpoint: DefaultLocationsEndpoint,
		WeatherEndpoint:   DefaultWeatherEndpoint,

		LLMTimeout:  60,
		HTTPTimeout: 15,

		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		ServiceName: "goalrunner",

		LogLevel:  "INFO",
		LogFormat: "text",
	}
}

// CoreConfigFromMap creates CoreConfig from a map.
// Unknown keys are ignored.
func CoreConfigFromMap(m map[string]any) *CoreConfig {
	c := DefaultCoreConfig()
	c.apply(m)
	return c
}

func (c *CoreConfig) apply(m map[string]any) {
	if v, ok := typeutil.Int(m, "max_iterations"); ok {
		c.MaxIterations = v
	}
	if v, ok := typeutil.Float64(m, "confidence_threshold"); ok {
		c.ConfidenceThreshold = v
	}
	if v, ok := typeutil.String(m, "llm_provider"); ok {
		c.LLMProvider = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := typeutil.String(m, "llm_model"); ok {
		c.LLMModel = v
	}
	if v, ok := typeutil.String(m, "llm_base_url"); ok {
		c.LLMBaseURL = v
	}
	if v, ok := typeutil.Int(m, "llm_max_tokens"); ok {
		c.LLMMaxTokens = v
	}
	if v, ok := typeutil.Float64(m, "llm_temperature"); ok {
		c.LLMTemperature = v
	}
	if v, ok := typeutil.String(m, "google_api_key"); ok {
		c.GoogleAPIKey = v
	}
	if v, ok := typeutil.String(m, "openai_api_key"); ok {
		c.OpenAIAPIKey = v
	}
	if v, ok := typeutil.String(m, "openweather_api_key"); ok {
		c.OpenWeatherAPIKey = v
	}
	if v, ok := typeutil.String(m, "rocketlaunch_live_api_endpoint"); ok {
		c.LaunchEndpoint = v
	}
	if v, ok := typeutil.String(m, "rocketlaunch_live_locations_endpoint"); ok {
		c.LocationsEndpoint = v
	}
	if v, ok := typeutil.String(m, "openweather_api_endpoint"); ok {
		c.WeatherEndpoint = v
	}
	if v, ok := typeutil.Seconds(m, "llm_timeout"); ok {
		c.LLMTimeout = int(v / time.Second)
	}
	if v, ok := typeutil.Seconds(m, "http_timeout"); ok {
		c.HTTPTimeout = int(v / time.Second)
	}
	if v, ok := typeutil.String(m, "grpc_addr"); ok {
		c.GRPCAddr = v
	}
	if v, ok := typeutil.String(m, "metrics_addr"); ok {
		c.MetricsAddr = v
	}
	if v, ok := typeutil.String(m, "otlp_endpoint"); ok {
		c.OTLPEndpoint = v
	}
	if v, ok := typeutil.String(m, "service_name"); ok {
		c.ServiceName = v
	}
	if v, ok := typeutil.Int(m, "rate_limit_per_minute"); ok {
		c.RateLimitPerMinute = v
	}
	if v, ok := typeutil.Int(m, "rate_limit_per_hour"); ok {
		c.RateLimitPerHour = v
	}
	if v, ok := typeutil.String(m, "log_level"); ok {
		c.LogLevel = strings.ToUpper(v)
	}
	if v, ok := typeutil.String(m, "log_format"); ok {
		c.LogFormat = strings.ToLower(v)
	}
}

// ToMap converts config to a map. API keys are redacted.
func (c *CoreConfig) ToMap() map[string]any {
	return map[string]any{
		"max_iterations":                       c.MaxIterations,
		"confidence_threshold":                 c.ConfidenceThreshold,
		"llm_provider":                         c.LLMProvider,
		"llm_model":                            c.Model(),
		"llm_base_url":                         c.BaseURL(),
		"llm_max_tokens":                       c.LLMMaxTokens,
		"llm_temperature":                      c.LLMTemperature,
		"google_api_key":                       redact(c.GoogleAPIKey),
		"openai_api_key":                       redact(c.OpenAIAPIKey),
		"openweather_api_key":                  redact(c.OpenWeatherAPIKey),
		"rocketlaunch_live_api_endpoint":       c.LaunchEndpoint,
		"rocketlaunch_live_locations_endpoint": c.LocationsEndpoint,
		"openweather_api_endpoint":             c.WeatherEndpoint,
		"llm_timeout":                          c.LLMTimeout,
		"http_timeout":                         c.HTTPTimeout,
		"grpc_addr":                            c.GRPCAddr,
		"metrics_addr":                         c.MetricsAddr,
		"otlp_endpoint":                        c.OTLPEndpoint,
		"service_name":                         c.ServiceName,
		"rate_limit_per_minute":                c.RateLimitPerMinute,
		"rate_limit_per_hour":                  c.RateLimitPerHour,
		"log_level":                            c.LogLevel,
		"log_format":                           c.LogFormat,
	}
}

// Validate reports the first invalid setting.
func (c *CoreConfig) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0, got %d", c.MaxIterations)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0, 1], got %v", c.ConfidenceThreshold)
	}
	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm_provider %q", c.LLMProvider)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm_timeout must be positive, got %d", c.LLMTimeout)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %d", c.HTTPTimeout)
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitPerHour < 0 {
		return fmt.Errorf("rate limits must be >= 0, got %d/min %d/hour", c.RateLimitPerMinute, c.RateLimitPerHour)
	}
	return nil
}

// APIKey returns the key for the configured LLM provider.
func (c *CoreConfig) APIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GoogleAPIKey
}

// Model returns the configured model or the provider default.
func (c *CoreConfig) Model() string {
	if c.LLMModel != "" {
		return c.LLMModel
	}
	if c.LLMProvider == ProviderOpenAI {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}

// BaseURL returns the configured endpoint or the provider default.
func (c *CoreConfig) BaseURL() string {
	if c.LLMBaseURL != "" {
		return c.LLMBaseURL
	}
	if c.LLMProvider == ProviderOpenAI {
		return DefaultOpenAIBaseURL
	}
	return DefaultGeminiBaseURL
}

// LLMTimeoutDuration returns LLMTimeout as a time.Duration.
func (c *CoreConfig) LLMTimeoutDuration() time.Duration {
	return time.Duration(c.LLMTimeout) * time.Second
}

// HTTPTimeoutDuration returns HTTPTimeout as a time.Duration.
func (c *CoreConfig) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// =============================================================================
// GLOBAL CONFIG (set once by the CLI after Load)
// =============================================================================

var (
	globalCoreConfig *CoreConfig
	configMu         sync.RWMutex
)

// GetCoreConfig returns the injected config or defaults.
func GetCoreConfig() *CoreConfig {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalCoreConfig == nil {
		return DefaultCoreConfig()
	}
	return globalCoreConfig
}

// SetCoreConfig sets the core configuration instance.
func SetCoreConfig(config *CoreConfig) {
	configMu.Lock()
	defer configMu.Unlock()

	globalCoreConfig = config
}

// ResetCoreConfig resets core config to nil (useful for testing).
// After reset, GetCoreConfig() will return defaults.
func ResetCoreConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	globalCoreConfig = nil
}
