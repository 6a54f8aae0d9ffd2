package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// envKeys maps environment variables onto config keys.
var envKeys = map[string]string{
	"MAX_ITERATIONS":                       "max_iterations",
	"CONFIDENCE_THRESHOLD":                 "confidence_threshold",
	"LLM_PROVIDER":                         "llm_provider",
	"LLM_MODEL":                            "llm_model",
	"LLM_BASE_URL":                         "llm_base_url",
	"LLM_MAX_TOKENS":                       "llm_max_tokens",
	"LLM_TEMPERATURE":                      "llm_temperature",
	"GOOGLE_API_KEY":                       "google_api_key",
	"OPENAI_API_KEY":                       "openai_api_key",
	"OPENWEATHER_API_KEY":                  "openweather_api_key",
	"ROCKETLAUNCH_LIVE_API_ENDPOINT":       "rocketlaunch_live_api_endpoint",
	"ROCKETLAUNCH_LIVE_LOCATIONS_ENDPOINT": "rocketlaunch_live_locations_endpoint",
	"OPENWEATHER_API_ENDPOINT":             "openweather_api_endpoint",
	"LLM_TIMEOUT_SECONDS":                  "llm_timeout",
	"HTTP_TIMEOUT_SECONDS":                 "http_timeout",
	"GRPC_ADDR":                            "grpc_addr",
	"METRICS_ADDR":                         "metrics_addr",
	"OTLP_ENDPOINT":                        "otlp_endpoint",
	"SERVICE_NAME":                         "service_name",
	"RATE_LIMIT_PER_MINUTE":                "rate_limit_per_minute",
	"RATE_LIMIT_PER_HOUR":                  "rate_limit_per_hour",
	"LOG_LEVEL":                            "log_level",
	"LOG_FORMAT":                           "log_format",
}

// Load builds the process config.
// path names an optional YAML file; envFile an optional dotenv file. Either
// may be empty. A missing envFile is not an error, a missing YAML file is.
// Process environment variables win over the dotenv file. Empty values are
// treated as unset.
func Load(path, envFile string) (*CoreConfig, error) {
	c := DefaultCoreConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var m map[string]any
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		c.apply(m)
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	c.apply(envOverrides(dotenv))

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func envOverrides(dotenv map[string]string) map[string]any {
	m := make(map[string]any)
	for env, key := range envKeys {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			m[key] = v
			continue
		}
		if v, ok := dotenv[env]; ok && v != "" {
			m[key] = v
		}
	}
	return m
}
