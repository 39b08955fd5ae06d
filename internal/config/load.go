package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables, e.g.
// INSIGHT_DATABASE_URL maps to the database.url key.
const envPrefix = "INSIGHT"

// Load reads configuration from an optional config.yaml and from
// environment variables, with environment variables taking precedence.
// Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults double as the key registry: AutomaticEnv only resolves
	// keys viper already knows about.
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables take over.
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("admission.daily_job_limit", 10)

	v.SetDefault("task.max_attempts", 5)
	v.SetDefault("task.min_backoff_seconds", 10)
	v.SetDefault("task.max_backoff_seconds", 300)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.worker_count", 4)

	v.SetDefault("engines.primary.id", "primary")
	v.SetDefault("engines.primary.provider", "gemini")
	v.SetDefault("engines.primary.model", "gemini-2.0-flash")
	v.SetDefault("engines.primary.api_key", "")
	v.SetDefault("engines.primary.base_url", "")
	v.SetDefault("engines.primary.timeout_seconds", 45)
	v.SetDefault("engines.primary.temperature", 0.2)
	v.SetDefault("engines.primary.max_output_tokens", 2048)
	v.SetDefault("engines.primary.prompt_cost_per_1k", 0)
	v.SetDefault("engines.primary.completion_cost_per_1k", 0)

	v.SetDefault("engines.secondary.id", "secondary")
	v.SetDefault("engines.secondary.provider", "openai")
	v.SetDefault("engines.secondary.model", "gpt-4o-mini")
	v.SetDefault("engines.secondary.api_key", "")
	v.SetDefault("engines.secondary.base_url", "")
	v.SetDefault("engines.secondary.timeout_seconds", 45)
	v.SetDefault("engines.secondary.temperature", 0.2)
	v.SetDefault("engines.secondary.max_output_tokens", 2048)
	v.SetDefault("engines.secondary.prompt_cost_per_1k", 0)
	v.SetDefault("engines.secondary.completion_cost_per_1k", 0)

	v.SetDefault("alerting.webhook_url", "")
	v.SetDefault("alerting.timeout_seconds", 10)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.timeout_seconds", 2)
}
