package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Admission AdmissionConfig `mapstructure:"admission" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Engines   EnginesConfig   `mapstructure:"engines" validate:"required"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// AdmissionConfig bounds how many jobs a user may create.
type AdmissionConfig struct {
	DailyJobLimit int `mapstructure:"daily_job_limit" validate:"required,gt=0"`
}

// TaskConfig controls the durable task queue and its retry policy.
type TaskConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts" validate:"required,gte=1"`
	MinBackoffSeconds int `mapstructure:"min_backoff_seconds" validate:"gte=0"`
	MaxBackoffSeconds int `mapstructure:"max_backoff_seconds" validate:"gtefield=MinBackoffSeconds"`
	QueueSize         int `mapstructure:"queue_size" validate:"gte=1"`
	WorkerCount       int `mapstructure:"worker_count" validate:"gte=1"`
}

// EngineConfig describes one generation engine endpoint. The API key
// stays in configuration; the snapshot persisted with a job never
// includes it.
type EngineConfig struct {
	ID                  string  `mapstructure:"id" validate:"required"`
	Provider            string  `mapstructure:"provider" validate:"required,oneof=gemini openai"`
	Model               string  `mapstructure:"model" validate:"required"`
	APIKey              string  `mapstructure:"api_key" validate:"required"`
	BaseURL             string  `mapstructure:"base_url" validate:"omitempty,url"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	Temperature         float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens     int     `mapstructure:"max_output_tokens" validate:"gte=0"`
	PromptCostPer1K     float64 `mapstructure:"prompt_cost_per_1k" validate:"gte=0"`
	CompletionCostPer1K float64 `mapstructure:"completion_cost_per_1k" validate:"gte=0"`
}

// EnginesConfig holds the dual-engine pair jobs run against.
type EnginesConfig struct {
	Primary   EngineConfig `mapstructure:"primary" validate:"required"`
	Secondary EngineConfig `mapstructure:"secondary" validate:"required"`
}

// AlertingConfig controls dead-letter notifications. An empty webhook
// URL leaves only the log sink active.
type AlertingConfig struct {
	WebhookURL     string `mapstructure:"webhook_url" validate:"omitempty,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// CacheConfig controls the downstream cache invalidation hook. An empty
// Redis address disables invalidation entirely.
type CacheConfig struct {
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db" validate:"gte=0"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}
