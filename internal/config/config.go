package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Recovery RecoveryConfig `mapstructure:"recovery" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFormat selects the log output: "json" for production, "pretty"
	// for colorized development output.
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json pretty"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`

	// AdminPasswordHash is the bcrypt hash checked by the admin token
	// endpoint. Generated with cmd/hash-password.
	AdminPasswordHash string `mapstructure:"admin_password_hash" validate:"required"`

	// TokenLifetimeMinutes is how long issued admin tokens stay valid.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// TaskConfig contains the background task runner settings.
type TaskConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size" validate:"required,gt=0"`

	// StuckTaskAge is how long a task may sit in "processing" before the
	// monitor re-queues it.
	StuckTaskAge time.Duration `mapstructure:"stuck_task_age" validate:"required"`

	// StuckTaskInterval is how often the stuck-task monitor runs.
	StuckTaskInterval time.Duration `mapstructure:"stuck_task_interval" validate:"required"`
}

// RecoveryConfig contains the fault-tolerance settings for task execution:
// retries, circuit breaking, dead-lettering and maintenance.
type RecoveryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" validate:"required,gt=0"`
	BaseDelay    time.Duration `mapstructure:"base_delay" validate:"required"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"required"`
	JitterFactor float64       `mapstructure:"jitter_factor" validate:"gte=0,lte=1"`

	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold" validate:"required,gt=0"`
	BreakerTimeout          time.Duration `mapstructure:"breaker_timeout"`
	BreakerMonitoringPeriod time.Duration `mapstructure:"breaker_monitoring_period" validate:"required"`
	BreakerResetTimeout     time.Duration `mapstructure:"breaker_reset_timeout" validate:"required"`

	DeadLetterMaxAge    time.Duration `mapstructure:"dead_letter_max_age" validate:"required"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval" validate:"required"`
	StatsRetention      time.Duration `mapstructure:"stats_retention" validate:"required"`
}
