package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// AROMATCH_SERVER_PORT or AROMATCH_DATABASE_URL.
const envPrefix = "AROMATCH"

// Load configuration from environment variables and optionally a config
// file. Environment variables take precedence over values from config
// files. Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have no defaults, so viper does not know their keys until
	// they are bound explicitly; without this Unmarshal would skip them.
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"auth.admin_password_hash",
		"llm.gemini_api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment can carry
		// everything. Any other read failure is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets (database URL, JWT secret, API keys) deliberately have none.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_task_age", "10m")
	v.SetDefault("task.stuck_task_interval", "1m")

	v.SetDefault("recovery.max_retries", 3)
	v.SetDefault("recovery.base_delay", "2s")
	v.SetDefault("recovery.max_delay", "5m")
	v.SetDefault("recovery.jitter_factor", 0.1)
	v.SetDefault("recovery.breaker_failure_threshold", 5)
	v.SetDefault("recovery.breaker_timeout", "2m")
	v.SetDefault("recovery.breaker_monitoring_period", "1m")
	v.SetDefault("recovery.breaker_reset_timeout", "30s")
	v.SetDefault("recovery.dead_letter_max_age", "168h")
	v.SetDefault("recovery.maintenance_interval", "1h")
	v.SetDefault("recovery.stats_retention", "24h")
}
