package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	defaults := DefaultConfig()

	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.url", defaults.Database.URL)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("router.plugin_timeout", "5s")
	v.SetDefault("approval.expiration_enabled", true)
	v.SetDefault("approval.default_expiration_hours", 72)
	v.SetDefault("approval.retention_days", defaults.Approval.RetentionDays)
	v.SetDefault("approval.sweep_interval", "5m")
	v.SetDefault("approval.content_criteria", "")
	v.SetDefault("quota.movie_limit", 0)
	v.SetDefault("quota.show_limit", 0)
	v.SetDefault("quota.window_days", defaults.Quota.WindowDays)
	v.SetDefault("execution.webhook_url", "")
	v.SetDefault("execution.timeout", "30s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", defaults.Kafka.Topic)
	v.SetDefault("kafka.compression", defaults.Kafka.Compression)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Bind environment variables with GK_ prefix
	v.SetEnvPrefix("GK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	triggerTTL := make(map[string]time.Duration)
	for key, hours := range v.GetStringMap("approval.trigger_expiration_hours") {
		h, ok := toHours(hours)
		if !ok {
			return nil, fmt.Errorf("approval.trigger_expiration_hours.%s must be a number", key)
		}
		triggerTTL[key] = time.Duration(h) * time.Hour
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Router: RouterConfig{
			PluginTimeout: v.GetDuration("router.plugin_timeout"),
		},
		Approval: ApprovalConfig{
			ExpirationEnabled: v.GetBool("approval.expiration_enabled"),
			DefaultExpiration: time.Duration(v.GetInt("approval.default_expiration_hours")) * time.Hour,
			TriggerExpiration: triggerTTL,
			TriggerAction:     v.GetStringMapString("approval.expiration_action"),
			RetentionDays:     v.GetInt("approval.retention_days"),
			SweepInterval:     v.GetDuration("approval.sweep_interval"),
			ContentCriteria:   v.GetString("approval.content_criteria"),
		},
		Quota: QuotaConfig{
			MovieLimit: v.GetInt("quota.movie_limit"),
			ShowLimit:  v.GetInt("quota.show_limit"),
			WindowDays: v.GetInt("quota.window_days"),
		},
		Execution: ExecutionConfig{
			WebhookURL: v.GetString("execution.webhook_url"),
			Timeout:    v.GetDuration("execution.timeout"),
		},
		Kafka: KafkaConfig{
			Enabled:     v.GetBool("kafka.enabled"),
			Brokers:     v.GetStringSlice("kafka.brokers"),
			Topic:       v.GetString("kafka.topic"),
			Compression: v.GetString("kafka.compression"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func toHours(val any) (int, bool) {
	switch n := val.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		var h int
		if _, err := fmt.Sscanf(n, "%d", &h); err != nil {
			return 0, false
		}
		return h, true
	default:
		return 0, false
	}
}

// validateConfig checks port range and positive durations and limits.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url must be set")
	}
	if cfg.Router.PluginTimeout <= 0 {
		return fmt.Errorf("plugin_timeout must be positive, got %v", cfg.Router.PluginTimeout)
	}
	if cfg.Approval.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %v", cfg.Approval.SweepInterval)
	}
	if cfg.Approval.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", cfg.Approval.RetentionDays)
	}
	if cfg.Quota.MovieLimit < 0 || cfg.Quota.ShowLimit < 0 {
		return fmt.Errorf("quota limits must not be negative")
	}
	if cfg.Quota.WindowDays <= 0 {
		return fmt.Errorf("quota window_days must be positive, got %d", cfg.Quota.WindowDays)
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when kafka is enabled")
	}
	if err := validateTriggerKeys(cfg.Approval.TriggerExpiration, cfg.Approval.TriggerAction); err != nil {
		return err
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("api_key") || v.IsSet("server.api_key") {
		return fmt.Errorf("API keys not allowed in config files (use GK_API_KEY environment variable)")
	}
	if v.IsSet("redis.password_file") {
		return fmt.Errorf("redis credentials not allowed in config files (use GK_REDIS_PASSWORD environment variable)")
	}
	return nil
}
