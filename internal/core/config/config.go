// Package config provides configuration management for Gatekeeper services.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wardstone/gatekeeper/internal/types"
)

// Config holds the full service configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	Router    RouterConfig
	Approval  ApprovalConfig
	Quota     QuotaConfig
	Execution ExecutionConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the connection URL (sqlite:// or postgres://).
type DatabaseConfig struct {
	URL string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// RouterConfig holds evaluator settings.
type RouterConfig struct {
	PluginTimeout time.Duration
}

// ApprovalConfig holds expiration policy settings. TTL overrides and
// actions are keyed by trigger kind.
type ApprovalConfig struct {
	ExpirationEnabled bool
	DefaultExpiration time.Duration
	TriggerExpiration map[string]time.Duration
	TriggerAction     map[string]string // expire or auto_approve
	RetentionDays     int
	SweepInterval     time.Duration

	// ContentCriteria is an optional JSON condition tree; items matching it
	// are held for approval regardless of rule flags.
	ContentCriteria string
}

// QuotaConfig holds per-user request limits. Zero means unlimited.
type QuotaConfig struct {
	MovieLimit int
	ShowLimit  int
	WindowDays int
}

// ExecutionConfig holds the downstream hand-off endpoint. An empty URL
// switches dispatch to log-only.
type ExecutionConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// KafkaConfig holds notification publisher settings.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	Topic       string
	Compression string
}

// RedisConfig holds the optional sweep lease backend. Empty address
// disables the shared lease.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "sqlite://./gatekeeper.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Router: RouterConfig{
			PluginTimeout: 5 * time.Second,
		},
		Approval: ApprovalConfig{
			ExpirationEnabled: true,
			DefaultExpiration: 72 * time.Hour,
			TriggerExpiration: map[string]time.Duration{},
			TriggerAction:     map[string]string{},
			RetentionDays:     30,
			SweepInterval:     5 * time.Minute,
		},
		Quota: QuotaConfig{
			MovieLimit: 0,
			ShowLimit:  0,
			WindowDays: 7,
		},
		Execution: ExecutionConfig{
			Timeout: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:       "gatekeeper.approvals",
			Compression: "snappy",
		},
	}
}

// APIKeys extracts API keys from environment variables.
// Supports GK_API_KEY (single) and GK_API_KEY_N (rotation).
func APIKeys() []string {
	var keys []string

	if val := os.Getenv("GK_API_KEY"); val != "" {
		keys = append(keys, val)
	}

	// Numbered keys enable rotation: old and new keys valid during migration
	for i := 1; ; i++ {
		val := os.Getenv(fmt.Sprintf("GK_API_KEY_%d", i))
		if val == "" {
			break
		}
		keys = append(keys, val)
	}

	return keys
}

// validateTriggerKeys checks the trigger names used as keys in the
// approval TTL and action maps.
func validateTriggerKeys(m map[string]time.Duration, actions map[string]string) error {
	known := make(map[string]bool, len(types.Triggers))
	for _, t := range types.Triggers {
		known[string(t)] = true
	}
	for k := range m {
		if !known[k] {
			return fmt.Errorf("unknown trigger %q in expiration overrides", k)
		}
	}
	for k, v := range actions {
		if !known[k] {
			return fmt.Errorf("unknown trigger %q in expiration actions", k)
		}
		if v != string(types.ExpirationActionExpire) && v != string(types.ExpirationActionAutoApprove) {
			return fmt.Errorf("expiration action for %q must be expire or auto_approve, got %q", k, v)
		}
	}
	return nil
}
