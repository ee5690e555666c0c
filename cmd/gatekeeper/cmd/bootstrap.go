package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/approval"
	"github.com/wardstone/gatekeeper/internal/core/config"
	"github.com/wardstone/gatekeeper/internal/core/db"
	"github.com/wardstone/gatekeeper/internal/execute"
	"github.com/wardstone/gatekeeper/internal/notify"
	"github.com/wardstone/gatekeeper/internal/quota"
	"github.com/wardstone/gatekeeper/internal/router"
	"github.com/wardstone/gatekeeper/internal/store"
	"github.com/wardstone/gatekeeper/internal/types"
)

// services bundles everything the serve and sweep commands build.
type services struct {
	cfg      *config.Config
	logger   *zap.Logger
	database *sqlx.DB
	rules    *store.Rules
	router   *router.Router
	gate     *approval.Gate
	sweeper  *approval.Sweeper
	quota    *quota.Checker
	closers  []func() error
}

// Close releases resources in reverse construction order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
	s.logger.Sync()
}

// loadConfig applies persistent flag overrides on top of the loaded file
// and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// buildServices opens the database and wires the full service graph.
func buildServices() (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &services{cfg: cfg, logger: logger, database: database}
	s.closers = append(s.closers, database.Close)

	queries, err := db.LoadQueries(database)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}

	s.rules = store.NewRules(database, logger)
	approvals := store.NewApprovals(queries, logger)
	ledger := store.NewQuota(queries, logger)

	plugins, evaluator := router.DefaultRegistry(logger, s.rules)
	s.router = router.New(logger, plugins, router.WithPluginTimeout(cfg.Router.PluginTimeout))

	s.quota = quota.NewChecker(ledger, quota.Limits{
		MovieLimit: cfg.Quota.MovieLimit,
		ShowLimit:  cfg.Quota.ShowLimit,
		Window:     time.Duration(cfg.Quota.WindowDays) * 24 * time.Hour,
	}, logger)

	var executor approval.Executor
	if cfg.Execution.WebhookURL != "" {
		executor = execute.NewWebhook(cfg.Execution.WebhookURL, cfg.Execution.Timeout, logger)
	} else {
		executor = execute.LogOnly{Logger: logger}
	}

	var notifier approval.Notifier = notify.Noop{}
	if cfg.Kafka.Enabled {
		kafkaNotifier := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			Compression: cfg.Kafka.Compression,
		}, logger)
		s.closers = append(s.closers, kafkaNotifier.Close)
		notifier = kafkaNotifier
	}

	policy, err := expirationPolicy(cfg.Approval)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := []approval.Option{
		approval.WithRouter(s.router),
		approval.WithQuota(s.quota),
	}
	if cfg.Approval.ContentCriteria != "" {
		var tree types.ConditionGroup
		if err := json.Unmarshal([]byte(cfg.Approval.ContentCriteria), &tree); err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid approval.content_criteria: %w", err)
		}
		opts = append(opts, approval.WithApprovalCriteria(&tree, evaluator))
	}

	s.gate = approval.NewGate(approvals, executor, s.quota, notifier, policy, logger, opts...)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, redisClient.Close)
	}
	s.sweeper = approval.NewSweeper(s.gate, redisClient, logger)

	return s, nil
}

// expirationPolicy converts config keys into the typed policy.
func expirationPolicy(cfg config.ApprovalConfig) (approval.ExpirationPolicy, error) {
	policy := approval.ExpirationPolicy{
		Enabled:       cfg.ExpirationEnabled,
		DefaultTTL:    cfg.DefaultExpiration,
		TriggerTTL:    make(map[types.Trigger]time.Duration, len(cfg.TriggerExpiration)),
		TriggerAction: make(map[types.Trigger]types.ExpirationAction, len(cfg.TriggerAction)),
		Retention:     time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
	for name, ttl := range cfg.TriggerExpiration {
		policy.TriggerTTL[types.Trigger(name)] = ttl
	}
	for name, action := range cfg.TriggerAction {
		policy.TriggerAction[types.Trigger(name)] = types.ExpirationAction(action)
	}
	return policy, nil
}
