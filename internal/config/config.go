package config

import (
	"fmt"
	"log"
	"time"

	"planify-notification/pkg/config"
	"planify-notification/pkg/logger"
)

type Config struct {
	Service struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"service"`
	Logger    logger.Config       `yaml:"logger"`
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	MQ        config.MQConfig     `yaml:"mq"`
	Redis     config.RedisConfig  `yaml:"redis"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	OTel      config.OTelConfig   `yaml:"otel"`
	Topics    TopicsConfig        `yaml:"topics"`
	Consumer  ConsumerConfig      `yaml:"consumer"`
	Directory DirectoryConfig     `yaml:"directory"`
	Senders   SendersConfig       `yaml:"senders"`
	Reminder  ReminderConfig      `yaml:"reminder"`
	Dedup     DedupConfig         `yaml:"dedup"`
	Outbox    OutboxConfig        `yaml:"outbox"`
}

// TopicsConfig inbound topic / routing key names.
type TopicsConfig struct {
	JoinRequestSent         string `yaml:"join_request_sent"`
	JoinRequestResponded    string `yaml:"join_request_responded"`
	InvitationSent          string `yaml:"invitation_sent"`
	InvitationResponded     string `yaml:"invitation_responded"`
	EventAttendanceAccepted string `yaml:"event_attendance_accepted"`
	Dispatched              string `yaml:"dispatched"`
}

type ConsumerConfig struct {
	Prefetch        int   `yaml:"prefetch"`
	MaxRedeliveries int64 `yaml:"max_redeliveries"`
	RetryTTLMinutes int   `yaml:"retry_ttl_minutes"`
}

type DirectoryConfig struct {
	BaseURL    string                  `yaml:"base_url"`
	TimeoutMs  int                     `yaml:"timeout_ms"`
	Resilience config.ResilienceConfig `yaml:"resilience"`
}

func (c DirectoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SendersConfig keeps one resilience policy per channel.
type SendersConfig struct {
	Email ChannelConfig `yaml:"email"`
	SMS   ChannelConfig `yaml:"sms"`
}

type ChannelConfig struct {
	Resilience config.ResilienceConfig `yaml:"resilience"`
}

type ReminderConfig struct {
	Enabled           bool `yaml:"enabled"`
	IntervalMinutes   int  `yaml:"interval_minutes"`
	RunOnStartup      bool `yaml:"run_on_startup"`
	FallbackMarksSent bool `yaml:"fallback_marks_sent"`
}

func (c ReminderConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

type DedupConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLMinutes int  `yaml:"ttl_minutes"`
}

func (c DedupConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type OutboxConfig struct {
	Enabled        bool `yaml:"enabled"`
	IntervalMs     int  `yaml:"interval_ms"`
	BatchSize      int  `yaml:"batch_size"`
	MaxRetries     int  `yaml:"max_retries"`
	RetentionHours int  `yaml:"retention_hours"`
}

// Load reads CONFIG_ENV / CONFIG_DIR and exits on error.
func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom merges base.yaml with <env>.yaml, then applies env overrides and defaults.
func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	cfg.Directory.BaseURL = config.GetEnv("USER_SERVICE_URL", cfg.Directory.BaseURL)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "notification-service"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8085"
	}
	if c.MQ.Driver == "" {
		c.MQ.Driver = "rabbitmq"
	}
	if c.MQ.Queue == "" {
		c.MQ.Queue = "notification.events.q"
	}
	if c.MQ.GroupID == "" {
		c.MQ.GroupID = "notification-service"
	}

	t := &c.Topics
	setDefault(&t.JoinRequestSent, "join-request-sent")
	setDefault(&t.JoinRequestResponded, "join-request-responded")
	setDefault(&t.InvitationSent, "invitation-sent")
	setDefault(&t.InvitationResponded, "invitation-responded")
	setDefault(&t.EventAttendanceAccepted, "event-attendance-accepted")
	setDefault(&t.Dispatched, "notification.dispatched")

	if c.Directory.TimeoutMs <= 0 {
		c.Directory.TimeoutMs = 3000
	}
	if c.Reminder.IntervalMinutes <= 0 {
		c.Reminder.IntervalMinutes = 24 * 60
	}
	if c.Dedup.TTLMinutes <= 0 {
		c.Dedup.TTLMinutes = 24 * 60
	}
	if c.Consumer.RetryTTLMinutes <= 0 {
		c.Consumer.RetryTTLMinutes = 60
	}
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url is required")
	}
	if c.MQ.IsKafka() && len(c.MQ.Brokers) == 0 {
		return fmt.Errorf("mq.brokers is required when mq.driver is kafka")
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
