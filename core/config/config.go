package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// BitrixConfig holds the REST endpoint and bot identity shared by every bot.
type BitrixConfig struct {
	// Endpoint is the inbound webhook base URL, e.g. https://portal.bitrix24.ru/rest/1/secret/.
	Endpoint string `yaml:"endpoint" envconfig:"BITRIX_ENDPOINT"`
	Token    string `yaml:"token" envconfig:"BITRIX_BOT_TOKEN"`
	BotID    int64  `yaml:"bot_id" envconfig:"BITRIX_BOT_ID"`
	// RequestTimeoutSeconds bounds one REST call; 0 -> default
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" envconfig:"BITRIX_REQUEST_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the inbound event listener.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path   string `yaml:"path" envconfig:"WEBHOOK_PATH"`

	// ApplicationToken rejects posts whose auth[application_token] differs; empty disables the check.
	ApplicationToken string `yaml:"application_token" envconfig:"WEBHOOK_APPLICATION_TOKEN"`
}

// FSMConfig controls the conversation state store.
type FSMConfig struct {
	// TTL evicts idle conversations; empty keeps them for the process lifetime.
	TTL            string `yaml:"ttl" envconfig:"FSM_TTL"`
	SweepSchedule  string `yaml:"sweep_schedule" envconfig:"FSM_SWEEP_SCHEDULE"`
	SerializeChats *bool  `yaml:"serialize_chats" envconfig:"FSM_SERIALIZE_CHATS"`
}

// SenderConfig sizes the asynchronous outbound queue.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// UpdateMessage identifies message events for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateCommand identifies command events for rate limit exclusions.
	UpdateCommand = "command"
)

const (
	// DefaultWebhookPath is served when webhook.path is empty.
	DefaultWebhookPath = "/"
	// DefaultSweepSchedule drives FSM eviction when a TTL is set.
	DefaultSweepSchedule = "@every 10m"
	// DefaultHeartbeatSchedule drives the bot.alive log line.
	DefaultHeartbeatSchedule = "@every 1h"
	// ScheduleOff disables a cron job.
	ScheduleOff = "off"
	// DefaultRequestTimeout bounds REST calls when none is configured.
	DefaultRequestTimeout = 15 * time.Second
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts event kinds to bypass limiting:
// - "message": free-text messages to the bot
// - "command": command invocations, including keyboard presses
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Bitrix            BitrixConfig    `yaml:"bitrix"`
	Webhook           WebhookConfig   `yaml:"webhook"`
	FSM               FSMConfig       `yaml:"fsm"`
	HeartbeatSchedule string          `yaml:"heartbeat_schedule" envconfig:"HEARTBEAT_SCHEDULE"`
	Sender            SenderConfig    `yaml:"sender"`
	Logging           LoggingConfig   `yaml:"logging"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	endpoint := strings.TrimSpace(cfg.Bitrix.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("bitrix.endpoint is required")
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	cfg.Bitrix.Endpoint = endpoint
	if strings.TrimSpace(cfg.Bitrix.Token) == "" {
		return fmt.Errorf("bitrix.token is required")
	}
	if cfg.Bitrix.BotID <= 0 {
		return fmt.Errorf("bitrix.bot_id must be > 0")
	}
	if cfg.Bitrix.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("bitrix.request_timeout_seconds must be >= 0")
	}

	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		return fmt.Errorf("webhook.listen is required")
	}
	if cfg.Webhook.Port <= 0 {
		return fmt.Errorf("webhook.port must be > 0")
	}
	p := strings.TrimSpace(cfg.Webhook.Path)
	if p == "" {
		p = DefaultWebhookPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cfg.Webhook.Path = p
	cfg.Webhook.ApplicationToken = strings.TrimSpace(cfg.Webhook.ApplicationToken)

	if _, err := cfg.FSMTTL(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.FSM.SweepSchedule) == "" {
		cfg.FSM.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.FSM.SerializeChats == nil {
		on := true
		cfg.FSM.SerializeChats = &on
	}
	if strings.TrimSpace(cfg.HeartbeatSchedule) == "" {
		cfg.HeartbeatSchedule = DefaultHeartbeatSchedule
	}

	if cfg.Sender.QueueSize < 0 || cfg.Sender.Workers < 0 || cfg.Sender.MaxRetries < 0 || cfg.Sender.RetryBackoffMS < 0 {
		return fmt.Errorf("sender settings must be >= 0")
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateMessage: {},
		UpdateCommand: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: message, command", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

// FSMTTL parses fsm.ttl; zero means contexts are never evicted.
func (c *Config) FSMTTL() (time.Duration, error) {
	raw := strings.TrimSpace(c.FSM.TTL)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid fsm.ttl %q: %w", c.FSM.TTL, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("fsm.ttl must be >= 0")
	}
	return d, nil
}

// RequestTimeout returns the REST call timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.Bitrix.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.Bitrix.RequestTimeoutSeconds) * time.Second
}

// SerializeChats reports whether updates of one chat are processed one at a time.
func (c *Config) SerializeChats() bool {
	return c.FSM.SerializeChats == nil || *c.FSM.SerializeChats
}

// ListenAddr returns the host:port the webhook listener binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Webhook.Listen, c.Webhook.Port)
}
