// Package config loads and validates switchboard.yml plus the environment
// overrides used for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level switchboard.yml configuration.
type Config struct {
	Version  string `yaml:"version"`
	Instance string `yaml:"instance"`

	Redis    RedisConfig    `yaml:"redis"`
	Workers  WorkersConfig  `yaml:"workers"`
	Telegram TelegramConfig `yaml:"telegram"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Triage   TriageConfig   `yaml:"triage"`
	Storage  StorageConfig  `yaml:"storage"`
}

// RedisConfig specifies the shared store connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// WorkersConfig sizes the job consumer pool.
type WorkersConfig struct {
	Count int `yaml:"count"`
}

// TelegramConfig specifies the chat transport.
// The bot token is taken from TELEGRAM_BOT_TOKEN, never from the file.
type TelegramConfig struct {
	Token        string `yaml:"-"`
	AdminGroupID int64  `yaml:"admin_group_id"` // negative for groups, e.g. -1001234567890
	BotUsername  string `yaml:"bot_username"`

	// AdminReplyMode selects how a consumed admin reply re-enters the
	// conversation: "resume" continues the suspended agent call, "relay"
	// re-runs a full turn with the answer injected as a new message.
	AdminReplyMode string `yaml:"admin_reply_mode"`
}

// OpenAIConfig specifies the agent's model backend.
// The API key is taken from OPENAI_API_KEY, never from the file.
type OpenAIConfig struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

// TriageConfig tunes the group batch scheduler.
type TriageConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
}

// StorageConfig points at the auxiliary stores.
type StorageConfig struct {
	SQLitePath        string `yaml:"sqlite_path"`
	KnowledgeBasePath string `yaml:"knowledge_base_path"`
}

// Load reads, parses, and validates a switchboard.yml file, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses and validates configuration bytes, then applies environment
// overrides. Split from Load for testability.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers.Count == 0 {
		c.Workers.Count = 20
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Triage.IntervalSeconds == 0 {
		c.Triage.IntervalSeconds = 120
	}
	if c.Triage.BatchSize == 0 {
		c.Triage.BatchSize = 20
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "switchboard.db"
	}
	if c.Telegram.AdminReplyMode == "" {
		c.Telegram.AdminReplyMode = "resume"
	}
}

func (c *Config) applyEnv() {
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Redis.URL = url
	}
	if raw := os.Getenv("SWITCHBOARD_NUM_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.Workers.Count = n
		}
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}

	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be >= 1, got %d", c.Workers.Count)
	}

	if c.Telegram.AdminGroupID == 0 {
		return fmt.Errorf("telegram.admin_group_id is required")
	}

	if m := c.Telegram.AdminReplyMode; m != "resume" && m != "relay" {
		return fmt.Errorf("telegram.admin_reply_mode must be 'resume' or 'relay', got '%s'", m)
	}

	if c.Triage.IntervalSeconds < 1 {
		return fmt.Errorf("triage.interval_seconds must be >= 1, got %d", c.Triage.IntervalSeconds)
	}

	if c.Triage.BatchSize < 1 {
		return fmt.Errorf("triage.batch_size must be >= 1, got %d", c.Triage.BatchSize)
	}

	return nil
}
