// Package config manages application configuration from config.yaml,
// NIFTY_-prefixed environment variables, and built-in defaults.
package config

import (
	"errors"
	"time"
)

// Config defines all configuration recognized by the bot. Values can be set
// via environment variables prefixed with NIFTY_ (e.g. NIFTY_LLM_API_KEY)
// or through config.yaml.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Bot      BotConfig      `mapstructure:"bot"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Context  ContextConfig  `mapstructure:"context"`
	Price    PriceConfig    `mapstructure:"price"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Meme     MemeConfig     `mapstructure:"meme"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Slack    SlackConfig    `mapstructure:"slack"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// BotConfig holds the bot's identity and message filtering settings.
type BotConfig struct {
	// Name is the trigger word: any message containing it as a token is
	// addressed to the bot.
	Name          string   `mapstructure:"name"           validate:"required"`
	CommandPrefix string   `mapstructure:"command_prefix" validate:"required"`
	KnownBots     []string `mapstructure:"known_bots"`
	FilteredWords []string `mapstructure:"filtered_words"`
}

// PipelineConfig bounds per-conversation queuing and global concurrency.
type PipelineConfig struct {
	MaxQueueSize int `mapstructure:"max_queue_size" validate:"min=1"`
	MaxWorkers   int `mapstructure:"max_workers"    validate:"min=1"`
}

// ContextConfig bounds per-conversation memory.
type ContextConfig struct {
	HistorySize int           `mapstructure:"history_size" validate:"min=1"`
	TopicDecay  float64       `mapstructure:"topic_decay"  validate:"gt=0,lt=1"`
	TopTopics   int           `mapstructure:"top_topics"   validate:"min=1"`
	IdleExpiry  time.Duration `mapstructure:"idle_expiry"  validate:"min=1m"`
}

// PriceConfig controls the market-data cache.
type PriceConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"     validate:"min=1s"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"min=1s"`
	// ServeStale returns the most recent expired entry, marked as cached,
	// when every upstream provider fails.
	ServeStale bool `mapstructure:"serve_stale"`
}

// LLMConfig configures the Gemini backend.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key" validate:"required"`
	Model       string        `mapstructure:"model"   validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Instruction string        `mapstructure:"instruction"`
}

// SearchConfig configures the Jina search and URL reader endpoints.
type SearchConfig struct {
	SearchURL string        `mapstructure:"search_url" validate:"url"`
	ReaderURL string        `mapstructure:"reader_url" validate:"url"`
	Timeout   time.Duration `mapstructure:"timeout"    validate:"min=1s"`
}

// MemeConfig configures the Imgflip caption API.
type MemeConfig struct {
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=1s"`
}

// DatabaseConfig configures the SQLite message log.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// RetainDays bounds how long the message log is kept; older rows are
	// pruned by the maintenance job.
	RetainDays int `mapstructure:"retain_days" validate:"min=1"`
}

// MetricsConfig configures the optional Prometheus listener. An empty
// address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
	GuildID string `mapstructure:"guild_id"`
}

// SlackConfig configures the Slack adapter (Socket Mode).
type SlackConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" validate:"required_if=Enabled true"`
	AppToken string `mapstructure:"app_token" validate:"required_if=Enabled true"`
}

// ErrConfiguration wraps any failure to load or validate configuration.
var ErrConfiguration = errors.New("configuration error")
