package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load loads and validates configuration from, in order of precedence:
// NIFTY_* environment variables, the config file at path (optional), and
// built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("NIFTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults may be enough.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// Validate checks struct tags plus the cross-field rules validator cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if !c.Telegram.Enabled && !c.Discord.Enabled && !c.Slack.Enabled {
		return fmt.Errorf("at least one platform must be enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("bot.name", "nifty")
	v.SetDefault("bot.command_prefix", "!")

	v.SetDefault("pipeline.max_queue_size", 5)
	v.SetDefault("pipeline.max_workers", 8)

	v.SetDefault("context.history_size", 100)
	v.SetDefault("context.topic_decay", 0.95)
	v.SetDefault("context.top_topics", 5)
	v.SetDefault("context.idle_expiry", 24*time.Hour)

	v.SetDefault("price.cache_ttl", 300*time.Second)
	v.SetDefault("price.fetch_timeout", 10*time.Second)
	v.SetDefault("price.serve_stale", true)

	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)

	v.SetDefault("search.search_url", "https://s.jina.ai")
	v.SetDefault("search.reader_url", "https://r.jina.ai")
	v.SetDefault("search.timeout", 15*time.Second)

	v.SetDefault("meme.timeout", 20*time.Second)

	v.SetDefault("database.path", "nifty.db")
	v.SetDefault("database.retain_days", 30)
}
