// Package main is the entrypoint for the nifty assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stargazy/nifty/internal/bot"
	"github.com/stargazy/nifty/internal/config"
	"github.com/stargazy/nifty/internal/contextstore"
	"github.com/stargazy/nifty/internal/conversation"
	"github.com/stargazy/nifty/internal/database"
	"github.com/stargazy/nifty/internal/dispatch"
	"github.com/stargazy/nifty/internal/gemini"
	"github.com/stargazy/nifty/internal/intent"
	"github.com/stargazy/nifty/internal/logger"
	"github.com/stargazy/nifty/internal/market"
	"github.com/stargazy/nifty/internal/meme"
	"github.com/stargazy/nifty/internal/normalizer"
	"github.com/stargazy/nifty/internal/platform"
	"github.com/stargazy/nifty/internal/pricecache"
	"github.com/stargazy/nifty/internal/websearch"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "nifty",
		Short: "nifty: multi-platform conversational assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("nifty", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format == "json")
	log.Info("configuration loaded", "config", configPath)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	llm, err := gemini.NewClient(ctx, gemini.Options{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Instruction: cfg.LLM.Instruction,
		MaxRetries:  cfg.LLM.MaxRetries,
		RetryDelay:  cfg.LLM.RetryDelay,
	}, log)
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	contexts := contextstore.New(contextstore.Options{
		HistorySize: cfg.Context.HistorySize,
		TopicDecay:  cfg.Context.TopicDecay,
		TopTopics:   cfg.Context.TopTopics,
		IdleExpiry:  cfg.Context.IdleExpiry,
	}, log)

	prices := pricecache.NewSource(
		pricecache.New(pricecache.Options{
			TTL:          cfg.Price.CacheTTL,
			FetchTimeout: cfg.Price.FetchTimeout,
			ServeStale:   cfg.Price.ServeStale,
		}, log),
		market.NewClient(cfg.Price.FetchTimeout, log),
	)

	search := websearch.NewClient(websearch.Options{
		SearchURL: cfg.Search.SearchURL,
		ReaderURL: cfg.Search.ReaderURL,
		Timeout:   cfg.Search.Timeout,
	}, log)

	memes := meme.NewClient(meme.Options{
		Username: cfg.Meme.Username,
		Password: cfg.Meme.Password,
		Timeout:  cfg.Meme.Timeout,
	}, log)

	classifier := intent.NewClassifier(intent.Options{
		CommandPrefix: cfg.Bot.CommandPrefix,
	})

	dispatcher := dispatch.New(classifier, contexts, store, prices, llm, search, memes,
		dispatch.Options{
			BotName:    cfg.Bot.Name,
			LLMTimeout: cfg.LLM.Timeout,
		}, log)

	norm := normalizer.New(normalizer.Options{
		BotName:       cfg.Bot.Name,
		CommandPrefix: cfg.Bot.CommandPrefix,
		KnownBots:     cfg.Bot.KnownBots,
		FilteredWords: cfg.Bot.FilteredWords,
	})

	var adapters []platform.Adapter
	if cfg.Telegram.Enabled {
		adapters = append(adapters, platform.NewTelegram(cfg.Telegram.Token, log))
	}
	if cfg.Discord.Enabled {
		adapters = append(adapters, platform.NewDiscord(cfg.Discord.Token, cfg.Discord.GuildID, log))
	}
	if cfg.Slack.Enabled {
		adapters = append(adapters, platform.NewSlack(cfg.Slack.BotToken, cfg.Slack.AppToken, log))
	}

	cron, err := bot.NewCron(log, contexts, store, cfg.Database.RetainDays)
	if err != nil {
		return fmt.Errorf("cron: %w", err)
	}

	app := bot.New(log, norm, contexts, dispatcher, store, adapters, cron,
		conversation.Options{
			MaxQueueSize:   cfg.Pipeline.MaxQueueSize,
			MaxWorkers:     cfg.Pipeline.MaxWorkers,
			MessageTimeout: cfg.LLM.Timeout + cfg.Search.Timeout,
		}, cfg.Metrics.Addr)

	log.Info("starting nifty", "version", version)
	return app.Run(ctx)
}
