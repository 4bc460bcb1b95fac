package commands

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kodikhq/switchboard/internal/agent"
	"github.com/kodikhq/switchboard/internal/config"
	"github.com/kodikhq/switchboard/internal/exchangelog"
	"github.com/kodikhq/switchboard/internal/kb"
	"github.com/kodikhq/switchboard/internal/telegram"
	"github.com/kodikhq/switchboard/internal/triage"
	"github.com/kodikhq/switchboard/internal/worker"
	"github.com/kodikhq/switchboard/pkg/switchboard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, worker pool, and triage scheduler",
	Long: `Serve connects to Redis and Telegram, then runs the three cooperating
components until SIGINT or SIGTERM:

  - the Telegram update loop (producer side)
  - the worker pool draining the job queue
  - the triage scheduler sweeping group buffers`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN must be set")
	}
	if cfg.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY must be set")
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}

	store, err := switchboard.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Ping(ctx); err != nil {
		return err
	}

	exlog, err := exchangelog.New(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer exlog.Close()

	retriever := kb.New(nil)
	if cfg.Storage.KnowledgeBasePath != "" {
		retriever, err = kb.Load(cfg.Storage.KnowledgeBasePath)
		if err != nil {
			return err
		}
	} else {
		log.Printf("[Serve] No knowledge base configured, agent searches will come up empty")
	}

	llm := agent.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, store, retriever)

	bot, err := telegram.New(cfg.Telegram.Token, store, cfg.Telegram.AdminGroupID, cfg.Telegram.BotUsername, cfg.Telegram.AdminReplyMode)
	if err != nil {
		return err
	}

	pool := worker.NewPool(store, llm, bot, bot, exlog, cfg.Workers.Count)
	pool.Start(ctx)
	defer pool.Stop()

	scheduler := triage.NewScheduler(store, llm, bot, cfg.Telegram.BotUsername,
		time.Duration(cfg.Triage.IntervalSeconds)*time.Second, cfg.Triage.BatchSize)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	log.Printf("[Serve] Instance '%s' up: %d workers, model %s, kb entries %d",
		cfg.Instance, cfg.Workers.Count, cfg.OpenAI.Model, retriever.Len())

	// The update loop blocks until the signal context is cancelled. The
	// deferred Stop calls then drain the pool and scheduler before exit.
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Printf("[Serve] Shutting down")
	return nil
}
