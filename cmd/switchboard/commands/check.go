package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kodikhq/switchboard/internal/config"
	"github.com/kodikhq/switchboard/internal/exchangelog"
	"github.com/kodikhq/switchboard/internal/kb"
	"github.com/kodikhq/switchboard/internal/printer"
	"github.com/kodikhq/switchboard/pkg/switchboard"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify connectivity to Redis, SQLite, and the knowledge base",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Configuration invalid", err.Error(), []string{
			"Fix the reported field in " + configPath,
		})
	}
	printer.Check("config "+configPath, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failures := 0

	redisErr := checkRedis(ctx, cfg)
	printer.Check("redis "+cfg.Redis.URL, redisErr)
	if redisErr != nil {
		failures++
	}

	sqliteErr := checkSQLite(ctx, cfg)
	printer.Check("sqlite "+cfg.Storage.SQLitePath, sqliteErr)
	if sqliteErr != nil {
		failures++
	}

	kbErr := checkKnowledgeBase(cfg)
	printer.Check("knowledge base", kbErr)
	if kbErr != nil {
		failures++
	}

	if failures > 0 {
		return printer.Error(
			fmt.Sprintf("%d check(s) failed", failures),
			"Switchboard cannot serve until the checks above pass.",
			nil,
		)
	}
	printer.Success("All checks passed\n")
	return nil
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	store, err := switchboard.NewClient(opts, cfg.Instance)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Ping(ctx)
}

func checkSQLite(ctx context.Context, cfg *config.Config) error {
	exlog, err := exchangelog.New(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer exlog.Close()
	_, err = exlog.PendingEscalations(ctx)
	return err
}

func checkKnowledgeBase(cfg *config.Config) error {
	if cfg.Storage.KnowledgeBasePath == "" {
		return nil
	}
	retriever, err := kb.Load(cfg.Storage.KnowledgeBasePath)
	if err != nil {
		return err
	}
	if retriever.Len() == 0 {
		return fmt.Errorf("loaded but empty")
	}
	return nil
}
