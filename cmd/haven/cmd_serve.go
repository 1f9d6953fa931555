package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/haven/internal/emotion"
	"github.com/user/haven/internal/generator"
	"github.com/user/haven/internal/httpapi"
	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/notify"
	"github.com/user/haven/internal/risk"
	"github.com/user/haven/internal/scheduler"
	"github.com/user/haven/internal/session"
	"github.com/user/haven/internal/state"
	"github.com/user/haven/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the haven daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Lexicon
	table, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}

	// Stores: Postgres when configured, file-backed otherwise
	var archive types.ArchiveStore
	var crises types.CrisisStore
	if cfg.Postgres.DSN != "" {
		pg, err := state.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pg.Close()
		archive = pg.Archive()
		crises = pg.Crises()
		slog.Info("using postgres stores")
	} else {
		archive = state.NewArchiveStore(cfg.DataDir)
		crises = state.NewCrisisLog(cfg.DataDir)
	}

	// Notifier registry
	notifier := notify.NewRegistry()
	notifier.Register("console", notify.Console())
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.Telegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		notifier.Register("telegram", tg)
		slog.Info("telegram escalation channel enabled")
	}

	// Response generator (optional; fallback templates apply without it)
	var gen generator.Generator
	var window *generator.Window
	if cfg.Generator.APIKey != "" {
		gen = generator.NewOpenAI(cfg.Generator.APIKey, cfg.Generator.BaseURL,
			cfg.Generator.Model, cfg.Generator.Temperature)
		window, err = generator.NewWindow(cfg.Generator.Model, cfg.Generator.HistoryTokens)
		if err != nil {
			return fmt.Errorf("create history window: %w", err)
		}
	} else {
		slog.Warn("no generator API key configured, using fallback replies")
	}

	// Core
	extractors := emotion.New(table, time.Duration(cfg.ExtractorTimeoutMS)*time.Millisecond)
	scanner := risk.NewScanner(table)
	machine := session.NewMachine(
		session.NewRegistry(), extractors, scanner,
		archive, crises, gen, window, notifier,
	)

	// Follow-up scheduler
	sched := scheduler.New(crises, notifier, cfg.Scheduler.Spec)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP surface
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewServer(machine),
	}
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	return nil
}
