package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v9"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
	"github.com/dmvolsky/persona-telegram-bot/pkg/llm"
	"github.com/dmvolsky/persona-telegram-bot/pkg/logger"
	"github.com/dmvolsky/persona-telegram-bot/pkg/prompt"
	"github.com/dmvolsky/persona-telegram-bot/pkg/repository"
	"github.com/dmvolsky/persona-telegram-bot/pkg/services"
	"github.com/dmvolsky/persona-telegram-bot/pkg/session"
	"github.com/dmvolsky/persona-telegram-bot/pkg/telegram"
	"github.com/dmvolsky/persona-telegram-bot/pkg/workers"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	ConfigPath       string `env:"CONFIG_PATH" envDefault:"config/app_settings.yaml"`
	PromptDir        string `env:"PROMPT_DIR" envDefault:"prompt"`
	DBPath           string `env:"DB_PATH" envDefault:"data/sessions.db"`
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := runMain(); err != nil {
		slog.Error("shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func runMain() error {
	workerGroup, err := setupWorkers()
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	return workerGroup.Start(ctx)
}

func setupWorkers() (workers.Group, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	snapshot, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	provider := config.NewProvider(snapshot)

	db, err := repository.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("creating db: %w", err)
	}
	sessionRepository, err := repository.NewSessionRepository(db)
	if err != nil {
		return nil, fmt.Errorf("creating session repository: %w", err)
	}
	sessionStore := session.NewStore(sessionRepository, provider)

	telegramClient, err := telegram.NewClient(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram client: %w", err)
	}

	responseCh := make(chan domain.Response)

	responder := services.NewResponder(
		provider,
		sessionStore,
		prompt.NewSource(cfg.PromptDir),
		llm.NewClient(),
		responseCh,
	)

	var workerGroup workers.Group

	listener, err := workers.NewTelegramListener(telegramClient, responder, responseCh)
	if err != nil {
		return nil, fmt.Errorf("creating telegram listener: %w", err)
	}
	workerGroup = append(workerGroup, listener)

	watcher, err := workers.NewConfigWatcher(cfg.ConfigPath, provider)
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	workerGroup = append(workerGroup, watcher)

	return workerGroup, nil
}
