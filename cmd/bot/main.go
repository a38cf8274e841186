package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wechat-daily-report/internal/app"
	"wechat-daily-report/internal/bot"
	applog "wechat-daily-report/internal/log"
	"wechat-daily-report/internal/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yml")
	flag.Parse()

	// Загрузка конфигурации бота
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateBot(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to validate bot config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера с маскировкой токенов и настройками из конфига
	logger := app.NewLogger(cfg, os.Stdout)
	tgbotapi.SetLogger(applog.NewTGBotAPIAdapter(logger))

	// Инициализация компонентов
	taskStore := bot.NewTaskStore()
	serverClient := bot.NewServerClient(cfg.Bot.BackendURL, cfg.Bot.HTTPTimeout)

	b, err := bot.NewBot(cfg.Telegram.BotToken, cfg.Bot, serverClient, taskStore, logger.With(slog.String("component", "bot")))
	if err != nil {
		slog.Error("failed to create bot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Bot created successfully, starting...", slog.String("backend", cfg.Bot.BackendURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start блокируется до сигнала и дожидается опроса активных выгрузок
	b.Start(ctx)

	slog.Info("Bot stopped gracefully")
}
