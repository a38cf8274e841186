package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"wechat-daily-report/internal/adapters/ledger"
	"wechat-daily-report/internal/adapters/source"
	"wechat-daily-report/internal/app"
	"wechat-daily-report/internal/cache"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/server"
	"wechat-daily-report/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	configPath := flag.String("config", "", "Path to config.yml")
	flag.Parse()

	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера
	logger := app.NewLogger(cfg, os.Stdout)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 4. Инициализация зависимостей
	client := app.NewHistoryClient(cfg.History, logger)

	var ledgerOpts []usecase.ExportOption
	serverOpts := []server.Option{
		server.WithHealthChecker(client),
		server.WithLogger(logger.With("component", "server")),
	}
	if cfg.Ledger.Path != "" {
		runs, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		defer runs.Close()
		ledgerOpts = append(ledgerOpts, usecase.WithLedger(runs))
		serverOpts = append(serverOpts, server.WithRunLedger(runs))
	}

	exporter := app.NewExportUseCase(cfg, client, logger,
		append([]usecase.ExportOption{usecase.WithRoomDirectory(client)}, ledgerOpts...)...)
	// сохраненный ответ уже относится к одной комнате, поиск по справочнику не нужен
	serverOpts = append(serverOpts, server.WithReplay(func(filePath string) server.RoomExporter {
		return app.NewExportUseCase(cfg, source.NewFileSource(filePath), logger, ledgerOpts...)
	}))

	taskStore := server.NewTaskStore()
	cacheStore := cache.NewCacheStore[[]domain.RoomResult]()

	// 5. Создание HTTP-сервера
	srv, err := server.New(cfg, exporter, taskStore, cacheStore, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// 6. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		logger.Info("starting server", "addr", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("signal received, shutting down")
	case <-serverDone:
		return fmt.Errorf("server stopped unexpectedly")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	<-serverDone
	logger.Info("application exited gracefully")
	return nil
}
