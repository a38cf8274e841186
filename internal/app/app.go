// Package app собирает зависимости приложений exporter, reporter и server из конфигурации.
package app

import (
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wechat-daily-report/internal/adapters/exporter"
	"wechat-daily-report/internal/adapters/history"
	"wechat-daily-report/internal/adapters/notifier"
	"wechat-daily-report/internal/cache"
	"wechat-daily-report/internal/core/services"
	"wechat-daily-report/internal/domain"
	applog "wechat-daily-report/internal/log"
	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/ports"
	"wechat-daily-report/internal/usecase"
)

// NewLogger создает логгер с маскировкой секретов из конфигурации и делает его логгером по умолчанию.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := applog.New(w, applog.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Secrets: cfg.Secrets(),
	})
	slog.SetDefault(logger)
	return logger
}

// NewHistoryClient создает клиент сервиса истории с кэшем комнат и ограничением частоты.
func NewHistoryClient(cfg config.History, logger *slog.Logger) *history.Client {
	return history.NewClient(cfg.BaseURL,
		history.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		history.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		history.WithRoomCache(cache.NewCacheStore[domain.ChatRoom](), cfg.RoomCacheTTL),
		history.WithLogger(logger.With("component", "history")),
	)
}

// NewExportUseCase собирает конвейер выгрузки поверх источника истории.
// Дополнительные опции применяются после настроек из конфигурации.
func NewExportUseCase(cfg *config.Config, src ports.HistorySource, logger *slog.Logger, opts ...usecase.ExportOption) *usecase.ExportUseCase {
	fetcher := services.NewFetchService(src,
		services.WithPageSize(cfg.History.PageSize),
		services.WithRequestTimeout(cfg.History.Timeout),
		services.WithMaxAttempts(cfg.History.MaxAttempts),
		services.WithRetryDelay(cfg.History.RetryDelay),
		services.WithMaxPages(cfg.History.MaxPages),
		services.WithLogger(logger.With("component", "fetcher")),
	)
	normalizer := services.NewNormalizer(services.WithNormalizerLogger(logger.With("component", "normalizer")))
	assembler := services.NewAssembler(services.WithAssemblerLogger(logger.With("component", "assembler")))

	base := []usecase.ExportOption{
		usecase.WithWorkers(cfg.Export.Workers),
		usecase.WithLogger(logger.With("component", "export")),
	}
	if cfg.Export.Xlsx {
		base = append(base, usecase.WithWriters(exporter.NewExcelWriter()))
	}
	return usecase.NewExportUseCase(fetcher, normalizer, assembler, exporter.NewMarkdownFileWriter(), append(base, opts...)...)
}

// NewNotifiers создает каналы доставки ежедневного отчета. Консоль включена всегда,
// остальные каналы только при наличии настроек.
func NewNotifiers(cfg *config.Config, out io.Writer, useColor bool, logger *slog.Logger) []ports.Notifier {
	notifiers := []ports.Notifier{notifier.NewConsoleNotifier(out, useColor)}

	if cfg.Email.Enabled() {
		email, err := notifier.NewEmailNotifier(notifier.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
		}, cfg.Email.From, config.SplitList(cfg.Email.To), notifier.WithEmailLogger(logger.With("component", "email")))
		if err != nil {
			logger.Warn("email notifier disabled", "error", err)
		} else {
			notifiers = append(notifiers, email)
		}
	}

	if cfg.SiYuan.Enabled {
		notifiers = append(notifiers, NewSiYuan(cfg, logger))
	}

	if cfg.Telegram.Enabled() {
		tgbotapi.SetLogger(applog.NewTGBotAPIAdapter(logger))
		notifiers = append(notifiers, notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			notifier.WithTelegramLogger(logger.With("component", "telegram"))))
	}
	return notifiers
}

// NewSiYuan создает канал публикации в SiYuan.
func NewSiYuan(cfg *config.Config, logger *slog.Logger) *notifier.SiYuanNotifier {
	return notifier.NewSiYuanNotifier(notifier.SiYuanConfig{
		BaseURL:              cfg.SiYuan.BaseURL,
		AuthToken:            cfg.SiYuan.AuthToken,
		NotebookID:           cfg.SiYuan.NotebookID,
		SaveIndividualGroups: cfg.SiYuan.SaveIndividualGroups,
	}, logger.With("component", "siyuan"))
}
