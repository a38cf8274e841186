package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// TGBotAPIAdapter направляет вывод go-telegram-bot-api/v5 в slog.
// Библиотека пишет в лог адреса запросов вместе с токеном, поэтому
// логгер должен быть создан через New или обернут в SecretMaskerHandler.
type TGBotAPIAdapter struct {
	Logger *slog.Logger
}

// NewTGBotAPIAdapter создает адаптер с атрибутом component=telegram.
func NewTGBotAPIAdapter(logger *slog.Logger) *TGBotAPIAdapter {
	return &TGBotAPIAdapter{Logger: logger.With("component", "telegram")}
}

// Println реализует метод интерфейса tgbotapi.BotLogger.
func (a *TGBotAPIAdapter) Println(v ...interface{}) {
	a.Logger.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

// Printf реализует метод интерфейса tgbotapi.BotLogger.
func (a *TGBotAPIAdapter) Printf(format string, v ...interface{}) {
	a.Logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
