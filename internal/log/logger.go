package log

import (
	"io"
	"log/slog"
	"strings"
)

// Options описывает параметры создания логгера.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	// Secrets — значения из конфигурации, которые нужно маскировать.
	Secrets []string
}

// ParseLevel преобразует строковый уровень в slog.Level. Неизвестные значения дают info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New создает логгер с маскировкой секретов.
func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewSecretMaskerHandler(handler, opts.Secrets...))
}
