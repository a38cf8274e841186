package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const maskedValue = "***masked***"

// secretPatterns — известные форматы ключей, которые не должны попадать в логи.
var secretPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// токен Telegram-бота в формате botID:token
	{regexp.MustCompile(`\bbot\d+:[A-Za-z0-9_-]{35,}`), "bot***:***masked-token***"},
	// ключи OpenAI-совместимых API
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`), "sk-" + maskedValue},
	// ключи Google AI Studio
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{30,}`), "AIza" + maskedValue},
	// заголовки авторизации SiYuan и Bearer
	{regexp.MustCompile(`(Authorization:?\s*"?(?:Token|Bearer)\s+)[^\s"]+`), "${1}" + maskedValue},
}

// SecretMaskerHandler — обертка для slog.Handler, которая маскирует секреты в логах
type SecretMaskerHandler struct {
	handler slog.Handler
	masker  *strings.Replacer
}

// NewSecretMaskerHandler создает обработчик с маскировкой известных форматов ключей
// и дополнительно переданных значений (пароли, токены из конфигурации).
func NewSecretMaskerHandler(handler slog.Handler, secrets ...string) *SecretMaskerHandler {
	var pairs []string
	for _, s := range secrets {
		// Короткие значения дали бы слишком много ложных совпадений.
		if len(s) >= 6 {
			pairs = append(pairs, s, maskedValue)
		}
	}
	h := &SecretMaskerHandler{handler: handler}
	if len(pairs) > 0 {
		h.masker = strings.NewReplacer(pairs...)
	}
	return h
}

// mask заменяет найденные секреты на маску
func (h *SecretMaskerHandler) mask(text string) string {
	if h.masker != nil {
		text = h.masker.Replace(text)
	}
	return maskPatterns(text)
}

func maskPatterns(text string) string {
	for _, p := range secretPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// Enabled реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Работаем с копией: исходную запись slog может переиспользовать.
	r := slog.NewRecord(record.Time, record.Level, h.mask(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(slog.Attr{Key: a.Key, Value: h.maskValue(a.Value)})
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = slog.Attr{Key: attr.Key, Value: h.maskValue(attr.Value)}
	}
	return &SecretMaskerHandler{handler: h.handler.WithAttrs(masked), masker: h.masker}
}

// WithGroup реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) WithGroup(name string) slog.Handler {
	return &SecretMaskerHandler{handler: h.handler.WithGroup(name), masker: h.masker}
}

// maskValue рекурсивно маскирует значения атрибутов
func (h *SecretMaskerHandler) maskValue(value slog.Value) slog.Value {
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(h.mask(value.String()))
	case slog.KindAny:
		// Ошибки часто содержат URL запроса вместе с ключом.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(h.mask(err.Error()))
		}
		return value
	case slog.KindGroup:
		group := value.Group()
		masked := make([]slog.Attr, len(group))
		for i, attr := range group {
			masked[i] = slog.Attr{Key: attr.Key, Value: h.maskValue(attr.Value)}
		}
		return slog.GroupValue(masked...)
	case slog.KindLogValuer:
		return h.maskValue(value.Resolve())
	default:
		return value
	}
}
