package summarizer

import (
	"fmt"
	"log/slog"
	"strings"

	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/pkg/proxy"
	"wechat-daily-report/internal/ports"
)

// New выбирает реализацию по ai.service.
func New(cfg config.AI, scope *proxy.Scope, logger *slog.Logger) (ports.Summarizer, error) {
	switch strings.ToLower(cfg.Service) {
	case "openai":
		return NewOpenAISummarizer(Provider{
			Name:    "openai",
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		}, WithProxyScope(scope), WithLogger(logger))
	case "gemini":
		baseURL := cfg.Gemini.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultGeminiBaseURL
		}
		return NewOpenAISummarizer(Provider{
			Name:    "gemini",
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: baseURL,
		}, WithProxyScope(scope), WithLogger(logger))
	case "local", "":
		return NewLocalSummarizer(), nil
	default:
		return nil, fmt.Errorf("unsupported AI service: %s", cfg.Service)
	}
}
