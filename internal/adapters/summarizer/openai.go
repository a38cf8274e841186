// Package summarizer строит сводки по отчетам комнат.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/pkg/proxy"
	"wechat-daily-report/internal/ports"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 1000
)

// ErrEmptyCompletion возвращается, если модель не вернула ни одного варианта.
var ErrEmptyCompletion = errors.New("empty chat completion")

// Provider описывает OpenAI-совместимый сервис.
type Provider struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAISummarizer обращается к OpenAI-совместимому API чатов.
// Через него же работает Gemini: у Google есть совместимая конечная точка.
type OpenAISummarizer struct {
	provider Provider
	scope    *proxy.Scope
	logger   *slog.Logger
}

// Option настраивает OpenAISummarizer.
type Option func(*OpenAISummarizer)

// WithProxyScope направляет запросы через прокси.
func WithProxyScope(s *proxy.Scope) Option {
	return func(o *OpenAISummarizer) { o.scope = s }
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(o *OpenAISummarizer) { o.logger = l }
}

// NewOpenAISummarizer создает новый экземпляр OpenAISummarizer.
func NewOpenAISummarizer(p Provider, opts ...Option) (*OpenAISummarizer, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", p.Name)
	}
	if p.Model == "" {
		return nil, fmt.Errorf("%s model is required", p.Name)
	}
	s := &OpenAISummarizer{provider: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.scope == nil {
		s.scope = &proxy.Scope{}
	}
	return s, nil
}

var _ ports.Summarizer = (*OpenAISummarizer)(nil)

// Name возвращает имя провайдера.
func (s *OpenAISummarizer) Name() string {
	return s.provider.Name
}

// Summarize отправляет модели отрисованный отчет комнаты с последними записями переписки.
func (s *OpenAISummarizer) Summarize(ctx context.Context, roomName string, report domain.Report) (string, error) {
	if report.EffectiveMessageCount == 0 || strings.TrimSpace(report.RenderedBody) == "" {
		return EmptySummary(roomName), nil
	}
	body := report.Tail(MaxPromptMessages).RenderedBody

	answer, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: buildPrompt(roomName, body)},
	})
	if err != nil {
		s.logger.Error("summary request failed", "provider", s.provider.Name, "room", roomName, "error", err)
		return "", fmt.Errorf("%s summary for room %q: %w", s.provider.Name, roomName, err)
	}
	return answer, nil
}

// Ping проверяет ключ и доступность API коротким запросом.
func (s *OpenAISummarizer) Ping(ctx context.Context) error {
	_, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "ping"},
	})
	return err
}

func (s *OpenAISummarizer) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	httpClient, release := s.scope.Acquire()
	defer release()

	cfg := openai.DefaultConfig(s.provider.APIKey)
	if s.provider.BaseURL != "" {
		cfg.BaseURL = s.provider.BaseURL
	}
	cfg.HTTPClient = httpClient
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.provider.Model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
