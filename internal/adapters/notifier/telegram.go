package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// TelegramNotifier отправляет отчет документом в чат Telegram.
type TelegramNotifier struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client
	logger   *slog.Logger

	once   sync.Once
	api    *tgbotapi.BotAPI
	apiErr error
}

// TelegramOption настраивает TelegramNotifier.
type TelegramOption func(*TelegramNotifier)

// WithAPIEndpoint задает шаблон адреса Bot API, например "http://host/bot%s/%s".
func WithAPIEndpoint(endpoint string) TelegramOption {
	return func(n *TelegramNotifier) { n.endpoint = endpoint }
}

// WithTelegramHTTPClient задает HTTP-клиент.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(n *TelegramNotifier) { n.client = c }
}

// WithTelegramLogger задает логгер.
func WithTelegramLogger(l *slog.Logger) TelegramOption {
	return func(n *TelegramNotifier) { n.logger = l }
}

// NewTelegramNotifier создает новый экземпляр TelegramNotifier.
// Авторизация бота выполняется при первой отправке.
func NewTelegramNotifier(token string, chatID int64, opts ...TelegramOption) *TelegramNotifier {
	n := &TelegramNotifier{
		token:    token,
		chatID:   chatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var _ ports.Notifier = (*TelegramNotifier)(nil)

// Name возвращает имя канала.
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

func (n *TelegramNotifier) bot() (*tgbotapi.BotAPI, error) {
	n.once.Do(func() {
		n.api, n.apiErr = tgbotapi.NewBotAPIWithClient(n.token, n.endpoint, n.client)
		if n.apiErr != nil {
			n.apiErr = fmt.Errorf("failed to create bot api: %w", n.apiErr)
			return
		}
		n.logger.Info("Authorized on account", slog.String("username", n.api.Self.UserName))
	})
	return n.api, n.apiErr
}

// Notify отправляет Markdown-файл отчета с краткой подписью.
func (n *TelegramNotifier) Notify(ctx context.Context, d domain.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	api, err := n.bot()
	if err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(n.chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("wechat_daily_report_%s.md", d.DateLabel),
		Bytes: []byte(d.Markdown),
	})
	doc.Caption = fmt.Sprintf("微信群聊日报 %s: %d 个群聊, %d 条消息", d.DateLabel, len(d.Rooms), d.TotalMessages)

	if _, err := api.Send(doc); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	n.logger.Info("telegram report sent", "chat_id", n.chatID, "date", d.DateLabel)
	return nil
}
