// Package history реализует доступ к локальному сервису истории чатов.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wechat-daily-report/internal/adapters/parser"
	"wechat-daily-report/internal/cache"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const (
	chatlogPath  = "/api/v1/chatlog"
	chatroomPath = "/api/v1/chatroom"
	sessionPath  = "/api/v1/session"

	// queryTimeLayout — формат границ окна в параметре time.
	queryTimeLayout = "2006-01-02 15:04"
	maxErrorBody    = 512
)

// StatusError — ответ сервиса с кодом вне диапазона 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

// Option — функциональная опция для Client.
type Option func(*Client)

// WithHTTPClient задает HTTP-клиент. Клиент используется всеми воркерами одновременно.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit ограничивает частоту запросов к сервису.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRoomCache включает кэширование справочника комнат.
func WithRoomCache(store *cache.CacheStore[domain.ChatRoom], ttl time.Duration) Option {
	return func(c *Client) {
		c.rooms = store
		c.roomTTL = ttl
	}
}

// WithLogger устанавливает логгер клиента.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client — HTTP-клиент сервиса истории.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	parser     ports.Parser
	rooms      *cache.CacheStore[domain.ChatRoom]
	roomTTL    time.Duration
	log        *slog.Logger
}

var (
	_ ports.HistorySource = (*Client)(nil)
	_ ports.RoomDirectory = (*Client)(nil)
	_ ports.HealthChecker = (*Client)(nil)
)

// NewClient создает новый экземпляр Client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		parser:     parser.NewJsonParser(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage запрашивает одну страницу истории комнаты.
func (c *Client) FetchPage(ctx context.Context, req ports.PageRequest) ([]domain.RawRecord, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("talker", req.Talker)
	q.Set("time", req.Window.Start.Format(queryTimeLayout)+"~"+req.Window.End.Format(queryTimeLayout))
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("offset", strconv.Itoa(req.Offset))

	body, err := c.get(ctx, chatlogPath, q)
	if err != nil {
		return nil, err
	}

	records, err := c.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chatlog page: %w", err)
	}
	c.log.DebugContext(ctx, "Chatlog page received", "talker", req.Talker, "offset", req.Offset, "records", len(records))
	return records, nil
}

// FindRoom ищет комнату по отображаемому имени или идентификатору.
// Точное совпадение имеет приоритет над совпадением идентификатора.
func (c *Client) FindRoom(ctx context.Context, name string) (domain.ChatRoom, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if c.rooms != nil {
		if item, ok := c.rooms.Get(key); ok {
			return item.Data, nil
		}
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("keyword", name)
	body, err := c.get(ctx, chatroomPath, q)
	if err != nil {
		return domain.ChatRoom{}, err
	}
	rooms, err := parser.ParseRooms(body)
	if err != nil {
		return domain.ChatRoom{}, fmt.Errorf("failed to parse chatroom list: %w", err)
	}

	room, ok := matchRoom(rooms, name)
	if !ok {
		return domain.ChatRoom{}, fmt.Errorf("%w: %q", domain.ErrRoomNotFound, name)
	}
	if c.rooms != nil {
		c.rooms.Put(key, room, c.roomTTL)
	}
	return room, nil
}

func matchRoom(rooms []domain.ChatRoom, name string) (domain.ChatRoom, bool) {
	for _, r := range rooms {
		if r.Name == name {
			return r, true
		}
	}
	for _, r := range rooms {
		if r.ID == name {
			return r, true
		}
	}
	for _, r := range rooms {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return domain.ChatRoom{}, false
}

// Health проверяет, что сервис истории отвечает.
func (c *Client) Health(ctx context.Context) error {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", "1")
	if _, err := c.get(ctx, sessionPath, q); err != nil {
		return fmt.Errorf("history service health check failed: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// IsStatus сообщает, является ли err ответом с указанным кодом.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
