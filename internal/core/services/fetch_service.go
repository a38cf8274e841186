package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// FetchConfig хранит настройки постраничной выгрузки.
type FetchConfig struct {
	// PageSize — размер одной страницы (limit).
	PageSize int
	// RequestTimeout — таймаут одного запроса страницы.
	RequestTimeout time.Duration
	// MaxAttempts — общее число попыток на одну страницу, включая первую.
	MaxAttempts int
	// RetryDelay — начальная пауза перед повтором, далее растет экспоненциально.
	RetryDelay time.Duration
	// MaxPages ограничивает число страниц на случай, если сервис игнорирует offset.
	MaxPages int
}

// FetchOption — функциональная опция для FetchService.
type FetchOption func(*FetchService)

// WithPageSize задает размер страницы.
func WithPageSize(n int) FetchOption {
	return func(s *FetchService) {
		if n > 0 {
			s.config.PageSize = n
		}
	}
}

// WithRequestTimeout задает таймаут одного запроса.
func WithRequestTimeout(d time.Duration) FetchOption {
	return func(s *FetchService) {
		if d > 0 {
			s.config.RequestTimeout = d
		}
	}
}

// WithMaxAttempts задает число попыток на страницу.
func WithMaxAttempts(n int) FetchOption {
	return func(s *FetchService) {
		if n > 0 {
			s.config.MaxAttempts = n
		}
	}
}

// WithRetryDelay задает начальную паузу между попытками.
func WithRetryDelay(d time.Duration) FetchOption {
	return func(s *FetchService) {
		s.config.RetryDelay = d
	}
}

// WithMaxPages ограничивает число запрашиваемых страниц.
func WithMaxPages(n int) FetchOption {
	return func(s *FetchService) {
		if n > 0 {
			s.config.MaxPages = n
		}
	}
}

// WithLogger устанавливает логгер для сервиса выгрузки.
func WithLogger(l *slog.Logger) FetchOption {
	return func(s *FetchService) {
		if l != nil {
			s.log = l
		}
	}
}

// FetchService выгружает историю комнаты постранично.
// Сервис не хранит состояние между вызовами и безопасен для одновременного использования.
type FetchService struct {
	source ports.HistorySource
	config FetchConfig
	log    *slog.Logger
}

// NewFetchService создает FetchService с настройками по умолчанию, которые переопределяются опциями.
func NewFetchService(source ports.HistorySource, opts ...FetchOption) *FetchService {
	s := &FetchService{
		source: source,
		config: FetchConfig{
			PageSize:       500,
			RequestTimeout: 30 * time.Second,
			MaxAttempts:    3,
			RetryDelay:     time.Second,
			MaxPages:       1000,
		},
		log: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Fetch возвращает все записи комнаты в окне [Start, End) без дубликатов, по возрастанию времени.
func (s *FetchService) Fetch(ctx context.Context, room string, window domain.TimeWindow) ([]domain.RawRecord, error) {
	seen := make(map[string]struct{})
	records := make([]domain.RawRecord, 0)
	duplicates, outside := 0, 0

	s.log.DebugContext(ctx, "Starting history fetch", "room", room, "window", window.Label, "page_size", s.config.PageSize)

	offset := 0
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch of room %q interrupted: %w", room, err)
		}
		if page >= s.config.MaxPages {
			s.log.WarnContext(ctx, "Page limit reached, stopping fetch", "room", room, "pages", page)
			break
		}

		req := ports.PageRequest{Talker: room, Window: window, Limit: s.config.PageSize, Offset: offset}
		batch, err := s.fetchPage(ctx, room, req)
		if err != nil {
			return nil, err
		}

		var newest time.Time
		for _, r := range batch {
			if r.Timestamp.After(newest) {
				newest = r.Timestamp
			}
			if !window.Contains(r.Timestamp) {
				outside++
				continue
			}
			if _, ok := seen[r.ID]; ok {
				duplicates++
				continue
			}
			seen[r.ID] = struct{}{}
			records = append(records, r)
		}

		if len(batch) < s.config.PageSize || !newest.Before(window.End) {
			break
		}
		offset += s.config.PageSize
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	if duplicates > 0 || outside > 0 {
		s.log.DebugContext(ctx, "Dropped records during fetch", "room", room, "duplicates", duplicates, "outside_window", outside)
	}
	s.log.InfoContext(ctx, "History fetched", "room", room, "window", window.Label, "records", len(records))

	return records, nil
}

// fetchPage запрашивает одну страницу с повторами при временных ошибках.
func (s *FetchService) fetchPage(ctx context.Context, room string, req ports.PageRequest) ([]domain.RawRecord, error) {
	attempts := 0
	operation := func() ([]domain.RawRecord, error) {
		attempts++
		reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()

		batch, err := s.source.FetchPage(reqCtx, req)
		if err == nil {
			return batch, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, domain.ErrMalformedResponse) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, next time.Duration) {
		s.log.WarnContext(ctx, "Page request failed, retrying",
			"room", room,
			"offset", req.Offset,
			"attempt", attempts,
			"next_in", next,
			"error", err,
		)
	}

	batch, err := backoff.RetryNotifyWithData(operation, s.retryPolicy(ctx), notify)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, fmt.Errorf("fetch of room %q interrupted: %w", room, err)
		}
		return nil, &domain.FetchFailedError{Room: room, Attempts: attempts, Err: err}
	}
	return batch, nil
}

func (s *FetchService) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.RetryDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.2
	b.Reset()

	retries := s.config.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
