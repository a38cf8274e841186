// Package proxy выдает HTTP-клиентов с прокси на время одного внешнего вызова.
package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// Config описывает прокси для исходящих запросов к AI-провайдерам.
type Config struct {
	Enabled bool
	HTTP    string
	HTTPS   string
}

// Scope выдает клиентов, настроенных на прокси. Переменные окружения процесса
// не изменяются: прокси задается только в транспорте выданного клиента.
type Scope struct {
	cfg     Config
	httpURL *url.URL
	tlsURL  *url.URL
	timeout time.Duration
	logger  *slog.Logger
	active  atomic.Int32
}

// Option настраивает Scope.
type Option func(*Scope)

// WithTimeout задает таймаут выдаваемых клиентов.
func WithTimeout(d time.Duration) Option {
	return func(s *Scope) { s.timeout = d }
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scope) { s.logger = l }
}

// NewScope проверяет адреса прокси и создает Scope.
func NewScope(cfg Config, opts ...Option) (*Scope, error) {
	s := &Scope{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if !cfg.Enabled {
		return s, nil
	}

	var err error
	if s.httpURL, err = parseProxyURL(cfg.HTTP); err != nil {
		return nil, fmt.Errorf("invalid http proxy: %w", err)
	}
	if s.tlsURL, err = parseProxyURL(cfg.HTTPS); err != nil {
		return nil, fmt.Errorf("invalid https proxy: %w", err)
	}
	// один адрес обслуживает обе схемы
	if s.tlsURL == nil {
		s.tlsURL = s.httpURL
	}
	if s.httpURL == nil {
		s.httpURL = s.tlsURL
	}
	return s, nil
}

func parseProxyURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy address %q must include scheme and host", raw)
	}
	return u, nil
}

// Enabled сообщает, включен ли прокси.
func (s *Scope) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// Active возвращает число невозвращенных клиентов.
func (s *Scope) Active() int {
	return int(s.active.Load())
}

// Acquire возвращает клиента для одного вызова и функцию освобождения.
// release нужно вызывать на любом пути выхода, обычно через defer;
// повторный вызов ничего не делает.
func (s *Scope) Acquire() (*http.Client, func()) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if s.Enabled() {
		transport.Proxy = s.proxyFor
		s.logger.Debug("proxy acquired for outbound request")
	}
	client := &http.Client{Transport: transport, Timeout: s.timeout}
	s.active.Add(1)

	var released atomic.Bool
	release := func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		transport.CloseIdleConnections()
		s.active.Add(-1)
		if s.Enabled() {
			s.logger.Debug("proxy released after outbound request")
		}
	}
	return client, release
}

func (s *Scope) proxyFor(req *http.Request) (*url.URL, error) {
	if req.URL.Scheme == "https" {
		return s.tlsURL, nil
	}
	return s.httpURL, nil
}
