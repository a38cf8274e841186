package app

import (
	"context"
	"fmt"
	"time"

	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/ports"
)

const checkTimeout = 10 * time.Second

// Pinger проверяет подключение к внешнему API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check — результат одной проверки подключения.
type Check struct {
	Name    string
	Skipped bool
	Detail  string
	Err     error
}

// OK сообщает, что проверка прошла или была пропущена.
func (c Check) OK() bool {
	return c.Err == nil
}

// RunChecks проверяет сервис истории, генератор сводок, SiYuan, почту и Telegram.
// siyuan может быть nil, если публикация отключена.
func RunChecks(ctx context.Context, cfg *config.Config, health ports.HealthChecker, summarizer ports.Summarizer, siyuan Pinger) []Check {
	checks := []Check{
		probe(ctx, "history", cfg.History.BaseURL, health.Health),
	}

	if p, ok := summarizer.(Pinger); ok {
		checks = append(checks, probe(ctx, "ai", summarizer.Name(), p.Ping))
	} else {
		checks = append(checks, Check{Name: "ai", Skipped: true, Detail: summarizer.Name() + " summarizer needs no connection"})
	}

	if cfg.SiYuan.Enabled && siyuan != nil {
		checks = append(checks, probe(ctx, "siyuan", cfg.SiYuan.BaseURL, siyuan.Ping))
	} else {
		checks = append(checks, Check{Name: "siyuan", Skipped: true, Detail: "disabled"})
	}

	switch {
	case cfg.Email.Enabled():
		checks = append(checks, Check{Name: "email", Detail: fmt.Sprintf("%s:%d -> %s", cfg.Email.Host, cfg.Email.Port, cfg.Email.To)})
	case cfg.Email.To != "" || cfg.Email.Host != "":
		checks = append(checks, Check{Name: "email", Err: fmt.Errorf("both recipient and SMTP host are required")})
	default:
		checks = append(checks, Check{Name: "email", Skipped: true, Detail: "not configured"})
	}

	if cfg.Telegram.Enabled() {
		checks = append(checks, Check{Name: "telegram", Detail: fmt.Sprintf("chat %d", cfg.Telegram.ChatID)})
	} else {
		checks = append(checks, Check{Name: "telegram", Skipped: true, Detail: "not configured"})
	}
	return checks
}

func probe(ctx context.Context, name, detail string, fn func(context.Context) error) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return Check{Name: name, Detail: detail, Err: fn(ctx)}
}
