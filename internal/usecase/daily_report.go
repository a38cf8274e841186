package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const dailyTemplate = `# {{.Title}}

**报告日期**: {{.DateLabel}}  
**生成时间**: {{.GeneratedAt.Format "2006-01-02 15:04:05"}}  
**监控群数**: {{len .Rooms}}  
**消息总数**: {{.TotalMessages}}

---
{{range .Rooms}}
{{.Summary}}

---
{{end}}
*本报告由微信聊天记录自动分析系统生成*
`

var dailyTmpl = template.Must(template.New("daily").Parse(dailyTemplate))

// DailyReportRequest описывает запуск ежедневного отчета.
type DailyReportRequest struct {
	Rooms  []string
	Window domain.TimeWindow
	// ReportsDir — каталог итогового файла wechat_daily_report_<дата>.md.
	ReportsDir string
	// ExportDir включает запись файлов по каждой комнате.
	ExportDir string
}

// DailyReportResult — итог ежедневного запуска.
type DailyReportResult struct {
	Delivery domain.Delivery
	FilePath string
	Rooms    []domain.RoomResult
}

// DailyReportOption настраивает DailyReportUseCase.
type DailyReportOption func(*DailyReportUseCase)

// WithHealthCheck прерывает запуск, если сервис истории недоступен.
func WithHealthCheck(h ports.HealthChecker) DailyReportOption {
	return func(uc *DailyReportUseCase) { uc.health = h }
}

// WithNotifiers задает каналы доставки.
func WithNotifiers(n ...ports.Notifier) DailyReportOption {
	return func(uc *DailyReportUseCase) { uc.notifiers = append(uc.notifiers, n...) }
}

// WithFallbackSummarizer задает сводку на случай отказа основной.
func WithFallbackSummarizer(s ports.Summarizer) DailyReportOption {
	return func(uc *DailyReportUseCase) { uc.fallback = s }
}

// WithSummaryTimeout ограничивает время одной сводки.
func WithSummaryTimeout(d time.Duration) DailyReportOption {
	return func(uc *DailyReportUseCase) { uc.summaryTimeout = d }
}

// WithMaxMessages ограничивает число последних сообщений, передаваемых в сводку.
func WithMaxMessages(n int) DailyReportOption {
	return func(uc *DailyReportUseCase) { uc.maxMessages = n }
}

// WithDailyLogger задает логгер.
func WithDailyLogger(l *slog.Logger) DailyReportOption {
	return func(uc *DailyReportUseCase) {
		if l != nil {
			uc.logger = l
		}
	}
}

// WithDailyClock подменяет источник времени.
func WithDailyClock(now func() time.Time) DailyReportOption {
	return func(uc *DailyReportUseCase) { uc.now = now }
}

// DailyReportUseCase собирает отчеты комнат, получает сводки и рассылает итог.
type DailyReportUseCase struct {
	export         *ExportUseCase
	summarizer     ports.Summarizer
	fallback       ports.Summarizer
	health         ports.HealthChecker
	notifiers      []ports.Notifier
	summaryTimeout time.Duration
	maxMessages    int
	logger         *slog.Logger
	now            func() time.Time
}

// NewDailyReportUseCase создает новый экземпляр DailyReportUseCase.
func NewDailyReportUseCase(export *ExportUseCase, summarizer ports.Summarizer, opts ...DailyReportOption) *DailyReportUseCase {
	uc := &DailyReportUseCase{
		export:     export,
		summarizer: summarizer,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// DailyReportFileName возвращает имя файла ежедневного отчета.
func DailyReportFileName(date string) string {
	return fmt.Sprintf("wechat_daily_report_%s.md", date)
}

// Run выполняет ежедневный отчет. Сбои комнат и каналов доставки не прерывают запуск.
func (uc *DailyReportUseCase) Run(ctx context.Context, req DailyReportRequest) (*DailyReportResult, error) {
	logger := uc.logger.With("date", req.Window.Label)

	if uc.health != nil {
		if err := uc.health.Health(ctx); err != nil {
			return nil, fmt.Errorf("history service is not available: %w", err)
		}
	}

	results, err := uc.export.Export(ctx, ExportRequest{Rooms: req.Rooms, Window: req.Window, OutputDir: req.ExportDir})
	if err != nil {
		if len(results) == 0 {
			return nil, err
		}
		logger.Warn("some rooms failed", "error", err)
	}

	digests := make([]domain.RoomDigest, 0, len(results))
	total := 0
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := uc.digest(ctx, logger, r)
		total += d.MessageCount
		digests = append(digests, d)
	}

	delivery := domain.Delivery{
		Title:         fmt.Sprintf("微信群聊日报 - %s", req.Window.Label),
		DateLabel:     req.Window.Label,
		GeneratedAt:   uc.now(),
		TotalMessages: total,
		Rooms:         digests,
	}
	markdown, err := RenderDaily(delivery)
	if err != nil {
		return nil, err
	}
	delivery.Markdown = markdown

	path := filepath.Join(req.ReportsDir, DailyReportFileName(req.Window.Label))
	if err := writeFile(path, markdown); err != nil {
		return nil, &domain.WriteFailedError{Path: path, Err: err}
	}
	logger.Info("daily report saved", "file", path, "rooms", len(digests), "messages", total)

	for _, n := range uc.notifiers {
		if err := n.Notify(ctx, delivery); err != nil {
			logger.Error("notification failed", "channel", n.Name(), "error", err)
			continue
		}
		logger.Info("notification sent", "channel", n.Name())
	}

	return &DailyReportResult{Delivery: delivery, FilePath: path, Rooms: results}, nil
}

func (uc *DailyReportUseCase) digest(ctx context.Context, logger *slog.Logger, r domain.RoomResult) domain.RoomDigest {
	d := domain.RoomDigest{
		Room:             r.Room,
		MessageCount:     r.MessageCount,
		ParticipantCount: r.ParticipantCount,
		Report:           r.Report,
		SummaryStatus:    domain.SummarySkipped,
	}
	switch {
	case r.Err != nil:
		d.Summary = fmt.Sprintf("## 群聊：%s\n\n处理失败: %v", r.Room, r.Err)
		return d
	case r.Report == nil || r.MessageCount == 0:
		d.Summary = fmt.Sprintf("## 群聊：%s\n\n暂无聊天记录", r.Room)
		return d
	}

	report := r.Report.Tail(uc.maxMessages)
	summary, err := uc.summarize(ctx, uc.summarizer, r.Room, report)
	if err == nil {
		d.Summary, d.SummaryStatus = summary, domain.SummaryOK
		return d
	}
	logger.Error("summary failed", "room", r.Room, "summarizer", uc.summarizer.Name(), "error", err)

	if uc.fallback != nil {
		if summary, ferr := uc.summarize(ctx, uc.fallback, r.Room, report); ferr == nil {
			d.Summary, d.SummaryStatus = summary, domain.SummaryFallback
			return d
		}
	}
	d.Summary = fmt.Sprintf("## 群聊：%s\n\n总结失败: %v", r.Room, err)
	d.SummaryStatus = domain.SummaryFallback
	return d
}

func (uc *DailyReportUseCase) summarize(ctx context.Context, s ports.Summarizer, room string, report domain.Report) (string, error) {
	if uc.summaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.summaryTimeout)
		defer cancel()
	}
	return s.Summarize(ctx, room, report)
}

// RenderDaily строит Markdown ежедневного отчета.
func RenderDaily(d domain.Delivery) (string, error) {
	var buf bytes.Buffer
	if err := dailyTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("failed to render daily report: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
