// Package usecase связывает выгрузку, нормализацию, сборку и запись отчетов.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// ErrNoRooms возвращается, если не выбрано ни одной комнаты.
var ErrNoRooms = errors.New("no rooms selected")

// ExportRequest описывает пакетную выгрузку.
type ExportRequest struct {
	Rooms  []string
	Window domain.TimeWindow
	// OutputDir — каталог для файлов. Пустой каталог отключает запись,
	// отчеты остаются только в результатах.
	OutputDir string
}

// ExportOption настраивает ExportUseCase.
type ExportOption func(*ExportUseCase)

// WithRoomDirectory включает поиск комнаты по имени перед выгрузкой.
func WithRoomDirectory(d ports.RoomDirectory) ExportOption {
	return func(uc *ExportUseCase) { uc.directory = d }
}

// WithWriters добавляет дополнительные форматы вывода, например xlsx.
func WithWriters(w ...ports.ReportWriter) ExportOption {
	return func(uc *ExportUseCase) { uc.writers = append(uc.writers, w...) }
}

// WithLedger включает запись результатов в журнал запусков.
func WithLedger(l ports.RunLedger) ExportOption {
	return func(uc *ExportUseCase) { uc.ledger = l }
}

// WithWorkers задает число комнат, обрабатываемых одновременно.
func WithWorkers(n int) ExportOption {
	return func(uc *ExportUseCase) {
		if n > 0 {
			uc.workers = n
		}
	}
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) ExportOption {
	return func(uc *ExportUseCase) {
		if l != nil {
			uc.logger = l
		}
	}
}

// WithClock подменяет источник времени для записей журнала.
func WithClock(now func() time.Time) ExportOption {
	return func(uc *ExportUseCase) { uc.now = now }
}

// ExportUseCase выгружает отчеты по набору комнат.
// Сбой одной комнаты не влияет на остальные.
type ExportUseCase struct {
	fetcher    ports.Fetcher
	normalizer ports.Normalizer
	assembler  ports.Assembler
	writer     ports.ReportWriter
	writers    []ports.ReportWriter
	directory  ports.RoomDirectory
	ledger     ports.RunLedger
	workers    int
	logger     *slog.Logger
	now        func() time.Time
}

// NewExportUseCase создает новый экземпляр ExportUseCase.
// writer сохраняет основной Markdown-файл, его путь попадает в результат.
func NewExportUseCase(
	fetcher ports.Fetcher,
	normalizer ports.Normalizer,
	assembler ports.Assembler,
	writer ports.ReportWriter,
	opts ...ExportOption,
) *ExportUseCase {
	uc := &ExportUseCase{
		fetcher:    fetcher,
		normalizer: normalizer,
		assembler:  assembler,
		writer:     writer,
		workers:    1,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Export обрабатывает комнаты пулом из workers горутин. Результаты идут в порядке
// req.Rooms. Ошибка — объединение ошибок всех неуспешных комнат.
func (uc *ExportUseCase) Export(ctx context.Context, req ExportRequest) ([]domain.RoomResult, error) {
	if len(req.Rooms) == 0 {
		return nil, ErrNoRooms
	}

	runID := uuid.NewString()
	logger := uc.logger.With("run_id", runID, "window", req.Window.Label)
	logger.Info("export started", "rooms", len(req.Rooms), "workers", uc.workers)

	results := make([]domain.RoomResult, len(req.Rooms))
	var g errgroup.Group
	g.SetLimit(uc.workers)

	for i, name := range req.Rooms {
		g.Go(func() error {
			// остановка проверяется перед каждой комнатой, начатые комнаты доводятся до конца
			if err := ctx.Err(); err != nil {
				results[i] = failedResult(name, req.Window.Label, err)
				return nil
			}
			results[i] = uc.exportRoom(ctx, logger, name, req)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("room %q: %w", r.Room, r.Err))
		}
	}
	uc.record(logger, runID, results)

	logger.Info("export finished", "rooms", len(results), "failed", len(errs))
	return results, errors.Join(errs...)
}

func (uc *ExportUseCase) exportRoom(ctx context.Context, logger *slog.Logger, name string, req ExportRequest) domain.RoomResult {
	logger = logger.With("room", name)

	room := uc.resolveRoom(ctx, logger, name)
	talker := room.ID
	if talker == "" {
		talker = name
	}

	records, err := uc.fetcher.Fetch(ctx, talker, req.Window)
	if err != nil {
		logger.Error("failed to fetch room history", "error", err)
		return failedResult(name, req.Window.Label, err)
	}

	messages := uc.normalizer.Normalize(records)
	report := uc.assembler.Assemble(room, req.Window, messages)

	result := domain.RoomResult{
		Room:             name,
		Label:            req.Window.Label,
		Status:           domain.RoomStatusOK,
		MessageCount:     report.EffectiveMessageCount,
		ParticipantCount: report.ParticipantCount,
		Report:           &report,
	}
	if report.EffectiveMessageCount == 0 {
		result.Status = domain.RoomStatusEmpty
	}

	if req.OutputDir != "" {
		path, err := uc.writer.Write(report, req.OutputDir)
		if err != nil {
			logger.Error("failed to write report", "error", err)
			return failedResult(name, req.Window.Label, err)
		}
		result.FilePath = path
		for _, w := range uc.writers {
			if _, err := w.Write(report, req.OutputDir); err != nil {
				logger.Error("failed to write additional output", "error", err)
				return failedResult(name, req.Window.Label, err)
			}
		}
	}

	logger.Info("room exported",
		"status", result.Status,
		"fetched", len(records),
		"messages", result.MessageCount,
		"participants", result.ParticipantCount,
		"degraded_quotes", report.DegradedQuotes,
		"file", result.FilePath,
	)
	return result
}

// resolveRoom уточняет идентификатор комнаты. Если поиск недоступен,
// имя используется как есть.
func (uc *ExportUseCase) resolveRoom(ctx context.Context, logger *slog.Logger, name string) domain.ChatRoom {
	fallback := domain.ChatRoom{Name: name}
	if uc.directory == nil {
		return fallback
	}
	room, err := uc.directory.FindRoom(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			logger.Warn("room not found in directory, using name as talker")
		} else {
			logger.Warn("room lookup failed, using name as talker", "error", err)
		}
		return fallback
	}
	if room.Name == "" {
		room.Name = name
	}
	return room
}

func (uc *ExportUseCase) record(logger *slog.Logger, runID string, results []domain.RoomResult) {
	if uc.ledger == nil {
		return
	}
	at := uc.now()
	entries := make([]domain.RunEntry, 0, len(results))
	for _, r := range results {
		e := domain.RunEntry{
			RunID:        runID,
			Room:         r.Room,
			Label:        r.Label,
			Status:       r.Status,
			MessageCount: r.MessageCount,
			FilePath:     r.FilePath,
			RecordedAt:   at,
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		entries = append(entries, e)
	}
	if err := uc.ledger.Record(entries); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func failedResult(room, label string, err error) domain.RoomResult {
	return domain.RoomResult{Room: room, Label: label, Status: domain.RoomStatusFailed, Err: err}
}
