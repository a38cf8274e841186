package ports

import (
	"context"

	"wechat-daily-report/internal/domain"
)

// PageRequest описывает запрос одной страницы истории комнаты.
type PageRequest struct {
	Talker string
	Window domain.TimeWindow
	Limit  int
	Offset int
}

// HistorySource определяет интерфейс постраничного чтения истории чатов.
type HistorySource interface {
	// FetchPage возвращает не более req.Limit записей, начиная со смещения req.Offset.
	FetchPage(ctx context.Context, req PageRequest) ([]domain.RawRecord, error)
}

// RoomDirectory ищет комнату по имени или идентификатору.
type RoomDirectory interface {
	FindRoom(ctx context.Context, name string) (domain.ChatRoom, error)
}

// HealthChecker проверяет доступность внешнего сервиса.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Parser разбирает ответ сервиса истории в записи.
type Parser interface {
	Parse(data []byte) ([]domain.RawRecord, error)
}

// Fetcher выгружает все записи комнаты за окно.
type Fetcher interface {
	Fetch(ctx context.Context, room string, window domain.TimeWindow) ([]domain.RawRecord, error)
}

// Normalizer приводит сырые записи к каноническим сообщениям.
type Normalizer interface {
	Normalize(records []domain.RawRecord) []domain.Message
}

// Assembler собирает отчет по комнате.
type Assembler interface {
	Assemble(room domain.ChatRoom, window domain.TimeWindow, messages []domain.Message) domain.Report
}

// ReportWriter сохраняет отчет и возвращает путь к файлу.
type ReportWriter interface {
	Write(report domain.Report, outputDir string) (string, error)
}

// Exporter выводит итоги пакетного запуска.
type Exporter interface {
	Export(results []domain.RoomResult) error
}

// Summarizer строит краткую сводку по отчету комнаты.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, roomName string, report domain.Report) (string, error)
}

// Notifier доставляет ежедневный отчет в один канал.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, delivery domain.Delivery) error
}

// RunLedger хранит журнал запусков.
type RunLedger interface {
	Record(entries []domain.RunEntry) error
	Recent(limit int) ([]domain.RunEntry, error)
}
