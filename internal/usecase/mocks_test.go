package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"wechat-daily-report/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Fetch(ctx context.Context, room string, window domain.TimeWindow) ([]domain.RawRecord, error) {
	args := m.Called(ctx, room, window)
	if res := args.Get(0); res != nil {
		return res.([]domain.RawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) FindRoom(ctx context.Context, name string) (domain.ChatRoom, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.ChatRoom), args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Record(entries []domain.RunEntry) error {
	return m.Called(entries).Error(0)
}

func (m *mockLedger) Recent(limit int) ([]domain.RunEntry, error) {
	args := m.Called(limit)
	return args.Get(0).([]domain.RunEntry), args.Error(1)
}

type mockWriter struct{ mock.Mock }

func (m *mockWriter) Write(report domain.Report, outputDir string) (string, error) {
	args := m.Called(report, outputDir)
	return args.String(0), args.Error(1)
}

type mockSummarizer struct {
	mock.Mock
	name string
}

func (m *mockSummarizer) Name() string { return m.name }

func (m *mockSummarizer) Summarize(ctx context.Context, roomName string, report domain.Report) (string, error) {
	args := m.Called(ctx, roomName, report)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
	name string
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(ctx context.Context, d domain.Delivery) error {
	return m.Called(ctx, d).Error(0)
}

type mockHealth struct{ mock.Mock }

func (m *mockHealth) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var testLoc = time.FixedZone("CST", 8*3600)

func testWindow() domain.TimeWindow {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, testLoc)
	w, _ := domain.NewTimeWindow(start, start.Add(24*time.Hour), "2025-01-15")
	return w
}

func textRecord(id string, minute int, sender, content string) domain.RawRecord {
	return domain.RawRecord{
		ID:         id,
		Timestamp:  time.Date(2025, 1, 15, 9, minute, 0, 0, testLoc),
		SenderID:   "wxid_" + sender,
		SenderName: sender,
		Kind:       domain.MessageKind{Type: 1},
		Content:    content,
	}
}
