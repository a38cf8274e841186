package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wechat-daily-report/internal/adapters/exporter"
	"wechat-daily-report/internal/core/services"
	"wechat-daily-report/internal/domain"
)

func newExport(fetcher *mockFetcher, opts ...ExportOption) *ExportUseCase {
	opts = append([]ExportOption{WithLogger(quietLogger())}, opts...)
	return NewExportUseCase(
		fetcher,
		services.NewNormalizer(services.WithLocation(testLoc)),
		services.NewAssembler(services.WithClock(func() time.Time { return time.Date(2025, 1, 16, 6, 0, 0, 0, testLoc) })),
		exporter.NewMarkdownFileWriter(),
		opts...,
	)
}

func TestExportUseCase_Export(t *testing.T) {
	ctx := context.Background()
	window := testWindow()

	t.Run("сбой одной комнаты не влияет на остальные", func(t *testing.T) {
		dir := t.TempDir()
		fetcher := new(mockFetcher)
		fetcher.On("Fetch", mock.Anything, "Alpha", window).Return([]domain.RawRecord{
			textRecord("1", 0, "alice", "hi"),
			textRecord("2", 1, "bob", "hello"),
		}, nil).Once()
		fetchErr := &domain.FetchFailedError{Room: "Beta", Attempts: 3, Err: errors.New("connection refused")}
		fetcher.On("Fetch", mock.Anything, "Beta", window).Return(nil, fetchErr).Once()
		fetcher.On("Fetch", mock.Anything, "Gamma/ops", window).Return([]domain.RawRecord{}, nil).Once()

		ledger := new(mockLedger)
		ledger.On("Record", mock.MatchedBy(func(entries []domain.RunEntry) bool {
			return len(entries) == 3 && entries[0].RunID != "" && entries[0].RunID == entries[2].RunID &&
				entries[1].Status == domain.RoomStatusFailed && entries[1].Error != ""
		})).Return(nil).Once()

		uc := newExport(fetcher, WithLedger(ledger), WithWorkers(2))
		results, err := uc.Export(ctx, ExportRequest{Rooms: []string{"Alpha", "Beta", "Gamma/ops"}, Window: window, OutputDir: dir})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrFetchFailed)
		assert.Contains(t, err.Error(), `room "Beta"`)

		require.Len(t, results, 3)
		assert.Equal(t, domain.RoomStatusOK, results[0].Status)
		assert.Equal(t, 2, results[0].MessageCount)
		assert.Equal(t, 2, results[0].ParticipantCount)
		assert.Equal(t, filepath.Join(dir, "Alpha_2025-01-15.md"), results[0].FilePath)

		assert.Equal(t, domain.RoomStatusFailed, results[1].Status)
		assert.Empty(t, results[1].FilePath)

		assert.Equal(t, domain.RoomStatusEmpty, results[2].Status)
		data, err := os.ReadFile(filepath.Join(dir, "Gamma_ops_2025-01-15.md"))
		require.NoError(t, err)
		assert.Contains(t, string(data), services.EmptyMarker)

		fetcher.AssertExpectations(t)
		ledger.AssertExpectations(t)
	})

	t.Run("идентификатор комнаты из каталога", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("Fetch", mock.Anything, "1@chatroom", window).Return([]domain.RawRecord{textRecord("1", 0, "alice", "hi")}, nil).Once()
		fetcher.On("Fetch", mock.Anything, "Unknown", window).Return([]domain.RawRecord{}, nil).Once()

		dirMock := new(mockDirectory)
		dirMock.On("FindRoom", mock.Anything, "Alpha").Return(domain.ChatRoom{ID: "1@chatroom", Name: "Alpha"}, nil).Once()
		dirMock.On("FindRoom", mock.Anything, "Unknown").Return(domain.ChatRoom{}, domain.ErrRoomNotFound).Once()

		results, err := newExport(fetcher, WithRoomDirectory(dirMock)).Export(ctx, ExportRequest{Rooms: []string{"Alpha", "Unknown"}, Window: window})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Alpha", results[0].Report.Room.Name)
		assert.Contains(t, results[0].Report.RenderedBody, "# Alpha")
		assert.Empty(t, results[0].FilePath, "без каталога вывода файлы не пишутся")
		assert.Equal(t, domain.RoomStatusEmpty, results[1].Status)

		fetcher.AssertExpectations(t)
		dirMock.AssertExpectations(t)
	})

	t.Run("ошибка дополнительного формата делает комнату неуспешной", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("Fetch", mock.Anything, "Alpha", window).Return([]domain.RawRecord{textRecord("1", 0, "alice", "hi")}, nil)

		xlsx := new(mockWriter)
		xlsx.On("Write", mock.Anything, mock.Anything).Return("", &domain.WriteFailedError{Path: "x.xlsx", Err: os.ErrPermission})

		results, err := newExport(fetcher, WithWriters(xlsx)).Export(ctx, ExportRequest{Rooms: []string{"Alpha"}, Window: window, OutputDir: t.TempDir()})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrWriteFailed)
		assert.Equal(t, domain.RoomStatusFailed, results[0].Status)
	})

	t.Run("отмена между комнатами", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		fetcher := new(mockFetcher)
		fetcher.On("Fetch", mock.Anything, "Alpha", window).Run(func(mock.Arguments) { cancel() }).Return([]domain.RawRecord{}, nil).Once()

		results, err := newExport(fetcher).Export(cctx, ExportRequest{Rooms: []string{"Alpha", "Beta"}, Window: window})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, domain.RoomStatusEmpty, results[0].Status)
		assert.Equal(t, domain.RoomStatusFailed, results[1].Status)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, "Beta", window)
	})

	t.Run("пул ограничивает параллелизм", func(t *testing.T) {
		var active, peak atomic.Int32
		fetcher := new(mockFetcher)
		fetcher.On("Fetch", mock.Anything, mock.Anything, window).Run(func(mock.Arguments) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
		}).Return([]domain.RawRecord{}, nil)

		rooms := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
		results, err := newExport(fetcher, WithWorkers(2)).Export(ctx, ExportRequest{Rooms: rooms, Window: window})
		require.NoError(t, err)
		assert.Len(t, results, len(rooms))
		assert.LessOrEqual(t, peak.Load(), int32(2))
		for i, r := range results {
			assert.Equal(t, rooms[i], r.Room, "порядок результатов совпадает с порядком комнат")
		}
	})

	t.Run("ошибка журнала не влияет на результат", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("Fetch", mock.Anything, "Alpha", window).Return([]domain.RawRecord{}, nil)
		ledger := new(mockLedger)
		ledger.On("Record", mock.Anything).Return(errors.New("disk full"))

		_, err := newExport(fetcher, WithLedger(ledger)).Export(ctx, ExportRequest{Rooms: []string{"Alpha"}, Window: window})
		assert.NoError(t, err)
		ledger.AssertExpectations(t)
	})

	t.Run("без комнат", func(t *testing.T) {
		_, err := newExport(new(mockFetcher)).Export(ctx, ExportRequest{Window: window})
		assert.ErrorIs(t, err, ErrNoRooms)
	})
}
