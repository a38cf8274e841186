package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

func window(t *testing.T) domain.TimeWindow {
	t.Helper()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w, err := domain.NewTimeWindow(start, start.Add(24*time.Hour), "2024-05-01")
	require.NoError(t, err)
	return w
}

func record(id, talker string, ts time.Time) domain.RawRecord {
	return domain.RawRecord{ID: id, Talker: talker, Timestamp: ts, Kind: domain.MessageKind{Type: 1}, Content: id}
}

func ids(records []domain.RawRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestMemorySource(t *testing.T) {
	w := window(t)
	base := w.Start.Add(time.Hour)

	src := NewMemorySource([]domain.RawRecord{
		record("c", "alpha", base.Add(2*time.Minute)),
		record("a", "alpha", base),
		record("b", "alpha", base.Add(time.Minute)),
		record("x", "beta", base),
		record("late", "alpha", w.End.Add(time.Minute)),
		record("edge", "alpha", w.End),
	})

	t.Run("NewMemorySource создает корректный экземпляр", func(t *testing.T) {
		assert.NotNil(t, src)
		assert.Equal(t, 6, src.Len())
	})

	t.Run("фильтрация по комнате и окну с включенным концом", func(t *testing.T) {
		page, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "alpha", Window: w, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "edge"}, ids(page))
	})

	t.Run("постраничная выдача", func(t *testing.T) {
		first, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "alpha", Window: w, Limit: 2})
		require.NoError(t, err)
		second, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "alpha", Window: w, Limit: 2, Offset: 2})
		require.NoError(t, err)
		third, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "alpha", Window: w, Limit: 2, Offset: 4})
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, ids(first))
		assert.Equal(t, []string{"c", "edge"}, ids(second))
		assert.Empty(t, third)
	})

	t.Run("возвращается копия данных", func(t *testing.T) {
		page, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "beta", Window: w, Limit: 10})
		require.NoError(t, err)
		page[0].Content = "changed"

		again, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "beta", Window: w, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, "x", again[0].Content)
	})

	t.Run("записи без комнаты подходят любой комнате", func(t *testing.T) {
		s := NewMemorySource([]domain.RawRecord{record("n", "", base)})
		page, err := s.FetchPage(context.Background(), ports.PageRequest{Talker: "whatever", Window: w, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("отмененный контекст", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := src.FetchPage(ctx, ports.PageRequest{Talker: "alpha", Window: w, Limit: 10})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
