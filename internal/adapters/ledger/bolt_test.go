package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat-daily-report/internal/domain"
)

func entry(run, room string, status domain.RoomStatus) domain.RunEntry {
	return domain.RunEntry{
		RunID:        run,
		Room:         room,
		Label:        "2024-05-01",
		Status:       status,
		MessageCount: 3,
		RecordedAt:   time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC),
	}
}

func TestBoltLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "runs.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	t.Run("пустой журнал", func(t *testing.T) {
		got, err := l.Recent(10)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, l.Record(nil))
	})

	t.Run("новые записи первыми", func(t *testing.T) {
		require.NoError(t, l.Record([]domain.RunEntry{
			entry("r1", "Alpha", domain.RoomStatusOK),
			entry("r1", "Beta", domain.RoomStatusEmpty),
		}))
		failed := entry("r2", "Gamma", domain.RoomStatusFailed)
		failed.Error = "fetch failed"
		require.NoError(t, l.Record([]domain.RunEntry{failed}))

		got, err := l.Recent(2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Gamma", got[0].Room)
		assert.Equal(t, "fetch failed", got[0].Error)
		assert.Equal(t, "Beta", got[1].Room)

		all, err := l.Recent(0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.True(t, all[2].RecordedAt.Equal(time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)))
	})
}

func TestBoltLedger_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record([]domain.RunEntry{entry("r1", "Alpha", domain.RoomStatusOK)}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	got, err := l.Recent(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].RunID)
}

func TestBoltLedger_Locked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = Open(path)
	require.Error(t, err, "файл занят другим процессом")
	assert.Contains(t, err.Error(), "timeout")
}
