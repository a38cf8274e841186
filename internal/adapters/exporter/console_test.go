package exporter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat-daily-report/internal/domain"
)

func TestConsoleExporter(t *testing.T) {
	t.Run("NewConsoleExporter создает корректный экземпляр", func(t *testing.T) {
		assert.NotNil(t, NewConsoleExporter(&bytes.Buffer{}, false))
	})

	t.Run("Export выводит таблицу и итог", func(t *testing.T) {
		var buf bytes.Buffer
		results := []domain.RoomResult{
			{Room: "Alpha", Status: domain.RoomStatusOK, MessageCount: 4, ParticipantCount: 2, FilePath: "exports/Alpha_2024-05-01.md"},
			{Room: "技术交流群", Status: domain.RoomStatusEmpty, FilePath: "exports/技术交流群_2024-05-01.md"},
			{Room: "Beta", Status: domain.RoomStatusFailed, Err: errors.New("fetch failed")},
		}

		require.NoError(t, NewConsoleExporter(&buf, false).Export(results))
		out := buf.String()

		assert.Contains(t, out, "exports/Alpha_2024-05-01.md")
		assert.Contains(t, out, "fetch failed")
		assert.Contains(t, out, "3 room(s), 2 succeeded, 1 failed")
		assert.NotContains(t, out, "\x1b[", "цвет отключен")

		lines := strings.Split(out, "\n")
		// Колонка статуса начинается на одной и той же ширине для латиницы и иероглифов.
		alpha := lines[2]
		cjk := lines[3]
		assert.Equal(t,
			runewidth.StringWidth(alpha[:strings.Index(alpha, "ok")]),
			runewidth.StringWidth(cjk[:strings.Index(cjk, "empty")]),
		)
	})

	t.Run("цветной вывод", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewConsoleExporter(&buf, true).Export([]domain.RoomResult{{Room: "Alpha", Status: domain.RoomStatusOK}})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "\x1b[")
	})

	t.Run("пустой список", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewConsoleExporter(&buf, false).Export(nil))
		assert.Equal(t, "No rooms processed.\n", buf.String())
	})
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5))
	assert.Equal(t, "群 ", pad("群", 3))
	assert.Equal(t, "toolong", pad("toolong", 3))
}
