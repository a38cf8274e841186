package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

func TestFileSource(t *testing.T) {
	w := window(t)

	t.Run("чтение сохраненного ответа", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dump.json")
		body := `{"data": [
			{"seq": 2, "time": "2024-05-01T10:00:00Z", "talker": "alpha@chatroom", "talkerName": "Alpha", "type": 1, "content": "second"},
			{"seq": 1, "time": "2024-05-01T09:00:00Z", "talker": "alpha@chatroom", "talkerName": "Alpha", "type": 1, "content": "first"},
			{"seq": 3, "time": "2024-05-01T09:30:00Z", "talker": "beta@chatroom", "type": 1, "content": "other"}
		]}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		src := NewFileSource(path)
		page, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "Alpha", Window: w, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, ids(page))
	})

	t.Run("отсутствующий файл", func(t *testing.T) {
		src := NewFileSource(filepath.Join(t.TempDir(), "missing.json"))
		_, err := src.FetchPage(context.Background(), ports.PageRequest{Talker: "Alpha", Window: w, Limit: 10})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})

	t.Run("пустой путь", func(t *testing.T) {
		_, err := NewFileSource("").FetchPage(context.Background(), ports.PageRequest{Window: w})
		assert.Error(t, err)
	})

	t.Run("некорректный JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))
		_, err := NewFileSource(path).FetchPage(context.Background(), ports.PageRequest{Window: w})
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})
}
