package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/exports", func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Groups) == 0 {
			http.Error(w, "не указаны группы", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"task_id": "task-json"}`)
	})
	mux.HandleFunc("POST /api/v1/exports/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "chatlog.json" || string(data) != "[]" ||
			r.FormValue("group") != "Alpha" || r.FormValue("rolling") != "true" {
			http.Error(w, "unexpected form", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"task_id": "task-upload"}`)
	})
	mux.HandleFunc("GET /api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"task_id": "`+r.PathValue("id")+`", "status": "completed", "window": "2025-01-15",
			"rooms": [{"room": "Alpha", "label": "2025-01-15", "status": "ok", "messages": 3, "participants": 2}]}`)
	})
	mux.HandleFunc("GET /api/v1/tasks/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("room") != "技术 交流" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "# report")
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"runs": [{"run_id": "r1", "room": "Alpha", "label": "2025-01-15", "status": "ok",
			"message_count": 3, "recorded_at": "2025-01-16T05:00:00Z"}]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewServerClient(ts.URL+"/", time.Second)
	ctx := context.Background()

	t.Run("запуск выгрузки", func(t *testing.T) {
		resp, err := client.StartExport(ctx, ExportRequest{Groups: []string{"Alpha"}, Date: "2025-01-15"})
		require.NoError(t, err)
		assert.Equal(t, "task-json", resp.TaskID)
	})

	t.Run("ошибка сервера содержит причину", func(t *testing.T) {
		_, err := client.StartExport(ctx, ExportRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "не указаны группы")
	})

	t.Run("загрузка файла", func(t *testing.T) {
		resp, err := client.UploadChatlog(ctx, DocumentFile{Name: "chatlog.json", Content: strings.NewReader("[]")},
			ExportRequest{Groups: []string{"Alpha"}, Rolling: true})
		require.NoError(t, err)
		assert.Equal(t, "task-upload", resp.TaskID)
	})

	t.Run("статус задачи", func(t *testing.T) {
		status, err := client.GetTaskStatus(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", status.TaskID)
		require.Len(t, status.Rooms, 1)
		assert.Equal(t, 3, status.Rooms[0].Messages)
	})

	t.Run("отчет комнаты", func(t *testing.T) {
		report, err := client.GetReport(ctx, "abc", "技术 交流")
		require.NoError(t, err)
		assert.Equal(t, "# report", string(report))

		_, err = client.GetReport(ctx, "abc", "Beta")
		assert.ErrorContains(t, err, "404")
	})

	t.Run("журнал запусков", func(t *testing.T) {
		runs, err := client.RecentRuns(ctx, 5)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "Alpha", runs[0].Room)
		assert.Equal(t, time.Date(2025, 1, 16, 5, 0, 0, 0, time.UTC), runs[0].RecordedAt)
	})
}
