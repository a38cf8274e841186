package bot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"wechat-daily-report/internal/pkg/config"
)

// mockServerClient — мок ServerAPI на функциях.
type mockServerClient struct {
	startExportFunc   func(ctx context.Context, req ExportRequest) (*StartTaskResponse, error)
	uploadChatlogFunc func(ctx context.Context, file DocumentFile, req ExportRequest) (*StartTaskResponse, error)
	statusFunc        func(ctx context.Context, taskID string) (*TaskStatusResponse, error)
	reportFunc        func(ctx context.Context, taskID, room string) ([]byte, error)
	runsFunc          func(ctx context.Context, limit int) ([]RunDTO, error)
}

func (m *mockServerClient) StartExport(ctx context.Context, req ExportRequest) (*StartTaskResponse, error) {
	if m.startExportFunc != nil {
		return m.startExportFunc(ctx, req)
	}
	return &StartTaskResponse{TaskID: "mock-task-id"}, nil
}

func (m *mockServerClient) UploadChatlog(ctx context.Context, file DocumentFile, req ExportRequest) (*StartTaskResponse, error) {
	if m.uploadChatlogFunc != nil {
		return m.uploadChatlogFunc(ctx, file, req)
	}
	return &StartTaskResponse{TaskID: "mock-task-id"}, nil
}

func (m *mockServerClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx, taskID)
	}
	return &TaskStatusResponse{TaskID: taskID, Status: "completed"}, nil
}

func (m *mockServerClient) GetReport(ctx context.Context, taskID, room string) ([]byte, error) {
	if m.reportFunc != nil {
		return m.reportFunc(ctx, taskID, room)
	}
	return []byte("# " + room), nil
}

func (m *mockServerClient) RecentRuns(ctx context.Context, limit int) ([]RunDTO, error) {
	if m.runsFunc != nil {
		return m.runsFunc(ctx, limit)
	}
	return nil, nil
}

// outbox собирает все, что бот отправил в Telegram.
type outbox struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (o *outbox) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, c)
	return tgbotapi.Message{}, nil
}

func (o *outbox) texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, c := range o.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (o *outbox) documents() []tgbotapi.DocumentConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range o.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

func testBotConfig() config.Bot {
	return config.Bot{
		PollingInterval: 10 * time.Millisecond,
		HTTPTimeout:     time.Second,
		ExcelThreshold:  10,
		Render:          config.ColumnWidths{Room: 12, Status: 7},
	}
}

// newTestBot создает бота с моками вместо Telegram API.
func newTestBot(t *testing.T, cfg config.Bot, serverClient ServerAPI) (*Bot, *outbox) {
	t.Helper()
	box := &outbox{}
	b := newBot(cfg, serverClient, NewTaskStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.now = func() time.Time { return time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC) }
	b.sendMessageFunc = box.send
	b.getFileDirectURLFunc = func(fileID string) (string, error) { return "", errors.New("no files") }
	return b, box
}

func commandMessage(chatID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func completedStatus(taskID string, rooms ...RoomDTO) *TaskStatusResponse {
	return &TaskStatusResponse{TaskID: taskID, Status: "completed", Window: "2025-01-15", Rooms: rooms}
}

func TestParseExportArgs(t *testing.T) {
	testCases := []struct {
		name    string
		args    string
		want    ExportRequest
		wantErr string
	}{
		{name: "пусто", args: "", want: ExportRequest{}},
		{name: "группа и дата", args: "Alpha 2025-01-15", want: ExportRequest{Groups: []string{"Alpha"}, Date: "2025-01-15"}},
		{
			name: "группы с пробелами через запятую",
			args: "技术 交流群, Alpha 2025-01-10:2025-01-12",
			want: ExportRequest{Groups: []string{"技术 交流群", "Alpha"}, Date: "2025-01-10:2025-01-12"},
		},
		{name: "rolling", args: "rolling Alpha", want: ExportRequest{Groups: []string{"Alpha"}, Rolling: true}},
		{name: "две даты", args: "2025-01-15 2025-01-16", wantErr: "дважды"},
		{name: "rolling с диапазоном", args: "2025-01-10:2025-01-12 rolling", wantErr: "rolling"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseExportArgs(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBot_ExportCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("выгрузка присылает таблицу и отчеты", func(t *testing.T) {
		var (
			mu        sync.Mutex
			gotReq    ExportRequest
			polls     int
			reportFor []string
		)
		client := &mockServerClient{
			startExportFunc: func(ctx context.Context, req ExportRequest) (*StartTaskResponse, error) {
				gotReq = req
				return &StartTaskResponse{TaskID: "task-1"}, nil
			},
			statusFunc: func(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
				mu.Lock()
				defer mu.Unlock()
				polls++
				if polls == 1 {
					return &TaskStatusResponse{TaskID: taskID, Status: "processing"}, nil
				}
				return completedStatus(taskID,
					RoomDTO{Room: "Alpha", Label: "2025-01-15", Status: "ok", Messages: 3, Participants: 2},
					RoomDTO{Room: "Beta", Label: "2025-01-15", Status: "empty"},
				), nil
			},
			reportFunc: func(ctx context.Context, taskID, room string) ([]byte, error) {
				mu.Lock()
				defer mu.Unlock()
				reportFor = append(reportFor, room)
				return []byte("# Alpha report"), nil
			},
		}
		b, box := newTestBot(t, testBotConfig(), client)

		b.handleMessage(ctx, commandMessage(1, "/export Alpha, Beta 2025-01-15"))
		b.pollers.Wait()

		assert.Equal(t, ExportRequest{Groups: []string{"Alpha", "Beta"}, Date: "2025-01-15"}, gotReq)
		assert.Equal(t, []string{"Alpha"}, reportFor)

		texts := box.texts()
		require.Len(t, texts, 2)
		assert.Contains(t, texts[0], "поставлена в очередь")
		assert.Contains(t, texts[1], "комнат 2, успешно 2, с ошибкой 0")
		assert.Contains(t, texts[1], "<pre><code>")
		assert.Contains(t, texts[1], "Alpha")

		docs := box.documents()
		require.Len(t, docs, 1)
		file, ok := docs[0].File.(tgbotapi.FileBytes)
		require.True(t, ok)
		assert.Equal(t, "Alpha_2025-01-15.md", file.Name)
		assert.Equal(t, "# Alpha report", string(file.Bytes))
		assert.Contains(t, docs[0].Caption, "3 сообщений, 2 участников")

		_, active := b.taskStore.Get(1)
		assert.False(t, active, "чат освобождается после завершения")
	})

	t.Run("неудачная выгрузка сообщает причину", func(t *testing.T) {
		client := &mockServerClient{
			statusFunc: func(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
				return &TaskStatusResponse{TaskID: taskID, Status: "failed", ErrorMessage: "history service is not available"}, nil
			},
		}
		b, box := newTestBot(t, testBotConfig(), client)

		b.handleMessage(ctx, commandMessage(2, "/export Alpha"))
		b.pollers.Wait()

		texts := box.texts()
		require.Len(t, texts, 2)
		assert.Contains(t, texts[1], "history service is not available")
		assert.Empty(t, box.documents())
	})

	t.Run("вторая выгрузка в том же чате отклоняется", func(t *testing.T) {
		b, box := newTestBot(t, testBotConfig(), &mockServerClient{})
		require.True(t, b.taskStore.Reserve(3, ExportRequest{}, time.Now()))

		b.handleMessage(ctx, commandMessage(3, "/export Alpha"))

		texts := box.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "подождите завершения предыдущей выгрузки")
	})

	t.Run("ошибка сервера освобождает чат", func(t *testing.T) {
		client := &mockServerClient{
			startExportFunc: func(ctx context.Context, req ExportRequest) (*StartTaskResponse, error) {
				return nil, errors.New("unexpected status code 400: не указаны группы")
			},
		}
		b, box := newTestBot(t, testBotConfig(), client)

		b.handleMessage(ctx, commandMessage(4, "/export"))

		texts := box.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "не указаны группы")
		_, active := b.taskStore.Get(4)
		assert.False(t, active)
	})

	t.Run("чат вне списка доступа", func(t *testing.T) {
		cfg := testBotConfig()
		cfg.AllowedChats = []int64{100}
		called := false
		client := &mockServerClient{
			startExportFunc: func(ctx context.Context, req ExportRequest) (*StartTaskResponse, error) {
				called = true
				return &StartTaskResponse{TaskID: "x"}, nil
			},
		}
		b, box := newTestBot(t, cfg, client)

		b.handleMessage(ctx, commandMessage(5, "/export Alpha"))

		assert.False(t, called)
		require.Len(t, box.texts(), 1)
		assert.Contains(t, box.texts()[0], "нет доступа")
	})
}

func TestBot_HandleDocument(t *testing.T) {
	content := []byte(`[{"seq": 1, "time": "2025-01-15T10:00:00+08:00", "senderName": "alice", "type": 1, "content": "hi"}]`)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	defer ts.Close()

	var (
		gotName    string
		gotContent []byte
		gotReq     ExportRequest
	)
	client := &mockServerClient{
		uploadChatlogFunc: func(ctx context.Context, file DocumentFile, req ExportRequest) (*StartTaskResponse, error) {
			gotName = file.Name
			gotContent, _ = io.ReadAll(file.Content)
			gotReq = req
			return &StartTaskResponse{TaskID: "upload-task"}, nil
		},
		statusFunc: func(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
			return completedStatus(taskID, RoomDTO{Room: "Alpha", Label: "2025-01-15", Status: "ok", Messages: 1, Participants: 1}), nil
		},
	}
	b, box := newTestBot(t, testBotConfig(), client)
	b.httpClient = ts.Client()
	b.getFileDirectURLFunc = func(fileID string) (string, error) { return ts.URL + "/" + fileID, nil }

	msg := &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 10},
		Caption:  "Alpha 2025-01-15",
		Document: &tgbotapi.Document{FileID: "file1", FileName: "chatlog.json"},
	}
	b.handleMessage(context.Background(), msg)
	b.pollers.Wait()

	assert.Equal(t, "chatlog.json", gotName)
	assert.Equal(t, content, gotContent)
	assert.Equal(t, ExportRequest{Groups: []string{"Alpha"}, Date: "2025-01-15"}, gotReq)
	require.Len(t, box.documents(), 1)

	t.Run("файл недоступен", func(t *testing.T) {
		b, box := newTestBot(t, testBotConfig(), client)
		b.handleMessage(context.Background(), msg)

		texts := box.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "не удалось получить доступ к файлу")
	})
}

func TestBot_SendRoomSummary_Excel(t *testing.T) {
	cfg := testBotConfig()
	cfg.ExcelThreshold = 2
	b, box := newTestBot(t, cfg, &mockServerClient{})

	status := completedStatus("task-x",
		RoomDTO{Room: "Alpha", Label: "2025-01-15", Status: "ok", Messages: 3, Participants: 2},
		RoomDTO{Room: "技术交流群", Label: "2025-01-15", Status: "failed", Error: "timeout"},
	)
	b.sendRoomSummary(1, status)

	docs := box.documents()
	require.Len(t, docs, 1)
	file, ok := docs[0].File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "wechat_export_2025-01-16_09-00-00.xlsx", file.Name)
	assert.Contains(t, docs[0].Caption, "с ошибкой 1")

	f, err := excelize.OpenReader(bytes.NewReader(file.Bytes))
	require.NoError(t, err)
	defer f.Close()
	room, err := f.GetCellValue("Комнаты", "C3")
	require.NoError(t, err)
	assert.Equal(t, "技术交流群", room)
	reason, err := f.GetCellValue("Комнаты", "G3")
	require.NoError(t, err)
	assert.Equal(t, "timeout", reason)
}

func TestBot_Runs(t *testing.T) {
	var gotLimit int
	client := &mockServerClient{
		runsFunc: func(ctx context.Context, limit int) ([]RunDTO, error) {
			gotLimit = limit
			return []RunDTO{{
				RunID: "run-1", Room: "Alpha", Label: "2025-01-15", Status: "ok", MessageCount: 12,
				RecordedAt: time.Date(2025, 1, 16, 5, 0, 0, 0, time.Local),
			}}, nil
		},
	}
	b, box := newTestBot(t, testBotConfig(), client)

	b.handleMessage(context.Background(), commandMessage(1, "/runs 500"))
	assert.Equal(t, maxRunsLimit, gotLimit)
	texts := box.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "01-16 05:00")
	assert.Contains(t, texts[0], "Alpha")
	assert.Contains(t, texts[0], "12")

	t.Run("некорректное число", func(t *testing.T) {
		b, box := newTestBot(t, testBotConfig(), client)
		b.handleMessage(context.Background(), commandMessage(1, "/runs many"))
		require.Len(t, box.texts(), 1)
		assert.Contains(t, box.texts()[0], "положительное число")
	})
}

func TestBot_Status(t *testing.T) {
	client := &mockServerClient{
		statusFunc: func(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
			return &TaskStatusResponse{TaskID: taskID, Status: "processing"}, nil
		},
	}
	b, box := newTestBot(t, testBotConfig(), client)

	b.handleMessage(context.Background(), commandMessage(1, "/status"))
	require.True(t, b.taskStore.Reserve(1, ExportRequest{}, b.now().Add(-time.Minute)))
	b.taskStore.SetTaskID(1, "0123456789abcdef")
	b.handleMessage(context.Background(), commandMessage(1, "/status"))

	texts := box.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Активных выгрузок нет.", texts[0])
	assert.Equal(t, "Выгрузка 01234567: processing (запущена 1m0s назад).", texts[1])
}

func TestRenderTable(t *testing.T) {
	t.Run("перенос длинного названия", func(t *testing.T) {
		lines := wrapString("очень длинное название группы", 10)
		for _, l := range lines {
			assert.LessOrEqual(t, len([]rune(l)), 10)
		}
		assert.Equal(t, "очень", lines[0])
	})

	t.Run("слово длиннее колонки режется", func(t *testing.T) {
		assert.Equal(t, []string{"技术交流", "群"}, wrapString("技术交流群", 8))
	})

	t.Run("экранирование html", func(t *testing.T) {
		out := roomsTable([]RoomDTO{{Room: "<b>", Status: "ok"}}, config.ColumnWidths{Room: 8, Status: 4})
		assert.Contains(t, out, "&lt;b&gt;")
		assert.NotContains(t, out, "<b>")
	})
}
