package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatlogServer(t *testing.T) *httptest.Server {
	t.Helper()
	at := func(hour int) string {
		return time.Date(2025, 1, 15, hour, 0, 0, 0, time.Local).Format(time.RFC3339)
	}
	page := fmt.Sprintf(`[
		{"seq": 1, "time": %q, "senderName": "alice", "type": 1, "content": "今天的项目会议几点"},
		{"seq": 2, "time": %q, "senderName": "bob", "type": 1, "content": "下午三点"},
		{"seq": 3, "time": %q, "senderName": "alice", "type": 3, "content": ""}
	]`, at(10), at(11), at(12))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/session":
			io.WriteString(w, `[]`)
		case "/api/v1/chatroom":
			io.WriteString(w, `{"items": [{"name": "123@chatroom", "nickName": "Alpha"}]}`)
		case "/api/v1/chatlog":
			if r.URL.Query().Get("talker") == "123@chatroom" && r.URL.Query().Get("offset") == "0" {
				io.WriteString(w, page)
				return
			}
			io.WriteString(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"WECHAT_API_BASE_URL": baseURL,
		"TARGET_GROUPS":       "Alpha",
		"EXPORT_OUTPUT_DIR":   filepath.Join(dir, "exports"),
		"REPORTS_DIR":         filepath.Join(dir, "reports"),
		"LEDGER_PATH":         filepath.Join(dir, "runs.db"),
		"AI_SERVICE":          "local",
		"LOG_LEVEL":           "error",
		"SIYUAN_ENABLED":      "",
		"NOTIFICATION_EMAIL":  "",
		"SMTP_HOST":           "",
		"TELEGRAM_BOT_TOKEN":  "",
		"TELEGRAM_CHAT_ID":    "",
		"PROXY_ENABLED":       "",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestReporterCommand_DailyReport(t *testing.T) {
	srv := chatlogServer(t)
	dir := setupEnv(t, srv.URL)

	stdout, err := execute(t, "--date", "2025-01-15")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "reports", "wechat_daily_report_2025-01-15.md"))
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "# 微信群聊日报 - 2025-01-15")
	assert.Contains(t, report, "**消息总数**: 2")
	assert.Contains(t, report, "## 群聊总结：Alpha")
	assert.Contains(t, report, "项目(1次)")

	assert.FileExists(t, filepath.Join(dir, "exports", "Alpha_2025-01-15.md"))

	assert.Contains(t, stdout, "报告日期: 2025-01-15")
	assert.Contains(t, stdout, "  - Alpha: 2 条消息, 2 人 (ok)")
}

func TestReporterCommand_Test(t *testing.T) {
	t.Run("сервис истории доступен", func(t *testing.T) {
		srv := chatlogServer(t)
		setupEnv(t, srv.URL)

		stdout, err := execute(t, "--test")
		require.NoError(t, err)
		assert.Contains(t, stdout, "[ OK ] history")
		assert.Contains(t, stdout, "[SKIP] ai")
		assert.Contains(t, stdout, "5 check(s), 0 failed")
	})

	t.Run("сервис истории недоступен", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		setupEnv(t, url)

		stdout, err := execute(t, "--test")
		assert.ErrorIs(t, err, errChecksFailed)
		assert.Contains(t, stdout, "[FAIL] history")
		assert.Contains(t, stdout, "5 check(s), 1 failed")
	})
}

func TestReporterCommand_HistoryDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database locked", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	dir := setupEnv(t, srv.URL)

	_, err := execute(t, "--date", "2025-01-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history service is not available")
	assert.NoFileExists(t, filepath.Join(dir, "reports", "wechat_daily_report_2025-01-15.md"))
}
