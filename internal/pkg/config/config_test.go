package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullYAML = `
server:
  host: "127.0.0.1"
  port: 8081
  shutdown_timeout: 5s
  task_timeout: 120s
  cache_ttl: 30m
history:
  base_url: "http://chatlog:5030"
  timeout: 10s
  page_size: 200
  max_attempts: 5
  retry_delay: 2s
  rate_limit: 2.5
export:
  groups: ["Alpha", "技术交流群"]
  output_dir: "out"
  workers: 2
  xlsx: true
ai:
  service: "gemini"
  gemini:
    api_key: "AIza-test"
proxy:
  enabled: true
  https: "http://127.0.0.1:7890"
siyuan:
  enabled: true
  auth_token: "tok"
telegram:
  bot_token: "123:abc"
  chat_id: -100500
logging:
  level: "debug"
  format: "json"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

// clearEnv удаляет переменные окружения разработчика, исходные значения
// восстанавливаются после теста.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WECHAT_API_BASE_URL", "WECHAT_API_TIMEOUT", "TARGET_GROUPS", "AI_SERVICE",
		"OPENAI_API_KEY", "GEMINI_API_KEY", "PROXY_ENABLED", "SIYUAN_ENABLED",
		"TELEGRAM_CHAT_ID", "SERVER_PORT", "LOG_LEVEL", "LOG_FORMAT", "MAX_MESSAGES_PER_GROUP",
		"TELEGRAM_BOT_TOKEN", "BOT_BACKEND_URL", "BOT_POLLING_INTERVAL", "BOT_EXCEL_THRESHOLD", "BOT_ALLOWED_CHATS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Run("success with full file", func(t *testing.T) {
		path := createTempConfigFile(t, fullYAML)
		cfg := defaultConfig()
		require.NoError(t, loadFromYAML(path, cfg))

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, 30*time.Minute, cfg.Server.CacheTTL)

		assert.Equal(t, "http://chatlog:5030", cfg.History.BaseURL)
		assert.Equal(t, 10*time.Second, cfg.History.Timeout)
		assert.Equal(t, 200, cfg.History.PageSize)
		assert.Equal(t, 5, cfg.History.MaxAttempts)
		assert.Equal(t, 2.5, cfg.History.RateLimit)

		assert.Equal(t, []string{"Alpha", "技术交流群"}, cfg.Export.Groups)
		assert.True(t, cfg.Export.Xlsx)
		assert.Equal(t, "gemini", cfg.AI.Service)
		assert.Equal(t, DefaultGeminiModel, cfg.AI.Gemini.Model, "незаданные поля сохраняют значения по умолчанию")
		assert.Equal(t, int64(-100500), cfg.Telegram.ChatID)
		assert.True(t, cfg.Telegram.Enabled())
		assert.Equal(t, "json", cfg.Logging.Format)
		require.NoError(t, cfg.Validate())
	})

	t.Run("file not found", func(t *testing.T) {
		err := loadFromYAML("non_existent_file.yml", defaultConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := createTempConfigFile(t, "server: [unclosed")
		err := loadFromYAML(path, defaultConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse YAML config")
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("env overrides yaml", func(t *testing.T) {
		clearEnv(t)
		path := createTempConfigFile(t, fullYAML)
		t.Setenv("WECHAT_API_BASE_URL", "http://127.0.0.1:5031")
		t.Setenv("WECHAT_API_TIMEOUT", "45")
		t.Setenv("TARGET_GROUPS", " Beta , ,Gamma ")
		t.Setenv("AI_SERVICE", "local")
		t.Setenv("PROXY_ENABLED", "false")
		t.Setenv("LOG_LEVEL", "warn")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:5031", cfg.History.BaseURL)
		assert.Equal(t, 45*time.Second, cfg.History.Timeout)
		assert.Equal(t, []string{"Beta", "Gamma"}, cfg.Export.Groups)
		assert.Equal(t, "local", cfg.AI.Service)
		assert.False(t, cfg.Proxy.Enabled)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 200, cfg.History.PageSize)
	})

	t.Run("defaults without file", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultHistoryBaseURL, cfg.History.BaseURL)
		assert.Equal(t, DefaultHistoryMaxAttempts, cfg.History.MaxAttempts)
		assert.Equal(t, DefaultAIService, cfg.AI.Service)
		assert.Equal(t, "0.0.0.0:8080", cfg.Address())
		require.NoError(t, cfg.Validate())
	})

	t.Run(".env file is read", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SIYUAN_ENABLED=true\nSERVER_PORT=9090\n"), 0o644))

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.True(t, cfg.SiYuan.Enabled)
		assert.Equal(t, 9090, cfg.Server.Port)
	})

	t.Run("invalid env values are reported together", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())
		t.Setenv("SERVER_PORT", "http")
		t.Setenv("TELEGRAM_CHAT_ID", "channel")

		_, err := LoadConfig("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SERVER_PORT")
		assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
	})
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.History.BaseURL = "" }, wantErr: "history.base_url"},
		{name: "zero attempts", mutate: func(c *Config) { c.History.MaxAttempts = 0 }, wantErr: "history.max_attempts"},
		{name: "negative rate", mutate: func(c *Config) { c.History.RateLimit = -1 }, wantErr: "history.rate_limit"},
		{name: "zero workers", mutate: func(c *Config) { c.Export.Workers = 0 }, wantErr: "export.workers"},
		{name: "unknown ai service", mutate: func(c *Config) { c.AI.Service = "claude" }, wantErr: "ai.service"},
		{name: "openai without key", mutate: func(c *Config) { c.AI.Service = "openai" }, wantErr: "ai.openai.api_key"},
		{name: "proxy without address", mutate: func(c *Config) { c.Proxy.Enabled = true }, wantErr: "proxy.http"},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "invalid log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_Bot(t *testing.T) {
	t.Run("env overrides", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("BOT_BACKEND_URL", "http://server:8080")
		t.Setenv("BOT_POLLING_INTERVAL", "5")
		t.Setenv("BOT_ALLOWED_CHATS", "-100500, 42")

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "http://server:8080", cfg.Bot.BackendURL)
		assert.Equal(t, 5*time.Second, cfg.Bot.PollingInterval)
		assert.Equal(t, []int64{-100500, 42}, cfg.Bot.AllowedChats)
		assert.Equal(t, DefaultBotExcelThreshold, cfg.Bot.ExcelThreshold)
		assert.NoError(t, cfg.ValidateBot())
	})

	t.Run("invalid chat id", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())
		t.Setenv("BOT_ALLOWED_CHATS", "42,team")

		_, err := LoadConfig("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BOT_ALLOWED_CHATS")
	})

	t.Run("validation", func(t *testing.T) {
		cfg := defaultConfig()
		assert.ErrorContains(t, cfg.ValidateBot(), "telegram.bot_token")

		cfg.Telegram.BotToken = "123:abc"
		cfg.Bot.PollingInterval = 0
		assert.ErrorContains(t, cfg.ValidateBot(), "bot.polling_interval")
	})
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList("a, ,b,"))
}
