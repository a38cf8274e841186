// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TaskTimeout     time.Duration `yaml:"task_timeout"` // 0 - без ограничений
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// History содержит настройки сервиса истории чатов
type History struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PageSize     int           `yaml:"page_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxPages     int           `yaml:"max_pages"`
	RateLimit    float64       `yaml:"rate_limit"` // запросов в секунду, 0 - без ограничений
	RateBurst    int           `yaml:"rate_burst"`
	RoomCacheTTL time.Duration `yaml:"room_cache_ttl"`
}

// Export содержит настройки выгрузки отчетов
type Export struct {
	Groups      []string `yaml:"groups"`
	OutputDir   string   `yaml:"output_dir"`
	ReportsDir  string   `yaml:"reports_dir"`
	Workers     int      `yaml:"workers"`
	Xlsx        bool     `yaml:"xlsx"`
	MaxMessages int      `yaml:"max_messages"` // сколько сообщений комнаты передавать в сводку
}

// OpenAI содержит настройки OpenAI-совместимого провайдера
type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AI содержит настройки генерации сводок
type AI struct {
	Service string        `yaml:"service"` // openai, gemini, local
	OpenAI  OpenAI        `yaml:"openai"`
	Gemini  OpenAI        `yaml:"gemini"`
	Timeout time.Duration `yaml:"timeout"`
}

// Proxy содержит настройки прокси для внешних API
type Proxy struct {
	Enabled bool   `yaml:"enabled"`
	HTTP    string `yaml:"http"`
	HTTPS   string `yaml:"https"`
}

// Email содержит настройки SMTP-уведомлений
type Email struct {
	To       string `yaml:"to"`
	From     string `yaml:"from"`
	Host     string `yaml:"smtp_host"`
	Port     int    `yaml:"smtp_port"`
	Username string `yaml:"smtp_username"`
	Password string `yaml:"smtp_password"`
}

// Enabled сообщает, достаточно ли настроек для отправки письма.
func (e Email) Enabled() bool {
	return e.To != "" && e.Host != ""
}

// SiYuan содержит настройки публикации в заметки SiYuan
type SiYuan struct {
	Enabled              bool   `yaml:"enabled"`
	BaseURL              string `yaml:"base_url"`
	AuthToken            string `yaml:"auth_token"`
	NotebookID           string `yaml:"notebook_id"`
	SaveIndividualGroups bool   `yaml:"save_individual_groups"`
}

// Telegram содержит настройки отправки отчета в Telegram
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Enabled сообщает, настроена ли отправка в Telegram.
func (t Telegram) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// ColumnWidths определяет ширину колонок таблицы статусов в чате.
type ColumnWidths struct {
	Room   int `yaml:"room"`
	Status int `yaml:"status"`
}

// Bot содержит настройки Telegram-бота, который запускает выгрузки через сервер.
// Токен берется из секции telegram.
type Bot struct {
	BackendURL      string        `yaml:"backend_url"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	ExcelThreshold  int           `yaml:"excel_threshold"` // с этого числа комнат сводка уходит xlsx-файлом
	AllowedChats    []int64       `yaml:"allowed_chats"`   // пустой список разрешает всем
	Render          ColumnWidths  `yaml:"render"`
}

// Ledger содержит настройки журнала запусков
type Ledger struct {
	Path string `yaml:"path"` // пустой путь отключает журнал
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Config содержит конфигурацию приложения
type Config struct {
	Server   Server   `yaml:"server"`
	History  History  `yaml:"history"`
	Export   Export   `yaml:"export"`
	AI       AI       `yaml:"ai"`
	Proxy    Proxy    `yaml:"proxy"`
	Email    Email    `yaml:"email"`
	SiYuan   SiYuan   `yaml:"siyuan"`
	Telegram Telegram `yaml:"telegram"`
	Bot      Bot      `yaml:"bot"`
	Ledger   Ledger   `yaml:"ledger"`
	Logging  Logging  `yaml:"logging"`
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем YAML-файл
// (если path не пуст или существует config.yml), затем .env и переменные окружения.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		if _, err := os.Stat("config.yml"); err == nil {
			path = "config.yml"
		}
	}
	if path != "" {
		if err := loadFromYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env не обязателен, переменные окружения имеют приоритет над ним
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			TaskTimeout:     DefaultTaskTimeout,
			CacheTTL:        DefaultCacheTTL,
			CleanupInterval: DefaultCleanupInterval,
		},
		History: History{
			BaseURL:      DefaultHistoryBaseURL,
			Timeout:      DefaultHistoryTimeout,
			PageSize:     DefaultHistoryPageSize,
			MaxAttempts:  DefaultHistoryMaxAttempts,
			RetryDelay:   DefaultHistoryRetryDelay,
			MaxPages:     DefaultHistoryMaxPages,
			RateLimit:    DefaultHistoryRateLimit,
			RateBurst:    DefaultHistoryRateBurst,
			RoomCacheTTL: DefaultRoomCacheTTL,
		},
		Export: Export{
			OutputDir:   DefaultOutputDir,
			ReportsDir:  DefaultReportsDir,
			Workers:     DefaultWorkers,
			MaxMessages: DefaultMaxMessages,
		},
		AI: AI{
			Service: DefaultAIService,
			OpenAI:  OpenAI{Model: DefaultOpenAIModel},
			Gemini:  OpenAI{Model: DefaultGeminiModel, BaseURL: DefaultGeminiBaseURL},
			Timeout: DefaultSummaryTimeout,
		},
		Email: Email{
			Port: DefaultSMTPPort,
		},
		SiYuan: SiYuan{
			BaseURL:    DefaultSiYuanBaseURL,
			NotebookID: DefaultSiYuanNotebookID,
		},
		Bot: Bot{
			BackendURL:      DefaultBotBackendURL,
			PollingInterval: DefaultBotPollingInterval,
			HTTPTimeout:     DefaultBotHTTPTimeout,
			ExcelThreshold:  DefaultBotExcelThreshold,
			Render: ColumnWidths{
				Room:   DefaultRoomColumnWidth,
				Status: DefaultStatusColumnWidth,
			},
		},
		Ledger: Ledger{
			Path: DefaultLedgerPath,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// loadFromYAML дополняет cfg значениями из YAML-файла
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// applyEnv переопределяет значения из переменных окружения
func applyEnv(cfg *Config) error {
	var errs []error

	setString(&cfg.History.BaseURL, "WECHAT_API_BASE_URL")
	errs = append(errs, setSeconds(&cfg.History.Timeout, "WECHAT_API_TIMEOUT"))
	if v, ok := lookup("TARGET_GROUPS"); ok {
		cfg.Export.Groups = SplitList(v)
	}
	setString(&cfg.Export.OutputDir, "EXPORT_OUTPUT_DIR")
	setString(&cfg.Export.ReportsDir, "REPORTS_DIR")
	errs = append(errs, setInt(&cfg.Export.MaxMessages, "MAX_MESSAGES_PER_GROUP"))

	setString(&cfg.AI.Service, "AI_SERVICE")
	setString(&cfg.AI.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.AI.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.AI.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.AI.Gemini.Model, "GEMINI_MODEL")

	errs = append(errs, setBool(&cfg.Proxy.Enabled, "PROXY_ENABLED"))
	setString(&cfg.Proxy.HTTP, "PROXY_HTTP")
	setString(&cfg.Proxy.HTTPS, "PROXY_HTTPS")

	setString(&cfg.Email.To, "NOTIFICATION_EMAIL")
	setString(&cfg.Email.From, "SMTP_FROM")
	setString(&cfg.Email.Host, "SMTP_HOST")
	errs = append(errs, setInt(&cfg.Email.Port, "SMTP_PORT"))
	setString(&cfg.Email.Username, "SMTP_USERNAME")
	setString(&cfg.Email.Password, "SMTP_PASSWORD")

	errs = append(errs, setBool(&cfg.SiYuan.Enabled, "SIYUAN_ENABLED"))
	setString(&cfg.SiYuan.BaseURL, "SIYUAN_BASE_URL")
	setString(&cfg.SiYuan.AuthToken, "SIYUAN_AUTH_TOKEN")
	setString(&cfg.SiYuan.NotebookID, "SIYUAN_NOTEBOOK_ID")
	errs = append(errs, setBool(&cfg.SiYuan.SaveIndividualGroups, "SIYUAN_SAVE_INDIVIDUAL_GROUPS"))

	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err))
		} else {
			cfg.Telegram.ChatID = id
		}
	}

	setString(&cfg.Bot.BackendURL, "BOT_BACKEND_URL")
	errs = append(errs, setSeconds(&cfg.Bot.PollingInterval, "BOT_POLLING_INTERVAL"))
	errs = append(errs, setInt(&cfg.Bot.ExcelThreshold, "BOT_EXCEL_THRESHOLD"))
	if v, ok := lookup("BOT_ALLOWED_CHATS"); ok {
		cfg.Bot.AllowedChats = nil
		for _, part := range SplitList(v) {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid BOT_ALLOWED_CHATS entry %q: %w", part, err))
				continue
			}
			cfg.Bot.AllowedChats = append(cfg.Bot.AllowedChats, id)
		}
	}

	setString(&cfg.Ledger.Path, "LEDGER_PATH")
	setString(&cfg.Server.Host, "SERVER_HOST")
	errs = append(errs, setInt(&cfg.Server.Port, "SERVER_PORT"))
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	return errors.Join(errs...)
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Secrets возвращает заданные в конфигурации секреты для маскирования в логах.
func (c *Config) Secrets() []string {
	return []string{
		c.AI.OpenAI.APIKey,
		c.AI.Gemini.APIKey,
		c.Email.Password,
		c.SiYuan.AuthToken,
		c.Telegram.BotToken,
	}
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.History.BaseURL == "" {
		return fmt.Errorf("history.base_url не может быть пустым")
	}
	if c.History.Timeout <= 0 {
		return fmt.Errorf("history.timeout должно быть положительным")
	}
	if c.History.PageSize <= 0 {
		return fmt.Errorf("history.page_size должно быть положительным")
	}
	if c.History.MaxAttempts <= 0 {
		return fmt.Errorf("history.max_attempts должно быть положительным")
	}
	if c.History.RetryDelay < 0 {
		return fmt.Errorf("history.retry_delay должно быть неотрицательным")
	}
	if c.History.RateLimit < 0 {
		return fmt.Errorf("history.rate_limit должно быть неотрицательным (0 для отсутствия ограничений)")
	}

	if c.Export.Workers <= 0 {
		return fmt.Errorf("export.workers должно быть положительным")
	}
	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir не может быть пустым")
	}

	switch c.AI.Service {
	case "local":
	case "openai":
		if c.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("ai.openai.api_key обязателен для ai.service=openai")
		}
	case "gemini":
		if c.AI.Gemini.APIKey == "" {
			return fmt.Errorf("ai.gemini.api_key обязателен для ai.service=gemini")
		}
	default:
		return fmt.Errorf("ai.service должен быть одним из: openai, gemini, local")
	}

	if c.Proxy.Enabled && c.Proxy.HTTP == "" && c.Proxy.HTTPS == "" {
		return fmt.Errorf("proxy.http или proxy.https обязателен при proxy.enabled")
	}

	if c.SiYuan.Enabled && c.SiYuan.BaseURL == "" {
		return fmt.Errorf("siyuan.base_url не может быть пустым при siyuan.enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout должно быть положительным")
	}
	if c.Server.TaskTimeout < 0 {
		return fmt.Errorf("server.task_timeout должно быть неотрицательным (0 для отсутствия ограничений)")
	}
	if c.Server.CacheTTL <= 0 {
		return fmt.Errorf("server.cache_ttl должно быть положительным")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format должен быть одним из: text, json")
	}

	return nil
}

// ValidateBot проверяет настройки, без которых бот не может работать.
func (c *Config) ValidateBot() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token обязателен для бота")
	}
	if c.Bot.BackendURL == "" {
		return fmt.Errorf("bot.backend_url не может быть пустым")
	}
	if c.Bot.PollingInterval <= 0 {
		return fmt.Errorf("bot.polling_interval должно быть положительным")
	}
	if c.Bot.HTTPTimeout <= 0 {
		return fmt.Errorf("bot.http_timeout должно быть положительным")
	}
	if c.Bot.ExcelThreshold <= 0 {
		return fmt.Errorf("bot.excel_threshold должно быть положительным")
	}
	return nil
}

// SplitList разбирает список через запятую, отбрасывая пустые элементы.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// setSeconds принимает как "30", так и "30s".
func setSeconds(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
