package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultCleanupInterval = 1 * time.Hour

	// Processing defaults
	DefaultTaskTimeout = 600 * time.Second
	DefaultCacheTTL    = 60 * time.Minute

	// History service defaults
	DefaultHistoryBaseURL     = "http://127.0.0.1:5030"
	DefaultHistoryTimeout     = 30 * time.Second
	DefaultHistoryPageSize    = 500
	DefaultHistoryMaxAttempts = 3
	DefaultHistoryRetryDelay  = 1 * time.Second
	DefaultHistoryMaxPages    = 1000
	DefaultHistoryRateLimit   = 5.0
	DefaultHistoryRateBurst   = 5
	DefaultRoomCacheTTL       = 10 * time.Minute

	// Export defaults
	DefaultOutputDir   = "exports"
	DefaultReportsDir  = "reports"
	DefaultWorkers     = 4
	DefaultMaxMessages = 200

	// AI defaults
	DefaultAIService      = "local"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultSummaryTimeout = 60 * time.Second

	// Notification defaults
	DefaultSMTPPort         = 587
	DefaultSiYuanBaseURL    = "http://127.0.0.1:6806"
	DefaultSiYuanNotebookID = "20250207155248-so9nz4m"

	// Bot defaults
	DefaultBotBackendURL      = "http://127.0.0.1:8080"
	DefaultBotPollingInterval = 2 * time.Second
	DefaultBotHTTPTimeout     = 30 * time.Second
	DefaultBotExcelThreshold  = 10
	DefaultRoomColumnWidth    = 20
	DefaultStatusColumnWidth  = 7

	// Ledger defaults
	DefaultLedgerPath = "data/runs.db"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
