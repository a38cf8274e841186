package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wechat-daily-report/internal/adapters/exporter"
	"wechat-daily-report/internal/adapters/ledger"
	"wechat-daily-report/internal/adapters/source"
	"wechat-daily-report/internal/app"
	"wechat-daily-report/internal/core/services"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/pkg/term"
	"wechat-daily-report/internal/ports"
	"wechat-daily-report/internal/usecase"
)

// errRoomsFailed возвращается, если хотя бы одна комната не выгружена.
var errRoomsFailed = errors.New("some rooms failed")

type options struct {
	configPath string
	groups     []string
	date       string
	startDate  string
	endDate    string
	rolling    bool
	output     string
	apiURL     string
	limit      int
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	workers    int
	xlsx       bool
	input      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errRoomsFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if code := exitCode(err); code != 0 {
		stop()
		os.Exit(code)
	}
}

// exitCode: 2 для некорректного окна дат, 1 для прочих ошибок.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrInvalidDateRange):
		return 2
	default:
		return 1
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "exporter",
		Short: "Export WeChat group chat history to Markdown reports",
		Long: `exporter fetches the chat history of one or more group chats for a time window
from the local chatlog service and writes one Markdown report per group.

Without a date the rolling window is used: from 05:00 yesterday to 05:00 today.`,
		Example: `  exporter -g "技术交流群" -d 2025-01-15
  exporter -g Alpha -g Beta -d 2025-01-01:2025-01-07 -o reports
  exporter -g Alpha --rolling -d 2025-01-16 --xlsx
  exporter -g Alpha -d 2025-01-15 --input chatlog.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, stdout, stderr)
		},
	}

	f := cmd.Flags()
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.yml")
	f.StringArrayVarP(&opts.groups, "group", "g", nil, "Group chat name or id (repeatable)")
	f.StringVarP(&opts.date, "date", "d", "", "Date YYYY-MM-DD or range YYYY-MM-DD:YYYY-MM-DD")
	f.StringVar(&opts.startDate, "start-date", "", "Range start YYYY-MM-DD")
	f.StringVar(&opts.endDate, "end-date", "", "Range end YYYY-MM-DD (inclusive)")
	f.BoolVar(&opts.rolling, "rolling", false, "Use the 05:00 to 05:00 window ending on --date")
	f.StringVarP(&opts.output, "output", "o", "", "Output directory")
	f.StringVar(&opts.apiURL, "api-url", "", "Chatlog service base URL")
	f.IntVar(&opts.limit, "limit", 0, "Page size for history requests")
	f.DurationVar(&opts.timeout, "timeout", 0, "Timeout of one history request")
	f.IntVar(&opts.retries, "retries", 0, "Attempts per page, including the first one")
	f.DurationVar(&opts.retryDelay, "retry-delay", 0, "Initial delay between attempts")
	f.IntVar(&opts.workers, "workers", 0, "Groups exported concurrently")
	f.BoolVar(&opts.xlsx, "xlsx", false, "Also write an .xlsx workbook per group")
	f.StringVar(&opts.input, "input", "", "Replay a saved chatlog JSON response instead of calling the service")

	cmd.AddCommand(newHistoryCommand(opts, stdout))
	return cmd
}

// loadConfig читает конфигурацию и накладывает на нее флаги командной строки.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("group") {
		cfg.Export.Groups = opts.groups
	}
	if flags.Changed("output") {
		cfg.Export.OutputDir = opts.output
	}
	if flags.Changed("api-url") {
		cfg.History.BaseURL = opts.apiURL
	}
	if flags.Changed("limit") {
		cfg.History.PageSize = opts.limit
	}
	if flags.Changed("timeout") {
		cfg.History.Timeout = opts.timeout
	}
	if flags.Changed("retries") {
		cfg.History.MaxAttempts = opts.retries
	}
	if flags.Changed("retry-delay") {
		cfg.History.RetryDelay = opts.retryDelay
	}
	if flags.Changed("workers") {
		cfg.Export.Workers = opts.workers
	}
	if flags.Changed("xlsx") {
		cfg.Export.Xlsx = opts.xlsx
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runExport(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg, stderr)

	if len(cfg.Export.Groups) == 0 {
		return fmt.Errorf("%w: use --group or export.groups", usecase.ErrNoRooms)
	}

	window, err := services.ResolveWindow(services.WindowRequest{
		Date:      opts.date,
		StartDate: opts.startDate,
		EndDate:   opts.endDate,
		Rolling:   opts.rolling,
	}, time.Now(), time.Local)
	if err != nil {
		return err
	}

	var (
		src    ports.HistorySource
		extras []usecase.ExportOption
	)
	if opts.input != "" {
		logger.Info("replaying saved chatlog response", "file", opts.input)
		src = source.NewFileSource(opts.input)
	} else {
		client := app.NewHistoryClient(cfg.History, logger)
		src = client
		extras = append(extras, usecase.WithRoomDirectory(client))
	}

	if cfg.Ledger.Path != "" {
		runs, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			logger.Warn("run ledger unavailable", "path", cfg.Ledger.Path, "error", err)
		} else {
			defer runs.Close()
			extras = append(extras, usecase.WithLedger(runs))
		}
	}

	uc := app.NewExportUseCase(cfg, src, logger, extras...)
	results, exportErr := uc.Export(cmd.Context(), usecase.ExportRequest{
		Rooms:     cfg.Export.Groups,
		Window:    window,
		OutputDir: cfg.Export.OutputDir,
	})

	useColor := false
	if f, ok := stdout.(*os.File); ok {
		useColor = term.ColorEnabled(f)
	}
	if err := exporter.NewConsoleExporter(stdout, useColor).Export(results); err != nil {
		logger.Error("failed to print summary", "error", err)
	}

	if exportErr != nil {
		logger.Error("export finished with errors", "error", exportErr)
		return errRoomsFailed
	}
	return nil
}
