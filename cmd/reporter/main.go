package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wechat-daily-report/internal/adapters/ledger"
	"wechat-daily-report/internal/adapters/notifier"
	"wechat-daily-report/internal/adapters/summarizer"
	"wechat-daily-report/internal/app"
	"wechat-daily-report/internal/core/services"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/pkg/proxy"
	"wechat-daily-report/internal/pkg/term"
	"wechat-daily-report/internal/usecase"
)

// errChecksFailed возвращается, если хотя бы одна проверка подключения не прошла.
var errChecksFailed = errors.New("connectivity checks failed")

type options struct {
	configPath string
	date       string
	test       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		if errors.Is(err, domain.ErrInvalidDateRange) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "reporter",
		Short: "Build and deliver the daily WeChat group chat report",
		Long: `reporter exports every configured group for one report day (05:00 to 05:00),
summarizes each group and delivers the combined report to the configured channels.

Without --date the report covers yesterday.`,
		Example: `  reporter
  reporter --date 2025-01-15
  reporter --test`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, stdout, stderr)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to config.yml")
	cmd.Flags().StringVar(&opts.date, "date", "", "Report date YYYY-MM-DD (default: yesterday)")
	cmd.Flags().BoolVar(&opts.test, "test", false, "Check connectivity of all configured services and exit")
	return cmd
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	logger := app.NewLogger(cfg, stderr)

	useColor := false
	if f, ok := stdout.(*os.File); ok {
		useColor = term.ColorEnabled(f)
	}

	scope, err := proxy.NewScope(proxy.Config{
		Enabled: cfg.Proxy.Enabled,
		HTTP:    cfg.Proxy.HTTP,
		HTTPS:   cfg.Proxy.HTTPS,
	}, proxy.WithTimeout(cfg.AI.Timeout), proxy.WithLogger(logger.With("component", "proxy")))
	if err != nil {
		return err
	}

	primary, err := summarizer.New(cfg.AI, scope, logger.With("component", "summarizer"))
	if err != nil {
		return fmt.Errorf("failed to create summarizer: %w", err)
	}
	client := app.NewHistoryClient(cfg.History, logger)

	if opts.test {
		var siyuan *notifier.SiYuanNotifier
		if cfg.SiYuan.Enabled {
			siyuan = app.NewSiYuan(cfg, logger)
		}
		return printChecks(stdout, useColor, app.RunChecks(ctx, cfg, client, primary, pinger(siyuan)))
	}

	if len(cfg.Export.Groups) == 0 {
		return fmt.Errorf("%w: set export.groups or TARGET_GROUPS", usecase.ErrNoRooms)
	}

	window, err := services.ReportDayWindow(opts.date, time.Now(), time.Local)
	if err != nil {
		return err
	}

	exportOpts := []usecase.ExportOption{usecase.WithRoomDirectory(client)}
	if cfg.Ledger.Path != "" {
		runs, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			logger.Warn("run ledger unavailable", "path", cfg.Ledger.Path, "error", err)
		} else {
			defer runs.Close()
			exportOpts = append(exportOpts, usecase.WithLedger(runs))
		}
	}
	export := app.NewExportUseCase(cfg, client, logger, exportOpts...)

	dailyOpts := []usecase.DailyReportOption{
		usecase.WithHealthCheck(client),
		usecase.WithNotifiers(app.NewNotifiers(cfg, stdout, useColor, logger)...),
		usecase.WithSummaryTimeout(cfg.AI.Timeout),
		usecase.WithMaxMessages(cfg.Export.MaxMessages),
		usecase.WithDailyLogger(logger.With("component", "daily")),
	}
	if primary.Name() != "local" {
		dailyOpts = append(dailyOpts, usecase.WithFallbackSummarizer(summarizer.NewLocalSummarizer()))
	}

	logger.Info("daily report started", "date", window.Label, "groups", len(cfg.Export.Groups), "summarizer", primary.Name())
	result, err := usecase.NewDailyReportUseCase(export, primary, dailyOpts...).Run(ctx, usecase.DailyReportRequest{
		Rooms:      cfg.Export.Groups,
		Window:     window,
		ReportsDir: cfg.Export.ReportsDir,
		ExportDir:  cfg.Export.OutputDir,
	})
	if err != nil {
		return err
	}
	logger.Info("daily report finished", "file", result.FilePath, "messages", result.Delivery.TotalMessages)
	return nil
}

// pinger не допускает передачи nil-указателя, завернутого в интерфейс.
func pinger(n *notifier.SiYuanNotifier) app.Pinger {
	if n == nil {
		return nil
	}
	return n
}

func printChecks(w io.Writer, useColor bool, checks []app.Check) error {
	ok := color.New(color.FgGreen)
	skip := color.New(color.FgYellow)
	fail := color.New(color.FgRed, color.Bold)
	for _, c := range []*color.Color{ok, skip, fail} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	failed := 0
	var sb strings.Builder
	for _, c := range checks {
		switch {
		case c.Err != nil:
			failed++
			fmt.Fprintf(&sb, "%s %-9s %s\n", fail.Sprint("[FAIL]"), c.Name, c.Err)
		case c.Skipped:
			fmt.Fprintf(&sb, "%s %-9s %s\n", skip.Sprint("[SKIP]"), c.Name, c.Detail)
		default:
			fmt.Fprintf(&sb, "%s %-9s %s\n", ok.Sprint("[ OK ]"), c.Name, c.Detail)
		}
	}
	fmt.Fprintf(&sb, "\n%d check(s), %d failed\n", len(checks), failed)
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	if failed > 0 {
		slog.Default().Error("connectivity checks failed", "failed", failed)
		return errChecksFailed
	}
	return nil
}
