package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"wechat-daily-report/internal/adapters/ledger"
	"wechat-daily-report/internal/app"
	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/ports"
)

func newHistoryCommand(root *options, stdout io.Writer) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent export runs from the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(root.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := app.NewLogger(cfg, cmd.ErrOrStderr())

			if cfg.Ledger.Path == "" {
				return fmt.Errorf("run ledger is disabled: set ledger.path or LEDGER_PATH")
			}
			runs, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			return printEntries(stdout, logger, runs, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show, 0 for all")
	return cmd
}

func printEntries(w io.Writer, logger *slog.Logger, runs ports.RunLedger, limit int) error {
	entries, err := runs.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to read run ledger: %w", err)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s  %-7s  %5d  %s  %s",
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"), shortID(e.RunID), e.Status, e.MessageCount, e.Label, e.Room)
		if e.Error != "" {
			line += "  " + e.Error
		} else if e.FilePath != "" {
			line += "  " + e.FilePath
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	logger.Debug("run ledger listed", "entries", len(entries))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
