package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"olsync/internal/journal"
	"olsync/internal/pipeline"
)

var titleCaser = cases.Title(language.English)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var only []string
	var dryRun bool
	var keep bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync all configured dumps to the dataset store",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.RunOptions{Only: only, DryRun: dryRun, Keep: keep}
			return executeRun(ctx, cmd, opts, !dryRun)
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the run to the named categories (authors, editions, works)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Probe sources and report without downloading or publishing")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the run's intermediate parquet directory")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download changed dumps without converting or publishing",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.RunOptions{Only: only, FetchOnly: true}
			return executeRun(ctx, cmd, opts, false)
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the fetch to the named categories")
	return cmd
}

func executeRun(cmdCtx *commandContext, cmd *cobra.Command, opts pipeline.RunOptions, needPublisher bool) error {
	p, cleanup, err := cmdCtx.buildPipeline(needPublisher)
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := p.Run(runCtx, opts)
	if len(results) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(results))
	}
	if errors.Is(runErr, pipeline.ErrSourcesFailed) {
		return fmt.Errorf("sync incomplete: %w", runErr)
	}
	return runErr
}

func renderRunSummary(results []pipeline.SourceResult) string {
	columns := []tableColumn{
		{name: "Category"},
		{name: "Status"},
		{name: "Rows", numeric: true},
		{name: "Skipped", numeric: true},
		{name: "Segments", numeric: true},
		{name: "Elapsed", numeric: true},
	}

	rows := make([][]string, 0, len(results))
	for _, result := range results {
		status := statusLabel(result.Status)
		if result.Err != nil {
			status = fmt.Sprintf("failed: %s", truncate(result.Err.Error(), 60))
		}
		rows = append(rows, []string{
			titleCaser.String(result.Category.String()),
			status,
			strconv.FormatInt(result.Rows, 10),
			strconv.FormatInt(result.Skipped, 10),
			strconv.Itoa(result.Segments),
			formatDuration(result.Duration),
		})
	}
	return renderTable(columns, rows)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func statusLabel(status journal.Status) string {
	switch status {
	case journal.StatusUpToDate:
		return "up to date"
	default:
		return string(status)
	}
}
