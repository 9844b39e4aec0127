package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"olsync/internal/journal"
	"olsync/internal/manifest"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var history bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of each source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			jrnl, err := journal.Open(cfg)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			var runs []journal.SourceRun
			if history {
				runs, err = jrnl.Recent(cmd.Context(), limit)
			} else {
				runs, err = jrnl.LatestPerSource(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet. Start one with `olsync run`.")
				return nil
			}
			fmt.Fprintln(out, renderStatusTable(runs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Show recent run history instead of the latest state per source")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows when showing history")
	return cmd
}

func newManifestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Show the committed sync manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			man, err := manifest.Open(cfg.Paths.ManifestPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sources := man.Sources()
			if len(sources) == 0 {
				fmt.Fprintf(out, "Manifest %s is empty.\n", man.Path())
				return nil
			}
			fmt.Fprintln(out, renderManifestTable(man, sources))
			return nil
		},
	}
}

func renderStatusTable(runs []journal.SourceRun) string {
	columns := []tableColumn{
		{name: "Source"},
		{name: "Category"},
		{name: "Status"},
		{name: "Rows", numeric: true},
		{name: "Skipped", numeric: true},
		{name: "Updated"},
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		status := statusLabel(run.Status)
		if run.Status == journal.StatusFailed && run.FailureStage != "" {
			status = fmt.Sprintf("failed (%s)", run.FailureStage)
		}
		rows = append(rows, []string{
			run.Source,
			titleCaser.String(run.Category),
			status,
			strconv.FormatInt(run.Rows, 10),
			strconv.FormatInt(run.Skipped, 10),
			formatTimestamp(run.UpdatedAt),
		})
	}
	return renderTable(columns, rows)
}

func renderManifestTable(man *manifest.Store, sources []string) string {
	columns := []tableColumn{
		{name: "Source"},
		{name: "Signature"},
		{name: "Segments", numeric: true},
		{name: "Rows", numeric: true},
		{name: "Last Synced"},
	}

	rows := make([][]string, 0, len(sources))
	for _, source := range sources {
		entry, ok := man.Lookup(source)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			source,
			entry.Signature,
			strconv.Itoa(entry.Artifact.Segments),
			strconv.FormatInt(entry.Artifact.Rows, 10),
			formatTimestamp(entry.LastSynced),
		})
	}
	return renderTable(columns, rows)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
