package main

import (
	"github.com/spf13/cobra"

	"olsync/internal/pipeline"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var only []string
	var keep bool

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert and publish already-fetched dumps",
		Long: "Convert reuses the dump files a previous `olsync fetch` left in the work\n" +
			"directory, converts them to parquet segments, and publishes the result.\n" +
			"Sources whose manifest signature already matches the remote are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.RunOptions{Only: only, ConvertOnly: true, Keep: keep}
			return executeRun(ctx, cmd, opts, true)
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the conversion to the named categories")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the run's intermediate parquet directory")
	return cmd
}
