package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vjelic/rocm-jax-glog-fork/envconfig"
	"github.com/vjelic/rocm-jax-glog-fork/report"
)

func NewMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Consolidate per-module reports into one artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reportDir, _ := cmd.Flags().GetString("report-dir")

			merger := &report.Merger{HTMLMerger: envconfig.HTMLMerger}
			count, err := merger.Merge(cmd.Context(), reportDir)
			if err != nil {
				return err
			}

			fmt.Printf("%d module reports merged.\n", count)
			return nil
		},
	}

	cmd.Flags().String("report-dir", envconfig.ReportDir, "Directory containing the per-module reports")

	return cmd
}
