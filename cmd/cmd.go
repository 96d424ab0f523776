package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vjelic/rocm-jax-glog-fork/envconfig"
	"github.com/vjelic/rocm-jax-glog-fork/logutil"
	"github.com/vjelic/rocm-jax-glog-fork/version"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "gpurun",
		Short:   "ROCm GPU test dispatcher",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			level := slog.LevelInfo
			if envconfig.Debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(logutil.NewLogger(os.Stderr, level))
		},
	}

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		NewRunCmd(),
		NewDetectCmd(),
		NewCatalogCmd(),
		NewMergeCmd(),
		NewEnvCmd(),
	)

	return rootCmd
}
