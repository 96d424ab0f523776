package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vjelic/rocm-jax-glog-fork/catalog"
	"github.com/vjelic/rocm-jax-glog-fork/discover"
	"github.com/vjelic/rocm-jax-glog-fork/dispatch"
	"github.com/vjelic/rocm-jax-glog-fork/envconfig"
	"github.com/vjelic/rocm-jax-glog-fork/format"
	"github.com/vjelic/rocm-jax-glog-fork/report"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test catalog against the detected accelerators",
		Args:  cobra.NoArgs,
		RunE:  runHandler,
	}

	cmd.Flags().String("catalog", envconfig.CatalogFile, "TOML file listing the test modules")
	cmd.Flags().String("provider", envconfig.CatalogProvider, "Executable queried with 'list' for the test modules")
	cmd.Flags().String("report-dir", envconfig.ReportDir, "Directory for report artifacts")
	cmd.Flags().String("root", ".", "Working directory the module identifiers are relative to")
	cmd.Flags().Int("retries", envconfig.MaxRetries, "Extra attempts for a failing module")
	cmd.Flags().Duration("timeout", envconfig.ModuleTimeout, "Per-attempt module deadline, 0 waits forever")
	cmd.Flags().BoolP("single-gpu", "s", false, "Shard modules across devices, one GPU per module")
	cmd.Flags().IntP("parallel", "p", envconfig.Parallel, "Worker count in single-GPU mode (default: one per masked device)")
	cmd.Flags().Bool("no-merge", false, "Skip report consolidation")

	return cmd
}

func runHandler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	singleGPU, _ := flags.GetBool("single-gpu")
	catalogFile, _ := flags.GetString("catalog")
	provider, _ := flags.GetString("provider")

	// Fatal precondition: the catalog must resolve completely before
	// anything runs.
	source, err := catalog.Select(catalogFile, provider, singleGPU)
	if err != nil {
		return err
	}
	modules, err := source.Modules(ctx)
	if err != nil {
		return err
	}

	mask, err := resolveMask(ctx)
	if err != nil {
		return err
	}

	reportDir, _ := flags.GetString("report-dir")
	rootDir, _ := flags.GetString("root")
	retries, _ := flags.GetInt("retries")
	timeout, _ := flags.GetDuration("timeout")

	d := &dispatch.Dispatcher{
		Runner:     dispatch.NewPytestRunner(rootDir),
		ReportDir:  reportDir,
		MaxRetries: retries,
		Timeout:    timeout,
	}

	var results []dispatch.Result
	if singleGPU {
		parallel, _ := flags.GetInt("parallel")
		results, err = d.RunSharded(ctx, mask, modules, parallel)
	} else {
		slog.Info("running multi-GPU catalog", "modules", len(modules), "HIP_VISIBLE_DEVICES", mask.String())
		results, err = d.RunCatalog(ctx, mask, modules)
	}
	if err != nil {
		return err
	}

	printSummary(results)

	if noMerge, _ := flags.GetBool("no-merge"); noMerge {
		return nil
	}

	for _, res := range results {
		if _, err := os.Stat(res.ReportJSON); err != nil {
			slog.Warn("expected module report missing", "module", res.Module, "file", res.ReportJSON)
		}
	}

	merger := &report.Merger{HTMLMerger: envconfig.HTMLMerger}
	if _, err := merger.Merge(ctx, reportDir); err != nil {
		return err
	}

	// Module failures are reported, not fatal: the exit code stays zero
	// and consumers read the consolidated report instead.
	return nil
}

// resolveMask honors a caller-supplied HIP_VISIBLE_DEVICES before falling
// back to device detection.
func resolveMask(ctx context.Context) (discover.DeviceMask, error) {
	if override := envconfig.HipVisibleDevices(); override != "" {
		if mask, ok := discover.ParseMask(override); ok {
			slog.Info("using caller-supplied device mask", "HIP_VISIBLE_DEVICES", override)
			return mask, nil
		}
		slog.Warn("ignoring unparsable HIP_VISIBLE_DEVICES", "value", override)
	}

	count, err := discover.DeviceCount(ctx)
	if err != nil {
		return nil, err
	}
	return discover.MaskForCount(count), nil
}

func printSummary(results []dispatch.Result) {
	var data [][]string
	passed := 0
	for _, res := range results {
		if res.Status == dispatch.StatusPassed {
			passed++
		}
		data = append(data, []string{
			res.Module,
			strings.ToUpper(string(res.Status)),
			strconv.Itoa(res.Attempts),
			format.ExactDuration(res.Duration),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"MODULE", "STATUS", "ATTEMPTS", "DURATION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Printf("\n%d/%d modules passed\n", passed, len(results))
}
