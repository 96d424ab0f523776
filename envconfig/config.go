package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// Set via GPURUN_DEBUG in the environment
	Debug bool
	// Set via GPURUN_REPORT_DIR in the environment
	ReportDir string
	// Set via GPURUN_MAX_RETRIES in the environment
	MaxRetries int
	// Set via GPURUN_RUNNER in the environment
	RunnerBin string
	// Set via GPURUN_HTML_MERGER in the environment
	HTMLMerger string
	// Set via GPURUN_CATALOG in the environment
	CatalogFile string
	// Set via GPURUN_CATALOG_PROVIDER in the environment
	CatalogProvider string
	// Set via GPURUN_MODULE_TIMEOUT in the environment
	ModuleTimeout time.Duration
	// Set via GPURUN_PARALLEL in the environment
	Parallel int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GPURUN_DEBUG":            {"GPURUN_DEBUG", Debug, "Show additional debug information (e.g. GPURUN_DEBUG=1)"},
		"GPURUN_REPORT_DIR":       {"GPURUN_REPORT_DIR", ReportDir, "Directory for per-module and consolidated reports (default \"./logs\")"},
		"GPURUN_MAX_RETRIES":      {"GPURUN_MAX_RETRIES", MaxRetries, "Extra attempts for a failing test module (default 3)"},
		"GPURUN_RUNNER":           {"GPURUN_RUNNER", RunnerBin, "Python interpreter used to invoke pytest (default \"python3\")"},
		"GPURUN_HTML_MERGER":      {"GPURUN_HTML_MERGER", HTMLMerger, "Tool that merges per-module HTML reports (default \"pytest_html_merger\")"},
		"GPURUN_CATALOG":          {"GPURUN_CATALOG", CatalogFile, "TOML file listing the test modules to run"},
		"GPURUN_CATALOG_PROVIDER": {"GPURUN_CATALOG_PROVIDER", CatalogProvider, "Executable queried with 'list' for the test catalog"},
		"GPURUN_MODULE_TIMEOUT":   {"GPURUN_MODULE_TIMEOUT", ModuleTimeout, "Per-attempt deadline for a test module, 0 waits forever (e.g. 30m)"},
		"GPURUN_PARALLEL":         {"GPURUN_PARALLEL", Parallel, "Worker count for single-GPU mode (default: one per masked device)"},
		"HIP_VISIBLE_DEVICES":     {"HIP_VISIBLE_DEVICES", HipVisibleDevices(), "Overrides the detected device mask"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// HipVisibleDevices returns the caller's device mask override, if any.
// Read fresh on every call since the dispatcher rewrites it for children.
func HipVisibleDevices() string {
	return clean("HIP_VISIBLE_DEVICES")
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	// default values
	ReportDir = "./logs"
	MaxRetries = 3
	RunnerBin = "python3"
	HTMLMerger = "pytest_html_merger"

	LoadConfig()
}

func LoadConfig() {
	if debug := clean("GPURUN_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if dir := clean("GPURUN_REPORT_DIR"); dir != "" {
		ReportDir = dir
	}

	if retries := clean("GPURUN_MAX_RETRIES"); retries != "" {
		r, err := strconv.Atoi(retries)
		if err != nil || r < 0 {
			slog.Error("invalid setting, ignoring", "GPURUN_MAX_RETRIES", retries, "error", err)
		} else {
			MaxRetries = r
		}
	}

	if runner := clean("GPURUN_RUNNER"); runner != "" {
		RunnerBin = runner
	}

	if merger := clean("GPURUN_HTML_MERGER"); merger != "" {
		HTMLMerger = merger
	}

	CatalogFile = clean("GPURUN_CATALOG")
	CatalogProvider = clean("GPURUN_CATALOG_PROVIDER")

	if timeout := clean("GPURUN_MODULE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil || d < 0 {
			slog.Error("invalid setting, ignoring", "GPURUN_MODULE_TIMEOUT", timeout, "error", err)
		} else {
			ModuleTimeout = d
		}
	}

	if parallel := clean("GPURUN_PARALLEL"); parallel != "" {
		p, err := strconv.Atoi(parallel)
		if err != nil || p <= 0 {
			slog.Error("invalid setting must be greater than zero", "GPURUN_PARALLEL", parallel, "error", err)
		} else {
			Parallel = p
		}
	}
}
