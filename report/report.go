// Package report owns the on-disk report layout and the post-run
// consolidation of per-module artifacts.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	jsonSuffix = "_log.json"
	htmlSuffix = "_log.html"

	// ConsolidatedJSON is the single structured artifact for the run.
	ConsolidatedJSON = "final_compiled_report.json"
	// ConsolidatedHTML is the single human-readable artifact for the run.
	ConsolidatedHTML = "final_compiled_report.html"
)

// ErrToolMissing indicates the external HTML merger is not installed.
var ErrToolMissing = errors.New("required tool not found")

// ModuleBase derives the deterministic artifact stem from a module
// identifier: path and extension stripped.
func ModuleBase(module string) string {
	base := filepath.Base(module)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func JSONLog(dir, module string) string {
	return filepath.Join(dir, ModuleBase(module)+jsonSuffix)
}

func HTMLLog(dir, module string) string {
	return filepath.Join(dir, ModuleBase(module)+htmlSuffix)
}

// Merger consolidates the per-module reports in a report directory.
type Merger struct {
	// HTMLMerger is the external tool joining per-module HTML reports.
	HTMLMerger string
}

// Merge combines every per-module report found in dir into the two
// consolidated artifacts and returns the number of structured entries
// included. Individual unreadable inputs are skipped with a diagnostic;
// re-running over an unchanged directory rewrites the same artifacts.
func (m *Merger) Merge(ctx context.Context, dir string) (int, error) {
	mergerPath, err := exec.LookPath(m.HTMLMerger)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrToolMissing, m.HTMLMerger)
	}

	// HTML first, like the historical flow: a failed HTML merge is a
	// diagnostic only and never blocks the JSON consolidation.
	out, err := exec.CommandContext(ctx, mergerPath, "-i", dir, "-o", filepath.Join(dir, ConsolidatedHTML)).CombinedOutput()
	if err != nil {
		slog.Warn("HTML merger failed, continuing with JSON consolidation", "error", err, "output", tail(string(out), 2048))
	}

	return m.combineJSON(dir)
}

func (m *Merger) combineJSON(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("unable to scan report directory: %w", err)
	}

	// ReadDir sorts by name, so entry order is stable across runs
	combined := make([]any, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jsonSuffix) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable module report", "file", path, "error", err)
			continue
		}

		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Warn("skipping malformed module report", "file", path, "error", err)
			continue
		}
		combined = append(combined, doc)
	}

	blob, err := json.MarshalIndent(combined, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("unable to encode consolidated report: %w", err)
	}

	target := filepath.Join(dir, ConsolidatedJSON)
	if err := os.WriteFile(target, blob, 0o644); err != nil {
		return 0, fmt.Errorf("unable to write consolidated report: %w", err)
	}

	slog.Info("consolidated report written", "file", target, "modules", len(combined))
	return len(combined), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
