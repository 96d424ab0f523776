// Package catalog resolves the ordered list of test modules for a run.
//
// Two sources exist: a TOML file carrying a literal module list, and an
// external provider executable queried with a "list" request. Either way
// the catalog must resolve completely before any module runs; a partial or
// truncated catalog is worse than no run at all.
package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrUnavailable indicates the test catalog could not be resolved. This is
// a fatal precondition: the dispatcher runs zero modules when it fires.
var ErrUnavailable = errors.New("test catalog unavailable")

// Source yields the ordered, unique test module identifiers for one run.
type Source interface {
	Modules(ctx context.Context) ([]string, error)
}

// Static is a literal in-memory catalog, mostly useful in tests and as the
// seam for embedding a default suite.
type Static []string

func (s Static) Modules(ctx context.Context) ([]string, error) {
	return validate([]string(s))
}

// Config is the on-disk catalog schema.
type Config struct {
	Catalog struct {
		Modules []string `toml:"modules"`
		// Exclude lists modules that need every masked device to
		// themselves and are skipped in single-GPU runs.
		Exclude []string `toml:"exclude"`
	} `toml:"catalog"`
}

// File reads the catalog from a TOML file.
type File struct {
	Path string
	// ApplyExclude drops the excluded modules (single-GPU mode).
	ApplyExclude bool
}

func (f File) Modules(ctx context.Context) ([]string, error) {
	var cfg Config
	if _, err := toml.DecodeFile(f.Path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, f.Path, err)
	}

	modules := cfg.Catalog.Modules
	if f.ApplyExclude && len(cfg.Catalog.Exclude) > 0 {
		kept := make([]string, 0, len(modules))
		for _, m := range modules {
			if slices.Contains(cfg.Catalog.Exclude, m) {
				slog.Info("excluding multi-GPU test", "module", m)
				continue
			}
			kept = append(kept, m)
		}
		modules = kept
	}

	return validate(modules)
}

// Provider shells out to a shared configuration executable. The provider
// is expected to print one module identifier per line for a "list"
// request; blank lines and #-comments are tolerated.
type Provider struct {
	Command string
}

func (p Provider) Modules(ctx context.Context) ([]string, error) {
	path, err := exec.LookPath(p.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s not found", ErrUnavailable, p.Command)
	}

	out, err := exec.CommandContext(ctx, path, "list").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s: %v", ErrUnavailable, p.Command, err)
	}

	var modules []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		modules = append(modules, line)
	}

	return validate(modules)
}

// Select picks the configured source. The provider wins when both are set
// so that a shared provider can supersede a locally checked-in list.
func Select(file, provider string, applyExclude bool) (Source, error) {
	switch {
	case provider != "":
		return Provider{Command: provider}, nil
	case file != "":
		return File{Path: file, ApplyExclude: applyExclude}, nil
	default:
		return nil, fmt.Errorf("%w: no catalog file or provider configured", ErrUnavailable)
	}
}

func validate(modules []string) ([]string, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("%w: catalog resolved empty", ErrUnavailable)
	}

	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		if _, dup := seen[m]; dup {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrUnavailable, m)
		}
		seen[m] = struct{}{}
	}
	return modules, nil
}
