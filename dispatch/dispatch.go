// Package dispatch runs a catalog of test modules against the selected
// accelerator mask and records one result per module.
//
// Retry is unconditional on any non-zero exit: the dispatcher does not
// distinguish flaky from deterministic failures. That is a known,
// deliberate limitation, kept so that a failing module's attempt count
// stays predictable.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vjelic/rocm-jax-glog-fork/discover"
	"github.com/vjelic/rocm-jax-glog-fork/report"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Result records the outcome for one catalog entry. Immutable once the
// module has finished, including after exhausted retries.
type Result struct {
	Module     string
	Status     Status
	Attempts   int
	Duration   time.Duration
	ReportJSON string
	ReportHTML string
}

// Invocation is one attempt at one module, bound to the devices it may see.
type Invocation struct {
	Module  string
	Devices discover.DeviceMask
	JSONLog string
	HTMLLog string
}

// Runner executes a single module attempt as an isolated process. Check
// probes for the underlying tool before any module runs so a missing
// runner aborts the whole catalog up front.
type Runner interface {
	Check() error
	Run(ctx context.Context, inv Invocation) error
}

type Dispatcher struct {
	Runner    Runner
	ReportDir string
	// MaxRetries is the number of extra attempts after a failed first
	// one, so a module runs at most MaxRetries+1 times.
	MaxRetries int
	// Timeout bounds a single attempt; zero preserves the historical
	// unbounded wait.
	Timeout time.Duration
}

// RunCatalog executes every module in order, sequentially, each with the
// full device mask. A module's failure never aborts the catalog; the
// returned slice always has one entry per module, in catalog order.
func (d *Dispatcher) RunCatalog(ctx context.Context, mask discover.DeviceMask, modules []string) ([]Result, error) {
	if err := d.prepare(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(modules))
	for _, module := range modules {
		results = append(results, d.runModule(ctx, mask, module))
	}
	return results, nil
}

// RunSharded executes modules concurrently, one masked device per
// in-flight module. Each worker holds a device token for the duration of
// an attempt, so a device never serves two modules at once. Result order
// still follows catalog order.
func (d *Dispatcher) RunSharded(ctx context.Context, mask discover.DeviceMask, modules []string, workers int) ([]Result, error) {
	if err := d.prepare(); err != nil {
		return nil, err
	}

	if workers <= 0 || workers > len(mask) {
		workers = len(mask)
	}
	slog.Info("running single-GPU catalog", "workers", workers, "modules", len(modules))

	tokens := make(chan int, len(mask))
	for _, idx := range mask {
		tokens <- idx
	}

	results := make([]Result, len(modules))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, module := range modules {
		i, module := i, module
		g.Go(func() error {
			device := <-tokens
			defer func() { tokens <- device }()
			results[i] = d.runModule(ctx, discover.DeviceMask{device}, module)
			return nil
		})
	}
	_ = g.Wait() // workers record failures, they never return them
	return results, nil
}

func (d *Dispatcher) prepare() error {
	if err := d.Runner.Check(); err != nil {
		return err
	}
	// Created if absent, never deleted here
	if err := os.MkdirAll(d.ReportDir, 0o755); err != nil {
		return fmt.Errorf("unable to create report directory: %w", err)
	}
	return nil
}

func (d *Dispatcher) runModule(ctx context.Context, devices discover.DeviceMask, module string) Result {
	res := Result{
		Module:     module,
		ReportJSON: report.JSONLog(d.ReportDir, module),
		ReportHTML: report.HTMLLog(d.ReportDir, module),
	}

	inv := Invocation{
		Module:  module,
		Devices: devices,
		JSONLog: res.ReportJSON,
		HTMLLog: res.ReportHTML,
	}

	start := time.Now()
	for attempt := 1; attempt <= d.MaxRetries+1; attempt++ {
		res.Attempts = attempt

		err := d.runOnce(ctx, inv)
		if err == nil {
			res.Status = StatusPassed
			break
		}

		if errors.Is(err, context.DeadlineExceeded) {
			// A deadline blown once will be blown again; don't burn
			// the remaining attempts on it.
			res.Status = StatusTimeout
			slog.Warn("test module timed out", "module", module, "attempt", attempt, "timeout", d.Timeout)
			break
		}

		res.Status = StatusFailed
		slog.Warn("test module failed", "module", module, "attempt", attempt, "devices", devices.String(), "error", err)
	}
	res.Duration = time.Since(start)

	slog.Info("test module finished",
		"module", module,
		"status", res.Status,
		"attempts", res.Attempts,
		"devices", devices.String(),
		"duration", res.Duration,
	)
	return res
}

func (d *Dispatcher) runOnce(ctx context.Context, inv Invocation) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	err := d.Runner.Run(ctx, inv)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("module %s: %w", inv.Module, context.DeadlineExceeded)
	}
	return err
}
