package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjelic/rocm-jax-glog-fork/discover"
)

// fakeRunner fails each module for a configured number of attempts, then
// passes, recording every invocation it sees.
type fakeRunner struct {
	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
	devices  map[string][]string
	checkErr error
	delay    time.Duration
}

func newFakeRunner(failures map[string]int) *fakeRunner {
	return &fakeRunner{
		failures: failures,
		attempts: make(map[string]int),
		devices:  make(map[string][]string),
	}
}

func (f *fakeRunner) Check() error { return f.checkErr }

func (f *fakeRunner) Run(ctx context.Context, inv Invocation) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[inv.Module]++
	f.devices[inv.Module] = append(f.devices[inv.Module], inv.Devices.String())
	if f.attempts[inv.Module] <= f.failures[inv.Module] {
		return errors.New("exit status 1")
	}
	return nil
}

func newDispatcher(t *testing.T, runner Runner) *Dispatcher {
	t.Helper()
	return &Dispatcher{
		Runner:     runner,
		ReportDir:  t.TempDir(),
		MaxRetries: 3,
	}
}

func TestRetrySemantics(t *testing.T) {
	cases := []struct {
		name         string
		failures     int
		wantStatus   Status
		wantAttempts int
	}{
		{"first try", 0, StatusPassed, 1},
		{"flaky once", 1, StatusPassed, 2},
		{"flaky at the limit", 3, StatusPassed, 4},
		{"always failing", 99, StatusFailed, 4},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner(map[string]int{"tests/x_test.py": tt.failures})
			d := newDispatcher(t, runner)

			results, err := d.RunCatalog(context.Background(), discover.MaskForCount(1), []string{"tests/x_test.py"})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantStatus, results[0].Status)
			assert.Equal(t, tt.wantAttempts, results[0].Attempts)
			assert.Equal(t, tt.wantAttempts, runner.attempts["tests/x_test.py"])
		})
	}
}

func TestCatalogOrderSurvivesFailure(t *testing.T) {
	// Concrete scenario: 5 devices → mask 0,1,2,3; "b" fails every
	// attempt, "a" and "c" pass first try.
	runner := newFakeRunner(map[string]int{"tests/b_test.py": 99})
	d := newDispatcher(t, runner)

	catalog := []string{"tests/a_test.py", "tests/b_test.py", "tests/c_test.py"}
	mask := discover.MaskForCount(5)
	require.Equal(t, "0,1,2,3", mask.String())

	results, err := d.RunCatalog(context.Background(), mask, catalog)
	require.NoError(t, err)
	require.Len(t, results, len(catalog))

	assert.Equal(t, "tests/a_test.py", results[0].Module)
	assert.Equal(t, StatusPassed, results[0].Status)
	assert.Equal(t, 1, results[0].Attempts)

	assert.Equal(t, "tests/b_test.py", results[1].Module)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Equal(t, 4, results[1].Attempts)

	assert.Equal(t, "tests/c_test.py", results[2].Module)
	assert.Equal(t, StatusPassed, results[2].Status)
	assert.Equal(t, 1, results[2].Attempts)

	// every invocation saw the full mask
	for module, masks := range runner.devices {
		for _, m := range masks {
			assert.Equal(t, "0,1,2,3", m, "module %s", module)
		}
	}
}

func TestMissingRunnerAbortsBeforeAnyModule(t *testing.T) {
	runner := newFakeRunner(nil)
	runner.checkErr = ErrToolMissing
	d := newDispatcher(t, runner)

	_, err := d.RunCatalog(context.Background(), discover.MaskForCount(1), []string{"tests/a_test.py"})
	require.ErrorIs(t, err, ErrToolMissing)
	assert.Empty(t, runner.attempts)
}

func TestModuleTimeout(t *testing.T) {
	runner := newFakeRunner(nil)
	runner.delay = 200 * time.Millisecond
	d := newDispatcher(t, runner)
	d.Timeout = 20 * time.Millisecond

	results, err := d.RunCatalog(context.Background(), discover.MaskForCount(1), []string{"tests/slow_test.py"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusTimeout, results[0].Status)
	// a blown deadline is not retried
	assert.Equal(t, 1, results[0].Attempts)
}

func TestReportPathsAreDeterministic(t *testing.T) {
	runner := newFakeRunner(map[string]int{"tests/b_test.py": 99})
	d := newDispatcher(t, runner)

	results, err := d.RunCatalog(context.Background(), discover.MaskForCount(1), []string{"tests/b_test.py"})
	require.NoError(t, err)
	assert.Contains(t, results[0].ReportJSON, "b_test_log.json")
	assert.Contains(t, results[0].ReportHTML, "b_test_log.html")
}

func TestRunSharded(t *testing.T) {
	catalog := []string{"tests/a_test.py", "tests/b_test.py", "tests/c_test.py", "tests/d_test.py"}
	runner := newFakeRunner(map[string]int{"tests/c_test.py": 1})
	d := newDispatcher(t, runner)

	mask := discover.MaskForCount(2)
	results, err := d.RunSharded(context.Background(), mask, catalog, 0)
	require.NoError(t, err)
	require.Len(t, results, len(catalog))

	// results stay in catalog order even though execution interleaves
	for i, module := range catalog {
		assert.Equal(t, module, results[i].Module)
		assert.Equal(t, StatusPassed, results[i].Status)
	}
	assert.Equal(t, 2, results[2].Attempts)

	// each invocation was pinned to exactly one masked device
	for module, masks := range runner.devices {
		for _, m := range masks {
			assert.Contains(t, []string{"0", "1"}, m, "module %s", module)
		}
	}
}
