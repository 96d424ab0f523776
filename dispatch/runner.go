package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/vjelic/rocm-jax-glog-fork/envconfig"
)

// ErrToolMissing indicates the test runner tool is not installed on the
// host. Fatal: the catalog cannot run at all without it.
var ErrToolMissing = errors.New("required tool not found")

// PytestRunner invokes one test module through pytest in a child process.
type PytestRunner struct {
	// Python is the interpreter used for python -m pytest.
	Python string
	// RootDir is the working directory the module identifiers are
	// relative to (the framework checkout).
	RootDir string
	// ExtraArgs are appended verbatim before the module identifier.
	ExtraArgs []string
}

func NewPytestRunner(rootDir string) *PytestRunner {
	return &PytestRunner{
		Python:  envconfig.RunnerBin,
		RootDir: rootDir,
	}
}

func (r *PytestRunner) Check() error {
	if _, err := exec.LookPath(r.Python); err != nil {
		return fmt.Errorf("%w: %s", ErrToolMissing, r.Python)
	}
	return nil
}

func (r *PytestRunner) Run(ctx context.Context, inv Invocation) error {
	args := []string{
		"-m", "pytest",
		"--json-report",
		"--json-report-file=" + inv.JSONLog,
		"--html=" + inv.HTMLLog,
		"-v",
	}
	args = append(args, r.ExtraArgs...)
	args = append(args, inv.Module)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Python, args...)
	cmd.Dir = r.RootDir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.Env = withEnv(os.Environ(), [][2]string{
		{"HIP_VISIBLE_DEVICES", inv.Devices.String()},
		{"XLA_PYTHON_CLIENT_ALLOCATOR", "default"},
		{"HSA_TOOLS_LIB", "libroctracer64.so"},
	})

	slog.Debug("starting test runner", "cmd", cmd, "HIP_VISIBLE_DEVICES", inv.Devices.String())

	if err := cmd.Run(); err != nil {
		slog.Debug("test runner output", "module", inv.Module, "output", tail(out.String(), 4096))
		return fmt.Errorf("pytest %s: %w", inv.Module, err)
	}
	return nil
}

// withEnv updates or adds the given variables, mirroring how the llm
// server environment is adjusted before launch.
func withEnv(env []string, vars [][2]string) []string {
	needed := make(map[string]string, len(vars))
	for _, kv := range vars {
		needed[kv[0]] = kv[1]
	}

	for i := range env {
		cmp := strings.SplitN(env[i], "=", 2)
		if val, ok := needed[cmp[0]]; ok {
			env[i] = cmp[0] + "=" + val
			delete(needed, cmp[0])
		}
	}
	// keep the remainder in declaration order for readable logs
	for _, kv := range vars {
		if _, ok := needed[kv[0]]; ok {
			env = append(env, kv[0]+"="+kv[1])
		}
	}
	return env
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
