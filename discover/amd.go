package discover

// Discovery logic for AMD/ROCm GPUs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	DriverVersionFile = "/sys/module/amdgpu/version"

	// PCI class/vendor substrings the device lister is filtered on
	vendorFilter = "AMD/ATI"
)

var classFilters = []string{"controller", "accel"}

// ErrToolMissing indicates a required host utility is not installed.
// Callers treat this as fatal: without the device lister there is no way
// to size the run.
var ErrToolMissing = errors.New("required tool not found")

var lspciBin = "lspci"

// DeviceCount enumerates AMD accelerator devices on the host by counting
// matching entries in the lspci listing. Zero devices is not an error; the
// caller falls back to a single-device mask.
func DeviceCount(ctx context.Context) (int, error) {
	path, err := exec.LookPath(lspciBin)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrToolMissing, lspciBin)
	}

	out, err := exec.CommandContext(ctx, path).Output()
	if err != nil {
		return 0, fmt.Errorf("device listing failed: %w", err)
	}

	count := countAccelerators(strings.NewReader(string(out)))

	if count > 0 && !AMDDetected() {
		slog.Warn("AMD devices visible on the bus but amdgpu driver not loaded, tests may not see them")
	} else if count > 0 {
		if driverMajor, driverMinor, err := AMDDriverVersion(); err != nil {
			slog.Debug("unable to read amdgpu driver version", "error", err)
		} else {
			slog.Debug("amdgpu driver", "version", fmt.Sprintf("%d.%d", driverMajor, driverMinor))
		}
	}

	slog.Info("accelerator discovery", "count", count)
	return count, nil
}

// countAccelerators applies the class and vendor filters to the raw device
// listing, one device per line.
func countAccelerators(r io.Reader) int {
	count := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, vendorFilter) {
			continue
		}
		for _, class := range classFilters {
			if strings.Contains(line, class) {
				count++
				break
			}
		}
	}
	return count
}

func AMDDetected() bool {
	// Some driver versions (older?) don't have a version file, so just lookup the parent dir
	sysfsDir := filepath.Dir(DriverVersionFile)
	_, err := os.Stat(sysfsDir)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("amdgpu driver not detected " + sysfsDir)
		return false
	} else if err != nil {
		slog.Debug("error looking up amd driver", "path", sysfsDir, "error", err)
		return false
	}
	return true
}

func AMDDriverVersion() (driverMajor, driverMinor int, err error) {
	_, err = os.Stat(DriverVersionFile)
	if err != nil {
		return 0, 0, fmt.Errorf("amdgpu version file missing: %s %w", DriverVersionFile, err)
	}
	fp, err := os.Open(DriverVersionFile)
	if err != nil {
		return 0, 0, err
	}
	defer fp.Close()
	verString, err := io.ReadAll(fp)
	if err != nil {
		return 0, 0, err
	}

	pattern := `\A(\d+)\.(\d+).*`
	regex := regexp.MustCompile(pattern)
	match := regex.FindStringSubmatch(string(verString))
	if len(match) < 2 {
		return 0, 0, fmt.Errorf("malformed version string %s", string(verString))
	}
	driverMajor, err = strconv.Atoi(match[1])
	if err != nil {
		return 0, 0, err
	}
	driverMinor, err = strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, err
	}
	return driverMajor, driverMinor, nil
}
