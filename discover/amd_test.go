package discover

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountAccelerators(t *testing.T) {
	listing := strings.Join([]string{
		"03:00.0 Display controller: Advanced Micro Devices, Inc. [AMD/ATI] Aldebaran/MI200 [Instinct MI250X]",
		"26:00.0 Display controller: Advanced Micro Devices, Inc. [AMD/ATI] Aldebaran/MI200 [Instinct MI250X]",
		"83:00.0 Processing accelerators: Advanced Micro Devices, Inc. [AMD/ATI] Aqua Vanjaram [Instinct MI300X]",
		"00:02.0 VGA compatible controller: Intel Corporation Device 4680",
		"a6:00.0 Non-Volatile memory controller: Samsung Electronics Co Ltd NVMe SSD",
		"c1:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Raphael",
	}, "\n")

	assert.Equal(t, 4, countAccelerators(strings.NewReader(listing)))
}

func TestCountAcceleratorsEmpty(t *testing.T) {
	assert.Equal(t, 0, countAccelerators(strings.NewReader("")))
	assert.Equal(t, 0, countAccelerators(strings.NewReader("00:02.0 VGA compatible controller: Intel Corporation Device 4680")))
}
