package discover

import (
	"strconv"
	"strings"
)

// DeviceMask is the ordered set of accelerator indices exposed to test
// module processes for one run.
type DeviceMask []int

// MaskForCount selects the devices to expose for a detected device count.
// Groupings favor the common 2/4/8 device node topologies; zero or one
// detected devices falls back to single-device mode rather than failing.
func MaskForCount(count int) DeviceMask {
	var k int
	switch {
	case count >= 8:
		k = 8
	case count >= 4:
		k = 4
	case count >= 2:
		k = 2
	default:
		k = 1
	}

	mask := make(DeviceMask, k)
	for i := range mask {
		mask[i] = i
	}
	return mask
}

// ParseMask reads a comma-joined index list, e.g. a HIP_VISIBLE_DEVICES
// override supplied by the caller.
func ParseMask(s string) (DeviceMask, bool) {
	var mask DeviceMask
	for _, field := range strings.Split(s, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || idx < 0 {
			return nil, false
		}
		mask = append(mask, idx)
	}
	return mask, len(mask) > 0
}

// String renders the mask the way visible-device environment variables
// expect it: comma-joined, in order.
func (m DeviceMask) String() string {
	parts := make([]string, len(m))
	for i, idx := range m {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}
