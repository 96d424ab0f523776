package discover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskForCount(t *testing.T) {
	cases := []struct {
		count int
		want  DeviceMask
	}{
		{0, DeviceMask{0}},
		{1, DeviceMask{0}},
		{2, DeviceMask{0, 1}},
		{3, DeviceMask{0, 1}},
		{4, DeviceMask{0, 1, 2, 3}},
		{7, DeviceMask{0, 1, 2, 3}},
		{8, DeviceMask{0, 1, 2, 3, 4, 5, 6, 7}},
		{9, DeviceMask{0, 1, 2, 3, 4, 5, 6, 7}},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.want, MaskForCount(tt.count), "count=%d", tt.count)
	}
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "0", MaskForCount(1).String())
	assert.Equal(t, "0,1,2,3", MaskForCount(5).String())
}

func TestParseMask(t *testing.T) {
	mask, ok := ParseMask("0,1,2")
	require.True(t, ok)
	assert.Equal(t, DeviceMask{0, 1, 2}, mask)

	mask, ok = ParseMask(" 4 ")
	require.True(t, ok)
	assert.Equal(t, DeviceMask{4}, mask)

	for _, bad := range []string{"", "a,b", "0,-1", "0,,1"} {
		_, ok := ParseMask(bad)
		assert.False(t, ok, "input %q", bad)
	}
}
