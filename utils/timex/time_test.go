package timex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlignTimeToWindow(t *testing.T) {
	ts := time.Unix(0, 10_001_000_000) // 10001ms
	aligned := AlignTimeToWindow(ts, 2*time.Second)
	assert.Equal(t, int64(10_000_000_000), aligned.UnixNano())

	// Already-aligned times are unchanged.
	assert.Equal(t, aligned.UnixNano(), AlignTimeToWindow(aligned, 2*time.Second).UnixNano())

	// Zero time passes through untouched.
	assert.True(t, AlignTimeToWindow(time.Time{}, time.Second).IsZero())
}

func TestAlignTime(t *testing.T) {
	ts := time.Unix(0, 1_500_000_000) // 1.5s

	down := AlignTime(ts, time.Second, false)
	assert.Equal(t, int64(1_000_000_000), down.UnixNano())

	up := AlignTime(ts, time.Second, true)
	assert.Equal(t, int64(2_000_000_000), up.UnixNano())

	// An exact boundary does not round up past itself.
	exact := AlignTime(down, time.Second, true)
	assert.Equal(t, down.UnixNano(), exact.UnixNano())
}
