package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRowFlagString(t *testing.T) {
	assert.Equal(t, "CURRENT", RowCurrent.String())
	assert.Equal(t, "EXPIRED", RowExpired.String())
}

func TestRowGetTimestamp(t *testing.T) {
	ts := time.UnixMilli(1234)
	r := Row{Data: map[string]interface{}{"v": 1}, Timestamp: ts}
	assert.True(t, r.GetTimestamp().Equal(ts))
}

func TestTimeSlotContains(t *testing.T) {
	start := time.UnixMilli(1000)
	end := time.UnixMilli(2000)
	slot := NewTimeSlot(&start, &end)

	assert.True(t, slot.Contains(start), "start is inclusive")
	assert.True(t, slot.Contains(time.UnixMilli(1500)))
	assert.False(t, slot.Contains(end), "end is exclusive")
	assert.False(t, slot.Contains(time.UnixMilli(999)))
}

func TestTimeSlotNilSafety(t *testing.T) {
	var slot *TimeSlot
	assert.False(t, slot.Contains(time.Now()))
	assert.Equal(t, int64(0), slot.WindowStart())
	assert.Equal(t, int64(0), slot.WindowEnd())

	half := NewTimeSlot(nil, nil)
	assert.Equal(t, int64(0), half.WindowStart())
	assert.Equal(t, int64(0), half.WindowEnd())
}

func TestTimeSlotBounds(t *testing.T) {
	start := time.UnixMilli(1000)
	end := time.UnixMilli(2000)
	slot := NewTimeSlot(&start, &end)
	assert.Equal(t, start.UnixNano(), slot.WindowStart())
	assert.Equal(t, end.UnixNano(), slot.WindowEnd())
}

func TestDefaultPerformanceConfig(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	assert.Equal(t, OverflowStrategyDrop, cfg.OverflowConfig.Strategy)
	assert.Positive(t, cfg.BufferConfig.WindowOutputSize)

	// The zero value must stay distinguishable from a configured value by
	// plain comparison; window constructors rely on this.
	assert.NotEqual(t, PerformanceConfig{}, cfg)
}
