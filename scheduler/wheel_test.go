package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWheelFiresAfterDelay(t *testing.T) {
	w := NewWheel(10*time.Millisecond, 16)
	defer w.Stop()

	var fired int32
	w.After(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWheelCancelPreventsFire(t *testing.T) {
	w := NewWheel(10*time.Millisecond, 16)
	defer w.Stop()

	var fired int32
	tok := w.After(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	w.Cancel(tok)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestWheelOverflowMigration(t *testing.T) {
	// Revolution is 16*10ms = 160ms; schedule well beyond it and confirm it
	// still fires once migrated into the near ring.
	w := NewWheel(10*time.Millisecond, 16)
	defer w.Stop()

	var fired int32
	w.After(500*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventClockMonotonicAdvance(t *testing.T) {
	c := NewEventClock()
	c.Advance(100)
	c.Advance(50)
	assert.Equal(t, int64(100), c.NowMillis())
	c.Advance(200)
	assert.Equal(t, int64(200), c.NowMillis())
}
