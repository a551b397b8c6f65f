package junction

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rulego/eventflux/model"
	"github.com/rulego/eventflux/pipeline"
	"github.com/stretchr/testify/assert"
)

func evt(i int64) *model.Event {
	return model.NewEvent(i, []model.AttrValue{model.Int64Value(i)})
}

// Every Sync subscriber observes the same total order as the producer's
// enqueue order.
func TestSyncJunctionOrderedFanout(t *testing.T) {
	j := New("Orders", Sync, pipeline.Config{})
	var got1, got2 []int64
	var mu sync.Mutex
	j.Subscribe(func(e *model.Event) error {
		mu.Lock()
		got1 = append(got1, e.ArrivalTimestamp)
		mu.Unlock()
		return nil
	})
	j.Subscribe(func(e *model.Event) error {
		mu.Lock()
		got2 = append(got2, e.ArrivalTimestamp)
		mu.Unlock()
		return nil
	})
	for i := int64(1); i <= 5; i++ {
		assert.NoError(t, j.SendEvent(evt(i)))
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got1)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got2)
}

func TestSyncJunctionSubscriberErrorSurfacesSynchronously(t *testing.T) {
	j := New("Orders", Sync, pipeline.Config{})
	j.Subscribe(func(e *model.Event) error { return assert.AnError })
	err := j.SendEvent(evt(1))
	assert.Error(t, err)
}

func TestAsyncJunctionPerSubscriberOrder(t *testing.T) {
	cfg := pipeline.Config{Capacity: 64, Strategy: pipeline.StrategyBlock}
	j := New("Orders", Async, cfg)
	var count int64
	var got []int64
	var mu sync.Mutex
	j.Subscribe(func(e *model.Event) error {
		mu.Lock()
		got = append(got, e.ArrivalTimestamp)
		mu.Unlock()
		atomic.AddInt64(&count, 1)
		return nil
	})
	for i := int64(1); i <= 20; i++ {
		assert.NoError(t, j.SendEvent(evt(i)))
	}
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
	j.Close()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	j := New("Orders", Sync, pipeline.Config{})
	var count int64
	id := j.Subscribe(func(e *model.Event) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	j.SendEvent(evt(1))
	j.Unsubscribe(id)
	j.SendEvent(evt(2))
	assert.Equal(t, int64(1), atomic.LoadInt64(&count))
}
