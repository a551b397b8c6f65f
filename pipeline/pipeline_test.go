package pipeline

import (
	"testing"

	"github.com/rulego/eventflux/model"
	"github.com/stretchr/testify/assert"
)

func evt(i int64) *model.Event {
	return model.NewEvent(i, []model.AttrValue{model.Int64Value(i)})
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	p := NewPipeline(Config{Capacity: 4, Strategy: StrategyDrop, DropMode: DropOldest}, nil)
	for i := int64(1); i <= 3; i++ {
		assert.NoError(t, p.Enqueue(evt(i)))
	}
	for i := int64(1); i <= 3; i++ {
		e, ok := p.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, i, e.ArrivalTimestamp)
	}
	_, ok := p.Dequeue()
	assert.False(t, ok)
}

// Capacity 4, Drop(oldest), producer enqueues 1..8 before any consume —
// observed events should be {5,6,7,8}, drop counter 4.
func TestDropOldestUnderBurst(t *testing.T) {
	p := NewPipeline(Config{Capacity: 4, Strategy: StrategyDrop, DropMode: DropOldest}, nil)
	for i := int64(1); i <= 8; i++ {
		assert.NoError(t, p.Enqueue(evt(i)))
	}
	stats := p.Stats()
	assert.Equal(t, int64(4), stats.Dropped)

	var got []int64
	for {
		e, ok := p.Dequeue()
		if !ok {
			break
		}
		got = append(got, e.ArrivalTimestamp)
	}
	assert.Equal(t, []int64{5, 6, 7, 8}, got)
}

func TestCapacityOneSerializesProducers(t *testing.T) {
	p := NewPipeline(Config{Capacity: 1, Strategy: StrategyDrop, DropMode: DropNewest}, nil)
	assert.NoError(t, p.Enqueue(evt(1)))
	// Capacity 1 valid; second enqueue under DropNewest leaves slot 1 intact.
	assert.NoError(t, p.Enqueue(evt(2)))
	e, ok := p.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, int64(1), e.ArrivalTimestamp)
}

func TestDrainUpToRespectsBatchBound(t *testing.T) {
	p := NewPipeline(Config{Capacity: 16, Strategy: StrategyDrop}, nil)
	for i := int64(0); i < 10; i++ {
		assert.NoError(t, p.Enqueue(evt(i)))
	}
	batch := p.DrainUpTo(4)
	assert.Len(t, batch, 4)
	assert.Equal(t, 6, p.Len())
}

func TestLosslessDropNewestSurfacesSaturation(t *testing.T) {
	p := NewPipeline(Config{Capacity: 2, Strategy: StrategyDrop, DropMode: DropNewest, Lossless: true}, nil)
	assert.NoError(t, p.Enqueue(evt(1)))
	assert.NoError(t, p.Enqueue(evt(2)))
	err := p.Enqueue(evt(3))
	assert.Error(t, err)
}

func TestEventPoolReuse(t *testing.T) {
	pool := NewEventPool(2)
	e := pool.Get(10, []model.AttrValue{model.Int64Value(1)})
	assert.Equal(t, int64(10), e.ArrivalTimestamp)
	pool.Release(e)
	e2 := pool.Get(20, nil)
	assert.Equal(t, int64(20), e2.ArrivalTimestamp)
}
