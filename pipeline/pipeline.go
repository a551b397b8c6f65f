/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pipeline implements the event pipeline between producers and
// consumers: a bounded, power-of-two, lock-free MPMC ring buffer with
// configurable backpressure and an object pool so the hot path performs no
// heap allocation. Backpressure is one of Drop(newest|oldest), Block, or
// ExponentialBackoff, selected per stream.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/model"
)

// Strategy selects the producer-side policy when the buffer is full.
type Strategy int

const (
	// StrategyDrop discards events under overflow; DropNewest/DropOldest
	// selects which end is sacrificed.
	StrategyDrop Strategy = iota
	// StrategyBlock parks the producer until space is available.
	StrategyBlock
	// StrategyExponentialBackoff retries with bounded backoff, surfacing
	// ferrors.ErrSaturated after Config.MaxAttempts failed attempts.
	StrategyExponentialBackoff
)

// DropMode selects which end of the buffer a Drop strategy sacrifices.
type DropMode int

const (
	DropOldest DropMode = iota
	DropNewest
)

// Config configures one Pipeline instance.
type Config struct {
	// Capacity must be a power of two; NewPipeline rounds up if it isn't.
	Capacity int
	Strategy Strategy
	DropMode DropMode
	// BatchSize bounds how many events DrainUpTo will hand a consumer per
	// wake.
	BatchSize int
	// BlockTimeout, if >0, bounds how long StrategyBlock parks before
	// giving up and surfacing ferrors.ErrSaturated (0 = block forever).
	BlockTimeout time.Duration
	// MaxAttempts bounds StrategyExponentialBackoff retries before
	// surfacing ferrors.ErrSaturated.
	MaxAttempts int
	// BaseBackoff is the first retry delay for StrategyExponentialBackoff;
	// it doubles each attempt.
	BaseBackoff time.Duration
	// Lossless marks enqueue failure as fatal rather than a metric-only
	// drop, for streams that declare lossless semantics.
	Lossless bool
}

// DefaultConfig returns sane defaults: capacity 1024, Drop(oldest), batch 32.
func DefaultConfig() Config {
	return Config{
		Capacity:    1024,
		Strategy:    StrategyDrop,
		DropMode:    DropOldest,
		BatchSize:   32,
		MaxAttempts: 5,
		BaseBackoff: time.Millisecond,
	}
}

// Metrics are the pipeline's counters/gauges, read with atomic loads;
// Pipeline.Stats() returns a point-in-time copy.
type Metrics struct {
	Enqueued      int64
	Dropped       int64
	Dequeued      int64
	HighWatermark int64
}

// Pipeline is a bounded MPMC ring buffer of *model.Event with an attached
// free-list object pool. Capacity is rounded up to a power of two so index
// arithmetic can use a bitmask instead of modulo.
type Pipeline struct {
	mask int64
	buf  []atomic.Pointer[model.Event]

	head int64 // next slot a consumer claims (atomic)
	tail int64 // next slot a producer claims (atomic)

	cfg Config

	pool *EventPool

	metrics Metrics

	notEmpty chan struct{} // best-effort wakeup for parked consumers
	notFull  chan struct{} // best-effort wakeup for parked producers

	closed int32
}

func nextPow2(n int) int {
	if n < 1 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// NewPipeline builds a Pipeline per cfg, backed by pool for container reuse.
func NewPipeline(cfg Config, pool *EventPool) *Pipeline {
	cap := nextPow2(cfg.Capacity)
	if pool == nil {
		pool = NewEventPool(cap)
	}
	p := &Pipeline{
		mask:     int64(cap - 1),
		buf:      make([]atomic.Pointer[model.Event], cap),
		cfg:      cfg,
		pool:     pool,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
	return p
}

func (p *Pipeline) capacity() int64 { return p.mask + 1 }

func (p *Pipeline) size() int64 {
	return atomic.LoadInt64(&p.tail) - atomic.LoadInt64(&p.head)
}

func (p *Pipeline) wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Enqueue adds a single event per the configured backpressure strategy.
// Returns ferrors.ErrSaturated if Drop/ExponentialBackoff exhausts its
// budget; the caller (source adapter) decides whether that is fatal based
// on the stream's lossless declaration.
func (p *Pipeline) Enqueue(e *model.Event) error {
	switch p.cfg.Strategy {
	case StrategyBlock:
		return p.enqueueBlock(e)
	case StrategyExponentialBackoff:
		return p.enqueueBackoff(e)
	default:
		return p.enqueueDrop(e)
	}
}

// EnqueueBatch adds a slice of events, returning the count actually
// admitted (less than len(events) only under Drop backpressure).
func (p *Pipeline) EnqueueBatch(events []*model.Event) (int, error) {
	admitted := 0
	for _, e := range events {
		if err := p.Enqueue(e); err != nil {
			return admitted, err
		}
		admitted++
	}
	return admitted, nil
}

func (p *Pipeline) tryPush(e *model.Event) bool {
	for {
		tail := atomic.LoadInt64(&p.tail)
		head := atomic.LoadInt64(&p.head)
		if tail-head >= p.capacity() {
			return false
		}
		if atomic.CompareAndSwapInt64(&p.tail, tail, tail+1) {
			slot := tail & p.mask
			p.buf[slot].Store(e)
			if w := tail - head + 1; w > atomic.LoadInt64(&p.metrics.HighWatermark) {
				atomic.StoreInt64(&p.metrics.HighWatermark, w)
			}
			atomic.AddInt64(&p.metrics.Enqueued, 1)
			p.wake(p.notEmpty)
			return true
		}
	}
}

// dropOldestAndPush evicts events from the head until there is room, then
// pushes e at the tail, used by Drop(oldest). Each eviction claims the head
// slot with the same CAS a Dequeue uses and counts as one drop.
func (p *Pipeline) dropOldestAndPush(e *model.Event) {
	for !p.tryPush(e) {
		head := atomic.LoadInt64(&p.head)
		if head >= atomic.LoadInt64(&p.tail) {
			continue
		}
		if atomic.CompareAndSwapInt64(&p.head, head, head+1) {
			if old := p.buf[head&p.mask].Swap(nil); old != nil {
				p.pool.release(old)
			}
			atomic.AddInt64(&p.metrics.Dropped, 1)
		}
	}
}

func (p *Pipeline) enqueueDrop(e *model.Event) error {
	if p.tryPush(e) {
		return nil
	}
	if p.cfg.DropMode == DropOldest {
		p.dropOldestAndPush(e)
		return nil
	}
	// DropNewest: the arriving event itself is discarded.
	atomic.AddInt64(&p.metrics.Dropped, 1)
	if p.cfg.Lossless {
		return ferrors.Wrap(ferrors.KindSaturation, "pipeline", "lossless stream dropped an event", ferrors.ErrSaturated)
	}
	return nil
}

func (p *Pipeline) enqueueBlock(e *model.Event) error {
	deadline := time.Time{}
	if p.cfg.BlockTimeout > 0 {
		deadline = time.Now().Add(p.cfg.BlockTimeout)
	}
	for {
		if p.tryPush(e) {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ferrors.ErrSaturated
		}
		select {
		case <-p.notFull:
		case <-time.After(time.Millisecond):
		}
	}
}

func (p *Pipeline) enqueueBackoff(e *model.Event) error {
	backoff := p.cfg.BaseBackoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	attempts := p.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		if p.tryPush(e) {
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	atomic.AddInt64(&p.metrics.Dropped, 1)
	return ferrors.Wrap(ferrors.KindSaturation, "pipeline", "exponential backoff exhausted", ferrors.ErrSaturated)
}

// Dequeue removes and returns one event, or (nil,false) if empty. The
// consumer side never fails.
func (p *Pipeline) Dequeue() (*model.Event, bool) {
	for {
		head := atomic.LoadInt64(&p.head)
		tail := atomic.LoadInt64(&p.tail)
		if head >= tail {
			return nil, false
		}
		if atomic.CompareAndSwapInt64(&p.head, head, head+1) {
			slot := head & p.mask
			e := p.buf[slot].Swap(nil)
			atomic.AddInt64(&p.metrics.Dequeued, 1)
			p.wake(p.notFull)
			return e, true
		}
	}
}

// DrainUpTo removes up to b events in FIFO order. b <= 0 means
// Config.BatchSize, or the pipeline's capacity when BatchSize is unset.
func (p *Pipeline) DrainUpTo(b int) []*model.Event {
	if b <= 0 {
		b = p.cfg.BatchSize
	}
	if b <= 0 {
		b = int(p.capacity())
	}
	out := make([]*model.Event, 0, b)
	for i := 0; i < b; i++ {
		e, ok := p.Dequeue()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// Len reports the current occupancy.
func (p *Pipeline) Len() int { return int(p.size()) }

// Stats returns a point-in-time snapshot of the pipeline's metrics.
func (p *Pipeline) Stats() Metrics {
	return Metrics{
		Enqueued:      atomic.LoadInt64(&p.metrics.Enqueued),
		Dropped:       atomic.LoadInt64(&p.metrics.Dropped),
		Dequeued:      atomic.LoadInt64(&p.metrics.Dequeued),
		HighWatermark: atomic.LoadInt64(&p.metrics.HighWatermark),
	}
}

// Utilization returns current occupancy as a 0..1 fraction of capacity.
func (p *Pipeline) Utilization() float64 {
	return float64(p.size()) / float64(p.capacity())
}

// EventPool is a free-list of *model.Event containers, reused across
// enqueue/dequeue cycles so the hot path allocates no new Event on a steady
// stream of same-shaped payloads.
type EventPool struct {
	mu   sync.Mutex
	free []*model.Event
}

// NewEventPool preallocates n empty events.
func NewEventPool(n int) *EventPool {
	pool := &EventPool{free: make([]*model.Event, 0, n)}
	for i := 0; i < n; i++ {
		pool.free = append(pool.free, &model.Event{})
	}
	return pool
}

// Get returns a recycled container, or a fresh one if the free-list is
// empty, and initializes it with the given arrival timestamp and payload.
func (ep *EventPool) Get(arrivalMs int64, payload []model.AttrValue) *model.Event {
	ep.mu.Lock()
	n := len(ep.free)
	var e *model.Event
	if n > 0 {
		e = ep.free[n-1]
		ep.free = ep.free[:n-1]
	}
	ep.mu.Unlock()
	if e == nil {
		e = &model.Event{}
	}
	e.ArrivalTimestamp = arrivalMs
	e.Payload = payload
	e.EventTimestamp = 0
	e.HasEventTime = false
	e.Retain(1)
	return e
}

// release returns e to the free-list once its refcount reaches zero; called
// by Pipeline when evicting/dequeuing. It is also exposed as Release for
// subscribers that finish consuming e through other paths (e.g. a Junction
// subscriber acknowledging delivery).
func (ep *EventPool) release(e *model.Event) {
	if e == nil {
		return
	}
	e.Payload = nil
	ep.mu.Lock()
	ep.free = append(ep.free, e)
	ep.mu.Unlock()
}

// Release decrements e's subscriber refcount and, once zero, returns it to
// the pool's free-list.
func (ep *EventPool) Release(e *model.Event) {
	if e != nil && e.Release() {
		ep.release(e)
	}
}
