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

// Package junction implements stream fan-out: routing from a stream id to
// N subscribers, in either Sync (ordered,
// inline-delivery) or Async (per-subscriber throughput, Pipeline-backed)
// mode. Sync delivers inline on the producer goroutine; Async hands off
// through a per-subscriber pipeline.Pipeline.
package junction

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rulego/eventflux/logger"
	"github.com/rulego/eventflux/model"
	"github.com/rulego/eventflux/pipeline"
)

// Mode selects Sync or Async delivery.
type Mode int

const (
	Sync Mode = iota
	Async
)

// SubscriptionId identifies a registered receiver for Unsubscribe.
type SubscriptionId string

// Receiver is the callback a subscriber registers. Sync mode invokes it
// inline on the producer's goroutine; Async mode invokes it on the
// subscriber's own drain goroutine, fed from its private Pipeline.
type Receiver func(*model.Event) error

type subscriber struct {
	id       SubscriptionId
	receiver Receiver
	// async-mode only:
	pipe   *pipeline.Pipeline
	pool   *pipeline.EventPool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Junction fans a stream's events out to its subscribers.
type Junction struct {
	streamID string
	mode     Mode
	pipeCfg  pipeline.Config

	mu   sync.RWMutex
	subs map[SubscriptionId]*subscriber

	log logger.Logger

	eventsIn  int64
	eventsOut int64
}

// New builds a Junction for streamID in the given Mode. pipeCfg is only
// consulted in Async mode, one Pipeline instance being created per
// subscriber so a slow subscriber cannot stall the others; two
// subscribers may observe events at different progress points.
func New(streamID string, mode Mode, pipeCfg pipeline.Config) *Junction {
	return &Junction{
		streamID: streamID,
		mode:     mode,
		pipeCfg:  pipeCfg,
		subs:     make(map[SubscriptionId]*subscriber),
		log:      logger.Named("junction"),
	}
}

// Subscribe registers a receiver and returns its SubscriptionId.
func (j *Junction) Subscribe(receiver Receiver) SubscriptionId {
	id := SubscriptionId(uuid.NewString())
	sub := &subscriber{id: id, receiver: receiver}

	if j.mode == Async {
		sub.pool = pipeline.NewEventPool(j.pipeCfg.Capacity)
		sub.pipe = pipeline.NewPipeline(j.pipeCfg, sub.pool)
		sub.stopCh = make(chan struct{})
		sub.wg.Add(1)
		go j.drainLoop(sub)
	}

	j.mu.Lock()
	j.subs[id] = sub
	j.mu.Unlock()
	return id
}

// Unsubscribe removes a subscriber, stopping its drain goroutine if async.
func (j *Junction) Unsubscribe(id SubscriptionId) {
	j.mu.Lock()
	sub, ok := j.subs[id]
	if ok {
		delete(j.subs, id)
	}
	j.mu.Unlock()
	if ok && sub.stopCh != nil {
		close(sub.stopCh)
		sub.wg.Wait()
	}
}

// SendEvent delivers a single event to every subscriber. In Sync mode it
// returns the first subscriber error encountered (delivery order is the
// producer's enqueue order and every subscriber observes the same total
// order). In Async mode delivery is hand-off only; per-
// subscriber failures surface later via that subscriber's own error path
// and never block SendEvent.
func (j *Junction) SendEvent(e *model.Event) error {
	atomic.AddInt64(&j.eventsIn, 1)
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.subs) == 0 {
		return nil
	}
	e.Retain(int32(len(j.subs)))

	if j.mode == Sync {
		for _, sub := range j.subs {
			atomic.AddInt64(&j.eventsOut, 1)
			if err := sub.receiver(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, sub := range j.subs {
		if err := sub.pipe.Enqueue(e); err != nil {
			j.log.Warn("async subscriber %s saturated on stream %s: %v", sub.id, j.streamID, err)
		}
	}
	return nil
}

// SendBatch delivers a slice of events in order.
func (j *Junction) SendBatch(events []*model.Event) error {
	for _, e := range events {
		if err := j.SendEvent(e); err != nil {
			return err
		}
	}
	return nil
}

func (j *Junction) drainLoop(sub *subscriber) {
	defer sub.wg.Done()
	for {
		select {
		case <-sub.stopCh:
			return
		default:
		}
		batch := sub.pipe.DrainUpTo(0)
		if len(batch) == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		for _, e := range batch {
			atomic.AddInt64(&j.eventsOut, 1)
			if err := sub.receiver(e); err != nil {
				j.log.Error("async subscriber %s on stream %s: %v", sub.id, j.streamID, err)
			}
			sub.pool.Release(e)
		}
	}
}

// SubscriberCount reports the current fan-out width.
func (j *Junction) SubscriberCount() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.subs)
}

// Stats returns simple in/out counters for the metrics surface.
func (j *Junction) Stats() (in, out int64) {
	return atomic.LoadInt64(&j.eventsIn), atomic.LoadInt64(&j.eventsOut)
}

// Mode reports whether the Junction is Sync or Async.
func (j *Junction) Mode() Mode { return j.mode }

// StreamID returns the id of the stream this Junction fans out.
func (j *Junction) StreamID() string { return j.streamID }

// Close unsubscribes and stops every subscriber's drain goroutine.
func (j *Junction) Close() {
	j.mu.Lock()
	subs := j.subs
	j.subs = make(map[SubscriptionId]*subscriber)
	j.mu.Unlock()
	for _, sub := range subs {
		if sub.stopCh != nil {
			close(sub.stopCh)
			sub.wg.Wait()
		}
	}
}
