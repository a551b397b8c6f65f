/*
 * Copyright 2024 The RuleGo Authors.
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

package window

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rulego/eventflux/types"
	"github.com/rulego/eventflux/utils/cast"
)

var _ Window = (*TimeWindow)(nil)

// timeWindowPollDivisor bounds how often a TimeWindow re-checks its buffer
// for events that have aged past their retention. A finer divisor tracks
// expiry more precisely at the cost of more wakeups.
const timeWindowPollDivisor = 10

// TimeWindow retains events for a fixed duration, emitting each row as
// CURRENT on insertion and the same row again as EXPIRED once it ages past
// that duration (time(T), per-event emission). When config.TsProp
// is set the named event attribute supplies each row's timestamp, but
// eviction still compares it against processing time (time.Now()), so
// externalTime(field, T) does not run on an event-time clock.
// Same eviction loop as sliding_window.go, specialized to per-event
// instead of batch output.
type TimeWindow struct {
	config     types.WindowConfig
	retention  time.Duration
	mu         sync.Mutex
	callback   func([]types.Row)
	buffer     []types.Row
	outputChan chan []types.Row
	ctx        context.Context
	cancel     context.CancelFunc
	ticker     *time.Ticker
	overflow   *overflowSender
	stopped    bool
}

// NewTimeWindow builds a time window from Params [T].
func NewTimeWindow(config types.WindowConfig) (*TimeWindow, error) {
	if len(config.Params) == 0 {
		return nil, fmt.Errorf("time window requires a 'duration' parameter")
	}
	retention := cast.ToDuration(config.Params[0])
	if retention <= 0 {
		return nil, fmt.Errorf("time window duration must be positive, got: %v", config.Params[0])
	}

	bufferSize := 100
	if (config.PerformanceConfig != types.PerformanceConfig{}) {
		bufferSize = config.PerformanceConfig.BufferConfig.WindowOutputSize
		if bufferSize <= 0 {
			bufferSize = 100
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tw := &TimeWindow{
		config:     config,
		retention:  retention,
		buffer:     make([]types.Row, 0, 64),
		outputChan: make(chan []types.Row, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
		overflow:   newOverflowSender(config.PerformanceConfig.OverflowConfig),
	}
	if config.Callback != nil {
		tw.callback = config.Callback
	}
	return tw, nil
}

func (tw *TimeWindow) Add(data interface{}) {
	tw.mu.Lock()
	if tw.stopped {
		tw.mu.Unlock()
		return
	}
	ts := GetTimestamp(data, tw.config.TsProp, tw.config.TimeUnit)
	current := types.Row{Data: data, Timestamp: ts, Flag: types.RowCurrent}
	tw.buffer = append(tw.buffer, current)
	tw.mu.Unlock()

	if tw.callback != nil {
		tw.callback([]types.Row{current})
	}
	tw.overflow.send(tw.outputChan, []types.Row{current}, tw.ctx.Done())
}

func (tw *TimeWindow) Start() {
	interval := tw.retention / timeWindowPollDivisor
	if interval <= 0 {
		interval = time.Millisecond
	}
	tw.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-tw.ticker.C:
				tw.expireOld()
			case <-tw.ctx.Done():
				return
			}
		}
	}()
}

func (tw *TimeWindow) expireOld() {
	cutoff := time.Now().Add(-tw.retention)

	tw.mu.Lock()
	i := 0
	for i < len(tw.buffer) && tw.buffer[i].Timestamp.Before(cutoff) {
		i++
	}
	expired := append([]types.Row(nil), tw.buffer[:i]...)
	tw.buffer = tw.buffer[i:]
	tw.mu.Unlock()

	for idx := range expired {
		row := expired[idx]
		row.Flag = types.RowExpired
		if tw.callback != nil {
			tw.callback([]types.Row{row})
		}
		tw.overflow.send(tw.outputChan, []types.Row{row}, tw.ctx.Done())
	}
}

func (tw *TimeWindow) Trigger() {
	tw.expireOld()
}

func (tw *TimeWindow) Stop() {
	tw.mu.Lock()
	if tw.stopped {
		tw.mu.Unlock()
		return
	}
	tw.stopped = true
	tw.mu.Unlock()

	if tw.ticker != nil {
		tw.ticker.Stop()
	}
	tw.cancel()
}

func (tw *TimeWindow) Reset() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.buffer = make([]types.Row, 0, 64)
	tw.overflow = newOverflowSender(tw.config.PerformanceConfig.OverflowConfig)
}

func (tw *TimeWindow) OutputChan() <-chan []types.Row {
	return tw.outputChan
}

func (tw *TimeWindow) SetCallback(callback func([]types.Row)) {
	tw.mu.Lock()
	tw.callback = callback
	tw.mu.Unlock()
}

func (tw *TimeWindow) GetStats() map[string]int64 {
	return tw.overflow.stats(cap(tw.outputChan), len(tw.outputChan))
}
