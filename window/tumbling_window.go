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

var _ Window = (*TumblingWindow)(nil)

// defaultMaxOutOfOrderness/defaultWatermarkInterval/defaultIdleTimeout bound
// how far an EventTime window waits for late data before closing a boundary.
// Windows don't expose these as Params, so every EventTime window shares
// these defaults.
const (
	defaultMaxOutOfOrderness = 0
	defaultWatermarkInterval = 100 * time.Millisecond
	defaultIdleTimeout       = 0
)

// TumblingWindow batches events into fixed, non-overlapping intervals and
// emits the batch when the interval elapses (timeBatch; tumbling is its
// alias). Under EventTime the intervals are aligned to multiples of the
// window size; in processing time the first interval starts at the first
// row's timestamp and the emit ticker runs from Start, so those boundaries
// are not aligned. Same
// buffering/overflow structure as counting_window.go, generalized from a
// count threshold to a time boundary.
type TumblingWindow struct {
	config     types.WindowConfig
	size       time.Duration
	mu         sync.Mutex
	callback   func([]types.Row)
	buffer     []types.Row
	outputChan chan []types.Row
	ctx        context.Context
	cancel     context.CancelFunc
	ticker     *time.Ticker
	overflow   *overflowSender
	stopped    bool
	watermark  *Watermark
	windowEnd  time.Time
}

func NewTumblingWindow(config types.WindowConfig) (*TumblingWindow, error) {
	if len(config.Params) == 0 {
		return nil, fmt.Errorf("tumbling window requires a 'size' parameter")
	}
	size := cast.ToDuration(config.Params[0])
	if size <= 0 {
		return nil, fmt.Errorf("tumbling window size must be positive, got: %v", config.Params[0])
	}

	bufferSize := 100
	if (config.PerformanceConfig != types.PerformanceConfig{}) {
		bufferSize = config.PerformanceConfig.BufferConfig.WindowOutputSize
		if bufferSize <= 0 {
			bufferSize = 100
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tw := &TumblingWindow{
		config:     config,
		size:       size,
		buffer:     make([]types.Row, 0, 64),
		outputChan: make(chan []types.Row, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
		overflow:   newOverflowSender(config.PerformanceConfig.OverflowConfig),
	}
	if config.Callback != nil {
		tw.callback = config.Callback
	}
	if config.TimeCharacteristic == types.EventTime {
		tw.watermark = NewWatermark(defaultMaxOutOfOrderness, defaultWatermarkInterval, defaultIdleTimeout)
	}
	return tw, nil
}

func (tw *TumblingWindow) Add(data interface{}) {
	tw.mu.Lock()
	if tw.stopped {
		tw.mu.Unlock()
		return
	}
	ts := GetTimestamp(data, tw.config.TsProp, tw.config.TimeUnit)
	if tw.windowEnd.IsZero() {
		start := ts
		if tw.watermark != nil {
			start = alignWindowStart(ts, tw.size)
		}
		tw.windowEnd = start.Add(tw.size)
	}
	tw.buffer = append(tw.buffer, types.Row{Data: data, Timestamp: ts, Flag: types.RowCurrent})
	var due bool
	if tw.watermark == nil {
		due = time.Now().After(tw.windowEnd)
	} else {
		due = !ts.Before(tw.windowEnd)
	}
	tw.mu.Unlock()

	if tw.watermark != nil {
		tw.watermark.UpdateEventTime(ts)
	}
	if due {
		tw.flush()
	}
}

// Start begins the processing-time ticker (or, for EventTime windows, the
// watermark poll loop) that fires window boundaries.
func (tw *TumblingWindow) Start() {
	if tw.watermark != nil {
		go tw.runEventTime()
		return
	}
	tw.ticker = time.NewTicker(tw.size)
	go func() {
		for {
			select {
			case <-tw.ticker.C:
				tw.flush()
			case <-tw.ctx.Done():
				return
			}
		}
	}()
}

func (tw *TumblingWindow) runEventTime() {
	for {
		select {
		case <-tw.watermark.WatermarkChan():
			tw.mu.Lock()
			due := !tw.windowEnd.IsZero() && !tw.watermark.GetCurrentWatermark().Before(tw.windowEnd)
			tw.mu.Unlock()
			if due {
				tw.flush()
			}
		case <-tw.ctx.Done():
			return
		}
	}
}

func (tw *TumblingWindow) flush() {
	tw.mu.Lock()
	if len(tw.buffer) == 0 {
		if !tw.windowEnd.IsZero() {
			tw.windowEnd = tw.windowEnd.Add(tw.size)
		}
		tw.mu.Unlock()
		return
	}
	start := tw.windowEnd.Add(-tw.size)
	end := tw.windowEnd
	slot := types.NewTimeSlot(&start, &end)
	data := tw.buffer
	for i := range data {
		data[i].Slot = slot
	}
	tw.buffer = make([]types.Row, 0, 64)
	tw.windowEnd = tw.windowEnd.Add(tw.size)
	tw.mu.Unlock()

	if tw.callback != nil {
		tw.callback(data)
	}
	tw.overflow.send(tw.outputChan, data, tw.ctx.Done())
}

func (tw *TumblingWindow) Trigger() {
	tw.flush()
}

func (tw *TumblingWindow) Stop() {
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
	if tw.watermark != nil {
		tw.watermark.Stop()
	}
	tw.cancel()
}

func (tw *TumblingWindow) Reset() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.buffer = make([]types.Row, 0, 64)
	tw.windowEnd = time.Time{}
	tw.overflow = newOverflowSender(tw.config.PerformanceConfig.OverflowConfig)
}

func (tw *TumblingWindow) OutputChan() <-chan []types.Row {
	return tw.outputChan
}

func (tw *TumblingWindow) SetCallback(callback func([]types.Row)) {
	tw.mu.Lock()
	tw.callback = callback
	tw.mu.Unlock()
}

func (tw *TumblingWindow) GetStats() map[string]int64 {
	return tw.overflow.stats(cap(tw.outputChan), len(tw.outputChan))
}
