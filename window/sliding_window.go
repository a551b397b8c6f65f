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

var _ Window = (*SlidingWindow)(nil)

// SlidingWindow re-evaluates a trailing interval of fixed length every slide
// tick, emitting the current contents of that interval as CURRENT rows and
// flagging rows that have fallen out of the interval as EXPIRED. Same
// ticker-driven trigger loop as tumbling_window.go, generalized to
// overlapping, non-aligned boundaries.
type SlidingWindow struct {
	config     types.WindowConfig
	size       time.Duration
	slide      time.Duration
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

// NewSlidingWindow builds a sliding window from Params [size, slide].
func NewSlidingWindow(config types.WindowConfig) (*SlidingWindow, error) {
	if len(config.Params) < 2 {
		return nil, fmt.Errorf("sliding window requires 'size' and 'slide' parameters")
	}
	size := cast.ToDuration(config.Params[0])
	slide := cast.ToDuration(config.Params[1])
	if size <= 0 {
		return nil, fmt.Errorf("sliding window size must be positive, got: %v", config.Params[0])
	}
	if slide <= 0 {
		return nil, fmt.Errorf("sliding window slide must be positive, got: %v", config.Params[1])
	}

	bufferSize := 100
	if (config.PerformanceConfig != types.PerformanceConfig{}) {
		bufferSize = config.PerformanceConfig.BufferConfig.WindowOutputSize
		if bufferSize <= 0 {
			bufferSize = 100
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &SlidingWindow{
		config:     config,
		size:       size,
		slide:      slide,
		buffer:     make([]types.Row, 0, 64),
		outputChan: make(chan []types.Row, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
		overflow:   newOverflowSender(config.PerformanceConfig.OverflowConfig),
	}
	if config.Callback != nil {
		sw.callback = config.Callback
	}
	return sw, nil
}

func (sw *SlidingWindow) Add(data interface{}) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	ts := GetTimestamp(data, sw.config.TsProp, sw.config.TimeUnit)
	sw.buffer = append(sw.buffer, types.Row{Data: data, Timestamp: ts, Flag: types.RowCurrent})
}

func (sw *SlidingWindow) Start() {
	sw.ticker = time.NewTicker(sw.slide)
	go func() {
		for {
			select {
			case <-sw.ticker.C:
				sw.flush()
			case <-sw.ctx.Done():
				return
			}
		}
	}()
}

// flush evicts rows older than the trailing window and emits the
// surviving rows as CURRENT plus the evicted ones as EXPIRED.
func (sw *SlidingWindow) flush() {
	now := time.Now()
	cutoff := now.Add(-sw.size)

	sw.mu.Lock()
	var kept, expired []types.Row
	for _, row := range sw.buffer {
		if row.Timestamp.Before(cutoff) {
			row.Flag = types.RowExpired
			expired = append(expired, row)
		} else {
			kept = append(kept, row)
		}
	}
	sw.buffer = kept
	if len(kept) == 0 && len(expired) == 0 {
		sw.mu.Unlock()
		return
	}
	start := cutoff
	slot := types.NewTimeSlot(&start, &now)
	out := make([]types.Row, 0, len(kept)+len(expired))
	for _, row := range kept {
		row.Slot = slot
		out = append(out, row)
	}
	out = append(out, expired...)
	sw.mu.Unlock()

	if sw.callback != nil {
		sw.callback(out)
	}
	sw.overflow.send(sw.outputChan, out, sw.ctx.Done())
}

func (sw *SlidingWindow) Trigger() {
	sw.flush()
}

func (sw *SlidingWindow) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()

	if sw.ticker != nil {
		sw.ticker.Stop()
	}
	sw.cancel()
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.buffer = make([]types.Row, 0, 64)
	sw.overflow = newOverflowSender(sw.config.PerformanceConfig.OverflowConfig)
}

func (sw *SlidingWindow) OutputChan() <-chan []types.Row {
	return sw.outputChan
}

func (sw *SlidingWindow) SetCallback(callback func([]types.Row)) {
	sw.mu.Lock()
	sw.callback = callback
	sw.mu.Unlock()
}

func (sw *SlidingWindow) GetStats() map[string]int64 {
	return sw.overflow.stats(cap(sw.outputChan), len(sw.outputChan))
}
