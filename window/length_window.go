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

	"github.com/rulego/eventflux/types"
	"github.com/rulego/eventflux/utils/cast"
)

var _ Window = (*LengthWindow)(nil)

// LengthWindow is a fixed-capacity FIFO: every insertion emits that row as
// CURRENT immediately, and once the buffer exceeds N, the oldest row is
// emitted again as EXPIRED (length(N), per-event emission). Same
// CURRENT/EXPIRED split as sliding_window.go, specialized to a count bound
// instead of a time bound.
type LengthWindow struct {
	config     types.WindowConfig
	capacity   int
	mu         sync.Mutex
	callback   func([]types.Row)
	buffer     []types.Row
	outputChan chan []types.Row
	ctx        context.Context
	cancel     context.CancelFunc
	overflow   *overflowSender
	stopped    bool
}

// NewLengthWindow builds a length window from Params [N].
func NewLengthWindow(config types.WindowConfig) (*LengthWindow, error) {
	if len(config.Params) == 0 {
		return nil, fmt.Errorf("length window requires a 'count' parameter")
	}
	n := cast.ToInt(config.Params[0])
	if n <= 0 {
		return nil, fmt.Errorf("length window size must be positive, got: %v", config.Params[0])
	}

	bufferSize := 100
	if (config.PerformanceConfig != types.PerformanceConfig{}) {
		bufferSize = config.PerformanceConfig.BufferConfig.WindowOutputSize
		if bufferSize <= 0 {
			bufferSize = 100
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	lw := &LengthWindow{
		config:     config,
		capacity:   n,
		buffer:     make([]types.Row, 0, n+1),
		outputChan: make(chan []types.Row, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
		overflow:   newOverflowSender(config.PerformanceConfig.OverflowConfig),
	}
	if config.Callback != nil {
		lw.callback = config.Callback
	}
	return lw, nil
}

func (lw *LengthWindow) Add(data interface{}) {
	lw.mu.Lock()
	if lw.stopped {
		lw.mu.Unlock()
		return
	}
	ts := GetTimestamp(data, lw.config.TsProp, lw.config.TimeUnit)
	current := types.Row{Data: data, Timestamp: ts, Flag: types.RowCurrent}
	lw.buffer = append(lw.buffer, current)

	var expired *types.Row
	if len(lw.buffer) > lw.capacity {
		evicted := lw.buffer[0]
		evicted.Flag = types.RowExpired
		lw.buffer = lw.buffer[1:]
		expired = &evicted
	}
	lw.mu.Unlock()

	if lw.callback != nil {
		lw.callback([]types.Row{current})
	}
	lw.overflow.send(lw.outputChan, []types.Row{current}, lw.ctx.Done())
	if expired != nil {
		if lw.callback != nil {
			lw.callback([]types.Row{*expired})
		}
		lw.overflow.send(lw.outputChan, []types.Row{*expired}, lw.ctx.Done())
	}
}

// Start is a no-op: length windows evict synchronously on Add, with no
// background timer to drive.
func (lw *LengthWindow) Start() {}

func (lw *LengthWindow) Trigger() {}

func (lw *LengthWindow) Stop() {
	lw.mu.Lock()
	if lw.stopped {
		lw.mu.Unlock()
		return
	}
	lw.stopped = true
	lw.mu.Unlock()
	lw.cancel()
}

func (lw *LengthWindow) Reset() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buffer = make([]types.Row, 0, lw.capacity+1)
	lw.overflow = newOverflowSender(lw.config.PerformanceConfig.OverflowConfig)
}

func (lw *LengthWindow) OutputChan() <-chan []types.Row {
	return lw.outputChan
}

func (lw *LengthWindow) SetCallback(callback func([]types.Row)) {
	lw.mu.Lock()
	lw.callback = callback
	lw.mu.Unlock()
}

func (lw *LengthWindow) GetStats() map[string]int64 {
	return lw.overflow.stats(cap(lw.outputChan), len(lw.outputChan))
}
