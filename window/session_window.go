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

var _ Window = (*SessionWindow)(nil)

// SessionWindow groups consecutive events separated by less than a gap
// duration and closes the session once that gap of inactivity elapses
// (session(gap)). Same ticker-driven close loop as tumbling_window.go,
// generalized from a fixed boundary to an inactivity gap checked at gap/2
// resolution.
type SessionWindow struct {
	config       types.WindowConfig
	gap          time.Duration
	mu           sync.Mutex
	callback     func([]types.Row)
	buffer       []types.Row
	lastActivity time.Time
	outputChan   chan []types.Row
	ctx          context.Context
	cancel       context.CancelFunc
	checker      *time.Ticker
	overflow     *overflowSender
	stopped      bool
}

// NewSessionWindow builds a session window from Params [gap].
func NewSessionWindow(config types.WindowConfig) (*SessionWindow, error) {
	if len(config.Params) == 0 {
		return nil, fmt.Errorf("session window requires a 'gap' parameter")
	}
	gap := cast.ToDuration(config.Params[0])
	if gap <= 0 {
		return nil, fmt.Errorf("session window gap must be positive, got: %v", config.Params[0])
	}

	bufferSize := 100
	if (config.PerformanceConfig != types.PerformanceConfig{}) {
		bufferSize = config.PerformanceConfig.BufferConfig.WindowOutputSize
		if bufferSize <= 0 {
			bufferSize = 100
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &SessionWindow{
		config:     config,
		gap:        gap,
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

func (sw *SessionWindow) Add(data interface{}) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	ts := GetTimestamp(data, sw.config.TsProp, sw.config.TimeUnit)
	sw.buffer = append(sw.buffer, types.Row{Data: data, Timestamp: ts, Flag: types.RowCurrent})
	sw.lastActivity = time.Now()
}

// Start runs a periodic checker, polling at half the gap duration, so an idle
// session closes between one and one and a half gaps after its last activity.
func (sw *SessionWindow) Start() {
	interval := sw.gap / 2
	if interval <= 0 {
		interval = time.Millisecond
	}
	sw.checker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-sw.checker.C:
				sw.checkTimeout()
			case <-sw.ctx.Done():
				return
			}
		}
	}()
}

func (sw *SessionWindow) checkTimeout() {
	sw.mu.Lock()
	idle := !sw.lastActivity.IsZero() && time.Since(sw.lastActivity) >= sw.gap
	sw.mu.Unlock()
	if idle {
		sw.flush()
	}
}

func (sw *SessionWindow) flush() {
	sw.mu.Lock()
	if len(sw.buffer) == 0 {
		sw.mu.Unlock()
		return
	}
	start := sw.buffer[0].Timestamp
	end := sw.buffer[len(sw.buffer)-1].Timestamp
	slot := types.NewTimeSlot(&start, &end)
	data := sw.buffer
	for i := range data {
		data[i].Slot = slot
	}
	sw.buffer = make([]types.Row, 0, 64)
	sw.lastActivity = time.Time{}
	sw.mu.Unlock()

	if sw.callback != nil {
		sw.callback(data)
	}
	sw.overflow.send(sw.outputChan, data, sw.ctx.Done())
}

func (sw *SessionWindow) Trigger() {
	sw.flush()
}

func (sw *SessionWindow) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()

	if sw.checker != nil {
		sw.checker.Stop()
	}
	sw.cancel()
}

func (sw *SessionWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.buffer = make([]types.Row, 0, 64)
	sw.lastActivity = time.Time{}
	sw.overflow = newOverflowSender(sw.config.PerformanceConfig.OverflowConfig)
}

func (sw *SessionWindow) OutputChan() <-chan []types.Row {
	return sw.outputChan
}

func (sw *SessionWindow) SetCallback(callback func([]types.Row)) {
	sw.mu.Lock()
	sw.callback = callback
	sw.mu.Unlock()
}

func (sw *SessionWindow) GetStats() map[string]int64 {
	return sw.overflow.stats(cap(sw.outputChan), len(sw.outputChan))
}
