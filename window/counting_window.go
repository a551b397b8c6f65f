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

package window

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rulego/eventflux/types"
	"github.com/rulego/eventflux/utils/cast"
)

var _ Window = (*CountingWindow)(nil)

// CountingWindow batches rows per group key and expires the whole batch
// every Nth row of that key (lengthBatch(N)). Rows past the threshold stay
// buffered and seed the key's next batch. Count-driven only: event time is
// rejected at construction since no timestamp ever triggers it.
type CountingWindow struct {
	config      types.WindowConfig
	threshold   int
	mu          sync.Mutex
	callback    func([]types.Row)
	keyedBuffer map[string][]types.Row
	keyedCount  map[string]int
	outputChan  chan []types.Row
	triggerChan chan types.Row
	ctx         context.Context
	cancel      context.CancelFunc
	overflow    *overflowSender
	stopped     bool
}

// NewCountingWindow builds a counting window from Params [N].
func NewCountingWindow(config types.WindowConfig) (*CountingWindow, error) {
	if config.TimeCharacteristic == types.EventTime {
		return nil, fmt.Errorf("counting window does not support event time, use processing time instead")
	}
	if len(config.Params) == 0 {
		return nil, fmt.Errorf("counting window requires a 'count' parameter")
	}
	threshold := cast.ToInt(config.Params[0])
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be a positive integer, got: %v", config.Params[0])
	}

	// Counting windows trigger often with small batches; size the output
	// buffer to a fraction of the configured window output size.
	bufferSize := 100
	if (config.PerformanceConfig != types.PerformanceConfig{}) {
		bufferSize = config.PerformanceConfig.BufferConfig.WindowOutputSize / 10
		if bufferSize < 10 {
			bufferSize = 10
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw := &CountingWindow{
		config:      config,
		threshold:   threshold,
		keyedBuffer: make(map[string][]types.Row),
		keyedCount:  make(map[string]int),
		outputChan:  make(chan []types.Row, bufferSize),
		triggerChan: make(chan types.Row, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
		overflow:    newOverflowSender(config.PerformanceConfig.OverflowConfig),
	}
	if config.Callback != nil {
		cw.callback = config.Callback
	}
	return cw, nil
}

// Add hands a row to the window's own goroutine; buffering and triggering
// happen there so producers never contend on the keyed buffers.
func (cw *CountingWindow) Add(data interface{}) {
	cw.mu.Lock()
	stopped := cw.stopped
	cw.mu.Unlock()
	if stopped {
		return
	}

	row := types.Row{
		Data:      data,
		Timestamp: GetTimestamp(data, cw.config.TsProp, cw.config.TimeUnit),
	}
	select {
	case cw.triggerChan <- row:
	case <-cw.ctx.Done():
	}
}

func (cw *CountingWindow) Start() {
	go func() {
		defer cw.cancel()
		for {
			select {
			case row, ok := <-cw.triggerChan:
				if !ok {
					return
				}
				cw.ingest(row)
			case <-cw.ctx.Done():
				return
			}
		}
	}()
}

// ingest buckets one row by group key and fires the key's batch when it
// reaches the threshold, carrying any excess rows over to the next batch.
func (cw *CountingWindow) ingest(row types.Row) {
	key := cw.getKey(row.Data)

	cw.mu.Lock()
	buf := append(cw.keyedBuffer[key], row)
	cw.keyedBuffer[key] = buf
	cw.keyedCount[key] = len(buf)
	if len(buf) < cw.threshold {
		cw.mu.Unlock()
		return
	}

	slot := cw.createSlot(buf[:cw.threshold])
	batch := make([]types.Row, cw.threshold)
	copy(batch, buf[:cw.threshold])
	for i := range batch {
		batch[i].Slot = slot
	}

	rest := buf[cw.threshold:]
	carry := make([]types.Row, len(rest), cw.threshold)
	copy(carry, rest)
	cw.keyedBuffer[key] = carry
	cw.keyedCount[key] = len(carry)
	cw.mu.Unlock()

	if cw.callback != nil {
		cw.callback(batch)
	}
	cw.overflow.send(cw.outputChan, batch, cw.ctx.Done())
}

// Trigger is a no-op: batches fire from ingest as each key's count lands
// on the threshold, never from an external tick.
func (cw *CountingWindow) Trigger() {}

func (cw *CountingWindow) Stop() {
	cw.mu.Lock()
	alreadyStopped := cw.stopped
	cw.stopped = true
	cw.mu.Unlock()

	if !alreadyStopped {
		close(cw.triggerChan)
		cw.cancel()
	}
}

func (cw *CountingWindow) Reset() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.keyedBuffer = make(map[string][]types.Row)
	cw.keyedCount = make(map[string]int)
	cw.overflow = newOverflowSender(cw.config.PerformanceConfig.OverflowConfig)
}

func (cw *CountingWindow) GetStats() map[string]int64 {
	return cw.overflow.stats(cap(cw.outputChan), len(cw.outputChan))
}

func (cw *CountingWindow) OutputChan() <-chan []types.Row {
	return cw.outputChan
}

// createSlot stamps a batch with the [first, last] arrival interval of the
// rows that filled it.
func (cw *CountingWindow) createSlot(batch []types.Row) *types.TimeSlot {
	if len(batch) == 0 {
		return nil
	}
	start := batch[0].Timestamp
	end := batch[len(batch)-1].Timestamp
	return types.NewTimeSlot(&start, &end)
}

// getKey derives the row's group key from the configured GroupByKeys; rows
// with no grouping share one global bucket.
func (cw *CountingWindow) getKey(data interface{}) string {
	keys := cw.config.GroupByKeys
	if len(keys) == 0 {
		return "__global__"
	}
	v := reflect.ValueOf(data)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var part string
		switch v.Kind() {
		case reflect.Map:
			if v.Type().Key().Kind() == reflect.String {
				if mv := v.MapIndex(reflect.ValueOf(k)); mv.IsValid() {
					part = cast.ToString(mv.Interface())
				}
			}
		case reflect.Struct:
			if f := v.FieldByName(k); f.IsValid() {
				part = cast.ToString(f.Interface())
			}
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "|")
}
