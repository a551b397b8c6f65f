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

// Package types holds the shared value types the window and operator
// layers exchange: buffered rows with CURRENT/EXPIRED flags, window time
// slots, and the resolved window/performance configuration the (external)
// configuration layer hands the runtime.
package types

import "time"

// TimeCharacteristic selects whether a window advances on the system clock
// (ProcessingTime) or on event-carried timestamps (EventTime).
type TimeCharacteristic int

const (
	ProcessingTime TimeCharacteristic = iota
	EventTime
)

// WindowConfig is one window instance's fully resolved configuration. The
// runtime consumes it as-is; precedence merging happens upstream.
type WindowConfig struct {
	Type               string
	Params             []interface{} // positional window parameters, e.g. [size] or [size, slide]
	TsProp             string        // event attribute carrying event time; "" means processing time
	TimeUnit           time.Duration // unit of an integer TsProp value
	TimeCharacteristic TimeCharacteristic
	GroupByKeys        []string // grouping keys for keyed (counting) windows
	PerformanceConfig  PerformanceConfig
	Callback           func([]Row) // invoked per triggered batch; nil is allowed
}

// PerformanceConfig bounds a window's buffering and overflow behavior. The
// zero value selects built-in defaults; it must stay comparable so callers
// can detect "not configured" with an equality check.
type PerformanceConfig struct {
	BufferConfig   BufferConfig
	OverflowConfig OverflowConfig
}

// BufferConfig sizes the channels a stream's stages communicate over.
type BufferConfig struct {
	DataChannelSize   int
	ResultChannelSize int
	WindowOutputSize  int
}

// Overflow strategy names, selectable per stream.
const (
	OverflowStrategyDrop   = "drop"
	OverflowStrategyBlock  = "block"
	OverflowStrategyExpand = "expand"
)

// OverflowConfig selects what a producer does when an output buffer is
// full: drop the oldest pending batch (default), block up to BlockTimeout,
// or expand, which sends without waiting and counts a full channel as a
// drop; no output channel grows.
type OverflowConfig struct {
	Strategy     string
	BlockTimeout time.Duration
}

// DefaultPerformanceConfig returns balanced buffering defaults.
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		BufferConfig: BufferConfig{
			DataChannelSize:   1000,
			ResultChannelSize: 100,
			WindowOutputSize:  50,
		},
		OverflowConfig: OverflowConfig{
			Strategy:     OverflowStrategyDrop,
			BlockTimeout: 5 * time.Second,
		},
	}
}
