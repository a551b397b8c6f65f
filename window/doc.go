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

// Package window implements bounded views over a stream. The length, time,
// externalTime and sliding windows emit rows flagged CURRENT on insertion
// and EXPIRED on eviction, so downstream operators can treat eviction as
// retraction; the batch windows (counting, tumbling, session) emit each
// closed batch as CURRENT rows and emit no EXPIRED rows.
//
// Kinds, created via CreateWindow from a types.WindowConfig:
//
//	length(N)                  per-event FIFO over the last N rows
//	lengthBatch(N) / counting  expire the whole buffer every Nth row
//	time(T)                    per-event retention over a trailing duration
//	timeBatch(T) / tumbling    fixed batches (boundary-aligned under EventTime)
//	sliding(size, slide)       overlapping batches every slide tick
//	session(gap)               close after gap of inactivity
//	externalTime(field, T)     time(T) keyed on an event attribute
//	externalTimeBatch(field,T) timeBatch(T) keyed on an event attribute
//
// Every kind implements the Window interface (Add/Start/Stop/Reset/
// Trigger/OutputChan/SetCallback) and shares one overflowSender for
// output-channel backpressure accounting. Kinds whose buffered contents
// can be checkpointed also implement Stateful (see holder.go).
//
// Only a tumbling window with TimeCharacteristic == EventTime advances on a
// Watermark fed by event-carried timestamps; every other window runs on a
// processing-time ticker, and externalTime windows compare the named
// attribute's timestamp against time.Now() when they evict. Session windows assume monotonic per-partition event time —
// no watermark-based reordering policy is applied to them.
package window
