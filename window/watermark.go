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
	"sync"
	"time"

	"github.com/rulego/eventflux/utils/timex"
)

// Watermark tracks event-time progress for a window: no event older than
// the current watermark (max event time minus the allowed out-of-orderness)
// is expected anymore, so a window whose end the watermark has passed may
// close. With an idle timeout configured, the watermark keeps advancing on
// processing time when the source goes quiet, so open windows still close.
type Watermark struct {
	mu                sync.RWMutex
	current           time.Time
	maxEventTime      time.Time
	lastEventSeen     time.Time
	maxOutOfOrderness time.Duration
	idleTimeout       time.Duration

	updates chan time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWatermark starts a watermark that re-evaluates every updateInterval.
// idleTimeout 0 disables idle advancement.
func NewWatermark(maxOutOfOrderness, updateInterval, idleTimeout time.Duration) *Watermark {
	ctx, cancel := context.WithCancel(context.Background())
	wm := &Watermark{
		maxOutOfOrderness: maxOutOfOrderness,
		idleTimeout:       idleTimeout,
		updates:           make(chan time.Time, 100),
		ctx:               ctx,
		cancel:            cancel,
	}
	go wm.run(updateInterval)
	return wm
}

func (wm *Watermark) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			wm.tick()
		case <-wm.ctx.Done():
			return
		}
	}
}

// tick advances the watermark from max event time, or from processing time
// once the source has been idle past idleTimeout.
func (wm *Watermark) tick() {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.maxEventTime.IsZero() {
		return
	}
	basis := wm.maxEventTime
	if wm.idleTimeout > 0 && !wm.lastEventSeen.IsZero() && time.Since(wm.lastEventSeen) > wm.idleTimeout {
		basis = time.Now()
	}
	wm.advanceLocked(basis.Add(-wm.maxOutOfOrderness))
}

// UpdateEventTime folds one event's timestamp into the watermark basis.
func (wm *Watermark) UpdateEventTime(eventTime time.Time) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.lastEventSeen = time.Now()
	if wm.maxEventTime.IsZero() || eventTime.After(wm.maxEventTime) {
		wm.maxEventTime = eventTime
		wm.advanceLocked(eventTime.Add(-wm.maxOutOfOrderness))
	}
}

// advanceLocked moves the watermark forward (never backward) and publishes
// the new value without blocking the caller.
func (wm *Watermark) advanceLocked(candidate time.Time) {
	if !candidate.After(wm.current) {
		return
	}
	wm.current = candidate
	select {
	case wm.updates <- candidate:
	default:
	}
}

// GetCurrentWatermark returns the current watermark time.
func (wm *Watermark) GetCurrentWatermark() time.Time {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.current
}

// WatermarkChan delivers watermark advances; sends are best-effort, so a
// slow reader sees the latest value via GetCurrentWatermark instead.
func (wm *Watermark) WatermarkChan() <-chan time.Time {
	return wm.updates
}

// IsEventTimeLate reports whether eventTime is already behind the
// watermark (a late arrival).
func (wm *Watermark) IsEventTimeLate(eventTime time.Time) bool {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return !wm.current.IsZero() && eventTime.Before(wm.current)
}

// Stop ends the update loop.
func (wm *Watermark) Stop() {
	wm.cancel()
}

// alignWindowStart aligns an event-time window's start down to the nearest
// multiple of the window size from epoch, so boundaries are stable across
// sources regardless of when the first event arrives.
func alignWindowStart(timestamp time.Time, windowSize time.Duration) time.Time {
	return timex.AlignTimeToWindow(timestamp, windowSize).UTC()
}
