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
	"sync/atomic"
	"time"

	"github.com/rulego/eventflux/types"
)

// overflowSender applies a window's configured backpressure strategy
// (Drop/Block/Expand) when pushing a triggered batch onto its bounded
// output channel, so each window kind shares one sent/dropped accounting
// path instead of reimplementing it.
type overflowSender struct {
	cfg          types.OverflowConfig
	sentCount    int64
	droppedCount int64
}

func newOverflowSender(cfg types.OverflowConfig) *overflowSender {
	if cfg.Strategy == "" {
		cfg.Strategy = types.OverflowStrategyDrop
	}
	return &overflowSender{cfg: cfg}
}

// send delivers rows on ch, honoring the configured strategy. done is closed
// (or receivable) when the owning window is stopped, so a blocked send can
// never outlive it.
func (s *overflowSender) send(ch chan []types.Row, rows []types.Row, done <-chan struct{}) {
	switch s.cfg.Strategy {
	case types.OverflowStrategyBlock:
		s.sendBlocking(ch, rows, done)
	case types.OverflowStrategyExpand:
		// Window output channels are fixed-capacity once created, so
		// expand cannot grow them; record saturation instead of silently
		// blocking the hot path.
		select {
		case ch <- rows:
			atomic.AddInt64(&s.sentCount, 1)
		default:
			atomic.AddInt64(&s.droppedCount, 1)
		}
	default: // drop
		s.sendDroppingOldest(ch, rows)
	}
}

func (s *overflowSender) sendBlocking(ch chan []types.Row, rows []types.Row, done <-chan struct{}) {
	if s.cfg.BlockTimeout <= 0 {
		select {
		case ch <- rows:
			atomic.AddInt64(&s.sentCount, 1)
		case <-done:
		}
		return
	}
	timer := time.NewTimer(s.cfg.BlockTimeout)
	defer timer.Stop()
	select {
	case ch <- rows:
		atomic.AddInt64(&s.sentCount, 1)
	case <-timer.C:
		atomic.AddInt64(&s.droppedCount, 1)
	case <-done:
	}
}

func (s *overflowSender) sendDroppingOldest(ch chan []types.Row, rows []types.Row) {
	select {
	case ch <- rows:
		atomic.AddInt64(&s.sentCount, 1)
		return
	default:
	}
	// Channel full: evict the oldest pending batch to make room for the
	// newest one (Drop(oldest)).
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- rows:
		atomic.AddInt64(&s.sentCount, 1)
	default:
		atomic.AddInt64(&s.droppedCount, 1)
	}
}

func (s *overflowSender) stats(bufCap, bufUsed int) map[string]int64 {
	return map[string]int64{
		"sentCount":    atomic.LoadInt64(&s.sentCount),
		"droppedCount": atomic.LoadInt64(&s.droppedCount),
		"bufferSize":   int64(bufCap),
		"bufferUsed":   int64(bufUsed),
	}
}
