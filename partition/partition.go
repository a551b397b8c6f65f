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

// Package partition implements "partition by expr of stream": an isolated
// operator sub-graph is instantiated per distinct key value on first
// observation and garbage-collected after a configurable idle timeout. The
// sub-graph itself comes from a caller-supplied factory, so any
// window/groupby/pattern chain can be partitioned the same way.
package partition

import (
	"sync"
	"time"

	"github.com/rulego/eventflux/logger"
)

// SubGraph is the operator sub-graph instantiated per partition key. Any
// type implementing Close participates in GC; Manager never inspects the
// sub-graph's internals beyond that.
type SubGraph interface {
	Close() error
}

// Factory builds a fresh SubGraph for a newly observed partition key. Called
// at most once per key (spec: "instantiated on first observation of that
// key").
type Factory func(key string) (SubGraph, error)

type entry struct {
	graph      SubGraph
	lastActive int64 // epoch ms of last Get/Touch
}

// Manager owns one sub-graph per partition key, isolates their state from
// each other (spec: "owns its own window/aggregation/pattern state...
// receives only events whose key matches"), and reclaims idle partitions.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	idle    time.Duration
	log     logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Manager. idleTimeout <= 0 disables GC (partitions live for
// the query's lifetime).
func New(factory Factory, idleTimeout time.Duration) *Manager {
	m := &Manager{
		entries: make(map[string]*entry),
		factory: factory,
		idle:    idleTimeout,
		log:     logger.Named("partition"),
		stopCh:  make(chan struct{}),
	}
	if idleTimeout > 0 {
		m.wg.Add(1)
		go m.gcLoop()
	}
	return m
}

// Get returns the sub-graph for key, instantiating it via Factory on
// first observation, and marks it as just touched for GC purposes.
// Ordering is preserved per-partition only: callers serialize their own
// per-key event delivery.
func (m *Manager) Get(key string) (SubGraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if ok {
		e.lastActive = time.Now().UnixMilli()
		return e.graph, nil
	}

	g, err := m.factory(key)
	if err != nil {
		return nil, err
	}
	m.entries[key] = &entry{graph: g, lastActive: time.Now().UnixMilli()}
	return g, nil
}

// Count reports the number of live partitions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Keys returns the currently live partition keys, for testing/inspection.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// gcLoop reclaims partitions idle longer than m.idle. A fixed-interval poll
// (rather than one scheduler.Clock timer per partition) keeps GC O(1) in the
// number of timer-wheel entries; partition counts can be large and churn
// fast, unlike the pattern absent-step timers the wheel drives.
func (m *Manager) gcLoop() {
	defer m.wg.Done()
	interval := m.idle / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.idle).UnixMilli()
	m.mu.Lock()
	var dead []*entry
	for k, e := range m.entries {
		if e.lastActive < cutoff {
			dead = append(dead, e)
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	for _, e := range dead {
		if err := e.graph.Close(); err != nil {
			m.log.Warn("partition close on idle GC: %v", err)
		}
	}
}

// Close stops GC and closes every live partition's sub-graph.
func (m *Manager) Close() error {
	if m.idle > 0 {
		close(m.stopCh)
		m.wg.Wait()
	}
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.graph.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
