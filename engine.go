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

// Package eventflux is the embedding surface of the engine: it owns a
// compiled Plan's instantiated operator graph, attaches Sources to stream
// junctions and Sinks to stream outputs, and drives Start/Stop lifecycle
// and checkpointing for the whole query set. The engine consumes an
// already-compiled plan.Plan; it never parses SQL itself.
package eventflux

import (
	"fmt"
	"sync"

	"github.com/rulego/eventflux/checkpoint"
	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/logger"
	"github.com/rulego/eventflux/metrics"
	"github.com/rulego/eventflux/model"
	"github.com/rulego/eventflux/plan"
)

// Engine owns one instantiated Plan graph plus the Sources/Sinks attached
// to its stream junctions and the checkpoint coordinator covering its
// stateful operators.
type Engine struct {
	mu sync.Mutex

	graph   *plan.Graph
	sources map[string]Source
	sinks   map[string][]Sink

	checkpoints *checkpoint.Coordinator
	metrics     *metrics.Registry
	log         logger.Logger

	started bool
}

// New validates p, instantiates its operator graph, and returns an Engine
// ready to have Sources/Sinks attached before Start.
func New(p *plan.Plan, opts plan.Options) (*Engine, error) {
	g, err := plan.Instantiate(p, opts)
	if err != nil {
		return nil, err
	}
	return &Engine{
		graph:   g,
		sources: make(map[string]Source),
		sinks:   make(map[string][]Sink),
		metrics: metrics.New(),
		log:     logger.Named("engine"),
	}, nil
}

// WithCheckpointCoordinator attaches a checkpoint.Coordinator and registers
// every stateful component the graph instantiated (tables, query windows,
// pattern runtimes) against it, tiered for dependency-ordered restore; must
// be called before Start.
func (e *Engine) WithCheckpointCoordinator(c *checkpoint.Coordinator) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkpoints = c
	for _, h := range e.graph.StateHolders() {
		c.Register(h.ID, tierOf(h.Kind), h.Holder)
	}
	return e
}

func tierOf(k plan.HolderKind) checkpoint.Tier {
	switch k {
	case plan.HolderWindow:
		return checkpoint.TierWindow
	case plan.HolderPattern:
		return checkpoint.TierPattern
	default:
		return checkpoint.TierTable
	}
}

// Checkpoint takes a full snapshot of every registered component and
// returns the new checkpoint's id.
func (e *Engine) Checkpoint() (string, error) {
	e.mu.Lock()
	c := e.checkpoints
	e.mu.Unlock()
	if c == nil {
		return "", ferrors.New(ferrors.KindConfiguration, "engine", "no checkpoint coordinator attached")
	}
	return c.Checkpoint()
}

// RestoreCheckpoint reloads checkpoint id (latest if empty) into the
// graph's registered components, tables first, then windows, then patterns.
func (e *Engine) RestoreCheckpoint(id string) error {
	e.mu.Lock()
	c := e.checkpoints
	e.mu.Unlock()
	if c == nil {
		return ferrors.New(ferrors.KindConfiguration, "engine", "no checkpoint coordinator attached")
	}
	return c.Restore(id)
}

// Metrics returns the engine's metrics registry for an embedder's own
// exposition endpoint; no export wire format is mandated.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// AttachSource wires src as the ingestion adapter for streamID: every
// event src produces is pushed onto that stream's Junction.
func (e *Engine) AttachSource(streamID string, src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.graph.Junctions[streamID]; !ok {
		return ferrors.New(ferrors.KindConfiguration, "engine", fmt.Sprintf("unknown stream %q for source", streamID))
	}
	if e.started {
		return ferrors.New(ferrors.KindConfiguration, "engine", "cannot attach a source after Start")
	}
	e.sources[streamID] = src
	return nil
}

// AttachSink wires sink as a delivery adapter subscribed to streamID's
// output. Multiple sinks may subscribe to the same stream.
func (e *Engine) AttachSink(streamID string, sink Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.graph.Junctions[streamID]; !ok {
		return ferrors.New(ferrors.KindConfiguration, "engine", fmt.Sprintf("unknown stream %q for sink", streamID))
	}
	if e.started {
		return ferrors.New(ferrors.KindConfiguration, "engine", "cannot attach a sink after Start")
	}
	e.sinks[streamID] = append(e.sinks[streamID], sink)
	return nil
}

// Start subscribes every attached Sink onto its stream's Junction, then
// starts every attached Source. The engine never polls a Source; each owns
// its own ingestion goroutine and pushes events in.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	for streamID, sinks := range e.sinks {
		j := e.graph.Junctions[streamID]
		for _, sink := range sinks {
			s := sink
			j.Subscribe(func(ev *model.Event) error { return s.Receive(ev) })
		}
	}

	started := make([]string, 0, len(e.sources))
	for streamID, src := range e.sources {
		j := e.graph.Junctions[streamID]
		handler := &junctionInputHandler{send: j.SendEvent, sendBatch: j.SendBatch}
		if err := src.Start(handler); err != nil {
			e.stopSources(started)
			return ferrors.Wrap(ferrors.KindConnectivity, "engine", "source start failed for stream "+streamID, err)
		}
		started = append(started, streamID)
	}

	e.started = true
	return nil
}

// Stop stops every attached Source and then closes the instantiated graph
// (Graph.Close: query subscriptions, windows, partition managers and the
// pattern timer wheel). The stream Junctions themselves are not closed,
// and events still queued for Async subscribers are not drained.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	names := make([]string, 0, len(e.sources))
	for streamID := range e.sources {
		names = append(names, streamID)
	}
	e.stopSources(names)
	err := e.graph.Close()
	e.started = false
	return err
}

func (e *Engine) stopSources(streamIDs []string) {
	for _, id := range streamIDs {
		if err := e.sources[id].Stop(); err != nil {
			e.log.Error("source stop failed for stream %s: %v", id, err)
		}
	}
}
