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

// Package metrics exposes the engine-wide metrics surface:
// counters/gauges/histograms per stream, operator kind, and junction.
// The wire format is an embedder concern; this engine exports via
// prometheus/client_golang, registered against a private Registry so
// embedding applications choose when (and whether) to serve it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the engine's counter/gauge/histogram primitives.
type Registry struct {
	reg *prometheus.Registry

	EventsIn      *prometheus.CounterVec
	EventsOut     *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec

	PipelineUtilization *prometheus.GaugeVec
	WindowSize          *prometheus.GaugeVec
	PatternActiveStates *prometheus.GaugeVec

	CheckpointDuration prometheus.Histogram
	RestoreDuration    prometheus.Histogram
}

// New builds a Registry with every engine metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		EventsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflux", Name: "events_in_total",
			Help: "Events admitted per stream/operator/junction.",
		}, []string{"stream", "operator", "junction"}),
		EventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflux", Name: "events_out_total",
			Help: "Events emitted per stream/operator/junction.",
		}, []string{"stream", "operator", "junction"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflux", Name: "events_dropped_total",
			Help: "Events dropped under backpressure per stream.",
		}, []string{"stream", "reason"}),
		PipelineUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventflux", Name: "pipeline_utilization",
			Help: "Fraction of pipeline capacity occupied.",
		}, []string{"stream"}),
		WindowSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventflux", Name: "window_size",
			Help: "Current element count held by a window instance.",
		}, []string{"stream", "window"}),
		PatternActiveStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventflux", Name: "pattern_active_states",
			Help: "Live StateEvents currently in flight for a pattern query.",
		}, []string{"query"}),
		CheckpointDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventflux", Name: "checkpoint_duration_seconds",
			Help:    "Wall-clock duration of a full checkpoint cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		RestoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventflux", Name: "restore_duration_seconds",
			Help:    "Wall-clock duration of a point-in-time recovery.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.EventsIn, r.EventsOut, r.EventsDropped,
		r.PipelineUtilization, r.WindowSize, r.PatternActiveStates,
		r.CheckpointDuration, r.RestoreDuration)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an embedder's
// own /metrics HTTP handler; no wire protocol is mandated here.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
