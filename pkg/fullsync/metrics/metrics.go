/* Copyright 2025 Fullsync Authors
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

// Package metrics exposes full sync progress as prometheus metrics
package metrics

import (
	"context"
	"net/http"

	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fullsync"

// Metrics records the engine's markers. It implements events.Listener.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsFinished  prometheus.Counter
	runsCancelled prometheus.Counter
	chunksSent    *prometheus.CounterVec
	objectsSent   *prometheus.CounterVec
	runDuration   prometheus.Histogram
	rangeMax      *prometheus.GaugeVec
}

// New returns metrics registered on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Number of full sync runs started.",
		}),
		runsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Number of full sync runs finished.",
		}),
		runsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Number of unfinished full sync runs cancelled by a new start.",
		}),
		chunksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Number of chunks sent per module.",
		}, []string{"module"}),
		objectsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_sent_total",
			Help:      "Number of objects sent per module.",
		}, []string{"module"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of finished full sync runs in seconds.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}),
		rangeMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "range_max_id",
			Help:      "Largest id captured for each module when the current run started.",
		}, []string{"module"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.runsStarted,
		m.runsFinished,
		m.runsCancelled,
		m.chunksSent,
		m.objectsSent,
		m.runDuration,
		m.rangeMax,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnStart implements events.Listener
func (m *Metrics) OnStart(_ context.Context, e events.Start) error {
	m.runsStarted.Inc()

	m.rangeMax.Reset()
	for name, rng := range e.Ranges {
		m.rangeMax.WithLabelValues(name).Set(float64(rng.Max))
	}

	return nil
}

// OnChunkSent implements events.Listener
func (m *Metrics) OnChunkSent(_ context.Context, e events.ChunkSent) error {
	m.chunksSent.WithLabelValues(e.Module).Inc()
	m.objectsSent.WithLabelValues(e.Module).Add(float64(len(e.IDs)))

	return nil
}

// OnEnd implements events.Listener
func (m *Metrics) OnEnd(_ context.Context, e events.End) error {
	m.runsFinished.Inc()
	m.runDuration.Observe(e.FinishedAt.Sub(e.StartedAt).Seconds())

	return nil
}

// OnCancelled implements events.Listener
func (m *Metrics) OnCancelled(_ context.Context, _ events.Cancelled) error {
	m.runsCancelled.Inc()

	return nil
}
