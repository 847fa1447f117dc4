// Package telemetry implements the Metrics & Event Bus component:
// per-component counters/gauges/histograms with tagged labels and
// append-only, configurable-retention storage, plus a typed event bus with
// bounded per-subscriber queues. The OTEL instrument cache uses a
// double-checked-locking lazy-creation idiom.
package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Label is one tag attached to a recorded sample, e.g. {"component": "cache"}.
type Label struct {
	Key   string
	Value string
}

func attrs(labels []Label) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		out[i] = attribute.String(l.Key, l.Value)
	}
	return out
}

// sample is one append-only record in a series.
type sample struct {
	at    time.Time
	value float64
	tags  map[string]string
}

func tagMap(labels []Label) map[string]string {
	m := make(map[string]string, len(labels))
	for _, l := range labels {
		m[l.Key] = l.Value
	}
	return m
}

// series is the append-only, retention-bounded history for one metric name.
type series struct {
	mu        sync.Mutex
	samples   []sample
	retention time.Duration
}

func (s *series) append(value float64, labels []Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample{at: timeNow(), value: value, tags: tagMap(labels)})
	s.evictLocked()
}

func (s *series) evictLocked() {
	if s.retention <= 0 || len(s.samples) == 0 {
		return
	}
	cutoff := timeNow().Add(-s.retention)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = s.samples[i:]
	}
}

// Snapshot is a read-only view of a series at the moment Registry.Snapshot
// was called.
type Snapshot struct {
	Name    string
	Kind    string
	Count   int
	Sum     float64
	Last    float64
	Samples []struct {
		At    time.Time
		Value float64
		Tags  map[string]string
	}
}

// timeNow is overridable in tests only via the package-level var below -
// production code always uses the wall clock.
var timeNow = time.Now

// Registry is the per-component counters/gauges/histograms store. It
// lazily creates the backing OTEL instrument for each metric name on first
// use via double-checked locking, and also keeps an in-process append-only
// series for snapshot reads, since OTEL's Meter has no read-back API of its
// own.
type Registry struct {
	component string
	meter     metric.Meter
	retention time.Duration

	mu             sync.RWMutex
	counters       map[string]metric.Int64Counter
	upDownCounters map[string]metric.Int64UpDownCounter
	histograms     map[string]metric.Float64Histogram

	seriesMu sync.RWMutex
	series   map[string]*series
	kinds    map[string]string
}

// NewRegistry builds a Registry that records through meter and tags every
// sample with component (e.g. "cache", "coordinator"). retention bounds how
// long samples are kept for Snapshot; zero means unbounded.
func NewRegistry(component string, meter metric.Meter, retention time.Duration) *Registry {
	return &Registry{
		component:      component,
		meter:          meter,
		retention:      retention,
		counters:       make(map[string]metric.Int64Counter),
		upDownCounters: make(map[string]metric.Int64UpDownCounter),
		histograms:     make(map[string]metric.Float64Histogram),
		series:         make(map[string]*series),
		kinds:          make(map[string]string),
	}
}

func (r *Registry) componentLabels(labels []Label) []Label {
	return append([]Label{{Key: "component", Value: r.component}}, labels...)
}

func (r *Registry) seriesFor(name, kind string) *series {
	r.seriesMu.RLock()
	s, ok := r.series[name]
	r.seriesMu.RUnlock()
	if ok {
		return s
	}
	r.seriesMu.Lock()
	defer r.seriesMu.Unlock()
	if s, ok = r.series[name]; ok {
		return s
	}
	s = &series{retention: r.retention}
	r.series[name] = s
	r.kinds[name] = kind
	return s
}

// Counter increments a monotonic integer counter by delta.
func (r *Registry) Counter(ctx context.Context, name string, delta int64, labels ...Label) error {
	tagged := r.componentLabels(labels)
	r.mu.RLock()
	counter, exists := r.counters[name]
	r.mu.RUnlock()
	if !exists {
		r.mu.Lock()
		if counter, exists = r.counters[name]; !exists {
			var err error
			counter, err = r.meter.Int64Counter(name)
			if err != nil {
				r.mu.Unlock()
				return fmt.Errorf("telemetry: create counter %s: %w", name, err)
			}
			r.counters[name] = counter
		}
		r.mu.Unlock()
	}
	counter.Add(ctx, delta, metric.WithAttributes(attrs(tagged)...))
	r.seriesFor(name, "counter").append(float64(delta), tagged)
	return nil
}

// Gauge records an up-down value (e.g. queue depth, memory-tier bytes used).
func (r *Registry) Gauge(ctx context.Context, name string, delta int64, labels ...Label) error {
	tagged := r.componentLabels(labels)
	r.mu.RLock()
	gauge, exists := r.upDownCounters[name]
	r.mu.RUnlock()
	if !exists {
		r.mu.Lock()
		if gauge, exists = r.upDownCounters[name]; !exists {
			var err error
			gauge, err = r.meter.Int64UpDownCounter(name)
			if err != nil {
				r.mu.Unlock()
				return fmt.Errorf("telemetry: create gauge %s: %w", name, err)
			}
			r.upDownCounters[name] = gauge
		}
		r.mu.Unlock()
	}
	gauge.Add(ctx, delta, metric.WithAttributes(attrs(tagged)...))
	r.seriesFor(name, "gauge").append(float64(delta), tagged)
	return nil
}

// Histogram records a value into a distribution (latencies, sizes).
func (r *Registry) Histogram(ctx context.Context, name string, value float64, labels ...Label) error {
	tagged := r.componentLabels(labels)
	r.mu.RLock()
	hist, exists := r.histograms[name]
	r.mu.RUnlock()
	if !exists {
		r.mu.Lock()
		if hist, exists = r.histograms[name]; !exists {
			var err error
			hist, err = r.meter.Float64Histogram(name)
			if err != nil {
				r.mu.Unlock()
				return fmt.Errorf("telemetry: create histogram %s: %w", name, err)
			}
			r.histograms[name] = hist
		}
		r.mu.Unlock()
	}
	hist.Record(ctx, value, metric.WithAttributes(attrs(tagged)...))
	r.seriesFor(name, "histogram").append(value, tagged)
	return nil
}

// RecordDuration is a histogram convenience for timings.
func (r *Registry) RecordDuration(ctx context.Context, name string, d time.Duration, labels ...Label) error {
	return r.Histogram(ctx, name, float64(d.Milliseconds()), labels...)
}

// Snapshot returns the current append-only history for name, or false if no
// sample has ever been recorded under that name.
func (r *Registry) Snapshot(name string) (Snapshot, bool) {
	r.seriesMu.RLock()
	s, ok := r.series[name]
	kind := r.kinds[name]
	r.seriesMu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Name: name, Kind: kind, Count: len(s.samples)}
	for _, smp := range s.samples {
		out.Sum += smp.value
		out.Last = smp.value
		out.Samples = append(out.Samples, struct {
			At    time.Time
			Value float64
			Tags  map[string]string
		}{At: smp.at, Value: smp.value, Tags: smp.tags})
	}
	return out, true
}

// Names returns every metric name with at least one recorded sample.
func (r *Registry) Names() []string {
	r.seriesMu.RLock()
	defer r.seriesMu.RUnlock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
