// Metrics collection for the arc welder
//
// Provides Prometheus-compatible metrics with support for:
// - Counter: monotonically increasing values
// - Gauge: values that can go up and down
// - Histogram: distribution of observations in buckets
//
// Metrics are rendered in the Prometheus text format, either for an HTTP
// scrape or as a node_exporter textfile.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

// Key returns a stable identity for the label set
func (l Labels) Key() string {
	keys := l.sortedKeys()
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy of the labels with one more pair
func (l Labels) With(key, value string) Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out[key] = value
	return out
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(w io.Writer)
}

// desc holds what every metric shares.
type desc struct {
	name string
	help string
}

func (d desc) Name() string { return d.name }
func (d desc) Help() string { return d.help }

func (d desc) writeHeader(w io.Writer, t MetricType) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, t)
}

// series keeps one value per label set, written in label order.
type series[V any] struct {
	mu     sync.Mutex
	values map[string]*V
	labels map[string]Labels
}

func (s *series[V]) get(labels Labels, init func() *V) *V {
	key := labels.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	if s.values == nil {
		s.values = make(map[string]*V)
		s.labels = make(map[string]Labels)
	}
	v := init()
	s.values[key] = v
	s.labels[key] = labels
	return v
}

func (s *series[V]) find(labels Labels) (*V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[labels.Key()]
	return v, ok
}

func (s *series[V]) each(fn func(Labels, *V)) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		s.mu.Lock()
		l, v := s.labels[k], s.values[k]
		s.mu.Unlock()
		fn(l, v)
	}
}

// Counter is a monotonically increasing metric
type Counter struct {
	desc
	s series[counterValue]
}

type counterValue struct {
	mu sync.Mutex
	v  float64
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	return &Counter{desc: desc{name, help}}
}

func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the counter. Negative deltas are ignored.
func (c *Counter) Add(labels Labels, delta float64) {
	if delta < 0 {
		return
	}
	cv := c.s.get(labels, func() *counterValue { return &counterValue{} })
	cv.mu.Lock()
	cv.v += delta
	cv.mu.Unlock()
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) float64 {
	cv, ok := c.s.find(labels)
	if !ok {
		return 0
	}
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.v
}

func (c *Counter) Write(w io.Writer) {
	c.writeHeader(w, TypeCounter)
	c.s.each(func(l Labels, cv *counterValue) {
		cv.mu.Lock()
		v := cv.v
		cv.mu.Unlock()
		fmt.Fprintf(w, "%s%s %s\n", c.name, l, formatFloat(v))
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	desc
	s series[counterValue]
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	return &Gauge{desc: desc{name, help}}
}

func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) {
	gv := g.s.get(labels, func() *counterValue { return &counterValue{} })
	gv.mu.Lock()
	gv.v = value
	gv.mu.Unlock()
}

// Add adds delta to the gauge
func (g *Gauge) Add(labels Labels, delta float64) {
	gv := g.s.get(labels, func() *counterValue { return &counterValue{} })
	gv.mu.Lock()
	gv.v += delta
	gv.mu.Unlock()
}

// Inc increments the gauge by 1
func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }

// Dec decrements the gauge by 1
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	gv, ok := g.s.find(labels)
	if !ok {
		return 0
	}
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.v
}

func (g *Gauge) Write(w io.Writer) {
	g.writeHeader(w, TypeGauge)
	g.s.each(func(l Labels, gv *counterValue) {
		gv.mu.Lock()
		v := gv.v
		gv.mu.Unlock()
		fmt.Fprintf(w, "%s%s %s\n", g.name, l, formatFloat(v))
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	desc
	bounds []float64
	s      series[histogramValue]
}

type histogramValue struct {
	mu     sync.Mutex
	counts []uint64 // per bucket, last is +Inf
	count  uint64
	sum    float64
}

// NewHistogram creates a histogram with the given upper bounds
func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{desc: desc{name, help}, bounds: sorted}
}

// DefaultBuckets returns buckets suited to run durations in seconds
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
}

func (h *Histogram) Type() MetricType { return TypeHistogram }

// Bounds returns the bucket upper bounds
func (h *Histogram) Bounds() []float64 { return h.bounds }

func (h *Histogram) value(labels Labels) *histogramValue {
	return h.s.get(labels, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.bounds)+1)}
	})
}

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	i := sort.SearchFloat64s(h.bounds, value)
	hv := h.value(labels)
	hv.mu.Lock()
	hv.counts[i]++
	hv.count++
	hv.sum += value
	hv.mu.Unlock()
}

// AddBuckets merges pre-bucketed observations. counts must hold one entry
// per bound plus the +Inf bucket, using the same bounds as h.
func (h *Histogram) AddBuckets(labels Labels, counts []uint64, sum float64) error {
	if len(counts) != len(h.bounds)+1 {
		return fmt.Errorf("metric %s: got %d buckets, want %d", h.name, len(counts), len(h.bounds)+1)
	}
	hv := h.value(labels)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	for i, c := range counts {
		hv.counts[i] += c
		hv.count += c
	}
	hv.sum += sum
	return nil
}

// HistogramSnapshot is a point-in-time copy with cumulative buckets
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64
}

// Snapshot returns the histogram values for labels
func (h *Histogram) Snapshot(labels Labels) HistogramSnapshot {
	hv, ok := h.s.find(labels)
	if !ok {
		return HistogramSnapshot{Buckets: map[float64]uint64{}}
	}
	hv.mu.Lock()
	defer hv.mu.Unlock()
	snap := HistogramSnapshot{Count: hv.count, Sum: hv.sum, Buckets: make(map[float64]uint64, len(h.bounds))}
	var cum uint64
	for i, b := range h.bounds {
		cum += hv.counts[i]
		snap.Buckets[b] = cum
	}
	return snap
}

func (h *Histogram) Write(w io.Writer) {
	h.writeHeader(w, TypeHistogram)
	h.s.each(func(l Labels, hv *histogramValue) {
		hv.mu.Lock()
		counts := append([]uint64(nil), hv.counts...)
		count, sum := hv.count, hv.sum
		hv.mu.Unlock()

		var cum uint64
		for i, b := range h.bounds {
			cum += counts[i]
			fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, l.With("le", formatFloat(b)), cum)
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, l.With("le", "+Inf"), count)
		fmt.Fprintf(w, "%s_sum%s %s\n", h.name, l, formatFloat(sum))
		fmt.Fprintf(w, "%s_count%s %d\n", h.name, l, count)
	})
}

// Registry holds metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[m.Name()]; ok {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Write renders every metric in the Prometheus text format
func (r *Registry) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		r.metrics[name].Write(w)
	}
}

// Gather returns every metric in the Prometheus text format
func (r *Registry) Gather() string {
	var sb strings.Builder
	r.Write(&sb)
	return sb.String()
}

// WriteFile atomically replaces path with the current metrics, the way
// node_exporter's textfile collector expects.
func (r *Registry) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	r.Write(tmp)
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
