// Arc welder metrics definitions
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"time"

	"arcwelder-go/pkg/welder"
)

// Run outcomes used as the status label
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// WelderMetrics aggregates the results of every run of one process.
type WelderMetrics struct {
	registry *Registry

	Files            *Counter
	Lines            *Counter
	Bytes            *Counter
	Arcs             *Counter
	SegmentsAbsorbed *Counter
	UnparsedLines    *Counter
	Unrewritable     *Counter
	RunsInProgress   *Gauge
	CompressionRatio *Gauge
	Duration         *Histogram
	SegmentLength    *Histogram
}

// NewWelderMetrics creates the welder metrics in a fresh registry
func NewWelderMetrics() *WelderMetrics {
	m := &WelderMetrics{
		registry: NewRegistry(),

		Files:            NewCounter("arcwelder_files_total", "Files processed by outcome"),
		Lines:            NewCounter("arcwelder_lines_total", "G-code lines read and written"),
		Bytes:            NewCounter("arcwelder_bytes_total", "G-code bytes read and written"),
		Arcs:             NewCounter("arcwelder_arcs_total", "Arc commands emitted"),
		SegmentsAbsorbed: NewCounter("arcwelder_segments_absorbed_total", "Linear moves replaced by arcs"),
		UnparsedLines:    NewCounter("arcwelder_unparsed_lines_total", "Lines passed through because they could not be parsed"),
		Unrewritable:     NewCounter("arcwelder_unrewritable_moves_total", "Moves passed through because they cannot be welded"),
		RunsInProgress:   NewGauge("arcwelder_runs_in_progress", "Files currently being welded"),
		CompressionRatio: NewGauge("arcwelder_compression_ratio", "Input bytes per output byte of the last file"),
		Duration:         NewHistogram("arcwelder_weld_duration_seconds", "Time spent welding one file", DefaultBuckets()),
		SegmentLength:    NewHistogram("arcwelder_segment_length_mm", "Move lengths before and after welding", welder.SegmentLengthBounds),
	}
	for _, metric := range []Metric{
		m.Files, m.Lines, m.Bytes, m.Arcs, m.SegmentsAbsorbed, m.UnparsedLines,
		m.Unrewritable, m.RunsInProgress, m.CompressionRatio, m.Duration, m.SegmentLength,
	} {
		m.registry.MustRegister(metric)
	}
	return m
}

// Registry returns the registry holding the metrics
func (m *WelderMetrics) Registry() *Registry { return m.registry }

// Start marks a run as in progress and returns the function ending it
func (m *WelderMetrics) Start() func() {
	m.RunsInProgress.Inc(nil)
	return func() { m.RunsInProgress.Dec(nil) }
}

// Record adds the counters of one finished run
func (m *WelderMetrics) Record(st welder.Stats, elapsed time.Duration, status string) {
	m.Files.Inc(Labels{"status": status})
	m.Lines.Add(Labels{"direction": "in"}, float64(st.InputLines))
	m.Lines.Add(Labels{"direction": "out"}, float64(st.OutputLines))
	m.Bytes.Add(Labels{"direction": "in"}, float64(st.InputBytes))
	m.Bytes.Add(Labels{"direction": "out"}, float64(st.OutputBytes))
	m.Arcs.Add(nil, float64(st.ArcsCommitted))
	m.SegmentsAbsorbed.Add(nil, float64(st.SegmentsAbsorbed))
	m.UnparsedLines.Add(nil, float64(st.UnparsedLines))
	m.Unrewritable.Add(nil, float64(st.UnrewritableMoves))
	m.CompressionRatio.Set(nil, st.CompressionRatio())
	m.Duration.Observe(Labels{"status": status}, elapsed.Seconds())
	if len(st.SourceLengths.Counts) > 0 {
		m.SegmentLength.AddBuckets(Labels{"path": "source"}, st.SourceLengths.Counts, st.SourceLengths.Sum)
	}
	if len(st.TargetLengths.Counts) > 0 {
		m.SegmentLength.AddBuckets(Labels{"path": "target"}, st.TargetLengths.Counts, st.TargetLengths.Sum)
	}
}

// Gather returns every welder metric in the Prometheus text format
func (m *WelderMetrics) Gather() string { return m.registry.Gather() }
