// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// SegmentLengthBounds are the upper bounds (mm) of the segment length
// histogram buckets. A final +Inf bucket is implied.
var SegmentLengthBounds = []float64{0.002, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 20, 50, 100}

// LengthHistogram counts move lengths per bucket.
type LengthHistogram struct {
	Bounds []float64 `json:"bounds" yaml:"bounds"`
	Counts []uint64  `json:"counts" yaml:"counts"` // len(Bounds)+1, last is +Inf
	Sum    float64   `json:"sum" yaml:"sum"`
}

func newLengthHistogram() LengthHistogram {
	return LengthHistogram{
		Bounds: SegmentLengthBounds,
		Counts: make([]uint64, len(SegmentLengthBounds)+1),
	}
}

// Observe records one length
func (h *LengthHistogram) Observe(v float64) {
	i := 0
	for i < len(h.Bounds) && v > h.Bounds[i] {
		i++
	}
	h.Counts[i]++
	h.Sum += v
}

// Count returns the number of observations
func (h LengthHistogram) Count() uint64 {
	var n uint64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

func (h LengthHistogram) clone() LengthHistogram {
	h.Counts = append([]uint64(nil), h.Counts...)
	return h
}

// Stats are the counters of one run.
type Stats struct {
	InputLines        int64 `json:"input_lines" yaml:"input_lines"`
	OutputLines       int64 `json:"output_lines" yaml:"output_lines"`
	InputBytes        int64 `json:"input_bytes" yaml:"input_bytes"`
	OutputBytes       int64 `json:"output_bytes" yaml:"output_bytes"`
	UnparsedLines     int64 `json:"unparsed_lines" yaml:"unparsed_lines"`
	UnrewritableMoves int64 `json:"unrewritable_moves" yaml:"unrewritable_moves"`
	SegmentsExamined  int64 `json:"segments_examined" yaml:"segments_examined"`
	SegmentsAbsorbed  int64 `json:"segments_absorbed" yaml:"segments_absorbed"`
	ArcsCommitted     int64 `json:"arcs_committed" yaml:"arcs_committed"`
	ArcsRejected      int64 `json:"arcs_rejected" yaml:"arcs_rejected"`
	PointsCompressed  int64 `json:"points_compressed" yaml:"points_compressed"`

	SourceLengths LengthHistogram `json:"source_lengths" yaml:"source_lengths"`
	TargetLengths LengthHistogram `json:"target_lengths" yaml:"target_lengths"`
}

func newStats() Stats {
	return Stats{
		SourceLengths: newLengthHistogram(),
		TargetLengths: newLengthHistogram(),
	}
}

func (s Stats) clone() Stats {
	s.SourceLengths = s.SourceLengths.clone()
	s.TargetLengths = s.TargetLengths.clone()
	return s
}

// CompressionRatio returns input bytes per output byte
func (s Stats) CompressionRatio() float64 {
	if s.OutputBytes == 0 {
		return 1
	}
	return float64(s.InputBytes) / float64(s.OutputBytes)
}

// SpaceSavedPercent returns the share of input bytes removed
func (s Stats) SpaceSavedPercent() float64 {
	if s.InputBytes == 0 {
		return 0
	}
	return 100 * (1 - float64(s.OutputBytes)/float64(s.InputBytes))
}

// WriteText prints a human readable report
func (s Stats) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		name  string
		value string
	}{
		{"Input lines", strconv.FormatInt(s.InputLines, 10)},
		{"Output lines", strconv.FormatInt(s.OutputLines, 10)},
		{"Input bytes", strconv.FormatInt(s.InputBytes, 10)},
		{"Output bytes", strconv.FormatInt(s.OutputBytes, 10)},
		{"Unparsed lines", strconv.FormatInt(s.UnparsedLines, 10)},
		{"Unrewritable moves", strconv.FormatInt(s.UnrewritableMoves, 10)},
		{"Segments examined", strconv.FormatInt(s.SegmentsExamined, 10)},
		{"Segments absorbed", strconv.FormatInt(s.SegmentsAbsorbed, 10)},
		{"Arcs committed", strconv.FormatInt(s.ArcsCommitted, 10)},
		{"Arcs rejected", strconv.FormatInt(s.ArcsRejected, 10)},
		{"Points compressed", strconv.FormatInt(s.PointsCompressed, 10)},
		{"Compression ratio", fmt.Sprintf("%.2f", s.CompressionRatio())},
		{"Space saved", fmt.Sprintf("%.1f%%", s.SpaceSavedPercent())},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r.name, r.value)
	}
	fmt.Fprintf(tw, "\nSegment length (mm)\tsource\ttarget\n")
	lower := 0.0
	for i, src := range s.SourceLengths.Counts {
		label := ">" + strconv.FormatFloat(lower, 'f', -1, 64)
		if i < len(s.SourceLengths.Bounds) {
			upper := s.SourceLengths.Bounds[i]
			label = strconv.FormatFloat(lower, 'f', -1, 64) + " - " + strconv.FormatFloat(upper, 'f', -1, 64)
			lower = upper
		}
		var dst uint64
		if i < len(s.TargetLengths.Counts) {
			dst = s.TargetLengths.Counts[i]
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\n", label, src, dst)
	}
	return tw.Flush()
}
