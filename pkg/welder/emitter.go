// Output emitter
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"bufio"
	"io"
	"math"
	"strings"

	"arcwelder-go/pkg/arc"
	"arcwelder-go/pkg/pool"
	"arcwelder-go/pkg/position"
)

// LineWriter receives the output stream one line at a time.
type LineWriter interface {
	WriteLine(text, eol string) error
}

// WriterSink writes lines to an io.Writer through a buffer. Call Flush
// when the run ends.
type WriterSink struct {
	w *bufio.Writer
}

// NewWriterSink wraps w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriterSize(w, 64*1024)}
}

// WriteLine implements LineWriter
func (s *WriterSink) WriteLine(text, eol string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	_, err := s.w.WriteString(eol)
	return err
}

// Flush writes any buffered data
func (s *WriterSink) Flush() error { return s.w.Flush() }

// Collector keeps the output in memory.
type Collector struct {
	sb    strings.Builder
	lines []string
}

// WriteLine implements LineWriter
func (c *Collector) WriteLine(text, eol string) error {
	c.sb.WriteString(text)
	c.sb.WriteString(eol)
	c.lines = append(c.lines, text)
	return nil
}

// String returns the collected output
func (c *Collector) String() string { return c.sb.String() }

// Lines returns the collected lines without line endings
func (c *Collector) Lines() []string { return c.lines }

// emitter serialises decisions and keeps the output counters.
type emitter struct {
	sink  LineWriter
	stats *Stats
}

func (em *emitter) line(text, eol string) error {
	em.stats.OutputLines++
	em.stats.OutputBytes += int64(len(text) + len(eol))
	return em.sink.WriteLine(text, eol)
}

// arcCommand describes one committed arc.
type arcCommand struct {
	fit      arc.Fit
	first    position.Segment
	last     position.Segment
	e        float64 // summed extruder delta
	hasE     bool
	comments []string
	xyzPrec  int
	ePrec    int
}

// format renders the arc as `G2/G3 X Y [Z] I J [E] [F] [;comment]`. ok is
// false when rounding collapses the arc: a partial arc whose end rounds onto
// its start would run as a full circle.
func (a *arcCommand) format() (string, bool) {
	fit := a.fit
	start, end := fit.Start, fit.End
	x, y, z := end.X, end.Y, end.Z
	if a.first.Relative {
		x, y, z = end.X-start.X, end.Y-start.Y, end.Z-start.Z
	}
	i, j := fit.Center.X-start.X, fit.Center.Y-start.Y

	half := 0.5 * math.Pow10(-a.xyzPrec)
	if !fit.Full && math.Abs(end.X-start.X) < half && math.Abs(end.Y-start.Y) < half {
		return "", false
	}
	if math.Abs(i) < half && math.Abs(j) < half {
		return "", false
	}

	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	if fit.Clockwise() {
		buf.WriteString("G2")
	} else {
		buf.WriteString("G3")
	}
	buf.WriteString(" X")
	buf.AppendTrimmedFloat(x, a.xyzPrec)
	buf.WriteString(" Y")
	buf.AppendTrimmedFloat(y, a.xyzPrec)
	if end.Z != start.Z {
		buf.WriteString(" Z")
		buf.AppendTrimmedFloat(z, a.xyzPrec)
	}
	buf.WriteString(" I")
	buf.AppendTrimmedFloat(i, a.xyzPrec)
	buf.WriteString(" J")
	buf.AppendTrimmedFloat(j, a.xyzPrec)
	if a.hasE {
		buf.WriteString(" E")
		if a.first.RelativeE {
			buf.AppendTrimmedFloat(a.e, a.ePrec)
		} else {
			buf.AppendTrimmedFloat(a.last.EEnd, a.ePrec)
		}
	}
	if a.first.HasFeed && a.first.Source != nil {
		if p, ok := a.first.Source.Param('F'); ok {
			buf.WriteString(" F")
			buf.WriteString(p.Text)
		}
	}
	if len(a.comments) > 0 {
		buf.WriteString(" ;")
		buf.WriteString(strings.Join(a.comments, " | "))
	}
	return buf.String(), true
}
