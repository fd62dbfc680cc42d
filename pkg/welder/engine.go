// Arc welding engine
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package welder replaces runs of G0/G1 moves with G2/G3 arcs.
//
// An Engine is driven one line at a time and writes every output line to a
// LineWriter in input order. Run wraps an Engine with a reader/parser
// goroutine for whole streams.
package welder

import (
	"math"
	"strings"
	"time"

	"arcwelder-go/pkg/arc"
	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/gcode"
	"arcwelder-go/pkg/log"
	"arcwelder-go/pkg/position"
)

type pendingLine struct {
	cmd *gcode.Command
	eol string
}

// Engine converts one G-code stream. It is not safe for concurrent use;
// independent streams use independent engines.
type Engine struct {
	opts    Options
	log     *log.Logger
	tracker *position.Tracker
	fitter  *arc.Fitter
	pending *arc.Ring[pendingLine]
	em      emitter
	stats   Stats

	xyzPrec    int
	ePrec      int
	totalBytes int64
	started    time.Time
	closed     bool
}

// New validates opts and creates an engine writing to sink. An invalid
// option is reported before anything is processed.
func New(opts Options, sink LineWriter) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.RuntimeError("welder: nil sink")
	}
	e := &Engine{
		opts: opts,
		log:  opts.logger(),
		tracker: position.NewTracker(position.Options{
			EnabledAxes:           opts.EnabledAxes,
			G90InfluencesExtruder: opts.G90InfluencesExtruder,
		}),
		fitter: arc.NewFitter(arc.Config{
			MaxDeviation:       opts.MaxDeviation,
			MaxRadius:          opts.MaxRadius,
			PathTolerance:      opts.PathTolerance,
			ExtrusionTolerance: opts.ExtrusionTolerance,
			FeedrateTolerance:  opts.FeedrateTolerance,
			Allow3D:            opts.Allow3DArcs,
			MaxSegments:        opts.MaxArcSegments,
		}),
		pending: arc.NewRing[pendingLine](opts.MaxArcSegments),
		stats:   newStats(),
		xyzPrec: opts.XYZPrecision,
		ePrec:   opts.EPrecision,
		started: time.Now(),
	}
	e.em = emitter{sink: sink, stats: &e.stats}
	return e, nil
}

// SetTotalBytes tells the engine the input size for progress percentages
func (e *Engine) SetTotalBytes(n int64) { e.totalBytes = n }

// Stats returns a copy of the counters so far
func (e *Engine) Stats() Stats { return e.stats.clone() }

// State returns the phase of the current weld attempt
func (e *Engine) State() arc.State { return e.fitter.State() }

// Push parses and processes one input line. text excludes the line ending,
// which is passed as eol ("\n", "\r\n" or "" for a final unterminated line).
func (e *Engine) Push(text, eol string) error {
	cmd, _ := gcode.Parse(text)
	return e.PushParsed(cmd, eol)
}

// PushParsed processes a line already parsed with gcode.Parse.
func (e *Engine) PushParsed(cmd *gcode.Command, eol string) error {
	if e.closed {
		return errors.RuntimeError("welder: engine is closed")
	}
	e.stats.InputLines++
	e.stats.InputBytes += int64(len(cmd.Raw()) + len(eol))

	if cmd.Malformed() {
		e.stats.UnparsedLines++
		if e.log.Enabled(log.DEBUG) {
			e.log.WithField("line", e.stats.InputLines).Debug("unparsed line passed through: %q", cmd.Raw())
		}
	} else if e.opts.DynamicPrecision && cmd.IsMotion() {
		e.xyzPrec = max(e.xyzPrec, min(cmd.MaxDecimals("XYZIJ"), MaxPrecision))
		e.ePrec = max(e.ePrec, min(cmd.MaxDecimals("E"), MaxPrecision))
	}

	seg, status := e.tracker.Apply(cmd)
	var err error
	switch status {
	case position.StatusSegment:
		err = e.offer(seg, pendingLine{cmd: cmd, eol: eol})
	case position.StatusUnrewritable:
		e.stats.UnrewritableMoves++
		e.stats.SourceLengths.Observe(seg.Length())
		e.stats.TargetLengths.Observe(seg.Length())
		err = e.passthrough(cmd, eol)
	default:
		err = e.passthrough(cmd, eol)
	}
	if err != nil {
		return errors.IOError("write", err).SetLine(int(e.stats.InputLines))
	}

	if every := int64(e.opts.ProgressEvery); every > 0 && e.stats.InputLines%every == 0 {
		e.report(false)
	}
	return nil
}

// Close ends the stream: a pending arc is committed if it qualifies. The
// engine accepts no more lines afterwards.
func (e *Engine) Close() (Stats, error) {
	return e.finish(true)
}

// Abort ends the stream without committing: pending moves are written
// unchanged, so no partial arc is ever emitted.
func (e *Engine) Abort() (Stats, error) {
	return e.finish(false)
}

func (e *Engine) finish(commit bool) (Stats, error) {
	if e.closed {
		return e.Stats(), nil
	}
	e.closed = true
	if err := e.flush(commit); err != nil {
		return e.Stats(), errors.IOError("write", err)
	}
	e.report(commit)
	return e.Stats(), nil
}

func (e *Engine) passthrough(cmd *gcode.Command, eol string) error {
	if err := e.flush(true); err != nil {
		return err
	}
	return e.em.line(cmd.Raw(), eol)
}

// offer hands a segment to the fitter. A rejected segment ends the current
// attempt and seeds the next one.
func (e *Engine) offer(seg position.Segment, pl pendingLine) error {
	e.stats.SegmentsExamined++
	e.stats.SourceLengths.Observe(seg.Length())
	if e.fitter.Add(seg) {
		e.pending.Push(pl)
		return nil
	}
	if err := e.flush(true); err != nil {
		return err
	}
	if e.fitter.Add(seg) {
		e.pending.Push(pl)
		return nil
	}
	e.stats.TargetLengths.Observe(seg.Length())
	return e.em.line(pl.cmd.Raw(), pl.eol)
}

// flush empties the buffer, either as one arc (commit, when the run
// qualifies) or as the original lines.
func (e *Engine) flush(commit bool) error {
	n := e.fitter.Len()
	if n == 0 {
		return nil
	}
	defer func() {
		e.fitter.Reset()
		e.pending.Clear()
	}()

	if commit && n >= e.opts.MinArcSegments {
		if fit, ok := e.fitter.Fit(); ok {
			text, ok := e.arcText(fit)
			if ok && len(text) < e.pendingLength() {
				e.stats.ArcsCommitted++
				e.stats.SegmentsAbsorbed += int64(n)
				e.stats.PointsCompressed += int64(n - 1)
				e.stats.TargetLengths.Observe(fit.Length)
				if e.log.Enabled(log.DEBUG) {
					e.log.WithFields(log.Fields{
						"segments": n,
						"radius":   fit.Radius,
						"sweep":    fit.Sweep,
					}).Debug("arc committed: %s", text)
				}
				return e.em.line(text, e.pending.Last().eol)
			}
			e.stats.ArcsRejected++
			if e.log.Enabled(log.DEBUG) {
				e.log.WithField("segments", n).Debug("arc rejected: no size gain")
			}
		}
	}

	for i := 0; i < n; i++ {
		pl := e.pending.At(i)
		e.stats.TargetLengths.Observe(e.fitter.Segment(i).Length())
		if err := e.em.line(pl.cmd.Raw(), pl.eol); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pendingLength() int {
	total := 0
	for i := 0; i < e.pending.Len(); i++ {
		total += len(e.pending.At(i).cmd.Raw())
	}
	return total
}

func (e *Engine) arcText(fit arc.Fit) (string, bool) {
	n := e.fitter.Len()
	a := arcCommand{
		fit:     fit,
		first:   e.fitter.Segment(0),
		last:    e.fitter.Segment(n - 1),
		xyzPrec: e.xyzPrec,
		ePrec:   e.ePrec,
	}
	for i := 0; i < n; i++ {
		s := e.fitter.Segment(i)
		a.e += s.E()
		if s.E() != 0 {
			a.hasE = true
		}
	}
	if e.opts.CommentPolicy == CommentRelocate {
		for i := 0; i < n; i++ {
			if c, ok := e.pending.At(i).cmd.Comment(); ok {
				if c = strings.TrimSpace(c); c != "" {
					a.comments = append(a.comments, c)
				}
			}
		}
	}
	return a.format()
}

func (e *Engine) report(complete bool) {
	if e.opts.Progress == nil {
		return
	}
	p := Progress{
		Lines:            e.stats.InputLines,
		Bytes:            e.stats.InputBytes,
		TotalBytes:       e.totalBytes,
		ArcsCommitted:    e.stats.ArcsCommitted,
		CompressionRatio: e.stats.CompressionRatio(),
		Elapsed:          time.Since(e.started),
	}
	switch {
	case complete:
		p.Percent = 100
	case e.totalBytes > 0:
		p.Percent = math.Min(100, 100*float64(p.Bytes)/float64(e.totalBytes))
	}
	e.opts.Progress(p)
}
