// Incremental arc fitting
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package arc decides, one segment at a time, whether a run of linear moves
// can be replaced by a single circular arc.
package arc

import (
	"math"

	"arcwelder-go/pkg/position"
)

const (
	// closeEps is the distance under which an arc's start and end points
	// are the same point.
	closeEps = 1e-9
	// extrusionFloor is the absolute slack on per-segment extrusion.
	extrusionFloor = 1e-6
	twoPi          = 2 * math.Pi
)

// Config holds the fitting tolerances.
type Config struct {
	MaxDeviation       float64 // max distance of path points to the arc
	MaxRadius          float64
	PathTolerance      float64 // relative arc length vs polyline length
	ExtrusionTolerance float64 // relative per-segment extrusion error
	FeedrateTolerance  float64 // absolute feed rate difference
	Allow3D            bool    // permit helical arcs
	MaxSegments        int     // ring buffer capacity
}

// State is the phase of the current weld attempt.
type State int

const (
	StateIdle State = iota
	// StateSeeded: one or two segments, no unique circle yet
	StateSeeded
	// StateGrowing: three or more segments with a valid fit
	StateGrowing
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeded:
		return "seeded"
	case StateGrowing:
		return "growing"
	default:
		return "unknown"
	}
}

// Fit is a validated circular arc through every buffered segment.
type Fit struct {
	Center     position.Vector // Z unused
	Radius     float64
	StartAngle float64
	Sweep      float64 // signed, counter-clockwise positive
	Full       bool    // start and end coincide, sweep is a whole turn
	Start, End position.Vector
	Length     float64 // arc length, including helical rise
	PathLength float64 // length of the replaced polyline
	Segments   int
}

// Clockwise reports whether the arc is a G2
func (f Fit) Clockwise() bool { return f.Sweep < 0 }

// EndAngle returns the angle of the end point around the centre
func (f Fit) EndAngle() float64 { return f.StartAngle + f.Sweep }

// Fitter grows one candidate arc. Segments are accepted only while the
// whole run still fits, so the buffered run is always either a plausible
// seed or a valid arc.
type Fitter struct {
	cfg     Config
	segs    *Ring[position.Segment]
	est     Estimator
	fit     Fit
	pathLen float64
	dtheta  []float64
}

// NewFitter creates an idle fitter
func NewFitter(cfg Config) *Fitter {
	if cfg.MaxSegments < 1 {
		cfg.MaxSegments = 1
	}
	return &Fitter{
		cfg:    cfg,
		segs:   NewRing[position.Segment](cfg.MaxSegments),
		dtheta: make([]float64, 0, cfg.MaxSegments),
	}
}

// Len returns the number of buffered segments
func (f *Fitter) Len() int { return f.segs.Len() }

// Full reports whether the buffer can take no more segments
func (f *Fitter) Full() bool { return f.segs.Full() }

// Segment returns the i-th buffered segment
func (f *Fitter) Segment(i int) position.Segment { return f.segs.At(i) }

// State returns the current phase
func (f *Fitter) State() State {
	switch n := f.segs.Len(); {
	case n == 0:
		return StateIdle
	case n < 3:
		return StateSeeded
	default:
		return StateGrowing
	}
}

// Fit returns the arc through the buffered segments. ok is false with fewer
// than three segments.
func (f *Fitter) Fit() (Fit, bool) {
	if f.segs.Len() < 3 {
		return Fit{}, false
	}
	return f.fit, true
}

// Reset drops the buffered segments and returns to idle
func (f *Fitter) Reset() {
	f.segs.Clear()
	f.est.Reset()
	f.fit = Fit{}
	f.pathLen = 0
}

// Add tries to extend the candidate arc with seg. It returns false, leaving
// the fitter untouched, when the buffer is full or the extended run no
// longer fits.
func (f *Fitter) Add(seg position.Segment) bool {
	if f.segs.Full() || !f.segmentOK(seg) {
		return false
	}
	n := f.segs.Len()
	if n == 0 {
		f.est.Reset()
		f.est.Add(seg.Start.X, seg.Start.Y)
		f.est.Add(seg.End.X, seg.End.Y)
		f.segs.Push(seg)
		f.pathLen = seg.Length()
		return true
	}
	if !f.plausible(f.segs.Last(), seg) {
		return false
	}
	est := f.est
	est.Add(seg.End.X, seg.End.Y)
	if n+1 < 3 {
		f.est = est
		f.segs.Push(seg)
		f.pathLen += seg.Length()
		return true
	}
	fit, ok := f.validate(&est, seg)
	if !ok {
		return false
	}
	f.est = est
	f.segs.Push(seg)
	f.pathLen = fit.PathLength
	f.fit = fit
	return true
}

// segmentOK checks what a segment needs on its own.
func (f *Fitter) segmentOK(seg position.Segment) bool {
	if seg.Delta().NormXY() == 0 {
		return false
	}
	if !f.cfg.Allow3D && seg.Start.Z != seg.End.Z {
		return false
	}
	return true
}

// plausible checks a new segment against the run without a circle.
func (f *Fitter) plausible(prev, seg position.Segment) bool {
	first := f.segs.First()
	if seg.Start != prev.End {
		return false
	}
	if seg.Relative != first.Relative || seg.RelativeE != first.RelativeE || seg.Tool != first.Tool {
		return false
	}
	// A cusp cannot be an arc
	if prev.Delta().DotXY(seg.Delta()) <= 0 {
		return false
	}
	if math.Abs(seg.Feed-first.Feed) > f.cfg.FeedrateTolerance {
		return false
	}
	if sign(seg.E()) != sign(first.E()) {
		return false
	}
	return true
}

func (f *Fitter) at(i int, last position.Segment) position.Segment {
	if i == f.segs.Len() {
		return last
	}
	return f.segs.At(i)
}

// validate checks the run extended by seg against every tolerance.
func (f *Fitter) validate(est *Estimator, seg position.Segment) (Fit, bool) {
	cx, cy, _, ok := est.Circle()
	if !ok {
		return Fit{}, false
	}
	count := f.segs.Len() + 1
	p0 := f.segs.First().Start
	pn := seg.End

	full := math.Hypot(pn.X-p0.X, pn.Y-p0.Y) <= closeEps
	var r float64
	if full {
		_, _, r, _ = est.Circle()
	} else {
		// Put the centre on the perpendicular bisector of the chord so the
		// start and end radii agree exactly.
		mx, my := (p0.X+pn.X)/2, (p0.Y+pn.Y)/2
		dx, dy := pn.X-p0.X, pn.Y-p0.Y
		l := math.Hypot(dx, dy)
		nx, ny := -dy/l, dx/l
		t := (cx-mx)*nx + (cy-my)*ny
		cx, cy = mx+t*nx, my+t*ny
		r = math.Hypot(p0.X-cx, p0.Y-cy)
	}
	if r == 0 || r > f.cfg.MaxRadius {
		return Fit{}, false
	}

	maxDev := f.cfg.MaxDeviation
	f.dtheta = f.dtheta[:0]
	start := math.Atan2(p0.Y-cy, p0.X-cx)
	prev := start
	sweep := 0.0
	dir := 0.0
	pathLen := 0.0
	for i := 0; i < count; i++ {
		s := f.at(i, seg)
		e := s.End
		if math.Abs(math.Hypot(e.X-cx, e.Y-cy)-r) > maxDev {
			return Fit{}, false
		}
		mx, my := (s.Start.X+e.X)/2, (s.Start.Y+e.Y)/2
		if math.Abs(math.Hypot(mx-cx, my-cy)-r) > maxDev {
			return Fit{}, false
		}
		a := math.Atan2(e.Y-cy, e.X-cx)
		d := normalizeAngle(a - prev)
		if d == 0 || math.Abs(d) >= math.Pi {
			return Fit{}, false
		}
		if dir == 0 {
			dir = math.Copysign(1, d)
		} else if math.Copysign(1, d) != dir {
			return Fit{}, false
		}
		f.dtheta = append(f.dtheta, d)
		sweep += d
		prev = a
		pathLen += s.Length()
	}

	abs := math.Abs(sweep)
	if abs > twoPi+1e-9 {
		return Fit{}, false
	}
	if full && math.Abs(abs-twoPi) > 1e-6 {
		return Fit{}, false
	}

	z0, zn := p0.Z, pn.Z
	if f.cfg.Allow3D && z0 != zn {
		cum := 0.0
		for i := 0; i < count; i++ {
			cum += f.dtheta[i]
			want := z0 + (zn-z0)*cum/sweep
			if math.Abs(f.at(i, seg).End.Z-want) > maxDev {
				return Fit{}, false
			}
		}
	}

	length := math.Hypot(r*abs, zn-z0)
	if math.Abs(length-pathLen) > f.cfg.PathTolerance*pathLen {
		return Fit{}, false
	}

	etot := 0.0
	for i := 0; i < count; i++ {
		etot += f.at(i, seg).E()
	}
	if etot != 0 {
		for i := 0; i < count; i++ {
			want := etot * math.Abs(f.dtheta[i]) / abs
			tol := math.Max(f.cfg.ExtrusionTolerance*math.Abs(want), extrusionFloor)
			if math.Abs(f.at(i, seg).E()-want) > tol {
				return Fit{}, false
			}
		}
	}

	return Fit{
		Center:     position.Vector{X: cx, Y: cy},
		Radius:     r,
		StartAngle: start,
		Sweep:      sweep,
		Full:       full,
		Start:      p0,
		End:        pn,
		Length:     length,
		PathLength: pathLen,
		Segments:   count,
	}, true
}

// normalizeAngle maps a into (-pi, pi]
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= twoPi
	}
	for a <= -math.Pi {
		a += twoPi
	}
	return a
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
