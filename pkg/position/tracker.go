// Machine state tracker
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package position tracks the logical machine position implied by a G-code
// stream and turns linear moves into absolute segments.
package position

import (
	"strings"

	"arcwelder-go/pkg/gcode"
)

// Axis letters in index order. X, Y and Z are geometric; the rest are
// tracked only so that moves touching them are recognised.
const axisLetters = "XYZABCUVW"

const numAxes = len(axisLetters)

// SupportedAxes lists every letter accepted in an enabled axis set
const SupportedAxes = axisLetters + "E"

// Status tells the caller what Apply derived from a command.
type Status int

const (
	// StatusNone: not a linear move, or a move that cannot form a segment
	// (rapid, zero XY displacement). The command is passed through.
	StatusNone Status = iota
	// StatusSegment: a weldable segment was produced.
	StatusSegment
	// StatusUnrewritable: a move that must be passed through because it
	// touches an axis outside the enabled set, carries non-linear
	// parameters, or starts or ends at an unknown position.
	StatusUnrewritable
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusSegment:
		return "segment"
	case StatusUnrewritable:
		return "unrewritable"
	default:
		return "unknown"
	}
}

// Segment is one linear move in absolute logical coordinates.
type Segment struct {
	Start, End   Vector
	EStart, EEnd float64 // extruder position before and after the move
	Feed         float64 // feed rate in effect, in the units written
	HasFeed      bool    // the source command carried F
	HasE         bool    // the source command carried E
	Relative     bool    // XYZ were written relative
	RelativeE    bool    // E was written relative
	Tool         int
	Source       *gcode.Command
}

// E returns the extruder delta of the move
func (s Segment) E() float64 { return s.EEnd - s.EStart }

// Delta returns the XYZ displacement
func (s Segment) Delta() Vector { return s.End.Sub(s.Start) }

// Length returns the XYZ travel distance
func (s Segment) Length() float64 { return s.Delta().Norm() }

// Options configures a tracker.
type Options struct {
	// EnabledAxes is the set of axis letters that may appear in a weldable
	// move, e.g. "XYZE".
	EnabledAxes string
	// G90InfluencesExtruder makes G90/G91 also switch the extruder mode.
	G90InfluencesExtruder bool
}

// Tracker maintains the cumulative effect of every command applied.
type Tracker struct {
	opts    Options
	enabled [numAxes]bool
	eOn     bool

	pos    [numAxes]float64
	known  [numAxes]bool
	offset [numAxes]float64

	tool    int
	e       map[int]float64
	eKnown  map[int]bool
	eOffset map[int]float64

	relative  bool
	relativeE bool
	feed      float64
}

// NewTracker returns a tracker at the origin with every axis known,
// absolute positioning and absolute extrusion.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		opts:    opts,
		e:       map[int]float64{0: 0},
		eKnown:  map[int]bool{0: true},
		eOffset: map[int]float64{},
	}
	axes := strings.ToUpper(opts.EnabledAxes)
	for i := 0; i < numAxes; i++ {
		t.enabled[i] = strings.IndexByte(axes, axisLetters[i]) >= 0
		t.known[i] = true
	}
	t.eOn = strings.IndexByte(axes, 'E') >= 0
	return t
}

func axisIndex(letter byte) int {
	return strings.IndexByte(axisLetters, letter)
}

// Apply folds one command into the state. For a linear move it returns the
// resulting segment and whether it may be welded.
func (t *Tracker) Apply(cmd *gcode.Command) (Segment, Status) {
	if cmd.Malformed() {
		switch cmd.Kind() {
		case gcode.KindLinearMove, gcode.KindArcMove, gcode.KindOffset, gcode.KindHome:
			t.invalidate(cmd)
			return Segment{}, StatusNone
		}
	}
	switch cmd.Kind() {
	case gcode.KindLinearMove:
		return t.linearMove(cmd)
	case gcode.KindArcMove:
		t.move(cmd)
	case gcode.KindPositioningMode:
		t.relative = !cmd.Absolute()
		if t.opts.G90InfluencesExtruder {
			t.relativeE = t.relative
		}
	case gcode.KindExtrusionMode:
		t.relativeE = !cmd.Absolute()
	case gcode.KindOffset:
		t.setPosition(cmd)
	case gcode.KindHome:
		t.home(cmd)
	case gcode.KindToolSelect:
		t.selectTool(cmd.Tool())
	case gcode.KindCoordinateSystem:
		for i := range t.known {
			t.known[i] = false
		}
	}
	return Segment{}, StatusNone
}

func (t *Tracker) linearMove(cmd *gcode.Command) (Segment, Status) {
	seg := Segment{
		Start:     t.Position(),
		EStart:    t.e[t.tool],
		Relative:  t.relative,
		RelativeE: t.relativeE,
		Tool:      t.tool,
		Source:    cmd,
	}
	startKnown := t.known
	startEKnown := t.eKnown[t.tool]

	rewritable := t.move(cmd)

	seg.End = t.Position()
	seg.EEnd = t.e[t.tool]
	seg.Feed = t.feed
	seg.HasFeed = cmd.Has('F')
	seg.HasE = cmd.Has('E')

	if !rewritable {
		return seg, StatusUnrewritable
	}
	for i := 0; i < 3; i++ {
		if !startKnown[i] || !t.known[i] {
			return seg, StatusUnrewritable
		}
	}
	if seg.HasE && !seg.RelativeE && !startEKnown {
		return seg, StatusUnrewritable
	}
	if seg.Delta().NormXY() == 0 || cmd.Code() == "G0" {
		return seg, StatusNone
	}
	if cmd.Annotated() {
		return seg, StatusUnrewritable
	}
	return seg, StatusSegment
}

// move applies the axis, E and F words of a motion command and reports
// whether a linear move may be rewritten.
func (t *Tracker) move(cmd *gcode.Command) bool {
	rewritable := true
	for i := 0; i < cmd.NumParams(); i++ {
		p := cmd.ParamAt(i)
		switch p.Letter {
		case 'F':
			t.feed = p.Value
		case 'E':
			if !t.eOn {
				rewritable = false
			}
			if t.relativeE {
				t.e[t.tool] += p.Value
			} else {
				t.e[t.tool] = p.Value
				t.eKnown[t.tool] = true
			}
		default:
			idx := axisIndex(p.Letter)
			if idx < 0 {
				// I J K R, laser power and the like
				rewritable = false
				continue
			}
			if !t.enabled[idx] {
				rewritable = false
			}
			prev := t.pos[idx]
			if t.relative {
				t.pos[idx] += p.Value
			} else {
				t.pos[idx] = p.Value
				t.known[idx] = true
			}
			if idx >= 3 && t.pos[idx] != prev {
				rewritable = false
			}
		}
	}
	return rewritable
}

// setPosition handles G92.
func (t *Tracker) setPosition(cmd *gcode.Command) {
	named := false
	for i := 0; i < cmd.NumParams(); i++ {
		p := cmd.ParamAt(i)
		if !p.HasValue {
			continue
		}
		if p.Letter == 'E' {
			if t.eKnown[t.tool] {
				t.eOffset[t.tool] += t.e[t.tool] - p.Value
			}
			t.e[t.tool] = p.Value
			t.eKnown[t.tool] = true
			named = true
			continue
		}
		if idx := axisIndex(p.Letter); idx >= 0 {
			if t.known[idx] {
				t.offset[idx] += t.pos[idx] - p.Value
			}
			t.pos[idx] = p.Value
			t.known[idx] = true
			named = true
		}
	}
	if named {
		return
	}
	for i := range t.pos {
		if t.known[i] {
			t.offset[i] += t.pos[i]
		}
		t.pos[i] = 0
		t.known[i] = true
	}
	if t.eKnown[t.tool] {
		t.eOffset[t.tool] += t.e[t.tool]
	}
	t.e[t.tool] = 0
	t.eKnown[t.tool] = true
}

// home handles G28. Homed axes are at logical zero. Letters that are not
// enabled axes are firmware flags ("G28 W" skips mesh leveling on Prusa).
func (t *Tracker) home(cmd *gcode.Command) {
	named := false
	for i := 0; i < cmd.NumParams(); i++ {
		if idx := axisIndex(cmd.ParamAt(i).Letter); idx >= 0 && t.enabled[idx] {
			t.pos[idx] = 0
			t.known[idx] = true
			named = true
		}
	}
	if named {
		return
	}
	for i := range t.pos {
		t.pos[i] = 0
		t.known[i] = true
	}
}

func (t *Tracker) selectTool(tool int) {
	t.tool = tool
	if _, ok := t.e[tool]; !ok {
		t.e[tool] = 0
		t.eKnown[tool] = true
	}
}

// invalidate forgets the axes named by a malformed motion line. A line
// without any recognisable axis word forgets XYZ and E.
func (t *Tracker) invalidate(cmd *gcode.Command) {
	named := false
	for _, letter := range []byte(cmd.Named()) {
		if letter == 'E' {
			t.eKnown[t.tool] = false
			named = true
		} else if idx := axisIndex(letter); idx >= 0 {
			t.known[idx] = false
			named = true
		}
	}
	if !named {
		for i := 0; i < 3; i++ {
			t.known[i] = false
		}
		t.eKnown[t.tool] = false
	}
}

// Position returns the logical XYZ position
func (t *Tracker) Position() Vector {
	return Vector{X: t.pos[0], Y: t.pos[1], Z: t.pos[2]}
}

// Axis returns the logical position of one axis letter and whether it is known
func (t *Tracker) Axis(letter byte) (float64, bool) {
	if letter == 'E' {
		return t.e[t.tool], t.eKnown[t.tool]
	}
	idx := axisIndex(letter)
	if idx < 0 {
		return 0, false
	}
	return t.pos[idx], t.known[idx]
}

// Offset returns the accumulated G92 offset of an axis letter
func (t *Tracker) Offset(letter byte) float64 {
	if letter == 'E' {
		return t.eOffset[t.tool]
	}
	idx := axisIndex(letter)
	if idx < 0 {
		return 0
	}
	return t.offset[idx]
}

// E returns the logical position of the active extruder
func (t *Tracker) E() float64 { return t.e[t.tool] }

// Tool returns the active extruder index
func (t *Tracker) Tool() int { return t.tool }

// Feed returns the last commanded feed rate
func (t *Tracker) Feed() float64 { return t.feed }

// Relative reports whether XYZ are interpreted relative (G91)
func (t *Tracker) Relative() bool { return t.relative }

// RelativeE reports whether E is interpreted relative (M83)
func (t *Tracker) RelativeE() bool { return t.relativeE }
