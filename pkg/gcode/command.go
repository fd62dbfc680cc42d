// G-code command model
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package gcode parses single G-code lines into immutable commands.
//
// Only the commands that influence machine position or modes are
// interpreted; everything else is kept as an opaque passthrough so it can be
// reproduced byte for byte.
package gcode

import "strconv"

// Kind classifies a command by how it affects the motion state.
type Kind int

const (
	KindPassthrough Kind = iota
	KindLinearMove
	KindArcMove
	KindPositioningMode
	KindExtrusionMode
	KindOffset
	KindHome
	KindToolSelect
	KindCoordinateSystem
)

// String returns a short name for the kind
func (k Kind) String() string {
	switch k {
	case KindPassthrough:
		return "passthrough"
	case KindLinearMove:
		return "linear_move"
	case KindArcMove:
		return "arc_move"
	case KindPositioningMode:
		return "positioning_mode"
	case KindExtrusionMode:
		return "extrusion_mode"
	case KindOffset:
		return "offset"
	case KindHome:
		return "home"
	case KindToolSelect:
		return "tool_select"
	case KindCoordinateSystem:
		return "coordinate_system"
	default:
		return "unknown"
	}
}

// Param is one `<letter><number>` word.
type Param struct {
	Letter   byte    // upper case
	Value    float64 // parsed value, 0 when HasValue is false
	HasValue bool    // false for bare letters such as "G28 X"
	Decimals int     // digits written after the decimal point
	Text     string  // value as written, without the letter
}

// Command is one parsed line. Commands are never modified after Parse
// returns them.
type Command struct {
	code       string
	kind       Kind
	params     []Param
	comment    string
	hasComment bool
	raw        string
	malformed  bool
	annotated  bool
	named      string
}

// Code returns the normalised command code ("G1", "M83", "T0"), or "" for
// blank lines, comment-only lines and opaque text.
func (c *Command) Code() string { return c.code }

// Kind returns the command classification
func (c *Command) Kind() Kind { return c.kind }

// Raw returns the source text without its line ending
func (c *Command) Raw() string { return c.raw }

// Comment returns the text after ';' and whether the line had one
func (c *Command) Comment() (string, bool) { return c.comment, c.hasComment }

// Malformed reports whether a numeric word failed to parse, or the line
// starts with a code but could not be split into words. Malformed commands
// are emitted verbatim.
func (c *Command) Malformed() bool { return c.malformed }

// Annotated reports whether the line carries a line number, checksum or
// parenthesised comment. An arc cannot reproduce those, so annotated moves
// are tracked but never welded.
func (c *Command) Annotated() bool { return c.annotated }

// Named returns the distinct parameter letters written on the line, in
// order, including those whose value failed to parse.
func (c *Command) Named() string { return c.named }

// NumParams returns the number of parsed parameters
func (c *Command) NumParams() int { return len(c.params) }

// ParamAt returns the i-th parsed parameter in line order
func (c *Command) ParamAt(i int) Param { return c.params[i] }

// Param looks up a parameter by letter
func (c *Command) Param(letter byte) (Param, bool) {
	letter = upper(letter)
	for _, p := range c.params {
		if p.Letter == letter {
			return p, true
		}
	}
	return Param{}, false
}

// Has reports whether the letter was given, with or without a value
func (c *Command) Has(letter byte) bool {
	_, ok := c.Param(letter)
	return ok
}

// Get returns a parameter value. Bare letters report ok=false.
func (c *Command) Get(letter byte) (float64, bool) {
	p, ok := c.Param(letter)
	if !ok || !p.HasValue {
		return 0, false
	}
	return p.Value, true
}

// Clockwise reports whether an arc move is G2
func (c *Command) Clockwise() bool { return c.code == "G2" }

// Absolute reports whether a mode command selects absolute positioning
// (G90, M82)
func (c *Command) Absolute() bool { return c.code == "G90" || c.code == "M82" }

// Tool returns the extruder index of a T command
func (c *Command) Tool() int {
	if c.kind != KindToolSelect {
		return 0
	}
	n, err := strconv.Atoi(c.code[1:])
	if err != nil {
		return 0
	}
	return n
}

// MaxDecimals returns the largest number of decimals written for any of the
// given letters.
func (c *Command) MaxDecimals(letters string) int {
	max := 0
	for _, p := range c.params {
		if !p.HasValue || p.Decimals <= max {
			continue
		}
		for i := 0; i < len(letters); i++ {
			if letters[i] == p.Letter {
				max = p.Decimals
				break
			}
		}
	}
	return max
}

// IsMotion reports whether the command moves the tool
func (c *Command) IsMotion() bool {
	return c.kind == KindLinearMove || c.kind == KindArcMove
}

var kindByCode = map[string]Kind{
	"G0":    KindLinearMove,
	"G1":    KindLinearMove,
	"G2":    KindArcMove,
	"G3":    KindArcMove,
	"G90":   KindPositioningMode,
	"G91":   KindPositioningMode,
	"M82":   KindExtrusionMode,
	"M83":   KindExtrusionMode,
	"G92":   KindOffset,
	"G28":   KindHome,
	"G53":   KindCoordinateSystem,
	"G54":   KindCoordinateSystem,
	"G55":   KindCoordinateSystem,
	"G56":   KindCoordinateSystem,
	"G57":   KindCoordinateSystem,
	"G58":   KindCoordinateSystem,
	"G59":   KindCoordinateSystem,
	"G59.1": KindCoordinateSystem,
	"G59.2": KindCoordinateSystem,
	"G59.3": KindCoordinateSystem,
	"G92.1": KindCoordinateSystem,
	"G92.2": KindCoordinateSystem,
	"G92.3": KindCoordinateSystem,
}

func classify(code string) Kind {
	if k, ok := kindByCode[code]; ok {
		return k
	}
	if code[0] == 'T' && len(code) > 1 {
		for i := 1; i < len(code); i++ {
			if code[i] < '0' || code[i] > '9' {
				return KindPassthrough
			}
		}
		return KindToolSelect
	}
	return KindPassthrough
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
