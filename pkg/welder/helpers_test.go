// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"arcwelder-go/pkg/gcode"
	"arcwelder-go/pkg/position"
)

// program builds G-code text for tests. Coordinates use three decimals and
// absolute E five, like slicer output.
type program struct {
	lines []string
	x, y  float64
	e     float64
}

func newProgram(x, y float64) *program {
	p := &program{x: x, y: y}
	p.add(fmt.Sprintf("G0 X%.3f Y%.3f F1800", x, y))
	return p
}

func (p *program) add(lines ...string) { p.lines = append(p.lines, lines...) }

func (p *program) moveTo(x, y float64, suffix string) {
	p.e += math.Hypot(x-p.x, y-p.y) * 0.05
	p.x, p.y = x, y
	p.add(fmt.Sprintf("G1 X%.3f Y%.3f E%.5f%s", x, y, p.e, suffix))
}

// arc adds n moves around (cx, cy) starting at angle a0 in steps of step
// radians. The current position must already be the start point.
func (p *program) arc(cx, cy, r, a0, step float64, n int) {
	for i := 1; i <= n; i++ {
		a := a0 + step*float64(i)
		p.moveTo(cx+r*math.Cos(a), cy+r*math.Sin(a), "")
	}
}

func (p *program) text() string { return strings.Join(p.lines, "\n") + "\n" }

func weld(t *testing.T, input string, opts Options) ([]string, *Result) {
	t.Helper()
	out, res, err := WeldString(context.Background(), input, opts)
	require.NoError(t, err)
	require.False(t, res.Incomplete)
	return splitLines(out), res
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func isArc(line string) bool {
	return strings.HasPrefix(line, "G2 ") || strings.HasPrefix(line, "G3 ")
}

func countArcs(lines []string) int {
	n := 0
	for _, l := range lines {
		if isArc(l) {
			n++
		}
	}
	return n
}

// pathPiece is one move of a replayed output path.
type pathPiece struct {
	isArc      bool
	start, end position.Vector
	center     position.Vector
	radius     float64
	startAngle float64
	sweep      float64
}

func (pp pathPiece) distance(q position.Vector) float64 {
	if pp.isArc {
		a := math.Atan2(q.Y-pp.center.Y, q.X-pp.center.X)
		var off float64
		if pp.sweep > 0 {
			off = math.Mod(a-pp.startAngle+4*math.Pi, 2*math.Pi)
		} else {
			off = math.Mod(pp.startAngle-a+4*math.Pi, 2*math.Pi)
		}
		if off <= math.Abs(pp.sweep)+1e-9 {
			return math.Abs(math.Hypot(q.X-pp.center.X, q.Y-pp.center.Y) - pp.radius)
		}
		return math.Min(q.Sub(pp.start).NormXY(), q.Sub(pp.end).NormXY())
	}
	d := pp.end.Sub(pp.start)
	l2 := d.DotXY(d)
	if l2 == 0 {
		return q.Sub(pp.start).NormXY()
	}
	t := math.Max(0, math.Min(1, q.Sub(pp.start).DotXY(d)/l2))
	return q.Sub(pp.start.Add(d.Scale(t))).NormXY()
}

// replay runs lines through a tracker and returns the moves, plus the
// endpoint and extruder position of every G1.
type replayed struct {
	pieces []pathPiece
	points []position.Vector
	arcEnd []struct {
		at position.Vector
		e  float64
	}
	eAt  map[string]float64
	end  position.Vector
	endE float64
}

func replay(t *testing.T, lines []string) replayed {
	t.Helper()
	tr := position.NewTracker(position.Options{EnabledAxes: "XYZE"})
	r := replayed{eAt: map[string]float64{}}
	for _, line := range lines {
		cmd, _ := gcode.Parse(line)
		start := tr.Position()
		tr.Apply(cmd)
		end := tr.Position()
		switch cmd.Kind() {
		case gcode.KindLinearMove:
			r.pieces = append(r.pieces, pathPiece{start: start, end: end})
			r.points = append(r.points, end)
			r.eAt[key(end)] = tr.E()
		case gcode.KindArcMove:
			i, _ := cmd.Get('I')
			j, _ := cmd.Get('J')
			c := position.Vector{X: start.X + i, Y: start.Y + j}
			a0 := math.Atan2(start.Y-c.Y, start.X-c.X)
			a1 := math.Atan2(end.Y-c.Y, end.X-c.X)
			var sweep float64
			if cmd.Clockwise() {
				sweep = -math.Mod(a0-a1+4*math.Pi, 2*math.Pi)
				if sweep == 0 {
					sweep = -2 * math.Pi
				}
			} else {
				sweep = math.Mod(a1-a0+4*math.Pi, 2*math.Pi)
				if sweep == 0 {
					sweep = 2 * math.Pi
				}
			}
			r.pieces = append(r.pieces, pathPiece{
				isArc: true, start: start, end: end, center: c,
				radius: math.Hypot(start.X-c.X, start.Y-c.Y), startAngle: a0, sweep: sweep,
			})
			r.arcEnd = append(r.arcEnd, struct {
				at position.Vector
				e  float64
			}{end, tr.E()})
		}
	}
	r.end = tr.Position()
	r.endE = tr.E()
	return r
}

func key(v position.Vector) string {
	return fmt.Sprintf("%.3f,%.3f", v.X, v.Y)
}

// randomProgram mixes noisy arcs of random radius and direction with
// straight runs and non-move lines.
func randomProgram(rng *rand.Rand) string {
	p := newProgram(100, 100)
	p.lines = append([]string{"G90", "M82", "G92 E0"}, p.lines...)
	for k := 0; k < 12; k++ {
		switch rng.Intn(4) {
		case 0:
			heading := rng.Float64() * 2 * math.Pi
			for i, n := 0, 2+rng.Intn(6); i < n; i++ {
				step := 0.5 + rng.Float64()*1.5
				p.moveTo(p.x+step*math.Cos(heading), p.y+step*math.Sin(heading), "")
			}
		default:
			r := 3 + rng.Float64()*40
			a0 := rng.Float64() * 2 * math.Pi
			cx, cy := p.x-r*math.Cos(a0), p.y-r*math.Sin(a0)
			step := (0.3 + rng.Float64()*0.9) / r
			if rng.Intn(2) == 0 {
				step = -step
			}
			for i, n := 1, 3+rng.Intn(30); i <= n; i++ {
				a := a0 + step*float64(i)
				nx := cx + r*math.Cos(a) + (rng.Float64()-0.5)*0.01
				ny := cy + r*math.Sin(a) + (rng.Float64()-0.5)*0.01
				p.moveTo(nx, ny, "")
			}
		}
		switch rng.Intn(3) {
		case 0:
			p.add(fmt.Sprintf("M106 S%d", rng.Intn(256)))
		case 1:
			p.add(fmt.Sprintf(";TYPE:block-%d", k))
		}
	}
	return p.text()
}
