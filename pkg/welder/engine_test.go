// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcwelder-go/pkg/arc"
	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/gcode"
)

func parseArc(t *testing.T, line string) *gcode.Command {
	t.Helper()
	require.True(t, isArc(line), "not an arc: %q", line)
	cmd, err := gcode.Parse(line)
	require.NoError(t, err)
	return cmd
}

func param(t *testing.T, cmd *gcode.Command, letter byte) float64 {
	t.Helper()
	v, ok := cmd.Get(letter)
	require.True(t, ok, "missing %c in %q", letter, cmd.Raw())
	return v
}

func TestWeldQuarterCircle(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 15)

	out, res := weld(t, p.text(), DefaultOptions())
	require.Len(t, out, 2)
	assert.Equal(t, p.lines[0], out[0])

	cmd := parseArc(t, out[1])
	assert.Equal(t, "G3", cmd.Code())
	assert.InDelta(t, p.x, param(t, cmd, 'X'), 1e-3)
	assert.InDelta(t, p.y, param(t, cmd, 'Y'), 1e-3)
	assert.InDelta(t, -10, param(t, cmd, 'I'), 0.01)
	assert.InDelta(t, 0, param(t, cmd, 'J'), 0.01)
	assert.InDelta(t, p.e, param(t, cmd, 'E'), 1e-5)
	assert.False(t, cmd.Has('F'))
	assert.False(t, cmd.Has('Z'))

	st := res.Stats
	assert.EqualValues(t, 16, st.InputLines)
	assert.EqualValues(t, 2, st.OutputLines)
	assert.EqualValues(t, 1, st.ArcsCommitted)
	assert.EqualValues(t, 15, st.SegmentsAbsorbed)
	assert.EqualValues(t, 14, st.PointsCompressed)
	assert.EqualValues(t, 15, st.SegmentsExamined)
	assert.Greater(t, st.CompressionRatio(), 1.0)
	assert.EqualValues(t, 15, st.SourceLengths.Count())
	assert.EqualValues(t, 1, st.TargetLengths.Count())
}

func TestWeldClockwise(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, -0.1, 12)

	out, _ := weld(t, p.text(), DefaultOptions())
	require.Len(t, out, 2)
	assert.Equal(t, "G2", parseArc(t, out[1]).Code())
}

func TestWeldFullCircle(t *testing.T) {
	for _, tc := range []struct {
		step float64
		code string
	}{
		{2 * math.Pi / 36, "G3"},
		{-2 * math.Pi / 36, "G2"},
	} {
		t.Run(tc.code, func(t *testing.T) {
			p := newProgram(55, 50)
			p.arc(50, 50, 5, 0, tc.step, 36)

			out, res := weld(t, p.text(), DefaultOptions())
			require.Len(t, out, 2)
			cmd := parseArc(t, out[1])
			assert.Equal(t, tc.code, cmd.Code())
			assert.Equal(t, 55.0, param(t, cmd, 'X'))
			assert.Equal(t, 50.0, param(t, cmd, 'Y'))
			assert.InDelta(t, -5, param(t, cmd, 'I'), 0.01)
			assert.InDelta(t, 0, param(t, cmd, 'J'), 0.01)
			assert.EqualValues(t, 36, res.Stats.SegmentsAbsorbed)
		})
	}
}

func TestStraightRunUnchanged(t *testing.T) {
	p := newProgram(0, 0)
	for i := 1; i <= 10; i++ {
		p.moveTo(float64(i), float64(i)*0.5, "")
	}

	out, res := weld(t, p.text(), DefaultOptions())
	assert.Equal(t, p.lines, out)
	assert.Zero(t, res.Stats.ArcsCommitted)
	assert.EqualValues(t, 10, res.Stats.SegmentsExamined)
	assert.Equal(t, res.Stats.InputBytes, res.Stats.OutputBytes)
}

func TestSingleMoveUnchanged(t *testing.T) {
	out, res := weld(t, "G1 X10 Y10 E1\n", DefaultOptions())
	assert.Equal(t, []string{"G1 X10 Y10 E1"}, out)
	assert.EqualValues(t, 1, res.Stats.InputLines)
	assert.Zero(t, res.Stats.ArcsCommitted)
}

func TestEmptyInput(t *testing.T) {
	out, res := weld(t, "", DefaultOptions())
	assert.Empty(t, out)
	assert.Zero(t, res.Stats.InputLines)
	assert.Equal(t, 1.0, res.Stats.CompressionRatio())
}

func TestModeChangeSplitsRun(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 8)
	p.add("G90")
	p.arc(50, 50, 10, 0.8, 0.1, 8)

	out, res := weld(t, p.text(), DefaultOptions())
	require.Len(t, out, 4)
	assert.True(t, isArc(out[1]))
	assert.Equal(t, "G90", out[2])
	assert.True(t, isArc(out[3]))
	assert.EqualValues(t, 2, res.Stats.ArcsCommitted)
}

func TestMalformedLinePassesThrough(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 8)
	p.add("G1 X1.2.3 Y4")
	p.add(fmt.Sprintf("G0 X%.3f Y%.3f", p.x, p.y))
	p.arc(50, 50, 10, 0.8, 0.1, 8)

	out, res := weld(t, p.text(), DefaultOptions())
	require.Len(t, out, 5)
	assert.True(t, isArc(out[1]))
	assert.Equal(t, "G1 X1.2.3 Y4", out[2])
	assert.True(t, isArc(out[4]))
	assert.EqualValues(t, 1, res.Stats.UnparsedLines)
	assert.EqualValues(t, 2, res.Stats.ArcsCommitted)
}

func TestUnrewritableMovePassesThrough(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 6)
	p.add("G1 X59 Y55 A3")
	out, res := weld(t, p.text(), DefaultOptions())
	require.Len(t, out, 3)
	assert.True(t, isArc(out[1]))
	assert.Equal(t, "G1 X59 Y55 A3", out[2])
	assert.EqualValues(t, 1, res.Stats.UnrewritableMoves)
}

func TestMinArcSegmentsGate(t *testing.T) {
	two := newProgram(60, 50)
	two.arc(50, 50, 10, 0, 0.1, 2)
	out, res := weld(t, two.text(), DefaultOptions())
	assert.Equal(t, two.lines, out)
	assert.Zero(t, res.Stats.ArcsCommitted)

	opts := DefaultOptions()
	opts.MinArcSegments = 5

	four := newProgram(60, 50)
	four.arc(50, 50, 10, 0, 0.1, 4)
	out, _ = weld(t, four.text(), opts)
	assert.Equal(t, four.lines, out)

	five := newProgram(60, 50)
	five.arc(50, 50, 10, 0, 0.1, 5)
	out, res = weld(t, five.text(), opts)
	require.Len(t, out, 2)
	assert.EqualValues(t, 5, res.Stats.SegmentsAbsorbed)
}

func TestArcMustBeShorter(t *testing.T) {
	input := "G0 X5 Y0\nG1 X4 Y3\nG1 X3 Y4.01\nG1 X0 Y5\n"
	opts := DefaultOptions()
	opts.MaxDeviation = 0.5

	out, res := weld(t, input, opts)
	require.Len(t, out, 2)
	assert.True(t, isArc(out[1]))
	assert.Less(t, len(out[1]), len("G1 X4 Y3G1 X3 Y4.01G1 X0 Y5"))
	assert.EqualValues(t, 1, res.Stats.ArcsCommitted)

	opts.XYZPrecision = 6
	out, res = weld(t, input, opts)
	assert.Equal(t, splitLines(input), out)
	assert.Zero(t, res.Stats.ArcsCommitted)
	assert.EqualValues(t, 1, res.Stats.ArcsRejected)
}

func commentProgram() *program {
	p := newProgram(60, 50)
	suffix := []string{"", ";a", "", "; b ", "", ";c", ";"}
	for i := 1; i <= 6; i++ {
		a := 0.1 * float64(i)
		p.moveTo(50+10*math.Cos(a), 50+10*math.Sin(a), suffix[i])
	}
	return p
}

func TestCommentPolicy(t *testing.T) {
	opts := DefaultOptions()
	require.Equal(t, CommentRelocate, opts.CommentPolicy)

	out, _ := weld(t, commentProgram().text(), opts)
	require.Len(t, out, 2)
	assert.True(t, strings.HasSuffix(out[1], " ;a | b | c"), out[1])
	c, ok := parseArc(t, out[1]).Comment()
	assert.True(t, ok)
	assert.Equal(t, "a | b | c", c)

	opts.CommentPolicy = CommentDrop
	out, _ = weld(t, commentProgram().text(), opts)
	require.Len(t, out, 2)
	assert.NotContains(t, out[1], ";")
}

func TestFeedCopiedFromFirstMove(t *testing.T) {
	input := strings.Join([]string{
		"G0 X60 Y50",
		fmt.Sprintf("G1 X%.3f Y%.3f E0.05 F1500.0", 50+10*math.Cos(0.1), 50+10*math.Sin(0.1)),
		fmt.Sprintf("G1 X%.3f Y%.3f E0.1", 50+10*math.Cos(0.2), 50+10*math.Sin(0.2)),
		fmt.Sprintf("G1 X%.3f Y%.3f E0.15", 50+10*math.Cos(0.3), 50+10*math.Sin(0.3)),
		fmt.Sprintf("G1 X%.3f Y%.3f E0.2", 50+10*math.Cos(0.4), 50+10*math.Sin(0.4)),
	}, "\n") + "\n"

	out, _ := weld(t, input, DefaultOptions())
	require.Len(t, out, 2)
	assert.True(t, strings.HasSuffix(out[1], " E0.2 F1500.0"), out[1])
}

func TestFeedChangeSplitsRun(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 5)
	a := 0.6
	p.e += 0.05
	p.add(fmt.Sprintf("G1 X%.3f Y%.3f E%.5f F900", 50+10*math.Cos(a), 50+10*math.Sin(a), p.e))
	p.x, p.y = 50+10*math.Cos(a), 50+10*math.Sin(a)
	p.arc(50, 50, 10, a, 0.1, 5)

	out, res := weld(t, p.text(), DefaultOptions())
	assert.EqualValues(t, 2, res.Stats.ArcsCommitted)
	require.Len(t, out, 3)
	assert.True(t, strings.HasSuffix(out[2], " F900"), out[2])
}

func helix(p *program, z0, dz float64, n int) {
	for i := 1; i <= n; i++ {
		a := 0.1 * float64(i)
		x, y := 50+10*math.Cos(a), 50+10*math.Sin(a)
		p.e += math.Hypot(x-p.x, y-p.y) * 0.05
		p.x, p.y = x, y
		p.add(fmt.Sprintf("G1 X%.3f Y%.3f Z%.3f E%.5f", x, y, z0+dz*float64(i), p.e))
	}
}

func TestHelixNeedsAllow3D(t *testing.T) {
	opts := DefaultOptions()
	require.False(t, opts.Allow3DArcs)

	p := newProgram(60, 50)
	helix(p, 0, 0.02, 10)

	out, res := weld(t, p.text(), opts)
	assert.Equal(t, p.lines, out)
	assert.Zero(t, res.Stats.ArcsCommitted)

	opts.Allow3DArcs = true
	out, res = weld(t, p.text(), opts)
	require.Len(t, out, 2)
	cmd := parseArc(t, out[1])
	assert.InDelta(t, 0.2, param(t, cmd, 'Z'), 1e-9)
	assert.EqualValues(t, 1, res.Stats.ArcsCommitted)
}

func TestRelativeExtrusionSumsDeltas(t *testing.T) {
	lines := []string{"M83", "G0 X60 Y50 F1800"}
	x, y, total := 60.0, 50.0, 0.0
	for i := 1; i <= 10; i++ {
		a := 0.1 * float64(i)
		nx, ny := 50+10*math.Cos(a), 50+10*math.Sin(a)
		e := math.Round(math.Hypot(nx-x, ny-y)*0.05*1e5) / 1e5
		total += e
		x, y = nx, ny
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.5f", nx, ny, e))
	}

	out, _ := weld(t, strings.Join(lines, "\n")+"\n", DefaultOptions())
	require.Len(t, out, 3)
	assert.InDelta(t, total, param(t, parseArc(t, out[2]), 'E'), 1e-5)
}

func TestRelativePositioning(t *testing.T) {
	lines := []string{"G91", "M83"}
	x, y := 10.0, 0.0
	for i := 1; i <= 10; i++ {
		a := 0.1 * float64(i)
		nx, ny := 10*math.Cos(a), 10*math.Sin(a)
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E0.05", nx-x, ny-y))
		x, y = nx, ny
	}
	input := strings.Join(lines, "\n") + "\n"

	out, _ := weld(t, input, DefaultOptions())
	require.Len(t, out, 3)
	parseArc(t, out[2])

	in := replay(t, splitLines(input))
	got := replay(t, out)
	assert.InDelta(t, in.end.X, got.end.X, 1e-3)
	assert.InDelta(t, in.end.Y, got.end.Y, 1e-3)
	assert.InDelta(t, in.endE, got.endE, 1e-5)
}

func TestLineEndingsPreserved(t *testing.T) {
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 6)
	p.add("M400")
	input := strings.Join(p.lines, "\r\n")

	out, _, err := WeldString(context.Background(), input, DefaultOptions())
	require.NoError(t, err)
	lines := strings.Split(out, "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, p.lines[0], lines[0])
	assert.True(t, isArc(lines[1]))
	assert.Equal(t, "M400", lines[2])
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestEngineStates(t *testing.T) {
	var sink Collector
	eng, err := New(DefaultOptions(), &sink)
	require.NoError(t, err)

	require.NoError(t, eng.Push("G0 X60 Y50 F1800", "\n"))
	assert.Equal(t, arc.StateIdle, eng.State())
	assert.Equal(t, []string{"G0 X60 Y50 F1800"}, sink.Lines())

	p := &program{x: 60, y: 50}
	p.arc(50, 50, 10, 0, 0.1, 4)
	require.NoError(t, eng.Push(p.lines[0], "\n"))
	assert.Equal(t, arc.StateSeeded, eng.State())
	require.NoError(t, eng.Push(p.lines[1], "\n"))
	require.NoError(t, eng.Push(p.lines[2], "\n"))
	assert.Equal(t, arc.StateGrowing, eng.State())
	assert.Len(t, sink.Lines(), 1, "pending moves are held back")

	// a straight move that leaves the circle ends the attempt and seeds a new one
	require.NoError(t, eng.Push("G1 X40 Y80", "\n"))
	assert.Equal(t, arc.StateSeeded, eng.State())
	require.Len(t, sink.Lines(), 2)
	assert.True(t, isArc(sink.Lines()[1]))

	st, err := eng.Close()
	require.NoError(t, err)
	assert.Equal(t, []string{"G1 X40 Y80"}, sink.Lines()[2:])
	assert.EqualValues(t, 5, st.InputLines)
	assert.EqualValues(t, 3, st.OutputLines)
	assert.Equal(t, arc.StateIdle, eng.State())

	err = eng.Push("G1 X1 Y1", "\n")
	assert.Error(t, err)
	_, err = eng.Close()
	assert.NoError(t, err)
}

func TestEngineAbortEmitsPendingUnchanged(t *testing.T) {
	var sink Collector
	eng, err := New(DefaultOptions(), &sink)
	require.NoError(t, err)

	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 8)
	for _, l := range p.lines {
		require.NoError(t, eng.Push(l, "\n"))
	}
	st, err := eng.Abort()
	require.NoError(t, err)
	assert.Equal(t, p.lines, sink.Lines())
	assert.Zero(t, st.ArcsCommitted)
}

type failingSink struct{}

func (failingSink) WriteLine(string, string) error { return fmt.Errorf("disk full") }

func TestEngineSinkError(t *testing.T) {
	eng, err := New(DefaultOptions(), failingSink{})
	require.NoError(t, err)
	err = eng.Push("M104 S200", "\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestEngineRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDeviation = 0
	_, err := New(opts, &Collector{})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	_, err = New(DefaultOptions(), nil)
	assert.Error(t, err)
}

func TestDynamicPrecision(t *testing.T) {
	p := newProgram(60, 50)
	p.lines[0] = "G0 X60.00000 Y50.00000 F1800"
	p.arc(50, 50, 10, 0, 0.1, 8)

	opts := DefaultOptions()
	out, _ := weld(t, p.text(), opts)
	require.Len(t, out, 2)
	assert.Greater(t, maxDecimals(t, out[1]), 3)

	opts.DynamicPrecision = false
	out, _ = weld(t, p.text(), opts)
	require.Len(t, out, 2)
	assert.LessOrEqual(t, maxDecimals(t, out[1]), 3)
}

func maxDecimals(t *testing.T, line string) int {
	t.Helper()
	return parseArc(t, line).MaxDecimals("XYIJ")
}

func TestDecoratedMovesKeepArcCentre(t *testing.T) {
	forms := map[string]string{
		"paren comment":    "G1 X%.3f Y%.3f E%.5f (wipe)",
		"line number":      "N42 G1 X%.3f Y%.3f E%.5f*57",
		"compact words":    "G1X%.3fY%.3fE%.5f",
		"number compact":   "N42G1X%.3fY%.3fE%.5f*57",
		"comment+checksum": "N7 G1 X%.3f Y%.3f E%.5f (wipe) *12",
	}
	for name, format := range forms {
		t.Run(name, func(t *testing.T) {
			p := newProgram(10, 0)
			p.arc(0, 0, 10, 0, 0.1, 8)
			a := 0.9
			x, y := 10*math.Cos(a), 10*math.Sin(a)
			p.e += math.Hypot(x-p.x, y-p.y) * 0.05
			p.x, p.y = x, y
			decorated := fmt.Sprintf(format, x, y, p.e)
			p.add(decorated, "M106 S255")
			p.arc(0, 0, 10, a, 0.1, 8)

			opts := DefaultOptions()
			out, res := weld(t, p.text(), opts)
			assert.Zero(t, res.Stats.UnparsedLines)
			if !strings.HasPrefix(format, "G1X") {
				assert.Contains(t, out, decorated)
			}

			in := replay(t, p.lines)
			got := replay(t, out)
			for _, q := range in.points {
				best := -1.0
				for _, pc := range got.pieces {
					if d := pc.distance(q); best < 0 || d < best {
						best = d
					}
				}
				require.LessOrEqual(t, best, opts.MaxDeviation+outputSlack, "point %v", q)
			}
			assert.InDelta(t, in.end.X, got.end.X, 1e-3)
			assert.InDelta(t, in.end.Y, got.end.Y, 1e-3)
			assert.InDelta(t, in.endE, got.endE, 1e-4)

			for _, line := range out {
				if !isArc(line) {
					continue
				}
				cmd := parseArc(t, line)
				radius := math.Hypot(param(t, cmd, 'I'), param(t, cmd, 'J'))
				assert.InDelta(t, 10, radius, 0.05, "arc %q", line)
			}
		})
	}
}

func TestUnreadableMoveForgetsPosition(t *testing.T) {
	p := newProgram(10, 0)
	p.arc(0, 0, 10, 0, 0.1, 8)
	p.add("G1 X9 Y4 (unclosed", "M106 S255")
	p.arc(0, 0, 10, 0.8, 0.1, 8)

	out, res := weld(t, p.text(), DefaultOptions())
	assert.EqualValues(t, 1, res.Stats.UnparsedLines)
	assert.Contains(t, out, "G1 X9 Y4 (unclosed")
	// Nothing after the unreadable move starts from a known point.
	idx := 0
	for i, line := range out {
		if line == "G1 X9 Y4 (unclosed" {
			idx = i
		}
	}
	for _, line := range out[idx+1:] {
		assert.False(t, isArc(line), "welded %q after an unknown position", line)
	}
}

func TestBadNumericWordsCountedUnparsed(t *testing.T) {
	bad := []string{"M104 S2x0", "M106 S1e", "G4 P5q", "M220 S-"}
	p := newProgram(60, 50)
	p.arc(50, 50, 10, 0, 0.1, 8)
	p.add(bad...)
	p.arc(50, 50, 10, 0.8, 0.1, 8)

	out, res := weld(t, p.text(), DefaultOptions())
	assert.EqualValues(t, len(bad), res.Stats.UnparsedLines)
	for _, line := range bad {
		assert.Contains(t, out, line)
	}
	assert.EqualValues(t, 2, res.Stats.ArcsCommitted)
}
