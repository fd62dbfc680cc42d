// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/welder"
)

// arcProgram is a quarter turn of radius 10 around (50, 50) in 15 moves.
func arcProgram() string {
	var sb strings.Builder
	sb.WriteString("G90\nM82\nG92 E0\nG0 X60.000 Y50.000 F1800\n")
	px, py, e := 60.0, 50.0, 0.0
	for i := 1; i <= 15; i++ {
		a := float64(i) * 0.1
		x := math.Round((50+10*math.Cos(a))*1000) / 1000
		y := math.Round((50+10*math.Sin(a))*1000) / 1000
		e += math.Hypot(x-px, y-py) * 0.05
		fmt.Fprintf(&sb, "G1 X%.3f Y%.3f E%.5f\n", x, y, e)
		px, py = x, y
	}
	sb.WriteString("M107\n")
	return sb.String()
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

type cliResult struct {
	app    *app
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, ctx context.Context, args ...string) cliResult {
	t.Helper()
	cmd, a := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "warn"}, args...))
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return cliResult{app: a, stdout: out.String(), stderr: errOut.String(), err: err}
}

func TestOutputPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"part.gcode", "part.aw.gcode"},
		{"dir/part.GCODE", "dir/part.aw.gcode"},
		{"part", "part.aw.gcode"},
		{"a.b.gco", "a.b.aw.gcode"},
		{"-", "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outputPath(tt.in), tt.in)
	}
	assert.True(t, isWeldOutput("x/part.AW.gcode"))
	assert.False(t, isWeldOutput("part.gcode"))
	assert.True(t, isWeldInput("part.gcode"))
	assert.False(t, isWeldInput("part.aw.gcode"))
	assert.False(t, isWeldInput("notes.txt"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(fmt.Errorf("boom")))
	assert.Equal(t, 1, exitCode(errors.RuntimeError("boom")))
	assert.Equal(t, 2, exitCode(errors.ConfigValidationError("max_deviation", "must be above 0")))
	assert.Equal(t, 2, exitCode(errors.ConfigOptionError("config", fmt.Errorf("missing"))))
	assert.Equal(t, 3, exitCode(errors.CancelledError(4, context.Canceled)))
}

func TestWeldFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())

	res := runCLI(t, context.Background(), in)
	require.NoError(t, res.err)

	data, err := os.ReadFile(filepath.Join(dir, "part.aw.gcode"))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "\nG3 X")
	assert.True(t, strings.HasSuffix(out, "M107\n"))
	assert.Less(t, len(out), len(arcProgram()))
	assert.Empty(t, res.stdout)
}

func TestWeldFileExplicitOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())
	out := filepath.Join(dir, "welded.gcode")

	res := runCLI(t, context.Background(), in, out)
	require.NoError(t, res.err)
	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "part.aw.gcode"))
}

func TestWeldFileSameAsInput(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())

	res := runCLI(t, context.Background(), in, in)
	require.Error(t, res.err)
	assert.True(t, errors.IsConfig(res.err))

	data, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, arcProgram(), string(data))
}

func TestWeldFileMissingInput(t *testing.T) {
	res := runCLI(t, context.Background(), filepath.Join(t.TempDir(), "nope.gcode"))
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, errors.ErrIO))
	assert.Equal(t, 1, exitCode(res.err))
}

func TestStatsJSON(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())

	res := runCLI(t, context.Background(), "--stats", "json", in)
	require.NoError(t, res.err)

	var st welder.Stats
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &st))
	assert.Equal(t, int64(1), st.ArcsCommitted)
	assert.Equal(t, int64(15), st.SegmentsAbsorbed)
	assert.Equal(t, int64(20), st.InputLines)
	assert.Equal(t, int64(6), st.OutputLines)
}

func TestStatsYAMLAndText(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())

	res := runCLI(t, context.Background(), "--stats", "yaml", in)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "arcs_committed: 1")

	res = runCLI(t, context.Background(), "--stats", "text", in)
	require.NoError(t, res.err)
	assert.NotEmpty(t, res.stdout)

	res = runCLI(t, context.Background(), "--stats", "xml", in)
	require.Error(t, res.err)
	assert.True(t, errors.IsConfig(res.err))
}

func TestOptionPrecedence(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())
	cfg := writeFile(t, dir, "welder.cfg", `[arc_welder]
max_deviation: 0.05
min_arc_segments: 4
max_radius: 500
comment_policy: drop
`)
	t.Setenv("ARCWELDER_MIN_ARC_SEGMENTS", "5")
	t.Setenv("ARCWELDER_MAX_RADIUS", "600")

	res := runCLI(t, context.Background(), "--config", cfg, "--max-radius", "700", in)
	require.NoError(t, res.err)

	o := res.app.opts
	assert.Equal(t, 0.05, o.MaxDeviation)
	assert.Equal(t, 5, o.MinArcSegments)
	assert.Equal(t, 700.0, o.MaxRadius)
	assert.Equal(t, welder.CommentDrop, o.CommentPolicy)
	assert.Equal(t, welder.DefaultOptions().MaxArcSegments, o.MaxArcSegments)
}

func TestInvalidOptionFlag(t *testing.T) {
	in := writeFile(t, t.TempDir(), "part.gcode", arcProgram())

	res := runCLI(t, context.Background(), "--max-deviation", "-1", in)
	require.Error(t, res.err)
	assert.Equal(t, 2, exitCode(res.err))
	assert.Contains(t, res.err.Error(), welder.OptMaxDeviation)
}

func TestBadConfigFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())
	cfg := writeFile(t, dir, "welder.cfg", "[arc_welder]\nmax_deviation: lots\n")

	res := runCLI(t, context.Background(), "--config", cfg, in)
	require.Error(t, res.err)
	assert.Equal(t, 2, exitCode(res.err))
}

func TestMetricsFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "part.gcode", arcProgram())
	prom := filepath.Join(dir, "arcwelder.prom")

	res := runCLI(t, context.Background(), "--metrics-file", prom, in)
	require.NoError(t, res.err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `arcwelder_files_total{status="ok"} 1`)
	assert.Contains(t, string(data), "arcwelder_arcs_total 1")
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.gcode", arcProgram())
	b := writeFile(t, dir, "b.gcode", arcProgram())
	done := writeFile(t, dir, "c.aw.gcode", arcProgram())

	res := runCLI(t, context.Background(), "batch", "--jobs", "2", a, b, done)
	require.NoError(t, res.err)

	assert.FileExists(t, filepath.Join(dir, "a.aw.gcode"))
	assert.FileExists(t, filepath.Join(dir, "b.aw.gcode"))
	assert.NoFileExists(t, filepath.Join(dir, "c.aw.aw.gcode"))
}

func TestBatchFailures(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.gcode", arcProgram())

	res := runCLI(t, context.Background(), "batch", a, filepath.Join(dir, "missing.gcode"))
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "1 of 2 files failed")
	assert.Equal(t, 1, exitCode(res.err))
	assert.FileExists(t, filepath.Join(dir, "a.aw.gcode"))
}

func TestBatchCancelled(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.gcode", arcProgram())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := runCLI(t, ctx, "batch", a)
	require.Error(t, res.err)
	assert.Equal(t, 3, exitCode(res.err))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runCLI(t, ctx, "watch", "--debounce", "50ms", dir).err
	}()

	in := filepath.Join(dir, "part.gcode")
	out := filepath.Join(dir, "part.aw.gcode")
	// The watcher may not be registered yet, so keep touching the input
	// until it is picked up.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		if err == nil && strings.Contains(string(data), "G3 ") {
			return true
		}
		_ = os.WriteFile(in, []byte(arcProgram()), 0o644)
		return false
	}, 10*time.Second, 200*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.NoFileExists(t, filepath.Join(dir, "part.aw.aw.gcode"))
}

func TestWatchMissingDir(t *testing.T) {
	res := runCLI(t, context.Background(), "watch", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, errors.ErrIO))
}
