// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/log"
	"arcwelder-go/pkg/metrics"
	"arcwelder-go/pkg/welder"
)

// outputSuffix marks files written by arcwelder
const outputSuffix = ".aw.gcode"

// outputPath derives the default output name: part.gcode -> part.aw.gcode
func outputPath(in string) string {
	if in == "-" {
		return "-"
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + outputSuffix
}

func isWeldOutput(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), outputSuffix)
}

func samePath(a, b string) bool {
	fa, err1 := os.Stat(a)
	fb, err2 := os.Stat(b)
	if err1 == nil && err2 == nil {
		return os.SameFile(fa, fb)
	}
	aa, _ := filepath.Abs(a)
	bb, _ := filepath.Abs(b)
	return aa == bb
}

// weldFile welds in to out ("" picks the default name) and records the run
// in the metrics.
func (a *app) weldFile(ctx context.Context, in, out string, showBar bool) (*welder.Result, error) {
	if out == "" {
		out = outputPath(in)
	}
	if in != "-" && out != "-" && samePath(in, out) {
		return nil, errors.ConfigValidationError("output", "must differ from the input file")
	}
	runLog := a.log.With(log.Fields{"run_id": uuid.NewString(), "input": in})

	var r io.Reader = a.stdin
	var size int64
	if in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return nil, errors.IOError("open input", err)
		}
		defer f.Close()
		if fi, err := f.Stat(); err == nil {
			size = fi.Size()
		}
		r = f
	}

	var w io.Writer = a.stdout
	var outFile *os.File
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return nil, errors.IOError("create output", err)
		}
		outFile = f
		w = f
	}

	opts := a.opts
	opts.Logger = runLog.WithPrefix("welder")
	var bar *pb.ProgressBar
	if showBar {
		bar = newByteBar(a.stderr, size)
		opts.Progress = barUpdater(bar)
	}

	runLog.Debug("welding to %s", out)
	done := a.metrics.Start()
	res, err := welder.Run(ctx, r, w, opts)
	done()
	if outFile != nil {
		if cerr := outFile.Close(); cerr != nil && err == nil {
			err = errors.IOError("close output", cerr)
		}
	}
	if bar != nil {
		if res != nil {
			bar.Set64(res.Stats.InputBytes)
		}
		bar.Finish()
	}
	if res == nil {
		a.metrics.Record(welder.Stats{}, 0, metrics.StatusFailed)
		return nil, err
	}

	status := metrics.StatusOK
	switch {
	case errors.IsCancelled(err):
		status = metrics.StatusCancelled
	case err != nil:
		status = metrics.StatusFailed
	}
	a.metrics.Record(res.Stats, res.Elapsed, status)

	entry := runLog.WithFields(log.Fields{
		"output":   out,
		"arcs":     res.Stats.ArcsCommitted,
		"ratio":    res.Stats.CompressionRatio(),
		"duration": res.Elapsed.Round(time.Millisecond),
	})
	if res.Incomplete {
		entry.Warn("weld incomplete, %d lines processed", res.Stats.InputLines)
	} else {
		entry.Info("welded %d lines into %d, %.1f%% smaller",
			res.Stats.InputLines, res.Stats.OutputLines, res.Stats.SpaceSavedPercent())
	}

	statsOut := a.stdout
	if out == "-" {
		statsOut = a.stderr
	}
	if serr := writeStats(statsOut, a.v.GetString("stats"), res.Stats); serr != nil && err == nil {
		err = errors.IOError("write stats", serr)
	}
	return res, err
}

// writeStats prints st in the given format; an empty format prints nothing.
func writeStats(w io.Writer, format string, st welder.Stats) error {
	switch format {
	case "text":
		return st.WriteText(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}
		return enc.Close()
	}
	return nil
}

func newByteBar(w io.Writer, total int64) *pb.ProgressBar {
	bar := pb.New64(total).SetUnits(pb.U_BYTES)
	bar.Output = w
	bar.ShowSpeed = true
	bar.SetMaxWidth(100)
	return bar.Start()
}

// barUpdater redraws at most ten times a second however often the engine
// reports.
func barUpdater(bar *pb.ProgressBar) func(welder.Progress) {
	every := rate.Sometimes{Interval: 100 * time.Millisecond}
	return func(p welder.Progress) {
		every.Do(func() { bar.Set64(p.Bytes) })
	}
}
