// Stream pipeline
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/gcode"
)

// Result is the outcome of Run.
type Result struct {
	Stats      Stats
	Incomplete bool // the run was cancelled or failed part way
	Elapsed    time.Duration
}

type parsedLine struct {
	cmd *gcode.Command
	eol string
}

// Run welds everything read from r into w. Reading and parsing happen on a
// producer goroutine feeding the engine through a queue of
// opts.QueueSize lines; output order always equals input order.
//
// When ctx is cancelled the pending moves are written unchanged, the result
// is marked Incomplete and a CANCELLED error is returned together with it.
func Run(ctx context.Context, r io.Reader, w io.Writer, opts Options) (*Result, error) {
	sink := NewWriterSink(w)
	eng, err := New(opts, sink)
	if err != nil {
		return nil, err
	}
	if st, ok := r.(interface{ Stat() (os.FileInfo, error) }); ok {
		if fi, err := st.Stat(); err == nil && fi.Mode().IsRegular() {
			eng.SetTotalBytes(fi.Size())
		}
	}

	lines := make(chan parsedLine, opts.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(guarded(func() error {
		defer close(lines)
		lr := NewLineReader(r)
		for {
			text, eol, err := lr.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.IOError("read", err)
			}
			cmd, _ := gcode.Parse(text)
			select {
			case lines <- parsedLine{cmd: cmd, eol: eol}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	}))

	g.Go(guarded(func() error {
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case pl, ok := <-lines:
				if !ok {
					return nil
				}
				if err := eng.PushParsed(pl.cmd, pl.eol); err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	}))

	runErr := g.Wait()
	res := &Result{}
	if runErr == nil {
		res.Stats, runErr = eng.Close()
	} else {
		// pending moves go out unchanged
		res.Stats, _ = eng.Abort()
		if ctx.Err() != nil {
			runErr = errors.CancelledError(int(res.Stats.InputLines), ctx.Err())
		}
	}
	if err := sink.Flush(); err != nil && runErr == nil {
		runErr = errors.IOError("write", err)
	}
	res.Elapsed = time.Since(eng.started)
	if runErr != nil {
		res.Incomplete = true
	}
	return res, runErr
}

// guarded turns a panic in fn into a RUNTIME error so the other goroutine
// is cancelled and pending moves still go out.
func guarded(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if we := errors.RecoverPanic(recover()); we != nil {
				err = we
			}
		}()
		return fn()
	}
}

// WeldString welds a whole program held in memory.
func WeldString(ctx context.Context, s string, opts Options) (string, *Result, error) {
	var out strings.Builder
	res, err := Run(ctx, strings.NewReader(s), &out, opts)
	return out.String(), res, err
}
