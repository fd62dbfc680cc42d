// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"arcwelder-go/pkg/errors"
)

func newBatchCmd(a *app) *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "batch [flags] FILES...",
		Short: "Weld several files concurrently",
		Long: `batch welds every named file to <name>.aw.gcode, running up to --jobs
files at a time. Files that are already weld output are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.batch(cmd.Context(), args, jobs)
		},
	}
	cmd.Flags().IntVar(&jobs, "jobs", runtime.NumCPU(), "files welded at the same time")
	return cmd
}

func (a *app) batch(ctx context.Context, files []string, jobs int) error {
	if jobs < 1 {
		return errors.ConfigValidationError("jobs", "must be at least 1")
	}
	var todo []string
	for _, f := range files {
		if isWeldOutput(f) {
			a.log.WithField("input", f).Info("skipping weld output")
			continue
		}
		todo = append(todo, f)
	}

	var bar *pb.ProgressBar
	if a.v.GetBool("progress") {
		bar = pb.New(len(todo))
		bar.Output = a.stderr
		bar.Prefix("files ")
		bar.Start()
	}

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(jobs)
	for _, f := range todo {
		if ctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			_, err := a.weldFile(ctx, f, "", false)
			if err != nil && !errors.IsCancelled(err) {
				failed.Add(1)
				a.log.WithField("input", f).WithError(err).Error("weld failed")
			}
			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		bar.Finish()
	}

	if err := ctx.Err(); err != nil {
		return errors.CancelledError(0, err)
	}
	if n := failed.Load(); n > 0 {
		return errors.RuntimeError(fmt.Sprintf("%d of %d files failed", n, len(todo)))
	}
	return nil
}
