// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/metrics"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch [flags] DIR",
		Short: "Weld G-code files as they appear in a directory",
		Long: `watch welds every .gcode file created or rewritten in DIR once it has
been quiet for --debounce. Output files (*.aw.gcode) are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				srv := metrics.NewServer(a.metrics.Registry(), metricsAddr)
				errCh := srv.StartAsync()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
					if err := <-errCh; err != nil {
						a.log.WithError(err).Warn("metrics server stopped")
					}
				}()
			}
			return a.watch(cmd.Context(), args[0], debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "quiet time before a changed file is welded")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func isWeldInput(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gcode") && !isWeldOutput(path)
}

// watch runs until ctx is cancelled. Cancellation is the normal way to stop
// and is not reported as an error.
func (a *app) watch(ctx context.Context, dir string, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.IOError("watch", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return errors.IOError("watch "+dir, err)
	}
	a.log.WithField("dir", dir).Info("watching for G-code files")

	tick := debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isWeldInput(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.log.WithError(err).Warn("watch error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < debounce {
					continue
				}
				delete(pending, path)
				if _, err := a.weldFile(ctx, path, "", false); err != nil {
					if errors.IsCancelled(err) {
						return nil
					}
					a.log.WithField("input", path).WithError(err).Error("weld failed")
				}
				a.flushMetrics()
			}
		}
	}
}

// flushMetrics rewrites --metrics-file so it tracks a long-running watch.
func (a *app) flushMetrics() {
	path := a.v.GetString("metrics_file")
	if path == "" {
		return
	}
	if err := a.metrics.Registry().WriteFile(path); err != nil {
		a.log.WithError(err).Warn("writing metrics file")
	}
}
