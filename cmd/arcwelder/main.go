// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// arcwelder replaces runs of G0/G1 moves in sliced G-code with G2/G3 arcs.
//
// Usage:
//
//	arcwelder [flags] INPUT [OUTPUT]
//	arcwelder batch [flags] FILES...
//	arcwelder watch [flags] DIR
//
// OUTPUT defaults to INPUT with the extension replaced by .aw.gcode; "-"
// reads stdin or writes stdout. Options come from the built-in defaults, the
// [arc_welder] section of --config, ARCWELDER_* environment variables and
// flags, later sources winning.
//
// Examples:
//
//	# Weld one file with a tighter tolerance
//	arcwelder --max-deviation 0.01 part.gcode
//
//	# Weld a directory's files four at a time and print JSON statistics
//	arcwelder batch --jobs 4 --stats json prints/*.gcode
//
//	# Weld every file a slicer drops into a folder
//	arcwelder watch --metrics-addr :9101 ~/gcodes
//
// Exit codes: 0 success, 1 failure, 2 invalid configuration, 3 cancelled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"arcwelder-go/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string) int {
	cmd, a := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		if a.log != nil {
			a.log.Error("%v", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsCancelled(err):
		return 3
	case errors.IsConfig(err):
		return 2
	default:
		return 1
	}
}
