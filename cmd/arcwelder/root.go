// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"arcwelder-go/pkg/config"
	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/log"
	"arcwelder-go/pkg/metrics"
	"arcwelder-go/pkg/welder"
)

const envPrefix = "ARCWELDER"

// app is the state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	log     *log.Logger
	opts    welder.Options
	metrics *metrics.WelderMetrics
	closers []io.Closer

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{
		v:       viper.New(),
		metrics: metrics.NewWelderMetrics(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	cmd := &cobra.Command{
		Use:   "arcwelder [flags] INPUT [OUTPUT]",
		Short: "Replace runs of linear G-code moves with arcs",
		Long: `arcwelder converts runs of G0/G1 moves that lie on a circle into single
G2/G3 arc commands, within a maximum path deviation. Everything else in the
file is copied unchanged and in order.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.stdout = cmd.OutOrStdout()
			a.stderr = cmd.ErrOrStderr()
			a.stdin = cmd.InOrStdin()
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			_, err := a.weldFile(cmd.Context(), args[0], out, a.v.GetBool("progress"))
			return err
		},
	}

	fs := cmd.PersistentFlags()
	fs.String("config", "", "config file with an [arc_welder] section")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-file", "", "also write logs to this file, rotated at 10 MiB")
	fs.String("stats", "", "print statistics after each file: text, json or yaml")
	fs.Bool("progress", false, "show a progress bar on stderr")
	fs.String("metrics-file", "", "write Prometheus metrics to this file when done")
	registerOptionFlags(fs, welder.DefaultOptions())

	cmd.AddCommand(newBatchCmd(a), newWatchCmd(a))

	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()
	bindFlags(a.v, fs)
	return cmd, a
}

// bindFlags binds every flag to the viper key of the same name with
// dashes turned into underscores.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func flagName(option string) string { return strings.ReplaceAll(option, "_", "-") }

func registerOptionFlags(fs *pflag.FlagSet, d welder.Options) {
	fs.Float64(flagName(welder.OptMaxDeviation), d.MaxDeviation, "maximum distance (mm) between the original path and an arc")
	fs.Int(flagName(welder.OptMinArcSegments), d.MinArcSegments, "fewest moves replaced by one arc")
	fs.Int(flagName(welder.OptMaxArcSegments), d.MaxArcSegments, "most moves replaced by one arc")
	fs.Float64(flagName(welder.OptMaxRadius), d.MaxRadius, "largest arc radius (mm)")
	fs.Float64(flagName(welder.OptPathTolerance), d.PathTolerance, "allowed relative difference of arc and path length")
	fs.Float64(flagName(welder.OptExtrusionTolerance), d.ExtrusionTolerance, "allowed relative extrusion error per move")
	fs.Float64(flagName(welder.OptFeedrateTolerance), d.FeedrateTolerance, "allowed feed rate difference within one arc")
	fs.String(flagName(welder.OptEnabledAxes), d.EnabledAxes, "axes allowed in a welded move")
	fs.Bool(flagName(welder.OptAllow3DArcs), d.Allow3DArcs, "weld helical moves that change Z")
	fs.Bool(flagName(welder.OptG90InfluencesExtruder), d.G90InfluencesExtruder, "G90/G91 also set the extruder mode")
	fs.String(flagName(welder.OptCommentPolicy), string(d.CommentPolicy), "comments of welded moves: drop or relocate")
	fs.Int(flagName(welder.OptXYZPrecision), d.XYZPrecision, "decimals for X Y Z I J")
	fs.Int(flagName(welder.OptEPrecision), d.EPrecision, "decimals for E")
	fs.Bool(flagName(welder.OptDynamicPrecision), d.DynamicPrecision, "raise precision to the most decimals seen in the input")
	fs.Int(flagName(welder.OptProgressEvery), d.ProgressEvery, "input lines between progress updates")
	fs.Int(flagName(welder.OptQueueSize), d.QueueSize, "parsed lines buffered between reader and welder")
}

// setup configures logging and resolves the welder options.
func (a *app) setup() error {
	var logger *log.Logger
	if path := a.v.GetString("log_file"); path != "" {
		l, fw, err := log.NewFileLogger("arcwelder", log.RotationConfig{Filename: path}, a.stderr)
		if err != nil {
			return errors.IOError("open log file", err)
		}
		a.closers = append(a.closers, fw)
		logger = l
	} else {
		logger = log.New("arcwelder")
		logger.SetWriter(a.stderr)
	}
	log.ConfigureFromEnv(logger)
	logger.SetLevel(log.ParseLevel(a.v.GetString("log_level")))
	switch strings.ToLower(a.v.GetString("log_format")) {
	case "json":
		logger.SetFormat(log.FormatJSON)
	case "text":
		logger.SetFormat(log.FormatText)
	default:
		return errors.ConfigValidationError("log_format", "must be text or json")
	}
	log.SetDefaultLogger(logger)
	a.log = logger

	switch a.v.GetString("stats") {
	case "", "text", "json", "yaml":
	default:
		return errors.ConfigValidationError("stats", "must be text, json or yaml")
	}

	opts, err := resolveOptions(a.v, logger)
	if err != nil {
		return err
	}
	a.opts = opts
	return nil
}

// resolveOptions layers the config file, environment and flags over the
// defaults.
func resolveOptions(v *viper.Viper, logger *log.Logger) (welder.Options, error) {
	opts := welder.DefaultOptions()
	if path := v.GetString("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return opts, errors.ConfigOptionError("config", err)
		}
		if sec := cfg.GetSectionOptional(welder.SectionName); sec != nil {
			if opts, err = welder.FromSection(sec, opts); err != nil {
				return opts, err
			}
		} else {
			logger.Warn("%s has no [%s] section", path, welder.SectionName)
		}
		if err := cfg.CheckUnusedOptions(); err != nil {
			logger.Warn("%v", err)
		}
		for _, name := range cfg.GetUnusedSections() {
			logger.WithField("section", name).Debug("ignoring config section")
		}
	}
	applyOverrides(v, &opts)
	return opts, opts.Validate()
}

// applyOverrides copies the options set through the environment or flags.
func applyOverrides(v *viper.Viper, o *welder.Options) {
	floats := map[string]*float64{
		welder.OptMaxDeviation:       &o.MaxDeviation,
		welder.OptMaxRadius:          &o.MaxRadius,
		welder.OptPathTolerance:      &o.PathTolerance,
		welder.OptExtrusionTolerance: &o.ExtrusionTolerance,
		welder.OptFeedrateTolerance:  &o.FeedrateTolerance,
	}
	ints := map[string]*int{
		welder.OptMinArcSegments: &o.MinArcSegments,
		welder.OptMaxArcSegments: &o.MaxArcSegments,
		welder.OptXYZPrecision:   &o.XYZPrecision,
		welder.OptEPrecision:     &o.EPrecision,
		welder.OptProgressEvery:  &o.ProgressEvery,
		welder.OptQueueSize:      &o.QueueSize,
	}
	bools := map[string]*bool{
		welder.OptAllow3DArcs:           &o.Allow3DArcs,
		welder.OptG90InfluencesExtruder: &o.G90InfluencesExtruder,
		welder.OptDynamicPrecision:      &o.DynamicPrecision,
	}
	for k, p := range floats {
		if v.IsSet(k) {
			*p = v.GetFloat64(k)
		}
	}
	for k, p := range ints {
		if v.IsSet(k) {
			*p = v.GetInt(k)
		}
	}
	for k, p := range bools {
		if v.IsSet(k) {
			*p = v.GetBool(k)
		}
	}
	if v.IsSet(welder.OptEnabledAxes) {
		o.EnabledAxes = strings.ToUpper(strings.TrimSpace(v.GetString(welder.OptEnabledAxes)))
	}
	if v.IsSet(welder.OptCommentPolicy) {
		o.CommentPolicy = welder.CommentPolicy(strings.ToLower(v.GetString(welder.OptCommentPolicy)))
	}
}

// close writes the metrics file and releases the log file.
func (a *app) close() error {
	var first error
	if path := a.v.GetString("metrics_file"); path != "" {
		if err := a.metrics.Registry().WriteFile(path); err != nil {
			first = errors.IOError("write metrics", err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
