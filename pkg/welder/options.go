// Welder options
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"math"
	"strings"

	"arcwelder-go/pkg/config"
	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/log"
	"arcwelder-go/pkg/position"
)

// SectionName is the config file section holding welder options
const SectionName = "arc_welder"

// Option names shared by the config file, environment and flags.
const (
	OptMaxDeviation          = "max_deviation"
	OptMinArcSegments        = "min_arc_segments"
	OptMaxArcSegments        = "max_arc_segments"
	OptMaxRadius             = "max_radius"
	OptPathTolerance         = "path_tolerance"
	OptExtrusionTolerance    = "extrusion_tolerance"
	OptFeedrateTolerance     = "feedrate_tolerance"
	OptEnabledAxes           = "enabled_axes"
	OptAllow3DArcs           = "allow_3d_arcs"
	OptG90InfluencesExtruder = "g90_influences_extruder"
	OptCommentPolicy         = "comment_policy"
	OptXYZPrecision          = "xyz_precision"
	OptEPrecision            = "e_precision"
	OptDynamicPrecision      = "dynamic_precision"
	OptProgressEvery         = "progress_every"
	OptQueueSize             = "queue_size"
)

// MaxPrecision caps every output precision
const MaxPrecision = 6

// CommentPolicy decides what happens to comments of lines absorbed into
// an arc.
type CommentPolicy string

const (
	// CommentDrop discards the comments
	CommentDrop CommentPolicy = "drop"
	// CommentRelocate appends them to the arc line, joined with " | "
	CommentRelocate CommentPolicy = "relocate"
)

// Options configures one welding run. Options are read once when an
// Engine is created.
type Options struct {
	MaxDeviation          float64       `json:"max_deviation" yaml:"max_deviation"`
	MinArcSegments        int           `json:"min_arc_segments" yaml:"min_arc_segments"`
	MaxArcSegments        int           `json:"max_arc_segments" yaml:"max_arc_segments"`
	MaxRadius             float64       `json:"max_radius" yaml:"max_radius"`
	PathTolerance         float64       `json:"path_tolerance" yaml:"path_tolerance"`
	ExtrusionTolerance    float64       `json:"extrusion_tolerance" yaml:"extrusion_tolerance"`
	FeedrateTolerance     float64       `json:"feedrate_tolerance" yaml:"feedrate_tolerance"`
	EnabledAxes           string        `json:"enabled_axes" yaml:"enabled_axes"`
	Allow3DArcs           bool          `json:"allow_3d_arcs" yaml:"allow_3d_arcs"`
	G90InfluencesExtruder bool          `json:"g90_influences_extruder" yaml:"g90_influences_extruder"`
	CommentPolicy         CommentPolicy `json:"comment_policy" yaml:"comment_policy"`
	XYZPrecision          int           `json:"xyz_precision" yaml:"xyz_precision"`
	EPrecision            int           `json:"e_precision" yaml:"e_precision"`
	DynamicPrecision      bool          `json:"dynamic_precision" yaml:"dynamic_precision"`
	ProgressEvery         int           `json:"progress_every" yaml:"progress_every"`
	QueueSize             int           `json:"queue_size" yaml:"queue_size"`

	// Progress, when set, is called every ProgressEvery input lines and
	// once when the run ends. It runs on the engine's goroutine.
	Progress func(Progress) `json:"-" yaml:"-"`
	// Logger receives DEBUG decisions; defaults to the "welder" logger.
	Logger *log.Logger `json:"-" yaml:"-"`
}

// DefaultOptions returns the built-in defaults
func DefaultOptions() Options {
	return Options{
		MaxDeviation:          0.025,
		MinArcSegments:        3,
		MaxArcSegments:        256,
		MaxRadius:             9999,
		PathTolerance:         0.05,
		ExtrusionTolerance:    0.05,
		FeedrateTolerance:     1e-6,
		EnabledAxes:           "XYZE",
		Allow3DArcs:           false,
		G90InfluencesExtruder: false,
		CommentPolicy:         CommentRelocate,
		XYZPrecision:          3,
		EPrecision:            5,
		DynamicPrecision:      true,
		ProgressEvery:         5000,
		QueueSize:             1024,
	}
}

// Validate checks every option. The first violation is returned as a
// CONFIG_VALIDATION error.
func (o Options) Validate() error {
	switch {
	case !(o.MaxDeviation > 0):
		return errors.ConfigValidationError(OptMaxDeviation, "must be above 0")
	case o.MinArcSegments < 3:
		return errors.ConfigValidationError(OptMinArcSegments, "must be at least 3")
	case o.MaxArcSegments < o.MinArcSegments:
		return errors.ConfigValidationError(OptMaxArcSegments, "must not be below min_arc_segments")
	case !(o.MaxRadius > 0):
		return errors.ConfigValidationError(OptMaxRadius, "must be above 0")
	case !(o.PathTolerance >= 0):
		return errors.ConfigValidationError(OptPathTolerance, "must not be negative")
	case !(o.ExtrusionTolerance >= 0):
		return errors.ConfigValidationError(OptExtrusionTolerance, "must not be negative")
	case !(o.FeedrateTolerance >= 0):
		return errors.ConfigValidationError(OptFeedrateTolerance, "must not be negative")
	case o.XYZPrecision < 0 || o.XYZPrecision > MaxPrecision:
		return errors.ConfigValidationError(OptXYZPrecision, "must be between 0 and 6")
	case o.EPrecision < 0 || o.EPrecision > MaxPrecision:
		return errors.ConfigValidationError(OptEPrecision, "must be between 0 and 6")
	case o.MaxDeviation < 0.5*math.Pow10(-o.XYZPrecision):
		return errors.ConfigValidationError(OptMaxDeviation, "is smaller than the rounding error of xyz_precision")
	case o.ProgressEvery < 0:
		return errors.ConfigValidationError(OptProgressEvery, "must not be negative")
	case o.QueueSize < 1:
		return errors.ConfigValidationError(OptQueueSize, "must be at least 1")
	}
	switch o.CommentPolicy {
	case CommentDrop, CommentRelocate:
	default:
		return errors.ConfigValidationError(OptCommentPolicy, "must be drop or relocate")
	}
	axes := strings.ToUpper(o.EnabledAxes)
	for i := 0; i < len(axes); i++ {
		if strings.IndexByte(position.SupportedAxes, axes[i]) < 0 {
			return errors.ConfigValidationError(OptEnabledAxes, "unsupported axis "+string(axes[i]))
		}
	}
	if !strings.Contains(axes, "X") || !strings.Contains(axes, "Y") {
		return errors.ConfigValidationError(OptEnabledAxes, "must contain X and Y")
	}
	return nil
}

// FromSection overlays the options present in an [arc_welder] config
// section on base.
func FromSection(sec *config.Section, base Options) (Options, error) {
	o := base
	var err error
	zero, minSegs, maxPrec := 0.0, 3, MaxPrecision
	nonNegative := config.FloatBounds{MinVal: &zero}
	positive := config.FloatBounds{Above: &zero}
	minPrec := 0

	if o.MaxDeviation, err = sec.GetFloatWithBounds(OptMaxDeviation, positive, base.MaxDeviation); err != nil {
		return base, errors.ConfigOptionError(OptMaxDeviation, err)
	}
	if o.MinArcSegments, err = sec.GetIntWithBounds(OptMinArcSegments, &minSegs, nil, base.MinArcSegments); err != nil {
		return base, errors.ConfigOptionError(OptMinArcSegments, err)
	}
	if o.MaxArcSegments, err = sec.GetIntWithBounds(OptMaxArcSegments, &minSegs, nil, base.MaxArcSegments); err != nil {
		return base, errors.ConfigOptionError(OptMaxArcSegments, err)
	}
	if o.MaxRadius, err = sec.GetFloatWithBounds(OptMaxRadius, positive, base.MaxRadius); err != nil {
		return base, errors.ConfigOptionError(OptMaxRadius, err)
	}
	if o.PathTolerance, err = sec.GetFloatWithBounds(OptPathTolerance, nonNegative, base.PathTolerance); err != nil {
		return base, errors.ConfigOptionError(OptPathTolerance, err)
	}
	if o.ExtrusionTolerance, err = sec.GetFloatWithBounds(OptExtrusionTolerance, nonNegative, base.ExtrusionTolerance); err != nil {
		return base, errors.ConfigOptionError(OptExtrusionTolerance, err)
	}
	if o.FeedrateTolerance, err = sec.GetFloatWithBounds(OptFeedrateTolerance, nonNegative, base.FeedrateTolerance); err != nil {
		return base, errors.ConfigOptionError(OptFeedrateTolerance, err)
	}
	if o.EnabledAxes, err = sec.Get(OptEnabledAxes, base.EnabledAxes); err != nil {
		return base, errors.ConfigOptionError(OptEnabledAxes, err)
	}
	o.EnabledAxes = strings.ToUpper(strings.TrimSpace(o.EnabledAxes))
	if o.Allow3DArcs, err = sec.GetBool(OptAllow3DArcs, base.Allow3DArcs); err != nil {
		return base, errors.ConfigOptionError(OptAllow3DArcs, err)
	}
	if o.G90InfluencesExtruder, err = sec.GetBool(OptG90InfluencesExtruder, base.G90InfluencesExtruder); err != nil {
		return base, errors.ConfigOptionError(OptG90InfluencesExtruder, err)
	}
	policy, err := sec.GetChoice(OptCommentPolicy, []string{string(CommentDrop), string(CommentRelocate)}, string(base.CommentPolicy))
	if err != nil {
		return base, errors.ConfigOptionError(OptCommentPolicy, err)
	}
	o.CommentPolicy = CommentPolicy(policy)
	if o.XYZPrecision, err = sec.GetIntWithBounds(OptXYZPrecision, &minPrec, &maxPrec, base.XYZPrecision); err != nil {
		return base, errors.ConfigOptionError(OptXYZPrecision, err)
	}
	if o.EPrecision, err = sec.GetIntWithBounds(OptEPrecision, &minPrec, &maxPrec, base.EPrecision); err != nil {
		return base, errors.ConfigOptionError(OptEPrecision, err)
	}
	if o.DynamicPrecision, err = sec.GetBool(OptDynamicPrecision, base.DynamicPrecision); err != nil {
		return base, errors.ConfigOptionError(OptDynamicPrecision, err)
	}
	if o.ProgressEvery, err = sec.GetIntWithBounds(OptProgressEvery, &minPrec, nil, base.ProgressEvery); err != nil {
		return base, errors.ConfigOptionError(OptProgressEvery, err)
	}
	one := 1
	if o.QueueSize, err = sec.GetIntWithBounds(OptQueueSize, &one, nil, base.QueueSize); err != nil {
		return base, errors.ConfigOptionError(OptQueueSize, err)
	}
	return o, o.Validate()
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.GetLogger("welder")
}
