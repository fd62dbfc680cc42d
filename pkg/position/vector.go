// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package position

import (
	"fmt"
	"math"
)

// Vector is a point or displacement in machine coordinates.
type Vector struct {
	X, Y, Z float64
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector) Scale(f float64) Vector {
	return Vector{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func (v Vector) Dot(o Vector) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// DotXY is the dot product of the XY projections
func (v Vector) DotXY(o Vector) float64 {
	return v.X*o.X + v.Y*o.Y
}

func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// NormXY is the length of the XY projection
func (v Vector) NormXY() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vector) String() string {
	return fmt.Sprintf("Vector{X: %f, Y: %f, Z: %f}", v.X, v.Y, v.Z)
}
