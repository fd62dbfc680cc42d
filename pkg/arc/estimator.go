// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package arc

import "math"

// Estimator is an online least-squares (Kåsa) circle fit. It keeps moment
// sums of the points relative to the first point added, so each Add is
// constant time and a copy of the struct is a full snapshot.
type Estimator struct {
	ox, oy float64
	n      float64

	su, sv        float64
	suu, svv, suv float64
	suuu, svvv    float64
	suvv, svuu    float64
}

// Reset clears the estimator
func (e *Estimator) Reset() { *e = Estimator{} }

// N returns the number of points added
func (e *Estimator) N() int { return int(e.n) }

// Add folds one point into the sums
func (e *Estimator) Add(x, y float64) {
	if e.n == 0 {
		e.ox, e.oy = x, y
	}
	u, v := x-e.ox, y-e.oy
	uu, vv := u*u, v*v
	e.n++
	e.su += u
	e.sv += v
	e.suu += uu
	e.svv += vv
	e.suv += u * v
	e.suuu += uu * u
	e.svvv += vv * v
	e.suvv += u * vv
	e.svuu += v * uu
}

// Circle solves for the best-fit circle. ok is false for fewer than three
// points or (near) collinear points.
func (e *Estimator) Circle() (cx, cy, r float64, ok bool) {
	n := e.n
	if n < 3 {
		return 0, 0, 0, false
	}
	mu, mv := e.su/n, e.sv/n

	saa := e.suu - n*mu*mu
	sbb := e.svv - n*mv*mv
	sab := e.suv - n*mu*mv
	saaa := e.suuu - 3*mu*e.suu + 3*mu*mu*e.su - n*mu*mu*mu
	sbbb := e.svvv - 3*mv*e.svv + 3*mv*mv*e.sv - n*mv*mv*mv
	sabb := e.suvv - 2*mv*e.suv + mv*mv*e.su - mu*e.svv + 2*mu*mv*e.sv - n*mu*mv*mv
	sbaa := e.svuu - 2*mu*e.suv + mu*mu*e.sv - mv*e.suu + 2*mu*mv*e.su - n*mv*mu*mu

	det := saa*sbb - sab*sab
	scale := saa + sbb
	if scale <= 0 || det <= 1e-12*scale*scale {
		return 0, 0, 0, false
	}
	rhs1 := 0.5 * (saaa + sabb)
	rhs2 := 0.5 * (sbbb + sbaa)
	uc := (rhs1*sbb - rhs2*sab) / det
	vc := (saa*rhs2 - sab*rhs1) / det

	r = math.Sqrt(uc*uc + vc*vc + scale/n)
	return e.ox + mu + uc, e.oy + mv + vc, r, true
}
