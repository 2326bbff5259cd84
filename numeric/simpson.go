// Package numeric contains the quadrature used to estimate travel times
// along curved flight paths.
package numeric

import "math"

const (
	// DefaultTolerance is the absolute error budget used by the altitude
	// profile optimizer.
	DefaultTolerance = 0.1
	// DefaultMaxDepth bounds the recursion of AdaptiveSimpson.
	DefaultMaxDepth = 10
)

// AdaptiveSimpson integrates f over [a, b] with recursive adaptive Simpson
// quadrature. Each level compares the whole-interval estimate against the
// sum of its two halves and recurses with half the error budget until the
// difference is within 15·eps or maxDepth levels have been used.
//
// Infinite or NaN samples are not filtered; they propagate into the result
// and callers are expected to test for them.
func AdaptiveSimpson(f func(float64) float64, a, b, eps float64, maxDepth int) float64 {
	if a == b {
		return 0
	}
	if a > b {
		return -AdaptiveSimpson(f, b, a, eps, maxDepth)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	fa, fb := f(a), f(b)
	m := (a + b) / 2
	fm := f(m)
	whole := simpson(a, b, fa, fm, fb)
	return adaptiveStep(f, a, b, fa, fm, fb, whole, math.Abs(eps), maxDepth)
}

func simpson(a, b, fa, fm, fb float64) float64 {
	return (b - a) * (fa + 4*fm + fb) / 6
}

func adaptiveStep(f func(float64) float64, a, b, fa, fm, fb, whole, eps float64, depth int) float64 {
	m := (a + b) / 2
	lm, rm := (a+m)/2, (m+b)/2
	flm, frm := f(lm), f(rm)
	left := simpson(a, m, fa, flm, fm)
	right := simpson(m, b, fm, frm, fb)
	delta := left + right - whole

	if depth <= 0 || math.Abs(delta) <= 15*eps {
		return left + right + delta/15
	}
	return adaptiveStep(f, a, m, fa, flm, fm, left, eps/2, depth-1) +
		adaptiveStep(f, m, b, fm, frm, fb, right, eps/2, depth-1)
}
