// Package geometry provides the angle and distance functions used to measure
// body posture from landmarks.
//
// Inputs are r3 vectors in any consistent coordinate space (normalized or
// pixel). Image coordinates are assumed: X grows right and Y grows down, so
// "up" is -Y. None of the functions fail; degenerate input yields a sentinel.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the shortest ray length treated as non-degenerate.
const Epsilon = 1e-9

// Sentinel is returned for angles that cannot be measured because two of the
// defining points coincide.
const Sentinel = 0.0

var up = r3.Vec{Y: -1}

// JointAngle returns the angle at vertex b formed by rays b->a and b->c,
// in degrees within [0,180]. Returns Sentinel if either ray is degenerate.
func JointAngle(a, b, c r3.Vec) float64 {
	angle, _ := JointAngleOK(a, b, c)
	return angle
}

// JointAngleOK is JointAngle that also reports whether the input was
// measurable.
func JointAngleOK(a, b, c r3.Vec) (float64, bool) {
	return angleBetween(r3.Sub(a, b), r3.Sub(c, b))
}

// Inclination returns the angle of the segment from->to relative to image
// vertical (up), in degrees within [0,180]. The result is unsigned; use
// HorizontalSign to tell a forward lean from a backward one.
// Returns Sentinel for coincident points.
func Inclination(from, to r3.Vec) float64 {
	angle, _ := InclinationOK(from, to)
	return angle
}

// InclinationOK is Inclination that also reports whether the input was
// measurable.
func InclinationOK(from, to r3.Vec) (float64, bool) {
	d := r3.Sub(to, from)
	d.Z = 0
	return angleBetween(d, up)
}

// HorizontalSign returns +1 if to lies right of from, -1 if left, and 0 if
// they are horizontally aligned.
func HorizontalSign(from, to r3.Vec) int {
	dx := to.X - from.X
	switch {
	case dx > Epsilon:
		return 1
	case dx < -Epsilon:
		return -1
	default:
		return 0
	}
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, q))
}

// Distance2D returns the Euclidean distance between p and q ignoring depth.
func Distance2D(p, q r3.Vec) float64 {
	d := r3.Sub(p, q)
	return math.Hypot(d.X, d.Y)
}

func angleBetween(u, v r3.Vec) (float64, bool) {
	nu, nv := r3.Norm(u), r3.Norm(v)
	if nu < Epsilon || nv < Epsilon {
		return Sentinel, false
	}

	cos := r3.Dot(u, v) / (nu * nv)
	// Rounding can push cos just outside [-1,1].
	cos = math.Max(-1, math.Min(1, cos))

	return math.Acos(cos) * 180 / math.Pi, true
}
