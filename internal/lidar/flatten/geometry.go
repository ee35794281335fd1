package flatten

import "math"

// Point is a single LiDAR return. Flattening mutates X, Y and Z in place;
// Intensity is carried through untouched.
type Point struct {
	X, Y, Z   float64
	Intensity int
}

// Finite reports whether X, Y and Z are all finite. Points that are not
// take no part in flattening and are left as read.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// BoundingBox is an axis-aligned box in the x-y plane.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// ComputeBoundingBox returns the x-y extent of the finite points.
// Accumulation starts from zero rather than from the first point, so the
// box always contains the origin. Grid cell boundaries depend on this.
func ComputeBoundingBox(points []Point) BoundingBox {
	var b BoundingBox
	for _, p := range points {
		if !p.Finite() {
			continue
		}
		if p.X < b.MinX {
			b.MinX = p.X
		}
		if p.Y < b.MinY {
			b.MinY = p.Y
		}
		if p.X > b.MaxX {
			b.MaxX = p.X
		}
		if p.Y > b.MaxY {
			b.MaxY = p.Y
		}
	}
	return b
}

// Lerp linearly interpolates between a and b. r is not clamped, so values
// outside [0, 1] extrapolate.
func Lerp(a, b, r float64) float64 {
	return a*(1-r) + b*r
}

// BilinearInterpolate blends four corner values. The bottom and top edges
// are interpolated with x first, then the two results with y.
func BilinearInterpolate(bl, br, tl, tr, x, y float64) float64 {
	bot := Lerp(bl, br, x)
	top := Lerp(tl, tr, x)
	return Lerp(bot, top, y)
}

// InterpolateTiltAngles estimates the local ground inclination along each
// axis from four corner heights spaced scale apart.
func InterpolateTiltAngles(bl, br, tl, tr, x, y, scale float64) (xTheta, yTheta float64) {
	leftZ := Lerp(bl, tl, y)
	rightZ := Lerp(br, tr, y)
	xTheta = math.Atan((rightZ - leftZ) / scale)

	botZ := Lerp(bl, br, x)
	topZ := Lerp(tl, tr, x)
	yTheta = math.Atan((topZ - botZ) / scale)
	return xTheta, yTheta
}

// CeilDiv returns the integer ceiling of a/b for positive operands. An exact
// multiple returns the exact quotient.
func CeilDiv(a, b float64) int {
	ipart, fpart := math.Modf(a / b)
	n := int(ipart)
	if fpart > 0 {
		n++
	}
	return n
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
