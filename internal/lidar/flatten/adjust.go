package flatten

import "math"

// AdjustPoint removes the interpolated floor height from p and rotates it
// so the local ground tilt becomes zero. The x rotation is applied first
// and the y rotation uses the z it produced. Both rotations take a square
// root, so the result's z is never negative.
func AdjustPoint(p *Point, bl, br, tl, tr, xRatio, yRatio, scale float64) {
	p.Z -= BilinearInterpolate(bl, br, tl, tr, xRatio, yRatio)

	xTheta, yTheta := InterpolateTiltAngles(bl, br, tl, tr, xRatio, yRatio, scale)

	// rotate by -xTheta about the y axis
	dx := -p.Z * math.Tan(xTheta)
	p.Z = math.Sqrt(p.Z*p.Z + dx*dx)
	p.X -= dx

	// rotate by -yTheta about the x axis
	dy := -p.Z * math.Tan(yTheta)
	p.Z = math.Sqrt(p.Z*p.Z + dy*dy)
	p.Y -= dy
}

// neighbourhood returns the four floor heights bracketing (x, y) and the
// point's fractional position inside the 2x2 block of cell centres.
func neighbourhood(g *Grid, floors *FloorHeightGrid, x, y float64) (bl, br, tl, tr, xRatio, yRatio float64) {
	row, col := g.ToCellIndex(x, y)
	cx, cy := g.CellCenter(row, col)
	xRatio = (x - cx) / g.SectionLen
	yRatio = (y - cy) / g.SectionLen

	// Re-base onto the lower-left centre of the block that contains the point.
	if yRatio < 0 {
		row--
		yRatio += 1.0
	}
	if xRatio < 0 {
		col--
		xRatio += 1.0
	}

	bot := ClampInt(row, 0, g.Height-1)
	top := ClampInt(row+1, 0, g.Height-1)
	left := ClampInt(col, 0, g.Width-1)
	right := ClampInt(col+1, 0, g.Width-1)

	bl = floors.At(bot, left)
	br = floors.At(bot, right)
	tl = floors.At(top, left)
	tr = floors.At(top, right)
	return bl, br, tl, tr, xRatio, yRatio
}

// AdjustPoints applies AdjustPoint to every finite point using floors
// built on g. Non-finite points are left unchanged.
func AdjustPoints(points []Point, g *Grid, floors *FloorHeightGrid) {
	for i := range points {
		p := &points[i]
		if !p.Finite() {
			continue
		}
		bl, br, tl, tr, xr, yr := neighbourhood(g, floors, p.X, p.Y)
		AdjustPoint(p, bl, br, tl, tr, xr, yr, g.SectionLen)
	}
}
