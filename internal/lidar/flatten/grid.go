package flatten

import "math"

// Grid maps x-y coordinates onto square cells of side SectionLen anchored
// at the bounding box's minimum corner. Rows run along y, columns along x.
type Grid struct {
	SectionLen float64
	Height     int // rows
	Width      int // columns
	BaseX      float64
	BaseY      float64
}

// NewGrid returns a grid with the given cell side. ComputeDimensions must be
// called before ToCellIndex or CellCenter.
func NewGrid(sectionLen float64) *Grid {
	return &Grid{SectionLen: sectionLen}
}

// ComputeDimensions sizes the grid to cover box and anchors it at
// (box.MinX, box.MinY). An axis with zero extent still gets one cell so an
// empty or single-location cloud has somewhere to bin.
func (g *Grid) ComputeDimensions(box BoundingBox) (height, width int) {
	g.Height = max(1, CeilDiv(box.MaxY-box.MinY, g.SectionLen))
	g.Width = max(1, CeilDiv(box.MaxX-box.MinX, g.SectionLen))
	g.BaseX = box.MinX
	g.BaseY = box.MinY
	return g.Height, g.Width
}

// ToCellIndex returns the cell containing (x, y). The result is not clamped:
// coordinates outside the box produce indices outside the grid.
func (g *Grid) ToCellIndex(x, y float64) (row, col int) {
	row = int(math.Floor((y - g.BaseY) / g.SectionLen))
	col = int(math.Floor((x - g.BaseX) / g.SectionLen))
	return row, col
}

// CellCenter returns the x-y centre of cell (row, col).
func (g *Grid) CellCenter(row, col int) (x, y float64) {
	x = g.BaseX + g.SectionLen*(float64(col)+0.5)
	y = g.BaseY + g.SectionLen*(float64(row)+0.5)
	return x, y
}

// clampCell pins (row, col) to the nearest valid cell.
func (g *Grid) clampCell(row, col int) (int, int) {
	return ClampInt(row, 0, g.Height-1), ClampInt(col, 0, g.Width-1)
}
