package flatten

import (
	"slices"

	"gonum.org/v1/gonum/mat"
)

// CellSamples holds the z values observed in each grid cell, indexed
// [row][col]. It is owned by the binning stage and consumed by
// EstimateFloors.
type CellSamples [][][]float64

// BinPoints appends every finite point's z to the list of the cell it
// falls in. Points on the far edge of the box compute an index one past
// the last cell; they are pinned to the edge cell.
func BinPoints(points []Point, g *Grid) CellSamples {
	bins := make(CellSamples, g.Height)
	for row := range bins {
		bins[row] = make([][]float64, g.Width)
	}
	for _, p := range points {
		if !p.Finite() {
			continue
		}
		row, col := g.clampCell(g.ToCellIndex(p.X, p.Y))
		bins[row][col] = append(bins[row][col], p.Z)
	}
	return bins
}

// FloorHeightGrid is the estimated ground height per cell. Cells that did
// not have enough points read as 0.
type FloorHeightGrid struct {
	heights *mat.Dense
	counts  []int
	width   int
}

// EstimateFloors computes a floor height for every cell holding more than
// minPoints samples: the value at rank len/divisor of the sorted samples,
// capped at the last sample. Sample slices are sorted in place.
func EstimateFloors(bins CellSamples, minPoints, divisor int) *FloorHeightGrid {
	height := len(bins)
	width := 0
	if height > 0 {
		width = len(bins[0])
	}
	if height == 0 || width == 0 {
		return &FloorHeightGrid{heights: &mat.Dense{}}
	}
	f := &FloorHeightGrid{
		heights: mat.NewDense(height, width, nil),
		counts:  make([]int, height*width),
		width:   width,
	}
	for row, cols := range bins {
		for col, zs := range cols {
			f.counts[row*width+col] = len(zs)
			if len(zs) <= minPoints {
				continue
			}
			slices.Sort(zs)
			k := min(len(zs)/divisor, len(zs)-1)
			f.heights.Set(row, col, zs[k])
		}
	}
	return f
}

// Dims returns the number of rows and columns.
func (f *FloorHeightGrid) Dims() (rows, cols int) {
	return f.heights.Dims()
}

// At returns the floor height of cell (row, col).
func (f *FloorHeightGrid) At(row, col int) float64 {
	return f.heights.At(row, col)
}

// Count returns how many points were binned into cell (row, col).
func (f *FloorHeightGrid) Count(row, col int) int {
	return f.counts[row*f.width+col]
}

// Estimated reports whether cell (row, col) had enough points for a floor
// estimate, given the threshold used to build the grid.
func (f *FloorHeightGrid) Estimated(row, col, minPoints int) bool {
	return f.Count(row, col) > minPoints
}

// EstimatedCells counts the cells holding more than minPoints samples.
func (f *FloorHeightGrid) EstimatedCells(minPoints int) int {
	n := 0
	for _, c := range f.counts {
		if c > minPoints {
			n++
		}
	}
	return n
}
