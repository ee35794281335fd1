package flatten

import (
	"fmt"
	"strings"
)

// String formats the box as "[ (minx, miny), (maxx, maxy) ]".
func (b BoundingBox) String() string {
	return fmt.Sprintf("[ (%g, %g), (%g, %g) ]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// CountTable renders the per-cell point counts, one grid row per line.
func (r *Result) CountTable() string {
	var sb strings.Builder
	rows, cols := r.Floors.Dims()
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			fmt.Fprintf(&sb, "%8d ", r.Floors.Count(row, col))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FloorTable renders the per-cell floor heights, one grid row per line.
func (r *Result) FloorTable() string {
	var sb strings.Builder
	rows, cols := r.Floors.Dims()
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			fmt.Fprintf(&sb, "%7.4g ", r.Floors.At(row, col))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
