package monitor

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/units"
)

// Summary holds statistics for one flatten operation. Floor statistics cover
// estimated cells only; Z statistics cover the adjusted points.
type Summary struct {
	Points         int
	Cells          int
	EstimatedCells int

	FloorMin, FloorMax     float64
	FloorMean, FloorStdDev float64

	ZMin, ZMax     float64
	ZMean, ZStdDev float64
}

// Summarise computes a Summary from res and the points it adjusted.
func Summarise(res *flatten.Result, points []flatten.Point) Summary {
	rows, cols := res.Floors.Dims()
	s := Summary{
		Points:         len(points),
		Cells:          rows * cols,
		EstimatedCells: res.EstimatedCells,
	}

	floors := estimatedFloors(res)
	s.FloorMin, s.FloorMax, s.FloorMean, s.FloorStdDev = describe(floors)

	zs := make([]float64, len(points))
	for i, p := range points {
		zs[i] = p.Z
	}
	s.ZMin, s.ZMax, s.ZMean, s.ZStdDev = describe(zs)
	return s
}

// String renders the summary on one line for logs.
func (s Summary) String() string {
	return fmt.Sprintf("points=%s cells=%d/%d floor=[%.3g, %.3g] mean=%.3g sd=%.3g z=[%.3g, %.3g] mean=%.3g sd=%.3g",
		units.FormatCount(s.Points), s.EstimatedCells, s.Cells,
		s.FloorMin, s.FloorMax, s.FloorMean, s.FloorStdDev,
		s.ZMin, s.ZMax, s.ZMean, s.ZStdDev)
}

// describe returns min, max, mean and sample standard deviation of xs.
// Empty input yields zeros; a single value has zero spread.
func describe(xs []float64) (lo, hi, mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0, 0, 0
	}
	lo, hi = floats.Min(xs), floats.Max(xs)
	if len(xs) == 1 {
		return lo, hi, xs[0], 0
	}
	mean, sd = stat.MeanStdDev(xs, nil)
	return lo, hi, mean, sd
}

func estimatedFloors(res *flatten.Result) []float64 {
	rows, cols := res.Floors.Dims()
	out := make([]float64, 0, res.EstimatedCells)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if res.Floors.Estimated(row, col, res.Config.MinPointsPerCell) {
				out = append(out, res.Floors.At(row, col))
			}
		}
	}
	return out
}

// floorRange is the colour scale for floor maps: the span of estimated
// floors, or a one metre span when they are all equal or absent.
func floorRange(res *flatten.Result) (lo, hi float64) {
	floors := estimatedFloors(res)
	if len(floors) == 0 {
		return 0, 1
	}
	lo, hi = floats.Min(floors), floats.Max(floors)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// WriteReport writes a plain-text report for one file: bounding box, grid,
// summary and the count and floor tables.
func WriteReport(w io.Writer, name string, res *flatten.Result, s Summary) error {
	rows, cols := res.Floors.Dims()
	_, err := fmt.Fprintf(w,
		"File: %s\nFull pointcloud bbox: %s\nGrid: %dx%d cells of %gm (min points %d, percentile divisor %d)\n%s\n\nGrid blocks' sizes:\n%s\nGround zs:\n%s",
		name, res.BBox, rows, cols, res.Grid.SectionLen,
		res.Config.MinPointsPerCell, res.Config.PercentileDivisor,
		s, res.CountTable(), res.FloorTable())
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
