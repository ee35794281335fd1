package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/groundflat/internal/fsutil"
	"github.com/banshee-data/groundflat/internal/lidar/flatten"
)

// ErrNoPoints is returned when a histogram is requested for an empty cloud.
var ErrNoPoints = errors.New("no points to plot")

// sparseColor marks cells that had too few points for a floor estimate.
var sparseColor = color.Gray{Y: 200}

// FloorPlotter renders floor grids and height distributions as PNG images.
type FloorPlotter struct {
	Width  vg.Length
	Height vg.Length
	Bins   int // histogram bins
}

// NewFloorPlotter returns a plotter producing 8x8 inch images.
func NewFloorPlotter() *FloorPlotter {
	return &FloorPlotter{Width: 8 * vg.Inch, Height: 8 * vg.Inch, Bins: 50}
}

// FloorPlot builds a map of cell centres coloured by floor height. Cells
// without an estimate are drawn grey.
func (fp *FloorPlotter) FloorPlot(res *flatten.Result, title string) (*plot.Plot, error) {
	rows, cols := res.Floors.Dims()
	minPoints := res.Config.MinPointsPerCell

	xys := make(plotter.XYs, 0, rows*cols)
	heights := make([]float64, 0, rows*cols)
	estimated := make([]bool, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x, y := res.Grid.CellCenter(row, col)
			xys = append(xys, plotter.XY{X: x, Y: y})
			heights = append(heights, res.Floors.At(row, col))
			estimated = append(estimated, res.Floors.Estimated(row, col, minPoints))
		}
	}

	lo, hi := floorRange(res)
	cmap := moreland.SmoothBlueRed()
	cmap.SetMax(hi)
	cmap.SetMin(lo)

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("floor scatter: %w", err)
	}
	radius := fp.Width / vg.Length(2*max(rows, cols)+2)
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		var c color.Color = sparseColor
		if estimated[i] {
			if v, err := cmap.At(heights[i]); err == nil {
				c = v
			}
		}
		return draw.GlyphStyle{Color: c, Radius: radius, Shape: draw.BoxGlyph{}}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (floor %.3g to %.3g m)", title, lo, hi)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.X.Min = res.Grid.BaseX
	p.X.Max = res.Grid.BaseX + float64(cols)*res.Grid.SectionLen
	p.Y.Min = res.Grid.BaseY
	p.Y.Max = res.Grid.BaseY + float64(rows)*res.Grid.SectionLen
	p.Add(plotter.NewGrid(), s)
	return p, nil
}

// HeightHistogram builds a histogram of point heights.
func (fp *FloorPlotter) HeightHistogram(points []flatten.Point, title string) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	zs := make(plotter.Values, len(points))
	for i, p := range points {
		zs[i] = p.Z
	}
	h, err := plotter.NewHist(zs, max(fp.Bins, 1))
	if err != nil {
		return nil, fmt.Errorf("height histogram: %w", err)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Z (m)"
	p.Y.Label.Text = "Points"
	p.Add(h)
	return p, nil
}

// WritePNG encodes p at the plotter's size.
func (fp *FloorPlotter) WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(fp.Width, fp.Height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// SavePNG writes the floor map of res to path on fsys.
func (fp *FloorPlotter) SavePNG(fsys fsutil.FileSystem, path string, res *flatten.Result, title string) error {
	p, err := fp.FloorPlot(res, title)
	if err != nil {
		return err
	}
	return fp.save(fsys, path, p)
}

// SaveHistogramPNG writes the height histogram of points to path on fsys.
func (fp *FloorPlotter) SaveHistogramPNG(fsys fsutil.FileSystem, path string, points []flatten.Point, title string) error {
	p, err := fp.HeightHistogram(points, title)
	if err != nil {
		return err
	}
	return fp.save(fsys, path, p)
}

func (fp *FloorPlotter) save(fsys fsutil.FileSystem, path string, p *plot.Plot) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fp.WritePNG(f, p); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
