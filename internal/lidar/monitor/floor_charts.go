package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/groundflat/internal/lidar/flatten"
)

// viridis is the colour ramp used for floor heights.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderFloorHeatmap writes an HTML page plotting each estimated cell at its
// centre, coloured by floor height, with sparse cells in grey.
func RenderFloorHeatmap(w io.Writer, res *flatten.Result, title string) error {
	rows, cols := res.Floors.Dims()
	minPoints := res.Config.MinPointsPerCell

	data := make([]opts.ScatterData, 0, res.EstimatedCells)
	sparse := make([]opts.ScatterData, 0, rows*cols-res.EstimatedCells)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x, y := res.Grid.CellCenter(row, col)
			if res.Floors.Estimated(row, col, minPoints) {
				data = append(data, opts.ScatterData{Value: []interface{}{x, y, res.Floors.At(row, col), res.Floors.Count(row, col)}})
			} else {
				sparse = append(sparse, opts.ScatterData{Value: []interface{}{x, y}})
			}
		}
	}

	lo, hi := floorRange(res)
	g := res.Grid
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Floor heights", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("grid=%dx%d section=%gm estimated=%d points=%d", rows, cols, g.SectionLen, res.EstimatedCells, res.Points),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: g.BaseX, Max: g.BaseX + float64(cols)*g.SectionLen, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: g.BaseY, Max: g.BaseY + float64(rows)*g.SectionLen, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	scatter.AddSeries("floor", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	scatter.AddSeries("sparse", sparse,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#888888"}),
	)

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render floor heatmap: %w", err)
	}
	return nil
}
