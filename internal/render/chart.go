package render

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/deepakkamesh/lidarview/internal/polar"
)

// Chart builds an interactive HTML scatter of points, colored by range.
func (f *Figure) Chart(points []polar.Point) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(points))
	for _, pt := range points {
		r := math.Hypot(pt.X, pt.Y)
		data = append(data, opts.ScatterData{Value: []interface{}{pt.X, pt.Y, r}})
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: f.Title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: f.Title, Subtitle: fmt.Sprintf("points=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -f.MaxRangeM, Max: f.MaxRangeM, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -f.MaxRangeM, Max: f.MaxRangeM, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(f.MaxRangeM),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("LIDAR", []opts.ScatterData{{Value: []interface{}{0.0, 0.0, 0.0}, Symbol: "diamond", SymbolSize: 12}})
	return scatter
}

// WriteHTML renders the chart of points as a standalone HTML page.
func (f *Figure) WriteHTML(w io.Writer, points []polar.Point) error {
	if err := f.Chart(points).Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
