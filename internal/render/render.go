// Package render draws Cartesian scatter plots of lidar points.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/deepakkamesh/lidarview/internal/polar"
)

// ScreenshotLayout is the time layout of saved screenshot names.
const ScreenshotLayout = "lidar_cartesian_20060102_150405"

var (
	pointColor  = color.RGBA{R: 31, G: 119, B: 180, A: 217}
	originColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	gridColor   = color.Gray{Y: 160}
)

// Figure is a square scatter plot of points around the sensor.
type Figure struct {
	Title     string
	MaxRangeM float64   // Both axes span [-MaxRangeM, MaxRangeM].
	Size      vg.Length // Width and height.
}

// NewFigure returns a 6 inch figure.
func NewFigure(title string, maxRangeM float64) *Figure {
	return &Figure{
		Title:     title,
		MaxRangeM: maxRangeM,
		Size:      6 * vg.Inch,
	}
}

// Plot builds the plot for points.
func (f *Figure) Plot(points []polar.Point) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	grid := plotter.NewGrid()
	dashes := []vg.Length{vg.Points(3), vg.Points(3)}
	grid.Vertical.Color, grid.Horizontal.Color = gridColor, gridColor
	grid.Vertical.Width, grid.Horizontal.Width = vg.Points(0.5), vg.Points(0.5)
	grid.Vertical.Dashes, grid.Horizontal.Dashes = dashes, dashes
	p.Add(grid)

	if len(points) > 0 {
		xys := make(plotter.XYs, len(points))
		for i, pt := range points {
			xys[i].X, xys[i].Y = pt.X, pt.Y
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("scatter: %w", err)
		}
		scatter.GlyphStyle.Color = pointColor
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(1)
		p.Add(scatter)
		p.Legend.Add("points", scatter)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	origin.GlyphStyle.Color = originColor
	origin.GlyphStyle.Shape = draw.CircleGlyph{}
	origin.GlyphStyle.Radius = vg.Points(3)
	p.Add(origin)
	p.Legend.Add("LIDAR", origin)
	p.Legend.Top = true

	// Fixed after Add, which widens the axes to fit the data.
	p.X.Min, p.X.Max = -f.MaxRangeM, f.MaxRangeM
	p.Y.Min, p.Y.Max = -f.MaxRangeM, f.MaxRangeM
	return p, nil
}

// WritePNG rasterizes the plot of points to w at the given resolution.
func (f *Figure) WritePNG(w io.Writer, points []polar.Point, dpi int) error {
	p, err := f.Plot(points)
	if err != nil {
		return err
	}
	c := vgimg.NewWith(vgimg.UseWH(f.Size, f.Size), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// PNG returns the rasterized plot of points.
func (f *Figure) PNG(points []polar.Point, dpi int) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.WritePNG(&buf, points, dpi); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SavePNG writes the rasterized plot of points to path.
func (f *Figure) SavePNG(path string, points []polar.Point, dpi int) error {
	data, err := f.PNG(points, dpi)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save png: %w", err)
	}
	return nil
}

// ScreenshotName returns the file name of a screenshot taken at t.
func ScreenshotName(t time.Time) string {
	return t.Format(ScreenshotLayout) + ".png"
}

// UniquePath joins dir and name, adding a _<n> suffix before the extension
// while the path is taken. Saves within the same second then get their own file.
func UniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
