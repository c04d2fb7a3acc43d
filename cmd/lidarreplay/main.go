// Render a CSV lidar log as one Cartesian scatter plot.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/deepakkamesh/lidarview/internal/config"
	"github.com/deepakkamesh/lidarview/internal/csvlog"
	"github.com/deepakkamesh/lidarview/internal/polar"
	"github.com/deepakkamesh/lidarview/internal/render"
)

// Title is shown above the replay plot.
const Title = "LIDAR Replay (Cartesian)"

// replay reads every row and returns the points inside window along with the
// number of rows read.
func replay(rd *csvlog.Reader, window polar.Window) ([]polar.Point, int, error) {
	var (
		points []polar.Point
		rows   int
	)
	for {
		row, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return points, rows, nil
		}
		if err != nil {
			return points, rows, err
		}
		rows++

		s := row.Sample()
		if window.Retain(s) {
			points = append(points, polar.ToCartesian(s))
		}
	}
}

func writeHTML(path string, fig *render.Figure, points []polar.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fig.WriteHTML(f, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:], config.ReplayFlags|config.WindowFlags)
	if err != nil {
		glog.Exitf("Invalid configuration: %v", err)
	}
	defer glog.Flush()

	rd, err := csvlog.Open(cfg.LogFile)
	if err != nil {
		glog.Exitf("Failed to open log: %v", err)
	}
	points, rows, err := replay(rd, cfg.Window())
	rd.Close()
	if err != nil {
		glog.Exitf("Failed to read %s: %v", cfg.LogFile, err)
	}
	fmt.Printf("Read %d rows, %d points in range\n", rows, len(points))

	fig := render.NewFigure(Title, cfg.MaxRangeM)
	if err := fig.SavePNG(cfg.ReplayImage, points, cfg.DPI); err != nil {
		glog.Exitf("Failed to render: %v", err)
	}
	fmt.Printf("[saved] %s\n", cfg.ReplayImage)

	if cfg.ReplayHTML != "" {
		if err := writeHTML(cfg.ReplayHTML, fig, points); err != nil {
			glog.Exitf("Failed to write chart: %v", err)
		}
		fmt.Printf("[saved] %s\n", cfg.ReplayHTML)
	}
}
