// Log lidar scans to a CSV file for a fixed time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/deepakkamesh/lidarview/internal/acquire"
	"github.com/deepakkamesh/lidarview/internal/config"
	"github.com/deepakkamesh/lidarview/internal/csvlog"
	"github.com/deepakkamesh/lidarview/internal/polar"
	"github.com/deepakkamesh/lidarview/internal/timeutil"
	"github.com/deepakkamesh/lidarview/rplidar"
)

// logger appends scans to a CSV writer until its time budget is spent.
type logger struct {
	w      *csvlog.Writer
	window *polar.Window // nil logs every sample.
	budget time.Duration
	clock  timeutil.Clock
}

// run pulls scans until the budget is exceeded, the context is cancelled or
// the source fails. The scan that crosses the budget is still written.
func (l *logger) run(ctx context.Context, scans acquire.ScanSource) error {
	start := l.clock.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}

		scan, err := scans.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, rplidar.ErrTimeout):
			glog.Warningf("No data from lidar: %v", err)
			continue
		case err != nil:
			return err
		}

		t := l.clock.Since(start)
		samples := []polar.Sample(scan)
		if l.window != nil {
			samples = l.window.Filter(samples)
		}
		if err := l.w.WriteScan(t.Seconds(), samples); err != nil {
			return err
		}
		if t > l.budget {
			return nil
		}
	}
}

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:], config.DeviceFlags|config.WindowFlags|config.LoggerFlags)
	if err != nil {
		glog.Exitf("Invalid configuration: %v", err)
	}
	defer glog.Flush()

	// Catch interrupts to exit clean, including during device startup.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := acquire.Open(acquire.DeviceConfig{
		Path:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.GetReadTimeout(),
	})
	if err != nil {
		glog.Exitf("Failed to init Lidar: %v", err)
	}
	defer dev.Release()

	w, err := csvlog.Create(cfg.LogFile)
	if err != nil {
		dev.Release()
		glog.Exitf("Failed to create log: %v", err)
	}

	var runErr error
	scans, err := dev.Scans(ctx)
	switch {
	case ctx.Err() != nil:
	case err != nil:
		w.Close()
		dev.Release()
		glog.Exitf("Failed to start scan: %v", err)
	default:
		l := &logger{w: w, budget: cfg.GetLogDuration(), clock: timeutil.RealClock{}}
		if !cfg.LogRaw {
			window := cfg.Window()
			l.window = &window
		}
		runErr = l.run(ctx, scans)
	}
	if ctx.Err() != nil {
		fmt.Println("\n[exit] Ctrl+C received, stopping...")
	}

	if err := w.Close(); err != nil {
		glog.Errorf("Failed to close log: %v", err)
	}
	fmt.Printf("Wrote %d rows to %s\n", w.Rows(), cfg.LogFile)
	if runErr != nil {
		dev.Release()
		glog.Exitf("Logging stopped: %v", runErr)
	}
}
