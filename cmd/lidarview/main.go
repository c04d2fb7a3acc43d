// Live Cartesian view of the lidar with on-demand screenshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/deepakkamesh/lidarview/internal/acquire"
	"github.com/deepakkamesh/lidarview/internal/config"
	"github.com/deepakkamesh/lidarview/internal/timeutil"
	"github.com/deepakkamesh/lidarview/internal/viewer"
	"github.com/deepakkamesh/lidarview/rplidar"
)

// view renders every scan into the session until the context is cancelled or
// the source fails.
func view(ctx context.Context, scans acquire.ScanSource, s *viewer.Session) error {
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
		if len(scan) == 0 {
			continue
		}

		if err := s.Frame(scan); err != nil {
			glog.Errorf("Unable to render frame: %v", err)
		}
	}
}

// keyInput returns the controlling terminal in cbreak mode, or stdin read line
// by line when there is no terminal. The returned func restores the terminal.
func keyInput() (io.Reader, func()) {
	kb, err := viewer.OpenKeyboard("/dev/tty")
	if err != nil {
		glog.V(1).Infof("Reading keys from stdin: %v", err)
		return os.Stdin, func() {}
	}
	return kb, func() {
		if err := kb.Close(); err != nil {
			glog.Warningf("Unable to restore terminal: %v", err)
		}
	}
}

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:], config.DeviceFlags|config.WindowFlags|config.ViewerFlags)
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
	dev.PrintStatus(ctx)

	scans, err := dev.Scans(ctx)
	if err != nil && ctx.Err() == nil {
		dev.Release()
		glog.Exitf("Failed to start scan: %v", err)
	}

	var runErr error
	if ctx.Err() == nil {
		session := viewer.NewSession(viewer.Config{
			Window:        cfg.Window(),
			ScreenshotDir: cfg.ScreenshotDir,
			DPI:           cfg.DPI,
			SaveDebounce:  cfg.GetSaveDebounce(),
		}, timeutil.RealClock{})

		var server *viewer.Server
		if cfg.Listen != "" {
			server = viewer.Serve(cfg.Listen, session)
		}
		keys, restore := keyInput()
		go viewer.WatchKeys(keys, session)
		fmt.Println("Press S to save a screenshot, Ctrl+C to quit.")

		runErr = view(ctx, scans, session)
		restore()

		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := server.Close(shutdownCtx); err != nil {
				glog.Warningf("Unable to stop live page: %v", err)
			}
			cancel()
		}
	}
	if ctx.Err() != nil {
		fmt.Println("\n[exit] Ctrl+C received, stopping...")
	}

	if runErr != nil {
		dev.Release()
		glog.Exitf("Viewer stopped: %v", runErr)
	}
}
