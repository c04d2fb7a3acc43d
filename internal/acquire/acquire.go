// Package acquire opens the lidar and turns its measurement stream into scans.
package acquire

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/deepakkamesh/lidarview/internal/polar"
	"github.com/deepakkamesh/lidarview/rplidar"
)

// AutoPort selects the last serial port the system enumerates.
const AutoPort = "auto"

// DeviceConfig describes how to reach the lidar.
type DeviceConfig struct {
	Path        string
	BaudRate    int
	ReadTimeout time.Duration
}

// ScanSource is a lazy, unbounded sequence of scans.
type ScanSource interface {
	// Next blocks until the next scan is available. Scans may be empty.
	Next(ctx context.Context) (polar.Scan, error)
}

// Replaced in tests.
var (
	openPort = func(path string, mode *serial.Mode) (rplidar.Port, error) {
		return serial.Open(path, mode)
	}
	listPorts = serial.GetPortsList
)

// Device owns the serial connection for its whole lifetime.
type Device struct {
	Path  string
	lidar *rplidar.Lidar
	once  sync.Once
}

// ResolvePort returns path, or the last enumerated serial port for AutoPort.
func ResolvePort(path string) (string, error) {
	if path != AutoPort {
		return path, nil
	}
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}
	glog.V(1).Infof("Found serial ports %v", ports)
	return ports[len(ports)-1], nil
}

// Open connects to the lidar. A failure here is a connection error and the
// caller should not continue.
func Open(cfg DeviceConfig) (*Device, error) {
	path, err := ResolvePort(cfg.Path)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPort(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}

	glog.Infof("Connected to port: %s at %d baud", path, cfg.BaudRate)
	return NewDevice(path, port), nil
}

// NewDevice wraps an already open port.
func NewDevice(path string, port rplidar.Port) *Device {
	return &Device{
		Path:  path,
		lidar: rplidar.NewLidar(port),
	}
}

// Info queries the device information.
func (d *Device) Info() (*rplidar.DeviceInfo, error) {
	return d.lidar.DeviceInfo()
}

// Health queries the device health.
func (d *Device) Health() (*rplidar.Health, error) {
	return d.lidar.Health()
}

// PrintStatus prints the device information and health once. Query failures
// are logged and otherwise ignored. Nothing is queried once ctx is done.
func (d *Device) PrintStatus(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	info, err := d.Info()
	if err != nil {
		glog.Warningf("Failed to read lidar info: %v", err)
	} else {
		fmt.Println("INFO:", info)
	}

	if ctx.Err() != nil {
		return
	}
	health, err := d.Health()
	if err != nil {
		glog.Warningf("Failed to read lidar health: %v", err)
	}
	if health != nil {
		fmt.Println("HEALTH:", health)
	}
}

// Scans starts the motor and a scan, and returns the scan sequence. It can
// only be called once per device. The motor is left off if ctx is done.
func (d *Device) Scans(ctx context.Context) (*Scans, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.lidar.StartMotor(); err != nil {
		return nil, fmt.Errorf("start motor: %w", err)
	}
	if err := d.lidar.StartScan(); err != nil {
		return nil, err
	}
	return &Scans{reader: rplidar.NewScanReader(d.lidar, rplidar.MinScanLen)}, nil
}

// Release stops the scan and the motor and disconnects. Every step is best
// effort: failures are logged and the next step still runs. Only the first
// call does anything.
func (d *Device) Release() {
	d.once.Do(func() {
		glog.Infof("Releasing lidar on %s", d.Path)
		if err := d.lidar.StopScan(); err != nil {
			glog.Warningf("Failed to stop scan: %v", err)
		}
		if err := d.lidar.StopMotor(); err != nil {
			glog.Warningf("Failed to stop motor: %v", err)
		}
		if err := d.lidar.Close(); err != nil {
			glog.Warningf("Failed to disconnect: %v", err)
		}
		if n := d.lidar.Dropped(); n > 0 {
			glog.Infof("Dropped %d malformed measurements", n)
		}
	})
}

// Scans is the ScanSource of a running device.
type Scans struct {
	reader *rplidar.ScanReader
}

// Next returns the next revolution as samples.
func (s *Scans) Next(ctx context.Context) (polar.Scan, error) {
	measurements, err := s.reader.Next(ctx)
	if err != nil {
		return nil, err
	}
	scan := make(polar.Scan, len(measurements))
	for i, m := range measurements {
		scan[i] = polar.Sample{Quality: m.Quality, AngleDeg: m.Angle, DistanceMM: m.Distance}
	}
	return scan, nil
}
