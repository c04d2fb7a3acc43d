// Package config holds the tunable policy values shared by the lidar tools.
package config

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deepakkamesh/lidarview/internal/polar"
)

// Config is the root configuration. Durations are strings like "500ms" so the
// YAML file stays readable.
type Config struct {
	// Device
	Port        string `yaml:"port"` // "auto" picks the last enumerated serial port
	BaudRate    int    `yaml:"baud_rate"`
	ReadTimeout string `yaml:"read_timeout"`

	// Validity window
	MinRangeM float64 `yaml:"min_range_m"`
	MaxRangeM float64 `yaml:"max_range_m"`

	// Logger
	LogFile     string `yaml:"log_file"`
	LogDuration string `yaml:"log_duration"`
	LogRaw      bool   `yaml:"log_raw"`

	// Viewer
	ScreenshotDir string `yaml:"screenshot_dir"`
	DPI           int    `yaml:"dpi"`
	SaveDebounce  string `yaml:"save_debounce"`
	Listen        string `yaml:"listen"`

	// Replay
	ReplayImage string `yaml:"replay_image"`
	ReplayHTML  string `yaml:"replay_html"`
}

// Default returns the values the tools use when nothing is configured.
func Default() *Config {
	return &Config{
		Port:          "/dev/ttyUSB0",
		BaudRate:      115200,
		ReadTimeout:   "3s",
		MinRangeM:     polar.DefaultWindow.MinRangeM,
		MaxRangeM:     polar.DefaultWindow.MaxRangeM,
		LogFile:       "lidar_log.csv",
		LogDuration:   "15s",
		ScreenshotDir: filepath.Join("assets", "screenshots"),
		DPI:           150,
		SaveDebounce:  "500ms",
		Listen:        ":8080",
		ReplayImage:   "lidar_replay.png",
	}
}

// Load reads a YAML config file. Fields omitted from the file keep their
// default values, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if !finite(c.MinRangeM) || !finite(c.MaxRangeM) {
		return fmt.Errorf("invalid range window (%g, %g): bounds must be finite", c.MinRangeM, c.MaxRangeM)
	}
	if c.MinRangeM < 0 || c.MinRangeM >= c.MaxRangeM {
		return fmt.Errorf("invalid range window (%g, %g): need 0 <= min < max", c.MinRangeM, c.MaxRangeM)
	}
	if c.DPI <= 0 {
		return fmt.Errorf("invalid dpi %d", c.DPI)
	}
	for name, value := range map[string]string{
		"read_timeout":  c.ReadTimeout,
		"log_duration":  c.LogDuration,
		"save_debounce": c.SaveDebounce,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: must not be negative", name, value)
		}
	}
	return nil
}

// Window returns the configured validity window.
func (c *Config) Window() polar.Window {
	return polar.Window{MinRangeM: c.MinRangeM, MaxRangeM: c.MaxRangeM}
}

// GetReadTimeout returns the serial read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, 3*time.Second)
}

// GetLogDuration returns the logger's time budget.
func (c *Config) GetLogDuration() time.Duration {
	return parseDurationOr(c.LogDuration, 15*time.Second)
}

// GetSaveDebounce returns the minimum interval between two screenshots.
func (c *Config) GetSaveDebounce() time.Duration {
	return parseDurationOr(c.SaveDebounce, 500*time.Millisecond)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Group selects which flags a tool exposes.
type Group int

const (
	DeviceFlags Group = 1 << iota
	WindowFlags
	LoggerFlags
	ViewerFlags
	ReplayFlags
)

// Parse registers the selected flag groups plus -config on fs and parses args.
// Values come from the defaults, then the config file, then the flags that
// were set explicitly.
func Parse(fs *flag.FlagSet, args []string, groups Group) (*Config, error) {
	path := fs.String("config", "", "YAML config file; explicitly set flags override its values")
	cli := Default()
	cli.register(fs, groups)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *path != "" {
		loaded, err := Load(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		cfg.override(f.Name, cli)
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) register(fs *flag.FlagSet, groups Group) {
	if groups&DeviceFlags != 0 {
		fs.StringVar(&c.Port, "port", c.Port, `Serial port of the lidar, or "auto"`)
		fs.IntVar(&c.BaudRate, "baud", c.BaudRate, "Serial baud rate")
		fs.StringVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Serial read timeout")
	}
	if groups&WindowFlags != 0 {
		fs.Float64Var(&c.MinRangeM, "min-range", c.MinRangeM, "Discard returns closer than this many meters")
		fs.Float64Var(&c.MaxRangeM, "max-range", c.MaxRangeM, "Discard returns further than this many meters")
	}
	if groups&LoggerFlags != 0 {
		fs.StringVar(&c.LogFile, "out", c.LogFile, "CSV file to write")
		fs.StringVar(&c.LogDuration, "duration", c.LogDuration, "Stop logging after this long")
		fs.BoolVar(&c.LogRaw, "raw", c.LogRaw, "Log every sample, ignoring the range window")
	}
	if groups&ViewerFlags != 0 {
		fs.StringVar(&c.ScreenshotDir, "screenshots", c.ScreenshotDir, "Directory for saved PNGs")
		fs.StringVar(&c.SaveDebounce, "debounce", c.SaveDebounce, "Minimum interval between two saves")
		fs.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address for the live page, empty to disable")
	}
	if groups&(ViewerFlags|ReplayFlags) != 0 {
		fs.IntVar(&c.DPI, "dpi", c.DPI, "Resolution of saved PNGs")
	}
	if groups&ReplayFlags != 0 {
		fs.StringVar(&c.LogFile, "in", c.LogFile, "CSV file to replay")
		fs.StringVar(&c.ReplayImage, "image", c.ReplayImage, "PNG file to render")
		fs.StringVar(&c.ReplayHTML, "html", c.ReplayHTML, "Optional HTML chart to render")
	}
}

// override copies the value bound to the named flag from src.
func (c *Config) override(name string, src *Config) {
	switch name {
	case "port":
		c.Port = src.Port
	case "baud":
		c.BaudRate = src.BaudRate
	case "read-timeout":
		c.ReadTimeout = src.ReadTimeout
	case "min-range":
		c.MinRangeM = src.MinRangeM
	case "max-range":
		c.MaxRangeM = src.MaxRangeM
	case "out", "in":
		c.LogFile = src.LogFile
	case "duration":
		c.LogDuration = src.LogDuration
	case "raw":
		c.LogRaw = src.LogRaw
	case "screenshots":
		c.ScreenshotDir = src.ScreenshotDir
	case "dpi":
		c.DPI = src.DPI
	case "debounce":
		c.SaveDebounce = src.SaveDebounce
	case "listen":
		c.Listen = src.Listen
	case "image":
		c.ReplayImage = src.ReplayImage
	case "html":
		c.ReplayHTML = src.ReplayHTML
	}
}
