// Package viewer keeps the live Cartesian view of the most recent scan.
package viewer

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/deepakkamesh/lidarview/internal/polar"
	"github.com/deepakkamesh/lidarview/internal/render"
	"github.com/deepakkamesh/lidarview/internal/timeutil"
)

// Title is shown above the live plot.
const Title = "RPLIDAR Cartesian View (S to save, Ctrl+C to quit)"

// Command is a user request queued for the next frame.
type Command int

const (
	// SaveCommand asks for the current figure to be written to disk.
	SaveCommand Command = iota
)

// Config controls a Session.
type Config struct {
	Window        polar.Window
	ScreenshotDir string
	DPI           int           // Resolution of saved screenshots.
	LiveDPI       int           // Resolution of the image on the live page.
	SaveDebounce  time.Duration // Saves closer than this to the previous one are dropped.
}

// Session is the viewer state. Frame must be called from a single goroutine;
// Enqueue and the read accessors are safe to call from any goroutine.
type Session struct {
	cfg    Config
	figure *render.Figure
	clock  timeutil.Clock
	events chan Command

	// Owned by the Frame goroutine.
	saveRequested bool
	lastSave      time.Time
	saved         []string

	mu     sync.RWMutex
	points []polar.Point
	image  []byte
	frames int
}

// NewSession returns a Session with an empty view.
func NewSession(cfg Config, clock timeutil.Clock) *Session {
	if cfg.LiveDPI <= 0 {
		cfg.LiveDPI = 96
	}
	return &Session{
		cfg:    cfg,
		figure: render.NewFigure(Title, cfg.Window.MaxRangeM),
		clock:  clock,
		events: make(chan Command, 16),
	}
}

// Enqueue posts a command for the next frame. It never blocks; when the queue
// is full the command is dropped.
func (s *Session) Enqueue(cmd Command) {
	select {
	case s.events <- cmd:
	default:
		glog.V(1).Infof("Event queue full, dropping command %d", cmd)
	}
}

// RequestSave is Enqueue(SaveCommand).
func (s *Session) RequestSave() {
	s.Enqueue(SaveCommand)
}

// drain applies every queued command.
func (s *Session) drain() {
	for {
		select {
		case cmd := <-s.events:
			if cmd == SaveCommand {
				s.saveRequested = true
			}
		default:
			return
		}
	}
}

// Frame redraws the view from one scan and handles a pending save request.
// A request is consumed by the frame that sees it, whether or not the
// debounce window allowed the save.
func (s *Session) Frame(scan polar.Scan) error {
	s.drain()

	points := s.cfg.Window.Project(scan)
	image, err := s.figure.PNG(points, s.cfg.LiveDPI)
	if err != nil {
		return fmt.Errorf("render frame: %w", err)
	}

	s.mu.Lock()
	s.points = points
	s.image = image
	s.frames++
	s.mu.Unlock()

	if !s.saveRequested {
		return nil
	}
	s.saveRequested = false
	if !s.lastSave.IsZero() && s.clock.Since(s.lastSave) <= s.cfg.SaveDebounce {
		glog.V(1).Infof("Save request within %v of the previous save, ignoring", s.cfg.SaveDebounce)
		return nil
	}
	return s.save(points)
}

func (s *Session) save(points []polar.Point) error {
	now := s.clock.Now()
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := render.UniquePath(s.cfg.ScreenshotDir, render.ScreenshotName(now))
	if err := s.figure.SavePNG(path, points, s.cfg.DPI); err != nil {
		return err
	}
	// Only a written file starts the debounce window.
	s.lastSave = now
	s.saved = append(s.saved, path)
	fmt.Printf("[saved] %s\n", path)
	return nil
}

// Saved returns the screenshots written so far.
func (s *Session) Saved() []string {
	return s.saved
}

// Snapshot returns the points and image of the latest frame.
func (s *Session) Snapshot() ([]polar.Point, []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points, s.image
}

// Frames returns the number of frames drawn.
func (s *Session) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Figure returns the figure the session draws.
func (s *Session) Figure() *render.Figure {
	return s.figure
}
