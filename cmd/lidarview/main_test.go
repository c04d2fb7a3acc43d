package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepakkamesh/lidarview/internal/polar"
	"github.com/deepakkamesh/lidarview/internal/timeutil"
	"github.com/deepakkamesh/lidarview/internal/viewer"
	"github.com/deepakkamesh/lidarview/rplidar"
)

type result struct {
	scan polar.Scan
	err  error
}

// scripted replays results in order and cancels once they run out.
type scripted struct {
	results []result
	cancel  func()
	calls   int
}

func (s *scripted) Next(ctx context.Context) (polar.Scan, error) {
	s.calls++
	if len(s.results) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.scan, r.err
}

var scan = polar.Scan{
	{Quality: 15, AngleDeg: 0, DistanceMM: 1000},
	{Quality: 15, AngleDeg: 90, DistanceMM: 2000},
}

func newSession(t *testing.T) (*viewer.Session, string) {
	t.Helper()
	dir := t.TempDir()
	clock := timeutil.NewMockClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local))
	s := viewer.NewSession(viewer.Config{
		Window:        polar.DefaultWindow,
		ScreenshotDir: dir,
		DPI:           72,
		LiveDPI:       40,
		SaveDebounce:  500 * time.Millisecond,
	}, clock)
	return s, dir
}

func TestViewUntilInterrupted(t *testing.T) {
	s, dir := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	timeout := fmt.Errorf("expected 5 bytes got 0: %w", rplidar.ErrTimeout)
	src := &scripted{cancel: cancel, results: []result{
		{scan: scan},
		{err: timeout},
		{scan: polar.Scan{}},
		{scan: scan},
	}}

	s.RequestSave()
	require.NoError(t, view(ctx, src, s))

	assert.Equal(t, 5, src.calls)
	assert.Equal(t, 2, s.Frames(), "empty scans are not drawn")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestViewSourceError(t *testing.T) {
	s, _ := newSession(t)
	broken := errors.New("device disconnected")
	src := &scripted{cancel: func() {}, results: []result{{scan: scan}, {err: broken}}}

	assert.ErrorIs(t, view(context.Background(), src, s), broken)
	assert.Equal(t, 1, s.Frames())
}

func TestViewCancelledBeforeStart(t *testing.T) {
	s, _ := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scripted{cancel: cancel, results: []result{{scan: scan}}}

	require.NoError(t, view(ctx, src, s))
	assert.Zero(t, src.calls)
	assert.Zero(t, s.Frames())
}
