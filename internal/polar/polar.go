// Package polar converts range samples from polar to Cartesian coordinates.
package polar

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Sample is a single range measurement as delivered by the sensor.
type Sample struct {
	Quality    int
	AngleDeg   float64 // [0, 360)
	DistanceMM float64
}

// Scan is one revolution of samples in arrival order. Revolutions may be partial.
type Scan []Sample

// Point is a position in the sensor plane, in meters, with the sensor at the origin.
type Point = r2.Vec

// Window is the range interval, in meters, outside of which samples are discarded.
// Both bounds are exclusive.
type Window struct {
	MinRangeM float64
	MaxRangeM float64
}

// DefaultWindow ignores returns closer than 10cm and further than 6m.
var DefaultWindow = Window{MinRangeM: 0.10, MaxRangeM: 6.0}

// Retain reports whether s is finite and inside the window.
func (w Window) Retain(s Sample) bool {
	if !finite(s.AngleDeg) {
		return false
	}
	d := s.DistanceMM / 1000
	if !finite(d) {
		return false
	}
	return d > w.MinRangeM && d < w.MaxRangeM
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Filter returns the retained samples in order.
func (w Window) Filter(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if w.Retain(s) {
			out = append(out, s)
		}
	}
	return out
}

// Project returns the Cartesian position of every retained sample, in order.
func (w Window) Project(samples []Sample) []Point {
	out := make([]Point, 0, len(samples))
	for _, s := range samples {
		if w.Retain(s) {
			out = append(out, ToCartesian(s))
		}
	}
	return out
}

// ToCartesian converts s without applying any window.
func ToCartesian(s Sample) Point {
	d := s.DistanceMM / 1000
	sin, cos := math.Sincos(s.AngleDeg * math.Pi / 180)
	return r2.Scale(d, Point{X: cos, Y: sin})
}
