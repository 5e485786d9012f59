// Package geoaccuracy measures phantom diameters along fixed directions through the
// localized centre.
package geoaccuracy

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

const (
	ModuleID = "geometric_accuracy"

	MetricHorizontal = "horizontal_distance"
	MetricVertical   = "vertical_distance"
	MetricDiagonalSW = "diagonal_distance_sw"
	MetricDiagonalSE = "diagonal_distance_se"

	Unit = "mm"
)

// Direction is a named measurement line relative to the phantom axes
type Direction struct {
	Metric string
	Angle  float64
}

var (
	Horizontal = Direction{Metric: MetricHorizontal, Angle: 0}
	Vertical   = Direction{Metric: MetricVertical, Angle: math.Pi / 2}

	// DiagonalSW runs from the lower left towards the upper right
	DiagonalSW = Direction{Metric: MetricDiagonalSW, Angle: -math.Pi / 4}

	// DiagonalSE runs from the lower right towards the upper left
	DiagonalSE = Direction{Metric: MetricDiagonalSE, Angle: math.Pi / 4}
)

// Params configures the diameter measurement
type Params struct {
	// SampleStep is the profile sampling step in pixels
	SampleStep float64 `yaml:"sampleStep"`

	// LevelQuantile picks the background (q) and signal (1-q) levels from the profile
	LevelQuantile float64 `yaml:"levelQuantile"`

	// DiagonalSlices are the slices whose grid makes the diagonal distances meaningful
	DiagonalSlices []int `yaml:"diagonalSlices"`
}

// DefaultParams returns the standard settings
func DefaultParams() Params {
	return Params{SampleStep: 0.25, LevelQuantile: 0.05, DiagonalSlices: []int{5}}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if !(p.SampleStep > 0) || !(p.LevelQuantile > 0 && p.LevelQuantile < 0.5) {
		return fmt.Errorf("invalid geometric accuracy params %+v", p)
	}
	return nil
}

// Directions returns the measurement lines of a slice
func (p Params) Directions(slice int) []Direction {
	dirs := []Direction{Horizontal, Vertical}
	for _, s := range p.DiagonalSlices {
		if s == slice {
			return append(dirs, DiagonalSW, DiagonalSE)
		}
	}
	return dirs
}

// Measure returns the physical phantom diameter in mm along dir, rotated by the phantom
// rotation. Edges are the first half-level crossings found scanning in from both ends.
func Measure(img models.SliceImage, geo models.PhantomGeometry, dir Direction, p Params) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	u := geometry.Direction(dir.Angle + geo.Rotation)
	reach := reachInside(img, geo.Center, u)
	if reach <= geo.Radius {
		return 0, fmt.Errorf("%s: phantom reaches the image edge: %w", dir.Metric, models.ErrFeatureNotFound)
	}

	from := geo.Center.Sub(u.Scale(reach))
	to := geo.Center.Add(u.Scale(reach))
	n := int(2*reach/p.SampleStep) + 1
	profile, err := geometry.Profile(img, from, to, n, 0.5)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", dir.Metric, err)
	}

	background := geometry.Quantile(profile, p.LevelQuantile)
	signal := geometry.Quantile(profile, 1-p.LevelQuantile)
	if !(signal > background) {
		return 0, fmt.Errorf("%s: flat profile: %w", dir.Metric, models.ErrFeatureNotFound)
	}
	half := (background + signal) / 2

	first, ok1 := geometry.Crossing(profile, half, false)
	last, ok2 := geometry.Crossing(profile, half, true)
	if !ok1 || !ok2 || last <= first {
		return 0, fmt.Errorf("%s: fewer than two edges: %w", dir.Metric, models.ErrFeatureNotFound)
	}

	step := geometry.Distance(from, to, img.PixelSpacing) / float64(n-1)
	return (last - first) * step, nil
}

// reachInside is the largest distance t such that c ± t·u both stay inside the image
func reachInside(img models.SliceImage, c, u models.Point) float64 {
	limit := math.Inf(1)
	axis := func(pos, d, hi float64) {
		if math.Abs(d) < 1e-12 {
			return
		}
		for _, edge := range []float64{0, hi} {
			t := math.Abs((edge - pos) / d)
			limit = math.Min(limit, t)
		}
	}
	axis(c.X, u.X, float64(img.Width-1))
	axis(c.Y, u.Y, float64(img.Height-1))
	return limit
}
