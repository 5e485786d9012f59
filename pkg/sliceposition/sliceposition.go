// Package sliceposition measures the slice position error from the length difference of
// the two dark 45° wedge bars at the top of the phantom.
package sliceposition

import (
	"fmt"
	"math"
	"sort"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

const (
	ModuleID    = "slice_position"
	MetricError = "position_error"
	Unit        = "mm"
)

// Params locates the bar window relative to the phantom centre, in mm
type Params struct {
	OffsetX    float64 `yaml:"offsetX"`
	OffsetY    float64 `yaml:"offsetY"`
	HalfWidth  float64 `yaml:"halfWidth"`
	HalfHeight float64 `yaml:"halfHeight"`

	// WedgeAngle is the angle of the crossed wedges in degrees
	WedgeAngle float64 `yaml:"wedgeAngle"`

	// MinContrast is the relative depth the bars must have against the phantom signal
	MinContrast float64 `yaml:"minContrast"`
}

func DefaultParams() Params {
	return Params{
		OffsetX:     0,
		OffsetY:     -53,
		HalfWidth:   15,
		HalfHeight:  25,
		WedgeAngle:  45,
		MinContrast: 0.2,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if !(p.HalfWidth > 0 && p.HalfHeight > 0) {
		return fmt.Errorf("bar window must have positive size")
	}
	if !(p.WedgeAngle > 0 && p.WedgeAngle < 90) {
		return fmt.Errorf("wedge angle must be in (0, 90) degrees, got %v", p.WedgeAngle)
	}
	if !(p.MinContrast > 0 && p.MinContrast < 1) {
		return fmt.Errorf("min contrast must be in (0, 1), got %v", p.MinContrast)
	}
	return nil
}

// Result holds the position error and the two bar lengths in mm
type Result struct {
	Error float64
	Left  float64
	Right float64
}

// Measure finds the two bars as the dark column runs of the window, measures their length
// at half height and converts the length difference into a slice displacement.
func Measure(img models.SliceImage, geo models.PhantomGeometry, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	win, err := geometry.Resample(img, geo, p.OffsetX, p.OffsetY, p.HalfWidth, p.HalfHeight)
	if err != nil {
		return Result{}, err
	}

	cols := geometry.ColumnMeans(win)
	lo, hi := cols[0], cols[0]
	for _, v := range cols {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if !(hi > 0) || (hi-lo)/hi < p.MinContrast {
		return Result{}, fmt.Errorf("no bars in window: %w", models.ErrFeatureNotFound)
	}
	dark := make([]bool, len(cols))
	for i, v := range cols {
		dark[i] = v < (lo+hi)/2
	}
	runs := geometry.Runs(dark)
	if len(runs) < 2 {
		return Result{}, fmt.Errorf("found %d bars, need 2: %w", len(runs), models.ErrFeatureNotFound)
	}
	// keep the two widest, then order them left to right
	sort.SliceStable(runs, func(i, j int) bool { return runs[i][1]-runs[i][0] > runs[j][1]-runs[j][0] })
	runs = runs[:2]
	sort.Slice(runs, func(i, j int) bool { return runs[i][0] < runs[j][0] })

	left, err := barLength(win, runs[0])
	if err != nil {
		return Result{}, fmt.Errorf("left bar: %w", err)
	}
	right, err := barLength(win, runs[1])
	if err != nil {
		return Result{}, fmt.Errorf("right bar: %w", err)
	}

	cot := 1 / math.Tan(p.WedgeAngle*math.Pi/180)
	return Result{
		Error: (left - right) / 2 * cot,
		Left:  left,
		Right: right,
	}, nil
}

// barLength measures the full width at half depth of the vertical profile through a bar
func barLength(win models.SliceImage, run [2]int) (float64, error) {
	profile := geometry.RunColumns(win, run[0], run[1])
	lo, hi := profile[0], profile[0]
	for _, v := range profile {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	level := (lo + hi) / 2
	top, ok1 := geometry.Crossing(profile, level, false)
	bottom, ok2 := geometry.Crossing(profile, level, true)
	if !ok1 || !ok2 || !(bottom > top) {
		return 0, fmt.Errorf("bar ends not found: %w", models.ErrFeatureNotFound)
	}
	return (bottom - top) * win.PixelSpacing.Y, nil
}
