// Package slicethickness measures the slice thickness from the two crossed signal ramps of
// the thickness insert.
package slicethickness

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/fitting"
	"phantomqa/pkg/geometry"
)

const (
	ModuleID        = "slice_thickness"
	MetricThickness = "slice_thickness"
	Unit            = "mm"
)

// Params locates the ramp window relative to the phantom centre, in mm
type Params struct {
	OffsetX    float64 `yaml:"offsetX"`
	OffsetY    float64 `yaml:"offsetY"`
	HalfWidth  float64 `yaml:"halfWidth"`
	HalfHeight float64 `yaml:"halfHeight"`

	// BaselineFraction of the profile at each end is used to fit the background
	BaselineFraction float64 `yaml:"baselineFraction"`

	// MinContrast is the relative ramp signal required above the insert background
	MinContrast float64 `yaml:"minContrast"`

	// RampFactor is the tangent of the ramp angle (0.1 per ramp for the ACR 10:1 ramps)
	RampFactor float64 `yaml:"rampFactor"`
}

func DefaultParams() Params {
	return Params{
		HalfWidth:        40,
		HalfHeight:       10,
		BaselineFraction: 0.15,
		MinContrast:      0.2,
		RampFactor:       0.2,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if !(p.HalfWidth > 0 && p.HalfHeight > 0) {
		return fmt.Errorf("ramp window must have positive size")
	}
	if !(p.BaselineFraction > 0 && p.BaselineFraction < 0.5) {
		return fmt.Errorf("baseline fraction must be in (0, 0.5), got %v", p.BaselineFraction)
	}
	if !(p.MinContrast > 0 && p.MinContrast < 1) {
		return fmt.Errorf("min contrast must be in (0, 1), got %v", p.MinContrast)
	}
	if !(p.RampFactor > 0) {
		return fmt.Errorf("ramp factor must be positive, got %v", p.RampFactor)
	}
	return nil
}

// Result holds the slice thickness and the FWHM of both ramps in mm
type Result struct {
	Thickness float64
	Top       float64
	Bottom    float64
}

// Measure finds the two ramps as the bright row runs of the window and combines their
// background corrected FWHM as RampFactor·a·b/(a+b).
func Measure(img models.SliceImage, geo models.PhantomGeometry, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	win, err := geometry.Resample(img, geo, p.OffsetX, p.OffsetY, p.HalfWidth, p.HalfHeight)
	if err != nil {
		return Result{}, err
	}

	rows := geometry.RowMeans(win)
	lo, hi := rows[0], rows[0]
	for _, v := range rows {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if !(hi > 0) || (hi-lo)/hi < p.MinContrast {
		return Result{}, fmt.Errorf("no ramps in window: %w", models.ErrFeatureNotFound)
	}
	bright := make([]bool, len(rows))
	for i, v := range rows {
		bright[i] = v > (lo+hi)/2
	}
	runs := geometry.Runs(bright)
	if len(runs) != 2 {
		return Result{}, fmt.Errorf("found %d ramps, need 2: %w", len(runs), models.ErrFeatureNotFound)
	}

	var widths [2]float64
	for i, run := range runs {
		w, err := fwhm(geometry.RunRows(win, run[0], run[1]), p.BaselineFraction)
		if err != nil {
			return Result{}, fmt.Errorf("ramp %d: %w", i+1, err)
		}
		widths[i] = w * win.PixelSpacing.X
	}
	a, b := widths[0], widths[1]
	return Result{
		Thickness: p.RampFactor * a * b / (a + b),
		Top:       a,
		Bottom:    b,
	}, nil
}

// fwhm removes a quadratic baseline fitted to both ends of the profile and returns the full
// width at half maximum in samples
func fwhm(profile []float64, baseline float64) (float64, error) {
	n := len(profile)
	k := max(3, int(math.Round(baseline*float64(n))))
	if 2*k >= n {
		return 0, fmt.Errorf("profile of %d samples too short: %w", n, models.ErrFeatureNotFound)
	}
	var xs, ys []float64
	for i := 0; i < k; i++ {
		xs = append(xs, float64(i), float64(n-1-i))
		ys = append(ys, profile[i], profile[n-1-i])
	}
	coeffs, err := fitting.FitPolynomial(xs, ys, 2)
	if err != nil {
		return 0, fmt.Errorf("baseline: %w", err)
	}

	corrected := make([]float64, n)
	peak := math.Inf(-1)
	for i, v := range profile {
		corrected[i] = v - fitting.EvalPolynomial(coeffs, float64(i))
		peak = math.Max(peak, corrected[i])
	}
	if !(peak > 0) {
		return 0, fmt.Errorf("no ramp signal above baseline: %w", models.ErrFeatureNotFound)
	}
	left, ok1 := geometry.Crossing(corrected, peak/2, false)
	right, ok2 := geometry.Crossing(corrected, peak/2, true)
	if !ok1 || !ok2 || !(right > left) {
		return 0, fmt.Errorf("ramp ends not found: %w", models.ErrFeatureNotFound)
	}
	return right - left, nil
}
