// Package uniformity measures the signal uniformity inside the large central ROI of the
// uniform phantom slice.
package uniformity

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

const (
	ModuleID = "uniformity"

	// MetricIntegral is the percentage of ROI pixels within the band around the median
	MetricIntegral = "integral_uniformity"

	// MetricPercentIntegral is the ACR percent integral uniformity over 1 cm² windows
	MetricPercentIntegral = "percent_integral_uniformity"

	Unit = "%"
)

// Params configures the uniformity measurement
type Params struct {
	// LargeROIFraction is the large ROI radius relative to the phantom radius
	LargeROIFraction float64 `yaml:"largeRoiFraction"`

	// VoidOffset moves the ROI down (mm) away from the air void at the top of the phantom
	VoidOffset float64 `yaml:"voidOffset"`

	// Band is the accepted relative deviation from the ROI median
	Band float64 `yaml:"band"`

	// WindowSize is the side in mm of the square windows averaged for PIU
	WindowSize float64 `yaml:"windowSize"`
}

// DefaultParams returns the medium ACR settings (ROI ≈ 90% of 160 cm²)
func DefaultParams() Params {
	return Params{
		LargeROIFraction: 0.82,
		VoidOffset:       5,
		Band:             0.10,
		WindowSize:       10,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if !(p.LargeROIFraction > 0 && p.LargeROIFraction < 1) {
		return fmt.Errorf("large ROI fraction must be in (0, 1), got %v", p.LargeROIFraction)
	}
	if !(p.Band > 0 && p.Band < 1) {
		return fmt.Errorf("band must be in (0, 1), got %v", p.Band)
	}
	if !(p.WindowSize > 0) {
		return fmt.Errorf("window size must be positive, got %v", p.WindowSize)
	}
	return nil
}

// LargeROI returns the large circular ROI shared with the ghosting module
func LargeROI(img models.SliceImage, geo models.PhantomGeometry, fraction, voidOffset float64) geometry.Circle {
	return geometry.Circle{
		Center: geo.Offset(0, voidOffset, img.PixelSpacing),
		Radius: fraction * geo.Radius,
	}
}

// Integral returns the percentage of large ROI pixels within ±Band of the ROI median
func Integral(img models.SliceImage, geo models.PhantomGeometry, p Params) (float64, error) {
	roi := LargeROI(img, geo, p.LargeROIFraction, p.VoidOffset)
	if !geometry.Inside(img, roi) {
		return 0, fmt.Errorf("large ROI: %w", models.ErrOutOfBounds)
	}
	values := geometry.Pixels(img, roi)
	if len(values) == 0 {
		return 0, fmt.Errorf("empty large ROI: %w", models.ErrFeatureNotFound)
	}
	median := geometry.Median(values)
	if !(median > 0) {
		return 0, fmt.Errorf("no signal in large ROI: %w", models.ErrFeatureNotFound)
	}

	lo, hi := median*(1-p.Band), median*(1+p.Band)
	inside := 0
	for _, v := range values {
		if v >= lo && v <= hi {
			inside++
		}
	}
	return 100 * float64(inside) / float64(len(values)), nil
}

// PercentIntegral returns PIU = 100·(1 − (max−min)/(max+min)) over the means of every
// square window that lies fully inside the large ROI
func PercentIntegral(img models.SliceImage, geo models.PhantomGeometry, p Params) (float64, error) {
	roi := LargeROI(img, geo, p.LargeROIFraction, p.VoidOffset)
	if !geometry.Inside(img, roi) {
		return 0, fmt.Errorf("large ROI: %w", models.ErrOutOfBounds)
	}
	mask := geometry.Mask(img, roi)
	sat := geometry.NewSummedArea(img.Pixels, mask, img.Width, img.Height)

	wx := max(1, int(math.Round(p.WindowSize/img.PixelSpacing.X)))
	wy := max(1, int(math.Round(p.WindowSize/img.PixelSpacing.Y)))
	full := wx * wy

	x0, y0, x1, y1 := roi.Bounds()
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := y0; y+wy-1 <= y1; y++ {
		for x := x0; x+wx-1 <= x1; x++ {
			mean, n, ok := sat.Mean(x, y, x+wx-1, y+wy-1)
			if !ok || n < full {
				continue
			}
			lo = math.Min(lo, mean)
			hi = math.Max(hi, mean)
		}
	}
	if math.IsInf(lo, 0) || !(hi+lo > 0) {
		return 0, fmt.Errorf("no %gx%g mm window fits the large ROI: %w", p.WindowSize, p.WindowSize, models.ErrFeatureNotFound)
	}
	return 100 * (1 - (hi-lo)/(hi+lo)), nil
}
