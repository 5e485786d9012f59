// Package ghosting measures the percent signal ghosting: the mean of four elliptical
// background ROIs placed between the phantom and the edges of the field of view, relative
// to the mean of the large central ROI.
package ghosting

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/uniformity"
)

const (
	ModuleID    = "ghosting"
	MetricRatio = "ghosting_ratio"
	Unit        = "%"
)

// Params configures the ghosting ROIs
type Params struct {
	// Area of each background ellipse in mm²
	Area float64 `yaml:"area"`

	// Aspect is the long to short axis ratio of the ellipses
	Aspect float64 `yaml:"aspect"`

	// Margin is kept free in mm between an ellipse and the phantom or the FOV edge
	Margin float64 `yaml:"margin"`

	// MinSemiAxis is the narrowest short semi-axis in mm accepted in a tight FOV
	MinSemiAxis float64 `yaml:"minSemiAxis"`

	LargeROIFraction float64 `yaml:"largeRoiFraction"`
	VoidOffset       float64 `yaml:"voidOffset"`
}

// DefaultParams returns 10 cm² ellipses with a 4:1 aspect ratio
func DefaultParams() Params {
	u := uniformity.DefaultParams()
	return Params{
		Area:             1000,
		Aspect:           4,
		Margin:           5,
		MinSemiAxis:      2,
		LargeROIFraction: u.LargeROIFraction,
		VoidOffset:       u.VoidOffset,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if !(p.Area > 0) {
		return fmt.Errorf("ghost ROI area must be positive, got %v", p.Area)
	}
	if !(p.Aspect >= 1) {
		return fmt.Errorf("ghost ROI aspect must be at least 1, got %v", p.Aspect)
	}
	if p.Margin < 0 || !(p.MinSemiAxis > 0) {
		return fmt.Errorf("ghost ROI margin and min semi-axis must be non-negative and positive")
	}
	if !(p.LargeROIFraction > 0 && p.LargeROIFraction < 1) {
		return fmt.Errorf("large ROI fraction must be in (0, 1), got %v", p.LargeROIFraction)
	}
	return nil
}

// Result holds the ghosting ratio and the ROI means it was computed from
type Result struct {
	Ratio float64
	Large float64

	North, South, West, East float64
}

// Measure computes the ghosting ratio 100·|(N+S) − (W+E)| / (2·L)
func Measure(img models.SliceImage, geo models.PhantomGeometry, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	large := uniformity.LargeROI(img, geo, p.LargeROIFraction, p.VoidOffset)
	if !geometry.Inside(img, large) {
		return Result{}, fmt.Errorf("large ROI: %w", models.ErrOutOfBounds)
	}
	ls, err := geometry.Describe(geometry.Pixels(img, large))
	if err != nil {
		return Result{}, err
	}
	if !(ls.Mean > 0) {
		return Result{}, fmt.Errorf("no signal in large ROI: %w", models.ErrFeatureNotFound)
	}

	rois, err := Ellipses(img, geo, p)
	if err != nil {
		return Result{}, err
	}
	var means [4]float64
	for i, roi := range rois {
		s, err := geometry.Describe(geometry.Pixels(img, roi))
		if err != nil {
			return Result{}, fmt.Errorf("ghost ROI %d: %w", i, err)
		}
		means[i] = s.Mean
	}

	res := Result{
		Large: ls.Mean,
		North: means[0],
		South: means[1],
		West:  means[2],
		East:  means[3],
	}
	res.Ratio = 100 * math.Abs((res.North+res.South)-(res.West+res.East)) / (2 * res.Large)
	return res, nil
}

// Ellipses returns the north, south, west and east background ROIs. Each one is centred in
// the gap between the phantom edge and the FOV edge with its long axis along that edge.
// When a gap is too narrow the short axis shrinks and the long axis grows to keep the area;
// an ellipse whose long axis then exceeds the field of view does not fit.
func Ellipses(img models.SliceImage, geo models.PhantomGeometry, p Params) ([4]geometry.Ellipse, error) {
	var out [4]geometry.Ellipse
	sx, sy := img.PixelSpacing.X, img.PixelSpacing.Y
	rmm := geo.Radius * (sx + sy) / 2
	c := geo.Center

	gaps := [4]float64{
		c.Y*sy - rmm,
		(float64(img.Height-1)-c.Y)*sy - rmm,
		c.X*sx - rmm,
		(float64(img.Width-1)-c.X)*sx - rmm,
	}
	// half the FOV along each ellipse's long axis
	span := [4]float64{
		float64(img.Width-1) * sx / 2,
		float64(img.Width-1) * sx / 2,
		float64(img.Height-1) * sy / 2,
		float64(img.Height-1) * sy / 2,
	}
	names := [4]string{"north", "south", "west", "east"}

	nominal := math.Sqrt(p.Area / (math.Pi * p.Aspect))
	for i, gap := range gaps {
		short := nominal
		if gap < 2*(short+p.Margin) {
			short = (gap - 2*p.Margin) / 2
		}
		if short < p.MinSemiAxis {
			return out, fmt.Errorf("%s gap of %.1f mm leaves no room for a ghost ROI: %w", names[i], gap, models.ErrFeatureNotFound)
		}
		long := p.Area / (math.Pi * short)
		if long > span[i] {
			return out, fmt.Errorf("%s ghost ROI of %.0f mm² does not fit the field of view: %w", names[i], p.Area, models.ErrFeatureNotFound)
		}

		// distance in mm from the phantom centre to the ellipse centre
		d := rmm + gap/2
		switch i {
		case 0:
			out[i] = geometry.Ellipse{Center: models.Point{X: c.X, Y: c.Y - d/sy}, SemiX: long / sx, SemiY: short / sy}
		case 1:
			out[i] = geometry.Ellipse{Center: models.Point{X: c.X, Y: c.Y + d/sy}, SemiX: long / sx, SemiY: short / sy}
		case 2:
			out[i] = geometry.Ellipse{Center: models.Point{X: c.X - d/sx, Y: c.Y}, SemiX: short / sx, SemiY: long / sy}
		case 3:
			out[i] = geometry.Ellipse{Center: models.Point{X: c.X + d/sx, Y: c.Y}, SemiX: short / sx, SemiY: long / sy}
		}
		if !geometry.Inside(img, out[i]) {
			return out, fmt.Errorf("%s ghost ROI: %w", names[i], models.ErrOutOfBounds)
		}
	}
	return out, nil
}
