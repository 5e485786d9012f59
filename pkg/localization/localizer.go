// Package localization finds the phantom in a slice: its centre, outer radius, scale
// against the nominal phantom diameter and in-plane rotation.
package localization

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/fitting"
	"phantomqa/pkg/geometry"
)

// Params controls boundary detection and the acceptance checks of the fitted circle
type Params struct {
	// NominalDiameter is the physical phantom diameter in mm (165 for the medium ACR phantom)
	NominalDiameter float64 `yaml:"nominalDiameter"`

	// ThresholdFraction of the robust maximum separates phantom from background
	ThresholdFraction float64 `yaml:"thresholdFraction"`

	// Rays is the number of boundary rays cast from the centroid
	Rays int `yaml:"rays"`

	// RayStep is the sampling step along a ray in pixels
	RayStep float64 `yaml:"rayStep"`

	// MinContrast is the minimum (signal-background)/signal ratio
	MinContrast float64 `yaml:"minContrast"`

	// MinBoundaryFraction is the fraction of rays that must yield a boundary point
	MinBoundaryFraction float64 `yaml:"minBoundaryFraction"`

	// MaxResidualFraction bounds the RMS circle residual relative to the radius
	MaxResidualFraction float64 `yaml:"maxResidualFraction"`

	// MaxDiameterDeviation bounds |fitted/nominal - 1|
	MaxDiameterDeviation float64 `yaml:"maxDiameterDeviation"`

	// MinAnisotropy is the principal axis anisotropy below which rotation is reported as 0
	MinAnisotropy float64 `yaml:"minAnisotropy"`
}

// DefaultParams returns the settings for the medium ACR phantom
func DefaultParams() Params {
	return Params{
		NominalDiameter:      165,
		ThresholdFraction:    0.25,
		Rays:                 360,
		RayStep:              0.5,
		MinContrast:          0.5,
		MinBoundaryFraction:  0.5,
		MaxResidualFraction:  0.02,
		MaxDiameterDeviation: 0.15,
		MinAnisotropy:        0.005,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	switch {
	case !(p.NominalDiameter > 0):
		return fmt.Errorf("nominal diameter must be positive, got %v", p.NominalDiameter)
	case !(p.ThresholdFraction > 0 && p.ThresholdFraction < 1):
		return fmt.Errorf("threshold fraction must be in (0, 1), got %v", p.ThresholdFraction)
	case p.Rays < 8:
		return fmt.Errorf("at least 8 rays are needed, got %d", p.Rays)
	case !(p.RayStep > 0):
		return fmt.Errorf("ray step must be positive, got %v", p.RayStep)
	case !(p.MinBoundaryFraction > 0 && p.MinBoundaryFraction <= 1):
		return fmt.Errorf("min boundary fraction must be in (0, 1], got %v", p.MinBoundaryFraction)
	case !(p.MaxResidualFraction > 0):
		return fmt.Errorf("max residual fraction must be positive, got %v", p.MaxResidualFraction)
	case !(p.MaxDiameterDeviation > 0):
		return fmt.Errorf("max diameter deviation must be positive, got %v", p.MaxDiameterDeviation)
	}
	return nil
}

// Locate localizes the phantom in img. Every failure wraps models.ErrLocalization.
func Locate(img models.SliceImage, p Params) (models.PhantomGeometry, error) {
	fail := func(format string, args ...any) (models.PhantomGeometry, error) {
		return models.PhantomGeometry{}, fmt.Errorf("slice %d: %s: %w", img.Index, fmt.Sprintf(format, args...), models.ErrLocalization)
	}
	if err := p.Validate(); err != nil {
		return fail("%v", err)
	}

	robustMax := geometry.Quantile(img.Pixels, 0.99)
	if !(robustMax > 0) {
		return fail("no foreground signal")
	}
	mask := geometry.Threshold(img.Pixels, p.ThresholdFraction*robustMax)
	labels, comps := geometry.Label(mask, img.Width, img.Height)
	if len(comps) == 0 {
		return fail("no foreground component")
	}
	body := comps[0]

	var inside, outside []float64
	for i, v := range img.Pixels {
		if labels[i] == body.Label {
			inside = append(inside, v)
		} else if !mask[i] {
			outside = append(outside, v)
		}
	}
	if len(outside) == 0 {
		return fail("phantom fills the field of view")
	}
	signal := geometry.Median(inside)
	background := geometry.Median(outside)
	if contrast := (signal - background) / signal; !(contrast >= p.MinContrast) {
		return fail("boundary contrast %.3f below %.3f", contrast, p.MinContrast)
	}

	level := (signal + background) / 2
	boundary := castRays(img, body.Centroid, level, p)
	if need := int(math.Ceil(p.MinBoundaryFraction * float64(p.Rays))); len(boundary) < need {
		return fail("found %d boundary points, need %d", len(boundary), need)
	}

	circle, err := fitting.FitCircle(boundary)
	if err != nil {
		return fail("%v", err)
	}
	if circle.Residual > p.MaxResidualFraction*circle.Radius {
		return fail("boundary residual %.2f px exceeds %.2f px", circle.Residual, p.MaxResidualFraction*circle.Radius)
	}

	pixel := (img.PixelSpacing.X + img.PixelSpacing.Y) / 2
	diameter := 2 * circle.Radius * pixel
	scale := diameter / p.NominalDiameter
	if math.Abs(scale-1) > p.MaxDiameterDeviation {
		return fail("fitted diameter %.1f mm deviates from nominal %.1f mm", diameter, p.NominalDiameter)
	}

	return models.PhantomGeometry{
		Slice:    img.Index,
		Center:   circle.Center,
		Rotation: rotation(boundary, circle.Center, p.MinAnisotropy),
		Radius:   circle.Radius,
		Scale:    scale,
		Residual: circle.Residual,
	}, nil
}

// castRays returns the outermost sub-pixel crossing of level on each ray from origin.
// Rays that leave the image while still above level (clipped phantom) are dropped.
func castRays(img models.SliceImage, origin models.Point, level float64, p Params) []models.Point {
	pts := make([]models.Point, 0, p.Rays)
	var profile []float64
	for k := 0; k < p.Rays; k++ {
		dir := geometry.Direction(2 * math.Pi * float64(k) / float64(p.Rays))

		profile = profile[:0]
		for s := 0.0; ; s += p.RayStep {
			v, err := geometry.Sample(img, origin.Add(dir.Scale(s)), 0)
			if err != nil {
				break
			}
			profile = append(profile, v)
		}
		if len(profile) < 2 || profile[len(profile)-1] >= level {
			continue
		}
		idx, ok := geometry.Crossing(profile, level, true)
		if !ok {
			continue
		}
		pts = append(pts, origin.Add(dir.Scale(idx*p.RayStep)))
	}
	return pts
}

// rotation estimates the in-plane rotation from the principal axis of the boundary scatter,
// folded into [-π/4, π/4]. A near circular boundary carries no orientation and yields 0.
func rotation(pts []models.Point, center models.Point, minAnisotropy float64) float64 {
	var sxx, syy, sxy float64
	for _, q := range pts {
		dx, dy := q.X-center.X, q.Y-center.Y
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	n := float64(len(pts))
	sxx, syy, sxy = sxx/n, syy/n, sxy/n

	// eigenvalues of the 2x2 covariance
	tr := sxx + syy
	disc := math.Sqrt((sxx-syy)*(sxx-syy)/4 + sxy*sxy)
	l1, l2 := tr/2+disc, tr/2-disc
	if l1+l2 == 0 || (l1-l2)/(l1+l2) < minAnisotropy {
		return 0
	}

	angle := 0.5 * math.Atan2(2*sxy, sxx-syy)
	for angle > math.Pi/4 {
		angle -= math.Pi / 2
	}
	for angle < -math.Pi/4 {
		angle += math.Pi / 2
	}
	return angle
}
