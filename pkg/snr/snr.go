// Package snr measures the signal-to-noise ratio of a uniform phantom slice.
package snr

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

const (
	ModuleID  = "snr"
	MetricSNR = "snr"

	// noiseFloor is the smallest noise accepted, relative to the signal
	noiseFloor = 1e-9
)

// Method selects how the noise is estimated
type Method string

const (
	// MethodSmoothing subtracts a box-filtered copy of the slice and takes the residual spread
	MethodSmoothing Method = "smoothing"

	// MethodBackground uses the spread of the air background corrected for Rayleigh statistics
	MethodBackground Method = "background"

	// MethodSubtraction uses the difference of two acquisitions of the same slice
	MethodSubtraction Method = "subtraction"
)

// Params configures the SNR measurement
type Params struct {
	// Method is used for single acquisitions. A paired acquisition always uses subtraction.
	Method Method `yaml:"method"`

	// SignalROIFraction is the signal ROI radius relative to the phantom radius
	SignalROIFraction float64 `yaml:"signalRoiFraction"`

	// SmoothingKernel is the box filter width in pixels
	SmoothingKernel int `yaml:"smoothingKernel"`

	// CornerSize is the side of the background ROIs in mm, CornerInset their distance from
	// the image corners
	CornerSize  float64 `yaml:"cornerSize"`
	CornerInset float64 `yaml:"cornerInset"`

	// RayleighFactor converts the magnitude background spread to the Gaussian noise level
	RayleighFactor float64 `yaml:"rayleighFactor"`
}

// DefaultParams returns the standard SNR settings
func DefaultParams() Params {
	return Params{
		Method:            MethodSmoothing,
		SignalROIFraction: 0.4,
		SmoothingKernel:   9,
		CornerSize:        12,
		CornerInset:       4,
		RayleighFactor:    0.655,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	switch p.Method {
	case MethodSmoothing, MethodBackground, MethodSubtraction:
	default:
		return fmt.Errorf("unknown snr method %q", p.Method)
	}
	if !(p.SignalROIFraction > 0 && p.SignalROIFraction < 1) {
		return fmt.Errorf("signal ROI fraction must be in (0, 1), got %v", p.SignalROIFraction)
	}
	if p.SmoothingKernel < 3 || p.SmoothingKernel%2 == 0 {
		return fmt.Errorf("smoothing kernel must be odd and at least 3, got %d", p.SmoothingKernel)
	}
	if !(p.CornerSize > 0) || p.CornerInset < 0 {
		return fmt.Errorf("invalid corner ROI %v mm inset %v mm", p.CornerSize, p.CornerInset)
	}
	if !(p.RayleighFactor > 0) {
		return fmt.Errorf("rayleigh factor must be positive, got %v", p.RayleighFactor)
	}
	return nil
}

// Result is an SNR value with its components
type Result struct {
	SNR    float64
	Signal float64
	Noise  float64
	Method Method
}

// Measure computes the SNR of img. When pair is not nil the two acquisitions are subtracted;
// otherwise p.Method picks the single-image estimator.
func Measure(img models.SliceImage, geo models.PhantomGeometry, pair *models.SliceImage, p Params) (Result, error) {
	roi := geometry.Circle{Center: geo.Center, Radius: p.SignalROIFraction * geo.Radius}
	if !geometry.Inside(img, roi) {
		return Result{}, fmt.Errorf("signal ROI leaves the image: %w", models.ErrOutOfBounds)
	}

	method := p.Method
	if pair != nil {
		method = MethodSubtraction
	}

	var res Result
	var err error
	switch method {
	case MethodSubtraction:
		if pair == nil {
			return Result{}, fmt.Errorf("subtraction needs a paired acquisition: %w", models.ErrSliceMissing)
		}
		res, err = bySubtraction(img, *pair, roi)
	case MethodBackground:
		res, err = byBackground(img, geo, roi, p)
	default:
		res, err = bySmoothing(img, roi, p.SmoothingKernel)
	}
	if err != nil {
		return Result{}, err
	}
	// residuals at rounding level are not noise
	if !(res.Noise > noiseFloor*math.Abs(res.Signal)) {
		return Result{}, fmt.Errorf("no measurable noise (%s): %w", method, models.ErrFeatureNotFound)
	}
	res.Method = method
	return res, nil
}

func bySubtraction(a, b models.SliceImage, roi geometry.ROI) (Result, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return Result{}, fmt.Errorf("paired slices differ in size: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	sum := a
	diff := a
	sum.Pixels = make([]float64, len(a.Pixels))
	diff.Pixels = make([]float64, len(a.Pixels))
	for i := range a.Pixels {
		sum.Pixels[i] = (a.Pixels[i] + b.Pixels[i]) / 2
		diff.Pixels[i] = a.Pixels[i] - b.Pixels[i]
	}

	signal, err := geometry.Describe(geometry.Pixels(sum, roi))
	if err != nil {
		return Result{}, err
	}
	noise, err := geometry.Describe(geometry.Pixels(diff, roi))
	if err != nil {
		return Result{}, err
	}
	sigma := noise.StdDev / math.Sqrt2
	return Result{SNR: signal.Mean / sigma, Signal: signal.Mean, Noise: sigma}, nil
}

func byBackground(img models.SliceImage, geo models.PhantomGeometry, roi geometry.ROI, p Params) (Result, error) {
	signal, err := geometry.Describe(geometry.Pixels(img, roi))
	if err != nil {
		return Result{}, err
	}

	half := p.CornerSize / 2
	inset := p.CornerInset + half
	w := float64(img.Width-1) * img.PixelSpacing.X
	h := float64(img.Height-1) * img.PixelSpacing.Y
	corners := []models.Point{
		{X: inset, Y: inset},
		{X: w - inset, Y: inset},
		{X: inset, Y: h - inset},
		{X: w - inset, Y: h - inset},
	}

	var spread float64
	for i, c := range corners {
		center := models.Point{X: c.X / img.PixelSpacing.X, Y: c.Y / img.PixelSpacing.Y}
		box := geometry.RectAround(center, half/img.PixelSpacing.X, half/img.PixelSpacing.Y)
		if !geometry.Inside(img, box) {
			return Result{}, fmt.Errorf("background ROI %d leaves the image: %w", i, models.ErrFeatureNotFound)
		}
		// the nearest corner of the box must clear the phantom
		nearest := models.Point{
			X: math.Max(box.Min.X, math.Min(geo.Center.X, box.Max.X)),
			Y: math.Max(box.Min.Y, math.Min(geo.Center.Y, box.Max.Y)),
		}
		if geometry.Distance(nearest, geo.Center, models.Spacing{X: 1, Y: 1}) < geo.Radius+2 {
			return Result{}, fmt.Errorf("background ROI %d overlaps the phantom: %w", i, models.ErrFeatureNotFound)
		}
		st, err := geometry.Describe(geometry.Pixels(img, box))
		if err != nil {
			return Result{}, err
		}
		spread += st.StdDev
	}
	spread /= float64(len(corners))
	if !(spread > 0) {
		return Result{}, fmt.Errorf("flat background: %w", models.ErrFeatureNotFound)
	}
	noise := spread / p.RayleighFactor
	return Result{SNR: signal.Mean / noise, Signal: signal.Mean, Noise: noise}, nil
}

func bySmoothing(img models.SliceImage, roi geometry.ROI, kernel int) (Result, error) {
	sat := geometry.NewSummedArea(img.Pixels, nil, img.Width, img.Height)
	k := kernel / 2

	var signal, noise []float64
	x0, y0, x1, y1 := roi.Bounds()
	for y := max(y0, 0); y <= min(y1, img.Height-1); y++ {
		for x := max(x0, 0); x <= min(x1, img.Width-1); x++ {
			if !roi.Contains(float64(x), float64(y)) {
				continue
			}
			mean, _, ok := sat.Mean(x-k, y-k, x+k, y+k)
			if !ok {
				continue
			}
			v := img.At(x, y)
			signal = append(signal, v)
			noise = append(noise, v-mean)
		}
	}

	s, err := geometry.Describe(signal)
	if err != nil {
		return Result{}, err
	}
	n, err := geometry.Describe(noise)
	if err != nil {
		return Result{}, err
	}
	return Result{SNR: s.Mean / n.StdDev, Signal: s.Mean, Noise: n.StdDev}, nil
}
