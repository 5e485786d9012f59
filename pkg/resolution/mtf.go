package resolution

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"phantomqa/internal/models"
	"phantomqa/pkg/fitting"
	"phantomqa/pkg/geometry"
)

// Edge is the oversampled edge spread function of a slanted edge
type Edge struct {
	// Positions are the bin centres in mm across the edge, ESF the mean intensity per bin
	Positions []float64
	ESF       []float64

	// BinWidth is the bin width in mm
	BinWidth float64

	// Angle is the edge tilt from the image column direction in radians
	Angle float64
}

// EdgeParams locates the slanted edge ROI and controls the oversampling
type EdgeParams struct {
	OffsetX    float64 `yaml:"offsetX"`
	OffsetY    float64 `yaml:"offsetY"`
	HalfWidth  float64 `yaml:"halfWidth"`
	HalfHeight float64 `yaml:"halfHeight"`

	// Oversampling is the bin width in pixels
	Oversampling float64 `yaml:"oversampling"`

	// MinRows is the number of rows that must contain an edge crossing
	MinRows int `yaml:"minRows"`
}

// SlantedEdge builds the edge spread function from the ROI around the insert edge. The
// edge is located per row, straightened with a least squares line and every pixel is
// projected onto the edge normal.
func SlantedEdge(img models.SliceImage, geo models.PhantomGeometry, p EdgeParams) (Edge, error) {
	if !(p.Oversampling > 0 && p.Oversampling <= 1) || !(p.HalfWidth > 0) || !(p.HalfHeight > 0) {
		return Edge{}, fmt.Errorf("invalid edge params %+v", p)
	}
	scale := geo.Scale
	if scale <= 0 {
		scale = 1
	}
	center := geo.Offset(p.OffsetX, p.OffsetY, img.PixelSpacing)
	roi := geometry.RectAround(center, p.HalfWidth*scale/img.PixelSpacing.X, p.HalfHeight*scale/img.PixelSpacing.Y)
	if !geometry.Inside(img, roi) {
		return Edge{}, fmt.Errorf("edge ROI: %w", models.ErrOutOfBounds)
	}
	x0, y0, x1, y1 := roi.Bounds()
	sub, err := geometry.SubImage(img, x0, y0, x1-x0+1, y1-y0+1)
	if err != nil {
		return Edge{}, err
	}

	lo := geometry.Quantile(sub.Pixels, 0.1)
	hi := geometry.Quantile(sub.Pixels, 0.9)
	if !(hi > lo) {
		return Edge{}, fmt.Errorf("no edge contrast in ROI: %w", models.ErrFeatureNotFound)
	}

	var rows, cols []float64
	row := make([]float64, sub.Width)
	for y := 0; y < sub.Height; y++ {
		copy(row, sub.Pixels[y*sub.Width:(y+1)*sub.Width])
		rmin, rmax := row[0], row[0]
		for _, v := range row {
			rmin, rmax = math.Min(rmin, v), math.Max(rmax, v)
		}
		if rmax-rmin < 0.5*(hi-lo) {
			continue
		}
		x, ok := geometry.Crossing(row, (rmin+rmax)/2, false)
		if !ok {
			continue
		}
		rows = append(rows, float64(y))
		cols = append(cols, x)
	}
	minRows := max(p.MinRows, 3)
	if len(rows) < minRows {
		return Edge{}, fmt.Errorf("edge found on %d rows, need %d: %w", len(rows), minRows, models.ErrFeatureNotFound)
	}

	// edge column as a function of row
	alpha, beta := stat.LinearRegression(rows, cols, nil, false)
	cos := 1 / math.Sqrt(1+beta*beta)

	dmax := float64(sub.Width)/2 - 2
	bin := p.Oversampling
	nb := int(2 * dmax / bin)
	if nb < 16 {
		return Edge{}, fmt.Errorf("edge ROI too narrow: %w", models.ErrFeatureNotFound)
	}
	sums := make([]float64, nb)
	counts := make([]int, nb)
	for y := 0; y < sub.Height; y++ {
		edgeX := alpha + beta*float64(y)
		for x := 0; x < sub.Width; x++ {
			d := (float64(x) - edgeX) * cos
			i := int(math.Floor((d + dmax) / bin))
			if i < 0 || i >= nb {
				continue
			}
			sums[i] += sub.At(x, y)
			counts[i]++
		}
	}

	var xs, ys []float64
	for i := range sums {
		if counts[i] > 0 {
			xs = append(xs, -dmax+(float64(i)+0.5)*bin)
			ys = append(ys, sums[i]/float64(counts[i]))
		}
	}
	if len(xs) < nb/2 {
		return Edge{}, fmt.Errorf("only %d of %d ESF bins populated: %w", len(xs), nb, models.ErrFeatureNotFound)
	}

	// fill empty bins along the populated ones
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return Edge{}, fmt.Errorf("esf interpolation: %w", err)
	}
	px := img.PixelSpacing.X
	edge := Edge{
		Positions: make([]float64, nb),
		ESF:       make([]float64, nb),
		BinWidth:  bin * px,
		Angle:     math.Atan(beta),
	}
	for i := range edge.ESF {
		c := -dmax + (float64(i)+0.5)*bin
		edge.Positions[i] = c * px
		if counts[i] > 0 {
			edge.ESF[i] = sums[i] / float64(counts[i])
		} else {
			edge.ESF[i] = pl.Predict(math.Max(xs[0], math.Min(xs[len(xs)-1], c)))
		}
	}
	return edge, nil
}

// MTF returns the normalized modulation transfer function of the edge and the frequency of
// each sample in cycles/mm. The line spread function is the Hann windowed ESF derivative.
func (e Edge) MTF() (freq, mtf []float64, err error) {
	n := len(e.ESF) - 1
	if n < 8 {
		return nil, nil, fmt.Errorf("edge spread function too short: %w", models.ErrFeatureNotFound)
	}
	lsf := make([]float64, n)
	var total float64
	for i := range lsf {
		lsf[i] = e.ESF[i+1] - e.ESF[i]
		total += lsf[i]
	}
	sign := 1.0
	if total < 0 {
		sign = -1
	}
	for i := range lsf {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		lsf[i] *= sign * w
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, lsf)
	dc := cmplx.Abs(coeffs[0])
	if !(dc > 0) {
		return nil, nil, fmt.Errorf("line spread function has no area: %w", models.ErrFeatureNotFound)
	}
	freq = make([]float64, len(coeffs))
	mtf = make([]float64, len(coeffs))
	for k, c := range coeffs {
		freq[k] = float64(k) / (float64(n) * e.BinWidth)
		mtf[k] = cmplx.Abs(c) / dc
	}
	return freq, mtf, nil
}

// RawMTF50 linearly interpolates the first crossing of 0.5 in the sampled MTF
func (e Edge) RawMTF50() (float64, error) {
	freq, mtf, err := e.MTF()
	if err != nil {
		return 0, err
	}
	for k := 1; k < len(mtf); k++ {
		if mtf[k] < 0.5 {
			t := (mtf[k-1] - 0.5) / (mtf[k-1] - mtf[k])
			return freq[k-1] + t*(freq[k]-freq[k-1]), nil
		}
	}
	return 0, fmt.Errorf("MTF stays above 0.5 up to %.3g cycles/mm: %w", freq[len(freq)-1], models.ErrFeatureNotFound)
}

// FittedMTF50 fits the erf edge model to the ESF and returns the MTF50 of its Gaussian LSF
func (e Edge) FittedMTF50(opts fitting.ESFOptions) (float64, error) {
	fit, err := fitting.FitESF(e.Positions, e.ESF, opts)
	if err != nil {
		return 0, err
	}
	return fit.MTF50(), nil
}
