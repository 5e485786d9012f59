package geometry

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"phantomqa/internal/models"
)

// ROI is a region of interest in pixel coordinates
type ROI interface {
	// Contains reports whether the pixel centre (x, y) lies inside the region
	Contains(x, y float64) bool

	// Bounds returns the inclusive integer bounding box of the region
	Bounds() (minX, minY, maxX, maxY int)
}

// Circle is a circular ROI
type Circle struct {
	Center models.Point
	Radius float64
}

func (c Circle) Contains(x, y float64) bool {
	dx, dy := x-c.Center.X, y-c.Center.Y
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

func (c Circle) Bounds() (int, int, int, int) {
	return int(math.Floor(c.Center.X - c.Radius)), int(math.Floor(c.Center.Y - c.Radius)),
		int(math.Ceil(c.Center.X + c.Radius)), int(math.Ceil(c.Center.Y + c.Radius))
}

// Ellipse is an axis-aligned elliptical ROI with semi-axes in pixels
type Ellipse struct {
	Center       models.Point
	SemiX, SemiY float64
}

func (e Ellipse) Contains(x, y float64) bool {
	dx := (x - e.Center.X) / e.SemiX
	dy := (y - e.Center.Y) / e.SemiY
	return dx*dx+dy*dy <= 1
}

func (e Ellipse) Bounds() (int, int, int, int) {
	return int(math.Floor(e.Center.X - e.SemiX)), int(math.Floor(e.Center.Y - e.SemiY)),
		int(math.Ceil(e.Center.X + e.SemiX)), int(math.Ceil(e.Center.Y + e.SemiY))
}

// Rect is an axis-aligned rectangle, inclusive of both corners
type Rect struct {
	Min, Max models.Point
}

func (r Rect) Contains(x, y float64) bool {
	return x >= r.Min.X && x <= r.Max.X && y >= r.Min.Y && y <= r.Max.Y
}

func (r Rect) Bounds() (int, int, int, int) {
	return int(math.Ceil(r.Min.X)), int(math.Ceil(r.Min.Y)), int(math.Floor(r.Max.X)), int(math.Floor(r.Max.Y))
}

// RectAround returns a rectangle of the given half sizes centred on c
func RectAround(c models.Point, halfW, halfH float64) Rect {
	return Rect{
		Min: models.Point{X: c.X - halfW, Y: c.Y - halfH},
		Max: models.Point{X: c.X + halfW, Y: c.Y + halfH},
	}
}

// Inside reports whether the whole ROI bounding box lies within the image
func Inside(img models.SliceImage, roi ROI) bool {
	x0, y0, x1, y1 := roi.Bounds()
	return img.Contains(x0, y0) && img.Contains(x1, y1)
}

// Pixels returns the intensities of every image pixel inside the ROI in row-major order.
// Parts of the ROI outside the image are skipped.
func Pixels(img models.SliceImage, roi ROI) []float64 {
	x0, y0, x1, y1 := roi.Bounds()
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, img.Width-1), min(y1, img.Height-1)

	var out []float64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if roi.Contains(float64(x), float64(y)) {
				out = append(out, img.At(x, y))
			}
		}
	}
	return out
}

// Mask returns a Width*Height mask marking the pixels inside the ROI
func Mask(img models.SliceImage, roi ROI) []bool {
	mask := make([]bool, img.Width*img.Height)
	x0, y0, x1, y1 := roi.Bounds()
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, img.Width-1), min(y1, img.Height-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			mask[y*img.Width+x] = roi.Contains(float64(x), float64(y))
		}
	}
	return mask
}

// Stats summarises the pixels of a region
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Describe computes summary statistics of values. It fails on an empty input.
func Describe(values []float64) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, fmt.Errorf("no pixels in region: %w", models.ErrFeatureNotFound)
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return Stats{Count: len(values), Mean: mean, StdDev: std, Min: lo, Max: hi}, nil
}

// Quantile returns the empirical p-quantile of values without modifying the input
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Median returns the median of values without modifying the input
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
