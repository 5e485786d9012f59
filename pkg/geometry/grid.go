package geometry

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
)

// Resample reads a window of the slice on a grid aligned with the phantom axes. The window
// is centred cx, cy mm from the phantom centre with half sizes halfW, halfH in mm. Columns
// and rows of the result are one native pixel apart in the phantom frame, and its pixel
// spacing carries the phantom scale so lengths measured on it are physical.
func Resample(img models.SliceImage, geo models.PhantomGeometry, cx, cy, halfW, halfH float64) (models.SliceImage, error) {
	sx, sy := img.PixelSpacing.X, img.PixelSpacing.Y
	w := 2*int(math.Round(halfW/sx)) + 1
	h := 2*int(math.Round(halfH/sy)) + 1
	if w < 3 || h < 3 {
		return models.SliceImage{}, fmt.Errorf("window %gx%g mm is smaller than a pixel", 2*halfW, 2*halfH)
	}
	scale := geo.Scale
	if scale <= 0 {
		scale = 1
	}

	ox := cx - float64(w/2)*sx
	oy := cy - float64(h/2)*sy
	px := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			p := geo.Offset(ox+float64(i)*sx, oy+float64(j)*sy, img.PixelSpacing)
			v, err := Sample(img, p, 0)
			if err != nil {
				return models.SliceImage{}, fmt.Errorf("window at (%g, %g) mm: %w", cx, cy, err)
			}
			px[j*w+i] = v
		}
	}

	out := img
	out.Pixels = px
	out.Width = w
	out.Height = h
	out.PixelSpacing = models.Spacing{X: sx * scale, Y: sy * scale}
	return out, nil
}

// ColumnMeans averages every column of img
func ColumnMeans(img models.SliceImage) []float64 {
	out := make([]float64, img.Width)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out[x] += img.At(x, y)
		}
	}
	for x := range out {
		out[x] /= float64(img.Height)
	}
	return out
}

// RowMeans averages every row of img
func RowMeans(img models.SliceImage) []float64 {
	out := make([]float64, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out[y] += img.At(x, y)
		}
		out[y] /= float64(img.Width)
	}
	return out
}

// RunColumns averages the columns in [from, to] into a single vertical profile
func RunColumns(img models.SliceImage, from, to int) []float64 {
	out := make([]float64, img.Height)
	n := float64(to - from + 1)
	for y := range out {
		for x := from; x <= to; x++ {
			out[y] += img.At(x, y)
		}
		out[y] /= n
	}
	return out
}

// RunRows averages the rows in [from, to] into a single horizontal profile
func RunRows(img models.SliceImage, from, to int) []float64 {
	out := make([]float64, img.Width)
	n := float64(to - from + 1)
	for y := from; y <= to; y++ {
		for x := range out {
			out[x] += img.At(x, y)
		}
	}
	for x := range out {
		out[x] /= n
	}
	return out
}
