package geometry

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
)

// Sample returns the bilinearly interpolated intensity at a sub-pixel position. Pixel
// centres sit on integer coordinates. Positions up to margin pixels outside the image are
// clamped to the nearest edge; anything further out fails with models.ErrOutOfBounds.
func Sample(img models.SliceImage, p models.Point, margin float64) (float64, error) {
	maxX := float64(img.Width - 1)
	maxY := float64(img.Height - 1)
	if math.IsNaN(p.X) || math.IsNaN(p.Y) ||
		p.X < -margin || p.Y < -margin || p.X > maxX+margin || p.Y > maxY+margin {
		return 0, fmt.Errorf("sample at (%.2f, %.2f) in %dx%d image: %w",
			p.X, p.Y, img.Width, img.Height, models.ErrOutOfBounds)
	}

	x := clamp(p.X, 0, maxX)
	y := clamp(p.Y, 0, maxY)

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, img.Width-1)
	y1 := min(y0+1, img.Height-1)
	fx := x - float64(x0)
	fy := y - float64(y0)

	top := img.At(x0, y0)*(1-fx) + img.At(x1, y0)*fx
	bottom := img.At(x0, y1)*(1-fx) + img.At(x1, y1)*fx
	return top*(1-fy) + bottom*fy, nil
}

// Profile samples n equally spaced points on the segment from -> to (both inclusive)
func Profile(img models.SliceImage, from, to models.Point, n int, margin float64) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("profile needs at least 2 samples, got %d", n)
	}
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		v, err := Sample(img, Lerp(from, to, t), margin)
		if err != nil {
			return nil, fmt.Errorf("profile sample %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Crossing scans values for the first place the sequence passes through level and returns
// the linearly interpolated fractional index of that crossing. When reverse is set the
// scan starts from the end. The boolean is false when no crossing exists.
func Crossing(values []float64, level float64, reverse bool) (float64, bool) {
	n := len(values)
	for k := 0; k < n-1; k++ {
		i, j := k, k+1
		if reverse {
			i, j = n-1-k, n-2-k
		}
		a, b := values[i]-level, values[j]-level
		if a == 0 {
			return float64(i), true
		}
		if a*b < 0 || b == 0 {
			t := a / (a - b)
			if reverse {
				return float64(i) - t, true
			}
			return float64(i) + t, true
		}
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
