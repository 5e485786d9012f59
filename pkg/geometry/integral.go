package geometry

// SummedArea is a pair of integral images over a masked image: one of the masked
// intensities and one of the mask itself. Window sums and pixel counts are O(1).
type SummedArea struct {
	w, h  int
	sum   []float64
	count []float64
}

// NewSummedArea builds the tables for values (row-major, w*h). A nil mask includes every pixel.
func NewSummedArea(values []float64, mask []bool, w, h int) *SummedArea {
	s := &SummedArea{
		w:     w,
		h:     h,
		sum:   make([]float64, w*h),
		count: make([]float64, w*h),
	}
	for y := 0; y < h; y++ {
		var rowSum, rowCount float64
		for x := 0; x < w; x++ {
			off := y*w + x
			if mask == nil || mask[off] {
				rowSum += values[off]
				rowCount++
			}
			if y == 0 {
				s.sum[off] = rowSum
				s.count[off] = rowCount
			} else {
				s.sum[off] = s.sum[off-w] + rowSum
				s.count[off] = s.count[off-w] + rowCount
			}
		}
	}
	return s
}

// Sum returns the masked sum and pixel count over [x0..x1] x [y0..y1], clipped to the image
func (s *SummedArea) Sum(x0, y0, x1, y1 int) (float64, int) {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, s.w-1), min(y1, s.h-1)
	if x0 > x1 || y0 > y1 {
		return 0, 0
	}
	return rect(s.sum, s.w, x0, y0, x1, y1), int(rect(s.count, s.w, x0, y0, x1, y1) + 0.5)
}

// Mean returns the masked window mean; ok is false for a window with no masked pixels
func (s *SummedArea) Mean(x0, y0, x1, y1 int) (mean float64, n int, ok bool) {
	sum, n := s.Sum(x0, y0, x1, y1)
	if n == 0 {
		return 0, 0, false
	}
	return sum / float64(n), n, true
}

func rect(I []float64, w, x0, y0, x1, y1 int) float64 {
	at := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*w+x]
	}
	return at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
}
