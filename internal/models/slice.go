package models

import (
	"fmt"
	"math"
)

// Spacing is the physical size of one pixel in mm along each image axis.
type Spacing struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// SliceImage represents a single decoded phantom slice with its acquisition metadata
type SliceImage struct {
	// Pixels holds the intensities in row-major order (len == Width*Height)
	Pixels []float64

	// Width and Height are the image dimensions in pixels
	Width  int
	Height int

	// PixelSpacing is the in-plane pixel size in mm
	PixelSpacing Spacing

	// Index is the 1-based position of this slice in the ACR series
	Index int

	// Orientation is the acquisition plane tag (e.g. "axial", "sagittal")
	Orientation string

	// SliceThickness is the nominal thickness from the acquisition metadata in mm
	SliceThickness float64

	// Position is the physical position of the slice along the slice axis in mm
	Position float64

	// Description is the series description the slice was decoded from
	Description string
}

// NewSliceImage builds a slice from row-major pixel data, validating the dimensions.
func NewSliceImage(pixels []float64, width, height int, spacing Spacing, index int) (SliceImage, error) {
	if width <= 0 || height <= 0 {
		return SliceImage{}, fmt.Errorf("invalid slice dimensions %dx%d", width, height)
	}
	if len(pixels) != width*height {
		return SliceImage{}, fmt.Errorf("slice %d: got %d pixels for %dx%d image", index, len(pixels), width, height)
	}
	if !(spacing.X > 0) || !(spacing.Y > 0) || math.IsInf(spacing.X, 0) || math.IsInf(spacing.Y, 0) {
		return SliceImage{}, fmt.Errorf("slice %d: invalid pixel spacing %+v", index, spacing)
	}
	return SliceImage{
		Pixels:       pixels,
		Width:        width,
		Height:       height,
		PixelSpacing: spacing,
		Index:        index,
	}, nil
}

// At returns the intensity at integer pixel coordinates. The caller is responsible
// for staying inside the image.
func (s SliceImage) At(x, y int) float64 {
	return s.Pixels[y*s.Width+x]
}

// Contains reports whether the integer pixel coordinate lies inside the image
func (s SliceImage) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

// Point is a 2-D coordinate in pixel units (x to the right, y downwards)
type Point struct {
	X, Y float64
}

// Add returns p translated by q
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns the vector from q to p
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale multiplies both coordinates by f
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

// PhantomGeometry holds the localized position of the phantom within one slice.
// It is computed once per slice and never mutated afterwards.
type PhantomGeometry struct {
	// Slice is the index of the slice this geometry was derived from
	Slice int

	// Center is the fitted phantom center in pixel coordinates
	Center Point

	// Rotation is the in-plane rotation of the phantom in radians
	Rotation float64

	// Radius is the fitted outer radius in pixels
	Radius float64

	// Scale is the ratio of the fitted diameter to the nominal phantom diameter
	Scale float64

	// Residual is the RMS distance of the boundary points from the fitted circle in pixels
	Residual float64
}

// Offset converts a phantom-relative offset in mm into an image position, applying the
// phantom rotation and scale.
func (g PhantomGeometry) Offset(dxMM, dyMM float64, spacing Spacing) Point {
	scale := g.Scale
	if scale <= 0 {
		scale = 1
	}
	dx := dxMM * scale / spacing.X
	dy := dyMM * scale / spacing.Y
	sin, cos := math.Sincos(g.Rotation)
	return Point{
		X: g.Center.X + dx*cos - dy*sin,
		Y: g.Center.Y + dx*sin + dy*cos,
	}
}
