// Package testutil renders synthetic ACR-style phantom slices with known feature geometry
// for the measurement and pipeline tests.
package testutil

import (
	"math"
	"math/rand"

	"phantomqa/internal/models"
)

// Feature modifies the intensity v at a position given in mm relative to the phantom centre
// (x to the right, y downwards). Features only apply inside the phantom disc.
type Feature func(x, y, v float64) float64

// Phantom describes a synthetic phantom acquisition
type Phantom struct {
	// Size is the image width and height in pixels
	Size int

	// Spacing is the pixel size in mm
	Spacing float64

	// Diameter of the phantom disc in mm
	Diameter float64

	// Offset shifts the phantom centre from the image centre, in mm
	Offset models.Point

	// Stretch scales the disc along the axis at angle Tilt (1 = circle)
	Stretch float64
	Tilt    float64

	Signal     float64
	Background float64

	// BackgroundFunc overrides Background outside the phantom when set
	BackgroundFunc func(x, y float64) float64

	// EdgeBlur and HoleBlur are the Gaussian edge widths in mm
	EdgeBlur float64
	HoleBlur float64

	// Noise is the standard deviation of additive Gaussian noise; Magnitude applies it to
	// both channels of a complex signal and keeps the modulus (Rayleigh background)
	Noise     float64
	Magnitude bool
	Seed      int64
}

// Default returns a medium ACR sized phantom in a 256 mm field of view at 1 mm pixels
func Default() Phantom {
	return Phantom{
		Size:     256,
		Spacing:  1,
		Diameter: 165,
		Stretch:  1,
		Signal:   1000,
		EdgeBlur: 0.8,
		HoleBlur: 0.3,
	}
}

// Center returns the phantom centre in pixel coordinates
func (p Phantom) Center() models.Point {
	c := float64(p.Size) / 2
	return models.Point{X: c + p.Offset.X/p.Spacing, Y: c + p.Offset.Y/p.Spacing}
}

// Render draws slice index with the given features
func (p Phantom) Render(index int, features ...Feature) models.SliceImage {
	c := p.Center()
	radius := p.Diameter / 2
	stretch := p.Stretch
	if stretch <= 0 {
		stretch = 1
	}
	sinT, cosT := math.Sincos(p.Tilt)

	var rng *rand.Rand
	if p.Noise > 0 {
		rng = rand.New(rand.NewSource(p.Seed))
	}

	px := make([]float64, p.Size*p.Size)
	for j := 0; j < p.Size; j++ {
		for i := 0; i < p.Size; i++ {
			x := (float64(i) - c.X) * p.Spacing
			y := (float64(j) - c.Y) * p.Spacing

			// distance to the (possibly stretched) disc edge
			u := (x*cosT + y*sinT) / stretch
			w := -x*sinT + y*cosT
			disc := Step(radius-math.Hypot(u, w), p.EdgeBlur)

			v := p.Signal
			for _, f := range features {
				v = f(x, y, v)
			}
			bg := p.Background
			if p.BackgroundFunc != nil {
				bg = p.BackgroundFunc(x, y)
			}
			val := bg + (v-bg)*disc

			if rng != nil {
				n1 := rng.NormFloat64() * p.Noise
				if p.Magnitude {
					n2 := rng.NormFloat64() * p.Noise
					val = math.Hypot(val+n1, n2)
				} else {
					val += n1
				}
			}
			px[j*p.Size+i] = val
		}
	}

	img, err := models.NewSliceImage(px, p.Size, p.Size, models.Spacing{X: p.Spacing, Y: p.Spacing}, index)
	if err != nil {
		panic(err)
	}
	img.Orientation = "axial"
	img.SliceThickness = 5
	img.Position = float64(index-1) * 10
	img.Description = "synthetic ACR T1"
	return img
}

// Step is the blurred unit step: 1 well inside (d > 0), 0 well outside
func Step(d, sigma float64) float64 {
	if sigma <= 0 {
		if d >= 0 {
			return 1
		}
		return 0
	}
	return 0.5 * (1 + math.Erf(d/(sigma*math.Sqrt2)))
}

// Insert is a rectangular block of the given level whose left edge is tilted by slant
// radians (positive turns the edge clockwise). The other edges are axis aligned.
func Insert(minX, minY, maxX, maxY, level, slant, blur float64) Feature {
	cy := (minY + maxY) / 2
	tan := math.Tan(slant)
	cos := math.Cos(slant)
	return func(x, y, v float64) float64 {
		left := minX + (y-cy)*tan
		f := Step((x-left)*cos, blur) * Step(maxX-x, blur) * Step(y-minY, blur) * Step(maxY-y, blur)
		return v + (level-v)*f
	}
}

// VerticalBar is a bar covering the pixel columns in [x0, x1] with blurred ends at y0 and y1
func VerticalBar(x0, x1, y0, y1, level, blur float64) Feature {
	return func(x, y, v float64) float64 {
		if x < x0-1e-9 || x > x1+1e-9 {
			return v
		}
		f := Step(y-y0, blur) * Step(y1-y, blur)
		return v + (level-v)*f
	}
}

// HorizontalBar is a bar covering the pixel rows in [y0, y1] with blurred ends at x0 and x1
func HorizontalBar(x0, x1, y0, y1, level, blur float64) Feature {
	return func(x, y, v float64) float64 {
		if y < y0-1e-9 || y > y1+1e-9 {
			return v
		}
		f := Step(x-x0, blur) * Step(x1-x, blur)
		return v + (level-v)*f
	}
}

// HoleGroup draws a dark square block around a 4x4 array of bright holes of diameter size
// at pitch 2*size, centred on (cx, cy)
func HoleGroup(cx, cy, size, blockLevel, holeLevel, blur float64) Feature {
	half := 6 * size
	pitch := 2 * size
	return func(x, y, v float64) float64 {
		dx, dy := x-cx, y-cy
		block := Step(half-math.Abs(dx), blur) * Step(half-math.Abs(dy), blur)
		if block < 1e-12 {
			return v
		}
		v += (blockLevel - v) * block

		var hole float64
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				hx := (float64(c) - 1.5) * pitch
				hy := (float64(r) - 1.5) * pitch
				hole = math.Max(hole, Step(size/2-math.Hypot(dx-hx, dy-hy), blur))
			}
		}
		return v + (holeLevel-v)*hole
	}
}

// Pattern replaces the phantom signal with fn(pixel column, pixel row)
func (p Phantom) Pattern(fn func(i, j int) float64) Feature {
	c := p.Center()
	return func(x, y, _ float64) float64 {
		i := int(math.Round(x/p.Spacing + c.X))
		j := int(math.Round(y/p.Spacing + c.Y))
		return fn(i, j)
	}
}

// Layout of the synthetic slice 1, in mm relative to the phantom centre
const (
	InsertHalfWidth  = 45.0
	InsertHalfHeight = 15.0
	InsertLevel      = 100.0
	EdgeSlant        = 5 * math.Pi / 180

	// RampLength gives a slice thickness of 0.2*L*L/(2L) = 5.09 mm
	RampLength = 50.9

	BarTop = -66.0
)

// ResolutionGroups are the hole sizes and x offsets of the resolution insert at y = +30 mm
var ResolutionGroups = []struct{ Size, X float64 }{
	{1.1, -30}, {1.0, -10}, {0.9, 10}, {0.8, 30},
}

// Slice1Features returns the ACR slice 1 inserts: the dark thickness insert with its slanted
// left edge, two crossed-ramp bars, slice position bars of lengths leftLen and rightLen,
// and the four resolution hole groups.
func (p Phantom) Slice1Features(leftLen, rightLen float64) []Feature {
	fs := []Feature{
		Insert(-InsertHalfWidth, -InsertHalfHeight, InsertHalfWidth, InsertHalfHeight, InsertLevel, EdgeSlant, p.EdgeBlur),
		HorizontalBar(-RampLength/2, RampLength/2, -4, -2, p.Signal, p.EdgeBlur),
		HorizontalBar(-RampLength/2, RampLength/2, 2, 4, p.Signal, p.EdgeBlur),
	}
	fs = append(fs, p.PositionBars(leftLen, rightLen)...)
	for _, g := range ResolutionGroups {
		fs = append(fs, HoleGroup(g.X, 30, g.Size, InsertLevel, p.Signal, p.HoleBlur))
	}
	return fs
}

// PositionBars returns the two dark slice position bars hanging down from BarTop
func (p Phantom) PositionBars(leftLen, rightLen float64) []Feature {
	return []Feature{
		VerticalBar(-4, -2, BarTop, BarTop+leftLen, InsertLevel, p.EdgeBlur),
		VerticalBar(2, 4, BarTop, BarTop+rightLen, InsertLevel, p.EdgeBlur),
	}
}

// Series renders an eleven slice ACR series: slice 1 with every insert (slice position
// error +2 mm), slice 11 with centred position bars and plain discs elsewhere.
func (p Phantom) Series() []models.SliceImage {
	out := make([]models.SliceImage, 0, 11)
	for i := 1; i <= 11; i++ {
		q := p
		q.Seed = p.Seed + int64(i)
		switch i {
		case 1:
			out = append(out, q.Render(i, p.Slice1Features(30, 26)...))
		case 11:
			out = append(out, q.Render(i, p.PositionBars(28, 28)...))
		default:
			out = append(out, q.Render(i))
		}
	}
	return out
}
