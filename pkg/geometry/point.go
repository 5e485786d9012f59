// Package geometry provides the pixel-level primitives shared by the localizer and the
// measurement modules: physical distances, rotation, bilinear sampling, line profiles,
// regions of interest and their statistics, connected components and summed-area tables.
package geometry

import (
	"math"

	"phantomqa/internal/models"
)

// Distance returns the Euclidean distance between two pixel positions in mm
func Distance(p1, p2 models.Point, spacing models.Spacing) float64 {
	dx := (p2.X - p1.X) * spacing.X
	dy := (p2.Y - p1.Y) * spacing.Y
	return math.Hypot(dx, dy)
}

// Rotate rotates p by angle radians around center. Positive angles turn +x towards +y,
// which is clockwise on screen since y grows downwards.
func Rotate(p models.Point, angle float64, center models.Point) models.Point {
	sin, cos := math.Sincos(angle)
	d := p.Sub(center)
	return models.Point{
		X: center.X + d.X*cos - d.Y*sin,
		Y: center.Y + d.X*sin + d.Y*cos,
	}
}

// Direction returns the unit vector for an angle in radians
func Direction(angle float64) models.Point {
	sin, cos := math.Sincos(angle)
	return models.Point{X: cos, Y: sin}
}

// Lerp interpolates linearly between a and b
func Lerp(a, b models.Point, t float64) models.Point {
	return models.Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}
