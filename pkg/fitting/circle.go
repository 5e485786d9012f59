package fitting

import (
	"fmt"
	"math"

	"phantomqa/internal/models"
)

// Circle is the result of a least squares circle fit
type Circle struct {
	Center models.Point
	Radius float64

	// Residual is the RMS distance of the input points from the circle
	Residual float64
}

// FitCircle fits x² + y² + D·x + E·y + F = 0 to the points (algebraic Kasa fit). The points
// are centred on their mean first to keep the system well conditioned.
func FitCircle(pts []models.Point) (Circle, error) {
	if len(pts) < 3 {
		return Circle{}, fmt.Errorf("circle fit needs at least 3 points, got %d", len(pts))
	}

	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= float64(len(pts))
	my /= float64(len(pts))

	a := make([]float64, 0, 3*len(pts))
	b := make([]float64, 0, len(pts))
	for _, p := range pts {
		x, y := p.X-mx, p.Y-my
		a = append(a, x, y, 1)
		b = append(b, -(x*x + y*y))
	}
	sol, err := LeastSquares(a, len(pts), 3, b)
	if err != nil {
		return Circle{}, fmt.Errorf("circle fit: %w", err)
	}

	cx, cy := -sol[0]/2, -sol[1]/2
	r2 := cx*cx + cy*cy - sol[2]
	if !(r2 > 0) {
		return Circle{}, fmt.Errorf("circle fit: degenerate radius² %v", r2)
	}
	c := Circle{Center: models.Point{X: cx + mx, Y: cy + my}, Radius: math.Sqrt(r2)}

	var ss float64
	for _, p := range pts {
		d := math.Hypot(p.X-c.Center.X, p.Y-c.Center.Y) - c.Radius
		ss += d * d
	}
	c.Residual = math.Sqrt(ss / float64(len(pts)))
	return c, nil
}
