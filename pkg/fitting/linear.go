// Package fitting holds the deterministic curve and shape fits used by the localizer and the
// measurement modules: linear least squares via QR, circle and polynomial fits, and a
// bounded-iteration edge spread function fit.
package fitting

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LeastSquares solves the overdetermined system A·x ≈ b in the least squares sense.
// a holds rows*cols coefficients in row-major order.
func LeastSquares(a []float64, rows, cols int, b []float64) ([]float64, error) {
	if rows < cols {
		return nil, fmt.Errorf("underdetermined system: %d equations for %d unknowns", rows, cols)
	}
	if len(a) != rows*cols || len(b) != rows {
		return nil, fmt.Errorf("system shape mismatch: %d coefficients, %d targets for %dx%d", len(a), len(b), rows, cols)
	}

	A := mat.NewDense(rows, cols, append([]float64(nil), a...))
	B := mat.NewVecDense(rows, append([]float64(nil), b...))

	// QR decomposition keeps the fit stable for the ill-conditioned circle systems
	var qr mat.QR
	qr.Factorize(A)

	x := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(x, false, B); err != nil {
		return nil, fmt.Errorf("least squares solve: %w", err)
	}
	return x.RawVector().Data, nil
}

// FitPolynomial fits y = c0 + c1·x + ... + cd·x^d and returns the coefficients in
// ascending order
func FitPolynomial(x, y []float64, degree int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("polynomial fit: %d x values for %d y values", len(x), len(y))
	}
	cols := degree + 1
	a := make([]float64, 0, len(x)*cols)
	for _, xi := range x {
		p := 1.0
		for j := 0; j < cols; j++ {
			a = append(a, p)
			p *= xi
		}
	}
	return LeastSquares(a, len(x), cols, y)
}

// EvalPolynomial evaluates ascending coefficients at x
func EvalPolynomial(coeffs []float64, x float64) float64 {
	var v float64
	for i := len(coeffs) - 1; i >= 0; i-- {
		v = v*x + coeffs[i]
	}
	return v
}
