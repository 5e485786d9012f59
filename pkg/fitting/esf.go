package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"phantomqa/internal/models"
)

// ESF is the error-function edge model
//
//	f(x) = Low + (High-Low) · ½·(1 + erf((x-Edge) / (σ·√2)))
//
// which corresponds to a Gaussian line spread function of width Sigma.
type ESF struct {
	Low   float64
	High  float64
	Edge  float64
	Sigma float64
}

// At evaluates the model at x
func (e ESF) At(x float64) float64 {
	return e.Low + (e.High-e.Low)*0.5*(1+math.Erf((x-e.Edge)/(e.Sigma*math.Sqrt2)))
}

// MTF50 returns the frequency (cycles per unit of x) at which the Gaussian MTF of the
// model falls to one half
func (e ESF) MTF50() float64 {
	return math.Sqrt(math.Ln2/2) / (math.Pi * e.Sigma)
}

// ESFOptions bounds the fit
type ESFOptions struct {
	// MaxIterations caps the number of Nelder-Mead major iterations
	MaxIterations int

	// MinSigma and MaxSigma bound the edge width in units of x
	MinSigma float64
	MaxSigma float64
}

// DefaultESFOptions returns the bounds used by the resolution module
func DefaultESFOptions() ESFOptions {
	return ESFOptions{MaxIterations: 2000, MinSigma: 0.05, MaxSigma: 20}
}

// ESFFit is a converged edge fit
type ESFFit struct {
	ESF
	Iterations int
	RMS        float64
}

// FitESF fits the erf edge model to (x, y) with a Nelder-Mead simplex. The fit is
// deterministic and stops after opts.MaxIterations; a fit that has not converged by then
// returns models.ErrFitNotConverged.
func FitESF(x, y []float64, opts ESFOptions) (ESFFit, error) {
	if len(x) != len(y) || len(x) < 5 {
		return ESFFit{}, fmt.Errorf("edge fit needs matching samples, got %d and %d: %w", len(x), len(y), models.ErrFeatureNotFound)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultESFOptions().MaxIterations
	}
	if !(opts.MinSigma > 0) || opts.MaxSigma <= opts.MinSigma {
		return ESFFit{}, fmt.Errorf("invalid sigma bounds [%v, %v]", opts.MinSigma, opts.MaxSigma)
	}

	// normalise intensities so the simplex steps are comparable across parameters
	lo, hi := y[0], y[0]
	for _, v := range y {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	if !(span > 0) {
		return ESFFit{}, fmt.Errorf("flat edge profile: %w", models.ErrFeatureNotFound)
	}
	yn := make([]float64, len(y))
	for i, v := range y {
		yn[i] = (v - lo) / span
	}

	startLow, startHigh := yn[0], yn[len(yn)-1]
	startEdge := x[len(x)/2]
	if i, ok := halfCrossing(yn, (startLow+startHigh)/2); ok {
		startEdge = x[i]
	}
	startSigma := math.Sqrt(opts.MinSigma * opts.MaxSigma)
	if s := (x[len(x)-1] - x[0]) / 20; s > opts.MinSigma && s < opts.MaxSigma {
		startSigma = s
	}

	logMin, logMax := math.Log(opts.MinSigma), math.Log(opts.MaxSigma)
	model := func(p []float64) ESF {
		ls := math.Max(logMin, math.Min(logMax, p[3]))
		return ESF{Low: p[0], High: p[1], Edge: p[2], Sigma: math.Exp(ls)}
	}
	cost := func(p []float64) float64 {
		m := model(p)
		var ss float64
		for i, xi := range x {
			d := m.At(xi) - yn[i]
			ss += d * d
		}
		// keep the simplex inside the sigma bounds
		if p[3] < logMin {
			ss += (logMin - p[3]) * (logMin - p[3])
		} else if p[3] > logMax {
			ss += (p[3] - logMax) * (p[3] - logMax)
		}
		return ss
	}

	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 100,
		},
	}
	x0 := []float64{startLow, startHigh, startEdge, math.Log(startSigma)}
	res, err := optimize.Minimize(optimize.Problem{Func: cost}, x0, settings, &optimize.NelderMead{SimplexSize: 0.25})
	if err != nil {
		return ESFFit{}, fmt.Errorf("edge fit: %v: %w", err, models.ErrFitNotConverged)
	}
	switch res.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge, optimize.FunctionThreshold:
	default:
		return ESFFit{}, fmt.Errorf("edge fit stopped with %v after %d iterations: %w",
			res.Status, res.Stats.MajorIterations, models.ErrFitNotConverged)
	}

	m := model(res.X)
	fit := ESFFit{
		ESF: ESF{
			Low:   lo + m.Low*span,
			High:  lo + m.High*span,
			Edge:  m.Edge,
			Sigma: m.Sigma,
		},
		Iterations: res.Stats.MajorIterations,
		RMS:        math.Sqrt(res.F/float64(len(x))) * span,
	}
	if m.Sigma <= opts.MinSigma*1.0001 || m.Sigma >= opts.MaxSigma*0.9999 {
		return ESFFit{}, fmt.Errorf("edge width %.4g at fit bound: %w", m.Sigma, models.ErrFitNotConverged)
	}
	return fit, nil
}

func halfCrossing(y []float64, level float64) (int, bool) {
	for i := 0; i+1 < len(y); i++ {
		if (y[i]-level)*(y[i+1]-level) <= 0 {
			return i, true
		}
	}
	return 0, false
}
