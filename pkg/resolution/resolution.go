// Package resolution scores the hole arrays of the ACR resolution insert and estimates the
// MTF50 of the slanted insert edge, both from the raw MTF and from a fitted edge model.
package resolution

import (
	"fmt"

	"phantomqa/pkg/fitting"
)

const (
	ModuleID = "spatial_resolution"

	MetricRawMTF50    = "raw_mtf50"
	MetricFittedMTF50 = "fitted_mtf50"

	ScoreUnit = "%"
	MTFUnit   = "lp/mm"
)

// Params configures the resolution module
type Params struct {
	Groups []HoleGroup `yaml:"groups"`

	// MinModulation is the ROI contrast below which no hole insert is present
	MinModulation float64 `yaml:"minModulation"`

	Edge EdgeParams `yaml:"edge"`

	// MaxFitIterations caps the edge model fit
	MaxFitIterations int `yaml:"maxFitIterations"`
}

// DefaultParams returns the medium ACR layout: four 4x4 hole groups 30 mm below the centre
// and the slanted left edge of the thickness insert.
func DefaultParams() Params {
	return Params{
		Groups: []HoleGroup{
			{Size: 1.1, OffsetX: -30, OffsetY: 30},
			{Size: 1.0, OffsetX: -10, OffsetY: 30},
			{Size: 0.9, OffsetX: 10, OffsetY: 30},
			{Size: 0.8, OffsetX: 30, OffsetY: 30},
		},
		MinModulation: 0.1,
		Edge: EdgeParams{
			OffsetX:      -45,
			OffsetY:      0,
			HalfWidth:    10,
			HalfHeight:   10,
			Oversampling: 0.25,
			MinRows:      8,
		},
		MaxFitIterations: fitting.DefaultESFOptions().MaxIterations,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	seen := make(map[string]bool, len(p.Groups))
	for _, g := range p.Groups {
		if !(g.Size > 0) {
			return fmt.Errorf("hole size must be positive, got %v", g.Size)
		}
		if seen[g.Metric()] {
			return fmt.Errorf("duplicate hole group %v mm", g.Size)
		}
		seen[g.Metric()] = true
	}
	if p.MinModulation < 0 || p.MinModulation >= 1 {
		return fmt.Errorf("min modulation must be in [0, 1), got %v", p.MinModulation)
	}
	if !(p.Edge.Oversampling > 0 && p.Edge.Oversampling <= 1) {
		return fmt.Errorf("edge oversampling must be in (0, 1], got %v", p.Edge.Oversampling)
	}
	if !(p.Edge.HalfWidth > 0 && p.Edge.HalfHeight > 0) {
		return fmt.Errorf("edge ROI must have positive size")
	}
	if p.MaxFitIterations <= 0 {
		return fmt.Errorf("max fit iterations must be positive, got %d", p.MaxFitIterations)
	}
	return nil
}

// FitOptions returns the edge fit bounds for these params
func (p Params) FitOptions() fitting.ESFOptions {
	opts := fitting.DefaultESFOptions()
	opts.MaxIterations = p.MaxFitIterations
	return opts
}
