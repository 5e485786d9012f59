package pipeline

import (
	"phantomqa/internal/models"
	"phantomqa/pkg/geoaccuracy"
	"phantomqa/pkg/ghosting"
	"phantomqa/pkg/resolution"
	"phantomqa/pkg/sliceposition"
	"phantomqa/pkg/slicethickness"
	"phantomqa/pkg/snr"
	"phantomqa/pkg/uniformity"
)

// Metric names one value a module produces
type Metric struct {
	Name string
	Unit string
}

// Task is one module run on one localized slice
type Task struct {
	Slice    models.SliceImage
	Geometry models.PhantomGeometry

	// Pair is the repeated acquisition of the same slice, if any
	Pair *models.SliceImage
}

// Module is a measurement module. Measure must return exactly one observation per metric
// listed by Metrics for the task's slice, in the same order.
type Module interface {
	ID() string
	Metrics(slice int) []Metric
	Measure(t Task) []models.Observation
}

// single turns a one-metric result into its observation
func single(module string, m Metric, slice int, value float64, err error) []models.Observation {
	if err != nil {
		return []models.Observation{models.Unavailable(module, m.Name, slice, m.Unit, err)}
	}
	return []models.Observation{models.Observed(module, m.Name, slice, value, m.Unit)}
}

type snrModule struct{ p snr.Params }

func (snrModule) ID() string { return snr.ModuleID }

func (snrModule) Metrics(int) []Metric { return []Metric{{Name: snr.MetricSNR}} }

func (m snrModule) Measure(t Task) []models.Observation {
	res, err := snr.Measure(t.Slice, t.Geometry, t.Pair, m.p)
	return single(snr.ModuleID, Metric{Name: snr.MetricSNR}, t.Slice.Index, res.SNR, err)
}

type geometricModule struct{ p geoaccuracy.Params }

func (geometricModule) ID() string { return geoaccuracy.ModuleID }

func (m geometricModule) Metrics(slice int) []Metric {
	var out []Metric
	for _, d := range m.p.Directions(slice) {
		out = append(out, Metric{Name: d.Metric, Unit: geoaccuracy.Unit})
	}
	return out
}

func (m geometricModule) Measure(t Task) []models.Observation {
	var out []models.Observation
	for _, d := range m.p.Directions(t.Slice.Index) {
		v, err := geoaccuracy.Measure(t.Slice, t.Geometry, d, m.p)
		out = append(out, single(geoaccuracy.ModuleID, Metric{Name: d.Metric, Unit: geoaccuracy.Unit}, t.Slice.Index, v, err)...)
	}
	return out
}

type resolutionModule struct{ p resolution.Params }

func (resolutionModule) ID() string { return resolution.ModuleID }

func (m resolutionModule) Metrics(int) []Metric {
	out := make([]Metric, 0, len(m.p.Groups)+2)
	for _, g := range m.p.Groups {
		out = append(out, Metric{Name: g.Metric(), Unit: resolution.ScoreUnit})
	}
	return append(out,
		Metric{Name: resolution.MetricRawMTF50, Unit: resolution.MTFUnit},
		Metric{Name: resolution.MetricFittedMTF50, Unit: resolution.MTFUnit},
	)
}

// Measure scores every hole group and both MTF50 estimates independently: a failed fit
// leaves the raw estimate and the scores in place.
func (m resolutionModule) Measure(t Task) []models.Observation {
	id, slice := resolution.ModuleID, t.Slice.Index
	var out []models.Observation
	for _, g := range m.p.Groups {
		s, err := resolution.HoleScore(t.Slice, t.Geometry, g, m.p.MinModulation)
		out = append(out, single(id, Metric{Name: g.Metric(), Unit: resolution.ScoreUnit}, slice, s, err)...)
	}

	raw := Metric{Name: resolution.MetricRawMTF50, Unit: resolution.MTFUnit}
	fitted := Metric{Name: resolution.MetricFittedMTF50, Unit: resolution.MTFUnit}
	edge, err := resolution.SlantedEdge(t.Slice, t.Geometry, m.p.Edge)
	if err != nil {
		return append(out,
			models.Unavailable(id, raw.Name, slice, raw.Unit, err),
			models.Unavailable(id, fitted.Name, slice, fitted.Unit, err),
		)
	}
	v, err := edge.RawMTF50()
	out = append(out, single(id, raw, slice, v, err)...)
	v, err = edge.FittedMTF50(m.p.FitOptions())
	return append(out, single(id, fitted, slice, v, err)...)
}

type uniformityModule struct{ p uniformity.Params }

func (uniformityModule) ID() string { return uniformity.ModuleID }

func (uniformityModule) Metrics(int) []Metric {
	return []Metric{
		{Name: uniformity.MetricIntegral, Unit: uniformity.Unit},
		{Name: uniformity.MetricPercentIntegral, Unit: uniformity.Unit},
	}
}

func (m uniformityModule) Measure(t Task) []models.Observation {
	metrics := m.Metrics(t.Slice.Index)
	iu, err := uniformity.Integral(t.Slice, t.Geometry, m.p)
	out := single(uniformity.ModuleID, metrics[0], t.Slice.Index, iu, err)
	piu, err := uniformity.PercentIntegral(t.Slice, t.Geometry, m.p)
	return append(out, single(uniformity.ModuleID, metrics[1], t.Slice.Index, piu, err)...)
}

type ghostingModule struct{ p ghosting.Params }

func (ghostingModule) ID() string { return ghosting.ModuleID }

func (ghostingModule) Metrics(int) []Metric {
	return []Metric{{Name: ghosting.MetricRatio, Unit: ghosting.Unit}}
}

func (m ghostingModule) Measure(t Task) []models.Observation {
	res, err := ghosting.Measure(t.Slice, t.Geometry, m.p)
	return single(ghosting.ModuleID, Metric{Name: ghosting.MetricRatio, Unit: ghosting.Unit}, t.Slice.Index, res.Ratio, err)
}

type positionModule struct{ p sliceposition.Params }

func (positionModule) ID() string { return sliceposition.ModuleID }

func (positionModule) Metrics(int) []Metric {
	return []Metric{{Name: sliceposition.MetricError, Unit: sliceposition.Unit}}
}

func (m positionModule) Measure(t Task) []models.Observation {
	res, err := sliceposition.Measure(t.Slice, t.Geometry, m.p)
	return single(sliceposition.ModuleID, Metric{Name: sliceposition.MetricError, Unit: sliceposition.Unit}, t.Slice.Index, res.Error, err)
}

type thicknessModule struct{ p slicethickness.Params }

func (thicknessModule) ID() string { return slicethickness.ModuleID }

func (thicknessModule) Metrics(int) []Metric {
	return []Metric{{Name: slicethickness.MetricThickness, Unit: slicethickness.Unit}}
}

func (m thicknessModule) Measure(t Task) []models.Observation {
	res, err := slicethickness.Measure(t.Slice, t.Geometry, m.p)
	return single(slicethickness.ModuleID, Metric{Name: slicethickness.MetricThickness, Unit: slicethickness.Unit}, t.Slice.Index, res.Thickness, err)
}
