package models

import (
	"errors"
	"fmt"
)

// Failure causes shared by the localizer and the measurement modules. Module errors
// wrap one of these so callers can classify them with errors.Is.
var (
	// ErrLocalization means the phantom could not be found on the slice
	ErrLocalization = errors.New("phantom localization failed")

	// ErrFeatureNotFound means a module could not find the features it measures
	ErrFeatureNotFound = errors.New("expected features not found")

	// ErrFitNotConverged means a curve fit stopped without converging
	ErrFitNotConverged = errors.New("curve fit did not converge")

	// ErrOutOfBounds means a sampling position fell outside the image
	ErrOutOfBounds = errors.New("sample position out of bounds")

	// ErrSliceMissing means the series does not contain a slice a module needs
	ErrSliceMissing = errors.New("slice not present in series")
)

// Measurement is one numeric QA value produced by a module for a slice
type Measurement struct {
	Module string  `json:"module"`
	Metric string  `json:"metric"`
	Slice  int     `json:"slice"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
}

// Key returns the configuration key used to look up the metric's tolerance rule
func (m Measurement) Key() string {
	return MetricKey(m.Module, m.Metric)
}

// MetricKey joins a module and metric name into a tolerance key ("ghosting.ghosting_ratio")
func MetricKey(module, metric string) string {
	return module + "." + metric
}

// Observation is what a module emits for one metric on one slice: either a
// measurement or the reason it could not be taken.
type Observation struct {
	Measurement
	Err error `json:"-"`
}

// Observed wraps a successful measurement
func Observed(module, metric string, slice int, value float64, unit string) Observation {
	return Observation{Measurement: Measurement{
		Module: module,
		Metric: metric,
		Slice:  slice,
		Value:  value,
		Unit:   unit,
	}}
}

// Unavailable records that a metric could not be measured. Value stays zero and must
// not be read.
func Unavailable(module, metric string, slice int, unit string, err error) Observation {
	if err == nil {
		err = fmt.Errorf("%s on slice %d: no reason given", metric, slice)
	}
	return Observation{
		Measurement: Measurement{Module: module, Metric: metric, Slice: slice, Unit: unit},
		Err:         err,
	}
}

// Available reports whether the observation carries a real measurement
func (o Observation) Available() bool {
	return o.Err == nil
}

// FailureKind classifies an observation error into the taxonomy used in reports
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocalization):
		return "localization"
	case errors.Is(err, ErrFitNotConverged):
		return "fit"
	case errors.Is(err, ErrSliceMissing):
		return "missing_slice"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrFeatureNotFound):
		return "feature"
	default:
		return "other"
	}
}
