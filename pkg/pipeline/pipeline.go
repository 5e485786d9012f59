// Package pipeline runs the measurement modules over a phantom series and assembles the
// evaluated report. Every slice is localized at most once; one task per (module, slice) runs
// on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"phantomqa/internal/logger"
	"phantomqa/internal/metrics"
	"phantomqa/internal/models"
	"phantomqa/pkg/geoaccuracy"
	"phantomqa/pkg/ghosting"
	"phantomqa/pkg/localization"
	"phantomqa/pkg/report"
	"phantomqa/pkg/resolution"
	"phantomqa/pkg/sliceposition"
	"phantomqa/pkg/slicethickness"
	"phantomqa/pkg/snr"
	"phantomqa/pkg/tolerance"
	"phantomqa/pkg/uniformity"
)

const component = "pipeline"

// ErrDuplicateSlice means two input images claim the same ACR slice number
var ErrDuplicateSlice = errors.New("duplicate slice number")

// Selection runs one module on the listed ACR slice numbers
type Selection struct {
	ID     string `yaml:"id"`
	Slices []int  `yaml:"slices"`
}

// Params holds everything a run depends on
type Params struct {
	// Workers bounds the number of concurrent tasks
	Workers int `yaml:"workers"`

	// Modules lists the modules in report order
	Modules []Selection `yaml:"modules"`

	Localization      localization.Params   `yaml:"localization"`
	SNR               snr.Params            `yaml:"snr"`
	GeometricAccuracy geoaccuracy.Params    `yaml:"geometricAccuracy"`
	Resolution        resolution.Params     `yaml:"resolution"`
	Uniformity        uniformity.Params     `yaml:"uniformity"`
	Ghosting          ghosting.Params       `yaml:"ghosting"`
	SlicePosition     sliceposition.Params  `yaml:"slicePosition"`
	SliceThickness    slicethickness.Params `yaml:"sliceThickness"`

	// Tolerances maps "module.metric" to its rule; missing metrics have no tolerance
	Tolerances tolerance.Set `yaml:"tolerances"`
}

// DefaultParams returns the medium ACR phantom battery on the standard slices
func DefaultParams() Params {
	return Params{
		Workers: runtime.NumCPU(),
		Modules: []Selection{
			{ID: snr.ModuleID, Slices: []int{7}},
			{ID: geoaccuracy.ModuleID, Slices: []int{1, 5}},
			{ID: resolution.ModuleID, Slices: []int{1}},
			{ID: uniformity.ModuleID, Slices: []int{7}},
			{ID: ghosting.ModuleID, Slices: []int{7}},
			{ID: sliceposition.ModuleID, Slices: []int{1, 11}},
			{ID: slicethickness.ModuleID, Slices: []int{1}},
		},
		Localization:      localization.DefaultParams(),
		SNR:               snr.DefaultParams(),
		GeometricAccuracy: geoaccuracy.DefaultParams(),
		Resolution:        resolution.DefaultParams(),
		Uniformity:        uniformity.DefaultParams(),
		Ghosting:          ghosting.DefaultParams(),
		SlicePosition:     sliceposition.DefaultParams(),
		SliceThickness:    slicethickness.DefaultParams(),
		Tolerances:        DefaultTolerances(),
	}
}

// DefaultTolerances returns the ACR action limits for the medium phantom. SNR and the
// resolution metrics are informational.
func DefaultTolerances() tolerance.Set {
	diameter := tolerance.Within(163, 167)
	return tolerance.Set{
		models.MetricKey(geoaccuracy.ModuleID, geoaccuracy.MetricHorizontal):      diameter,
		models.MetricKey(geoaccuracy.ModuleID, geoaccuracy.MetricVertical):        diameter,
		models.MetricKey(geoaccuracy.ModuleID, geoaccuracy.MetricDiagonalSW):      diameter,
		models.MetricKey(geoaccuracy.ModuleID, geoaccuracy.MetricDiagonalSE):      diameter,
		models.MetricKey(uniformity.ModuleID, uniformity.MetricIntegral):          tolerance.Above(90),
		models.MetricKey(uniformity.ModuleID, uniformity.MetricPercentIntegral):   tolerance.Above(87.5),
		models.MetricKey(ghosting.ModuleID, ghosting.MetricRatio):                 tolerance.Below(3),
		models.MetricKey(sliceposition.ModuleID, sliceposition.MetricError):       tolerance.Below(5).Magnitude(),
		models.MetricKey(slicethickness.ModuleID, slicethickness.MetricThickness): tolerance.Within(4, 6),
	}
}

// ModuleIDs lists every module the pipeline can run
func ModuleIDs() []string {
	return []string{
		snr.ModuleID,
		geoaccuracy.ModuleID,
		resolution.ModuleID,
		uniformity.ModuleID,
		ghosting.ModuleID,
		sliceposition.ModuleID,
		slicethickness.ModuleID,
	}
}

// Validate checks the whole configuration. Malformed tolerance rules wrap
// tolerance.ErrInvalidRule.
func (p Params) Validate() error {
	var errs []error
	if p.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", p.Workers))
	}
	seen := make(map[string]bool)
	for _, s := range p.Modules {
		switch {
		case !slices.Contains(ModuleIDs(), s.ID):
			errs = append(errs, fmt.Errorf("unknown module %q", s.ID))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("module %q listed twice", s.ID))
		}
		seen[s.ID] = true
		listed := make(map[int]bool, len(s.Slices))
		for _, n := range s.Slices {
			if n < 1 {
				errs = append(errs, fmt.Errorf("module %q: slice numbers start at 1, got %d", s.ID, n))
			}
			if listed[n] {
				errs = append(errs, fmt.Errorf("module %q: slice %d listed twice", s.ID, n))
			}
			listed[n] = true
		}
	}
	checks := []struct {
		name string
		err  error
	}{
		{"localization", p.Localization.Validate()},
		{snr.ModuleID, p.SNR.Validate()},
		{geoaccuracy.ModuleID, p.GeometricAccuracy.Validate()},
		{resolution.ModuleID, p.Resolution.Validate()},
		{uniformity.ModuleID, p.Uniformity.Validate()},
		{ghosting.ModuleID, p.Ghosting.Validate()},
		{sliceposition.ModuleID, p.SlicePosition.Validate()},
		{slicethickness.ModuleID, p.SliceThickness.Validate()},
	}
	for _, c := range checks {
		if c.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, c.err))
		}
	}
	if err := p.Tolerances.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger; the default discards everything
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithMetrics records run statistics
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner executes the configured modules over a series
type Runner struct {
	params  Params
	modules []Module
	log     logger.Logger
	metrics *metrics.Recorder
}

// NewRunner validates the configuration and builds the modules. Configuration errors are
// returned here, before any measurement runs.
func NewRunner(p Params, opts ...Option) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	r := &Runner{params: p, log: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	for _, s := range p.Modules {
		r.modules = append(r.modules, r.build(s.ID))
	}
	return r, nil
}

func (r *Runner) build(id string) Module {
	p := r.params
	switch id {
	case snr.ModuleID:
		return snrModule{p.SNR}
	case geoaccuracy.ModuleID:
		return geometricModule{p.GeometricAccuracy}
	case resolution.ModuleID:
		return resolutionModule{p.Resolution}
	case uniformity.ModuleID:
		return uniformityModule{p.Uniformity}
	case ghosting.ModuleID:
		return ghostingModule{p.Ghosting}
	case sliceposition.ModuleID:
		return positionModule{p.SlicePosition}
	default:
		return thicknessModule{p.SliceThickness}
	}
}

// job is one (module, slice) unit of work
type job struct {
	module Module
	slice  int
}

// Run measures series and returns the evaluated report. pairs optionally holds a repeated
// acquisition of the series, matched by slice index, for subtraction SNR. Measurement
// failures become unavailable entries. The run fails before measuring when two images of
// the series, or of the pair, share a slice number, and when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, series []models.SliceImage, pairs []models.SliceImage) (report.Report, error) {
	byIndex := make(map[int]models.SliceImage, len(series))
	for _, s := range series {
		if _, dup := byIndex[s.Index]; dup {
			return report.Report{}, fmt.Errorf("series slice %d: %w", s.Index, ErrDuplicateSlice)
		}
		byIndex[s.Index] = s
	}
	pairByIndex := make(map[int]*models.SliceImage, len(pairs))
	for i := range pairs {
		if _, dup := pairByIndex[pairs[i].Index]; dup {
			return report.Report{}, fmt.Errorf("paired slice %d: %w", pairs[i].Index, ErrDuplicateSlice)
		}
		pairByIndex[pairs[i].Index] = &pairs[i]
	}

	var jobs []job
	locate := make(map[int]func() (models.PhantomGeometry, error))
	for i, s := range r.params.Modules {
		for _, n := range s.Slices {
			jobs = append(jobs, job{module: r.modules[i], slice: n})
			img, ok := byIndex[n]
			if _, done := locate[n]; ok && !done {
				locate[n] = sync.OnceValues(func() (models.PhantomGeometry, error) {
					geo, err := localization.Locate(img, r.params.Localization)
					r.metrics.Localized(err == nil)
					if err != nil {
						r.log.Warning(component, "phantom localization failed", map[string]interface{}{"slice": n, "error": err.Error()})
					}
					return geo, err
				})
			}
		}
	}
	r.log.Info(component, "starting QA run", map[string]interface{}{"slices": len(series), "tasks": len(jobs), "workers": r.params.Workers})

	results := make([][]models.Observation, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.params.Workers)
	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			results[i] = r.runTask(j, byIndex, pairByIndex, locate)
			r.metrics.Task(j.module.ID(), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report.Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}

	var obs []models.Observation
	for _, res := range results {
		obs = append(obs, res...)
	}
	order := make([]string, len(r.params.Modules))
	for i, s := range r.params.Modules {
		order[i] = s.ID
	}
	rep := report.Assemble(r.reportID(series, pairs), order, obs, r.params.Tolerances)
	r.record(rep)
	return rep, nil
}

// runTask waits for the slice geometry and runs the module. A missing slice or a failed
// localization marks every metric of the task unavailable.
func (r *Runner) runTask(j job, byIndex map[int]models.SliceImage, pairs map[int]*models.SliceImage, locate map[int]func() (models.PhantomGeometry, error)) []models.Observation {
	id := j.module.ID()
	unavailable := func(err error) []models.Observation {
		var out []models.Observation
		for _, m := range j.module.Metrics(j.slice) {
			out = append(out, models.Unavailable(id, m.Name, j.slice, m.Unit, err))
		}
		return out
	}

	img, ok := byIndex[j.slice]
	if !ok {
		return unavailable(fmt.Errorf("%s needs slice %d: %w", id, j.slice, models.ErrSliceMissing))
	}
	geo, err := locate[j.slice]()
	if err != nil {
		return unavailable(err)
	}
	obs := j.module.Measure(Task{Slice: img, Geometry: geo, Pair: pairs[j.slice]})
	for _, o := range obs {
		if !o.Available() {
			r.log.Warning(component, "measurement unavailable", map[string]interface{}{
				"module": id, "metric": o.Metric, "slice": o.Slice, "error": o.Err.Error(),
			})
		}
	}
	r.log.Debug(component, "task done", map[string]interface{}{"module": id, "slice": j.slice})
	return obs
}

// reportID fingerprints the pixel data together with the serialized configuration. The
// worker count does not change results and is left out.
func (r *Runner) reportID(series, pairs []models.SliceImage) uuid.UUID {
	p := r.params
	p.Workers = 0
	cfg, err := yaml.Marshal(p)
	if err != nil {
		cfg = nil
	}
	all := append(append([]models.SliceImage{}, series...), pairs...)
	return report.NewID(report.Fingerprint(all, cfg))
}

func (r *Runner) record(rep report.Report) {
	for _, sec := range rep.Sections {
		for _, e := range sec.Entries {
			if e.Available {
				r.metrics.Outcome(sec.Module, e.Outcome.String())
			} else {
				r.metrics.Unavailable(sec.Module, e.Failure)
			}
		}
	}
}
