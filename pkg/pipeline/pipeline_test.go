package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/metrics"
	"phantomqa/internal/models"
	"phantomqa/internal/testutil"
	"phantomqa/pkg/geoaccuracy"
	"phantomqa/pkg/ghosting"
	"phantomqa/pkg/report"
	"phantomqa/pkg/sliceposition"
	"phantomqa/pkg/slicethickness"
	"phantomqa/pkg/snr"
	"phantomqa/pkg/tolerance"
	"phantomqa/pkg/uniformity"
)

func noisySeries() []models.SliceImage {
	ph := testutil.Default()
	ph.Noise = 5
	ph.Seed = 42
	return ph.Series()
}

func run(t *testing.T, p Params, series, pairs []models.SliceImage) report.Report {
	t.Helper()
	r, err := NewRunner(p)
	require.NoError(t, err)
	rep, err := r.Run(context.Background(), series, pairs)
	require.NoError(t, err)
	return rep
}

func entry(t *testing.T, rep report.Report, module, metric string, slice int) report.Entry {
	t.Helper()
	e, ok := rep.Lookup(module, metric, slice)
	require.True(t, ok, "%s.%s slice %d missing", module, metric, slice)
	return e
}

func TestFullSeries(t *testing.T) {
	rep := run(t, DefaultParams(), noisySeries(), nil)

	require.Len(t, rep.Sections, 7)
	for i, id := range ModuleIDs() {
		assert.Equal(t, id, rep.Sections[i].Module)
	}

	for _, slice := range []int{1, 5} {
		for _, m := range []string{geoaccuracy.MetricHorizontal, geoaccuracy.MetricVertical} {
			e := entry(t, rep, geoaccuracy.ModuleID, m, slice)
			require.True(t, e.Available, e.Err)
			assert.InDelta(t, 165, e.Value, 0.3)
			assert.Equal(t, tolerance.Pass, e.Outcome)
		}
	}
	_, ok := rep.Lookup(geoaccuracy.ModuleID, geoaccuracy.MetricDiagonalSW, 1)
	assert.False(t, ok, "diagonals are only measured on slice 5")
	e := entry(t, rep, geoaccuracy.ModuleID, geoaccuracy.MetricDiagonalSE, 5)
	assert.Equal(t, tolerance.Pass, e.Outcome)

	e = entry(t, rep, snr.ModuleID, snr.MetricSNR, 7)
	require.True(t, e.Available, e.Err)
	assert.Greater(t, e.Value, 50.0)
	assert.Equal(t, tolerance.NoToleranceSet, e.Outcome)

	e = entry(t, rep, uniformity.ModuleID, uniformity.MetricIntegral, 7)
	assert.Equal(t, 100.0, e.Value)
	assert.Equal(t, tolerance.Pass, e.Outcome)

	e = entry(t, rep, ghosting.ModuleID, ghosting.MetricRatio, 7)
	assert.Equal(t, tolerance.Pass, e.Outcome)

	e = entry(t, rep, sliceposition.ModuleID, sliceposition.MetricError, 1)
	assert.InDelta(t, 2, e.Value, 0.2)
	assert.Equal(t, tolerance.Pass, e.Outcome)
	e = entry(t, rep, sliceposition.ModuleID, sliceposition.MetricError, 11)
	assert.InDelta(t, 0, e.Value, 0.2)

	e = entry(t, rep, slicethickness.ModuleID, slicethickness.MetricThickness, 1)
	assert.InDelta(t, 5.09, e.Value, 0.05)
	assert.Equal(t, tolerance.Pass, e.Outcome)

	res, ok := rep.Section("spatial_resolution")
	require.True(t, ok)
	assert.Len(t, res.Entries, 6)
}

func TestIdempotentReports(t *testing.T) {
	series := noisySeries()

	p := DefaultParams()
	p.Workers = 1
	a := run(t, p, series, nil)

	p.Workers = 8
	b := run(t, p, series, nil)

	assert.Equal(t, a, b)
	assert.Equal(t, a.ID, b.ID)

	// the report ID follows the inputs
	p.Tolerances = tolerance.Set{"ghosting.ghosting_ratio": tolerance.Below(2.5)}
	c := run(t, p, series, nil)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestLocalizationFailureIsLocal(t *testing.T) {
	series := noisySeries()
	blank, err := models.NewSliceImage(make([]float64, 256*256), 256, 256, models.Spacing{X: 1, Y: 1}, 1)
	require.NoError(t, err)
	series[0] = blank

	rep := run(t, DefaultParams(), series, nil)

	for _, sec := range rep.Sections {
		for _, e := range sec.Entries {
			if e.Slice != 1 {
				continue
			}
			assert.False(t, e.Available, "%s.%s", sec.Module, e.Metric)
			assert.Equal(t, "localization", e.Failure)
			assert.True(t, errors.Is(e.Err, models.ErrLocalization))
			assert.Zero(t, e.Value)
		}
	}

	e := entry(t, rep, geoaccuracy.ModuleID, geoaccuracy.MetricHorizontal, 5)
	assert.True(t, e.Available)
	assert.Equal(t, tolerance.Pass, e.Outcome)
	e = entry(t, rep, sliceposition.ModuleID, sliceposition.MetricError, 11)
	assert.True(t, e.Available)

	// every metric of the failed slice still has an entry
	sec, ok := rep.Section("spatial_resolution")
	require.True(t, ok)
	assert.Len(t, sec.Entries, 6)
}

func TestMissingSlice(t *testing.T) {
	series := noisySeries()[:10]
	rep := run(t, DefaultParams(), series, nil)

	e := entry(t, rep, sliceposition.ModuleID, sliceposition.MetricError, 11)
	assert.False(t, e.Available)
	assert.Equal(t, "missing_slice", e.Failure)
	assert.True(t, errors.Is(e.Err, models.ErrSliceMissing))
}

func TestUniformityScenarioFails(t *testing.T) {
	ph := testutil.Default()
	img := ph.Render(7, ph.Pattern(func(i, j int) float64 {
		if (i+3*j)%17 < 13 {
			return 1000
		}
		return 1500
	}))

	p := DefaultParams()
	p.Modules = []Selection{{ID: uniformity.ModuleID, Slices: []int{7}}}
	rep := run(t, p, []models.SliceImage{img}, nil)

	e := entry(t, rep, uniformity.ModuleID, uniformity.MetricIntegral, 7)
	require.True(t, e.Available, e.Err)
	assert.Greater(t, e.Value, 76.0)
	assert.Less(t, e.Value, 77.0)
	assert.Equal(t, tolerance.Fail, e.Outcome)
	assert.Equal(t, ">90.0", e.Rule.String())
}

func TestGhostingScenarioPasses(t *testing.T) {
	ph := testutil.Default()
	ph.BackgroundFunc = func(x, y float64) float64 {
		if math.Abs(y) > ph.Diameter/2+4 {
			return 2.69
		}
		return 0
	}
	p := DefaultParams()
	p.Modules = []Selection{{ID: ghosting.ModuleID, Slices: []int{7}}}
	rep := run(t, p, []models.SliceImage{ph.Render(7)}, nil)

	e := entry(t, rep, ghosting.ModuleID, ghosting.MetricRatio, 7)
	assert.InDelta(t, 0.269, e.Value, 1e-6)
	assert.Equal(t, tolerance.Pass, e.Outcome)
}

func TestThicknessScenarioPasses(t *testing.T) {
	ph := testutil.Default()
	p := DefaultParams()
	p.Modules = []Selection{{ID: slicethickness.ModuleID, Slices: []int{1}}}
	rep := run(t, p, []models.SliceImage{ph.Render(1, ph.Slice1Features(30, 26)...)}, nil)

	e := entry(t, rep, slicethickness.ModuleID, slicethickness.MetricThickness, 1)
	assert.InDelta(t, 5.09, e.Value, 0.02)
	assert.Equal(t, tolerance.Pass, e.Outcome)
}

func TestPairedSNR(t *testing.T) {
	ph := testutil.Default()
	ph.Noise = 10
	ph.Seed = 1
	a := ph.Render(7)
	ph.Seed = 2
	b := ph.Render(7)

	p := DefaultParams()
	p.Modules = []Selection{{ID: snr.ModuleID, Slices: []int{7}}}
	rep := run(t, p, []models.SliceImage{a}, []models.SliceImage{b})

	e := entry(t, rep, snr.ModuleID, snr.MetricSNR, 7)
	require.True(t, e.Available, e.Err)
	assert.InDelta(t, 100, e.Value, 10)
}

func TestInvalidConfigurationFailsFast(t *testing.T) {
	p := DefaultParams()
	p.Tolerances = tolerance.Set{"ghosting.ghosting_ratio": tolerance.Within(6, 4)}
	_, err := NewRunner(p)
	assert.True(t, errors.Is(err, tolerance.ErrInvalidRule))

	p = DefaultParams()
	p.Modules = append(p.Modules, Selection{ID: "distortion", Slices: []int{1}})
	_, err = NewRunner(p)
	assert.ErrorContains(t, err, "distortion")

	p = DefaultParams()
	p.Workers = 0
	_, err = NewRunner(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.Modules[0].Slices = []int{0}
	_, err = NewRunner(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.Modules = []Selection{{ID: uniformity.ModuleID, Slices: []int{7, 7}}}
	_, err = NewRunner(p)
	assert.ErrorContains(t, err, "slice 7 listed twice")
}

func TestDuplicateSliceNumbersRejected(t *testing.T) {
	r, err := NewRunner(DefaultParams())
	require.NoError(t, err)
	series := noisySeries()

	dup := append(append([]models.SliceImage{}, series...), series[6])
	_, err = r.Run(context.Background(), dup, nil)
	assert.True(t, errors.Is(err, ErrDuplicateSlice))

	_, err = r.Run(context.Background(), series, []models.SliceImage{series[6], series[6]})
	assert.True(t, errors.Is(err, ErrDuplicateSlice))
}

func TestEachMetricReportedOnce(t *testing.T) {
	rep := run(t, DefaultParams(), noisySeries(), nil)
	seen := make(map[string]bool)
	for _, sec := range rep.Sections {
		for _, e := range sec.Entries {
			key := fmt.Sprintf("%s.%s/%d", sec.Module, e.Metric, e.Slice)
			assert.False(t, seen[key], key)
			seen[key] = true
		}
	}
}

func TestHoleScoresWithoutInsertUnavailable(t *testing.T) {
	p := DefaultParams()
	p.Modules = []Selection{{ID: "spatial_resolution", Slices: []int{3}}}
	rep := run(t, p, noisySeries(), nil)

	sec, ok := rep.Section("spatial_resolution")
	require.True(t, ok)
	require.Len(t, sec.Entries, 6)
	for _, e := range sec.Entries[:4] {
		assert.False(t, e.Available, e.Metric)
		assert.Equal(t, "feature", e.Failure, e.Metric)
		assert.Zero(t, e.Value)
	}
}

func TestCancelledRun(t *testing.T) {
	r, err := NewRunner(DefaultParams())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx, noisySeries(), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunRecordsMetrics(t *testing.T) {
	rec := metrics.New()
	p := DefaultParams()
	p.Modules = []Selection{{ID: ghosting.ModuleID, Slices: []int{7, 12}}}
	r, err := NewRunner(p, WithMetrics(rec))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), noisySeries(), nil)
	require.NoError(t, err)

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["phantomqa_outcomes_total"])
	assert.True(t, names["phantomqa_unavailable_total"])
	assert.True(t, names["phantomqa_task_duration_seconds"])
}
