package slicethickness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/internal/testutil"
	"phantomqa/pkg/localization"
	"phantomqa/pkg/tolerance"
)

func measure(t *testing.T, img models.SliceImage) (Result, error) {
	t.Helper()
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)
	return Measure(img, geo, DefaultParams())
}

func TestSliceThickness(t *testing.T) {
	ph := testutil.Default()
	res, err := measure(t, ph.Render(1, ph.Slice1Features(30, 26)...))
	require.NoError(t, err)

	assert.InDelta(t, testutil.RampLength, res.Top, 0.1)
	assert.InDelta(t, testutil.RampLength, res.Bottom, 0.1)
	assert.InDelta(t, 5.09, res.Thickness, 0.02)

	outcome, err := tolerance.Evaluate(res.Thickness, tolerance.Within(4, 6))
	require.NoError(t, err)
	assert.Equal(t, tolerance.Pass, outcome)
}

func TestUnequalRamps(t *testing.T) {
	ph := testutil.Default()
	img := ph.Render(1,
		testutil.Insert(-testutil.InsertHalfWidth, -testutil.InsertHalfHeight, testutil.InsertHalfWidth, testutil.InsertHalfHeight, testutil.InsertLevel, 0, ph.EdgeBlur),
		testutil.HorizontalBar(-20, 20, -4, -2, ph.Signal, ph.EdgeBlur),
		testutil.HorizontalBar(-25, 25, 2, 4, ph.Signal, ph.EdgeBlur),
	)
	res, err := measure(t, img)
	require.NoError(t, err)

	assert.InDelta(t, 40, res.Top, 0.1)
	assert.InDelta(t, 50, res.Bottom, 0.1)
	assert.InDelta(t, 0.2*40*50/90.0, res.Thickness, 0.02)
}

func TestMissingRamps(t *testing.T) {
	_, err := measure(t, testutil.Default().Render(1))
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))

	ph := testutil.Default()
	img := ph.Render(1,
		testutil.Insert(-testutil.InsertHalfWidth, -testutil.InsertHalfHeight, testutil.InsertHalfWidth, testutil.InsertHalfHeight, testutil.InsertLevel, 0, ph.EdgeBlur),
		testutil.HorizontalBar(-20, 20, -4, -2, ph.Signal, ph.EdgeBlur),
	)
	_, err = measure(t, img)
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	p := DefaultParams()
	p.BaselineFraction = 0.5
	assert.Error(t, p.Validate())
}
