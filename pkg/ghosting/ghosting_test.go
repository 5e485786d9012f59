package ghosting

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/internal/testutil"
	"phantomqa/pkg/localization"
	"phantomqa/pkg/tolerance"
)

func TestGhostingRatio(t *testing.T) {
	ph := testutil.Default()
	// a ghost of the phantom along the phase encoding (vertical) direction only
	ph.BackgroundFunc = func(x, y float64) float64 {
		if math.Abs(y) > ph.Diameter/2+4 {
			return 2.69
		}
		return 0
	}
	img := ph.Render(7)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	res, err := Measure(img, geo, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 1000, res.Large, 1e-6)
	assert.InDelta(t, 2.69, res.North, 1e-6)
	assert.InDelta(t, 2.69, res.South, 1e-6)
	assert.InDelta(t, 0, res.West, 1e-6)
	assert.InDelta(t, 0, res.East, 1e-6)
	assert.InDelta(t, 0.269, res.Ratio, 1e-6)

	outcome, err := tolerance.Evaluate(res.Ratio, tolerance.Below(3))
	require.NoError(t, err)
	assert.Equal(t, tolerance.Pass, outcome)
}

func TestEllipseArea(t *testing.T) {
	img := testutil.Default().Render(7)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	rois, err := Ellipses(img, geo, DefaultParams())
	require.NoError(t, err)
	for _, e := range rois {
		assert.InDelta(t, 1000, math.Pi*e.SemiX*e.SemiY, 1e-6)
	}
	// north and south are wide, west and east tall
	assert.Greater(t, rois[0].SemiX, rois[0].SemiY)
	assert.Greater(t, rois[1].SemiX, rois[1].SemiY)
	assert.Greater(t, rois[2].SemiY, rois[2].SemiX)
	assert.Greater(t, rois[3].SemiY, rois[3].SemiX)
}

func TestNarrowFieldOfView(t *testing.T) {
	ph := testutil.Default()
	ph.Size = 200
	img := ph.Render(7)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	rois, err := Ellipses(img, geo, DefaultParams())
	require.NoError(t, err)
	for _, e := range rois {
		assert.Less(t, math.Min(e.SemiX, e.SemiY), 5.0)
		assert.InDelta(t, 1000, math.Pi*e.SemiX*e.SemiY, 1e-6)
	}

	res, err := Measure(img, geo, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Ratio, 1e-4)
}

func TestNoRoomForGhostROI(t *testing.T) {
	ph := testutil.Default()
	ph.Size = 170
	img := ph.Render(7)
	geo := models.PhantomGeometry{Slice: 7, Center: ph.Center(), Radius: ph.Diameter / 2, Scale: 1}

	_, err := Measure(img, geo, DefaultParams())
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))
}

func TestGhostROITooLongForFieldOfView(t *testing.T) {
	ph := testutil.Default()
	ph.Size = 200
	img := ph.Render(7)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	p := DefaultParams()
	p.Area = 6000
	_, err = Ellipses(img, geo, p)
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	p := DefaultParams()
	p.Aspect = 0.5
	assert.Error(t, p.Validate())
}
