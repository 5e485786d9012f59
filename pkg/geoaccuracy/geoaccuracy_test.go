package geoaccuracy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/internal/testutil"
	"phantomqa/pkg/localization"
)

func TestReproducesKnownDiameter(t *testing.T) {
	ph := testutil.Default()
	ph.Diameter = 164.07
	img := ph.Render(1)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	for _, dir := range []Direction{Horizontal, Vertical} {
		d, err := Measure(img, geo, dir, DefaultParams())
		require.NoError(t, err, dir.Metric)
		assert.InDelta(t, 164.07, d, 0.1, dir.Metric)
	}
	for _, dir := range []Direction{DiagonalSW, DiagonalSE} {
		d, err := Measure(img, geo, dir, DefaultParams())
		require.NoError(t, err, dir.Metric)
		assert.InDelta(t, 164.07, d, 0.2, dir.Metric)
	}
}

func TestInsertsDoNotBiasEdges(t *testing.T) {
	ph := testutil.Default()
	ph.Spacing = 0.9375
	ph.Size = 256
	img := ph.Render(1, ph.Slice1Features(30, 26)...)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	h, err := Measure(img, geo, Horizontal, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 165, h, 0.15)

	v, err := Measure(img, geo, Vertical, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 165, v, 0.15)
}

func TestPhantomAtImageEdge(t *testing.T) {
	ph := testutil.Default()
	ph.Size = 160
	img := ph.Render(1)
	geo := models.PhantomGeometry{Center: models.Point{X: 80, Y: 80}, Radius: 82.5, Scale: 1}

	_, err := Measure(img, geo, Horizontal, DefaultParams())
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))
}

func TestFlatProfile(t *testing.T) {
	px := make([]float64, 100*100)
	for i := range px {
		px[i] = 500
	}
	img, err := models.NewSliceImage(px, 100, 100, models.Spacing{X: 1, Y: 1}, 1)
	require.NoError(t, err)
	geo := models.PhantomGeometry{Center: models.Point{X: 50, Y: 50}, Radius: 30, Scale: 1}

	_, err = Measure(img, geo, Vertical, DefaultParams())
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))
}
