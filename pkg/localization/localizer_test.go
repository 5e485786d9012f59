package localization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/internal/testutil"
)

func TestLocateCenteredDisc(t *testing.T) {
	ph := testutil.Default()
	img := ph.Render(7)

	geo, err := Locate(img, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 128, geo.Center.X, 0.05)
	assert.InDelta(t, 128, geo.Center.Y, 0.05)
	assert.InDelta(t, 82.5, geo.Radius, 0.1)
	assert.InDelta(t, 1.0, geo.Scale, 0.002)
	assert.Equal(t, 0.0, geo.Rotation)
	assert.Equal(t, 7, geo.Slice)
	assert.Less(t, geo.Residual, 0.1)
}

func TestLocateOffsetWithInserts(t *testing.T) {
	ph := testutil.Default()
	ph.Offset = models.Point{X: 6.5, Y: -4.25}
	img := ph.Render(1, ph.Slice1Features(30, 26)...)

	geo, err := Locate(img, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 134.5, geo.Center.X, 0.1)
	assert.InDelta(t, 123.75, geo.Center.Y, 0.1)
	assert.InDelta(t, 82.5, geo.Radius, 0.15)
}

func TestLocateFinerSpacing(t *testing.T) {
	ph := testutil.Default()
	ph.Spacing = 0.75
	ph.Size = 320
	img := ph.Render(3)

	geo, err := Locate(img, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 110, geo.Radius, 0.15)
	assert.InDelta(t, 1.0, geo.Scale, 0.003)
}

func TestLocateRotation(t *testing.T) {
	tests := []struct {
		name    string
		stretch float64
		tiltDeg float64
	}{
		{"slight stretch", 1.03, 10},
		{"slight stretch, negative tilt", 1.03, -7},
		{"stronger stretch", 1.05, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ph := testutil.Default()
			ph.Stretch = tt.stretch
			ph.Tilt = tt.tiltDeg * math.Pi / 180
			img := ph.Render(1)

			geo, err := Locate(img, DefaultParams())
			require.NoError(t, err)
			assert.InDelta(t, tt.tiltDeg*math.Pi/180, geo.Rotation, 0.5*math.Pi/180)
		})
	}
}

func TestLocateFailures(t *testing.T) {
	params := DefaultParams()

	t.Run("empty slice", func(t *testing.T) {
		ph := testutil.Default()
		ph.Signal = 0
		_, err := Locate(ph.Render(1), params)
		assert.True(t, errors.Is(err, models.ErrLocalization))
	})

	t.Run("wrong size phantom", func(t *testing.T) {
		ph := testutil.Default()
		ph.Diameter = 40
		_, err := Locate(ph.Render(1), params)
		assert.True(t, errors.Is(err, models.ErrLocalization))
	})

	t.Run("low contrast", func(t *testing.T) {
		ph := testutil.Default()
		ph.Background = 700
		_, err := Locate(ph.Render(1), params)
		assert.True(t, errors.Is(err, models.ErrLocalization))
	})

	t.Run("square object", func(t *testing.T) {
		px := make([]float64, 256*256)
		for y := 53; y < 203; y++ {
			for x := 53; x < 203; x++ {
				px[y*256+x] = 1000
			}
		}
		img, err := models.NewSliceImage(px, 256, 256, models.Spacing{X: 1, Y: 1}, 4)
		require.NoError(t, err)
		_, err = Locate(img, params)
		assert.True(t, errors.Is(err, models.ErrLocalization))
	})

	t.Run("invalid params", func(t *testing.T) {
		p := params
		p.Rays = 2
		_, err := Locate(testutil.Default().Render(1), p)
		assert.True(t, errors.Is(err, models.ErrLocalization))
	})
}
