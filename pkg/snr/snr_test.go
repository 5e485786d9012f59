package snr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/internal/testutil"
	"phantomqa/pkg/localization"
)

func noisy(t *testing.T, seed int64, magnitude bool) (models.SliceImage, models.PhantomGeometry) {
	t.Helper()
	ph := testutil.Default()
	ph.Noise = 10
	ph.Seed = seed
	ph.Magnitude = magnitude
	img := ph.Render(7)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)
	return img, geo
}

func TestSmoothing(t *testing.T) {
	img, geo := noisy(t, 1, false)
	res, err := Measure(img, geo, nil, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, MethodSmoothing, res.Method)
	assert.InDelta(t, 1000, res.Signal, 2)
	assert.InDelta(t, 100, res.SNR, 10)
}

func TestSubtraction(t *testing.T) {
	a, geo := noisy(t, 1, false)
	b, _ := noisy(t, 2, false)

	// a pair always switches to subtraction
	p := DefaultParams()
	p.Method = MethodBackground
	res, err := Measure(a, geo, &b, p)
	require.NoError(t, err)
	assert.Equal(t, MethodSubtraction, res.Method)
	assert.InDelta(t, 10, res.Noise, 1)
	assert.InDelta(t, 100, res.SNR, 10)
}

func TestBackground(t *testing.T) {
	img, geo := noisy(t, 3, true)
	p := DefaultParams()
	p.Method = MethodBackground
	res, err := Measure(img, geo, nil, p)
	require.NoError(t, err)
	assert.InDelta(t, 100, res.SNR, 10)
}

func TestNoiselessSliceFails(t *testing.T) {
	img := testutil.Default().Render(7)
	geo, err := localization.Locate(img, localization.DefaultParams())
	require.NoError(t, err)

	for _, m := range []Method{MethodSmoothing, MethodBackground} {
		p := DefaultParams()
		p.Method = m
		_, err := Measure(img, geo, nil, p)
		assert.True(t, errors.Is(err, models.ErrFeatureNotFound), m)
	}

	// an identical repeat leaves no difference to measure
	_, err = Measure(img, geo, &img, DefaultParams())
	assert.True(t, errors.Is(err, models.ErrFeatureNotFound))

	p := DefaultParams()
	p.Method = MethodSubtraction
	_, err = Measure(img, geo, nil, p)
	assert.True(t, errors.Is(err, models.ErrSliceMissing))
}

func TestPairSizeMismatch(t *testing.T) {
	a, geo := noisy(t, 1, false)
	ph := testutil.Default()
	ph.Size = 200
	b := ph.Render(7)
	_, err := Measure(a, geo, &b, DefaultParams())
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.SmoothingKernel = 4
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.Method = "magic"
	assert.Error(t, p.Validate())
}
