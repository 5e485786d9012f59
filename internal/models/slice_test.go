package models

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSliceImage(t *testing.T) {
	s, err := NewSliceImage(make([]float64, 12), 4, 3, Spacing{X: 0.5, Y: 0.5}, 7)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Width)
	assert.Equal(t, 3, s.Height)
	assert.Equal(t, 7, s.Index)

	_, err = NewSliceImage(make([]float64, 11), 4, 3, Spacing{X: 1, Y: 1}, 1)
	assert.Error(t, err)

	_, err = NewSliceImage(make([]float64, 12), 4, 3, Spacing{X: 0, Y: 1}, 1)
	assert.Error(t, err)

	_, err = NewSliceImage(nil, 0, 3, Spacing{X: 1, Y: 1}, 1)
	assert.Error(t, err)
}

func TestGeometryOffset(t *testing.T) {
	g := PhantomGeometry{Center: Point{X: 100, Y: 50}, Scale: 1}
	p := g.Offset(10, -5, Spacing{X: 0.5, Y: 0.5})
	assert.InDelta(t, 120, p.X, 1e-9)
	assert.InDelta(t, 40, p.Y, 1e-9)

	// a quarter turn maps +x onto +y
	g.Rotation = math.Pi / 2
	p = g.Offset(10, 0, Spacing{X: 1, Y: 1})
	assert.InDelta(t, 100, p.X, 1e-9)
	assert.InDelta(t, 60, p.Y, 1e-9)
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "", FailureKind(nil))
	assert.Equal(t, "localization", FailureKind(fmt.Errorf("slice 3: %w", ErrLocalization)))
	assert.Equal(t, "fit", FailureKind(fmt.Errorf("esf: %w", ErrFitNotConverged)))
	assert.Equal(t, "feature", FailureKind(ErrFeatureNotFound))
	assert.Equal(t, "other", FailureKind(errors.New("boom")))
}

func TestObservation(t *testing.T) {
	o := Observed("ghosting", "ghosting_ratio", 7, 0.269, "%")
	assert.True(t, o.Available())
	assert.Equal(t, "ghosting.ghosting_ratio", o.Key())

	u := Unavailable("ghosting", "ghosting_ratio", 7, "%", nil)
	assert.False(t, u.Available())
	assert.Zero(t, u.Value)
}
