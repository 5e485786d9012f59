package tolerance

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEvaluateTwoSidedStrict(t *testing.T) {
	rule := Within(163.0, 167.0)
	cases := []struct {
		value float64
		want  Outcome
	}{
		{164.07, Pass},
		{163.0, Fail},
		{167.0, Fail},
		{163.0000001, Pass},
		{162.9, Fail},
		{170, Fail},
	}
	for _, c := range cases {
		got, err := Evaluate(c.value, rule)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "value %v", c.value)
	}
}

func TestEvaluateOneSided(t *testing.T) {
	got, err := Evaluate(76.5, Above(90))
	require.NoError(t, err)
	assert.Equal(t, Fail, got)

	got, err = Evaluate(0.269, Below(3.0))
	require.NoError(t, err)
	assert.Equal(t, Pass, got)

	got, err = Evaluate(3.0, Below(3.0))
	require.NoError(t, err)
	assert.Equal(t, Fail, got)

	got, err = Evaluate(-4.9, Below(5).Magnitude())
	require.NoError(t, err)
	assert.Equal(t, Pass, got)

	got, err = Evaluate(-5.1, Below(5).Magnitude())
	require.NoError(t, err)
	assert.Equal(t, Fail, got)
}

func TestEvaluateNone(t *testing.T) {
	for _, v := range []float64{0, -1e9, 42, 1e-300} {
		got, err := Evaluate(v, NoTolerance())
		require.NoError(t, err)
		assert.Equal(t, NoToleranceSet, got)
	}
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate(1, Within(5, 5))
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Evaluate(1, Within(6, 5))
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Evaluate(1, Below(math.Inf(1)))
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Evaluate(1, Rule{Kind: Kind(9)})
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Evaluate(math.NaN(), Below(3))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidRule))
}

func TestParse(t *testing.T) {
	cases := map[string]Rule{
		">163.0 and <167.0": Within(163, 167),
		"<3.0":              Below(3),
		"> 90":              Above(90),
		"|x|<5":             Below(5).Magnitude(),
		"none":              NoTolerance(),
		"":                  NoTolerance(),
		"x>4 and x<6":       Within(4, 6),
		"|x|>1 and |x|<5":   Within(1, 5).Magnitude(),
	}
	for text, want := range cases {
		got, err := Parse(text)
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}

	for _, bad := range []string{">5 and <4", "=3", "<abc", "<1 and <2", "|x|<5 and >1", "x>1 and |x|<5", ">1 and |x|<5"} {
		_, err := Parse(bad)
		assert.True(t, errors.Is(err, ErrInvalidRule), bad)
	}
}

func TestDescription(t *testing.T) {
	assert.Equal(t, ">163.0 and <167.0", Within(163, 167).Description())
	assert.Equal(t, "<3.0", Below(3).Description())
	assert.Equal(t, ">90.0", Above(90).Description())
	assert.Equal(t, "|x|<5.0", Below(5).Magnitude().Description())
	assert.Equal(t, "No Tolerance Set", NoTolerance().Description())
	assert.Equal(t, "<2.5", Below(2.5).Description())

	for _, r := range []Rule{Within(163, 167), Below(3), Above(4.25), Below(5).Magnitude()} {
		back, err := Parse(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, back)
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "Pass", Pass.String())
	assert.Equal(t, "Fail", Fail.String())
	assert.Equal(t, "No Tolerance Set", NoToleranceSet.String())
}

func TestSet(t *testing.T) {
	s := Set{"ghosting.ghosting_ratio": Below(3)}
	assert.Equal(t, Below(3), s.Lookup("ghosting.ghosting_ratio"))
	assert.Equal(t, NoTolerance(), s.Lookup("snr.snr"))
	assert.NoError(t, s.Validate())

	s["bad.one"] = Within(2, 1)
	s["bad.two"] = Rule{Kind: Kind(7)}
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRule))
	assert.Contains(t, err.Error(), "bad.one")
	assert.Contains(t, err.Error(), "bad.two")

	merged := Set{"a.b": Below(1)}.Merge(Set{"a.b": Below(2), "c.d": Above(0)})
	assert.Equal(t, Below(2), merged["a.b"])
	assert.Len(t, merged, 2)
}

func TestYAML(t *testing.T) {
	doc := `
geometric_accuracy.horizontal_distance: {gt: 163, lt: 167}
slice_position.position_error: {lt: 5, abs: true}
ghosting.ghosting_ratio: "<3.0"
snr.snr: none
`
	var s Set
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	assert.Equal(t, Within(163, 167), s["geometric_accuracy.horizontal_distance"])
	assert.Equal(t, Below(5).Magnitude(), s["slice_position.position_error"])
	assert.Equal(t, Below(3), s["ghosting.ghosting_ratio"])
	assert.Equal(t, NoTolerance(), s["snr.snr"])

	out, err := yaml.Marshal(s)
	require.NoError(t, err)
	var back Set
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, s, back)

	err = yaml.Unmarshal([]byte("x.y: {gt: 5, lt: 4}\n"), &s)
	assert.True(t, errors.Is(err, ErrInvalidRule))
}
