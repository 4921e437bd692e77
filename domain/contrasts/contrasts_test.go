package contrasts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyCoding(t *testing.T) {
	enc, err := DummyCoding{}.Encode([]string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, enc.Labels)
	assert.Equal(t, [][]float64{{0, 0}, {1, 0}, {0, 1}}, enc.Matrix)
}

func TestEffectsCodingSumsToZero(t *testing.T) {
	enc, err := EffectsCoding{}.Encode([]string{"O", "Y"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Y"}, enc.Labels)
	row, ok := enc.Row("O")
	require.True(t, ok)
	assert.Equal(t, []float64{-1}, row)
	row, _ = enc.Row("Y")
	assert.Equal(t, []float64{1}, row)

	enc, err = EffectsCoding{Base: "C"}.Encode([]string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, enc.Labels)
	for j := range enc.Labels {
		sum := 0.0
		for i := range enc.Levels {
			sum += enc.Matrix[i][j]
		}
		assert.Zero(t, sum)
	}
}

func TestHelmertCoding(t *testing.T) {
	enc, err := HelmertCoding{}.Encode([]string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, enc.Labels)
	assert.Equal(t, [][]float64{{-1, -1}, {1, -1}, {0, 2}}, enc.Matrix)

	two, err := HelmertCoding{}.Encode([]string{"O", "Y"})
	require.NoError(t, err)
	eff, _ := EffectsCoding{}.Encode([]string{"O", "Y"})
	assert.Equal(t, eff.Matrix, two.Matrix)
}

func TestEncodeRejectsSingleLevel(t *testing.T) {
	_, err := DummyCoding{}.Encode([]string{"A"})
	assert.Error(t, err)
	_, err = HelmertCoding{}.Encode([]string{"A"})
	assert.Error(t, err)
	_, err = EffectsCoding{Base: "Z"}.Encode([]string{"A", "B"})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	m, err := ParseMap(map[string]string{"age": "helmert", "cond": "effects:B", "grp": "dummy"})
	require.NoError(t, err)

	assert.Equal(t, HelmertCoding{}, m.For("age"))
	assert.Equal(t, EffectsCoding{Base: "B"}, m.For("cond"))
	assert.Equal(t, DummyCoding{}, m.For("grp"))
	assert.Equal(t, DummyCoding{}, m.For("unlisted"))

	_, err = Parse("polynomial")
	assert.Error(t, err)
	_, err = Parse("helmert:A")
	assert.Error(t, err)
}
