package simulation

import (
	"math/rand"
	"testing"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultSetFromBeta(t *testing.T, beta, se []float64) *sim.ResultSet {
	t.Helper()
	reps := make([]sim.ReplicateResult, len(beta))
	for i := range beta {
		reps[i] = sim.ReplicateResult{
			Beta: []float64{beta[i]}, SE: []float64{se[i]}, Z: []float64{beta[i] / se[i]}, P: []float64{0.5},
		}
	}
	rs, err := sim.NewResultSet([]string{"age: Y"}, reps)
	require.NoError(t, err)
	return rs
}

func TestDiagnose_NormalDrawsWithMatchingSE(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	beta := make([]float64, 2000)
	se := make([]float64, len(beta))
	for i := range beta {
		beta[i] = 0.25 + 0.5*rng.NormFloat64()
		se[i] = 0.5
	}

	diag, err := Diagnose(resultSetFromBeta(t, beta, se))
	require.NoError(t, err)
	require.Len(t, diag, 1)

	d := diag[0]
	assert.Equal(t, "age: Y", d.Effect)
	assert.InDelta(t, 0, d.Skewness, 0.2)
	assert.InDelta(t, 3, d.Kurtosis, 0.4)
	assert.InDelta(t, 1, d.SECalibration, 0.1)
	assert.Greater(t, d.NormalityP, 0.001)
}

func TestDiagnose_SkewedDrawsAndOverconfidentSE(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	beta := make([]float64, 2000)
	se := make([]float64, len(beta))
	for i := range beta {
		beta[i] = rng.ExpFloat64()
		se[i] = 0.5
	}

	d, err := Diagnose(resultSetFromBeta(t, beta, se))
	require.NoError(t, err)
	assert.Greater(t, d[0].Skewness, 1.5)
	assert.Less(t, d[0].NormalityP, 1e-6)
	assert.Greater(t, d[0].SECalibration, 1.5)
	assert.Positive(t, d[0].Outliers)
}

func TestDiagnose_ConstantDraws(t *testing.T) {
	beta := []float64{1, 1, 1, 1, 1}
	se := []float64{0.1, 0.1, 0.1, 0.1, 0.1}

	d, err := Diagnose(resultSetFromBeta(t, beta, se))
	require.NoError(t, err)
	assert.Zero(t, d[0].Skewness)
	assert.Zero(t, d[0].SECalibration)
	assert.Equal(t, 1.0, d[0].NormalityP)
	assert.Zero(t, d[0].Outliers)
}

func TestDiagnose_TooFewReplicates(t *testing.T) {
	_, err := Diagnose(resultSetFromBeta(t, []float64{1, 2, 3}, []float64{1, 1, 1}))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = Diagnose(nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
