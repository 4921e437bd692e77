package simulation

import (
	"math"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// minDiagnosticReplicates is the fewest replicates the shape statistics
// are computed for
const minDiagnosticReplicates = 4

// CoefDiagnostics checks whether the Wald approximation behind a power
// estimate is trustworthy for one coefficient: the beta draws should look
// normal and their spread should match the average reported SE.
type CoefDiagnostics struct {
	Effect string `json:"effect"`
	// Skewness is the bias-corrected sample skewness of the beta draws
	Skewness float64 `json:"skewness"`
	// Kurtosis is the bias-corrected sample kurtosis (3 for a normal)
	Kurtosis float64 `json:"kurtosis"`
	// JarqueBera and NormalityP test the draws for normality
	JarqueBera float64 `json:"jarque_bera"`
	NormalityP float64 `json:"normality_p"`
	// SECalibration is SD(beta) / mean(SE); near 1 when SEs are right
	SECalibration float64 `json:"se_calibration"`
	// Outliers counts draws outside 1.5 IQR of the quartiles
	Outliers int `json:"outliers"`
}

// Diagnose computes CoefDiagnostics per coefficient. Result sets with
// fewer than four replicates are rejected.
func Diagnose(rs *sim.ResultSet) ([]CoefDiagnostics, error) {
	if rs == nil || rs.Len() < minDiagnosticReplicates {
		return nil, core.NewInvalidArgumentError("result_set", "needs at least 4 replicates for diagnostics")
	}
	names := rs.Names()
	out := make([]CoefDiagnostics, rs.NumCoef())
	for j := range out {
		beta := stats.Float64Data(rs.Series(sim.FieldBeta, j))
		se := stats.Float64Data(rs.Series(sim.FieldSE, j))

		d := CoefDiagnostics{Effect: names[j], NormalityP: 1}
		mean, err := beta.Mean()
		if err != nil {
			return nil, err
		}
		sd, err := beta.StandardDeviationSample()
		if err != nil {
			return nil, err
		}
		meanSE, err := se.Mean()
		if err != nil {
			return nil, err
		}
		if meanSE > 0 {
			d.SECalibration = sd / meanSE
		}

		q1, err := beta.Percentile(25)
		if err != nil {
			return nil, err
		}
		q3, err := beta.Percentile(75)
		if err != nil {
			return nil, err
		}
		d.Outliers = countOutliers(beta, q1, q3)

		// constant draws (an effect pinned by the design) have no shape
		if sd > 0 {
			d.Skewness = skewness(beta, mean, sd)
			d.Kurtosis = kurtosis(beta, mean, sd)
			d.JarqueBera, d.NormalityP = jarqueBera(beta.Len(), d.Skewness, d.Kurtosis)
		}
		out[j] = d
	}
	return out, nil
}

// skewness is the adjusted Fisher-Pearson coefficient
func skewness(data []float64, mean, sd float64) float64 {
	n := float64(len(data))
	var sum float64
	for _, x := range data {
		d := (x - mean) / sd
		sum += d * d * d
	}
	return sum / n * math.Sqrt(n*(n-1)) / (n - 2)
}

// kurtosis returns bias-corrected total kurtosis, not excess
func kurtosis(data []float64, mean, sd float64) float64 {
	n := float64(len(data))
	var sum float64
	for _, x := range data {
		d := (x - mean) / sd
		sum += d * d * d * d
	}
	excess := (sum/n-3)*(n-1)/((n-2)*(n-3)) + 6/(n+1)
	return excess + 3
}

func jarqueBera(n int, skew, kurt float64) (float64, float64) {
	jb := float64(n) / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	return jb, distuv.ChiSquared{K: 2}.Survival(jb)
}

func countOutliers(data []float64, q1, q3 float64) int {
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	n := 0
	for _, x := range data {
		if x < lo || x > hi {
			n++
		}
	}
	return n
}
