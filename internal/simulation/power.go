package simulation

import (
	"fmt"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"

	"github.com/montanaflynn/stats"
)

// DefaultAlpha is the conventional significance threshold
const DefaultAlpha = 0.05

// PowerTable computes, for each coefficient, the fraction of replicates with
// p < alpha. names labels the rows; nil names yields Eff1, Eff2, ...
// The comparison is strict, so at alpha = 1 a replicate with p exactly 1
// does not count as a rejection.
func PowerTable(rs *sim.ResultSet, names []string, alpha float64) (sim.PowerTable, error) {
	if rs == nil || rs.Len() == 0 {
		return nil, core.NewInvalidArgumentError("result_set", "must contain at least one replicate")
	}
	if alpha < 0 || alpha > 1 {
		return nil, core.NewInvalidArgumentError("alpha", fmt.Sprintf("must be in [0,1], got %g", alpha))
	}
	k := rs.NumCoef()
	if names == nil {
		names = make([]string, k)
		for j := range names {
			names[j] = fmt.Sprintf("Eff%d", j+1)
		}
	}
	if len(names) != k {
		return nil, core.NewDimensionError("names", len(names), k)
	}

	table := make(sim.PowerTable, k)
	for j := 0; j < k; j++ {
		p := rs.Series(sim.FieldP, j)
		hits := make(stats.Float64Data, len(p))
		for i, v := range p {
			if v < alpha {
				hits[i] = 1
			}
		}
		power, err := hits.Mean()
		if err != nil {
			return nil, fmt.Errorf("power for %s: %w", names[j], err)
		}
		table[j] = sim.PowerRow{Effect: names[j], Power: power}
	}
	return table, nil
}

// CoefSummary describes the sampling distribution of one coefficient's
// estimates across replicates
type CoefSummary struct {
	Effect string  `json:"effect"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	Lower  float64 `json:"lower"` // 2.5th percentile
	Upper  float64 `json:"upper"` // 97.5th percentile
	MeanSE float64 `json:"mean_se"`
}

// Summarize reports mean, SD and a central 95% interval of the beta draws
// and the average standard error, per coefficient
func Summarize(rs *sim.ResultSet) ([]CoefSummary, error) {
	if rs == nil || rs.Len() == 0 {
		return nil, core.NewInvalidArgumentError("result_set", "must contain at least one replicate")
	}
	names := rs.Names()
	out := make([]CoefSummary, rs.NumCoef())
	for j := range out {
		beta := stats.Float64Data(rs.Series(sim.FieldBeta, j))
		se := stats.Float64Data(rs.Series(sim.FieldSE, j))

		s := CoefSummary{Effect: names[j]}
		var err error
		if s.Mean, err = beta.Mean(); err != nil {
			return nil, err
		}
		if beta.Len() > 1 {
			if s.SD, err = beta.StandardDeviationSample(); err != nil {
				return nil, err
			}
		}
		if s.Lower, err = stats.PercentileNearestRank(beta, 2.5); err != nil {
			return nil, err
		}
		if s.Upper, err = stats.PercentileNearestRank(beta, 97.5); err != nil {
			return nil, err
		}
		if s.MeanSE, err = se.Mean(); err != nil {
			return nil, err
		}
		out[j] = s
	}
	return out, nil
}
