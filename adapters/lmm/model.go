package lmm

import (
	"fmt"
	"math"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"
	"mixedpower/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model is a linear mixed model with scalar random intercepts,
//
//	y = Xβ + Zb + ε,  b ~ N(0, σ²ΛΛ'),  ε ~ N(0, σ²I)
//
// where Λ is diagonal with entry θ_k for every level of grouping factor k.
// Parameters are maximum-likelihood estimates.
type Model struct {
	d        *design
	settings Settings

	y     []float64
	beta  []float64
	se    []float64
	sigma float64
	theta []float64
	dev   float64
	evals int
}

var _ ports.FittedModel = (*Model)(nil)

// profiled is the result of profiling β and σ out of the likelihood at a
// fixed θ
type profiled struct {
	deviance float64
	beta     []float64
	sigma    float64
	se       []float64
}

// profile solves the penalised least-squares problem at θ. With
// A = ΛZ'ZΛ + I the fixed effects solve
//
//	(X'X - X'ZΛ A⁻¹ ΛZ'X) β = X'y - X'ZΛ A⁻¹ ΛZ'y
//
// and the ML deviance is log|A| + n(1 + log(2π r²/n)), r² the penalised RSS.
func (d *design) profile(theta []float64, xty, zty *mat.VecDense, yty float64, wantSE bool) (profiled, error) {
	m := mat.NewSymDense(d.p, nil)
	m.CopySym(d.xtx)
	v := mat.NewVecDense(d.p, nil)
	v.CopyVec(xty)

	var (
		logdet float64
		lzx    *mat.Dense
		lzy    *mat.VecDense
		wx     mat.Dense
		wy     mat.VecDense
	)
	if d.q > 0 {
		lam := make([]float64, d.q)
		for j := range lam {
			lam[j] = math.Abs(theta[d.termOf[j]])
		}

		a := mat.NewSymDense(d.q, nil)
		for i := 0; i < d.q; i++ {
			for j := i; j < d.q; j++ {
				val := lam[i] * d.ztz.At(i, j) * lam[j]
				if i == j {
					val++
				}
				a.SetSym(i, j, val)
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(a); !ok {
			return profiled{}, fmt.Errorf("random-effects system is not positive definite")
		}
		logdet = chol.LogDet()

		lzx = mat.NewDense(d.q, d.p, nil)
		lzy = mat.NewVecDense(d.q, nil)
		for i := 0; i < d.q; i++ {
			for c := 0; c < d.p; c++ {
				lzx.Set(i, c, lam[i]*d.ztx.At(i, c))
			}
			lzy.SetVec(i, lam[i]*zty.AtVec(i))
		}
		if err := chol.SolveTo(&wx, lzx); err != nil {
			return profiled{}, err
		}
		if err := chol.SolveVecTo(&wy, lzy); err != nil {
			return profiled{}, err
		}

		var corr mat.Dense
		corr.Mul(lzx.T(), &wx)
		for i := 0; i < d.p; i++ {
			for j := i; j < d.p; j++ {
				m.SetSym(i, j, d.xtx.At(i, j)-0.5*(corr.At(i, j)+corr.At(j, i)))
			}
		}
		var cv mat.VecDense
		cv.MulVec(lzx.T(), &wy)
		v.SubVec(v, &cv)
	}

	var cm mat.Cholesky
	if ok := cm.Factorize(m); !ok {
		return profiled{}, fmt.Errorf("fixed-effects design is rank deficient")
	}
	var beta mat.VecDense
	if err := cm.SolveVecTo(&beta, v); err != nil {
		return profiled{}, err
	}

	r2 := yty - mat.Dot(&beta, xty)
	if d.q > 0 {
		var u mat.VecDense
		u.MulVec(&wx, &beta)
		u.SubVec(&wy, &u)
		r2 -= mat.Dot(&u, lzy)
	}
	if !(r2 > 0) || math.IsInf(r2, 0) {
		return profiled{}, fmt.Errorf("degenerate residual variance (penalised RSS %g)", r2)
	}

	n := float64(d.n)
	out := profiled{
		deviance: logdet + n*(1+math.Log(2*math.Pi*r2/n)),
		beta:     append([]float64(nil), beta.RawVector().Data...),
		sigma:    math.Sqrt(r2 / n),
	}
	if wantSE {
		var inv mat.SymDense
		if err := cm.InverseTo(&inv); err != nil {
			return profiled{}, err
		}
		out.se = make([]float64, d.p)
		for k := range out.se {
			out.se[k] = out.sigma * math.Sqrt(inv.At(k, k))
		}
	}
	return out, nil
}

// fit estimates θ by minimising the profiled deviance, always starting
// from settings.InitialTheta so a refit never depends on earlier fits
func (m *Model) fit() error {
	xty, zty, yty := m.d.responseProducts(m.y)
	k := len(m.d.groups)
	theta := make([]float64, k)
	evals := 0

	if k > 0 {
		init := make([]float64, k)
		for i := range init {
			init[i] = m.settings.InitialTheta
		}
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				pr, err := m.d.profile(x, xty, zty, yty, false)
				if err != nil {
					return math.Inf(1)
				}
				return pr.deviance
			},
		}
		settings := &optimize.Settings{
			FuncEvaluations: m.settings.MaxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   m.settings.Tolerance,
				Relative:   m.settings.Tolerance,
				Iterations: m.settings.StallIterations,
			},
		}
		result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
		if err != nil {
			return core.NewFitFailureError("theta optimisation failed", err)
		}
		switch result.Status {
		case optimize.FunctionEvaluationLimit, optimize.IterationLimit, optimize.RuntimeLimit, optimize.Failure:
			return core.NewFitFailureError(fmt.Sprintf("theta optimisation did not converge (%v after %d evaluations)", result.Status, result.Stats.FuncEvaluations), nil)
		}
		for i, x := range result.X {
			theta[i] = math.Abs(x)
		}
		evals = result.Stats.FuncEvaluations
	}

	pr, err := m.d.profile(theta, xty, zty, yty, true)
	if err != nil {
		return core.NewFitFailureError("final profile", err)
	}
	for k, se := range pr.se {
		if !(se > 0) || math.IsInf(se, 0) {
			return core.NewFitFailureError(fmt.Sprintf("standard error of %s is %g", m.d.names[k], se), nil)
		}
	}

	m.beta, m.se, m.sigma, m.theta, m.dev, m.evals = pr.beta, pr.se, pr.sigma, theta, pr.deviance, evals
	return nil
}

func (m *Model) CoefNames() []string { return append([]string(nil), m.d.names...) }
func (m *Model) Beta() []float64     { return append([]float64(nil), m.beta...) }
func (m *Model) Sigma() float64      { return m.sigma }
func (m *Model) Theta() []float64    { return append([]float64(nil), m.theta...) }

// Deviance is -2 log-likelihood at the estimates
func (m *Model) Deviance() float64 { return m.dev }

// Evaluations is the number of deviance evaluations used by the last fit
func (m *Model) Evaluations() int { return m.evals }

// NumObs is the number of observations
func (m *Model) NumObs() int { return m.d.n }

// Groups returns the grouping factor names with their level counts
func (m *Model) Groups() map[string]int {
	out := make(map[string]int, len(m.d.groups))
	for _, g := range m.d.groups {
		out[g.name] = len(g.levels)
	}
	return out
}

// Formula returns the canonical form of the fitted formula
func (m *Model) Formula() string { return m.d.formula.String() }

// Response returns a copy of the current response vector
func (m *Model) Response() []float64 { return append([]float64(nil), m.y...) }

// CoefTable reports Wald z tests against a standard normal reference
func (m *Model) CoefTable() []sim.CoefRow {
	rows := make([]sim.CoefRow, m.d.p)
	for k := range rows {
		z := m.beta[k] / m.se[k]
		rows[k] = sim.CoefRow{
			Name:     m.d.names[k],
			Estimate: m.beta[k],
			SE:       m.se[k],
			Z:        z,
			P:        2 * distuv.UnitNormal.Survival(math.Abs(z)),
		}
	}
	return rows
}

// Simulate draws y = Xβ + σ(ZΛu + ε). Draw order is one N(0,1) per level
// of each grouping factor (factors in formula order, levels sorted), then
// one per observation.
func (m *Model) Simulate(rng ports.RNG, p sim.Resolved) error {
	if len(p.Beta) != m.d.p {
		return core.NewDimensionError("beta", len(p.Beta), m.d.p)
	}
	if len(p.Theta) != len(m.d.groups) {
		return core.NewDimensionError("theta", len(p.Theta), len(m.d.groups))
	}

	effects := make([][]float64, len(m.d.groups))
	for k, g := range m.d.groups {
		effects[k] = make([]float64, len(g.levels))
		for l := range effects[k] {
			effects[k][l] = p.Theta[k] * rng.NormFloat64()
		}
	}

	y := make([]float64, m.d.n)
	mu := mat.NewVecDense(m.d.n, y)
	mu.MulVec(m.d.x, mat.NewVecDense(m.d.p, append([]float64(nil), p.Beta...)))
	for i := range y {
		noise := rng.NormFloat64()
		for k, g := range m.d.groups {
			noise += effects[k][g.index[i]]
		}
		y[i] += p.Sigma * noise
	}
	m.y = y
	return nil
}

// Refit re-estimates all parameters from the current response
func (m *Model) Refit() error {
	return m.fit()
}

// Clone shares the immutable design and copies everything else
func (m *Model) Clone() ports.FittedModel {
	c := *m
	c.y = append([]float64(nil), m.y...)
	c.beta = append([]float64(nil), m.beta...)
	c.se = append([]float64(nil), m.se...)
	c.theta = append([]float64(nil), m.theta...)
	return &c
}
