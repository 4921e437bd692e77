// Package testkit provides fixtures shared by package tests: counting RNGs,
// a stub fitted model and a stub fitter.
package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"mixedpower/domain/contrasts"
	"mixedpower/domain/core"
	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
	"mixedpower/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

// CountingRNG is a seeded RNG that records how many values were drawn
type CountingRNG struct {
	r     *rand.Rand
	draws atomic.Int64
}

// NewCountingRNG creates a counting RNG seeded with seed
func NewCountingRNG(seed int64) *CountingRNG {
	return &CountingRNG{r: rand.New(rand.NewSource(seed))}
}

func (c *CountingRNG) Float64() float64 {
	c.draws.Add(1)
	return c.r.Float64()
}

func (c *CountingRNG) NormFloat64() float64 {
	c.draws.Add(1)
	return c.r.NormFloat64()
}

// Draws returns the number of values drawn so far
func (c *CountingRNG) Draws() int64 {
	return c.draws.Load()
}

// StubModel is a FittedModel whose "fit" is a per-coefficient sample mean:
// Simulate draws Obs normal values around each beta with SD sigma, Refit
// estimates each coefficient by the mean of its draws.
type StubModel struct {
	Names  []string
	Obs    int
	beta   []float64
	sigma  float64
	theta  []float64
	y      [][]float64
	table  []sim.CoefRow
	faults *Faults
}

// Faults injects failures on the Nth refit across a model and all its clones
type Faults struct {
	FailOnRefit  int64
	PanicOnRefit int64
	refits       atomic.Int64
}

// Refits returns how many refits ran across a model family
func (f *Faults) Refits() int64 {
	return f.refits.Load()
}

// NewStubModel creates a stub with the given coefficient values
func NewStubModel(names []string, beta []float64, sigma float64, theta []float64) *StubModel {
	m := &StubModel{
		Names:  append([]string(nil), names...),
		Obs:    8,
		beta:   append([]float64(nil), beta...),
		sigma:  sigma,
		theta:  append([]float64(nil), theta...),
		faults: &Faults{},
	}
	m.table = m.tableFor(m.beta, sigma/math.Sqrt(float64(m.Obs)))
	return m
}

// WithFaults installs failure injection shared by all clones
func (m *StubModel) WithFaults(f *Faults) *StubModel {
	m.faults = f
	return m
}

func (m *StubModel) CoefNames() []string { return append([]string(nil), m.Names...) }
func (m *StubModel) Beta() []float64     { return append([]float64(nil), m.beta...) }
func (m *StubModel) Sigma() float64      { return m.sigma }
func (m *StubModel) Theta() []float64    { return append([]float64(nil), m.theta...) }

func (m *StubModel) CoefTable() []sim.CoefRow {
	return append([]sim.CoefRow(nil), m.table...)
}

func (m *StubModel) Simulate(rng ports.RNG, p sim.Resolved) error {
	if len(p.Beta) != len(m.beta) || len(p.Theta) != len(m.theta) {
		return fmt.Errorf("stub: parameter dimension mismatch")
	}
	m.y = make([][]float64, len(p.Beta))
	for k, b := range p.Beta {
		m.y[k] = make([]float64, m.Obs)
		for i := range m.y[k] {
			m.y[k][i] = b + p.Sigma*rng.NormFloat64()
		}
	}
	return nil
}

func (m *StubModel) Refit() error {
	n := m.faults.refits.Add(1)
	if m.faults.PanicOnRefit > 0 && n == m.faults.PanicOnRefit {
		panic("stub: injected panic")
	}
	if m.faults.FailOnRefit > 0 && n == m.faults.FailOnRefit {
		return core.NewFitFailureError("stub: injected failure", nil)
	}
	if m.y == nil {
		return fmt.Errorf("stub: refit before simulate")
	}
	est := make([]float64, len(m.y))
	ss := 0.0
	for k, ys := range m.y {
		for _, v := range ys {
			est[k] += v
		}
		est[k] /= float64(len(ys))
		for _, v := range ys {
			ss += (v - est[k]) * (v - est[k])
		}
	}
	m.sigma = math.Sqrt(ss / float64(len(m.y)*(m.Obs-1)))
	m.beta = est
	m.table = m.tableFor(est, m.sigma/math.Sqrt(float64(m.Obs)))
	return nil
}

func (m *StubModel) Clone() ports.FittedModel {
	c := *m
	c.Names = append([]string(nil), m.Names...)
	c.beta = append([]float64(nil), m.beta...)
	c.theta = append([]float64(nil), m.theta...)
	c.table = append([]sim.CoefRow(nil), m.table...)
	c.y = nil
	return &c
}

func (m *StubModel) tableFor(est []float64, se float64) []sim.CoefRow {
	rows := make([]sim.CoefRow, len(est))
	for k, b := range est {
		z := b / se
		rows[k] = sim.CoefRow{
			Name:     m.Names[k],
			Estimate: b,
			SE:       se,
			Z:        z,
			P:        2 * distuv.UnitNormal.Survival(math.Abs(z)),
		}
	}
	return rows
}

// StubFitter returns StubModels sized to the formula's coefficient names.
// FailFor makes Fit fail for frames with that many rows.
type StubFitter struct {
	Names   []string
	Beta    []float64
	Sigma   float64
	Theta   []float64
	FailFor map[int]bool
	Calls   int
}

func (f *StubFitter) Fit(ctx context.Context, formula string, data *dataset.Frame, codings contrasts.Map) (ports.FittedModel, error) {
	f.Calls++
	if f.FailFor[data.Rows()] {
		return nil, core.NewFitFailureError(fmt.Sprintf("stub: no convergence for %d rows", data.Rows()), nil)
	}
	return NewStubModel(f.Names, f.Beta, f.Sigma, f.Theta), nil
}
