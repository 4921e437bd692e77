// Package lmm is a reference linear-mixed-model fitter with scalar random
// intercepts, estimated by maximum likelihood.
package lmm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mixedpower/domain/contrasts"
	"mixedpower/domain/core"
	"mixedpower/domain/dataset"
	"mixedpower/internal"
	"mixedpower/ports"
)

// Settings controls the θ optimiser
type Settings struct {
	// MaxEvaluations caps deviance evaluations per fit; hitting it is a
	// fit failure
	MaxEvaluations int
	// Tolerance is the absolute and relative deviance change treated as
	// no progress
	Tolerance float64
	// StallIterations is how many iterations without progress count as
	// convergence
	StallIterations int
	// InitialTheta is the starting value of every relative SD
	InitialTheta float64
}

// DefaultSettings returns the settings used by NewFitter
func DefaultSettings() Settings {
	return Settings{
		MaxEvaluations:  4000,
		Tolerance:       1e-8,
		StallIterations: 50,
		InitialTheta:    1,
	}
}

// Fitter implements ports.Fitter
type Fitter struct {
	settings Settings
	logger   *internal.Logger
}

var _ ports.Fitter = (*Fitter)(nil)

// NewFitter creates a fitter with default settings
func NewFitter(logger *internal.Logger) *Fitter {
	return NewFitterWithSettings(DefaultSettings(), logger)
}

// NewFitterWithSettings creates a fitter; zero fields fall back to defaults
func NewFitterWithSettings(s Settings, logger *internal.Logger) *Fitter {
	def := DefaultSettings()
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = def.MaxEvaluations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = def.Tolerance
	}
	if s.StallIterations <= 0 {
		s.StallIterations = def.StallIterations
	}
	if s.InitialTheta <= 0 {
		s.InitialTheta = def.InitialTheta
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Fitter{settings: s, logger: logger.With("LMMFitter")}
}

// Fit parses formula, builds the model matrices from data and estimates the
// model. Malformed formulas and missing or mistyped columns are invalid
// arguments; everything that goes wrong during estimation is a fit failure.
func (f *Fitter) Fit(ctx context.Context, formula string, data *dataset.Frame, codings contrasts.Map) (ports.FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, core.NewInvalidArgumentError("data", "must not be nil")
	}

	parsed, err := ParseFormula(formula)
	if err != nil {
		return nil, core.NewInvalidArgumentError("formula", err.Error())
	}
	for name := range codings {
		if _, ok := data.Column(name); !ok {
			return nil, core.NewInvalidArgumentError("contrasts", fmt.Sprintf("no column named %q", name))
		}
	}

	d, y, err := buildDesign(parsed, data, codings)
	if err != nil {
		if errors.Is(err, errUnidentified) {
			return nil, core.NewFitFailureError("design", err)
		}
		return nil, core.NewInvalidArgumentError("data", err.Error())
	}

	m := &Model{d: d, settings: f.settings, y: y}
	start := time.Now()
	if err := m.fit(); err != nil {
		f.logger.Warn("fit of %q failed: %v", parsed, err)
		return nil, err
	}
	f.logger.Debug("fitted %q: n=%d p=%d groups=%v deviance=%.4f in %v (%d evaluations)",
		parsed, d.n, d.p, m.Groups(), m.dev, time.Since(start), m.evals)
	return m, nil
}
