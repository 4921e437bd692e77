package ports

import (
	"context"

	"mixedpower/domain/contrasts"
	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
)

// Fitter fits a mixed-effects model to a dataset
type Fitter interface {
	// Fit returns a fitted model or an error wrapping core.ErrFitFailure
	// when the optimizer does not converge. Fit never retries.
	Fit(ctx context.Context, formula string, data *dataset.Frame, codings contrasts.Map) (FittedModel, error)
}

// FittedModel is a handle on a fitted model. Accessors return copies.
type FittedModel interface {
	CoefNames() []string
	Beta() []float64
	Sigma() float64
	Theta() []float64

	// CoefTable returns name/estimate/SE/z/p in canonical coefficient order
	CoefTable() []sim.CoefRow

	// Simulate replaces the response with a draw from the model at p. The
	// formula, design and codings are unchanged.
	Simulate(rng RNG, p sim.Resolved) error

	// Refit re-estimates all parameters against the current response
	Refit() error

	// Clone returns an independent handle that can be simulated and refit
	// without affecting the receiver
	Clone() FittedModel
}
