// Package simulation runs parametric-bootstrap Monte Carlo studies over a
// fitted model and aggregates their Wald tests into power estimates.
package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"
	"mixedpower/internal"
	"mixedpower/internal/rng"
	"mixedpower/ports"

	"golang.org/x/sync/errgroup"
)

// Options tunes one SimulateWaldTests call
type Options struct {
	// Workers is the size of the replicate worker pool. Values <= 1 run the
	// replicates on a single worker.
	Workers int
}

// Driver runs simulate-refit-extract replicates
type Driver struct {
	logger *internal.Logger
}

// NewDriver creates a driver; a nil logger uses internal.DefaultLogger
func NewDriver(logger *internal.Logger) *Driver {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Driver{logger: logger.With("SimulationDriver")}
}

// SimulateWaldTests performs n replicates of: draw a new response from the
// model at params, refit, extract the coefficient table. Replicate i always
// consumes the i-th block of draws from rng, so the result depends only on
// the seed, n and params, never on opts.Workers. The caller's model is only
// read; each worker refits its own clone.
func (d *Driver) SimulateWaldTests(ctx context.Context, src ports.RNG, n int, model ports.FittedModel, params sim.Params, opts Options) (*sim.ResultSet, error) {
	resolved, err := ResolveParams(model, params)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, core.NewInvalidArgumentError("n", fmt.Sprintf("must be >= 1, got %d", n))
	}
	if src == nil {
		return nil, core.NewInvalidArgumentError("rng", "must not be nil")
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	names := model.CoefNames()
	shared := rng.NewLocked(src)
	seq := rng.NewSequencer(n)
	results := make([]sim.ReplicateResult, n)

	start := time.Now()
	d.logger.Debug("starting %d replicates on %d worker(s)", n, workers)

	g, gctx := errgroup.WithContext(ctx)
	indices := make(chan int)

	g.Go(func() error {
		defer close(indices)
		for i := 0; i < n; i++ {
			select {
			case indices <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		w := w
		clone := model.Clone()
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = core.NewConcurrencyFaultError(w, r)
				}
			}()
			for i := range indices {
				if err := gctx.Err(); err != nil {
					return err
				}
				rep, err := d.replicate(gctx, shared, seq, clone, i, resolved)
				if err != nil {
					return err
				}
				results[i] = rep
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		d.logger.Warn("aborted after %v: %v", time.Since(start), err)
		return nil, err
	}

	d.logger.Debug("%d replicates finished in %v (%d draws)", n, time.Since(start), shared.Draws())
	return sim.NewResultSet(names, results)
}

// replicate runs one simulate-refit-extract cycle on a worker's clone. The
// draws happen inside replicate i's sequencer turn; the refit runs outside
// it so workers refit in parallel.
func (d *Driver) replicate(ctx context.Context, src ports.RNG, seq *rng.Sequencer, clone ports.FittedModel, i int, p sim.Resolved) (sim.ReplicateResult, error) {
	var simErr error
	if err := seq.Do(ctx, i, func() {
		simErr = clone.Simulate(src, p)
	}); err != nil {
		return sim.ReplicateResult{}, err
	}
	if simErr != nil {
		return sim.ReplicateResult{}, fmt.Errorf("replicate %d: simulate: %w", i+1, simErr)
	}

	if err := clone.Refit(); err != nil {
		if core.IsFitFailure(err) {
			return sim.ReplicateResult{}, fmt.Errorf("replicate %d: %w", i+1, err)
		}
		return sim.ReplicateResult{}, core.NewFitFailureError(fmt.Sprintf("replicate %d", i+1), err)
	}

	rep := sim.ReplicateFromTable(clone.CoefTable())
	d.logger.Trace("replicate %d: beta=%v p=%v", i+1, rep.Beta, rep.P)
	return rep, nil
}

// ResolveParams fills unset fields of params from the model and checks
// dimensions. The returned vectors are private copies.
func ResolveParams(model ports.FittedModel, params sim.Params) (sim.Resolved, error) {
	if model == nil {
		return sim.Resolved{}, core.NewInvalidArgumentError("model", "must not be nil")
	}

	beta := model.Beta()
	if params.Beta != nil {
		if len(params.Beta) != len(beta) {
			return sim.Resolved{}, core.NewDimensionError("beta", len(params.Beta), len(beta))
		}
		beta = append([]float64(nil), params.Beta...)
	}

	theta := model.Theta()
	if params.Theta != nil {
		if len(params.Theta) != len(theta) {
			return sim.Resolved{}, core.NewDimensionError("theta", len(params.Theta), len(theta))
		}
		theta = append([]float64(nil), params.Theta...)
	}

	sigma := model.Sigma()
	if params.Sigma != nil {
		sigma = *params.Sigma
	}
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return sim.Resolved{}, core.NewInvalidArgumentError("sigma", fmt.Sprintf("must be finite and > 0, got %g", sigma))
	}

	for k, v := range beta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return sim.Resolved{}, core.NewInvalidArgumentError("beta", fmt.Sprintf("element %d is not finite", k+1))
		}
	}
	for k, v := range theta {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return sim.Resolved{}, core.NewInvalidArgumentError("theta", fmt.Sprintf("element %d must be finite and >= 0", k+1))
		}
	}

	return sim.Resolved{Beta: beta, Sigma: sigma, Theta: theta}, nil
}
