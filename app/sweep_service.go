package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mixedpower/domain/contrasts"
	"mixedpower/domain/core"
	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
	"mixedpower/internal"
	"mixedpower/internal/design"
	"mixedpower/internal/simulation"
	"mixedpower/ports"
)

// FailurePolicy decides what a sweep does when a grid point's fit fails
type FailurePolicy string

const (
	// FailAbort stops the sweep and returns the fit failure
	FailAbort FailurePolicy = "abort"
	// FailSkip logs the failure and leaves the grid point out of the table
	FailSkip FailurePolicy = "skip"
)

// ParseFailurePolicy accepts "abort", "skip" or "" (abort)
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailAbort:
		return FailAbort, nil
	case FailSkip:
		return FailSkip, nil
	}
	return "", core.NewInvalidArgumentError("on_fit_failure", fmt.Sprintf("unknown policy %q", s))
}

// SweepService runs power simulations for single design points and for
// grids of design sizes
type SweepService struct {
	fitter  ports.Fitter
	rngPort ports.RNGPort
	driver  *simulation.Driver
	repo    ports.SweepRepository
	logger  *internal.Logger
}

// NewSweepService creates a sweep service. repo may be nil, in which case
// sweeps are not persisted.
func NewSweepService(fitter ports.Fitter, rngPort ports.RNGPort, driver *simulation.Driver, repo ports.SweepRepository, logger *internal.Logger) *SweepService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if driver == nil {
		driver = simulation.NewDriver(logger)
	}
	return &SweepService{
		fitter:  fitter,
		rngPort: rngPort,
		driver:  driver,
		repo:    repo,
		logger:  logger.With("SweepService"),
	}
}

// PointRequest describes one design point
type PointRequest struct {
	SubN       int
	ItemN      int
	NSims      int
	Params     sim.Params
	Formula    string
	Codings    contrasts.Map
	Conditions bool
	Alpha      float64
	Workers    int
	// Names labels the power table rows; nil uses the model's coefficient names
	Names []string
}

// PointResult is the outcome of one design point
type PointResult struct {
	SubN    int
	ItemN   int
	Model   ports.FittedModel
	Results *sim.ResultSet
	Power   sim.PowerTable
}

// MySim generates a design, fits the model to its placeholder response,
// runs the Monte Carlo driver at req.Params and aggregates power. Every
// random draw comes from rng, in that order.
func (s *SweepService) MySim(ctx context.Context, rng ports.RNG, req PointRequest) (*PointResult, error) {
	frame, err := design.Simdat(rng, req.SubN, req.ItemN, design.Options{Conditions: req.Conditions})
	if err != nil {
		return nil, err
	}

	return s.simulate(ctx, rng, frame, req)
}

// PowerFromData fits req.Formula to an existing dataset, such as pilot
// data, and runs the same simulate and aggregate steps as MySim.
// req.SubN and req.ItemN only label the result.
func (s *SweepService) PowerFromData(ctx context.Context, rng ports.RNG, frame *dataset.Frame, req PointRequest) (*PointResult, error) {
	if frame == nil || frame.Rows() == 0 {
		return nil, core.NewInvalidArgumentError("data", "must contain at least one row")
	}
	return s.simulate(ctx, rng, frame, req)
}

func (s *SweepService) simulate(ctx context.Context, rng ports.RNG, frame *dataset.Frame, req PointRequest) (*PointResult, error) {
	model, err := s.fitter.Fit(ctx, req.Formula, frame, req.Codings)
	if err != nil {
		return nil, err
	}

	rs, err := s.driver.SimulateWaldTests(ctx, rng, req.NSims, model, req.Params, simulation.Options{Workers: req.Workers})
	if err != nil {
		return nil, err
	}

	names := req.Names
	if names == nil {
		names = model.CoefNames()
	}
	power, err := simulation.PowerTable(rs, names, req.Alpha)
	if err != nil {
		return nil, err
	}

	return &PointResult{SubN: req.SubN, ItemN: req.ItemN, Model: model, Results: rs, Power: power}, nil
}

// SweepRequest describes a grid sweep over subject and item counts
type SweepRequest struct {
	SubNs        []int
	ItemNs       []int
	NSims        int
	Params       sim.Params
	Seed         int64
	Alpha        float64
	Formula      string
	Codings      contrasts.Map
	Conditions   bool
	Workers      int
	OnFitFailure FailurePolicy
	Names        []string
	// RunID is generated when empty
	RunID core.RunID
}

// GridPoint is one (sub_n, item_n) coordinate
type GridPoint struct {
	SubN  int `json:"sub_n"`
	ItemN int `json:"item_n"`
}

// SweepResult is the accumulated table plus run metadata
type SweepResult struct {
	Run     sim.SweepRun
	Table   *sim.SweepTable
	Skipped []GridPoint
	Elapsed time.Duration
}

// Validate checks everything that can be checked without fitting
func (r SweepRequest) Validate() error {
	if len(r.SubNs) == 0 {
		return core.NewInvalidArgumentError("sub_ns", "must not be empty")
	}
	if len(r.ItemNs) == 0 {
		return core.NewInvalidArgumentError("item_ns", "must not be empty")
	}
	for _, n := range r.SubNs {
		if n < 1 {
			return core.NewInvalidArgumentError("sub_ns", fmt.Sprintf("every value must be >= 1, got %d", n))
		}
	}
	for _, n := range r.ItemNs {
		if n < 1 {
			return core.NewInvalidArgumentError("item_ns", fmt.Sprintf("every value must be >= 1, got %d", n))
		}
	}
	if r.NSims < 1 {
		return core.NewInvalidArgumentError("nsims", fmt.Sprintf("must be >= 1, got %d", r.NSims))
	}
	if !(r.Alpha >= 0 && r.Alpha <= 1) {
		return core.NewInvalidArgumentError("alpha", fmt.Sprintf("must be in [0, 1], got %g", r.Alpha))
	}
	if strings.TrimSpace(r.Formula) == "" {
		return core.NewInvalidArgumentError("formula", "must not be empty")
	}
	if r.Params.Sigma != nil && !(*r.Params.Sigma > 0) {
		return core.NewInvalidArgumentError("sigma", fmt.Sprintf("must be > 0, got %g", *r.Params.Sigma))
	}
	for k, v := range r.Params.Theta {
		if v < 0 {
			return core.NewInvalidArgumentError("theta", fmt.Sprintf("element %d must be >= 0", k+1))
		}
	}
	if _, err := ParseFailurePolicy(string(r.OnFitFailure)); err != nil {
		return err
	}
	return nil
}

// RunSweep visits every (sub_n, item_n) pair, sub_n outer and item_n inner
// in input order, and appends each point's power table tagged with its
// coordinates. Points run one after another; each draws from its own
// stream derived from the seed and its coordinates.
func (s *SweepService) RunSweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	policy, _ := ParseFailurePolicy(string(req.OnFitFailure))

	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	start := time.Now()
	result := &SweepResult{
		Run: sim.SweepRun{
			ID:        runID,
			Formula:   req.Formula,
			Seed:      req.Seed,
			NSims:     req.NSims,
			Alpha:     req.Alpha,
			CreatedAt: start.UTC(),
		},
		Table: sim.NewSweepTable(),
	}

	total := len(req.SubNs) * len(req.ItemNs)
	s.logger.Info("run %s: %d grid points x %d simulations", runID, total, req.NSims)

	done := 0
	for _, subN := range req.SubNs {
		for _, itemN := range req.ItemNs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			stream, err := s.rngPort.GridStream(ctx, req.Seed, subN, itemN)
			if err != nil {
				return nil, err
			}

			pointStart := time.Now()
			point, err := s.MySim(ctx, stream, PointRequest{
				SubN:       subN,
				ItemN:      itemN,
				NSims:      req.NSims,
				Params:     req.Params,
				Formula:    req.Formula,
				Codings:    req.Codings,
				Conditions: req.Conditions,
				Alpha:      req.Alpha,
				Workers:    req.Workers,
				Names:      req.Names,
			})
			done++
			if err != nil {
				if core.IsFitFailure(err) && policy == FailSkip {
					s.logger.Warn("skipping sub_n=%d item_n=%d: %v", subN, itemN, err)
					result.Skipped = append(result.Skipped, GridPoint{SubN: subN, ItemN: itemN})
					continue
				}
				return nil, fmt.Errorf("grid point sub_n=%d item_n=%d: %w", subN, itemN, err)
			}

			result.Table.AppendPower(point.Power, subN, itemN)
			s.logger.Info("[%d/%d] sub_n=%d item_n=%d done in %v", done, total, subN, itemN, time.Since(pointStart).Round(time.Millisecond))
			for _, row := range point.Power {
				s.logger.Debug("  %s power=%.3f", row.Effect, row.Power)
			}
		}
	}
	result.Elapsed = time.Since(start)

	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, result.Run, result.Table); err != nil {
			return nil, fmt.Errorf("failed to persist run %s: %w", runID, err)
		}
	}

	s.logger.Info("run %s finished: %d rows, %d skipped, %v", runID, result.Table.Len(), len(result.Skipped), result.Elapsed.Round(time.Millisecond))
	return result, nil
}
