package ports

import (
	"context"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"
)

// SweepRepository persists sweep results
type SweepRepository interface {
	SaveRun(ctx context.Context, run sim.SweepRun, table *sim.SweepTable) error
	LoadRun(ctx context.Context, id core.RunID) (*sim.SweepRun, *sim.SweepTable, error)
	ListRuns(ctx context.Context, limit int) ([]sim.SweepRun, error)
}
