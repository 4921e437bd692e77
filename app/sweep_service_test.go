package app

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"mixedpower/adapters/lmm"
	rngadapter "mixedpower/adapters/rng"
	"mixedpower/domain/contrasts"
	"mixedpower/domain/core"
	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
	"mixedpower/internal"
	"mixedpower/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSweepRepository struct {
	mock.Mock
}

func (m *MockSweepRepository) SaveRun(ctx context.Context, run sim.SweepRun, table *sim.SweepTable) error {
	args := m.Called(ctx, run, table)
	return args.Error(0)
}

func (m *MockSweepRepository) LoadRun(ctx context.Context, id core.RunID) (*sim.SweepRun, *sim.SweepTable, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*sim.SweepRun), args.Get(1).(*sim.SweepTable), args.Error(2)
}

func (m *MockSweepRepository) ListRuns(ctx context.Context, limit int) ([]sim.SweepRun, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sim.SweepRun), args.Error(1)
}

func newStubFitter() *testkit.StubFitter {
	return &testkit.StubFitter{
		Names: []string{"(Intercept)", "age: Y"},
		Beta:  []float64{0, 0.25},
		Sigma: 2,
		Theta: []float64{0.5, 0.5},
	}
}

func baseRequest() SweepRequest {
	return SweepRequest{
		SubNs:   []int{5, 10},
		ItemNs:  []int{4},
		NSims:   10,
		Params:  sim.Params{Beta: []float64{0, 0.25}, Sigma: sim.Float(2)},
		Seed:    42,
		Alpha:   0.05,
		Formula: "dv ~ 1 + age + (1|item) + (1|subj)",
		Workers: 2,
	}
}

func TestRunSweep_TagsEveryRowWithItsGridPoint(t *testing.T) {
	fitter := newStubFitter()
	svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, nil, internal.Discard)

	res, err := svc.RunSweep(context.Background(), baseRequest())
	require.NoError(t, err)

	rows := res.Table.Rows()
	require.Len(t, rows, 2*2)
	assert.Equal(t, 2, fitter.Calls)

	for i, row := range rows {
		wantSub := 5
		if i >= 2 {
			wantSub = 10
		}
		assert.Equal(t, wantSub, row.SubN)
		assert.Equal(t, 4, row.ItemN)
		assert.GreaterOrEqual(t, row.Power, 0.0)
		assert.LessOrEqual(t, row.Power, 1.0)
	}
	assert.Equal(t, "(Intercept)", rows[0].Effect)
	assert.Equal(t, "age: Y", rows[1].Effect)
	assert.NotEmpty(t, res.Run.ID)
	assert.Equal(t, int64(42), res.Run.Seed)
	assert.Empty(t, res.Skipped)
}

func TestRunSweep_GridOrderIsSubOuterItemInner(t *testing.T) {
	svc := NewSweepService(newStubFitter(), rngadapter.NewAdapter(), nil, nil, internal.Discard)
	req := baseRequest()
	req.SubNs = []int{3, 1}
	req.ItemNs = []int{2, 6}

	res, err := svc.RunSweep(context.Background(), req)
	require.NoError(t, err)

	var visited []GridPoint
	for i, row := range res.Table.Rows() {
		if i%2 == 0 {
			visited = append(visited, GridPoint{SubN: row.SubN, ItemN: row.ItemN})
		}
	}
	assert.Equal(t, []GridPoint{{3, 2}, {3, 6}, {1, 2}, {1, 6}}, visited)
}

func TestRunSweep_PointsAreIndependentOfTheRestOfTheGrid(t *testing.T) {
	svc := NewSweepService(newStubFitter(), rngadapter.NewAdapter(), nil, nil, internal.Discard)

	full, err := svc.RunSweep(context.Background(), baseRequest())
	require.NoError(t, err)

	req := baseRequest()
	req.SubNs = []int{10}
	req.Workers = 7
	single, err := svc.RunSweep(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, full.Table.Rows()[2:], single.Table.Rows())
}

func TestRunSweep_FitFailureAbortsByDefault(t *testing.T) {
	fitter := newStubFitter()
	fitter.FailFor = map[int]bool{4 * 2 * 5: true}
	repo := &MockSweepRepository{}
	svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, repo, internal.Discard)

	res, err := svc.RunSweep(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, core.IsFitFailure(err))
	assert.Contains(t, err.Error(), "sub_n=5 item_n=4")
	assert.Equal(t, 1, fitter.Calls)
	repo.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunSweep_SkipPolicyOmitsFailedPoints(t *testing.T) {
	fitter := newStubFitter()
	fitter.FailFor = map[int]bool{4 * 2 * 10: true}
	svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, nil, internal.Discard)

	req := baseRequest()
	req.OnFitFailure = FailSkip
	res, err := svc.RunSweep(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []GridPoint{{SubN: 10, ItemN: 4}}, res.Skipped)
	require.Equal(t, 2, res.Table.Len())
	for _, row := range res.Table.Rows() {
		assert.Equal(t, 5, row.SubN)
	}
}

func TestRunSweep_InvalidRequestsFailBeforeFitting(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SweepRequest)
	}{
		{"empty sub_ns", func(r *SweepRequest) { r.SubNs = nil }},
		{"empty item_ns", func(r *SweepRequest) { r.ItemNs = []int{} }},
		{"zero sub_n", func(r *SweepRequest) { r.SubNs = []int{5, 0} }},
		{"negative item_n", func(r *SweepRequest) { r.ItemNs = []int{-1} }},
		{"zero nsims", func(r *SweepRequest) { r.NSims = 0 }},
		{"alpha above one", func(r *SweepRequest) { r.Alpha = 1.5 }},
		{"negative alpha", func(r *SweepRequest) { r.Alpha = -0.1 }},
		{"empty formula", func(r *SweepRequest) { r.Formula = " " }},
		{"zero sigma", func(r *SweepRequest) { r.Params.Sigma = sim.Float(0) }},
		{"negative theta", func(r *SweepRequest) { r.Params.Theta = []float64{-1, 0} }},
		{"unknown policy", func(r *SweepRequest) { r.OnFitFailure = "retry" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fitter := newStubFitter()
			svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, nil, internal.Discard)
			req := baseRequest()
			tt.mutate(&req)

			_, err := svc.RunSweep(context.Background(), req)
			require.Error(t, err)
			assert.True(t, core.IsInvalidArgument(err), "got %v", err)
			assert.Zero(t, fitter.Calls)
		})
	}
}

func TestRunSweep_DimensionMismatchStopsAtFirstPoint(t *testing.T) {
	fitter := newStubFitter()
	svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, nil, internal.Discard)
	req := baseRequest()
	req.Params.Beta = []float64{0, 0.25, 1}

	_, err := svc.RunSweep(context.Background(), req)
	require.Error(t, err)
	assert.True(t, core.IsInvalidArgument(err))
	assert.Equal(t, 1, fitter.Calls)
}

func TestRunSweep_PersistsRunWhenRepositoryConfigured(t *testing.T) {
	repo := &MockSweepRepository{}
	repo.On("SaveRun", mock.Anything, mock.AnythingOfType("sim.SweepRun"), mock.AnythingOfType("*sim.SweepTable")).Return(nil)
	svc := NewSweepService(newStubFitter(), rngadapter.NewAdapter(), nil, repo, internal.Discard)

	req := baseRequest()
	req.RunID = core.NewRunID()
	res, err := svc.RunSweep(context.Background(), req)
	require.NoError(t, err)

	repo.AssertExpectations(t)
	saved := repo.Calls[0].Arguments.Get(1).(sim.SweepRun)
	assert.Equal(t, req.RunID, saved.ID)
	assert.Equal(t, 10, saved.NSims)
	assert.Equal(t, res.Table, repo.Calls[0].Arguments.Get(2))
}

func TestRunSweep_RepositoryErrorIsReturned(t *testing.T) {
	repo := &MockSweepRepository{}
	repo.On("SaveRun", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	svc := NewSweepService(newStubFitter(), rngadapter.NewAdapter(), nil, repo, internal.Discard)

	res, err := svc.RunSweep(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunSweep_Cancelled(t *testing.T) {
	svc := NewSweepService(newStubFitter(), rngadapter.NewAdapter(), nil, nil, internal.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunSweep(ctx, baseRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMySim_InterceptOnlyEndToEnd(t *testing.T) {
	svc := NewSweepService(lmm.NewFitter(internal.Discard), rngadapter.NewAdapter(), nil, nil, internal.Discard)

	point, err := svc.MySim(context.Background(), rand.New(rand.NewSource(42)), PointRequest{
		SubN:    3,
		ItemN:   2,
		NSims:   5,
		Params:  sim.Params{Beta: []float64{0}},
		Formula: "dv ~ 1 + (1|subj) + (1|item)",
		Alpha:   0.05,
		Workers: 2,
	})
	require.NoError(t, err)

	require.Equal(t, 5, point.Results.Len())
	for _, rep := range point.Results.Replicates() {
		assert.Len(t, rep.Beta, 1)
		assert.Len(t, rep.SE, 1)
		assert.Len(t, rep.Z, 1)
		assert.Len(t, rep.P, 1)
	}
	require.Len(t, point.Power, 1)
	assert.Equal(t, "(Intercept)", point.Power[0].Effect)
	assert.GreaterOrEqual(t, point.Power[0].Power, 0.0)
	assert.LessOrEqual(t, point.Power[0].Power, 1.0)

	again, err := svc.MySim(context.Background(), rand.New(rand.NewSource(42)), PointRequest{
		SubN: 3, ItemN: 2, NSims: 5, Params: sim.Params{Beta: []float64{0}},
		Formula: "dv ~ 1 + (1|subj) + (1|item)", Alpha: 0.05, Workers: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, point.Results.Replicates(), again.Results.Replicates())
}

func TestPowerFromData_FitsTheGivenFrame(t *testing.T) {
	fitter := newStubFitter()
	svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, nil, internal.Discard)

	frame := dataset.NewFrame()
	require.NoError(t, frame.AddFactor("age", []string{"O", "Y", "O", "Y"}))
	require.NoError(t, frame.AddNumeric("dv", []float64{0.1, 0.4, -0.2, 0.3}))

	point, err := svc.PowerFromData(context.Background(), rand.New(rand.NewSource(1)), frame, PointRequest{
		NSims:   8,
		Params:  sim.Params{Beta: []float64{0, 0.25}},
		Formula: "dv ~ 1 + age",
		Alpha:   0.05,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fitter.Calls)
	assert.Equal(t, 8, point.Results.Len())
	assert.Len(t, point.Power, 2)
}

func TestPowerFromData_RejectsEmptyData(t *testing.T) {
	fitter := newStubFitter()
	svc := NewSweepService(fitter, rngadapter.NewAdapter(), nil, nil, internal.Discard)

	_, err := svc.PowerFromData(context.Background(), rand.New(rand.NewSource(1)), dataset.NewFrame(), PointRequest{NSims: 1, Formula: "dv ~ 1"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Zero(t, fitter.Calls)
}

func TestMySim_CrossedInteractionIsWorkerInvariant(t *testing.T) {
	svc := NewSweepService(lmm.NewFitter(internal.Discard), rngadapter.NewAdapter(), nil, nil, internal.Discard)
	req := PointRequest{
		SubN:       3,
		ItemN:      4,
		NSims:      6,
		Formula:    "dv ~ 1 + age * cond + (1|subj) + (1|item)",
		Codings:    contrasts.Map{"age": contrasts.HelmertCoding{}, "cond": contrasts.HelmertCoding{}},
		Conditions: true,
		Alpha:      0.05,
	}

	var want []sim.ReplicateResult
	for _, workers := range []int{1, 3, 8} {
		req.Workers = workers
		point, err := svc.MySim(context.Background(), rand.New(rand.NewSource(21)), req)
		require.NoError(t, err)
		require.Equal(t, 6, point.Results.Len())
		require.Len(t, point.Power, 4)
		if want == nil {
			want = point.Results.Replicates()
			continue
		}
		assert.Equal(t, want, point.Results.Replicates(), "workers=%d", workers)
	}
}

func TestRunSweep_RealFitterTagsRows(t *testing.T) {
	svc := NewSweepService(lmm.NewFitter(internal.Discard), rngadapter.NewAdapter(), nil, nil, internal.Discard)
	req := baseRequest()
	req.Params = sim.Params{}
	req.Codings = contrasts.Map{"age": contrasts.HelmertCoding{}}

	res, err := svc.RunSweep(context.Background(), req)
	require.NoError(t, err)

	rows := res.Table.Rows()
	require.Len(t, rows, 4)
	for i, row := range rows {
		assert.Equal(t, 4, row.ItemN)
		assert.Equal(t, []int{5, 10}[i/2], row.SubN)
	}
}
