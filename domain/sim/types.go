// Package sim holds the value types that flow through a power analysis:
// simulation parameters, per-replicate Wald results, power tables and the
// accumulated sweep table.
package sim

import (
	"fmt"
	"time"

	"mixedpower/domain/core"
)

// Params are the generating parameters of one simulation run. A nil field
// means "use the fitted model's own value".
type Params struct {
	Beta  []float64
	Sigma *float64
	Theta []float64
}

// Float returns a pointer to v, for filling Params.Sigma inline
func Float(v float64) *float64 {
	return &v
}

// Resolved is a fully specified, private copy of Params
type Resolved struct {
	Beta  []float64
	Sigma float64
	Theta []float64
}

// Clone deep-copies the parameter vectors
func (r Resolved) Clone() Resolved {
	return Resolved{
		Beta:  append([]float64(nil), r.Beta...),
		Sigma: r.Sigma,
		Theta: append([]float64(nil), r.Theta...),
	}
}

// CoefRow is one row of a fitted model's coefficient table
type CoefRow struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se"`
	Z        float64 `json:"z"`
	P        float64 `json:"p"`
}

// ReplicateResult holds the Wald statistics of one simulate-refit cycle, in
// canonical coefficient order
type ReplicateResult struct {
	Beta []float64 `json:"beta"`
	SE   []float64 `json:"se"`
	Z    []float64 `json:"z"`
	P    []float64 `json:"p"`
}

// ReplicateFromTable converts a coefficient table into a replicate record
func ReplicateFromTable(table []CoefRow) ReplicateResult {
	r := ReplicateResult{
		Beta: make([]float64, len(table)),
		SE:   make([]float64, len(table)),
		Z:    make([]float64, len(table)),
		P:    make([]float64, len(table)),
	}
	for k, row := range table {
		r.Beta[k] = row.Estimate
		r.SE[k] = row.SE
		r.Z[k] = row.Z
		r.P[k] = row.P
	}
	return r
}

// Field selects one statistic of a replicate
type Field string

const (
	FieldBeta Field = "beta"
	FieldSE   Field = "se"
	FieldZ    Field = "z"
	FieldP    Field = "p"
)

// Fields lists every statistic in output order
var Fields = []Field{FieldBeta, FieldSE, FieldZ, FieldP}

func (r ReplicateResult) get(f Field) []float64 {
	switch f {
	case FieldBeta:
		return r.Beta
	case FieldSE:
		return r.SE
	case FieldZ:
		return r.Z
	case FieldP:
		return r.P
	}
	return nil
}

// ResultSet is the immutable output of one Monte Carlo run: n replicates in
// index order, with column-major copies built once at construction.
type ResultSet struct {
	names      []string
	replicates []ReplicateResult
	columns    map[Field][][]float64 // field -> coefficient -> replicate
}

// NewResultSet validates widths and builds the columnar views
func NewResultSet(names []string, replicates []ReplicateResult) (*ResultSet, error) {
	k := len(names)
	columns := make(map[Field][][]float64, len(Fields))
	for _, f := range Fields {
		series := make([][]float64, k)
		for j := range series {
			series[j] = make([]float64, len(replicates))
		}
		columns[f] = series
	}
	for i, r := range replicates {
		for _, f := range Fields {
			vals := r.get(f)
			if len(vals) != k {
				return nil, fmt.Errorf("replicate %d: %s has %d values, expected %d", i+1, f, len(vals), k)
			}
			for j, v := range vals {
				columns[f][j][i] = v
			}
		}
	}
	return &ResultSet{
		names:      append([]string(nil), names...),
		replicates: replicates,
		columns:    columns,
	}, nil
}

// Len is the number of replicates
func (rs *ResultSet) Len() int { return len(rs.replicates) }

// NumCoef is the number of fixed-effect coefficients per replicate
func (rs *ResultSet) NumCoef() int { return len(rs.names) }

// Names returns the coefficient names of the model that produced the set
func (rs *ResultSet) Names() []string { return append([]string(nil), rs.names...) }

// Replicate returns replicate i (0-based)
func (rs *ResultSet) Replicate(i int) ReplicateResult { return rs.replicates[i] }

// Replicates returns every replicate in index order
func (rs *ResultSet) Replicates() []ReplicateResult {
	return append([]ReplicateResult(nil), rs.replicates...)
}

// Column returns field f for every coefficient: Column(f)[k][i] is the
// value for coefficient k in replicate i. Callers must not modify it.
func (rs *ResultSet) Column(f Field) [][]float64 { return rs.columns[f] }

// Series returns field f of coefficient k across all replicates
func (rs *ResultSet) Series(f Field, k int) []float64 { return rs.columns[f][k] }

// PowerRow is the empirical rejection rate of one coefficient
type PowerRow struct {
	Effect string  `json:"effect"`
	Power  float64 `json:"power"`
}

// PowerTable has one row per coefficient, in coefficient order
type PowerTable []PowerRow

// Lookup returns the power for a named effect
func (pt PowerTable) Lookup(effect string) (float64, bool) {
	for _, row := range pt {
		if row.Effect == effect {
			return row.Power, true
		}
	}
	return 0, false
}

// SweepRow is a power table row tagged with the grid point that produced it
type SweepRow struct {
	Effect string  `json:"effect" db:"effect"`
	Power  float64 `json:"power" db:"power"`
	ItemN  int     `json:"item_n" db:"item_n"`
	SubN   int     `json:"sub_n" db:"sub_n"`
}

// SweepTable accumulates rows across a grid sweep. It is append-only and
// not safe for concurrent appends.
type SweepTable struct {
	rows []SweepRow
}

// NewSweepTable creates an empty table
func NewSweepTable() *SweepTable {
	return &SweepTable{}
}

// AppendPower tags every row of pt with (subN, itemN) and appends it
func (st *SweepTable) AppendPower(pt PowerTable, subN, itemN int) {
	for _, row := range pt {
		st.rows = append(st.rows, SweepRow{Effect: row.Effect, Power: row.Power, ItemN: itemN, SubN: subN})
	}
}

// Append adds pre-tagged rows
func (st *SweepTable) Append(rows ...SweepRow) {
	st.rows = append(st.rows, rows...)
}

// Rows returns a copy of all rows in append order
func (st *SweepTable) Rows() []SweepRow {
	return append([]SweepRow(nil), st.rows...)
}

// Len returns the number of rows
func (st *SweepTable) Len() int { return len(st.rows) }

// SweepRun is the metadata persisted alongside a sweep table
type SweepRun struct {
	ID        core.RunID `json:"id" db:"id"`
	Formula   string     `json:"formula" db:"formula"`
	Seed      int64      `json:"seed" db:"seed"`
	NSims     int        `json:"nsims" db:"nsims"`
	Alpha     float64    `json:"alpha" db:"alpha"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
