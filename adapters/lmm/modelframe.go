package lmm

import (
	"errors"
	"fmt"
	"strings"

	"mixedpower/domain/contrasts"
	"mixedpower/domain/dataset"

	"gonum.org/v1/gonum/mat"
)

// grouping is one random-intercept term: the level index of every row
type grouping struct {
	name   string
	levels []string
	index  []int
	offset int // first column of this term in Z
}

// design holds everything about a fit that does not change when the
// response is resimulated. It is shared read-only between clones.
type design struct {
	formula Formula
	names   []string
	x       *mat.Dense
	groups  []grouping
	termOf  []int // random-effect column -> grouping index
	n, p, q int

	xtx *mat.SymDense
	ztz *mat.SymDense
	ztx *mat.Dense
}

// errUnidentified marks designs with no more observations than coefficients
var errUnidentified = errors.New("model is not identifiable")

// column is one predictor column before assembly into X
type column struct {
	name   string
	values []float64
}

func buildDesign(f Formula, frame *dataset.Frame, codings contrasts.Map) (*design, []float64, error) {
	resp, ok := frame.Column(f.Response)
	if !ok {
		return nil, nil, fmt.Errorf("response column %q not found", f.Response)
	}
	if resp.Kind != dataset.KindNumeric {
		return nil, nil, fmt.Errorf("response column %q must be numeric", f.Response)
	}
	n := frame.Rows()

	var cols []column
	if f.Intercept {
		cols = append(cols, column{name: "(Intercept)", values: onesOf(n)})
	}

	encoded := map[string][]column{}
	for _, term := range f.Terms {
		block := []column{{values: onesOf(n)}}
		for _, v := range term {
			comp, ok := encoded[v]
			if !ok {
				var err error
				comp, err = encodeVariable(frame, v, codings)
				if err != nil {
					return nil, nil, err
				}
				encoded[v] = comp
			}
			block = interact(block, comp)
		}
		cols = append(cols, block...)
	}

	p := len(cols)
	if p == 0 {
		return nil, nil, fmt.Errorf("formula has no fixed effects")
	}
	if n <= p {
		return nil, nil, fmt.Errorf("%w: %d observations for %d coefficients", errUnidentified, n, p)
	}

	d := &design{formula: f, n: n, p: p, x: mat.NewDense(n, p, nil)}
	for j, c := range cols {
		d.names = append(d.names, c.name)
		for i, v := range c.values {
			d.x.Set(i, j, v)
		}
	}

	offset := 0
	for _, g := range f.Groups {
		col, ok := frame.Column(g)
		if !ok {
			return nil, nil, fmt.Errorf("grouping column %q not found", g)
		}
		if col.Kind != dataset.KindFactor {
			return nil, nil, fmt.Errorf("grouping column %q must be categorical", g)
		}
		levels := col.Levels()
		pos := make(map[string]int, len(levels))
		for i, l := range levels {
			pos[l] = i
		}
		idx := make([]int, n)
		for i, l := range col.Labels {
			idx[i] = pos[l]
		}
		d.groups = append(d.groups, grouping{name: g, levels: levels, index: idx, offset: offset})
		for range levels {
			d.termOf = append(d.termOf, len(d.groups)-1)
		}
		offset += len(levels)
	}
	d.q = offset

	d.crossprods()

	y := append([]float64(nil), resp.Values...)
	return d, y, nil
}

func (d *design) crossprods() {
	d.xtx = mat.NewSymDense(d.p, nil)
	d.xtx.SymOuterK(1, d.x.T())

	if d.q == 0 {
		return
	}
	d.ztz = mat.NewSymDense(d.q, nil)
	d.ztx = mat.NewDense(d.q, d.p, nil)
	for i := 0; i < d.n; i++ {
		for a := range d.groups {
			ra := d.groups[a].offset + d.groups[a].index[i]
			for b := a; b < len(d.groups); b++ {
				rb := d.groups[b].offset + d.groups[b].index[i]
				if a == b {
					d.ztz.SetSym(ra, ra, d.ztz.At(ra, ra)+1)
				} else {
					d.ztz.SetSym(ra, rb, d.ztz.At(ra, rb)+1)
				}
			}
			for c := 0; c < d.p; c++ {
				d.ztx.Set(ra, c, d.ztx.At(ra, c)+d.x.At(i, c))
			}
		}
	}
}

// responseProducts returns X'y, Z'y and y'y. Z'y is nil without random terms.
func (d *design) responseProducts(y []float64) (*mat.VecDense, *mat.VecDense, float64) {
	yv := mat.NewVecDense(d.n, y)
	xty := mat.NewVecDense(d.p, nil)
	xty.MulVec(d.x.T(), yv)
	if d.q == 0 {
		return xty, nil, mat.Dot(yv, yv)
	}

	zty := mat.NewVecDense(d.q, nil)
	for i, v := range y {
		for _, g := range d.groups {
			r := g.offset + g.index[i]
			zty.SetVec(r, zty.AtVec(r)+v)
		}
	}
	return xty, zty, mat.Dot(yv, yv)
}

func encodeVariable(frame *dataset.Frame, name string, codings contrasts.Map) ([]column, error) {
	col, ok := frame.Column(name)
	if !ok {
		return nil, fmt.Errorf("predictor column %q not found", name)
	}
	if col.Kind == dataset.KindNumeric {
		return []column{{name: name, values: append([]float64(nil), col.Values...)}}, nil
	}

	enc, err := codings.For(name).Encode(col.Levels())
	if err != nil {
		return nil, fmt.Errorf("factor %q: %w", name, err)
	}
	out := make([]column, len(enc.Labels))
	for j, label := range enc.Labels {
		out[j] = column{name: name + ": " + label, values: make([]float64, len(col.Labels))}
	}
	for i, l := range col.Labels {
		row, _ := enc.Row(l)
		for j := range out {
			out[j].values[i] = row[j]
		}
	}
	return out, nil
}

// interact forms the elementwise products of two column blocks; the left
// block varies fastest
func interact(left, right []column) []column {
	out := make([]column, 0, len(left)*len(right))
	for _, r := range right {
		for _, l := range left {
			vals := make([]float64, len(l.values))
			for i := range vals {
				vals[i] = l.values[i] * r.values[i]
			}
			name := r.name
			if l.name != "" {
				name = strings.Join([]string{l.name, r.name}, " & ")
			}
			out = append(out, column{name: name, values: vals})
		}
	}
	return out
}

func onesOf(n int) []float64 {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return ones
}
