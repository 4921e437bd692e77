// Package contrasts maps categorical factor levels onto numeric predictor
// columns.
package contrasts

import (
	"fmt"
	"strings"
)

// Encoding is the numeric representation of one factor. Matrix[i][j] is
// the value of column j for level i; Labels name the columns.
type Encoding struct {
	Levels []string
	Labels []string
	Matrix [][]float64
}

// Row returns the encoded row for a level
func (e Encoding) Row(level string) ([]float64, bool) {
	for i, l := range e.Levels {
		if l == level {
			return e.Matrix[i], true
		}
	}
	return nil, false
}

// Coding turns a sorted list of levels into an Encoding
type Coding interface {
	Name() string
	Encode(levels []string) (Encoding, error)
}

// Map assigns a coding to each factor by column name. Factors without an
// entry use DummyCoding.
type Map map[string]Coding

// For returns the coding to use for a factor
func (m Map) For(factor string) Coding {
	if c, ok := m[factor]; ok && c != nil {
		return c
	}
	return DummyCoding{}
}

// DummyCoding is treatment coding: one indicator per non-base level
type DummyCoding struct {
	Base string
}

func (DummyCoding) Name() string { return "dummy" }

func (c DummyCoding) Encode(levels []string) (Encoding, error) {
	base, err := baseIndex(levels, c.Base)
	if err != nil {
		return Encoding{}, err
	}
	return indicatorEncoding(levels, base, 0), nil
}

// EffectsCoding is sum-to-zero coding: the base level is -1 in every column,
// so the intercept is the grand mean of the level means
type EffectsCoding struct {
	Base string
}

func (EffectsCoding) Name() string { return "effects" }

func (c EffectsCoding) Encode(levels []string) (Encoding, error) {
	base, err := baseIndex(levels, c.Base)
	if err != nil {
		return Encoding{}, err
	}
	return indicatorEncoding(levels, base, -1), nil
}

// HelmertCoding compares each level with the mean of the levels before it.
// For two levels it coincides with EffectsCoding.
type HelmertCoding struct{}

func (HelmertCoding) Name() string { return "helmert" }

func (HelmertCoding) Encode(levels []string) (Encoding, error) {
	if len(levels) < 2 {
		return Encoding{}, fmt.Errorf("factor needs at least 2 levels, got %d", len(levels))
	}
	k := len(levels)
	enc := Encoding{
		Levels: append([]string(nil), levels...),
		Labels: append([]string(nil), levels[1:]...),
		Matrix: make([][]float64, k),
	}
	for i := range enc.Matrix {
		row := make([]float64, k-1)
		for j := 1; j < k; j++ {
			switch {
			case i < j:
				row[j-1] = -1
			case i == j:
				row[j-1] = float64(j)
			}
		}
		enc.Matrix[i] = row
	}
	return enc, nil
}

func baseIndex(levels []string, base string) (int, error) {
	if len(levels) < 2 {
		return 0, fmt.Errorf("factor needs at least 2 levels, got %d", len(levels))
	}
	if base == "" {
		return 0, nil
	}
	for i, l := range levels {
		if l == base {
			return i, nil
		}
	}
	return 0, fmt.Errorf("base level %q not among levels %v", base, levels)
}

func indicatorEncoding(levels []string, base int, baseValue float64) Encoding {
	k := len(levels)
	enc := Encoding{
		Levels: append([]string(nil), levels...),
		Labels: make([]string, 0, k-1),
		Matrix: make([][]float64, k),
	}
	cols := make([]int, 0, k-1)
	for i, l := range levels {
		if i != base {
			cols = append(cols, i)
			enc.Labels = append(enc.Labels, l)
		}
	}
	for i := range levels {
		row := make([]float64, k-1)
		for j, li := range cols {
			switch {
			case i == base:
				row[j] = baseValue
			case i == li:
				row[j] = 1
			}
		}
		enc.Matrix[i] = row
	}
	return enc
}

// Parse reads "dummy", "effects", "helmert", optionally followed by
// ":<base level>" for dummy and effects coding
func Parse(spec string) (Coding, error) {
	name, base, _ := strings.Cut(strings.TrimSpace(spec), ":")
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dummy", "treatment":
		return DummyCoding{Base: strings.TrimSpace(base)}, nil
	case "effects", "sum":
		return EffectsCoding{Base: strings.TrimSpace(base)}, nil
	case "helmert":
		if base != "" {
			return nil, fmt.Errorf("helmert coding takes no base level")
		}
		return HelmertCoding{}, nil
	}
	return nil, fmt.Errorf("unknown contrast coding %q", spec)
}

// ParseMap parses a factor -> coding-spec map
func ParseMap(specs map[string]string) (Map, error) {
	m := make(Map, len(specs))
	for factor, spec := range specs {
		c, err := Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %w", factor, err)
		}
		m[factor] = c
	}
	return m, nil
}
