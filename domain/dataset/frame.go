package dataset

import (
	"fmt"
	"sort"
)

// ColumnKind distinguishes categorical from numeric columns
type ColumnKind string

const (
	KindFactor  ColumnKind = "factor"
	KindNumeric ColumnKind = "numeric"
)

// Column is one named column of a Frame. Exactly one of Labels/Values is
// populated, according to Kind.
type Column struct {
	Name   string
	Kind   ColumnKind
	Labels []string
	Values []float64
}

// Len returns the number of rows in the column
func (c *Column) Len() int {
	if c.Kind == KindFactor {
		return len(c.Labels)
	}
	return len(c.Values)
}

// Levels returns the distinct labels of a factor column in sorted order
func (c *Column) Levels() []string {
	seen := make(map[string]struct{}, 8)
	for _, l := range c.Labels {
		seen[l] = struct{}{}
	}
	levels := make([]string, 0, len(seen))
	for l := range seen {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	return levels
}

// Frame is an ordered set of equal-length named columns. Design tables,
// pilot data and simulated datasets all travel as Frames.
type Frame struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewFrame creates an empty frame
func NewFrame() *Frame {
	return &Frame{index: make(map[string]int)}
}

// AddFactor appends a categorical column
func (f *Frame) AddFactor(name string, labels []string) error {
	return f.add(&Column{Name: name, Kind: KindFactor, Labels: labels})
}

// AddNumeric appends a numeric column
func (f *Frame) AddNumeric(name string, values []float64) error {
	return f.add(&Column{Name: name, Kind: KindNumeric, Values: values})
}

func (f *Frame) add(c *Column) error {
	if c.Name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if _, exists := f.index[c.Name]; exists {
		return fmt.Errorf("column %q already exists", c.Name)
	}
	if len(f.columns) > 0 && c.Len() != f.rows {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, c.Len(), f.rows)
	}
	f.rows = c.Len()
	f.index[c.Name] = len(f.columns)
	f.columns = append(f.columns, c)
	return nil
}

// Column looks a column up by name
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Names returns column names in insertion order
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Rows returns the row count
func (f *Frame) Rows() int {
	return f.rows
}

// Cell renders one cell as text, used by CSV writers
func (f *Frame) Cell(row int, name string) string {
	c, ok := f.Column(name)
	if !ok || row < 0 || row >= f.rows {
		return ""
	}
	if c.Kind == KindFactor {
		return c.Labels[row]
	}
	return fmt.Sprintf("%g", c.Values[row])
}

// WithResponse returns a shallow copy of the frame whose numeric column
// name holds y. Other columns are shared, not copied.
func (f *Frame) WithResponse(name string, y []float64) (*Frame, error) {
	if len(y) != f.rows {
		return nil, fmt.Errorf("response has %d values, frame has %d rows", len(y), f.rows)
	}
	out := NewFrame()
	replaced := false
	for _, c := range f.columns {
		if c.Name == name {
			replaced = true
			if err := out.AddNumeric(name, y); err != nil {
				return nil, err
			}
			continue
		}
		if err := out.add(c); err != nil {
			return nil, err
		}
	}
	if !replaced {
		if err := out.AddNumeric(name, y); err != nil {
			return nil, err
		}
	}
	return out, nil
}
