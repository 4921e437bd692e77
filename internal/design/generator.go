// Package design builds synthetic crossed subject-by-item designs for power
// simulations.
package design

import (
	"fmt"

	"mixedpower/domain/core"
	"mixedpower/domain/dataset"
	"mixedpower/ports"
)

// Column names of a generated design
const (
	ColSubject   = "subj"
	ColAge       = "age"
	ColItem      = "item"
	ColCondition = "cond"
	ColResponse  = "dv"
)

// Age groups and condition levels
var (
	AgeGroups       = []string{"O", "Y"}
	ConditionLevels = []string{"A", "B"}
)

// Options selects the design variant
type Options struct {
	// Conditions adds the within-subject, within-item factor cond (A/B)
	Conditions bool
}

// Simdat crosses itemN items with 2*subN subjects (subN old, subN young)
// and, optionally, two conditions. The response column is a standard-normal
// placeholder; simulation replaces it before anything reads it.
func Simdat(rng ports.RNG, subN, itemN int, opts Options) (*dataset.Frame, error) {
	if subN < 1 {
		return nil, core.NewInvalidArgumentError("sub_n", fmt.Sprintf("must be >= 1, got %d", subN))
	}
	if itemN < 1 {
		return nil, core.NewInvalidArgumentError("item_n", fmt.Sprintf("must be >= 1, got %d", itemN))
	}
	if rng == nil {
		return nil, core.NewInvalidArgumentError("rng", "must not be nil")
	}

	conds := []string{""}
	if opts.Conditions {
		conds = ConditionLevels
	}

	n := RowCount(subN, itemN, opts)
	subj := make([]string, 0, n)
	age := make([]string, 0, n)
	item := make([]string, 0, n)
	cond := make([]string, 0, n)
	dv := make([]float64, 0, n)

	for i := 1; i <= itemN; i++ {
		itemID := fmt.Sprintf("I%d", i)
		for s := 1; s <= 2*subN; s++ {
			group := AgeGroups[0]
			if s > subN {
				group = AgeGroups[1]
			}
			for _, c := range conds {
				item = append(item, itemID)
				subj = append(subj, fmt.Sprintf("S%d", s))
				age = append(age, group)
				cond = append(cond, c)
				dv = append(dv, rng.NormFloat64())
			}
		}
	}

	frame := dataset.NewFrame()
	if err := frame.AddFactor(ColItem, item); err != nil {
		return nil, err
	}
	if err := frame.AddFactor(ColSubject, subj); err != nil {
		return nil, err
	}
	if err := frame.AddFactor(ColAge, age); err != nil {
		return nil, err
	}
	if opts.Conditions {
		if err := frame.AddFactor(ColCondition, cond); err != nil {
			return nil, err
		}
	}
	if err := frame.AddNumeric(ColResponse, dv); err != nil {
		return nil, err
	}
	return frame, nil
}

// RowCount is the number of rows Simdat produces
func RowCount(subN, itemN int, opts Options) int {
	n := itemN * 2 * subN
	if opts.Conditions {
		n *= len(ConditionLevels)
	}
	return n
}
