package lmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormula(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		intercept bool
		terms     [][]string
		groups    []string
	}{
		{
			name:      "intercept only",
			input:     "dv ~ 1 + (1|subj) + (1|item)",
			intercept: true,
			groups:    []string{"subj", "item"},
		},
		{
			name:      "implicit intercept",
			input:     "dv ~ age",
			intercept: true,
			terms:     [][]string{{"age"}},
		},
		{
			name:      "no intercept",
			input:     "dv ~ 0 + age",
			intercept: false,
			terms:     [][]string{{"age"}},
		},
		{
			name:      "crossing expands lower orders first",
			input:     "dv ~ 1 + age * cond + (1|item)",
			intercept: true,
			terms:     [][]string{{"age"}, {"cond"}, {"age", "cond"}},
			groups:    []string{"item"},
		},
		{
			name:      "colon interaction sorts after main effects",
			input:     "dv ~ age:cond + age + cond",
			intercept: true,
			terms:     [][]string{{"age"}, {"cond"}, {"age", "cond"}},
		},
		{
			name:      "duplicates collapse",
			input:     "dv ~ age + age & cond + cond & age + (1|subj) + (1|subj)",
			intercept: true,
			terms:     [][]string{{"age"}, {"age", "cond"}},
			groups:    []string{"subj"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFormula(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "dv", f.Response)
			assert.Equal(t, tt.intercept, f.Intercept)
			assert.Equal(t, tt.terms, f.Terms)
			assert.Equal(t, tt.groups, f.Groups)
		})
	}
}

func TestParseFormula_Errors(t *testing.T) {
	for _, input := range []string{
		"dv age",
		" ~ age",
		"dv ~ age +",
		"dv ~ (1|subj",
		"dv ~ (age|subj)",
		"dv ~ (1 subj)",
		"dv ~ dv",
		"dv ~ 2x",
		"dv ~ age * 3",
	} {
		_, err := ParseFormula(input)
		assert.Error(t, err, input)
	}
}

func TestFormulaString(t *testing.T) {
	f, err := ParseFormula("dv ~ age*cond + (1|subj)")
	require.NoError(t, err)
	assert.Equal(t, "dv ~ 1 + age + cond + age & cond + (1|subj)", f.String())

	again, err := ParseFormula(f.String())
	require.NoError(t, err)
	assert.Equal(t, f, again)
}
