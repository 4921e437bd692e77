package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mixedpower/domain/sim"
	"mixedpower/internal/simulation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sweep() *sim.SweepTable {
	t := sim.NewSweepTable()
	t.AppendPower(sim.PowerTable{{Effect: "age: Y", Power: 0.35}}, 10, 10)
	t.AppendPower(sim.PowerTable{{Effect: "age: Y", Power: 0.82}}, 10, 20)
	t.AppendPower(sim.PowerTable{{Effect: "age: Y", Power: 0.81}}, 20, 10)
	t.AppendPower(sim.PowerTable{{Effect: "age: Y", Power: 0.97}}, 20, 20)
	return t
}

func TestSmallest(t *testing.T) {
	row, ok := Smallest(sweep(), "age: Y", 0.8)
	require.True(t, ok)
	// 10x20 and 20x10 tie on size; the earlier row wins
	assert.Equal(t, 10, row.SubN)
	assert.Equal(t, 20, row.ItemN)

	_, ok = Smallest(sweep(), "age: Y", 0.99)
	assert.False(t, ok)
	_, ok = Smallest(sweep(), "missing", 0.1)
	assert.False(t, ok)
}

func TestMarkdown_PivotsByGridPoint(t *testing.T) {
	md := string(Markdown(Report{
		Run:   sim.SweepRun{ID: "run-1", Formula: "dv ~ 1 + age", NSims: 100, Alpha: 0.05, Seed: 42},
		Table: sweep(),
		Summaries: []simulation.CoefSummary{
			{Effect: "age: Y", Mean: 0.25, SD: 0.1, Lower: 0.05, Upper: 0.45, MeanSE: 0.1},
		},
	}))

	assert.True(t, strings.HasPrefix(md, "# Power analysis\n"))
	assert.Contains(t, md, "- Model: `dv ~ 1 + age`")
	assert.Contains(t, md, "## age: Y")
	assert.Contains(t, md, "| subjects per group | 10 items | 20 items |")
	assert.Contains(t, md, "| 10 | 0.350 | **0.820** |")
	assert.Contains(t, md, "| 20 | **0.810** | **0.970** |")
	assert.Contains(t, md, "10 subjects per group, 20 items")
	assert.Contains(t, md, "| age: Y | 0.2500 | 0.1000 | 0.0500 | 0.4500 | 0.1000 |")
	assert.NotContains(t, md, "Wald approximation")
}

func TestMarkdown_Diagnostics(t *testing.T) {
	md := string(Markdown(Report{
		Diagnostics: []simulation.CoefDiagnostics{
			{Effect: "age: Y", Skewness: 0.1, Kurtosis: 3.2, NormalityP: 0.42, SECalibration: 1.05, Outliers: 3},
		},
	}))
	assert.Contains(t, md, "## Wald approximation checks")
	assert.Contains(t, md, "| age: Y | 0.100 | 3.200 | 0.42 | 1.050 | 3 |")
}

func TestMarkdown_MissingCellsAndUnreachedTarget(t *testing.T) {
	table := sim.NewSweepTable()
	table.AppendPower(sim.PowerTable{{Effect: "x", Power: 0.1}}, 5, 4)
	table.AppendPower(sim.PowerTable{{Effect: "x", Power: 0.2}}, 10, 8)

	md := string(Markdown(Report{Table: table, TargetPower: 0.9}))
	assert.Contains(t, md, "| 5 | 0.100 | – |")
	assert.Contains(t, md, "No design in the grid reaches power 0.90.")
}

func TestHTML_RendersTables(t *testing.T) {
	page := string(HTML(Report{Title: "Pilot", Table: sweep()}))
	assert.Contains(t, page, "<title>Pilot</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<strong>0.820</strong>")
}

func TestWrite_ChoosesFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	r := Report{Table: sweep()}

	require.NoError(t, Write(filepath.Join(dir, "power.md"), r))
	md, err := os.ReadFile(filepath.Join(dir, "power.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# "))

	require.NoError(t, Write(filepath.Join(dir, "power.html"), r))
	page, err := os.ReadFile(filepath.Join(dir, "power.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<html")
}
