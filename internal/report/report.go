// Package report renders sweep results as a Markdown or HTML power report
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mixedpower/domain/sim"
	"mixedpower/internal/simulation"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// DefaultTargetPower is the power level a design is considered adequate at
const DefaultTargetPower = 0.8

// Report is everything a power report shows
type Report struct {
	Title       string
	Run         sim.SweepRun
	Table       *sim.SweepTable
	Summaries   []simulation.CoefSummary
	Diagnostics []simulation.CoefDiagnostics
	TargetPower float64
}

// grid pivots a sweep table into effect -> sub_n x item_n
type grid struct {
	effects []string
	subNs   []int
	itemNs  []int
	power   map[string]map[[2]int]float64
}

func pivot(t *sim.SweepTable) grid {
	g := grid{power: map[string]map[[2]int]float64{}}
	seenSub, seenItem := map[int]bool{}, map[int]bool{}
	for _, row := range t.Rows() {
		if _, ok := g.power[row.Effect]; !ok {
			g.effects = append(g.effects, row.Effect)
			g.power[row.Effect] = map[[2]int]float64{}
		}
		if !seenSub[row.SubN] {
			seenSub[row.SubN] = true
			g.subNs = append(g.subNs, row.SubN)
		}
		if !seenItem[row.ItemN] {
			seenItem[row.ItemN] = true
			g.itemNs = append(g.itemNs, row.ItemN)
		}
		g.power[row.Effect][[2]int{row.SubN, row.ItemN}] = row.Power
	}
	return g
}

// Smallest returns, for effect, the grid point with the fewest observations
// (2*sub_n*item_n) whose power reaches target. Ties go to the earlier row.
func Smallest(t *sim.SweepTable, effect string, target float64) (sim.SweepRow, bool) {
	var (
		best  sim.SweepRow
		found bool
	)
	for _, row := range t.Rows() {
		if row.Effect != effect || row.Power < target {
			continue
		}
		if !found || row.SubN*row.ItemN < best.SubN*best.ItemN {
			best, found = row, true
		}
	}
	return best, found
}

// Markdown renders the report
func Markdown(r Report) []byte {
	target := r.TargetPower
	if target <= 0 {
		target = DefaultTargetPower
	}
	title := r.Title
	if title == "" {
		title = "Power analysis"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", title)
	if r.Run.ID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", r.Run.ID)
	}
	if r.Run.Formula != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", r.Run.Formula)
	}
	fmt.Fprintf(&b, "- Simulations per design: %d\n", r.Run.NSims)
	fmt.Fprintf(&b, "- Alpha: %g\n", r.Run.Alpha)
	fmt.Fprintf(&b, "- Seed: %d\n", r.Run.Seed)
	if !r.Run.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Created: %s\n", r.Run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	b.WriteString("\n")

	if r.Table != nil && r.Table.Len() > 0 {
		g := pivot(r.Table)
		for _, effect := range g.effects {
			fmt.Fprintf(&b, "## %s\n\n", effect)
			header := []string{"subjects per group"}
			for _, itemN := range g.itemNs {
				header = append(header, fmt.Sprintf("%d items", itemN))
			}
			writeRow(&b, header)
			writeRow(&b, repeat("---", len(header)))
			for _, subN := range g.subNs {
				cells := []string{fmt.Sprintf("%d", subN)}
				for _, itemN := range g.itemNs {
					p, ok := g.power[effect][[2]int{subN, itemN}]
					switch {
					case !ok:
						cells = append(cells, "–")
					case p >= target:
						cells = append(cells, fmt.Sprintf("**%.3f**", p))
					default:
						cells = append(cells, fmt.Sprintf("%.3f", p))
					}
				}
				writeRow(&b, cells)
			}
			b.WriteString("\n")
			if row, ok := Smallest(r.Table, effect, target); ok {
				fmt.Fprintf(&b, "Smallest design with power ≥ %.2f: %d subjects per group, %d items (power %.3f).\n\n",
					target, row.SubN, row.ItemN, row.Power)
			} else {
				fmt.Fprintf(&b, "No design in the grid reaches power %.2f.\n\n", target)
			}
		}
	}

	if len(r.Summaries) > 0 {
		b.WriteString("## Coefficient estimates across replicates\n\n")
		writeRow(&b, []string{"effect", "mean", "sd", "2.5%", "97.5%", "mean SE"})
		writeRow(&b, repeat("---", 6))
		for _, s := range r.Summaries {
			writeRow(&b, []string{
				s.Effect,
				fmt.Sprintf("%.4f", s.Mean),
				fmt.Sprintf("%.4f", s.SD),
				fmt.Sprintf("%.4f", s.Lower),
				fmt.Sprintf("%.4f", s.Upper),
				fmt.Sprintf("%.4f", s.MeanSE),
			})
		}
		b.WriteString("\n")
	}
	if len(r.Diagnostics) > 0 {
		b.WriteString("## Wald approximation checks\n\n")
		writeRow(&b, []string{"effect", "skewness", "kurtosis", "normality p", "SD/SE", "outliers"})
		writeRow(&b, repeat("---", 6))
		for _, d := range r.Diagnostics {
			writeRow(&b, []string{
				d.Effect,
				fmt.Sprintf("%.3f", d.Skewness),
				fmt.Sprintf("%.3f", d.Kurtosis),
				fmt.Sprintf("%.3g", d.NormalityP),
				fmt.Sprintf("%.3f", d.SECalibration),
				fmt.Sprintf("%d", d.Outliers),
			})
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

// HTML renders the report as a standalone HTML page
func HTML(r Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse(Markdown(r))

	title := r.Title
	if title == "" {
		title = "Power analysis"
	}
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

// Write renders to path, as HTML for .html/.htm and Markdown otherwise
func Write(path string, r Report) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		data = HTML(r)
	default:
		data = Markdown(r)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeRow(b *bytes.Buffer, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
