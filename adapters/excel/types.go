package excel

// RawTable is a header plus string rows as read from a CSV file or the
// first worksheet of a workbook
type RawTable struct {
	Headers []string
	Rows    [][]string
}

// column returns the index of a header, or -1
func (t *RawTable) column(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// cell returns row[j], tolerating ragged rows
func cell(row []string, j int) string {
	if j < 0 || j >= len(row) {
		return ""
	}
	return row[j]
}

// Sweep CSV columns, in file order
var SweepHeader = []string{"effect", "power", "item_n", "sub_n"}

// Draws CSV columns, in file order
var DrawsHeader = []string{"replicate", "coef", "beta", "se", "z", "p"}
