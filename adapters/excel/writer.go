package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
	"mixedpower/internal/simulation"
	"mixedpower/ports"

	"github.com/xuri/excelize/v2"
)

// WriteTable writes t as a workbook when path ends in .xlsx, CSV otherwise
func WriteTable(path string, t ports.Table) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, "Sheet1", t)
	}
	return WriteCSV(path, t)
}

func WriteCSV(path string, t ports.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// WriteXLSX writes t to one sheet of a new workbook. Cells that parse as
// numbers are stored as numbers.
func WriteXLSX(path, sheet string, t ports.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := fillSheet(f, sheet, t); err != nil {
		return err
	}
	return f.SaveAs(path)
}

// WriteWorkbook writes several named tables, one sheet each, in order
func WriteWorkbook(path string, sheets []string, tables []ports.Table) error {
	if len(sheets) != len(tables) {
		return fmt.Errorf("%d sheet names for %d tables", len(sheets), len(tables))
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range sheets {
		if err := fillSheet(f, name, tables[i]); err != nil {
			return err
		}
	}
	if len(sheets) > 0 && sheets[0] != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}
	if len(sheets) > 0 {
		idx, err := f.GetSheetIndex(sheets[0])
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
	}
	return f.SaveAs(path)
}

func fillSheet(f *excelize.File, sheet string, t ports.Table) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx == -1 {
		if idx, err = f.NewSheet(sheet); err != nil {
			return err
		}
	}
	f.SetActiveSheet(idx)

	for c, h := range t.Header {
		ref, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(sheet, ref, h); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			ref, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var value interface{} = v
			if x, err := strconv.ParseFloat(v, 64); err == nil {
				value = x
			}
			if err := f.SetCellValue(sheet, ref, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteSweep writes the sweep hand-off file: effect,power,item_n,sub_n
func WriteSweep(path string, table *sim.SweepTable) error {
	return WriteTable(path, SweepRecords(table))
}

// SweepRecords renders a sweep table with the hand-off header
func SweepRecords(table *sim.SweepTable) ports.Table {
	t := ports.Table{Header: append([]string(nil), SweepHeader...)}
	for _, row := range table.Rows() {
		t.Rows = append(t.Rows, []string{
			row.Effect,
			formatFloat(row.Power),
			strconv.Itoa(row.ItemN),
			strconv.Itoa(row.SubN),
		})
	}
	return t
}

// DrawRecords renders a result set in long format, one row per replicate
// and coefficient, replicates numbered from 1
func DrawRecords(rs *sim.ResultSet) ports.Table {
	t := ports.Table{Header: append([]string(nil), DrawsHeader...)}
	names := rs.Names()
	for i := 0; i < rs.Len(); i++ {
		rep := rs.Replicate(i)
		for k, name := range names {
			t.Rows = append(t.Rows, []string{
				strconv.Itoa(i + 1),
				name,
				formatFloat(rep.Beta[k]),
				formatFloat(rep.SE[k]),
				formatFloat(rep.Z[k]),
				formatFloat(rep.P[k]),
			})
		}
	}
	return t
}

// PowerRecords renders a single power table
func PowerRecords(pt sim.PowerTable) ports.Table {
	t := ports.Table{Header: []string{"effect", "power"}}
	for _, row := range pt {
		t.Rows = append(t.Rows, []string{row.Effect, formatFloat(row.Power)})
	}
	return t
}

// SummaryRecords renders coefficient draw summaries
func SummaryRecords(summaries []simulation.CoefSummary) ports.Table {
	t := ports.Table{Header: []string{"effect", "mean", "sd", "lower", "upper", "mean_se"}}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []string{
			s.Effect,
			formatFloat(s.Mean),
			formatFloat(s.SD),
			formatFloat(s.Lower),
			formatFloat(s.Upper),
			formatFloat(s.MeanSE),
		})
	}
	return t
}

// DiagnosticRecords renders replicate diagnostics
func DiagnosticRecords(diags []simulation.CoefDiagnostics) ports.Table {
	t := ports.Table{Header: []string{"effect", "skewness", "kurtosis", "jarque_bera", "normality_p", "se_calibration", "outliers"}}
	for _, d := range diags {
		t.Rows = append(t.Rows, []string{
			d.Effect,
			formatFloat(d.Skewness),
			formatFloat(d.Kurtosis),
			formatFloat(d.JarqueBera),
			formatFloat(d.NormalityP),
			formatFloat(d.SECalibration),
			strconv.Itoa(d.Outliers),
		})
	}
	return t
}

// FrameRecords renders a dataset frame with its column order
func FrameRecords(frame *dataset.Frame) ports.Table {
	names := frame.Names()
	t := ports.Table{Header: names, Rows: make([][]string, frame.Rows())}
	for i := range t.Rows {
		row := make([]string, len(names))
		for j, name := range names {
			row[j] = frame.Cell(i, name)
		}
		t.Rows[i] = row
	}
	return t
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
