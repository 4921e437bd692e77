package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
	"mixedpower/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader reads tables from .xlsx workbooks (first sheet) and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewDataReader picks the format from the file extension; anything other
// than .xlsx is read as CSV
func NewDataReader(filePath string, logger *internal.Logger) *DataReader {
	fileType := "csv"
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		fileType = "xlsx"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger.With("DataReader")}
}

// ReadRaw reads the header and all data rows as strings
func (r *DataReader) ReadRaw() (*RawTable, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		rows, err = r.readCSVRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("%s has no header row", r.filePath)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		trimmed := make([]string, len(headers))
		for j := range trimmed {
			trimmed[j] = strings.TrimSpace(cell(row, j))
		}
		data = append(data, trimmed)
	}

	r.logger.Debug("%s read in %v (%d columns, %d rows)", r.filePath, time.Since(start), len(headers), len(data))
	return &RawTable{Headers: headers, Rows: data}, nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheets[0], err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// ReadFrame reads a dataset for fitting. A column is numeric when every
// cell parses as a number, categorical otherwise; names listed in factors
// are always categorical (numeric subject codes, for instance).
func (r *DataReader) ReadFrame(factors ...string) (*dataset.Frame, error) {
	raw, err := r.ReadRaw()
	if err != nil {
		return nil, err
	}
	if len(raw.Rows) == 0 {
		return nil, fmt.Errorf("%s has no data rows", r.filePath)
	}

	forced := make(map[string]bool, len(factors))
	for _, f := range factors {
		if raw.column(f) < 0 {
			return nil, fmt.Errorf("%s has no column %q", r.filePath, f)
		}
		forced[f] = true
	}

	frame := dataset.NewFrame()
	for j, name := range raw.Headers {
		labels := make([]string, len(raw.Rows))
		for i, row := range raw.Rows {
			labels[i] = row[j]
		}

		values, numeric := parseNumbers(labels)
		if numeric && !forced[name] {
			err = frame.AddNumeric(name, values)
		} else {
			err = frame.AddFactor(name, labels)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.filePath, err)
		}
	}
	return frame, nil
}

func parseNumbers(cells []string) ([]float64, bool) {
	values := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// ReadSweepTable reads a table written by WriteSweep. Columns are located
// by name, so extra columns and reordering are tolerated.
func (r *DataReader) ReadSweepTable() (*sim.SweepTable, error) {
	raw, err := r.ReadRaw()
	if err != nil {
		return nil, err
	}

	idx := make([]int, len(SweepHeader))
	for k, h := range SweepHeader {
		if idx[k] = raw.column(h); idx[k] < 0 {
			return nil, fmt.Errorf("%s: missing column %q", r.filePath, h)
		}
	}

	table := sim.NewSweepTable()
	for i, row := range raw.Rows {
		power, err := strconv.ParseFloat(cell(row, idx[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: power: %w", r.filePath, i+2, err)
		}
		itemN, err := strconv.Atoi(cell(row, idx[2]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: item_n: %w", r.filePath, i+2, err)
		}
		subN, err := strconv.Atoi(cell(row, idx[3]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: sub_n: %w", r.filePath, i+2, err)
		}
		table.Append(sim.SweepRow{Effect: cell(row, idx[0]), Power: power, ItemN: itemN, SubN: subN})
	}
	return table, nil
}
