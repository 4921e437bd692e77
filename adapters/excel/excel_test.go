package excel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mixedpower/domain/dataset"
	"mixedpower/domain/sim"
	"mixedpower/internal"
	"mixedpower/internal/simulation"
	"mixedpower/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleSweep() *sim.SweepTable {
	st := sim.NewSweepTable()
	st.AppendPower(sim.PowerTable{{Effect: "(Intercept)", Power: 0.05}, {Effect: "age: Y", Power: 0.4}}, 5, 4)
	st.AppendPower(sim.PowerTable{{Effect: "(Intercept)", Power: 0.1}, {Effect: "age: Y", Power: 0.85}}, 10, 4)
	return st
}

func TestWriteSweep_CSVHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power.csv")
	require.NoError(t, WriteSweep(path, sampleSweep()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "effect,power,item_n,sub_n", lines[0])
	assert.Equal(t, "age: Y,0.4,4,5", lines[2])
}

func TestReadSweepTable_RoundTrip(t *testing.T) {
	for _, name := range []string{"power.csv", "power.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := sampleSweep()
			require.NoError(t, WriteSweep(path, want))

			got, err := NewDataReader(path, internal.Discard).ReadSweepTable()
			require.NoError(t, err)
			assert.Equal(t, want.Rows(), got.Rows())
		})
	}
}

func TestReadSweepTable_ColumnsByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reordered.csv")
	require.NoError(t, os.WriteFile(path, []byte("sub_n,item_n,note,power,effect\n20,10,x,0.9,age: Y\n"), 0o644))

	got, err := NewDataReader(path, internal.Discard).ReadSweepTable()
	require.NoError(t, err)
	assert.Equal(t, []sim.SweepRow{{Effect: "age: Y", Power: 0.9, ItemN: 10, SubN: 20}}, got.Rows())
}

func TestReadSweepTable_Errors(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.csv")
	require.NoError(t, os.WriteFile(missing, []byte("effect,power,item_n\nx,0.1,3\n"), 0o644))
	_, err := NewDataReader(missing, internal.Discard).ReadSweepTable()
	assert.ErrorContains(t, err, "sub_n")

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("effect,power,item_n,sub_n\nx,high,3,4\n"), 0o644))
	_, err = NewDataReader(bad, internal.Discard).ReadSweepTable()
	assert.ErrorContains(t, err, "row 2")

	_, err = NewDataReader(filepath.Join(dir, "nope.csv"), internal.Discard).ReadSweepTable()
	assert.ErrorContains(t, err, "not found")
}

func TestReadFrame_InfersColumnKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pilot.csv")
	content := "subj,age,rt,code\nS1,O,512.5,1\nS2,Y,430,2\nS3,Y,470.25,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	frame, err := NewDataReader(path, internal.Discard).ReadFrame("code")
	require.NoError(t, err)
	assert.Equal(t, []string{"subj", "age", "rt", "code"}, frame.Names())
	assert.Equal(t, 3, frame.Rows())

	rt, _ := frame.Column("rt")
	assert.Equal(t, dataset.KindNumeric, rt.Kind)
	assert.Equal(t, []float64{512.5, 430, 470.25}, rt.Values)

	code, _ := frame.Column("code")
	assert.Equal(t, dataset.KindFactor, code.Kind)
	assert.Equal(t, []string{"1", "2"}, code.Levels())

	_, err = NewDataReader(path, internal.Discard).ReadFrame("nope")
	assert.Error(t, err)
}

func TestFrameRecords_RoundTripThroughWorkbook(t *testing.T) {
	frame := dataset.NewFrame()
	require.NoError(t, frame.AddFactor("item", []string{"I1", "I1", "I2"}))
	require.NoError(t, frame.AddNumeric("dv", []float64{0.5, -1.25, 3}))

	path := filepath.Join(t.TempDir(), "design.xlsx")
	require.NoError(t, WriteTable(path, FrameRecords(frame)))

	got, err := NewDataReader(path, internal.Discard).ReadFrame()
	require.NoError(t, err)
	dv, ok := got.Column("dv")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, -1.25, 3}, dv.Values)
	item, _ := got.Column("item")
	assert.Equal(t, []string{"I1", "I1", "I2"}, item.Labels)
}

func TestDrawRecords_LongFormat(t *testing.T) {
	rs, err := sim.NewResultSet([]string{"a", "b"}, []sim.ReplicateResult{
		{Beta: []float64{1, 2}, SE: []float64{0.5, 0.5}, Z: []float64{2, 4}, P: []float64{0.04, 0.0001}},
		{Beta: []float64{3, 4}, SE: []float64{1, 1}, Z: []float64{3, 4}, P: []float64{0.003, 0.0001}},
	})
	require.NoError(t, err)

	table := DrawRecords(rs)
	assert.Equal(t, DrawsHeader, table.Header)
	require.Len(t, table.Rows, 4)
	assert.Equal(t, []string{"1", "b", "2", "0.5", "4", "0.0001"}, table.Rows[1])
	assert.Equal(t, []string{"2", "a", "3", "1", "3", "0.003"}, table.Rows[2])
}

func TestWriteWorkbook_NamedSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	err := WriteWorkbook(path,
		[]string{"power", "power_by_point"},
		[]ports.Table{PowerRecords(sim.PowerTable{{Effect: "x", Power: 0.5}}), SweepRecords(sampleSweep())})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"power", "power_by_point"}, f.GetSheetList())

	v, err := f.GetCellValue("power_by_point", "B3")
	require.NoError(t, err)
	assert.Equal(t, "0.4", v)

	assert.Error(t, WriteWorkbook(path, []string{"one"}, nil))
}

func TestDiagnosticRecords(t *testing.T) {
	table := DiagnosticRecords([]simulation.CoefDiagnostics{
		{Effect: "age: Y", Skewness: 0.5, Kurtosis: 3, JarqueBera: 1.25, NormalityP: 0.5, SECalibration: 1, Outliers: 2},
	})
	assert.Equal(t, []string{"effect", "skewness", "kurtosis", "jarque_bera", "normality_p", "se_calibration", "outliers"}, table.Header)
	assert.Equal(t, [][]string{{"age: Y", "0.5", "3", "1.25", "0.5", "1", "2"}}, table.Rows)
}
