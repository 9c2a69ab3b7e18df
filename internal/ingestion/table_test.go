package ingestion

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
)

func xlsxFixture(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for idx, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseCSVWithBOMAndBlankRows(t *testing.T) {
	payload := []byte("\xEF\xBB\xBF학번,이름,학과,학과, \n0012,김민준,물리학과,화학과,x\n\n , \n0013,NA,수학과,,\n")

	table, err := NewSpreadsheetParser().Parse("students.csv", payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"학번", "이름", "학과", "학과.1", "Unnamed: 4"}, table.Columns)
	require.Len(t, table.Rows, 2)

	first := table.Rows[0]
	assert.Equal(t, 2, first.Number)
	assert.Equal(t, "0012", first.Value("학번"))
	assert.Equal(t, "화학과", first.Value("학과.1"))

	second := table.Rows[1]
	assert.Equal(t, 5, second.Number)
	assert.Nil(t, second.Value("이름"))
	_, ok := second.Field("학과.1")
	assert.False(t, ok)
}

func TestParseCSVInfersScalars(t *testing.T) {
	payload := []byte("a,b,c,d\n3.5,TRUE,2024,-0.5\n")

	table, err := NewSpreadsheetParser().Parse("x.csv", payload)
	require.NoError(t, err)
	row := table.Rows[0]
	assert.Equal(t, 3.5, row.Value("a"))
	assert.Equal(t, true, row.Value("b"))
	assert.Equal(t, 2024.0, row.Value("c"))
	assert.Equal(t, -0.5, row.Value("d"))
}

func TestParseCSVRenamesDuplicatesUntilUnique(t *testing.T) {
	table, err := NewSpreadsheetParser().Parse("kpi.csv", []byte("x,x,x.1\n1,2,3\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "x.1", "x.1.1"}, table.Columns)
	row := table.Rows[0]
	assert.Equal(t, 1.0, row.Value("x"))
	assert.Equal(t, 2.0, row.Value("x.1"))
	assert.Equal(t, 3.0, row.Value("x.1.1"))
}

func TestParseCSVKeepsLongIdentifiersAsText(t *testing.T) {
	table, err := NewSpreadsheetParser().Parse("students.csv", []byte("학번,번호\n12345678901234567,123456789012345\n"))
	require.NoError(t, err)

	row := table.Rows[0]
	assert.Equal(t, "12345678901234567", row.Value("학번"))
	assert.Equal(t, 123456789012345.0, row.Value("번호"))
	assert.Equal(t, "12345678901234567", textOf(row.Value("학번")))
}

func TestParseEUCKRCSV(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().Bytes([]byte("평가년도,학기,단과대학,학과\n2024,1학기,공과대학,기계공학과\n"))
	require.NoError(t, err)

	table, err := NewSpreadsheetParser().Parse("kpi.csv", encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"평가년도", "학기", "단과대학", "학과"}, table.Columns)
	assert.Equal(t, "기계공학과", table.Rows[0].Value("학과"))
}

func TestParseXLSXKeepsDatesAsSerials(t *testing.T) {
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	payload := xlsxFixture(t,
		[]any{"논문ID", "게재일", "단과대학", "학과"},
		[]any{"P-1", published, "공과대학", "전자공학과"},
	)

	// A misleading extension must not matter: the workbook is sniffed.
	table, err := NewSpreadsheetParser().Parse("papers.xls", payload)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	raw := table.Rows[0].Value("게재일")
	date, err := parseDate(raw)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", date.Format("2006-01-02"))
}

func TestParseRejectsLegacyWorkbook(t *testing.T) {
	payload := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, bytes.Repeat([]byte{0}, 1024)...)

	_, err := NewSpreadsheetParser().Parse("old.xls", payload)
	require.ErrorIs(t, err, ErrLegacyWorkbook)
}

func TestParseRequiresDataRows(t *testing.T) {
	_, err := NewSpreadsheetParser().Parse("empty.csv", []byte("a,b\n\n"))
	require.Error(t, err)

	_, err = NewSpreadsheetParser().Parse("empty.csv", nil)
	require.Error(t, err)
}
