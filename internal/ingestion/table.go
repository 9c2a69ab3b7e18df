package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rpattn/unidata/internal/domain"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

var (
	// ErrLegacyWorkbook is returned for BIFF (.xls 97-2003) workbooks, which the parser cannot read.
	ErrLegacyWorkbook = errors.New("legacy .xls (Excel 97-2003) workbooks are not supported; save the file as .xlsx or .csv")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeOLE  = "application/x-ole-storage"
	mimeZip  = "application/zip"
	mimeText = "text/plain"
)

// Table is a parsed sheet: a header and its data rows.
type Table struct {
	Columns []string
	Rows    []domain.RawRow
}

// TableParser turns uploaded bytes into a Table.
type TableParser interface {
	Parse(filename string, payload []byte) (Table, error)
}

// SpreadsheetParser reads CSV and XLSX payloads. The container is chosen by sniffing the
// bytes, with the file extension as a tie-breaker.
type SpreadsheetParser struct{}

// NewSpreadsheetParser creates a parser.
func NewSpreadsheetParser() *SpreadsheetParser {
	return &SpreadsheetParser{}
}

// Parse implements TableParser.
func (p *SpreadsheetParser) Parse(filename string, payload []byte) (Table, error) {
	if len(payload) == 0 {
		return Table{}, errors.New("file is empty")
	}

	var (
		records []sheetRow
		err     error
	)
	switch detectContainer(filename, payload) {
	case containerXLSX:
		records, err = readExcel(payload)
	case containerXLS:
		return Table{}, ErrLegacyWorkbook
	default:
		records, err = readCSV(payload)
	}
	if err != nil {
		return Table{}, err
	}
	return buildTable(records)
}

type container int

const (
	containerCSV container = iota
	containerXLSX
	containerXLS
)

func detectContainer(filename string, payload []byte) container {
	ext := strings.ToLower(filepath.Ext(filename))
	detected := mimetype.Detect(payload)

	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is(mimeXLSX):
			return containerXLSX
		case m.Is(mimeXLS), m.Is(mimeOLE):
			return containerXLS
		case m.Is(mimeZip):
			// Some producers write workbooks that only sniff as a generic zip.
			if ext != ".csv" {
				return containerXLSX
			}
		case m.Is(mimeText):
			return containerCSV
		}
	}

	if ext == ".xlsx" {
		return containerXLSX
	}
	return containerCSV
}

// sheetRow is one physical row and its 1-indexed position in the source.
type sheetRow struct {
	number int
	cells  []string
}

func readCSV(payload []byte) ([]sheetRow, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)

	var source io.Reader = bytes.NewReader(payload)
	if !utf8.Valid(payload) {
		// Korean office tooling still exports CP949/EUC-KR by default.
		source = transform.NewReader(source, korean.EUCKR.NewDecoder())
	}

	reader := csv.NewReader(bufio.NewReader(source))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	// encoding/csv skips blank lines, so positions come from the reader rather than the index.
	var rows []sheetRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, sheetRow{number: line, cells: record})
	}
	return rows, nil
}

func readExcel(payload []byte) ([]sheetRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	// Raw values keep dates as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	out := make([]sheetRow, len(rows))
	for idx, cells := range rows {
		out[idx] = sheetRow{number: idx + 1, cells: cells}
	}
	return out, nil
}

func buildTable(records []sheetRow) (Table, error) {
	headerIndex := -1
	for idx, row := range records {
		if !isEmptyRecord(row.cells) {
			headerIndex = idx
			break
		}
	}
	if headerIndex < 0 {
		return Table{}, errors.New("no header row found in file")
	}

	columns := headerNames(records[headerIndex].cells)
	table := Table{Columns: columns}

	for idx := headerIndex + 1; idx < len(records); idx++ {
		record := records[idx]
		if isEmptyRecord(record.cells) {
			continue
		}
		cells := make([]any, len(columns))
		for col := range columns {
			if col < len(record.cells) {
				cells[col] = inferCell(record.cells[col])
			}
		}
		table.Rows = append(table.Rows, domain.NewRawRowWithText(record.number, columns, cells, record.cells))
	}

	if len(table.Rows) == 0 {
		return Table{}, errors.New("file contains no data rows")
	}
	return table, nil
}

// headerNames trims header labels, names blank ones by position and suffixes duplicates
// (".1", ".2", ...) so every column stays addressable.
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for idx, value := range raw {
		name := strings.TrimSpace(strings.TrimPrefix(value, "\ufeff"))
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(idx)
		}
		if count, dup := seen[name]; dup {
			base := name
			for {
				count++
				name = base + "." + strconv.Itoa(count)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = count
		}
		seen[name] = 0
		names[idx] = name
	}
	return names
}

func isEmptyRecord(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// inferCell types a cell the way spreadsheet readers do: missing markers become nil,
// booleans and numbers are recognised, everything else stays text. Zero-padded digit
// strings such as student numbers, and digit strings too long for a float64, are kept as text.
func inferCell(raw string) any {
	text := strings.TrimSpace(raw)
	if domain.IsMissingMarker(text) {
		return nil
	}
	switch text {
	case "TRUE", "True", "true":
		return true
	case "FALSE", "False", "false":
		return false
	}
	if hasLeadingZero(text) || isLongDigitString(text) {
		return text
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

func hasLeadingZero(text string) bool {
	digits := strings.TrimLeft(text, "+-")
	return len(digits) > 1 && digits[0] == '0' && digits[1] >= '0' && digits[1] <= '9'
}

// maxExactDigits is the longest digit string a float64 always holds exactly.
const maxExactDigits = 15

func isLongDigitString(text string) bool {
	digits := strings.TrimLeft(text, "+-")
	if len(digits) <= maxExactDigits {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
