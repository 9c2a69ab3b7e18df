package ingestion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/unidata/internal/domain"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"2006.1.2",
	"2006. 1. 2.",
	"2006. 1. 2",
	"2006년 1월 2일",
	"20060102",
	"2006-01",
	"2006.01",
	"01/02/2006",
}

// requireFields fails with the first required column that is blank, in the given order.
func requireFields(row domain.RawRow, fields ...string) error {
	for _, field := range fields {
		if _, ok := row.Field(field); !ok {
			return &domain.MissingFieldError{Row: row.Number, Field: field}
		}
	}
	return nil
}

// textOf renders a cell as trimmed text. Integral numbers print without a fraction so
// identifiers such as "2023001" survive the float round trip.
func textOf(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return domain.Number(val).Text()
	case time.Time:
		return domain.FormatDate(val)
	default:
		return strings.TrimSpace(domain.Sanitize(v).Text())
	}
}

// optionalText returns the trimmed cell text, or nil when the cell is blank.
func optionalText(row domain.RawRow, column string) any {
	v, ok := row.Field(column)
	if !ok {
		return nil
	}
	return textOf(v)
}

// parseYear reads an integral year from a number or numeric text.
func parseYear(v any) (int, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%q is not a year", textOf(v))
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not a whole year", textOf(v))
	}
	return int(f), nil
}

// dateValue prefers the cell's source text so "2024.10" reads as October 2024 and not as
// the number 2024.1.
func dateValue(row domain.RawRow, column string) any {
	if text, ok := row.Text(column); ok {
		return text
	}
	return row.Value(column)
}

// parseDate accepts text dates in the usual layouts, Excel serial numbers, compact
// yyyymmdd values and bare years.
func parseDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case float64:
		return dateFromNumber(val)
	case string:
		text := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, text); err == nil {
				return ts, nil
			}
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return dateFromNumber(f)
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", text)
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", textOf(v))
}

func dateFromNumber(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", domain.Number(f).Text())
	}
	if whole := math.Trunc(f); f != whole && whole >= domain.MinYear && whole <= domain.MaxYear {
		// Looks like a year with a stray fraction, not a serial in 1905.
		return time.Time{}, fmt.Errorf("ambiguous date %q: write it as a full date", domain.Number(f).Text())
	}
	if f == math.Trunc(f) {
		n := int(f)
		if n >= domain.MinYear && n <= domain.MaxYear {
			return time.Date(n, time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
		if n >= 19000101 && n <= 21001231 {
			if ts, err := time.Parse("20060102", strconv.Itoa(n)); err == nil {
				return ts, nil
			}
		}
	}
	ts, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q: %w", domain.Number(f).Text(), err)
	}
	return ts, nil
}

// toInt coerces a cell to an integer, returning fallback when it is blank or not numeric.
// Thousands separators are accepted and fractions are truncated.
func toInt(v any, fallback int64) int64 {
	f, ok := toFloat(v)
	if !ok {
		return fallback
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return fallback
	}
	return int64(f)
}

// toFloat coerces a cell to a finite float.
func toFloat(v any) (float64, bool) {
	if domain.IsBlank(v) {
		return 0, false
	}
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	if s, isText := v.(string); isText {
		v = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
