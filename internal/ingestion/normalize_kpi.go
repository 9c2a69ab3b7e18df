package ingestion

import (
	"github.com/rpattn/unidata/internal/domain"
)

var kpiKeyColumns = map[string]struct{}{
	domain.ColEvaluationYear: {},
	domain.ColSemester:       {},
	domain.ColCollege:        {},
	domain.ColDepartment:     {},
}

// NewKPINormalizer normalizes department KPI rows. Every non-key column is kept in metadata,
// so institution-specific indicators pass through untouched.
func NewKPINormalizer(workers int) Normalizer {
	return newFamilyNormalizer(domain.FamilyKPI, workers, normalizeKPI)
}

func normalizeKPI(row domain.RawRow) (domain.NormalizedRecord, map[string]any, error) {
	err := requireFields(row, domain.ColEvaluationYear, domain.ColSemester, domain.ColCollege, domain.ColDepartment)
	if err != nil {
		return domain.NormalizedRecord{}, nil, err
	}

	year, err := parseYear(row.Value(domain.ColEvaluationYear))
	if err != nil {
		return domain.NormalizedRecord{}, nil, fieldError(row, domain.ColEvaluationYear, err)
	}
	if year < domain.MinYear || year > domain.MaxYear {
		return domain.NormalizedRecord{}, nil, &domain.YearOutOfRangeError{
			Row: row.Number, Field: domain.ColEvaluationYear, Year: year,
		}
	}

	metadata := make(map[string]any, len(row.Columns()))
	for _, col := range row.Columns() {
		if _, key := kpiKeyColumns[col]; key {
			continue
		}
		metadata[col] = row.Value(col)
	}

	return domain.NormalizedRecord{
		Year:       year,
		Semester:   domain.StringPtr(textOf(row.Value(domain.ColSemester))),
		College:    domain.StringPtr(textOf(row.Value(domain.ColCollege))),
		Department: domain.StringPtr(textOf(row.Value(domain.ColDepartment))),
	}, metadata, nil
}
