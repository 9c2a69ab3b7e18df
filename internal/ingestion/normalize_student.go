package ingestion

import (
	"github.com/rpattn/unidata/internal/domain"
)

// NewStudentNormalizer normalizes enrolment rows keyed by admission year.
func NewStudentNormalizer(workers int) Normalizer {
	return newFamilyNormalizer(domain.FamilyStudent, workers, normalizeStudent)
}

func normalizeStudent(row domain.RawRow) (domain.NormalizedRecord, map[string]any, error) {
	err := requireFields(row,
		domain.ColStudentID, domain.ColName, domain.ColCollege, domain.ColDepartment, domain.ColAdmissionYear)
	if err != nil {
		return domain.NormalizedRecord{}, nil, err
	}

	admitted, err := parseYear(row.Value(domain.ColAdmissionYear))
	if err != nil {
		return domain.NormalizedRecord{}, nil, fieldError(row, domain.ColAdmissionYear, err)
	}

	metadata := map[string]any{
		domain.ColStudentID:  textOf(row.Value(domain.ColStudentID)),
		domain.ColName:       row.Value(domain.ColName),
		domain.ColGrade:      toInt(row.Value(domain.ColGrade), 0),
		domain.ColProgram:    row.Value(domain.ColProgram),
		domain.ColEnrollment: row.Value(domain.ColEnrollment),
		domain.ColGender:     row.Value(domain.ColGender),
		domain.ColAdvisor:    row.Value(domain.ColAdvisor),
		domain.ColEmail:      row.Value(domain.ColEmail),
	}

	return domain.NormalizedRecord{
		Year:       admitted,
		College:    domain.StringPtr(textOf(row.Value(domain.ColCollege))),
		Department: domain.StringPtr(textOf(row.Value(domain.ColDepartment))),
	}, metadata, nil
}
