package ingestion

import (
	"github.com/rpattn/unidata/internal/domain"
)

// NewPublicationNormalizer normalizes paper rows. The year comes from the publication date.
func NewPublicationNormalizer(workers int) Normalizer {
	return newFamilyNormalizer(domain.FamilyPublication, workers, normalizePublication)
}

func normalizePublication(row domain.RawRow) (domain.NormalizedRecord, map[string]any, error) {
	if err := requireFields(row, domain.ColPaperID, domain.ColPublicationDate, domain.ColCollege, domain.ColDepartment); err != nil {
		return domain.NormalizedRecord{}, nil, err
	}

	published, err := parseDate(dateValue(row, domain.ColPublicationDate))
	if err != nil {
		return domain.NormalizedRecord{}, nil, fieldError(row, domain.ColPublicationDate, err)
	}

	var impactFactor any
	if f, ok := toFloat(row.Value(domain.ColImpactFactor)); ok {
		impactFactor = f
	}
	linked := optionalText(row, domain.ColProjectLinked)
	if linked == nil {
		linked = "N"
	}

	metadata := map[string]any{
		domain.ColPaperID:          textOf(row.Value(domain.ColPaperID)),
		domain.ColPaperTitle:       row.Value(domain.ColPaperTitle),
		domain.ColLeadAuthor:       row.Value(domain.ColLeadAuthor),
		domain.ColCoAuthors:        row.Value(domain.ColCoAuthors),
		domain.ColJournalName:      row.Value(domain.ColJournalName),
		domain.ColJournalGrade:     row.Value(domain.ColJournalGrade),
		domain.MetaImpactFactorKey: impactFactor,
		domain.ColProjectLinked:    linked,
	}

	return domain.NormalizedRecord{
		Year:       published.Year(),
		College:    domain.StringPtr(textOf(row.Value(domain.ColCollege))),
		Department: domain.StringPtr(textOf(row.Value(domain.ColDepartment))),
	}, metadata, nil
}
