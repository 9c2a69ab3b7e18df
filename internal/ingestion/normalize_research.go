package ingestion

import (
	"github.com/rpattn/unidata/internal/domain"
)

// NewResearchNormalizer normalizes budget execution rows. Research rows carry no college;
// the year comes from the execution date and monetary columns fall back to 0.
func NewResearchNormalizer(workers int) Normalizer {
	return newFamilyNormalizer(domain.FamilyResearch, workers, normalizeResearch)
}

func normalizeResearch(row domain.RawRow) (domain.NormalizedRecord, map[string]any, error) {
	err := requireFields(row,
		domain.ColExecutionID, domain.ColProjectNumber, domain.ColPrincipalInv, domain.ColAffiliation, domain.ColExecutionDate)
	if err != nil {
		return domain.NormalizedRecord{}, nil, err
	}

	executed, err := parseDate(dateValue(row, domain.ColExecutionDate))
	if err != nil {
		return domain.NormalizedRecord{}, nil, fieldError(row, domain.ColExecutionDate, err)
	}

	metadata := map[string]any{
		domain.ColExecutionID:     textOf(row.Value(domain.ColExecutionID)),
		domain.ColProjectNumber:   textOf(row.Value(domain.ColProjectNumber)),
		domain.ColProjectName:     row.Value(domain.ColProjectName),
		domain.ColPrincipalInv:    row.Value(domain.ColPrincipalInv),
		domain.ColFundingAgency:   row.Value(domain.ColFundingAgency),
		domain.ColTotalBudget:     toInt(row.Value(domain.ColTotalBudget), 0),
		domain.ColExecutionDate:   executed.Format("2006-01-02"),
		domain.ColExecutionItem:   row.Value(domain.ColExecutionItem),
		domain.ColExecutionAmount: toInt(row.Value(domain.ColExecutionAmount), 0),
		domain.ColStatus:          row.Value(domain.ColStatus),
		domain.ColRemarks:         row.Value(domain.ColRemarks),
	}

	return domain.NormalizedRecord{
		Year:       executed.Year(),
		Department: domain.StringPtr(textOf(row.Value(domain.ColAffiliation))),
	}, metadata, nil
}
