package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/unidata/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Normalizer converts the rows of one family into records.
type Normalizer interface {
	Family() domain.RecordFamily
	// Normalize converts every row or fails on the lowest-numbered bad row. No partial
	// result is returned on failure.
	Normalize(ctx context.Context, rows []domain.RawRow) ([]domain.NormalizedRecord, error)
}

// rowNormalizer builds a record from one row. Metadata is sanitized by the caller.
type rowNormalizer func(row domain.RawRow) (domain.NormalizedRecord, map[string]any, error)

type familyNormalizer struct {
	family  domain.RecordFamily
	workers int
	row     rowNormalizer
}

func newFamilyNormalizer(family domain.RecordFamily, workers int, row rowNormalizer) *familyNormalizer {
	if workers < 1 {
		workers = 1
	}
	return &familyNormalizer{family: family, workers: workers, row: row}
}

func (n *familyNormalizer) Family() domain.RecordFamily { return n.family }

func (n *familyNormalizer) Normalize(ctx context.Context, rows []domain.RawRow) ([]domain.NormalizedRecord, error) {
	records := make([]domain.NormalizedRecord, len(rows))
	rowErrs := make([]error, len(rows))

	// Rows never cancel each other: every row runs so the lowest failing row is reported
	// regardless of scheduling.
	var g errgroup.Group
	g.SetLimit(n.workers)
	for idx := range rows {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			record, metadata, err := n.row(rows[idx])
			if err != nil {
				rowErrs[idx] = rowError(rows[idx].Number, err)
				return nil
			}
			record.Family = n.family
			record.RowNumber = rows[idx].Number
			record.Metadata = domain.SanitizeMetadata(metadata)
			records[idx] = record
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range rowErrs {
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func rowError(row int, err error) error {
	var parsing *domain.DataParsingError
	if errors.As(err, &parsing) {
		return err
	}
	var missing *domain.MissingFieldError
	if errors.As(err, &missing) {
		return &domain.DataParsingError{Row: row, Field: missing.Field, Err: err}
	}
	var year *domain.YearOutOfRangeError
	if errors.As(err, &year) {
		return &domain.DataParsingError{Row: row, Field: year.Field, Err: err}
	}
	return &domain.DataParsingError{Row: row, Err: err}
}

func fieldError(row domain.RawRow, field string, err error) error {
	return &domain.DataParsingError{Row: row.Number, Field: field, Err: err}
}

// DefaultNormalizers returns one normalizer per family.
func DefaultNormalizers(workers int) map[domain.RecordFamily]Normalizer {
	return map[domain.RecordFamily]Normalizer{
		domain.FamilyPublication: NewPublicationNormalizer(workers),
		domain.FamilyResearch:    NewResearchNormalizer(workers),
		domain.FamilyStudent:     NewStudentNormalizer(workers),
		domain.FamilyKPI:         NewKPINormalizer(workers),
	}
}

func normalizerFor(normalizers map[domain.RecordFamily]Normalizer, family domain.RecordFamily) (Normalizer, error) {
	n, ok := normalizers[family]
	if !ok {
		return nil, fmt.Errorf("no normalizer registered for %s", family)
	}
	return n, nil
}
