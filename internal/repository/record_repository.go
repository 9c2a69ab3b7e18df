package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/unidata/internal/domain"
)

var recordCopyColumns = []string{
	"id", "upload_log_id", "data_type", "year", "semester", "college", "department", "metadata", "created_at",
}

const recordColumns = `id, upload_log_id, data_type, year, semester, college, department, metadata, created_at`

type recordRepository struct {
	q querier
}

func (r *recordRepository) BulkInsert(ctx context.Context, records []domain.NormalizedRecord, batchSize int) (int, error) {
	if r.q == nil {
		return 0, fmt.Errorf("record repository not initialized")
	}

	inserted := 0
	for _, chunk := range Chunk(records, batchSize) {
		rows := make([][]any, 0, len(chunk))
		for _, record := range chunk {
			metadata, err := record.MetadataJSON()
			if err != nil {
				return inserted, fmt.Errorf("failed to marshal metadata for row %d: %w", record.RowNumber, err)
			}
			rows = append(rows, []any{
				record.ID,
				record.UploadLogID,
				string(record.Family),
				record.Year,
				record.Semester,
				record.College,
				record.Department,
				metadata,
				record.CreatedAt,
			})
		}

		n, err := r.q.CopyFrom(ctx, pgx.Identifier{"uploaded_data"}, recordCopyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return inserted, fmt.Errorf("failed to insert records: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (r *recordRepository) DeleteByFamily(ctx context.Context, family domain.RecordFamily) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM uploaded_data WHERE data_type = $1`, string(family))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s records: %w", family, err)
	}
	return tag.RowsAffected(), nil
}

func (r *recordRepository) DeleteByUploadLog(ctx context.Context, uploadLogID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM uploaded_data WHERE upload_log_id = $1`, uploadLogID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records of upload %s: %w", uploadLogID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *recordRepository) List(ctx context.Context, filter domain.RecordFilter, limit int, offset int) ([]domain.NormalizedRecord, error) {
	where := recordWhere(filter)
	page, args := where.paged(limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM uploaded_data%s ORDER BY created_at DESC, id%s`, recordColumns, where.clause(), page)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []domain.NormalizedRecord{}
	for rows.Next() {
		var (
			record     domain.NormalizedRecord
			family     string
			semester   pgtype.Text
			college    pgtype.Text
			department pgtype.Text
			metadata   []byte
			createdAt  pgtype.Timestamptz
		)
		if err := rows.Scan(
			&record.ID,
			&record.UploadLogID,
			&family,
			&record.Year,
			&semester,
			&college,
			&department,
			&metadata,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		record.Family = domain.RecordFamily(family)
		record.Semester = textPtr(semester)
		record.College = textPtr(college)
		record.Department = textPtr(department)
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of record %s: %w", record.ID, err)
		}
		if createdAt.Valid {
			record.CreatedAt = createdAt.Time
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func (r *recordRepository) Count(ctx context.Context, filter domain.RecordFilter) (int64, error) {
	where := recordWhere(filter)
	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM uploaded_data`+where.clause(), where.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return total, nil
}

func (r *recordRepository) CountByFamily(ctx context.Context) (map[domain.RecordFamily]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT data_type, COUNT(*) FROM uploaded_data GROUP BY data_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by family: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RecordFamily]int64)
	for rows.Next() {
		var (
			family string
			count  int64
		)
		if err := rows.Scan(&family, &count); err != nil {
			return nil, fmt.Errorf("failed to scan family count: %w", err)
		}
		counts[domain.RecordFamily(family)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate family counts: %w", err)
	}
	return counts, nil
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	value := t.String
	return &value
}
