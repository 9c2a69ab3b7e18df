package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/unidata/internal/domain"
	"github.com/rpattn/unidata/internal/repository"
)

const recordColumns = `id, upload_log_id, data_type, year, semester, college, department, metadata, created_at`

type recordRepository struct {
	q querier
}

func (r *recordRepository) BulkInsert(ctx context.Context, records []domain.NormalizedRecord, batchSize int) (int, error) {
	inserted := 0
	for _, chunk := range repository.Chunk(records, batchSize) {
		placeholders := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*9)
		for _, record := range chunk {
			metadata, err := record.MetadataJSON()
			if err != nil {
				return inserted, fmt.Errorf("failed to marshal metadata for row %d: %w", record.RowNumber, err)
			}
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				record.ID.String(),
				record.UploadLogID.String(),
				string(record.Family),
				record.Year,
				nullString(record.Semester),
				nullString(record.College),
				nullString(record.Department),
				string(metadata),
				formatTime(record.CreatedAt),
			)
		}

		res, err := r.q.ExecContext(ctx,
			`INSERT INTO uploaded_data (`+recordColumns+`) VALUES `+strings.Join(placeholders, ", "),
			args...,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert records: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert records: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (r *recordRepository) DeleteByFamily(ctx context.Context, family domain.RecordFamily) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM uploaded_data WHERE data_type = ?`, string(family))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s records: %w", family, err)
	}
	return res.RowsAffected()
}

func (r *recordRepository) DeleteByUploadLog(ctx context.Context, uploadLogID uuid.UUID) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM uploaded_data WHERE upload_log_id = ?`, uploadLogID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete records of upload %s: %w", uploadLogID, err)
	}
	return res.RowsAffected()
}

func (r *recordRepository) List(ctx context.Context, filter domain.RecordFilter, limit int, offset int) ([]domain.NormalizedRecord, error) {
	limit, offset = normalizePage(limit, offset)
	where := recordWhere(filter)
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM uploaded_data`+where.clause()+` ORDER BY created_at DESC, rowid LIMIT ? OFFSET ?`,
		append(where.args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []domain.NormalizedRecord{}
	for rows.Next() {
		var (
			record                        domain.NormalizedRecord
			id, uploadLogID, family       string
			semester, college, department sql.NullString
			metadata, createdAt           string
		)
		if err := rows.Scan(&id, &uploadLogID, &family, &record.Year, &semester, &college, &department, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if record.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid record id %q: %w", id, err)
		}
		if record.UploadLogID, err = uuid.Parse(uploadLogID); err != nil {
			return nil, fmt.Errorf("invalid upload log id %q: %w", uploadLogID, err)
		}
		if record.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of record %s: %w", id, err)
		}
		record.Family = domain.RecordFamily(family)
		record.Semester = stringPtr(semester)
		record.College = stringPtr(college)
		record.Department = stringPtr(department)
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
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploaded_data`+where.clause(), where.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return total, nil
}

func (r *recordRepository) CountByFamily(ctx context.Context) (map[domain.RecordFamily]int64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT data_type, COUNT(*) FROM uploaded_data GROUP BY data_type`)
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

func recordWhere(filter domain.RecordFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Family != "" {
		w.add("data_type = ?", string(filter.Family))
	}
	if filter.Year != 0 {
		w.add("year = ?", filter.Year)
	}
	if filter.College != "" {
		w.add("college = ?", filter.College)
	}
	if filter.Department != "" {
		w.add("department = ?", filter.Department)
	}
	if filter.UploadLogID != uuid.Nil {
		w.add("upload_log_id = ?", filter.UploadLogID.String())
	}
	return w
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	value := s.String
	return &value
}
