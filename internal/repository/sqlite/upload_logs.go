package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/unidata/internal/domain"
)

const uploadLogColumns = `id, user_id, file_name, file_size, status, error_message, total_records, processed_records, uploaded_at, updated_at`

type uploadLogRepository struct {
	q querier
}

func (r *uploadLogRepository) Create(ctx context.Context, log domain.UploadLog) error {
	_, err := r.q.ExecContext(
		ctx,
		`INSERT INTO data_upload_logs (id, user_id, file_name, file_size, status, uploaded_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID.String(),
		log.UploaderID,
		log.Filename,
		log.FileSize,
		string(log.Status),
		formatTime(log.CreatedAt),
		formatTime(log.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create upload log: %w", err)
	}
	return nil
}

func (r *uploadLogRepository) Finalize(ctx context.Context, log domain.UploadLog) error {
	if !log.Status.Terminal() {
		return fmt.Errorf("upload log %s finalized with non-terminal status %s", log.ID, log.Status)
	}

	res, err := r.q.ExecContext(
		ctx,
		`UPDATE data_upload_logs
		 SET status = ?, error_message = ?, total_records = ?, processed_records = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(log.Status),
		nullString(log.ErrorMessage),
		nullInt(log.TotalRecords),
		nullInt(log.ProcessedRecords),
		formatTime(log.UpdatedAt),
		log.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize upload log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, log.ID)
	if err != nil {
		return err
	}
	return &domain.TransitionError{LogID: log.ID, From: current.Status, To: log.Status}
}

func (r *uploadLogRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.UploadLog, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+uploadLogColumns+` FROM data_upload_logs WHERE id = ?`, id.String())
	log, err := scanUploadLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UploadLog{}, fmt.Errorf("upload log %s: %w", id, domain.ErrNotFound)
		}
		return domain.UploadLog{}, fmt.Errorf("failed to get upload log: %w", err)
	}
	return log, nil
}

func (r *uploadLogRepository) List(ctx context.Context, filter domain.UploadLogFilter, limit int, offset int) ([]domain.UploadLog, error) {
	limit, offset = normalizePage(limit, offset)
	where := uploadLogWhere(filter)
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT `+uploadLogColumns+` FROM data_upload_logs`+where.clause()+
			` ORDER BY uploaded_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(where.args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	return collectUploadLogs(rows)
}

func (r *uploadLogRepository) Count(ctx context.Context, filter domain.UploadLogFilter) (int64, error) {
	where := uploadLogWhere(filter)
	var total int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM data_upload_logs`+where.clause(), where.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count upload logs: %w", err)
	}
	return total, nil
}

func (r *uploadLogRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.UploadLog, error) {
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT `+uploadLogColumns+` FROM data_upload_logs
		 WHERE status = 'pending' AND uploaded_at < ?
		 ORDER BY uploaded_at, rowid`,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending upload logs: %w", err)
	}
	return collectUploadLogs(rows)
}

func (r *uploadLogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM data_upload_logs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete upload log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete upload log: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("upload log %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func uploadLogWhere(filter domain.UploadLogFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.UploaderID != nil {
		w.add("user_id = ?", *filter.UploaderID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	return w
}

type scanner interface {
	Scan(dest ...any) error
}

func collectUploadLogs(rows *sql.Rows) ([]domain.UploadLog, error) {
	defer rows.Close()

	logs := []domain.UploadLog{}
	for rows.Next() {
		log, err := scanUploadLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload logs: %w", err)
	}
	return logs, nil
}

func scanUploadLog(row scanner) (domain.UploadLog, error) {
	var (
		log              domain.UploadLog
		id               string
		status           string
		errorMessage     sql.NullString
		totalRecords     sql.NullInt64
		processedRecords sql.NullInt64
		uploadedAt       string
		updatedAt        string
	)
	if err := row.Scan(
		&id,
		&log.UploaderID,
		&log.Filename,
		&log.FileSize,
		&status,
		&errorMessage,
		&totalRecords,
		&processedRecords,
		&uploadedAt,
		&updatedAt,
	); err != nil {
		return domain.UploadLog{}, err
	}

	var err error
	if log.ID, err = uuid.Parse(id); err != nil {
		return domain.UploadLog{}, fmt.Errorf("invalid upload log id %q: %w", id, err)
	}
	if log.CreatedAt, err = parseTime(uploadedAt); err != nil {
		return domain.UploadLog{}, fmt.Errorf("invalid uploaded_at %q: %w", uploadedAt, err)
	}
	if log.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.UploadLog{}, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	log.Status = domain.UploadStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		log.ErrorMessage = &msg
	}
	if totalRecords.Valid {
		value := int(totalRecords.Int64)
		log.TotalRecords = &value
	}
	if processedRecords.Valid {
		value := int(processedRecords.Int64)
		log.ProcessedRecords = &value
	}
	return log, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
