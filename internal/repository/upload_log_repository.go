package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/unidata/internal/domain"
)

const uploadLogColumns = `id, user_id, file_name, file_size, status, error_message, total_records, processed_records, uploaded_at, updated_at`

type uploadLogRepository struct {
	q querier
}

func (r *uploadLogRepository) Create(ctx context.Context, log domain.UploadLog) error {
	if r.q == nil {
		return fmt.Errorf("upload log repository not initialized")
	}

	_, err := r.q.Exec(
		ctx,
		`INSERT INTO data_upload_logs (id, user_id, file_name, file_size, status, uploaded_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID,
		log.UploaderID,
		log.Filename,
		log.FileSize,
		string(log.Status),
		log.CreatedAt,
		log.UpdatedAt,
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

	tag, err := r.q.Exec(
		ctx,
		`UPDATE data_upload_logs
		 SET status = $2, error_message = $3, total_records = $4, processed_records = $5, updated_at = $6
		 WHERE id = $1 AND status = 'pending'`,
		log.ID,
		string(log.Status),
		log.ErrorMessage,
		log.TotalRecords,
		log.ProcessedRecords,
		log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize upload log: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, log.ID)
	if err != nil {
		return err
	}
	return &domain.TransitionError{LogID: log.ID, From: current.Status, To: log.Status}
}

func (r *uploadLogRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.UploadLog, error) {
	row := r.q.QueryRow(ctx, `SELECT `+uploadLogColumns+` FROM data_upload_logs WHERE id = $1`, id)
	log, err := scanUploadLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UploadLog{}, fmt.Errorf("upload log %s: %w", id, domain.ErrNotFound)
		}
		return domain.UploadLog{}, fmt.Errorf("failed to get upload log: %w", err)
	}
	return log, nil
}

func (r *uploadLogRepository) List(ctx context.Context, filter domain.UploadLogFilter, limit int, offset int) ([]domain.UploadLog, error) {
	where := uploadLogWhere(filter)
	page, args := where.paged(limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM data_upload_logs%s ORDER BY uploaded_at DESC, id DESC%s`, uploadLogColumns, where.clause(), page)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	return collectUploadLogs(rows)
}

func (r *uploadLogRepository) Count(ctx context.Context, filter domain.UploadLogFilter) (int64, error) {
	where := uploadLogWhere(filter)
	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM data_upload_logs`+where.clause(), where.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count upload logs: %w", err)
	}
	return total, nil
}

func (r *uploadLogRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.UploadLog, error) {
	rows, err := r.q.Query(
		ctx,
		`SELECT `+uploadLogColumns+` FROM data_upload_logs
		 WHERE status = 'pending' AND uploaded_at < $1
		 ORDER BY uploaded_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending upload logs: %w", err)
	}
	return collectUploadLogs(rows)
}

func (r *uploadLogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM data_upload_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload log %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func collectUploadLogs(rows pgx.Rows) ([]domain.UploadLog, error) {
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

func scanUploadLog(row pgx.Row) (domain.UploadLog, error) {
	var (
		log              domain.UploadLog
		status           string
		errorMessage     pgtype.Text
		totalRecords     pgtype.Int4
		processedRecords pgtype.Int4
		uploadedAt       pgtype.Timestamptz
		updatedAt        pgtype.Timestamptz
	)
	if err := row.Scan(
		&log.ID,
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

	log.Status = domain.UploadStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		log.ErrorMessage = &msg
	}
	if totalRecords.Valid {
		value := int(totalRecords.Int32)
		log.TotalRecords = &value
	}
	if processedRecords.Valid {
		value := int(processedRecords.Int32)
		log.ProcessedRecords = &value
	}
	if uploadedAt.Valid {
		log.CreatedAt = uploadedAt.Time
	}
	if updatedAt.Valid {
		log.UpdatedAt = updatedAt.Time
	}
	return log, nil
}
