package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadStatus is the lifecycle state of an ingestion attempt.
type UploadStatus string

const (
	UploadPending UploadStatus = "pending"
	UploadSuccess UploadStatus = "success"
	UploadFailed  UploadStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s UploadStatus) Terminal() bool {
	return s == UploadSuccess || s == UploadFailed
}

// UploadLog is the audit record of one ingestion attempt.
type UploadLog struct {
	ID               uuid.UUID    `json:"id"`
	UploaderID       int64        `json:"user_id"`
	Filename         string       `json:"filename"`
	FileSize         int64        `json:"file_size"`
	Status           UploadStatus `json:"status"`
	ErrorMessage     *string      `json:"error_message"`
	TotalRecords     *int         `json:"total_records"`
	ProcessedRecords *int         `json:"processed_records"`
	CreatedAt        time.Time    `json:"uploaded_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewUploadLog starts a pending log.
func NewUploadLog(uploaderID int64, filename string, fileSize int64, now time.Time) UploadLog {
	return UploadLog{
		ID:         uuid.New(),
		UploaderID: uploaderID,
		Filename:   filename,
		FileSize:   fileSize,
		Status:     UploadPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Succeed returns the log moved to success with its record counts.
func (l UploadLog) Succeed(total, processed int, now time.Time) (UploadLog, error) {
	if l.Status != UploadPending {
		return l, &TransitionError{LogID: l.ID, From: l.Status, To: UploadSuccess}
	}
	l.Status = UploadSuccess
	l.TotalRecords = &total
	l.ProcessedRecords = &processed
	l.ErrorMessage = nil
	l.UpdatedAt = now
	return l, nil
}

// Fail returns the log moved to failed with message.
func (l UploadLog) Fail(message string, now time.Time) (UploadLog, error) {
	if l.Status != UploadPending {
		return l, &TransitionError{LogID: l.ID, From: l.Status, To: UploadFailed}
	}
	l.Status = UploadFailed
	l.ErrorMessage = &message
	l.TotalRecords = nil
	l.ProcessedRecords = nil
	l.UpdatedAt = now
	return l, nil
}

// UploadLogFilter selects logs for listing. A nil UploaderID lists every uploader.
type UploadLogFilter struct {
	UploaderID *int64
	Status     UploadStatus
}
