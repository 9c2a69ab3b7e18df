package repository

import (
	"context"
	"time"

	"github.com/rpattn/unidata/internal/domain"

	"github.com/google/uuid"
)

// UploadLogRepository persists the audit trail of ingestion attempts.
type UploadLogRepository interface {
	Create(ctx context.Context, log domain.UploadLog) error
	// Finalize stores a terminal log. It only succeeds while the stored row is still pending,
	// returning domain.ErrNotFound or a *domain.TransitionError otherwise.
	Finalize(ctx context.Context, log domain.UploadLog) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.UploadLog, error)
	List(ctx context.Context, filter domain.UploadLogFilter, limit int, offset int) ([]domain.UploadLog, error)
	Count(ctx context.Context, filter domain.UploadLogFilter) (int64, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.UploadLog, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordRepository persists normalized records.
type RecordRepository interface {
	// BulkInsert writes records in chunks of at most batchSize and returns the number written.
	BulkInsert(ctx context.Context, records []domain.NormalizedRecord, batchSize int) (int, error)
	DeleteByFamily(ctx context.Context, family domain.RecordFamily) (int64, error)
	DeleteByUploadLog(ctx context.Context, uploadLogID uuid.UUID) (int64, error)
	List(ctx context.Context, filter domain.RecordFilter, limit int, offset int) ([]domain.NormalizedRecord, error)
	Count(ctx context.Context, filter domain.RecordFilter) (int64, error)
	CountByFamily(ctx context.Context) (map[domain.RecordFamily]int64, error)
}

// Store groups the repositories behind one transaction boundary.
type Store interface {
	UploadLogs() UploadLogRepository
	Records() RecordRepository
	// WithTx runs fn against a store bound to a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise. Nested calls reuse the outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
	// LockFamily serializes writers of one family until the surrounding transaction ends.
	LockFamily(ctx context.Context, family domain.RecordFamily) error
}

// DefaultBatchSize is the insert chunk used when callers pass a non-positive size.
const DefaultBatchSize = 200

// MaxBatchSize bounds a single insert statement.
const MaxBatchSize = 500

// ClampBatchSize keeps a batch size within (0, MaxBatchSize].
func ClampBatchSize(size int) int {
	if size <= 0 {
		return DefaultBatchSize
	}
	if size > MaxBatchSize {
		return MaxBatchSize
	}
	return size
}

// Chunk splits records into consecutive slices of at most size elements.
func Chunk(records []domain.NormalizedRecord, size int) [][]domain.NormalizedRecord {
	size = ClampBatchSize(size)
	chunks := make([][]domain.NormalizedRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
